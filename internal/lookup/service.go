package lookup

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/sony/gobreaker/v2"

	"github.com/example/promo-checkout/internal/domain/checkout"
)

// Service answers track searches for the checkout flow. Results are served
// from cache when possible, and upstream failures degrade to empty results
// so the storefront keeps working while the lookup API is down.
type Service struct {
	client  *Client
	cache   SearchCache
	breaker *gobreaker.CircuitBreaker[[]checkout.Track]
}

func NewService(client *Client, cache SearchCache) *Service {
	breaker := gobreaker.NewCircuitBreaker[[]checkout.Track](gobreaker.Settings{
		Name: "track-lookup",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[Lookup] Circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return &Service{
		client:  client,
		cache:   cache,
		breaker: breaker,
	}
}

// Search resolves a free-text query, or a track URL pasted into the search
// box, to a list of tracks. It never returns an error: lookup failures are
// logged and produce an empty list.
func (s *Service) Search(ctx context.Context, query string) []checkout.Track {
	query = strings.TrimSpace(query)
	if query == "" {
		return []checkout.Track{}
	}

	if trackID := ParseTrackURL(query); trackID != "" {
		return s.byID(ctx, trackID)
	}

	cacheKey := strings.ToLower(query)
	if s.cache != nil {
		if tracks, err := s.cache.Get(ctx, cacheKey); err == nil {
			return tracks
		} else if !errors.Is(err, ErrCacheMiss) {
			log.Printf("[Lookup] Cache read failed for %q: %v", query, err)
		}
	}

	tracks, err := s.breaker.Execute(func() ([]checkout.Track, error) {
		return s.client.Search(ctx, query)
	})
	if err != nil {
		log.Printf("[Lookup] Search failed for %q: %v", query, err)
		return []checkout.Track{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, tracks); err != nil {
			log.Printf("[Lookup] Cache write failed for %q: %v", query, err)
		}
	}
	return tracks
}

func (s *Service) byID(ctx context.Context, trackID string) []checkout.Track {
	tracks, err := s.breaker.Execute(func() ([]checkout.Track, error) {
		track, err := s.client.TrackByID(ctx, trackID)
		if err != nil {
			return nil, err
		}
		return []checkout.Track{*track}, nil
	})
	if err != nil {
		log.Printf("[Lookup] Track lookup failed for %s: %v", trackID, err)
		return []checkout.Track{}
	}
	return tracks
}
