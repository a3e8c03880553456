package lookup

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/example/promo-checkout/internal/domain/checkout"
)

const (
	defaultTokenURL = "https://accounts.spotify.com/api/token"
	defaultAPIURL   = "https://api.spotify.com/v1"

	searchLimit = 10
)

// Client talks to the Spotify Web API using the client credentials flow.
// The access token is cached until shortly before it expires.
type Client struct {
	clientID     string
	clientSecret string
	tokenURL     string
	apiURL       string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     defaultTokenURL,
		apiURL:       defaultAPIURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL,
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+credentials)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.accessToken = tr.AccessToken
	// Renew a minute early to avoid using a token that expires mid-request.
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute)

	return c.accessToken, nil
}

type apiTrack struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string `json:"name"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
	Popularity int    `json:"popularity"`
	PreviewURL string `json:"preview_url"`
}

func (t apiTrack) toTrack() checkout.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	track := checkout.Track{
		ID:          t.ID,
		Name:        t.Name,
		Artist:      strings.Join(artists, ", "),
		Album:       t.Album.Name,
		ExternalURL: t.ExternalURLs.Spotify,
		Popularity:  t.Popularity,
		PreviewURL:  t.PreviewURL,
	}
	if len(t.Album.Images) > 0 {
		track.ImageURL = t.Album.Images[0].URL
	}
	return track
}

// Search returns up to ten tracks matching the query.
func (c *Client) Search(ctx context.Context, query string) ([]checkout.Track, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&type=track&limit=%d",
		c.apiURL, url.QueryEscape(query), searchLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var body struct {
		Tracks struct {
			Items []apiTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	tracks := make([]checkout.Track, 0, len(body.Tracks.Items))
	for _, item := range body.Tracks.Items {
		tracks = append(tracks, item.toTrack())
	}
	return tracks, nil
}

// TrackByID fetches one track.
func (c *Client) TrackByID(ctx context.Context, trackID string) (*checkout.Track, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/tracks/%s", c.apiURL, trackID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("track request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("track lookup returned status %d", resp.StatusCode)
	}

	var item apiTrack
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to decode track response: %w", err)
	}
	track := item.toTrack()
	return &track, nil
}

var trackURLPattern = regexp.MustCompile(`track[/:]([a-zA-Z0-9]+)`)

// ParseTrackURL extracts the track id from an open.spotify.com URL or a
// spotify:track: URI. Returns an empty string when nothing matches.
func ParseTrackURL(raw string) string {
	match := trackURLPattern.FindStringSubmatch(raw)
	if match == nil {
		return ""
	}
	return match[1]
}
