package checkout

import (
	"errors"
	"sync"
	"time"

	"github.com/example/promo-checkout/internal/domain/pricing"
	"github.com/google/uuid"
)

var (
	ErrUnknownTier = errors.New("unknown campaign tier")
	ErrInvalidStep = errors.New("invalid checkout step")
)

// Wizard steps. Transitions are caller-driven; the store only guarantees
// that no line item reaches the payment step without a tier.
const (
	StepLanding  = 0
	StepSongs    = 1
	StepCampaign = 2
	StepPayment  = 3
)

// Track is the display metadata for a promotable song, as returned by the
// lookup service.
type Track struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	PreviewURL  string `json:"preview_url,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`
	Popularity  int    `json:"popularity,omitempty"`
}

// LineItem is one promotable track instance in the cart. The same track may
// be added more than once; instances are distinguished by InstanceID.
type LineItem struct {
	InstanceID string    `json:"instance_id"`
	Track      Track     `json:"track"`
	AddedAt    time.Time `json:"added_at"`
}

// BuyerContact holds the buyer's contact fields. All fields are optional
// until checkout; completeness means all three are non-empty.
type BuyerContact struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Complete reports whether every contact field is filled in.
func (c BuyerContact) Complete() bool {
	return c.Email != "" && c.FirstName != "" && c.LastName != ""
}

// ContactUpdate is a partial contact mutation; nil fields are left untouched.
type ContactUpdate struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// Session is the cart/order state for one checkout. It owns the line items,
// per-item tier assignments, buyer contact and the wizard step. It holds no
// network state; the payment synchronizer reacts to its values.
type Session struct {
	ID string

	mu       sync.Mutex
	items    []LineItem
	tiers    map[string]pricing.Tier // instanceID -> assigned tier
	contact  BuyerContact
	addonIDs []string
	step     int
}

func NewSession() *Session {
	return &Session{
		ID:    uuid.New().String(),
		tiers: make(map[string]pricing.Tier),
	}
}

// AddLineItem adds a track to the cart and returns the fresh instance id.
// Adding the same track twice yields two independent line items.
func (s *Session) AddLineItem(track Track) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := LineItem{
		InstanceID: uuid.New().String(),
		Track:      track,
		AddedAt:    time.Now(),
	}
	s.items = append(s.items, item)
	return item.InstanceID
}

// RemoveLineItem removes a line item and its tier assignment atomically.
// Removing an id that is already gone is a no-op.
func (s *Session) RemoveLineItem(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.items {
		if item.InstanceID == instanceID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	delete(s.tiers, instanceID)
}

// AssignTier upserts the tier assignment for a line item. Assigning to an
// instance that no longer exists is a no-op; an unknown tier id is rejected.
func (s *Session) AssignTier(instanceID, tierID string) error {
	tier, ok := pricing.TierByID(tierID)
	if !ok {
		return ErrUnknownTier
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.InstanceID == instanceID {
			s.tiers[instanceID] = tier
			return nil
		}
	}
	// Item was removed concurrently; nothing to assign.
	return nil
}

// SetBuyerContact merges the provided fields into the buyer contact. No
// validation happens here; completeness is checked by readers.
func (s *Session) SetBuyerContact(update ContactUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.Email != nil {
		s.contact.Email = *update.Email
	}
	if update.FirstName != nil {
		s.contact.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		s.contact.LastName = *update.LastName
	}
}

// SetAddons replaces the addon selection. Duplicates are collapsed; unknown
// ids are kept but priced at zero by the pricing engine.
func (s *Session) SetAddons(addonIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(addonIDs))
	selection := make([]string, 0, len(addonIDs))
	for _, id := range addonIDs {
		if !seen[id] {
			seen[id] = true
			selection = append(selection, id)
		}
	}
	s.addonIDs = selection
}

// SetStep moves the wizard to the given step. Entering the payment step
// assigns the default tier to every line item that has none, so checkout can
// never present an unpriced item.
func (s *Session) SetStep(step int) error {
	if step < StepLanding || step > StepPayment {
		return ErrInvalidStep
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if step == StepPayment {
		for _, item := range s.items {
			if _, ok := s.tiers[item.InstanceID]; !ok {
				s.tiers[item.InstanceID] = pricing.DefaultTier()
			}
		}
	}
	s.step = step
	return nil
}

// Reset clears all state back to initial values. Callers that reset
// mid-payment must also invalidate the in-flight authorization; the payment
// synchronizer does that via its generation counter.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.tiers = make(map[string]pricing.Tier)
	s.contact = BuyerContact{}
	s.addonIDs = nil
	s.step = StepLanding
}

// Quote recomputes the price breakdown from current state.
func (s *Session) Quote() pricing.PriceQuote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.Quote(s.itemIDsLocked(), s.tiers, s.addonIDs, pricing.Addons)
}

// Items returns a copy of the current line items.
func (s *Session) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]LineItem, len(s.items))
	copy(items, s.items)
	return items
}

// TierAssignments returns a copy of the instanceID -> tier map.
func (s *Session) TierAssignments() map[string]pricing.Tier {
	s.mu.Lock()
	defer s.mu.Unlock()

	tiers := make(map[string]pricing.Tier, len(s.tiers))
	for id, tier := range s.tiers {
		tiers[id] = tier
	}
	return tiers
}

// Contact returns the current buyer contact.
func (s *Session) Contact() BuyerContact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contact
}

// AddonIDs returns a copy of the current addon selection.
func (s *Session) AddonIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(s.addonIDs))
	copy(ids, s.addonIDs)
	return ids
}

// Step returns the current wizard step.
func (s *Session) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *Session) itemIDsLocked() []string {
	ids := make([]string, len(s.items))
	for i, item := range s.items {
		ids[i] = item.InstanceID
	}
	return ids
}
