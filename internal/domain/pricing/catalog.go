package pricing

// Tier is a purchasable promotion package for a single track.
type Tier struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	ListPrice float64 `json:"list_price"`
	Streams   string  `json:"streams"`
	Pitches   string  `json:"pitches"`
	Popular   bool    `json:"popular,omitempty"`
}

// Addon is an optional checkout upgrade.
type Addon struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	ListPrice float64 `json:"list_price"`
}

// DefaultTierID is assigned to any line item that reaches the payment step
// without an explicit tier choice.
const DefaultTierID = "pro"

// Tiers is the campaign tier catalog.
var Tiers = map[string]Tier{
	"bronze": {
		ID:        "bronze",
		Name:      "Bronze",
		Price:     79,
		ListPrice: 160,
		Streams:   "500-1.5k",
		Pitches:   "3+",
	},
	"gold": {
		ID:        "gold",
		Name:      "Gold",
		Price:     129,
		ListPrice: 330,
		Streams:   "2k-5k",
		Pitches:   "8+",
	},
	"pro": {
		ID:        "pro",
		Name:      "Pro",
		Price:     199,
		ListPrice: 499,
		Streams:   "3k-10k",
		Pitches:   "15+",
		Popular:   true,
	},
	"platinum": {
		ID:        "platinum",
		Name:      "Platinum",
		Price:     309,
		ListPrice: 759,
		Streams:   "8k-15k",
		Pitches:   "20+",
	},
}

// Addons is the purchasable addon catalog.
var Addons = map[string]Addon{
	"apple-music": {
		ID:        "apple-music",
		Name:      "Promote on Apple Music (50% OFF)",
		Price:     64.50,
		ListPrice: 129.00,
	},
	"campaign-upgrade": {
		ID:        "campaign-upgrade",
		Name:      "Campaign upgrade (80% OFF)",
		Price:     67.99,
		ListPrice: 400.00,
	},
}

// TierByID looks up a tier in the catalog.
func TierByID(id string) (Tier, bool) {
	t, ok := Tiers[id]
	return t, ok
}

// DefaultTier returns the tier applied when the buyer never picked one.
func DefaultTier() Tier {
	return Tiers[DefaultTierID]
}
