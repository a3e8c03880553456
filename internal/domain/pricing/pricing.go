package pricing

// MultiSongDiscountRate applies to the tier subtotal when the cart holds two
// or more tracks. It never applies to addons.
const MultiSongDiscountRate = 0.20

// PriceQuote is the computed price breakdown for a cart. It is derived on
// every read and never stored.
type PriceQuote struct {
	SubtotalBeforeDiscount float64 `json:"subtotal_before_discount"`
	DiscountRate           float64 `json:"discount_rate"`
	DiscountAmount         float64 `json:"discount_amount"`
	AddonsTotal            float64 `json:"addons_total"`
	GrandTotal             float64 `json:"grand_total"`
}

// Quote computes the price for the given cart contents. Amounts are decimal
// dollars; conversion to cents happens only at the payment gateway boundary.
//
// Items without a tier assignment contribute nothing to the subtotal, and
// unknown addon ids contribute nothing to the addon total.
func Quote(itemIDs []string, assignments map[string]Tier, addonIDs []string, addons map[string]Addon) PriceQuote {
	var q PriceQuote

	for _, itemID := range itemIDs {
		if tier, ok := assignments[itemID]; ok {
			q.SubtotalBeforeDiscount += tier.Price
		}
	}

	if len(itemIDs) >= 2 {
		q.DiscountRate = MultiSongDiscountRate
	}
	q.DiscountAmount = q.SubtotalBeforeDiscount * q.DiscountRate

	for _, addonID := range addonIDs {
		if addon, ok := addons[addonID]; ok {
			q.AddonsTotal += addon.Price
		}
	}

	q.GrandTotal = q.SubtotalBeforeDiscount - q.DiscountAmount + q.AddonsTotal
	return q
}
