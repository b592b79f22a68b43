package amazon

import "math"

const conditionNew = "New"

// ParsePrice flattens one competitive-pricing result. Buybox slots win;
// otherwise the cheapest of the lowest-priced offers. Used conditions are
// skipped. A result with no usable slot yields Price 0 and BuyBox nil.
func ParsePrice(r PricingResult) PriceInfo {
	info := PriceInfo{ASIN: r.ASIN}

	if amount, ok := lowestAmount(r.CompetitivePrices); ok {
		won := true
		info.Price = round2(amount)
		info.BuyBox = &won
		return info
	}
	if amount, ok := lowestAmount(r.LowestPrices); ok {
		won := false
		info.Price = round2(amount)
		info.BuyBox = &won
		return info
	}
	return info
}

// ParsePrices maps a batch of pricing results, keeping input order.
func ParsePrices(results []PricingResult) []PriceInfo {
	infos := make([]PriceInfo, 0, len(results))
	for _, r := range results {
		infos = append(infos, ParsePrice(r))
	}
	return infos
}

// ItemTotal returns the line-item charge including tax. Missing optional
// amounts count as zero.
func ItemTotal(item LineItem) float64 {
	var total float64
	if item.ItemPrice != nil {
		total += item.ItemPrice.Amount
	}
	if item.ItemTax != nil {
		total += item.ItemTax.Amount
	}
	return round2(total)
}

func lowestAmount(entries []PriceEntry) (float64, bool) {
	best := 0.0
	found := false
	for _, e := range entries {
		if e.Condition != "" && e.Condition != conditionNew {
			continue
		}
		amount := entryAmount(e)
		if amount <= 0 {
			continue
		}
		if !found || amount < best {
			best = amount
			found = true
		}
	}
	return best, found
}

// entryAmount prefers the landed price; without one it reconstructs it
// from listing price plus shipping.
func entryAmount(e PriceEntry) float64 {
	if e.LandedPrice != nil && e.LandedPrice.Amount > 0 {
		return e.LandedPrice.Amount
	}
	var total float64
	if e.ListingPrice != nil {
		total += e.ListingPrice.Amount
	}
	if e.Shipping != nil {
		total += e.Shipping.Amount
	}
	return total
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
