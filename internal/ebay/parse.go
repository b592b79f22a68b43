package ebay

import (
	"math"

	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
)

// ErrVariatedListing rejects listings with variations: their price and
// stock are per-variation and cannot be attributed to the listing as a
// whole.
var ErrVariatedListing = apperrors.New(apperrors.CodeValidation, "variated listing is not supported")

// Flatten maps a raw item into the pipeline view. Returns
// ErrVariatedListing for variation-having listings.
func Flatten(item Item) (Listing, error) {
	if item.HasVariations {
		return Listing{}, ErrVariatedListing
	}
	return Listing{
		ItemID:          item.ItemID,
		Price:           ListingPrice(item),
		Quantity:        AvailableQuantity(item),
		DeliveryDays:    EstimatedDeliveryDays(item),
		Active:          item.ListingStatus == ListingStatusActive,
		ReturnsAccepted: item.ReturnsAccepted,
		Seller:          item.Seller,
	}, nil
}

// ListingPrice returns the buy-it-now price when present, otherwise the
// current price, plus the cheapest shipping option. 0 means no usable
// price.
func ListingPrice(item Item) float64 {
	var base float64
	switch {
	case item.BuyItNowPrice != nil && *item.BuyItNowPrice > 0:
		base = *item.BuyItNowPrice
	case item.CurrentPrice != nil && *item.CurrentPrice > 0:
		base = *item.CurrentPrice
	default:
		return 0
	}
	return round2(base + cheapestShipping(item.ShippingOptions))
}

// AvailableQuantity returns remaining stock for an active listing, 0 for
// anything delisted.
func AvailableQuantity(item Item) int {
	if item.ListingStatus != ListingStatusActive {
		return 0
	}
	remaining := item.Quantity - item.QuantitySold
	if remaining < 0 {
		return 0
	}
	return remaining
}

// EstimatedDeliveryDays returns the fastest shipping option's estimate,
// nil when no option reports one.
func EstimatedDeliveryDays(item Item) *int {
	var best *int
	for _, opt := range item.ShippingOptions {
		if opt.DeliveryDays == nil {
			continue
		}
		if best == nil || *opt.DeliveryDays < *best {
			days := *opt.DeliveryDays
			best = &days
		}
	}
	return best
}

func cheapestShipping(options []ShippingOption) float64 {
	var best *float64
	for _, opt := range options {
		if opt.Cost == nil {
			continue
		}
		if best == nil || *opt.Cost < *best {
			cost := *opt.Cost
			best = &cost
		}
	}
	if best == nil {
		return 0
	}
	return *best
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
