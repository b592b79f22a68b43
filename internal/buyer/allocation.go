package buyer

import (
	"context"
	"sort"

	"github.com/crossmkt/arbitrage-backend/internal/ebay"
)

// Allocation assigns part of an item's required quantity to one
// destination listing.
type Allocation struct {
	ListingID string
	Quantity  int
	Price     float64
}

type listingQuote struct {
	id    string
	price float64
	stock int
}

// allocate distributes the required quantity across the quoted listings
// cheapest-first, spilling into the next listing once stock runs out.
// Ties break on listing id so reruns allocate identically. Returns fewer
// units than required when combined stock is short.
func allocate(required int, quotes []listingQuote) []Allocation {
	sort.Slice(quotes, func(i, j int) bool {
		if quotes[i].price != quotes[j].price {
			return quotes[i].price < quotes[j].price
		}
		return quotes[i].id < quotes[j].id
	})

	var out []Allocation
	remaining := required
	for _, quote := range quotes {
		if remaining <= 0 {
			break
		}
		if quote.stock <= 0 {
			continue
		}
		take := quote.stock
		if take > remaining {
			take = remaining
		}
		out = append(out, Allocation{ListingID: quote.id, Quantity: take, Price: quote.price})
		remaining -= take
	}
	return out
}

// purchaseCondition builds the allocation plan for one item. A single
// linked listing is bought directly at full quantity; multiple listings
// are quoted live and allocated cheapest-first. A listing that cannot be
// quoted contributes zero stock.
func (o *Orchestrator) purchaseCondition(ctx context.Context, ebayIDs []string, required int) []Allocation {
	if len(ebayIDs) == 1 {
		return []Allocation{{ListingID: ebayIDs[0], Quantity: required}}
	}

	quotes := make([]listingQuote, 0, len(ebayIDs))
	for _, id := range ebayIDs {
		listing, err := o.destination.GetListing(ctx, id)
		if err != nil {
			o.logg.Info(o.logg.WithField(ctx, "ebay_id", id), "listing unavailable for purchase quoting")
			continue
		}
		quotes = append(quotes, listingQuote{
			id:    id,
			price: listing.Price,
			stock: availableStock(listing),
		})
	}
	return allocate(required, quotes)
}

func availableStock(listing ebay.Listing) int {
	if !listing.Active {
		return 0
	}
	return listing.Quantity
}
