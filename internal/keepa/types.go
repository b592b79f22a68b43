package keepa

import (
	"context"
	"time"
)

// Sample is one point of a tracked time series.
type Sample struct {
	Time  time.Time
	Value int
}

// ProductHistory is the per-item slice of a sales-history query.
type ProductHistory struct {
	ASIN        string
	SalesRank   []Sample
	OfferCounts []Sample
	// LastPlatformSale is the most recent time the platform itself sold
	// the item, nil when it never has.
	LastPlatformSale *time.Time
}

// Transport is the raw sales-history API client. One call covers a whole
// batch of item ids.
type Transport interface {
	Query(ctx context.Context, asins []string) ([]ProductHistory, error)
}
