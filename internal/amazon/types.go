package amazon

import (
	"time"

	"github.com/crossmkt/arbitrage-backend/pkg/enums"
)

// Order statuses surfaced by the orders API that ingestion cares about.
const OrderStatusUnshipped = "Unshipped"

// Money is an amount in the marketplace currency.
type Money struct {
	Amount       float64
	CurrencyCode string
}

// PriceEntry is one price slot inside a competitive-pricing response.
// Optional sub-objects stay nil when the API omits them.
type PriceEntry struct {
	Condition    string
	LandedPrice  *Money
	ListingPrice *Money
	Shipping     *Money
}

// PricingResult is the per-ASIN slice of a competitive-pricing response.
// CompetitivePrices holds buybox slots, LowestPrices the cheapest offers
// per condition.
type PricingResult struct {
	ASIN              string
	Status            string
	CompetitivePrices []PriceEntry
	LowestPrices      []PriceEntry
}

// PriceInfo is the flattened per-ASIN output of a price lookup. Price 0
// means no usable price; BuyBox nil means the buybox state could not be
// determined.
type PriceInfo struct {
	ASIN   string
	Price  float64
	BuyBox *bool
}

// ListingRecord is one of the seller's own listings; used to reconcile
// externally-assigned SKUs back into local state.
type ListingRecord struct {
	ASIN      string
	SellerSKU string
	Status    string
}

// FeedMessage is one row of a bulk feed. Quantity and Price are set only
// for the feed types that carry them.
type FeedMessage struct {
	SellerSKU string
	ASIN      string
	Quantity  *int
	Price     *float64
}

// FeedSubmission is the feeds API acknowledgement for one submitted feed.
type FeedSubmission struct {
	ID     string
	Type   enums.FeedType
	Status string
}

// Address is the parsed ship-to block of an order.
type Address struct {
	Name          string
	AddressLine1  string
	AddressLine2  string
	AddressLine3  string
	City          string
	County        string
	District      string
	StateOrRegion string
	PostalCode    string
	CountryCode   string
	Phone         string
	AddressType   string
}

// OrderSummary is one order as returned by the orders listing API.
type OrderSummary struct {
	OrderID         string
	PurchaseDate    time.Time
	Status          string
	BuyerName       string
	ShippingAddress *Address
}

// OrdersPage is one page of an orders listing, with a continuation token
// when more pages remain.
type OrdersPage struct {
	Orders    []OrderSummary
	NextToken string
}

// LineItem is one ordered item inside an order.
type LineItem struct {
	ASIN            string
	QuantityOrdered int
	ItemPrice       *Money
	ItemTax         *Money
}

// OrderItemsPage is one page of an order's line items.
type OrderItemsPage struct {
	Items     []LineItem
	NextToken string
}
