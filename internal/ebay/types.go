package ebay

// ListingStatusActive is the only listing state a pair may link to.
const ListingStatusActive = "Active"

// SellerInfo describes the listing's seller as reported by the search and
// item APIs.
type SellerInfo struct {
	UserID          string
	FeedbackScore   int
	PositivePercent float64
}

// SearchItem is one result row of a title search.
type SearchItem struct {
	ItemID string
	Title  string
	Seller SellerInfo
}

// ShippingOption is one way a listing ships. Optional fields stay nil
// when the API omits them.
type ShippingOption struct {
	Service      string
	Cost         *float64
	DeliveryDays *int
}

// Item is the full listing record from the item-detail API.
type Item struct {
	ItemID          string
	Title           string
	ListingStatus   string
	CurrentPrice    *float64
	BuyItNowPrice   *float64
	Quantity        int
	QuantitySold    int
	HasVariations   bool
	ReturnsAccepted bool
	Seller          SellerInfo
	ShippingOptions []ShippingOption
}

// Listing is the flattened view the rest of the pipeline works with.
type Listing struct {
	ItemID          string
	Price           float64
	Quantity        int
	DeliveryDays    *int
	Active          bool
	ReturnsAccepted bool
	Seller          SellerInfo
}
