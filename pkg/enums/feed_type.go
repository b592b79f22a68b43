package enums

// FeedType selects the bulk feed submitted to the source marketplace.
type FeedType string

const (
	FeedTypeProduct       FeedType = "_POST_PRODUCT_DATA_"
	FeedTypeQuantity      FeedType = "_POST_INVENTORY_AVAILABILITY_DATA_"
	FeedTypePrice         FeedType = "_POST_PRODUCT_PRICING_DATA_"
	FeedTypeDeleteProduct FeedType = "_POST_PRODUCT_DELETE_DATA_"
)

// Feed processing statuses reported by the feeds API.
const (
	FeedStatusSubmitted = "_SUBMITTED_"
	FeedStatusDone      = "_DONE_"
)
