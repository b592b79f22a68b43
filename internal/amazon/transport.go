package amazon

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/crossmkt/arbitrage-backend/pkg/config"
	"github.com/crossmkt/arbitrage-backend/pkg/enums"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
)

const (
	defaultEndpoint = "https://mws.amazonservices.com"

	productsPath = "/Products/2011-10-01"
	feedsPath    = "/Feeds/2009-01-01"
	ordersPath   = "/Orders/2013-09-01"

	productsVersion = "2011-10-01"
	feedsVersion    = "2009-01-01"
	ordersVersion   = "2013-09-01"
)

var marketplaceIDs = map[string]string{
	"US": "ATVPDKIKX0DER",
	"CA": "A2EUQ1WTGCTBG2",
	"UK": "A1F83G8C2ARO7P",
	"DE": "A1PA6795UKMFR9",
}

// HTTPTransport talks to the source-marketplace web services with signed
// form requests and XML responses.
type HTTPTransport struct {
	endpoint      string
	sellerID      string
	accessKey     string
	secretKey     string
	authToken     string
	marketplaceID string
	client        *http.Client
}

// NewHTTPTransport validates the credentials and builds a transport.
func NewHTTPTransport(cfg config.AmazonConfig) (*HTTPTransport, error) {
	if cfg.SellerID == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("amazon seller id, access key and secret key are required")
	}
	marketplaceID, ok := marketplaceIDs[strings.ToUpper(cfg.Region)]
	if !ok {
		return nil, fmt.Errorf("unknown amazon region %q", cfg.Region)
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		endpoint:      defaultEndpoint,
		sellerID:      cfg.SellerID,
		accessKey:     cfg.AccessKey,
		secretKey:     cfg.SecretKey,
		authToken:     cfg.AuthToken,
		marketplaceID: marketplaceID,
		client:        &http.Client{Timeout: timeout},
	}, nil
}

func (t *HTTPTransport) GetCompetitivePricing(ctx context.Context, asins []string) ([]PricingResult, error) {
	params := t.baseParams("GetCompetitivePricingForASIN", productsVersion)
	params["MarketplaceId"] = t.marketplaceID
	for i, asin := range asins {
		params[fmt.Sprintf("ASINList.ASIN.%d", i+1)] = asin
	}

	var reply competitivePricingResponse
	if err := t.call(ctx, productsPath, params, nil, &reply); err != nil {
		return nil, err
	}

	out := make([]PricingResult, 0, len(reply.Results))
	for _, result := range reply.Results {
		pricing := PricingResult{ASIN: result.ASIN, Status: result.Status}
		for _, price := range result.Product.CompetitivePricing.CompetitivePrices {
			pricing.CompetitivePrices = append(pricing.CompetitivePrices, price.toEntry())
		}
		for _, price := range result.Product.LowestOfferListings {
			pricing.LowestPrices = append(pricing.LowestPrices, price.toEntry())
		}
		out = append(out, pricing)
	}
	return out, nil
}

func (t *HTTPTransport) ListListings(ctx context.Context, asins []string) ([]ListingRecord, error) {
	params := t.baseParams("GetMyPriceForASIN", productsVersion)
	params["MarketplaceId"] = t.marketplaceID
	for i, asin := range asins {
		params[fmt.Sprintf("ASINList.ASIN.%d", i+1)] = asin
	}

	var reply myPriceResponse
	if err := t.call(ctx, productsPath, params, nil, &reply); err != nil {
		return nil, err
	}

	var out []ListingRecord
	for _, result := range reply.Results {
		for _, offer := range result.Product.Offers {
			out = append(out, ListingRecord{
				ASIN:      result.ASIN,
				SellerSKU: offer.SellerSKU,
				Status:    result.Status,
			})
		}
	}
	return out, nil
}

func (t *HTTPTransport) SubmitFeed(ctx context.Context, feedType enums.FeedType, messages []FeedMessage) (FeedSubmission, error) {
	body, err := buildFeedEnvelope(t.sellerID, feedType, messages)
	if err != nil {
		return FeedSubmission{}, apperrors.Wrap(apperrors.CodeApplication, err, "building feed envelope")
	}

	params := t.baseParams("SubmitFeed", feedsVersion)
	params["FeedType"] = string(feedType)
	params["MarketplaceIdList.Id.1"] = t.marketplaceID

	var reply submitFeedResponse
	if err := t.call(ctx, feedsPath, params, body, &reply); err != nil {
		return FeedSubmission{}, err
	}
	return FeedSubmission{
		ID:     reply.Info.FeedSubmissionID,
		Type:   feedType,
		Status: reply.Info.FeedProcessingStatus,
	}, nil
}

func (t *HTTPTransport) FeedStatus(ctx context.Context, feedID string) (FeedSubmission, error) {
	params := t.baseParams("GetFeedSubmissionList", feedsVersion)
	params["FeedSubmissionIdList.Id.1"] = feedID

	var reply feedSubmissionListResponse
	if err := t.call(ctx, feedsPath, params, nil, &reply); err != nil {
		return FeedSubmission{}, err
	}
	if len(reply.Submissions) == 0 {
		return FeedSubmission{}, apperrors.New(apperrors.CodeApplication, "feed submission not found")
	}
	info := reply.Submissions[0]
	return FeedSubmission{
		ID:     info.FeedSubmissionID,
		Type:   enums.FeedType(info.FeedType),
		Status: info.FeedProcessingStatus,
	}, nil
}

func (t *HTTPTransport) ListOrders(ctx context.Context, createdAfter time.Time, nextToken string) (OrdersPage, error) {
	// Continuation pages come back under a ByNextToken document root.
	if nextToken != "" {
		params := t.baseParams("ListOrdersByNextToken", ordersVersion)
		params["NextToken"] = nextToken

		var reply listOrdersByNextTokenResponse
		if err := t.call(ctx, ordersPath, params, nil, &reply); err != nil {
			return OrdersPage{}, err
		}
		return ordersPage(reply.Orders, reply.NextToken), nil
	}

	params := t.baseParams("ListOrders", ordersVersion)
	params["MarketplaceId.Id.1"] = t.marketplaceID
	params["CreatedAfter"] = createdAfter.UTC().Format(time.RFC3339)
	params["OrderStatus.Status.1"] = OrderStatusUnshipped

	var reply listOrdersResponse
	if err := t.call(ctx, ordersPath, params, nil, &reply); err != nil {
		return OrdersPage{}, err
	}
	return ordersPage(reply.Orders, reply.NextToken), nil
}

func ordersPage(orders []orderXML, nextToken string) OrdersPage {
	page := OrdersPage{NextToken: nextToken}
	for _, order := range orders {
		page.Orders = append(page.Orders, order.toSummary())
	}
	return page
}

func (t *HTTPTransport) ListOrderItems(ctx context.Context, orderID string, nextToken string) (OrderItemsPage, error) {
	if nextToken != "" {
		params := t.baseParams("ListOrderItemsByNextToken", ordersVersion)
		params["NextToken"] = nextToken

		var reply listOrderItemsByNextTokenResponse
		if err := t.call(ctx, ordersPath, params, nil, &reply); err != nil {
			return OrderItemsPage{}, err
		}
		return orderItemsPage(reply.Items, reply.NextToken), nil
	}

	params := t.baseParams("ListOrderItems", ordersVersion)
	params["AmazonOrderId"] = orderID

	var reply listOrderItemsResponse
	if err := t.call(ctx, ordersPath, params, nil, &reply); err != nil {
		return OrderItemsPage{}, err
	}
	return orderItemsPage(reply.Items, reply.NextToken), nil
}

func orderItemsPage(items []orderItemXML, nextToken string) OrderItemsPage {
	page := OrderItemsPage{NextToken: nextToken}
	for _, item := range items {
		page.Items = append(page.Items, LineItem{
			ASIN:            item.ASIN,
			QuantityOrdered: item.QuantityOrdered,
			ItemPrice:       item.ItemPrice.toMoney(),
			ItemTax:         item.ItemTax.toMoney(),
		})
	}
	return page
}

func (t *HTTPTransport) baseParams(action, version string) map[string]string {
	params := map[string]string{
		"Action":           action,
		"Version":          version,
		"SellerId":         t.sellerID,
		"AWSAccessKeyId":   t.accessKey,
		"SignatureMethod":  "HmacSHA256",
		"SignatureVersion": "2",
		"Timestamp":        time.Now().UTC().Format(time.RFC3339),
	}
	if t.authToken != "" {
		params["MWSAuthToken"] = t.authToken
	}
	return params
}

func (t *HTTPTransport) call(ctx context.Context, path string, params map[string]string, body []byte, out any) error {
	endpoint, err := url.Parse(t.endpoint)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeApplication, err, "invalid endpoint")
	}
	query := t.sign(endpoint.Host, path, params)

	target := *endpoint
	target.Path = path
	target.RawQuery = query

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), reader)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeApplication, err, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/xml")
	} else {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConnectivity, err, "request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConnectivity, err, "reading response")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return apperrors.New(apperrors.CodeConnectivity, fmt.Sprintf("server error: %d", resp.StatusCode))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return apperrors.New(apperrors.CodeApplication, fmt.Sprintf("request rejected: %d %s", resp.StatusCode, firstLine(payload)))
	}
	if err := xml.Unmarshal(payload, out); err != nil {
		return apperrors.Wrap(apperrors.CodeApplication, err, "decoding response")
	}
	return nil
}

// sign builds the canonical sorted query string and appends the
// signature-v2 HMAC.
func (t *HTTPTransport) sign(host, path string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+url.QueryEscape(params[k]))
	}
	canonical := strings.Join(pairs, "&")

	toSign := strings.Join([]string{http.MethodPost, host, path, canonical}, "\n")
	mac := hmac.New(sha256.New, []byte(t.secretKey))
	mac.Write([]byte(toSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return canonical + "&Signature=" + url.QueryEscape(signature)
}

func firstLine(payload []byte) string {
	line := string(payload)
	if idx := strings.IndexByte(line, '\n'); idx > 0 {
		line = line[:idx]
	}
	if len(line) > 200 {
		line = line[:200]
	}
	return line
}

// --- wire structs ---

type moneyXML struct {
	Amount       string `xml:"Amount"`
	CurrencyCode string `xml:"CurrencyCode"`
}

func (m moneyXML) toMoney() *Money {
	if m.Amount == "" {
		return nil
	}
	amount, err := strconv.ParseFloat(m.Amount, 64)
	if err != nil {
		return nil
	}
	return &Money{Amount: amount, CurrencyCode: m.CurrencyCode}
}

type priceXML struct {
	Condition    string   `xml:"condition,attr"`
	LandedPrice  moneyXML `xml:"Price>LandedPrice"`
	ListingPrice moneyXML `xml:"Price>ListingPrice"`
	Shipping     moneyXML `xml:"Price>Shipping"`
}

func (p priceXML) toEntry() PriceEntry {
	return PriceEntry{
		Condition:    p.Condition,
		LandedPrice:  p.LandedPrice.toMoney(),
		ListingPrice: p.ListingPrice.toMoney(),
		Shipping:     p.Shipping.toMoney(),
	}
}

type competitivePricingResponse struct {
	XMLName xml.Name                   `xml:"GetCompetitivePricingForASINResponse"`
	Results []competitivePricingResult `xml:"GetCompetitivePricingForASINResult"`
}

type competitivePricingResult struct {
	ASIN    string `xml:"ASIN,attr"`
	Status  string `xml:"status,attr"`
	Product struct {
		CompetitivePricing struct {
			CompetitivePrices []priceXML `xml:"CompetitivePrices>CompetitivePrice"`
		} `xml:"CompetitivePricing"`
		LowestOfferListings []priceXML `xml:"LowestOfferListings>LowestOfferListing"`
	} `xml:"Product"`
}

type myPriceResponse struct {
	XMLName xml.Name        `xml:"GetMyPriceForASINResponse"`
	Results []myPriceResult `xml:"GetMyPriceForASINResult"`
}

type myPriceResult struct {
	ASIN    string `xml:"ASIN,attr"`
	Status  string `xml:"status,attr"`
	Product struct {
		Offers []struct {
			SellerSKU string `xml:"SellerSKU"`
		} `xml:"Offers>Offer"`
	} `xml:"Product"`
}

type feedSubmissionInfoXML struct {
	FeedSubmissionID     string `xml:"FeedSubmissionId"`
	FeedType             string `xml:"FeedType"`
	FeedProcessingStatus string `xml:"FeedProcessingStatus"`
}

type submitFeedResponse struct {
	XMLName xml.Name              `xml:"SubmitFeedResponse"`
	Info    feedSubmissionInfoXML `xml:"SubmitFeedResult>FeedSubmissionInfo"`
}

type feedSubmissionListResponse struct {
	XMLName     xml.Name                `xml:"GetFeedSubmissionListResponse"`
	Submissions []feedSubmissionInfoXML `xml:"GetFeedSubmissionListResult>FeedSubmissionInfo"`
}

type orderXML struct {
	AmazonOrderID   string `xml:"AmazonOrderId"`
	PurchaseDate    string `xml:"PurchaseDate"`
	OrderStatus     string `xml:"OrderStatus"`
	BuyerName       string `xml:"BuyerName"`
	ShippingAddress *struct {
		Name          string `xml:"Name"`
		AddressLine1  string `xml:"AddressLine1"`
		AddressLine2  string `xml:"AddressLine2"`
		AddressLine3  string `xml:"AddressLine3"`
		City          string `xml:"City"`
		County        string `xml:"County"`
		District      string `xml:"District"`
		StateOrRegion string `xml:"StateOrRegion"`
		PostalCode    string `xml:"PostalCode"`
		CountryCode   string `xml:"CountryCode"`
		Phone         string `xml:"Phone"`
		AddressType   string `xml:"AddressType"`
	} `xml:"ShippingAddress"`
}

func (o orderXML) toSummary() OrderSummary {
	summary := OrderSummary{
		OrderID:   o.AmazonOrderID,
		Status:    o.OrderStatus,
		BuyerName: o.BuyerName,
	}
	if parsed, err := time.Parse(time.RFC3339, o.PurchaseDate); err == nil {
		summary.PurchaseDate = parsed
	}
	if a := o.ShippingAddress; a != nil {
		summary.ShippingAddress = &Address{
			Name:          a.Name,
			AddressLine1:  a.AddressLine1,
			AddressLine2:  a.AddressLine2,
			AddressLine3:  a.AddressLine3,
			City:          a.City,
			County:        a.County,
			District:      a.District,
			StateOrRegion: a.StateOrRegion,
			PostalCode:    a.PostalCode,
			CountryCode:   a.CountryCode,
			Phone:         a.Phone,
			AddressType:   a.AddressType,
		}
	}
	return summary
}

type listOrdersResponse struct {
	XMLName   xml.Name   `xml:"ListOrdersResponse"`
	Orders    []orderXML `xml:"ListOrdersResult>Orders>Order"`
	NextToken string     `xml:"ListOrdersResult>NextToken"`
}

// Token continuations come back under a ByNextToken document root, so
// they need their own response shapes.
type listOrdersByNextTokenResponse struct {
	XMLName   xml.Name   `xml:"ListOrdersByNextTokenResponse"`
	Orders    []orderXML `xml:"ListOrdersByNextTokenResult>Orders>Order"`
	NextToken string     `xml:"ListOrdersByNextTokenResult>NextToken"`
}

type orderItemXML struct {
	ASIN            string   `xml:"ASIN"`
	QuantityOrdered int      `xml:"QuantityOrdered"`
	ItemPrice       moneyXML `xml:"ItemPrice"`
	ItemTax         moneyXML `xml:"ItemTax"`
}

type listOrderItemsResponse struct {
	XMLName   xml.Name       `xml:"ListOrderItemsResponse"`
	Items     []orderItemXML `xml:"ListOrderItemsResult>OrderItems>OrderItem"`
	NextToken string         `xml:"ListOrderItemsResult>NextToken"`
}

type listOrderItemsByNextTokenResponse struct {
	XMLName   xml.Name       `xml:"ListOrderItemsByNextTokenResponse"`
	Items     []orderItemXML `xml:"ListOrderItemsByNextTokenResult>OrderItems>OrderItem"`
	NextToken string         `xml:"ListOrderItemsByNextTokenResult>NextToken"`
}
