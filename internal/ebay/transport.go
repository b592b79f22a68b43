package ebay

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/crossmkt/arbitrage-backend/pkg/config"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
)

const (
	findingEndpoint = "https://svcs.ebay.com/services/search/FindingService/v1"
	tradingEndpoint = "https://api.ebay.com/ws/api.dll"

	findingVersion = "1.13.0"
	tradingVersion = "967"
)

// HTTPTransport talks to the destination marketplace: the finding
// service for title searches and the trading API for item detail.
type HTTPTransport struct {
	findingURL string
	tradingURL string
	appID      string
	devID      string
	certID     string
	userToken  string
	client     *http.Client
}

// NewHTTPTransport validates the credentials and builds a transport.
func NewHTTPTransport(cfg config.EbayConfig) (*HTTPTransport, error) {
	if cfg.AppID == "" {
		return nil, fmt.Errorf("ebay app id is required")
	}
	if cfg.DevID == "" || cfg.CertID == "" || cfg.UserToken == "" {
		return nil, fmt.Errorf("ebay dev id, cert id and user token are required")
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		findingURL: findingEndpoint,
		tradingURL: tradingEndpoint,
		appID:      cfg.AppID,
		devID:      cfg.DevID,
		certID:     cfg.CertID,
		userToken:  cfg.UserToken,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

func (t *HTTPTransport) Search(ctx context.Context, query string) ([]SearchItem, error) {
	body, err := xml.Marshal(findItemsRequest{Keywords: query})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeApplication, err, "building search request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.findingURL, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeApplication, err, "building request")
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("X-EBAY-SOA-OPERATION-NAME", "findItemsByKeywords")
	req.Header.Set("X-EBAY-SOA-SERVICE-VERSION", findingVersion)
	req.Header.Set("X-EBAY-SOA-SECURITY-APPNAME", t.appID)
	req.Header.Set("X-EBAY-SOA-GLOBAL-ID", "EBAY-US")

	var reply findItemsResponse
	if err := t.do(req, &reply); err != nil {
		return nil, err
	}
	if reply.Ack != "" && reply.Ack != "Success" && reply.Ack != "Warning" {
		return nil, apperrors.New(apperrors.CodeApplication, "search rejected: "+reply.firstError())
	}

	out := make([]SearchItem, 0, len(reply.Items))
	for _, item := range reply.Items {
		out = append(out, SearchItem{
			ItemID: item.ItemID,
			Title:  item.Title,
			Seller: SellerInfo{
				UserID:          item.SellerInfo.UserName,
				FeedbackScore:   item.SellerInfo.FeedbackScore,
				PositivePercent: item.SellerInfo.PositivePercent,
			},
		})
	}
	return out, nil
}

func (t *HTTPTransport) GetItem(ctx context.Context, itemID string) (Item, error) {
	request := getItemRequest{
		Xmlns:         "urn:ebay:apis:eBLBaseComponents",
		Token:         t.userToken,
		ItemID:        itemID,
		DetailLevel:   "ReturnAll",
		ErrorLanguage: "en_US",
	}
	body, err := xml.Marshal(request)
	if err != nil {
		return Item{}, apperrors.Wrap(apperrors.CodeApplication, err, "building item request")
	}
	body = append([]byte(xml.Header), body...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tradingURL, bytes.NewReader(body))
	if err != nil {
		return Item{}, apperrors.Wrap(apperrors.CodeApplication, err, "building request")
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("X-EBAY-API-CALL-NAME", "GetItem")
	req.Header.Set("X-EBAY-API-COMPATIBILITY-LEVEL", tradingVersion)
	req.Header.Set("X-EBAY-API-APP-NAME", t.appID)
	req.Header.Set("X-EBAY-API-DEV-NAME", t.devID)
	req.Header.Set("X-EBAY-API-CERT-NAME", t.certID)
	req.Header.Set("X-EBAY-API-SITEID", "0")

	var reply getItemResponse
	if err := t.do(req, &reply); err != nil {
		return Item{}, err
	}
	if reply.Ack != "Success" && reply.Ack != "Warning" {
		return Item{}, apperrors.New(apperrors.CodeApplication, "item lookup rejected: "+reply.firstError())
	}
	return reply.Item.toItem(), nil
}

func (t *HTTPTransport) do(req *http.Request, out any) error {
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
		return apperrors.New(apperrors.CodeApplication, fmt.Sprintf("request rejected: %d", resp.StatusCode))
	}
	if err := xml.Unmarshal(payload, out); err != nil {
		return apperrors.Wrap(apperrors.CodeApplication, err, "decoding response")
	}
	return nil
}

// --- wire structs ---

type findItemsRequest struct {
	XMLName  xml.Name `xml:"findItemsByKeywordsRequest"`
	Keywords string   `xml:"keywords"`
}

type apiError struct {
	Message string `xml:"message"`
	Code    string `xml:"errorId"`
}

type findItemsResponse struct {
	XMLName xml.Name `xml:"findItemsByKeywordsResponse"`
	Ack     string   `xml:"ack"`
	Errors  []struct {
		Errors []apiError `xml:"error"`
	} `xml:"errorMessage"`
	Items []struct {
		ItemID     string `xml:"itemId"`
		Title      string `xml:"title"`
		SellerInfo struct {
			UserName        string  `xml:"sellerUserName"`
			FeedbackScore   int     `xml:"feedbackScore"`
			PositivePercent float64 `xml:"positiveFeedbackPercent"`
		} `xml:"sellerInfo"`
	} `xml:"searchResult>item"`
}

func (r findItemsResponse) firstError() string {
	for _, block := range r.Errors {
		for _, e := range block.Errors {
			return e.Message
		}
	}
	return "unknown error"
}

type getItemRequest struct {
	XMLName       xml.Name `xml:"GetItemRequest"`
	Xmlns         string   `xml:"xmlns,attr"`
	Token         string   `xml:"RequesterCredentials>eBayAuthToken"`
	ItemID        string   `xml:"ItemID"`
	DetailLevel   string   `xml:"DetailLevel"`
	ErrorLanguage string   `xml:"ErrorLanguage"`
}

type amountXML struct {
	CurrencyID string `xml:"currencyID,attr"`
	Value      string `xml:",chardata"`
}

func (a amountXML) toFloat() *float64 {
	if a.Value == "" {
		return nil
	}
	value, err := strconv.ParseFloat(a.Value, 64)
	if err != nil {
		return nil
	}
	return &value
}

type getItemResponse struct {
	XMLName xml.Name   `xml:"GetItemResponse"`
	Ack     string     `xml:"Ack"`
	Errors  []apiError `xml:"Errors"`
	Item    itemXML    `xml:"Item"`
}

func (r getItemResponse) firstError() string {
	for _, e := range r.Errors {
		return e.Message
	}
	return "unknown error"
}

type itemXML struct {
	ItemID        string    `xml:"ItemID"`
	Title         string    `xml:"Title"`
	Quantity      int       `xml:"Quantity"`
	BuyItNowPrice amountXML `xml:"BuyItNowPrice"`
	SellingStatus struct {
		ListingStatus string    `xml:"ListingStatus"`
		CurrentPrice  amountXML `xml:"CurrentPrice"`
		QuantitySold  int       `xml:"QuantitySold"`
	} `xml:"SellingStatus"`
	Variations *struct {
		Variation []struct{} `xml:"Variation"`
	} `xml:"Variations"`
	ReturnPolicy struct {
		ReturnsAccepted string `xml:"ReturnsAcceptedOption"`
	} `xml:"ReturnPolicy"`
	Seller struct {
		UserID          string  `xml:"UserID"`
		FeedbackScore   int     `xml:"FeedbackScore"`
		PositivePercent float64 `xml:"PositiveFeedbackPercent"`
	} `xml:"Seller"`
	ShippingDetails struct {
		Options []struct {
			Service string    `xml:"ShippingService"`
			Cost    amountXML `xml:"ShippingServiceCost"`
			TimeMax *int      `xml:"ShippingTimeMax"`
		} `xml:"ShippingServiceOptions"`
	} `xml:"ShippingDetails"`
}

func (i itemXML) toItem() Item {
	item := Item{
		ItemID:          i.ItemID,
		Title:           i.Title,
		ListingStatus:   i.SellingStatus.ListingStatus,
		CurrentPrice:    i.SellingStatus.CurrentPrice.toFloat(),
		BuyItNowPrice:   i.BuyItNowPrice.toFloat(),
		Quantity:        i.Quantity,
		QuantitySold:    i.SellingStatus.QuantitySold,
		HasVariations:   i.Variations != nil && len(i.Variations.Variation) > 0,
		ReturnsAccepted: i.ReturnPolicy.ReturnsAccepted == "ReturnsAccepted",
		Seller: SellerInfo{
			UserID:          i.Seller.UserID,
			FeedbackScore:   i.Seller.FeedbackScore,
			PositivePercent: i.Seller.PositivePercent,
		},
	}
	for _, option := range i.ShippingDetails.Options {
		item.ShippingOptions = append(item.ShippingOptions, ShippingOption{
			Service:      option.Service,
			Cost:         option.Cost.toFloat(),
			DeliveryDays: option.TimeMax,
		})
	}
	return item
}
