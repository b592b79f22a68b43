package amazon

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/crossmkt/arbitrage-backend/pkg/enums"
)

// buildFeedEnvelope serializes messages into the XML envelope the feeds
// API expects for the given feed type.
func buildFeedEnvelope(sellerID string, feedType enums.FeedType, messages []FeedMessage) ([]byte, error) {
	messageType, ok := feedMessageTypes[feedType]
	if !ok {
		return nil, fmt.Errorf("unsupported feed type %q", feedType)
	}

	envelope := feedEnvelope{
		Header:      feedHeader{DocumentVersion: "1.01", MerchantIdentifier: sellerID},
		MessageType: messageType,
	}
	for i, msg := range messages {
		row := feedRow{MessageID: i + 1}
		switch feedType {
		case enums.FeedTypeProduct:
			row.Product = &feedProduct{
				SKU:        msg.SellerSKU,
				StandardID: &feedStandardID{Type: "ASIN", Value: msg.ASIN},
				Condition:  &feedCondition{Type: "New"},
			}
		case enums.FeedTypeDeleteProduct:
			row.OperationType = "Delete"
			row.Product = &feedProduct{SKU: msg.SellerSKU}
		case enums.FeedTypeQuantity:
			quantity := 0
			if msg.Quantity != nil {
				quantity = *msg.Quantity
			}
			row.Inventory = &feedInventory{SKU: msg.SellerSKU, Quantity: quantity}
		case enums.FeedTypePrice:
			price := 0.0
			if msg.Price != nil {
				price = *msg.Price
			}
			row.Price = &feedPrice{
				SKU: msg.SellerSKU,
				StandardPrice: feedAmount{
					Currency: "USD",
					Value:    strconv.FormatFloat(price, 'f', 2, 64),
				},
			}
		}
		envelope.Messages = append(envelope.Messages, row)
	}

	body, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

var feedMessageTypes = map[enums.FeedType]string{
	enums.FeedTypeProduct:       "Product",
	enums.FeedTypeDeleteProduct: "Product",
	enums.FeedTypeQuantity:      "Inventory",
	enums.FeedTypePrice:         "Price",
}

type feedEnvelope struct {
	XMLName     xml.Name   `xml:"AmazonEnvelope"`
	Header      feedHeader `xml:"Header"`
	MessageType string     `xml:"MessageType"`
	Messages    []feedRow  `xml:"Message"`
}

type feedHeader struct {
	DocumentVersion    string `xml:"DocumentVersion"`
	MerchantIdentifier string `xml:"MerchantIdentifier"`
}

type feedRow struct {
	MessageID     int            `xml:"MessageID"`
	OperationType string         `xml:"OperationType,omitempty"`
	Product       *feedProduct   `xml:"Product,omitempty"`
	Inventory     *feedInventory `xml:"Inventory,omitempty"`
	Price         *feedPrice     `xml:"Price,omitempty"`
}

type feedProduct struct {
	SKU        string          `xml:"SKU"`
	StandardID *feedStandardID `xml:"StandardProductID,omitempty"`
	Condition  *feedCondition  `xml:"Condition,omitempty"`
}

type feedStandardID struct {
	Type  string `xml:"Type"`
	Value string `xml:"Value"`
}

type feedCondition struct {
	Type string `xml:"ConditionType"`
}

type feedInventory struct {
	SKU      string `xml:"SKU"`
	Quantity int    `xml:"Quantity"`
}

type feedPrice struct {
	SKU           string     `xml:"SKU"`
	StandardPrice feedAmount `xml:"StandardPrice"`
}

type feedAmount struct {
	Currency string `xml:"currency,attr"`
	Value    string `xml:",chardata"`
}
