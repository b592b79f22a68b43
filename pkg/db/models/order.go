package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderIDLength is the fixed length of an external source-marketplace
// order id.
const OrderIDLength = 19

// ShippingInfo is the fixed shipping-address field set parsed from an
// incoming order.
type ShippingInfo struct {
	BuyerName     string `json:"buyerName"`
	Name          string `json:"name,omitempty"`
	AddressLine1  string `json:"addressLine1,omitempty"`
	AddressLine2  string `json:"addressLine2,omitempty"`
	AddressLine3  string `json:"addressLine3,omitempty"`
	City          string `json:"city,omitempty"`
	County        string `json:"county,omitempty"`
	District      string `json:"district,omitempty"`
	StateOrRegion string `json:"stateOrRegion,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	CountryCode   string `json:"countryCode,omitempty"`
	Phone         string `json:"phone,omitempty"`
	AddressType   string `json:"addressType,omitempty"`
}

// PurchaseOutcome records the per-listing purchase result for one ordered
// item. Failed marks an item skipped before any listing attempt.
type PurchaseOutcome struct {
	Failed   bool            `json:"failed,omitempty"`
	Listings map[string]bool `json:"listings,omitempty"`
}

// PurchaseStatusMap keys purchase outcomes by pair id.
type PurchaseStatusMap map[string]PurchaseOutcome

// Order is one purchase event on the source marketplace.
type Order struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          string             `gorm:"column:order_id;type:char(19);not null;uniqueIndex"`
	PurchaseDate     time.Time          `gorm:"column:purchase_date;type:date;not null"`
	SourcePrice      float64            `gorm:"column:source_price;type:numeric(10,2);not null;default:0"`
	DestinationPrice float64            `gorm:"column:destination_price;type:numeric(10,2);not null;default:0"`
	TotalProfit      float64            `gorm:"column:total_profit;type:numeric(10,2);not null;default:0"`
	IsMulti          bool               `gorm:"column:is_multi;not null;default:false"`
	AllSet           bool               `gorm:"column:all_set;not null;default:false"`
	Returned         bool               `gorm:"column:returned;not null;default:false"`
	OwnersProfits    map[string]float64 `gorm:"column:owners_profits;type:jsonb;serializer:json"`
	ShippingInfo     *ShippingInfo      `gorm:"column:shipping_info;type:jsonb;serializer:json"`
	PurchaseStatus   PurchaseStatusMap  `gorm:"column:purchase_status;type:jsonb;serializer:json"`
	Items            []OrderItem        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

// OrderItem links an order to a pair with the ordered quantity.
type OrderItem struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID  uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	PairID   uuid.UUID `gorm:"column:pair_id;type:uuid;not null;index"`
	Pair     *Pair     `gorm:"foreignKey:PairID"`
	Quantity int       `gorm:"column:quantity;not null"`
}

func (OrderItem) TableName() string { return "order_items" }
