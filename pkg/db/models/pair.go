package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crossmkt/arbitrage-backend/pkg/enums"
)

const (
	// ASINLength is the fixed length of a source-marketplace item id.
	ASINLength = 10
	// EbayIDLength is the fixed length of a destination listing id.
	EbayIDLength = 12
	// MaxEbayIDs caps the destination listings linked to one pair. The
	// joined column is fixed-width; the cap also respects pricing API
	// batch limits downstream.
	MaxEbayIDs = 4
	// EbayIDsDelimiter joins destination ids inside the ebay_ids column.
	EbayIDsDelimiter = ";"
)

// Pair links one source-marketplace item to up to MaxEbayIDs destination
// listings plus the derived pricing for the source-side listing.
type Pair struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID          uuid.UUID         `gorm:"column:owner_id;type:uuid;not null"`
	Owner            *Owner            `gorm:"foreignKey:OwnerID"`
	ASIN             string            `gorm:"column:asin;type:char(10);not null;uniqueIndex"`
	SellerSKU        string            `gorm:"column:seller_sku;type:varchar(12);not null;default:''"`
	EbayIDs          string            `gorm:"column:ebay_ids;type:varchar(51);not null"`
	Quantity         *int              `gorm:"column:quantity"`
	MinimumPrice     float64           `gorm:"column:minimum_price;type:numeric(10,2);not null"`
	ApproximatePrice float64           `gorm:"column:approximate_price;type:numeric(10,2);not null"`
	CurrentPrice     float64           `gorm:"column:current_price;type:numeric(10,2);not null;default:0"`
	IsBuyboxWinner   bool              `gorm:"column:is_buybox_winner;not null;default:false"`
	CheckStatus      enums.CheckStatus `gorm:"column:check_status;not null;default:0"`
	ReasonMessage    string            `gorm:"column:reason_message;type:varchar(100);not null;default:''"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Pair) TableName() string { return "pairs" }

// EbayIDList splits the denormalized ebay_ids column.
func (p Pair) EbayIDList() []string {
	if p.EbayIDs == "" {
		return nil
	}
	return strings.Split(p.EbayIDs, EbayIDsDelimiter)
}

// JoinEbayIDs builds the denormalized ebay_ids column value.
func JoinEbayIDs(ids []string) string {
	return strings.Join(ids, EbayIDsDelimiter)
}
