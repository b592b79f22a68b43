package models

import (
	"time"

	"github.com/google/uuid"
)

// NotAllowedSeller blacklists a destination-marketplace seller. Read-only
// input to candidate filtering.
type NotAllowedSeller struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EbayUserID string    `gorm:"column:ebay_user_id;type:varchar(64);not null;uniqueIndex"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (NotAllowedSeller) TableName() string { return "not_allowed_sellers" }
