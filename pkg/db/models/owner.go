package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Owner is a pair owner participating in the hierarchical profit split.
// Level 0 is the bottom of the hierarchy.
type Owner struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Username   string          `gorm:"column:username;type:varchar(150);not null;uniqueIndex"`
	Level      int             `gorm:"column:level;not null;default:0"`
	PairsCount int             `gorm:"column:pairs_count;not null;default:0"`
	Profit     decimal.Decimal `gorm:"column:profit;type:numeric(12,2);not null;default:0"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Owner) TableName() string { return "owners" }
