package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crossmkt/arbitrage-backend/pkg/db/models"
)

// Repository is the persistence layer for ingested orders.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// ExistsByOrderID reports whether the external order id was already
// ingested.
func (r *Repository) ExistsByOrderID(ctx context.Context, orderID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("counting orders by external id: %w", err)
	}
	return count > 0, nil
}

// Create persists a new order together with its items.
func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("creating order: %w", err)
	}
	return nil
}

// ListUnprocessed returns orders the purchase orchestrator has not
// finished yet, with items and their pairs preloaded.
func (r *Repository) ListUnprocessed(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Pair").
		Where("all_set = ?", false).
		Order("purchase_date ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("listing unprocessed orders: %w", err)
	}
	return orders, nil
}

// UpdateOutcome records the purchase results of one processed order.
func (r *Repository) UpdateOutcome(ctx context.Context, orderID uuid.UUID, outcome models.Order) error {
	// struct update so the jsonb serializers apply
	err := r.db.WithContext(ctx).
		Model(&models.Order{ID: orderID}).
		Select("destination_price", "total_profit", "owners_profits", "purchase_status", "all_set").
		Updates(&outcome).Error
	if err != nil {
		return fmt.Errorf("updating order outcome: %w", err)
	}
	return nil
}
