package owners

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/crossmkt/arbitrage-backend/pkg/db/models"
)

// Repository is the persistence layer for pair owners.
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

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Owner, error) {
	var owner models.Owner
	if err := r.db.WithContext(ctx).First(&owner, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &owner, nil
}

// ListByLevel returns every owner at the given hierarchy level.
func (r *Repository) ListByLevel(ctx context.Context, level int) ([]models.Owner, error) {
	var owners []models.Owner
	if err := r.db.WithContext(ctx).Where("level = ?", level).Find(&owners).Error; err != nil {
		return nil, fmt.Errorf("listing owners by level: %w", err)
	}
	return owners, nil
}

// AddProfit applies a signed profit delta as an atomic single-row
// update.
func (r *Repository) AddProfit(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	err := r.db.WithContext(ctx).
		Model(&models.Owner{}).
		Where("id = ?", id).
		Update("profit", gorm.Expr("profit + ?", delta)).Error
	if err != nil {
		return fmt.Errorf("updating owner profit: %w", err)
	}
	return nil
}

// IncrementPairs bumps the owner's active-pair counter.
func (r *Repository) IncrementPairs(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&models.Owner{}).
		Where("id = ?", id).
		Update("pairs_count", gorm.Expr("pairs_count + 1")).Error
	if err != nil {
		return fmt.Errorf("incrementing owner pairs: %w", err)
	}
	return nil
}

// DecrementPairs lowers the owner's active-pair counter, never below
// zero.
func (r *Repository) DecrementPairs(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&models.Owner{}).
		Where("id = ? AND pairs_count > 0", id).
		Update("pairs_count", gorm.Expr("pairs_count - 1")).Error
	if err != nil {
		return fmt.Errorf("decrementing owner pairs: %w", err)
	}
	return nil
}
