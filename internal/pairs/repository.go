package pairs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crossmkt/arbitrage-backend/pkg/db/models"
	"github.com/crossmkt/arbitrage-backend/pkg/enums"
)

// Repository is the persistence layer for pairs and the seller
// blacklist.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// ExistsByASIN reports whether a pair already references the source
// item.
func (r *Repository) ExistsByASIN(ctx context.Context, asin string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Pair{}).Where("asin = ?", asin).Count(&count).Error; err != nil {
		return false, fmt.Errorf("counting pairs by asin: %w", err)
	}
	return count > 0, nil
}

// ExistsByEbayID reports whether any pair already links the destination
// listing. The ids live in a delimiter-joined column, so this is a
// substring match.
func (r *Repository) ExistsByEbayID(ctx context.Context, ebayID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Pair{}).
		Where("ebay_ids LIKE ?", "%"+ebayID+"%").
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("counting pairs by ebay id: %w", err)
	}
	return count > 0, nil
}

// ExistsBySKU reports whether a generated seller SKU is already taken.
func (r *Repository) ExistsBySKU(ctx context.Context, sku string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Pair{}).Where("seller_sku = ?", sku).Count(&count).Error; err != nil {
		return false, fmt.Errorf("counting pairs by sku: %w", err)
	}
	return count > 0, nil
}

// SellerBlacklisted reports whether the destination seller is on the
// not-allowed list.
func (r *Repository) SellerBlacklisted(ctx context.Context, ebayUserID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.NotAllowedSeller{}).
		Where("ebay_user_id = ?", ebayUserID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking seller blacklist: %w", err)
	}
	return count > 0, nil
}

// Create persists a new pair.
func (r *Repository) Create(ctx context.Context, pair *models.Pair) error {
	if err := r.db.WithContext(ctx).Create(pair).Error; err != nil {
		return fmt.Errorf("creating pair: %w", err)
	}
	return nil
}

// FindByASIN loads one pair by source item id.
func (r *Repository) FindByASIN(ctx context.Context, asin string) (*models.Pair, error) {
	var pair models.Pair
	if err := r.db.WithContext(ctx).First(&pair, "asin = ?", asin).Error; err != nil {
		return nil, err
	}
	return &pair, nil
}

// ListMissingSKU returns pairs that have not been uploaded yet.
func (r *Repository) ListMissingSKU(ctx context.Context) ([]models.Pair, error) {
	var pairs []models.Pair
	if err := r.db.WithContext(ctx).Where("seller_sku = ''").Find(&pairs).Error; err != nil {
		return nil, fmt.Errorf("listing pairs without sku: %w", err)
	}
	return pairs, nil
}

// ListApprovedMissingSKU returns moderator-approved pairs awaiting
// upload.
func (r *Repository) ListApprovedMissingSKU(ctx context.Context) ([]models.Pair, error) {
	var pairs []models.Pair
	err := r.db.WithContext(ctx).
		Where("seller_sku = '' AND check_status = ?", enums.CheckStatusApproved).
		Find(&pairs).Error
	if err != nil {
		return nil, fmt.Errorf("listing approved pairs: %w", err)
	}
	return pairs, nil
}

// ListWithSKU returns every uploaded pair.
func (r *Repository) ListWithSKU(ctx context.Context) ([]models.Pair, error) {
	var pairs []models.Pair
	if err := r.db.WithContext(ctx).Where("seller_sku <> ''").Find(&pairs).Error; err != nil {
		return nil, fmt.Errorf("listing uploaded pairs: %w", err)
	}
	return pairs, nil
}

// ListUnsuitableBefore returns unsuitable pairs whose last update is
// older than the cutoff.
func (r *Repository) ListUnsuitableBefore(ctx context.Context, cutoff time.Time) ([]models.Pair, error) {
	var pairs []models.Pair
	err := r.db.WithContext(ctx).
		Where("check_status >= ? AND updated_at < ?", enums.CheckStatusDifferentItems, cutoff).
		Find(&pairs).Error
	if err != nil {
		return nil, fmt.Errorf("listing unsuitable pairs: %w", err)
	}
	return pairs, nil
}

// HasOrders reports whether any order references the pair.
func (r *Repository) HasOrders(ctx context.Context, pairID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("pair_id = ?", pairID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("counting pair order references: %w", err)
	}
	return count > 0, nil
}

// Delete removes one pair.
func (r *Repository) Delete(ctx context.Context, pairID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Delete(&models.Pair{}, "id = ?", pairID).Error; err != nil {
		return fmt.Errorf("deleting pair: %w", err)
	}
	return nil
}

// UpdateSKU records the marketplace-assigned seller SKU.
func (r *Repository) UpdateSKU(ctx context.Context, pairID uuid.UUID, sku string) error {
	return r.updateColumns(ctx, pairID, map[string]any{"seller_sku": sku})
}

// UpdateQuantity stores the recomputed destination stock.
func (r *Repository) UpdateQuantity(ctx context.Context, pairID uuid.UUID, quantity int) error {
	return r.updateColumns(ctx, pairID, map[string]any{"quantity": quantity})
}

// UpdateCurrentPrice stores the latest observed source price and buybox
// state.
func (r *Repository) UpdateCurrentPrice(ctx context.Context, pairID uuid.UUID, price float64, buyboxWinner bool) error {
	return r.updateColumns(ctx, pairID, map[string]any{
		"current_price":    price,
		"is_buybox_winner": buyboxWinner,
	})
}

// UpdateCheckStatus moves the pair to a new moderation status with an
// optional reason.
func (r *Repository) UpdateCheckStatus(ctx context.Context, pairID uuid.UUID, status enums.CheckStatus, reason string) error {
	return r.updateColumns(ctx, pairID, map[string]any{
		"check_status":   status,
		"reason_message": reason,
	})
}

func (r *Repository) updateColumns(ctx context.Context, pairID uuid.UUID, columns map[string]any) error {
	err := r.db.WithContext(ctx).
		Model(&models.Pair{}).
		Where("id = ?", pairID).
		Updates(columns).Error
	if err != nil {
		return fmt.Errorf("updating pair: %w", err)
	}
	return nil
}
