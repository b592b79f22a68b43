package pairs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/crossmkt/arbitrage-backend/internal/ebay"
	"github.com/crossmkt/arbitrage-backend/internal/finder"
	"github.com/crossmkt/arbitrage-backend/internal/pricing"
	"github.com/crossmkt/arbitrage-backend/pkg/config"
	"github.com/crossmkt/arbitrage-backend/pkg/db/models"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
	"github.com/crossmkt/arbitrage-backend/pkg/metrics"
)

type pairStore interface {
	ExistsByASIN(ctx context.Context, asin string) (bool, error)
	ExistsByEbayID(ctx context.Context, ebayID string) (bool, error)
	SellerBlacklisted(ctx context.Context, ebayUserID string) (bool, error)
	Create(ctx context.Context, pair *models.Pair) error
}

type listingFetcher interface {
	GetListing(ctx context.Context, itemID string) (ebay.Listing, error)
}

type ownerCounter interface {
	IncrementPairs(ctx context.Context, ownerID uuid.UUID) error
}

// ServiceParams wires a Service.
type ServiceParams struct {
	Store       pairStore
	Destination listingFetcher
	Engine      *pricing.Engine
	Owners      ownerCounter
	Logger      *logger.Logger
	Metrics     *metrics.JobMetrics
	Config      config.FinderConfig
}

// Service turns validated candidates into persisted pairs. It is the
// synchronization point between what the market will support and what
// is actually profitable.
type Service struct {
	store       pairStore
	destination listingFetcher
	engine      *pricing.Engine
	owners      ownerCounter
	logg        *logger.Logger
	metrics     *metrics.JobMetrics
	cfg         config.FinderConfig
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("pair store required")
	}
	if params.Destination == nil {
		return nil, fmt.Errorf("destination gateway required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	if params.Owners == nil {
		return nil, fmt.Errorf("owner counter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		store:       params.Store,
		destination: params.Destination,
		engine:      params.Engine,
		owners:      params.Owners,
		logg:        params.Logger,
		metrics:     params.Metrics,
		cfg:         params.Config,
	}, nil
}

// CreatePairs persists the candidates that survive listing verification
// and the profitability check. Re-runs are idempotent: an existing pair
// for the same source item skips the candidate. Returns the number of
// pairs created.
func (s *Service) CreatePairs(ctx context.Context, ownerID uuid.UUID, candidates []finder.Candidate) int {
	created := 0
	for _, cand := range candidates {
		ok, err := s.createPair(ctx, ownerID, cand)
		if err != nil {
			s.logg.Error(s.logg.WithASIN(ctx, cand.ASIN), "pair creation failed", err)
			continue
		}
		if ok {
			created++
		}
	}
	return created
}

func (s *Service) createPair(ctx context.Context, ownerID uuid.UUID, cand finder.Candidate) (bool, error) {
	ctx = s.logg.WithASIN(ctx, cand.ASIN)

	exists, err := s.store.ExistsByASIN(ctx, cand.ASIN)
	if err != nil {
		return false, err
	}
	if exists {
		s.logg.Debug(ctx, "pair already exists, skipping")
		return false, nil
	}

	ids, prices, quantity := s.verifyListings(ctx, cand.EbayIDs)
	if len(ids) == 0 {
		s.logg.Info(ctx, "no destination listing survived verification")
		s.metrics.IncDropped("listing_verification")
		return false, nil
	}

	var sourcePrice *float64
	if cand.SourcePrice > 0 {
		sourcePrice = &cand.SourcePrice
	}
	result := s.engine.CheckProfit(sourcePrice, prices)
	if !result.OK {
		s.logg.Info(ctx, "margin check failed, skipping")
		s.metrics.IncDropped("margin_check")
		return false, nil
	}

	pair := &models.Pair{
		OwnerID:          ownerID,
		ASIN:             cand.ASIN,
		EbayIDs:          models.JoinEbayIDs(ids),
		Quantity:         &quantity,
		MinimumPrice:     result.MinimumPrice,
		ApproximatePrice: result.ApproximatePrice,
		IsBuyboxWinner:   cand.BuyBox != nil && *cand.BuyBox,
	}
	if err := s.store.Create(ctx, pair); err != nil {
		return false, err
	}
	if err := s.owners.IncrementPairs(ctx, ownerID); err != nil {
		s.logg.Error(ctx, "incrementing owner pair count failed", err)
	}
	s.logg.Info(s.logg.WithField(ctx, "ebay_ids", pair.EbayIDs), "pair created")
	return true, nil
}

// verifyListings checks each destination listing for active status,
// return policy, seller quality, blacklist membership and global
// uniqueness, keeping at most MaxEbayIDs survivors.
func (s *Service) verifyListings(ctx context.Context, ebayIDs []string) ([]string, []float64, int) {
	ids := make([]string, 0, models.MaxEbayIDs)
	prices := make([]float64, 0, models.MaxEbayIDs)
	quantity := 0

	for _, id := range ebayIDs {
		if len(ids) == models.MaxEbayIDs {
			break
		}
		listingCtx := s.logg.WithField(ctx, "ebay_id", id)

		linked, err := s.store.ExistsByEbayID(listingCtx, id)
		if err != nil {
			s.logg.Error(listingCtx, "uniqueness check failed", err)
			continue
		}
		if linked {
			s.logg.Debug(listingCtx, "listing already linked to another pair")
			continue
		}

		listing, err := s.destination.GetListing(listingCtx, id)
		if err != nil {
			if apperrors.IsCode(err, apperrors.CodeValidation) {
				s.logg.Info(listingCtx, "listing rejected: "+err.Error())
			} else {
				s.logg.Error(listingCtx, "listing fetch failed", err)
			}
			continue
		}
		if !s.listingAcceptable(listingCtx, listing) {
			continue
		}

		ids = append(ids, id)
		prices = append(prices, listing.Price)
		quantity += listing.Quantity
	}
	return ids, prices, quantity
}

func (s *Service) listingAcceptable(ctx context.Context, listing ebay.Listing) bool {
	if !listing.Active {
		s.logg.Debug(ctx, "listing not active")
		return false
	}
	if !listing.ReturnsAccepted {
		s.logg.Debug(ctx, "listing does not accept returns")
		return false
	}
	if listing.Price <= 0 {
		s.logg.Debug(ctx, "listing has no usable price")
		return false
	}
	if listing.Seller.FeedbackScore < s.cfg.MinFeedbackScore {
		s.logg.Debug(ctx, "seller feedback score below threshold")
		return false
	}
	if listing.Seller.PositivePercent < s.cfg.MinPositivePercent {
		s.logg.Debug(ctx, "seller positive percentage below threshold")
		return false
	}
	blacklisted, err := s.store.SellerBlacklisted(ctx, listing.Seller.UserID)
	if err != nil {
		s.logg.Error(ctx, "blacklist check failed", err)
		return false
	}
	if blacklisted {
		s.logg.Info(ctx, "seller is blacklisted")
		return false
	}
	return true
}
