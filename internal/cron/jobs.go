package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crossmkt/arbitrage-backend/internal/amazon"
	"github.com/crossmkt/arbitrage-backend/internal/finder"
	"github.com/crossmkt/arbitrage-backend/pkg/config"
	"github.com/crossmkt/arbitrage-backend/pkg/db/models"
	"github.com/crossmkt/arbitrage-backend/pkg/enums"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
)

// DiscoveryJob runs the candidate pipeline end to end: enumerate source
// catalog candidates, keep the ones with healthy sales history, and
// persist the survivors as pairs under the configured owner.
type DiscoveryJob struct {
	Finder    candidateFinder
	Validator historyValidator
	Pairs     pairCreator
	Logger    *logger.Logger
	Config    config.FinderConfig
}

type candidateFinder interface {
	Discover(ctx context.Context) ([]finder.Candidate, error)
}

type historyValidator interface {
	Validate(ctx context.Context, asins []string) []string
}

type pairCreator interface {
	CreatePairs(ctx context.Context, ownerID uuid.UUID, candidates []finder.Candidate) int
}

func (j *DiscoveryJob) Name() string { return "discovery" }

func (j *DiscoveryJob) Run(ctx context.Context) error {
	if j.Config.DefaultOwner == "" {
		j.Logger.Info(ctx, "no default owner configured, discovery skipped")
		return nil
	}
	ownerID, err := uuid.Parse(j.Config.DefaultOwner)
	if err != nil {
		return fmt.Errorf("parsing default owner id: %w", err)
	}

	candidates, err := j.Finder.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovering candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	asins := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		asins = append(asins, cand.ASIN)
	}
	suitable := map[string]struct{}{}
	for _, asin := range j.Validator.Validate(ctx, asins) {
		suitable[asin] = struct{}{}
	}

	kept := candidates[:0]
	for _, cand := range candidates {
		if _, ok := suitable[cand.ASIN]; ok {
			kept = append(kept, cand)
		}
	}

	created := j.Pairs.CreatePairs(ctx, ownerID, kept)
	j.Logger.Info(j.Logger.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"validated":  len(kept),
		"created":    created,
	}), "discovery sweep finished")
	return nil
}

// ReconcileJob runs one inventory reconciliation pass.
type ReconcileJob struct {
	Workflow interface {
		Run(ctx context.Context) error
	}
}

func (j *ReconcileJob) Name() string { return "reconcile" }

func (j *ReconcileJob) Run(ctx context.Context) error {
	return j.Workflow.Run(ctx)
}

// OrdersJob ingests recent source-marketplace orders.
type OrdersJob struct {
	Service interface {
		Ingest(ctx context.Context) (int, error)
	}
}

func (j *OrdersJob) Name() string { return "orders" }

func (j *OrdersJob) Run(ctx context.Context) error {
	_, err := j.Service.Ingest(ctx)
	return err
}

// PurchasesJob resolves unprocessed orders through the purchase
// orchestrator. Disabled deployments register the job as a no-op so the
// schedule stays uniform across environments.
type PurchasesJob struct {
	Orchestrator interface {
		Run(ctx context.Context) error
	}
	Logger  *logger.Logger
	Enabled bool
}

func (j *PurchasesJob) Name() string { return "purchases" }

func (j *PurchasesJob) Run(ctx context.Context) error {
	if !j.Enabled {
		j.Logger.Debug(ctx, "automated purchasing disabled")
		return nil
	}
	return j.Orchestrator.Run(ctx)
}

// CleanupJob deletes pairs stuck in an unsuitable moderation status past
// the aging window, delisting them from the source marketplace first.
// Pairs referenced by an order are never removed.
type CleanupJob struct {
	Pairs  cleanupStore
	Source feedSubmitter
	Logger *logger.Logger
	Config config.PairsConfig
	Now    func() time.Time
}

type cleanupStore interface {
	ListUnsuitableBefore(ctx context.Context, cutoff time.Time) ([]models.Pair, error)
	HasOrders(ctx context.Context, pairID uuid.UUID) (bool, error)
	Delete(ctx context.Context, pairID uuid.UUID) error
}

type feedSubmitter interface {
	SubmitFeed(ctx context.Context, feedType enums.FeedType, messages []amazon.FeedMessage) (amazon.FeedSubmission, error)
}

func (j *CleanupJob) Name() string { return "pair_cleanup" }

func (j *CleanupJob) Run(ctx context.Context) error {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	cutoff := now().AddDate(0, 0, -j.Config.UnsuitableDaysLive)

	stale, err := j.Pairs.ListUnsuitableBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("listing aged unsuitable pairs: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	var delist []amazon.FeedMessage
	deleted := 0
	for _, pair := range stale {
		pairCtx := j.Logger.WithASIN(ctx, pair.ASIN)
		referenced, err := j.Pairs.HasOrders(pairCtx, pair.ID)
		if err != nil {
			j.Logger.Error(pairCtx, "order reference check failed", err)
			continue
		}
		if referenced {
			continue
		}
		if err := j.Pairs.Delete(pairCtx, pair.ID); err != nil {
			j.Logger.Error(pairCtx, "pair deletion failed", err)
			continue
		}
		deleted++
		if pair.SellerSKU != "" {
			delist = append(delist, amazon.FeedMessage{SellerSKU: pair.SellerSKU, ASIN: pair.ASIN})
		}
	}

	if len(delist) > 0 {
		if _, err := j.Source.SubmitFeed(ctx, enums.FeedTypeDeleteProduct, delist); err != nil {
			j.Logger.Error(ctx, "delist feed submission failed", err)
		}
	}
	j.Logger.Info(j.Logger.WithField(ctx, "deleted", deleted), "pair cleanup finished")
	return nil
}
