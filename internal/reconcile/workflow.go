package reconcile

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/crossmkt/arbitrage-backend/internal/amazon"
	"github.com/crossmkt/arbitrage-backend/internal/ebay"
	"github.com/crossmkt/arbitrage-backend/internal/pairs"
	"github.com/crossmkt/arbitrage-backend/pkg/config"
	"github.com/crossmkt/arbitrage-backend/pkg/db/models"
	"github.com/crossmkt/arbitrage-backend/pkg/enums"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
	"github.com/crossmkt/arbitrage-backend/pkg/metrics"
)

type sourceGateway interface {
	FindListings(ctx context.Context, asins []string) (map[string]string, error)
	SubmitFeed(ctx context.Context, feedType enums.FeedType, messages []amazon.FeedMessage) (amazon.FeedSubmission, error)
	FeedStatus(ctx context.Context, feedID string) (amazon.FeedSubmission, error)
	PriceLookup(ctx context.Context, asins []string) []amazon.PriceInfo
}

type destinationGateway interface {
	GetListing(ctx context.Context, itemID string) (ebay.Listing, error)
}

type pairStore interface {
	ListMissingSKU(ctx context.Context) ([]models.Pair, error)
	ListApprovedMissingSKU(ctx context.Context) ([]models.Pair, error)
	ListWithSKU(ctx context.Context) ([]models.Pair, error)
	ExistsBySKU(ctx context.Context, sku string) (bool, error)
	UpdateSKU(ctx context.Context, pairID uuid.UUID, sku string) error
	UpdateQuantity(ctx context.Context, pairID uuid.UUID, quantity int) error
	UpdateCurrentPrice(ctx context.Context, pairID uuid.UUID, price float64, buyboxWinner bool) error
	UpdateCheckStatus(ctx context.Context, pairID uuid.UUID, status enums.CheckStatus, reason string) error
}

type ownerLedger interface {
	DecrementPairs(ctx context.Context, ownerID uuid.UUID) error
}

// WorkflowParams wires a Workflow.
type WorkflowParams struct {
	Source      sourceGateway
	Destination destinationGateway
	Pairs       pairStore
	Owners      ownerLedger
	Logger      *logger.Logger
	Metrics     *metrics.JobMetrics
	Config      config.WorkflowConfig
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Workflow is the inventory reconciliation state machine. One run walks
// the stages strictly in order; a feed submission that is never
// acknowledged, or a feed-status poll timeout, is fatal for the run but
// still triggers a best-effort verification pass over whatever was
// already uploaded.
type Workflow struct {
	source      sourceGateway
	destination destinationGateway
	pairs       pairStore
	owners      ownerLedger
	logg        *logger.Logger
	metrics     *metrics.JobMetrics
	cfg         config.WorkflowConfig
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewWorkflow(params WorkflowParams) (*Workflow, error) {
	if params.Source == nil {
		return nil, fmt.Errorf("source gateway required")
	}
	if params.Destination == nil {
		return nil, fmt.Errorf("destination gateway required")
	}
	if params.Pairs == nil {
		return nil, fmt.Errorf("pair store required")
	}
	if params.Owners == nil {
		return nil, fmt.Errorf("owner ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	cfg := params.Config
	if cfg.FeedTries <= 0 {
		cfg.FeedTries = 3
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 90
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	sleep := params.Sleep
	if sleep == nil {
		sleep = defaultSleep
	}
	return &Workflow{
		source:      params.Source,
		destination: params.Destination,
		pairs:       params.Pairs,
		owners:      params.Owners,
		logg:        params.Logger,
		metrics:     params.Metrics,
		cfg:         cfg,
		sleep:       sleep,
	}, nil
}

// Run executes one reconciliation pass.
func (w *Workflow) Run(ctx context.Context) error {
	var uploaded []models.Pair

	err := w.run(ctx, &uploaded)
	if err == nil {
		return nil
	}

	typed := apperrors.As(err)
	if typed != nil && typed.Code() == apperrors.CodeWorkflow {
		w.logg.Error(w.logg.WithStage(ctx, typed.Stage()), "reconciliation run failed, verifying uploaded subset", err)
		w.verifyResults(ctx, uploaded)
	}
	return err
}

func (w *Workflow) run(ctx context.Context, uploaded *[]models.Pair) error {
	if err := w.checkExisting(ctx); err != nil {
		return err
	}

	feedID, pending, err := w.uploadNew(ctx)
	if err != nil {
		return err
	}
	*uploaded = pending
	if feedID != "" {
		if err := w.awaitFeed(ctx, enums.StageAwaitUploadDone, feedID); err != nil {
			return err
		}
	}

	active, err := w.pairs.ListWithSKU(ctx)
	if err != nil {
		return stageError(enums.StageSyncQuantity, err)
	}
	if len(active) == 0 {
		w.logg.Info(ctx, "no uploaded pairs to reconcile")
		return nil
	}

	feedID, err = w.syncQuantity(ctx, active)
	if err != nil {
		return err
	}
	if feedID != "" {
		if err := w.awaitFeed(ctx, enums.StageAwaitQuantityDone, feedID); err != nil {
			return err
		}
	}

	priceByASIN := w.fetchPrices(ctx, active)

	feedID, err = w.setPrices(ctx, active, priceByASIN)
	if err != nil {
		return err
	}
	if feedID != "" {
		if err := w.awaitFeed(ctx, enums.StageAwaitPriceDone, feedID); err != nil {
			return err
		}
	}

	w.verifyResults(ctx, *uploaded)
	return nil
}

// checkExisting reconciles marketplace-assigned SKUs into pairs that
// lack one, so a partially-failed prior upload converges instead of
// duplicating.
func (w *Workflow) checkExisting(ctx context.Context) error {
	ctx = w.logg.WithStage(ctx, enums.StageCheckExisting.String())

	missing, err := w.pairs.ListMissingSKU(ctx)
	if err != nil {
		return stageError(enums.StageCheckExisting, err)
	}
	if len(missing) == 0 {
		return nil
	}

	skus, err := w.source.FindListings(ctx, asinsOf(missing))
	if err != nil {
		return stageError(enums.StageCheckExisting, err)
	}
	for _, pair := range missing {
		sku, found := skus[pair.ASIN]
		if !found {
			continue
		}
		if err := w.pairs.UpdateSKU(ctx, pair.ID, sku); err != nil {
			w.logg.Error(w.logg.WithASIN(ctx, pair.ASIN), "recording existing sku failed", err)
			continue
		}
		w.logg.Info(w.logg.WithASIN(ctx, pair.ASIN), "existing listing reconciled")
	}
	return nil
}

// uploadNew assigns fresh SKUs to approved pairs and submits the create
// feed. Returns the feed id and the pairs included in it.
func (w *Workflow) uploadNew(ctx context.Context) (string, []models.Pair, error) {
	ctx = w.logg.WithStage(ctx, enums.StageUploadNew.String())

	approved, err := w.pairs.ListApprovedMissingSKU(ctx)
	if err != nil {
		return "", nil, stageError(enums.StageUploadNew, err)
	}
	if len(approved) == 0 {
		return "", nil, nil
	}

	messages := make([]amazon.FeedMessage, 0, len(approved))
	pending := make([]models.Pair, 0, len(approved))
	for i := range approved {
		pair := approved[i]
		sku, err := pairs.GenerateSKU(ctx, w.pairs.ExistsBySKU)
		if err != nil {
			w.logg.Error(w.logg.WithASIN(ctx, pair.ASIN), "sku generation failed, skipping pair", err)
			continue
		}
		pair.SellerSKU = sku
		messages = append(messages, amazon.FeedMessage{SellerSKU: sku, ASIN: pair.ASIN})
		pending = append(pending, pair)
	}
	if len(messages) == 0 {
		return "", nil, nil
	}

	submission, err := w.feedCycle(ctx, enums.StageUploadNew, enums.FeedTypeProduct, messages)
	if err != nil {
		return "", nil, err
	}

	for _, pair := range pending {
		if err := w.pairs.UpdateSKU(ctx, pair.ID, pair.SellerSKU); err != nil {
			w.logg.Error(w.logg.WithASIN(ctx, pair.ASIN), "persisting assigned sku failed", err)
		}
	}
	w.logg.Info(w.logg.WithField(ctx, "pairs", len(pending)), "upload feed submitted")
	return submission.ID, pending, nil
}

// syncQuantity recomputes each pair's quantity from live destination
// stock and submits the quantity feed. Single feed values are capped at
// the platform maximum to avoid overselling while upstream listings
// turn over.
func (w *Workflow) syncQuantity(ctx context.Context, active []models.Pair) (string, error) {
	ctx = w.logg.WithStage(ctx, enums.StageSyncQuantity.String())

	quantities := w.destinationQuantities(ctx, active)
	messages := make([]amazon.FeedMessage, 0, len(active))
	for _, pair := range active {
		quantity := quantities[pair.ID]
		if err := w.pairs.UpdateQuantity(ctx, pair.ID, quantity); err != nil {
			w.logg.Error(w.logg.WithASIN(ctx, pair.ASIN), "persisting quantity failed", err)
		}
		feedQuantity := capQuantity(quantity, w.cfg.QuantityCap)
		messages = append(messages, amazon.FeedMessage{
			SellerSKU: pair.SellerSKU,
			ASIN:      pair.ASIN,
			Quantity:  &feedQuantity,
		})
	}

	submission, err := w.feedCycle(ctx, enums.StageSyncQuantity, enums.FeedTypeQuantity, messages)
	if err != nil {
		return "", err
	}
	w.logg.Info(w.logg.WithField(ctx, "pairs", len(messages)), "quantity feed submitted")
	return submission.ID, nil
}

// destinationQuantities fans out over every linked destination listing
// and sums remaining stock per pair. A delisted or failing listing
// contributes 0.
func (w *Workflow) destinationQuantities(ctx context.Context, active []models.Pair) map[uuid.UUID]int {
	var mu sync.Mutex
	totals := make(map[uuid.UUID]int, len(active))
	// Seed every key before the fan-out so workers only ever touch the
	// map under the mutex.
	for _, pair := range active {
		totals[pair.ID] = 0
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, pair := range active {
		pair := pair
		for _, ebayID := range pair.EbayIDList() {
			ebayID := ebayID
			g.Go(func() error {
				listing, err := w.destination.GetListing(gctx, ebayID)
				if err != nil {
					w.logg.Info(w.logg.WithField(gctx, "ebay_id", ebayID), "listing unavailable, counting zero stock")
					return nil
				}
				mu.Lock()
				totals[pair.ID] += listing.Quantity
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()
	return totals
}

// fetchPrices batch-fetches the current source price per pair, falling
// back to the pair's approximate price when none is determinable.
func (w *Workflow) fetchPrices(ctx context.Context, active []models.Pair) map[string]amazon.PriceInfo {
	ctx = w.logg.WithStage(ctx, enums.StageFetchPrices.String())

	infos := w.source.PriceLookup(ctx, asinsOf(active))
	byASIN := make(map[string]amazon.PriceInfo, len(infos))
	for _, info := range infos {
		byASIN[info.ASIN] = info
	}

	for _, pair := range active {
		info, ok := byASIN[pair.ASIN]
		if !ok || info.Price == 0 {
			w.logg.Debug(w.logg.WithASIN(ctx, pair.ASIN), "no current price, falling back to approximate")
			byASIN[pair.ASIN] = amazon.PriceInfo{ASIN: pair.ASIN, Price: pair.ApproximatePrice}
		}
	}
	return byASIN
}

// setPrices submits the price feed and records the observed price and
// buybox state on each pair.
func (w *Workflow) setPrices(ctx context.Context, active []models.Pair, priceByASIN map[string]amazon.PriceInfo) (string, error) {
	ctx = w.logg.WithStage(ctx, enums.StageSetPrices.String())

	messages := make([]amazon.FeedMessage, 0, len(active))
	for _, pair := range active {
		info := priceByASIN[pair.ASIN]
		price := round2(info.Price)
		messages = append(messages, amazon.FeedMessage{
			SellerSKU: pair.SellerSKU,
			ASIN:      pair.ASIN,
			Price:     &price,
		})

		buybox := info.BuyBox != nil && *info.BuyBox
		if err := w.pairs.UpdateCurrentPrice(ctx, pair.ID, price, buybox); err != nil {
			w.logg.Error(w.logg.WithASIN(ctx, pair.ASIN), "persisting current price failed", err)
		}
	}

	submission, err := w.feedCycle(ctx, enums.StageSetPrices, enums.FeedTypePrice, messages)
	if err != nil {
		return "", err
	}
	w.logg.Info(w.logg.WithField(ctx, "pairs", len(messages)), "price feed submitted")
	return submission.ID, nil
}

// verifyResults re-checks every uploaded pair's SKU after the settle
// delay. A pair still absent is marked unlistable and its owner's
// active-pair count drops.
func (w *Workflow) verifyResults(ctx context.Context, uploaded []models.Pair) {
	if len(uploaded) == 0 {
		return
	}
	ctx = w.logg.WithStage(ctx, enums.StageVerifyResults.String())

	if w.cfg.SettleDelay > 0 {
		if err := w.sleep(ctx, w.cfg.SettleDelay); err != nil {
			w.logg.Error(ctx, "settle delay interrupted", err)
			return
		}
	}

	skus, err := w.source.FindListings(ctx, asinsOf(uploaded))
	if err != nil {
		w.logg.Error(ctx, "verification lookup failed", err)
		return
	}

	for _, pair := range uploaded {
		if _, listed := skus[pair.ASIN]; listed {
			continue
		}
		pairCtx := w.logg.WithASIN(ctx, pair.ASIN)
		w.logg.Warn(pairCtx, "uploaded pair missing from marketplace inventory")
		if err := w.pairs.UpdateCheckStatus(pairCtx, pair.ID, enums.CheckStatusCannotList, enums.CheckStatusCannotList.String()); err != nil {
			w.logg.Error(pairCtx, "marking pair unlistable failed", err)
			continue
		}
		if err := w.owners.DecrementPairs(pairCtx, pair.OwnerID); err != nil {
			w.logg.Error(pairCtx, "decrementing owner pair count failed", err)
		}
		w.metrics.IncDropped("verify_results")
	}
}

// feedCycle submits a feed with bounded fixed-delay retries. A
// submission that is never acknowledged escalates into a run-fatal
// workflow error carrying its stage.
func (w *Workflow) feedCycle(ctx context.Context, stage enums.WorkflowStage, feedType enums.FeedType, messages []amazon.FeedMessage) (amazon.FeedSubmission, error) {
	var lastErr error
	for attempt := 0; attempt < w.cfg.FeedTries; attempt++ {
		if attempt > 0 && w.cfg.StageDelay > 0 {
			if err := w.sleep(ctx, w.cfg.StageDelay); err != nil {
				return amazon.FeedSubmission{}, stageError(stage, err)
			}
		}

		submission, err := w.source.SubmitFeed(ctx, feedType, messages)
		if err != nil {
			if apperrors.IsCode(err, apperrors.CodeConnectivity) {
				w.logg.Error(ctx, "feed submit connectivity failure", err)
			} else {
				w.logg.Error(ctx, "feed submit rejected", err)
			}
			lastErr = err
			continue
		}
		if submission.Status != enums.FeedStatusSubmitted {
			lastErr = fmt.Errorf("feed not acknowledged: status %q", submission.Status)
			w.logg.Warn(w.logg.WithField(ctx, "status", submission.Status), "feed submission not acknowledged")
			continue
		}
		return submission, nil
	}
	return amazon.FeedSubmission{}, stageError(stage, lastErr)
}

// awaitFeed polls the feed status until completion or the poll budget
// runs out, which is fatal for the run.
func (w *Workflow) awaitFeed(ctx context.Context, stage enums.WorkflowStage, feedID string) error {
	ctx = w.logg.WithFields(ctx, map[string]any{"stage": stage.String(), "feed_id": feedID})

	for poll := 0; poll < w.cfg.MaxPolls; poll++ {
		if w.cfg.PollDelay > 0 {
			if err := w.sleep(ctx, w.cfg.PollDelay); err != nil {
				return stageError(stage, err)
			}
		}
		submission, err := w.source.FeedStatus(ctx, feedID)
		if err != nil {
			w.logg.Error(ctx, "feed status poll failed", err)
			continue
		}
		if submission.Status == enums.FeedStatusDone {
			return nil
		}
	}
	return apperrors.New(apperrors.CodeWorkflow, "feed status poll timed out").WithStage(stage.String())
}

func stageError(stage enums.WorkflowStage, err error) error {
	return apperrors.Wrap(apperrors.CodeWorkflow, err, "stage failed").WithStage(stage.String())
}

func asinsOf(pairList []models.Pair) []string {
	asins := make([]string, 0, len(pairList))
	for _, pair := range pairList {
		asins = append(asins, pair.ASIN)
	}
	return asins
}

func capQuantity(quantity, limit int) int {
	if limit > 0 && quantity > limit {
		return limit
	}
	if quantity < 0 {
		return 0
	}
	return quantity
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
