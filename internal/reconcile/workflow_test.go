package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crossmkt/arbitrage-backend/internal/amazon"
	"github.com/crossmkt/arbitrage-backend/internal/ebay"
	"github.com/crossmkt/arbitrage-backend/pkg/config"
	"github.com/crossmkt/arbitrage-backend/pkg/db/models"
	"github.com/crossmkt/arbitrage-backend/pkg/enums"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
)

type fakeSource struct {
	listings map[string]string

	submissions   []submittedFeed
	submitErrs    []error
	submitCalls   int
	rejectSubmits int

	statusDoneAfter int
	statusCalls     int

	prices map[string]amazon.PriceInfo
}

type submittedFeed struct {
	feedType enums.FeedType
	messages []amazon.FeedMessage
}

func (f *fakeSource) FindListings(ctx context.Context, asins []string) (map[string]string, error) {
	out := map[string]string{}
	for _, asin := range asins {
		if sku, ok := f.listings[asin]; ok {
			out[asin] = sku
		}
	}
	return out, nil
}

func (f *fakeSource) SubmitFeed(ctx context.Context, feedType enums.FeedType, messages []amazon.FeedMessage) (amazon.FeedSubmission, error) {
	call := f.submitCalls
	f.submitCalls++
	if call < len(f.submitErrs) && f.submitErrs[call] != nil {
		return amazon.FeedSubmission{}, f.submitErrs[call]
	}
	if f.rejectSubmits > 0 {
		f.rejectSubmits--
		return amazon.FeedSubmission{ID: "rejected", Status: "_CANCELLED_"}, nil
	}
	f.submissions = append(f.submissions, submittedFeed{feedType: feedType, messages: messages})
	return amazon.FeedSubmission{ID: "feed-" + uuid.NewString()[:6], Type: feedType, Status: enums.FeedStatusSubmitted}, nil
}

func (f *fakeSource) FeedStatus(ctx context.Context, feedID string) (amazon.FeedSubmission, error) {
	f.statusCalls++
	if f.statusCalls > f.statusDoneAfter {
		return amazon.FeedSubmission{ID: feedID, Status: enums.FeedStatusDone}, nil
	}
	return amazon.FeedSubmission{ID: feedID, Status: enums.FeedStatusSubmitted}, nil
}

func (f *fakeSource) PriceLookup(ctx context.Context, asins []string) []amazon.PriceInfo {
	out := make([]amazon.PriceInfo, 0, len(asins))
	for _, asin := range asins {
		if info, ok := f.prices[asin]; ok {
			out = append(out, info)
		}
	}
	return out
}

type fakeDestination struct {
	listings map[string]ebay.Listing
}

func (f *fakeDestination) GetListing(ctx context.Context, itemID string) (ebay.Listing, error) {
	listing, ok := f.listings[itemID]
	if !ok {
		return ebay.Listing{}, apperrors.New(apperrors.CodeApplication, "ended listing")
	}
	return listing, nil
}

type fakePairStore struct {
	pairs map[uuid.UUID]*models.Pair

	quantities map[uuid.UUID]int
	prices     map[uuid.UUID]float64
	statuses   map[uuid.UUID]enums.CheckStatus
}

func newFakePairStore(pairList ...*models.Pair) *fakePairStore {
	store := &fakePairStore{
		pairs:      map[uuid.UUID]*models.Pair{},
		quantities: map[uuid.UUID]int{},
		prices:     map[uuid.UUID]float64{},
		statuses:   map[uuid.UUID]enums.CheckStatus{},
	}
	for _, p := range pairList {
		store.pairs[p.ID] = p
	}
	return store
}

func (f *fakePairStore) ListMissingSKU(ctx context.Context) ([]models.Pair, error) {
	var out []models.Pair
	for _, p := range f.pairs {
		if p.SellerSKU == "" {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePairStore) ListApprovedMissingSKU(ctx context.Context) ([]models.Pair, error) {
	var out []models.Pair
	for _, p := range f.pairs {
		if p.SellerSKU == "" && p.CheckStatus == enums.CheckStatusApproved {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePairStore) ListWithSKU(ctx context.Context) ([]models.Pair, error) {
	var out []models.Pair
	for _, p := range f.pairs {
		if p.SellerSKU != "" {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePairStore) ExistsBySKU(ctx context.Context, sku string) (bool, error) {
	for _, p := range f.pairs {
		if p.SellerSKU == sku {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePairStore) UpdateSKU(ctx context.Context, pairID uuid.UUID, sku string) error {
	f.pairs[pairID].SellerSKU = sku
	return nil
}

func (f *fakePairStore) UpdateQuantity(ctx context.Context, pairID uuid.UUID, quantity int) error {
	f.quantities[pairID] = quantity
	return nil
}

func (f *fakePairStore) UpdateCurrentPrice(ctx context.Context, pairID uuid.UUID, price float64, buyboxWinner bool) error {
	f.prices[pairID] = price
	f.pairs[pairID].IsBuyboxWinner = buyboxWinner
	return nil
}

func (f *fakePairStore) UpdateCheckStatus(ctx context.Context, pairID uuid.UUID, status enums.CheckStatus, reason string) error {
	f.statuses[pairID] = status
	return nil
}

type fakeLedger struct {
	decrements map[uuid.UUID]int
}

func (f *fakeLedger) DecrementPairs(ctx context.Context, ownerID uuid.UUID) error {
	if f.decrements == nil {
		f.decrements = map[uuid.UUID]int{}
	}
	f.decrements[ownerID]++
	return nil
}

func testPair(asin, sku string, status enums.CheckStatus, ebayIDs ...string) *models.Pair {
	return &models.Pair{
		ID:               uuid.New(),
		OwnerID:          uuid.New(),
		ASIN:             asin,
		SellerSKU:        sku,
		EbayIDs:          models.JoinEbayIDs(ebayIDs),
		CheckStatus:      status,
		ApproximatePrice: 42.50,
	}
}

func newWorkflow(t *testing.T, source *fakeSource, destination *fakeDestination, store *fakePairStore, ledger *fakeLedger) *Workflow {
	t.Helper()
	w, err := NewWorkflow(WorkflowParams{
		Source:      source,
		Destination: destination,
		Pairs:       store,
		Owners:      ledger,
		Logger:      logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard}),
		Config: config.WorkflowConfig{
			FeedTries:   3,
			MaxPolls:    5,
			QuantityCap: 10,
			Concurrency: 4,
		},
		Sleep: func(ctx context.Context, d time.Duration) error { return nil },
	})
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	return w
}

func TestRunFullPass(t *testing.T) {
	approved := testPair("B00RECON01", "", enums.CheckStatusApproved, "100000000001", "100000000002")
	existing := testPair("B00RECON02", "AA-BBBB-CCCC", enums.CheckStatusApproved, "200000000001")

	source := &fakeSource{
		prices: map[string]amazon.PriceInfo{
			"B00RECON02": {ASIN: "B00RECON02", Price: 31.99},
		},
	}
	destination := &fakeDestination{listings: map[string]ebay.Listing{
		"100000000001": {ItemID: "100000000001", Quantity: 4},
		"100000000002": {ItemID: "100000000002", Quantity: 3},
		"200000000001": {ItemID: "200000000001", Quantity: 25},
	}}
	store := newFakePairStore(approved, existing)
	ledger := &fakeLedger{}

	// uploaded pair appears in inventory by verification time
	source.listings = map[string]string{"B00RECON02": "AA-BBBB-CCCC"}

	w := newWorkflow(t, source, destination, store, ledger)
	err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if approved.SellerSKU == "" {
		t.Fatal("expected approved pair to receive a sku")
	}
	if len(source.submissions) != 3 {
		t.Fatalf("expected product+quantity+price feeds, got %d", len(source.submissions))
	}
	if source.submissions[0].feedType != enums.FeedTypeProduct {
		t.Fatalf("expected product feed first, got %s", source.submissions[0].feedType)
	}

	// uploaded pair missing from inventory is marked unlistable
	if store.statuses[approved.ID] != enums.CheckStatusCannotList {
		t.Fatalf("expected missing pair marked unlistable, got %v", store.statuses[approved.ID])
	}
	if ledger.decrements[approved.OwnerID] != 1 {
		t.Fatal("expected owner pair count decrement for unlisted pair")
	}
}

func TestQuantityCapAppliedToFeedNotStore(t *testing.T) {
	pair := testPair("B00RECON03", "AA-BBBB-CCCC", enums.CheckStatusApproved, "300000000001")

	source := &fakeSource{listings: map[string]string{"B00RECON03": "AA-BBBB-CCCC"}}
	destination := &fakeDestination{listings: map[string]ebay.Listing{
		"300000000001": {ItemID: "300000000001", Quantity: 37},
	}}
	store := newFakePairStore(pair)

	w := newWorkflow(t, source, destination, store, &fakeLedger{})
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.quantities[pair.ID] != 37 {
		t.Fatalf("expected full computed quantity persisted, got %d", store.quantities[pair.ID])
	}

	var quantityFeed *submittedFeed
	for i := range source.submissions {
		if source.submissions[i].feedType == enums.FeedTypeQuantity {
			quantityFeed = &source.submissions[i]
		}
	}
	if quantityFeed == nil {
		t.Fatal("expected a quantity feed")
	}
	if got := *quantityFeed.messages[0].Quantity; got != 10 {
		t.Fatalf("expected feed value capped at 10, got %d", got)
	}
}

func TestPriceFallsBackToApproximate(t *testing.T) {
	pair := testPair("B00RECON04", "AA-BBBB-CCCC", enums.CheckStatusApproved, "400000000001")

	source := &fakeSource{listings: map[string]string{"B00RECON04": "AA-BBBB-CCCC"}}
	destination := &fakeDestination{listings: map[string]ebay.Listing{}}
	store := newFakePairStore(pair)

	w := newWorkflow(t, source, destination, store, &fakeLedger{})
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.prices[pair.ID] != 42.50 {
		t.Fatalf("expected approximate price fallback 42.50, got %v", store.prices[pair.ID])
	}
}

func TestFeedCycleExhaustionIsRunFatal(t *testing.T) {
	pair := testPair("B00RECON05", "AA-BBBB-CCCC", enums.CheckStatusApproved, "500000000001")

	source := &fakeSource{
		submitErrs: []error{
			errors.New("reset"), errors.New("reset"), errors.New("reset"),
			errors.New("reset"), errors.New("reset"), errors.New("reset"),
		},
	}
	destination := &fakeDestination{listings: map[string]ebay.Listing{
		"500000000001": {ItemID: "500000000001", Quantity: 1},
	}}
	store := newFakePairStore(pair)

	w := newWorkflow(t, source, destination, store, &fakeLedger{})
	err := w.Run(context.Background())

	typed := apperrors.As(err)
	if typed == nil || typed.Code() != apperrors.CodeWorkflow {
		t.Fatalf("expected workflow error, got %v", err)
	}
	if typed.Stage() != enums.StageSyncQuantity.String() {
		t.Fatalf("expected stage %s, got %s", enums.StageSyncQuantity, typed.Stage())
	}
}

func TestPollTimeoutIsRunFatal(t *testing.T) {
	approved := testPair("B00RECON06", "", enums.CheckStatusApproved, "600000000001")

	source := &fakeSource{statusDoneAfter: 1000}
	destination := &fakeDestination{listings: map[string]ebay.Listing{}}
	store := newFakePairStore(approved)

	w := newWorkflow(t, source, destination, store, &fakeLedger{})
	err := w.Run(context.Background())

	typed := apperrors.As(err)
	if typed == nil || typed.Code() != apperrors.CodeWorkflow {
		t.Fatalf("expected workflow error, got %v", err)
	}
	if typed.Stage() != enums.StageAwaitUploadDone.String() {
		t.Fatalf("expected upload poll stage, got %s", typed.Stage())
	}

	// best-effort verification still ran for the uploaded subset
	if store.statuses[approved.ID] != enums.CheckStatusCannotList {
		t.Fatal("expected best-effort verification to mark the missing pair")
	}
}

func TestFeedNotAcknowledgedRetriesThenSucceeds(t *testing.T) {
	pair := testPair("B00RECON07", "AA-BBBB-CCCC", enums.CheckStatusApproved, "700000000001")

	source := &fakeSource{
		listings:      map[string]string{"B00RECON07": "AA-BBBB-CCCC"},
		rejectSubmits: 1,
	}
	destination := &fakeDestination{listings: map[string]ebay.Listing{
		"700000000001": {ItemID: "700000000001", Quantity: 2},
	}}
	store := newFakePairStore(pair)

	w := newWorkflow(t, source, destination, store, &fakeLedger{})
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("expected unacknowledged submit to be retried, got %v", err)
	}
}

func TestCapQuantity(t *testing.T) {
	cases := []struct {
		quantity, limit, want int
	}{
		{5, 10, 5},
		{15, 10, 10},
		{-2, 10, 0},
		{99, 0, 99},
	}
	for _, tc := range cases {
		if got := capQuantity(tc.quantity, tc.limit); got != tc.want {
			t.Errorf("capQuantity(%d,%d) = %d, want %d", tc.quantity, tc.limit, got, tc.want)
		}
	}
}

func TestDestinationQuantitiesManyPairsConcurrently(t *testing.T) {
	listings := map[string]ebay.Listing{}
	var pairs []models.Pair
	want := map[uuid.UUID]int{}
	for i := 0; i < 200; i++ {
		ebayID := fmt.Sprintf("%012d", i+1)
		quantity := i % 7
		listings[ebayID] = ebay.Listing{ItemID: ebayID, Quantity: quantity}
		pair := testPair(fmt.Sprintf("B00FAN%04d", i), "SK-SKUS-0001", enums.CheckStatusApproved, ebayID)
		pairs = append(pairs, *pair)
		want[pair.ID] = quantity
	}
	// a pair with no reachable listings still gets a zero entry
	orphan := testPair("B00FANNONE", "SK-SKUS-0002", enums.CheckStatusApproved, "999999999999")
	pairs = append(pairs, *orphan)
	want[orphan.ID] = 0

	w := newWorkflow(t, &fakeSource{}, &fakeDestination{listings: listings}, newFakePairStore(), &fakeLedger{})
	totals := w.destinationQuantities(context.Background(), pairs)

	if len(totals) != len(want) {
		t.Fatalf("totals = %d entries, want %d", len(totals), len(want))
	}
	for id, quantity := range want {
		if totals[id] != quantity {
			t.Fatalf("pair %s total = %d, want %d", id, totals[id], quantity)
		}
	}
}
