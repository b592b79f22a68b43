package owners

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/crossmkt/arbitrage-backend/pkg/db/models"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
)

type fakeOwnerStore struct {
	owners  map[uuid.UUID]*models.Owner
	profits map[uuid.UUID]decimal.Decimal
}

func newFakeOwnerStore() *fakeOwnerStore {
	return &fakeOwnerStore{
		owners:  map[uuid.UUID]*models.Owner{},
		profits: map[uuid.UUID]decimal.Decimal{},
	}
}

func (f *fakeOwnerStore) addOwner(level int) *models.Owner {
	owner := &models.Owner{ID: uuid.New(), Username: uuid.NewString()[:8], Level: level}
	f.owners[owner.ID] = owner
	return owner
}

func (f *fakeOwnerStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Owner, error) {
	return f.owners[id], nil
}

func (f *fakeOwnerStore) ListByLevel(ctx context.Context, level int) ([]models.Owner, error) {
	var out []models.Owner
	for _, o := range f.owners {
		if o.Level == level {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOwnerStore) AddProfit(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	f.profits[id] = f.profits[id].Add(delta)
	return nil
}

func (f *fakeOwnerStore) IncrementPairs(ctx context.Context, id uuid.UUID) error {
	f.owners[id].PairsCount++
	return nil
}

func (f *fakeOwnerStore) DecrementPairs(ctx context.Context, id uuid.UUID) error {
	if f.owners[id].PairsCount > 0 {
		f.owners[id].PairsCount--
	}
	return nil
}

func newLedger(t *testing.T, store ownerStore) *Ledger {
	t.Helper()
	ledger, err := NewLedger(LedgerParams{
		Store:  store,
		Logger: logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return ledger
}

func TestDistributeLevelZeroSplitsUpward(t *testing.T) {
	store := newFakeOwnerStore()
	earner := store.addOwner(0)
	levelOne := store.addOwner(1)
	levelTwoA := store.addOwner(2)
	levelTwoB := store.addOwner(2)

	ledger := newLedger(t, store)
	if err := ledger.Distribute(context.Background(), earner.ID, 100); err != nil {
		t.Fatalf("Distribute: %v", err)
	}

	if got := store.profits[earner.ID]; !got.Equal(decimal.NewFromFloat(40)) {
		t.Fatalf("expected earner to keep 40, got %s", got)
	}
	if got := store.profits[levelOne.ID]; !got.Equal(decimal.NewFromFloat(15)) {
		t.Fatalf("expected level-1 owner to get 15, got %s", got)
	}
	for _, id := range []uuid.UUID{levelTwoA.ID, levelTwoB.ID} {
		if got := store.profits[id]; !got.Equal(decimal.NewFromFloat(10)) {
			t.Fatalf("expected level-2 owners to split 20 evenly, got %s", got)
		}
	}
}

func TestDistributeTopLevelKeepsEverything(t *testing.T) {
	store := newFakeOwnerStore()
	earner := store.addOwner(2)

	ledger := newLedger(t, store)
	if err := ledger.Distribute(context.Background(), earner.ID, 55.5); err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if got := store.profits[earner.ID]; !got.Equal(decimal.NewFromFloat(55.5)) {
		t.Fatalf("expected full amount kept, got %s", got)
	}
}

func TestDistributeEmptyUpperLevelFallsBack(t *testing.T) {
	store := newFakeOwnerStore()
	earner := store.addOwner(1)
	// no level-2 owners exist

	ledger := newLedger(t, store)
	if err := ledger.Distribute(context.Background(), earner.ID, 100); err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if got := store.profits[earner.ID]; !got.Equal(decimal.NewFromFloat(100)) {
		t.Fatalf("expected full amount to fall back to the earner, got %s", got)
	}
}

func TestUpdateProfitDirection(t *testing.T) {
	store := newFakeOwnerStore()
	owner := store.addOwner(0)
	ledger := newLedger(t, store)

	if err := ledger.UpdateProfit(context.Background(), owner.ID, 12.34, true); err != nil {
		t.Fatalf("UpdateProfit: %v", err)
	}
	if err := ledger.UpdateProfit(context.Background(), owner.ID, 2.34, false); err != nil {
		t.Fatalf("UpdateProfit: %v", err)
	}
	if got := store.profits[owner.ID]; !got.Equal(decimal.NewFromFloat(10)) {
		t.Fatalf("expected net 10, got %s", got)
	}
}

func TestDistributeZeroAmountIsNoop(t *testing.T) {
	store := newFakeOwnerStore()
	owner := store.addOwner(0)
	ledger := newLedger(t, store)

	if err := ledger.Distribute(context.Background(), owner.ID, 0); err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if got := store.profits[owner.ID]; !got.IsZero() {
		t.Fatalf("expected no credit for zero amount, got %s", got)
	}
}

func TestGetProfitReturnsOwnShare(t *testing.T) {
	store := newFakeOwnerStore()
	levelZero := store.addOwner(0)
	levelTwo := store.addOwner(2)
	ledger := newLedger(t, store)

	mine, err := ledger.GetProfit(context.Background(), levelZero.ID, 100)
	if err != nil {
		t.Fatalf("GetProfit: %v", err)
	}
	if mine != 40 {
		t.Fatalf("level 0 share = %v, want 40", mine)
	}

	mine, err = ledger.GetProfit(context.Background(), levelTwo.ID, 100)
	if err != nil {
		t.Fatalf("GetProfit: %v", err)
	}
	if mine != 100 {
		t.Fatalf("level 2 share = %v, want 100", mine)
	}
	if !store.profits[levelZero.ID].IsZero() {
		t.Fatal("GetProfit must not persist anything")
	}
}
