package owners

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crossmkt/arbitrage-backend/pkg/db/models"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
)

// LevelScheme describes how one hierarchy level splits realized profit:
// the earning owner keeps Mine, and each higher level named in Upward
// shares its fraction equally among its owners.
type LevelScheme struct {
	Mine   float64
	Upward map[int]float64
}

// DefaultSchemes is the production profit split. Level 0 owners pass a
// share up to levels 1 and 2; level 2 owners keep everything.
func DefaultSchemes() []LevelScheme {
	return []LevelScheme{
		{Mine: 0.4, Upward: map[int]float64{1: 0.15, 2: 0.2}},
		{Mine: 0.7, Upward: map[int]float64{2: 0.3}},
		{Mine: 1},
	}
}

type ownerStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Owner, error)
	ListByLevel(ctx context.Context, level int) ([]models.Owner, error)
	AddProfit(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
	IncrementPairs(ctx context.Context, id uuid.UUID) error
	DecrementPairs(ctx context.Context, id uuid.UUID) error
}

// LedgerParams wires a Ledger.
type LedgerParams struct {
	Store   ownerStore
	Logger  *logger.Logger
	Schemes []LevelScheme
}

// Ledger fans realized profit out across the owner hierarchy and keeps
// the per-owner pair counters.
type Ledger struct {
	store   ownerStore
	logg    *logger.Logger
	schemes []LevelScheme
}

func NewLedger(params LedgerParams) (*Ledger, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("owner store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	schemes := params.Schemes
	if len(schemes) == 0 {
		schemes = DefaultSchemes()
	}
	return &Ledger{store: params.Store, logg: params.Logger, schemes: schemes}, nil
}

// Distribute credits amount across the hierarchy starting from the
// earning owner. Shares aimed at an empty level fall back to the earning
// owner so the credited total always equals amount.
func (l *Ledger) Distribute(ctx context.Context, ownerID uuid.UUID, amount float64) error {
	if amount == 0 {
		return nil
	}
	owner, err := l.store.FindByID(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("loading owner: %w", err)
	}

	scheme := l.schemeFor(owner.Level)
	total := decimal.NewFromFloat(amount)
	mine := total.Mul(decimal.NewFromFloat(scheme.Mine)).Round(2)

	for level, share := range scheme.Upward {
		levelOwners, err := l.store.ListByLevel(ctx, level)
		if err != nil {
			return fmt.Errorf("listing level %d owners: %w", level, err)
		}
		portion := total.Mul(decimal.NewFromFloat(share)).Round(2)
		if len(levelOwners) == 0 {
			mine = mine.Add(portion)
			continue
		}

		each := portion.Div(decimal.NewFromInt(int64(len(levelOwners)))).Round(2)
		for _, lo := range levelOwners {
			if err := l.store.AddProfit(ctx, lo.ID, each); err != nil {
				return err
			}
		}
	}

	if err := l.store.AddProfit(ctx, owner.ID, mine); err != nil {
		return err
	}
	l.logg.Info(l.logg.WithFields(ctx, map[string]any{
		"owner":  owner.Username,
		"amount": amount,
	}), "profit distributed")
	return nil
}

// GetProfit returns the slice of amount the owner would keep for
// themselves under their level's scheme, without touching the store.
func (l *Ledger) GetProfit(ctx context.Context, ownerID uuid.UUID, amount float64) (float64, error) {
	owner, err := l.store.FindByID(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("loading owner: %w", err)
	}
	scheme := l.schemeFor(owner.Level)
	mine, _ := decimal.NewFromFloat(amount).
		Mul(decimal.NewFromFloat(scheme.Mine)).
		Round(2).
		Float64()
	return mine, nil
}

// UpdateProfit applies a direct correction to one owner, used by
// moderation flows and order returns.
func (l *Ledger) UpdateProfit(ctx context.Context, ownerID uuid.UUID, amount float64, increase bool) error {
	delta := decimal.NewFromFloat(amount).Round(2)
	if !increase {
		delta = delta.Neg()
	}
	return l.store.AddProfit(ctx, ownerID, delta)
}

// IncrementPairs bumps the owner's active-pair counter.
func (l *Ledger) IncrementPairs(ctx context.Context, ownerID uuid.UUID) error {
	return l.store.IncrementPairs(ctx, ownerID)
}

// DecrementPairs lowers the owner's active-pair counter.
func (l *Ledger) DecrementPairs(ctx context.Context, ownerID uuid.UUID) error {
	return l.store.DecrementPairs(ctx, ownerID)
}

func (l *Ledger) schemeFor(level int) LevelScheme {
	if level < 0 {
		level = 0
	}
	if level >= len(l.schemes) {
		level = len(l.schemes) - 1
	}
	return l.schemes[level]
}
