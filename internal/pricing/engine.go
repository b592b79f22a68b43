package pricing

import (
	"math"

	"github.com/crossmkt/arbitrage-backend/pkg/config"
)

// Band is a half-open [Lo, Hi) price interval. Hi <= 0 means unbounded.
type Band struct {
	Lo    float64
	Hi    float64
	Value float64
}

// Tables holds the two tiered price tables driving the margin check.
// Margin maps a destination price to a markup factor; Approx maps it to
// the percentage added on top of the highest candidate.
type Tables struct {
	Margin []Band
	Approx []Band
}

// DefaultTables returns the production price tiers. The margin table
// deliberately has no [40,50) band: destination prices in that range
// produce no candidate.
func DefaultTables() Tables {
	return Tables{
		Margin: []Band{
			{Lo: 0, Hi: 10, Value: 1.3},
			{Lo: 10, Hi: 20, Value: 1.3},
			{Lo: 20, Hi: 30, Value: 1.25},
			{Lo: 30, Hi: 40, Value: 1.2},
			{Lo: 50, Hi: 0, Value: 1.15},
		},
		Approx: []Band{
			{Lo: 0, Hi: 10, Value: 0.15},
			{Lo: 10, Hi: 20, Value: 0.12},
			{Lo: 20, Hi: 30, Value: 0.10},
			{Lo: 30, Hi: 0, Value: 0.07},
		},
	}
}

// Result is the outcome of one profitability check.
type Result struct {
	OK               bool
	MinimumPrice     float64
	ApproximatePrice float64
}

// Engine computes the minimum and approximate source-marketplace price
// for a set of destination-marketplace prices.
type Engine struct {
	tables       Tables
	marginTarget float64
	buffer       float64
}

func NewEngine(cfg config.ProfitConfig, tables Tables) *Engine {
	target := cfg.MarginTarget
	if target <= 0 {
		target = 0.85
	}
	return &Engine{
		tables:       tables,
		marginTarget: target,
		buffer:       cfg.Buffer,
	}
}

// CheckProfit derives the price floor and ceiling from destination
// prices. sourcePrice, when known, arms the conservative veto: a single
// destination price whose candidate would erode the buffer fails the
// whole check, even if the others are fine.
func (e *Engine) CheckProfit(sourcePrice *float64, destPrices []float64) Result {
	type candidate struct {
		price float64
		dest  float64
	}

	candidates := make([]candidate, 0, len(destPrices))
	for _, p := range destPrices {
		if p <= 0 {
			continue
		}
		factor, ok := lookupBand(e.tables.Margin, p)
		if !ok {
			continue
		}
		cand := p * factor / e.marginTarget
		if sourcePrice != nil && cand+e.buffer >= *sourcePrice {
			return Result{}
		}
		candidates = append(candidates, candidate{price: cand, dest: p})
	}
	if len(candidates) == 0 {
		return Result{}
	}

	min := candidates[0]
	max := candidates[0]
	for _, c := range candidates[1:] {
		if c.price < min.price {
			min = c
		}
		if c.price > max.price {
			max = c
		}
	}

	percent, _ := lookupBand(e.tables.Approx, max.dest)
	return Result{
		OK:               true,
		MinimumPrice:     round2(min.price),
		ApproximatePrice: round2(max.price + max.dest*percent),
	}
}

func lookupBand(bands []Band, price float64) (float64, bool) {
	for _, b := range bands {
		if price >= b.Lo && (b.Hi <= 0 || price < b.Hi) {
			return b.Value, true
		}
	}
	return 0, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
