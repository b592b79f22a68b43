package keepa

import (
	"context"
	"fmt"
	"time"

	"github.com/crossmkt/arbitrage-backend/pkg/config"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
)

const platformAbsenceWindow = 365 * 24 * time.Hour

// ValidatorParams wires a Validator.
type ValidatorParams struct {
	Transport Transport
	Logger    *logger.Logger
	Config    config.KeepaConfig
	Now       func() time.Time
}

// Validator filters candidate items down to those with genuine, recent
// sales velocity that the platform itself is not serving.
type Validator struct {
	transport Transport
	logg      *logger.Logger
	cfg       config.KeepaConfig
	now       func() time.Time
}

func NewValidator(params ValidatorParams) (*Validator, error) {
	if params.Transport == nil {
		return nil, fmt.Errorf("keepa transport required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Validator{
		transport: params.Transport,
		logg:      params.Logger,
		cfg:       params.Config,
		now:       now,
	}, nil
}

// Validate queries sales history for the whole batch and returns the
// item ids passing the rank-drop, competition and platform-absence
// checks. A query-level failure drops the entire batch.
func (v *Validator) Validate(ctx context.Context, asins []string) []string {
	if len(asins) == 0 {
		return nil
	}

	histories, err := v.transport.Query(ctx, asins)
	if err != nil {
		v.logg.Error(v.logg.WithField(ctx, "batch_size", len(asins)), "sales history query failed, dropping batch", err)
		return nil
	}

	cutoff := v.now().Add(-time.Duration(v.cfg.RecencyWindowDays) * 24 * time.Hour)
	survivors := make([]string, 0, len(histories))
	for _, history := range histories {
		if v.suitable(ctx, history, cutoff) {
			survivors = append(survivors, history.ASIN)
		}
	}
	return survivors
}

func (v *Validator) suitable(ctx context.Context, history ProductHistory, cutoff time.Time) bool {
	ctx = v.logg.WithASIN(ctx, history.ASIN)

	ranks := trimBefore(history.SalesRank, cutoff)
	if len(ranks) == 0 {
		v.logg.Info(ctx, "no recent sales rank samples, skipping")
		return false
	}
	offers := trimBefore(history.OfferCounts, cutoff)

	if !v.rankCheck(ranks) {
		v.logg.Info(ctx, "sales rank check failed, skipping")
		return false
	}
	if !v.competitionCheck(offers) {
		v.logg.Info(ctx, "competition check failed, skipping")
		return false
	}
	if history.LastPlatformSale != nil && v.now().Sub(*history.LastPlatformSale) < platformAbsenceWindow {
		v.logg.Info(ctx, "platform sold this item recently, skipping")
		return false
	}
	return true
}

// rankCheck requires repeated significant rank drops, a signal of
// recurring sales rather than a one-off spike. Simple mode only checks
// the latest rank against an absolute ceiling.
func (v *Validator) rankCheck(ranks []Sample) bool {
	if v.cfg.SimpleMode {
		return ranks[len(ranks)-1].Value > 0 && ranks[len(ranks)-1].Value < v.cfg.RankCeiling
	}

	drops := 0
	for i := 1; i < len(ranks); i++ {
		prev, cur := ranks[i-1].Value, ranks[i].Value
		if prev <= 0 || cur >= prev {
			continue
		}
		dropPercent := float64(prev-cur) / float64(prev) * 100
		if dropPercent >= v.cfg.RankDropPercent {
			drops++
		}
	}
	return drops >= v.cfg.MinRankDrops
}

// competitionCheck rejects items with no real competitive market (offer
// count pinned at exactly 1) and oversaturated items.
func (v *Validator) competitionCheck(offers []Sample) bool {
	if len(offers) == 0 {
		return true
	}

	pinnedAtOne := true
	for _, s := range offers {
		if s.Value != 1 {
			pinnedAtOne = false
			break
		}
	}
	if pinnedAtOne {
		return false
	}

	latest := offers[len(offers)-1].Value
	return latest <= v.cfg.MaxSellers
}

func trimBefore(samples []Sample, cutoff time.Time) []Sample {
	kept := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.Time.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}
