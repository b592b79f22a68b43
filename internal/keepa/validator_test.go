package keepa

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/crossmkt/arbitrage-backend/pkg/config"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
	"github.com/rs/zerolog"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeTransport struct {
	histories []ProductHistory
	err       error
}

func (f *fakeTransport) Query(ctx context.Context, asins []string) ([]ProductHistory, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.histories, nil
}

func testConfig() config.KeepaConfig {
	return config.KeepaConfig{
		RecencyWindowDays: 90,
		MinRankDrops:      2,
		RankDropPercent:   10,
		MaxSellers:        20,
		RankCeiling:       500000,
	}
}

func newValidator(t *testing.T, transport Transport, cfg config.KeepaConfig) *Validator {
	t.Helper()
	v, err := NewValidator(ValidatorParams{
		Transport: transport,
		Logger:    logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard}),
		Config:    cfg,
		Now:       func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func daysAgo(d int) time.Time { return testNow.Add(-time.Duration(d) * 24 * time.Hour) }

func rankSeries(values ...int) []Sample {
	samples := make([]Sample, 0, len(values))
	for i, v := range values {
		samples = append(samples, Sample{Time: daysAgo(len(values) - i), Value: v})
	}
	return samples
}

func sellingHistory(asin string) ProductHistory {
	return ProductHistory{
		ASIN: asin,
		// two >=10% drops: 100000->80000 and 90000->70000
		SalesRank:   rankSeries(100000, 80000, 90000, 70000),
		OfferCounts: rankSeries(5, 6, 4),
	}
}

func TestValidateAcceptsRecurringSales(t *testing.T) {
	transport := &fakeTransport{histories: []ProductHistory{sellingHistory("B00PASS001")}}
	v := newValidator(t, transport, testConfig())

	survivors := v.Validate(context.Background(), []string{"B00PASS001"})
	if len(survivors) != 1 || survivors[0] != "B00PASS001" {
		t.Fatalf("expected candidate to survive, got %v", survivors)
	}
}

func TestValidateRejectsTooFewRankDrops(t *testing.T) {
	history := sellingHistory("B00FAIL001")
	history.SalesRank = rankSeries(100000, 95000, 97000, 96000)
	transport := &fakeTransport{histories: []ProductHistory{history}}
	v := newValidator(t, transport, testConfig())

	if got := v.Validate(context.Background(), []string{"B00FAIL001"}); len(got) != 0 {
		t.Fatalf("expected rejection on rank drops, got %v", got)
	}
}

func TestValidateRejectsStaleRankSeries(t *testing.T) {
	history := sellingHistory("B00FAIL002")
	for i := range history.SalesRank {
		history.SalesRank[i].Time = daysAgo(200 + i)
	}
	transport := &fakeTransport{histories: []ProductHistory{history}}
	v := newValidator(t, transport, testConfig())

	if got := v.Validate(context.Background(), []string{"B00FAIL002"}); len(got) != 0 {
		t.Fatalf("expected rejection on empty post-trim series, got %v", got)
	}
}

func TestValidateCompetitionChecks(t *testing.T) {
	t.Run("offerCountPinnedAtOne", func(t *testing.T) {
		history := sellingHistory("B00FAIL003")
		history.OfferCounts = rankSeries(1, 1, 1)
		v := newValidator(t, &fakeTransport{histories: []ProductHistory{history}}, testConfig())
		if got := v.Validate(context.Background(), []string{"B00FAIL003"}); len(got) != 0 {
			t.Fatalf("expected rejection for no competitive market, got %v", got)
		}
	})

	t.Run("oversaturated", func(t *testing.T) {
		history := sellingHistory("B00FAIL004")
		history.OfferCounts = rankSeries(10, 15, 30)
		v := newValidator(t, &fakeTransport{histories: []ProductHistory{history}}, testConfig())
		if got := v.Validate(context.Background(), []string{"B00FAIL004"}); len(got) != 0 {
			t.Fatalf("expected rejection for oversaturation, got %v", got)
		}
	})
}

func TestValidateRejectsRecentPlatformSale(t *testing.T) {
	history := sellingHistory("B00FAIL005")
	sale := daysAgo(30)
	history.LastPlatformSale = &sale
	v := newValidator(t, &fakeTransport{histories: []ProductHistory{history}}, testConfig())

	if got := v.Validate(context.Background(), []string{"B00FAIL005"}); len(got) != 0 {
		t.Fatalf("expected rejection for recent platform sale, got %v", got)
	}
}

func TestValidateAcceptsOldPlatformSale(t *testing.T) {
	history := sellingHistory("B00PASS002")
	sale := daysAgo(400)
	history.LastPlatformSale = &sale
	v := newValidator(t, &fakeTransport{histories: []ProductHistory{history}}, testConfig())

	if got := v.Validate(context.Background(), []string{"B00PASS002"}); len(got) != 1 {
		t.Fatalf("expected year-old platform sale to pass, got %v", got)
	}
}

func TestValidateSimpleMode(t *testing.T) {
	cfg := testConfig()
	cfg.SimpleMode = true

	history := ProductHistory{
		ASIN:      "B00PASS003",
		SalesRank: rankSeries(450000),
	}
	v := newValidator(t, &fakeTransport{histories: []ProductHistory{history}}, cfg)
	if got := v.Validate(context.Background(), []string{"B00PASS003"}); len(got) != 1 {
		t.Fatalf("expected simple-mode pass under ceiling, got %v", got)
	}

	history.SalesRank = rankSeries(600000)
	v = newValidator(t, &fakeTransport{histories: []ProductHistory{history}}, cfg)
	if got := v.Validate(context.Background(), []string{"B00PASS003"}); len(got) != 0 {
		t.Fatalf("expected simple-mode rejection over ceiling, got %v", got)
	}
}

func TestValidateDropsWholeBatchOnQueryFailure(t *testing.T) {
	transport := &fakeTransport{err: errors.New("api unreachable")}
	v := newValidator(t, transport, testConfig())

	if got := v.Validate(context.Background(), []string{"B00FAIL006", "B00FAIL007"}); got != nil {
		t.Fatalf("expected whole batch dropped, got %v", got)
	}
}
