package finder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/crossmkt/arbitrage-backend/internal/amazon"
	"github.com/crossmkt/arbitrage-backend/internal/ebay"
	"github.com/crossmkt/arbitrage-backend/pkg/config"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
	"github.com/rs/zerolog"
)

type fakeCatalog struct {
	pages    [][]CatalogItem
	firstErr error
}

func (f *fakeCatalog) FetchPage(ctx context.Context, proxy string, page int) ([]CatalogItem, bool, error) {
	if page == 1 && f.firstErr != nil {
		return nil, false, f.firstErr
	}
	if page > len(f.pages) {
		return nil, false, nil
	}
	return f.pages[page-1], page < len(f.pages), nil
}

type fakeDestination struct {
	searches   map[string][]ebay.SearchItem
	searchErrs map[string]error
	listings   map[string]ebay.Listing
	listingErr map[string]error
}

func (f *fakeDestination) Search(ctx context.Context, query string) ([]ebay.SearchItem, error) {
	if err := f.searchErrs[query]; err != nil {
		return nil, err
	}
	return f.searches[query], nil
}

func (f *fakeDestination) GetListing(ctx context.Context, itemID string) (ebay.Listing, error) {
	if err := f.listingErr[itemID]; err != nil {
		return ebay.Listing{}, err
	}
	listing, ok := f.listings[itemID]
	if !ok {
		return ebay.Listing{}, apperrors.New(apperrors.CodeApplication, "unknown item")
	}
	return listing, nil
}

type fakePrices struct {
	infos map[string]amazon.PriceInfo
}

func (f *fakePrices) PriceLookup(ctx context.Context, asins []string) []amazon.PriceInfo {
	out := make([]amazon.PriceInfo, 0, len(asins))
	for _, asin := range asins {
		if info, ok := f.infos[asin]; ok {
			out = append(out, info)
		}
	}
	return out
}

type fakeProxies struct {
	proxy string
	err   error
	calls int
}

func (f *fakeProxies) Select(ctx context.Context) (string, error) {
	f.calls++
	return f.proxy, f.err
}

func intPtr(v int) *int { return &v }

func fastListing(id string) ebay.Listing {
	return ebay.Listing{ItemID: id, Price: 20, Quantity: 5, DeliveryDays: intPtr(3)}
}

func testFinderConfig() config.FinderConfig {
	return config.FinderConfig{
		Concurrency:     4,
		TitleTokens:     8,
		MaxDeliveryDays: 9,
	}
}

func newFinder(t *testing.T, params Params) *Finder {
	t.Helper()
	if params.Logger == nil {
		params.Logger = logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard})
	}
	f, err := New(params)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func TestDiscoverFullRun(t *testing.T) {
	catalog := &fakeCatalog{pages: [][]CatalogItem{
		{
			{ASIN: "B000AAAA01", Title: "Water Bottle Steel"},
			{ASIN: "bad-id", Title: "skipped"},
		},
		{
			{ASIN: "B000AAAA02", Title: "Desk Lamp LED"},
			{ASIN: "B000AAAA01", Title: "duplicate of page one"},
		},
	}}
	destination := &fakeDestination{
		searches: map[string][]ebay.SearchItem{
			"water bottle steel": {{ItemID: "100000000001"}, {ItemID: "100000000002"}},
			"desk lamp led":      {{ItemID: "200000000001"}},
		},
		listings: map[string]ebay.Listing{
			"100000000001": fastListing("100000000001"),
			"100000000002": {ItemID: "100000000002", DeliveryDays: intPtr(15)},
			"200000000001": fastListing("200000000001"),
		},
	}
	prices := &fakePrices{infos: map[string]amazon.PriceInfo{
		"B000AAAA01": {ASIN: "B000AAAA01", Price: 34.99},
	}}

	f := newFinder(t, Params{
		Catalog:     catalog,
		Destination: destination,
		Prices:      prices,
		Config:      testFinderConfig(),
	})

	candidates, err := f.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	byASIN := map[string]Candidate{}
	for _, c := range candidates {
		byASIN[c.ASIN] = c
	}

	first := byASIN["B000AAAA01"]
	if len(first.EbayIDs) != 1 || first.EbayIDs[0] != "100000000001" {
		t.Fatalf("slow listing should be filtered, got %v", first.EbayIDs)
	}
	if first.SourcePrice != 34.99 {
		t.Fatalf("expected attached source price, got %v", first.SourcePrice)
	}
	if byASIN["B000AAAA02"].SourcePrice != 0 {
		t.Fatalf("missing price must stay sentinel 0, got %v", byASIN["B000AAAA02"].SourcePrice)
	}
}

func TestDiscoverAbortsWhenFirstPageFails(t *testing.T) {
	f := newFinder(t, Params{
		Catalog:     &fakeCatalog{firstErr: errors.New("blocked")},
		Destination: &fakeDestination{},
		Prices:      &fakePrices{},
		Config:      testFinderConfig(),
	})

	_, err := f.Discover(context.Background())
	if !apperrors.IsCode(err, apperrors.CodeConnectivity) {
		t.Fatalf("expected connectivity abort, got %v", err)
	}
}

func TestDiscoverAbortsWhenProxyBudgetExhausted(t *testing.T) {
	cfg := testFinderConfig()
	cfg.ProxyEnabled = true
	cfg.ProxyTries = 3
	proxies := &fakeProxies{err: errors.New("no proxy answered")}

	f := newFinder(t, Params{
		Catalog:     &fakeCatalog{},
		Proxies:     proxies,
		Destination: &fakeDestination{},
		Prices:      &fakePrices{},
		Config:      cfg,
	})

	_, err := f.Discover(context.Background())
	if !apperrors.IsCode(err, apperrors.CodeApplication) {
		t.Fatalf("expected application abort, got %v", err)
	}
	if proxies.calls != 3 {
		t.Fatalf("expected 3 proxy tries, got %d", proxies.calls)
	}
}

func TestDiscoverIsolatesSearchFailures(t *testing.T) {
	pages := []CatalogItem{}
	searches := map[string][]ebay.SearchItem{}
	searchErrs := map[string]error{}
	listings := map[string]ebay.Listing{}
	for i := 0; i < 6; i++ {
		asin := fmt.Sprintf("B000BBBB%02d", i)
		title := fmt.Sprintf("gadget %d", i)
		pages = append(pages, CatalogItem{ASIN: asin, Title: title})
		if i == 2 {
			searchErrs[title] = errors.New("timeout")
			continue
		}
		id := fmt.Sprintf("3000000000%02d", i)
		searches[title] = []ebay.SearchItem{{ItemID: id}}
		listings[id] = fastListing(id)
	}

	f := newFinder(t, Params{
		Catalog:     &fakeCatalog{pages: [][]CatalogItem{pages}},
		Destination: &fakeDestination{searches: searches, searchErrs: searchErrs, listings: listings},
		Prices:      &fakePrices{},
		Config:      testFinderConfig(),
	})

	candidates, err := f.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(candidates) != 5 {
		t.Fatalf("one timed-out candidate must not sink its siblings: got %d", len(candidates))
	}
	for _, c := range candidates {
		if c.ASIN == "B000BBBB02" {
			t.Fatal("failed candidate leaked into results")
		}
	}
}

func TestDiscoverDropsCandidateWhenAllListingsRejected(t *testing.T) {
	destination := &fakeDestination{
		searches: map[string][]ebay.SearchItem{
			"slow gadget": {{ItemID: "400000000001"}, {ItemID: "400000000002"}},
		},
		listings: map[string]ebay.Listing{
			"400000000001": {ItemID: "400000000001", DeliveryDays: intPtr(20)},
		},
		listingErr: map[string]error{
			"400000000002": ebay.ErrVariatedListing,
		},
	}
	f := newFinder(t, Params{
		Catalog:     &fakeCatalog{pages: [][]CatalogItem{{{ASIN: "B000CCCC01", Title: "Slow Gadget"}}}},
		Destination: destination,
		Prices:      &fakePrices{},
		Config:      testFinderConfig(),
	})

	candidates, err := f.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected candidate with no surviving listings to drop, got %v", candidates)
	}
}
