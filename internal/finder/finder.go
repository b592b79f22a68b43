package finder

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/crossmkt/arbitrage-backend/internal/amazon"
	"github.com/crossmkt/arbitrage-backend/internal/ebay"
	"github.com/crossmkt/arbitrage-backend/pkg/config"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
	"github.com/crossmkt/arbitrage-backend/pkg/metrics"
)

// CatalogItem is one row of a source-marketplace search result page.
type CatalogItem struct {
	ASIN  string
	Title string
}

// CatalogSource enumerates source-marketplace search result pages. The
// scraping mechanics (HTTP, parsing, location pinning) live behind this
// boundary.
type CatalogSource interface {
	// FetchPage returns one page of results and whether more pages
	// remain. The proxy address is empty when proxying is disabled.
	FetchPage(ctx context.Context, proxy string, page int) ([]CatalogItem, bool, error)
}

// ProxySelector picks a working proxy for location-pinned scraping.
type ProxySelector interface {
	Select(ctx context.Context) (string, error)
}

type destinationGateway interface {
	Search(ctx context.Context, query string) ([]ebay.SearchItem, error)
	GetListing(ctx context.Context, itemID string) (ebay.Listing, error)
}

type priceSource interface {
	PriceLookup(ctx context.Context, asins []string) []amazon.PriceInfo
}

// Candidate is one source item matched to destination listings, ready
// for sales-history validation and the profitability check.
type Candidate struct {
	ASIN        string
	Title       string
	EbayIDs     []string
	SourcePrice float64
	BuyBox      *bool
}

// Params wires a Finder.
type Params struct {
	Catalog     CatalogSource
	Proxies     ProxySelector
	Destination destinationGateway
	Prices      priceSource
	Logger      *logger.Logger
	Metrics     *metrics.JobMetrics
	Config      config.FinderConfig
}

// Finder runs one discovery pass: enumerate source listings, match them
// to destination listings, filter by delivery time, and attach current
// source prices. Stages run strictly in order; inside a stage requests
// fan out concurrently and individual failures drop only their own
// candidate.
type Finder struct {
	catalog     CatalogSource
	proxies     ProxySelector
	destination destinationGateway
	prices      priceSource
	logg        *logger.Logger
	metrics     *metrics.JobMetrics
	cfg         config.FinderConfig
}

func New(params Params) (*Finder, error) {
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog source required")
	}
	if params.Destination == nil {
		return nil, fmt.Errorf("destination gateway required")
	}
	if params.Prices == nil {
		return nil, fmt.Errorf("price source required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Config.ProxyEnabled && params.Proxies == nil {
		return nil, fmt.Errorf("proxy selector required when proxying is enabled")
	}

	cfg := params.Config
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Finder{
		catalog:     params.Catalog,
		proxies:     params.Proxies,
		destination: params.Destination,
		prices:      params.Prices,
		logg:        params.Logger,
		metrics:     params.Metrics,
		cfg:         cfg,
	}, nil
}

// Discover runs the staged pipeline and returns the surviving
// candidates.
func (f *Finder) Discover(ctx context.Context) ([]Candidate, error) {
	proxy, err := f.findProxy(ctx)
	if err != nil {
		return nil, err
	}

	items, err := f.enumerate(ctx, proxy)
	if err != nil {
		return nil, err
	}
	f.logg.Info(f.logg.WithField(ctx, "items", len(items)), "source enumeration complete")

	candidates := f.matchDestinations(ctx, items)
	f.logg.Info(f.logg.WithField(ctx, "candidates", len(candidates)), "destination matching complete")

	candidates = f.filterDelivery(ctx, candidates)
	f.logg.Info(f.logg.WithField(ctx, "candidates", len(candidates)), "delivery filter complete")

	f.attachPrices(ctx, candidates)
	return candidates, nil
}

// findProxy burns through the try budget until a proxy answers.
// Exhaustion aborts the whole run.
func (f *Finder) findProxy(ctx context.Context) (string, error) {
	if !f.cfg.ProxyEnabled {
		return "", nil
	}

	tries := f.cfg.ProxyTries
	if tries <= 0 {
		tries = 1
	}
	var lastErr error
	for i := 0; i < tries; i++ {
		proxy, err := f.proxies.Select(ctx)
		if err == nil && proxy != "" {
			return proxy, nil
		}
		lastErr = err
	}
	return "", apperrors.Wrap(apperrors.CodeApplication, lastErr, "proxy try budget exhausted")
}

// enumerate paginates the source search. A failing first page aborts
// discovery; a later page failure keeps what was already collected.
func (f *Finder) enumerate(ctx context.Context, proxy string) ([]CatalogItem, error) {
	var collected []CatalogItem
	seen := make(map[string]struct{})

	for page := 1; ; page++ {
		items, more, err := f.catalog.FetchPage(ctx, proxy, page)
		if err != nil {
			if page == 1 {
				return nil, apperrors.Wrap(apperrors.CodeConnectivity, err, "initial source pagination failed")
			}
			f.logg.Error(f.logg.WithField(ctx, "page", page), "source page fetch failed, stopping pagination", err)
			break
		}

		for _, item := range items {
			if !ValidASIN(item.ASIN) {
				continue
			}
			if _, dup := seen[item.ASIN]; dup {
				continue
			}
			seen[item.ASIN] = struct{}{}
			collected = append(collected, CatalogItem{
				ASIN:  item.ASIN,
				Title: NormalizeTitle(item.Title, f.cfg.TitleTokens),
			})
		}
		if !more {
			break
		}
	}
	return collected, nil
}

// matchDestinations searches the destination marketplace per item title,
// fanning out across the bounded worker group. An item whose search
// fails or yields nothing drops out without touching its siblings.
func (f *Finder) matchDestinations(ctx context.Context, items []CatalogItem) []Candidate {
	results := make([]*Candidate, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			itemCtx := f.logg.WithASIN(gctx, item.ASIN)
			found, err := f.destination.Search(itemCtx, item.Title)
			if err != nil {
				f.logg.Error(itemCtx, "destination search failed, dropping candidate", err)
				f.metrics.IncDropped("destination_search")
				return nil
			}
			if len(found) == 0 {
				f.logg.Debug(itemCtx, "no destination matches")
				return nil
			}

			ids := make([]string, 0, len(found))
			for _, match := range found {
				ids = append(ids, match.ItemID)
			}
			results[i] = &Candidate{ASIN: item.ASIN, Title: item.Title, EbayIDs: ids}
			return nil
		})
	}
	_ = g.Wait()

	candidates := make([]Candidate, 0, len(items))
	for _, c := range results {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}
	return candidates
}

// filterDelivery fetches each destination listing and drops the ones
// shipping slower than the threshold. A candidate with no surviving
// listings drops out entirely.
func (f *Finder) filterDelivery(ctx context.Context, candidates []Candidate) []Candidate {
	var mu sync.Mutex
	kept := make(map[string][]string, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)
	for _, cand := range candidates {
		cand := cand
		for _, id := range cand.EbayIDs {
			id := id
			g.Go(func() error {
				itemCtx := f.logg.WithFields(gctx, map[string]any{"asin": cand.ASIN, "ebay_id": id})
				listing, err := f.destination.GetListing(itemCtx, id)
				if err != nil {
					if apperrors.IsCode(err, apperrors.CodeValidation) {
						f.logg.Info(itemCtx, "listing rejected: "+err.Error())
					} else {
						f.logg.Error(itemCtx, "listing fetch failed, dropping listing", err)
					}
					f.metrics.IncDropped("delivery_filter")
					return nil
				}
				if listing.DeliveryDays != nil && *listing.DeliveryDays > f.cfg.MaxDeliveryDays {
					f.logg.Info(itemCtx, "delivery too slow, dropping listing")
					f.metrics.IncDropped("delivery_filter")
					return nil
				}

				mu.Lock()
				kept[cand.ASIN] = append(kept[cand.ASIN], id)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	surviving := make([]Candidate, 0, len(candidates))
	for _, cand := range candidates {
		ids := kept[cand.ASIN]
		if len(ids) == 0 {
			continue
		}
		// restore the pre-fan-out ordering
		ordered := make([]string, 0, len(ids))
		for _, id := range cand.EbayIDs {
			for _, keptID := range ids {
				if id == keptID {
					ordered = append(ordered, id)
					break
				}
			}
		}
		cand.EbayIDs = ordered
		surviving = append(surviving, cand)
	}
	return surviving
}

// attachPrices decorates survivors with the current source price. A
// missing price leaves the sentinel 0 on the candidate.
func (f *Finder) attachPrices(ctx context.Context, candidates []Candidate) {
	if len(candidates) == 0 {
		return
	}
	asins := make([]string, 0, len(candidates))
	for _, c := range candidates {
		asins = append(asins, c.ASIN)
	}

	byASIN := make(map[string]amazon.PriceInfo, len(candidates))
	for _, info := range f.prices.PriceLookup(ctx, asins) {
		byASIN[info.ASIN] = info
	}
	for i := range candidates {
		if info, ok := byASIN[candidates[i].ASIN]; ok {
			candidates[i].SourcePrice = info.Price
			candidates[i].BuyBox = info.BuyBox
		}
	}
}
