package amazon

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/crossmkt/arbitrage-backend/pkg/config"
	"github.com/crossmkt/arbitrage-backend/pkg/enums"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
	"github.com/crossmkt/arbitrage-backend/pkg/ratelimit"
)

// Transport is the raw source-marketplace API client. It takes structured
// requests and returns structured responses or an error; classification
// and retries happen in the Gateway.
type Transport interface {
	GetCompetitivePricing(ctx context.Context, asins []string) ([]PricingResult, error)
	ListListings(ctx context.Context, asins []string) ([]ListingRecord, error)
	SubmitFeed(ctx context.Context, feedType enums.FeedType, messages []FeedMessage) (FeedSubmission, error)
	FeedStatus(ctx context.Context, feedID string) (FeedSubmission, error)
	ListOrders(ctx context.Context, createdAfter time.Time, nextToken string) (OrdersPage, error)
	ListOrderItems(ctx context.Context, orderID string, nextToken string) (OrderItemsPage, error)
}

// GatewayParams wires a Gateway.
type GatewayParams struct {
	Transport Transport
	Limiter   *ratelimit.Limiter
	Logger    *logger.Logger
	Config    config.AmazonConfig
}

// Gateway wraps the transport with the per-run call budget, bounded
// fixed-delay retries for connectivity failures, and pricing-API
// batching.
type Gateway struct {
	transport  Transport
	limiter    *ratelimit.Limiter
	logg       *logger.Logger
	batchSize  int
	batchDelay time.Duration
	attempts   int
	retryDelay time.Duration
}

func NewGateway(params GatewayParams) (*Gateway, error) {
	if params.Transport == nil {
		return nil, fmt.Errorf("amazon transport required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	batchSize := params.Config.PriceBatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	attempts := params.Config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	return &Gateway{
		transport:  params.Transport,
		limiter:    params.Limiter,
		logg:       params.Logger,
		batchSize:  batchSize,
		batchDelay: params.Config.PriceBatchDelay,
		attempts:   attempts,
		retryDelay: params.Config.RetryDelay,
	}, nil
}

// PriceLookup batch-fetches the lowest/buybox price per ASIN. A failed
// batch drops only its own ASINs; surviving batches still produce
// results.
func (g *Gateway) PriceLookup(ctx context.Context, asins []string) []PriceInfo {
	infos := make([]PriceInfo, 0, len(asins))
	for start := 0; start < len(asins); start += g.batchSize {
		end := start + g.batchSize
		if end > len(asins) {
			end = len(asins)
		}
		batch := asins[start:end]

		if start > 0 && g.batchDelay > 0 {
			if err := sleep(ctx, g.batchDelay); err != nil {
				g.logg.Error(ctx, "price lookup interrupted", err)
				return infos
			}
		}

		var results []PricingResult
		err := g.call(ctx, "GetCompetitivePricing", func(ctx context.Context) error {
			var callErr error
			results, callErr = g.transport.GetCompetitivePricing(ctx, batch)
			return callErr
		})
		if err != nil {
			g.logg.Error(g.logg.WithField(ctx, "batch_size", len(batch)), "price batch dropped", err)
			continue
		}
		infos = append(infos, ParsePrices(results)...)
	}
	return infos
}

// FindListings returns the seller SKU per ASIN for listings that already
// exist in the marketplace inventory.
func (g *Gateway) FindListings(ctx context.Context, asins []string) (map[string]string, error) {
	var records []ListingRecord
	err := g.call(ctx, "ListListings", func(ctx context.Context) error {
		var callErr error
		records, callErr = g.transport.ListListings(ctx, asins)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	skus := make(map[string]string, len(records))
	for _, rec := range records {
		if rec.ASIN == "" || rec.SellerSKU == "" {
			continue
		}
		skus[rec.ASIN] = rec.SellerSKU
	}
	return skus, nil
}

// SubmitFeed submits one bulk feed and returns the acknowledgement.
func (g *Gateway) SubmitFeed(ctx context.Context, feedType enums.FeedType, messages []FeedMessage) (FeedSubmission, error) {
	var submission FeedSubmission
	err := g.call(ctx, "SubmitFeed", func(ctx context.Context) error {
		var callErr error
		submission, callErr = g.transport.SubmitFeed(ctx, feedType, messages)
		return callErr
	})
	return submission, err
}

// FeedStatus fetches the processing status of a submitted feed.
func (g *Gateway) FeedStatus(ctx context.Context, feedID string) (FeedSubmission, error) {
	var submission FeedSubmission
	err := g.call(ctx, "FeedStatus", func(ctx context.Context) error {
		var callErr error
		submission, callErr = g.transport.FeedStatus(ctx, feedID)
		return callErr
	})
	return submission, err
}

// ListOrders fetches one page of orders created after the given time.
func (g *Gateway) ListOrders(ctx context.Context, createdAfter time.Time, nextToken string) (OrdersPage, error) {
	var page OrdersPage
	err := g.call(ctx, "ListOrders", func(ctx context.Context) error {
		var callErr error
		page, callErr = g.transport.ListOrders(ctx, createdAfter, nextToken)
		return callErr
	})
	return page, err
}

// ListOrderItems fetches one page of an order's line items.
func (g *Gateway) ListOrderItems(ctx context.Context, orderID string, nextToken string) (OrderItemsPage, error) {
	var page OrderItemsPage
	err := g.call(ctx, "ListOrderItems", func(ctx context.Context) error {
		var callErr error
		page, callErr = g.transport.ListOrderItems(ctx, orderID, nextToken)
		return callErr
	})
	return page, err
}

// call runs one logical API call under the budget and the fixed-delay
// retry policy. Only connectivity-class failures are retried.
func (g *Gateway) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	delay := g.retryDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(g.attempts-1), retry.NewConstant(delay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if budgetErr := g.limiter.Take(); budgetErr != nil {
			return budgetErr
		}
		if callErr := fn(ctx); callErr != nil {
			if apperrors.IsRetryable(callErr) {
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if typed := apperrors.As(err); typed != nil {
		return typed
	}
	return apperrors.Wrap(apperrors.CodeConnectivity, err, fmt.Sprintf("amazon %s failed", operation))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
