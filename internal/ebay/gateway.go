package ebay

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/crossmkt/arbitrage-backend/pkg/config"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
	"github.com/crossmkt/arbitrage-backend/pkg/ratelimit"
)

// Transport is the raw destination-marketplace API client (finding +
// shopping operations).
type Transport interface {
	Search(ctx context.Context, query string) ([]SearchItem, error)
	GetItem(ctx context.Context, itemID string) (Item, error)
}

// GatewayParams wires a Gateway.
type GatewayParams struct {
	Transport Transport
	Limiter   *ratelimit.Limiter
	Logger    *logger.Logger
	Config    config.EbayConfig
}

// Gateway wraps the transport with the per-run call budget and bounded
// fixed-delay retries for connectivity failures.
type Gateway struct {
	transport  Transport
	limiter    *ratelimit.Limiter
	logg       *logger.Logger
	attempts   int
	retryDelay time.Duration
}

func NewGateway(params GatewayParams) (*Gateway, error) {
	if params.Transport == nil {
		return nil, fmt.Errorf("ebay transport required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	attempts := params.Config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	return &Gateway{
		transport:  params.Transport,
		limiter:    params.Limiter,
		logg:       params.Logger,
		attempts:   attempts,
		retryDelay: params.Config.RetryDelay,
	}, nil
}

// Search runs a title search and returns result rows with duplicates
// removed, order preserved.
func (g *Gateway) Search(ctx context.Context, query string) ([]SearchItem, error) {
	var raw []SearchItem
	err := g.call(ctx, "Search", func(ctx context.Context) error {
		var callErr error
		raw, callErr = g.transport.Search(ctx, query)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(raw))
	items := make([]SearchItem, 0, len(raw))
	for _, item := range raw {
		if item.ItemID == "" {
			continue
		}
		if _, dup := seen[item.ItemID]; dup {
			continue
		}
		seen[item.ItemID] = struct{}{}
		items = append(items, item)
	}
	return items, nil
}

// GetItem fetches one listing's detail record.
func (g *Gateway) GetItem(ctx context.Context, itemID string) (Item, error) {
	var item Item
	err := g.call(ctx, "GetItem", func(ctx context.Context) error {
		var callErr error
		item, callErr = g.transport.GetItem(ctx, itemID)
		return callErr
	})
	return item, err
}

// GetListing fetches and flattens one listing. Variated listings come
// back as a validation failure.
func (g *Gateway) GetListing(ctx context.Context, itemID string) (Listing, error) {
	item, err := g.GetItem(ctx, itemID)
	if err != nil {
		return Listing{}, err
	}
	return Flatten(item)
}

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
	return apperrors.Wrap(apperrors.CodeConnectivity, err, fmt.Sprintf("ebay %s failed", operation))
}
