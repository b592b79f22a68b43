package orders

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/crossmkt/arbitrage-backend/internal/amazon"
	"github.com/crossmkt/arbitrage-backend/pkg/config"
	"github.com/crossmkt/arbitrage-backend/pkg/db/models"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
	"github.com/crossmkt/arbitrage-backend/pkg/metrics"
)

type sourceGateway interface {
	ListOrders(ctx context.Context, createdAfter time.Time, nextToken string) (amazon.OrdersPage, error)
	ListOrderItems(ctx context.Context, orderID string, nextToken string) (amazon.OrderItemsPage, error)
}

type pairFinder interface {
	FindByASIN(ctx context.Context, asin string) (*models.Pair, error)
}

type orderStore interface {
	ExistsByOrderID(ctx context.Context, orderID string) (bool, error)
	Create(ctx context.Context, order *models.Order) error
}

// ServiceParams wires an ingestion Service.
type ServiceParams struct {
	Source  sourceGateway
	Pairs   pairFinder
	Store   orderStore
	Logger  *logger.Logger
	Metrics *metrics.JobMetrics
	Config  config.OrdersConfig
	Now     func() time.Time
}

// Service pulls recent unshipped orders from the source marketplace and
// persists the ones that touch tracked pairs.
type Service struct {
	source  sourceGateway
	pairs   pairFinder
	store   orderStore
	logg    *logger.Logger
	metrics *metrics.JobMetrics
	cfg     config.OrdersConfig
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Source == nil {
		return nil, fmt.Errorf("source gateway required")
	}
	if params.Pairs == nil {
		return nil, fmt.Errorf("pair finder required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("order store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		source:  params.Source,
		pairs:   params.Pairs,
		store:   params.Store,
		logg:    params.Logger,
		metrics: params.Metrics,
		cfg:     params.Config,
		now:     now,
	}, nil
}

// Ingest walks every page of orders created inside the lookback window
// and stores the new unshipped ones. Returns the number of orders
// persisted. One order failing to resolve or persist never aborts the
// sweep.
func (s *Service) Ingest(ctx context.Context) (int, error) {
	createdAfter := s.now().Add(-s.cfg.Lookback)
	ingested := 0

	token := ""
	for {
		page, err := s.source.ListOrders(ctx, createdAfter, token)
		if err != nil {
			return ingested, fmt.Errorf("listing orders: %w", err)
		}
		for _, summary := range page.Orders {
			ok, err := s.ingestOne(ctx, summary)
			if err != nil {
				s.logg.Error(s.logg.WithOrderID(ctx, summary.OrderID), "order ingestion failed", err)
				continue
			}
			if ok {
				ingested++
			}
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	s.logg.Info(s.logg.WithField(ctx, "orders", ingested), "order ingestion sweep finished")
	return ingested, nil
}

func (s *Service) ingestOne(ctx context.Context, summary amazon.OrderSummary) (bool, error) {
	if summary.Status != amazon.OrderStatusUnshipped {
		return false, nil
	}
	ctx = s.logg.WithOrderID(ctx, summary.OrderID)

	exists, err := s.store.ExistsByOrderID(ctx, summary.OrderID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	items, total, err := s.resolveItems(ctx, summary.OrderID)
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		// none of the ordered items map to a tracked pair
		s.logg.Debug(ctx, "order references no tracked pairs, skipping")
		return false, nil
	}

	order := &models.Order{
		OrderID:      summary.OrderID,
		PurchaseDate: summary.PurchaseDate,
		SourcePrice:  total,
		IsMulti:      distinctOwners(items) > 1,
		ShippingInfo: shippingInfo(summary),
		Items:        orderItems(items),
	}
	if err := s.store.Create(ctx, order); err != nil {
		return false, err
	}
	s.logg.Info(s.logg.WithField(ctx, "items", len(items)), "order ingested")
	return true, nil
}

// resolvedItem accumulates one pair's ordered quantity across line
// items.
type resolvedItem struct {
	pair     *models.Pair
	quantity int
}

// resolveItems pages through the order's line items, maps each ASIN to
// its pair and totals the order value. Line items with no matching pair
// are dropped silently: the seller may list items outside this system.
func (s *Service) resolveItems(ctx context.Context, orderID string) ([]*resolvedItem, float64, error) {
	byASIN := map[string]*resolvedItem{}
	var ordered []*resolvedItem
	total := 0.0

	token := ""
	for {
		page, err := s.source.ListOrderItems(ctx, orderID, token)
		if err != nil {
			return nil, 0, fmt.Errorf("listing order items: %w", err)
		}
		for _, line := range page.Items {
			if line.QuantityOrdered <= 0 {
				continue
			}
			item, seen := byASIN[line.ASIN]
			if !seen {
				pair, err := s.pairs.FindByASIN(ctx, line.ASIN)
				if err != nil {
					continue
				}
				item = &resolvedItem{pair: pair}
				byASIN[line.ASIN] = item
				ordered = append(ordered, item)
			}
			item.quantity += line.QuantityOrdered
			total += amazon.ItemTotal(line)
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}
	return ordered, round2(total), nil
}

func distinctOwners(items []*resolvedItem) int {
	owners := map[string]struct{}{}
	for _, item := range items {
		owners[item.pair.OwnerID.String()] = struct{}{}
	}
	return len(owners)
}

func orderItems(items []*resolvedItem) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, models.OrderItem{PairID: item.pair.ID, Quantity: item.quantity})
	}
	return out
}

func shippingInfo(summary amazon.OrderSummary) *models.ShippingInfo {
	info := &models.ShippingInfo{BuyerName: summary.BuyerName}
	if addr := summary.ShippingAddress; addr != nil {
		info.Name = addr.Name
		info.AddressLine1 = addr.AddressLine1
		info.AddressLine2 = addr.AddressLine2
		info.AddressLine3 = addr.AddressLine3
		info.City = addr.City
		info.County = addr.County
		info.District = addr.District
		info.StateOrRegion = addr.StateOrRegion
		info.PostalCode = addr.PostalCode
		info.CountryCode = addr.CountryCode
		info.Phone = addr.Phone
		info.AddressType = addr.AddressType
	}
	return info
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
