package buyer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crossmkt/arbitrage-backend/internal/amazon"
	"github.com/crossmkt/arbitrage-backend/internal/ebay"
	"github.com/crossmkt/arbitrage-backend/pkg/config"
	"github.com/crossmkt/arbitrage-backend/pkg/db/models"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
	"github.com/crossmkt/arbitrage-backend/pkg/metrics"
)

// PurchaseBot executes one purchase on the destination marketplace and
// returns the total spend. A purchase-stopped error aborts only that
// listing's attempt.
type PurchaseBot interface {
	Purchase(ctx context.Context, destinationID string, quantity int, ship models.ShippingInfo) (float64, error)
}

type orderStore interface {
	ListUnprocessed(ctx context.Context) ([]models.Order, error)
	UpdateOutcome(ctx context.Context, orderID uuid.UUID, outcome models.Order) error
}

type sourceGateway interface {
	PriceLookup(ctx context.Context, asins []string) []amazon.PriceInfo
}

type destinationGateway interface {
	GetListing(ctx context.Context, itemID string) (ebay.Listing, error)
}

type profitLedger interface {
	Distribute(ctx context.Context, ownerID uuid.UUID, amount float64) error
}

// OrchestratorParams wires an Orchestrator.
type OrchestratorParams struct {
	Orders      orderStore
	Source      sourceGateway
	Destination destinationGateway
	Bot         PurchaseBot
	Ledger      profitLedger
	Logger      *logger.Logger
	Metrics     *metrics.JobMetrics
	Profit      config.ProfitConfig
}

// Orchestrator buys the destination-side stock for ingested orders and
// records realized profit.
type Orchestrator struct {
	orders      orderStore
	source      sourceGateway
	destination destinationGateway
	bot         PurchaseBot
	ledger      profitLedger
	logg        *logger.Logger
	metrics     *metrics.JobMetrics
	profit      config.ProfitConfig
}

func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("order store required")
	}
	if params.Source == nil {
		return nil, fmt.Errorf("source gateway required")
	}
	if params.Destination == nil {
		return nil, fmt.Errorf("destination gateway required")
	}
	if params.Bot == nil {
		return nil, fmt.Errorf("purchase bot required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("profit ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	profit := params.Profit
	if profit.MarginTarget <= 0 {
		profit.MarginTarget = 0.85
	}
	return &Orchestrator{
		orders:      params.Orders,
		source:      params.Source,
		destination: params.Destination,
		bot:         params.Bot,
		ledger:      params.Ledger,
		logg:        params.Logger,
		metrics:     params.Metrics,
		profit:      profit,
	}, nil
}

// Run processes every order not yet resolved. A failing order is logged
// and left unresolved for the next sweep; it never aborts siblings.
func (o *Orchestrator) Run(ctx context.Context) error {
	orders, err := o.orders.ListUnprocessed(ctx)
	if err != nil {
		return fmt.Errorf("listing unprocessed orders: %w", err)
	}

	for i := range orders {
		order := &orders[i]
		orderCtx := o.logg.WithOrderID(ctx, order.OrderID)
		if err := o.processOrder(orderCtx, order); err != nil {
			o.logg.Error(orderCtx, "order purchase failed, leaving unresolved", err)
			continue
		}
	}
	return nil
}

func (o *Orchestrator) processOrder(ctx context.Context, order *models.Order) error {
	// multi-item orders need per-item source prices; without the full
	// price set the per-owner profit split cannot be attributed
	var priceByASIN map[string]float64
	if order.IsMulti {
		asins := itemASINs(order.Items)
		infos := o.source.PriceLookup(ctx, asins)
		priceByASIN = make(map[string]float64, len(infos))
		for _, info := range infos {
			if info.Price > 0 {
				priceByASIN[info.ASIN] = info.Price
			}
		}
		// Every item must be priced before anything is bought. A partial
		// batch would purchase stock whose profit cannot be attributed.
		for _, asin := range asins {
			if priceByASIN[asin] == 0 {
				return fmt.Errorf("missing source price for %s in multi-item order", asin)
			}
		}
	}

	ship := models.ShippingInfo{}
	if order.ShippingInfo != nil {
		ship = prepareShipping(*order.ShippingInfo)
	}

	status := models.PurchaseStatusMap{}
	totalSpend := decimal.Zero
	totalProfit := decimal.Zero
	ownerProfits := map[string]decimal.Decimal{}

	for _, item := range order.Items {
		pair := item.Pair
		if pair == nil {
			continue
		}
		itemCtx := o.logg.WithASIN(ctx, pair.ASIN)

		if pair.Quantity == nil || item.Quantity > *pair.Quantity {
			o.logg.Warn(itemCtx, "ordered quantity exceeds verified stock, skipping item")
			status[pair.ID.String()] = models.PurchaseOutcome{Failed: true}
			continue
		}

		outcome, spend := o.purchaseItem(itemCtx, pair, item.Quantity, ship)
		status[pair.ID.String()] = outcome
		totalSpend = totalSpend.Add(spend)

		sourcePrice := order.SourcePrice
		if order.IsMulti {
			sourcePrice = priceByASIN[pair.ASIN]
		}
		if sourcePrice == 0 {
			o.logg.Warn(itemCtx, "no source price, item excluded from profit accounting")
			continue
		}

		profit := decimal.NewFromFloat(sourcePrice).
			Mul(decimal.NewFromFloat(o.profit.MarginTarget)).
			Sub(spend).
			Round(2)
		totalProfit = totalProfit.Add(profit)
		key := pair.OwnerID.String()
		ownerProfits[key] = ownerProfits[key].Add(profit)
	}

	updated := models.Order{
		DestinationPrice: totalSpend.Round(2).InexactFloat64(),
		TotalProfit:      totalProfit.Round(2).InexactFloat64(),
		AllSet:           true,
		OwnersProfits:    map[string]float64{},
		PurchaseStatus:   status,
	}
	for ownerID, profit := range ownerProfits {
		updated.OwnersProfits[ownerID] = profit.InexactFloat64()
	}
	if err := o.orders.UpdateOutcome(ctx, order.ID, updated); err != nil {
		return fmt.Errorf("persisting purchase outcome: %w", err)
	}

	for ownerID, profit := range ownerProfits {
		parsed, err := uuid.Parse(ownerID)
		if err != nil {
			continue
		}
		if err := o.ledger.Distribute(ctx, parsed, profit.InexactFloat64()); err != nil {
			o.logg.Error(o.logg.WithField(ctx, "owner_id", ownerID), "profit distribution failed", err)
		}
	}

	o.logg.Info(o.logg.WithFields(ctx, map[string]any{
		"spend":  updated.DestinationPrice,
		"profit": updated.TotalProfit,
	}), "order resolved")
	return nil
}

// purchaseItem buys one item's allocation plan listing by listing. A
// stopped or failed purchase marks that listing and moves on.
func (o *Orchestrator) purchaseItem(ctx context.Context, pair *models.Pair, quantity int, ship models.ShippingInfo) (models.PurchaseOutcome, decimal.Decimal) {
	allocations := o.purchaseCondition(ctx, pair.EbayIDList(), quantity)
	outcome := models.PurchaseOutcome{Listings: map[string]bool{}}
	spend := decimal.Zero

	if len(allocations) == 0 {
		o.logg.Warn(ctx, "no purchasable destination stock")
		outcome.Failed = true
		return outcome, spend
	}

	for _, alloc := range allocations {
		total, err := o.bot.Purchase(ctx, alloc.ListingID, alloc.Quantity, ship)
		if err != nil {
			if apperrors.IsCode(err, apperrors.CodePurchaseStopped) {
				o.logg.Warn(o.logg.WithField(ctx, "ebay_id", alloc.ListingID), "purchase stopped by bot")
			} else {
				o.logg.Error(o.logg.WithField(ctx, "ebay_id", alloc.ListingID), "purchase failed", err)
			}
			outcome.Listings[alloc.ListingID] = false
			o.metrics.IncDropped("purchase")
			continue
		}
		outcome.Listings[alloc.ListingID] = true
		spend = spend.Add(decimal.NewFromFloat(total))
	}
	return outcome, spend
}

func itemASINs(items []models.OrderItem) []string {
	asins := make([]string, 0, len(items))
	for _, item := range items {
		if item.Pair != nil {
			asins = append(asins, item.Pair.ASIN)
		}
	}
	return asins
}
