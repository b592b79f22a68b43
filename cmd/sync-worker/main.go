package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/crossmkt/arbitrage-backend/api/routes"
	"github.com/crossmkt/arbitrage-backend/internal/amazon"
	"github.com/crossmkt/arbitrage-backend/internal/buyer"
	"github.com/crossmkt/arbitrage-backend/internal/cron"
	"github.com/crossmkt/arbitrage-backend/internal/ebay"
	"github.com/crossmkt/arbitrage-backend/internal/orders"
	"github.com/crossmkt/arbitrage-backend/internal/owners"
	"github.com/crossmkt/arbitrage-backend/internal/pairs"
	"github.com/crossmkt/arbitrage-backend/internal/reconcile"
	"github.com/crossmkt/arbitrage-backend/pkg/config"
	"github.com/crossmkt/arbitrage-backend/pkg/db"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
	"github.com/crossmkt/arbitrage-backend/pkg/metrics"
	"github.com/crossmkt/arbitrage-backend/pkg/ratelimit"
	"github.com/crossmkt/arbitrage-backend/pkg/redis"
)

// sync-worker runs the recurring pipeline: inventory reconciliation,
// order ingestion, automated purchasing, and pair cleanup, plus the ops
// HTTP surface.
func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
	})

	expired, err := cfg.Ebay.TokenExpired(time.Now())
	if err != nil {
		logg.Error(ctx, "invalid destination token expiry", err)
		os.Exit(1)
	}
	if expired {
		logg.Error(ctx, "destination marketplace token expired, refusing to start", nil)
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	jobMetrics := metrics.NewJobMetrics(registry)

	amazonTransport, err := amazon.NewHTTPTransport(cfg.Amazon)
	if err != nil {
		logg.Error(ctx, "failed to build source transport", err)
		os.Exit(1)
	}
	amazonGW, err := amazon.NewGateway(amazon.GatewayParams{
		Transport: amazonTransport,
		Limiter:   ratelimit.New(cfg.Amazon.CallBudget),
		Logger:    logg,
		Config:    cfg.Amazon,
	})
	if err != nil {
		logg.Error(ctx, "failed to build source gateway", err)
		os.Exit(1)
	}

	ebayTransport, err := ebay.NewHTTPTransport(cfg.Ebay)
	if err != nil {
		logg.Error(ctx, "failed to build destination transport", err)
		os.Exit(1)
	}
	ebayGW, err := ebay.NewGateway(ebay.GatewayParams{
		Transport: ebayTransport,
		Limiter:   ratelimit.New(cfg.Ebay.CallBudget),
		Logger:    logg,
		Config:    cfg.Ebay,
	})
	if err != nil {
		logg.Error(ctx, "failed to build destination gateway", err)
		os.Exit(1)
	}

	pairsRepo := pairs.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	ledger, err := owners.NewLedger(owners.LedgerParams{
		Store:  owners.NewRepository(dbClient.DB()),
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build owner ledger", err)
		os.Exit(1)
	}

	workflow, err := reconcile.NewWorkflow(reconcile.WorkflowParams{
		Source:      amazonGW,
		Destination: ebayGW,
		Pairs:       pairsRepo,
		Owners:      ledger,
		Logger:      logg,
		Metrics:     jobMetrics,
		Config:      cfg.Workflow,
	})
	if err != nil {
		logg.Error(ctx, "failed to build reconciliation workflow", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Source:  amazonGW,
		Pairs:   pairsRepo,
		Store:   ordersRepo,
		Logger:  logg,
		Metrics: jobMetrics,
		Config:  cfg.Orders,
	})
	if err != nil {
		logg.Error(ctx, "failed to build order service", err)
		os.Exit(1)
	}

	purchasesJob := &cron.PurchasesJob{Logger: logg, Enabled: cfg.Buyer.Enabled}
	if cfg.Buyer.Enabled {
		bot, err := buyer.NewHTTPBot(cfg.Buyer)
		if err != nil {
			logg.Error(ctx, "failed to build purchase bot", err)
			os.Exit(1)
		}
		orchestrator, err := buyer.NewOrchestrator(buyer.OrchestratorParams{
			Orders:      ordersRepo,
			Source:      amazonGW,
			Destination: ebayGW,
			Bot:         bot,
			Ledger:      ledger,
			Logger:      logg,
			Metrics:     jobMetrics,
			Profit:      cfg.Profit,
		})
		if err != nil {
			logg.Error(ctx, "failed to build purchase orchestrator", err)
			os.Exit(1)
		}
		purchasesJob.Orchestrator = orchestrator
	}

	service, err := cron.NewService(cron.ServiceParams{
		Entries: []cron.Entry{
			{Job: &cron.ReconcileJob{Workflow: workflow}, Every: cfg.Workflow.Interval},
			{Job: &cron.OrdersJob{Service: orderService}, Every: cfg.Orders.Interval},
			{Job: purchasesJob, Every: cfg.Buyer.Interval},
			{Job: &cron.CleanupJob{
				Pairs:  pairsRepo,
				Source: amazonGW,
				Logger: logg,
				Config: cfg.Pairs,
			}, Every: cfg.Pairs.CleanupInterval},
		},
		Locker:  cron.NewRedisLocker(redisClient),
		Logger:  logg,
		Metrics: jobMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to build scheduler", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.RouterParams{
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		Jobs:     service,
		Registry: registry,
	})
	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithField(runCtx, "env", cfg.App.Env)
	logg.Info(runCtx, "starting sync worker")

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return service.Run(gctx)
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "sync worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "sync worker shutting down gracefully")
}
