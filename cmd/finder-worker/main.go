package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/crossmkt/arbitrage-backend/internal/amazon"
	"github.com/crossmkt/arbitrage-backend/internal/cron"
	"github.com/crossmkt/arbitrage-backend/internal/ebay"
	"github.com/crossmkt/arbitrage-backend/internal/finder"
	"github.com/crossmkt/arbitrage-backend/internal/keepa"
	"github.com/crossmkt/arbitrage-backend/internal/owners"
	"github.com/crossmkt/arbitrage-backend/internal/pairs"
	"github.com/crossmkt/arbitrage-backend/internal/pricing"
	"github.com/crossmkt/arbitrage-backend/pkg/config"
	"github.com/crossmkt/arbitrage-backend/pkg/db"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
	"github.com/crossmkt/arbitrage-backend/pkg/metrics"
	"github.com/crossmkt/arbitrage-backend/pkg/ratelimit"
)

// finder-worker runs one discovery pass and exits: enumerate the source
// catalog, match and validate candidates, persist the survivors as
// pairs. Meant to be scheduled externally (Cloud Scheduler, systemd
// timer) since a pass is expensive and long-running.
func main() {
	logg := logger.New(logger.Options{ServiceName: "finder-worker"})
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
		ServiceName: "finder-worker",
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

	jobMetrics := metrics.NewJobMetrics(prometheus.NewRegistry())

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

	catalog, err := finder.NewHTTPCatalog(cfg.Finder.CatalogURL)
	if err != nil {
		logg.Error(ctx, "failed to build catalog source", err)
		os.Exit(1)
	}
	var proxies finder.ProxySelector
	if cfg.Finder.ProxyEnabled {
		proxies, err = finder.NewRotatingProxies(cfg.Finder.ProxyList, cfg.Finder.CatalogURL)
		if err != nil {
			logg.Error(ctx, "failed to build proxy selector", err)
			os.Exit(1)
		}
	}

	candidateFinder, err := finder.New(finder.Params{
		Catalog:     catalog,
		Proxies:     proxies,
		Destination: ebayGW,
		Prices:      amazonGW,
		Logger:      logg,
		Metrics:     jobMetrics,
		Config:      cfg.Finder,
	})
	if err != nil {
		logg.Error(ctx, "failed to build finder", err)
		os.Exit(1)
	}

	keepaTransport, err := keepa.NewHTTPTransport(cfg.Keepa)
	if err != nil {
		logg.Error(ctx, "failed to build sales-history transport", err)
		os.Exit(1)
	}
	validator, err := keepa.NewValidator(keepa.ValidatorParams{
		Transport: keepaTransport,
		Logger:    logg,
		Config:    cfg.Keepa,
	})
	if err != nil {
		logg.Error(ctx, "failed to build sales-history validator", err)
		os.Exit(1)
	}

	ledger, err := owners.NewLedger(owners.LedgerParams{
		Store:  owners.NewRepository(dbClient.DB()),
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build owner ledger", err)
		os.Exit(1)
	}

	pairService, err := pairs.NewService(pairs.ServiceParams{
		Store:       pairs.NewRepository(dbClient.DB()),
		Destination: ebayGW,
		Engine:      pricing.NewEngine(cfg.Profit, pricing.DefaultTables()),
		Owners:      ledger,
		Logger:      logg,
		Metrics:     jobMetrics,
		Config:      cfg.Finder,
	})
	if err != nil {
		logg.Error(ctx, "failed to build pair service", err)
		os.Exit(1)
	}

	job := &cron.DiscoveryJob{
		Finder:    candidateFinder,
		Validator: validator,
		Pairs:     pairService,
		Logger:    logg,
		Config:    cfg.Finder,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithJob(logg.WithField(runCtx, "env", cfg.App.Env), job.Name())
	logg.Info(runCtx, "starting discovery pass")

	if err := job.Run(runCtx); err != nil {
		logg.Error(runCtx, "discovery pass failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "discovery pass complete")
}
