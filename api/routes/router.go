package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crossmkt/arbitrage-backend/api/middleware"
	"github.com/crossmkt/arbitrage-backend/api/responses"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
)

// Pinger is any dependency whose connectivity gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// JobRunner triggers a full pipeline pass on demand.
type JobRunner interface {
	RunAll(ctx context.Context) error
}

// RouterParams wires the worker HTTP surface.
type RouterParams struct {
	Logger   *logger.Logger
	DB       Pinger
	Redis    Pinger
	Jobs     JobRunner
	Registry *prometheus.Registry
}

// NewRouter builds the ops-facing handler: liveness, readiness,
// metrics, and the on-demand job trigger.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(params.Logger),
		middleware.RequestID(params.Logger),
		middleware.Logging(params.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", healthLive())
		r.Get("/ready", healthReady(params.Logger, params.DB, params.Redis))
	})

	if params.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	if params.Jobs != nil {
		r.Post("/jobs/run", runJobs(params.Logger, params.Jobs))
	}
	return r
}

func healthLive() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func healthReady(logg *logger.Logger, deps ...Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		for _, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}

func runJobs(logg *logger.Logger, jobs JobRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := jobs.RunAll(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "completed"})
	}
}
