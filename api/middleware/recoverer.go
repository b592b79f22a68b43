package middleware

import (
	"fmt"
	"net/http"

	"github.com/crossmkt/arbitrage-backend/api/responses"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
)

func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					err := fmt.Errorf("panic: %v", rec)
					ctx := r.Context()
					if logg != nil {
						ctx = logg.WithField(ctx, "panic", fmt.Sprint(rec))
						logg.Error(ctx, "panic.recovered", err)
					}
					responses.WriteError(ctx, logg, w, apperrors.Wrap(apperrors.CodeInternal, err, "panic"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
