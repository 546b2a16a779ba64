package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// quietPaths are polled by health checks and scrapers and only logged at debug.
var quietPaths = map[string]bool{
	"/health/live":  true,
	"/health/ready": true,
	"/metrics":      true,
}

// Logging writes request.start and request.complete lines. The completion
// line carries the matched route and whichever order, batch or stock key ids
// the route bound, so a request can be joined with the allocation and
// fulfillment logs it caused. Server errors are logged at warn.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if logg == nil {
				next.ServeHTTP(w, r)
				return
			}
			quiet := quietPaths[r.URL.Path]
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			if !quiet {
				logg.Info(ctx, "request.start")
			}

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			ctx = withRouteFields(ctx, logg, r)
			ctx = logg.WithFields(ctx, map[string]any{
				"status":      rec.status,
				"bytes":       rec.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			switch {
			case quiet:
				logg.Debug(ctx, "request.complete")
			case rec.status >= http.StatusInternalServerError:
				logg.Warn(ctx, "request.complete")
			default:
				logg.Info(ctx, "request.complete")
			}
		})
	}
}

// withRouteFields reads the chi route context after routing has run; the
// pattern and URL params are only filled in once a handler matched.
func withRouteFields(ctx context.Context, logg *logger.Logger, r *http.Request) context.Context {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ctx
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		ctx = logg.WithField(ctx, "route", pattern)
	}
	if orderID := rctx.URLParam("orderId"); orderID != "" {
		ctx = logg.WithOrderID(ctx, orderID)
	}
	if batchID := rctx.URLParam("batchId"); batchID != "" {
		ctx = logg.WithField(ctx, "stock_entry_id", batchID)
	}
	if productID := rctx.URLParam("productId"); productID != "" {
		ctx = logg.WithStockKey(ctx, productID, rctx.URLParam("combinationId"))
	} else if combinationID := rctx.URLParam("combinationId"); combinationID != "" {
		ctx = logg.WithField(ctx, "variant_combination_id", combinationID)
	}
	return ctx
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}
