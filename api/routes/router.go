package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/availability"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// RedisStore is the redis surface the HTTP layer needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient RedisStore,
	gatherer prometheus.Gatherer,
	catalogService catalog.Service,
	ledger stock.Ledger,
	availabilityService availability.Service,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
	deadLetters controllers.DeadLetterLister,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.RateLimit.CheckoutWindow, cfg.RateLimit.CheckoutLimit)
	availabilityPolicy := middleware.NewRateLimitPolicy("availability", cfg.RateLimit.AvailabilityWindow, cfg.RateLimit.AvailabilityLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/products/{productId}", func(r chi.Router) {
		r.Get("/", controllers.GetProduct(catalogService, logg))
		r.Get("/variant-options", controllers.VariantOptions(catalogService, logg))
	})

	r.Route("/api/availability", func(r chi.Router) {
		r.Use(middleware.RateLimit(availabilityPolicy, redisClient, logg))
		r.Get("/", controllers.Availability(availabilityService, logg))
		r.Post("/check", controllers.AvailabilityCheck(availabilityService, logg))
	})

	r.Route("/api/payments", func(r chi.Router) {
		r.Use(middleware.SharedSecret(middleware.PaymentSecretHeader, cfg.Payments.CallbackSecret, logg))
		r.Use(middleware.Idempotency(redisClient, logg))
		r.Post("/result", controllers.PaymentResult(ordersService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.With(middleware.RateLimit(checkoutPolicy, redisClient, logg)).
			Post("/checkout", controllers.Checkout(checkoutService, logg))
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(ordersService, logg))
			r.Get("/{orderId}", controllers.GetOrder(ordersService, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(ordersService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/products", func(r chi.Router) {
			r.Post("/", controllers.AdminCreateProduct(catalogService, logg))
			r.Patch("/{productId}", controllers.AdminUpdateProduct(catalogService, logg))
			r.Post("/{productId}/axes", controllers.AdminAddAxis(catalogService, logg))
			r.Post("/{productId}/combinations", controllers.AdminAddCombination(catalogService, logg))
		})
		r.Route("/axes/{axisId}", func(r chi.Router) {
			r.Patch("/", controllers.AdminRenameAxis(catalogService, logg))
			r.Post("/options", controllers.AdminAddOption(catalogService, logg))
			r.Post("/options/rename", controllers.AdminRenameOption(catalogService, logg))
			r.Post("/options/remove", controllers.AdminRemoveOption(catalogService, logg))
		})
		r.Route("/combinations/{combinationId}", func(r chi.Router) {
			r.Patch("/", controllers.AdminUpdateCombination(catalogService, logg))
			r.Delete("/", controllers.AdminDeleteCombination(catalogService, logg))
			r.Get("/lock", controllers.AdminCombinationLock(catalogService, logg))
		})
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", controllers.AdminListBatches(ledger, logg))
			r.Post("/", controllers.AdminCreateBatch(ledger, logg))
			r.Get("/{batchId}", controllers.AdminGetBatch(ledger, logg))
			r.Patch("/{batchId}", controllers.AdminEditBatch(ledger, logg))
			r.Delete("/{batchId}", controllers.AdminDeleteBatch(ledger, logg))
			r.Post("/{batchId}/status", controllers.AdminTransitionBatch(ledger, logg))
		})
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", controllers.AdminGetOrder(ordersService, logg))
			r.Post("/confirm", controllers.AdminConfirmOrder(ordersService, logg))
			r.Post("/status", controllers.AdminSetOrderStatus(ordersService, logg))
		})
		r.Get("/outbox/dead-letters", controllers.AdminListDeadLetters(deadLetters, logg))
	})

	return r
}
