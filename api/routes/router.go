package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	esewawebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/esewa"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// PaymentService is the reconciler surface the API exposes.
type PaymentService interface {
	webhookcontrollers.EsewaReconciler
	controllers.PaymentVerifier
}

// Deps carries everything the router wires into controllers.
type Deps struct {
	DB            controllers.Pinger
	Redis         *redis.Client
	Metrics       prometheus.Gatherer
	Checkout      checkoutsvc.Service
	Payments      PaymentService
	Guard         *esewawebhook.IdempotencyGuard
	Orders        ordercontrollers.OrderReader
	StatusMachine ordercontrollers.StatusTransitioner
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Storefront),
	)

	ready := map[string]controllers.Pinger{}
	if deps.DB != nil {
		ready["postgres"] = deps.DB
	}
	if deps.Redis != nil {
		ready["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, ready))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	// the gateway redirects the shopper's browser here, so no bearer token
	var guard webhookcontrollers.CallbackGuard
	if deps.Guard != nil {
		guard = deps.Guard
	}
	callback := webhookcontrollers.EsewaCallback(deps.Payments, guard, cfg.Storefront, logg)
	r.Get("/api/v1/payments/esewa/callback", callback)
	r.Post("/api/v1/payments/esewa/callback", callback)

	var idempotency redis.IdempotencyStore
	if deps.Redis != nil {
		idempotency = deps.Redis
	}
	verifyPolicy := middleware.NewRateLimitPolicy("esewa-verify", cfg.Payments.VerifyWindow, cfg.Payments.VerifyLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotency, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/cod", controllers.CheckoutCashOnDelivery(deps.Checkout, logg))
			r.Post("/esewa", controllers.CheckoutEsewa(deps.Checkout, logg))
		})

		r.With(rateLimit(verifyPolicy, deps.Redis, logg)).
			Post("/payments/esewa/verify", controllers.VerifyEsewaPayment(deps.Payments, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderNumber}", ordercontrollers.Detail(deps.Orders, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Get("/orders", ordercontrollers.AdminList(deps.Orders, logg))
			r.Put("/orders/{orderId}/status", ordercontrollers.AdminUpdateStatus(deps.StatusMachine, logg))
		})
	})

	return r
}

// a typed nil client would slip past the limiter's nil check
func rateLimit(policy middleware.RateLimitPolicy, client *redis.Client, logg *logger.Logger) func(http.Handler) http.Handler {
	if client == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(policy, client, logg)
}
