package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/deliverydesk-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/deliverydesk-backend/api/controllers/webhooks"
	"github.com/angelmondragon/deliverydesk-backend/api/middleware"
	"github.com/angelmondragon/deliverydesk-backend/internal/orders"
	"github.com/angelmondragon/deliverydesk-backend/internal/payments"
	"github.com/angelmondragon/deliverydesk-backend/internal/pricing"
	"github.com/angelmondragon/deliverydesk-backend/internal/profiles"
	"github.com/angelmondragon/deliverydesk-backend/internal/promotions"
	"github.com/angelmondragon/deliverydesk-backend/internal/wallet"
	"github.com/angelmondragon/deliverydesk-backend/pkg/config"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/maps"
	"github.com/angelmondragon/deliverydesk-backend/pkg/redis"
)

// Dependencies are the collaborators mounted by NewRouter. Redis, the maps
// client, the webhook guard and the metrics handler are optional.
type Dependencies struct {
	DB             controllers.Pinger
	Redis          *redis.Client
	Maps           *maps.Client
	Profiles       profiles.Service
	Orders         orders.Service
	Wallet         wallet.Service
	Payments       payments.Service
	Pricing        pricing.Service
	Promotions     promotions.Service
	WebhookGuard   *payments.WebhookGuard
	PaystackSecret string
	Metrics        http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(),
		middleware.Preflight,
		middleware.Logging(logg),
	)

	// typed nils would defeat the nil checks in the handlers
	var redisPinger controllers.Pinger
	var limiter middleware.RateLimiterStore
	if deps.Redis != nil {
		redisPinger = deps.Redis
		limiter = deps.Redis
	}

	distancePolicy := middleware.NewRateLimitPolicy(
		"distance",
		cfg.RateLimit.DistanceWindow,
		cfg.RateLimit.DistanceLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, redisPinger))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Post("/paystack-webhook", webhookcontrollers.PaystackWebhook(deps.Payments, deps.PaystackSecret, deps.WebhookGuard, logg))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.Redis != nil {
			r.Use(middleware.Idempotency(deps.Redis, logg))
		}

		r.Post("/initialize-payment", controllers.InitializePayment(deps.Payments, logg))
		r.Get("/verify-payment", controllers.VerifyPayment(deps.Payments, logg))
		r.Post("/create-virtual-account", controllers.CreateVirtualAccount(deps.Payments, logg))

		r.With(middleware.RateLimit(distancePolicy, limiter, logg)).
			Post("/calculate-distance", controllers.CalculateDistance(deps.Maps, logg))
		r.Post("/calculate-delivery-fee", controllers.CalculateDeliveryFee(deps.Pricing, logg))

		r.Get("/wallet", controllers.WalletSummary(deps.Wallet, logg))
		r.Post("/wallet/pay-order", controllers.WalletPayOrder(deps.Orders, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(deps.Profiles, logg))

			r.Get("/admin-orders", controllers.AdminOrdersList(deps.Orders, logg))
			r.Put("/admin-orders", controllers.AdminOrderUpdate(deps.Orders, logg))
			r.Delete("/admin-orders", controllers.AdminOrderDelete(deps.Orders, logg))

			r.Route("/admin", func(r chi.Router) {
				r.Route("/delivery-zones", func(r chi.Router) {
					r.Get("/", controllers.AdminZonesList(deps.Pricing, logg))
					r.Post("/", controllers.AdminZoneCreate(deps.Pricing, logg))
					r.Put("/{zoneId}", controllers.AdminZoneUpdate(deps.Pricing, logg))
					r.Delete("/{zoneId}", controllers.AdminZoneDelete(deps.Pricing, logg))
				})
				r.Get("/delivery-pricing", controllers.AdminPricingGet(deps.Pricing, logg))
				r.Put("/delivery-pricing", controllers.AdminPricingUpdate(deps.Pricing, logg))
				r.Get("/delivery-logs", controllers.AdminDeliveryLogs(deps.Pricing, logg))
				r.Post("/delivery-adjustments", controllers.AdminDeliveryAdjustment(deps.Pricing, logg))

				r.Route("/promotions", func(r chi.Router) {
					r.Get("/", controllers.AdminPromotionsList(deps.Promotions, logg))
					r.Post("/", controllers.AdminPromotionCreate(deps.Promotions, logg))
					r.Post("/{promotionId}/active", controllers.AdminPromotionSetActive(deps.Promotions, logg))
				})

				r.Get("/wallets/{userId}/reconcile", controllers.AdminWalletReconcile(deps.Wallet, logg))
			})
		})
	})

	return r
}
