package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storelane/storelane-backend/api/controllers"
	webhookcontrollers "github.com/storelane/storelane-backend/api/controllers/webhooks"
	"github.com/storelane/storelane-backend/api/middleware"
	checkoutsvc "github.com/storelane/storelane-backend/internal/checkout"
	"github.com/storelane/storelane-backend/internal/orders"
	"github.com/storelane/storelane-backend/internal/payments"
	subscriptionsvc "github.com/storelane/storelane-backend/internal/subscriptions"
	"github.com/storelane/storelane-backend/pkg/config"
	"github.com/storelane/storelane-backend/pkg/logger"
	"github.com/storelane/storelane-backend/pkg/redis"
)

// RouterParams carry everything the HTTP surface depends on.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Redis         *redis.Client
	Checkout      checkoutsvc.Service
	Orders        orders.Service
	Reconciler    payments.Reconciler
	WebhookGuard  *payments.WebhookGuard
	Subscriptions subscriptionsvc.Service
	Metrics       prometheus.Gatherer
}

// NewRouter wires the storefront, owner, and webhook surfaces.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, p.DB, p.Redis))
	})

	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(p.Reconciler, p.WebhookGuard, p.Logger))
	})

	// Buyer-facing storefront surface; no authentication, tenant scoped by
	// path.
	r.Route("/api/v1/storefront/{tenantId}", func(r chi.Router) {
		r.Post("/checkout", controllers.Checkout(p.Checkout, p.Logger))
		r.Post("/orders/{orderId}/pay", controllers.InitiatePayment(p.Checkout, p.Logger))
		r.Get("/orders/{orderNumber}/status", controllers.OrderStatus(p.Orders, p.Logger))
		r.Post("/payments/reconcile", controllers.ReconcilePoll(p.Reconciler, p.Logger))
	})

	// Tenant-owner surface.
	r.Route("/api/v1/owner", func(r chi.Router) {
		r.Use(middleware.Auth(p.Config.JWT, p.Logger))
		r.Get("/orders", controllers.ListOrders(p.Orders, p.Logger))
		r.Post("/orders/{orderId}/refund", controllers.Refund(p.Reconciler, p.Logger))
		r.Route("/subscription", func(r chi.Router) {
			r.Get("/", controllers.SubscriptionFetch(p.Subscriptions, p.Logger))
			r.Get("/entitlement", controllers.SubscriptionEntitlement(p.Subscriptions, p.Logger))
			r.Post("/cancel", controllers.SubscriptionCancel(p.Subscriptions, p.Logger))
			r.Post("/reactivate", controllers.SubscriptionReactivate(p.Subscriptions, p.Logger))
		})
	})

	return r
}
