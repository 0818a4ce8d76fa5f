package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/molimor/molimor-backend/api/controllers"
	notificationcontrollers "github.com/molimor/molimor-backend/api/controllers/notifications"
	ordercontrollers "github.com/molimor/molimor-backend/api/controllers/orders"
	"github.com/molimor/molimor-backend/api/middleware"
	"github.com/molimor/molimor-backend/internal/notifications"
	"github.com/molimor/molimor-backend/internal/orders"
	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/db"
	"github.com/molimor/molimor-backend/pkg/enums"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/redis"
	"github.com/molimor/molimor-backend/pkg/telemetry"
)

// RedisStore is the Redis surface the HTTP layer needs: replay storage and a ping.
type RedisStore interface {
	redis.IdempotencyStore
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisStore RedisStore,
	ordersSvc orders.Service,
	notificationsSvc notifications.Service,
	resender ordercontrollers.InvoiceResender,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var redisPinger controllers.Dependency
	if redisStore != nil {
		redisPinger = controllers.Dependency{Name: "redis", Pinger: redisStore}
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, controllers.Dependency{Name: "db", Pinger: dbP}, redisPinger))
	})
	r.Handle("/metrics", promhttp.Handler())

	var idempotencyStore redis.IdempotencyStore
	if redisStore != nil {
		idempotencyStore = redisStore
	}

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Method(http.MethodPost, "/", traced("/api/v1/orders", ordercontrollers.Place(ordersSvc, logg)))
		r.Method(http.MethodGet, "/", traced("/api/v1/orders", ordercontrollers.ListMine(ordersSvc, logg)))
		r.Method(http.MethodGet, "/{orderId}", traced("/api/v1/orders/{orderId}", ordercontrollers.Detail(ordersSvc, logg)))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Method(http.MethodGet, "/", traced("/api/admin/v1/orders", ordercontrollers.AdminList(ordersSvc, logg)))
			r.Method(http.MethodPost, "/{orderId}/resend-invoice", traced("/api/admin/v1/orders/{orderId}/resend-invoice", ordercontrollers.ResendInvoice(resender, logg)))
		})
		r.Route("/order-notifications", func(r chi.Router) {
			r.Method(http.MethodGet, "/", traced("/api/admin/v1/order-notifications", notificationcontrollers.ListPending(notificationsSvc, logg)))
			r.Method(http.MethodDelete, "/", traced("/api/admin/v1/order-notifications", notificationcontrollers.Delete(notificationsSvc, logg)))
		})
	})

	return otelhttp.NewHandler(r, "molimor-api",
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != "/metrics" && req.URL.Path != "/health/live"
		}),
	)
}

func traced(route string, h http.HandlerFunc) http.Handler {
	return telemetry.WithHTTPRoute(route, h)
}
