package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/digital-fulfillment/api/controllers"
	"github.com/angelmondragon/digital-fulfillment/api/middleware"
	"github.com/angelmondragon/digital-fulfillment/internal/admin"
	"github.com/angelmondragon/digital-fulfillment/internal/events"
	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
	"github.com/angelmondragon/digital-fulfillment/pkg/redis"
)

// RouterParams carries everything the HTTP surface is wired to. Redis is
// optional: without it login is not rate limited and readiness skips it.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    *redis.Client
	Ingestor *events.Ingestor
	Admin    admin.Service
	Gatherer prometheus.Gatherer
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	var redisPinger controllers.Pinger
	if p.Redis != nil {
		redisPinger = p.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": redisPinger,
		}))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	name := cfg.Marketplace.NotificationName
	r.Route("/api/v1/marketplace", func(r chi.Router) {
		r.Get("/notification", controllers.MarketplacePing(name))
		r.Post("/notification", controllers.MarketplaceNotification(name, p.Ingestor, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.Admin.CORSOrigins))

		loginLimit := middleware.LoginRateLimit("admin-login", cfg.Admin.LoginWindow, cfg.Admin.LoginIPLimit, limiterFor(p.Redis), logg)
		r.With(loginLimit).Post("/auth/login", controllers.AdminLogin(p.Admin, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.Admin, logg))
			r.Get("/stock", controllers.AdminStock(p.Admin, logg))
			r.Get("/delivery-logs", controllers.AdminDeliveryLogs(p.Admin, logg))
			r.Get("/products", controllers.AdminListProducts(p.Admin, logg))
			r.Post("/products", controllers.AdminCreateProduct(p.Admin, logg))
			r.Post("/products/{productID}/codes", controllers.AdminAddCodes(p.Admin, logg))
			r.Get("/offers", controllers.AdminListOffers(p.Admin, logg))
			r.Post("/offers", controllers.AdminCreateOffer(p.Admin, logg))
		})
	})

	return r
}

// limiterFor keeps a nil client from becoming a non-nil interface.
func limiterFor(client *redis.Client) middleware.WindowLimiter {
	if client == nil {
		return nil
	}
	return client
}
