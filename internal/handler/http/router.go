package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/promotion-engine/internal/service"
	"github.com/utafrali/promotion-engine/pkg/health"
	"github.com/utafrali/promotion-engine/pkg/middleware"
)

// RouterDeps bundles everything the HTTP router needs.
type RouterDeps struct {
	Catalog     *service.CatalogService
	Assignments *service.AssignmentService
	Redemptions *service.RedemptionService
	Analytics   *service.AnalyticsService
	Health      *health.Handler
	CORS        middleware.CORSConfig
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all promotion engine routes registered.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(deps.CORS))
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(deps.Logger))
	r.Use(middleware.PrometheusMetrics("promotion-engine"))

	// Health check endpoints
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	promotionHandler := NewPromotionHandler(deps.Catalog, deps.Logger)
	assignmentHandler := NewAssignmentHandler(deps.Assignments, deps.Logger)
	redemptionHandler := NewRedemptionHandler(deps.Redemptions, deps.Logger)
	analyticsHandler := NewAnalyticsHandler(deps.Analytics, deps.Logger)

	r.Route("/api/v1/promotions", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", promotionHandler.CreatePromotion)
		r.Get("/", promotionHandler.ListPromotions)

		// Code toggle endpoint (must come before /{id} to avoid conflict).
		r.Put("/codes/{codeId}/active", promotionHandler.SetCodeActive)

		r.Get("/{id}", promotionHandler.GetPromotion)
		r.Put("/{id}", promotionHandler.UpdatePromotion)
		r.Delete("/{id}", promotionHandler.DeletePromotion)
		r.Post("/{id}/activate", promotionHandler.Activate)
		r.Post("/{id}/deactivate", promotionHandler.Deactivate)
		r.Post("/{id}/codes", promotionHandler.CreateCode)
		r.Get("/{id}/codes", promotionHandler.ListCodes)
		r.Post("/{id}/assignments", assignmentHandler.BulkAssign)
		r.Get("/{id}/assignments", assignmentHandler.ListByPromotion)
	})

	r.Route("/api/v1/assignments", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", assignmentHandler.Assign)
		r.Delete("/{id}", assignmentHandler.Revoke)
	})

	r.Get("/api/v1/customers/{customerId}/assignments", assignmentHandler.ListByCustomer)

	r.Route("/api/v1/evaluations", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", redemptionHandler.Evaluate)
	})

	r.Route("/api/v1/redemptions", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", redemptionHandler.Redeem)
		r.Get("/", redemptionHandler.ListRedemptions)
		r.Get("/{id}", redemptionHandler.GetRedemption)
		r.Post("/{id}/void", redemptionHandler.VoidRedemption)
	})

	r.Route("/api/v1/analytics", func(r chi.Router) {
		r.Get("/promotions", analyticsHandler.AllPromotionStats)
		r.Get("/promotions/{id}", analyticsHandler.PromotionStats)
		r.Get("/daily", analyticsHandler.DailyStats)
	})

	return r
}
