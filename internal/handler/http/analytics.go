package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/promotion-engine/internal/service"
)

// AnalyticsHandler handles HTTP requests for promotion analytics endpoints.
type AnalyticsHandler struct {
	service *service.AnalyticsService
	logger  *slog.Logger
}

// NewAnalyticsHandler creates a new analytics HTTP handler.
func NewAnalyticsHandler(svc *service.AnalyticsService, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: svc,
		logger:  logger,
	}
}

// PromotionStats handles GET /api/v1/analytics/promotions/{id}
func (h *AnalyticsHandler) PromotionStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "promotion id is required"},
		})
		return
	}

	stats, err := h.service.PromotionStats(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: stats})
}

// AllPromotionStats handles GET /api/v1/analytics/promotions
func (h *AnalyticsHandler) AllPromotionStats(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseStatsRange(w, r)
	if !ok {
		return
	}

	stats, err := h.service.AllPromotionStats(r.Context(), from, to)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: stats})
}

// DailyStats handles GET /api/v1/analytics/daily
func (h *AnalyticsHandler) DailyStats(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseStatsRange(w, r)
	if !ok {
		return
	}

	stats, err := h.service.DailyStats(r.Context(), from, to)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: stats})
}

// parseStatsRange reads the optional from/to query parameters. On a malformed
// value it writes the error response itself and reports ok=false.
func parseStatsRange(w http.ResponseWriter, r *http.Request) (from, to *time.Time, ok bool) {
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "from must be in RFC3339 format"},
			})
			return nil, nil, false
		}
		from = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "to must be in RFC3339 format"},
			})
			return nil, nil, false
		}
		to = &t
	}
	return from, to, true
}
