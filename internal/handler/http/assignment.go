package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/promotion-engine/internal/service"
	"github.com/utafrali/promotion-engine/pkg/validator"
)

// AssignmentHandler handles HTTP requests for promotion assignment endpoints.
type AssignmentHandler struct {
	service *service.AssignmentService
	logger  *slog.Logger
}

// NewAssignmentHandler creates a new assignment HTTP handler.
func NewAssignmentHandler(svc *service.AssignmentService, logger *slog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service: svc,
		logger:  logger,
	}
}

// AssignPromotionRequest is the JSON request body for assigning a promotion
// to a customer.
type AssignPromotionRequest struct {
	PromotionID string  `json:"promotion_id" validate:"required"`
	CustomerID  string  `json:"customer_id" validate:"required"`
	Type        string  `json:"type" validate:"required,oneof=permanent temporary"`
	ExpiresAt   *string `json:"expires_at"`
}

// Assign handles POST /api/v1/assignments
func (h *AssignmentHandler) Assign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req AssignPromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	expiresAt, err := parseOptionalTime(req.ExpiresAt, "expires_at")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	assignment, err := h.service.Assign(r.Context(), &service.AssignInput{
		PromotionID: req.PromotionID,
		CustomerID:  req.CustomerID,
		Type:        req.Type,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: assignment})
}

// BulkAssignRequest is the JSON request body for granting a promotion to a
// whole segment or to a batch of customers.
type BulkAssignRequest struct {
	Segment     string   `json:"segment"`
	CustomerIDs []string `json:"customer_ids"`
	Type        string   `json:"type" validate:"omitempty,oneof=permanent temporary"`
	ExpiresAt   *string  `json:"expires_at"`
}

// BulkAssign handles POST /api/v1/promotions/{id}/assignments
func (h *AssignmentHandler) BulkAssign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	promotionID := chi.URLParam(r, "id")
	if promotionID == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "promotion id is required"},
		})
		return
	}

	var req BulkAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	expiresAt, err := parseOptionalTime(req.ExpiresAt, "expires_at")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	assignType := req.Type
	if assignType == "" {
		assignType = "permanent"
	}

	result, err := h.service.BulkAssign(r.Context(), promotionID, &service.BulkAssignInput{
		Segment:     req.Segment,
		CustomerIDs: req.CustomerIDs,
		Type:        assignType,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: result})
}

// ListByCustomer handles GET /api/v1/customers/{customerId}/assignments
func (h *AssignmentHandler) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerId")
	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "customer id is required"},
		})
		return
	}

	assignments, err := h.service.ListByCustomer(r.Context(), customerID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: assignments})
}

// ListByPromotion handles GET /api/v1/promotions/{id}/assignments
func (h *AssignmentHandler) ListByPromotion(w http.ResponseWriter, r *http.Request) {
	promotionID := chi.URLParam(r, "id")
	if promotionID == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "promotion id is required"},
		})
		return
	}

	assignments, err := h.service.ListByPromotion(r.Context(), promotionID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: assignments})
}

// Revoke handles DELETE /api/v1/assignments/{id}
func (h *AssignmentHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "assignment id is required"},
		})
		return
	}

	if err := h.service.Revoke(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]string{"id": id, "status": "revoked"}})
}
