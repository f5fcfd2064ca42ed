package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/promotion-engine/internal/domain"
	"github.com/utafrali/promotion-engine/internal/repository"
	"github.com/utafrali/promotion-engine/internal/service"
	"github.com/utafrali/promotion-engine/pkg/validator"
)

// RedemptionHandler handles HTTP requests for evaluation and redemption
// endpoints.
type RedemptionHandler struct {
	service *service.RedemptionService
	logger  *slog.Logger
}

// NewRedemptionHandler creates a new redemption HTTP handler.
func NewRedemptionHandler(svc *service.RedemptionService, logger *slog.Logger) *RedemptionHandler {
	return &RedemptionHandler{
		service: svc,
		logger:  logger,
	}
}

// LineItemRequest is a single order line in an evaluation or redemption
// request.
type LineItemRequest struct {
	ProductID           string `json:"product_id" validate:"required"`
	CategoryID          string `json:"category_id"`
	CollectionID        string `json:"collection_id"`
	UnitPrice           int64  `json:"unit_price" validate:"gte=0"`
	Quantity            int    `json:"quantity" validate:"required,gt=0"`
	IsAlreadyDiscounted bool   `json:"is_already_discounted"`
}

// EvaluateOrderRequest is the JSON request body for evaluating an order
// against the promotion catalog.
type EvaluateOrderRequest struct {
	CustomerID  string            `json:"customer_id" validate:"required"`
	Segment     string            `json:"segment"`
	Code        string            `json:"code" validate:"max=50"`
	PromotionID string            `json:"promotion_id"`
	Subtotal    int64             `json:"subtotal" validate:"required,gt=0"`
	Items       []LineItemRequest `json:"items" validate:"required,min=1,dive"`
}

// RedeemRequest is the JSON request body for recording a redemption. A code
// or a promotion id pins the candidate; with neither, the best auto-applicable
// promotion wins.
type RedeemRequest struct {
	OrderID     string            `json:"order_id" validate:"required"`
	CustomerID  string            `json:"customer_id" validate:"required"`
	Segment     string            `json:"segment"`
	Code        string            `json:"code" validate:"max=50"`
	PromotionID string            `json:"promotion_id"`
	Subtotal    int64             `json:"subtotal" validate:"required,gt=0"`
	Items       []LineItemRequest `json:"items" validate:"required,min=1,dive"`
}

// RedeemResponse pairs the recorded redemption with the evaluation that
// produced it.
type RedeemResponse struct {
	Redemption *domain.Redemption        `json:"redemption"`
	Evaluation *service.EvaluationResult `json:"evaluation"`
}

// Evaluate handles POST /api/v1/evaluations
func (h *RedemptionHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req EvaluateOrderRequest
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

	order := &domain.OrderContext{
		CustomerID:  req.CustomerID,
		Segment:     req.Segment,
		Code:        req.Code,
		PromotionID: req.PromotionID,
		Subtotal:    req.Subtotal,
		Items:       lineItemsFromRequest(req.Items),
	}

	result, err := h.service.Evaluate(r.Context(), order)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: result})
}

// Redeem handles POST /api/v1/redemptions
func (h *RedemptionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req RedeemRequest
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

	order := &domain.OrderContext{
		OrderID:     req.OrderID,
		CustomerID:  req.CustomerID,
		Segment:     req.Segment,
		Code:        req.Code,
		PromotionID: req.PromotionID,
		Subtotal:    req.Subtotal,
		Items:       lineItemsFromRequest(req.Items),
	}

	redemption, result, err := h.service.Redeem(r.Context(), &service.RedeemInput{Order: order})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: RedeemResponse{
		Redemption: redemption,
		Evaluation: result,
	}})
}

// GetRedemption handles GET /api/v1/redemptions/{id}
func (h *RedemptionHandler) GetRedemption(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "redemption id is required"},
		})
		return
	}

	redemption, err := h.service.GetRedemption(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: redemption})
}

// ListRedemptions handles GET /api/v1/redemptions
func (h *RedemptionHandler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	filter := repository.RedemptionFilter{
		Page:    1,
		PerPage: 20,
	}

	if v := r.URL.Query().Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil && page > 0 {
			filter.Page = page
		}
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		if perPage, err := strconv.Atoi(v); err == nil && perPage > 0 && perPage <= 100 {
			filter.PerPage = perPage
		}
	}
	if v := r.URL.Query().Get("promotion_id"); v != "" {
		filter.PromotionID = &v
	}
	if v := r.URL.Query().Get("customer_id"); v != "" {
		filter.CustomerID = &v
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "from must be in RFC3339 format"},
			})
			return
		}
		filter.From = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "to must be in RFC3339 format"},
			})
			return
		}
		filter.To = &t
	}

	redemptions, total, err := h.service.ListRedemptions(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	totalPages := total / filter.PerPage
	if total%filter.PerPage > 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, listResponse{
		Data:       redemptions,
		TotalCount: total,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		TotalPages: totalPages,
	})
}

// VoidRedemption handles POST /api/v1/redemptions/{id}/void
func (h *RedemptionHandler) VoidRedemption(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "redemption id is required"},
		})
		return
	}

	redemption, err := h.service.Void(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: redemption})
}

func lineItemsFromRequest(items []LineItemRequest) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.LineItem{
			ProductID:           item.ProductID,
			CategoryID:          item.CategoryID,
			CollectionID:        item.CollectionID,
			UnitPrice:           item.UnitPrice,
			Quantity:            item.Quantity,
			IsAlreadyDiscounted: item.IsAlreadyDiscounted,
		})
	}
	return out
}
