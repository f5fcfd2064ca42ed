package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/promotion-engine/internal/domain"
	"github.com/utafrali/promotion-engine/internal/repository"
	"github.com/utafrali/promotion-engine/internal/service"
	apperrors "github.com/utafrali/promotion-engine/pkg/errors"
	"github.com/utafrali/promotion-engine/pkg/validator"
)

// PromotionHandler handles HTTP requests for promotion catalog endpoints.
type PromotionHandler struct {
	service *service.CatalogService
	logger  *slog.Logger
}

// NewPromotionHandler creates a new promotion HTTP handler.
func NewPromotionHandler(svc *service.CatalogService, logger *slog.Logger) *PromotionHandler {
	return &PromotionHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// BuyXGetYRequest configures a buy-X-get-Y discount.
type BuyXGetYRequest struct {
	BuyQuantity           int   `json:"buy_quantity" validate:"required,gt=0"`
	GetQuantity           int   `json:"get_quantity" validate:"required,gt=0"`
	GetDiscountPercentage int64 `json:"get_discount_percentage" validate:"required,gt=0,lte=100"`
}

// CreatePromotionRequest is the JSON request body for creating a promotion.
type CreatePromotionRequest struct {
	Name                   string           `json:"name" validate:"required,min=1,max=255"`
	Description            string           `json:"description"`
	Tags                   []string         `json:"tags"`
	Notes                  string           `json:"notes"`
	Type                   string           `json:"type" validate:"required,oneof=seasonal custom flash_sale"`
	DiscountType           string           `json:"discount_type" validate:"required,oneof=percentage fixed_amount buy_x_get_y"`
	DiscountValue          int64            `json:"discount_value" validate:"gte=0"`
	BuyXGetY               *BuyXGetYRequest `json:"buy_x_get_y"`
	Scope                  string           `json:"scope" validate:"required,oneof=entire_store categories products collections customer_segments"`
	TargetCategories       []string         `json:"target_categories"`
	TargetProducts         []string         `json:"target_products"`
	TargetCollections      []string         `json:"target_collections"`
	CustomerSegment        string           `json:"customer_segment"`
	UsageLimit             *int             `json:"usage_limit" validate:"omitempty,gt=0"`
	UsageLimitPerCustomer  *int             `json:"usage_limit_per_customer" validate:"omitempty,gt=0"`
	MinimumPurchaseAmount  *int64           `json:"minimum_purchase_amount" validate:"omitempty,gt=0"`
	MinimumQuantity        *int             `json:"minimum_quantity" validate:"omitempty,gt=0"`
	ExcludedCategories     []string         `json:"excluded_categories"`
	ExcludedProducts       []string         `json:"excluded_products"`
	ExcludedCollections    []string         `json:"excluded_collections"`
	ExcludeDiscountedItems bool             `json:"exclude_discounted_items"`
	StartsAt               *string          `json:"starts_at"`
	EndsAt                 *string          `json:"ends_at"`
	IsActive               bool             `json:"is_active"`
	IsScheduled            bool             `json:"is_scheduled"`
}

// UpdatePromotionRequest is the JSON request body for partially updating a
// promotion. Absent fields are left untouched.
type UpdatePromotionRequest struct {
	Name                   *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Description            *string          `json:"description"`
	Tags                   []string         `json:"tags"`
	Notes                  *string          `json:"notes"`
	Type                   *string          `json:"type" validate:"omitempty,oneof=seasonal custom flash_sale"`
	DiscountType           *string          `json:"discount_type" validate:"omitempty,oneof=percentage fixed_amount buy_x_get_y"`
	DiscountValue          *int64           `json:"discount_value" validate:"omitempty,gte=0"`
	BuyXGetY               *BuyXGetYRequest `json:"buy_x_get_y"`
	Scope                  *string          `json:"scope" validate:"omitempty,oneof=entire_store categories products collections customer_segments"`
	TargetCategories       []string         `json:"target_categories"`
	TargetProducts         []string         `json:"target_products"`
	TargetCollections      []string         `json:"target_collections"`
	CustomerSegment        *string          `json:"customer_segment"`
	UsageLimit             *int             `json:"usage_limit" validate:"omitempty,gt=0"`
	UsageLimitPerCustomer  *int             `json:"usage_limit_per_customer" validate:"omitempty,gt=0"`
	MinimumPurchaseAmount  *int64           `json:"minimum_purchase_amount" validate:"omitempty,gt=0"`
	MinimumQuantity        *int             `json:"minimum_quantity" validate:"omitempty,gt=0"`
	ExcludedCategories     []string         `json:"excluded_categories"`
	ExcludedProducts       []string         `json:"excluded_products"`
	ExcludedCollections    []string         `json:"excluded_collections"`
	ExcludeDiscountedItems *bool            `json:"exclude_discounted_items"`
	StartsAt               *string          `json:"starts_at"`
	EndsAt                 *string          `json:"ends_at"`
	IsActive               *bool            `json:"is_active"`
	IsScheduled            *bool            `json:"is_scheduled"`
}

// CreateCodeRequest is the JSON request body for attaching a code to a promotion.
type CreateCodeRequest struct {
	Code       string `json:"code" validate:"required,min=1,max=50"`
	IsPublic   bool   `json:"is_public"`
	UsageLimit *int   `json:"usage_limit" validate:"omitempty,gt=0"`
	IsActive   bool   `json:"is_active"`
}

// SetCodeActiveRequest is the JSON request body for toggling a code.
type SetCodeActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// --- Handlers ---

// CreatePromotion handles POST /api/v1/promotions
func (h *PromotionHandler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req CreatePromotionRequest
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

	startsAt, err := parseOptionalTime(req.StartsAt, "starts_at")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	endsAt, err := parseOptionalTime(req.EndsAt, "ends_at")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	input := &service.CreatePromotionInput{
		Name:                   req.Name,
		Description:            req.Description,
		Tags:                   req.Tags,
		Notes:                  req.Notes,
		Type:                   req.Type,
		DiscountType:           req.DiscountType,
		DiscountValue:          req.DiscountValue,
		BuyXGetY:               buyXGetYFromRequest(req.BuyXGetY),
		Scope:                  req.Scope,
		TargetCategories:       req.TargetCategories,
		TargetProducts:         req.TargetProducts,
		TargetCollections:      req.TargetCollections,
		CustomerSegment:        req.CustomerSegment,
		UsageLimit:             req.UsageLimit,
		UsageLimitPerCustomer:  req.UsageLimitPerCustomer,
		MinimumPurchaseAmount:  req.MinimumPurchaseAmount,
		MinimumQuantity:        req.MinimumQuantity,
		ExcludedCategories:     req.ExcludedCategories,
		ExcludedProducts:       req.ExcludedProducts,
		ExcludedCollections:    req.ExcludedCollections,
		ExcludeDiscountedItems: req.ExcludeDiscountedItems,
		StartsAt:               startsAt,
		EndsAt:                 endsAt,
		IsActive:               req.IsActive,
		IsScheduled:            req.IsScheduled,
	}

	promotion, err := h.service.CreatePromotion(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: promotion})
}

// ListPromotions handles GET /api/v1/promotions
func (h *PromotionHandler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	filter := repository.PromotionFilter{
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
	if v := r.URL.Query().Get("is_active"); v != "" {
		if active, err := strconv.ParseBool(v); err == nil {
			filter.IsActive = &active
		}
	}
	if v := r.URL.Query().Get("type"); v != "" {
		filter.Type = &v
	}
	if v := r.URL.Query().Get("search"); v != "" {
		filter.Search = &v
	}

	promotions, total, err := h.service.ListPromotions(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	totalPages := total / filter.PerPage
	if total%filter.PerPage > 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, listResponse{
		Data:       promotions,
		TotalCount: total,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		TotalPages: totalPages,
	})
}

// GetPromotion handles GET /api/v1/promotions/{id}
func (h *PromotionHandler) GetPromotion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "promotion id is required"},
		})
		return
	}

	promotion, err := h.service.GetPromotion(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: promotion})
}

// UpdatePromotion handles PUT /api/v1/promotions/{id}
func (h *PromotionHandler) UpdatePromotion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "promotion id is required"},
		})
		return
	}

	var req UpdatePromotionRequest
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

	startsAt, err := parseOptionalTime(req.StartsAt, "starts_at")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	endsAt, err := parseOptionalTime(req.EndsAt, "ends_at")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	input := &service.UpdatePromotionInput{
		Name:                   req.Name,
		Description:            req.Description,
		Tags:                   req.Tags,
		Notes:                  req.Notes,
		Type:                   req.Type,
		DiscountType:           req.DiscountType,
		DiscountValue:          req.DiscountValue,
		BuyXGetY:               buyXGetYFromRequest(req.BuyXGetY),
		Scope:                  req.Scope,
		TargetCategories:       req.TargetCategories,
		TargetProducts:         req.TargetProducts,
		TargetCollections:      req.TargetCollections,
		CustomerSegment:        req.CustomerSegment,
		UsageLimit:             req.UsageLimit,
		UsageLimitPerCustomer:  req.UsageLimitPerCustomer,
		MinimumPurchaseAmount:  req.MinimumPurchaseAmount,
		MinimumQuantity:        req.MinimumQuantity,
		ExcludedCategories:     req.ExcludedCategories,
		ExcludedProducts:       req.ExcludedProducts,
		ExcludedCollections:    req.ExcludedCollections,
		ExcludeDiscountedItems: req.ExcludeDiscountedItems,
		StartsAt:               startsAt,
		EndsAt:                 endsAt,
		IsActive:               req.IsActive,
		IsScheduled:            req.IsScheduled,
	}

	promotion, err := h.service.UpdatePromotion(r.Context(), id, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: promotion})
}

// DeletePromotion handles DELETE /api/v1/promotions/{id}
func (h *PromotionHandler) DeletePromotion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "promotion id is required"},
		})
		return
	}

	if err := h.service.DeletePromotion(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]string{"id": id, "status": "deleted"}})
}

// CreateCode handles POST /api/v1/promotions/{id}/codes
func (h *PromotionHandler) CreateCode(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "promotion id is required"},
		})
		return
	}

	var req CreateCodeRequest
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

	code, err := h.service.CreateCode(r.Context(), id, &service.CreateCodeInput{
		Code:       req.Code,
		IsPublic:   req.IsPublic,
		UsageLimit: req.UsageLimit,
		IsActive:   req.IsActive,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: code})
}

// ListCodes handles GET /api/v1/promotions/{id}/codes
func (h *PromotionHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "promotion id is required"},
		})
		return
	}

	codes, err := h.service.ListCodes(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: codes})
}

// SetCodeActive handles PUT /api/v1/promotions/codes/{codeId}/active
func (h *PromotionHandler) SetCodeActive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	codeID := chi.URLParam(r, "codeId")
	if codeID == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "code id is required"},
		})
		return
	}

	var req SetCodeActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := h.service.SetCodeActive(r.Context(), codeID, req.IsActive); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]any{"id": codeID, "is_active": req.IsActive}})
}

// Activate handles POST /api/v1/promotions/{id}/activate
func (h *PromotionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate handles POST /api/v1/promotions/{id}/deactivate
func (h *PromotionHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *PromotionHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "promotion id is required"},
		})
		return
	}

	promo, err := h.service.SetActive(r.Context(), id, active)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: promo})
}

func (h *PromotionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

func buyXGetYFromRequest(req *BuyXGetYRequest) *domain.BuyXGetYConfig {
	if req == nil {
		return nil
	}
	return &domain.BuyXGetYConfig{
		BuyQuantity:           req.BuyQuantity,
		GetQuantity:           req.GetQuantity,
		GetDiscountPercentage: req.GetDiscountPercentage,
	}
}

func parseOptionalTime(value *string, field string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil, apperrors.InvalidInput(field + " must be in RFC3339 format")
	}
	return &t, nil
}

// --- Shared response helpers ---

type response struct {
	Data  any            `json:"data,omitempty"`
	Error *errorResponse `json:"error,omitempty"`
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type listResponse struct {
	Data       any `json:"data"`
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Status == http.StatusInternalServerError {
			logger.ErrorContext(r.Context(), "internal error",
				slog.String("error", err.Error()),
				slog.String("path", r.URL.Path),
			)
		}
		writeJSON(w, appErr.Status, response{
			Error: &errorResponse{Code: appErr.Code, Message: appErr.Message},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	code := "INTERNAL_ERROR"
	message := "an internal error occurred"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code = "NOT_FOUND"
		message = "resource not found"
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrAlreadyExists):
		code = "ALREADY_EXISTS"
		message = "resource already exists"
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrInvalidInput):
		code = "INVALID_INPUT"
		message = err.Error()
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
		)
	}

	writeJSON(w, status, response{
		Error: &errorResponse{Code: code, Message: message},
	})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	writeJSON(w, http.StatusBadRequest, response{
		Error: &errorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}
