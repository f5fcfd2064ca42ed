package http

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/promotion-engine/internal/domain"
	"github.com/utafrali/promotion-engine/internal/service"
	apperrors "github.com/utafrali/promotion-engine/pkg/errors"
)

func evaluateOrderJSON() []byte {
	req := EvaluateOrderRequest{
		CustomerID: "cust-001",
		Subtotal:   10000,
		Items: []LineItemRequest{
			{ProductID: "prod-001", CategoryID: "clothing", UnitPrice: 5000, Quantity: 2},
		},
	}
	b, _ := json.Marshal(req)
	return b
}

func redeemOrderJSON() []byte {
	req := RedeemRequest{
		OrderID:    "order-001",
		CustomerID: "cust-001",
		Subtotal:   10000,
		Items: []LineItemRequest{
			{ProductID: "prod-001", CategoryID: "clothing", UnitPrice: 5000, Quantity: 2},
		},
	}
	b, _ := json.Marshal(req)
	return b
}

// ============================================================================
// POST /api/v1/evaluations
// ============================================================================

func TestEvaluate_EligiblePromotion(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	promos.On("FindAutoApplicable", mock.Anything, "cust-001", mock.AnythingOfType("time.Time")).
		Return([]domain.Promotion{*samplePromotion()}, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/evaluations", evaluateOrderJSON())

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	var result service.EvaluationResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.True(t, result.Eligible)
	assert.Equal(t, int64(2000), result.DiscountAmount)
	assert.Equal(t, int64(8000), result.FinalAmount)
}

func TestEvaluate_RequestedPromotion(t *testing.T) {
	promos := new(mockPromotionRepository)
	assigns := new(mockAssignmentRepository)
	router := setupRouter(promos, assigns, new(mockRedemptionRepository))

	p := samplePromotion()
	promos.On("GetByID", mock.Anything, p.ID).Return(p, nil)
	promos.On("ListCodes", mock.Anything, p.ID).Return([]domain.PromotionCode{}, nil)
	assigns.On("GetActive", mock.Anything, p.ID, "cust-001", mock.AnythingOfType("time.Time")).
		Return(nil, apperrors.ErrNotFound)
	assigns.On("HasActive", mock.Anything, p.ID).Return(false, nil)

	req := EvaluateOrderRequest{
		CustomerID:  "cust-001",
		PromotionID: p.ID,
		Subtotal:    10000,
		Items: []LineItemRequest{
			{ProductID: "prod-001", CategoryID: "clothing", UnitPrice: 5000, Quantity: 2},
		},
	}
	body, _ := json.Marshal(req)

	rec := doJSON(router, http.MethodPost, "/api/v1/evaluations", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	var result service.EvaluationResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.True(t, result.Eligible)
	assert.Equal(t, p.ID, result.Promotion.ID)
}

func TestRedeem_RequestedPromotionNotAssigned(t *testing.T) {
	promos := new(mockPromotionRepository)
	assigns := new(mockAssignmentRepository)
	router := setupRouter(promos, assigns, new(mockRedemptionRepository))

	p := samplePromotion()
	promos.On("GetByID", mock.Anything, p.ID).Return(p, nil)
	assigns.On("GetActive", mock.Anything, p.ID, "cust-001", mock.AnythingOfType("time.Time")).
		Return(nil, apperrors.ErrNotFound)
	assigns.On("HasActive", mock.Anything, p.ID).Return(true, nil)

	req := RedeemRequest{
		OrderID:     "order-001",
		CustomerID:  "cust-001",
		PromotionID: p.ID,
		Subtotal:    10000,
		Items: []LineItemRequest{
			{ProductID: "prod-001", CategoryID: "clothing", UnitPrice: 5000, Quantity: 2},
		},
	}
	body, _ := json.Marshal(req)

	rec := doJSON(router, http.MethodPost, "/api/v1/redemptions", body)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_ELIGIBLE", resp.Error.Code)
}

func TestEvaluate_NoCandidates(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	promos.On("FindAutoApplicable", mock.Anything, "cust-001", mock.AnythingOfType("time.Time")).
		Return([]domain.Promotion{}, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/evaluations", evaluateOrderJSON())

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	var result service.EvaluationResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.False(t, result.Eligible)
}

func TestEvaluate_UnknownCode(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	promos.On("GetCodeByValue", mock.Anything, "NOPE").
		Return(nil, apperrors.NotFound("promotion code", "NOPE"))

	req := EvaluateOrderRequest{
		CustomerID: "cust-001",
		Code:       "nope",
		Subtotal:   10000,
		Items: []LineItemRequest{
			{ProductID: "prod-001", UnitPrice: 5000, Quantity: 2},
		},
	}
	b, _ := json.Marshal(req)

	rec := doJSON(router, http.MethodPost, "/api/v1/evaluations", b)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_CODE", resp.Error.Code)
}

func TestEvaluate_ValidationError_NoItems(t *testing.T) {
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), new(mockRedemptionRepository))

	body := []byte(`{"customer_id": "cust-001", "subtotal": 10000, "items": []}`)
	rec := doJSON(router, http.MethodPost, "/api/v1/evaluations", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

// ============================================================================
// POST /api/v1/redemptions
// ============================================================================

func TestRedeem_Success(t *testing.T) {
	promos := new(mockPromotionRepository)
	reds := new(mockRedemptionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), reds)

	promos.On("FindAutoApplicable", mock.Anything, "cust-001", mock.AnythingOfType("time.Time")).
		Return([]domain.Promotion{*samplePromotion()}, nil)
	reds.On("ReserveAndRecord", mock.Anything, mock.AnythingOfType("*domain.Redemption"), (*string)(nil), (*int)(nil)).
		Return(nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/redemptions", redeemOrderJSON())

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeEnvelope(t, rec)
	var result RedeemResponse
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	require.NotNil(t, result.Redemption)
	assert.Equal(t, "order-001", result.Redemption.OrderID)
	assert.Equal(t, int64(2000), result.Redemption.DiscountAmount)
	assert.Equal(t, domain.RedemptionStatusRecorded, result.Redemption.Status)
	reds.AssertExpectations(t)
}

func TestRedeem_NotEligible(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	promos.On("FindAutoApplicable", mock.Anything, "cust-001", mock.AnythingOfType("time.Time")).
		Return([]domain.Promotion{}, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/redemptions", redeemOrderJSON())

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_ELIGIBLE", resp.Error.Code)
}

func TestRedeem_DuplicateOrder(t *testing.T) {
	promos := new(mockPromotionRepository)
	reds := new(mockRedemptionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), reds)

	promos.On("FindAutoApplicable", mock.Anything, "cust-001", mock.AnythingOfType("time.Time")).
		Return([]domain.Promotion{*samplePromotion()}, nil)
	reds.On("ReserveAndRecord", mock.Anything, mock.AnythingOfType("*domain.Redemption"), (*string)(nil), (*int)(nil)).
		Return(apperrors.AlreadyExists("redemption", "order_id", "order-001"))

	rec := doJSON(router, http.MethodPost, "/api/v1/redemptions", redeemOrderJSON())

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ALREADY_EXISTS", resp.Error.Code)
}

func TestRedeem_MissingOrderID(t *testing.T) {
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), new(mockRedemptionRepository))

	body := []byte(`{"customer_id": "cust-001", "subtotal": 10000, "items": [{"product_id": "prod-001", "unit_price": 5000, "quantity": 2}]}`)
	rec := doJSON(router, http.MethodPost, "/api/v1/redemptions", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

// ============================================================================
// GET /api/v1/redemptions and /{id}
// ============================================================================

func sampleRedemption() *domain.Redemption {
	return &domain.Redemption{
		ID:             "red-001",
		PromotionID:    "550e8400-e29b-41d4-a716-446655440001",
		CustomerID:     "cust-001",
		OrderID:        "order-001",
		OrderSubtotal:  10000,
		DiscountAmount: 2000,
		Status:         domain.RedemptionStatusRecorded,
		RedeemedAt:     time.Now().UTC(),
	}
}

func TestGetRedemption_Success(t *testing.T) {
	reds := new(mockRedemptionRepository)
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), reds)

	reds.On("GetByID", mock.Anything, "red-001").Return(sampleRedemption(), nil)

	rec := doJSON(router, http.MethodGet, "/api/v1/redemptions/red-001", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	var got domain.Redemption
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, "red-001", got.ID)
}

func TestListRedemptions_InvalidFromDate(t *testing.T) {
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), new(mockRedemptionRepository))

	rec := doJSON(router, http.MethodGet, "/api/v1/redemptions?from=yesterday", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "from must be in RFC3339 format")
}

// ============================================================================
// POST /api/v1/redemptions/{id}/void
// ============================================================================

func TestVoidRedemption_Success(t *testing.T) {
	reds := new(mockRedemptionRepository)
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), reds)

	voided := sampleRedemption()
	voided.Status = domain.RedemptionStatusVoided
	now := time.Now().UTC()
	voided.VoidedAt = &now
	reds.On("Void", mock.Anything, "red-001").Return(voided, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/redemptions/red-001/void", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	var got domain.Redemption
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, domain.RedemptionStatusVoided, got.Status)
}

func TestVoidRedemption_AlreadyVoided(t *testing.T) {
	reds := new(mockRedemptionRepository)
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), reds)

	reds.On("Void", mock.Anything, "red-001").
		Return(nil, apperrors.Conflict("redemption already voided"))

	rec := doJSON(router, http.MethodPost, "/api/v1/redemptions/red-001/void", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFLICT", resp.Error.Code)
}

// ============================================================================
// Analytics endpoints
// ============================================================================

func TestPromotionStats_Success(t *testing.T) {
	reds := new(mockRedemptionRepository)
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), reds)

	stats := &domain.PromotionStats{
		PromotionID:      "550e8400-e29b-41d4-a716-446655440001",
		Name:             "Summer Sale",
		TotalRedemptions: 4,
		TotalDiscounted:  8000,
		TotalRevenue:     40000,
		UniqueCustomers:  3,
		AverageDiscount:  2000,
	}
	reds.On("Stats", mock.Anything, stats.PromotionID).Return(stats, nil)

	rec := doJSON(router, http.MethodGet, "/api/v1/analytics/promotions/"+stats.PromotionID, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	var got domain.PromotionStats
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, 4, got.TotalRedemptions)
	assert.InDelta(t, 2000, got.AverageDiscount, 0.001)
}

func TestAllPromotionStats_WithRange(t *testing.T) {
	reds := new(mockRedemptionRepository)
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), reds)

	reds.On("StatsAll", mock.Anything, mock.AnythingOfType("*time.Time"), mock.AnythingOfType("*time.Time")).
		Return([]domain.PromotionStats{}, nil)

	rec := doJSON(router, http.MethodGet, "/api/v1/analytics/promotions?from=2025-06-01T00:00:00Z&to=2025-07-01T00:00:00Z", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	reds.AssertExpectations(t)
}

func TestDailyStats_Success(t *testing.T) {
	reds := new(mockRedemptionRepository)
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), reds)

	series := []domain.DailyStats{
		{Day: time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC), Redemptions: 2, TotalDiscounted: 3000, TotalRevenue: 15000},
		{Day: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), Redemptions: 5, TotalDiscounted: 9000, TotalRevenue: 52000},
	}
	reds.On("DailyStats", mock.Anything, (*time.Time)(nil), (*time.Time)(nil)).Return(series, nil)

	rec := doJSON(router, http.MethodGet, "/api/v1/analytics/daily", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	var got []domain.DailyStats
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, 5, got[1].Redemptions)
	reds.AssertExpectations(t)
}

func TestDailyStats_InvalidFromDate(t *testing.T) {
	reds := new(mockRedemptionRepository)
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), reds)

	rec := doJSON(router, http.MethodGet, "/api/v1/analytics/daily?from=june-1st", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	reds.AssertNotCalled(t, "DailyStats")
}
