package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/promotion-engine/internal/domain"
	"github.com/utafrali/promotion-engine/internal/event"
	"github.com/utafrali/promotion-engine/internal/repository"
	"github.com/utafrali/promotion-engine/internal/service"
	apperrors "github.com/utafrali/promotion-engine/pkg/errors"
	"github.com/utafrali/promotion-engine/pkg/health"
	pkgkafka "github.com/utafrali/promotion-engine/pkg/kafka"
	"github.com/utafrali/promotion-engine/pkg/middleware"
)

// ============================================================================
// Mock repositories
// ============================================================================

type mockPromotionRepository struct {
	mock.Mock
}

func (m *mockPromotionRepository) Create(ctx context.Context, promotion *domain.Promotion) error {
	args := m.Called(ctx, promotion)
	return args.Error(0)
}

func (m *mockPromotionRepository) GetByID(ctx context.Context, id string) (*domain.Promotion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Promotion), args.Error(1)
}

func (m *mockPromotionRepository) List(ctx context.Context, filter repository.PromotionFilter) ([]domain.Promotion, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Promotion), args.Int(1), args.Error(2)
}

func (m *mockPromotionRepository) Update(ctx context.Context, promotion *domain.Promotion) error {
	args := m.Called(ctx, promotion)
	return args.Error(0)
}

func (m *mockPromotionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockPromotionRepository) CreateCode(ctx context.Context, code *domain.PromotionCode) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *mockPromotionRepository) GetCodeByValue(ctx context.Context, code string) (*domain.PromotionCode, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PromotionCode), args.Error(1)
}

func (m *mockPromotionRepository) ListCodes(ctx context.Context, promotionID string) ([]domain.PromotionCode, error) {
	args := m.Called(ctx, promotionID)
	return args.Get(0).([]domain.PromotionCode), args.Error(1)
}

func (m *mockPromotionRepository) SetCodeActive(ctx context.Context, codeID string, active bool) error {
	args := m.Called(ctx, codeID, active)
	return args.Error(0)
}

func (m *mockPromotionRepository) FindAutoApplicable(ctx context.Context, customerID string, now time.Time) ([]domain.Promotion, error) {
	args := m.Called(ctx, customerID, now)
	return args.Get(0).([]domain.Promotion), args.Error(1)
}

type mockRedemptionRepository struct {
	mock.Mock
}

func (m *mockRedemptionRepository) ReserveAndRecord(ctx context.Context, redemption *domain.Redemption, codeID *string, perCustomerLimit *int) error {
	args := m.Called(ctx, redemption, codeID, perCustomerLimit)
	return args.Error(0)
}

func (m *mockRedemptionRepository) GetByID(ctx context.Context, id string) (*domain.Redemption, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Redemption), args.Error(1)
}

func (m *mockRedemptionRepository) List(ctx context.Context, filter repository.RedemptionFilter) ([]domain.Redemption, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Redemption), args.Int(1), args.Error(2)
}

func (m *mockRedemptionRepository) Void(ctx context.Context, id string) (*domain.Redemption, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Redemption), args.Error(1)
}

func (m *mockRedemptionRepository) CustomerUsage(ctx context.Context, promotionID, customerID string) (int, error) {
	args := m.Called(ctx, promotionID, customerID)
	return args.Int(0), args.Error(1)
}

func (m *mockRedemptionRepository) Stats(ctx context.Context, promotionID string) (*domain.PromotionStats, error) {
	args := m.Called(ctx, promotionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PromotionStats), args.Error(1)
}

func (m *mockRedemptionRepository) StatsAll(ctx context.Context, from, to *time.Time) ([]domain.PromotionStats, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]domain.PromotionStats), args.Error(1)
}

func (m *mockRedemptionRepository) DailyStats(ctx context.Context, from, to *time.Time) ([]domain.DailyStats, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]domain.DailyStats), args.Error(1)
}

type mockAssignmentRepository struct {
	mock.Mock
}

func (m *mockAssignmentRepository) Upsert(ctx context.Context, assignment *domain.Assignment) error {
	args := m.Called(ctx, assignment)
	return args.Error(0)
}

func (m *mockAssignmentRepository) GetByID(ctx context.Context, id string) (*domain.Assignment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Assignment), args.Error(1)
}

func (m *mockAssignmentRepository) GetActive(ctx context.Context, promotionID, customerID string, now time.Time) (*domain.Assignment, error) {
	args := m.Called(ctx, promotionID, customerID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Assignment), args.Error(1)
}

func (m *mockAssignmentRepository) HasActive(ctx context.Context, promotionID string) (bool, error) {
	args := m.Called(ctx, promotionID)
	return args.Bool(0), args.Error(1)
}

func (m *mockAssignmentRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Assignment, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).([]domain.Assignment), args.Error(1)
}

func (m *mockAssignmentRepository) ListByPromotion(ctx context.Context, promotionID string) ([]domain.Assignment, error) {
	args := m.Called(ctx, promotionID)
	return args.Get(0).([]domain.Assignment), args.Error(1)
}

func (m *mockAssignmentRepository) Revoke(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// ============================================================================
// Test helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEventProducer() *event.Producer {
	logger := testLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

// setupRouter wires the production route layout with mock-backed services.
func setupRouter(promos *mockPromotionRepository, assigns *mockAssignmentRepository, reds *mockRedemptionRepository) http.Handler {
	logger := testLogger()
	producer := testEventProducer()
	return NewRouter(RouterDeps{
		Catalog:     service.NewCatalogService(promos, producer, logger),
		Assignments: service.NewAssignmentService(assigns, promos, producer, logger),
		Redemptions: service.NewRedemptionService(promos, assigns, reds, nil, producer, logger),
		Analytics:   service.NewAnalyticsService(reds, logger),
		Health:      health.NewHandler(),
		CORS:        middleware.DefaultCORSConfig(),
		Logger:      logger,
	})
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *errorResponse  `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var resp envelope
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	return resp
}

func doJSON(router http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func samplePromotion() *domain.Promotion {
	now := time.Now().UTC()
	return &domain.Promotion{
		ID:                 "550e8400-e29b-41d4-a716-446655440001",
		Name:               "Summer Sale",
		Description:        "20% off everything",
		Tags:               []string{"summer"},
		Type:               domain.PromotionTypeSeasonal,
		DiscountType:       domain.DiscountTypePercentage,
		DiscountValue:      20,
		Scope:              domain.ScopeEntireStore,
		TargetCategories:   []string{},
		TargetProducts:     []string{},
		TargetCollections:  []string{},
		ExcludedCategories: []string{},
		ExcludedProducts:   []string{},
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func validCreatePromotionJSON() []byte {
	req := CreatePromotionRequest{
		Name:          "Summer Sale",
		Description:   "20% off everything",
		Type:          "seasonal",
		DiscountType:  "percentage",
		DiscountValue: 20,
		Scope:         "entire_store",
		IsActive:      true,
	}
	b, _ := json.Marshal(req)
	return b
}

// ============================================================================
// POST /api/v1/promotions
// ============================================================================

func TestCreatePromotion_Success(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	promos.On("Create", mock.Anything, mock.AnythingOfType("*domain.Promotion")).Return(nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/promotions", validCreatePromotionJSON())

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Nil(t, resp.Error)

	var created domain.Promotion
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, "Summer Sale", created.Name)
	assert.NotEmpty(t, created.ID)
	promos.AssertExpectations(t)
}

func TestCreatePromotion_InvalidJSON(t *testing.T) {
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), new(mockRedemptionRepository))

	rec := doJSON(router, http.MethodPost, "/api/v1/promotions", []byte(`{invalid json`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "invalid request body")
}

func TestCreatePromotion_ValidationError_MissingName(t *testing.T) {
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), new(mockRedemptionRepository))

	req := CreatePromotionRequest{
		Type:          "seasonal",
		DiscountType:  "percentage",
		DiscountValue: 20,
		Scope:         "entire_store",
	}
	b, _ := json.Marshal(req)

	rec := doJSON(router, http.MethodPost, "/api/v1/promotions", b)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestCreatePromotion_InvalidDateFormat(t *testing.T) {
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), new(mockRedemptionRepository))

	starts := "2025-01-01" // not RFC3339
	req := CreatePromotionRequest{
		Name:          "Summer Sale",
		Type:          "seasonal",
		DiscountType:  "percentage",
		DiscountValue: 20,
		Scope:         "entire_store",
		StartsAt:      &starts,
	}
	b, _ := json.Marshal(req)

	rec := doJSON(router, http.MethodPost, "/api/v1/promotions", b)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "starts_at must be in RFC3339 format")
}

func TestCreatePromotion_InvalidSpec(t *testing.T) {
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), new(mockRedemptionRepository))

	// Percentage over 100 passes DTO validation but fails the spec check.
	req := CreatePromotionRequest{
		Name:          "Broken",
		Type:          "seasonal",
		DiscountType:  "percentage",
		DiscountValue: 150,
		Scope:         "entire_store",
	}
	b, _ := json.Marshal(req)

	rec := doJSON(router, http.MethodPost, "/api/v1/promotions", b)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_PROMOTION_SPEC", resp.Error.Code)
}

func TestCreatePromotion_UnsupportedMediaType(t *testing.T) {
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), new(mockRedemptionRepository))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/promotions", bytes.NewReader(validCreatePromotionJSON()))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// ============================================================================
// GET /api/v1/promotions
// ============================================================================

func TestListPromotions_Success(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	promos.On("List", mock.Anything, mock.AnythingOfType("repository.PromotionFilter")).
		Return([]domain.Promotion{*samplePromotion()}, 1, nil)

	rec := doJSON(router, http.MethodGet, "/api/v1/promotions?page=1&per_page=10", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data       []domain.Promotion `json:"data"`
		TotalCount int                `json:"total_count"`
		Page       int                `json:"page"`
		PerPage    int                `json:"per_page"`
		TotalPages int                `json:"total_pages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, 10, resp.PerPage)
	assert.Equal(t, 1, resp.TotalPages)
}

func TestListPromotions_PassesFilters(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	promos.On("List", mock.Anything, mock.MatchedBy(func(f repository.PromotionFilter) bool {
		return f.IsActive != nil && *f.IsActive &&
			f.Type != nil && *f.Type == "flash_sale" &&
			f.Search != nil && *f.Search == "summer"
	})).Return([]domain.Promotion{}, 0, nil)

	rec := doJSON(router, http.MethodGet, "/api/v1/promotions?is_active=true&type=flash_sale&search=summer", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	promos.AssertExpectations(t)
}

// ============================================================================
// GET /api/v1/promotions/{id}
// ============================================================================

func TestGetPromotion_Success(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	promo := samplePromotion()
	promos.On("GetByID", mock.Anything, promo.ID).Return(promo, nil)

	rec := doJSON(router, http.MethodGet, "/api/v1/promotions/"+promo.ID, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	var got domain.Promotion
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, promo.ID, got.ID)
}

func TestGetPromotion_NotFound(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	promos.On("GetByID", mock.Anything, "missing").
		Return(nil, apperrors.NotFound("promotion", "missing"))

	rec := doJSON(router, http.MethodGet, "/api/v1/promotions/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

// ============================================================================
// PUT /api/v1/promotions/{id}
// ============================================================================

func TestUpdatePromotion_Success(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	promo := samplePromotion()
	promos.On("GetByID", mock.Anything, promo.ID).Return(promo, nil)
	promos.On("Update", mock.Anything, mock.AnythingOfType("*domain.Promotion")).Return(nil)

	body := []byte(`{"name": "Renamed Sale"}`)
	rec := doJSON(router, http.MethodPut, "/api/v1/promotions/"+promo.ID, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	var got domain.Promotion
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, "Renamed Sale", got.Name)
	promos.AssertExpectations(t)
}

// ============================================================================
// DELETE /api/v1/promotions/{id}
// ============================================================================

func TestDeletePromotion_Success(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	promo := samplePromotion()
	promos.On("GetByID", mock.Anything, promo.ID).Return(promo, nil)
	promos.On("Delete", mock.Anything, promo.ID).Return(nil)

	rec := doJSON(router, http.MethodDelete, "/api/v1/promotions/"+promo.ID, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	promos.AssertExpectations(t)
}

// ============================================================================
// Promotion codes
// ============================================================================

func TestCreateCode_Success(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	promo := samplePromotion()
	promos.On("GetByID", mock.Anything, promo.ID).Return(promo, nil)
	promos.On("CreateCode", mock.Anything, mock.AnythingOfType("*domain.PromotionCode")).Return(nil)

	body := []byte(`{"code": "summer20", "is_public": true, "is_active": true}`)
	rec := doJSON(router, http.MethodPost, "/api/v1/promotions/"+promo.ID+"/codes", body)

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeEnvelope(t, rec)
	var code domain.PromotionCode
	require.NoError(t, json.Unmarshal(resp.Data, &code))
	assert.Equal(t, "SUMMER20", code.Code)
	promos.AssertExpectations(t)
}

func TestSetCodeActive_Success(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	promos.On("SetCodeActive", mock.Anything, "code-001", false).Return(nil)

	body := []byte(`{"is_active": false}`)
	rec := doJSON(router, http.MethodPut, "/api/v1/promotions/codes/code-001/active", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	promos.AssertExpectations(t)
}

// ============================================================================
// POST /api/v1/promotions/{id}/activate and /deactivate
// ============================================================================

func TestActivatePromotion_Success(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	p := samplePromotion()
	p.IsActive = false
	promos.On("GetByID", mock.Anything, p.ID).Return(p, nil)
	promos.On("Update", mock.Anything, mock.MatchedBy(func(updated *domain.Promotion) bool {
		return updated.IsActive
	})).Return(nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/promotions/"+p.ID+"/activate", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	var got domain.Promotion
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.True(t, got.IsActive)
	promos.AssertExpectations(t)
}

func TestDeactivatePromotion_Success(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	p := samplePromotion()
	promos.On("GetByID", mock.Anything, p.ID).Return(p, nil)
	promos.On("Update", mock.Anything, mock.MatchedBy(func(updated *domain.Promotion) bool {
		return !updated.IsActive
	})).Return(nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/promotions/"+p.ID+"/deactivate", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	promos.AssertExpectations(t)
}

func TestActivatePromotion_NotFound(t *testing.T) {
	promos := new(mockPromotionRepository)
	router := setupRouter(promos, new(mockAssignmentRepository), new(mockRedemptionRepository))

	promos.On("GetByID", mock.Anything, "missing").Return(nil, apperrors.NotFound("promotion", "missing"))

	rec := doJSON(router, http.MethodPost, "/api/v1/promotions/missing/activate", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================================================
// Health endpoints
// ============================================================================

func TestHealthLive(t *testing.T) {
	router := setupRouter(new(mockPromotionRepository), new(mockAssignmentRepository), new(mockRedemptionRepository))

	rec := doJSON(router, http.MethodGet, "/health/live", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}
