package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/promotion-engine/internal/domain"
	"github.com/utafrali/promotion-engine/internal/repository"
	"github.com/utafrali/promotion-engine/pkg/database"
	apperrors "github.com/utafrali/promotion-engine/pkg/errors"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func setupPromotionRepo(t *testing.T) (*PromotionRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewPromotionRepository(mock)
	return repo, mock
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func samplePromotion() *domain.Promotion {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-24 * time.Hour)
	end := now.Add(30 * 24 * time.Hour)
	return &domain.Promotion{
		ID:                    "promo-001",
		Name:                  "Summer Sale",
		Description:           "20% off summer items",
		Tags:                  []string{"summer", "seasonal"},
		Type:                  domain.PromotionTypeSeasonal,
		DiscountType:          domain.DiscountTypePercentage,
		DiscountValue:         20,
		Scope:                 domain.ScopeCategories,
		TargetCategories:      []string{"clothing", "accessories"},
		TargetProducts:        []string{},
		TargetCollections:     []string{},
		UsageLimit:            intPtr(1000),
		UsageLimitPerCustomer: intPtr(2),
		MinimumPurchaseAmount: int64Ptr(5000),
		ExcludedCategories:    []string{},
		ExcludedProducts:      []string{"prod-excluded"},
		ExcludedCollections:   []string{},
		StartsAt:              &start,
		EndsAt:                &end,
		IsActive:              true,
		UsedCount:             42,
		TotalRedemptions:      42,
		TotalRevenue:          840000,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func promotionTestColumns() []string {
	return []string{
		"id", "name", "description", "tags", "notes", "type", "discount_type", "discount_value",
		"buy_x_get_y", "scope", "target_categories", "target_products", "target_collections",
		"customer_segment", "usage_limit", "usage_limit_per_customer", "minimum_purchase_amount",
		"minimum_quantity", "excluded_categories", "excluded_products", "excluded_collections",
		"exclude_discounted_items", "starts_at", "ends_at", "is_active", "is_scheduled",
		"used_count", "total_redemptions", "total_revenue", "created_at", "updated_at",
	}
}

func promotionRowValues(p *domain.Promotion) []any {
	tagsJSON, _ := json.Marshal(p.Tags)
	targetCats, _ := json.Marshal(p.TargetCategories)
	targetProds, _ := json.Marshal(p.TargetProducts)
	targetColls, _ := json.Marshal(p.TargetCollections)
	excludedCats, _ := json.Marshal(p.ExcludedCategories)
	excludedProds, _ := json.Marshal(p.ExcludedProducts)
	excludedColls, _ := json.Marshal(p.ExcludedCollections)

	var buyXGetY []byte
	if p.BuyXGetY != nil {
		buyXGetY, _ = json.Marshal(p.BuyXGetY)
	}

	return []any{
		p.ID, p.Name, p.Description, tagsJSON, p.Notes, p.Type, p.DiscountType, p.DiscountValue,
		buyXGetY, p.Scope, targetCats, targetProds, targetColls,
		p.CustomerSegment, p.UsageLimit, p.UsageLimitPerCustomer, p.MinimumPurchaseAmount,
		p.MinimumQuantity, excludedCats, excludedProds, excludedColls,
		p.ExcludeDiscountedItems, p.StartsAt, p.EndsAt, p.IsActive, p.IsScheduled,
		p.UsedCount, p.TotalRedemptions, p.TotalRevenue, p.CreatedAt, p.UpdatedAt,
	}
}

func promotionRow(p *domain.Promotion) *pgxmock.Rows {
	return pgxmock.NewRows(promotionTestColumns()).AddRow(promotionRowValues(p)...)
}

func promotionListRow(p *domain.Promotion, totalCount int) *pgxmock.Rows {
	cols := append(promotionTestColumns(), "total_count")
	vals := append(promotionRowValues(p), totalCount)
	return pgxmock.NewRows(cols).AddRow(vals...)
}

func sampleCode() *domain.PromotionCode {
	return &domain.PromotionCode{
		ID:          "code-001",
		PromotionID: "promo-001",
		Code:        "SUMMER20",
		IsPublic:    true,
		UsageLimit:  intPtr(500),
		UsedCount:   10,
		IsActive:    true,
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func codeColumns() []string {
	return []string{"id", "promotion_id", "code", "is_public", "usage_limit", "used_count", "is_active", "created_at"}
}

func codeRow(c *domain.PromotionCode) *pgxmock.Rows {
	return pgxmock.NewRows(codeColumns()).
		AddRow(c.ID, c.PromotionID, c.Code, c.IsPublic, c.UsageLimit, c.UsedCount, c.IsActive, c.CreatedAt)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestPromotionRepository_Create_Success(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	p := samplePromotion()

	mock.ExpectExec("INSERT INTO promotions").
		WithArgs(promotionRowValues(p)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), p)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_Create_UniqueViolation(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	p := samplePromotion()

	mock.ExpectExec("INSERT INTO promotions").
		WithArgs(promotionRowValues(p)...).
		WillReturnError(errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"))

	err := repo.Create(context.Background(), p)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.ErrorContains(t, err, p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// GetByID
// ---------------------------------------------------------------------------

func TestPromotionRepository_GetByID_Success(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	p := samplePromotion()

	mock.ExpectQuery("SELECT .+ FROM promotions WHERE id").
		WithArgs(p.ID).
		WillReturnRows(promotionRow(p))

	result, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, p.ID, result.ID)
	assert.Equal(t, p.Name, result.Name)
	assert.Equal(t, p.DiscountType, result.DiscountType)
	assert.Equal(t, p.DiscountValue, result.DiscountValue)
	assert.Equal(t, p.UsageLimit, result.UsageLimit)
	assert.Equal(t, p.StartsAt, result.StartsAt)
	assert.Equal(t, []string{"clothing", "accessories"}, result.TargetCategories)
	assert.Equal(t, []string{"prod-excluded"}, result.ExcludedProducts)

	// Nil-safety: slices must never be nil.
	assert.NotNil(t, result.Tags)
	assert.NotNil(t, result.TargetProducts)
	assert.NotNil(t, result.ExcludedCategories)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM promotions WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.GetByID(context.Background(), "missing")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_GetByID_BuyXGetY(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	p := samplePromotion()
	p.DiscountType = domain.DiscountTypeBuyXGetY
	p.DiscountValue = 0
	p.BuyXGetY = &domain.BuyXGetYConfig{BuyQuantity: 2, GetQuantity: 1, GetDiscountPercentage: 100}

	mock.ExpectQuery("SELECT .+ FROM promotions WHERE id").
		WithArgs(p.ID).
		WillReturnRows(promotionRow(p))

	result, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, result.BuyXGetY)
	assert.Equal(t, 2, result.BuyXGetY.BuyQuantity)
	assert.Equal(t, 1, result.BuyXGetY.GetQuantity)
	assert.Equal(t, int64(100), result.BuyXGetY.GetDiscountPercentage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestPromotionRepository_List_WithFilter(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	p := samplePromotion()
	active := true
	promoType := domain.PromotionTypeSeasonal

	mock.ExpectQuery("SELECT .+ FROM promotions").
		WithArgs(active, promoType, 10, 10).
		WillReturnRows(promotionListRow(p, 25))

	result, total, err := repo.List(context.Background(), repository.PromotionFilter{
		IsActive: &active,
		Type:     &promoType,
		Page:     2,
		PerPage:  10,
	})
	require.NoError(t, err)
	assert.Len(t, result, 1)
	assert.Equal(t, 25, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_List_Empty(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM promotions").
		WithArgs(20, 0).
		WillReturnRows(pgxmock.NewRows(append(promotionTestColumns(), "total_count")))

	result, total, err := repo.List(context.Background(), repository.PromotionFilter{})
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Empty(t, result)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Update / Delete
// ---------------------------------------------------------------------------

func TestPromotionRepository_Update_NotFound(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	p := samplePromotion()

	mock.ExpectExec("UPDATE promotions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), p)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_Delete_Success(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM promotions").
		WithArgs("promo-001").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := repo.Delete(context.Background(), "promo-001")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_Delete_NotFound(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM promotions").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Codes
// ---------------------------------------------------------------------------

func TestPromotionRepository_CreateCode_Success(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	c := sampleCode()

	mock.ExpectExec("INSERT INTO promotion_codes").
		WithArgs(c.ID, c.PromotionID, c.Code, c.IsPublic, c.UsageLimit, c.UsedCount, c.IsActive, c.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.CreateCode(context.Background(), c)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_CreateCode_Duplicate(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	c := sampleCode()

	mock.ExpectExec("INSERT INTO promotion_codes").
		WithArgs(c.ID, c.PromotionID, c.Code, c.IsPublic, c.UsageLimit, c.UsedCount, c.IsActive, c.CreatedAt).
		WillReturnError(errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"))

	err := repo.CreateCode(context.Background(), c)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_GetCodeByValue_Success(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	c := sampleCode()

	mock.ExpectQuery("SELECT .+ FROM promotion_codes WHERE code").
		WithArgs("summer20").
		WillReturnRows(codeRow(c))

	result, err := repo.GetCodeByValue(context.Background(), "summer20")
	require.NoError(t, err)
	assert.Equal(t, c.Code, result.Code)
	assert.Equal(t, c.PromotionID, result.PromotionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_GetCodeByValue_NotFound(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM promotion_codes WHERE code").
		WithArgs("NOPE").
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.GetCodeByValue(context.Background(), "NOPE")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// FindAutoApplicable
// ---------------------------------------------------------------------------

func TestPromotionRepository_FindAutoApplicable(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	p := samplePromotion()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	// The open-promotion disjunct must exclude assignment-targeted
	// promotions, which only surface through the customer's own
	// assignment.
	mock.ExpectQuery(`NOT EXISTS \(SELECT 1 FROM promotion_assignments t WHERE t\.promotion_id = p\.id AND t\.is_active = true\)`).
		WithArgs("cust-001", now).
		WillReturnRows(promotionRow(p))

	result, err := repo.FindAutoApplicable(context.Background(), "cust-001", now)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, p.ID, result[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
