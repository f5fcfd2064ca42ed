package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/promotion-engine/internal/domain"
	"github.com/utafrali/promotion-engine/internal/repository"
	"github.com/utafrali/promotion-engine/pkg/database"
	apperrors "github.com/utafrali/promotion-engine/pkg/errors"
)

const promotionColumns = `id, name, description, tags, notes, type, discount_type, discount_value,
	buy_x_get_y, scope, target_categories, target_products, target_collections,
	customer_segment, usage_limit, usage_limit_per_customer, minimum_purchase_amount,
	minimum_quantity, excluded_categories, excluded_products, excluded_collections,
	exclude_discounted_items, starts_at, ends_at, is_active, is_scheduled,
	used_count, total_redemptions, total_revenue, created_at, updated_at`

// PromotionRepository implements repository.PromotionRepository using PostgreSQL.
type PromotionRepository struct {
	pool database.DBTX
}

// NewPromotionRepository creates a new PostgreSQL-backed promotion repository.
func NewPromotionRepository(pool database.DBTX) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// Create inserts a new promotion into the database.
func (r *PromotionRepository) Create(ctx context.Context, p *domain.Promotion) error {
	cols, err := marshalPromotionJSON(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO promotions (
			id, name, description, tags, notes, type, discount_type, discount_value,
			buy_x_get_y, scope, target_categories, target_products, target_collections,
			customer_segment, usage_limit, usage_limit_per_customer, minimum_purchase_amount,
			minimum_quantity, excluded_categories, excluded_products, excluded_collections,
			exclude_discounted_items, starts_at, ends_at, is_active, is_scheduled,
			used_count, total_redemptions, total_revenue, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)`

	_, err = r.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Description,
		cols.tags,
		p.Notes,
		p.Type,
		p.DiscountType,
		p.DiscountValue,
		cols.buyXGetY,
		p.Scope,
		cols.targetCategories,
		cols.targetProducts,
		cols.targetCollections,
		p.CustomerSegment,
		p.UsageLimit,
		p.UsageLimitPerCustomer,
		p.MinimumPurchaseAmount,
		p.MinimumQuantity,
		cols.excludedCategories,
		cols.excludedProducts,
		cols.excludedCollections,
		p.ExcludeDiscountedItems,
		p.StartsAt,
		p.EndsAt,
		p.IsActive,
		p.IsScheduled,
		p.UsedCount,
		p.TotalRedemptions,
		p.TotalRevenue,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		// The only unique constraint on promotions is the primary key.
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("promotion", "id", p.ID)
		}
		return fmt.Errorf("insert promotion: %w", err)
	}

	return nil
}

// GetByID retrieves a promotion by its ID.
func (r *PromotionRepository) GetByID(ctx context.Context, id string) (*domain.Promotion, error) {
	query := fmt.Sprintf(`SELECT %s FROM promotions WHERE id = $1`, promotionColumns)
	return r.scanPromotion(r.pool.QueryRow(ctx, query, id))
}

// List returns promotions matching the given filter with the total count.
func (r *PromotionRepository) List(ctx context.Context, filter repository.PromotionFilter) ([]domain.Promotion, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argIndex))
		args = append(args, *filter.IsActive)
		argIndex++
	}

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIndex))
		args = append(args, *filter.Type)
		argIndex++
	}

	if filter.Search != nil {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argIndex))
		args = append(args, "%"+*filter.Search+"%")
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM promotions
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		promotionColumns, whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list promotions: %w", err)
	}
	defer rows.Close()

	var (
		promotions []domain.Promotion
		totalCount int
	)

	for rows.Next() {
		p, err := scanPromotionRow(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		promotions = append(promotions, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate promotion rows: %w", err)
	}

	if promotions == nil {
		promotions = []domain.Promotion{}
	}

	return promotions, totalCount, nil
}

// Update modifies an existing promotion in the database. Usage aggregates are
// deliberately not part of the update; only the redemption path moves them.
func (r *PromotionRepository) Update(ctx context.Context, p *domain.Promotion) error {
	cols, err := marshalPromotionJSON(p)
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE promotions
		SET name = $1, description = $2, tags = $3, notes = $4, type = $5,
		    discount_type = $6, discount_value = $7, buy_x_get_y = $8, scope = $9,
		    target_categories = $10, target_products = $11, target_collections = $12,
		    customer_segment = $13, usage_limit = $14, usage_limit_per_customer = $15,
		    minimum_purchase_amount = $16, minimum_quantity = $17,
		    excluded_categories = $18, excluded_products = $19, excluded_collections = $20,
		    exclude_discounted_items = $21, starts_at = $22, ends_at = $23,
		    is_active = $24, is_scheduled = $25, updated_at = $26
		WHERE id = $27`

	ct, err := r.pool.Exec(ctx, query,
		p.Name,
		p.Description,
		cols.tags,
		p.Notes,
		p.Type,
		p.DiscountType,
		p.DiscountValue,
		cols.buyXGetY,
		p.Scope,
		cols.targetCategories,
		cols.targetProducts,
		cols.targetCollections,
		p.CustomerSegment,
		p.UsageLimit,
		p.UsageLimitPerCustomer,
		p.MinimumPurchaseAmount,
		p.MinimumQuantity,
		cols.excludedCategories,
		cols.excludedProducts,
		cols.excludedCollections,
		p.ExcludeDiscountedItems,
		p.StartsAt,
		p.EndsAt,
		p.IsActive,
		p.IsScheduled,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("promotion", "name", p.Name)
		}
		return fmt.Errorf("update promotion: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("promotion", p.ID)
	}

	return nil
}

// Delete removes a promotion. Codes and assignments go with it via ON DELETE CASCADE.
func (r *PromotionRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM promotions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete promotion: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("promotion", id)
	}

	return nil
}

// CreateCode attaches a new redeemable code to a promotion.
func (r *PromotionRepository) CreateCode(ctx context.Context, c *domain.PromotionCode) error {
	query := `
		INSERT INTO promotion_codes (id, promotion_id, code, is_public, usage_limit, used_count, is_active, created_at)
		VALUES ($1, $2, upper($3), $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.PromotionID,
		c.Code,
		c.IsPublic,
		c.UsageLimit,
		c.UsedCount,
		c.IsActive,
		c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("promotion_code", "code", c.Code)
		}
		return fmt.Errorf("insert promotion code: %w", err)
	}

	return nil
}

// GetCodeByValue retrieves a code by its code string, case-insensitively.
func (r *PromotionRepository) GetCodeByValue(ctx context.Context, code string) (*domain.PromotionCode, error) {
	query := `
		SELECT id, promotion_id, code, is_public, usage_limit, used_count, is_active, created_at
		FROM promotion_codes
		WHERE code = upper($1)`

	var c domain.PromotionCode
	err := r.pool.QueryRow(ctx, query, code).Scan(
		&c.ID,
		&c.PromotionID,
		&c.Code,
		&c.IsPublic,
		&c.UsageLimit,
		&c.UsedCount,
		&c.IsActive,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get promotion code: %w", err)
	}

	return &c, nil
}

// ListCodes returns all codes attached to the given promotion.
func (r *PromotionRepository) ListCodes(ctx context.Context, promotionID string) ([]domain.PromotionCode, error) {
	query := `
		SELECT id, promotion_id, code, is_public, usage_limit, used_count, is_active, created_at
		FROM promotion_codes
		WHERE promotion_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, promotionID)
	if err != nil {
		return nil, fmt.Errorf("list promotion codes: %w", err)
	}
	defer rows.Close()

	var codes []domain.PromotionCode
	for rows.Next() {
		var c domain.PromotionCode
		if err := rows.Scan(
			&c.ID,
			&c.PromotionID,
			&c.Code,
			&c.IsPublic,
			&c.UsageLimit,
			&c.UsedCount,
			&c.IsActive,
			&c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan promotion code row: %w", err)
		}
		codes = append(codes, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promotion code rows: %w", err)
	}

	if codes == nil {
		codes = []domain.PromotionCode{}
	}

	return codes, nil
}

// SetCodeActive toggles a code without touching its promotion.
func (r *PromotionRepository) SetCodeActive(ctx context.Context, codeID string, active bool) error {
	ct, err := r.pool.Exec(ctx, `UPDATE promotion_codes SET is_active = $1 WHERE id = $2`, active, codeID)
	if err != nil {
		return fmt.Errorf("set promotion code active: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("promotion_code", codeID)
	}

	return nil
}

// FindAutoApplicable returns active in-window promotions the customer can use
// without entering a code: open promotions (no codes and no individual
// assignments) plus any promotion carrying an unexpired assignment to the
// customer. A promotion with assignment records is targeted and never
// surfaces for unassigned customers.
func (r *PromotionRepository) FindAutoApplicable(ctx context.Context, customerID string, now time.Time) ([]domain.Promotion, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM promotions p
		WHERE p.is_active = true
		  AND (p.starts_at IS NULL OR p.starts_at <= $2)
		  AND (p.ends_at IS NULL OR p.ends_at >= $2)
		  AND (
			(
				NOT EXISTS (SELECT 1 FROM promotion_codes c WHERE c.promotion_id = p.id)
				AND NOT EXISTS (SELECT 1 FROM promotion_assignments t WHERE t.promotion_id = p.id AND t.is_active = true)
			)
			OR EXISTS (
				SELECT 1 FROM promotion_assignments a
				WHERE a.promotion_id = p.id
				  AND a.customer_id = $1
				  AND a.is_active = true
				  AND (a.expires_at IS NULL OR a.expires_at >= $2)
			)
		  )
		ORDER BY p.created_at`, prefixColumns("p", promotionColumns))

	rows, err := r.pool.Query(ctx, query, customerID, now)
	if err != nil {
		return nil, fmt.Errorf("find auto-applicable promotions: %w", err)
	}
	defer rows.Close()

	var promotions []domain.Promotion
	for rows.Next() {
		p, err := scanPromotionRow(rows, nil)
		if err != nil {
			return nil, err
		}
		promotions = append(promotions, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promotion rows: %w", err)
	}

	if promotions == nil {
		promotions = []domain.Promotion{}
	}

	return promotions, nil
}

// promotionJSONCols holds the marshaled JSON columns of one promotion row.
type promotionJSONCols struct {
	tags                []byte
	buyXGetY            []byte
	targetCategories    []byte
	targetProducts      []byte
	targetCollections   []byte
	excludedCategories  []byte
	excludedProducts    []byte
	excludedCollections []byte
}

func marshalPromotionJSON(p *domain.Promotion) (*promotionJSONCols, error) {
	var cols promotionJSONCols
	var err error

	if cols.tags, err = json.Marshal(p.Tags); err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	if p.BuyXGetY != nil {
		if cols.buyXGetY, err = json.Marshal(p.BuyXGetY); err != nil {
			return nil, fmt.Errorf("marshal buy_x_get_y: %w", err)
		}
	}
	if cols.targetCategories, err = json.Marshal(p.TargetCategories); err != nil {
		return nil, fmt.Errorf("marshal target_categories: %w", err)
	}
	if cols.targetProducts, err = json.Marshal(p.TargetProducts); err != nil {
		return nil, fmt.Errorf("marshal target_products: %w", err)
	}
	if cols.targetCollections, err = json.Marshal(p.TargetCollections); err != nil {
		return nil, fmt.Errorf("marshal target_collections: %w", err)
	}
	if cols.excludedCategories, err = json.Marshal(p.ExcludedCategories); err != nil {
		return nil, fmt.Errorf("marshal excluded_categories: %w", err)
	}
	if cols.excludedProducts, err = json.Marshal(p.ExcludedProducts); err != nil {
		return nil, fmt.Errorf("marshal excluded_products: %w", err)
	}
	if cols.excludedCollections, err = json.Marshal(p.ExcludedCollections); err != nil {
		return nil, fmt.Errorf("marshal excluded_collections: %w", err)
	}

	return &cols, nil
}

// scanPromotion scans a single-row query result into a promotion.
func (r *PromotionRepository) scanPromotion(row pgx.Row) (*domain.Promotion, error) {
	p, err := scanPromotionFrom(row, nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan promotion: %w", err)
	}
	return p, nil
}

// scanPromotionRow scans one row of a multi-row result set. totalCount, when
// non-nil, receives the trailing count(*) OVER() column.
func scanPromotionRow(rows pgx.Rows, totalCount *int) (*domain.Promotion, error) {
	p, err := scanPromotionFrom(rows, totalCount)
	if err != nil {
		return nil, fmt.Errorf("scan promotion row: %w", err)
	}
	return p, nil
}

func scanPromotionFrom(row pgx.Row, totalCount *int) (*domain.Promotion, error) {
	var (
		p                 domain.Promotion
		tagsJSON          []byte
		buyXGetYJSON      []byte
		targetCatsJSON    []byte
		targetProdsJSON   []byte
		targetCollsJSON   []byte
		excludedCatsJSON  []byte
		excludedProdsJSON []byte
		excludedCollsJSON []byte
	)

	dest := []any{
		&p.ID,
		&p.Name,
		&p.Description,
		&tagsJSON,
		&p.Notes,
		&p.Type,
		&p.DiscountType,
		&p.DiscountValue,
		&buyXGetYJSON,
		&p.Scope,
		&targetCatsJSON,
		&targetProdsJSON,
		&targetCollsJSON,
		&p.CustomerSegment,
		&p.UsageLimit,
		&p.UsageLimitPerCustomer,
		&p.MinimumPurchaseAmount,
		&p.MinimumQuantity,
		&excludedCatsJSON,
		&excludedProdsJSON,
		&excludedCollsJSON,
		&p.ExcludeDiscountedItems,
		&p.StartsAt,
		&p.EndsAt,
		&p.IsActive,
		&p.IsScheduled,
		&p.UsedCount,
		&p.TotalRedemptions,
		&p.TotalRevenue,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
	if totalCount != nil {
		dest = append(dest, totalCount)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	for _, col := range []struct {
		raw  []byte
		into *[]string
	}{
		{tagsJSON, &p.Tags},
		{targetCatsJSON, &p.TargetCategories},
		{targetProdsJSON, &p.TargetProducts},
		{targetCollsJSON, &p.TargetCollections},
		{excludedCatsJSON, &p.ExcludedCategories},
		{excludedProdsJSON, &p.ExcludedProducts},
		{excludedCollsJSON, &p.ExcludedCollections},
	} {
		if col.raw != nil {
			if err := json.Unmarshal(col.raw, col.into); err != nil {
				return nil, fmt.Errorf("unmarshal string list column: %w", err)
			}
		}
		if *col.into == nil {
			*col.into = []string{}
		}
	}

	if buyXGetYJSON != nil {
		var cfg domain.BuyXGetYConfig
		if err := json.Unmarshal(buyXGetYJSON, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal buy_x_get_y: %w", err)
		}
		p.BuyXGetY = &cfg
	}

	return &p, nil
}

// prefixColumns qualifies every column in a comma-separated list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
