package postgres

import (
	"context"
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

const redemptionColumns = `id, promotion_id, code_used, customer_id, order_id, order_subtotal,
	discount_amount, status, redeemed_at, voided_at`

// RedemptionRepository implements repository.RedemptionRepository using PostgreSQL.
type RedemptionRepository struct {
	pool database.DBTX
}

// NewRedemptionRepository creates a new PostgreSQL-backed redemption repository.
func NewRedemptionRepository(pool database.DBTX) *RedemptionRepository {
	return &RedemptionRepository{pool: pool}
}

// ReserveAndRecord atomically consumes one usage slot on the promotion, the
// code (when present), and the per-customer counter, then appends the
// redemption record. Everything happens in a single transaction: either all
// counters move and the record exists, or nothing changed. Conditional
// updates carry the limit check in their WHERE clause, so two concurrent
// redemptions racing for the last slot serialize on the promotion row and
// exactly one of them commits.
func (r *RedemptionRepository) ReserveAndRecord(ctx context.Context, red *domain.Redemption, codeID *string, perCustomerLimit *int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	reserveQuery := `
		UPDATE promotions
		SET used_count = used_count + 1,
		    total_redemptions = total_redemptions + 1,
		    total_revenue = total_revenue + $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND is_active = true
		  AND (usage_limit IS NULL OR used_count < usage_limit)`

	ct, err := tx.Exec(ctx, reserveQuery, red.PromotionID, red.OrderSubtotal)
	if err != nil {
		return fmt.Errorf("reserve promotion usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM promotions WHERE id = $1)`, red.PromotionID).Scan(&exists); err != nil {
			return fmt.Errorf("check promotion exists: %w", err)
		}
		if !exists {
			return apperrors.NotFound("promotion", red.PromotionID)
		}
		return apperrors.UsageLimitExceeded("promotion usage limit reached")
	}

	if codeID != nil {
		codeQuery := `
			UPDATE promotion_codes
			SET used_count = used_count + 1
			WHERE id = $1
			  AND is_active = true
			  AND (usage_limit IS NULL OR used_count < usage_limit)`

		ct, err := tx.Exec(ctx, codeQuery, *codeID)
		if err != nil {
			return fmt.Errorf("reserve code usage: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return apperrors.UsageLimitExceeded("code usage limit reached")
		}
	}

	customerQuery := `
		INSERT INTO promotion_customer_usage (promotion_id, customer_id, used_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (promotion_id, customer_id) DO UPDATE SET
			used_count = promotion_customer_usage.used_count + 1
		WHERE $3::int IS NULL OR promotion_customer_usage.used_count < $3`

	ct, err = tx.Exec(ctx, customerQuery, red.PromotionID, red.CustomerID, perCustomerLimit)
	if err != nil {
		return fmt.Errorf("reserve per-customer usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.UsageLimitExceeded("per-customer usage limit reached")
	}

	insertQuery := `
		INSERT INTO redemptions (id, promotion_id, code_used, customer_id, order_id, order_subtotal, discount_amount, status, redeemed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.Exec(ctx, insertQuery,
		red.ID,
		red.PromotionID,
		red.CodeUsed,
		red.CustomerID,
		red.OrderID,
		red.OrderSubtotal,
		red.DiscountAmount,
		red.Status,
		red.RedeemedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("redemption", "order_id", red.OrderID)
		}
		return fmt.Errorf("insert redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a redemption record by its ID.
func (r *RedemptionRepository) GetByID(ctx context.Context, id string) (*domain.Redemption, error) {
	query := fmt.Sprintf(`SELECT %s FROM redemptions WHERE id = $1`, redemptionColumns)

	red, err := scanRedemption(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get redemption: %w", err)
	}

	return red, nil
}

// List returns redemption records matching the given filter with the total count.
func (r *RedemptionRepository) List(ctx context.Context, filter repository.RedemptionFilter) ([]domain.Redemption, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.PromotionID != nil {
		conditions = append(conditions, fmt.Sprintf("promotion_id = $%d", argIndex))
		args = append(args, *filter.PromotionID)
		argIndex++
	}

	if filter.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argIndex))
		args = append(args, *filter.CustomerID)
		argIndex++
	}

	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("redeemed_at >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}

	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("redeemed_at <= $%d", argIndex))
		args = append(args, *filter.To)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM redemptions
		%s
		ORDER BY redeemed_at DESC
		LIMIT $%d OFFSET $%d`,
		redemptionColumns, whereClause, argIndex, argIndex+1,
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
		return nil, 0, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	var (
		redemptions []domain.Redemption
		totalCount  int
	)

	for rows.Next() {
		var red domain.Redemption
		if err := rows.Scan(
			&red.ID,
			&red.PromotionID,
			&red.CodeUsed,
			&red.CustomerID,
			&red.OrderID,
			&red.OrderSubtotal,
			&red.DiscountAmount,
			&red.Status,
			&red.RedeemedAt,
			&red.VoidedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan redemption row: %w", err)
		}
		redemptions = append(redemptions, red)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate redemption rows: %w", err)
	}

	if redemptions == nil {
		redemptions = []domain.Redemption{}
	}

	return redemptions, totalCount, nil
}

// Void reverses a recorded redemption. The status flip and every counter
// decrement happen in one transaction; voiding an already-voided record is a
// conflict and changes nothing.
func (r *RedemptionRepository) Void(ctx context.Context, id string) (*domain.Redemption, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	voidQuery := fmt.Sprintf(`
		UPDATE redemptions
		SET status = $2, voided_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING %s`, redemptionColumns)

	red, err := scanRedemption(tx.QueryRow(ctx, voidQuery, id, domain.RedemptionStatusVoided, domain.RedemptionStatusRecorded))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing record from a double void.
			var status string
			err := tx.QueryRow(ctx, `SELECT status FROM redemptions WHERE id = $1`, id).Scan(&status)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NotFound("redemption", id)
			}
			if err != nil {
				return nil, fmt.Errorf("check redemption status: %w", err)
			}
			return nil, apperrors.Conflict("redemption already voided")
		}
		return nil, fmt.Errorf("void redemption: %w", err)
	}

	releaseQuery := `
		UPDATE promotions
		SET used_count = used_count - 1,
		    total_redemptions = total_redemptions - 1,
		    total_revenue = total_revenue - $2,
		    updated_at = NOW()
		WHERE id = $1`

	if _, err := tx.Exec(ctx, releaseQuery, red.PromotionID, red.OrderSubtotal); err != nil {
		return nil, fmt.Errorf("release promotion usage: %w", err)
	}

	if red.CodeUsed != nil {
		codeQuery := `UPDATE promotion_codes SET used_count = used_count - 1 WHERE promotion_id = $1 AND code = $2`
		if _, err := tx.Exec(ctx, codeQuery, red.PromotionID, *red.CodeUsed); err != nil {
			return nil, fmt.Errorf("release code usage: %w", err)
		}
	}

	customerQuery := `
		UPDATE promotion_customer_usage
		SET used_count = used_count - 1
		WHERE promotion_id = $1 AND customer_id = $2 AND used_count > 0`

	if _, err := tx.Exec(ctx, customerQuery, red.PromotionID, red.CustomerID); err != nil {
		return nil, fmt.Errorf("release per-customer usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return red, nil
}

// CustomerUsage returns how many non-voided redemptions the customer has
// against the given promotion.
func (r *RedemptionRepository) CustomerUsage(ctx context.Context, promotionID, customerID string) (int, error) {
	query := `SELECT COALESCE(used_count, 0) FROM promotion_customer_usage WHERE promotion_id = $1 AND customer_id = $2`

	var count int
	err := r.pool.QueryRow(ctx, query, promotionID, customerID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get customer usage: %w", err)
	}

	return count, nil
}

// Stats returns the analytics rollup for one promotion.
func (r *RedemptionRepository) Stats(ctx context.Context, promotionID string) (*domain.PromotionStats, error) {
	query := `
		SELECT p.id, p.name,
		       count(r.id) FILTER (WHERE r.status = 'recorded') AS total_redemptions,
		       COALESCE(sum(r.discount_amount) FILTER (WHERE r.status = 'recorded'), 0) AS total_discounted,
		       COALESCE(sum(r.order_subtotal) FILTER (WHERE r.status = 'recorded'), 0) AS total_revenue,
		       count(DISTINCT r.customer_id) FILTER (WHERE r.status = 'recorded') AS unique_customers
		FROM promotions p
		LEFT JOIN redemptions r ON r.promotion_id = p.id
		WHERE p.id = $1
		GROUP BY p.id, p.name`

	var s domain.PromotionStats
	err := r.pool.QueryRow(ctx, query, promotionID).Scan(
		&s.PromotionID,
		&s.Name,
		&s.TotalRedemptions,
		&s.TotalDiscounted,
		&s.TotalRevenue,
		&s.UniqueCustomers,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get promotion stats: %w", err)
	}

	if s.TotalRedemptions > 0 {
		s.AverageDiscount = float64(s.TotalDiscounted) / float64(s.TotalRedemptions)
	}

	return &s, nil
}

// StatsAll returns rollups for every promotion with at least one recorded
// redemption in the optional time range.
func (r *RedemptionRepository) StatsAll(ctx context.Context, from, to *time.Time) ([]domain.PromotionStats, error) {
	query := `
		SELECT p.id, p.name,
		       count(r.id) AS total_redemptions,
		       COALESCE(sum(r.discount_amount), 0) AS total_discounted,
		       COALESCE(sum(r.order_subtotal), 0) AS total_revenue,
		       count(DISTINCT r.customer_id) AS unique_customers
		FROM promotions p
		JOIN redemptions r ON r.promotion_id = p.id
		WHERE r.status = 'recorded'
		  AND ($1::timestamptz IS NULL OR r.redeemed_at >= $1)
		  AND ($2::timestamptz IS NULL OR r.redeemed_at <= $2)
		GROUP BY p.id, p.name
		ORDER BY total_discounted DESC`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list promotion stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.PromotionStats
	for rows.Next() {
		var s domain.PromotionStats
		if err := rows.Scan(
			&s.PromotionID,
			&s.Name,
			&s.TotalRedemptions,
			&s.TotalDiscounted,
			&s.TotalRevenue,
			&s.UniqueCustomers,
		); err != nil {
			return nil, fmt.Errorf("scan promotion stats row: %w", err)
		}
		if s.TotalRedemptions > 0 {
			s.AverageDiscount = float64(s.TotalDiscounted) / float64(s.TotalRedemptions)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promotion stats rows: %w", err)
	}

	if stats == nil {
		stats = []domain.PromotionStats{}
	}

	return stats, nil
}

func (r *RedemptionRepository) DailyStats(ctx context.Context, from, to *time.Time) ([]domain.DailyStats, error) {
	query := `
		SELECT date_trunc('day', redeemed_at) AS day,
		       count(id) AS redemptions,
		       COALESCE(sum(discount_amount), 0) AS total_discounted,
		       COALESCE(sum(order_subtotal), 0) AS total_revenue
		FROM redemptions
		WHERE status = 'recorded'
		  AND ($1::timestamptz IS NULL OR redeemed_at >= $1)
		  AND ($2::timestamptz IS NULL OR redeemed_at <= $2)
		GROUP BY day
		ORDER BY day`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.DailyStats
	for rows.Next() {
		var s domain.DailyStats
		if err := rows.Scan(
			&s.Day,
			&s.Redemptions,
			&s.TotalDiscounted,
			&s.TotalRevenue,
		); err != nil {
			return nil, fmt.Errorf("scan daily stats row: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily stats rows: %w", err)
	}

	if stats == nil {
		stats = []domain.DailyStats{}
	}

	return stats, nil
}

func scanRedemption(row pgx.Row) (*domain.Redemption, error) {
	var red domain.Redemption
	err := row.Scan(
		&red.ID,
		&red.PromotionID,
		&red.CodeUsed,
		&red.CustomerID,
		&red.OrderID,
		&red.OrderSubtotal,
		&red.DiscountAmount,
		&red.Status,
		&red.RedeemedAt,
		&red.VoidedAt,
	)
	if err != nil {
		return nil, err
	}
	return &red, nil
}
