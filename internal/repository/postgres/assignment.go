package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/promotion-engine/internal/domain"
	"github.com/utafrali/promotion-engine/pkg/database"
	apperrors "github.com/utafrali/promotion-engine/pkg/errors"
)

const assignmentColumns = `id, promotion_id, customer_id, type, is_active, assigned_at, expires_at`

// AssignmentRepository implements repository.AssignmentRepository using PostgreSQL.
type AssignmentRepository struct {
	pool database.DBTX
}

// NewAssignmentRepository creates a new PostgreSQL-backed assignment repository.
func NewAssignmentRepository(pool database.DBTX) *AssignmentRepository {
	return &AssignmentRepository{pool: pool}
}

// Upsert inserts an assignment, or reactivates and refreshes the existing one
// for the same promotion and customer. Assigning twice is idempotent.
func (r *AssignmentRepository) Upsert(ctx context.Context, a *domain.Assignment) error {
	query := `
		INSERT INTO promotion_assignments (id, promotion_id, customer_id, type, is_active, assigned_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (promotion_id, customer_id) DO UPDATE SET
			type = EXCLUDED.type,
			is_active = EXCLUDED.is_active,
			assigned_at = EXCLUDED.assigned_at,
			expires_at = EXCLUDED.expires_at
		RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		a.ID,
		a.PromotionID,
		a.CustomerID,
		a.Type,
		a.IsActive,
		a.AssignedAt,
		a.ExpiresAt,
	).Scan(&a.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperrors.NotFound("promotion", a.PromotionID)
		}
		return fmt.Errorf("upsert assignment: %w", err)
	}

	return nil
}

// GetByID retrieves an assignment by its ID.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*domain.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM promotion_assignments WHERE id = $1`, assignmentColumns)

	a, err := scanAssignment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get assignment: %w", err)
	}

	return a, nil
}

// GetActive returns the usable assignment for a promotion/customer pair at the
// given instant.
func (r *AssignmentRepository) GetActive(ctx context.Context, promotionID, customerID string, now time.Time) (*domain.Assignment, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM promotion_assignments
		WHERE promotion_id = $1
		  AND customer_id = $2
		  AND is_active = true
		  AND (expires_at IS NULL OR expires_at >= $3)`, assignmentColumns)

	a, err := scanAssignment(r.pool.QueryRow(ctx, query, promotionID, customerID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get active assignment: %w", err)
	}

	return a, nil
}

// HasActive reports whether the promotion carries any active individual
// assignments.
func (r *AssignmentRepository) HasActive(ctx context.Context, promotionID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM promotion_assignments WHERE promotion_id = $1 AND is_active = true)`,
		promotionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check promotion assignments: %w", err)
	}

	return exists, nil
}

// ListByCustomer returns all assignments held by the given customer.
func (r *AssignmentRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Assignment, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM promotion_assignments
		WHERE customer_id = $1
		ORDER BY assigned_at DESC`, assignmentColumns)

	return r.list(ctx, query, customerID)
}

// ListByPromotion returns all assignments of the given promotion.
func (r *AssignmentRepository) ListByPromotion(ctx context.Context, promotionID string) ([]domain.Assignment, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM promotion_assignments
		WHERE promotion_id = $1
		ORDER BY assigned_at DESC`, assignmentColumns)

	return r.list(ctx, query, promotionID)
}

// Revoke deactivates an assignment without deleting it.
func (r *AssignmentRepository) Revoke(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE promotion_assignments SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke assignment: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("assignment", id)
	}

	return nil
}

func (r *AssignmentRepository) list(ctx context.Context, query string, arg any) ([]domain.Assignment, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment row: %w", err)
		}
		assignments = append(assignments, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignment rows: %w", err)
	}

	if assignments == nil {
		assignments = []domain.Assignment{}
	}

	return assignments, nil
}

func scanAssignment(row pgx.Row) (*domain.Assignment, error) {
	var a domain.Assignment
	err := row.Scan(
		&a.ID,
		&a.PromotionID,
		&a.CustomerID,
		&a.Type,
		&a.IsActive,
		&a.AssignedAt,
		&a.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// isForeignKeyViolation checks if the error is a PostgreSQL foreign key violation (SQLSTATE 23503).
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23503")
}
