package repository

import (
	"context"
	"time"

	"github.com/utafrali/promotion-engine/internal/domain"
)

// PromotionFilter defines filter criteria for listing promotions.
type PromotionFilter struct {
	IsActive *bool
	Type     *string
	Search   *string
	Page     int
	PerPage  int
}

// RedemptionFilter defines filter criteria for listing redemption records.
type RedemptionFilter struct {
	PromotionID *string
	CustomerID  *string
	From        *time.Time
	To          *time.Time
	Page        int
	PerPage     int
}

// PromotionRepository defines the interface for promotion and code persistence.
type PromotionRepository interface {
	// Create inserts a new promotion into the store.
	Create(ctx context.Context, promotion *domain.Promotion) error

	// GetByID retrieves a promotion by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Promotion, error)

	// List returns promotions matching the given filter along with the total count.
	List(ctx context.Context, filter PromotionFilter) ([]domain.Promotion, int, error)

	// Update modifies an existing promotion in the store.
	Update(ctx context.Context, promotion *domain.Promotion) error

	// Delete removes a promotion and its codes and assignments.
	Delete(ctx context.Context, id string) error

	// CreateCode attaches a new redeemable code to a promotion.
	CreateCode(ctx context.Context, code *domain.PromotionCode) error

	// GetCodeByValue retrieves a code by its case-insensitive code string.
	GetCodeByValue(ctx context.Context, code string) (*domain.PromotionCode, error)

	// ListCodes returns all codes attached to the given promotion.
	ListCodes(ctx context.Context, promotionID string) ([]domain.PromotionCode, error)

	// SetCodeActive toggles a code without touching its promotion.
	SetCodeActive(ctx context.Context, codeID string, active bool) error

	// FindAutoApplicable returns active in-window promotions the given
	// customer can use without entering a code: open promotions (no codes,
	// no individual assignments) plus any promotion with an unexpired
	// assignment to the customer.
	FindAutoApplicable(ctx context.Context, customerID string, now time.Time) ([]domain.Promotion, error)
}

// AssignmentRepository defines the interface for customer assignment persistence.
type AssignmentRepository interface {
	// Upsert inserts an assignment, or reactivates and refreshes the
	// existing one for the same promotion and customer.
	Upsert(ctx context.Context, assignment *domain.Assignment) error

	// GetByID retrieves an assignment by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Assignment, error)

	// GetActive returns the usable assignment for a promotion/customer pair
	// at the given instant, or ErrNotFound.
	GetActive(ctx context.Context, promotionID, customerID string, now time.Time) (*domain.Assignment, error)

	// HasActive reports whether the promotion carries any active individual
	// assignments, meaning it is targeted rather than open to everyone.
	HasActive(ctx context.Context, promotionID string) (bool, error)

	// ListByCustomer returns all assignments held by the given customer.
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Assignment, error)

	// ListByPromotion returns all assignments of the given promotion.
	ListByPromotion(ctx context.Context, promotionID string) ([]domain.Assignment, error)

	// Revoke deactivates an assignment without deleting it.
	Revoke(ctx context.Context, id string) error
}

// RedemptionRepository defines the interface for the usage ledger. All limit
// accounting happens inside ReserveAndRecord in a single transaction.
type RedemptionRepository interface {
	// ReserveAndRecord atomically consumes one usage slot on the promotion,
	// the code (when present), and the per-customer counter, and appends
	// the redemption record. It fails with ErrUsageLimitExceeded without
	// side effects when any limit would be breached.
	ReserveAndRecord(ctx context.Context, redemption *domain.Redemption, codeID *string, perCustomerLimit *int) error

	// GetByID retrieves a redemption record by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Redemption, error)

	// List returns redemption records matching the given filter along with the total count.
	List(ctx context.Context, filter RedemptionFilter) ([]domain.Redemption, int, error)

	// Void reverses a recorded redemption: flips its status and releases
	// the usage slots it consumed. Voiding twice is a conflict.
	Void(ctx context.Context, id string) (*domain.Redemption, error)

	// CustomerUsage returns how many non-voided redemptions the customer
	// has against the given promotion.
	CustomerUsage(ctx context.Context, promotionID, customerID string) (int, error)

	// Stats returns the analytics rollup for one promotion.
	Stats(ctx context.Context, promotionID string) (*domain.PromotionStats, error)

	// StatsAll returns rollups for every promotion with at least one redemption.
	StatsAll(ctx context.Context, from, to *time.Time) ([]domain.PromotionStats, error)

	// DailyStats returns the day-by-day redemption time series. Nil bounds
	// leave that side of the window open.
	DailyStats(ctx context.Context, from, to *time.Time) ([]domain.DailyStats, error)
}
