package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/promotion-engine/internal/domain"
	"github.com/utafrali/promotion-engine/internal/event"
	"github.com/utafrali/promotion-engine/internal/repository"
	apperrors "github.com/utafrali/promotion-engine/pkg/errors"
)

// AssignmentService implements the business logic for granting promotions to
// customers.
type AssignmentService struct {
	assignments repository.AssignmentRepository
	promotions  repository.PromotionRepository
	producer    *event.Producer
	logger      *slog.Logger
}

// NewAssignmentService creates a new assignment service.
func NewAssignmentService(
	assignments repository.AssignmentRepository,
	promotions repository.PromotionRepository,
	producer *event.Producer,
	logger *slog.Logger,
) *AssignmentService {
	return &AssignmentService{
		assignments: assignments,
		promotions:  promotions,
		producer:    producer,
		logger:      logger,
	}
}

// AssignInput holds the parameters for assigning a promotion to a customer.
type AssignInput struct {
	PromotionID string
	CustomerID  string
	Type        string
	ExpiresAt   *time.Time
}

// Assign grants a promotion to a customer. Assigning the same promotion to
// the same customer twice is idempotent: the existing assignment is
// reactivated and its expiry refreshed.
func (s *AssignmentService) Assign(ctx context.Context, input *AssignInput) (*domain.Assignment, error) {
	if input.CustomerID == "" {
		return nil, apperrors.InvalidInput("customer id is required")
	}
	if !domain.IsValidAssignmentType(input.Type) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid assignment type %q", input.Type))
	}
	if input.Type == domain.AssignmentTypeTemporary && input.ExpiresAt == nil {
		return nil, apperrors.InvalidInput("temporary assignments require an expiry")
	}
	if input.Type == domain.AssignmentTypePermanent && input.ExpiresAt != nil {
		return nil, apperrors.InvalidInput("permanent assignments must not carry an expiry")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(time.Now().UTC()) {
		return nil, apperrors.InvalidInput("expiry must be in the future")
	}

	if _, err := s.promotions.GetByID(ctx, input.PromotionID); err != nil {
		return nil, fmt.Errorf("get promotion for assignment: %w", err)
	}

	assignment := &domain.Assignment{
		ID:          uuid.New().String(),
		PromotionID: input.PromotionID,
		CustomerID:  input.CustomerID,
		Type:        input.Type,
		IsActive:    true,
		AssignedAt:  time.Now().UTC(),
		ExpiresAt:   input.ExpiresAt,
	}

	if err := s.assignments.Upsert(ctx, assignment); err != nil {
		return nil, fmt.Errorf("upsert assignment: %w", err)
	}

	if err := s.producer.PublishPromotionAssigned(ctx, assignment); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion.assigned event",
			slog.String("assignment_id", assignment.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "promotion assigned",
		slog.String("assignment_id", assignment.ID),
		slog.String("promotion_id", assignment.PromotionID),
		slog.String("customer_id", assignment.CustomerID),
	)

	return assignment, nil
}

// BulkAssignInput holds the parameters for granting a promotion to a whole
// segment or to a batch of customers. Exactly one of Segment and
// CustomerIDs must be set.
type BulkAssignInput struct {
	Segment     string
	CustomerIDs []string
	Type        string
	ExpiresAt   *time.Time
}

// BulkAssignResult reports the outcome of a bulk assignment.
type BulkAssignResult struct {
	AssignedCount int                 `json:"assigned_count"`
	Segment       string              `json:"segment,omitempty"`
	Assignments   []domain.Assignment `json:"assignments,omitempty"`
}

// BulkAssign grants a promotion either to every member of a segment or to a
// list of individual customers. The segment path tags the promotion itself,
// so membership is decided at evaluation time against the live segment; the
// customer path upserts one assignment row per customer.
func (s *AssignmentService) BulkAssign(ctx context.Context, promotionID string, input *BulkAssignInput) (*BulkAssignResult, error) {
	if input.Segment != "" && len(input.CustomerIDs) > 0 {
		return nil, apperrors.InvalidInput("segment and customer_ids are mutually exclusive")
	}
	if input.Segment == "" && len(input.CustomerIDs) == 0 {
		return nil, apperrors.InvalidInput("either segment or customer_ids is required")
	}

	if input.Segment != "" {
		if !domain.IsValidSegment(input.Segment) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("invalid customer segment %q", input.Segment))
		}

		promotion, err := s.promotions.GetByID(ctx, promotionID)
		if err != nil {
			return nil, fmt.Errorf("get promotion for segment assignment: %w", err)
		}

		promotion.Scope = domain.ScopeCustomerSegments
		promotion.CustomerSegment = input.Segment
		promotion.UpdatedAt = time.Now().UTC()

		if err := s.promotions.Update(ctx, promotion); err != nil {
			return nil, fmt.Errorf("tag promotion with segment: %w", err)
		}

		if err := s.producer.PublishPromotionUpdated(ctx, promotion); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish promotion.updated event",
				slog.String("promotion_id", promotion.ID),
				slog.String("error", err.Error()),
			)
		}

		s.logger.InfoContext(ctx, "promotion assigned to segment",
			slog.String("promotion_id", promotionID),
			slog.String("segment", input.Segment),
		)

		return &BulkAssignResult{Segment: input.Segment}, nil
	}

	result := &BulkAssignResult{}
	for _, customerID := range input.CustomerIDs {
		assignment, err := s.Assign(ctx, &AssignInput{
			PromotionID: promotionID,
			CustomerID:  customerID,
			Type:        input.Type,
			ExpiresAt:   input.ExpiresAt,
		})
		if err != nil {
			return nil, err
		}
		result.Assignments = append(result.Assignments, *assignment)
		result.AssignedCount++
	}

	return result, nil
}

// ListByCustomer returns all assignments held by the given customer.
func (s *AssignmentService) ListByCustomer(ctx context.Context, customerID string) ([]domain.Assignment, error) {
	assignments, err := s.assignments.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list assignments by customer: %w", err)
	}
	return assignments, nil
}

// ListByPromotion returns all assignments of the given promotion.
func (s *AssignmentService) ListByPromotion(ctx context.Context, promotionID string) ([]domain.Assignment, error) {
	assignments, err := s.assignments.ListByPromotion(ctx, promotionID)
	if err != nil {
		return nil, fmt.Errorf("list assignments by promotion: %w", err)
	}
	return assignments, nil
}

// Revoke deactivates an assignment. The record is kept for audit.
func (s *AssignmentService) Revoke(ctx context.Context, id string) error {
	if err := s.assignments.Revoke(ctx, id); err != nil {
		return fmt.Errorf("revoke assignment: %w", err)
	}

	s.logger.InfoContext(ctx, "assignment revoked",
		slog.String("assignment_id", id),
	)

	return nil
}
