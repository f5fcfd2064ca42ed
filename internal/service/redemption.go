package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/promotion-engine/internal/domain"
	"github.com/utafrali/promotion-engine/internal/event"
	"github.com/utafrali/promotion-engine/internal/repository"
	"github.com/utafrali/promotion-engine/internal/segment"
	apperrors "github.com/utafrali/promotion-engine/pkg/errors"
)

// maxReserveAttempts bounds how often a redemption re-evaluates after losing
// a race for the last usage slot of a candidate promotion.
const maxReserveAttempts = 3

// RedemptionService implements the evaluate-and-redeem pipeline: candidate
// selection, eligibility, discount calculation, and the atomic usage
// reservation.
type RedemptionService struct {
	promotions  repository.PromotionRepository
	assignments repository.AssignmentRepository
	redemptions repository.RedemptionRepository
	segments    segment.Resolver
	producer    *event.Producer
	logger      *slog.Logger
}

// NewRedemptionService creates a new redemption service.
func NewRedemptionService(
	promotions repository.PromotionRepository,
	assignments repository.AssignmentRepository,
	redemptions repository.RedemptionRepository,
	segments segment.Resolver,
	producer *event.Producer,
	logger *slog.Logger,
) *RedemptionService {
	return &RedemptionService{
		promotions:  promotions,
		assignments: assignments,
		redemptions: redemptions,
		segments:    segments,
		producer:    producer,
		logger:      logger,
	}
}

// RejectedPromotion names a candidate that did not apply and why.
type RejectedPromotion struct {
	PromotionID string `json:"promotion_id"`
	Name        string `json:"name"`
	Reason      string `json:"reason"`
	Message     string `json:"message"`
}

// EvaluationResult is the outcome of evaluating an order against the catalog.
// When Eligible is true, Promotion carries the winning candidate and
// DiscountAmount the cents it takes off the subtotal.
type EvaluationResult struct {
	Eligible       bool                `json:"eligible"`
	Promotion      *domain.Promotion   `json:"promotion,omitempty"`
	CodeUsed       *string             `json:"code_used,omitempty"`
	DiscountAmount int64               `json:"discount_amount"`
	FinalAmount    int64               `json:"final_amount"`
	Rejections     []RejectedPromotion `json:"rejections,omitempty"`

	codeID *string
}

// Evaluate is the read-only half of the pipeline: it resolves candidates,
// checks eligibility, and calculates discounts without consuming any usage.
// With a code on the order the candidate set is exactly that code's
// promotion; with a promotion id it is that promotion, gated by its
// assignments; otherwise every auto-applicable promotion competes and the
// best discount wins, earliest-created breaking ties.
func (s *RedemptionService) Evaluate(ctx context.Context, order *domain.OrderContext) (*EvaluationResult, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	return s.evaluate(ctx, order, nil)
}

func (s *RedemptionService) evaluate(ctx context.Context, order *domain.OrderContext, excluded map[string]bool) (*EvaluationResult, error) {
	now := time.Now().UTC()

	type candidate struct {
		promotion *domain.Promotion
		code      *domain.PromotionCode
	}

	var candidates []candidate

	result := &EvaluationResult{FinalAmount: order.Subtotal}

	switch {
	case order.Code != "":
		code, err := s.promotions.GetCodeByValue(ctx, order.Code)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.InvalidCode(order.Code)
			}
			return nil, fmt.Errorf("get code: %w", err)
		}
		if order.PromotionID != "" && code.PromotionID != order.PromotionID {
			return nil, apperrors.InvalidInput("code does not belong to the requested promotion")
		}

		promotion, err := s.promotions.GetByID(ctx, code.PromotionID)
		if err != nil {
			return nil, fmt.Errorf("get promotion for code: %w", err)
		}

		candidates = append(candidates, candidate{promotion: promotion, code: code})

	case order.PromotionID != "":
		promotion, err := s.promotions.GetByID(ctx, order.PromotionID)
		if err != nil {
			return nil, fmt.Errorf("get requested promotion: %w", err)
		}

		reason, err := s.confirmTargeting(ctx, promotion, order.CustomerID, now)
		if err != nil {
			return nil, err
		}
		if reason != nil {
			result.Rejections = append(result.Rejections, RejectedPromotion{
				PromotionID: promotion.ID,
				Name:        promotion.Name,
				Reason:      reason.Reason,
				Message:     reason.Message,
			})
			return result, nil
		}

		candidates = append(candidates, candidate{promotion: promotion})

	default:
		promotions, err := s.promotions.FindAutoApplicable(ctx, order.CustomerID, now)
		if err != nil {
			return nil, fmt.Errorf("find auto-applicable promotions: %w", err)
		}
		for i := range promotions {
			candidates = append(candidates, candidate{promotion: &promotions[i]})
		}
	}

	seg, segKnown := s.resolveSegment(ctx, order)

	for _, c := range candidates {
		if excluded[c.promotion.ID] {
			continue
		}

		usage := 0
		if c.promotion.UsageLimitPerCustomer != nil {
			var err error
			usage, err = s.redemptions.CustomerUsage(ctx, c.promotion.ID, order.CustomerID)
			if err != nil {
				return nil, fmt.Errorf("get customer usage: %w", err)
			}
		}

		if reason := CheckEligibility(EligibilityInput{
			Promotion:     c.promotion,
			Order:         order,
			Code:          c.code,
			Segment:       seg,
			SegmentKnown:  segKnown,
			CustomerUsage: usage,
			Now:           now,
		}); reason != nil {
			result.Rejections = append(result.Rejections, RejectedPromotion{
				PromotionID: c.promotion.ID,
				Name:        c.promotion.Name,
				Reason:      reason.Reason,
				Message:     reason.Message,
			})
			continue
		}

		discount := CalculateDiscount(c.promotion, order)
		if discount <= 0 {
			result.Rejections = append(result.Rejections, RejectedPromotion{
				PromotionID: c.promotion.ID,
				Name:        c.promotion.Name,
				Reason:      ReasonNoApplicableItems,
				Message:     "promotion yields no discount for this order",
			})
			continue
		}

		// Best discount wins; candidates arrive ordered by creation time,
		// so the earliest promotion takes strict-greater ties.
		if !result.Eligible || discount > result.DiscountAmount {
			result.Eligible = true
			result.Promotion = c.promotion
			result.DiscountAmount = discount
			result.FinalAmount = order.Subtotal - discount
			if c.code != nil {
				codeValue := c.code.Code
				result.CodeUsed = &codeValue
				codeID := c.code.ID
				result.codeID = &codeID
			}
		}
	}

	return result, nil
}

// RedeemInput holds the parameters for recording a redemption.
type RedeemInput struct {
	Order *domain.OrderContext
}

// Redeem runs the full pipeline and consumes a usage slot. When several
// promotions competed and the winner lost the race for its last slot, the
// evaluation is retried without it, up to maxReserveAttempts times, so a
// concurrent sell-out degrades to the next-best promotion instead of failing
// the order.
func (s *RedemptionService) Redeem(ctx context.Context, input *RedeemInput) (*domain.Redemption, *EvaluationResult, error) {
	order := input.Order
	if err := validateOrder(order); err != nil {
		return nil, nil, err
	}
	if order.OrderID == "" {
		return nil, nil, apperrors.InvalidInput("order id is required")
	}

	excluded := make(map[string]bool)

	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		result, err := s.evaluate(ctx, order, excluded)
		if err != nil {
			return nil, nil, err
		}

		if !result.Eligible {
			return nil, nil, rejectionError(result)
		}

		redemption := &domain.Redemption{
			ID:             uuid.New().String(),
			PromotionID:    result.Promotion.ID,
			CodeUsed:       result.CodeUsed,
			CustomerID:     order.CustomerID,
			OrderID:        order.OrderID,
			OrderSubtotal:  order.Subtotal,
			DiscountAmount: result.DiscountAmount,
			Status:         domain.RedemptionStatusRecorded,
			RedeemedAt:     time.Now().UTC(),
		}

		err = s.redemptions.ReserveAndRecord(ctx, redemption, result.codeID, result.Promotion.UsageLimitPerCustomer)
		if err != nil {
			if errors.Is(err, apperrors.ErrUsageLimitExceeded) && order.Code == "" && order.PromotionID == "" {
				// Lost the race for this promotion's last slot; retry
				// the evaluation without it.
				s.logger.WarnContext(ctx, "usage reservation lost race, re-evaluating",
					slog.String("promotion_id", result.Promotion.ID),
					slog.String("order_id", order.OrderID),
					slog.Int("attempt", attempt),
				)
				excluded[result.Promotion.ID] = true
				continue
			}
			return nil, nil, fmt.Errorf("reserve and record redemption: %w", err)
		}

		if err := s.producer.PublishPromotionRedeemed(ctx, redemption); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish promotion.redeemed event",
				slog.String("redemption_id", redemption.ID),
				slog.String("error", err.Error()),
			)
			// Do not fail the operation if event publishing fails.
		}

		s.logger.InfoContext(ctx, "promotion redeemed",
			slog.String("redemption_id", redemption.ID),
			slog.String("promotion_id", redemption.PromotionID),
			slog.String("order_id", redemption.OrderID),
			slog.Int64("discount_amount", redemption.DiscountAmount),
		)

		return redemption, result, nil
	}

	return nil, nil, apperrors.Conflict("redemption could not be reserved, please retry")
}

// Void reverses a recorded redemption and releases its usage slots.
func (s *RedemptionService) Void(ctx context.Context, id string) (*domain.Redemption, error) {
	redemption, err := s.redemptions.Void(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("void redemption: %w", err)
	}

	if err := s.producer.PublishRedemptionVoided(ctx, redemption); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish redemption.voided event",
			slog.String("redemption_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "redemption voided",
		slog.String("redemption_id", id),
		slog.String("promotion_id", redemption.PromotionID),
	)

	return redemption, nil
}

// GetRedemption retrieves a redemption record by its ID.
func (s *RedemptionService) GetRedemption(ctx context.Context, id string) (*domain.Redemption, error) {
	redemption, err := s.redemptions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	return redemption, nil
}

// ListRedemptions returns a filtered, paginated list of redemption records.
func (s *RedemptionService) ListRedemptions(ctx context.Context, filter repository.RedemptionFilter) ([]domain.Redemption, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	redemptions, total, err := s.redemptions.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list redemptions: %w", err)
	}

	return redemptions, total, nil
}

// confirmTargeting decides whether the customer may use a promotion requested
// by id without a code. An active assignment always grants access; otherwise
// the promotion must be open, meaning it carries neither assignments nor
// codes.
func (s *RedemptionService) confirmTargeting(ctx context.Context, p *domain.Promotion, customerID string, now time.Time) (*Ineligibility, error) {
	if s.assignments != nil {
		_, err := s.assignments.GetActive(ctx, p.ID, customerID, now)
		if err == nil {
			return nil, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get active assignment: %w", err)
		}

		targeted, err := s.assignments.HasActive(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("check promotion targeting: %w", err)
		}
		if targeted {
			return &Ineligibility{Reason: ReasonNotAssigned, Message: "promotion is not assigned to this customer"}, nil
		}
	}

	codes, err := s.promotions.ListCodes(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list promotion codes: %w", err)
	}
	if len(codes) > 0 {
		return &Ineligibility{Reason: ReasonCodeRequired, Message: "promotion requires a code"}, nil
	}

	return nil, nil
}

// resolveSegment determines the customer's segment for this evaluation. An
// explicitly supplied segment wins; otherwise the resolver is asked. When
// resolution fails, segment-gated promotions fail closed rather than guess.
func (s *RedemptionService) resolveSegment(ctx context.Context, order *domain.OrderContext) (string, bool) {
	if order.Segment != "" {
		return order.Segment, true
	}
	if s.segments == nil {
		return "", false
	}

	seg, err := s.segments.Resolve(ctx, order.CustomerID)
	if err != nil {
		s.logger.WarnContext(ctx, "segment resolution failed",
			slog.String("customer_id", order.CustomerID),
			slog.String("error", err.Error()),
		)
		return "", false
	}

	return seg, true
}

// rejectionError converts an ineligible evaluation into the error the
// redemption endpoint reports. With a single candidate the reason is
// specific; with none at all the order simply has nothing to redeem.
func rejectionError(result *EvaluationResult) error {
	if len(result.Rejections) == 0 {
		return apperrors.NotEligible("no promotion applies to this order")
	}

	r := result.Rejections[0]
	switch r.Reason {
	case ReasonExpired, ReasonNotStarted:
		return apperrors.Expired(r.Message)
	case ReasonCodeInactive, ReasonCodeRequired:
		return apperrors.InvalidCode(r.Message)
	case ReasonUsageLimitReached, ReasonCustomerLimitReached, ReasonCodeLimitReached:
		return apperrors.UsageLimitExceeded(r.Message)
	default:
		return apperrors.NotEligible(r.Message)
	}
}

func validateOrder(order *domain.OrderContext) error {
	if order == nil {
		return apperrors.InvalidInput("order is required")
	}
	if order.CustomerID == "" {
		return apperrors.InvalidInput("customer id is required")
	}
	if len(order.Items) == 0 {
		return apperrors.InvalidInput("order must contain at least one item")
	}

	var sum int64
	for _, li := range order.Items {
		if li.ProductID == "" {
			return apperrors.InvalidInput("every line item requires a product id")
		}
		if li.UnitPrice < 0 {
			return apperrors.InvalidInput("unit price must not be negative")
		}
		if li.Quantity <= 0 {
			return apperrors.InvalidInput("quantity must be positive")
		}
		sum += li.Total()
	}

	if order.Subtotal != sum {
		return apperrors.InvalidInput("subtotal does not match the sum of line totals")
	}

	order.Code = strings.ToUpper(strings.TrimSpace(order.Code))

	return nil
}
