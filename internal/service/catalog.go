package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/promotion-engine/internal/domain"
	"github.com/utafrali/promotion-engine/internal/event"
	"github.com/utafrali/promotion-engine/internal/repository"
	apperrors "github.com/utafrali/promotion-engine/pkg/errors"
)

// CatalogService implements the business logic for promotion and code management.
type CatalogService struct {
	repo     repository.PromotionRepository
	producer *event.Producer
	logger   *slog.Logger
}

// NewCatalogService creates a new promotion catalog service.
func NewCatalogService(repo repository.PromotionRepository, producer *event.Producer, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		repo:     repo,
		producer: producer,
		logger:   logger,
	}
}

// CreatePromotionInput holds the parameters for creating a promotion.
type CreatePromotionInput struct {
	Name                   string
	Description            string
	Tags                   []string
	Notes                  string
	Type                   string
	DiscountType           string
	DiscountValue          int64
	BuyXGetY               *domain.BuyXGetYConfig
	Scope                  string
	TargetCategories       []string
	TargetProducts         []string
	TargetCollections      []string
	CustomerSegment        string
	UsageLimit             *int
	UsageLimitPerCustomer  *int
	MinimumPurchaseAmount  *int64
	MinimumQuantity        *int
	ExcludedCategories     []string
	ExcludedProducts       []string
	ExcludedCollections    []string
	ExcludeDiscountedItems bool
	StartsAt               *time.Time
	EndsAt                 *time.Time
	IsActive               bool
	IsScheduled            bool
}

// UpdatePromotionInput holds the parameters for partially updating a promotion.
// Nil fields are left untouched.
type UpdatePromotionInput struct {
	Name                   *string
	Description            *string
	Tags                   []string
	Notes                  *string
	Type                   *string
	DiscountType           *string
	DiscountValue          *int64
	BuyXGetY               *domain.BuyXGetYConfig
	Scope                  *string
	TargetCategories       []string
	TargetProducts         []string
	TargetCollections      []string
	CustomerSegment        *string
	UsageLimit             *int
	UsageLimitPerCustomer  *int
	MinimumPurchaseAmount  *int64
	MinimumQuantity        *int
	ExcludedCategories     []string
	ExcludedProducts       []string
	ExcludedCollections    []string
	ExcludeDiscountedItems *bool
	StartsAt               *time.Time
	EndsAt                 *time.Time
	IsActive               *bool
	IsScheduled            *bool
}

// CreatePromotion validates the input and creates a new promotion.
func (s *CatalogService) CreatePromotion(ctx context.Context, input *CreatePromotionInput) (*domain.Promotion, error) {
	now := time.Now().UTC()
	promotion := &domain.Promotion{
		ID:                     uuid.New().String(),
		Name:                   strings.TrimSpace(input.Name),
		Description:            input.Description,
		Tags:                   input.Tags,
		Notes:                  input.Notes,
		Type:                   input.Type,
		DiscountType:           input.DiscountType,
		DiscountValue:          input.DiscountValue,
		BuyXGetY:               input.BuyXGetY,
		Scope:                  input.Scope,
		TargetCategories:       input.TargetCategories,
		TargetProducts:         input.TargetProducts,
		TargetCollections:      input.TargetCollections,
		CustomerSegment:        input.CustomerSegment,
		UsageLimit:             input.UsageLimit,
		UsageLimitPerCustomer:  input.UsageLimitPerCustomer,
		MinimumPurchaseAmount:  input.MinimumPurchaseAmount,
		MinimumQuantity:        input.MinimumQuantity,
		ExcludedCategories:     input.ExcludedCategories,
		ExcludedProducts:       input.ExcludedProducts,
		ExcludedCollections:    input.ExcludedCollections,
		ExcludeDiscountedItems: input.ExcludeDiscountedItems,
		StartsAt:               input.StartsAt,
		EndsAt:                 input.EndsAt,
		IsActive:               input.IsActive,
		IsScheduled:            input.IsScheduled,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	for _, list := range []*[]string{
		&promotion.Tags,
		&promotion.TargetCategories, &promotion.TargetProducts, &promotion.TargetCollections,
		&promotion.ExcludedCategories, &promotion.ExcludedProducts, &promotion.ExcludedCollections,
	} {
		if *list == nil {
			*list = []string{}
		}
	}

	if err := validatePromotionSpec(promotion); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, promotion); err != nil {
		return nil, fmt.Errorf("create promotion: %w", err)
	}

	if err := s.producer.PublishPromotionCreated(ctx, promotion); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion.created event",
			slog.String("promotion_id", promotion.ID),
			slog.String("error", err.Error()),
		)
		// Do not fail the operation if event publishing fails.
	}

	s.logger.InfoContext(ctx, "promotion created",
		slog.String("promotion_id", promotion.ID),
		slog.String("name", promotion.Name),
		slog.String("discount_type", promotion.DiscountType),
	)

	return promotion, nil
}

// GetPromotion retrieves a promotion by its ID.
func (s *CatalogService) GetPromotion(ctx context.Context, id string) (*domain.Promotion, error) {
	promotion, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get promotion by id: %w", err)
	}
	return promotion, nil
}

// ListPromotions returns a filtered, paginated list of promotions.
func (s *CatalogService) ListPromotions(ctx context.Context, filter repository.PromotionFilter) ([]domain.Promotion, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	promotions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list promotions: %w", err)
	}

	return promotions, total, nil
}

// UpdatePromotion applies partial updates to an existing promotion and
// re-validates the resulting spec as a whole.
func (s *CatalogService) UpdatePromotion(ctx context.Context, id string, input *UpdatePromotionInput) (*domain.Promotion, error) {
	promotion, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get promotion for update: %w", err)
	}

	if input.Name != nil {
		promotion.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		promotion.Description = *input.Description
	}
	if input.Tags != nil {
		promotion.Tags = input.Tags
	}
	if input.Notes != nil {
		promotion.Notes = *input.Notes
	}
	if input.Type != nil {
		promotion.Type = *input.Type
	}
	if input.DiscountType != nil {
		promotion.DiscountType = *input.DiscountType
	}
	if input.DiscountValue != nil {
		promotion.DiscountValue = *input.DiscountValue
	}
	if input.BuyXGetY != nil {
		promotion.BuyXGetY = input.BuyXGetY
	}
	if input.Scope != nil {
		promotion.Scope = *input.Scope
	}
	if input.TargetCategories != nil {
		promotion.TargetCategories = input.TargetCategories
	}
	if input.TargetProducts != nil {
		promotion.TargetProducts = input.TargetProducts
	}
	if input.TargetCollections != nil {
		promotion.TargetCollections = input.TargetCollections
	}
	if input.CustomerSegment != nil {
		promotion.CustomerSegment = *input.CustomerSegment
	}
	if input.UsageLimit != nil {
		promotion.UsageLimit = input.UsageLimit
	}
	if input.UsageLimitPerCustomer != nil {
		promotion.UsageLimitPerCustomer = input.UsageLimitPerCustomer
	}
	if input.MinimumPurchaseAmount != nil {
		promotion.MinimumPurchaseAmount = input.MinimumPurchaseAmount
	}
	if input.MinimumQuantity != nil {
		promotion.MinimumQuantity = input.MinimumQuantity
	}
	if input.ExcludedCategories != nil {
		promotion.ExcludedCategories = input.ExcludedCategories
	}
	if input.ExcludedProducts != nil {
		promotion.ExcludedProducts = input.ExcludedProducts
	}
	if input.ExcludedCollections != nil {
		promotion.ExcludedCollections = input.ExcludedCollections
	}
	if input.ExcludeDiscountedItems != nil {
		promotion.ExcludeDiscountedItems = *input.ExcludeDiscountedItems
	}
	if input.StartsAt != nil {
		promotion.StartsAt = input.StartsAt
	}
	if input.EndsAt != nil {
		promotion.EndsAt = input.EndsAt
	}
	if input.IsActive != nil {
		promotion.IsActive = *input.IsActive
	}
	if input.IsScheduled != nil {
		promotion.IsScheduled = *input.IsScheduled
	}

	if err := validatePromotionSpec(promotion); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, promotion); err != nil {
		return nil, fmt.Errorf("update promotion: %w", err)
	}

	if err := s.producer.PublishPromotionUpdated(ctx, promotion); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion.updated event",
			slog.String("promotion_id", promotion.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "promotion updated",
		slog.String("promotion_id", promotion.ID),
	)

	return promotion, nil
}

// DeletePromotion removes a promotion along with its codes and assignments.
// Redemption records survive the delete.
func (s *CatalogService) DeletePromotion(ctx context.Context, id string) error {
	promotion, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get promotion for delete: %w", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete promotion: %w", err)
	}

	if err := s.producer.PublishPromotionDeleted(ctx, promotion); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion.deleted event",
			slog.String("promotion_id", promotion.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "promotion deleted",
		slog.String("promotion_id", id),
	)

	return nil
}

// SetActive flips the activation flag of a promotion without touching the
// rest of its spec.
func (s *CatalogService) SetActive(ctx context.Context, id string, active bool) (*domain.Promotion, error) {
	promotion, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get promotion for activation: %w", err)
	}

	if promotion.IsActive == active {
		return promotion, nil
	}

	promotion.IsActive = active
	promotion.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, promotion); err != nil {
		return nil, fmt.Errorf("update promotion activation: %w", err)
	}

	if err := s.producer.PublishPromotionUpdated(ctx, promotion); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion.updated event",
			slog.String("promotion_id", promotion.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "promotion activation changed",
		slog.String("promotion_id", id),
		slog.Bool("active", active),
	)

	return promotion, nil
}

// CreateCodeInput holds the parameters for attaching a code to a promotion.
type CreateCodeInput struct {
	Code       string
	IsPublic   bool
	UsageLimit *int
	IsActive   bool
}

// CreateCode attaches a new redeemable code to the given promotion.
func (s *CatalogService) CreateCode(ctx context.Context, promotionID string, input *CreateCodeInput) (*domain.PromotionCode, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, apperrors.InvalidInput("code is required")
	}
	if input.UsageLimit != nil && *input.UsageLimit <= 0 {
		return nil, apperrors.InvalidInput("code usage limit must be positive")
	}

	// Verify the promotion exists before attaching.
	if _, err := s.repo.GetByID(ctx, promotionID); err != nil {
		return nil, fmt.Errorf("get promotion for code: %w", err)
	}

	promoCode := &domain.PromotionCode{
		ID:          uuid.New().String(),
		PromotionID: promotionID,
		Code:        code,
		IsPublic:    input.IsPublic,
		UsageLimit:  input.UsageLimit,
		IsActive:    input.IsActive,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.CreateCode(ctx, promoCode); err != nil {
		return nil, fmt.Errorf("create promotion code: %w", err)
	}

	s.logger.InfoContext(ctx, "promotion code created",
		slog.String("promotion_id", promotionID),
		slog.String("code", code),
	)

	return promoCode, nil
}

// ListCodes returns all codes attached to the given promotion.
func (s *CatalogService) ListCodes(ctx context.Context, promotionID string) ([]domain.PromotionCode, error) {
	codes, err := s.repo.ListCodes(ctx, promotionID)
	if err != nil {
		return nil, fmt.Errorf("list promotion codes: %w", err)
	}
	return codes, nil
}

// SetCodeActive toggles an individual code without touching its promotion.
func (s *CatalogService) SetCodeActive(ctx context.Context, codeID string, active bool) error {
	if err := s.repo.SetCodeActive(ctx, codeID, active); err != nil {
		return fmt.Errorf("set code active: %w", err)
	}

	s.logger.InfoContext(ctx, "promotion code toggled",
		slog.String("code_id", codeID),
		slog.Bool("active", active),
	)

	return nil
}

// validatePromotionSpec enforces the structural invariants of a promotion.
// It always validates the complete promotion, so partial updates cannot
// sneak an inconsistent combination past the rules.
func validatePromotionSpec(p *domain.Promotion) error {
	if p.Name == "" {
		return apperrors.InvalidPromotionSpec("promotion name is required")
	}
	if !domain.IsValidType(p.Type) {
		return apperrors.InvalidPromotionSpec(fmt.Sprintf("invalid promotion type %q, must be one of: %s", p.Type, strings.Join(domain.ValidTypes(), ", ")))
	}
	if !domain.IsValidDiscountType(p.DiscountType) {
		return apperrors.InvalidPromotionSpec(fmt.Sprintf("invalid discount type %q, must be one of: %s", p.DiscountType, strings.Join(domain.ValidDiscountTypes(), ", ")))
	}
	if !domain.IsValidScope(p.Scope) {
		return apperrors.InvalidPromotionSpec(fmt.Sprintf("invalid scope %q, must be one of: %s", p.Scope, strings.Join(domain.ValidScopes(), ", ")))
	}

	switch p.DiscountType {
	case domain.DiscountTypePercentage:
		if p.DiscountValue <= 0 || p.DiscountValue > 100 {
			return apperrors.InvalidPromotionSpec("percentage discount value must be between 1 and 100")
		}
		if p.BuyXGetY != nil {
			return apperrors.InvalidPromotionSpec("buy_x_get_y config is only valid for buy_x_get_y discounts")
		}
	case domain.DiscountTypeFixedAmount:
		if p.DiscountValue <= 0 {
			return apperrors.InvalidPromotionSpec("fixed amount discount value must be positive")
		}
		if p.BuyXGetY != nil {
			return apperrors.InvalidPromotionSpec("buy_x_get_y config is only valid for buy_x_get_y discounts")
		}
	case domain.DiscountTypeBuyXGetY:
		if p.BuyXGetY == nil {
			return apperrors.InvalidPromotionSpec("buy_x_get_y discounts require a buy_x_get_y config")
		}
		if p.BuyXGetY.BuyQuantity <= 0 || p.BuyXGetY.GetQuantity <= 0 {
			return apperrors.InvalidPromotionSpec("buy and get quantities must be positive")
		}
		if p.BuyXGetY.GetDiscountPercentage <= 0 || p.BuyXGetY.GetDiscountPercentage > 100 {
			return apperrors.InvalidPromotionSpec("get discount percentage must be between 1 and 100")
		}
	}

	switch p.Scope {
	case domain.ScopeCategories:
		if len(p.TargetCategories) == 0 {
			return apperrors.InvalidPromotionSpec("category-scoped promotions require target categories")
		}
	case domain.ScopeProducts:
		if len(p.TargetProducts) == 0 {
			return apperrors.InvalidPromotionSpec("product-scoped promotions require target products")
		}
	case domain.ScopeCollections:
		if len(p.TargetCollections) == 0 {
			return apperrors.InvalidPromotionSpec("collection-scoped promotions require target collections")
		}
	case domain.ScopeCustomerSegments:
		if p.CustomerSegment == "" {
			return apperrors.InvalidPromotionSpec("segment-scoped promotions require a customer segment")
		}
	}

	if p.CustomerSegment != "" && !domain.IsValidSegment(p.CustomerSegment) {
		return apperrors.InvalidPromotionSpec(fmt.Sprintf("invalid customer segment %q, must be one of: %s", p.CustomerSegment, strings.Join(domain.ValidSegments(), ", ")))
	}

	if p.UsageLimit != nil && *p.UsageLimit <= 0 {
		return apperrors.InvalidPromotionSpec("usage limit must be positive")
	}
	if p.UsageLimitPerCustomer != nil && *p.UsageLimitPerCustomer <= 0 {
		return apperrors.InvalidPromotionSpec("per-customer usage limit must be positive")
	}
	if p.MinimumPurchaseAmount != nil && *p.MinimumPurchaseAmount <= 0 {
		return apperrors.InvalidPromotionSpec("minimum purchase amount must be positive")
	}
	if p.MinimumQuantity != nil && *p.MinimumQuantity <= 0 {
		return apperrors.InvalidPromotionSpec("minimum quantity must be positive")
	}

	if p.StartsAt != nil && p.EndsAt != nil && !p.EndsAt.After(*p.StartsAt) {
		return apperrors.InvalidPromotionSpec("end time must be after start time")
	}

	return nil
}
