package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/promotion-engine/internal/domain"
	pkgkafka "github.com/utafrali/promotion-engine/pkg/kafka"
)

// Kafka topic constants for promotion domain events.
const (
	TopicPromotionCreated  = "promotions.promotion.created"
	TopicPromotionUpdated  = "promotions.promotion.updated"
	TopicPromotionDeleted  = "promotions.promotion.deleted"
	TopicPromotionAssigned = "promotions.promotion.assigned"
	TopicPromotionRedeemed = "promotions.promotion.redeemed"
	TopicRedemptionVoided  = "promotions.redemption.voided"
)

// Aggregate type constants.
const (
	AggregateTypePromotion  = "promotion"
	AggregateTypeRedemption = "redemption"
)

// Source identifier for events originating from the promotion engine.
const SourcePromotionEngine = "promotion-engine"

// PromotionEventData is the payload for promotion lifecycle events.
type PromotionEventData struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	DiscountType  string `json:"discount_type"`
	DiscountValue int64  `json:"discount_value"`
	Scope         string `json:"scope"`
	IsActive      bool   `json:"is_active"`
}

// PromotionAssignedData is the payload for a promotion.assigned event.
type PromotionAssignedData struct {
	AssignmentID string `json:"assignment_id"`
	PromotionID  string `json:"promotion_id"`
	CustomerID   string `json:"customer_id"`
	Type         string `json:"type"`
}

// PromotionRedeemedData is the payload for a promotion.redeemed event.
type PromotionRedeemedData struct {
	RedemptionID   string  `json:"redemption_id"`
	PromotionID    string  `json:"promotion_id"`
	CustomerID     string  `json:"customer_id"`
	OrderID        string  `json:"order_id"`
	CodeUsed       *string `json:"code_used,omitempty"`
	DiscountAmount int64   `json:"discount_amount"`
}

// RedemptionVoidedData is the payload for a redemption.voided event.
type RedemptionVoidedData struct {
	RedemptionID   string `json:"redemption_id"`
	PromotionID    string `json:"promotion_id"`
	CustomerID     string `json:"customer_id"`
	OrderID        string `json:"order_id"`
	DiscountAmount int64  `json:"discount_amount"`
}

// Producer publishes promotion domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the promotion engine.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func promotionEventData(p *domain.Promotion) PromotionEventData {
	return PromotionEventData{
		ID:            p.ID,
		Name:          p.Name,
		Type:          p.Type,
		DiscountType:  p.DiscountType,
		DiscountValue: p.DiscountValue,
		Scope:         p.Scope,
		IsActive:      p.IsActive,
	}
}

// PublishPromotionCreated publishes a promotion.created event.
func (p *Producer) PublishPromotionCreated(ctx context.Context, promotion *domain.Promotion) error {
	return p.publishPromotionEvent(ctx, TopicPromotionCreated, promotion)
}

// PublishPromotionUpdated publishes a promotion.updated event.
func (p *Producer) PublishPromotionUpdated(ctx context.Context, promotion *domain.Promotion) error {
	return p.publishPromotionEvent(ctx, TopicPromotionUpdated, promotion)
}

// PublishPromotionDeleted publishes a promotion.deleted event.
func (p *Producer) PublishPromotionDeleted(ctx context.Context, promotion *domain.Promotion) error {
	return p.publishPromotionEvent(ctx, TopicPromotionDeleted, promotion)
}

func (p *Producer) publishPromotionEvent(ctx context.Context, topic string, promotion *domain.Promotion) error {
	event, err := pkgkafka.NewEvent(topic, promotion.ID, AggregateTypePromotion, SourcePromotionEngine, promotionEventData(promotion))
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published promotion event",
		slog.String("topic", topic),
		slog.String("promotion_id", promotion.ID),
	)

	return nil
}

// PublishPromotionAssigned publishes a promotion.assigned event.
func (p *Producer) PublishPromotionAssigned(ctx context.Context, assignment *domain.Assignment) error {
	data := PromotionAssignedData{
		AssignmentID: assignment.ID,
		PromotionID:  assignment.PromotionID,
		CustomerID:   assignment.CustomerID,
		Type:         assignment.Type,
	}

	event, err := pkgkafka.NewEvent(TopicPromotionAssigned, assignment.PromotionID, AggregateTypePromotion, SourcePromotionEngine, data)
	if err != nil {
		return fmt.Errorf("create promotion.assigned event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicPromotionAssigned, event); err != nil {
		return fmt.Errorf("publish promotion.assigned event: %w", err)
	}

	p.logger.DebugContext(ctx, "published promotion.assigned event",
		slog.String("promotion_id", assignment.PromotionID),
		slog.String("customer_id", assignment.CustomerID),
	)

	return nil
}

// PublishPromotionRedeemed publishes a promotion.redeemed event.
func (p *Producer) PublishPromotionRedeemed(ctx context.Context, redemption *domain.Redemption) error {
	data := PromotionRedeemedData{
		RedemptionID:   redemption.ID,
		PromotionID:    redemption.PromotionID,
		CustomerID:     redemption.CustomerID,
		OrderID:        redemption.OrderID,
		CodeUsed:       redemption.CodeUsed,
		DiscountAmount: redemption.DiscountAmount,
	}

	event, err := pkgkafka.NewEvent(TopicPromotionRedeemed, redemption.PromotionID, AggregateTypePromotion, SourcePromotionEngine, data)
	if err != nil {
		return fmt.Errorf("create promotion.redeemed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicPromotionRedeemed, event); err != nil {
		return fmt.Errorf("publish promotion.redeemed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published promotion.redeemed event",
		slog.String("redemption_id", redemption.ID),
		slog.String("promotion_id", redemption.PromotionID),
		slog.String("order_id", redemption.OrderID),
	)

	return nil
}

// PublishRedemptionVoided publishes a redemption.voided event.
func (p *Producer) PublishRedemptionVoided(ctx context.Context, redemption *domain.Redemption) error {
	data := RedemptionVoidedData{
		RedemptionID:   redemption.ID,
		PromotionID:    redemption.PromotionID,
		CustomerID:     redemption.CustomerID,
		OrderID:        redemption.OrderID,
		DiscountAmount: redemption.DiscountAmount,
	}

	event, err := pkgkafka.NewEvent(TopicRedemptionVoided, redemption.ID, AggregateTypeRedemption, SourcePromotionEngine, data)
	if err != nil {
		return fmt.Errorf("create redemption.voided event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicRedemptionVoided, event); err != nil {
		return fmt.Errorf("publish redemption.voided event: %w", err)
	}

	p.logger.DebugContext(ctx, "published redemption.voided event",
		slog.String("redemption_id", redemption.ID),
	)

	return nil
}
