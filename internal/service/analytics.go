package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/promotion-engine/internal/domain"
	"github.com/utafrali/promotion-engine/internal/repository"
)

// AnalyticsService exposes redemption rollups per promotion.
type AnalyticsService struct {
	redemptions repository.RedemptionRepository
	logger      *slog.Logger
}

// NewAnalyticsService creates a new analytics service.
func NewAnalyticsService(redemptions repository.RedemptionRepository, logger *slog.Logger) *AnalyticsService {
	return &AnalyticsService{
		redemptions: redemptions,
		logger:      logger,
	}
}

// PromotionStats returns the rollup for one promotion.
func (s *AnalyticsService) PromotionStats(ctx context.Context, promotionID string) (*domain.PromotionStats, error) {
	stats, err := s.redemptions.Stats(ctx, promotionID)
	if err != nil {
		return nil, fmt.Errorf("get promotion stats: %w", err)
	}
	return stats, nil
}

// AllPromotionStats returns rollups for every promotion with redemptions in
// the optional time range.
func (s *AnalyticsService) AllPromotionStats(ctx context.Context, from, to *time.Time) ([]domain.PromotionStats, error) {
	stats, err := s.redemptions.StatsAll(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list promotion stats: %w", err)
	}
	return stats, nil
}

// DailyStats returns the day-by-day redemption time series in the optional
// time range.
func (s *AnalyticsService) DailyStats(ctx context.Context, from, to *time.Time) ([]domain.DailyStats, error) {
	stats, err := s.redemptions.DailyStats(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily stats: %w", err)
	}
	return stats, nil
}
