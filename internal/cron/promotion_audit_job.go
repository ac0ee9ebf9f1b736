package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/metrics"
)

const (
	promotionAuditJobName = "promotion-audit"
	maxLoggedCodes        = 50
)

type stalePromotionLister interface {
	ListStale(ctx context.Context, now time.Time) ([]models.Promotion, error)
}

// PromotionAuditJobParams configure the stale promotion report.
type PromotionAuditJobParams struct {
	Logger     *logger.Logger
	Promotions stalePromotionLister
	Metrics    *metrics.CronJobMetrics
	Now        func() time.Time
}

type promotionAuditJob struct {
	logg       *logger.Logger
	promotions stalePromotionLister
	metrics    *metrics.CronJobMetrics
	now        func() time.Time
}

// NewPromotionAuditJob builds the job that reports promotions still marked
// active after they expired or ran out of uses. It does not flip is_active,
// so callers keep getting the expired or exhausted rejection reason.
func NewPromotionAuditJob(params PromotionAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Promotions == nil {
		return nil, fmt.Errorf("promotions repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &promotionAuditJob{
		logg:       params.Logger,
		promotions: params.Promotions,
		metrics:    params.Metrics,
		now:        now,
	}, nil
}

func (j *promotionAuditJob) Name() string { return promotionAuditJobName }

func (j *promotionAuditJob) Run(ctx context.Context) error {
	stale, err := j.promotions.ListStale(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("list stale promotions: %w", err)
	}
	j.metrics.AddFindings(promotionAuditJobName, "stale", len(stale))
	if len(stale) == 0 {
		return nil
	}

	codes := make([]string, 0, min(len(stale), maxLoggedCodes))
	for _, p := range stale {
		if len(codes) == maxLoggedCodes {
			break
		}
		codes = append(codes, p.Code)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"stale_count": len(stale),
		"codes":       codes,
	}), "active promotions past expiry or usage limit")
	return nil
}
