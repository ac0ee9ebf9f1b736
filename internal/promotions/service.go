package promotions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/deliverydesk-backend/pkg/db"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/metrics"
)

// Service validates promotion codes and manages their lifecycle.
type Service interface {
	Evaluate(ctx context.Context, input EvaluateInput) (*Evaluation, error)
	// Redeem consumes one use of the promotion inside the caller's transaction.
	Redeem(ctx context.Context, tx *gorm.DB, evaluation *Evaluation) error
	List(ctx context.Context) ([]models.Promotion, error)
	Create(ctx context.Context, input CreateInput) (*models.Promotion, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Promotion, error)
}

type service struct {
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.SettlementMetrics
	now     func() time.Time
}

// NewService wires the promotion evaluator.
func NewService(repo Repository, logg *logger.Logger, m *metrics.SettlementMetrics, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("promotions repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, logg: logg, metrics: m, now: now}, nil
}

func (s *service) Evaluate(ctx context.Context, input EvaluateInput) (*Evaluation, error) {
	code := NormalizeCode(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "promotion code is required")
	}

	promotion, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load promotion")
	}
	if promotion == nil {
		s.metrics.IncPromotion(metrics.OutcomeRejected)
		return nil, Invalid(code, ReasonNotFound)
	}
	if err := Check(promotion, input.Subtotal, s.now().UTC()); err != nil {
		s.metrics.IncPromotion(metrics.OutcomeRejected)
		return nil, err
	}

	return &Evaluation{
		PromotionID:  promotion.ID,
		Code:         promotion.Code,
		DiscountType: promotion.DiscountType,
		Discount:     Discount(promotion, input.Fee),
	}, nil
}

func (s *service) Redeem(ctx context.Context, tx *gorm.DB, evaluation *Evaluation) error {
	if evaluation == nil || evaluation.PromotionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "promotion evaluation required")
	}
	ok, err := s.repo.WithTx(tx).Redeem(ctx, evaluation.PromotionID)
	if err != nil {
		s.metrics.IncPromotion(metrics.OutcomeFailed)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "redeem promotion")
	}
	if !ok {
		s.metrics.IncPromotion(metrics.OutcomeRejected)
		s.logg.Warn(s.logg.WithField(ctx, "promotion_code", evaluation.Code), "promotion redemption rejected at commit")
		current, err := s.repo.WithTx(tx).FindByID(ctx, evaluation.PromotionID)
		if err == nil && current != nil && !current.IsActive {
			return Invalid(evaluation.Code, ReasonInactive)
		}
		return Invalid(evaluation.Code, ReasonExhausted)
	}
	s.metrics.IncPromotion(metrics.OutcomeApplied)
	return nil
}

func (s *service) List(ctx context.Context) ([]models.Promotion, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list promotions")
	}
	return rows, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Promotion, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	promotion := &models.Promotion{
		Code:              NormalizeCode(input.Code),
		Description:       input.Description,
		DiscountType:      input.DiscountType,
		DiscountValue:     input.DiscountValue,
		MinOrderAmount:    input.MinOrderAmount,
		MaxDiscountAmount: input.MaxDiscountAmount,
		ValidFrom:         input.ValidFrom.UTC(),
		ValidUntil:        input.ValidUntil.UTC(),
		UsageLimit:        input.UsageLimit,
		IsActive:          true,
	}
	if input.IsActive != nil {
		promotion.IsActive = *input.IsActive
	}

	if err := s.repo.Create(ctx, promotion); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "promotion code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create promotion")
	}
	s.logg.Info(s.logg.WithField(ctx, "promotion_code", promotion.Code), "promotion created")
	return promotion, nil
}

func (s *service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Promotion, error) {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update promotion")
	}
	promotion, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload promotion")
	}
	if promotion == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found")
	}
	return promotion, nil
}

func validateCreate(input CreateInput) error {
	if NormalizeCode(input.Code) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	if !input.DiscountType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid discount_type")
	}
	if input.DiscountType != enums.DiscountTypeFreeDelivery && !input.DiscountValue.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount_value must be greater than zero")
	}
	if input.DiscountType == enums.DiscountTypePercentage && input.DiscountValue.GreaterThan(hundred) {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage discount cannot exceed 100")
	}
	for field, v := range map[string]decimal.Decimal{
		"discount_value":      input.DiscountValue,
		"min_order_amount":    input.MinOrderAmount,
		"max_discount_amount": input.MaxDiscountAmount,
	} {
		if v.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, field+" must not be negative")
		}
	}
	if input.ValidFrom.IsZero() || input.ValidUntil.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "valid_from and valid_until are required")
	}
	if input.ValidUntil.Before(input.ValidFrom) {
		return pkgerrors.New(pkgerrors.CodeValidation, "valid_until must not precede valid_from")
	}
	if input.UsageLimit < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "usage_limit must not be negative")
	}
	return nil
}
