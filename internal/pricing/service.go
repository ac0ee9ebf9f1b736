package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/deliverydesk-backend/internal/promotions"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/maps"
	"github.com/angelmondragon/deliverydesk-backend/pkg/metrics"
	"github.com/angelmondragon/deliverydesk-backend/pkg/pagination"
	"github.com/angelmondragon/deliverydesk-backend/pkg/types"
)

// DistanceResolver looks up the road distance between two addresses.
type DistanceResolver interface {
	Distance(ctx context.Context, origin, destination string) (*maps.Distance, error)
}

// PromotionEvaluator checks and redeems promotion codes.
type PromotionEvaluator interface {
	Evaluate(ctx context.Context, input promotions.EvaluateInput) (*promotions.Evaluation, error)
	Redeem(ctx context.Context, tx *gorm.DB, evaluation *promotions.Evaluation) error
}

// Service prices deliveries and manages the pricing configuration.
type Service interface {
	Calculate(ctx context.Context, input QuoteInput) (*Quote, error)
	Adjust(ctx context.Context, input AdjustmentInput) (*models.DeliveryLog, error)
	ListZones(ctx context.Context) ([]models.DeliveryZone, error)
	CreateZone(ctx context.Context, input ZoneInput) (*models.DeliveryZone, error)
	UpdateZone(ctx context.Context, id uuid.UUID, input ZoneInput) (*models.DeliveryZone, error)
	DeleteZone(ctx context.Context, id uuid.UUID) error
	GetPricing(ctx context.Context) (*models.DeliveryPricing, error)
	UpdatePricing(ctx context.Context, input PricingInput) (*models.DeliveryPricing, error)
	ListLogs(ctx context.Context, filter LogFilter) (*pagination.Page[models.DeliveryLog], error)
}

// ServiceParams groups the pricing service dependencies.
type ServiceParams struct {
	Repo       Repository
	Transactor db.Transactor
	Promotions PromotionEvaluator
	// Distances is optional; without it callers must supply distance_km.
	Distances DistanceResolver
	Logger    *logger.Logger
	Metrics   *metrics.SettlementMetrics
}

type service struct {
	repo       Repository
	tx         db.Transactor
	promotions PromotionEvaluator
	distances  DistanceResolver
	logg       *logger.Logger
	metrics    *metrics.SettlementMetrics
}

// NewService wires the fee calculator.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("pricing repository required")
	}
	if params.Transactor == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Promotions == nil {
		return nil, fmt.Errorf("promotion evaluator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:       params.Repo,
		tx:         params.Transactor,
		promotions: params.Promotions,
		distances:  params.Distances,
		logg:       params.Logger,
		metrics:    params.Metrics,
	}, nil
}

// Calculate prices a delivery and writes a delivery log row for every outcome,
// including rejections. A quote is never returned without its log row.
func (s *service) Calculate(ctx context.Context, input QuoteInput) (*Quote, error) {
	input.PromotionCode = promotions.NormalizeCode(input.PromotionCode)
	if input.OrderSubtotal.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_subtotal must not be negative")
	}

	details := types.Payload{"order_subtotal": input.OrderSubtotal.StringFixed(2)}
	distance, err := s.resolveDistance(ctx, input, details)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"distance_km":    distance.String(),
		"order_subtotal": input.OrderSubtotal.String(),
	})

	pricing, zones, err := s.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	breakdown, err := Compute(*pricing, zones, distance, input.OrderSubtotal)
	if err != nil {
		return nil, s.fail(ctx, input, distance, nil, details, err)
	}

	quote := &Quote{
		DistanceKm:        distance,
		BasePrice:         breakdown.BasePrice,
		DistancePrice:     breakdown.DistancePrice,
		PromotionDiscount: decimal.Zero,
		Adjustment:        decimal.Zero,
		FreeDelivery:      breakdown.FreeDelivery,
	}
	if breakdown.Zone != nil {
		quote.Zone = &ZoneSummary{ID: breakdown.Zone.ID, Name: breakdown.Zone.Name, Price: breakdown.Zone.Price}
	}

	var evaluation *promotions.Evaluation
	if input.PromotionCode != "" {
		evaluation, err = s.promotions.Evaluate(ctx, promotions.EvaluateInput{
			Code:     input.PromotionCode,
			Subtotal: input.OrderSubtotal,
			Fee:      breakdown.Fee,
		})
		if err != nil {
			return nil, s.fail(ctx, input, distance, breakdown, details, err)
		}
		code := evaluation.Code
		quote.PromotionCode = &code
		quote.PromotionDiscount = decimal.Max(evaluation.Discount, decimal.Zero)
		details["discount_type"] = evaluation.DiscountType.String()
	}
	quote.FinalPrice = decimal.Max(breakdown.Fee.Sub(quote.PromotionDiscount), decimal.Zero)
	details["free_delivery"] = breakdown.FreeDelivery

	redeem := input.Commit && evaluation != nil && quote.PromotionDiscount.IsPositive()
	entry := s.logEntry(enums.DeliveryLogActionCalculation, input, distance, breakdown, details)
	entry.PromotionDiscount = quote.PromotionDiscount
	entry.FinalPrice = quote.FinalPrice
	entry.PromotionCode = quote.PromotionCode

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if redeem {
			if err := s.promotions.Redeem(ctx, tx, evaluation); err != nil {
				return err
			}
			entry.Details["promotion_redeemed"] = true
		}
		if err := s.repo.WithTx(tx).CreateLog(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write delivery log")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeInvalidPromotion) {
			return nil, s.fail(ctx, input, distance, breakdown, details, err)
		}
		s.metrics.IncFeeCalculation(metrics.OutcomeFailed)
		s.logg.Error(ctx, "delivery fee calculation not persisted", err)
		return nil, err
	}

	quote.PromotionRedeemed = redeem
	quote.LogID = entry.ID
	s.metrics.IncFeeCalculation(metrics.OutcomeApplied)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"final_price": quote.FinalPrice.String(),
		"log_id":      entry.ID.String(),
	}), "delivery fee calculated")
	return quote, nil
}

func (s *service) resolveDistance(ctx context.Context, input QuoteInput, details types.Payload) (decimal.Decimal, error) {
	if input.DistanceKm != nil {
		if input.DistanceKm.IsNegative() {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "distance_km must not be negative")
		}
		return *input.DistanceKm, nil
	}

	origin := strings.TrimSpace(input.Origin)
	destination := strings.TrimSpace(input.Destination)
	if origin == "" || destination == "" {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "distance_km or origin and destination are required")
	}
	if s.distances == nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeDependency, "distance provider not configured")
	}
	details["origin"] = origin
	details["destination"] = destination
	resolved, err := s.distances.Distance(ctx, origin, destination)
	if err != nil {
		return decimal.Zero, s.fail(ctx, input, decimal.Zero, nil, details, err)
	}
	details["distance_text"] = resolved.DistanceText
	return resolved.DistanceKm, nil
}

func (s *service) loadConfig(ctx context.Context) (*models.DeliveryPricing, []models.DeliveryZone, error) {
	pricing, err := s.repo.GetPricing(ctx)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load delivery pricing")
	}
	if pricing == nil {
		pricing = &models.DeliveryPricing{ID: models.DeliveryPricingID}
	}
	zones, err := s.repo.ListZones(ctx, true)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load delivery zones")
	}
	return pricing, zones, nil
}

// fail records a calculation_failed row and returns cause. A failure to write
// the row is logged; the caller still sees the original rejection.
func (s *service) fail(ctx context.Context, input QuoteInput, distance decimal.Decimal, breakdown *Breakdown, details types.Payload, cause error) error {
	s.metrics.IncFeeCalculation(metrics.OutcomeRejected)

	entry := s.logEntry(enums.DeliveryLogActionCalculationFailed, input, distance, breakdown, details)
	entry.Details["error_code"] = string(pkgerrors.CodeOf(cause))
	if typed := pkgerrors.As(cause); typed != nil {
		entry.Details["error"] = typed.Message()
	}
	if reason := promotions.ReasonOf(cause); reason != "" {
		entry.Details["promotion_reason"] = string(reason)
	}
	if input.PromotionCode != "" {
		code := input.PromotionCode
		entry.PromotionCode = &code
	}

	if err := s.repo.CreateLog(ctx, entry); err != nil {
		s.logg.Error(ctx, "write failed delivery log", err)
	}
	s.logg.Warn(s.logg.WithField(ctx, "error_code", string(pkgerrors.CodeOf(cause))), "delivery fee calculation rejected")
	return cause
}

func (s *service) logEntry(action enums.DeliveryLogAction, input QuoteInput, distance decimal.Decimal, breakdown *Breakdown, details types.Payload) *models.DeliveryLog {
	payload := make(types.Payload, len(details))
	for k, v := range details {
		payload[k] = v
	}
	entry := &models.DeliveryLog{
		Action:            action,
		OrderID:           input.OrderID,
		DistanceKm:        distance,
		BasePrice:         decimal.Zero,
		DistancePrice:     decimal.Zero,
		PromotionDiscount: decimal.Zero,
		Adjustment:        decimal.Zero,
		FinalPrice:        decimal.Zero,
		Details:           payload,
		ActorID:           input.ActorID,
	}
	if breakdown != nil {
		entry.BasePrice = breakdown.BasePrice
		entry.DistancePrice = breakdown.DistancePrice
		entry.FinalPrice = breakdown.Fee
		if breakdown.Zone != nil {
			zoneID := breakdown.Zone.ID
			entry.ZoneID = &zoneID
		}
	}
	return entry
}

func (s *service) Adjust(ctx context.Context, input AdjustmentInput) (*models.DeliveryLog, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if input.Amount.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be zero")
	}
	if input.PreviousFee.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "previous_fee must not be negative")
	}

	entry := &models.DeliveryLog{
		Action:     enums.DeliveryLogActionAdjustment,
		OrderID:    input.OrderID,
		Adjustment: input.Amount.Round(2),
		FinalPrice: decimal.Max(input.PreviousFee.Add(input.Amount), decimal.Zero).Round(2),
		Details: types.Payload{
			"reason":       reason,
			"previous_fee": input.PreviousFee.StringFixed(2),
		},
		ActorID: input.ActorID,
	}
	if err := s.repo.CreateLog(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write delivery adjustment")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"adjustment":  entry.Adjustment.String(),
		"final_price": entry.FinalPrice.String(),
	}), "delivery fee adjusted")
	return entry, nil
}

func (s *service) ListZones(ctx context.Context) ([]models.DeliveryZone, error) {
	zones, err := s.repo.ListZones(ctx, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list delivery zones")
	}
	return zones, nil
}

func (s *service) CreateZone(ctx context.Context, input ZoneInput) (*models.DeliveryZone, error) {
	if err := validateZone(input); err != nil {
		return nil, err
	}
	zone := &models.DeliveryZone{IsActive: true}
	applyZone(zone, input)
	if err := s.repo.CreateZone(ctx, zone); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create delivery zone")
	}
	return zone, nil
}

func (s *service) UpdateZone(ctx context.Context, id uuid.UUID, input ZoneInput) (*models.DeliveryZone, error) {
	if err := validateZone(input); err != nil {
		return nil, err
	}
	zone, err := s.repo.FindZone(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load delivery zone")
	}
	if zone == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery zone not found")
	}
	applyZone(zone, input)
	if err := s.repo.UpdateZone(ctx, zone); err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery zone not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update delivery zone")
	}
	return zone, nil
}

func (s *service) DeleteZone(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteZone(ctx, id); err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "delivery zone not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete delivery zone")
	}
	return nil
}

func (s *service) GetPricing(ctx context.Context) (*models.DeliveryPricing, error) {
	pricing, _, err := s.loadConfig(ctx)
	return pricing, err
}

func (s *service) UpdatePricing(ctx context.Context, input PricingInput) (*models.DeliveryPricing, error) {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"default_base_price", input.DefaultBasePrice},
		{"default_price_per_km", input.DefaultPricePerKm},
		{"min_delivery_charge", input.MinDeliveryCharge},
		{"max_delivery_distance", input.MaxDeliveryDistance},
		{"free_delivery_threshold", input.FreeDeliveryThreshold},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, f.name+" must not be negative")
		}
	}

	pricing := &models.DeliveryPricing{
		ID:                    models.DeliveryPricingID,
		DefaultBasePrice:      input.DefaultBasePrice,
		DefaultPricePerKm:     input.DefaultPricePerKm,
		MinDeliveryCharge:     input.MinDeliveryCharge,
		MaxDeliveryDistance:   input.MaxDeliveryDistance,
		FreeDeliveryThreshold: input.FreeDeliveryThreshold,
	}
	if err := s.repo.SavePricing(ctx, pricing); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save delivery pricing")
	}
	s.logg.Info(ctx, "delivery pricing updated")
	return pricing, nil
}

func (s *service) ListLogs(ctx context.Context, filter LogFilter) (*pagination.Page[models.DeliveryLog], error) {
	if filter.Action != "" && !filter.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid action filter")
	}
	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListLogs(ctx, filter, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list delivery logs")
	}
	page := pagination.Trim(rows, filter.Limit, func(l models.DeliveryLog) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	return &page, nil
}

func validateZone(input ZoneInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.MinDistance.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "min_distance must not be negative")
	}
	if !input.MinDistance.LessThan(input.MaxDistance) {
		return pkgerrors.New(pkgerrors.CodeValidation, "min_distance must be less than max_distance")
	}
	if input.Price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	return nil
}

func applyZone(zone *models.DeliveryZone, input ZoneInput) {
	zone.Name = strings.TrimSpace(input.Name)
	zone.Description = input.Description
	zone.MinDistance = input.MinDistance
	zone.MaxDistance = input.MaxDistance
	zone.Price = input.Price
	if input.IsActive != nil {
		zone.IsActive = *input.IsActive
	}
}
