package promotions

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
)

// Reason explains why a promotion code was rejected.
type Reason string

const (
	ReasonNotFound     Reason = "not_found"
	ReasonInactive     Reason = "inactive"
	ReasonNotStarted   Reason = "not_started"
	ReasonExpired      Reason = "expired"
	ReasonExhausted    Reason = "exhausted"
	ReasonBelowMinimum Reason = "below_minimum"
)

var reasonMessages = map[Reason]string{
	ReasonNotFound:     "promotion code not found",
	ReasonInactive:     "promotion code is no longer active",
	ReasonNotStarted:   "promotion code is not valid yet",
	ReasonExpired:      "promotion code has expired",
	ReasonExhausted:    "promotion code usage limit reached",
	ReasonBelowMinimum: "order subtotal is below the promotion minimum",
}

var hundred = decimal.NewFromInt(100)

// NormalizeCode trims and upper-cases a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Invalid builds the typed error returned for a rejected promotion.
func Invalid(code string, reason Reason) error {
	return invalid(code, reason, nil)
}

func invalid(code string, reason Reason, extra map[string]any) *pkgerrors.Error {
	details := map[string]any{"reason": string(reason)}
	if code != "" {
		details["promotion_code"] = code
	}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeInvalidPromotion, reasonMessages[reason]).WithDetails(details)
}

// ReasonOf extracts the rejection reason from an InvalidPromotion error.
func ReasonOf(err error) Reason {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInvalidPromotion {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return Reason(reason)
}

// Check validates a promotion against the order subtotal at the given time.
// Checks run in a fixed order so callers see the first failing rule.
func Check(promotion *models.Promotion, subtotal decimal.Decimal, now time.Time) error {
	if promotion == nil {
		return Invalid("", ReasonNotFound)
	}
	if !promotion.IsActive {
		return Invalid(promotion.Code, ReasonInactive)
	}
	if now.Before(promotion.ValidFrom) {
		return Invalid(promotion.Code, ReasonNotStarted)
	}
	if now.After(promotion.ValidUntil) {
		return Invalid(promotion.Code, ReasonExpired)
	}
	if promotion.UsageLimit > 0 && promotion.UsageCount >= promotion.UsageLimit {
		return Invalid(promotion.Code, ReasonExhausted)
	}
	if subtotal.LessThan(promotion.MinOrderAmount) {
		return invalid(promotion.Code, ReasonBelowMinimum, map[string]any{
			"min_order_amount": promotion.MinOrderAmount.StringFixed(2),
		})
	}
	return nil
}

// Discount computes the discount a valid promotion grants on fee. The result
// is rounded to two decimals and never exceeds fee or drops below zero.
func Discount(promotion *models.Promotion, fee decimal.Decimal) decimal.Decimal {
	if promotion == nil || !fee.IsPositive() {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch promotion.DiscountType {
	case enums.DiscountTypePercentage:
		discount = fee.Mul(promotion.DiscountValue).Div(hundred)
		if promotion.MaxDiscountAmount.IsPositive() && discount.GreaterThan(promotion.MaxDiscountAmount) {
			discount = promotion.MaxDiscountAmount
		}
	case enums.DiscountTypeFixedAmount:
		discount = decimal.Min(promotion.DiscountValue, fee)
	case enums.DiscountTypeFreeDelivery:
		discount = fee
	default:
		return decimal.Zero
	}

	discount = discount.Round(2)
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(fee) {
		return fee
	}
	return discount
}
