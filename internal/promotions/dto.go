package promotions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
)

// EvaluateInput describes a promotion check against a pre-discount fee.
type EvaluateInput struct {
	Code     string
	Subtotal decimal.Decimal
	Fee      decimal.Decimal
}

// Evaluation is the outcome of a successful promotion check.
type Evaluation struct {
	PromotionID  uuid.UUID          `json:"promotion_id"`
	Code         string             `json:"code"`
	DiscountType enums.DiscountType `json:"discount_type"`
	Discount     decimal.Decimal    `json:"discount"`
}

// CreateInput carries the admin fields for a new promotion.
type CreateInput struct {
	Code              string             `json:"code" validate:"required,max=64"`
	Description       *string            `json:"description,omitempty"`
	DiscountType      enums.DiscountType `json:"discount_type" validate:"required"`
	DiscountValue     decimal.Decimal    `json:"discount_value"`
	MinOrderAmount    decimal.Decimal    `json:"min_order_amount"`
	MaxDiscountAmount decimal.Decimal    `json:"max_discount_amount"`
	ValidFrom         time.Time          `json:"valid_from" validate:"required"`
	ValidUntil        time.Time          `json:"valid_until" validate:"required"`
	UsageLimit        int                `json:"usage_limit" validate:"min=0"`
	IsActive          *bool              `json:"is_active,omitempty"`
}
