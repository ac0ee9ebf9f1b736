package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
)

// QuoteInput describes a delivery fee request. DistanceKm wins over the
// origin/destination pair when both are supplied.
type QuoteInput struct {
	DistanceKm    *decimal.Decimal
	Origin        string
	Destination   string
	OrderSubtotal decimal.Decimal
	PromotionCode string
	// Commit redeems the promotion. Quotes shown before checkout leave it false.
	Commit  bool
	OrderID *uuid.UUID
	ActorID *uuid.UUID
}

// ZoneSummary is the zone slice returned with a quote.
type ZoneSummary struct {
	ID    uuid.UUID       `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Quote is the priced delivery returned to callers.
type Quote struct {
	Zone              *ZoneSummary    `json:"zone"`
	DistanceKm        decimal.Decimal `json:"distance_km"`
	BasePrice         decimal.Decimal `json:"base_price"`
	DistancePrice     decimal.Decimal `json:"distance_price"`
	PromotionCode     *string         `json:"promotion_code,omitempty"`
	PromotionDiscount decimal.Decimal `json:"promotion_discount"`
	PromotionRedeemed bool            `json:"promotion_redeemed"`
	Adjustment        decimal.Decimal `json:"adjustment"`
	FinalPrice        decimal.Decimal `json:"final_price"`
	FreeDelivery      bool            `json:"free_delivery"`
	LogID             uuid.UUID       `json:"log_id"`
}

// AdjustmentInput records a manual fee correction by an admin.
type AdjustmentInput struct {
	OrderID     *uuid.UUID      `json:"order_id,omitempty"`
	PreviousFee decimal.Decimal `json:"previous_fee"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason" validate:"required,max=500"`
	ActorID     *uuid.UUID      `json:"-"`
}

// ZoneInput carries the admin fields for a delivery zone.
type ZoneInput struct {
	Name        string          `json:"name" validate:"required,max=120"`
	Description *string         `json:"description,omitempty"`
	MinDistance decimal.Decimal `json:"min_distance"`
	MaxDistance decimal.Decimal `json:"max_distance"`
	Price       decimal.Decimal `json:"price"`
	IsActive    *bool           `json:"is_active,omitempty"`
}

// PricingInput replaces the global pricing defaults.
type PricingInput struct {
	DefaultBasePrice      decimal.Decimal `json:"default_base_price"`
	DefaultPricePerKm     decimal.Decimal `json:"default_price_per_km"`
	MinDeliveryCharge     decimal.Decimal `json:"min_delivery_charge"`
	MaxDeliveryDistance   decimal.Decimal `json:"max_delivery_distance"`
	FreeDeliveryThreshold decimal.Decimal `json:"free_delivery_threshold"`
}

// LogFilter narrows delivery log listings.
type LogFilter struct {
	OrderID *uuid.UUID
	Action  enums.DeliveryLogAction
	Limit   int
	Cursor  string
}
