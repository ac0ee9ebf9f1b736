package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
	"github.com/angelmondragon/deliverydesk-backend/pkg/types"
)

// DeliveryZone is a half-open distance band [MinDistance, MaxDistance) in
// kilometres with a flat delivery price.
type DeliveryZone struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name        string          `gorm:"column:name;not null" json:"name"`
	Description *string         `gorm:"column:description" json:"description,omitempty"`
	MinDistance decimal.Decimal `gorm:"column:min_distance;type:numeric(10,3);not null" json:"min_distance"`
	MaxDistance decimal.Decimal `gorm:"column:max_distance;type:numeric(10,3);not null" json:"max_distance"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	IsActive    bool            `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (DeliveryZone) TableName() string { return "delivery_zones" }

func (z *DeliveryZone) BeforeCreate(*gorm.DB) error {
	ensureID(&z.ID)
	return nil
}

// DeliveryPricingID is the primary key of the singleton pricing row.
const DeliveryPricingID = 1

// DeliveryPricing holds the global defaults used when no zone matches.
type DeliveryPricing struct {
	ID                    int             `gorm:"column:id;primaryKey" json:"-"`
	DefaultBasePrice      decimal.Decimal `gorm:"column:default_base_price;type:numeric(12,2);not null;default:0" json:"default_base_price"`
	DefaultPricePerKm     decimal.Decimal `gorm:"column:default_price_per_km;type:numeric(12,2);not null;default:0" json:"default_price_per_km"`
	MinDeliveryCharge     decimal.Decimal `gorm:"column:min_delivery_charge;type:numeric(12,2);not null;default:0" json:"min_delivery_charge"`
	MaxDeliveryDistance   decimal.Decimal `gorm:"column:max_delivery_distance;type:numeric(10,3);not null;default:0" json:"max_delivery_distance"`
	FreeDeliveryThreshold decimal.Decimal `gorm:"column:free_delivery_threshold;type:numeric(12,2);not null;default:0" json:"free_delivery_threshold"`
	UpdatedAt             time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (DeliveryPricing) TableName() string { return "delivery_pricing" }

// DeliveryLog is an append-only audit row for each fee computation or adjustment.
type DeliveryLog struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Action            enums.DeliveryLogAction `gorm:"column:action;type:text;not null" json:"action"`
	OrderID           *uuid.UUID              `gorm:"column:order_id;type:uuid" json:"order_id,omitempty"`
	ZoneID            *uuid.UUID              `gorm:"column:zone_id;type:uuid" json:"zone_id,omitempty"`
	PromotionCode     *string                 `gorm:"column:promotion_code" json:"promotion_code,omitempty"`
	DistanceKm        decimal.Decimal         `gorm:"column:distance_km;type:numeric(10,3);not null;default:0" json:"distance_km"`
	BasePrice         decimal.Decimal         `gorm:"column:base_price;type:numeric(12,2);not null;default:0" json:"base_price"`
	DistancePrice     decimal.Decimal         `gorm:"column:distance_price;type:numeric(12,2);not null;default:0" json:"distance_price"`
	PromotionDiscount decimal.Decimal         `gorm:"column:promotion_discount;type:numeric(12,2);not null;default:0" json:"promotion_discount"`
	Adjustment        decimal.Decimal         `gorm:"column:adjustment;type:numeric(12,2);not null;default:0" json:"adjustment"`
	FinalPrice        decimal.Decimal         `gorm:"column:final_price;type:numeric(12,2);not null;default:0" json:"final_price"`
	Details           types.Payload           `gorm:"column:details;type:jsonb" json:"details"`
	ActorID           *uuid.UUID              `gorm:"column:actor_id;type:uuid" json:"actor_id,omitempty"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (DeliveryLog) TableName() string { return "delivery_logs" }

func (l *DeliveryLog) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
