package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
)

// Promotion is a redeemable delivery discount. Code is stored upper-cased so
// lookups are case-insensitive.
type Promotion struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Code              string             `gorm:"column:code;not null;uniqueIndex" json:"code"`
	Description       *string            `gorm:"column:description" json:"description,omitempty"`
	DiscountType      enums.DiscountType `gorm:"column:discount_type;type:text;not null" json:"discount_type"`
	DiscountValue     decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null;default:0" json:"discount_value"`
	MinOrderAmount    decimal.Decimal    `gorm:"column:min_order_amount;type:numeric(12,2);not null;default:0" json:"min_order_amount"`
	MaxDiscountAmount decimal.Decimal    `gorm:"column:max_discount_amount;type:numeric(12,2);not null;default:0" json:"max_discount_amount"`
	ValidFrom         time.Time          `gorm:"column:valid_from;not null" json:"valid_from"`
	ValidUntil        time.Time          `gorm:"column:valid_until;not null" json:"valid_until"`
	UsageLimit        int                `gorm:"column:usage_limit;not null;default:0" json:"usage_limit"`
	UsageCount        int                `gorm:"column:usage_count;not null;default:0" json:"usage_count"`
	IsActive          bool               `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Promotion) TableName() string { return "promotions" }

func (p *Promotion) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
