package pricing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/pagination"
)

// Repository defines persistence for zones, the pricing singleton and the
// delivery log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListZones(ctx context.Context, activeOnly bool) ([]models.DeliveryZone, error)
	FindZone(ctx context.Context, id uuid.UUID) (*models.DeliveryZone, error)
	CreateZone(ctx context.Context, zone *models.DeliveryZone) error
	UpdateZone(ctx context.Context, zone *models.DeliveryZone) error
	DeleteZone(ctx context.Context, id uuid.UUID) error
	GetPricing(ctx context.Context) (*models.DeliveryPricing, error)
	SavePricing(ctx context.Context, pricing *models.DeliveryPricing) error
	CreateLog(ctx context.Context, entry *models.DeliveryLog) error
	ListLogs(ctx context.Context, filter LogFilter, cursor *pagination.Cursor) ([]models.DeliveryLog, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a pricing repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListZones(ctx context.Context, activeOnly bool) ([]models.DeliveryZone, error) {
	query := r.db.WithContext(ctx)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var zones []models.DeliveryZone
	if err := query.Order("min_distance ASC, created_at DESC").Find(&zones).Error; err != nil {
		return nil, err
	}
	return zones, nil
}

func (r *repository) FindZone(ctx context.Context, id uuid.UUID) (*models.DeliveryZone, error) {
	var zone models.DeliveryZone
	err := r.db.WithContext(ctx).First(&zone, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &zone, nil
}

func (r *repository) CreateZone(ctx context.Context, zone *models.DeliveryZone) error {
	return r.db.WithContext(ctx).Create(zone).Error
}

func (r *repository) UpdateZone(ctx context.Context, zone *models.DeliveryZone) error {
	result := r.db.WithContext(ctx).
		Model(&models.DeliveryZone{}).
		Where("id = ?", zone.ID).
		Updates(map[string]any{
			"name":         zone.Name,
			"description":  zone.Description,
			"min_distance": zone.MinDistance,
			"max_distance": zone.MaxDistance,
			"price":        zone.Price,
			"is_active":    zone.IsActive,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) DeleteZone(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.DeliveryZone{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetPricing returns nil, nil when the singleton row has not been seeded.
func (r *repository) GetPricing(ctx context.Context) (*models.DeliveryPricing, error) {
	var pricing models.DeliveryPricing
	err := r.db.WithContext(ctx).First(&pricing, "id = ?", models.DeliveryPricingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pricing, nil
}

// SavePricing upserts the singleton row.
func (r *repository) SavePricing(ctx context.Context, pricing *models.DeliveryPricing) error {
	pricing.ID = models.DeliveryPricingID
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"default_base_price",
				"default_price_per_km",
				"min_delivery_charge",
				"max_delivery_distance",
				"free_delivery_threshold",
				"updated_at",
			}),
		}).
		Create(pricing).Error
}

func (r *repository) CreateLog(ctx context.Context, entry *models.DeliveryLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListLogs returns newest first, fetching one extra row for paging.
func (r *repository) ListLogs(ctx context.Context, filter LogFilter, cursor *pagination.Cursor) ([]models.DeliveryLog, error) {
	query := r.db.WithContext(ctx)
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	var rows []models.DeliveryLog
	if err := query.Scopes(pagination.Keyset(cursor, filter.Limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
