package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/deliverydesk-backend/internal/profiles"
	"github.com/angelmondragon/deliverydesk-backend/internal/wallet"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/pagination"
)

// Repository defines persistence operations for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor) ([]models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SummaryLoader resolves customer and vendor summaries for listings.
type SummaryLoader interface {
	Summaries(ctx context.Context, customerIDs, vendorIDs []uuid.UUID) (*profiles.Summaries, error)
}

// WalletDebiter debits a wallet inside an order transaction.
type WalletDebiter interface {
	DebitWithin(ctx context.Context, tx *gorm.DB, input wallet.MutationInput) (*wallet.Result, error)
}
