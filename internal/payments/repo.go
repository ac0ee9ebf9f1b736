package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
)

// AccountRepository persists dedicated virtual accounts.
type AccountRepository interface {
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.VirtualAccount, error)
	FindByCustomerCode(ctx context.Context, customerCode string) (*models.VirtualAccount, error)
	Create(ctx context.Context, account *models.VirtualAccount) error
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository returns a virtual account repository bound to db.
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// FindByUser returns nil, nil when the user has no account yet.
func (r *accountRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.VirtualAccount, error) {
	var account models.VirtualAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByCustomerCode returns nil, nil when no account belongs to the customer.
func (r *accountRepository) FindByCustomerCode(ctx context.Context, customerCode string) (*models.VirtualAccount, error) {
	var account models.VirtualAccount
	err := r.db.WithContext(ctx).Where("customer_code = ?", customerCode).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) Create(ctx context.Context, account *models.VirtualAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}
