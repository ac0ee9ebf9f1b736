package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
)

// Wallet holds the current balance for a user. Balance is only written inside
// the same transaction that appends the matching WalletTransaction; LastSeq is
// the Seq of that entry.
type Wallet struct {
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(14,2);not null;default:0" json:"balance"`
	LastSeq   int64           `gorm:"column:last_seq;not null;default:0" json:"-"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

// WalletTransaction is an immutable ledger entry. Seq numbers a user's entries
// in the order the wallet row lock admitted them.
type WalletTransaction struct {
	ID            uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index;uniqueIndex:wallet_transactions_user_seq_key,priority:1" json:"user_id"`
	Seq           int64                       `gorm:"column:seq;not null;uniqueIndex:wallet_transactions_user_seq_key,priority:2" json:"seq"`
	Type          enums.WalletTransactionType `gorm:"column:type;type:text;not null" json:"type"`
	Amount        decimal.Decimal             `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	BalanceAfter  decimal.Decimal             `gorm:"column:balance_after;type:numeric(14,2);not null" json:"balance_after"`
	Description   string                      `gorm:"column:description;not null;default:''" json:"description"`
	ReferenceID   *string                     `gorm:"column:reference_id;uniqueIndex:wallet_transactions_reference_id_key" json:"reference_id,omitempty"`
	ReferenceType *string                     `gorm:"column:reference_type" json:"reference_type,omitempty"`
	CreatedAt     time.Time                   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

func (t *WalletTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// VirtualAccount is the dedicated bank account issued to a user for wallet funding.
type VirtualAccount struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	CustomerCode  string    `gorm:"column:customer_code;not null" json:"customer_code"`
	AccountNumber string    `gorm:"column:account_number;not null" json:"account_number"`
	AccountName   string    `gorm:"column:account_name;not null" json:"account_name"`
	BankName      string    `gorm:"column:bank_name;not null" json:"bank_name"`
	BankCode      string    `gorm:"column:bank_code;not null;default:''" json:"bank_code"`
	Assigned      bool      `gorm:"column:assigned;not null;default:true" json:"assigned"`
	Active        bool      `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (VirtualAccount) TableName() string { return "virtual_accounts" }

func (v *VirtualAccount) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}
