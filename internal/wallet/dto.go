package wallet

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
)

// Reference types recorded on ledger rows.
const (
	ReferenceTypeGateway = "paystack"
	ReferenceTypeOrder   = "order"
)

// MutationInput describes a credit or debit. ReferenceID makes the operation
// idempotent: a second call with the same reference returns the first result.
type MutationInput struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	Description   string
	ReferenceID   string
	ReferenceType string
}

// Result is the outcome of a ledger mutation.
type Result struct {
	Transaction *models.WalletTransaction `json:"transaction"`
	Balance     decimal.Decimal           `json:"balance"`
	Replayed    bool                      `json:"replayed"`
}

// Summary is the wallet view returned to its owner.
type Summary struct {
	UserID       uuid.UUID                  `json:"user_id"`
	Balance      decimal.Decimal            `json:"balance"`
	Transactions []models.WalletTransaction `json:"transactions"`
	NextCursor   string                     `json:"next_cursor,omitempty"`
}

// Reconciliation compares the stored balance with a replay of the ledger.
type Reconciliation struct {
	UserID             uuid.UUID       `json:"user_id"`
	StoredBalance      decimal.Decimal `json:"stored_balance"`
	LedgerBalance      decimal.Decimal `json:"ledger_balance"`
	Consistent         bool            `json:"consistent"`
	TransactionCount   int             `json:"transaction_count"`
	SnapshotMismatches []uuid.UUID     `json:"snapshot_mismatches,omitempty"`
}
