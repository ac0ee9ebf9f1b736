package payments

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
)

// Metadata keys embedded in provider transactions.
const (
	MetadataUserID  = "user_id"
	MetadataMode    = "type"
	MetadataOrderID = "order_id"
)

// Status is the provider state of a reference mapped to what callers act on.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// InitializeInput starts a hosted checkout for the caller.
type InitializeInput struct {
	UserID  uuid.UUID
	Email   string
	Amount  decimal.Decimal
	Mode    enums.PaymentMode
	OrderID *uuid.UUID
}

// Initialization is returned to the client to open the hosted checkout.
type Initialization struct {
	AuthorizationURL string            `json:"authorization_url"`
	AccessCode       string            `json:"access_code"`
	Reference        string            `json:"reference"`
	Mode             enums.PaymentMode `json:"mode"`
}

// VerifyInput asks for the current state of a reference. A nil CallerID
// marks a trusted caller such as a signed webhook.
type VerifyInput struct {
	Reference string
	Mode      enums.PaymentMode
	CallerID  *uuid.UUID
}

// Verification is the outcome of a verify call. Repeating the call for the
// same reference returns the same outcome and never credits twice.
type Verification struct {
	Success   bool              `json:"success"`
	Status    Status            `json:"status"`
	Amount    decimal.Decimal   `json:"amount"`
	Reference string            `json:"reference"`
	Mode      enums.PaymentMode `json:"mode"`
	UserID    *uuid.UUID        `json:"user_id,omitempty"`
	Credited  bool              `json:"credited"`
	Replayed  bool              `json:"replayed"`
	Balance   *decimal.Decimal  `json:"balance,omitempty"`
}

// VirtualAccountResult wraps the caller's dedicated account.
type VirtualAccountResult struct {
	Account *models.VirtualAccount `json:"account"`
	Created bool                   `json:"created"`
}
