package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/deliverydesk-backend/internal/profiles"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
)

// ListFilter narrows the admin order listing.
type ListFilter struct {
	Status        enums.OrderStatus
	PaymentStatus enums.PaymentStatus
	Limit         int
	Cursor        string
}

// AdminOrder is an order enriched with its customer and vendor.
type AdminOrder struct {
	models.Order
	Customer *profiles.CustomerSummary `json:"customer"`
	Vendor   *profiles.VendorSummary   `json:"vendor"`
}

// AdminOrderList is a page of enriched orders.
type AdminOrderList struct {
	Orders     []AdminOrder `json:"orders"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// UpdateInput is the admin-mutable slice of an order. Nil fields are left as is.
type UpdateInput struct {
	Status        *string `json:"status,omitempty"`
	PaymentStatus *string `json:"payment_status,omitempty"`
}

// UpdateResult returns the updated row. TransitionFlagged is set when the
// status moved backwards or out of a terminal state.
type UpdateResult struct {
	Order             *models.Order     `json:"order"`
	PreviousStatus    enums.OrderStatus `json:"previous_status"`
	TransitionFlagged bool              `json:"transition_flagged"`
}

// WalletPaymentInput pays a wallet-method order from the customer's balance.
type WalletPaymentInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
}

// WalletPaymentResult is returned after a wallet checkout.
type WalletPaymentResult struct {
	Order       *models.Order   `json:"order"`
	Balance     decimal.Decimal `json:"balance"`
	AlreadyPaid bool            `json:"already_paid"`
}
