package paystack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
)

// Provider transaction statuses returned by /transaction/verify.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
	StatusReversed  = "reversed"
	StatusOngoing   = "ongoing"
	StatusPending   = "pending"
)

var subunitsPerUnit = decimal.NewFromInt(100)

// ToSubunit converts a major-unit amount into the integer subunit (kobo) the
// API expects.
func ToSubunit(amount decimal.Decimal) int64 {
	return amount.Mul(subunitsPerUnit).Round(0).IntPart()
}

// FromSubunit converts an integer subunit amount back into major units.
func FromSubunit(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(subunitsPerUnit)
}

// InitializeParams describes a hosted checkout to start.
type InitializeParams struct {
	Email       string
	Amount      decimal.Decimal
	Reference   string
	CallbackURL string
	Metadata    map[string]string
}

// Initialization is the hosted checkout returned by the provider.
type Initialization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// InitializeTransaction starts a hosted checkout.
func (c *Client) InitializeTransaction(ctx context.Context, params InitializeParams) (*Initialization, error) {
	if strings.TrimSpace(params.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if !params.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	body := map[string]any{
		"email":  params.Email,
		"amount": ToSubunit(params.Amount),
	}
	if params.Reference != "" {
		body["reference"] = params.Reference
	}
	if params.CallbackURL != "" {
		body["callback_url"] = params.CallbackURL
	}
	if len(params.Metadata) > 0 {
		body["metadata"] = params.Metadata
	}

	var out Initialization
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transaction is the verified state of a charge. CustomerCode identifies the
// paying customer, which for a bank transfer is the owner of the dedicated
// account it landed in.
type Transaction struct {
	ID           int64
	Reference    string
	Status       string
	Amount       decimal.Decimal
	Currency     string
	PaidAt       *time.Time
	Email        string
	CustomerCode string
	Metadata     map[string]string
}

type transactionPayload struct {
	ID        int64           `json:"id"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    *time.Time      `json:"paid_at"`
	Metadata  json.RawMessage `json:"metadata"`
	Customer  struct {
		Email        string `json:"email"`
		CustomerCode string `json:"customer_code"`
	} `json:"customer"`
}

// VerifyTransaction fetches the current state of a charge by reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}

	var payload transactionPayload
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &payload); err != nil {
		return nil, err
	}

	return &Transaction{
		ID:           payload.ID,
		Reference:    payload.Reference,
		Status:       strings.ToLower(payload.Status),
		Amount:       FromSubunit(payload.Amount),
		Currency:     payload.Currency,
		PaidAt:       payload.PaidAt,
		Email:        payload.Customer.Email,
		CustomerCode: payload.Customer.CustomerCode,
		Metadata:     decodeMetadata(payload.Metadata),
	}, nil
}

// decodeMetadata accepts metadata as an object, a JSON-encoded string, or empty.
// Non-string values are rendered with their JSON text.
func decodeMetadata(raw json.RawMessage) map[string]string {
	out := map[string]string{}
	if len(raw) == 0 {
		return out
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return out
		}
		raw = json.RawMessage(asString)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return out
	}
	for k, v := range fields {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	return out
}
