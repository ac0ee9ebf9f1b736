package paystack

import (
	"encoding/json"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
)

// Webhook event names handled by the backend.
const (
	EventChargeSuccess = "charge.success"
)

// Event is a decoded webhook delivery. CustomerCode is set on charges,
// including transfers into a dedicated account, which carry no metadata.
type Event struct {
	Name          string
	Reference     string
	TransactionID int64
	CustomerCode  string
	Metadata      map[string]string
}

// Key identifies the delivery for de-duplication. Paystack retries reuse the
// same event name and transaction.
func (e Event) Key() string {
	id := e.Reference
	if e.TransactionID != 0 {
		id = strconv.FormatInt(e.TransactionID, 10)
	}
	return e.Name + ":" + id
}

type eventPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64           `json:"id"`
		Reference string          `json:"reference"`
		Metadata  json.RawMessage `json:"metadata"`
		Customer  struct {
			CustomerCode string `json:"customer_code"`
		} `json:"customer"`
	} `json:"data"`
}

// ParseEvent decodes a webhook body. Signature checks happen before this.
func ParseEvent(body []byte) (*Event, error) {
	var payload eventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	name := strings.TrimSpace(payload.Event)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event name missing")
	}
	return &Event{
		Name:          name,
		Reference:     strings.TrimSpace(payload.Data.Reference),
		TransactionID: payload.Data.ID,
		CustomerCode:  strings.TrimSpace(payload.Data.Customer.CustomerCode),
		Metadata:      decodeMetadata(payload.Data.Metadata),
	}, nil
}
