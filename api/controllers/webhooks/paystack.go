package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/deliverydesk-backend/api/responses"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/paystack"
)

const maxWebhookBodyKB = 256

type PaystackEventService interface {
	HandleEvent(ctx context.Context, event *paystack.Event) error
}

type paystackWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventKey string) (bool, error)
	Delete(ctx context.Context, eventKey string) error
}

// PaystackWebhook verifies and applies provider events. The guard is
// optional; without it the ledger reference check still prevents double
// credits.
func PaystackWebhook(svc PaystackEventService, secret string, guard paystackWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if secret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "paystack secret unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyKB<<10))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(paystack.SignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "paystack signature missing"))
			return
		}
		if !paystack.ValidSignature(secret, payload, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "paystack signature invalid"))
			return
		}

		event, err := paystack.ParseEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		key := event.Key()
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"event": event.Name, "event_key": key})
		}

		if guard != nil {
			alreadyProcessed, err := guard.CheckAndMark(ctx, key)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if alreadyProcessed {
				if logg != nil {
					logg.Info(ctx, "paystack event already processed")
				}
				responses.WriteSuccess(w, map[string]any{"received": true, "duplicate": true})
				return
			}
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			if guard != nil {
				_ = guard.Delete(ctx, key)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, "paystack event processed")
		}
		responses.WriteSuccess(w, map[string]any{"received": true})
	}
}
