package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/deliverydesk-backend/api/middleware"
	"github.com/angelmondragon/deliverydesk-backend/api/responses"
	"github.com/angelmondragon/deliverydesk-backend/api/validators"
	"github.com/angelmondragon/deliverydesk-backend/internal/payments"
	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
)

type paymentService interface {
	Initialize(ctx context.Context, input payments.InitializeInput) (*payments.Initialization, error)
	Verify(ctx context.Context, input payments.VerifyInput) (*payments.Verification, error)
	VirtualAccount(ctx context.Context, userID uuid.UUID) (*payments.VirtualAccountResult, error)
}

type initializePaymentRequest struct {
	Amount  *decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Email   string           `json:"email" validate:"omitempty,email"`
	Type    string           `json:"type" validate:"omitempty,oneof=wallet order"`
	OrderID *uuid.UUID       `json:"order_id,omitempty"`
}

// InitializePayment opens a hosted checkout for the caller. The email falls
// back to the token's email claim.
func InitializePayment(svc paymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var req initializePaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		email := strings.TrimSpace(req.Email)
		if email == "" {
			email = middleware.EmailFromContext(ctx)
		}

		out, err := svc.Initialize(ctx, payments.InitializeInput{
			UserID:  userID,
			Email:   email,
			Amount:  *req.Amount,
			Mode:    enums.PaymentMode(req.Type),
			OrderID: req.OrderID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// VerifyPayment reports the state of ?reference= and credits the wallet once
// on success in wallet mode. Safe to call repeatedly.
func VerifyPayment(svc paymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		q := r.URL.Query()
		out, err := svc.Verify(ctx, payments.VerifyInput{
			Reference: strings.TrimSpace(q.Get("reference")),
			Mode:      enums.PaymentMode(strings.ToLower(strings.TrimSpace(q.Get("type")))),
			CallerID:  &userID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// CreateVirtualAccount returns the caller's dedicated account, issuing it on
// the first call.
func CreateVirtualAccount(svc paymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		out, err := svc.VirtualAccount(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status := http.StatusOK
		if out.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, out)
	}
}
