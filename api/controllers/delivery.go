package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/deliverydesk-backend/api/middleware"
	"github.com/angelmondragon/deliverydesk-backend/api/responses"
	"github.com/angelmondragon/deliverydesk-backend/api/validators"
	"github.com/angelmondragon/deliverydesk-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/maps"
)

type distanceResolver interface {
	Distance(ctx context.Context, origin, destination string) (*maps.Distance, error)
}

type feeCalculator interface {
	Calculate(ctx context.Context, input pricing.QuoteInput) (*pricing.Quote, error)
}

type distanceRequest struct {
	Origin      string `json:"origin" validate:"required,max=500"`
	Destination string `json:"destination" validate:"required,max=500"`
}

// CalculateDistance proxies the mapping provider for an address or
// coordinate pair.
func CalculateDistance(resolver distanceResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if resolver == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "distance provider not configured"))
			return
		}

		var req distanceRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		out, err := resolver.Distance(ctx, validators.SanitizeString(req.Origin, 500), validators.SanitizeString(req.Destination, 500))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

type deliveryFeeRequest struct {
	DistanceKm    *decimal.Decimal `json:"distance_km,omitempty"`
	Origin        string           `json:"origin,omitempty" validate:"max=500"`
	Destination   string           `json:"destination,omitempty" validate:"max=500"`
	OrderSubtotal decimal.Decimal  `json:"order_subtotal" validate:"gte=0"`
	PromotionCode string           `json:"promotion_code,omitempty" validate:"max=64"`
	Commit        bool             `json:"commit,omitempty"`
	OrderID       *uuid.UUID       `json:"order_id,omitempty"`
}

// CalculateDeliveryFee prices a delivery and records the computation.
func CalculateDeliveryFee(svc feeCalculator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing service unavailable"))
			return
		}

		var req deliveryFeeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		input := pricing.QuoteInput{
			DistanceKm:    req.DistanceKm,
			Origin:        req.Origin,
			Destination:   req.Destination,
			OrderSubtotal: req.OrderSubtotal,
			PromotionCode: req.PromotionCode,
			Commit:        req.Commit,
			OrderID:       req.OrderID,
		}
		if actor := middleware.UserIDFromContext(ctx); actor != uuid.Nil {
			input.ActorID = &actor
		}

		quote, err := svc.Calculate(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}
