package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
)

// MatchZone returns the active zone whose band [min, max) contains distance.
// Overlapping matches resolve to the smallest min_distance, then the most
// recently created zone. Returns nil when nothing matches.
func MatchZone(zones []models.DeliveryZone, distance decimal.Decimal) *models.DeliveryZone {
	var best *models.DeliveryZone
	for i := range zones {
		zone := &zones[i]
		if !zone.IsActive {
			continue
		}
		if distance.LessThan(zone.MinDistance) || !distance.LessThan(zone.MaxDistance) {
			continue
		}
		if best == nil || preferZone(zone, best) {
			best = zone
		}
	}
	return best
}

func preferZone(candidate, current *models.DeliveryZone) bool {
	if cmp := candidate.MinDistance.Cmp(current.MinDistance); cmp != 0 {
		return cmp < 0
	}
	return candidate.CreatedAt.After(current.CreatedAt)
}

// Breakdown is the pre-promotion fee for a distance.
type Breakdown struct {
	Zone          *models.DeliveryZone
	BasePrice     decimal.Decimal
	DistancePrice decimal.Decimal
	// Fee is max(base + distance price, minimum charge), or zero when the
	// free delivery threshold applies.
	Fee          decimal.Decimal
	FreeDelivery bool
}

// Compute prices a delivery from the configured zones and defaults.
func Compute(pricing models.DeliveryPricing, zones []models.DeliveryZone, distance, subtotal decimal.Decimal) (*Breakdown, error) {
	if pricing.MaxDeliveryDistance.IsPositive() && distance.GreaterThan(pricing.MaxDeliveryDistance) {
		return nil, pkgerrors.New(pkgerrors.CodeDistanceExceeded, "delivery distance exceeds the supported maximum").
			WithDetails(map[string]any{
				"distance_km":     distance.String(),
				"max_distance_km": pricing.MaxDeliveryDistance.String(),
			})
	}

	out := &Breakdown{}
	if zone := MatchZone(zones, distance); zone != nil {
		out.Zone = zone
		out.BasePrice = decimal.Zero
		out.DistancePrice = zone.Price
	} else {
		out.BasePrice = pricing.DefaultBasePrice
		out.DistancePrice = distance.Mul(pricing.DefaultPricePerKm).Round(2)
	}

	out.Fee = decimal.Max(out.BasePrice.Add(out.DistancePrice), pricing.MinDeliveryCharge)
	if pricing.FreeDeliveryThreshold.IsPositive() && !subtotal.LessThan(pricing.FreeDeliveryThreshold) {
		out.Fee = decimal.Zero
		out.FreeDelivery = true
	}
	return out, nil
}
