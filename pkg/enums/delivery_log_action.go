package enums

import "fmt"

// DeliveryLogAction labels the event recorded in the delivery audit log.
type DeliveryLogAction string

const (
	DeliveryLogActionCalculation       DeliveryLogAction = "calculation"
	DeliveryLogActionCalculationFailed DeliveryLogAction = "calculation_failed"
	DeliveryLogActionAdjustment        DeliveryLogAction = "adjustment"
)

var validDeliveryLogActions = []DeliveryLogAction{
	DeliveryLogActionCalculation,
	DeliveryLogActionCalculationFailed,
	DeliveryLogActionAdjustment,
}

// String implements fmt.Stringer.
func (a DeliveryLogAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known DeliveryLogAction.
func (a DeliveryLogAction) IsValid() bool {
	for _, candidate := range validDeliveryLogActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseDeliveryLogAction converts raw input into a DeliveryLogAction.
func ParseDeliveryLogAction(value string) (DeliveryLogAction, error) {
	for _, candidate := range validDeliveryLogActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery log action %q", value)
}
