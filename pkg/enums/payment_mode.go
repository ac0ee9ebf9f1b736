package enums

import "fmt"

// PaymentMode says where verified gateway funds are routed.
type PaymentMode string

const (
	PaymentModeWallet PaymentMode = "wallet"
	PaymentModeOrder  PaymentMode = "order"
)

var validPaymentModes = []PaymentMode{
	PaymentModeWallet,
	PaymentModeOrder,
}

// String implements fmt.Stringer.
func (p PaymentMode) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMode.
func (p PaymentMode) IsValid() bool {
	for _, candidate := range validPaymentModes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMode converts raw input into a PaymentMode.
func ParsePaymentMode(value string) (PaymentMode, error) {
	for _, candidate := range validPaymentModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment mode %q", value)
}
