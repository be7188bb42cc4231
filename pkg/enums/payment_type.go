package enums

import (
	"fmt"
	"strings"
)

// PaymentType categorizes tenant billing charges.
type PaymentType string

const (
	PaymentTypeSetupFee            PaymentType = "setup_fee"
	PaymentTypeMonthlySubscription PaymentType = "monthly_subscription"
)

var validPaymentTypes = []PaymentType{
	PaymentTypeSetupFee,
	PaymentTypeMonthlySubscription,
}

// String implements fmt.Stringer.
func (p PaymentType) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PaymentType) IsValid() bool {
	for _, candidate := range validPaymentTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentType converts raw input into a PaymentType.
func ParsePaymentType(value string) (PaymentType, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment type %q", value)
}
