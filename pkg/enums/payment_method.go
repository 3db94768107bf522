package enums

import "fmt"

// PaymentMethod is fixed when orders are materialized and never changes.
type PaymentMethod string

const (
	PaymentMethodEsewa          PaymentMethod = "esewa"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func (p PaymentMethod) String() string {
	return string(p)
}

func (p PaymentMethod) IsValid() bool {
	return p == PaymentMethodEsewa || p == PaymentMethodCashOnDelivery
}

// InitialPaymentStatus is the payment_status new orders start in. Gateway
// orders wait for reconciliation; cash on delivery is settled at the door.
func (p PaymentMethod) InitialPaymentStatus() PaymentStatus {
	if p == PaymentMethodEsewa {
		return PaymentStatusPending
	}
	return PaymentStatusCashOnDelivery
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	if method := PaymentMethod(value); method.IsValid() {
		return method, nil
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
