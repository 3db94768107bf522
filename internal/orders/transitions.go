package orders

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var statusTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusApproved, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusApproved, enums.OrderStatusCancelled},
	enums.OrderStatusApproved:   {enums.OrderStatusDelivered, enums.OrderStatusCancelled},
}

var paymentTransitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending: {enums.PaymentStatusPaid, enums.PaymentStatusFailed},
	enums.PaymentStatusPaid:    {enums.PaymentStatusRefunded},
}

// ValidateStatusTransition returns a STATE_CONFLICT error unless from may move to to.
func ValidateStatusTransition(from, to enums.OrderStatus) error {
	if !to.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", to)
	}
	if from.IsTerminal() {
		return transitionConflict("order is already "+string(from), string(from), string(to))
	}
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return transitionConflict("order cannot move from "+string(from)+" to "+string(to), string(from), string(to))
}

// ValidatePaymentTransition returns a STATE_CONFLICT error unless the payment
// status may move from from to to.
func ValidatePaymentTransition(from, to enums.PaymentStatus) error {
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return transitionConflict("payment cannot move from "+string(from)+" to "+string(to), string(from), string(to))
}

func transitionConflict(message, from, to string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]string{"from": from, "to": to})
}
