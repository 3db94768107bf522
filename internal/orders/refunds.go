package orders

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const latePaymentRefundReason = "Order cancelled before payment settled"

func newRefund(order models.Order, reason string, at time.Time) *types.RefundDetails {
	return &types.RefundDetails{
		RefundID:    refundIDPrefix + ulid.Make().String(),
		Amount:      order.LineTotal(),
		RequestedAt: at,
		Reason:      reason,
		Status:      refundStatusRequested,
	}
}

// RefundLatePayment handles an order that was cancelled while its group
// payment was open and that the gateway has since settled as paid. The order
// stays cancelled; its share of the payment is queued for refund.
func RefundLatePayment(ctx context.Context, tx *gorm.DB, repo Repository, refunds Refunder, order models.Order, at time.Time) error {
	if order.Status != enums.OrderStatusCancelled {
		return nil
	}
	refund := newRefund(order, latePaymentRefundReason, at)
	rows, err := repo.WithTx(tx).UpdateStatusFrom(ctx, order.ID, enums.OrderStatusCancelled, map[string]any{
		"payment_status": enums.PaymentStatusRefunded,
		"refund_details": *refund,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record late payment refund")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently")
	}
	if err := refunds.RequestRefund(ctx, tx, order, *refund); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "request refund")
	}
	return nil
}
