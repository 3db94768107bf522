package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	defaultCancellationReason = "Cancelled by admin"
	refundIDPrefix            = "RFD-"
	refundStatusRequested     = "requested"
)

// StatusMachine applies admin driven status transitions.
type StatusMachine struct {
	repo    Repository
	tx      txRunner
	cart    cart.Clearer
	stock   StockRestorer
	refunds Refunder
	outbox  outbox.Emitter
	logg    *logger.Logger
	now     func() time.Time
}

// NewStatusMachine wires the transition service. refunds may be nil, in which
// case refund intent is queued on the outbox.
func NewStatusMachine(repo Repository, tx txRunner, clearer cart.Clearer, stock StockRestorer, refunds Refunder, emitter outbox.Emitter, logg *logger.Logger) (*StatusMachine, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if clearer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart clearer required")
	}
	if stock == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock restorer required")
	}
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if refunds == nil {
		refunds = NewOutboxRefunder(emitter)
	}
	return &StatusMachine{
		repo:    repo,
		tx:      tx,
		cart:    clearer,
		stock:   stock,
		refunds: refunds,
		outbox:  emitter,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Transition moves one order to target. The status write is conditional on the
// status that was read, so side effects run at most once per transition.
func (s *StatusMachine) Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, reason string, actor *outbox.ActorRef) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if err := ValidateStatusTransition(order.Status, target); err != nil {
			return err
		}

		now := s.now()
		updates := map[string]any{"status": target}
		var refund *types.RefundDetails

		switch target {
		case enums.OrderStatusDelivered:
			updates["delivered_at"] = now
		case enums.OrderStatusCancelled:
			reason = strings.TrimSpace(reason)
			if reason == "" {
				reason = defaultCancellationReason
			}
			updates["cancellation_reason"] = reason
			if order.PaymentStatus == enums.PaymentStatusPaid {
				if err := ValidatePaymentTransition(order.PaymentStatus, enums.PaymentStatusRefunded); err != nil {
					return err
				}
				refund = newRefund(*order, reason, now)
				updates["payment_status"] = enums.PaymentStatusRefunded
				updates["refund_details"] = *refund
			}
		}

		rows, err := repo.UpdateStatusFrom(ctx, order.ID, order.Status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently")
		}

		switch target {
		case enums.OrderStatusApproved:
			if order.PaymentStatus == enums.PaymentStatusPending {
				if _, err := s.cart.ClearUserCart(ctx, tx, order.UserID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
				}
			}
		case enums.OrderStatusCancelled:
			if err := s.stock.Restore(ctx, tx, order.ProductID, order.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restore stock")
			}
			if refund != nil {
				if err := s.refunds.RequestRefund(ctx, tx, *order, *refund); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "request refund")
				}
			}
			finalPayment := order.PaymentStatus
			if refund != nil {
				finalPayment = enums.PaymentStatusRefunded
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCanceled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actor,
				OccurredAt:    now,
				Data: payloads.OrderCanceledEvent{
					OrderID:          order.ID,
					OrderNumber:      order.OrderNumber,
					UserID:           order.UserID,
					ProductID:        order.ProductID,
					QuantityRestored: order.Quantity,
					PaymentStatus:    finalPayment,
					Reason:           reason,
					CanceledAt:       now,
				},
			}); err != nil {
				return err
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				From:        order.Status,
				To:          target,
				ChangedAt:   now,
			},
		}); err != nil {
			return err
		}

		updated, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, updated.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"status":         string(updated.Status),
			"payment_status": string(updated.PaymentStatus),
		})
		s.logg.Info(logCtx, "order status changed")
	}
	return updated, nil
}
