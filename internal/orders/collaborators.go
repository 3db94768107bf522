package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// ProductStock restores inventory on the products table.
type ProductStock struct {
	logg *logger.Logger
}

func NewProductStock(logg *logger.Logger) *ProductStock {
	return &ProductStock{logg: logg}
}

// Restore adds qty units back to the product. A product that no longer exists
// is logged and skipped.
func (p *ProductStock) Restore(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if qty <= 0 {
		return fmt.Errorf("restore quantity must be positive")
	}
	res := tx.WithContext(ctx).Exec("UPDATE products SET stock = stock + ? WHERE id = ?", qty, productID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 && p.logg != nil {
		p.logg.Warn(p.logg.WithField(ctx, "product_id", productID.String()), "stock restore skipped: product missing")
	}
	return nil
}

// OutboxRefunder queues refund intent for manual processing.
type OutboxRefunder struct {
	outbox outbox.Emitter
}

func NewOutboxRefunder(emitter outbox.Emitter) *OutboxRefunder {
	return &OutboxRefunder{outbox: emitter}
}

func (r *OutboxRefunder) RequestRefund(ctx context.Context, tx *gorm.DB, order models.Order, details types.RefundDetails) error {
	event := payloads.RefundRequestedEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		RefundID:      details.RefundID,
		Amount:        details.Amount,
		CorrelationID: order.PaymentCorrelationID,
		Reason:        details.Reason,
		RequestedAt:   details.RequestedAt,
	}
	if order.PaymentDetails != nil {
		event.TransactionCode = order.PaymentDetails.TransactionCode
	}
	return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRefundRequested,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		OccurredAt:    details.RequestedAt,
		Data:          event,
	})
}

// AddressBook checks address ownership against the addresses table.
type AddressBook struct{}

func (AddressBook) BelongsTo(ctx context.Context, tx *gorm.DB, addressID, userID uuid.UUID) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Table("addresses").
		Where("id = ? AND user_id = ?", addressID, userID).
		Count(&count).Error
	return count > 0, err
}
