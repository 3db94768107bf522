package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once per checkout, online or cash on delivery.
type OrderCreatedEvent struct {
	CheckoutID    uuid.UUID           `json:"checkout_id"`
	CorrelationID *string             `json:"correlation_id,omitempty"`
	UserID        uuid.UUID           `json:"user_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	OrderIDs      []uuid.UUID         `json:"order_ids"`
	OrderNumbers  []string            `json:"order_numbers"`
	Total         decimal.Decimal     `json:"total"`
}

// OrderPaidEvent is emitted when the gateway confirms a correlation group.
type OrderPaidEvent struct {
	CheckoutID      uuid.UUID       `json:"checkout_id"`
	CorrelationID   string          `json:"correlation_id"`
	UserID          uuid.UUID       `json:"user_id"`
	OrderIDs        []uuid.UUID     `json:"order_ids"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TransactionCode string          `json:"transaction_code,omitempty"`
	Source          string          `json:"source"`
	PaidAt          time.Time       `json:"paid_at"`
}

// PaymentFailedEvent is emitted when a group is cancelled at the gateway or
// expired by the sweep.
type PaymentFailedEvent struct {
	CheckoutID    uuid.UUID   `json:"checkout_id"`
	CorrelationID string      `json:"correlation_id"`
	UserID        uuid.UUID   `json:"user_id"`
	OrderIDs      []uuid.UUID `json:"order_ids"`
	GatewayStatus string      `json:"gateway_status"`
	Source        string      `json:"source"`
	FailedAt      time.Time   `json:"failed_at"`
}

// OrderStatusChangedEvent accompanies every admin transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	UserID      uuid.UUID         `json:"user_id"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	ChangedAt   time.Time         `json:"changed_at"`
}

// OrderCanceledEvent reports a cancellation and the stock it returned.
type OrderCanceledEvent struct {
	OrderID          uuid.UUID           `json:"order_id"`
	OrderNumber      string              `json:"order_number"`
	UserID           uuid.UUID           `json:"user_id"`
	ProductID        uuid.UUID           `json:"product_id"`
	QuantityRestored int                 `json:"quantity_restored"`
	PaymentStatus    enums.PaymentStatus `json:"payment_status"`
	Reason           string              `json:"reason"`
	CanceledAt       time.Time           `json:"canceled_at"`
}

// RefundRequestedEvent asks finance to refund a cancelled paid order.
type RefundRequestedEvent struct {
	OrderID         uuid.UUID       `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	UserID          uuid.UUID       `json:"user_id"`
	RefundID        string          `json:"refund_id"`
	Amount          decimal.Decimal `json:"amount"`
	CorrelationID   *string         `json:"correlation_id,omitempty"`
	TransactionCode string          `json:"transaction_code,omitempty"`
	Reason          string          `json:"reason"`
	RequestedAt     time.Time       `json:"requested_at"`
}
