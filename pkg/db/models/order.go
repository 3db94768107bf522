package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is one purchased line item. Orders created by the same online checkout
// share a PaymentCorrelationID and are reconciled together.
type Order struct {
	ID                   uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderNumber          string                `gorm:"column:order_number;not null;uniqueIndex" json:"order_number"`
	UserID               uuid.UUID             `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	ProductID            uuid.UUID             `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	ProductName          string                `gorm:"column:product_name;not null" json:"product_name"`
	ProductImage         *string               `gorm:"column:product_image" json:"product_image,omitempty"`
	UnitPrice            decimal.Decimal       `gorm:"column:unit_price;type:numeric(12,2);not null" json:"unit_price"`
	Quantity             int                   `gorm:"column:quantity;not null" json:"quantity"`
	PaymentCorrelationID *string               `gorm:"column:payment_correlation_id" json:"payment_correlation_id,omitempty"`
	PaymentMethod        enums.PaymentMethod   `gorm:"column:payment_method;type:payment_method;not null" json:"payment_method"`
	PaymentStatus        enums.PaymentStatus   `gorm:"column:payment_status;type:payment_status;not null" json:"payment_status"`
	Status               enums.OrderStatus     `gorm:"column:status;type:order_status;not null;default:'pending'" json:"status"`
	DeliveryAddressID    uuid.UUID             `gorm:"column:delivery_address_id;type:uuid;not null" json:"delivery_address_id"`
	SubTotal             decimal.Decimal       `gorm:"column:sub_total;type:numeric(12,2);not null" json:"sub_total"`
	Total                decimal.Decimal       `gorm:"column:total;type:numeric(12,2);not null" json:"total"`
	PaymentDetails       *types.PaymentDetails `gorm:"column:payment_details;type:jsonb;serializer:json" json:"payment_details,omitempty"`
	CancellationReason   *string               `gorm:"column:cancellation_reason" json:"cancellation_reason,omitempty"`
	RefundDetails        *types.RefundDetails  `gorm:"column:refund_details;type:jsonb;serializer:json" json:"refund_details,omitempty"`
	DeliveredAt          *time.Time            `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	CreatedAt            time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// LineTotal is unit price times quantity.
func (o Order) LineTotal() decimal.Decimal {
	return o.UnitPrice.Mul(decimal.NewFromInt(int64(o.Quantity)))
}
