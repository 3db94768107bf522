package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/storefront-backend/pkg/db/types"
)

// PaymentSession records one online checkout attempt: the amount the gateway
// was asked to collect for a correlation group. CompletedAt is set once the
// group is settled either way.
type PaymentSession struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	CorrelationID string            `gorm:"column:correlation_id;not null;uniqueIndex"`
	UserID        uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	Amount        decimal.Decimal   `gorm:"column:amount;type:numeric(12,2);not null"`
	TotalAmount   decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	ProductCode   string            `gorm:"column:product_code;not null"`
	OrderCount    int               `gorm:"column:order_count;not null"`
	OrderIDs      dbtypes.UUIDArray `gorm:"column:order_ids;type:uuid[];not null"`
	CompletedAt   *time.Time        `gorm:"column:completed_at"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
