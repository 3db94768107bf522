package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Repository defines persistence operations for orders and payment sessions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrders(ctx context.Context, orders []models.Order) error
	CreatePaymentSession(ctx context.Context, session *models.PaymentSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, userID uuid.UUID, orderNumber string) (*models.Order, error)
	FindByCorrelation(ctx context.Context, correlationID string) ([]models.Order, error)
	FindSession(ctx context.Context, correlationID string) (*models.PaymentSession, error)
	CloseSession(ctx context.Context, correlationID string, at time.Time) error
	MarkGroupPaid(ctx context.Context, correlationID string, details types.PaymentDetails) (int64, error)
	MarkGroupFailed(ctx context.Context, correlationID string, details types.PaymentDetails) (int64, error)
	UpdateStatusFrom(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, updates map[string]any) (int64, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListOrders(ctx context.Context, params pagination.Params, filters OrderFilters) (*OrderList, error)
	ListStaleSessions(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentSession, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockRestorer returns units of a product to inventory.
type StockRestorer interface {
	Restore(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// Refunder records refund intent for a cancelled paid order.
type Refunder interface {
	RequestRefund(ctx context.Context, tx *gorm.DB, order models.Order, details types.RefundDetails) error
}

// AddressChecker confirms a delivery address belongs to the purchaser.
type AddressChecker interface {
	BelongsTo(ctx context.Context, tx *gorm.DB, addressID, userID uuid.UUID) (bool, error)
}
