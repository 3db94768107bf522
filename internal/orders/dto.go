package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Mode selects how a checkout is settled.
type Mode string

const (
	ModeCashOnDelivery Mode = "cash_on_delivery"
	ModeOnline         Mode = "online"
)

// LineItem is a cart line resolved by the cart subsystem. Prices are taken as given.
type LineItem struct {
	ProductID uuid.UUID
	Name      string
	Image     *string
	UnitPrice decimal.Decimal
	Quantity  int
}

// GatewayQuote is what the payment gateway will be asked to collect.
type GatewayQuote struct {
	TotalAmount decimal.Decimal
	ProductCode string
}

// MaterializeInput carries one checkout submission.
type MaterializeInput struct {
	UserID    uuid.UUID
	LineItems []LineItem
	AddressID uuid.UUID
	SubTotal  decimal.Decimal
	Total     decimal.Decimal
	Mode      Mode
	// Gateway is required for ModeOnline.
	Gateway *GatewayQuote
}

// Materialized is the outcome of a checkout submission.
type Materialized struct {
	CheckoutID    uuid.UUID
	CorrelationID string
	Orders        []models.Order
	Session       *models.PaymentSession
}

// OrderFilters narrow the admin listing.
type OrderFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
