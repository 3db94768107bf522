package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	pkgdb "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/storefront-backend/pkg/db/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Materializer turns a checkout submission into order rows.
type Materializer struct {
	repo      Repository
	tx        txRunner
	cart      cart.Clearer
	outbox    outbox.Emitter
	addresses AddressChecker
	logg      *logger.Logger

	orderNumber   func() string
	correlationID func() string
	now           func() time.Time
}

// MaterializerOption customizes a Materializer.
type MaterializerOption func(*Materializer)

// WithIDGenerators overrides order number and correlation id generation.
func WithIDGenerators(orderNumber, correlationID func() string) MaterializerOption {
	return func(m *Materializer) {
		if orderNumber != nil {
			m.orderNumber = orderNumber
		}
		if correlationID != nil {
			m.correlationID = correlationID
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MaterializerOption {
	return func(m *Materializer) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMaterializer wires the materializer. addresses may be nil, in which case
// address ownership is not checked.
func NewMaterializer(repo Repository, tx txRunner, clearer cart.Clearer, emitter outbox.Emitter, addresses AddressChecker, logg *logger.Logger, opts ...MaterializerOption) (*Materializer, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if clearer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart clearer required")
	}
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	m := &Materializer{
		repo:          repo,
		tx:            tx,
		cart:          clearer,
		outbox:        emitter,
		addresses:     addresses,
		logg:          logg,
		orderNumber:   NewOrderNumber,
		correlationID: NewCorrelationID,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Materialize validates the submission and writes one order per line item in a
// single transaction together with the payment session, the cart clear (cash on
// delivery only) and the order_created event.
func (m *Materializer) Materialize(ctx context.Context, input MaterializeInput) (*Materialized, error) {
	if err := validateMaterializeInput(input); err != nil {
		return nil, err
	}

	now := m.now()
	result := &Materialized{CheckoutID: uuid.New()}

	paymentMethod := enums.PaymentMethodCashOnDelivery
	var correlationID *string
	if input.Mode == ModeOnline {
		id := m.correlationID()
		correlationID = &id
		result.CorrelationID = id
		paymentMethod = enums.PaymentMethodEsewa
	}
	paymentStatus := paymentMethod.InitialPaymentStatus()

	rows := make([]models.Order, 0, len(input.LineItems))
	orderIDs := make([]uuid.UUID, 0, len(input.LineItems))
	orderNumbers := make([]string, 0, len(input.LineItems))
	for _, item := range input.LineItems {
		row := models.Order{
			ID:                   uuid.New(),
			OrderNumber:          m.orderNumber(),
			UserID:               input.UserID,
			ProductID:            item.ProductID,
			ProductName:          strings.TrimSpace(item.Name),
			ProductImage:         item.Image,
			UnitPrice:            item.UnitPrice,
			Quantity:             item.Quantity,
			PaymentCorrelationID: correlationID,
			PaymentMethod:        paymentMethod,
			PaymentStatus:        paymentStatus,
			Status:               enums.OrderStatusPending,
			DeliveryAddressID:    input.AddressID,
			SubTotal:             input.SubTotal,
			Total:                input.Total,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		rows = append(rows, row)
		orderIDs = append(orderIDs, row.ID)
		orderNumbers = append(orderNumbers, row.OrderNumber)
	}

	if input.Mode == ModeOnline {
		result.Session = &models.PaymentSession{
			ID:            result.CheckoutID,
			CorrelationID: result.CorrelationID,
			UserID:        input.UserID,
			Amount:        input.Total,
			TotalAmount:   input.Gateway.TotalAmount,
			ProductCode:   input.Gateway.ProductCode,
			OrderCount:    len(rows),
			OrderIDs:      dbtypes.UUIDArray(orderIDs),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if m.addresses != nil {
			ok, err := m.addresses.BelongsTo(ctx, tx, input.AddressID, input.UserID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check delivery address")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeValidation, "address not found for user").
					WithDetails(map[string]string{"address_id": "not found"})
			}
		}

		repo := m.repo.WithTx(tx)
		if err := repo.CreateOrders(ctx, rows); err != nil {
			if pkgdb.IsUniqueViolation(err, "ux_orders_order_number") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order number collision")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create orders")
		}
		if result.Session != nil {
			if err := repo.CreatePaymentSession(ctx, result.Session); err != nil {
				if pkgdb.IsUniqueViolation(err, "ux_payment_sessions_correlation_id") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment correlation id collision")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment session")
			}
		}
		if input.Mode == ModeCashOnDelivery {
			if _, err := m.cart.ClearUserCart(ctx, tx, input.UserID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
			}
		}

		return m.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateCheckout,
			AggregateID:   result.CheckoutID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: string(enums.UserRoleCustomer)},
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				CheckoutID:    result.CheckoutID,
				CorrelationID: correlationID,
				UserID:        input.UserID,
				PaymentMethod: paymentMethod,
				PaymentStatus: paymentStatus,
				OrderIDs:      orderIDs,
				OrderNumbers:  orderNumbers,
				Total:         input.Total,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	result.Orders = rows
	if m.logg != nil {
		logCtx := m.logg.WithFields(ctx, map[string]any{
			"user_id":        input.UserID.String(),
			"checkout_id":    result.CheckoutID.String(),
			"mode":           string(input.Mode),
			"order_count":    len(rows),
			"correlation_id": result.CorrelationID,
		})
		m.logg.Info(logCtx, "orders materialized")
	}
	return result, nil
}

func validateMaterializeInput(input MaterializeInput) error {
	details := map[string]string{}
	if input.UserID == uuid.Nil {
		details["user_id"] = "required"
	}
	if len(input.LineItems) == 0 {
		details["line_items"] = "at least one item is required"
	}
	for i, item := range input.LineItems {
		key := fmt.Sprintf("line_items[%d]", i)
		switch {
		case item.ProductID == uuid.Nil:
			details[key+".product_id"] = "required"
		case strings.TrimSpace(item.Name) == "":
			details[key+".name"] = "required"
		case item.Quantity < 1:
			details[key+".quantity"] = "must be at least 1"
		case item.UnitPrice.IsNegative():
			details[key+".unit_price"] = "must not be negative"
		}
	}
	if input.AddressID == uuid.Nil {
		details["address_id"] = "required"
	}
	if !input.SubTotal.IsPositive() {
		details["sub_total"] = "must be greater than zero"
	}
	if !input.Total.IsPositive() {
		details["total"] = "must be greater than zero"
	}
	switch input.Mode {
	case ModeCashOnDelivery:
	case ModeOnline:
		if input.Gateway == nil || !input.Gateway.TotalAmount.IsPositive() || strings.TrimSpace(input.Gateway.ProductCode) == "" {
			details["gateway"] = "gateway quote required for online checkout"
		}
	default:
		details["mode"] = "must be cash_on_delivery or online"
	}
	if len(details) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, firstValidationMessage(input, details)).WithDetails(details)
}

func firstValidationMessage(input MaterializeInput, details map[string]string) string {
	switch {
	case len(input.LineItems) == 0:
		return "cart is empty"
	case details["address_id"] != "":
		return "delivery address is required"
	case details["sub_total"] != "" || details["total"] != "":
		return "invalid order amounts"
	default:
		return "invalid checkout request"
	}
}
