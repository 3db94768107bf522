package checkout

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type materializer interface {
	Materialize(ctx context.Context, input orders.MaterializeInput) (*orders.Materialized, error)
}

type paymentInitiator interface {
	ProductCode() string
	Quote(amount decimal.Decimal) payments.Quote
	Initiate(orders []models.Order, correlationID string, amount decimal.Decimal) (*payments.RedirectPayload, error)
}

// Service places storefront orders.
type Service interface {
	PlaceCashOnDelivery(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*CheckoutResult, error)
	StartOnlinePayment(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*CheckoutResult, error)
}

// CheckoutInput is the cart snapshot the client submits.
type CheckoutInput struct {
	LineItems []orders.LineItem
	AddressID uuid.UUID
	SubTotal  decimal.Decimal
	Total     decimal.Decimal
}

// CheckoutResult holds the created orders and, for online checkouts, the
// signed gateway form.
type CheckoutResult struct {
	Orders        []models.Order            `json:"orders"`
	CorrelationID string                    `json:"transaction_uuid,omitempty"`
	Payment       *payments.RedirectPayload `json:"payment,omitempty"`
}

type service struct {
	orders    materializer
	initiator paymentInitiator
	logg      *logger.Logger
}

// NewService builds the checkout service.
func NewService(materializer materializer, initiator paymentInitiator, logg *logger.Logger) (Service, error) {
	if materializer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order materializer required")
	}
	if initiator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment initiator required")
	}
	return &service{
		orders:    materializer,
		initiator: initiator,
		logg:      logg,
	}, nil
}

func (s *service) PlaceCashOnDelivery(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*CheckoutResult, error) {
	result, err := s.orders.Materialize(ctx, orders.MaterializeInput{
		UserID:    userID,
		LineItems: input.LineItems,
		AddressID: input.AddressID,
		SubTotal:  input.SubTotal,
		Total:     input.Total,
		Mode:      orders.ModeCashOnDelivery,
	})
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{Orders: result.Orders}, nil
}

// StartOnlinePayment writes the pending group and signs the redirect form.
// A failure after the orders are written leaves them pending for the sweep.
func (s *service) StartOnlinePayment(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*CheckoutResult, error) {
	quote := s.initiator.Quote(input.Total)
	result, err := s.orders.Materialize(ctx, orders.MaterializeInput{
		UserID:    userID,
		LineItems: input.LineItems,
		AddressID: input.AddressID,
		SubTotal:  input.SubTotal,
		Total:     input.Total,
		Mode:      orders.ModeOnline,
		Gateway: &orders.GatewayQuote{
			TotalAmount: quote.TotalAmount,
			ProductCode: s.initiator.ProductCode(),
		},
	})
	if err != nil {
		return nil, err
	}

	payload, err := s.initiator.Initiate(result.Orders, result.CorrelationID, input.Total)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithCorrelationID(ctx, result.CorrelationID), "sign payment form", err)
		}
		return nil, err
	}
	return &CheckoutResult{
		Orders:        result.Orders,
		CorrelationID: result.CorrelationID,
		Payment:       payload,
	}, nil
}
