package payments

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/esewa"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// RedirectPayload is posted by the client to the gateway's hosted page.
type RedirectPayload struct {
	Action string            `json:"action"`
	Method string            `json:"method"`
	Fields map[string]string `json:"fields"`
}

// Quote breaks down what the gateway will collect for a base amount.
type Quote struct {
	Amount         decimal.Decimal
	TaxAmount      decimal.Decimal
	ServiceCharge  decimal.Decimal
	DeliveryCharge decimal.Decimal
	TotalAmount    decimal.Decimal
}

// Initiator builds signed eSewa form payloads. It performs no I/O.
type Initiator struct {
	secret         string
	productCode    string
	formURL        string
	frontendURL    string
	taxAmount      decimal.Decimal
	serviceCharge  decimal.Decimal
	deliveryCharge decimal.Decimal
}

// NewInitiator fails when the merchant secret or product code is missing.
func NewInitiator(cfg config.EsewaConfig, storefront config.StorefrontConfig) (*Initiator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	formURL := strings.TrimSpace(cfg.FormURL)
	if formURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "esewa form url is required")
	}
	return &Initiator{
		secret:         cfg.SecretKey,
		productCode:    strings.TrimSpace(cfg.ProductCode),
		formURL:        formURL,
		frontendURL:    strings.TrimRight(strings.TrimSpace(storefront.FrontendURL), "/"),
		taxAmount:      cfg.TaxAmount,
		serviceCharge:  cfg.ServiceCharge,
		deliveryCharge: cfg.DeliveryCharge,
	}, nil
}

// ProductCode is the merchant code payloads are issued under.
func (i *Initiator) ProductCode() string {
	return i.productCode
}

// Quote adds the configured surcharges to amount.
func (i *Initiator) Quote(amount decimal.Decimal) Quote {
	return Quote{
		Amount:         amount,
		TaxAmount:      i.taxAmount,
		ServiceCharge:  i.serviceCharge,
		DeliveryCharge: i.deliveryCharge,
		TotalAmount:    amount.Add(i.taxAmount).Add(i.serviceCharge).Add(i.deliveryCharge),
	}
}

// Initiate signs the redirect form for a materialized online checkout.
func (i *Initiator) Initiate(orders []models.Order, correlationID string, amount decimal.Decimal) (*RedirectPayload, error) {
	correlationID = strings.TrimSpace(correlationID)
	if len(orders) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orders required")
	}
	if correlationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "correlation id required")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	for _, order := range orders {
		if order.PaymentCorrelationID == nil || *order.PaymentCorrelationID != correlationID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order does not belong to payment group").
				WithDetails(map[string]string{"order_number": order.OrderNumber})
		}
		if order.PaymentStatus != enums.PaymentStatusPending {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order payment is not pending").
				WithDetails(map[string]string{"order_number": order.OrderNumber})
		}
	}

	quote := i.Quote(amount)
	fields := map[string]string{
		"amount":                  quote.Amount.String(),
		"tax_amount":              quote.TaxAmount.String(),
		"total_amount":            quote.TotalAmount.String(),
		"transaction_uuid":        correlationID,
		"product_code":            i.productCode,
		"product_service_charge":  quote.ServiceCharge.String(),
		"product_delivery_charge": quote.DeliveryCharge.String(),
		"success_url":             i.successURL(correlationID),
		"failure_url":             i.frontendURL + "/success?payment=failed",
		esewa.FieldSignedFields:   strings.Join(esewa.RequestSignedFields, ","),
	}
	message, ok := esewa.SignedString(fields, esewa.RequestSignedFields)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "build signed payment fields")
	}
	fields[esewa.FieldSignature] = esewa.Sign(i.secret, message)

	return &RedirectPayload{
		Action: i.formURL,
		Method: "POST",
		Fields: fields,
	}, nil
}

func (i *Initiator) successURL(correlationID string) string {
	query := url.Values{}
	query.Set("payment", "success")
	query.Set("transaction_uuid", correlationID)
	return i.frontendURL + "/success?" + query.Encode()
}
