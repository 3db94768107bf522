package controllers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxProductNameLength = 255

// CheckoutCashOnDelivery places the caller's cart as cash on delivery orders.
func CheckoutCashOnDelivery(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		userID, input, err := parseCheckout(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PlaceCashOnDelivery(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CheckoutEsewa creates pending orders and returns the signed eSewa form.
func CheckoutEsewa(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		userID, input, err := parseCheckout(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.StartOnlinePayment(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type checkoutRequest struct {
	Items     []checkoutItemRequest `json:"items" validate:"dive"`
	AddressID string                `json:"address_id" validate:"required,uuid"`
	SubTotal  decimal.Decimal       `json:"sub_total"`
	Total     decimal.Decimal       `json:"total"`
}

type checkoutItemRequest struct {
	ProductID string          `json:"product_id" validate:"required,uuid"`
	Name      string          `json:"name" validate:"required"`
	Image     *string         `json:"image,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" validate:"min=1"`
}

func parseCheckout(r *http.Request) (uuid.UUID, checkoutsvc.CheckoutInput, error) {
	userID, err := callerID(r)
	if err != nil {
		return uuid.Nil, checkoutsvc.CheckoutInput{}, err
	}

	var payload checkoutRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		return uuid.Nil, checkoutsvc.CheckoutInput{}, err
	}

	addressID, err := parseIDField("address_id", payload.AddressID)
	if err != nil {
		return uuid.Nil, checkoutsvc.CheckoutInput{}, err
	}
	items := make([]orders.LineItem, 0, len(payload.Items))
	for i, item := range payload.Items {
		productID, err := parseIDField(fmt.Sprintf("items[%d].product_id", i), item.ProductID)
		if err != nil {
			return uuid.Nil, checkoutsvc.CheckoutInput{}, err
		}
		items = append(items, orders.LineItem{
			ProductID: productID,
			Name:      validators.SanitizeString(item.Name, maxProductNameLength),
			Image:     item.Image,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	return userID, checkoutsvc.CheckoutInput{
		LineItems: items,
		AddressID: addressID,
		SubTotal:  payload.SubTotal,
		Total:     payload.Total,
	}, nil
}

func parseIDField(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid request body").
			WithDetails(map[string]string{field: "must be a valid uuid"})
	}
	return id, nil
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(middleware.UserIDFromContext(r.Context()))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}
