package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type PaymentVerifier interface {
	Verify(ctx context.Context, correlationID string, userID uuid.UUID) (*payments.ReconcileResult, error)
}

type verifyPaymentRequest struct {
	TransactionUUID string `json:"transaction_uuid" validate:"required,max=64"`
}

// VerifyEsewaPayment lets the purchaser poll the gateway when the redirect
// never came back.
func VerifyEsewaPayment(svc PaymentVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload verifyPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		correlationID := strings.TrimSpace(payload.TransactionUUID)
		if logg != nil {
			ctx = logg.WithCorrelationID(ctx, correlationID)
		}

		result, err := svc.Verify(ctx, correlationID, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
