package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxCallbackBody = 64 << 10

type EsewaReconciler interface {
	Authenticate(ctx context.Context, payload payments.CallbackPayload) error
	Reconcile(ctx context.Context, payload payments.CallbackPayload) (*payments.ReconcileResult, error)
	GroupState(ctx context.Context, correlationID string) (*payments.ReconcileResult, error)
}

type CallbackGuard interface {
	CheckAndMark(ctx context.Context, transactionUUID, status string) (bool, error)
	Delete(ctx context.Context, transactionUUID, status string) error
}

// EsewaCallback handles the gateway's browser redirect (GET) and the
// storefront's forwarded callback (POST). GET always ends in a redirect to
// the storefront; POST answers with the reconcile result.
func EsewaCallback(svc EsewaReconciler, guard CallbackGuard, cfg config.StorefrontConfig, logg *logger.Logger) http.HandlerFunc {
	frontend := strings.TrimRight(strings.TrimSpace(cfg.FrontendURL), "/")

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		redirect := r.Method == http.MethodGet

		fail := func(err error) {
			if redirect {
				if logg != nil {
					logg.Error(ctx, "esewa callback failed", err)
				}
				http.Redirect(w, r, failedURL(frontend), http.StatusFound)
				return
			}
			responses.WriteError(ctx, logg, w, err)
		}

		if svc == nil || guard == nil {
			fail(pkgerrors.New(pkgerrors.CodeInternal, "payment callback unavailable"))
			return
		}

		payload, err := decodeCallback(w, r)
		if err != nil {
			fail(err)
			return
		}
		if logg != nil {
			ctx = logg.WithCorrelationID(ctx, payload.TransactionUUID)
		}

		if err := svc.Authenticate(ctx, payload); err != nil {
			fail(err)
			return
		}

		seen, err := guard.CheckAndMark(ctx, payload.TransactionUUID, payload.Status)
		if err != nil {
			fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check callback idempotency"))
			return
		}

		var result *payments.ReconcileResult
		if seen {
			result, err = svc.GroupState(ctx, payload.TransactionUUID)
			if err != nil {
				fail(err)
				return
			}
		} else {
			result, err = svc.Reconcile(ctx, payload)
			if err != nil {
				if delErr := guard.Delete(ctx, payload.TransactionUUID, payload.Status); delErr != nil && logg != nil {
					logg.Error(ctx, "release esewa callback guard", delErr)
				}
				fail(err)
				return
			}
			if logg != nil {
				logg.Info(ctx, fmt.Sprintf("esewa callback %s reconciled: %s", payload.TransactionUUID, result.Outcome))
			}
		}

		if !redirect {
			responses.WriteSuccess(w, result)
			return
		}
		if result.PaymentStatus == enums.PaymentStatusPaid && len(result.OrderNumbers) > 0 {
			http.Redirect(w, r, successURL(frontend, result.OrderNumbers[0]), http.StatusFound)
			return
		}
		http.Redirect(w, r, failedURL(frontend), http.StatusFound)
	}
}

func decodeCallback(w http.ResponseWriter, r *http.Request) (payments.CallbackPayload, error) {
	if r.Method == http.MethodGet {
		query := r.URL.Query()
		if data := query.Get("data"); data != "" {
			// unescaped '+' in the base64 blob arrives as a space
			return payments.DecodeCallbackData(strings.ReplaceAll(data, " ", "+"))
		}
		fields := make(map[string]string, len(query))
		for key := range query {
			fields[key] = query.Get(key)
		}
		if len(fields) == 0 {
			return payments.CallbackPayload{}, pkgerrors.New(pkgerrors.CodeValidation, "payment callback data missing")
		}
		return payments.CallbackFromFields(fields), nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		return payments.CallbackPayload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	return payments.DecodeCallbackBody(body)
}

func successURL(frontend, orderNumber string) string {
	q := url.Values{}
	q.Set("payment", "success")
	q.Set("orderId", orderNumber)
	return frontend + "/success?" + q.Encode()
}

func failedURL(frontend string) string {
	return frontend + "/success?payment=failed"
}
