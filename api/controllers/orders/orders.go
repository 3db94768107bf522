package orders

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const maxReasonLength = 500

var errNoOrders = pkgerrors.New(pkgerrors.CodeInternal, "orders backend unavailable")

// OrderReader is the read side the listing endpoints need.
type OrderReader interface {
	FindByOrderNumber(ctx context.Context, userID uuid.UUID, orderNumber string) (*models.Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error)
	ListOrders(ctx context.Context, params pagination.Params, filters internalorders.OrderFilters) (*internalorders.OrderList, error)
}

// StatusTransitioner applies admin status changes.
type StatusTransitioner interface {
	Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, reason string, actor *outbox.ActorRef) (*models.Order, error)
}

// serve adapts a handler that returns its payload, writing the data envelope
// on success and the error envelope otherwise.
func serve(logg *logger.Logger, ready bool, fn func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready {
			responses.WriteError(r.Context(), logg, w, errNoOrders)
			return
		}
		data, err := fn(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, data)
	}
}

// List returns the caller's orders, newest first.
func List(repo OrderReader, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, repo != nil, func(r *http.Request) (any, error) {
		userID, err := callerID(r)
		if err != nil {
			return nil, err
		}
		page, err := pageParams(r)
		if err != nil {
			return nil, err
		}
		list, err := repo.ListUserOrders(r.Context(), userID, page)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
		}
		return list, nil
	})
}

// Detail looks an order up by number within the caller's own orders.
func Detail(repo OrderReader, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, repo != nil, func(r *http.Request) (any, error) {
		userID, err := callerID(r)
		if err != nil {
			return nil, err
		}
		number := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
		if number == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
		}
		order, err := repo.FindByOrderNumber(r.Context(), userID, number)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		case err != nil:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch order")
		}
		return order, nil
	})
}

// AdminList pages through every order. status and payment_status filter.
func AdminList(repo OrderReader, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, repo != nil, func(r *http.Request) (any, error) {
		page, err := pageParams(r)
		if err != nil {
			return nil, err
		}
		var filters internalorders.OrderFilters
		if filters.Status, err = validators.ParseQueryEnum(r, "status", enums.ParseOrderStatus); err != nil {
			return nil, err
		}
		if filters.PaymentStatus, err = validators.ParseQueryEnum(r, "payment_status", enums.ParsePaymentStatus); err != nil {
			return nil, err
		}
		list, err := repo.ListOrders(r.Context(), page, filters)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
		}
		return list, nil
	})
}

type statusRequest struct {
	Status string  `json:"status" validate:"required,oneof=approved cancelled delivered"`
	Reason *string `json:"reason,omitempty"`
}

// AdminUpdateStatus moves one order through the status machine on behalf of
// the calling admin.
func AdminUpdateStatus(svc StatusTransitioner, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, svc != nil, func(r *http.Request) (any, error) {
		actor, err := callerID(r)
		if err != nil {
			return nil, err
		}
		orderID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "orderId")))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
		}
		var body statusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		var reason string
		if body.Reason != nil {
			reason = validators.SanitizeString(*body.Reason, maxReasonLength)
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		return svc.Transition(ctx, orderID, enums.OrderStatus(body.Status), reason, &outbox.ActorRef{
			UserID: actor,
			Role:   middleware.RoleFromContext(ctx),
		})
	})
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	if _, err := pagination.ParseCursor(cursor); err != nil {
		return pagination.Params{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pagination.Params{Limit: limit, Cursor: cursor}, nil
}
