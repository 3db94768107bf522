package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubOrderReader struct {
	order       *models.Order
	list        *internalorders.OrderList
	gotUser     uuid.UUID
	gotNumber   string
	gotParams   pagination.Params
	gotFilters  internalorders.OrderFilters
	adminCalled bool
}

func (s *stubOrderReader) FindByOrderNumber(_ context.Context, userID uuid.UUID, orderNumber string) (*models.Order, error) {
	s.gotUser = userID
	s.gotNumber = orderNumber
	if s.order == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s *stubOrderReader) ListUserOrders(_ context.Context, userID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	s.gotUser = userID
	s.gotParams = params
	return s.list, nil
}

func (s *stubOrderReader) ListOrders(_ context.Context, params pagination.Params, filters internalorders.OrderFilters) (*internalorders.OrderList, error) {
	s.adminCalled = true
	s.gotParams = params
	s.gotFilters = filters
	return s.list, nil
}

type stubTransitioner struct {
	order     *models.Order
	err       error
	gotID     uuid.UUID
	gotTarget enums.OrderStatus
	gotReason string
	gotActor  *outbox.ActorRef
}

func (s *stubTransitioner) Transition(_ context.Context, orderID uuid.UUID, target enums.OrderStatus, reason string, actor *outbox.ActorRef) (*models.Order, error) {
	s.gotID = orderID
	s.gotTarget = target
	s.gotReason = reason
	s.gotActor = actor
	return s.order, s.err
}

func withCaller(req *http.Request, userID uuid.UUID, role enums.UserRole) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestListUsesCallerAndPaging(t *testing.T) {
	userID := uuid.New()
	repo := &stubOrderReader{list: &internalorders.OrderList{Orders: []models.Order{{OrderNumber: "ORD-1"}}}}

	req := withCaller(httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=5", nil), userID, enums.UserRoleCustomer)
	rec := httptest.NewRecorder()
	List(repo, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, userID, repo.gotUser)
	require.Equal(t, 5, repo.gotParams.Limit)
	require.Contains(t, rec.Body.String(), "ORD-1")
}

func TestListRejectsBadInput(t *testing.T) {
	repo := &stubOrderReader{list: &internalorders.OrderList{}}

	rec := httptest.NewRecorder()
	List(repo, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := withCaller(httptest.NewRequest(http.MethodGet, "/api/v1/orders?cursor=not-base64!", nil), uuid.New(), enums.UserRoleCustomer)
	rec = httptest.NewRecorder()
	List(repo, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = withCaller(httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=500", nil), uuid.New(), enums.UserRoleCustomer)
	rec = httptest.NewRecorder()
	List(repo, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetailNotFound(t *testing.T) {
	repo := &stubOrderReader{}
	req := withCaller(httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORD-X", nil), uuid.New(), enums.UserRoleCustomer)
	req = withURLParam(req, "orderNumber", "ORD-X")
	rec := httptest.NewRecorder()
	Detail(repo, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, string(pkgerrors.CodeNotFound), decodeError(t, rec))
	require.Equal(t, "ORD-X", repo.gotNumber)
}

func TestAdminListParsesFilters(t *testing.T) {
	repo := &stubOrderReader{list: &internalorders.OrderList{}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders?status=approved&payment_status=paid", nil)
	rec := httptest.NewRecorder()
	AdminList(repo, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, repo.adminCalled)
	require.NotNil(t, repo.gotFilters.Status)
	require.Equal(t, enums.OrderStatusApproved, *repo.gotFilters.Status)
	require.NotNil(t, repo.gotFilters.PaymentStatus)
	require.Equal(t, enums.PaymentStatusPaid, *repo.gotFilters.PaymentStatus)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders?status=shipped", nil)
	rec = httptest.NewRecorder()
	AdminList(repo, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminUpdateStatusPassesReasonAndActor(t *testing.T) {
	adminID := uuid.New()
	orderID := uuid.New()
	svc := &stubTransitioner{order: &models.Order{ID: orderID, Status: enums.OrderStatusCancelled}}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/orders/"+orderID.String()+"/status", strings.NewReader(`{"status":"cancelled","reason":"  out of stock  "}`))
	req = withURLParam(withCaller(req, adminID, enums.UserRoleAdmin), "orderId", orderID.String())
	rec := httptest.NewRecorder()
	AdminUpdateStatus(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, orderID, svc.gotID)
	require.Equal(t, enums.OrderStatusCancelled, svc.gotTarget)
	require.Equal(t, "out of stock", svc.gotReason)
	require.NotNil(t, svc.gotActor)
	require.Equal(t, adminID, svc.gotActor.UserID)
	require.Equal(t, string(enums.UserRoleAdmin), svc.gotActor.Role)
}

func TestAdminUpdateStatusRejectsUnknownTarget(t *testing.T) {
	orderID := uuid.New()
	svc := &stubTransitioner{}

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"status":"pending"}`))
	req = withURLParam(withCaller(req, uuid.New(), enums.UserRoleAdmin), "orderId", orderID.String())
	rec := httptest.NewRecorder()
	AdminUpdateStatus(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, uuid.Nil, svc.gotID)
}

func TestAdminUpdateStatusSurfacesStateConflict(t *testing.T) {
	orderID := uuid.New()
	svc := &stubTransitioner{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order is delivered")}

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"status":"approved"}`))
	req = withURLParam(withCaller(req, uuid.New(), enums.UserRoleAdmin), "orderId", orderID.String())
	rec := httptest.NewRecorder()
	AdminUpdateStatus(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, string(pkgerrors.CodeStateConflict), decodeError(t, rec))
}
