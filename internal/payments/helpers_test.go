package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	pkgdb "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/esewa"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const (
	testSecret      = "8gBm/:&EnhH.1/q"
	testProductCode = "EPAYTEST"
)

var callbackSignedFields = "transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names"

type countingClearer struct {
	inner *cart.Repository
	calls int
}

func (c *countingClearer) ClearUserCart(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	c.calls++
	return c.inner.ClearUserCart(ctx, tx, userID)
}

type failingEmitter struct{}

var errOutboxDown = errors.New("outbox unavailable")

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errOutboxDown
}

type stubGateway struct {
	status *esewa.TransactionStatus
	err    error
	calls  int
	total  decimal.Decimal
}

func (s *stubGateway) CheckStatus(_ context.Context, transactionUUID string, totalAmount decimal.Decimal) (*esewa.TransactionStatus, error) {
	s.calls++
	s.total = totalAmount
	if s.err != nil {
		return nil, s.err
	}
	status := *s.status
	status.TransactionUUID = transactionUUID
	return &status, nil
}

type harness struct {
	conn    *gorm.DB
	tx      *pkgdb.Client
	repo    orders.Repository
	cart    *countingClearer
	outbox  outbox.Emitter
	gateway *stubGateway
	metrics *metrics.PaymentMetrics
	userID  uuid.UUID
	address uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	userID := uuid.New()
	return &harness{
		conn:    conn,
		tx:      pkgdb.NewFromGorm(conn),
		repo:    orders.NewRepository(conn),
		cart:    &countingClearer{inner: cart.NewRepository(conn)},
		outbox:  outbox.NewService(outbox.NewRepository(conn), nil),
		gateway: &stubGateway{status: &esewa.TransactionStatus{ProductCode: testProductCode, Status: esewa.StatusPending}},
		userID:  userID,
		address: dbtest.SeedAddress(t, conn, userID),
	}
}

func (h *harness) reconciler(t *testing.T) *Reconciler {
	t.Helper()
	r, err := NewReconciler(ReconcilerParams{
		Orders:            h.repo,
		TransactionRunner: h.tx,
		Cart:              h.cart,
		Outbox:            h.outbox,
		Gateway:           h.gateway,
		SecretKey:         testSecret,
		ProductCode:       testProductCode,
		Metrics:           h.metrics,
	})
	require.NoError(t, err)
	return r
}

// placeOnline materializes a two item online checkout whose gateway total is 1100.
func (h *harness) placeOnline(t *testing.T, correlationID string) *orders.Materialized {
	t.Helper()
	first := dbtest.SeedProduct(t, h.conn, "Thangka", decimal.NewFromInt(700), 5)
	second := dbtest.SeedProduct(t, h.conn, "Khukuri", decimal.NewFromInt(300), 5)
	dbtest.SeedCartItem(t, h.conn, h.userID, first, 1)
	dbtest.SeedCartItem(t, h.conn, h.userID, second, 1)

	m, err := orders.NewMaterializer(h.repo, h.tx, h.cart, h.outbox, orders.AddressBook{}, nil,
		orders.WithIDGenerators(nil, func() string { return correlationID }))
	require.NoError(t, err)
	result, err := m.Materialize(context.Background(), orders.MaterializeInput{
		UserID: h.userID,
		LineItems: []orders.LineItem{
			{ProductID: first, Name: "Thangka", UnitPrice: decimal.NewFromInt(700), Quantity: 1},
			{ProductID: second, Name: "Khukuri", UnitPrice: decimal.NewFromInt(300), Quantity: 1},
		},
		AddressID: h.address,
		SubTotal:  decimal.NewFromInt(1000),
		Total:     decimal.NewFromInt(1000),
		Mode:      orders.ModeOnline,
		Gateway:   &orders.GatewayQuote{TotalAmount: decimal.NewFromInt(1100), ProductCode: testProductCode},
	})
	require.NoError(t, err)
	return result
}

// signedCallback builds a callback the gateway would send, signed with the
// merchant secret.
func signedCallback(t *testing.T, fields map[string]string) CallbackPayload {
	t.Helper()
	raw := map[string]string{esewa.FieldSignedFields: callbackSignedFields}
	for k, v := range fields {
		raw[k] = v
	}
	message, ok := esewa.SignedString(raw, esewa.ParseSignedFieldNames(callbackSignedFields))
	require.True(t, ok, "callback fields incomplete")
	raw[esewa.FieldSignature] = esewa.Sign(testSecret, message)
	return CallbackFromFields(raw)
}

func completeFields(correlationID, total string) map[string]string {
	return map[string]string{
		"transaction_code": "000AWEO",
		"status":           esewa.StatusComplete,
		"total_amount":     total,
		"transaction_uuid": correlationID,
		"product_code":     testProductCode,
	}
}
