package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	pkgdb "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

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

type harness struct {
	conn    *gorm.DB
	tx      *pkgdb.Client
	repo    Repository
	cart    *countingClearer
	outbox  *outbox.Service
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
		repo:    NewRepository(conn),
		cart:    &countingClearer{inner: cart.NewRepository(conn)},
		outbox:  outbox.NewService(outbox.NewRepository(conn), nil),
		userID:  userID,
		address: dbtest.SeedAddress(t, conn, userID),
	}
}

func (h *harness) materializer(t *testing.T, opts ...MaterializerOption) *Materializer {
	t.Helper()
	m, err := NewMaterializer(h.repo, h.tx, h.cart, h.outbox, AddressBook{}, nil, opts...)
	require.NoError(t, err)
	return m
}

func (h *harness) statusMachine(t *testing.T) *StatusMachine {
	t.Helper()
	sm, err := NewStatusMachine(h.repo, h.tx, h.cart, NewProductStock(nil), nil, h.outbox, nil)
	require.NoError(t, err)
	return sm
}

// seedOrder writes an order row directly, bypassing the materializer.
func (h *harness) seedOrder(t *testing.T, productID uuid.UUID, qty int, mutate func(*models.Order)) models.Order {
	t.Helper()
	now := time.Now().UTC()
	order := models.Order{
		ID:                uuid.New(),
		OrderNumber:       NewOrderNumber(),
		UserID:            h.userID,
		ProductID:         productID,
		ProductName:       "Pashmina Shawl",
		UnitPrice:         decimal.NewFromInt(1500),
		Quantity:          qty,
		PaymentMethod:     enums.PaymentMethodCashOnDelivery,
		PaymentStatus:     enums.PaymentStatusCashOnDelivery,
		Status:            enums.OrderStatusPending,
		DeliveryAddressID: h.address,
		SubTotal:          decimal.NewFromInt(int64(1500 * qty)),
		Total:             decimal.NewFromInt(int64(1500*qty + 100)),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if mutate != nil {
		mutate(&order)
	}
	require.NoError(t, h.conn.Create(&order).Error)
	return order
}

func (h *harness) reload(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, h.conn.Where("id = ?", id).First(&order).Error)
	return order
}

func (h *harness) countOrders(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.conn.Model(&models.Order{}).Count(&count).Error)
	return count
}

func strPtr(v string) *string { return &v }
