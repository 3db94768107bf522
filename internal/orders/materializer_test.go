package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestMaterializeCashOnDeliveryClearsCart(t *testing.T) {
	h := newHarness(t)
	product := dbtest.SeedProduct(t, h.conn, "Singing Bowl", decimal.NewFromInt(2000), 10)
	dbtest.SeedCartItem(t, h.conn, h.userID, product, 3)

	result, err := h.materializer(t).Materialize(context.Background(), MaterializeInput{
		UserID:    h.userID,
		LineItems: []LineItem{{ProductID: product, Name: "Singing Bowl", UnitPrice: decimal.NewFromInt(2000), Quantity: 3}},
		AddressID: h.address,
		SubTotal:  decimal.NewFromInt(6000),
		Total:     decimal.NewFromInt(6100),
		Mode:      ModeCashOnDelivery,
	})
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	assert.Empty(t, result.CorrelationID)
	assert.Nil(t, result.Session)

	stored := h.reload(t, result.Orders[0].ID)
	assert.Equal(t, enums.PaymentStatusCashOnDelivery, stored.PaymentStatus)
	assert.Equal(t, enums.PaymentMethodCashOnDelivery, stored.PaymentMethod)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)
	assert.Equal(t, 3, stored.Quantity)
	assert.Nil(t, stored.PaymentCorrelationID)
	assert.True(t, stored.Total.Equal(decimal.NewFromInt(6100)))
	assert.Regexp(t, `^ORD-[0-9A-Z]{26}$`, stored.OrderNumber)

	assert.Zero(t, dbtest.CartCount(t, h.conn, h.userID))
	assert.Equal(t, 1, h.cart.calls)
	assert.EqualValues(t, 1, dbtest.OutboxCount(t, h.conn, string(enums.EventOrderCreated)))
}

func TestMaterializeOnlineTagsGroupAndKeepsCart(t *testing.T) {
	h := newHarness(t)
	first := dbtest.SeedProduct(t, h.conn, "Thangka", decimal.NewFromInt(700), 5)
	second := dbtest.SeedProduct(t, h.conn, "Khukuri", decimal.NewFromInt(300), 5)
	dbtest.SeedCartItem(t, h.conn, h.userID, first, 1)
	dbtest.SeedCartItem(t, h.conn, h.userID, second, 1)

	m := h.materializer(t, WithIDGenerators(nil, func() string { return "esewa-fixed" }))
	result, err := m.Materialize(context.Background(), MaterializeInput{
		UserID: h.userID,
		LineItems: []LineItem{
			{ProductID: first, Name: "Thangka", UnitPrice: decimal.NewFromInt(700), Quantity: 1},
			{ProductID: second, Name: "Khukuri", UnitPrice: decimal.NewFromInt(300), Quantity: 1},
		},
		AddressID: h.address,
		SubTotal:  decimal.NewFromInt(1000),
		Total:     decimal.NewFromInt(1000),
		Mode:      ModeOnline,
		Gateway:   &GatewayQuote{TotalAmount: decimal.NewFromInt(1100), ProductCode: "EPAYTEST"},
	})
	require.NoError(t, err)
	require.Len(t, result.Orders, 2)
	assert.Equal(t, "esewa-fixed", result.CorrelationID)
	assert.NotEqual(t, result.Orders[0].OrderNumber, result.Orders[1].OrderNumber)

	group, err := h.repo.FindByCorrelation(context.Background(), "esewa-fixed")
	require.NoError(t, err)
	require.Len(t, group, 2)
	for _, order := range group {
		assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
		assert.Equal(t, enums.PaymentMethodEsewa, order.PaymentMethod)
		assert.Equal(t, enums.OrderStatusPending, order.Status)
	}

	session, err := h.repo.FindSession(context.Background(), "esewa-fixed")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, result.CheckoutID, session.ID)
	assert.True(t, session.Amount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, session.TotalAmount.Equal(decimal.NewFromInt(1100)))
	assert.Equal(t, 2, session.OrderCount)
	assert.ElementsMatch(t, []uuid.UUID{result.Orders[0].ID, result.Orders[1].ID}, []uuid.UUID(session.OrderIDs))

	assert.EqualValues(t, 2, dbtest.CartCount(t, h.conn, h.userID))
	assert.Zero(t, h.cart.calls)
}

func TestMaterializeRejectsInvalidInputWithoutWrites(t *testing.T) {
	h := newHarness(t)
	product := uuid.New()
	valid := MaterializeInput{
		UserID:    h.userID,
		LineItems: []LineItem{{ProductID: product, Name: "Tea", UnitPrice: decimal.NewFromInt(10), Quantity: 1}},
		AddressID: h.address,
		SubTotal:  decimal.NewFromInt(10),
		Total:     decimal.NewFromInt(10),
		Mode:      ModeCashOnDelivery,
	}

	cases := map[string]struct {
		mutate  func(*MaterializeInput)
		message string
	}{
		"empty cart":      {func(in *MaterializeInput) { in.LineItems = nil }, "cart is empty"},
		"missing address": {func(in *MaterializeInput) { in.AddressID = uuid.Nil }, "delivery address is required"},
		"zero total":      {func(in *MaterializeInput) { in.Total = decimal.Zero }, "invalid order amounts"},
		"negative sub":    {func(in *MaterializeInput) { in.SubTotal = decimal.NewFromInt(-1) }, "invalid order amounts"},
		"zero quantity":   {func(in *MaterializeInput) { in.LineItems[0].Quantity = 0 }, "invalid checkout request"},
		"online no quote": {func(in *MaterializeInput) { in.Mode = ModeOnline }, "invalid checkout request"},
		"unknown mode":    {func(in *MaterializeInput) { in.Mode = "barter" }, "invalid checkout request"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			input := valid
			input.LineItems = append([]LineItem(nil), valid.LineItems...)
			tc.mutate(&input)

			_, err := h.materializer(t).Materialize(context.Background(), input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
			assert.Equal(t, tc.message, pkgerrors.As(err).Message())
			assert.NotNil(t, pkgerrors.As(err).Details())
		})
	}
	assert.Zero(t, h.countOrders(t))
}

func TestMaterializeRejectsForeignAddress(t *testing.T) {
	h := newHarness(t)
	foreign := dbtest.SeedAddress(t, h.conn, uuid.New())

	_, err := h.materializer(t).Materialize(context.Background(), MaterializeInput{
		UserID:    h.userID,
		LineItems: []LineItem{{ProductID: uuid.New(), Name: "Tea", UnitPrice: decimal.NewFromInt(10), Quantity: 1}},
		AddressID: foreign,
		SubTotal:  decimal.NewFromInt(10),
		Total:     decimal.NewFromInt(10),
		Mode:      ModeCashOnDelivery,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, "address not found for user", pkgerrors.As(err).Message())
	assert.Zero(t, h.countOrders(t))
}

func TestMaterializeIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	product := dbtest.SeedProduct(t, h.conn, "Tea", decimal.NewFromInt(10), 10)
	dbtest.SeedCartItem(t, h.conn, h.userID, product, 2)

	m, err := NewMaterializer(h.repo, h.tx, h.cart, failingEmitter{}, nil, nil)
	require.NoError(t, err)

	_, err = m.Materialize(context.Background(), MaterializeInput{
		UserID: h.userID,
		LineItems: []LineItem{
			{ProductID: product, Name: "Tea", UnitPrice: decimal.NewFromInt(10), Quantity: 1},
			{ProductID: product, Name: "Tea", UnitPrice: decimal.NewFromInt(10), Quantity: 1},
		},
		AddressID: h.address,
		SubTotal:  decimal.NewFromInt(20),
		Total:     decimal.NewFromInt(20),
		Mode:      ModeCashOnDelivery,
	})
	require.ErrorIs(t, err, errOutboxDown)
	assert.Zero(t, h.countOrders(t))
	assert.EqualValues(t, 1, dbtest.CartCount(t, h.conn, h.userID))
}

func TestMaterializeOrderNumberCollisionWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, uuid.New(), 1, func(o *models.Order) { o.OrderNumber = "ORD-DUPLICATE" })

	m := h.materializer(t, WithIDGenerators(func() string { return "ORD-DUPLICATE" }, nil))
	_, err := m.Materialize(context.Background(), MaterializeInput{
		UserID:    h.userID,
		LineItems: []LineItem{{ProductID: uuid.New(), Name: "Tea", UnitPrice: decimal.NewFromInt(10), Quantity: 1}},
		AddressID: h.address,
		SubTotal:  decimal.NewFromInt(10),
		Total:     decimal.NewFromInt(10),
		Mode:      ModeCashOnDelivery,
	})
	require.Error(t, err)
	assert.EqualValues(t, 1, h.countOrders(t))
}

func TestConstructorsRequireDependencies(t *testing.T) {
	h := newHarness(t)
	stock := NewProductStock(nil)
	cases := map[string]func() error{
		"materializer without repo": func() error {
			_, err := NewMaterializer(nil, h.tx, h.cart, h.outbox, nil, nil)
			return err
		},
		"materializer without tx": func() error {
			_, err := NewMaterializer(h.repo, nil, h.cart, h.outbox, nil, nil)
			return err
		},
		"materializer without cart": func() error {
			_, err := NewMaterializer(h.repo, h.tx, nil, h.outbox, nil, nil)
			return err
		},
		"materializer without outbox": func() error {
			_, err := NewMaterializer(h.repo, h.tx, h.cart, nil, nil, nil)
			return err
		},
		"status machine without repo": func() error {
			_, err := NewStatusMachine(nil, h.tx, h.cart, stock, nil, h.outbox, nil)
			return err
		},
		"status machine without stock": func() error {
			_, err := NewStatusMachine(h.repo, h.tx, h.cart, nil, nil, h.outbox, nil)
			return err
		},
		"status machine without outbox": func() error {
			_, err := NewStatusMachine(h.repo, h.tx, h.cart, stock, nil, nil, nil)
			return err
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			err := build()
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal), "got %v", err)
		})
	}
}
