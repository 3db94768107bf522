// Package dbtest opens throwaway sqlite databases carrying the storefront
// schema for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		image TEXT,
		price TEXT NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE addresses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		label TEXT,
		line1 TEXT NOT NULL,
		city TEXT NOT NULL,
		phone TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE cart_items (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		product_image TEXT,
		unit_price TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		payment_correlation_id TEXT,
		payment_method TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		delivery_address_id TEXT NOT NULL,
		sub_total TEXT NOT NULL,
		total TEXT NOT NULL,
		payment_details TEXT,
		cancellation_reason TEXT,
		refund_details TEXT,
		delivered_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE payment_sessions (
		id TEXT PRIMARY KEY,
		correlation_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		product_code TEXT NOT NULL,
		order_count INTEGER NOT NULL,
		order_ids TEXT NOT NULL DEFAULT '{}',
		completed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns a private in-memory database with every storefront table.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Discard,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// one connection keeps the shared-cache database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// SeedProduct inserts a product row and returns its id.
func SeedProduct(t testing.TB, conn *gorm.DB, name string, price decimal.Decimal, stock int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	now := time.Now().UTC()
	if err := conn.Exec(
		"INSERT INTO products (id, name, price, stock, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id.String(), name, price.String(), stock, now, now,
	).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return id
}

// Stock reads the current stock of a product.
func Stock(t testing.TB, conn *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var stock int
	if err := conn.Raw("SELECT stock FROM products WHERE id = ?", productID.String()).Scan(&stock).Error; err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return stock
}

// SeedAddress inserts an address owned by userID.
func SeedAddress(t testing.TB, conn *gorm.DB, userID uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if err := conn.Exec(
		"INSERT INTO addresses (id, user_id, line1, city, created_at) VALUES (?, ?, ?, ?, ?)",
		id.String(), userID.String(), "Durbar Marg", "Kathmandu", time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed address: %v", err)
	}
	return id
}

// SeedCartItem puts a product in the user's cart.
func SeedCartItem(t testing.TB, conn *gorm.DB, userID, productID uuid.UUID, qty int) {
	t.Helper()
	if err := conn.Exec(
		"INSERT INTO cart_items (id, user_id, product_id, quantity, created_at) VALUES (?, ?, ?, ?, ?)",
		uuid.NewString(), userID.String(), productID.String(), qty, time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed cart item: %v", err)
	}
}

// CartCount counts the user's cart rows.
func CartCount(t testing.TB, conn *gorm.DB, userID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := conn.Table("cart_items").Where("user_id = ?", userID.String()).Count(&count).Error; err != nil {
		t.Fatalf("count cart: %v", err)
	}
	return count
}

// OutboxCount counts outbox rows of the given event type.
func OutboxCount(t testing.TB, conn *gorm.DB, eventType string) int64 {
	t.Helper()
	var count int64
	if err := conn.Table("outbox_events").Where("event_type = ?", eventType).Count(&count).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	return count
}
