package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const cartItemsTable = "cart_items"

// Clearer empties a user's cart. Cart contents are owned by the cart CRUD
// surface; checkout and payment flows only ever remove them.
type Clearer interface {
	ClearUserCart(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
}

// Repository exposes the cart writes needed by checkout and reconciliation.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ClearUserCart deletes every cart row of userID inside tx and returns how
// many were removed. A nil tx falls back to the bound connection.
func (r *Repository) ClearUserCart(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, errors.New("user id required")
	}
	conn := tx
	if conn == nil {
		conn = r.db
	}
	res := conn.WithContext(ctx).Exec("DELETE FROM "+cartItemsTable+" WHERE user_id = ?", userID)
	return res.RowsAffected, res.Error
}
