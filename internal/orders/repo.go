package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrders(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&orders).Error
}

func (r *repository) CreatePaymentSession(ctx context.Context, session *models.PaymentSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByOrderNumber(ctx context.Context, userID uuid.UUID, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("order_number = ? AND user_id = ?", orderNumber, userID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByCorrelation(ctx context.Context, correlationID string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("payment_correlation_id = ?", correlationID).
		Order("created_at ASC").
		Order("order_number ASC").
		Find(&orders).Error
	return orders, err
}

// FindSession returns nil, nil when no session exists for the correlation id.
func (r *repository) FindSession(ctx context.Context, correlationID string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := r.db.WithContext(ctx).Where("correlation_id = ?", correlationID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repository) CloseSession(ctx context.Context, correlationID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("correlation_id = ? AND completed_at IS NULL", correlationID).
		Update("completed_at", at).Error
}

// MarkGroupPaid settles every still-pending order of the group. Orders an admin
// already moved past pending keep their status.
func (r *repository) MarkGroupPaid(ctx context.Context, correlationID string, details types.PaymentDetails) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("payment_correlation_id = ? AND payment_status = ?", correlationID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"payment_status":  enums.PaymentStatusPaid,
			"status":          gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", enums.OrderStatusPending, enums.OrderStatusProcessing),
			"payment_details": details,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) MarkGroupFailed(ctx context.Context, correlationID string, details types.PaymentDetails) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("payment_correlation_id = ? AND payment_status = ?", correlationID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"payment_status":  enums.PaymentStatusFailed,
			"payment_details": details,
		})
	return res.RowsAffected, res.Error
}

// UpdateStatusFrom applies updates only while the order still has status from.
func (r *repository) UpdateStatusFrom(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	return r.page(query, params)
}

func (r *repository) ListOrders(ctx context.Context, params pagination.Params, filters OrderFilters) (*OrderList, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filters.PaymentStatus)
	}
	return r.page(query, params)
}

func (r *repository) page(query *gorm.DB, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	list := &OrderList{}
	list.Orders, list.NextCursor = pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return list, nil
}

// ListStaleSessions returns open sessions older than cutoff that still have
// pending orders, oldest first.
func (r *repository) ListStaleSessions(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentSession, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	var sessions []models.PaymentSession
	err := r.db.WithContext(ctx).
		Where("completed_at IS NULL AND created_at < ?", cutoff).
		Where("EXISTS (SELECT 1 FROM orders o WHERE o.payment_correlation_id = payment_sessions.correlation_id AND o.payment_status = ?)", enums.PaymentStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}
