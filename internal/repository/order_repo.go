package repository

import (
	"context"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *models.PaymentOrder) error
	BindBookings(ctx context.Context, tx *gorm.DB, orderID string, bookingIDs []string) error
	FindByID(ctx context.Context, tx *gorm.DB, orderID string) (*models.PaymentOrder, error)
	SetGatewayRef(ctx context.Context, orderID, provider, ref string) error
	CompleteIfPending(ctx context.Context, tx *gorm.DB, orderID string, transactionID *string, at time.Time) (bool, error)
	CancelIfPending(ctx context.Context, tx *gorm.DB, orderID, reason string) (bool, error)
	FlagForReview(ctx context.Context, orderID string) (bool, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentOrder, error)
	ListCompletedWithUnpaidBookings(ctx context.Context, limit int) ([]string, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create inserts the order row only. Bindings are written by BindBookings once
// the bookings they reference exist.
func (r *orderRepository) Create(ctx context.Context, tx *gorm.DB, order *models.PaymentOrder) error {
	return conn(r.db, tx).WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *orderRepository) BindBookings(ctx context.Context, tx *gorm.DB, orderID string, bookingIDs []string) error {
	if len(bookingIDs) == 0 {
		return nil
	}
	rows := make([]models.OrderBooking, len(bookingIDs))
	for i, id := range bookingIDs {
		rows[i] = models.OrderBooking{OrderID: orderID, BookingID: id, Position: i}
	}
	return conn(r.db, tx).WithContext(ctx).Create(&rows).Error
}

func (r *orderRepository) FindByID(ctx context.Context, tx *gorm.DB, orderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := conn(r.db, tx).WithContext(ctx).
		Preload("Bindings", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&order, "order_id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) SetGatewayRef(ctx context.Context, orderID, provider, ref string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentOrder{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{
			"gateway_provider": provider,
			"gateway_ref":      ref,
			"updated_at":       time.Now(),
		}).Error
}

// CompleteIfPending is the terminal guard: the write only lands while the
// order is still PENDING, so at most one caller ever sees true.
func (r *orderRepository) CompleteIfPending(ctx context.Context, tx *gorm.DB, orderID string, transactionID *string, at time.Time) (bool, error) {
	res := conn(r.db, tx).WithContext(ctx).
		Model(&models.PaymentOrder{}).
		Where("order_id = ? AND status = ?", orderID, models.OrderPending).
		Updates(map[string]any{
			"status":                 models.OrderCompleted,
			"gateway_transaction_id": transactionID,
			"completed_at":           at,
			"updated_at":             at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepository) CancelIfPending(ctx context.Context, tx *gorm.DB, orderID, reason string) (bool, error) {
	res := conn(r.db, tx).WithContext(ctx).
		Model(&models.PaymentOrder{}).
		Where("order_id = ? AND status = ?", orderID, models.OrderPending).
		Updates(map[string]any{
			"status":        models.OrderCancelled,
			"cancel_reason": reason,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FlagForReview parks a pending order for manual handling. Flagged orders
// stay PENDING but drop out of the stale sweep.
func (r *orderRepository) FlagForReview(ctx context.Context, orderID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentOrder{}).
		Where("order_id = ? AND status = ?", orderID, models.OrderPending).
		Updates(map[string]any{
			"needs_review": true,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND NOT needs_review AND created_at < ?", models.OrderPending, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// ListCompletedWithUnpaidBookings finds orders whose cascade did not finish:
// the order is COMPLETED but a bound booking is still PENDING_PAYMENT.
func (r *orderRepository) ListCompletedWithUnpaidBookings(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Table("payment_orders AS o").
		Distinct("o.order_id").
		Joins("JOIN payment_order_bookings pb ON pb.order_id = o.order_id").
		Joins("JOIN bookings b ON b.id = pb.booking_id").
		Where("o.status = ? AND b.status = ?", models.OrderCompleted, models.StatusPendingPayment).
		Limit(limit).
		Pluck("o.order_id", &ids).Error
	return ids, err
}
