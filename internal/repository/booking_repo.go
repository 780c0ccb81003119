package repository

import (
	"context"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/models"
	"gorm.io/gorm"
)

type BookingRepository interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, bookings []models.Booking) error
	FindByID(ctx context.Context, tx *gorm.DB, id string) (*models.Booking, error)
	FindByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]models.Booking, error)
	ListByParent(ctx context.Context, parentID string, status *models.BookingStatus) ([]models.Booking, error)
	ListByTutor(ctx context.Context, tutorID string, status *models.BookingStatus) ([]models.Booking, error)
	ListCompletedByTutor(ctx context.Context, tutorID string, from, to time.Time) ([]models.Booking, error)
	TransitionStatus(ctx context.Context, tx *gorm.DB, id string, from, to models.BookingStatus) (bool, error)
	TransitionMany(ctx context.Context, tx *gorm.DB, ids []string, from, to models.BookingStatus) (int64, error)
	CompletedTotals(ctx context.Context, tutorID string) (*CompletedTotals, error)
}

// CompletedTotals is the read-time fold over a tutor's completed bookings.
type CompletedTotals struct {
	Sessions     int64
	GrossAmount  int64
	PlatformFees int64
}

type bookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) CreateBatch(ctx context.Context, tx *gorm.DB, bookings []models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	return conn(r.db, tx).WithContext(ctx).Create(&bookings).Error
}

func (r *bookingRepository) FindByID(ctx context.Context, tx *gorm.DB, id string) (*models.Booking, error) {
	var booking models.Booking
	if err := conn(r.db, tx).WithContext(ctx).First(&booking, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) FindByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]models.Booking, error) {
	var bookings []models.Booking
	if len(ids) == 0 {
		return bookings, nil
	}
	err := conn(r.db, tx).WithContext(ctx).
		Where("id IN ?", ids).
		Order("scheduled_at ASC").
		Find(&bookings).Error
	return bookings, err
}

func (r *bookingRepository) ListByParent(ctx context.Context, parentID string, status *models.BookingStatus) ([]models.Booking, error) {
	var bookings []models.Booking
	q := r.db.WithContext(ctx).
		Joins("JOIN children ON children.id = bookings.child_id").
		Where("children.parent_id = ?", parentID)
	if status != nil {
		q = q.Where("bookings.status = ?", *status)
	}
	if err := q.Order("bookings.scheduled_at ASC").Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *bookingRepository) ListByTutor(ctx context.Context, tutorID string, status *models.BookingStatus) ([]models.Booking, error) {
	var bookings []models.Booking
	q := r.db.WithContext(ctx).Where("tutor_id = ?", tutorID)
	if status != nil {
		q = q.Where("status = ?", *status)
	} else {
		// unpaid checkouts are not the tutor's business
		q = q.Where("status <> ?", models.StatusPendingPayment)
	}
	if err := q.Order("scheduled_at ASC").Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *bookingRepository) ListCompletedByTutor(ctx context.Context, tutorID string, from, to time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("tutor_id = ? AND status = ?", tutorID, models.StatusCompleted).
		Where("scheduled_at >= ? AND scheduled_at < ?", from, to).
		Order("scheduled_at ASC").
		Find(&bookings).Error
	return bookings, err
}

// TransitionStatus moves a booking only if it is still in the expected
// status. It reports false when another writer got there first.
func (r *bookingRepository) TransitionStatus(ctx context.Context, tx *gorm.DB, id string, from, to models.BookingStatus) (bool, error) {
	res := conn(r.db, tx).WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *bookingRepository) TransitionMany(ctx context.Context, tx *gorm.DB, ids []string, from, to models.BookingStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := conn(r.db, tx).WithContext(ctx).
		Model(&models.Booking{}).
		Where("id IN ? AND status = ?", ids, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *bookingRepository) CompletedTotals(ctx context.Context, tutorID string) (*CompletedTotals, error) {
	var totals CompletedTotals
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Select("COUNT(*) AS sessions, COALESCE(SUM(total_amount), 0) AS gross_amount, COALESCE(SUM(platform_fee), 0) AS platform_fees").
		Where("tutor_id = ? AND status = ?", tutorID, models.StatusCompleted).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}
