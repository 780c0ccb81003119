package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/metrics"
	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/Eursukkul/tutor-booking/internal/pricing"
	"github.com/Eursukkul/tutor-booking/internal/repository"
	"github.com/Eursukkul/tutor-booking/pkg/database"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	dateLayout      = "2006-01-02"
	timeOfDayLayout = "15:04"
)

type CreateBatchInput struct {
	ChildID         string
	TutorID         string
	Dates           []string
	TimeOfDay       string
	DurationMinutes int
	Notes           *string
	PayerIP         string
}

type BatchResult struct {
	Order    *models.PaymentOrder `json:"order"`
	Bookings []models.Booking     `json:"bookings"`
	*CheckoutResult
}

// OrderView is an order together with the bookings it pays for.
type OrderView struct {
	Order    *models.PaymentOrder `json:"order"`
	Bookings []models.Booking     `json:"bookings"`
}

type BookingService interface {
	CreateBatch(ctx context.Context, caller models.Caller, in CreateBatchInput) (*BatchResult, error)
	ListForParent(ctx context.Context, caller models.Caller, status *models.BookingStatus) ([]models.Booking, error)
	GetOrder(ctx context.Context, caller models.Caller, orderID string) (*OrderView, error)
	RetryCheckout(ctx context.Context, caller models.Caller, orderID, payerIP string) (*CheckoutResult, error)
}

type BookingOptions struct {
	PlatformFeePercent int64
	Currency           string
	Location           *time.Location
}

type bookingService struct {
	tx        database.Transactor
	bookings  repository.BookingRepository
	orders    repository.OrderRepository
	profiles  repository.ProfileRepository
	gateways  GatewayRegistry
	publisher EventPublisher
	opts      BookingOptions
	now       func() time.Time
}

func NewBookingService(
	tx database.Transactor,
	bookings repository.BookingRepository,
	orders repository.OrderRepository,
	profiles repository.ProfileRepository,
	gateways GatewayRegistry,
	publisher EventPublisher,
	opts BookingOptions,
) BookingService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &bookingService{
		tx:        tx,
		bookings:  bookings,
		orders:    orders,
		profiles:  profiles,
		gateways:  gateways,
		publisher: publisher,
		opts:      opts,
		now:       time.Now,
	}
}

func (s *bookingService) CreateBatch(ctx context.Context, caller models.Caller, in CreateBatchInput) (*BatchResult, error) {
	if caller.ID == "" {
		return nil, ErrUnauthenticated
	}
	if !pricing.ValidDuration(in.DurationMinutes) {
		return nil, fmt.Errorf("duration %d minutes: %w", in.DurationMinutes, ErrInvalidInput)
	}

	child, err := s.profiles.FindChildByID(ctx, in.ChildID)
	if err != nil {
		return nil, notFound(err, "child %s", in.ChildID)
	}
	if child.ParentID != caller.ID {
		return nil, fmt.Errorf("child %s: %w", in.ChildID, ErrForbidden)
	}

	tutor, err := s.profiles.FindTutorByID(ctx, in.TutorID)
	if err != nil {
		return nil, notFound(err, "tutor %s", in.TutorID)
	}

	slots, err := s.schedule(in.Dates, in.TimeOfDay)
	if err != nil {
		return nil, err
	}

	quote := pricing.Calculate(tutor.HourlyRate, in.DurationMinutes, len(slots), s.opts.PlatformFeePercent)
	fees := quote.SplitFee()

	order := &models.PaymentOrder{
		OrderID:     models.NewOrderID(),
		PayerID:     caller.ID,
		Purpose:     models.PurposeBooking,
		TotalAmount: quote.TotalAmount,
		Currency:    s.opts.Currency,
		Status:      models.OrderPending,
	}

	batch := make([]models.Booking, len(slots))
	ids := make([]string, len(slots))
	for i, at := range slots {
		batch[i] = models.Booking{
			ID:              uuid.NewString(),
			OrderID:         order.OrderID,
			ChildID:         child.ID,
			TutorID:         tutor.ID,
			ScheduledAt:     at,
			DurationMinutes: in.DurationMinutes,
			TotalAmount:     quote.AmountPerSession,
			PlatformFee:     fees[i],
			Status:          models.StatusPendingPayment,
			Notes:           in.Notes,
		}
		ids[i] = batch[i].ID
	}

	err = s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.orders.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := s.bookings.CreateBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("create bookings: %w", err)
		}
		if err := s.orders.BindBookings(ctx, tx, order.OrderID, ids); err != nil {
			return fmt.Errorf("bind bookings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.BookingsCreated.Add(float64(len(batch)))
	logrus.WithFields(logrus.Fields{
		"order_id": order.OrderID,
		"payer_id": caller.ID,
		"tutor_id": tutor.ID,
		"sessions": len(batch),
		"total":    order.TotalAmount,
	}).Info("booking batch created")

	publish(ctx, s.publisher, RouteBatchCreated, BatchCreatedEvent{
		OrderID:     order.OrderID,
		PayerID:     caller.ID,
		ChildID:     child.ID,
		TutorID:     tutor.ID,
		BookingIDs:  ids,
		TotalAmount: order.TotalAmount,
		OccurredAt:  s.now(),
	})

	desc := bookingDescription(len(batch), in.DurationMinutes, tutor.DisplayName)
	co, err := startCheckout(ctx, s.gateways, s.orders, order, desc, in.PayerIP)
	return &BatchResult{Order: order, Bookings: batch, CheckoutResult: co}, err
}

// schedule turns calendar dates plus one time of day into sorted, distinct
// session start times in the service timezone.
func (s *bookingService) schedule(dates []string, timeOfDay string) ([]time.Time, error) {
	if len(dates) == 0 {
		return nil, fmt.Errorf("at least one date is required: %w", ErrInvalidInput)
	}
	clock, err := time.Parse(timeOfDayLayout, timeOfDay)
	if err != nil {
		return nil, fmt.Errorf("time of day %q: %w", timeOfDay, ErrInvalidInput)
	}

	seen := make(map[string]struct{}, len(dates))
	slots := make([]time.Time, 0, len(dates))
	now := s.now()
	for _, d := range dates {
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}

		day, err := time.ParseInLocation(dateLayout, d, s.opts.Location)
		if err != nil {
			return nil, fmt.Errorf("date %q: %w", d, ErrInvalidInput)
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, s.opts.Location)
		if !at.After(now) {
			return nil, fmt.Errorf("session %s is in the past: %w", at.Format(time.RFC3339), ErrInvalidInput)
		}
		slots = append(slots, at)
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots, nil
}

func (s *bookingService) ListForParent(ctx context.Context, caller models.Caller, status *models.BookingStatus) ([]models.Booking, error) {
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("status %q: %w", *status, ErrInvalidInput)
	}
	return s.bookings.ListByParent(ctx, caller.ID, status)
}

func (s *bookingService) GetOrder(ctx context.Context, caller models.Caller, orderID string) (*OrderView, error) {
	order, err := s.loadOwnedOrder(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}
	bookings, err := s.bookings.FindByIDs(ctx, nil, order.BookingIDs())
	if err != nil {
		return nil, err
	}
	return &OrderView{Order: order, Bookings: bookings}, nil
}

// RetryCheckout issues a fresh checkout for an order whose first attempt
// failed or expired on the provider side.
func (s *bookingService) RetryCheckout(ctx context.Context, caller models.Caller, orderID, payerIP string) (*CheckoutResult, error) {
	order, err := s.loadOwnedOrder(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPending {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrInvalidState)
	}
	if err := ensureCheckoutGone(ctx, s.gateways, order); err != nil {
		return nil, err
	}

	desc, err := s.describe(ctx, order)
	if err != nil {
		return nil, err
	}
	return startCheckout(ctx, s.gateways, s.orders, order, desc, payerIP)
}

func (s *bookingService) describe(ctx context.Context, order *models.PaymentOrder) (string, error) {
	if order.Purpose == models.PurposeSubscription {
		return subscriptionDescription(order.TargetTier), nil
	}
	bookings, err := s.bookings.FindByIDs(ctx, nil, order.BookingIDs())
	if err != nil {
		return "", err
	}
	if len(bookings) == 0 {
		return "", fmt.Errorf("order %s has no bookings: %w", order.OrderID, ErrInvalidState)
	}
	name := bookings[0].TutorID
	if tutor, err := s.profiles.FindTutorByID(ctx, bookings[0].TutorID); err == nil {
		name = tutor.DisplayName
	}
	return bookingDescription(len(bookings), bookings[0].DurationMinutes, name), nil
}

func (s *bookingService) loadOwnedOrder(ctx context.Context, caller models.Caller, orderID string) (*models.PaymentOrder, error) {
	order, err := s.orders.FindByID(ctx, nil, orderID)
	if err != nil {
		return nil, notFound(err, "order %s", orderID)
	}
	if !ownsOrder(caller, order) {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrForbidden)
	}
	return order, nil
}

func bookingDescription(sessions, minutes int, tutorName string) string {
	return fmt.Sprintf("Tutoring sessions: %d x %dmin with %s", sessions, minutes, tutorName)
}

func subscriptionDescription(tier *models.Tier) string {
	if tier == nil {
		return "Subscription upgrade"
	}
	return fmt.Sprintf("Subscription upgrade to %s", *tier)
}

// notFound maps a missing row onto ErrNotFound and passes other errors through.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return err
}
