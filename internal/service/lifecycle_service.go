package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/metrics"
	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/Eursukkul/tutor-booking/internal/repository"
	"github.com/Eursukkul/tutor-booking/pkg/database"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type TutorAction string

const (
	ActionAccept TutorAction = "accept"
	ActionReject TutorAction = "reject"
)

// TutorStats is derived from completed bookings at read time.
type TutorStats struct {
	TutorID           string `json:"tutor_id"`
	CompletedSessions int64  `json:"completed_sessions"`
	TotalSessions     int64  `json:"total_sessions"`
	GrossAmount       int64  `json:"gross_amount"`
	PlatformFees      int64  `json:"platform_fees"`
	Earnings          int64  `json:"earnings"`
}

// Statement is a tutor's completed sessions for one calendar month.
type Statement struct {
	Tutor    *models.Tutor
	Month    time.Time
	Bookings []models.Booking
}

type LifecycleService interface {
	TutorRespond(ctx context.Context, caller models.Caller, bookingID string, action TutorAction) (*models.Booking, error)
	TutorComplete(ctx context.Context, caller models.Caller, bookingID string) (*models.Booking, error)
	ParentCancel(ctx context.Context, caller models.Caller, bookingID string) (*models.Booking, error)
	ListForTutor(ctx context.Context, caller models.Caller, status *models.BookingStatus) ([]models.Booking, error)
	Stats(ctx context.Context, caller models.Caller) (*TutorStats, error)
	MonthlyStatement(ctx context.Context, caller models.Caller, month string) (*Statement, error)
}

type lifecycleService struct {
	tx        database.Transactor
	bookings  repository.BookingRepository
	profiles  repository.ProfileRepository
	publisher EventPublisher
	loc       *time.Location
	now       func() time.Time
}

func NewLifecycleService(
	tx database.Transactor,
	bookings repository.BookingRepository,
	profiles repository.ProfileRepository,
	publisher EventPublisher,
	loc *time.Location,
) LifecycleService {
	if loc == nil {
		loc = time.UTC
	}
	return &lifecycleService{
		tx:        tx,
		bookings:  bookings,
		profiles:  profiles,
		publisher: publisher,
		loc:       loc,
		now:       time.Now,
	}
}

func (s *lifecycleService) tutorFor(ctx context.Context, caller models.Caller) (*models.Tutor, error) {
	if caller.Role != models.RoleTutor {
		return nil, fmt.Errorf("role %q: %w", caller.Role, ErrForbidden)
	}
	tutor, err := s.profiles.FindTutorByUserID(ctx, caller.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no tutor profile for %s: %w", caller.ID, ErrForbidden)
		}
		return nil, err
	}
	return tutor, nil
}

func (s *lifecycleService) tutorBooking(ctx context.Context, caller models.Caller, bookingID string) (*models.Tutor, *models.Booking, error) {
	tutor, err := s.tutorFor(ctx, caller)
	if err != nil {
		return nil, nil, err
	}
	booking, err := s.bookings.FindByID(ctx, nil, bookingID)
	if err != nil {
		return nil, nil, notFound(err, "booking %s", bookingID)
	}
	if booking.TutorID != tutor.ID {
		return nil, nil, fmt.Errorf("booking %s: %w", bookingID, ErrForbidden)
	}
	return tutor, booking, nil
}

// move applies one guarded transition. Losing a race surfaces as InvalidState.
func (s *lifecycleService) move(ctx context.Context, tx *gorm.DB, b *models.Booking, to models.BookingStatus) error {
	if !models.CanTransition(b.Status, to) {
		return fmt.Errorf("booking %s is %s, cannot become %s: %w", b.ID, b.Status, to, ErrInvalidState)
	}
	ok, err := s.bookings.TransitionStatus(ctx, tx, b.ID, b.Status, to)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("booking %s changed concurrently: %w", b.ID, ErrInvalidState)
	}
	b.Status = to
	b.UpdatedAt = s.now()
	return nil
}

func (s *lifecycleService) TutorRespond(ctx context.Context, caller models.Caller, bookingID string, action TutorAction) (*models.Booking, error) {
	var to models.BookingStatus
	var route string
	switch action {
	case ActionAccept:
		to, route = models.StatusConfirmed, RouteBookingConfirmed
	case ActionReject:
		to, route = models.StatusCancelled, RouteBookingRejected
	default:
		return nil, fmt.Errorf("action %q: %w", action, ErrInvalidInput)
	}

	_, booking, err := s.tutorBooking(ctx, caller, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.StatusPending {
		return nil, fmt.Errorf("booking %s is %s: %w", bookingID, booking.Status, ErrInvalidState)
	}
	if err := s.move(ctx, nil, booking, to); err != nil {
		return nil, err
	}

	s.announce(ctx, route, booking, caller.ID)
	return booking, nil
}

// TutorComplete closes a confirmed session once its start time has passed and
// bumps the tutor's session counter in the same transaction.
func (s *lifecycleService) TutorComplete(ctx context.Context, caller models.Caller, bookingID string) (*models.Booking, error) {
	tutor, booking, err := s.tutorBooking(ctx, caller, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.StatusConfirmed {
		return nil, fmt.Errorf("booking %s is %s: %w", bookingID, booking.Status, ErrInvalidState)
	}
	if booking.ScheduledAt.After(s.now()) {
		return nil, fmt.Errorf("booking %s has not started yet: %w", bookingID, ErrInvalidState)
	}

	err = s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.move(ctx, tx, booking, models.StatusCompleted); err != nil {
			return err
		}
		return s.profiles.IncrementTutorSessions(ctx, tx, tutor.ID)
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, RouteBookingCompleted, booking, caller.ID)
	return booking, nil
}

// ParentCancel cancels a paid booking. Unpaid bookings are cancelled through
// their order.
func (s *lifecycleService) ParentCancel(ctx context.Context, caller models.Caller, bookingID string) (*models.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, nil, bookingID)
	if err != nil {
		return nil, notFound(err, "booking %s", bookingID)
	}
	child, err := s.profiles.FindChildByID(ctx, booking.ChildID)
	if err != nil {
		return nil, notFound(err, "child %s", booking.ChildID)
	}
	if !caller.IsAdmin() && child.ParentID != caller.ID {
		return nil, fmt.Errorf("booking %s: %w", bookingID, ErrForbidden)
	}

	switch booking.Status {
	case models.StatusPending, models.StatusConfirmed:
	case models.StatusPendingPayment:
		return nil, fmt.Errorf("booking %s is unpaid, cancel order %s instead: %w", bookingID, booking.OrderID, ErrInvalidState)
	default:
		return nil, fmt.Errorf("booking %s is %s: %w", bookingID, booking.Status, ErrInvalidState)
	}
	if err := s.move(ctx, nil, booking, models.StatusCancelled); err != nil {
		return nil, err
	}

	s.announce(ctx, RouteBookingCancelled, booking, caller.ID)
	return booking, nil
}

func (s *lifecycleService) announce(ctx context.Context, route string, b *models.Booking, actor string) {
	metrics.BookingTransitions.WithLabelValues(string(b.Status)).Inc()
	logrus.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"order_id":   b.OrderID,
		"status":     b.Status,
		"actor":      actor,
	}).Info("booking status changed")
	publish(ctx, s.publisher, route, newBookingEvent(b, actor, s.now()))
}

func (s *lifecycleService) ListForTutor(ctx context.Context, caller models.Caller, status *models.BookingStatus) ([]models.Booking, error) {
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("status %q: %w", *status, ErrInvalidInput)
	}
	tutor, err := s.tutorFor(ctx, caller)
	if err != nil {
		return nil, err
	}
	return s.bookings.ListByTutor(ctx, tutor.ID, status)
}

func (s *lifecycleService) Stats(ctx context.Context, caller models.Caller) (*TutorStats, error) {
	tutor, err := s.tutorFor(ctx, caller)
	if err != nil {
		return nil, err
	}
	totals, err := s.bookings.CompletedTotals(ctx, tutor.ID)
	if err != nil {
		return nil, err
	}
	return &TutorStats{
		TutorID:           tutor.ID,
		CompletedSessions: totals.Sessions,
		TotalSessions:     tutor.TotalSessions,
		GrossAmount:       totals.GrossAmount,
		PlatformFees:      totals.PlatformFees,
		Earnings:          totals.GrossAmount - totals.PlatformFees,
	}, nil
}

// MonthlyStatement collects completed sessions for month (YYYY-MM, service
// timezone). An empty month means the current one.
func (s *lifecycleService) MonthlyStatement(ctx context.Context, caller models.Caller, month string) (*Statement, error) {
	tutor, err := s.tutorFor(ctx, caller)
	if err != nil {
		return nil, err
	}

	var start time.Time
	if month == "" {
		n := s.now().In(s.loc)
		start = time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, s.loc)
	} else {
		start, err = time.ParseInLocation("2006-01", month, s.loc)
		if err != nil {
			return nil, fmt.Errorf("month %q: %w", month, ErrInvalidInput)
		}
	}

	bookings, err := s.bookings.ListCompletedByTutor(ctx, tutor.ID, start, start.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}
	return &Statement{Tutor: tutor, Month: start, Bookings: bookings}, nil
}
