package service

import (
	"context"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	RouteBatchCreated     = "booking.batch_created"
	RoutePaymentCompleted = "payment.completed"
	RoutePaymentCancelled = "payment.cancelled"
	RouteBookingConfirmed = "booking.confirmed"
	RouteBookingRejected  = "booking.rejected"
	RouteBookingCompleted = "booking.completed"
	RouteBookingCancelled = "booking.cancelled"
)

// EventPublisher fans domain events out after a commit. A nil publisher
// disables fan-out.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type BatchCreatedEvent struct {
	OrderID     string    `json:"order_id"`
	PayerID     string    `json:"payer_id"`
	ChildID     string    `json:"child_id"`
	TutorID     string    `json:"tutor_id"`
	BookingIDs  []string  `json:"booking_ids"`
	TotalAmount int64     `json:"total_amount"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type PaymentEvent struct {
	OrderID       string              `json:"order_id"`
	PayerID       string              `json:"payer_id"`
	Purpose       models.OrderPurpose `json:"purpose"`
	Status        models.OrderStatus  `json:"status"`
	TransactionID string              `json:"transaction_id,omitempty"`
	Source        Source              `json:"source"`
	BookingIDs    []string            `json:"booking_ids,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

type BookingEvent struct {
	BookingID  string               `json:"booking_id"`
	OrderID    string               `json:"order_id"`
	ChildID    string               `json:"child_id"`
	TutorID    string               `json:"tutor_id"`
	Status     models.BookingStatus `json:"status"`
	ActorID    string               `json:"actor_id"`
	OccurredAt time.Time            `json:"occurred_at"`
}

func newBookingEvent(b *models.Booking, actor string, at time.Time) BookingEvent {
	return BookingEvent{
		BookingID:  b.ID,
		OrderID:    b.OrderID,
		ChildID:    b.ChildID,
		TutorID:    b.TutorID,
		Status:     b.Status,
		ActorID:    actor,
		OccurredAt: at,
	}
}

// publish never fails the caller: state is already committed.
func publish(ctx context.Context, pub EventPublisher, routingKey string, payload any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, routingKey, payload); err != nil {
		logrus.WithError(err).WithField("routing_key", routingKey).Warn("publish domain event failed")
	}
}
