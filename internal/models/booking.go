package models

import "time"

type BookingStatus string

const (
	StatusPendingPayment BookingStatus = "PENDING_PAYMENT"
	StatusPending        BookingStatus = "PENDING"
	StatusConfirmed      BookingStatus = "CONFIRMED"
	StatusCompleted      BookingStatus = "COMPLETED"
	StatusCancelled      BookingStatus = "CANCELLED"
	StatusRefunded       BookingStatus = "REFUNDED"
)

// bookingTransitions is the complete booking state machine. A status missing
// from the map has no outgoing transitions.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	StatusPendingPayment: {StatusPending, StatusCancelled},
	StatusPending:        {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusCompleted, StatusCancelled, StatusRefunded},
	StatusCompleted:      {StatusRefunded},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusPending, StatusConfirmed,
		StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Booking struct {
	ID              string        `gorm:"primaryKey;type:uuid" json:"id"`
	OrderID         string        `gorm:"index;not null" json:"order_id"`
	ChildID         string        `gorm:"index;not null" json:"child_id"`
	TutorID         string        `gorm:"index;not null" json:"tutor_id"`
	ScheduledAt     time.Time     `gorm:"not null" json:"scheduled_at"`
	DurationMinutes int           `gorm:"not null" json:"duration_minutes"`
	TotalAmount     int64         `gorm:"not null" json:"total_amount"`
	PlatformFee     int64         `gorm:"not null" json:"platform_fee"`
	Status          BookingStatus `gorm:"type:varchar(20);not null;default:'PENDING_PAYMENT'" json:"status"`
	Notes           *string       `json:"notes,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// TutorEarnings is the net amount a tutor receives for this booking.
func (b *Booking) TutorEarnings() int64 {
	return b.TotalAmount - b.PlatformFee
}
