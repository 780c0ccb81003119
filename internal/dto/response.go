package dto

import (
	"time"

	"github.com/Eursukkul/tutor-booking/internal/gateway"
	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/Eursukkul/tutor-booking/internal/service"
)

type BookingResponse struct {
	ID              string               `json:"id"`
	OrderID         string               `json:"order_id"`
	ChildID         string               `json:"child_id"`
	TutorID         string               `json:"tutor_id"`
	ScheduledAt     time.Time            `json:"scheduled_at"`
	DurationMinutes int                  `json:"duration_minutes"`
	TotalAmount     int64                `json:"total_amount"`
	PlatformFee     int64                `json:"platform_fee"`
	TutorEarnings   int64                `json:"tutor_earnings"`
	Status          models.BookingStatus `json:"status"`
	Notes           *string              `json:"notes,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

type OrderResponse struct {
	OrderID       string              `json:"order_id"`
	Purpose       models.OrderPurpose `json:"purpose"`
	TargetTier    *models.Tier        `json:"target_tier,omitempty"`
	TotalAmount   int64               `json:"total_amount"`
	Currency      string              `json:"currency"`
	Status        models.OrderStatus  `json:"status"`
	Provider      *string             `json:"provider,omitempty"`
	TransactionID *string             `json:"transaction_id,omitempty"`
	CancelReason  *string             `json:"cancel_reason,omitempty"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	Bookings      []BookingResponse   `json:"bookings,omitempty"`
}

// CheckoutResponse is returned when a payer is sent to the gateway.
type CheckoutResponse struct {
	OrderID     string            `json:"order_id"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	Checkout    *gateway.Checkout `json:"checkout,omitempty"`
}

type BatchResponse struct {
	Order    OrderResponse     `json:"order"`
	Bookings []BookingResponse `json:"bookings"`
	Payment  *CheckoutResponse `json:"payment,omitempty"`
}

type ReconcileResponse struct {
	OrderID string             `json:"order_id"`
	Outcome service.Outcome    `json:"outcome"`
	Status  models.OrderStatus `json:"status"`
}

type SubscriptionResponse struct {
	PayerID            string                    `json:"payer_id"`
	Tier               models.Tier               `json:"tier"`
	Status             models.SubscriptionStatus `json:"status"`
	CurrentPeriodStart *time.Time                `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time                `json:"current_period_end,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

func ToBookingResponse(b *models.Booking) BookingResponse {
	return BookingResponse{
		ID:              b.ID,
		OrderID:         b.OrderID,
		ChildID:         b.ChildID,
		TutorID:         b.TutorID,
		ScheduledAt:     b.ScheduledAt,
		DurationMinutes: b.DurationMinutes,
		TotalAmount:     b.TotalAmount,
		PlatformFee:     b.PlatformFee,
		TutorEarnings:   b.TutorEarnings(),
		Status:          b.Status,
		Notes:           b.Notes,
		CreatedAt:       b.CreatedAt,
	}
}

func ToBookingResponses(bs []models.Booking) []BookingResponse {
	resp := make([]BookingResponse, len(bs))
	for i := range bs {
		resp[i] = ToBookingResponse(&bs[i])
	}
	return resp
}

func ToOrderResponse(o *models.PaymentOrder, bookings []models.Booking) OrderResponse {
	resp := OrderResponse{
		OrderID:       o.OrderID,
		Purpose:       o.Purpose,
		TargetTier:    o.TargetTier,
		TotalAmount:   o.TotalAmount,
		Currency:      o.Currency,
		Status:        o.Status,
		Provider:      o.GatewayProvider,
		TransactionID: o.GatewayTransactionID,
		CancelReason:  o.CancelReason,
		CompletedAt:   o.CompletedAt,
		CreatedAt:     o.CreatedAt,
	}
	if len(bookings) > 0 {
		resp.Bookings = ToBookingResponses(bookings)
	}
	return resp
}

func ToCheckoutResponse(co *service.CheckoutResult) *CheckoutResponse {
	if co == nil {
		return nil
	}
	return &CheckoutResponse{
		OrderID:     co.OrderID,
		Amount:      co.Amount,
		Currency:    co.Currency,
		Description: co.Description,
		Checkout:    co.Checkout,
	}
}

func ToBatchResponse(r *service.BatchResult) BatchResponse {
	return BatchResponse{
		Order:    ToOrderResponse(r.Order, nil),
		Bookings: ToBookingResponses(r.Bookings),
		Payment:  ToCheckoutResponse(r.CheckoutResult),
	}
}

func ToReconcileResponse(r *service.ReconcileResult) ReconcileResponse {
	return ReconcileResponse{OrderID: r.OrderID, Outcome: r.Outcome, Status: r.Status}
}

func ToSubscriptionResponse(s *models.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		PayerID:            s.PayerID,
		Tier:               s.Tier,
		Status:             s.Status,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
	}
}
