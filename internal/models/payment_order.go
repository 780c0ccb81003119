package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Terminal orders are never reopened.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

type OrderPurpose string

const (
	PurposeBooking      OrderPurpose = "BOOKING"
	PurposeSubscription OrderPurpose = "SUBSCRIPTION"
)

type PaymentOrder struct {
	OrderID              string       `gorm:"primaryKey;type:varchar(32)" json:"order_id"`
	PayerID              string       `gorm:"index;not null" json:"payer_id"`
	Purpose              OrderPurpose `gorm:"type:varchar(20);not null;default:'BOOKING'" json:"purpose"`
	TargetTier           *Tier        `gorm:"type:varchar(20)" json:"target_tier,omitempty"`
	TotalAmount          int64        `gorm:"not null" json:"total_amount"`
	Currency             string       `gorm:"type:varchar(3);not null" json:"currency"`
	Status               OrderStatus  `gorm:"type:varchar(20);not null;default:'PENDING'" json:"status"`
	GatewayProvider      *string      `gorm:"type:varchar(32)" json:"gateway_provider,omitempty"`
	GatewayRef           *string      `json:"gateway_ref,omitempty"`
	GatewayTransactionID *string      `json:"gateway_transaction_id,omitempty"`
	CancelReason         *string      `json:"cancel_reason,omitempty"`
	NeedsReview          bool         `gorm:"not null;default:false" json:"needs_review"`
	CompletedAt          *time.Time   `json:"completed_at,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`

	Bindings []OrderBooking `gorm:"foreignKey:OrderID;references:OrderID" json:"-"`
}

// BookingIDs returns the bound booking ids in creation order.
func (o *PaymentOrder) BookingIDs() []string {
	ids := make([]string, len(o.Bindings))
	for i, b := range o.Bindings {
		ids[i] = b.BookingID
	}
	return ids
}

// OrderBooking binds one booking to the order that pays for it.
type OrderBooking struct {
	OrderID   string `gorm:"primaryKey;type:varchar(32)"`
	BookingID string `gorm:"primaryKey;type:uuid"`
	Position  int    `gorm:"not null"`
}

func (OrderBooking) TableName() string { return "payment_order_bookings" }

// NewOrderID mints a gateway-facing order id. It is short and upper-case so
// it survives being typed into a bank transfer memo.
func NewOrderID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TM" + strings.ToUpper(raw[:16])
}
