package dto

type CreateBatchRequest struct {
	ChildID         string   `json:"child_id" validate:"required"`
	TutorID         string   `json:"tutor_id" validate:"required"`
	Dates           []string `json:"dates" validate:"required,min=1,max=31,dive,datetime=2006-01-02"`
	TimeOfDay       string   `json:"time_of_day" validate:"required,datetime=15:04"`
	DurationMinutes int      `json:"duration_minutes" validate:"required,oneof=60 90 120 180"`
	Notes           *string  `json:"notes" validate:"omitempty,max=1000"`
}

type RespondRequest struct {
	Action string `json:"action" validate:"required,oneof=accept reject"`
}

type UpgradeRequest struct {
	Tier string `json:"tier" validate:"required,oneof=BASIC PREMIUM"`
}

type DowngradeRequest struct {
	Tier string `json:"tier" validate:"required,oneof=FREE BASIC PREMIUM"`
}

// GatewayEventMessage is the body of a gateway.* message on the payments
// exchange.
type GatewayEventMessage struct {
	OrderID       string `json:"order_id" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=PENDING COMPLETED FAILED CANCELLED"`
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount" validate:"gte=0"`
}
