package models

import "time"

type Tier string

const (
	TierFree    Tier = "FREE"
	TierBasic   Tier = "BASIC"
	TierPremium Tier = "PREMIUM"
)

var tierRank = map[Tier]int{
	TierFree:    0,
	TierBasic:   1,
	TierPremium: 2,
}

func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Rank orders tiers FREE < BASIC < PREMIUM. Unknown tiers rank below FREE.
func (t Tier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return -1
}

type SubscriptionStatus string

const (
	SubActive    SubscriptionStatus = "ACTIVE"
	SubCancelled SubscriptionStatus = "CANCELLED"
	SubPastDue   SubscriptionStatus = "PAST_DUE"
	SubTrialing  SubscriptionStatus = "TRIALING"
)

const BillingPeriod = 30 * 24 * time.Hour

type Subscription struct {
	PayerID            string             `gorm:"primaryKey" json:"payer_id"`
	Tier               Tier               `gorm:"type:varchar(20);not null;default:'FREE'" json:"tier"`
	Status             SubscriptionStatus `gorm:"type:varchar(20);not null;default:'ACTIVE'" json:"status"`
	CurrentPeriodStart *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

type DailyUsage struct {
	ChildID        string    `gorm:"primaryKey" json:"child_id"`
	UsageDate      string    `gorm:"primaryKey;type:varchar(10)" json:"usage_date"`
	QuestionsAsked int64     `gorm:"not null;default:0" json:"questions_asked"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (DailyUsage) TableName() string { return "daily_usages" }
