package models

import "time"

type Tutor struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	UserID        string    `gorm:"uniqueIndex;not null" json:"user_id"`
	DisplayName   string    `gorm:"not null" json:"display_name"`
	HourlyRate    int64     `gorm:"not null" json:"hourly_rate"`
	TotalSessions int64     `gorm:"not null;default:0" json:"total_sessions"`
	Rating        float64   `gorm:"not null;default:0" json:"rating"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Child struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	ParentID    string    `gorm:"index;not null" json:"parent_id"`
	DisplayName string    `gorm:"not null" json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}
