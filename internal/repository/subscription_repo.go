package repository

import (
	"context"

	"github.com/Eursukkul/tutor-booking/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionRepository interface {
	GetOrCreate(ctx context.Context, tx *gorm.DB, payerID string) (*models.Subscription, error)
	FindForUpdate(ctx context.Context, tx *gorm.DB, payerID string) (*models.Subscription, error)
	Save(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error
}

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// GetOrCreate inserts an implicit FREE/ACTIVE row if none exists and reads
// back whatever row won.
func (r *subscriptionRepository) GetOrCreate(ctx context.Context, tx *gorm.DB, payerID string) (*models.Subscription, error) {
	db := conn(r.db, tx).WithContext(ctx)
	fresh := models.Subscription{
		PayerID: payerID,
		Tier:    models.TierFree,
		Status:  models.SubActive,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
		return nil, err
	}

	var sub models.Subscription
	if err := db.First(&sub, "payer_id = ?", payerID).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) FindForUpdate(ctx context.Context, tx *gorm.DB, payerID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := conn(r.db, tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&sub, "payer_id = ?", payerID).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) Save(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	return conn(r.db, tx).WithContext(ctx).Save(sub).Error
}
