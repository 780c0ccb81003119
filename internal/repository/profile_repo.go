package repository

import (
	"context"

	"github.com/Eursukkul/tutor-booking/internal/models"
	"gorm.io/gorm"
)

type ProfileRepository interface {
	FindTutorByID(ctx context.Context, id string) (*models.Tutor, error)
	FindTutorByUserID(ctx context.Context, userID string) (*models.Tutor, error)
	FindChildByID(ctx context.Context, id string) (*models.Child, error)
	IncrementTutorSessions(ctx context.Context, tx *gorm.DB, tutorID string) error
}

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) FindTutorByID(ctx context.Context, id string) (*models.Tutor, error) {
	var tutor models.Tutor
	if err := r.db.WithContext(ctx).First(&tutor, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tutor, nil
}

func (r *profileRepository) FindTutorByUserID(ctx context.Context, userID string) (*models.Tutor, error) {
	var tutor models.Tutor
	if err := r.db.WithContext(ctx).First(&tutor, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &tutor, nil
}

func (r *profileRepository) FindChildByID(ctx context.Context, id string) (*models.Child, error) {
	var child models.Child
	if err := r.db.WithContext(ctx).First(&child, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &child, nil
}

func (r *profileRepository) IncrementTutorSessions(ctx context.Context, tx *gorm.DB, tutorID string) error {
	return conn(r.db, tx).WithContext(ctx).
		Model(&models.Tutor{}).
		Where("id = ?", tutorID).
		UpdateColumn("total_sessions", gorm.Expr("total_sessions + ?", 1)).Error
}
