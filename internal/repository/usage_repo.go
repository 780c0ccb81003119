package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageRepository counts questions asked per child per calendar day. The day
// is passed as YYYY-MM-DD in the payer timezone.
type UsageRepository interface {
	Get(ctx context.Context, childID, day string) (int64, error)
	Increment(ctx context.Context, childID, day string) (int64, error)
	// IncrementIfBelow records one question only while the count is under
	// limit. ok is false when the count was already at the limit; used is
	// then the unchanged count.
	IncrementIfBelow(ctx context.Context, childID, day string, limit int64) (used int64, ok bool, err error)
}

type usageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) Get(ctx context.Context, childID, day string) (int64, error) {
	var usage models.DailyUsage
	err := r.db.WithContext(ctx).
		First(&usage, "child_id = ? AND usage_date = ?", childID, day).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return usage.QuestionsAsked, nil
}

// Increment is a single upsert so concurrent callers never lose a count.
func (r *usageRepository) Increment(ctx context.Context, childID, day string) (int64, error) {
	now := time.Now()
	usage := models.DailyUsage{
		ChildID:        childID,
		UsageDate:      day,
		QuestionsAsked: 1,
		UpdatedAt:      now,
	}
	err := r.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "child_id"}, {Name: "usage_date"}},
			DoUpdates: clause.Assignments(map[string]any{
				"questions_asked": gorm.Expr("daily_usages.questions_asked + 1"),
				"updated_at":      now,
			}),
		},
		clause.Returning{Columns: []clause.Column{{Name: "questions_asked"}}},
	).Create(&usage).Error
	if err != nil {
		return 0, err
	}
	return usage.QuestionsAsked, nil
}

func (r *usageRepository) IncrementIfBelow(ctx context.Context, childID, day string, limit int64) (int64, bool, error) {
	if limit <= 0 {
		used, err := r.Get(ctx, childID, day)
		return used, false, err
	}
	now := time.Now()
	usage := models.DailyUsage{
		ChildID:        childID,
		UsageDate:      day,
		QuestionsAsked: 1,
		UpdatedAt:      now,
	}
	res := r.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "child_id"}, {Name: "usage_date"}},
			DoUpdates: clause.Assignments(map[string]any{
				"questions_asked": gorm.Expr("daily_usages.questions_asked + 1"),
				"updated_at":      now,
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("daily_usages.questions_asked < ?", limit),
			}},
		},
		clause.Returning{Columns: []clause.Column{{Name: "questions_asked"}}},
	).Create(&usage)
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected == 0 {
		used, err := r.Get(ctx, childID, day)
		return used, false, err
	}
	return usage.QuestionsAsked, true, nil
}
