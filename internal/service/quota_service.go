package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/metrics"
	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/Eursukkul/tutor-booking/internal/repository"
	"github.com/sirupsen/logrus"
)

// Unlimited marks a tier without a daily cap.
const Unlimited int64 = -1

type QuotaStatus struct {
	Allowed   bool        `json:"allowed"`
	Used      int64       `json:"used"`
	Remaining int64       `json:"remaining"`
	Limit     int64       `json:"limit"`
	Tier      models.Tier `json:"tier"`
	Unlimited bool        `json:"unlimited"`
}

type QuotaService interface {
	Check(ctx context.Context, caller models.Caller, childID string) (*QuotaStatus, error)
	Increment(ctx context.Context, caller models.Caller, childID string) (int64, error)
	Consume(ctx context.Context, caller models.Caller, childID string) (*QuotaStatus, error)
}

type QuotaLimits map[models.Tier]int64

type quotaService struct {
	profiles repository.ProfileRepository
	subs     repository.SubscriptionRepository
	usage    repository.UsageRepository
	limits   QuotaLimits
	loc      *time.Location
	now      func() time.Time
}

func NewQuotaService(
	profiles repository.ProfileRepository,
	subs repository.SubscriptionRepository,
	usage repository.UsageRepository,
	limits QuotaLimits,
	loc *time.Location,
) QuotaService {
	if loc == nil {
		loc = time.UTC
	}
	return &quotaService{
		profiles: profiles,
		subs:     subs,
		usage:    usage,
		limits:   limits,
		loc:      loc,
		now:      time.Now,
	}
}

func (s *quotaService) today() string {
	return s.now().In(s.loc).Format(dateLayout)
}

// limitFor reads the tier's cap. Tiers missing from the table are unlimited.
func (s *quotaService) limitFor(tier models.Tier) int64 {
	if l, ok := s.limits[tier]; ok {
		return l
	}
	return Unlimited
}

// Check fails closed: any lookup error yields a denied status with the error.
func (s *quotaService) Check(ctx context.Context, caller models.Caller, childID string) (*QuotaStatus, error) {
	denied := &QuotaStatus{Allowed: false}

	child, err := s.profiles.FindChildByID(ctx, childID)
	if err != nil {
		return denied, notFound(err, "child %s", childID)
	}
	if !caller.IsAdmin() && child.ParentID != caller.ID {
		return denied, fmt.Errorf("child %s: %w", childID, ErrForbidden)
	}

	sub, err := s.subs.GetOrCreate(ctx, nil, child.ParentID)
	if err != nil {
		return denied, err
	}
	used, err := s.usage.Get(ctx, childID, s.today())
	if err != nil {
		return denied, err
	}
	return s.status(sub.Tier, used), nil
}

func (s *quotaService) status(tier models.Tier, used int64) *QuotaStatus {
	limit := s.limitFor(tier)
	if limit == Unlimited {
		return &QuotaStatus{
			Allowed:   true,
			Used:      used,
			Remaining: Unlimited,
			Limit:     Unlimited,
			Tier:      tier,
			Unlimited: true,
		}
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return &QuotaStatus{
		Allowed:   used < limit,
		Used:      used,
		Remaining: remaining,
		Limit:     limit,
		Tier:      tier,
	}
}

func (s *quotaService) Increment(ctx context.Context, caller models.Caller, childID string) (int64, error) {
	child, err := s.profiles.FindChildByID(ctx, childID)
	if err != nil {
		return 0, notFound(err, "child %s", childID)
	}
	if !caller.IsAdmin() && child.ParentID != caller.ID {
		return 0, fmt.Errorf("child %s: %w", childID, ErrForbidden)
	}
	return s.usage.Increment(ctx, childID, s.today())
}

// Consume checks the quota and records one question. For capped tiers the
// check and the increment are one conditional write, so the count never
// passes the limit however many requests race.
func (s *quotaService) Consume(ctx context.Context, caller models.Caller, childID string) (*QuotaStatus, error) {
	st, err := s.Check(ctx, caller, childID)
	if err != nil {
		return st, err
	}
	if !st.Allowed {
		return st, s.deny(childID, st)
	}

	if st.Unlimited {
		used, err := s.usage.Increment(ctx, childID, s.today())
		if err != nil {
			return st, err
		}
		return s.status(st.Tier, used), nil
	}

	used, ok, err := s.usage.IncrementIfBelow(ctx, childID, s.today(), st.Limit)
	if err != nil {
		return st, err
	}
	if !ok {
		denied := s.status(st.Tier, used)
		denied.Allowed = false
		return denied, s.deny(childID, denied)
	}
	return s.status(st.Tier, used), nil
}

func (s *quotaService) deny(childID string, st *QuotaStatus) error {
	metrics.QuotaDenials.WithLabelValues(string(st.Tier)).Inc()
	logrus.WithFields(logrus.Fields{
		"child_id": childID,
		"tier":     st.Tier,
		"used":     st.Used,
	}).Info("quota exceeded")
	return fmt.Errorf("child %s used %d of %d: %w", childID, st.Used, st.Limit, ErrQuotaExceeded)
}
