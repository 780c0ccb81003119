package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/Eursukkul/tutor-booking/internal/repository"
	"github.com/Eursukkul/tutor-booking/pkg/database"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SubscriptionService interface {
	Get(ctx context.Context, payerID string) (*models.Subscription, error)
	Upgrade(ctx context.Context, payerID string, target models.Tier) (*models.Subscription, error)
	Cancel(ctx context.Context, payerID string) (*models.Subscription, error)
	Downgrade(ctx context.Context, payerID string, target models.Tier) error
	StartUpgradeCheckout(ctx context.Context, caller models.Caller, target models.Tier, payerIP string) (*CheckoutResult, error)
}

// tierUpgrader applies an upgrade inside a caller's transaction.
type tierUpgrader interface {
	upgradeTx(ctx context.Context, tx *gorm.DB, payerID string, target models.Tier) (*models.Subscription, error)
}

type SubscriptionOptions struct {
	Currency string
	Prices   map[models.Tier]int64
}

type subscriptionService struct {
	tx       database.Transactor
	subs     repository.SubscriptionRepository
	orders   repository.OrderRepository
	gateways GatewayRegistry
	opts     SubscriptionOptions
	now      func() time.Time
}

func NewSubscriptionService(
	tx database.Transactor,
	subs repository.SubscriptionRepository,
	orders repository.OrderRepository,
	gateways GatewayRegistry,
	opts SubscriptionOptions,
) SubscriptionService {
	return &subscriptionService{
		tx:       tx,
		subs:     subs,
		orders:   orders,
		gateways: gateways,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *subscriptionService) Get(ctx context.Context, payerID string) (*models.Subscription, error) {
	return s.subs.GetOrCreate(ctx, nil, payerID)
}

func (s *subscriptionService) Upgrade(ctx context.Context, payerID string, target models.Tier) (*models.Subscription, error) {
	var result *models.Subscription
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		sub, err := s.upgradeTx(ctx, tx, payerID, target)
		result = sub
		return err
	})
	return result, err
}

func (s *subscriptionService) upgradeTx(ctx context.Context, tx *gorm.DB, payerID string, target models.Tier) (*models.Subscription, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("tier %q: %w", target, ErrInvalidInput)
	}
	if _, err := s.subs.GetOrCreate(ctx, tx, payerID); err != nil {
		return nil, err
	}
	sub, err := s.subs.FindForUpdate(ctx, tx, payerID)
	if err != nil {
		return nil, err
	}
	if target.Rank() <= sub.Tier.Rank() {
		return nil, fmt.Errorf("upgrade %s -> %s: %w", sub.Tier, target, ErrInvalidTransition)
	}

	start := s.now()
	end := start.Add(models.BillingPeriod)
	sub.Tier = target
	sub.Status = models.SubActive
	sub.CurrentPeriodStart = &start
	sub.CurrentPeriodEnd = &end
	if err := s.subs.Save(ctx, tx, sub); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"payer_id": payerID,
		"tier":     target,
	}).Info("subscription upgraded")
	return sub, nil
}

func (s *subscriptionService) Cancel(ctx context.Context, payerID string) (*models.Subscription, error) {
	var result *models.Subscription
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.subs.GetOrCreate(ctx, tx, payerID); err != nil {
			return err
		}
		sub, err := s.subs.FindForUpdate(ctx, tx, payerID)
		if err != nil {
			return err
		}
		if sub.Tier == models.TierFree {
			return fmt.Errorf("cancel free plan: %w", ErrInvalidTransition)
		}
		sub.Status = models.SubCancelled
		if err := s.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		result = sub
		return nil
	})
	return result, err
}

// Downgrade is refused on purpose; a payer cancels and lets the period run out.
func (s *subscriptionService) Downgrade(_ context.Context, _ string, _ models.Tier) error {
	return ErrDowngradeNotSupported
}

// StartUpgradeCheckout validates the upgrade up front and opens a
// SUBSCRIPTION order for it. The tier only changes once that order completes.
func (s *subscriptionService) StartUpgradeCheckout(ctx context.Context, caller models.Caller, target models.Tier, payerIP string) (*CheckoutResult, error) {
	if caller.ID == "" {
		return nil, ErrUnauthenticated
	}
	if !target.Valid() {
		return nil, fmt.Errorf("tier %q: %w", target, ErrInvalidInput)
	}
	price, ok := s.opts.Prices[target]
	if !ok || price <= 0 {
		return nil, fmt.Errorf("tier %s is not for sale: %w", target, ErrInvalidInput)
	}

	sub, err := s.subs.GetOrCreate(ctx, nil, caller.ID)
	if err != nil {
		return nil, err
	}
	if target.Rank() <= sub.Tier.Rank() {
		return nil, fmt.Errorf("upgrade %s -> %s: %w", sub.Tier, target, ErrInvalidTransition)
	}

	tier := target
	order := &models.PaymentOrder{
		OrderID:     models.NewOrderID(),
		PayerID:     caller.ID,
		Purpose:     models.PurposeSubscription,
		TargetTier:  &tier,
		TotalAmount: price,
		Currency:    s.opts.Currency,
		Status:      models.OrderPending,
	}
	if err := s.orders.Create(ctx, nil, order); err != nil {
		return nil, fmt.Errorf("create subscription order: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"order_id": order.OrderID,
		"payer_id": caller.ID,
		"tier":     target,
	}).Info("subscription checkout opened")

	return startCheckout(ctx, s.gateways, s.orders, order, subscriptionDescription(&tier), payerIP)
}
