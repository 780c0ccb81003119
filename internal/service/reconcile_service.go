package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/gateway"
	"github.com/Eursukkul/tutor-booking/internal/metrics"
	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/Eursukkul/tutor-booking/internal/repository"
	"github.com/Eursukkul/tutor-booking/pkg/database"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Source names the channel a payment signal arrived on.
type Source string

const (
	SourcePoll    Source = "poll"
	SourceWebhook Source = "webhook"
	SourceQueue   Source = "queue"
	SourceSweeper Source = "sweeper"
	SourcePayer   Source = "payer"
)

type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeAlreadyTerminal Outcome = "already_terminal"
	OutcomeStillPending    Outcome = "still_pending"
	OutcomeAmountMismatch  Outcome = "amount_mismatch"
	OutcomeSuperseded      Outcome = "superseded"
)

type Signal struct {
	Status        gateway.Status
	TransactionID string
	// Reference names the checkout the signal is about. A failure for a
	// checkout that has since been replaced is ignored.
	Reference string
	// Amount is checked against the order total when non-zero.
	Amount int64
	Source Source
	Reason string
}

type ReconcileResult struct {
	OrderID string             `json:"order_id"`
	Outcome Outcome            `json:"outcome"`
	Status  models.OrderStatus `json:"status"`
}

type ReconcileService interface {
	Reconcile(ctx context.Context, orderID string, sig Signal) (*ReconcileResult, error)
	PollAndReconcile(ctx context.Context, caller models.Caller, orderID string) (*ReconcileResult, error)
	HandleWebhook(ctx context.Context, provider string, raw []byte, signature string) (*ReconcileResult, error)
	CancelOrder(ctx context.Context, caller models.Caller, orderID string) (*ReconcileResult, error)
	CancelStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	ReplayCompleted(ctx context.Context, limit int) (int, error)
}

type reconcileService struct {
	tx        database.Transactor
	orders    repository.OrderRepository
	bookings  repository.BookingRepository
	upgrader  tierUpgrader
	gateways  GatewayRegistry
	publisher EventPublisher
	now       func() time.Time
}

func NewReconcileService(
	tx database.Transactor,
	orders repository.OrderRepository,
	bookings repository.BookingRepository,
	subs SubscriptionService,
	gateways GatewayRegistry,
	publisher EventPublisher,
) ReconcileService {
	s := &reconcileService{
		tx:        tx,
		orders:    orders,
		bookings:  bookings,
		gateways:  gateways,
		publisher: publisher,
		now:       time.Now,
	}
	if u, ok := subs.(tierUpgrader); ok {
		s.upgrader = u
	}
	return s
}

// Reconcile applies one payment signal to an order. Every channel funnels
// through here; the guarded order update makes repeats harmless.
func (s *reconcileService) Reconcile(ctx context.Context, orderID string, sig Signal) (*ReconcileResult, error) {
	order, err := s.orders.FindByID(ctx, nil, orderID)
	if err != nil {
		return nil, notFound(err, "order %s", orderID)
	}

	res, err := s.apply(ctx, order, sig)
	if err != nil {
		return nil, err
	}
	metrics.ReconcileOutcomes.WithLabelValues(string(sig.Source), string(res.Outcome)).Inc()
	return res, nil
}

func (s *reconcileService) apply(ctx context.Context, order *models.PaymentOrder, sig Signal) (*ReconcileResult, error) {
	log := logrus.WithFields(logrus.Fields{
		"order_id": order.OrderID,
		"source":   sig.Source,
		"signal":   sig.Status,
	})

	if order.Status.Terminal() {
		log.WithField("status", order.Status).Debug("order already terminal, ignoring signal")
		return s.result(order, OutcomeAlreadyTerminal), nil
	}

	switch sig.Status {
	case gateway.StatusCompleted:
		if sig.Amount != 0 && sig.Amount != order.TotalAmount {
			log.WithFields(logrus.Fields{
				"expected": order.TotalAmount,
				"received": sig.Amount,
			}).Warn("payment amount mismatch, order flagged for review")
			if _, err := s.orders.FlagForReview(ctx, order.OrderID); err != nil {
				return nil, fmt.Errorf("flag order %s: %w", order.OrderID, err)
			}
			return s.result(order, OutcomeAmountMismatch), nil
		}
		return s.complete(ctx, order, sig, log)
	case gateway.StatusFailed, gateway.StatusCancelled:
		if superseded(order, sig) {
			log.WithField("reference", sig.Reference).Info("failure for superseded checkout ignored")
			return s.result(order, OutcomeSuperseded), nil
		}
		return s.cancel(ctx, order, sig, log)
	case gateway.StatusPending:
		return s.result(order, OutcomeStillPending), nil
	default:
		return nil, fmt.Errorf("signal status %q: %w", sig.Status, ErrInvalidInput)
	}
}

// superseded reports whether sig is about a checkout other than the order's
// current one. A payment on an old checkout still counts; only its failure
// is ignored.
func superseded(order *models.PaymentOrder, sig Signal) bool {
	if sig.Reference == "" || order.GatewayRef == nil || *order.GatewayRef == "" {
		return false
	}
	return sig.Reference != *order.GatewayRef
}

func (s *reconcileService) complete(ctx context.Context, order *models.PaymentOrder, sig Signal, log *logrus.Entry) (*ReconcileResult, error) {
	var applied bool
	at := s.now()

	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		var txn *string
		if sig.TransactionID != "" {
			txn = &sig.TransactionID
		}
		ok, err := s.orders.CompleteIfPending(ctx, tx, order.OrderID, txn, at)
		if err != nil {
			return fmt.Errorf("complete order: %w", err)
		}
		if !ok {
			return nil
		}
		applied = true

		if _, err := s.bookings.TransitionMany(ctx, tx, order.BookingIDs(), models.StatusPendingPayment, models.StatusPending); err != nil {
			return fmt.Errorf("release bookings: %w", err)
		}

		if order.Purpose == models.PurposeSubscription && order.TargetTier != nil && s.upgrader != nil {
			_, err := s.upgrader.upgradeTx(ctx, tx, order.PayerID, *order.TargetTier)
			switch {
			case errors.Is(err, ErrInvalidTransition):
				log.WithError(err).Error("paid subscription order could not upgrade tier, needs manual review")
			case err != nil:
				return fmt.Errorf("apply upgrade: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !applied {
		return s.reload(ctx, order.OrderID, log)
	}

	order.Status = models.OrderCompleted
	order.CompletedAt = &at
	log.Info("payment order completed")

	publish(ctx, s.publisher, RoutePaymentCompleted, s.paymentEvent(order, sig))
	return s.result(order, OutcomeApplied), nil
}

func (s *reconcileService) cancel(ctx context.Context, order *models.PaymentOrder, sig Signal, log *logrus.Entry) (*ReconcileResult, error) {
	reason := sig.Reason
	if reason == "" {
		reason = fmt.Sprintf("%s: payment %s", sig.Source, sig.Status)
	}

	var applied bool
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		ok, err := s.orders.CancelIfPending(ctx, tx, order.OrderID, reason)
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		if !ok {
			return nil
		}
		applied = true

		if _, err := s.bookings.TransitionMany(ctx, tx, order.BookingIDs(), models.StatusPendingPayment, models.StatusCancelled); err != nil {
			return fmt.Errorf("cancel bookings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !applied {
		return s.reload(ctx, order.OrderID, log)
	}

	order.Status = models.OrderCancelled
	order.CancelReason = &reason
	log.WithField("reason", reason).Info("payment order cancelled")

	publish(ctx, s.publisher, RoutePaymentCancelled, s.paymentEvent(order, sig))
	return s.result(order, OutcomeApplied), nil
}

// reload reports the state left behind by whichever writer won the race.
func (s *reconcileService) reload(ctx context.Context, orderID string, log *logrus.Entry) (*ReconcileResult, error) {
	log.Debug("lost race on order transition")
	current, err := s.orders.FindByID(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	return s.result(current, OutcomeAlreadyTerminal), nil
}

func (s *reconcileService) result(order *models.PaymentOrder, outcome Outcome) *ReconcileResult {
	return &ReconcileResult{OrderID: order.OrderID, Outcome: outcome, Status: order.Status}
}

func (s *reconcileService) paymentEvent(order *models.PaymentOrder, sig Signal) PaymentEvent {
	return PaymentEvent{
		OrderID:       order.OrderID,
		PayerID:       order.PayerID,
		Purpose:       order.Purpose,
		Status:        order.Status,
		TransactionID: sig.TransactionID,
		Source:        sig.Source,
		BookingIDs:    order.BookingIDs(),
		OccurredAt:    s.now(),
	}
}

// PollAndReconcile asks the provider for the order's status. An unreachable
// provider is reported as still pending.
func (s *reconcileService) PollAndReconcile(ctx context.Context, caller models.Caller, orderID string) (*ReconcileResult, error) {
	order, err := s.orders.FindByID(ctx, nil, orderID)
	if err != nil {
		return nil, notFound(err, "order %s", orderID)
	}
	if !ownsOrder(caller, order) {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrForbidden)
	}
	if order.Status.Terminal() {
		return s.result(order, OutcomeAlreadyTerminal), nil
	}

	res, err := s.poll(ctx, order)
	if err != nil {
		return nil, err
	}
	if res == nil {
		metrics.ReconcileOutcomes.WithLabelValues(string(SourcePoll), string(OutcomeStillPending)).Inc()
		return s.result(order, OutcomeStillPending), nil
	}

	out, err := s.apply(ctx, order, Signal{
		Status:        res.Status,
		TransactionID: res.TransactionID,
		Reference:     res.Reference,
		Amount:        res.Amount,
		Source:        SourcePoll,
	})
	if err != nil {
		return nil, err
	}
	metrics.ReconcileOutcomes.WithLabelValues(string(SourcePoll), string(out.Outcome)).Inc()
	return out, nil
}

// poll returns nil when the provider could not answer.
func (s *reconcileService) poll(ctx context.Context, order *models.PaymentOrder) (*gateway.Result, error) {
	gw, err := gatewayFor(s.gateways, order)
	if err != nil {
		return nil, err
	}
	ref := ""
	if order.GatewayRef != nil {
		ref = *order.GatewayRef
	}

	res, err := gw.PollStatus(ctx, order.OrderID, ref)
	if errors.Is(err, gateway.ErrUpstreamUnavailable) {
		logrus.WithError(err).WithField("order_id", order.OrderID).Warn("gateway poll unavailable")
		return nil, nil
	}
	return res, err
}

func (s *reconcileService) HandleWebhook(ctx context.Context, provider string, raw []byte, signature string) (*ReconcileResult, error) {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrNotFound)
	}
	ev, err := gw.DecodeWebhook(raw, signature)
	if err != nil {
		if errors.Is(err, gateway.ErrSignatureInvalid) {
			logrus.WithField("provider", provider).Warn("webhook rejected: bad signature")
			return nil, err
		}
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}

	return s.Reconcile(ctx, ev.OrderID, Signal{
		Status:        ev.Status,
		TransactionID: ev.TransactionID,
		Reference:     ev.Reference,
		Amount:        ev.Amount,
		Source:        SourceWebhook,
	})
}

// CancelOrder lets the payer abandon an unpaid order. A paid order cannot be
// cancelled this way; its bookings are cancelled one by one instead.
func (s *reconcileService) CancelOrder(ctx context.Context, caller models.Caller, orderID string) (*ReconcileResult, error) {
	order, err := s.orders.FindByID(ctx, nil, orderID)
	if err != nil {
		return nil, notFound(err, "order %s", orderID)
	}
	if !ownsOrder(caller, order) {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrForbidden)
	}
	if order.Status == models.OrderCompleted {
		return nil, fmt.Errorf("order %s is already paid: %w", orderID, ErrInvalidState)
	}

	res, err := s.apply(ctx, order, Signal{
		Status: gateway.StatusCancelled,
		Source: SourcePayer,
		Reason: "cancelled by payer",
	})
	if err != nil {
		return nil, err
	}
	metrics.ReconcileOutcomes.WithLabelValues(string(SourcePayer), string(res.Outcome)).Inc()
	return res, nil
}

// CancelStale times out orders that stayed PENDING longer than olderThan.
// The provider is asked once more first so a payment that raced the timeout
// still lands.
func (s *reconcileService) CancelStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := s.orders.ListStalePending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale orders: %w", err)
	}

	cancelled := 0
	for i := range stale {
		if ctx.Err() != nil {
			return cancelled, ctx.Err()
		}
		order := &stale[i]

		bound, err := s.orders.FindByID(ctx, nil, order.OrderID)
		if err != nil {
			logrus.WithError(err).WithField("order_id", order.OrderID).Warn("reload stale order failed")
			continue
		}

		sig := Signal{Status: gateway.StatusCancelled, Source: SourceSweeper, Reason: "payment timeout"}
		if res, err := s.poll(ctx, bound); err == nil && res != nil && res.Status == gateway.StatusCompleted {
			sig = Signal{Status: res.Status, TransactionID: res.TransactionID, Reference: res.Reference, Amount: res.Amount, Source: SourceSweeper}
		}

		out, err := s.apply(ctx, bound, sig)
		if err != nil {
			logrus.WithError(err).WithField("order_id", order.OrderID).Warn("sweep order failed")
			continue
		}
		metrics.ReconcileOutcomes.WithLabelValues(string(SourceSweeper), string(out.Outcome)).Inc()
		if out.Outcome == OutcomeApplied && out.Status == models.OrderCancelled {
			cancelled++
		}
	}
	return cancelled, nil
}

// ReplayCompleted finishes cascades cut short between the order write and the
// booking writes.
func (s *reconcileService) ReplayCompleted(ctx context.Context, limit int) (int, error) {
	ids, err := s.orders.ListCompletedWithUnpaidBookings(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unfinished orders: %w", err)
	}

	repaired := 0
	for _, id := range ids {
		var n int64
		err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
			order, err := s.orders.FindByID(ctx, tx, id)
			if err != nil {
				return err
			}
			if order.Status != models.OrderCompleted {
				return nil
			}
			n, err = s.bookings.TransitionMany(ctx, tx, order.BookingIDs(), models.StatusPendingPayment, models.StatusPending)
			return err
		})
		if err != nil {
			logrus.WithError(err).WithField("order_id", id).Warn("replay completed order failed")
			continue
		}
		if n > 0 {
			repaired++
			logrus.WithFields(logrus.Fields{"order_id": id, "bookings": n}).Info("replayed completed order")
		}
	}
	return repaired, nil
}
