package worker

import (
	"context"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/metrics"
	"github.com/sirupsen/logrus"
)

// OrderReconciler is the slice of the reconcile service the sweeper drives.
type OrderReconciler interface {
	CancelStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	ReplayCompleted(ctx context.Context, limit int) (int, error)
}

// OrderSweeper times out unpaid orders and finishes completed orders whose
// booking cascade was interrupted.
type OrderSweeper struct {
	reconciler OrderReconciler
	interval   time.Duration
	timeout    time.Duration
	batchSize  int
}

func NewOrderSweeper(reconciler OrderReconciler, interval, paymentTimeout time.Duration, batchSize int) *OrderSweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OrderSweeper{
		reconciler: reconciler,
		interval:   interval,
		timeout:    paymentTimeout,
		batchSize:  batchSize,
	}
}

func (w *OrderSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.WithFields(logrus.Fields{
		"interval":        w.interval.String(),
		"payment_timeout": w.timeout.String(),
	}).Info("order sweeper started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("order sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *OrderSweeper) sweep(ctx context.Context) {
	cancelled, err := w.reconciler.CancelStale(ctx, w.timeout, w.batchSize)
	if err != nil {
		logrus.WithError(err).Error("cancel stale orders failed")
	}
	if cancelled > 0 {
		metrics.SweeperRuns.WithLabelValues("cancelled").Add(float64(cancelled))
		logrus.WithField("orders", cancelled).Info("timed out unpaid orders")
	}

	if ctx.Err() != nil {
		return
	}

	repaired, err := w.reconciler.ReplayCompleted(ctx, w.batchSize)
	if err != nil {
		logrus.WithError(err).Error("replay completed orders failed")
	}
	if repaired > 0 {
		metrics.SweeperRuns.WithLabelValues("replayed").Add(float64(repaired))
		logrus.WithField("orders", repaired).Warn("finished interrupted payment cascades")
	}
}
