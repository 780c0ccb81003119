// Package consumer applies gateway payment events delivered over RabbitMQ.
package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Eursukkul/tutor-booking/internal/dto"
	"github.com/Eursukkul/tutor-booking/internal/gateway"
	"github.com/Eursukkul/tutor-booking/internal/service"
	"github.com/go-playground/validator/v10"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type PaymentConsumer struct {
	reconcile service.ReconcileService
	validate  *validator.Validate
}

func NewPaymentConsumer(reconcile service.ReconcileService) *PaymentConsumer {
	return &PaymentConsumer{reconcile: reconcile, validate: validator.New()}
}

// Start drains msgs until the channel closes or ctx is cancelled. The
// returned channel is closed once the loop exits.
func (pc *PaymentConsumer) Start(ctx context.Context, msgs <-chan amqp.Delivery) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				logrus.Info("payment consumer stopping")
				return
			case msg, ok := <-msgs:
				if !ok {
					logrus.Warn("payment channel closed, stopping consumer")
					return
				}
				pc.handleMessage(ctx, msg)
			}
		}
	}()
	return done
}

func (pc *PaymentConsumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	log := logrus.WithField("routing_key", msg.RoutingKey)

	var ev dto.GatewayEventMessage
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		log.WithError(err).Warn("dropping undecodable payment event")
		_ = msg.Nack(false, false)
		return
	}
	if err := pc.validate.Struct(&ev); err != nil {
		log.WithError(err).Warn("dropping invalid payment event")
		_ = msg.Nack(false, false)
		return
	}
	log = log.WithField("order_id", ev.OrderID)

	res, err := pc.reconcile.Reconcile(ctx, ev.OrderID, service.Signal{
		Status:        gateway.Status(ev.Status),
		TransactionID: ev.TransactionID,
		Reference:     ev.Reference,
		Amount:        ev.Amount,
		Source:        service.SourceQueue,
	})
	if err != nil {
		if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrInvalidInput) {
			log.WithError(err).Warn("dropping payment event")
			_ = msg.Nack(false, false)
			return
		}
		// Requeue once; a second failure is left to polling and the sweeper.
		log.WithError(err).WithField("redelivered", msg.Redelivered).Error("reconcile from queue failed")
		_ = msg.Nack(false, !msg.Redelivered)
		return
	}

	log.WithFields(logrus.Fields{
		"outcome": res.Outcome,
		"status":  res.Status,
	}).Info("payment event applied")
	_ = msg.Ack(false)
}
