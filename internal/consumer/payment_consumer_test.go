package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/gateway"
	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/Eursukkul/tutor-booking/internal/service"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type ackRecorder struct {
	mu      sync.Mutex
	acked   int
	nacked  int
	requeue bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked++
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type mockReconcile struct {
	service.ReconcileService
	reconcileFn func(ctx context.Context, orderID string, sig service.Signal) (*service.ReconcileResult, error)
}

func (m *mockReconcile) Reconcile(ctx context.Context, orderID string, sig service.Signal) (*service.ReconcileResult, error) {
	return m.reconcileFn(ctx, orderID, sig)
}

func delivery(ack amqp.Acknowledger, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		RoutingKey:   "gateway.banktransfer",
		Body:         []byte(body),
	}
}

// --- Tests ---

func TestHandleMessage_AppliesAndAcks(t *testing.T) {
	var got service.Signal
	rs := &mockReconcile{
		reconcileFn: func(ctx context.Context, orderID string, sig service.Signal) (*service.ReconcileResult, error) {
			assert.Equal(t, "TM0123456789ABCDEF", orderID)
			got = sig
			return &service.ReconcileResult{OrderID: orderID, Outcome: service.OutcomeApplied, Status: models.OrderCompleted}, nil
		},
	}
	ack := &ackRecorder{}

	NewPaymentConsumer(rs).handleMessage(context.Background(),
		delivery(ack, `{"order_id":"TM0123456789ABCDEF","status":"COMPLETED","transaction_id":"FT123","reference":"TM0123456789ABCDEF","amount":450000}`))

	assert.Equal(t, 1, ack.acked)
	assert.Equal(t, 0, ack.nacked)
	assert.Equal(t, gateway.StatusCompleted, got.Status)
	assert.Equal(t, service.SourceQueue, got.Source)
	assert.Equal(t, int64(450000), got.Amount)
	assert.Equal(t, "TM0123456789ABCDEF", got.Reference)
}

func TestHandleMessage_AlreadyTerminalAcks(t *testing.T) {
	rs := &mockReconcile{
		reconcileFn: func(ctx context.Context, orderID string, sig service.Signal) (*service.ReconcileResult, error) {
			return &service.ReconcileResult{OrderID: orderID, Outcome: service.OutcomeAlreadyTerminal, Status: models.OrderCancelled}, nil
		},
	}
	ack := &ackRecorder{}

	NewPaymentConsumer(rs).handleMessage(context.Background(),
		delivery(ack, `{"order_id":"TM1","status":"COMPLETED"}`))

	assert.Equal(t, 1, ack.acked)
}

func TestHandleMessage_Drops(t *testing.T) {
	notFound := &mockReconcile{
		reconcileFn: func(ctx context.Context, orderID string, sig service.Signal) (*service.ReconcileResult, error) {
			return nil, fmt.Errorf("order %s: %w", orderID, service.ErrNotFound)
		},
	}

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"order_id":`},
		{"missing order id", `{"status":"COMPLETED"}`},
		{"unknown status", `{"order_id":"TM1","status":"REFUNDED"}`},
		{"unknown order", `{"order_id":"TM404","status":"COMPLETED"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &ackRecorder{}
			NewPaymentConsumer(notFound).handleMessage(context.Background(), delivery(ack, tt.body))
			assert.Equal(t, 0, ack.acked)
			assert.Equal(t, 1, ack.nacked)
			assert.False(t, ack.requeue)
		})
	}
}

func TestHandleMessage_TransientRequeuesOnce(t *testing.T) {
	rs := &mockReconcile{
		reconcileFn: func(ctx context.Context, orderID string, sig service.Signal) (*service.ReconcileResult, error) {
			return nil, errors.New("connection reset")
		},
	}
	pc := NewPaymentConsumer(rs)
	body := `{"order_id":"TM1","status":"FAILED"}`

	first := &ackRecorder{}
	pc.handleMessage(context.Background(), delivery(first, body))
	assert.True(t, first.requeue)

	second := &ackRecorder{}
	msg := delivery(second, body)
	msg.Redelivered = true
	pc.handleMessage(context.Background(), msg)
	assert.Equal(t, 1, second.nacked)
	assert.False(t, second.requeue)
}

func TestStart_StopsOnCancel(t *testing.T) {
	rs := &mockReconcile{
		reconcileFn: func(ctx context.Context, orderID string, sig service.Signal) (*service.ReconcileResult, error) {
			return &service.ReconcileResult{OrderID: orderID, Outcome: service.OutcomeApplied}, nil
		},
	}
	msgs := make(chan amqp.Delivery, 1)
	ack := &ackRecorder{}
	msgs <- delivery(ack, `{"order_id":"TM1","status":"COMPLETED"}`)

	ctx, cancel := context.WithCancel(context.Background())
	done := NewPaymentConsumer(rs).Start(ctx, msgs)

	require.Eventually(t, func() bool {
		ack.mu.Lock()
		defer ack.mu.Unlock()
		return ack.acked == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
