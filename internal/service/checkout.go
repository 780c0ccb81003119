package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Eursukkul/tutor-booking/internal/gateway"
	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/Eursukkul/tutor-booking/internal/repository"
	"github.com/sirupsen/logrus"
)

// GatewayRegistry resolves payment providers. *gateway.Registry satisfies it.
type GatewayRegistry interface {
	Active() gateway.Gateway
	Get(name string) (gateway.Gateway, error)
}

// CheckoutResult is what a payer needs to pay an order.
type CheckoutResult struct {
	OrderID     string            `json:"order_id"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	Checkout    *gateway.Checkout `json:"checkout,omitempty"`
}

// startCheckout asks the active provider for a checkout and records its
// reference on the order. On failure the order stays PENDING and the result
// still carries the order id so the caller can retry.
func startCheckout(
	ctx context.Context,
	gateways GatewayRegistry,
	orders repository.OrderRepository,
	order *models.PaymentOrder,
	description, payerIP string,
) (*CheckoutResult, error) {
	result := &CheckoutResult{
		OrderID:     order.OrderID,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Description: description,
	}

	gw := gateways.Active()
	co, err := gw.CreateCheckout(ctx, gateway.CheckoutRequest{
		OrderID:     order.OrderID,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Description: description,
		PayerIP:     payerIP,
	})
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"order_id": order.OrderID,
			"provider": gw.Name(),
		}).Warn("checkout creation failed, order left pending")
		if !errors.Is(err, gateway.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%v: %w", err, gateway.ErrUpstreamUnavailable)
		}
		return result, err
	}

	if err := orders.SetGatewayRef(ctx, order.OrderID, gw.Name(), co.Reference); err != nil {
		return result, fmt.Errorf("store gateway reference for %s: %w", order.OrderID, err)
	}
	provider, ref := gw.Name(), co.Reference
	order.GatewayProvider = &provider
	order.GatewayRef = &ref

	result.Checkout = co
	return result, nil
}

// ensureCheckoutGone refuses a new checkout while the order's current one can
// still be paid. Only a checkout that was never created, or that the provider
// reports as failed or cancelled, may be replaced.
func ensureCheckoutGone(ctx context.Context, gateways GatewayRegistry, order *models.PaymentOrder) error {
	if order.GatewayRef == nil || *order.GatewayRef == "" {
		return nil
	}
	ref := *order.GatewayRef

	gw, err := gatewayFor(gateways, order)
	if err != nil {
		return err
	}
	res, err := gw.PollStatus(ctx, order.OrderID, ref)
	if err != nil {
		if !errors.Is(err, gateway.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%v: %w", err, gateway.ErrUpstreamUnavailable)
		}
		return fmt.Errorf("check checkout %s: %w", ref, err)
	}

	switch res.Status {
	case gateway.StatusFailed, gateway.StatusCancelled:
		return nil
	case gateway.StatusCompleted:
		return fmt.Errorf("order %s is paid on checkout %s, refresh its status: %w", order.OrderID, ref, ErrInvalidState)
	default:
		return fmt.Errorf("order %s checkout %s is still open: %w", order.OrderID, ref, ErrInvalidState)
	}
}

// gatewayFor returns the provider that issued the order's checkout, falling
// back to the active one for orders that never got that far.
func gatewayFor(gateways GatewayRegistry, order *models.PaymentOrder) (gateway.Gateway, error) {
	if order.GatewayProvider == nil || *order.GatewayProvider == "" {
		return gateways.Active(), nil
	}
	return gateways.Get(*order.GatewayProvider)
}

func ownsOrder(caller models.Caller, order *models.PaymentOrder) bool {
	return caller.IsAdmin() || order.PayerID == caller.ID
}
