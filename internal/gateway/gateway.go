// Package gateway describes the external payment gateway as the service sees
// it: create a checkout, poll its status, and decode pushed webhooks.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSignatureInvalid    = errors.New("webhook signature invalid")
	ErrUpstreamUnavailable = errors.New("payment gateway unavailable")
	ErrUnknownProvider     = errors.New("unknown payment provider")
)

// Status is the gateway's view of a payment, normalised across providers.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type CheckoutRequest struct {
	OrderID     string
	Amount      int64
	Currency    string
	Description string
	PayerIP     string
}

// Checkout is what the payer needs to complete the payment. Providers fill
// in whichever presentation they support.
type Checkout struct {
	Reference   string `json:"reference"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	QRImageURL  string `json:"qr_image_url,omitempty"`
	BankAccount string `json:"bank_account,omitempty"`
	BankName    string `json:"bank_name,omitempty"`
}

type Result struct {
	Status        Status
	TransactionID string
	// Reference is the checkout the status belongs to. Providers that keep a
	// single reference per order leave it empty.
	Reference string
	// Amount is zero when the provider does not report it.
	Amount int64
}

type Event struct {
	OrderID       string
	Status        Status
	TransactionID string
	Reference     string
	Amount        int64
}

type Gateway interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	PollStatus(ctx context.Context, orderID, reference string) (*Result, error)
	DecodeWebhook(raw []byte, signature string) (*Event, error)
}

// Registry holds the configured providers. New checkouts go to the active
// one; webhooks are routed by provider name.
type Registry struct {
	active string
	byName map[string]Gateway
}

func NewRegistry(active string, gateways ...Gateway) (*Registry, error) {
	r := &Registry{active: active, byName: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.byName[g.Name()] = g
	}
	if _, ok := r.byName[active]; !ok {
		return nil, fmt.Errorf("active provider %q: %w", active, ErrUnknownProvider)
	}
	return r, nil
}

func (r *Registry) Active() Gateway {
	return r.byName[r.active]
}

func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", name, ErrUnknownProvider)
	}
	return g, nil
}

// VerifySignature checks a hex HMAC-SHA256 of body. The header may carry
// several comma separated signatures during secret rotation; any match passes.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" || header == "" {
		return ErrSignatureInvalid
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, candidate := range strings.Split(header, ",") {
		got, err := hex.DecodeString(strings.TrimSpace(candidate))
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrSignatureInvalid
}

// Sign is the counterpart of VerifySignature, used by tests and local tools.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
