// Package omise takes payment through Omise PromptPay charges.
package omise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Eursukkul/tutor-booking/internal/gateway"
	omisego "github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

const (
	Name        = "omise"
	sourceType  = "promptpay"
	metaOrderID = "order_id"
	chargeEvent = "charge.complete"
)

type Config struct {
	PublicKey     string
	SecretKey     string
	WebhookSecret string
	ReturnURI     string
}

type Gateway struct {
	cfg    Config
	client *omisego.Client
}

func New(cfg Config) (*Gateway, error) {
	client, err := omisego.NewClient(cfg.PublicKey, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	client.SetDebug(false)
	return &Gateway{cfg: cfg, client: client}, nil
}

func (g *Gateway) Name() string { return Name }

func (g *Gateway) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.Checkout, error) {
	currency := strings.ToLower(req.Currency)

	src := &omisego.Source{}
	if err := g.client.Do(src, &operations.CreateSource{
		Type:     sourceType,
		Amount:   req.Amount,
		Currency: currency,
	}); err != nil {
		return nil, fmt.Errorf("create source for %s: %v: %w", req.OrderID, err, gateway.ErrUpstreamUnavailable)
	}

	ch := &omisego.Charge{}
	if err := g.client.Do(ch, &operations.CreateCharge{
		Amount:      req.Amount,
		Currency:    currency,
		Source:      src.ID,
		Description: req.Description,
		ReturnURI:   g.cfg.ReturnURI,
		Metadata: map[string]interface{}{
			metaOrderID: req.OrderID,
			"payer_ip":  req.PayerIP,
		},
	}); err != nil {
		return nil, fmt.Errorf("create charge for %s: %v: %w", req.OrderID, err, gateway.ErrUpstreamUnavailable)
	}

	logrus.WithFields(logrus.Fields{
		"order_id":  req.OrderID,
		"charge_id": ch.ID,
		"status":    string(ch.Status),
	}).Info("omise charge created")

	return &gateway.Checkout{
		Reference:   ch.ID,
		CheckoutURL: ch.AuthorizeURI,
		QRImageURL:  scannableImage(ch),
	}, nil
}

func (g *Gateway) PollStatus(ctx context.Context, orderID, reference string) (*gateway.Result, error) {
	if reference == "" {
		return &gateway.Result{Status: gateway.StatusPending}, nil
	}

	ch := &omisego.Charge{}
	if err := g.client.Do(ch, &operations.RetrieveCharge{ChargeID: reference}); err != nil {
		return nil, fmt.Errorf("retrieve charge %s: %v: %w", reference, err, gateway.ErrUpstreamUnavailable)
	}

	if got := cast.ToString(ch.Metadata[metaOrderID]); got != "" && got != orderID {
		return nil, fmt.Errorf("charge %s belongs to order %s, not %s", reference, got, orderID)
	}

	return &gateway.Result{
		Status:        mapChargeStatus(string(ch.Status)),
		TransactionID: ch.ID,
		Reference:     ch.ID,
		Amount:        ch.Amount,
	}, nil
}

type webhookEnvelope struct {
	ID   string          `json:"id"`
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

func (g *Gateway) DecodeWebhook(raw []byte, signature string) (*gateway.Event, error) {
	if err := gateway.VerifySignature(g.cfg.WebhookSecret, raw, signature); err != nil {
		return nil, err
	}
	return decodeEvent(raw)
}

func decodeEvent(raw []byte) (*gateway.Event, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode omise event: %w", err)
	}
	if env.Key != chargeEvent {
		return nil, fmt.Errorf("omise event %s: unsupported key %q", env.ID, env.Key)
	}

	var ch omisego.Charge
	if err := json.Unmarshal(env.Data, &ch); err != nil {
		return nil, fmt.Errorf("decode omise charge: %w", err)
	}

	orderID := cast.ToString(ch.Metadata[metaOrderID])
	if orderID == "" {
		return nil, errors.New("omise charge without order_id metadata")
	}

	return &gateway.Event{
		OrderID:       orderID,
		Status:        mapChargeStatus(string(ch.Status)),
		TransactionID: ch.ID,
		Reference:     ch.ID,
		Amount:        ch.Amount,
	}, nil
}

// Omise charge states: pending, successful, failed, expired, reversed.
func mapChargeStatus(s string) gateway.Status {
	switch s {
	case "successful":
		return gateway.StatusCompleted
	case "failed", "expired", "reversed":
		return gateway.StatusFailed
	default:
		return gateway.StatusPending
	}
}

// scannableImage digs the PromptPay QR out of the charge source. The SDK
// types do not cover every source field, so go through JSON.
func scannableImage(ch *omisego.Charge) string {
	if ch == nil || ch.Source == nil {
		return ""
	}
	raw, err := json.Marshal(ch.Source)
	if err != nil {
		return ""
	}
	var src struct {
		ScannableCode struct {
			Image struct {
				DownloadURI string `json:"download_uri"`
			} `json:"image"`
		} `json:"scannable_code"`
	}
	if err := json.Unmarshal(raw, &src); err != nil {
		return ""
	}
	return src.ScannableCode.Image.DownloadURI
}
