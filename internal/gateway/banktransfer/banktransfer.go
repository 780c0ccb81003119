// Package banktransfer settles orders by direct bank transfer. The payer scans
// a VietQR code whose memo carries the order id; the bank feed later reports
// the incoming transfer by webhook or by lookup.
package banktransfer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/gateway"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/valyala/fasthttp"
)

const (
	Name        = "banktransfer"
	qrImageBase = "https://img.vietqr.io/image"
	transferIn  = "in"
	defaultWait = 10 * time.Second
)

var orderIDPattern = regexp.MustCompile(`TM[0-9A-F]{16}`)

type Config struct {
	APIBase       string
	APIKey        string
	WebhookSecret string
	BIN           string
	Account       string
	AccountName   string
	BankName      string
	Timeout       time.Duration
}

type Gateway struct {
	cfg    Config
	client *fasthttp.Client
}

func New(cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultWait
	}
	return &Gateway{
		cfg: cfg,
		client: &fasthttp.Client{
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		},
	}
}

func (g *Gateway) Name() string { return Name }

// CreateCheckout needs no round trip: the QR image is rendered by VietQR from
// the account, amount and memo.
func (g *Gateway) CreateCheckout(_ context.Context, req gateway.CheckoutRequest) (*gateway.Checkout, error) {
	q := url.Values{}
	q.Set("amount", cast.ToString(req.Amount))
	q.Set("addInfo", req.OrderID)
	q.Set("accountName", g.cfg.AccountName)

	qr := fmt.Sprintf("%s/%s-%s-compact2.png?%s", qrImageBase, g.cfg.BIN, g.cfg.Account, q.Encode())

	return &gateway.Checkout{
		Reference:   req.OrderID,
		QRImageURL:  qr,
		BankAccount: g.cfg.Account,
		BankName:    g.cfg.BankName,
	}, nil
}

type transactionResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Amount        any    `json:"amount"`
}

func (g *Gateway) PollStatus(ctx context.Context, orderID, _ string) (*gateway.Result, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(strings.TrimRight(g.cfg.APIBase, "/") + "/transactions?reference=" + url.QueryEscape(orderID))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	timeout := g.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	if err := g.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, fmt.Errorf("poll %s: %v: %w", orderID, err, gateway.ErrUpstreamUnavailable)
	}

	switch code := resp.StatusCode(); {
	case code == fasthttp.StatusNotFound:
		return &gateway.Result{Status: gateway.StatusPending}, nil
	case code >= 500:
		return nil, fmt.Errorf("poll %s: status %d: %w", orderID, code, gateway.ErrUpstreamUnavailable)
	case code != fasthttp.StatusOK:
		return nil, fmt.Errorf("poll %s: unexpected status %d", orderID, code)
	}

	var body transactionResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}

	return &gateway.Result{
		Status:        mapStatus(body.Status),
		TransactionID: body.TransactionID,
		Amount:        cast.ToInt64(body.Amount),
	}, nil
}

func mapStatus(s string) gateway.Status {
	switch strings.ToLower(s) {
	case "paid", "success", "successful", "completed":
		return gateway.StatusCompleted
	case "expired", "failed", "rejected":
		return gateway.StatusFailed
	case "cancelled", "canceled":
		return gateway.StatusCancelled
	default:
		return gateway.StatusPending
	}
}

// webhookPayload is the bank feed's transfer notification. Numeric fields
// arrive as numbers or strings depending on the feed version.
type webhookPayload struct {
	ID             any    `json:"id"`
	Content        string `json:"content"`
	TransferType   string `json:"transferType"`
	TransferAmount any    `json:"transferAmount"`
	ReferenceCode  string `json:"referenceCode"`
}

func (g *Gateway) DecodeWebhook(raw []byte, signature string) (*gateway.Event, error) {
	if err := gateway.VerifySignature(g.cfg.WebhookSecret, raw, signature); err != nil {
		return nil, err
	}

	var p webhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode bank webhook: %w", err)
	}

	orderID := orderIDPattern.FindString(strings.ToUpper(p.Content))
	if orderID == "" {
		return nil, fmt.Errorf("bank webhook %v: no order id in memo %q", p.ID, p.Content)
	}

	status := gateway.StatusPending
	if strings.EqualFold(p.TransferType, transferIn) {
		status = gateway.StatusCompleted
	}

	txn := p.ReferenceCode
	if txn == "" {
		txn = cast.ToString(p.ID)
	}

	logrus.WithFields(logrus.Fields{
		"order_id": orderID,
		"txn":      txn,
	}).Debug("bank transfer webhook decoded")

	return &gateway.Event{
		OrderID:       orderID,
		Status:        status,
		TransactionID: txn,
		Amount:        cast.ToInt64(p.TransferAmount),
	}, nil
}
