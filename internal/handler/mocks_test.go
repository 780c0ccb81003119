package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/middleware"
	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/Eursukkul/tutor-booking/internal/service"
	"github.com/labstack/echo/v4"
)

// --- Mock BookingService ---

type mockBookingService struct {
	createFn   func(ctx context.Context, caller models.Caller, in service.CreateBatchInput) (*service.BatchResult, error)
	listFn     func(ctx context.Context, caller models.Caller, status *models.BookingStatus) ([]models.Booking, error)
	getOrderFn func(ctx context.Context, caller models.Caller, orderID string) (*service.OrderView, error)
	retryFn    func(ctx context.Context, caller models.Caller, orderID, payerIP string) (*service.CheckoutResult, error)
}

func (m *mockBookingService) CreateBatch(ctx context.Context, caller models.Caller, in service.CreateBatchInput) (*service.BatchResult, error) {
	return m.createFn(ctx, caller, in)
}
func (m *mockBookingService) ListForParent(ctx context.Context, caller models.Caller, status *models.BookingStatus) ([]models.Booking, error) {
	return m.listFn(ctx, caller, status)
}
func (m *mockBookingService) GetOrder(ctx context.Context, caller models.Caller, orderID string) (*service.OrderView, error) {
	return m.getOrderFn(ctx, caller, orderID)
}
func (m *mockBookingService) RetryCheckout(ctx context.Context, caller models.Caller, orderID, payerIP string) (*service.CheckoutResult, error) {
	return m.retryFn(ctx, caller, orderID, payerIP)
}

// --- Mock LifecycleService ---

type mockLifecycleService struct {
	respondFn   func(ctx context.Context, caller models.Caller, bookingID string, action service.TutorAction) (*models.Booking, error)
	completeFn  func(ctx context.Context, caller models.Caller, bookingID string) (*models.Booking, error)
	cancelFn    func(ctx context.Context, caller models.Caller, bookingID string) (*models.Booking, error)
	listFn      func(ctx context.Context, caller models.Caller, status *models.BookingStatus) ([]models.Booking, error)
	statsFn     func(ctx context.Context, caller models.Caller) (*service.TutorStats, error)
	statementFn func(ctx context.Context, caller models.Caller, month string) (*service.Statement, error)
}

func (m *mockLifecycleService) TutorRespond(ctx context.Context, caller models.Caller, bookingID string, action service.TutorAction) (*models.Booking, error) {
	return m.respondFn(ctx, caller, bookingID, action)
}
func (m *mockLifecycleService) TutorComplete(ctx context.Context, caller models.Caller, bookingID string) (*models.Booking, error) {
	return m.completeFn(ctx, caller, bookingID)
}
func (m *mockLifecycleService) ParentCancel(ctx context.Context, caller models.Caller, bookingID string) (*models.Booking, error) {
	return m.cancelFn(ctx, caller, bookingID)
}
func (m *mockLifecycleService) ListForTutor(ctx context.Context, caller models.Caller, status *models.BookingStatus) ([]models.Booking, error) {
	return m.listFn(ctx, caller, status)
}
func (m *mockLifecycleService) Stats(ctx context.Context, caller models.Caller) (*service.TutorStats, error) {
	return m.statsFn(ctx, caller)
}
func (m *mockLifecycleService) MonthlyStatement(ctx context.Context, caller models.Caller, month string) (*service.Statement, error) {
	return m.statementFn(ctx, caller, month)
}

// --- Mock ReconcileService ---

type mockReconcileService struct {
	reconcileFn func(ctx context.Context, orderID string, sig service.Signal) (*service.ReconcileResult, error)
	pollFn      func(ctx context.Context, caller models.Caller, orderID string) (*service.ReconcileResult, error)
	webhookFn   func(ctx context.Context, provider string, raw []byte, signature string) (*service.ReconcileResult, error)
	cancelFn    func(ctx context.Context, caller models.Caller, orderID string) (*service.ReconcileResult, error)
}

func (m *mockReconcileService) Reconcile(ctx context.Context, orderID string, sig service.Signal) (*service.ReconcileResult, error) {
	return m.reconcileFn(ctx, orderID, sig)
}
func (m *mockReconcileService) PollAndReconcile(ctx context.Context, caller models.Caller, orderID string) (*service.ReconcileResult, error) {
	return m.pollFn(ctx, caller, orderID)
}
func (m *mockReconcileService) HandleWebhook(ctx context.Context, provider string, raw []byte, signature string) (*service.ReconcileResult, error) {
	return m.webhookFn(ctx, provider, raw, signature)
}
func (m *mockReconcileService) CancelOrder(ctx context.Context, caller models.Caller, orderID string) (*service.ReconcileResult, error) {
	return m.cancelFn(ctx, caller, orderID)
}
func (m *mockReconcileService) CancelStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	return 0, nil
}
func (m *mockReconcileService) ReplayCompleted(ctx context.Context, limit int) (int, error) {
	return 0, nil
}

// --- Mock QuotaService ---

type mockQuotaService struct {
	checkFn   func(ctx context.Context, caller models.Caller, childID string) (*service.QuotaStatus, error)
	consumeFn func(ctx context.Context, caller models.Caller, childID string) (*service.QuotaStatus, error)
}

func (m *mockQuotaService) Check(ctx context.Context, caller models.Caller, childID string) (*service.QuotaStatus, error) {
	return m.checkFn(ctx, caller, childID)
}
func (m *mockQuotaService) Increment(ctx context.Context, caller models.Caller, childID string) (int64, error) {
	return 0, nil
}
func (m *mockQuotaService) Consume(ctx context.Context, caller models.Caller, childID string) (*service.QuotaStatus, error) {
	return m.consumeFn(ctx, caller, childID)
}

// --- Mock SubscriptionService ---

type mockSubscriptionService struct {
	getFn       func(ctx context.Context, payerID string) (*models.Subscription, error)
	cancelFn    func(ctx context.Context, payerID string) (*models.Subscription, error)
	checkoutFn  func(ctx context.Context, caller models.Caller, target models.Tier, payerIP string) (*service.CheckoutResult, error)
	downgradeFn func(ctx context.Context, payerID string, target models.Tier) error
}

func (m *mockSubscriptionService) Get(ctx context.Context, payerID string) (*models.Subscription, error) {
	return m.getFn(ctx, payerID)
}
func (m *mockSubscriptionService) Upgrade(ctx context.Context, payerID string, target models.Tier) (*models.Subscription, error) {
	return nil, nil
}
func (m *mockSubscriptionService) Cancel(ctx context.Context, payerID string) (*models.Subscription, error) {
	return m.cancelFn(ctx, payerID)
}
func (m *mockSubscriptionService) Downgrade(ctx context.Context, payerID string, target models.Tier) error {
	return m.downgradeFn(ctx, payerID, target)
}
func (m *mockSubscriptionService) StartUpgradeCheckout(ctx context.Context, caller models.Caller, target models.Tier, payerIP string) (*service.CheckoutResult, error) {
	return m.checkoutFn(ctx, caller, target, payerIP)
}

// --- Helpers ---

var (
	parent = models.Caller{ID: "parent-1", Role: models.RoleParent}
	tutor  = models.Caller{ID: "user-tutor-1", Role: models.RoleTutor}
)

// newContext builds an echo context with the validator installed and caller
// already authenticated. A zero caller leaves the request anonymous.
func newContext(method, path, body string, caller models.Caller) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = middleware.NewValidator()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if caller.ID != "" {
		middleware.WithCaller(c, caller)
	}
	return c, rec
}

func withParam(c echo.Context, name, value string) {
	c.SetParamNames(name)
	c.SetParamValues(value)
}

func httpCode(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return 0
}
