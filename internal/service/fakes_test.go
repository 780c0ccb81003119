package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/gateway"
	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/Eursukkul/tutor-booking/internal/repository"
	"gorm.io/gorm"
)

// --- In-memory store shared by the fake repositories ---

type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	bookings map[string]models.Booking
	orders   map[string]models.PaymentOrder
	bindings map[string][]string
	subs     map[string]models.Subscription
	usage    map[string]int64
	tutors   map[string]models.Tutor
	children map[string]models.Child
}

func newMemStore() *memStore {
	return &memStore{
		bookings: map[string]models.Booking{},
		orders:   map[string]models.PaymentOrder{},
		bindings: map[string][]string{},
		subs:     map[string]models.Subscription{},
		usage:    map[string]int64{},
		tutors:   map[string]models.Tutor{},
		children: map[string]models.Child{},
	}
}

type snapshot struct {
	bookings map[string]models.Booking
	orders   map[string]models.PaymentOrder
	bindings map[string][]string
	subs     map[string]models.Subscription
	tutors   map[string]models.Tutor
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		bookings: copyMap(s.bookings),
		orders:   copyMap(s.orders),
		bindings: copyMap(s.bindings),
		subs:     copyMap(s.subs),
		tutors:   copyMap(s.tutors),
	}
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = snap.bookings
	s.orders = snap.orders
	s.bindings = snap.bindings
	s.subs = snap.subs
	s.tutors = snap.tutors
}

// Transaction serialises callers and rolls the store back when fn fails.
func (s *memStore) Transaction(_ context.Context, fn func(tx *gorm.DB) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) booking(id string) models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookings[id]
}

func (s *memStore) order(id string) models.PaymentOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

// --- BookingRepository ---

type fakeBookingRepo struct {
	s           *memStore
	createErrFn func() error
}

var _ repository.BookingRepository = (*fakeBookingRepo)(nil)

func (r *fakeBookingRepo) CreateBatch(_ context.Context, _ *gorm.DB, bookings []models.Booking) error {
	if r.createErrFn != nil {
		if err := r.createErrFn(); err != nil {
			return err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range bookings {
		r.s.bookings[b.ID] = b
	}
	return nil
}

func (r *fakeBookingRepo) FindByID(_ context.Context, _ *gorm.DB, id string) (*models.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &b, nil
}

func (r *fakeBookingRepo) FindByIDs(_ context.Context, _ *gorm.DB, ids []string) ([]models.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Booking
	for _, id := range ids {
		if b, ok := r.s.bookings[id]; ok {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *fakeBookingRepo) filter(keep func(models.Booking) bool) []models.Booking {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Booking
	for _, b := range r.s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (r *fakeBookingRepo) ListByParent(_ context.Context, parentID string, status *models.BookingStatus) ([]models.Booking, error) {
	r.s.mu.Lock()
	children := copyMap(r.s.children)
	r.s.mu.Unlock()
	return r.filter(func(b models.Booking) bool {
		c, ok := children[b.ChildID]
		return ok && c.ParentID == parentID && (status == nil || b.Status == *status)
	}), nil
}

func (r *fakeBookingRepo) ListByTutor(_ context.Context, tutorID string, status *models.BookingStatus) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool {
		if b.TutorID != tutorID {
			return false
		}
		if status == nil {
			return b.Status != models.StatusPendingPayment
		}
		return b.Status == *status
	}), nil
}

func (r *fakeBookingRepo) ListCompletedByTutor(_ context.Context, tutorID string, from, to time.Time) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool {
		return b.TutorID == tutorID && b.Status == models.StatusCompleted &&
			!b.ScheduledAt.Before(from) && b.ScheduledAt.Before(to)
	}), nil
}

func (r *fakeBookingRepo) TransitionStatus(_ context.Context, _ *gorm.DB, id string, from, to models.BookingStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	r.s.bookings[id] = b
	return true, nil
}

func (r *fakeBookingRepo) TransitionMany(ctx context.Context, tx *gorm.DB, ids []string, from, to models.BookingStatus) (int64, error) {
	var n int64
	for _, id := range ids {
		ok, _ := r.TransitionStatus(ctx, tx, id, from, to)
		if ok {
			n++
		}
	}
	return n, nil
}

func (r *fakeBookingRepo) CompletedTotals(_ context.Context, tutorID string) (*repository.CompletedTotals, error) {
	var t repository.CompletedTotals
	for _, b := range r.filter(func(b models.Booking) bool {
		return b.TutorID == tutorID && b.Status == models.StatusCompleted
	}) {
		t.Sessions++
		t.GrossAmount += b.TotalAmount
		t.PlatformFees += b.PlatformFee
	}
	return &t, nil
}

// --- OrderRepository ---

type fakeOrderRepo struct {
	s *memStore
}

var _ repository.OrderRepository = (*fakeOrderRepo)(nil)

func (r *fakeOrderRepo) Create(_ context.Context, _ *gorm.DB, order *models.PaymentOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	o := *order
	o.Bindings = nil
	r.s.orders[order.OrderID] = o
	return nil
}

func (r *fakeOrderRepo) BindBookings(_ context.Context, _ *gorm.DB, orderID string, bookingIDs []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.bindings[orderID] = append([]string(nil), bookingIDs...)
	return nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, _ *gorm.DB, orderID string) (*models.PaymentOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	for i, id := range r.s.bindings[orderID] {
		o.Bindings = append(o.Bindings, models.OrderBooking{OrderID: orderID, BookingID: id, Position: i})
	}
	return &o, nil
}

func (r *fakeOrderRepo) SetGatewayRef(_ context.Context, orderID, provider, ref string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o := r.s.orders[orderID]
	o.GatewayProvider = &provider
	o.GatewayRef = &ref
	r.s.orders[orderID] = o
	return nil
}

func (r *fakeOrderRepo) CompleteIfPending(_ context.Context, _ *gorm.DB, orderID string, txn *string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok || o.Status != models.OrderPending {
		return false, nil
	}
	o.Status = models.OrderCompleted
	o.GatewayTransactionID = txn
	o.CompletedAt = &at
	r.s.orders[orderID] = o
	return true, nil
}

func (r *fakeOrderRepo) CancelIfPending(_ context.Context, _ *gorm.DB, orderID, reason string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok || o.Status != models.OrderPending {
		return false, nil
	}
	o.Status = models.OrderCancelled
	o.CancelReason = &reason
	r.s.orders[orderID] = o
	return true, nil
}

func (r *fakeOrderRepo) FlagForReview(_ context.Context, orderID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok || o.Status != models.OrderPending {
		return false, nil
	}
	o.NeedsReview = true
	r.s.orders[orderID] = o
	return true, nil
}

func (r *fakeOrderRepo) ListStalePending(_ context.Context, before time.Time, limit int) ([]models.PaymentOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.PaymentOrder
	for _, o := range r.s.orders {
		if o.Status == models.OrderPending && !o.NeedsReview && o.CreatedAt.Before(before) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeOrderRepo) ListCompletedWithUnpaidBookings(_ context.Context, limit int) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for id, o := range r.s.orders {
		if o.Status != models.OrderCompleted {
			continue
		}
		for _, bid := range r.s.bindings[id] {
			if r.s.bookings[bid].Status == models.StatusPendingPayment {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// --- SubscriptionRepository ---

type fakeSubRepo struct {
	s *memStore
}

var _ repository.SubscriptionRepository = (*fakeSubRepo)(nil)

func (r *fakeSubRepo) GetOrCreate(_ context.Context, _ *gorm.DB, payerID string) (*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subs[payerID]
	if !ok {
		sub = models.Subscription{PayerID: payerID, Tier: models.TierFree, Status: models.SubActive}
		r.s.subs[payerID] = sub
	}
	return &sub, nil
}

func (r *fakeSubRepo) FindForUpdate(_ context.Context, _ *gorm.DB, payerID string) (*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subs[payerID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &sub, nil
}

func (r *fakeSubRepo) Save(_ context.Context, _ *gorm.DB, sub *models.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.subs[sub.PayerID] = *sub
	return nil
}

// --- UsageRepository ---

type fakeUsageRepo struct {
	s *memStore
}

func (r *fakeUsageRepo) Get(_ context.Context, childID, day string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.usage[childID+"|"+day], nil
}

func (r *fakeUsageRepo) Increment(_ context.Context, childID, day string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.usage[childID+"|"+day]++
	return r.s.usage[childID+"|"+day], nil
}

func (r *fakeUsageRepo) IncrementIfBelow(_ context.Context, childID, day string, limit int64) (int64, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := childID + "|" + day
	if r.s.usage[key] >= limit {
		return r.s.usage[key], false, nil
	}
	r.s.usage[key]++
	return r.s.usage[key], true, nil
}

// --- ProfileRepository ---

type fakeProfileRepo struct {
	s *memStore
}

var _ repository.ProfileRepository = (*fakeProfileRepo)(nil)

func (r *fakeProfileRepo) FindTutorByID(_ context.Context, id string) (*models.Tutor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tutors[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (r *fakeProfileRepo) FindTutorByUserID(_ context.Context, userID string) (*models.Tutor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tutors {
		if t.UserID == userID {
			return &t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeProfileRepo) FindChildByID(_ context.Context, id string) (*models.Child, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.children[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *fakeProfileRepo) IncrementTutorSessions(_ context.Context, _ *gorm.DB, tutorID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t := r.s.tutors[tutorID]
	t.TotalSessions++
	r.s.tutors[tutorID] = t
	return nil
}

// --- Gateway ---

type mockGateway struct {
	name       string
	checkoutFn func(ctx context.Context, req gateway.CheckoutRequest) (*gateway.Checkout, error)
	pollFn     func(ctx context.Context, orderID, reference string) (*gateway.Result, error)
	decodeFn   func(raw []byte, signature string) (*gateway.Event, error)
}

func (m *mockGateway) Name() string { return m.name }

func (m *mockGateway) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.Checkout, error) {
	if m.checkoutFn == nil {
		return &gateway.Checkout{Reference: "ref-" + req.OrderID, QRImageURL: "https://qr.example/" + req.OrderID}, nil
	}
	return m.checkoutFn(ctx, req)
}

func (m *mockGateway) PollStatus(ctx context.Context, orderID, reference string) (*gateway.Result, error) {
	if m.pollFn == nil {
		return &gateway.Result{Status: gateway.StatusPending}, nil
	}
	return m.pollFn(ctx, orderID, reference)
}

func (m *mockGateway) DecodeWebhook(raw []byte, signature string) (*gateway.Event, error) {
	return m.decodeFn(raw, signature)
}

func newRegistry(gw *mockGateway) *gateway.Registry {
	reg, err := gateway.NewRegistry(gw.name, gw)
	if err != nil {
		panic(err)
	}
	return reg
}

// --- Publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	routes []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes = append(p.routes, routingKey)
	return p.err
}

func (p *recordingPublisher) Routes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.routes...)
}

// --- Fixture ---

type fixture struct {
	store     *memStore
	bookings  *fakeBookingRepo
	orders    *fakeOrderRepo
	subs      *fakeSubRepo
	usage     *fakeUsageRepo
	profiles  *fakeProfileRepo
	gw        *mockGateway
	publisher *recordingPublisher
	now       time.Time
}

var hcm = time.FixedZone("ICT", 7*3600)

func newFixture() *fixture {
	s := newMemStore()
	s.tutors["tutor-1"] = models.Tutor{ID: "tutor-1", UserID: "user-tutor-1", DisplayName: "Ms. Lan", HourlyRate: 100000}
	s.tutors["tutor-2"] = models.Tutor{ID: "tutor-2", UserID: "user-tutor-2", DisplayName: "Mr. Minh", HourlyRate: 80000}
	s.children["child-1"] = models.Child{ID: "child-1", ParentID: "parent-1", DisplayName: "An"}
	s.children["child-2"] = models.Child{ID: "child-2", ParentID: "parent-2", DisplayName: "Binh"}

	return &fixture{
		store:     s,
		bookings:  &fakeBookingRepo{s: s},
		orders:    &fakeOrderRepo{s: s},
		subs:      &fakeSubRepo{s: s},
		usage:     &fakeUsageRepo{s: s},
		profiles:  &fakeProfileRepo{s: s},
		gw:        &mockGateway{name: "mock"},
		publisher: &recordingPublisher{},
		now:       time.Date(2026, 3, 1, 9, 0, 0, 0, hcm),
	}
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) bookingService() *bookingService {
	svc := NewBookingService(f.store, f.bookings, f.orders, f.profiles, newRegistry(f.gw), f.publisher, BookingOptions{
		PlatformFeePercent: 20,
		Currency:           "VND",
		Location:           hcm,
	}).(*bookingService)
	svc.now = f.clock
	return svc
}

func (f *fixture) subscriptionService() *subscriptionService {
	svc := NewSubscriptionService(f.store, f.subs, f.orders, newRegistry(f.gw), SubscriptionOptions{
		Currency: "VND",
		Prices:   map[models.Tier]int64{models.TierBasic: 99000, models.TierPremium: 199000},
	}).(*subscriptionService)
	svc.now = f.clock
	return svc
}

func (f *fixture) reconcileService() *reconcileService {
	svc := NewReconcileService(f.store, f.orders, f.bookings, f.subscriptionService(), newRegistry(f.gw), f.publisher).(*reconcileService)
	svc.now = f.clock
	return svc
}

func (f *fixture) lifecycleService() *lifecycleService {
	svc := NewLifecycleService(f.store, f.bookings, f.profiles, f.publisher, hcm).(*lifecycleService)
	svc.now = f.clock
	return svc
}

func (f *fixture) quotaService() *quotaService {
	svc := NewQuotaService(f.profiles, f.subs, f.usage, QuotaLimits{
		models.TierFree:  10,
		models.TierBasic: 50,
	}, hcm).(*quotaService)
	svc.now = f.clock
	return svc
}

var (
	parent1 = models.Caller{ID: "parent-1", Role: models.RoleParent}
	parent2 = models.Caller{ID: "parent-2", Role: models.RoleParent}
	tutor1  = models.Caller{ID: "user-tutor-1", Role: models.RoleTutor}
	tutor2  = models.Caller{ID: "user-tutor-2", Role: models.RoleTutor}
)

// threeSessions books the reference batch: 100000/h, 90 minutes, three dates.
func (f *fixture) threeSessions() CreateBatchInput {
	return CreateBatchInput{
		ChildID:         "child-1",
		TutorID:         "tutor-1",
		Dates:           []string{"2026-03-12", "2026-03-05", "2026-03-19"},
		TimeOfDay:       "17:30",
		DurationMinutes: 90,
		PayerIP:         "203.0.113.7",
	}
}
