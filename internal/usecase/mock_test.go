//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/adapter"
	"aswaq-payments/internal/domain/ports/repository"
)

// ---- Mock PackageRepository ----

type MockPackageRepo struct {
	mu   sync.Mutex
	data map[string]*model.PurchasablePackage

	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.PurchasablePackage, error)
}

var _ repository.PackageRepository = (*MockPackageRepo)(nil)

func NewMockPackageRepo(pkgs ...*model.PurchasablePackage) *MockPackageRepo {
	r := &MockPackageRepo{data: map[string]*model.PurchasablePackage{}}
	for _, p := range pkgs {
		cp := *p
		r.data[p.ID] = &cp
	}
	return r
}

func (r *MockPackageRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PurchasablePackage, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MockPackageRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.PurchasablePackage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PurchasablePackage
	for _, p := range r.data {
		if p.IsActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Mock PaymentSessionRepository ----

type MockSessionRepo struct {
	mu   sync.Mutex
	data map[string]*model.PaymentSession // by provider|providerOrderID

	SaveFunc         func(ctx context.Context, tx repository.Tx, s *model.PaymentSession) error
	UpdateStatusFunc func(ctx context.Context, tx repository.Tx, provider, orderID string, status model.PaymentStatus, errMsg *string) (bool, error)

	calls int32
}

var _ repository.PaymentSessionRepository = (*MockSessionRepo)(nil)

func NewMockSessionRepo() *MockSessionRepo {
	return &MockSessionRepo{data: map[string]*model.PaymentSession{}}
}

func sessionKey(provider, orderID string) string { return provider + "|" + orderID }

func (r *MockSessionRepo) Calls() int { return int(atomic.LoadInt32(&r.calls)) }

func (r *MockSessionRepo) Get(provider, orderID string) *model.PaymentSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[sessionKey(provider, orderID)]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (r *MockSessionRepo) Save(ctx context.Context, tx repository.Tx, s *model.PaymentSession) error {
	atomic.AddInt32(&r.calls, 1)
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.data[sessionKey(s.Provider, s.ProviderOrderID)] = &cp
	return nil
}

func (r *MockSessionRepo) FindByProviderOrderID(ctx context.Context, tx repository.Tx, provider, orderID string) (*model.PaymentSession, error) {
	atomic.AddInt32(&r.calls, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[sessionKey(provider, orderID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MockSessionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, provider, orderID string, status model.PaymentStatus, errMsg *string) (bool, error) {
	atomic.AddInt32(&r.calls, 1)
	if r.UpdateStatusFunc != nil {
		return r.UpdateStatusFunc(ctx, tx, provider, orderID, status, errMsg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[sessionKey(provider, orderID)]
	if !ok {
		return false, nil
	}
	if s.Status != model.PaymentStatusPending && s.Status != status {
		return false, nil
	}
	s.Status = status
	s.ErrorMessage = errMsg
	s.UpdatedAt = time.Now()
	return true, nil
}

func (r *MockSessionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PaymentSession
	for _, s := range r.data {
		if s.Status == model.PaymentStatusPending && s.CreatedAt.Before(olderThan) {
			cp := *s
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// ---- Mock EntitlementRepository ----

// MockEntitlementRepo enforces uniqueness on (provider, transaction_id) like the real table.
type MockEntitlementRepo struct {
	mu   sync.Mutex
	data map[string]*model.Entitlement

	InsertFunc func(ctx context.Context, tx repository.Tx, e *model.Entitlement) error

	inserts int32
	calls   int32
}

var _ repository.EntitlementRepository = (*MockEntitlementRepo)(nil)

func NewMockEntitlementRepo() *MockEntitlementRepo {
	return &MockEntitlementRepo{data: map[string]*model.Entitlement{}}
}

func (r *MockEntitlementRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *MockEntitlementRepo) Calls() int { return int(atomic.LoadInt32(&r.calls)) }

func (r *MockEntitlementRepo) All() []*model.Entitlement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Entitlement, 0, len(r.data))
	for _, e := range r.data {
		cp := *e
		out = append(out, &cp)
	}
	return out
}

func (r *MockEntitlementRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, provider, txnID string) (*model.Entitlement, error) {
	atomic.AddInt32(&r.calls, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.data[provider+"|"+txnID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *MockEntitlementRepo) Insert(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	atomic.AddInt32(&r.calls, 1)
	atomic.AddInt32(&r.inserts, 1)
	if r.InsertFunc != nil {
		return r.InsertFunc(ctx, tx, e)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := e.Provider + "|" + e.TransactionID
	if _, ok := r.data[key]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *e
	r.data[key] = &cp
	return nil
}

// ---- Mock ProfileRepository ----

type MockProfileRepo struct {
	Profiles map[string]*model.Profile
	Err      error
}

func (r *MockProfileRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID string) (*model.Profile, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	if p, ok := r.Profiles[userID]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

// ---- Mock PaymentProvider ----

type MockProvider struct {
	NameValue string

	CreateFunc func(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error)
	ParseFunc  func(body []byte, sig string) (*model.PaymentEvent, error)
	FetchFunc  func(ctx context.Context, ref string) (*model.PaymentEvent, error)
	LookupFunc func(ctx context.Context, orderID string) (*model.PaymentEvent, error)

	LastRequest adapter.CheckoutRequest
}

var _ adapter.PaymentProvider = (*MockProvider)(nil)

func (m *MockProvider) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

func (m *MockProvider) CreateCheckoutSession(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	m.LastRequest = req
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	return &adapter.CheckoutSession{ProviderOrderID: "order-1", CheckoutURL: "https://pay.example/checkout/order-1"}, nil
}

func (m *MockProvider) ExtractSignature(header http.Header, query url.Values) string {
	return header.Get("X-Signature")
}

func (m *MockProvider) ParseWebhook(body []byte, sig string) (*model.PaymentEvent, error) {
	if m.ParseFunc != nil {
		return m.ParseFunc(body, sig)
	}
	return nil, domain.ErrMalformedEvent
}

func (m *MockProvider) FetchPayment(ctx context.Context, ref string) (*model.PaymentEvent, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, ref)
	}
	return nil, domain.ErrNotFound
}

func (m *MockProvider) LookupOrder(ctx context.Context, orderID string) (*model.PaymentEvent, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, orderID)
	}
	return nil, domain.ErrNotFound
}

// ---- Mock ProviderRegistry ----

type MockRegistry struct {
	providers map[string]adapter.PaymentProvider
	def       adapter.PaymentProvider
}

func NewMockRegistry(ps ...adapter.PaymentProvider) *MockRegistry {
	r := &MockRegistry{providers: map[string]adapter.PaymentProvider{}}
	for i, p := range ps {
		r.providers[p.Name()] = p
		if i == 0 {
			r.def = p
		}
	}
	return r
}

func (r *MockRegistry) Get(name string) (adapter.PaymentProvider, error) {
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	return nil, domain.ErrUnknownProvider
}

func (r *MockRegistry) Default() adapter.PaymentProvider { return r.def }

// ---- Mock RateLimiter ----

type MockLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	Err    error
}

func NewMockLimiter() *MockLimiter { return &MockLimiter{counts: map[string]int{}} }

func (l *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.Err != nil {
		return false, l.Err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key]++
	return l.counts[key] <= limit, nil
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", errors.New("locked")
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// ---- Mock Notifier + inline task runner ----

type MockNotifier struct {
	mu         sync.Mutex
	Granted    []string
	Suspicious []string
}

func (n *MockNotifier) EntitlementGranted(ctx context.Context, e *model.Entitlement, pkg *model.PurchasablePackage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Granted = append(n.Granted, e.ID)
	return nil
}

func (n *MockNotifier) SuspiciousWebhook(ctx context.Context, provider, remoteAddr string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Suspicious = append(n.Suspicious, provider)
	return nil
}

func (n *MockNotifier) GrantedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Granted)
}

// inlineRunner runs submitted tasks synchronously.
type inlineRunner struct{}

func (inlineRunner) Submit(task func(ctx context.Context) error) error {
	return task(context.Background())
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
