package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/adapter"
	"aswaq-payments/internal/domain/ports/repository"
	"aswaq-payments/internal/infra/logging"
	"aswaq-payments/internal/infra/metrics"
)

var _ ReconcileUseCase = (*reconcileUC)(nil)

type ReconcileOutcome string

const (
	OutcomeGranted          ReconcileOutcome = "granted"
	OutcomeAlreadyProcessed ReconcileOutcome = "already_processed"
	OutcomePaymentFailed    ReconcileOutcome = "payment_failed"
	OutcomePaymentPending   ReconcileOutcome = "payment_pending"
	OutcomeIgnored          ReconcileOutcome = "ignored"
)

// ReconcileResult is the typed outcome of a reconciliation attempt.
type ReconcileResult struct {
	Outcome          ReconcileOutcome
	Provider         string
	TransactionID    string
	EntitlementID    string
	AlreadyProcessed bool
	FailureReason    string
}

// Success reports whether the purchase is (now or already) fulfilled.
func (r *ReconcileResult) Success() bool {
	return r.Outcome == OutcomeGranted || r.Outcome == OutcomeAlreadyProcessed
}

// Notification is one delivery of a payment outcome. Webhooks carry the raw
// body and signature; server-side fetches carry an already trusted Event.
type Notification struct {
	Source     model.EventSource
	Provider   string
	Body       []byte
	Signature  string
	Event      *model.PaymentEvent
	RemoteAddr string
}

type ReconcileUseCase interface {
	// Reconcile converges a payment notification onto at most one entitlement.
	// Safe to call concurrently and repeatedly for the same transaction.
	Reconcile(ctx context.Context, n Notification) (*ReconcileResult, error)
	// VerifyAndReconcile fetches the payment from the provider by the reference the
	// redirect carried, then reconciles it. Used by the client-side landing page.
	VerifyAndReconcile(ctx context.Context, provider, reference string) (*ReconcileResult, error)
}

// TaskRunner runs work off the request path.
type TaskRunner interface {
	Submit(task func(ctx context.Context) error) error
}

type ReconcileOptions struct {
	FetchTimeout time.Duration
	LockTTL      time.Duration
	Now          func() time.Time
}

type reconcileUC struct {
	entitlements repository.EntitlementRepository
	sessions     repository.PaymentSessionRepository
	pricing      PricingUseCase
	providers    adapter.ProviderRegistry
	locker       adapter.Locker
	notifier     adapter.Notifier
	tasks        TaskRunner
	opts         ReconcileOptions
	log          *zerolog.Logger
}

// NewReconcileUseCase wires the reconciler. locker, notifier and tasks are optional.
func NewReconcileUseCase(
	entitlements repository.EntitlementRepository,
	sessions repository.PaymentSessionRepository,
	pricing PricingUseCase,
	providers adapter.ProviderRegistry,
	locker adapter.Locker,
	notifier adapter.Notifier,
	tasks TaskRunner,
	opts ReconcileOptions,
	logger *zerolog.Logger,
) *reconcileUC {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &reconcileUC{
		entitlements: entitlements,
		sessions:     sessions,
		pricing:      pricing,
		providers:    providers,
		locker:       locker,
		notifier:     notifier,
		tasks:        tasks,
		opts:         opts,
		log:          logger,
	}
}

func (r *reconcileUC) VerifyAndReconcile(ctx context.Context, providerName, reference string) (*ReconcileResult, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: empty payment reference", domain.ErrInvalidArgument)
	}
	p, err := r.providers.Get(providerName)
	if err != nil {
		return nil, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	defer cancel()
	ev, err := p.FetchPayment(fetchCtx, reference)
	if err != nil {
		return nil, err
	}
	return r.Reconcile(ctx, Notification{
		Source:   model.EventSourceClientCallback,
		Provider: p.Name(),
		Event:    ev,
	})
}

func (r *reconcileUC) Reconcile(ctx context.Context, n Notification) (res *ReconcileResult, err error) {
	start := time.Now()
	defer func() {
		metrics.ReconcileDuration.WithLabelValues(string(n.Source)).Observe(time.Since(start).Seconds())
		switch {
		case err == nil:
			metrics.IncReconcile(string(n.Source), string(res.Outcome))
		case IsTerminal(err):
			metrics.IncReconcile(string(n.Source), "rejected")
		default:
			metrics.IncReconcile(string(n.Source), "error")
		}
	}()

	provider, err := r.providers.Get(n.Provider)
	if err != nil {
		return nil, err
	}
	l := r.log.With().Str("provider", provider.Name()).Str("source", string(n.Source)).Logger()

	ev := n.Event
	if n.Source == model.EventSourceWebhook {
		// Nothing is read or written before the signature checks out.
		ev, err = provider.ParseWebhook(n.Body, n.Signature)
		switch {
		case errors.Is(err, domain.ErrAuthenticity):
			metrics.IncWebhookAuthFailure(provider.Name())
			l.Warn().Bool("security", true).Str("remote_addr", n.RemoteAddr).Msg("webhook signature rejected")
			r.notifySuspicious(provider.Name(), n.RemoteAddr)
			return nil, err
		case errors.Is(err, domain.ErrIgnoredEvent):
			l.Debug().Msg("webhook event ignored")
			return &ReconcileResult{Outcome: OutcomeIgnored, Provider: provider.Name()}, nil
		case err != nil:
			l.Warn().Err(err).Msg("webhook payload rejected")
			return nil, err
		}
	}
	if ev == nil {
		return nil, domain.ErrMalformedEvent
	}
	ev.Provider = provider.Name()
	l = l.With().Str("transaction_id", ev.TransactionID).Str("provider_order_id", ev.ProviderOrderID).Logger()

	if !ev.Terminal() {
		return r.recordNonSuccess(ctx, &l, ev), nil
	}
	return r.grant(ctx, &l, ev)
}

// recordNonSuccess is the failure path. It never creates an entitlement.
func (r *reconcileUC) recordNonSuccess(ctx context.Context, l *zerolog.Logger, ev *model.PaymentEvent) *ReconcileResult {
	res := &ReconcileResult{
		Outcome:       OutcomePaymentFailed,
		Provider:      ev.Provider,
		TransactionID: ev.TransactionID,
		FailureReason: ev.FailureReason,
	}
	if ev.Success && ev.Pending {
		res.Outcome = OutcomePaymentPending
	}
	if res.FailureReason == "" {
		if res.Outcome == OutcomePaymentPending {
			res.FailureReason = "payment pending at provider"
		} else {
			res.FailureReason = "payment declined"
		}
	}

	if ev.ProviderOrderID != "" {
		reason := res.FailureReason
		updated, err := r.sessions.UpdateStatus(ctx, repository.NoTX, ev.Provider, ev.ProviderOrderID, model.PaymentStatusFailed, &reason)
		if err != nil {
			l.Error().Err(err).Msg("failed to record payment failure on session")
		} else if updated {
			metrics.IncPayment(ev.Provider, string(model.PaymentStatusFailed))
		}
	}
	l.Info().Str("outcome", string(res.Outcome)).Str("reason", res.FailureReason).Msg("payment not completed")
	return res
}

func (r *reconcileUC) grant(ctx context.Context, l *zerolog.Logger, ev *model.PaymentEvent) (*ReconcileResult, error) {
	if ev.TransactionID == "" {
		return nil, fmt.Errorf("%w: missing transaction id", domain.ErrMalformedEvent)
	}
	if unlock := r.lock(ctx, "reconcile:"+ev.Provider+":"+ev.TransactionID); unlock != nil {
		defer unlock()
	}

	// Fast path. The unique index below is what actually guarantees single creation.
	existing, err := r.entitlements.FindByTransactionID(ctx, repository.NoTX, ev.Provider, ev.TransactionID)
	switch {
	case err == nil && existing != nil:
		r.markCompleted(ctx, l, ev)
		l.Info().Str("entitlement_id", existing.ID).Msg("payment already processed")
		return r.alreadyProcessed(ev, existing), nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("lookup entitlement: %w", err)
	}

	packageID, purchaserID, err := Correlate(ev.MerchantOrderID)
	if err != nil {
		l.Error().Err(err).Str("merchant_order_id", ev.MerchantOrderID).Msg("cannot correlate payment")
		return nil, err
	}
	pkg, err := r.pricing.Lookup(ctx, packageID)
	if err != nil {
		l.Error().Err(err).Str("package_id", packageID).Msg("cannot resolve purchased package")
		return nil, err
	}

	currency := ev.Currency
	if currency == "" {
		currency = pkg.Currency
	}
	if expected := pkg.PriceMinor(); ev.AmountMinor != expected {
		l.Warn().Int64("amount_minor", ev.AmountMinor).Int64("expected_minor", expected).Msg("charged amount differs from package price")
	}

	now := r.opts.Now().UTC()
	ent := &model.Entitlement{
		ID:                     uuid.NewString(),
		UserID:                 purchaserID,
		PackageID:              pkg.ID,
		Provider:               ev.Provider,
		TransactionID:          ev.TransactionID,
		ProviderOrderID:        ev.ProviderOrderID,
		AmountMinor:            ev.AmountMinor,
		Currency:               currency,
		Status:                 model.EntitlementStatusActive,
		ListingsRemaining:      pkg.ListingCount,
		BonusListingsRemaining: pkg.BonusListingCount,
		IsFeatured:             pkg.IsFeatured,
		ActivatedAt:            now,
		ExpiresAt:              model.ExpiresAtFor(now, pkg.ValidityDays),
		CreatedAt:              now,
	}
	if err := r.entitlements.Insert(ctx, repository.NoTX, ent); err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			l.Error().Err(err).Msg("failed to insert entitlement")
			return nil, fmt.Errorf("insert entitlement: %w", err)
		}
		// Lost the race to a concurrent delivery.
		winner, ferr := r.entitlements.FindByTransactionID(ctx, repository.NoTX, ev.Provider, ev.TransactionID)
		if ferr != nil {
			return nil, fmt.Errorf("load concurrent entitlement: %w", ferr)
		}
		r.markCompleted(ctx, l, ev)
		l.Info().Str("entitlement_id", winner.ID).Msg("concurrent delivery already granted entitlement")
		return r.alreadyProcessed(ev, winner), nil
	}

	r.markCompleted(ctx, l, ev)
	metrics.IncPayment(ev.Provider, string(model.PaymentStatusCompleted))
	metrics.AddPaymentRevenue(currency, ev.AmountMinor)
	r.notifyGranted(ent, pkg)

	logging.With(logging.WithUserID(ctx, purchaserID), l).Info().
		Str("entitlement_id", ent.ID).
		Str("package_id", pkg.ID).
		Time("expires_at", ent.ExpiresAt).
		Msg("entitlement granted")
	return &ReconcileResult{
		Outcome:       OutcomeGranted,
		Provider:      ev.Provider,
		TransactionID: ev.TransactionID,
		EntitlementID: ent.ID,
	}, nil
}

func (r *reconcileUC) alreadyProcessed(ev *model.PaymentEvent, e *model.Entitlement) *ReconcileResult {
	return &ReconcileResult{
		Outcome:          OutcomeAlreadyProcessed,
		Provider:         ev.Provider,
		TransactionID:    ev.TransactionID,
		EntitlementID:    e.ID,
		AlreadyProcessed: true,
	}
}

// markCompleted is best-effort: the entitlement is the source of truth.
func (r *reconcileUC) markCompleted(ctx context.Context, l *zerolog.Logger, ev *model.PaymentEvent) {
	if ev.ProviderOrderID == "" {
		return
	}
	updated, err := r.sessions.UpdateStatus(ctx, repository.NoTX, ev.Provider, ev.ProviderOrderID, model.PaymentStatusCompleted, nil)
	if err != nil {
		l.Error().Err(err).Msg("failed to mark payment session completed")
		return
	}
	if !updated {
		l.Debug().Msg("no pending payment session to complete")
	}
}

func (r *reconcileUC) lock(ctx context.Context, key string) func() {
	if r.locker == nil {
		return nil
	}
	token, err := r.locker.TryLock(ctx, key, r.opts.LockTTL)
	if err != nil {
		r.log.Debug().Err(err).Str("key", key).Msg("reconcile lock not acquired; relying on unique index")
		return nil
	}
	return func() {
		// detached: the request context may already be cancelled
		uctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := r.locker.Unlock(uctx, key, token); err != nil {
			r.log.Debug().Err(err).Str("key", key).Msg("reconcile unlock failed")
		}
	}
}

func (r *reconcileUC) notifyGranted(e *model.Entitlement, pkg *model.PurchasablePackage) {
	if r.notifier == nil || r.tasks == nil {
		return
	}
	ent, p := *e, *pkg
	if err := r.tasks.Submit(func(ctx context.Context) error {
		return r.notifier.EntitlementGranted(ctx, &ent, &p)
	}); err != nil {
		metrics.IncNotification("granted", "dropped")
	}
}

func (r *reconcileUC) notifySuspicious(provider, remoteAddr string) {
	if r.notifier == nil || r.tasks == nil {
		return
	}
	if err := r.tasks.Submit(func(ctx context.Context) error {
		return r.notifier.SuspiciousWebhook(ctx, provider, remoteAddr)
	}); err != nil {
		metrics.IncNotification("suspicious", "dropped")
	}
}

// IsTerminal reports whether err is a definitive classification that retrying
// the same delivery cannot change.
func IsTerminal(err error) bool {
	return errors.Is(err, domain.ErrAuthenticity) ||
		errors.Is(err, domain.ErrInvalidCorrelationToken) ||
		errors.Is(err, domain.ErrPackageNotFound) ||
		errors.Is(err, domain.ErrMalformedEvent) ||
		errors.Is(err, domain.ErrUnknownProvider) ||
		errors.Is(err, domain.ErrInvalidArgument)
}
