package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/adapter"
	"aswaq-payments/internal/domain/ports/repository"
	"aswaq-payments/internal/infra/metrics"
	"aswaq-payments/internal/usecase"
)

const expiredReason = "expired"

type SweeperOptions struct {
	Interval    time.Duration // how often to scan
	StaleAfter  time.Duration // how old a pending session must be before we ask the provider
	ExpireAfter time.Duration // after this a session with no payment is marked failed
	BatchSize   int
	CallTimeout time.Duration
	Now         func() time.Time
}

// SweepReport summarises one pass.
type SweepReport struct {
	Scanned      int
	Reconciled   int
	StillPending int
	Expired      int
	Rejected     int
	Errors       int
}

// Sweeper settles payment sessions whose webhook and redirect both went missing.
// It asks the provider for the order's outcome and feeds it through the
// reconciler, so fulfilment stays on the one idempotent path.
type Sweeper struct {
	sessions  repository.PaymentSessionRepository
	providers adapter.ProviderRegistry
	reconcile usecase.ReconcileUseCase
	opts      SweeperOptions
	log       *zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(
	sessions repository.PaymentSessionRepository,
	providers adapter.ProviderRegistry,
	reconcile usecase.ReconcileUseCase,
	opts SweeperOptions,
	logger *zerolog.Logger,
) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 15 * time.Minute
	}
	if opts.ExpireAfter < opts.StaleAfter {
		opts.ExpireAfter = opts.StaleAfter
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Sweeper{
		sessions:  sessions,
		providers: providers,
		reconcile: reconcile,
		opts:      opts,
		log:       logger,
	}
}

// Start runs the sweep loop in the background. Calling it twice has no effect.
func (s *Sweeper) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info().Msg("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	t := time.NewTicker(s.opts.Interval)
	defer func() {
		t.Stop()
		close(done)
	}()
	s.log.Info().Dur("interval", s.opts.Interval).Dur("stale_after", s.opts.StaleAfter).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// RunOnce performs a single pass over stale pending sessions.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	now := s.opts.Now().UTC()

	stale, err := s.sessions.ListPendingOlderThan(ctx, repository.NoTX, now.Add(-s.opts.StaleAfter), s.opts.BatchSize)
	if err != nil {
		return rep, err
	}
	rep.Scanned = len(stale)

	for _, sess := range stale {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		result := s.settle(ctx, sess, now)
		metrics.IncSweeper(result)
		switch result {
		case "reconciled":
			rep.Reconciled++
		case "still_pending":
			rep.StillPending++
		case "expired":
			rep.Expired++
		case "rejected":
			rep.Rejected++
		default:
			rep.Errors++
		}
	}

	if rep.Scanned > 0 {
		s.log.Info().
			Int("scanned", rep.Scanned).
			Int("reconciled", rep.Reconciled).
			Int("still_pending", rep.StillPending).
			Int("expired", rep.Expired).
			Int("rejected", rep.Rejected).
			Int("errors", rep.Errors).
			Msg("sweep finished")
	}
	return rep, nil
}

func (s *Sweeper) settle(ctx context.Context, sess *model.PaymentSession, now time.Time) string {
	l := s.log.With().
		Str("session_id", sess.ID).
		Str("provider", sess.Provider).
		Str("provider_order_id", sess.ProviderOrderID).
		Logger()

	provider, err := s.providers.Get(sess.Provider)
	if err != nil {
		// provider was disabled since checkout; nothing can settle it now
		l.Warn().Err(err).Msg("session provider unavailable")
		return s.expireIfDue(ctx, &l, sess, now)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	ev, err := provider.LookupOrder(callCtx, sess.ProviderOrderID)
	cancel()
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return s.expireIfDue(ctx, &l, sess, now)
	case err != nil:
		// a lookup that never succeeds must not pin the session at the head of the batch
		l.Warn().Err(err).Msg("provider lookup failed")
		if res := s.expireIfDue(ctx, &l, sess, now); res != "still_pending" {
			return res
		}
		return "error"
	case ev.Pending:
		return s.expireIfDue(ctx, &l, sess, now)
	}

	res, err := s.reconcile.Reconcile(ctx, usecase.Notification{
		Source:   model.EventSourceSweeper,
		Provider: provider.Name(),
		Event:    ev,
	})
	if err != nil {
		if usecase.IsTerminal(err) {
			l.Warn().Err(err).Msg("stale session cannot be fulfilled")
			return s.fail(ctx, &l, sess, "rejected: "+err.Error(), "rejected")
		}
		l.Error().Err(err).Msg("sweeper reconcile failed")
		return "error"
	}
	l.Info().Str("outcome", string(res.Outcome)).Msg("stale session reconciled")
	return "reconciled"
}

func (s *Sweeper) expireIfDue(ctx context.Context, l *zerolog.Logger, sess *model.PaymentSession, now time.Time) string {
	if now.Sub(sess.CreatedAt) < s.opts.ExpireAfter {
		return "still_pending"
	}
	return s.fail(ctx, l, sess, expiredReason, "expired")
}

// fail takes the session out of the pending set so it is not rescanned.
func (s *Sweeper) fail(ctx context.Context, l *zerolog.Logger, sess *model.PaymentSession, reason, result string) string {
	changed, err := s.sessions.UpdateStatus(ctx, repository.NoTX, sess.Provider, sess.ProviderOrderID, model.PaymentStatusFailed, &reason)
	if err != nil {
		l.Error().Err(err).Str("reason", reason).Msg("mark session failed")
		return "error"
	}
	if changed {
		l.Info().Str("reason", reason).Msg("pending session marked failed")
	}
	return result
}
