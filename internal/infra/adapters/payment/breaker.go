package payment

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/adapter"
	"aswaq-payments/internal/infra/metrics"
)

var _ adapter.PaymentProvider = (*BreakerProvider)(nil)

type BreakerSettings struct {
	MaxFailures uint32        // consecutive failures before opening
	OpenTimeout time.Duration // how long the circuit stays open
}

// BreakerProvider guards outbound provider calls with a circuit breaker.
// Webhook parsing is local and passes straight through.
type BreakerProvider struct {
	inner adapter.PaymentProvider
	cb    *gobreaker.CircuitBreaker[any]
	log   *zerolog.Logger
}

func WithBreaker(inner adapter.PaymentProvider, st BreakerSettings, logger *zerolog.Logger) *BreakerProvider {
	if st.MaxFailures == 0 {
		st.MaxFailures = 5
	}
	if st.OpenTimeout <= 0 {
		st.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	b := &BreakerProvider{inner: inner, log: logger}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.MaxFailures
		},
		IsSuccessful: func(err error) bool { return !isUnavailable(err) },
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			metrics.SetCircuitState(name, int(to))
		},
	})
	metrics.SetCircuitState(inner.Name(), int(gobreaker.StateClosed))
	return b
}

func (b *BreakerProvider) Name() string { return b.inner.Name() }

// State exposes the breaker state for health reporting.
func (b *BreakerProvider) State() gobreaker.State { return b.cb.State() }

func (b *BreakerProvider) CreateCheckoutSession(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	res, err := b.call(ctx, "create_checkout", func() (any, error) {
		return b.inner.CreateCheckoutSession(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*adapter.CheckoutSession), nil
}

func (b *BreakerProvider) ExtractSignature(header http.Header, query url.Values) string {
	return b.inner.ExtractSignature(header, query)
}

func (b *BreakerProvider) ParseWebhook(body []byte, signature string) (*model.PaymentEvent, error) {
	return b.inner.ParseWebhook(body, signature)
}

func (b *BreakerProvider) FetchPayment(ctx context.Context, reference string) (*model.PaymentEvent, error) {
	res, err := b.call(ctx, "fetch_payment", func() (any, error) {
		return b.inner.FetchPayment(ctx, reference)
	})
	if err != nil {
		return nil, err
	}
	return res.(*model.PaymentEvent), nil
}

func (b *BreakerProvider) LookupOrder(ctx context.Context, providerOrderID string) (*model.PaymentEvent, error) {
	res, err := b.call(ctx, "lookup_order", func() (any, error) {
		return b.inner.LookupOrder(ctx, providerOrderID)
	})
	if err != nil {
		return nil, err
	}
	return res.(*model.PaymentEvent), nil
}

func (b *BreakerProvider) call(ctx context.Context, op string, fn func() (any, error)) (any, error) {
	start := time.Now()
	res, err := b.cb.Execute(fn)
	metrics.ObserveProviderCall(b.inner.Name(), op, time.Since(start), err == nil)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %s circuit open", domain.ErrProviderUnavailable, b.inner.Name())
	case isUnavailable(err) && !errors.Is(err, domain.ErrProviderUnavailable):
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	default:
		return nil, err
	}
}

// isUnavailable reports failures that say the provider is unhealthy rather
// than that the request was wrong.
func isUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var he *ProviderHTTPError
	if errors.As(err, &he) {
		return he.Temporary()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
