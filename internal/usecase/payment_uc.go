// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/adapter"
	"aswaq-payments/internal/domain/ports/repository"
	"aswaq-payments/internal/infra/logging"
	"aswaq-payments/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// CheckoutResult is returned to the package-selection UI.
type CheckoutResult struct {
	TrackingSessionID string // empty when the audit row could not be written
	CheckoutURL       string
	Provider          string
	ProviderOrderID   string
}

type PaymentUseCase interface {
	// InitiateCheckout creates a pending intent with the provider and returns the hosted checkout URL.
	// provider may be empty to use the default provider.
	InitiateCheckout(ctx context.Context, purchaser model.Purchaser, packageID, provider string) (*CheckoutResult, error)
}

// CheckoutOptions tunes the checkout initiator.
type CheckoutOptions struct {
	Timeout            time.Duration // bound on the provider call
	DefaultCountryCode string        // for local phone numbers, e.g. "971"
	RateLimit          int           // checkouts per purchaser per window; 0 disables
	RateWindow         time.Duration
	Dev                bool
}

type paymentUC struct {
	sessions  repository.PaymentSessionRepository
	profiles  repository.ProfileRepository
	pricing   PricingUseCase
	providers adapter.ProviderRegistry
	limiter   adapter.RateLimiter
	opts      CheckoutOptions
	log       *zerolog.Logger
	now       func() time.Time
}

// NewPaymentUseCase wires the checkout initiator. profiles and limiter may be nil.
func NewPaymentUseCase(
	sessions repository.PaymentSessionRepository,
	profiles repository.ProfileRepository,
	pricing PricingUseCase,
	providers adapter.ProviderRegistry,
	limiter adapter.RateLimiter,
	opts CheckoutOptions,
	logger *zerolog.Logger,
) *paymentUC {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &paymentUC{
		sessions:  sessions,
		profiles:  profiles,
		pricing:   pricing,
		providers: providers,
		limiter:   limiter,
		opts:      opts,
		log:       logger,
		now:       time.Now,
	}
}

func (u *paymentUC) InitiateCheckout(ctx context.Context, purchaser model.Purchaser, packageID, providerName string) (*CheckoutResult, error) {
	l := logging.With(logging.WithUserID(ctx, purchaser.ID), u.log)

	if !purchaser.Authenticated() {
		metrics.IncCheckout(providerName, "unauthenticated")
		return nil, domain.ErrUnauthenticated
	}

	provider, err := u.provider(providerName)
	if err != nil {
		metrics.IncCheckout(providerName, "unknown_provider")
		return nil, err
	}

	if err := u.checkRate(ctx, purchaser.ID); err != nil {
		metrics.IncCheckout(provider.Name(), "rate_limited")
		return nil, err
	}

	pkg, err := u.pricing.Resolve(ctx, packageID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrFreePackage):
			metrics.IncCheckout(provider.Name(), "free_package")
		case errors.Is(err, domain.ErrPackageNotFound):
			metrics.IncCheckout(provider.Name(), "not_found")
		default:
			metrics.IncCheckout(provider.Name(), "error")
		}
		return nil, err
	}

	var profile *model.Profile
	if u.profiles != nil {
		profile, err = u.profiles.FindByUserID(ctx, repository.NoTX, purchaser.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			// billing data degrades to token claims
			l.Warn().Err(err).Msg("profile lookup failed")
		}
	}
	contact := BuildContact(purchaser, profile, u.opts.DefaultCountryCode)
	merchantOrderID := BuildMerchantOrderID(pkg.ID, purchaser.ID)
	amount := pkg.PriceMinor()

	callCtx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()
	cs, err := provider.CreateCheckoutSession(callCtx, adapter.CheckoutRequest{
		AmountMinor:     amount,
		Currency:        pkg.Currency,
		MerchantOrderID: merchantOrderID,
		Description:     pkg.Name.En,
		Contact:         contact,
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrProviderUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
		}
		if errors.Is(err, domain.ErrProviderUnavailable) {
			metrics.IncCheckout(provider.Name(), "provider_unavailable")
		} else {
			metrics.IncCheckout(provider.Name(), "error")
		}
		l.Error().Err(err).Str("provider", provider.Name()).Str("package_id", pkg.ID).Msg("checkout session creation failed")
		return nil, err
	}

	now := u.now().UTC()
	session := &model.PaymentSession{
		ID:              ulid.Make().String(),
		UserID:          purchaser.ID,
		PackageID:       pkg.ID,
		Provider:        provider.Name(),
		ProviderOrderID: cs.ProviderOrderID,
		MerchantOrderID: merchantOrderID,
		AmountMinor:     amount,
		Currency:        pkg.Currency,
		Status:          model.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	res := &CheckoutResult{
		TrackingSessionID: session.ID,
		CheckoutURL:       cs.CheckoutURL,
		Provider:          provider.Name(),
		ProviderOrderID:   cs.ProviderOrderID,
	}
	// The provider session is valid either way; the tracking row is bookkeeping.
	if err := u.sessions.Save(ctx, repository.NoTX, session); err != nil {
		l.Error().Err(err).
			Str("provider", provider.Name()).
			Str("provider_order_id", cs.ProviderOrderID).
			Str("merchant_order_id", merchantOrderID).
			Msg("failed to persist payment session")
		res.TrackingSessionID = ""
	}

	metrics.IncCheckout(provider.Name(), "created")
	metrics.IncPayment(provider.Name(), string(model.PaymentStatusPending))
	l.Info().
		Str("provider", provider.Name()).
		Str("package_id", pkg.ID).
		Str("provider_order_id", cs.ProviderOrderID).
		Int64("amount_minor", amount).
		Str("currency", pkg.Currency).
		Str("phone", logging.Redact(contact.Phone, u.opts.Dev)).
		Msg("checkout initiated")
	return res, nil
}

func (u *paymentUC) provider(name string) (adapter.PaymentProvider, error) {
	if name == "" {
		if p := u.providers.Default(); p != nil {
			return p, nil
		}
		return nil, domain.ErrUnknownProvider
	}
	return u.providers.Get(name)
}

func (u *paymentUC) checkRate(ctx context.Context, purchaserID string) error {
	if u.limiter == nil || u.opts.RateLimit <= 0 {
		return nil
	}
	ok, err := u.limiter.Allow(ctx, "rate_limit:checkout:"+purchaserID, u.opts.RateLimit, u.opts.RateWindow)
	if err != nil {
		// limiter outage must not block purchases
		u.log.Warn().Err(err).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}
