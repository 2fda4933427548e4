package adapter

import (
	"context"
	"net/http"
	"net/url"

	"aswaq-payments/internal/domain/model"
)

// CheckoutRequest is the provider-agnostic input for creating a hosted checkout.
type CheckoutRequest struct {
	AmountMinor     int64
	Currency        string
	MerchantOrderID string
	Description     string
	Contact         model.Contact
}

// CheckoutSession is what the provider hands back for redirecting the purchaser.
type CheckoutSession struct {
	ProviderOrderID string
	CheckoutURL     string
}

// PaymentProvider is the hex port for payment providers. Everything provider
// specific (signature scheme, field names, request shapes) lives behind it.
type PaymentProvider interface {
	Name() string

	// CreateCheckoutSession registers a pending payment intent with the provider.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// ExtractSignature pulls the webhook signature from wherever the provider puts it.
	ExtractSignature(header http.Header, query url.Values) string

	// ParseWebhook verifies authenticity before touching the payload.
	// Returns domain.ErrAuthenticity, domain.ErrIgnoredEvent or domain.ErrMalformedEvent.
	ParseWebhook(body []byte, signature string) (*model.PaymentEvent, error)

	// FetchPayment loads a payment from the provider API by the reference the
	// client-side redirect carries (transaction id, checkout session id).
	FetchPayment(ctx context.Context, reference string) (*model.PaymentEvent, error)

	// LookupOrder returns the latest transaction for a provider order, or
	// domain.ErrNotFound when the purchaser never submitted payment.
	LookupOrder(ctx context.Context, providerOrderID string) (*model.PaymentEvent, error)
}

// ProviderRegistry resolves providers by name.
type ProviderRegistry interface {
	Get(name string) (PaymentProvider, error)
	Default() PaymentProvider
}
