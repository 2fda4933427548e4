package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*StripeGateway)(nil)

const ProviderStripe = "stripe"

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// Backend overrides the API backend; tests point it at httptest.
	Backend stripe.Backend
}

// StripeGateway implements adapter.PaymentProvider with Stripe Checkout in payment mode.
type StripeGateway struct {
	sessions      *checkoutsession.Client
	webhookSecret string
	successURL    string
	cancelURL     string
	log           *zerolog.Logger
}

func NewStripeGateway(cfg StripeConfig, logger *zerolog.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key empty")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("stripe webhook secret empty")
	}
	backend := cfg.Backend
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("provider", ProviderStripe).Logger()
	return &StripeGateway{
		sessions:      &checkoutsession.Client{B: backend, Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		log:           &l,
	}, nil
}

func (s *StripeGateway) Name() string { return ProviderStripe }

func (s *StripeGateway) CreateCheckoutSession(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.MerchantOrderID),
		SuccessURL:        stripe.String(withSessionPlaceholder(s.successURL)),
		CancelURL:         stripe.String(s.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(req.AmountMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(orNA(req.Description)),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"merchant_order_id": req.MerchantOrderID},
		},
	}
	if req.Contact.Email != "" {
		params.CustomerEmail = stripe.String(req.Contact.Email)
	}
	params.AddMetadata("merchant_order_id", req.MerchantOrderID)
	params.Context = ctx

	cs, err := s.sessions.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return &adapter.CheckoutSession{ProviderOrderID: cs.ID, CheckoutURL: cs.URL}, nil
}

func (s *StripeGateway) ExtractSignature(header http.Header, _ url.Values) string {
	return header.Get("Stripe-Signature")
}

func (s *StripeGateway) ParseWebhook(body []byte, signature string) (*model.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(body, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthenticity, err)
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
	default:
		s.log.Debug().Str("type", string(event.Type)).Msg("stripe event ignored")
		return nil, domain.ErrIgnoredEvent
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	ev := eventFromCheckoutSession(&cs)
	if event.Created > 0 {
		ev.OccurredAt = time.Unix(event.Created, 0).UTC()
	}
	switch event.Type {
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		ev.Success, ev.Pending = false, false
		ev.FailureReason = "async payment failed"
	case stripe.EventTypeCheckoutSessionExpired:
		ev.Success, ev.Pending = false, false
		ev.FailureReason = "checkout session expired"
	}
	return ev, nil
}

// FetchPayment loads a checkout session by id (the {CHECKOUT_SESSION_ID} in the success URL).
func (s *StripeGateway) FetchPayment(ctx context.Context, reference string) (*model.PaymentEvent, error) {
	if !strings.HasPrefix(reference, "cs_") {
		return nil, fmt.Errorf("%w: not a checkout session id", domain.ErrInvalidArgument)
	}
	cs, err := s.getSession(ctx, reference)
	if err != nil {
		return nil, err
	}
	return eventFromCheckoutSession(cs), nil
}

func (s *StripeGateway) LookupOrder(ctx context.Context, providerOrderID string) (*model.PaymentEvent, error) {
	cs, err := s.getSession(ctx, providerOrderID)
	if err != nil {
		return nil, err
	}
	if cs.Status == stripe.CheckoutSessionStatusOpen {
		return nil, domain.ErrNotFound
	}
	ev := eventFromCheckoutSession(cs)
	if cs.Status == stripe.CheckoutSessionStatusExpired {
		ev.Success, ev.Pending = false, false
		ev.FailureReason = "checkout session expired"
	}
	return ev, nil
}

func (s *StripeGateway) getSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	cs, err := s.sessions.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return cs, nil
}

// eventFromCheckoutSession maps a session onto a PaymentEvent. The payment
// intent id is the transaction id; unpaid sessions fall back to the session id.
func eventFromCheckoutSession(cs *stripe.CheckoutSession) *model.PaymentEvent {
	txnID := cs.ID
	if cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
		txnID = cs.PaymentIntent.ID
	}
	ev := &model.PaymentEvent{
		Provider:        ProviderStripe,
		TransactionID:   txnID,
		ProviderOrderID: cs.ID,
		MerchantOrderID: cs.ClientReferenceID,
		AmountMinor:     cs.AmountTotal,
		Currency:        strings.ToUpper(string(cs.Currency)),
		OccurredAt:      time.Unix(cs.Created, 0).UTC(),
	}
	if ev.MerchantOrderID == "" && cs.Metadata != nil {
		ev.MerchantOrderID = cs.Metadata["merchant_order_id"]
	}
	switch cs.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		ev.Success = true
	case stripe.CheckoutSessionPaymentStatusUnpaid:
		// completed sessions paid by delayed methods stay unpaid until async_payment_succeeded
		ev.Success, ev.Pending = true, true
	}
	return ev
}

func mapStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == http.StatusNotFound:
			return fmt.Errorf("stripe: %w", domain.ErrNotFound)
		case se.HTTPStatusCode >= 500 || se.HTTPStatusCode == http.StatusTooManyRequests:
			return &ProviderHTTPError{Provider: ProviderStripe, Status: se.HTTPStatusCode, Body: se.Msg}
		}
	}
	return fmt.Errorf("stripe: %w", err)
}

func withSessionPlaceholder(u string) string {
	if u == "" || strings.Contains(u, "{CHECKOUT_SESSION_ID}") {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "session_id={CHECKOUT_SESSION_ID}"
}
