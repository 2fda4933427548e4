package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*NoopPaymentGateway)(nil)

const ProviderNoop = "noop"

type noopIntent struct {
	merchantOrderID string
	amount          int64
	currency        string
	paid            bool
	txnID           string
}

// NoopPaymentGateway is a simple in-memory provider for dev mode and tests.
// Webhooks are plain JSON events signed with a shared token.
type NoopPaymentGateway struct {
	mu      sync.Mutex
	seq     int64
	token   string
	intents map[string]*noopIntent // order id -> intent
}

func NewNoopPaymentGateway(token string) *NoopPaymentGateway {
	return &NoopPaymentGateway{
		token:   token,
		intents: make(map[string]*noopIntent),
	}
}

func (g *NoopPaymentGateway) Name() string { return ProviderNoop }

func (g *NoopPaymentGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s-%d", prefix, g.seq)
}

func (g *NoopPaymentGateway) CreateCheckoutSession(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	orderID := g.next("noop-order")
	g.intents[orderID] = &noopIntent{merchantOrderID: req.MerchantOrderID, amount: req.AmountMinor, currency: req.Currency}
	return &adapter.CheckoutSession{
		ProviderOrderID: orderID,
		CheckoutURL:     "https://example.test/pay/" + orderID,
	}, nil
}

// Complete marks an order paid, as if the purchaser finished the hosted page,
// and returns the transaction id.
func (g *NoopPaymentGateway) Complete(providerOrderID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[providerOrderID]
	if !ok {
		return "", domain.ErrNotFound
	}
	if !in.paid {
		in.paid = true
		in.txnID = g.next("noop-txn")
	}
	return in.txnID, nil
}

func (g *NoopPaymentGateway) ExtractSignature(header http.Header, query url.Values) string {
	return header.Get("X-Noop-Token")
}

// ParseWebhook accepts {"order_id": "..."} for an order previously completed.
func (g *NoopPaymentGateway) ParseWebhook(body []byte, signature string) (*model.PaymentEvent, error) {
	if g.token == "" || signature != g.token {
		return nil, domain.ErrAuthenticity
	}
	var in struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(body, &in); err != nil || in.OrderID == "" {
		return nil, domain.ErrMalformedEvent
	}
	return g.LookupOrder(context.Background(), in.OrderID)
}

func (g *NoopPaymentGateway) FetchPayment(ctx context.Context, reference string) (*model.PaymentEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for orderID, in := range g.intents {
		if in.paid && in.txnID == reference {
			return g.event(orderID, in), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (g *NoopPaymentGateway) LookupOrder(ctx context.Context, providerOrderID string) (*model.PaymentEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[providerOrderID]
	if !ok || !in.paid {
		return nil, domain.ErrNotFound
	}
	return g.event(providerOrderID, in), nil
}

func (g *NoopPaymentGateway) event(orderID string, in *noopIntent) *model.PaymentEvent {
	return &model.PaymentEvent{
		Provider:        ProviderNoop,
		TransactionID:   in.txnID,
		ProviderOrderID: orderID,
		MerchantOrderID: in.merchantOrderID,
		AmountMinor:     in.amount,
		Currency:        in.currency,
		Success:         true,
		OccurredAt:      time.Now().UTC(),
	}
}
