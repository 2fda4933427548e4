// File: internal/infra/adapters/payment/paymob_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*PaymobGateway)(nil)

const ProviderPaymob = "paymob"

type PaymobConfig struct {
	BaseURL       string // e.g. https://uae.paymob.com
	SecretKey     string // intention API
	PublicKey     string // unified checkout
	APIKey        string // auth tokens for transaction lookups
	HMACSecret    string
	IntegrationID int
	NotifyURL     string
	RedirectURL   string
}

// PaymobGateway implements adapter.PaymentProvider using the Intention API for
// checkout and the acceptance API for server-side transaction lookups.
type PaymobGateway struct {
	cfg    PaymobConfig
	client *http.Client
	log    *zerolog.Logger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewPaymobGateway(cfg PaymobConfig, logger *zerolog.Logger) (*PaymobGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("paymob secret key empty")
	}
	if cfg.HMACSecret == "" {
		return nil, errors.New("paymob hmac secret empty")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid paymob base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("provider", ProviderPaymob).Logger()
	return &PaymobGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: 20 * time.Second},
		log:    &l,
	}, nil
}

func (g *PaymobGateway) Name() string { return ProviderPaymob }

// CreateCheckoutSession registers an intention and returns the unified checkout URL.
func (g *PaymobGateway) CreateCheckoutSession(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}
	name := truncate(req.Description, 50)
	payload := map[string]any{
		"amount":   req.AmountMinor,
		"currency": strings.ToUpper(req.Currency),
		"items": []map[string]any{{
			"name":        orNA(name),
			"amount":      req.AmountMinor,
			"description": orNA(req.Description),
			"quantity":    1,
		}},
		"billing_data": map[string]string{
			"first_name":   orNA(req.Contact.FirstName),
			"last_name":    orNA(req.Contact.LastName),
			"email":        orNA(req.Contact.Email),
			"phone_number": orNA(req.Contact.Phone),
			"apartment":    "NA",
			"floor":        "NA",
			"street":       "NA",
			"building":     "NA",
			"city":         "NA",
			"country":      "NA",
		},
		"special_reference": req.MerchantOrderID,
	}
	if g.cfg.IntegrationID > 0 {
		payload["payment_methods"] = []int{g.cfg.IntegrationID}
	}
	if g.cfg.NotifyURL != "" {
		payload["notification_url"] = g.cfg.NotifyURL
	}
	if g.cfg.RedirectURL != "" {
		payload["redirection_url"] = g.cfg.RedirectURL
	}

	var out struct {
		ID               string `json:"id"`
		ClientSecret     string `json:"client_secret"`
		IntentionOrderID int64  `json:"intention_order_id"`
	}
	if err := g.doJSON(ctx, http.MethodPost, "/v1/intention/", "Token "+g.cfg.SecretKey, payload, &out); err != nil {
		return nil, err
	}
	if out.ClientSecret == "" || out.IntentionOrderID == 0 {
		return nil, errors.New("paymob intention response missing client_secret or order id")
	}

	q := url.Values{}
	q.Set("publicKey", g.cfg.PublicKey)
	q.Set("clientSecret", out.ClientSecret)
	return &adapter.CheckoutSession{
		ProviderOrderID: strconv.FormatInt(out.IntentionOrderID, 10),
		CheckoutURL:     g.cfg.BaseURL + "/unifiedcheckout/?" + q.Encode(),
	}, nil
}

// ExtractSignature reads X-Signature, falling back to the hmac query parameter
// Paymob appends to processed callbacks.
func (g *PaymobGateway) ExtractSignature(header http.Header, query url.Values) string {
	if s := header.Get("X-Signature"); s != "" {
		return s
	}
	return query.Get("hmac")
}

func (g *PaymobGateway) ParseWebhook(body []byte, signature string) (*model.PaymentEvent, error) {
	if !VerifyHMAC(body, signature, g.cfg.HMACSecret) {
		return nil, domain.ErrAuthenticity
	}
	if t := gjson.GetBytes(body, "type").String(); t != "" && !strings.EqualFold(t, "TRANSACTION") {
		return nil, domain.ErrIgnoredEvent
	}
	return eventFromPaymobTransaction(gjson.GetBytes(body, "obj"))
}

// FetchPayment loads a transaction by id. reference is the numeric transaction
// id Paymob appends to the redirect URL.
func (g *PaymobGateway) FetchPayment(ctx context.Context, reference string) (*model.PaymentEvent, error) {
	if _, err := strconv.ParseInt(reference, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: paymob transaction id must be numeric", domain.ErrInvalidArgument)
	}
	token, err := g.authToken(ctx)
	if err != nil {
		return nil, err
	}
	var raw []byte
	if err := g.doJSON(ctx, http.MethodGet, "/api/acceptance/transactions/"+reference, "Bearer "+token, nil, &raw); err != nil {
		return nil, err
	}
	return eventFromPaymobTransaction(gjson.ParseBytes(raw))
}

// LookupOrder asks Paymob for the transaction attached to an order.
func (g *PaymobGateway) LookupOrder(ctx context.Context, providerOrderID string) (*model.PaymentEvent, error) {
	orderID, err := strconv.ParseInt(providerOrderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: paymob order id must be numeric", domain.ErrInvalidArgument)
	}
	token, err := g.authToken(ctx)
	if err != nil {
		return nil, err
	}
	var raw []byte
	if err := g.doJSON(ctx, http.MethodPost, "/api/ecommerce/orders/transaction_inquiry", "Bearer "+token, map[string]any{"order_id": orderID}, &raw); err != nil {
		return nil, err
	}
	txn := gjson.ParseBytes(raw)
	if !txn.Get("id").Exists() {
		return nil, domain.ErrNotFound
	}
	return eventFromPaymobTransaction(txn)
}

func (g *PaymobGateway) authToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.token != "" && time.Now().Before(g.tokenExp) {
		t := g.token
		g.mu.Unlock()
		return t, nil
	}
	g.mu.Unlock()

	if g.cfg.APIKey == "" {
		return "", errors.New("paymob api key not configured: transaction lookups disabled")
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := g.doJSON(ctx, http.MethodPost, "/api/auth/tokens", "", map[string]string{"api_key": g.cfg.APIKey}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("paymob auth returned empty token")
	}
	g.mu.Lock()
	// tokens live for an hour
	g.token, g.tokenExp = out.Token, time.Now().Add(50*time.Minute)
	g.mu.Unlock()
	return out.Token, nil
}

// doJSON sends in as JSON and decodes the response into out. A *[]byte out
// receives the raw body.
func (g *PaymobGateway) doJSON(ctx context.Context, method, path, auth string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("paymob %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paymob read body: %w", err)
	}
	g.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("paymob call")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("paymob %s: %w", path, domain.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &ProviderHTTPError{Provider: ProviderPaymob, Status: resp.StatusCode, Body: truncate(string(raw), 256)}
	}
	switch o := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*o = raw
		return nil
	default:
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("paymob decode %s: %w", path, err)
		}
		return nil
	}
}

// eventFromPaymobTransaction maps a Paymob transaction object onto a PaymentEvent.
func eventFromPaymobTransaction(obj gjson.Result) (*model.PaymentEvent, error) {
	if !obj.IsObject() {
		return nil, domain.ErrMalformedEvent
	}
	id := obj.Get("id").String()
	if id == "" {
		return nil, fmt.Errorf("%w: transaction id missing", domain.ErrMalformedEvent)
	}
	merchantOrderID := obj.Get("order.merchant_order_id").String()
	if merchantOrderID == "" {
		merchantOrderID = obj.Get("special_reference").String()
	}
	success := obj.Get("success").Bool() && !obj.Get("is_voided").Bool() && !obj.Get("is_refunded").Bool()
	ev := &model.PaymentEvent{
		Provider:        ProviderPaymob,
		TransactionID:   id,
		ProviderOrderID: obj.Get("order.id").String(),
		MerchantOrderID: merchantOrderID,
		AmountMinor:     obj.Get("amount_cents").Int(),
		Currency:        strings.ToUpper(obj.Get("currency").String()),
		Success:         success,
		Pending:         obj.Get("pending").Bool(),
		OccurredAt:      parsePaymobTime(obj.Get("created_at").String()),
	}
	if !ev.Success {
		ev.FailureReason = obj.Get("data.message").String()
		if ev.FailureReason == "" && obj.Get("is_voided").Bool() {
			ev.FailureReason = "voided"
		}
		if ev.FailureReason == "" && obj.Get("is_refunded").Bool() {
			ev.FailureReason = "refunded"
		}
	}
	return ev, nil
}

func parsePaymobTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

// ProviderHTTPError is a non-2xx answer from a provider API.
type ProviderHTTPError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderHTTPError) Error() string {
	return fmt.Sprintf("%s http %d: %s", e.Provider, e.Status, e.Body)
}

// Temporary reports whether retrying later could succeed.
func (e *ProviderHTTPError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "NA"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
