//go:build !integration

package usecase_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/repository"
	"aswaq-payments/internal/infra/adapters/payment"
	"aswaq-payments/internal/usecase"
)

const paymobTestSecret = "paymob-hmac-secret"

// paymobCallback renders a Paymob transaction callback for order 217503754.
func paymobCallback(t *testing.T, amountCents int, success bool) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"type": "TRANSACTION",
		"obj": map[string]any{
			"id":                     192036465,
			"pending":                false,
			"amount_cents":           amountCents,
			"success":                success,
			"is_auth":                false,
			"is_capture":             false,
			"is_standalone_payment":  true,
			"is_voided":              false,
			"is_refunded":            false,
			"is_3d_secure":           true,
			"integration_id":         4417,
			"has_parent_transaction": false,
			"created_at":             "2025-01-01T10:00:00.000000",
			"currency":               "AED",
			"error_occured":          false,
			"owner":                  302852,
			"order":                  map[string]any{"id": 217503754, "merchant_order_id": "pkg-gold_user-1"},
			"source_data":            map[string]any{"pan": "2346", "sub_type": "MasterCard", "type": "card"},
		},
	})
	if err != nil {
		t.Fatalf("marshal callback: %v", err)
	}
	return body
}

// paymobSignature signs the callback fields in Paymob's documented order.
func paymobSignature(amountCents int, success bool) string {
	msg := fmt.Sprintf("%d2025-01-01T10:00:00.000000AEDfalsefalse1920364654417truefalsefalsefalsetruefalse217503754302852false2346MasterCardcard%t",
		amountCents, success)
	mac := hmac.New(sha512.New, []byte(paymobTestSecret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

func newPaymobReconciler(t *testing.T) (usecase.ReconcileUseCase, *reconcileTestDeps) {
	t.Helper()
	gw, err := payment.NewPaymobGateway(payment.PaymobConfig{
		BaseURL:       "https://paymob.test",
		SecretKey:     "sk_test",
		PublicKey:     "pk_test",
		APIKey:        "api_key_test",
		HMACSecret:    paymobTestSecret,
		IntegrationID: 4417,
	}, nil)
	if err != nil {
		t.Fatalf("NewPaymobGateway: %v", err)
	}
	deps := newReconcileDeps()
	_ = deps.sessions.Save(context.Background(), repository.NoTX, &model.PaymentSession{
		ID:              "sess-paymob",
		UserID:          "user-1",
		PackageID:       "pkg-gold",
		Provider:        payment.ProviderPaymob,
		ProviderOrderID: "217503754",
		MerchantOrderID: "pkg-gold_user-1",
		AmountMinor:     9950,
		Currency:        "AED",
		Status:          model.PaymentStatusPending,
		CreatedAt:       fixedNow.Add(-time.Hour),
	})
	deps.sessions.calls = 0
	uc := usecase.NewReconcileUseCase(
		deps.entitlements, deps.sessions, usecase.NewPricingUseCase(deps.packages, newTestLogger()),
		NewMockRegistry(gw), deps.locker, deps.notifier, inlineRunner{},
		usecase.ReconcileOptions{Now: func() time.Time { return fixedNow }},
		newTestLogger(),
	)
	return uc, deps
}

func TestReconcile_PaymobTamperedCallbackGrantsNothing(t *testing.T) {
	cases := []struct {
		name string
		body []byte
		sig  string
	}{
		{"declined payment flipped to success", paymobCallback(t, 9950, true), paymobSignature(9950, false)},
		{"amount lowered after signing", paymobCallback(t, 100, true), paymobSignature(9950, true)},
		{"forged signature", paymobCallback(t, 9950, true), hex.EncodeToString([]byte("forged"))},
		{"no signature", paymobCallback(t, 9950, true), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			uc, deps := newPaymobReconciler(t)

			// --- Act ---
			_, err := uc.Reconcile(context.Background(), usecase.Notification{
				Source: model.EventSourceWebhook, Provider: payment.ProviderPaymob,
				Body: tc.body, Signature: tc.sig, RemoteAddr: "198.51.100.7",
			})

			// --- Assert ---
			if !errors.Is(err, domain.ErrAuthenticity) {
				t.Fatalf("expected ErrAuthenticity, got %v", err)
			}
			if deps.entitlements.Count() != 0 || deps.entitlements.Calls() != 0 {
				t.Fatalf("tampered callback touched entitlements (count=%d calls=%d)",
					deps.entitlements.Count(), deps.entitlements.Calls())
			}
			if s := deps.sessions.Get(payment.ProviderPaymob, "217503754"); s.Status != model.PaymentStatusPending {
				t.Errorf("session must stay pending, got %s", s.Status)
			}
			if len(deps.notifier.Suspicious) != 1 {
				t.Errorf("expected a suspicious-webhook notice, got %d", len(deps.notifier.Suspicious))
			}
		})
	}
}

func TestReconcile_PaymobSignedCallbackGrantsOnce(t *testing.T) {
	uc, deps := newPaymobReconciler(t)
	n := usecase.Notification{
		Source: model.EventSourceWebhook, Provider: payment.ProviderPaymob,
		Body: paymobCallback(t, 9950, true), Signature: paymobSignature(9950, true),
	}

	first, err := uc.Reconcile(context.Background(), n)
	if err != nil {
		t.Fatalf("signed callback: %v", err)
	}
	second, err := uc.Reconcile(context.Background(), n)
	if err != nil {
		t.Fatalf("redelivered callback: %v", err)
	}

	if first.Outcome != usecase.OutcomeGranted || first.TransactionID != "192036465" {
		t.Fatalf("unexpected first result %+v", first)
	}
	if !second.AlreadyProcessed || second.EntitlementID != first.EntitlementID {
		t.Fatalf("redelivery must return the same entitlement, got %+v", second)
	}
	if deps.entitlements.Count() != 1 {
		t.Fatalf("expected one entitlement, got %d", deps.entitlements.Count())
	}
	if s := deps.sessions.Get(payment.ProviderPaymob, "217503754"); s.Status != model.PaymentStatusCompleted {
		t.Errorf("expected session completed, got %s", s.Status)
	}
}
