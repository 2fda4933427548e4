package api

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/infra/logging"
	"aswaq-payments/internal/usecase"
)

type PackageDTO struct {
	ID                string              `json:"id"`
	Name              model.LocalizedText `json:"name"`
	Price             string              `json:"price"`
	PriceMinor        int64               `json:"price_minor"`
	Currency          string              `json:"currency"`
	ValidityDays      int                 `json:"validity_days"`
	ListingCount      int                 `json:"listing_count"`
	BonusListingCount int                 `json:"bonus_listing_count"`
	BonusDurationDays int                 `json:"bonus_duration_days"`
	IsFeatured        bool                `json:"is_featured"`
	Family            string              `json:"family"`
}

func toPackageDTO(p *model.PurchasablePackage) PackageDTO {
	return PackageDTO{
		ID:                p.ID,
		Name:              p.Name,
		Price:             p.Price.StringFixed(model.CurrencyExponent(p.Currency)),
		PriceMinor:        p.PriceMinor(),
		Currency:          p.Currency,
		ValidityDays:      p.ValidityDays,
		ListingCount:      p.ListingCount,
		BonusListingCount: p.BonusListingCount,
		BonusDurationDays: p.BonusDurationDays,
		IsFeatured:        p.IsFeatured,
		Family:            string(p.Family),
	}
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := s.pricing.ListActive(r.Context())
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Msg("list packages failed")
		s.writeUseCaseError(w, r, err)
		return
	}
	items := make([]PackageDTO, 0, len(pkgs))
	for _, p := range pkgs {
		items = append(items, toPackageDTO(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type CheckoutRequest struct {
	PackageID string `json:"package_id" validate:"required,max=64"`
	Provider  string `json:"provider" validate:"omitempty,alpha,max=32"`
}

type CheckoutResponse struct {
	TrackingSessionID string `json:"tracking_session_id,omitempty"`
	CheckoutURL       string `json:"checkout_url"`
	Provider          string `json:"provider"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !s.decode(w, r, &req) {
		return
	}
	purchaser, _ := PurchaserFrom(r.Context())

	res, err := s.payments.InitiateCheckout(r.Context(), purchaser, req.PackageID, req.Provider)
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CheckoutResponse{
		TrackingSessionID: res.TrackingSessionID,
		CheckoutURL:       res.CheckoutURL,
		Provider:          res.Provider,
	})
}

type VerifyRequest struct {
	Provider  string `json:"provider" validate:"required,alpha,max=32"`
	Reference string `json:"reference" validate:"required,max=128"`
}

type VerifyResponse struct {
	Success          bool   `json:"success"`
	AlreadyProcessed bool   `json:"already_processed"`
	EntitlementID    string `json:"entitlement_id,omitempty"`
	Status           string `json:"status"`
	Error            string `json:"error,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	l := logging.With(r.Context(), s.log)

	res, err := s.reconcile.VerifyAndReconcile(r.Context(), req.Provider, req.Reference)
	if err != nil {
		if !usecase.IsTerminal(err) {
			l.Error().Err(err).Str("provider", req.Provider).Msg("payment verification failed")
		}
		s.writeUseCaseError(w, r, err)
		return
	}
	out := VerifyResponse{
		Success:          res.Success(),
		AlreadyProcessed: res.AlreadyProcessed,
		EntitlementID:    res.EntitlementID,
		Status:           string(res.Outcome),
	}
	if !out.Success {
		out.Error = res.FailureReason
	}
	writeJSON(w, http.StatusOK, out)
}

// handleWebhook acknowledges anything retrying cannot change and returns 5xx
// only for transient failures, so the provider redelivers exactly those.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	l := logging.With(r.Context(), s.log)
	provider, err := s.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_provider", "unknown provider", false)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "payload too large", false)
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "unreadable body", false)
		return
	}

	res, err := s.reconcile.Reconcile(r.Context(), usecase.Notification{
		Source:     model.EventSourceWebhook,
		Provider:   provider.Name(),
		Body:       body,
		Signature:  provider.ExtractSignature(r.Header, r.URL.Query()),
		RemoteAddr: remoteIP(r),
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"received":          true,
			"status":            string(res.Outcome),
			"already_processed": res.AlreadyProcessed,
		})
	case errors.Is(err, domain.ErrAuthenticity):
		writeError(w, http.StatusUnauthorized, "invalid_signature", "signature verification failed", false)
	case usecase.IsTerminal(err):
		l.Warn().Err(err).Str("provider", provider.Name()).Msg("webhook acknowledged without fulfilment")
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "status": "rejected"})
	default:
		l.Error().Err(err).Str("provider", provider.Name()).Msg("webhook reconciliation failed; provider will retry")
		writeError(w, http.StatusInternalServerError, "retry", "temporary failure", true)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", false)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", validationMessage(err), false)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fe.Field() + " failed " + fe.Tag()
	}
	return "invalid request"
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
