package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"aswaq-payments/internal/domain"
)

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, retryable bool) {
	writeJSON(w, status, errorBody{Error: code, Message: msg, Retryable: retryable})
}

type errorMapping struct {
	status    int
	code      string
	retryable bool
}

// classify maps the domain taxonomy to purchaser-facing responses. The code
// doubles as the message key in the locale catalogs.
func classify(err error) errorMapping {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return errorMapping{http.StatusUnauthorized, "unauthenticated", false}
	case errors.Is(err, domain.ErrRateLimited):
		return errorMapping{http.StatusTooManyRequests, "rate_limited", true}
	case errors.Is(err, domain.ErrProviderUnavailable):
		return errorMapping{http.StatusServiceUnavailable, "provider_unavailable", true}
	case errors.Is(err, domain.ErrPackageNotFound):
		return errorMapping{http.StatusNotFound, "package_not_found", false}
	case errors.Is(err, domain.ErrNotFound):
		// the provider may not have recorded the transaction yet
		return errorMapping{http.StatusNotFound, "payment_not_found", true}
	case errors.Is(err, domain.ErrFreePackage):
		return errorMapping{http.StatusUnprocessableEntity, "free_package", false}
	case errors.Is(err, domain.ErrUnknownProvider):
		return errorMapping{http.StatusBadRequest, "unknown_provider", false}
	case errors.Is(err, domain.ErrInvalidArgument):
		return errorMapping{http.StatusBadRequest, "invalid_argument", false}
	case errors.Is(err, domain.ErrInvalidCorrelationToken), errors.Is(err, domain.ErrMalformedEvent):
		return errorMapping{http.StatusUnprocessableEntity, "unprocessable_payment", false}
	default:
		return errorMapping{http.StatusInternalServerError, "internal", true}
	}
}

func (s *Server) writeUseCaseError(w http.ResponseWriter, r *http.Request, err error) {
	m := classify(err)
	if m.status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}
	msg := s.msgs.For(r.Header.Get("Accept-Language")).T(m.code)
	writeError(w, m.status, m.code, msg, m.retryable)
}
