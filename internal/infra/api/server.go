package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"aswaq-payments/internal/domain/ports/adapter"
	"aswaq-payments/internal/infra/i18n"
	"aswaq-payments/internal/usecase"
)

// Options tunes the HTTP surface.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	MaxBodyBytes    int64
	AllowedOrigins  []string
}

// Server exposes checkout, verification, webhooks and the catalog.
type Server struct {
	pricing   usecase.PricingUseCase
	payments  usecase.PaymentUseCase
	reconcile usecase.ReconcileUseCase
	providers adapter.ProviderRegistry
	auth      *Authenticator
	validate  *validator.Validate
	msgs      *i18n.Bundle
	opts      Options
	log       *zerolog.Logger

	srv *http.Server
}

func NewServer(
	pricing usecase.PricingUseCase,
	payments usecase.PaymentUseCase,
	reconcile usecase.ReconcileUseCase,
	providers adapter.ProviderRegistry,
	auth *Authenticator,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 15 * time.Second
	}
	return &Server{
		pricing:   pricing,
		payments:  payments,
		reconcile: reconcile,
		providers: providers,
		auth:      auth,
		validate:  validator.New(),
		msgs:      i18n.MustDefaultBundle(),
		opts:      opts,
		log:       logger,
	}
}

// Router builds the chi mux with the middleware chain applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// the browser redirect is settled through /payments/verify, never here
	r.Post("/webhooks/{provider}", s.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/packages", s.handleListPackages)
		r.Group(func(r chi.Router) {
			r.Use(RequirePurchaser(s.auth))
			r.Post("/checkout", s.handleCheckout)
			r.Post("/payments/verify", s.handleVerify)
		})
	})

	return Chain(r,
		TraceID(),
		Recover(s.log),
		RequestLog(s.log),
		CORS(s.opts.AllowedOrigins),
		MaxBody(s.opts.MaxBodyBytes),
		Timeout(s.opts.RequestTimeout),
	)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Router(),
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.opts.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.opts.Addr).Msg("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CORS allows the storefront origins to call the checkout endpoints.
func CORS(origins []string) Middleware {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			_, ok := allowed[origin]
			if _, wildcard := allowed["*"]; wildcard {
				ok = origin != ""
			}
			if ok {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
