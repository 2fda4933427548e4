package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"aswaq-payments/internal/config"
	"aswaq-payments/internal/domain/ports/adapter"
	"aswaq-payments/internal/domain/ports/repository"
	payAdapters "aswaq-payments/internal/infra/adapters/payment"
	tele "aswaq-payments/internal/infra/adapters/telegram"
	"aswaq-payments/internal/infra/api"
	pg "aswaq-payments/internal/infra/db/postgres"
	"aswaq-payments/internal/infra/logging"
	"aswaq-payments/internal/infra/metrics"
	red "aswaq-payments/internal/infra/redis"
	"aswaq-payments/internal/infra/sched"
	"aswaq-payments/internal/infra/worker"
	"aswaq-payments/internal/usecase"
)

const devWebhookToken = "dev-webhook-token"

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, webhook receiver and stale-session sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(flags.configPath, flags.dev)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)

	// ---- Redis (optional: cache, locks, rate limits) ----
	var packageRepo repository.PackageRepository = pg.NewPackageRepo(pool)
	var (
		locker  adapter.Locker
		limiter adapter.RateLimiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		locker = red.NewLocker(redisClient)
		limiter = red.NewRateLimiter(redisClient)
		packageRepo = pg.NewPackageRepoCacheDecorator(packageRepo, redisClient, cfg.Redis.TTL, logger)
	} else {
		logger.Warn().Msg("redis not configured; running without package cache, locks or rate limits")
	}

	sessionRepo := pg.NewPaymentSessionRepo(pool)
	entitlementRepo := pg.NewEntitlementRepo(pool)
	profileRepo := pg.NewProfileRepo(pool)

	// ---- Providers ----
	registry, err := buildProviders(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info().Strs("providers", registry.Names()).Str("default", registry.Default().Name()).Msg("payment providers ready")

	// ---- Background work ----
	jobs := worker.NewPool(cfg.Worker.Size, cfg.Worker.Queue, 30*time.Second, logger)
	jobs.Start(ctx)
	defer jobs.Stop()

	var notifier adapter.Notifier = tele.NewNoopNotifier(logger)
	if cfg.Notifier.TelegramToken != "" && cfg.Notifier.TelegramChatID != 0 {
		n, err := tele.NewNotifier(cfg.Notifier.TelegramToken, cfg.Notifier.TelegramChatID, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		notifier = n
	}

	// ---- Use cases ----
	pricingUC := usecase.NewPricingUseCase(packageRepo, logger)
	paymentUC := usecase.NewPaymentUseCase(sessionRepo, profileRepo, pricingUC, registry, limiter, usecase.CheckoutOptions{
		Timeout:            cfg.Payment.CheckoutTimeout,
		DefaultCountryCode: cfg.Payment.DefaultCountryCode,
		RateLimit:          cfg.Payment.RateLimit,
		RateWindow:         cfg.Payment.RateWindow,
		Dev:                cfg.Runtime.Dev,
	}, logger)
	reconcileUC := usecase.NewReconcileUseCase(entitlementRepo, sessionRepo, pricingUC, registry, locker, notifier, jobs, usecase.ReconcileOptions{
		FetchTimeout: cfg.Payment.CheckoutTimeout,
		LockTTL:      cfg.Payment.LockTTL,
	}, logger)

	// ---- Sweeper ----
	sweeper := sched.NewSweeper(sessionRepo, registry, reconcileUC, sched.SweeperOptions{
		Interval:    cfg.Scheduler.SweepInterval,
		StaleAfter:  cfg.Scheduler.StaleAfter,
		ExpireAfter: cfg.Scheduler.ExpireAfter,
		BatchSize:   cfg.Scheduler.BatchSize,
	}, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// ---- HTTP ----
	srv := api.NewServer(pricingUC, paymentUC, reconcileUC, registry,
		api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience),
		api.Options{
			Addr:            fmt.Sprintf(":%d", cfg.HTTP.Port),
			ReadTimeout:     cfg.HTTP.ReadTimeout,
			WriteTimeout:    cfg.HTTP.WriteTimeout,
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
			AllowedOrigins:  cfg.HTTP.AllowedOrigins,
		}, logger)

	err = srv.Run(ctx)
	logger.Info().Msg("shutdown complete")
	return err
}

func buildProviders(cfg *config.Config, logger *zerolog.Logger) (*payAdapters.Registry, error) {
	breaker := payAdapters.BreakerSettings{
		MaxFailures: cfg.Payment.Breaker.MaxFailures,
		OpenTimeout: cfg.Payment.Breaker.OpenTimeout,
	}
	var providers []adapter.PaymentProvider

	if pc := cfg.Payment.Paymob; pc.Enabled {
		gw, err := payAdapters.NewPaymobGateway(payAdapters.PaymobConfig{
			BaseURL:       pc.BaseURL,
			SecretKey:     pc.SecretKey,
			PublicKey:     pc.PublicKey,
			APIKey:        pc.APIKey,
			HMACSecret:    pc.HMACSecret,
			IntegrationID: pc.IntegrationID,
			NotifyURL:     pc.NotifyURL,
			RedirectURL:   pc.RedirectURL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("paymob: %w", err)
		}
		providers = append(providers, payAdapters.WithBreaker(gw, breaker, logger))
	}
	if sc := cfg.Payment.Stripe; sc.Enabled {
		gw, err := payAdapters.NewStripeGateway(payAdapters.StripeConfig{
			SecretKey:     sc.SecretKey,
			WebhookSecret: sc.WebhookSecret,
			SuccessURL:    sc.SuccessURL,
			CancelURL:     sc.CancelURL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("stripe: %w", err)
		}
		providers = append(providers, payAdapters.WithBreaker(gw, breaker, logger))
	}

	def := cfg.Payment.DefaultProvider
	if cfg.Runtime.Dev {
		providers = append(providers, payAdapters.NewNoopPaymentGateway(devWebhookToken))
		logger.Warn().Str("webhook_token", devWebhookToken).Msg("noop payment provider registered")
		if len(providers) == 1 {
			def = payAdapters.ProviderNoop
		}
	}
	return payAdapters.NewRegistry(def, providers...)
}
