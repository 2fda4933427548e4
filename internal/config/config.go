// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // package cache entries
}

// AuthConfig verifies purchaser access tokens issued by the identity provider.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

type PaymobConfig struct {
	Enabled       bool   `yaml:"enabled"`
	BaseURL       string `yaml:"base_url"`
	SecretKey     string `yaml:"secret_key"` // intention API
	PublicKey     string `yaml:"public_key"` // unified checkout
	APIKey        string `yaml:"api_key"`    // legacy auth tokens for transaction lookups
	HMACSecret    string `yaml:"hmac_secret"`
	IntegrationID int    `yaml:"integration_id"`
	NotifyURL     string `yaml:"notify_url"`
	RedirectURL   string `yaml:"redirect_url"`
}

type StripeConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	SuccessURL    string `yaml:"success_url"`
	CancelURL     string `yaml:"cancel_url"`
}

type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

type PaymentConfig struct {
	DefaultProvider    string        `yaml:"default_provider"`
	DefaultCountryCode string        `yaml:"default_country_code"`
	CheckoutTimeout    time.Duration `yaml:"checkout_timeout"`
	RateLimit          int           `yaml:"rate_limit"` // checkouts per purchaser per window
	RateWindow         time.Duration `yaml:"rate_window"`
	LockTTL            time.Duration `yaml:"lock_ttl"`
	Breaker            BreakerConfig `yaml:"breaker"`
	Paymob             PaymobConfig  `yaml:"paymob"`
	Stripe             StripeConfig  `yaml:"stripe"`
}

type SchedulerConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	ExpireAfter   time.Duration `yaml:"expire_after"`
	BatchSize     int           `yaml:"batch_size"`
}

type WorkerConfig struct {
	Size  int `yaml:"size"`
	Queue int `yaml:"queue"`
}

type NotifierConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Payment   PaymentConfig   `yaml:"payment"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Worker    WorkerConfig    `yaml:"worker"`
	Notifier  NotifierConfig  `yaml:"notifier"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, overlays secrets from the environment
// (and an optional .env next to the process), applies defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == "config.yaml":
		// default path missing: environment only
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overlay := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	overlay(&cfg.Database.URL, "DATABASE_URL")
	overlay(&cfg.Redis.URL, "REDIS_URL")
	overlay(&cfg.Auth.JWTSecret, "AUTH_JWT_SECRET")
	overlay(&cfg.Payment.Paymob.SecretKey, "PAYMOB_SECRET_KEY")
	overlay(&cfg.Payment.Paymob.PublicKey, "PAYMOB_PUBLIC_KEY")
	overlay(&cfg.Payment.Paymob.APIKey, "PAYMOB_API_KEY")
	overlay(&cfg.Payment.Paymob.HMACSecret, "PAYMOB_HMAC_SECRET")
	overlay(&cfg.Payment.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	overlay(&cfg.Payment.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	overlay(&cfg.Notifier.TelegramToken, "TELEGRAM_BOT_TOKEN")
	overlay(&cfg.Log.Level, "LOG_LEVEL")
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	cfg.HTTP.ReadTimeout = orDuration(cfg.HTTP.ReadTimeout, 10*time.Second)
	cfg.HTTP.WriteTimeout = orDuration(cfg.HTTP.WriteTimeout, 30*time.Second)
	cfg.HTTP.ShutdownTimeout = orDuration(cfg.HTTP.ShutdownTimeout, 15*time.Second)

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = orDuration(cfg.Redis.TTL, 10*time.Minute)

	p := &cfg.Payment
	p.DefaultProvider = strings.ToLower(p.DefaultProvider)
	if p.DefaultProvider == "" {
		p.DefaultProvider = "paymob"
	}
	if p.DefaultCountryCode == "" {
		p.DefaultCountryCode = "971"
	}
	p.CheckoutTimeout = orDuration(p.CheckoutTimeout, 15*time.Second)
	if p.RateLimit == 0 {
		p.RateLimit = 10
	}
	p.RateWindow = orDuration(p.RateWindow, time.Minute)
	p.LockTTL = orDuration(p.LockTTL, 10*time.Second)
	if p.Breaker.MaxFailures == 0 {
		p.Breaker.MaxFailures = 5
	}
	p.Breaker.OpenTimeout = orDuration(p.Breaker.OpenTimeout, 30*time.Second)
	if p.Paymob.BaseURL == "" {
		p.Paymob.BaseURL = "https://uae.paymob.com"
	}
	p.Paymob.BaseURL = strings.TrimRight(p.Paymob.BaseURL, "/")

	s := &cfg.Scheduler
	s.SweepInterval = orDuration(s.SweepInterval, 5*time.Minute)
	s.StaleAfter = orDuration(s.StaleAfter, 15*time.Minute)
	s.ExpireAfter = orDuration(s.ExpireAfter, 24*time.Hour)
	if s.BatchSize <= 0 {
		s.BatchSize = 50
	}

	if cfg.Worker.Size <= 0 {
		cfg.Worker.Size = 4
	}
	if cfg.Worker.Queue <= 0 {
		cfg.Worker.Queue = 256
	}
}

// Validate performs minimal sanity checks on a loaded config.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if !c.Payment.Paymob.Enabled && !c.Payment.Stripe.Enabled && !c.Runtime.Dev {
		return errors.New("at least one payment provider must be enabled")
	}
	if c.Payment.Paymob.Enabled && (c.Payment.Paymob.SecretKey == "" || c.Payment.Paymob.HMACSecret == "") {
		return errors.New("payment.paymob requires secret_key and hmac_secret")
	}
	if c.Payment.Stripe.Enabled && (c.Payment.Stripe.SecretKey == "" || c.Payment.Stripe.WebhookSecret == "") {
		return errors.New("payment.stripe requires secret_key and webhook_secret")
	}
	if c.Scheduler.ExpireAfter < c.Scheduler.StaleAfter {
		return errors.New("scheduler.expire_after must not be shorter than stale_after")
	}
	return nil
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
