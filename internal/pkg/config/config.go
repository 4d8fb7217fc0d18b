package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/StefanHaas/LinkLock/internal/pkg/env"
)

// Environment is passed explicitly into components that behave differently
// per deployment target (cookie security, origin rewriting). It is resolved
// once at startup instead of being inferred deep in call paths.
type Environment string

const (
	EnvLocal      Environment = "local"
	EnvStaging    Environment = "staging"
	EnvProduction Environment = "production"
)

// Config carries everything the auth subsystem needs at construction time.
// Secrets are injected from here into each component; nothing reads the
// process environment after Load returns.
type Config struct {
	Environment Environment `validate:"required,oneof=local staging production"`
	Host        string
	Port        string

	// AuthSecret signs both magic-link tokens and session cookies.
	AuthSecret string `validate:"required,min=24"`

	// AllowedOrigins is a comma-separated list; the first entry is the
	// canonical origin used to build outbound verification links.
	AllowedOrigins []string `validate:"required,min=1,dive,url"`

	SessionCookieName string        `validate:"required"`
	MagicLinkTTL      time.Duration `validate:"required"`
	SessionTTL        time.Duration `validate:"required"`

	CacheHost     string `validate:"required"`
	CachePort     string `validate:"required"`
	CachePassword string

	StripeSecretKey   string `validate:"required"`
	StripeTrialPrice  string `validate:"required"`
	TrialDays         int64  `validate:"required,min=1"`
	BillingPortalPath string

	MailProvider        string `validate:"required,oneof=postmark smtp log"`
	MailFrom            string
	PostmarkServerToken string
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string

	MetricsUser string
	MetricsPass string

	// Rate limit policies (requests per window).
	AuthIPLimit       int
	AuthIPWindow      time.Duration
	AuthEmailLimit    int
	AuthEmailWindow   time.Duration
	VerifyIPLimit     int
	VerifyIPWindow    time.Duration
	CheckoutSIDLimit  int
	CheckoutSIDWindow time.Duration
}

// CanonicalOrigin returns the single authoritative base URL for outbound
// links, independent of the inbound Host header.
func (c *Config) CanonicalOrigin() string {
	return strings.TrimRight(c.AllowedOrigins[0], "/")
}

// Load builds the configuration from the environment and fails fast when a
// required value is missing or malformed. A service booted with a broken
// config must never silently degrade its security posture.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:       Environment(env.GetEnv("APP_ENV", "production")),
		Host:              env.GetEnv("APP_HOST", "localhost"),
		Port:              env.GetEnv("APP_PORT", "4000"),
		AuthSecret:        env.GetEnv("AUTH_SECRET", ""),
		AllowedOrigins:    splitList(env.GetEnv("ALLOWED_ORIGINS", "")),
		SessionCookieName: env.GetEnv("SESSION_COOKIE_NAME", "ll_session"),
		MagicLinkTTL:      time.Duration(envInt("MAGIC_LINK_TTL_MINUTES", 15)) * time.Minute,
		SessionTTL:        time.Duration(envInt("SESSION_TTL_DAYS", 7)) * 24 * time.Hour,
		CacheHost:         env.GetEnv("CACHE_HOST", "localhost"),
		CachePort:         env.GetEnv("CACHE_PORT", "6379"),
		CachePassword:     env.GetEnv("CACHE_PASSWORD", ""),
		StripeSecretKey:   env.GetEnv("STRIPE_SECRET_KEY", ""),
		StripeTrialPrice:  env.GetEnv("STRIPE_TRIAL_PRICE_ID", ""),
		TrialDays:         int64(envInt("TRIAL_DAYS", 14)),
		BillingPortalPath: env.GetEnv("BILLING_PORTAL_RETURN_PATH", "/account"),
		MailProvider:      env.GetEnv("MAIL_PROVIDER", "log"),
		MailFrom:          env.GetEnv("MAIL_FROM", ""),

		PostmarkServerToken: env.GetEnv("POSTMARK_SERVER_TOKEN", ""),
		SMTPHost:            env.GetEnv("SMTP_HOST", ""),
		SMTPPort:            envInt("SMTP_PORT", 587),
		SMTPUsername:        env.GetEnv("SMTP_USERNAME", ""),
		SMTPPassword:        env.GetEnv("SMTP_PASSWORD", ""),

		MetricsUser: env.GetEnv("METRICS_USER", "admin"),
		MetricsPass: env.GetEnv("METRICS_PASS", ""),

		AuthIPLimit:       envInt("AUTH_IP_LIMIT", 10),
		AuthIPWindow:      time.Duration(envInt("AUTH_IP_WINDOW_MINUTES", 15)) * time.Minute,
		AuthEmailLimit:    envInt("AUTH_EMAIL_LIMIT", 5),
		AuthEmailWindow:   time.Duration(envInt("AUTH_EMAIL_WINDOW_MINUTES", 15)) * time.Minute,
		VerifyIPLimit:     envInt("VERIFY_IP_LIMIT", 30),
		VerifyIPWindow:    time.Duration(envInt("VERIFY_IP_WINDOW_MINUTES", 15)) * time.Minute,
		CheckoutSIDLimit:  envInt("CHECKOUT_SID_LIMIT", 10),
		CheckoutSIDWindow: time.Duration(envInt("CHECKOUT_SID_WINDOW_MINUTES", 60)) * time.Minute,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.MailProvider {
	case "postmark":
		if cfg.PostmarkServerToken == "" || cfg.MailFrom == "" {
			return nil, fmt.Errorf("config: MAIL_PROVIDER=postmark requires POSTMARK_SERVER_TOKEN and MAIL_FROM")
		}
	case "smtp":
		if cfg.SMTPHost == "" || cfg.MailFrom == "" {
			return nil, fmt.Errorf("config: MAIL_PROVIDER=smtp requires SMTP_HOST and MAIL_FROM")
		}
	}

	return cfg, nil
}

// Validate checks structural constraints on an already-built Config. Exposed
// separately so tests can construct configs directly.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, def int) int {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
