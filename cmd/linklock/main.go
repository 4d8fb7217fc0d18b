package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/StefanHaas/LinkLock/app/controllers"
	"github.com/StefanHaas/LinkLock/internal/pkg/billing"
	"github.com/StefanHaas/LinkLock/internal/pkg/cache"
	"github.com/StefanHaas/LinkLock/internal/pkg/config"
	"github.com/StefanHaas/LinkLock/internal/pkg/entitlements"
	"github.com/StefanHaas/LinkLock/internal/pkg/env"
	"github.com/StefanHaas/LinkLock/internal/pkg/magiclink"
	"github.com/StefanHaas/LinkLock/internal/pkg/mail"
	"github.com/StefanHaas/LinkLock/internal/pkg/nonce"
	"github.com/StefanHaas/LinkLock/internal/pkg/ratelimit"
	"github.com/StefanHaas/LinkLock/internal/pkg/router"
	"github.com/StefanHaas/LinkLock/internal/pkg/session"
)

func main() {
	env.SetupEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}
	if cfg.Environment == config.EnvLocal {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	app := newApplication(cfg)
	if err := app.Listen(fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func newApplication(cfg *config.Config) *fiber.App {
	store := cache.New(cfg.CacheHost, cfg.CachePort, cfg.CachePassword)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("cache unreachable")
	}

	origin := cfg.CanonicalOrigin()
	stripeClient := billing.NewClient(billing.Config{
		SecretKey:    cfg.StripeSecretKey,
		TrialPriceID: cfg.StripeTrialPrice,
		TrialDays:    cfg.TrialDays,
		SuccessURL:   origin + "/app?checkout=success",
		CancelURL:    origin + "/subscribe",
		Origin:       origin,
	})
	customers := billing.NewCustomerResolver(stripeClient, store)

	limiter := ratelimit.NewLimiter(store, map[string]ratelimit.Policy{
		ratelimit.ScopeAuthByIP:          {Limit: cfg.AuthIPLimit, Window: cfg.AuthIPWindow},
		ratelimit.ScopeAuthByEmail:       {Limit: cfg.AuthEmailLimit, Window: cfg.AuthEmailWindow},
		ratelimit.ScopeVerifyByIP:        {Limit: cfg.VerifyIPLimit, Window: cfg.VerifyIPWindow},
		ratelimit.ScopeCheckoutBySession: {Limit: cfg.CheckoutSIDLimit, Window: cfg.CheckoutSIDWindow},
	})

	ledger := nonce.NewLedger(store, cfg.MagicLinkTTL)
	sessions := session.NewManager(cfg.AuthSecret, cfg.SessionCookieName, cfg.SessionTTL, cfg.Environment)

	issuer := magiclink.NewIssuer(magiclink.IssuerConfig{
		Secret:          cfg.AuthSecret,
		TokenTTL:        cfg.MagicLinkTTL,
		CanonicalOrigin: origin,
		MailFrom:        cfg.MailFrom,
	}, limiter, customers, stripeClient, newSender(cfg))
	verifier := magiclink.NewVerifier(cfg.AuthSecret, limiter, ledger, stripeClient, sessions, origin)
	resolver := entitlements.NewResolver(stripeClient)

	app := fiber.New(fiber.Config{
		AppName:               "linklock",
		DisableStartupMessage: cfg.Environment == config.EnvProduction,
	})
	app.Use(recover.New(), logger.New())

	if cfg.MetricsPass != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{cfg.MetricsUser: cfg.MetricsPass},
		}), monitor.New())
	}

	router.InstallRouter(app, router.Controllers{
		Auth:        controllers.NewAuthController(issuer, verifier, sessions, origin),
		Entitlement: controllers.NewEntitlementController(sessions, resolver),
		Billing:     controllers.NewBillingController(stripeClient, limiter, origin+cfg.BillingPortalPath),
		Sessions:    sessions,
	})

	return app
}

func newSender(cfg *config.Config) mail.Sender {
	switch cfg.MailProvider {
	case "postmark":
		return mail.NewPostmarkSender(cfg.PostmarkServerToken)
	case "smtp":
		return mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
	default:
		return mail.NewLogSender()
	}
}
