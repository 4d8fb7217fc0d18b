package magiclink

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/StefanHaas/LinkLock/internal/pkg/billing"
	"github.com/StefanHaas/LinkLock/internal/pkg/mail"
	"github.com/StefanHaas/LinkLock/internal/pkg/nonce"
	"github.com/StefanHaas/LinkLock/internal/pkg/ratelimit"
	"github.com/StefanHaas/LinkLock/internal/pkg/token"
)

var validate = validator.New()

// EntryPoint identifies which endpoint asked for the link. The trial entry
// point may still produce a login link when the caller no longer qualifies.
type EntryPoint string

const (
	EntryTrial     EntryPoint = "trial"
	EntryLogin     EntryPoint = "login"
	EntrySubscribe EntryPoint = "subscribe"
)

// Gate is the slice of the rate limiter the issuer consumes.
type Gate interface {
	Allow(ctx context.Context, scope, identity string) ratelimit.Decision
}

// CustomerSource resolves an email to a billing customer.
type CustomerSource interface {
	Resolve(ctx context.Context, email string) (*billing.Customer, error)
}

// IssuerConfig carries the construction-time wiring of the issuer.
type IssuerConfig struct {
	Secret          string
	TokenTTL        time.Duration
	CanonicalOrigin string
	MailFrom        string
}

// Receipt is what the caller may show the user. Only the masked form of the
// email ever leaves the issuer.
type Receipt struct {
	MaskedEmail string
	Intent      string
}

// Issuer mints magic-link tokens and dispatches them for delivery. Token
// state is fully stateless: a failed dispatch leaves nothing to undo.
type Issuer struct {
	cfg       IssuerConfig
	gate      Gate
	customers CustomerSource
	api       billing.API
	sender    mail.Sender
	now       func() time.Time
}

func NewIssuer(cfg IssuerConfig, gate Gate, customers CustomerSource, api billing.API, sender mail.Sender) *Issuer {
	return &Issuer{
		cfg:       cfg,
		gate:      gate,
		customers: customers,
		api:       api,
		sender:    sender,
		now:       time.Now,
	}
}

// Issue validates the email, rate-limits the caller, resolves the customer,
// discovers the effective intent and emails a fresh single-use link.
// ipIdentity is the caller's network identity as derived by the transport
// layer.
func (i *Issuer) Issue(ctx context.Context, email string, entry EntryPoint, ipIdentity string) (*Receipt, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, ErrInvalidEmail
	}

	// IP first: a stream of garbage emails must burn the IP budget before
	// it can touch any email-scoped budget.
	if d := i.gate.Allow(ctx, ratelimit.ScopeAuthByIP, ipIdentity); !d.Allowed {
		return nil, &RateLimitedError{RetryAfter: d.RetryAfter}
	}
	if d := i.gate.Allow(ctx, ratelimit.ScopeAuthByEmail, ratelimit.EmailIdentity(email)); !d.Allowed {
		return nil, &RateLimitedError{RetryAfter: d.RetryAfter}
	}

	issueID := uuid.NewString()

	customer, err := i.customers.Resolve(ctx, email)
	if err != nil {
		log.Error().Err(err).Str("issue_id", issueID).Msg("customer resolution failed")
		return nil, fmt.Errorf("%w: %v", ErrBilling, err)
	}

	intent, err := i.discoverIntent(ctx, entry, customer)
	if err != nil {
		log.Error().Err(err).Str("issue_id", issueID).Msg("intent discovery failed")
		return nil, fmt.Errorf("%w: %v", ErrBilling, err)
	}

	n, err := nonce.New()
	if err != nil {
		return nil, fmt.Errorf("mint magic link: %w", err)
	}
	now := i.now().UTC()
	claims := token.MagicLinkClaims{
		V:          token.Version,
		Typ:        token.TypeMagicLink,
		Intent:     intent,
		Email:      email,
		CustomerID: customer.ID,
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(i.cfg.TokenTTL).Unix(),
		Nonce:      n,
	}
	tok, err := token.Encode(claims, i.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("mint magic link: %w", err)
	}

	verifyURL := i.cfg.CanonicalOrigin + "/verify?token=" + url.QueryEscape(tok)
	subject, html, text, err := mail.RenderMagicLinkEmail(mail.MagicLinkData{
		MagicLinkURL:  verifyURL,
		Intent:        intent,
		ExpiryMinutes: int(i.cfg.TokenTTL.Minutes()),
	})
	if err != nil {
		log.Error().Err(err).Str("issue_id", issueID).Msg("magic link email render failed")
		return nil, ErrIssueFailed
	}

	if err := i.sender.Send(ctx, mail.Message{
		From:    i.cfg.MailFrom,
		To:      email,
		Subject: subject,
		HTML:    html,
		Text:    text,
	}); err != nil {
		log.Error().Err(err).Str("issue_id", issueID).Msg("magic link dispatch failed")
		return nil, ErrIssueFailed
	}

	log.Info().
		Str("issue_id", issueID).
		Str("intent", intent).
		Str("customer_id", customer.ID).
		Msg("magic link dispatched")

	return &Receipt{MaskedEmail: maskEmail(email), Intent: intent}, nil
}

// discoverIntent downgrades a trial request to login when the customer has
// ever held a subscription (any status) or already carries the trial_used
// marker. The user still gets a working sign-in link either way.
func (i *Issuer) discoverIntent(ctx context.Context, entry EntryPoint, customer *billing.Customer) (string, error) {
	switch entry {
	case EntrySubscribe:
		return token.IntentSubscribe, nil
	case EntryTrial:
		if customer.TrialUsed {
			return token.IntentLogin, nil
		}
		subs, err := i.api.ListSubscriptions(ctx, customer.ID)
		if err != nil {
			return "", err
		}
		if len(subs) > 0 {
			return token.IntentLogin, nil
		}
		return token.IntentTrial, nil
	default:
		return token.IntentLogin, nil
	}
}

// WithNow overrides the clock. Test hook.
func (i *Issuer) WithNow(now func() time.Time) *Issuer {
	i.now = now
	return i
}
