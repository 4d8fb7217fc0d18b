package magiclink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/StefanHaas/LinkLock/internal/pkg/billing"
	"github.com/StefanHaas/LinkLock/internal/pkg/ratelimit"
	"github.com/StefanHaas/LinkLock/internal/pkg/session"
	"github.com/StefanHaas/LinkLock/internal/pkg/token"
)

// Ledger is the slice of the nonce ledger the verifier consumes.
type Ledger interface {
	TryRedeem(ctx context.Context, nonce string) (bool, error)
}

// Result is the outcome of a successful verification. Every intent issues a
// session; subscribe additionally redirects to the checkout URL.
type Result struct {
	Claims      *token.SessionClaims
	CookieValue string
	RedirectTo  string
}

// Verifier redeems magic-link tokens: one redemption per nonce, ever.
type Verifier struct {
	secret   string
	gate     Gate
	ledger   Ledger
	api      billing.API
	sessions *session.Manager
	origin   string
	now      func() time.Time
}

func NewVerifier(secret string, gate Gate, ledger Ledger, api billing.API, sessions *session.Manager, origin string) *Verifier {
	return &Verifier{
		secret:   secret,
		gate:     gate,
		ledger:   ledger,
		api:      api,
		sessions: sessions,
		origin:   origin,
		now:      time.Now,
	}
}

// Verify checks the token, burns its nonce and establishes the session. The
// nonce ledger is consulted only after the signature and expiry hold, so an
// attacker cannot burn someone else's link with a forged copy.
func (v *Verifier) Verify(ctx context.Context, rawToken, ipIdentity string) (*Result, error) {
	if d := v.gate.Allow(ctx, ratelimit.ScopeVerifyByIP, ipIdentity); !d.Allowed {
		return nil, &RateLimitedError{RetryAfter: d.RetryAfter}
	}

	claims, err := token.DecodeMagicLink(rawToken, v.secret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	now := v.now().UTC()
	if now.Unix() > claims.ExpiresAt {
		return nil, ErrTokenExpired
	}

	fresh, err := v.ledger.TryRedeem(ctx, claims.Nonce)
	if err != nil {
		// Ledger errors fail closed: without the single-use guarantee the
		// link must not be honored.
		log.Error().Err(err).Msg("nonce ledger unavailable")
		return nil, fmt.Errorf("redeem magic link: %w", err)
	}
	if !fresh {
		return nil, ErrLinkAlreadyUsed
	}

	sid := sessionID(claims.Nonce)
	sess := token.SessionClaims{
		V:          token.Version,
		Typ:        token.TypeSession,
		Email:      claims.Email,
		CustomerID: claims.CustomerID,
		IssuedAt:   now.Unix(),
		SID:        sid,
	}

	redirect := v.origin + "/app"
	switch claims.Intent {
	case token.IntentTrial:
		trialSess, trialRedirect, err := v.startTrial(ctx, sess, sid)
		if err != nil {
			return nil, err
		}
		sess = trialSess
		redirect = trialRedirect
	case token.IntentSubscribe:
		u, err := v.api.CreateCheckoutSession(ctx, claims.CustomerID, sid)
		if err != nil {
			log.Error().Err(err).Str("customer_id", claims.CustomerID).Msg("checkout session failed")
			return nil, fmt.Errorf("%w: %v", ErrBilling, err)
		}
		redirect = u
	}

	cookie, err := v.sessions.Issue(sess)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	log.Info().
		Str("sid", sid).
		Str("intent", claims.Intent).
		Str("customer_id", claims.CustomerID).
		Msg("magic link redeemed")

	return &Result{Claims: &sess, CookieValue: cookie, RedirectTo: redirect}, nil
}

// startTrial re-checks eligibility at redemption time. The link may be
// minutes old and the customer may have started a trial from another tab in
// between; a disqualified redeemer still gets a plain session.
func (v *Verifier) startTrial(ctx context.Context, sess token.SessionClaims, sid string) (token.SessionClaims, string, error) {
	eligible, err := v.trialEligible(ctx, sess.CustomerID)
	if err != nil {
		return sess, "", fmt.Errorf("%w: %v", ErrBilling, err)
	}
	if !eligible {
		return sess, v.origin + "/subscribe", nil
	}

	sub, err := v.api.CreateTrialSubscription(ctx, sess.CustomerID, sid)
	if err != nil {
		log.Error().Err(err).Str("customer_id", sess.CustomerID).Msg("trial subscription failed")
		return sess, "", fmt.Errorf("%w: %v", ErrBilling, err)
	}
	if err := v.api.MarkTrialUsed(ctx, sess.CustomerID, sid); err != nil {
		// The subscription exists; eligibility re-checks fall back to the
		// subscription list, so a lost marker only costs an extra lookup.
		log.Warn().Err(err).Str("customer_id", sess.CustomerID).Msg("trial marker update failed")
	}

	sess.TrialEndsAt = sub.TrialEnd
	sess.TrialSubscriptionID = sub.ID
	return sess, v.origin + "/app?trial=started", nil
}

func (v *Verifier) trialEligible(ctx context.Context, customerID string) (bool, error) {
	customer, err := v.api.GetCustomer(ctx, customerID)
	if err != nil && !errors.Is(err, billing.ErrNoCustomer) {
		return false, err
	}
	if customer != nil && customer.TrialUsed {
		return false, nil
	}
	subs, err := v.api.ListSubscriptions(ctx, customerID)
	if err != nil {
		return false, err
	}
	return len(subs) == 0, nil
}

// sessionID derives a stable session identifier from the redeemed nonce
// without exposing the nonce itself.
func sessionID(n string) string {
	sum := sha256.Sum256([]byte(n))
	return hex.EncodeToString(sum[:])[:16]
}

// WithNow overrides the clock. Test hook.
func (v *Verifier) WithNow(now func() time.Time) *Verifier {
	v.now = now
	return v
}
