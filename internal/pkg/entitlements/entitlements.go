package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/StefanHaas/LinkLock/internal/pkg/billing"
	"github.com/StefanHaas/LinkLock/internal/pkg/session"
	"github.com/StefanHaas/LinkLock/internal/pkg/token"
)

// Reason codes carried in every entitlement decision. Stable, machine
// readable, safe to expose to clients.
const (
	ReasonMissingSession     = "missing_session"
	ReasonInvalidSession     = "invalid_session"
	ReasonTrialActive        = "trial_active"
	ReasonSubscriptionActive = "subscription_active"
	ReasonNoEntitlement      = "no_entitlement"
	ReasonStripeError        = "stripe_error"
)

// Decision is computed fresh on every protected request and never stored.
type Decision struct {
	CanUse      bool
	Reason      string
	TrialEndsAt int64
}

// Resolver decides whether the caller may use the gated feature right now.
// The locally-asserted trial deadline in the session is the fast path; only
// when it is absent or expired does resolution cost one remote call.
type Resolver struct {
	api billing.API
	now func() time.Time
}

func NewResolver(api billing.API) *Resolver {
	return &Resolver{api: api, now: time.Now}
}

// Resolve maps a session-read result onto an entitlement decision. sessErr
// is the error returned by session.Manager.Read; it is folded in here so
// handlers have a single decision point.
func (r *Resolver) Resolve(ctx context.Context, claims *token.SessionClaims, sessErr error) Decision {
	switch {
	case errors.Is(sessErr, session.ErrMissingSession):
		return Decision{Reason: ReasonMissingSession}
	case sessErr != nil || claims == nil:
		return Decision{Reason: ReasonInvalidSession}
	}

	now := r.now().Unix()
	if claims.TrialEndsAt > now {
		return Decision{CanUse: true, Reason: ReasonTrialActive, TrialEndsAt: claims.TrialEndsAt}
	}

	subs, err := r.api.ListSubscriptions(ctx, claims.CustomerID)
	if err != nil {
		// Fail closed: an unreachable billing authority never grants access.
		log.Error().Err(err).Str("sid", claims.SID).Msg("entitlement subscription lookup failed")
		return Decision{Reason: ReasonStripeError}
	}

	active := false
	for _, sub := range subs {
		if sub.Status == billing.StatusTrialing && sub.TrialEnd > now {
			return Decision{CanUse: true, Reason: ReasonTrialActive, TrialEndsAt: sub.TrialEnd}
		}
		if sub.Status == billing.StatusActive {
			active = true
		}
	}
	if active {
		return Decision{CanUse: true, Reason: ReasonSubscriptionActive}
	}
	return Decision{Reason: ReasonNoEntitlement}
}

// WithNow overrides the clock. Test hook.
func (r *Resolver) WithNow(now func() time.Time) *Resolver {
	r.now = now
	return r
}
