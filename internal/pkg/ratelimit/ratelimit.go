package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Scope names select a limit policy. Each endpoint registers against the
// scope that matches its abuse profile.
const (
	ScopeAuthByIP          = "auth-by-ip"
	ScopeAuthByEmail       = "auth-by-email"
	ScopeVerifyByIP        = "verify-by-ip"
	ScopeCheckoutBySession = "checkout-by-session"
)

// Policy is a per-scope request budget within a rolling window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Decision is the gateway's answer for one request. RetryAfter is only
// meaningful when Allowed is false and is always at least one second so the
// Retry-After header never rounds down to zero.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Counter is the windowed-counter contract the limiter needs from the
// key-value store. Satisfied by cache.Store.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Limiter maps (scope, identity) pairs onto store-backed counters. It is
// stateless apart from its policy table; all counting lives in the store so
// every instance of the service shares one budget per identity.
type Limiter struct {
	counter  Counter
	policies map[string]Policy
}

func NewLimiter(counter Counter, policies map[string]Policy) *Limiter {
	return &Limiter{counter: counter, policies: policies}
}

// Allow consumes one unit of the identity's budget in the given scope. An
// unknown scope is a programming error and denies outright. A store failure
// fails open: an unreachable counter store must not take sign-in down with
// it, and the nonce ledger still guards the security-critical path.
func (l *Limiter) Allow(ctx context.Context, scope, identity string) Decision {
	policy, ok := l.policies[scope]
	if !ok {
		log.Error().Str("scope", scope).Msg("rate limit scope has no policy")
		return Decision{Allowed: false, RetryAfter: time.Minute}
	}

	key := fmt.Sprintf("rl:%s:%s", scope, identity)
	count, ttl, err := l.counter.IncrWindow(ctx, key, policy.Window)
	if err != nil {
		log.Warn().Err(err).Str("scope", scope).Msg("rate limit counter unavailable, allowing request")
		return Decision{Allowed: true}
	}

	if count > int64(policy.Limit) {
		return Decision{Allowed: false, RetryAfter: retryAfter(ttl)}
	}
	return Decision{Allowed: true}
}

func retryAfter(ttl time.Duration) time.Duration {
	if ttl < time.Second {
		return time.Second
	}
	return ttl.Round(time.Second)
}
