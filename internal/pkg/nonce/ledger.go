package nonce

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const (
	keyPrefix = "nonce:"
	// 18 random bytes encode to 24 URL-safe characters.
	randomBytes = 18
)

// Store is the conditional-set contract the ledger needs from the key-value
// store. Satisfied by cache.Store.
type Store interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
}

// Ledger enforces at-most-once redemption of magic-link nonces. A present
// key means "already redeemed"; records expire together with the token
// lifetime, after which the token is independently dead anyway.
type Ledger struct {
	store Store
	ttl   time.Duration
}

func NewLedger(store Store, ttl time.Duration) *Ledger {
	return &Ledger{store: store, ttl: ttl}
}

// TryRedeem marks the nonce as redeemed and reports whether this caller was
// first. Concurrent redemptions of the same nonce yield exactly one
// fresh=true; the store's conditional set is the linearization point.
func (l *Ledger) TryRedeem(ctx context.Context, nonce string) (bool, error) {
	if nonce == "" {
		return false, fmt.Errorf("nonce is required")
	}
	fresh, err := l.store.SetNX(ctx, keyPrefix+nonce, "1", l.ttl)
	if err != nil {
		return false, fmt.Errorf("redeem nonce: %w", err)
	}
	return fresh, nil
}

// New generates a fresh random nonce, URL-safe and globally unique per
// issuance.
func New() (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
