package magiclink

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy of the issue/verify flow. Handlers map these onto stable
// machine-readable codes; raw causes stay in server logs.
var (
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidToken covers malformed, tampered and wrong-type tokens.
	ErrInvalidToken    = errors.New("invalid magic link token")
	ErrTokenExpired    = errors.New("magic link token expired")
	ErrLinkAlreadyUsed = errors.New("magic link already used")
	// ErrIssueFailed is deliberately generic: dispatch failures never
	// disclose whether the address belongs to a customer.
	ErrIssueFailed = errors.New("magic link could not be issued")
	// ErrBilling wraps any failure talking to the billing authority.
	ErrBilling = errors.New("billing authority error")
)

// RateLimitedError carries the retry hint the caller must surface.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
