package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrWrongTokenType   = errors.New("wrong token type")
)

const (
	// Version tags the payload layout so a future format change can be
	// rolled out without invalidating every outstanding session.
	Version = 1

	TypeMagicLink = "magic_link"
	TypeSession   = "session"
)

// Magic-link intents.
const (
	IntentTrial     = "trial"
	IntentLogin     = "login"
	IntentSubscribe = "subscribe"
)

// MagicLinkClaims is the payload carried inside a magic-link URL. It is
// never persisted; the nonce is the only part that leaves a server-side
// trace (in the redemption ledger).
type MagicLinkClaims struct {
	V          int    `json:"v"`
	Typ        string `json:"typ"`
	Intent     string `json:"intent"`
	Email      string `json:"email"`
	CustomerID string `json:"cus"`
	IssuedAt   int64  `json:"iat"`
	ExpiresAt  int64  `json:"exp"`
	Nonce      string `json:"nonce"`
}

// SessionClaims is the payload of the signed session cookie. Trial fields
// are only set when the session was issued by a successful trial
// verification; their absence sends entitlement resolution to the live
// subscription lookup.
type SessionClaims struct {
	V                   int    `json:"v"`
	Typ                 string `json:"typ"`
	Email               string `json:"email"`
	CustomerID          string `json:"cus"`
	IssuedAt            int64  `json:"iat"`
	SID                 string `json:"sid"`
	TrialEndsAt         int64  `json:"trial_ends_at,omitempty"`
	TrialSubscriptionID string `json:"trial_sub,omitempty"`
}

// Encode serializes the claims and appends an HMAC-SHA256 signature computed
// over the encoded body: base64url(json) + "." + base64url(sig), both
// without padding. The same codec serves magic-link tokens and session
// cookies; callers distinguish them by the typ discriminator.
func Encode(claims any, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required for token generation")
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encode token payload: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + base64.RawURLEncoding.EncodeToString(sign(body, secret)), nil
}

// Decode verifies the signature and unmarshals the payload into out. The
// signature is checked before the body is parsed so unauthenticated input
// never reaches the JSON decoder.
func Decode(tok, secret string, out any) error {
	if secret == "" {
		return errors.New("secret is required for token verification")
	}
	parts := strings.Split(tok, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ErrMalformedToken
	}
	body, providedSig := parts[0], parts[1]

	sigBytes, err := base64.RawURLEncoding.DecodeString(providedSig)
	if err != nil {
		return ErrMalformedToken
	}
	expected := sign(body, secret)
	// Length is checked first so the constant-time comparison below never
	// branches on input length.
	if len(sigBytes) != len(expected) || !hmac.Equal(sigBytes, expected) {
		return ErrInvalidSignature
	}

	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return ErrMalformedToken
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return ErrMalformedToken
	}
	return nil
}

// DecodeMagicLink decodes and enforces the magic_link discriminator. A
// session cookie fed into the verify endpoint fails here instead of being
// accepted shape-compatibly.
func DecodeMagicLink(tok, secret string) (*MagicLinkClaims, error) {
	var claims MagicLinkClaims
	if err := Decode(tok, secret, &claims); err != nil {
		return nil, err
	}
	if claims.Typ != TypeMagicLink {
		return nil, ErrWrongTokenType
	}
	return &claims, nil
}

// DecodeSession decodes and enforces the session discriminator.
func DecodeSession(tok, secret string) (*SessionClaims, error) {
	var claims SessionClaims
	if err := Decode(tok, secret, &claims); err != nil {
		return nil, err
	}
	if claims.Typ != TypeSession {
		return nil, ErrWrongTokenType
	}
	return &claims, nil
}

func sign(body, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return mac.Sum(nil)
}
