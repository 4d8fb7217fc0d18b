package session

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/StefanHaas/LinkLock/internal/pkg/config"
	"github.com/StefanHaas/LinkLock/internal/pkg/token"
)

var (
	ErrMissingSession = errors.New("no session cookie present")
	ErrInvalidSession = errors.New("session cookie is invalid")
)

// Manager issues and reads signed cookie sessions. There is no server-side
// session store: the cookie is the session, and the only revocation is
// signature failure or expiry.
type Manager struct {
	secret     string
	cookieName string
	ttl        time.Duration
	env        config.Environment
	now        func() time.Time
}

func NewManager(secret, cookieName string, ttl time.Duration, env config.Environment) *Manager {
	return &Manager{
		secret:     secret,
		cookieName: cookieName,
		ttl:        ttl,
		env:        env,
		now:        time.Now,
	}
}

// Issue signs the claims into a cookie value.
func (m *Manager) Issue(claims token.SessionClaims) (string, error) {
	claims.V = token.Version
	claims.Typ = token.TypeSession
	return token.Encode(claims, m.secret)
}

// Read extracts and verifies the session from the request cookie. The
// signature must verify before any field is trusted; expiry is enforced
// server-side as well since cookie MaxAge is advisory to the client.
func (m *Manager) Read(c *fiber.Ctx) (*token.SessionClaims, error) {
	raw := c.Cookies(m.cookieName)
	if raw == "" {
		return nil, ErrMissingSession
	}
	claims, err := token.DecodeSession(raw, m.secret)
	if err != nil {
		return nil, ErrInvalidSession
	}
	if m.now().Unix() > claims.IssuedAt+int64(m.ttl.Seconds()) {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// Cookie wraps a signed session value in the transport attributes: HttpOnly
// always, Secure outside local development, SameSite=Lax so the magic-link
// top-level navigation still carries it.
func (m *Manager) Cookie(value string) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HTTPOnly: true,
		Secure:   m.env != config.EnvLocal,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
}

// Clear expires the session cookie immediately.
func (m *Manager) Clear() *fiber.Cookie {
	cookie := m.Cookie("")
	cookie.MaxAge = -1
	return cookie
}

// CookieName exposes the configured name for middleware and tests.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// WithNow overrides the clock. Test hook.
func (m *Manager) WithNow(now func() time.Time) *Manager {
	m.now = now
	return m
}
