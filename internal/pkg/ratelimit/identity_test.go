package ratelimit

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityFor(t *testing.T, headers map[string]string) string {
	t.Helper()
	app := fiber.New()
	var got string
	app.Get("/", func(c *fiber.Ctx) error {
		got = ClientIdentity(c)
		return nil
	})

	req := httptest.NewRequest("GET", "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	_, err := app.Test(req)
	require.NoError(t, err)
	return got
}

func TestClientIdentityForwardedForFirstHop(t *testing.T) {
	got := identityFor(t, map[string]string{
		"X-Forwarded-For": "198.51.100.4, 10.0.0.1",
		"X-Real-IP":       "192.0.2.9",
	})
	assert.Equal(t, "ip:198.51.100.4", got)
}

func TestClientIdentityHeaderPrecedence(t *testing.T) {
	got := identityFor(t, map[string]string{
		"X-Real-IP":        "192.0.2.9",
		"CF-Connecting-IP": "203.0.113.50",
	})
	assert.Equal(t, "ip:192.0.2.9", got)

	got = identityFor(t, map[string]string{
		"CF-Connecting-IP": "203.0.113.50",
		"Fly-Client-IP":    "203.0.113.51",
	})
	assert.Equal(t, "ip:203.0.113.50", got)

	got = identityFor(t, map[string]string{
		"Fly-Client-IP": "203.0.113.51",
	})
	assert.Equal(t, "ip:203.0.113.51", got)
}

func TestClientIdentityIgnoresGarbageHeader(t *testing.T) {
	got := identityFor(t, map[string]string{
		"X-Forwarded-For": "not-an-ip",
		"X-Real-IP":       "192.0.2.9",
	})
	assert.Equal(t, "ip:192.0.2.9", got)
}

func TestClientIdentityFingerprintDeterministic(t *testing.T) {
	headers := map[string]string{
		"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64) TestBrowser/1.0",
		"Accept-Language": "de-DE,de;q=0.9",
	}
	// fiber.Ctx.IP() yields an unspecified address for httptest requests,
	// so the fingerprint path runs when no proxy headers are present.
	first := identityFor(t, headers)
	second := identityFor(t, headers)
	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "fp:"), "got %q", first)

	other := identityFor(t, map[string]string{
		"User-Agent":      "curl/8.0",
		"Accept-Language": "en-US",
	})
	assert.NotEqual(t, first, other)
}

func TestEmailIdentityHashedAndStable(t *testing.T) {
	a := EmailIdentity("User@Example.com")
	b := EmailIdentity("user@example.com ")
	assert.Equal(t, a, b)
	assert.NotContains(t, a, "@")
	assert.Len(t, a, len("email:")+32)
}

func TestSessionIdentity(t *testing.T) {
	assert.Equal(t, "sid:a1b2", SessionIdentity("a1b2"))
}
