package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Header precedence for the caller's IP. The first hop of X-Forwarded-For is
// what the nearest trusted proxy saw; the CDN and platform headers come
// after because they are only present on a subset of deployments.
var ipHeaders = []string{
	fiber.HeaderXForwardedFor,
	"X-Real-IP",
	"CF-Connecting-IP",
	"Fly-Client-IP",
}

// ClientIdentity derives the rate-limit identity for the request's network
// origin. When no trustworthy address is available it hashes a truncated
// user-agent plus accept-language pair: unknown clients stay deterministic
// per fingerprint instead of collapsing into one shared bucket.
func ClientIdentity(c *fiber.Ctx) string {
	for _, header := range ipHeaders {
		raw := strings.TrimSpace(c.Get(header))
		if raw == "" {
			continue
		}
		if i := strings.IndexByte(raw, ','); i >= 0 {
			raw = strings.TrimSpace(raw[:i])
		}
		if isUsableIP(raw) {
			return "ip:" + raw
		}
	}
	if ip := strings.TrimSpace(c.IP()); isUsableIP(ip) {
		return "ip:" + ip
	}
	return fingerprintIdentity(c.Get(fiber.HeaderUserAgent), c.Get(fiber.HeaderAcceptLanguage))
}

// EmailIdentity hashes the lowercased address so the limiter store never
// holds raw emails. The fixed-length prefix keeps keys short.
func EmailIdentity(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "email:" + hex.EncodeToString(sum[:])[:32]
}

// SessionIdentity keys a limit on the short session id issued at login.
func SessionIdentity(sid string) string {
	return "sid:" + sid
}

func isUsableIP(raw string) bool {
	ip := net.ParseIP(raw)
	return ip != nil && !ip.IsUnspecified()
}

func fingerprintIdentity(userAgent, acceptLanguage string) string {
	if len(userAgent) > 64 {
		userAgent = userAgent[:64]
	}
	sum := sha256.Sum256([]byte(userAgent + "|" + acceptLanguage))
	return "fp:" + hex.EncodeToString(sum[:])[:32]
}
