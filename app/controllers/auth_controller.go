package controllers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/StefanHaas/LinkLock/internal/pkg/magiclink"
	"github.com/StefanHaas/LinkLock/internal/pkg/ratelimit"
	"github.com/StefanHaas/LinkLock/internal/pkg/session"
)

// LinkIssuer and LinkVerifier are the controller-facing slices of the magic
// link flow. Tests substitute fakes.
type LinkIssuer interface {
	Issue(ctx context.Context, email string, entry magiclink.EntryPoint, ipIdentity string) (*magiclink.Receipt, error)
}

type LinkVerifier interface {
	Verify(ctx context.Context, rawToken, ipIdentity string) (*magiclink.Result, error)
}

type AuthController struct {
	issuer   LinkIssuer
	verifier LinkVerifier
	sessions *session.Manager
	origin   string
}

func NewAuthController(issuer LinkIssuer, verifier LinkVerifier, sessions *session.Manager, origin string) *AuthController {
	return &AuthController{issuer: issuer, verifier: verifier, sessions: sessions, origin: origin}
}

type authRequest struct {
	Email string `json:"email"`
}

// HandleRequestTrial, HandleRequestLogin and HandleRequestSubscribe share
// one flow; only the entry point differs.
func (ac *AuthController) HandleRequestTrial(c *fiber.Ctx) error {
	return ac.handleIssue(c, magiclink.EntryTrial)
}

func (ac *AuthController) HandleRequestLogin(c *fiber.Ctx) error {
	return ac.handleIssue(c, magiclink.EntryLogin)
}

func (ac *AuthController) HandleRequestSubscribe(c *fiber.Ctx) error {
	return ac.handleIssue(c, magiclink.EntrySubscribe)
}

func (ac *AuthController) handleIssue(c *fiber.Ctx, entry magiclink.EntryPoint) error {
	var req authRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_request",
			"message": "Request body must be JSON with an email field",
		})
	}

	receipt, err := ac.issuer.Issue(c.Context(), req.Email, entry, ratelimit.ClientIdentity(c))
	if err != nil {
		return issueError(c, err)
	}

	return c.JSON(fiber.Map{
		"status": "sent",
		"email":  receipt.MaskedEmail,
		"intent": receipt.Intent,
	})
}

func issueError(c *fiber.Ctx, err error) error {
	var rle *magiclink.RateLimitedError
	switch {
	case errors.Is(err, magiclink.ErrInvalidEmail):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_email",
			"message": "Enter a valid email address",
		})
	case errors.As(err, &rle):
		return rateLimited(c, rle)
	default:
		// Billing and delivery failures collapse into one opaque answer so
		// the endpoint never discloses whether the address is known.
		log.Error().Err(err).Msg("magic link request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "issue_failed",
			"message": "Could not send the link, try again later",
		})
	}
}

// HandleVerify runs the GET /verify redemption. The user arrives here from
// their mail client, so every failure redirects back to the login page with
// a stable error code instead of rendering JSON.
func (ac *AuthController) HandleVerify(c *fiber.Ctx) error {
	raw := c.Query("token")
	res, err := ac.verifier.Verify(c.Context(), raw, ratelimit.ClientIdentity(c))
	if err != nil {
		return c.Redirect(ac.origin+"/login?error="+verifyErrorCode(err), fiber.StatusSeeOther)
	}

	c.Cookie(ac.sessions.Cookie(res.CookieValue))
	return c.Redirect(res.RedirectTo, fiber.StatusSeeOther)
}

func verifyErrorCode(err error) string {
	var rle *magiclink.RateLimitedError
	switch {
	case errors.Is(err, magiclink.ErrTokenExpired):
		return "expired"
	case errors.Is(err, magiclink.ErrLinkAlreadyUsed):
		return "already_used"
	case errors.Is(err, magiclink.ErrInvalidToken):
		return "invalid_token"
	case errors.As(err, &rle):
		return "rate_limited"
	default:
		log.Error().Err(err).Msg("magic link verification failed")
		return "server_error"
	}
}

// HandleLogout clears the session cookie. With stateless sessions there is
// nothing server-side to revoke.
func (ac *AuthController) HandleLogout(c *fiber.Ctx) error {
	c.Cookie(ac.sessions.Clear())
	return c.JSON(fiber.Map{"status": "signed_out"})
}

func rateLimited(c *fiber.Ctx, rle *magiclink.RateLimitedError) error {
	secs := int(rle.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":       "rate_limited",
		"message":     "Too many requests, slow down",
		"retry_after": secs,
	})
}
