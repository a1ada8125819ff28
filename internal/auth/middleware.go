package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"graph-persistence/internal/api"
)

// Principal is the authenticated caller stored in c.Locals("principal").
type Principal struct {
	Subject string
	Roles   []string
}

// Options selects the accepted credentials. Empty fields disable that
// credential type.
type Options struct {
	JWTSecret  string
	APIKeyHash string
}

func unauthorized(msg string) *api.AppError {
	return api.NewAppError("UNAUTHORIZED", fiber.StatusUnauthorized, msg)
}

// Middleware accepts either an X-API-Key header matching the configured
// hash or an Authorization: Bearer token signed with the configured secret.
func Middleware(opts Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key := c.Get("X-API-Key"); key != "" {
			if opts.APIKeyHash == "" || !CheckAPIKey(key, opts.APIKeyHash) {
				return unauthorized("Invalid API key")
			}
			return next(c, &Principal{Subject: "api-key"})
		}

		header := c.Get("Authorization")
		if header == "" {
			return unauthorized("Missing auth token")
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return unauthorized("Invalid auth header format")
		}
		if opts.JWTSecret == "" {
			return unauthorized("Bearer tokens are not accepted")
		}
		claims, err := ParseAccessToken(parts[1], opts.JWTSecret)
		if err != nil {
			return unauthorized("Invalid or expired token")
		}
		return next(c, &Principal{Subject: claims.Subject, Roles: claims.Roles})
	}
}

func next(c *fiber.Ctx, p *Principal) error {
	c.Locals("principal", p)
	c.Locals("user_id", p.Subject)
	return c.Next()
}

// GetPrincipal extracts the Principal from a Fiber context.
func GetPrincipal(c *fiber.Ctx) *Principal {
	p, _ := c.Locals("principal").(*Principal)
	return p
}

// TokenHandler handles POST /auth/token: it trades a valid API key for a
// short-lived bearer token.
func TokenHandler(opts Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			APIKey  string `json:"api_key"`
			Subject string `json:"subject"`
		}
		if err := c.BodyParser(&body); err != nil {
			return api.InvalidPayloadError("Invalid request body")
		}
		if opts.JWTSecret == "" || opts.APIKeyHash == "" {
			return api.NewAppError("NOT_CONFIGURED", fiber.StatusNotImplemented, "Token issuing is not configured")
		}
		if body.APIKey == "" || !CheckAPIKey(body.APIKey, opts.APIKeyHash) {
			return unauthorized("Invalid API key")
		}
		subject := body.Subject
		if subject == "" {
			subject = "api-key"
		}
		token, err := GenerateAccessToken(subject, nil, opts.JWTSecret, AccessTokenTTL)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": fiber.Map{
			"access_token": token,
			"expires_in":   int(AccessTokenTTL.Seconds()),
		}})
	}
}
