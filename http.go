package auth

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
)

// Fiber context keys for the decoded claims and the live session row.
const (
	ClaimsContextKey  = "auth_claims"
	SessionContextKey = "auth_session"
)

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// SessionGuard couples token validation with the session registry so a
// structurally valid token that was logged out is still rejected.
type SessionGuard struct {
	validator TokenValidator
	sessions  Sessions
	Logger    Logger
}

// NewSessionGuard builds the guard from the access-token validator and the
// session registry.
func NewSessionGuard(validator TokenValidator, sessions Sessions) *SessionGuard {
	return &SessionGuard{
		validator: validator,
		sessions:  sessions,
		Logger:    defLogger{},
	}
}

// Protected returns middleware that requires a live bearer token. The
// signature check runs first, then the registry lookup; either failure is
// the same 401 to the caller.
func (g *SessionGuard) Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := BearerToken(c)
		if token == "" {
			return writeError(c, ErrTokenMalformed)
		}

		claims, err := g.validator.Validate(token)
		if err != nil {
			return writeError(c, err)
		}

		session, err := g.sessions.GetByToken(c.Context(), token)
		if err != nil {
			// Revoked or expired server-side; token claims no longer matter.
			return writeError(c, ErrTokenExpired)
		}

		c.Locals(ClaimsContextKey, claims)
		c.Locals(SessionContextKey, session)

		return c.Next()
	}
}

// ClaimsFromFiber returns the decoded claims stored by Protected.
func ClaimsFromFiber(c *fiber.Ctx) (AuthClaims, bool) {
	claims, ok := c.Locals(ClaimsContextKey).(AuthClaims)
	return claims, ok
}

// SessionFromFiber returns the live session row stored by Protected.
func SessionFromFiber(c *fiber.Ctx) (*Session, bool) {
	session, ok := c.Locals(SessionContextKey).(*Session)
	return session, ok
}

// writeError maps a rich error onto the uniform failure envelope. Anything
// without a known category is a generic 500 that leaks no internals.
func writeError(c *fiber.Ctx, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred")
	}

	status := statusForError(richErr)

	body := fiber.Map{
		"error":   textCodeOrDefault(richErr),
		"message": richErr.Message,
	}

	if status == http.StatusInternalServerError {
		body["error"] = "INTERNAL_ERROR"
		body["message"] = "an unexpected error occurred"
	}

	if violations, ok := richErr.Metadata["violations"]; ok {
		body["details"] = violations
	}

	return c.Status(status).JSON(body)
}

func statusForError(richErr *errors.Error) int {
	switch richErr.Category {
	case errors.CategoryValidation, errors.CategoryBadInput:
		return http.StatusBadRequest
	case errors.CategoryAuth, errors.CategoryAuthz:
		return http.StatusUnauthorized
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case errors.CategoryNotFound:
		return http.StatusNotFound
	}

	if richErr.Code >= http.StatusBadRequest {
		return richErr.Code
	}

	return http.StatusInternalServerError
}

func textCodeOrDefault(richErr *errors.Error) string {
	if richErr.TextCode != "" {
		return richErr.TextCode
	}
	return "INTERNAL_ERROR"
}
