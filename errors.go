package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Stable text codes surfaced to API clients alongside the HTTP status.
const (
	TextCodeInvalidCreds     = "INVALID_CREDENTIALS"
	TextCodeAccountDisabled  = "ACCOUNT_DISABLED"
	TextCodeRateLimited      = "RATE_LIMITED"
	TextCodeDuplicateEmail   = "EMAIL_ALREADY_REGISTERED"
	TextCodeTokenExpired     = "TOKEN_EXPIRED"
	TextCodeTokenMalformed   = "TOKEN_MALFORMED"
	TextCodeSessionNotFound  = "SESSION_NOT_FOUND"
	TextCodeValidationFailed = "VALIDATION_FAILED"
)

// ErrIdentityNotFound is returned when a user cannot be resolved. It is
// mapped to invalid credentials before it ever leaves the orchestrator so
// callers cannot probe for registered emails.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode("IDENTITY_NOT_FOUND")

// ErrMismatchedHashAndPassword is the single denial for a wrong email or a
// wrong password.
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountDisabled is returned when credentials check out but the account
// has been deactivated. Only callers holding the correct password ever see it.
var ErrAccountDisabled = goerrors.New("this account has been disabled", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(goerrors.CodeUnauthorized)

// ErrRateLimited is returned when a client key exhausted its attempt window.
var ErrRateLimited = goerrors.New("too many attempts, retry later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited)

// ErrDuplicateEmail is returned by Register when the email is already taken.
var ErrDuplicateEmail = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrTokenExpired indicates a structurally valid token past its expiry;
// distinct from ErrTokenMalformed so callers know a refresh is meaningful.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed indicates a token that failed signature or structural
// validation. Refreshing will not help.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionNotFound covers both a session that never existed and one whose
// expiry has passed; the two are intentionally indistinguishable.
var ErrSessionNotFound = goerrors.New("session not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNoEmptyString rejects empty input to the password hasher.
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidationFailed).
	WithCode(goerrors.CodeBadRequest)

// CredentialDenial wraps a credential failure once a real account has been
// matched, carrying its id for audit attribution. Callers unwrap to the
// usual sentinels, so the denial presented externally stays unchanged.
type CredentialDenial struct {
	UserID uuid.UUID
	Err    error
}

func (e *CredentialDenial) Error() string { return e.Err.Error() }
func (e *CredentialDenial) Unwrap() error { return e.Err }

// ValidationError builds the aggregate error for a structurally invalid
// payload; every violated rule is listed, not just the first.
func ValidationError(violations []string) *goerrors.Error {
	return goerrors.New("validation failed", goerrors.CategoryValidation).
		WithTextCode(TextCodeValidationFailed).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"violations": violations})
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
