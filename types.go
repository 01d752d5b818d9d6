package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated principal
type Identity interface {
	ID() string
	Email() string
	Name() string
	Role() string
	SubscriptionTier() string
}

// IdentityProvider ensure we have a store to retrieve auth identity
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, email, password string) (Identity, error)
	FindIdentityByID(ctx context.Context, id string) (Identity, error)
}

// RateLimiter guards the credential-bearing endpoints. Allow increments the
// window counter for key and reports whether the attempt may proceed.
// Implementations must be safe under concurrent increments for a shared key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Authenticator holds the four orchestrated operations
type Authenticator interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, input LoginInput) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
	Logout(ctx context.Context, token string, device DeviceInfo) error
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetRefreshSigningKey() string
	GetTokenExpiration() time.Duration
	GetRefreshTokenExpiration() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetRateLimitWindow() time.Duration
	GetRateLimitMax() int
	GetDependencyTimeout() time.Duration
}

// SimpleConfig is a plain-struct Config for callers that do not carry their
// own configuration layer.
type SimpleConfig struct {
	SigningKey             string
	RefreshSigningKey      string
	TokenExpiration        time.Duration
	RefreshTokenExpiration time.Duration
	Issuer                 string
	Audience               []string
	RateLimitWindow        time.Duration
	RateLimitMax           int
	DependencyTimeout      time.Duration
}

var _ Config = SimpleConfig{}

func (c SimpleConfig) GetSigningKey() string        { return c.SigningKey }
func (c SimpleConfig) GetRefreshSigningKey() string { return c.RefreshSigningKey }

func (c SimpleConfig) GetTokenExpiration() time.Duration {
	if c.TokenExpiration <= 0 {
		return 24 * time.Hour
	}
	return c.TokenExpiration
}

func (c SimpleConfig) GetRefreshTokenExpiration() time.Duration {
	if c.RefreshTokenExpiration <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.RefreshTokenExpiration
}

func (c SimpleConfig) GetIssuer() string     { return c.Issuer }
func (c SimpleConfig) GetAudience() []string { return c.Audience }

func (c SimpleConfig) GetRateLimitWindow() time.Duration {
	if c.RateLimitWindow <= 0 {
		return 15 * time.Minute
	}
	return c.RateLimitWindow
}

func (c SimpleConfig) GetRateLimitMax() int {
	if c.RateLimitMax <= 0 {
		return 5
	}
	return c.RateLimitMax
}

func (c SimpleConfig) GetDependencyTimeout() time.Duration {
	if c.DependencyTimeout <= 0 {
		return 2 * time.Second
	}
	return c.DependencyTimeout
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
