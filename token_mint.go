package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenOptions carries per-call overrides for MintToken. Zero values defer
// to the TokenService defaults.
type TokenOptions struct {
	TTL      time.Duration
	Issuer   string
	Audience []string
	// IssuedAt pins the issuance instant; zero means now. Useful for
	// minting already-expired tokens in tests.
	IssuedAt time.Time
}

type tokenDefaults struct {
	issuer   string
	audience jwt.ClaimStrings
	ttl      time.Duration
}

type tokenDefaultsProvider interface {
	tokenDefaults() tokenDefaults
}

// MintToken signs a token for identity, applying opts over the service
// defaults, and returns the signed string with its expiry.
func MintToken(tokenService TokenService, identity Identity, opts TokenOptions) (string, time.Time, error) {
	if tokenService == nil {
		return "", time.Time{}, goerrors.New("token service is required", goerrors.CategoryBadInput)
	}
	if identity == nil {
		return "", time.Time{}, goerrors.New("identity is required", goerrors.CategoryBadInput)
	}

	issuer, audience, ttl := resolveTokenOptions(tokenService, opts)
	if ttl < 0 {
		return "", time.Time{}, goerrors.New("token TTL must be non-negative", goerrors.CategoryBadInput)
	}

	issuedAt := opts.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	expiresAt := issuedAt.Add(ttl)

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.ID(),
			Audience:  audience,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:       identity.ID(),
		UserEmail: identity.Email(),
		UserRole:  identity.Role(),
		Tier:      identity.SubscriptionTier(),
	}
	ensureTokenID(&claims.RegisteredClaims)

	signed, err := tokenService.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

func resolveTokenOptions(ts TokenService, opts TokenOptions) (string, jwt.ClaimStrings, time.Duration) {
	issuer := opts.Issuer
	ttl := opts.TTL

	var audience jwt.ClaimStrings
	if len(opts.Audience) > 0 {
		audience = make(jwt.ClaimStrings, len(opts.Audience))
		copy(audience, opts.Audience)
	}

	if provider, ok := ts.(tokenDefaultsProvider); ok {
		defaults := provider.tokenDefaults()
		if issuer == "" {
			issuer = defaults.issuer
		}
		if len(audience) == 0 {
			audience = defaults.audience
		}
		if ttl == 0 {
			ttl = defaults.ttl
		}
	}

	return issuer, audience, ttl
}
