package auth

import (
	"context"
	"fmt"
)

// ClaimsDecorator can mutate allowed JWT claim extensions before a token is signed.
// Implementations may only touch the Metadata extension and must leave
// registered/identity claims untouched so core auth semantics stay stable.
type ClaimsDecorator interface {
	Decorate(ctx context.Context, identity Identity, claims *JWTClaims) error
}

// ClaimsDecoratorFunc adapts a function into a ClaimsDecorator.
type ClaimsDecoratorFunc func(ctx context.Context, identity Identity, claims *JWTClaims) error

// Decorate satisfies the ClaimsDecorator interface.
func (f ClaimsDecoratorFunc) Decorate(ctx context.Context, identity Identity, claims *JWTClaims) error {
	if f == nil {
		return nil
	}
	return f(ctx, identity, claims)
}

type noopClaimsDecorator struct{}

func (noopClaimsDecorator) Decorate(context.Context, Identity, *JWTClaims) error {
	return nil
}

func normalizeClaimsDecorator(d ClaimsDecorator) ClaimsDecorator {
	if d == nil {
		return noopClaimsDecorator{}
	}
	return d
}

// immutableClaims is the snapshot used to verify decorators did not touch
// protected claims.
type immutableClaims struct {
	subject string
	uid     string
	email   string
	role    string
	tier    string
	issuer  string
	exp     int64
	iat     int64
}

func captureImmutableClaims(claims *JWTClaims) immutableClaims {
	snap := immutableClaims{
		subject: claims.RegisteredClaims.Subject,
		uid:     claims.UID,
		email:   claims.UserEmail,
		role:    claims.UserRole,
		tier:    claims.Tier,
		issuer:  claims.RegisteredClaims.Issuer,
	}
	if claims.RegisteredClaims.ExpiresAt != nil {
		snap.exp = claims.RegisteredClaims.ExpiresAt.Unix()
	}
	if claims.RegisteredClaims.IssuedAt != nil {
		snap.iat = claims.RegisteredClaims.IssuedAt.Unix()
	}
	return snap
}

func (s immutableClaims) validate(claims *JWTClaims) error {
	current := captureImmutableClaims(claims)
	if current != s {
		return fmt.Errorf("claims decorator mutated protected claims")
	}
	return nil
}
