package auth

// TokenValidator is the read side of token handling: validate a string,
// get claims. TokenService satisfies it.
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (AuthClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (AuthClaims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

// MultiTokenValidator accepts a token when any of its validators does,
// trying them in order. During a signing-key rotation the old key runs
// behind the new one until outstanding tokens age out.
//
// A malformed verdict means "try the next key"; anything else, expiry
// included, is terminal.
type MultiTokenValidator struct {
	validators []TokenValidator
}

// NewMultiTokenValidator builds the composite, dropping nil entries.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	kept := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			kept = append(kept, v)
		}
	}
	return &MultiTokenValidator{validators: kept}
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(tokenString string) (AuthClaims, error) {
	lastErr := error(nil)

	for _, v := range m.validators {
		claims, err := v.Validate(tokenString)
		switch {
		case err == nil:
			return claims, nil
		case IsMalformedError(err):
			lastErr = err
		default:
			return nil, err
		}
	}

	if lastErr == nil {
		lastErr = ErrTokenMalformed
	}
	return nil, lastErr
}
