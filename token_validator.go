package account

import (
	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator verifies an access token and extracts its identity without
// tying callers to a specific signing setup.
type TokenValidator interface {
	Validate(tokenString string) (*Identity, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (*Identity, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (*Identity, error) {
	if f == nil {
		return nil, ErrUnableToDecodeToken
	}
	return f(tokenString)
}

// NewHS256Validator verifies tokens signed with a shared secret, the common
// setup for self-hosted identity providers.
func NewHS256Validator(secret []byte) TokenValidator {
	return TokenValidatorFunc(func(tokenString string) (*Identity, error) {
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			return nil, ErrUnableToDecodeToken.WithMetadata(map[string]any{
				"cause": err.Error(),
			})
		}
		return validatedIdentity(claims)
	})
}

// NewJWKSValidator verifies tokens against the provider's JWK Set endpoint,
// for providers that issue asymmetric tokens.
func NewJWKSValidator(jwksURL string) (TokenValidator, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		return nil, WrapNetworkError(err, "could not load JWK set")
	}

	return TokenValidatorFunc(func(tokenString string) (*Identity, error) {
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(tokenString, claims, jwks.Keyfunc)
		if err != nil {
			return nil, ErrUnableToDecodeToken.WithMetadata(map[string]any{
				"cause": err.Error(),
			})
		}
		return validatedIdentity(claims)
	}), nil
}

// NewMultiTokenValidator tries validators in order until one succeeds.
func NewMultiTokenValidator(validators ...TokenValidator) TokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}

	return TokenValidatorFunc(func(tokenString string) (*Identity, error) {
		var lastErr error
		for _, v := range filtered {
			identity, err := v.Validate(tokenString)
			if err == nil {
				return identity, nil
			}
			lastErr = err
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, ErrUnableToDecodeToken
	})
}

func validatedIdentity(claims jwt.MapClaims) (*Identity, error) {
	identity := identityFromClaims(claims)
	if identity == nil || identity.ID == "" {
		return nil, ErrUnableToMapClaims
	}
	return identity, nil
}
