// Package revocation implements the global token revocation surface: a
// validator for externally-signed revocation bearer tokens and the HTTP
// endpoint that resolves a subject identifier to sessions and destroys them.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ClockSkew is the tolerance applied to exp/nbf/iat checks. The identity
// provider's clock is not ours.
const ClockSkew = 30 * time.Second

// Accepted header type markers for revocation bearer tokens. A token with a
// different marker is still verified; the mismatch is only logged (minor
// variance between provider versions is tolerated, cryptographic and claim
// failures are not).
var acceptedTokenTypes = map[string]bool{
	"JWT":                true,
	"at+jwt":             true,
	"application/at+jwt": true,
}

// approvedAlgorithms restricts verification to the RSA family. Anything
// else, notably "none" and the HMAC family, is rejected outright.
var approvedAlgorithms = []string{"RS256", "RS384", "RS512"}

// Validator verifies revocation tokens against a signing key set.
type Validator struct {
	keys KeyResolver
	log  *zap.Logger
}

// NewValidator creates a Validator resolving keys through the given resolver.
func NewValidator(keys KeyResolver, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{keys: keys, log: log}
}

// Validate verifies the raw token's signature, issuer, audience, and time
// claims, and returns the decoded claim set on success. Failures are one of
// the sentinel errors in errors.go, matchable with errors.Is; the wrapped
// detail is for logs only.
func (v *Validator) Validate(ctx context.Context, raw, audience, issuer string) (jwt.MapClaims, error) {
	// First pass: unverified parse to obtain the key id and declared type.
	unverified, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if typ, _ := unverified.Header["typ"].(string); !acceptedTokenTypes[typ] {
		v.log.Warn("unexpected revocation token type, proceeding",
			zap.String("typ", typ),
		)
	}

	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: token has no kid header", ErrKeyNotFound)
	}

	key, err := v.keys.ResolveKey(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.NewParser(
		jwt.WithValidMethods(approvedAlgorithms),
		jwt.WithLeeway(ClockSkew),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithIssuedAt(),
	).ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return nil, mapTokenError(err)
	}

	return claims, nil
}

// mapTokenError narrows a jwt/v5 error to one of the package's sentinel
// kinds, preserving the original detail in the wrap.
func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: %v", ErrNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %v", ErrIssuerMismatch, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %v", ErrAudienceMismatch, err)
	default:
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
}
