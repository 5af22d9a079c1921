package revocation

import "errors"

// Validation failure kinds. Callers match with errors.Is; the HTTP layer
// collapses all of them into a generic unauthorized response so the wire
// never leaks which check failed.
var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrKeyNotFound      = errors.New("signing key not found")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrNotYetValid      = errors.New("token not yet valid")
	ErrIssuerMismatch   = errors.New("token issuer mismatch")
	ErrAudienceMismatch = errors.New("token audience mismatch")
)
