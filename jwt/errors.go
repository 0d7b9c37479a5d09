package jwt

import (
	"errors"
	"fmt"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformedToken is returned when the token is empty, not three segments, or its
	// header/payload cannot be decoded.
	ErrMalformedToken = errors.New("malformed token")
	// ErrSignatureInvalid is returned when the signature does not verify against the
	// configured secret or the token uses an algorithm other than HS512.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrExpired is returned when the exp claim is not strictly in the future.
	ErrExpired = errors.New("token expired")
	// ErrClaimMissing is returned when a required claim (sub, created, exp) is absent or
	// has the wrong type.
	ErrClaimMissing = errors.New("token claim missing")
	// ErrSubjectMismatch is returned when the token subject differs from the identity username.
	ErrSubjectMismatch = errors.New("token subject does not match identity")
	// ErrIssuedBeforeReset is returned when the token was created before the identity's
	// last password reset.
	ErrIssuedBeforeReset = errors.New("token issued before last password reset")
)

// ErrorKind is the classification of a token failure, suitable for metrics labels and
// audit reasons.
type ErrorKind uint8

const (
	KindNone ErrorKind = iota
	KindMalformed
	KindSignature
	KindExpired
	KindClaimMissing
	KindSubjectMismatch
	KindRevokedByReset
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMalformed:
		return "malformed"
	case KindSignature:
		return "signature_invalid"
	case KindExpired:
		return "expired"
	case KindClaimMissing:
		return "claim_missing"
	case KindSubjectMismatch:
		return "subject_mismatch"
	case KindRevokedByReset:
		return "issued_before_reset"
	default:
		return "unknown"
	}
}

// KindOf classifies err. A nil error is KindNone.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMalformedToken):
		return KindMalformed
	case errors.Is(err, ErrSignatureInvalid):
		return KindSignature
	case errors.Is(err, ErrExpired):
		return KindExpired
	case errors.Is(err, ErrClaimMissing):
		return KindClaimMissing
	case errors.Is(err, ErrSubjectMismatch):
		return KindSubjectMismatch
	case errors.Is(err, ErrIssuedBeforeReset):
		return KindRevokedByReset
	default:
		return KindUnknown
	}
}

// classifyParseError maps golang-jwt parser errors onto the package taxonomy.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, gjwt.ErrTokenSignatureInvalid),
		errors.Is(err, gjwt.ErrTokenUnverifiable),
		errors.Is(err, gjwt.ErrHashUnavailable),
		errors.Is(err, gjwt.ErrInvalidKeyType):
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
}
