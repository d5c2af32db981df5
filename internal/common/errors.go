// Package common defines shared constants and sentinel errors used across
// the credential broker. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrEmailConflict = errors.New("email already belongs to another account")

	// Session token errors.
	ErrMissingToken = errors.New("missing bearer token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")

	// Credential errors.
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrRefreshFailed       = errors.New("token refresh failed")

	// Key material errors. Both are fatal at startup.
	ErrEncryptionUnavailable = errors.New("encryption key not configured")
	ErrSigningKeyUnavailable = errors.New("signing key not configured")
)

// AuthOutcome is the closed set of results an authentication attempt can end in.
type AuthOutcome int

const (
	OutcomeOK AuthOutcome = iota
	OutcomeMissing
	OutcomeExpired
	OutcomeInvalid
	OutcomeNotFound
	OutcomeUnavailable
)

func (o AuthOutcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeMissing:
		return "missing_token"
	case OutcomeExpired:
		return "token_expired"
	case OutcomeInvalid:
		return "token_invalid"
	case OutcomeNotFound:
		return "credentials_not_found"
	case OutcomeUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Classify maps an error returned by the resolution pipeline onto an AuthOutcome.
// Anything that is not one of the known sentinels (database failures,
// client construction errors) is reported as OutcomeUnavailable.
func Classify(err error) AuthOutcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrMissingToken):
		return OutcomeMissing
	case errors.Is(err, ErrTokenExpired):
		return OutcomeExpired
	case errors.Is(err, ErrTokenInvalid):
		return OutcomeInvalid
	case errors.Is(err, ErrCredentialsNotFound):
		return OutcomeNotFound
	default:
		return OutcomeUnavailable
	}
}
