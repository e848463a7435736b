package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTokenUnparsable        = "TOKEN_UNPARSABLE"
	TextCodeTokenExpired           = "TOKEN_EXPIRED"
	TextCodeNoCredential           = "NO_CREDENTIAL"
	TextCodeInvalidResetTransition = "INVALID_RESET_TRANSITION"
	TextCodeResetStaleResult       = "RESET_STALE_RESULT"
	TextCodeResetInFlight          = "RESET_IN_FLIGHT"
	TextCodeResetGatewayFailure    = "RESET_GATEWAY_FAILURE"
)

// ErrTokenUnparsable is returned for malformed structure or invalid encoding
var ErrTokenUnparsable = goerrors.New("token is unparsable", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenUnparsable).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is returned when a credential is past its exp claim
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoCredential is returned by a CredentialStore holding no token
var ErrNoCredential = goerrors.New("no stored credential", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNoCredential).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidResetTransition is returned when a reset step is not allowed from the current stage.
var ErrInvalidResetTransition = goerrors.New("invalid password reset transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidResetTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrStaleResetResult is returned when a gateway call resolves after the flow was cancelled.
var ErrStaleResetResult = goerrors.New("password reset flow was superseded", goerrors.CategoryConflict).
	WithTextCode(TextCodeResetStaleResult).
	WithCode(goerrors.CodeConflict)

// ErrResetInFlight is returned when a step is submitted while another is pending.
var ErrResetInFlight = goerrors.New("password reset step already in progress", goerrors.CategoryConflict).
	WithTextCode(TextCodeResetInFlight).
	WithCode(goerrors.CodeConflict)

// IsUnparsable reports whether err marks an unparsable token
func IsUnparsable(err error) bool {
	return hasTextCode(err, TextCodeTokenUnparsable)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsNoCredential reports whether err is a missing credential
func IsNoCredential(err error) bool {
	return hasTextCode(err, TextCodeNoCredential)
}

// IsStaleResetResult reports whether a reset step result was discarded
func IsStaleResetResult(err error) bool {
	return hasTextCode(err, TextCodeResetStaleResult)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

func unparsable(reason string) error {
	return goerrors.New(ErrTokenUnparsable.Message, ErrTokenUnparsable.Category).
		WithTextCode(TextCodeTokenUnparsable).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"reason": reason})
}
