package account

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeValidationFailed   = "VALIDATION_FAILED"
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeNetworkError       = "NETWORK_ERROR"
	textCodeAuthError          = "AUTH_ERROR"
	textCodeProviderError      = "PROVIDER_ERROR"
	textCodeSessionNotFound    = "SESSION_NOT_FOUND"
	textCodeNotInitialized     = "MANAGER_NOT_INITIALIZED"
	textCodeTokenDecodeFailed  = "TOKEN_DECODE_FAILED"
	textCodeClaimsMapFailed    = "CLAIMS_MAP_FAILED"
)

// ErrInvalidCredentials is returned when the provider rejects a password grant.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionNotFound is returned when no session is available to recover.
var ErrSessionNotFound = goerrors.New("no session available", goerrors.CategoryNotFound).
	WithTextCode(textCodeSessionNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNotInitialized is returned when a Manager operation runs before Initialize.
var ErrNotInitialized = goerrors.New("session manager is not initialized", goerrors.CategoryOperation).
	WithTextCode(textCodeNotInitialized).
	WithCode(goerrors.CodeConflict)

// ErrUnableToDecodeToken is returned when an access token cannot be parsed.
var ErrUnableToDecodeToken = goerrors.New("unable to decode access token", goerrors.CategoryBadInput).
	WithTextCode(textCodeTokenDecodeFailed).
	WithCode(goerrors.CodeBadRequest)

// ErrUnableToMapClaims is returned when token claims carry no usable identity.
var ErrUnableToMapClaims = goerrors.New("unable to map token claims", goerrors.CategoryBadInput).
	WithTextCode(textCodeClaimsMapFailed).
	WithCode(goerrors.CodeBadRequest)

// WrapValidationError normalizes local pre-network validation failures.
func WrapValidationError(err error) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid payload").
		WithTextCode(textCodeValidationFailed).
		WithCode(goerrors.CodeBadRequest)
}

// WrapNetworkError normalizes transport-level failures, including step
// timeouts, into the retryable network category.
func WrapNetworkError(err error, msg string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, msg).
		WithTextCode(textCodeNetworkError).
		WithCode(goerrors.CodeInternal)
}

// WrapAuthError normalizes sign-out and session maintenance failures.
func WrapAuthError(err error, msg string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryAuth, msg).
		WithTextCode(textCodeAuthError).
		WithCode(goerrors.CodeUnauthorized)
}

// NewProviderError carries a provider rejection verbatim, categorized by the
// HTTP status it arrived with. Internal code never branches on provider
// message formats; it branches on the category and text code set here.
func NewProviderError(message string, status int) *goerrors.Error {
	category := goerrors.CategoryOperation
	code := goerrors.CodeInternal

	switch {
	case status == 409:
		category = goerrors.CategoryConflict
		code = goerrors.CodeConflict
	case status == 401 || status == 403:
		category = goerrors.CategoryAuth
		code = goerrors.CodeUnauthorized
	case status >= 400 && status < 500:
		category = goerrors.CategoryBadInput
		code = goerrors.CodeBadRequest
	}

	return goerrors.New(message, category).
		WithTextCode(textCodeProviderError).
		WithCode(code).
		WithMetadata(map[string]any{"status": status})
}

// HasTextCode reports whether err (or any wrapped cause) carries the code.
func HasTextCode(err error, code string) bool {
	for err != nil {
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) {
			return false
		}
		if richErr.TextCode == code {
			return true
		}
		err = errors.Unwrap(richErr)
	}
	return false
}

// IsValidationError reports local pre-network rejection.
func IsValidationError(err error) bool {
	return HasTextCode(err, textCodeValidationFailed)
}

// IsInvalidCredentials reports a rejected password grant.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || HasTextCode(err, textCodeInvalidCredentials)
}

// IsNetworkError reports a transport-level failure at any step.
func IsNetworkError(err error) bool {
	return HasTextCode(err, textCodeNetworkError)
}

// FailedStep extracts the provisioning step recorded on a saga error.
func FailedStep(err error) (Step, bool) {
	if err == nil {
		return "", false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return "", false
	}
	if richErr.Metadata == nil {
		return "", false
	}
	raw, ok := richErr.Metadata["step"]
	if !ok {
		return "", false
	}
	step, ok := raw.(string)
	if !ok {
		return "", false
	}
	return Step(step), true
}
