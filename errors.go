package remember

import (
	stderrors "errors"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeMissingUserLookup     = "REMEMBER_ME_MISSING_USER_LOOKUP"
	TextCodeDispatcherUnavailable = "REMEMBER_ME_DISPATCHER_UNAVAILABLE"
	TextCodeConfiguratorFrozen    = "REMEMBER_ME_CONFIGURATOR_FROZEN"
	TextCodeNotResolved           = "REMEMBER_ME_NOT_RESOLVED"
	TextCodeSharedObjectExists    = "SHARED_OBJECT_EXISTS"
	TextCodeAlreadyBuilt          = "PIPELINE_ALREADY_BUILT"
	TextCodeInvalidConfig         = "REMEMBER_ME_INVALID_CONFIG"

	TextCodeInvalidCookie     = "REMEMBER_ME_INVALID_COOKIE"
	TextCodeCookieExpired     = "REMEMBER_ME_COOKIE_EXPIRED"
	TextCodeSignatureMismatch = "REMEMBER_ME_SIGNATURE_MISMATCH"
	TextCodeSeriesNotFound    = "REMEMBER_ME_SERIES_NOT_FOUND"
	TextCodeUserDisabled      = "REMEMBER_ME_USER_DISABLED"
	TextCodeCookieTheft       = "REMEMBER_ME_COOKIE_THEFT"
	TextCodeTokenMismatch     = "REMEMBER_ME_TOKEN_MISMATCH"

	TextCodeBadCredentials = "BAD_CREDENTIALS"
	TextCodeNoProvider     = "NO_AUTHENTICATION_PROVIDER"
	TextCodeKeyMismatch    = "REMEMBER_ME_KEY_MISMATCH"
	TextCodeEmptyPassword  = "EMPTY_PASSWORD"
)

// ErrMissingUserLookup is returned when the configurator has neither a
// user lookup nor an explicit mechanism.
var ErrMissingUserLookup = errors.New(
	"user lookup cannot be nil: call RememberMe.WithUserLookup, publish one under UserLookupKey, or supply a mechanism with RememberMe.WithMechanism",
	errors.CategoryBadInput,
).WithTextCode(TextCodeMissingUserLookup)

// ErrDispatcherUnavailable is returned when configure runs before the
// pipeline built its authentication dispatcher.
var ErrDispatcherUnavailable = errors.New("authentication dispatcher is not available", errors.CategoryBadInput).
	WithTextCode(TextCodeDispatcherUnavailable)

// ErrConfiguratorFrozen is recorded when a setting changes after resolution
var ErrConfiguratorFrozen = errors.New("remember-me configurator settings are frozen after resolution", errors.CategoryBadInput).
	WithTextCode(TextCodeConfiguratorFrozen)

// ErrNotResolved is returned when configure runs before init
var ErrNotResolved = errors.New("remember-me mechanism has not been resolved, init must run first", errors.CategoryBadInput).
	WithTextCode(TextCodeNotResolved)

// ErrSharedObjectExists is returned when a capability key is set twice
var ErrSharedObjectExists = errors.New("shared object already registered", errors.CategoryBadInput).
	WithTextCode(TextCodeSharedObjectExists)

// ErrAlreadyBuilt is returned when a pipeline is built twice or changed
// after being built.
var ErrAlreadyBuilt = errors.New("security pipeline already built", errors.CategoryBadInput).
	WithTextCode(TextCodeAlreadyBuilt)

// ErrInvalidCookie malformed remember-me cookie
var ErrInvalidCookie = errors.New("invalid remember-me cookie", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCookie).
	WithCode(errors.CodeUnauthorized)

// ErrCookieExpired remember-me token past its validity window
var ErrCookieExpired = errors.New("remember-me token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeCookieExpired).
	WithCode(errors.CodeUnauthorized)

// ErrSignatureMismatch stateless token signature did not verify
var ErrSignatureMismatch = errors.New("remember-me token signature mismatch", errors.CategoryAuth).
	WithTextCode(TextCodeSignatureMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrSeriesNotFound persistent series is unknown to the store
var ErrSeriesNotFound = errors.New("remember-me series not found", errors.CategoryAuth).
	WithTextCode(TextCodeSeriesNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrUserDisabled the remembered user can no longer log in
var ErrUserDisabled = errors.New("remembered user is disabled", errors.CategoryAuth).
	WithTextCode(TextCodeUserDisabled).
	WithCode(errors.CodeUnauthorized)

// ErrCookieTheft a stale token was presented for a live series. The
// series is invalidated before this error is returned.
var ErrCookieTheft = errors.New("remember-me token mismatch, possible cookie theft", errors.CategoryAuth).
	WithTextCode(TextCodeCookieTheft).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMismatch is returned by TokenRotator implementations when the
// stored token no longer matches the presented one.
var ErrTokenMismatch = errors.New("stored token does not match presented token", errors.CategoryConflict).
	WithTextCode(TextCodeTokenMismatch).
	WithCode(errors.CodeConflict)

// ErrBadCredentials username or password rejected
var ErrBadCredentials = errors.New("bad credentials", errors.CategoryAuth).
	WithTextCode(TextCodeBadCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrNoProvider no provider supports the authentication request
var ErrNoProvider = errors.New("no authentication provider supports the request", errors.CategoryAuth).
	WithTextCode(TextCodeNoProvider).
	WithCode(errors.CodeUnauthorized)

// ErrKeyMismatch remember-me authentication was built with another key
var ErrKeyMismatch = errors.New("remember-me authentication was not built with the configured key", errors.CategoryAuth).
	WithTextCode(TextCodeKeyMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString password must not be empty
var ErrNoEmptyString = errors.New("password cannot be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// IsConfigurationError reports build time errors raised while wiring
// the pipeline.
func IsConfigurationError(err error) bool {
	switch textCode(err) {
	case TextCodeMissingUserLookup,
		TextCodeDispatcherUnavailable,
		TextCodeConfiguratorFrozen,
		TextCodeNotResolved,
		TextCodeSharedObjectExists,
		TextCodeAlreadyBuilt,
		TextCodeInvalidConfig:
		return true
	}
	return false
}

// IsValidationFailure reports per request remember-me failures. Theft
// detection is also a validation failure.
func IsValidationFailure(err error) bool {
	switch textCode(err) {
	case TextCodeInvalidCookie,
		TextCodeCookieExpired,
		TextCodeSignatureMismatch,
		TextCodeSeriesNotFound,
		TextCodeUserDisabled,
		TextCodeCookieTheft:
		return true
	}
	return false
}

// IsTheftDetected reports whether a persistent series was invalidated
// because a stale token was presented.
func IsTheftDetected(err error) bool {
	return textCode(err) == TextCodeCookieTheft
}

// IsTokenMismatch reports a lost compare-and-swap on a series
func IsTokenMismatch(err error) bool {
	return textCode(err) == TextCodeTokenMismatch
}

// IsSeriesNotFound reports an unknown series
func IsSeriesNotFound(err error) bool {
	return textCode(err) == TextCodeSeriesNotFound
}

func textCode(err error) string {
	for err != nil {
		if richErr, ok := err.(*errors.Error); ok && richErr.TextCode != "" {
			return richErr.TextCode
		}
		err = stderrors.Unwrap(err)
	}
	return ""
}

// failure clones a sentinel so per request metadata never leaks into
// the shared value.
func failure(sentinel *errors.Error, metadata map[string]any) *errors.Error {
	clone := sentinel.Clone()
	if len(metadata) > 0 {
		clone = clone.WithMetadata(metadata)
	}
	return clone
}
