package identity

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeMalformedPayload    = "MALFORMED_IDENTITY_PAYLOAD"
	textCodeUnauthenticated     = "UNAUTHENTICATED"
	textCodeIdentityNotLoaded   = "IDENTITY_NOT_LOADED"
	textCodeSessionNotFound     = "SESSION_NOT_FOUND"
	textCodeTerminationConflict = "SESSION_TERMINATION_CONFLICT"
	textCodeCurrentProtected    = "CURRENT_SESSION_PROTECTED"
	textCodeProfileNotFound     = "PROFILE_NOT_FOUND"
	textCodeEntitlementRefresh  = "ENTITLEMENT_REFRESH_FAILED"
)

// ErrMalformedPayload is returned when no supported identity payload shape
// matches. Treated as unauthenticated: an unparseable identity cannot be
// trusted.
var ErrMalformedPayload = goerrors.New("identity payload is malformed", goerrors.CategoryBadInput).
	WithTextCode(textCodeMalformedPayload).
	WithCode(goerrors.CodeBadRequest)

// ErrUnauthenticated is returned when the auth backend rejects the current
// session. The coordinator responds with a full logout.
var ErrUnauthenticated = goerrors.New("request was not authenticated", goerrors.CategoryAuth).
	WithTextCode(textCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrIdentityNotLoaded is returned by operations that require a resolved
// identity.
var ErrIdentityNotLoaded = goerrors.New("no identity is currently loaded", goerrors.CategoryAuth).
	WithTextCode(textCodeIdentityNotLoaded).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionNotFound is returned when a termination targets an unknown
// session id.
var ErrSessionNotFound = goerrors.New("session not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeSessionNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrTerminationConflict is returned when the backend rejects a termination
// and the optimistic local mutation has been rolled back.
var ErrTerminationConflict = goerrors.New("session termination failed and was rolled back", goerrors.CategoryConflict).
	WithTextCode(textCodeTerminationConflict).
	WithCode(goerrors.CodeConflict)

// ErrCurrentSessionProtected is returned when a termination would deactivate
// the record matching the identity's current session token.
var ErrCurrentSessionProtected = goerrors.New("current session cannot be terminated", goerrors.CategoryValidation).
	WithTextCode(textCodeCurrentProtected).
	WithCode(goerrors.CodeBadRequest)

// ErrProfileNotFound is returned when a profile transition names an id not
// present in the candidate list.
var ErrProfileNotFound = goerrors.New("profile not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeProfileNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrEntitlementRefresh wraps transient entitlement check failures. The
// previous snapshot is kept and the error is surfaced as a state flag, never
// as access.
var ErrEntitlementRefresh = goerrors.New("entitlement refresh failed", goerrors.CategoryOperation).
	WithTextCode(textCodeEntitlementRefresh)

// IsAuthError reports whether err forces a full logout: the backend said 401
// or returned a payload we refuse to trust.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	return goerrors.Is(err, ErrUnauthenticated) || goerrors.Is(err, ErrMalformedPayload)
}
