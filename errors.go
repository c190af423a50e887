package facade

import (
	"fmt"
	"net/http"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeServerError          = "server_error"
	ErrorCodeRateLimitExceeded    = "rate_limit_exceeded"
)

// OAuthError represents an OAuth 2.0 error response
type OAuthError struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common OAuth errors as reusable instances
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidGrant indicates the authorization code, state, or subject token is invalid or expired
	ErrInvalidGrant = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
	}

	// ErrInvalidClient indicates client authentication failed
	ErrInvalidClient = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidClient, desc, http.StatusBadRequest)
	}

	// ErrInvalidScope indicates the requested scope is invalid or unsupported
	ErrInvalidScope = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidScope, desc, http.StatusBadRequest)
	}

	// ErrUnsupportedGrantType indicates the grant type is not supported
	ErrUnsupportedGrantType = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
	}

	// ErrServerError indicates an internal server error occurred
	ErrServerError = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}
)

// Flow-specific errors. The /callback and /token endpoints return these so a
// client knows it has to restart the flow rather than retry the same request.
var (
	// ErrExpiredOrUnknownState indicates a callback state that does not
	// resolve to a pending authorization (expired, consumed, or forged).
	ErrExpiredOrUnknownState = func() *OAuthError {
		return NewOAuthError(ErrorCodeInvalidGrant, "state is expired or unknown", http.StatusBadRequest)
	}

	// ErrUnknownOrExpiredCode indicates an authorization code that does not
	// resolve to an issued code or was already redeemed.
	ErrUnknownOrExpiredCode = func() *OAuthError {
		return NewOAuthError(ErrorCodeInvalidGrant, "authorization code is unknown, expired, or already redeemed", http.StatusBadRequest)
	}

	// ErrInvalidSubjectToken indicates a token-exchange subject token that
	// failed signature, issuer, or lifetime validation.
	ErrInvalidSubjectToken = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidGrant, "invalid subject token: "+desc, http.StatusBadRequest)
	}
)
