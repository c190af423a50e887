// Package security provides rate limiting and audit logging for the
// authorization facade.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	Subject   string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"subject_hash", hashForLogging(event.Subject),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogAuthorizationRelayed logs an /authorize request relayed upstream
func (a *Auditor) LogAuthorizationRelayed(clientID, ipAddress, state string) {
	a.LogEvent(Event{
		Type:      "authorization_relayed",
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"state_hash": hashForLogging(state),
		},
	})
}

// LogCallbackStitched logs an upstream callback successfully relayed back to
// the downstream client
func (a *Auditor) LogCallbackStitched(ipAddress, state string) {
	a.LogEvent(Event{
		Type:      "callback_stitched",
		IPAddress: ipAddress,
		Details: map[string]any{
			"state_hash": hashForLogging(state),
		},
	})
}

// LogTokenMinted logs a minted token with its grant type
func (a *Auditor) LogTokenMinted(subject, clientID, ipAddress, grantType, scope string) {
	a.LogEvent(Event{
		Type:      "token_minted",
		Subject:   subject,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"grant_type": grantType,
			"scope":      scope,
		},
	})
}

// LogFlowRejected logs a rejected callback or redemption (unknown state,
// unknown or replayed code)
func (a *Auditor) LogFlowRejected(ipAddress, stage, reason string) {
	a.LogEvent(Event{
		Type:      "flow_rejected",
		IPAddress: ipAddress,
		Details: map[string]any{
			"stage":  stage,
			"reason": reason,
		},
	})
}

// LogSubjectTokenRejected logs a token-exchange subject token that failed validation
func (a *Auditor) LogSubjectTokenRejected(ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      "subject_token_rejected",
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogClientAuthFailure logs a client-credentials authentication failure
func (a *Auditor) LogClientAuthFailure(clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      "client_auth_failure",
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogClientRegistered logs a dynamic client registration
func (a *Auditor) LogClientRegistered(clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      "client_registered",
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      "rate_limit_exceeded",
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// hashForLogging creates a SHA-256 hash of sensitive data for logging.
// Returns the first 16 hex characters, enough to correlate events without
// exposing the value.
func hashForLogging(value string) string {
	if value == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:])[:16]
}
