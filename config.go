package facade

import (
	"fmt"
	"log/slog"
)

// Default TTLs and margins, in seconds
const (
	// DefaultPendingAuthorizationTTL bounds how long a relayed authorization
	// may sit between /authorize and the upstream callback
	DefaultPendingAuthorizationTTL int64 = 300

	// DefaultIssuedCodeTTL bounds how long a relayed code may sit between
	// the callback and its redemption at /token
	DefaultIssuedCodeTTL int64 = 600

	// DefaultClientCredentialsTTL is the lifetime of client-credentials tokens
	DefaultClientCredentialsTTL int64 = 3600

	// DefaultUpstreamExpiryMargin is subtracted from the upstream token's
	// expiry when deriving a minted token's lifetime, so the minted token
	// never outlives the upstream token it delegates
	DefaultUpstreamExpiryMargin int64 = 120

	// DefaultMinMintedTTL is the floor applied after subtracting the margin,
	// so a nearly-expired upstream token still yields a usable response
	DefaultMinMintedTTL int64 = 30
)

// ConfidentialClient is a statically configured client allowed to use the
// client-credentials grant.
type ConfidentialClient struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// ServerConfig holds the facade server configuration
type ServerConfig struct {
	// Issuer is the facade's issuer identifier (base URL), used in minted
	// tokens and discovery metadata
	Issuer string

	// Resource is the protected resource identifier advertised via RFC 9728
	// metadata (optional)
	Resource string

	// DefaultScopes are applied when a request carries no scope parameter
	DefaultScopes []string

	// AllowedIssuers is the issuer allow-list for token-exchange subject
	// tokens; typically the known issuer forms of the configured IdP tenant
	AllowedIssuers []string

	// ConfidentialClients is the static registry for the client-credentials grant
	ConfidentialClients []ConfidentialClient

	// PendingAuthorizationTTL is how long pending authorizations are valid (seconds)
	PendingAuthorizationTTL int64

	// IssuedCodeTTL is how long relayed authorization codes are redeemable (seconds)
	IssuedCodeTTL int64

	// ClientCredentialsTTL is the lifetime of client-credentials tokens (seconds)
	ClientCredentialsTTL int64

	// UpstreamExpiryMargin is the safety margin subtracted from upstream
	// token expiry when minting (seconds)
	UpstreamExpiryMargin int64

	// MinMintedTTL is the minimum lifetime of a minted token (seconds)
	MinMintedTTL int64

	// AuditEnabled controls security audit logging
	AuditEnabled bool
}

// applySecureDefaults fills zero-valued fields with secure defaults
func (c *ServerConfig) applySecureDefaults(logger *slog.Logger) {
	if c.PendingAuthorizationTTL <= 0 {
		c.PendingAuthorizationTTL = DefaultPendingAuthorizationTTL
	}
	if c.IssuedCodeTTL <= 0 {
		c.IssuedCodeTTL = DefaultIssuedCodeTTL
	}
	if c.ClientCredentialsTTL <= 0 {
		c.ClientCredentialsTTL = DefaultClientCredentialsTTL
	}
	if c.UpstreamExpiryMargin <= 0 {
		c.UpstreamExpiryMargin = DefaultUpstreamExpiryMargin
	}
	if c.MinMintedTTL <= 0 {
		c.MinMintedTTL = DefaultMinMintedTTL
	}
	if len(c.ConfidentialClients) == 0 {
		logger.Warn("no confidential clients configured, client_credentials grant will reject all requests")
	}
}

// Validate checks that required configuration is present
func (c *ServerConfig) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	if len(c.AllowedIssuers) == 0 {
		return fmt.Errorf("at least one allowed issuer is required for token exchange")
	}
	for i, client := range c.ConfidentialClients {
		if client.ClientID == "" || client.ClientSecret == "" {
			return fmt.Errorf("confidential client %d is missing client_id or client_secret", i)
		}
	}
	return nil
}
