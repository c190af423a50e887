// Package upstream talks to the single enterprise IdP app registration the
// facade fronts: building authorization URLs, redeeming authorization codes
// with the facade's confidential credentials, and caching the IdP's signing
// keys.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultRequestTimeout bounds every outbound call to the IdP.
const DefaultRequestTimeout = 30 * time.Second

// TokenEndpointError carries a non-success response from the IdP's token
// endpoint. The token handler relays status and body to the caller verbatim.
type TokenEndpointError struct {
	Status int    // HTTP status code returned by the IdP
	Body   []byte // raw response body returned by the IdP
}

// Error implements the error interface
func (e *TokenEndpointError) Error() string {
	return fmt.Sprintf("upstream token endpoint returned %d: %s", e.Status, e.Body)
}

// Config holds the upstream IdP app registration settings.
type Config struct {
	// ClientID is the facade's confidential client ID at the IdP (required)
	ClientID string

	// ClientSecret is the facade's confidential client secret (required)
	ClientSecret string

	// RedirectURL is the facade's fixed, pre-registered callback URL (required).
	// It is the only redirect URI the IdP accepts, which is the mismatch the
	// facade exists to absorb.
	RedirectURL string

	// AuthorizationEndpoint is the IdP's authorization endpoint URL (required)
	AuthorizationEndpoint string

	// TokenEndpoint is the IdP's token endpoint URL (required)
	TokenEndpoint string

	// Scopes are the default scopes requested upstream when a client
	// supplies none
	Scopes []string

	// RequestTimeout bounds outbound calls; DefaultRequestTimeout if zero
	RequestTimeout time.Duration

	// HTTPClient overrides the HTTP client for outbound calls (optional)
	HTTPClient *http.Client
}

// Provider relays authorization requests and code redemptions to the IdP.
type Provider struct {
	*oauth2.Config

	httpClient     *http.Client
	requestTimeout time.Duration
}

// New creates a Provider for the configured app registration
func New(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("redirect URL is required")
	}
	if cfg.AuthorizationEndpoint == "" || cfg.TokenEndpoint == "" {
		return nil, fmt.Errorf("authorization and token endpoints are required")
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Provider{
		Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizationEndpoint,
				TokenURL:  cfg.TokenEndpoint,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient:     httpClient,
		requestTimeout: timeout,
	}, nil
}

// DefaultScopes returns the configured default scopes.
// Returns a copy to prevent external modification.
func (p *Provider) DefaultScopes() []string {
	if p.Scopes == nil {
		return nil
	}
	scopes := make([]string, len(p.Scopes))
	copy(scopes, p.Scopes)
	return scopes
}

// AuthorizationURL builds the IdP authorization URL for a relayed request.
// The downstream client's code challenge travels upstream unmodified, so the
// IdP performs the eventual verifier check. The resource parameter (RFC 8707)
// is forwarded when present.
func (p *Provider) AuthorizationURL(state, codeChallenge, resource string, scopes []string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if resource != "" {
		opts = append(opts, oauth2.SetAuthURLParam("resource", resource))
	}

	config := *p.Config
	if len(scopes) > 0 {
		config.Scopes = make([]string, len(scopes))
		copy(config.Scopes, scopes)
	}
	return config.AuthCodeURL(state, opts...)
}

// ensureContextTimeout adds the provider's request timeout when the context
// has no deadline of its own.
func (p *Provider) ensureContextTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.requestTimeout)
}

// ExchangeCode redeems an upstream-issued authorization code using the
// facade's confidential credentials, its fixed redirect URI, and the
// downstream caller's PKCE verifier. A non-success response from the IdP is
// returned as *TokenEndpointError with the IdP's status and body intact.
func (p *Provider) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return nil, &TokenEndpointError{Status: rerr.Response.StatusCode, Body: rerr.Body}
		}
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return tok, nil
}
