// Package facade implements an OAuth 2.1 authorization facade between
// dynamically-registered public PKCE clients and a single confidential
// upstream IdP app registration. It relays authorization requests upstream
// under its own client identity, stitches the callback back to the original
// client, and re-mints short-lived audience-scoped tokens carrying
// delegation claims.
package facade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-oauth-facade/instrumentation"
	"github.com/giantswarm/mcp-oauth-facade/security"
	"github.com/giantswarm/mcp-oauth-facade/storage"
	"github.com/giantswarm/mcp-oauth-facade/token"
	"github.com/giantswarm/mcp-oauth-facade/upstream"
)

// Grant types dispatched by the token endpoint
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"

	// GrantTypeTokenExchange is the RFC 8693 token exchange grant type
	GrantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"

	// TokenTypeAccessToken is the RFC 8693 token type identifier for access tokens
	TokenTypeAccessToken = "urn:ietf:params:oauth:token-type:access_token"

	// PKCEMethodS256 is the only code challenge method the facade relays
	PKCEMethodS256 = "S256"
)

// Server implements the facade's flow logic, independent of HTTP transport.
type Server struct {
	provider  *upstream.Provider
	flowStore storage.FlowStore
	keys      *upstream.KeyCache
	minter    *token.Minter
	validator *token.Validator
	signer    token.Signer
	clients   *clientRegistry
	auditor   *security.Auditor
	logger    *slog.Logger
	config    *ServerConfig
	metrics   *instrumentation.Metrics
}

// NewServer creates a facade server.
// provider, flowStore, keys, and signer are required; config must validate.
func NewServer(provider *upstream.Provider, flowStore storage.FlowStore, keys *upstream.KeyCache, signer token.Signer, config *ServerConfig, logger *slog.Logger) (*Server, error) {
	if provider == nil {
		return nil, fmt.Errorf("upstream provider is required")
	}
	if flowStore == nil {
		return nil, fmt.Errorf("flow store is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("upstream key cache is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.applySecureDefaults(logger)

	minter, err := token.NewMinter(config.Issuer, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create minter: %w", err)
	}
	validator, err := token.NewValidator(keys, config.AllowedIssuers)
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}
	clients, err := newClientRegistry(config.ConfidentialClients)
	if err != nil {
		return nil, fmt.Errorf("failed to build client registry: %w", err)
	}

	return &Server{
		provider:  provider,
		flowStore: flowStore,
		keys:      keys,
		minter:    minter,
		validator: validator,
		signer:    signer,
		clients:   clients,
		auditor:   security.NewAuditor(logger, config.AuditEnabled),
		logger:    logger,
		config:    config,
	}, nil
}

// SetInstrumentation enables flow and redemption metrics
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst != nil {
		s.metrics = inst.Metrics()
	}
}

// Auditor returns the server's security auditor
func (s *Server) Auditor() *security.Auditor {
	return s.auditor
}

// Config returns the server configuration
func (s *Server) Config() *ServerConfig {
	return s.config
}

// JWKS returns the facade's public signing keys
func (s *Server) JWKS() *token.JWKS {
	return s.signer.JWKS()
}

// Close releases server resources
func (s *Server) Close() error {
	return s.flowStore.Close()
}

// generateRandomToken creates a cryptographically random, URL-safe token
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}

// AuthorizationRequest carries the parameters of a downstream /authorize request.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Scope               string
	State               string
	Resource            string
	ClientIP            string
}

// StartAuthorization relays a downstream authorization request upstream.
// The downstream redirect URI is stashed under the flow state and replaced
// with the facade's own fixed callback; client_id is replaced with the
// facade's confidential identity; the PKCE challenge travels unmodified so
// the IdP performs the eventual verifier check. Returns the upstream
// authorization URL to redirect to.
func (s *Server) StartAuthorization(ctx context.Context, req *AuthorizationRequest) (string, error) {
	if req.ClientID == "" {
		return "", ErrInvalidRequest("client_id is required")
	}
	if req.RedirectURI == "" {
		return "", ErrInvalidRequest("redirect_uri is required")
	}
	if _, err := url.Parse(req.RedirectURI); err != nil {
		return "", ErrInvalidRequest("redirect_uri is not a valid URI")
	}
	if req.CodeChallenge == "" {
		return "", ErrInvalidRequest("code_challenge is required")
	}
	if req.CodeChallengeMethod != "" && req.CodeChallengeMethod != PKCEMethodS256 {
		return "", ErrInvalidRequest("code_challenge_method must be S256")
	}

	state := req.State
	if state == "" {
		state = generateRandomToken()
	}

	scopes := splitScope(req.Scope)
	if len(scopes) == 0 {
		scopes = s.config.DefaultScopes
	}

	now := time.Now()
	pending := &storage.PendingAuthorization{
		State:         state,
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		Scope:         joinScope(scopes),
		CodeChallenge: req.CodeChallenge,
		Resource:      req.Resource,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Duration(s.config.PendingAuthorizationTTL) * time.Second),
	}
	if err := s.flowStore.SavePendingAuthorization(ctx, pending); err != nil {
		s.logger.Error("failed to save pending authorization", "error", err)
		return "", ErrServerError("failed to start authorization flow")
	}

	s.auditor.LogAuthorizationRelayed(req.ClientID, req.ClientIP, state)
	s.logger.Info("authorization relayed upstream",
		"client_id", req.ClientID,
		"has_resource", req.Resource != "")

	return s.provider.AuthorizationURL(state, req.CodeChallenge, req.Resource, scopes), nil
}

// HandleCallback resolves an upstream callback to the downstream client that
// started the flow. The upstream-issued code is stored verbatim for later
// redemption and relayed, with the original state, to the original redirect
// URI. The upstream token endpoint is never contacted here; confidential
// credential use stays confined to code redemption.
func (s *Server) HandleCallback(ctx context.Context, code, state, clientIP string) (string, error) {
	if code == "" {
		return "", ErrInvalidRequest("code is required")
	}
	if state == "" {
		return "", ErrInvalidRequest("state is required")
	}

	pending, err := s.flowStore.ConsumePendingAuthorization(ctx, state)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.auditor.LogFlowRejected(clientIP, "callback", "unknown_state")
			if s.metrics != nil {
				s.metrics.RecordFlowRejected(ctx, "callback")
			}
			return "", ErrExpiredOrUnknownState()
		}
		s.logger.Error("failed to consume pending authorization", "error", err)
		return "", ErrServerError("failed to process callback")
	}

	now := time.Now()
	issued := &storage.IssuedCode{
		Code:        code,
		RedirectURI: pending.RedirectURI,
		State:       state,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Duration(s.config.IssuedCodeTTL) * time.Second),
	}
	if err := s.flowStore.SaveIssuedCode(ctx, issued); err != nil {
		s.logger.Error("failed to save issued code", "error", err)
		return "", ErrServerError("failed to process callback")
	}

	redirect, err := url.Parse(pending.RedirectURI)
	if err != nil {
		return "", ErrServerError("stored redirect URI is invalid")
	}
	query := redirect.Query()
	query.Set("code", code)
	query.Set("state", state)
	redirect.RawQuery = query.Encode()

	s.auditor.LogCallbackStitched(clientIP, state)
	s.logger.Info("callback stitched to downstream client", "client_id", pending.ClientID)

	return redirect.String(), nil
}

// RedeemCode implements the authorization_code grant: the stored upstream
// code is consumed exactly once, redeemed at the IdP with the facade's
// confidential credentials and the caller's PKCE verifier, and the returned
// access token is re-minted with delegation claims.
//
// The upstream token is decoded without signature verification: it arrived
// directly from the IdP over TLS during the redemption itself, so transport
// trust stands in for a key check on this path. Externally-presented tokens
// never take this path; they go through ExchangeToken, which verifies.
func (s *Server) RedeemCode(ctx context.Context, code, verifier, clientIP string) (*TokenResponse, error) {
	if code == "" {
		return nil, ErrInvalidRequest("code is required")
	}
	if verifier == "" {
		return nil, ErrInvalidRequest("code_verifier is required")
	}

	issued, err := s.flowStore.ConsumeIssuedCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.auditor.LogFlowRejected(clientIP, "redemption", "unknown_or_replayed_code")
			if s.metrics != nil {
				s.metrics.RecordFlowRejected(ctx, "redemption")
			}
			return nil, ErrUnknownOrExpiredCode()
		}
		s.logger.Error("failed to consume issued code", "error", err)
		return nil, ErrServerError("failed to redeem code")
	}

	upstreamToken, err := s.provider.ExchangeCode(ctx, issued.Code, verifier)
	if err != nil {
		var endpointErr *upstream.TokenEndpointError
		if errors.As(err, &endpointErr) {
			s.logger.Warn("upstream rejected code redemption", "status", endpointErr.Status)
			if s.metrics != nil {
				s.metrics.RecordCodeRedemption(ctx, "upstream_error")
			}
			return nil, endpointErr
		}
		s.logger.Error("upstream code redemption failed", "error", err)
		if s.metrics != nil {
			s.metrics.RecordCodeRedemption(ctx, "error")
		}
		return nil, ErrServerError("failed to redeem code upstream")
	}
	if s.metrics != nil {
		s.metrics.RecordCodeRedemption(ctx, "success")
	}

	claims, err := token.DecodeUnverified(upstreamToken.AccessToken)
	if err != nil {
		s.logger.Error("failed to decode upstream access token", "error", err)
		return nil, ErrServerError("upstream returned an undecodable token")
	}

	expiry := s.mintedExpiry(claims.ExpiresAt, upstreamToken.Expiry)
	scopes := claims.Scopes
	if len(scopes) == 0 {
		scopes = s.config.DefaultScopes
	}

	minted, expiresAt, err := s.minter.Mint(token.MintRequest{
		Subject: claims.Subject,
		Scopes:  scopes,
		Roles:   claims.Roles,
		Delegation: token.DelegationChain{
			ActorToken: upstreamToken.AccessToken,
			ObjectID:   claims.ObjectID,
		},
		Expiry: expiry,
	})
	if err != nil {
		s.logger.Error("failed to mint token", "error", err)
		return nil, ErrServerError("failed to mint token")
	}

	s.auditor.LogTokenMinted(claims.Subject, "", clientIP, GrantTypeAuthorizationCode, joinScope(scopes))
	s.logger.Info("authorization code redeemed", "grant_type", GrantTypeAuthorizationCode)

	return &TokenResponse{
		AccessToken: minted,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
		Scope:       joinScope(scopes),
	}, nil
}

// ClientCredentials implements the client_credentials grant against the
// static confidential-client registry.
func (s *Server) ClientCredentials(ctx context.Context, clientID, clientSecret, resource, clientIP string) (*TokenResponse, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrInvalidRequest("client_id and client_secret are required")
	}

	if !s.clients.validate(clientID, clientSecret) {
		s.auditor.LogClientAuthFailure(clientID, clientIP)
		return nil, ErrInvalidClient("client authentication failed")
	}

	scopes := s.config.DefaultScopes
	expiry := time.Duration(s.config.ClientCredentialsTTL) * time.Second

	minted, expiresAt, err := s.minter.Mint(token.MintRequest{
		Subject:  clientID,
		Audience: resource,
		Scopes:   scopes,
		Expiry:   expiry,
	})
	if err != nil {
		s.logger.Error("failed to mint token", "error", err)
		return nil, ErrServerError("failed to mint token")
	}

	s.auditor.LogTokenMinted(clientID, clientID, clientIP, GrantTypeClientCredentials, joinScope(scopes))
	s.logger.Info("client credentials token issued", "client_id", clientID)

	return &TokenResponse{
		AccessToken: minted,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
		Resource:    resource,
		Scope:       joinScope(scopes),
	}, nil
}

// TokenExchangeRequest carries the parameters of an RFC 8693 token exchange.
type TokenExchangeRequest struct {
	SubjectToken     string
	SubjectTokenType string
	ActorToken       string
	Scope            string
	Resource         string
	ClientIP         string
}

// ExchangeToken implements the RFC 8693 token-exchange grant for chained
// delegation. Unlike code redemption, the subject token arrived from an
// arbitrary caller, so its signature is verified against the upstream key
// cache and its issuer checked against the allow-list before anything is
// minted from it.
func (s *Server) ExchangeToken(ctx context.Context, req *TokenExchangeRequest) (*TokenResponse, error) {
	if req.SubjectToken == "" {
		return nil, ErrInvalidRequest("subject_token is required")
	}
	if req.SubjectTokenType != TokenTypeAccessToken {
		return nil, ErrInvalidRequest("subject_token_type must be " + TokenTypeAccessToken)
	}

	// Unverified decode first, for routing and audit context only. Nothing
	// is trusted from it.
	if decoded, err := token.DecodeUnverified(req.SubjectToken); err == nil {
		s.logger.Debug("token exchange requested", "subject_issuer", decoded.Issuer)
	}

	claims, err := s.validator.Validate(ctx, req.SubjectToken)
	if err != nil {
		s.auditor.LogSubjectTokenRejected(req.ClientIP, err.Error())
		s.logger.Warn("subject token rejected", "error", err)
		return nil, ErrInvalidSubjectToken("signature, issuer, or lifetime check failed")
	}

	scopes := splitScope(req.Scope)
	if len(scopes) == 0 {
		scopes = s.config.DefaultScopes
	}

	minted, expiresAt, err := s.minter.Mint(token.MintRequest{
		Subject:  claims.Subject,
		Audience: req.Resource,
		Scopes:   scopes,
		Roles:    claims.Roles,
		Delegation: token.DelegationChain{
			ActorToken:   req.ActorToken,
			SubjectToken: req.SubjectToken,
			ObjectID:     claims.ObjectID,
		},
		Expiry: s.mintedExpiry(claims.ExpiresAt, time.Time{}),
	})
	if err != nil {
		s.logger.Error("failed to mint token", "error", err)
		return nil, ErrServerError("failed to mint token")
	}

	s.auditor.LogTokenMinted(claims.Subject, "", req.ClientIP, GrantTypeTokenExchange, joinScope(scopes))
	s.logger.Info("token exchanged", "grant_type", GrantTypeTokenExchange, "chained", req.ActorToken != "")

	return &TokenResponse{
		AccessToken: minted,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
		Resource:    req.Resource,
		Scope:       joinScope(scopes),
	}, nil
}

// mintedExpiry derives a minted token's lifetime from the upstream token it
// delegates: the upstream expiry minus a safety margin, floored so a
// nearly-expired upstream token still yields a usable response. tokenExpiry
// from the claims wins over the transport-level expiry hint.
func (s *Server) mintedExpiry(claimsExpiry, transportExpiry time.Time) time.Duration {
	upstreamExpiry := claimsExpiry
	if upstreamExpiry.IsZero() {
		upstreamExpiry = transportExpiry
	}
	if upstreamExpiry.IsZero() {
		return token.DefaultExpiry
	}

	margin := time.Duration(s.config.UpstreamExpiryMargin) * time.Second
	floor := time.Duration(s.config.MinMintedTTL) * time.Second

	expiry := time.Until(upstreamExpiry) - margin
	if expiry < floor {
		expiry = floor
	}
	return expiry
}
