package facade

import (
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Grant and response types accepted at registration time
var (
	registrableGrantTypes    = []string{GrantTypeAuthorizationCode, "refresh_token"}
	registrableResponseTypes = []string{"code"}
)

func splitScope(scope string) []string {
	return strings.Fields(scope)
}

func joinScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// RegisterClient handles dynamic client registration (RFC 7591).
//
// Registrations are not persisted: the issued client_id is opaque and is not
// re-checked by /authorize or /token, which accept any client relaying a
// valid PKCE flow. The endpoint exists so self-registering clients can
// complete their bootstrap handshake.
func (s *Server) RegisterClient(req *ClientRegistrationRequest, clientIP string) (*ClientRegistrationResponse, error) {
	if req == nil {
		return nil, ErrInvalidRequest("request body is required")
	}
	if req.ClientName == "" {
		return nil, ErrInvalidRequest("client_name is required")
	}
	if len(req.RedirectURIs) == 0 {
		return nil, ErrInvalidRequest("redirect_uris is required")
	}
	if len(req.GrantTypes) == 0 {
		return nil, ErrInvalidRequest("grant_types is required")
	}
	if len(req.ResponseTypes) == 0 {
		return nil, ErrInvalidRequest("response_types is required")
	}
	for _, raw := range req.RedirectURIs {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" {
			return nil, ErrInvalidRequest("redirect_uris contains an invalid URI: " + raw)
		}
	}
	for _, grantType := range req.GrantTypes {
		if !slices.Contains(registrableGrantTypes, grantType) {
			return nil, ErrInvalidRequest("unsupported grant_type: " + grantType)
		}
	}
	for _, responseType := range req.ResponseTypes {
		if !slices.Contains(registrableResponseTypes, responseType) {
			return nil, ErrInvalidRequest("unsupported response_type: " + responseType)
		}
	}
	if req.ClientURI != "" {
		if parsed, err := url.Parse(req.ClientURI); err != nil || parsed.Scheme == "" {
			return nil, ErrInvalidRequest("client_uri is not a valid URI")
		}
	}

	clientID := uuid.NewString()
	s.auditor.LogClientRegistered(clientID, clientIP)
	s.logger.Info("client registered", "client_id", clientID, "client_name", req.ClientName)

	return &ClientRegistrationResponse{
		ClientID:                clientID,
		ClientIDIssuedAt:        time.Now().Unix(),
		ClientName:              req.ClientName,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		ClientURI:               req.ClientURI,
		TokenEndpointAuthMethod: "none",
	}, nil
}

// Metadata returns the facade's RFC 8414 authorization server metadata
func (s *Server) Metadata() *AuthorizationServerMetadata {
	issuer := strings.TrimRight(s.config.Issuer, "/")
	return &AuthorizationServerMetadata{
		Issuer:                issuer,
		AuthorizationEndpoint: issuer + "/authorize",
		TokenEndpoint:         issuer + "/token",
		RegistrationEndpoint:  issuer + "/register",
		JWKSURI:               issuer + "/.well-known/jwks.json",
		ScopesSupported:       s.config.DefaultScopes,
		ResponseTypesSupported: []string{
			"code",
		},
		GrantTypesSupported: []string{
			GrantTypeAuthorizationCode,
			GrantTypeClientCredentials,
			GrantTypeTokenExchange,
		},
		TokenEndpointAuthMethodsSupported: []string{
			"none",
			"client_secret_post",
		},
		CodeChallengeMethodsSupported: []string{
			PKCEMethodS256,
		},
	}
}

// ResourceMetadata returns the facade's RFC 9728 protected resource metadata
// for the configured resource identifier, or nil if none is configured.
func (s *Server) ResourceMetadata() *ProtectedResourceMetadata {
	if s.config.Resource == "" {
		return nil
	}
	return &ProtectedResourceMetadata{
		Resource:               s.config.Resource,
		AuthorizationServers:   []string{strings.TrimRight(s.config.Issuer, "/")},
		BearerMethodsSupported: []string{"header"},
		ScopesSupported:        s.config.DefaultScopes,
	}
}
