package facade

// AuthorizationServerMetadata represents OAuth 2.0 Authorization Server Metadata (RFC 8414)
type AuthorizationServerMetadata struct {
	// Issuer is the authorization server's issuer identifier URL
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL of the authorization endpoint
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint
	TokenEndpoint string `json:"token_endpoint"`

	// RegistrationEndpoint is the URL of the dynamic client registration endpoint (RFC 7591)
	RegistrationEndpoint string `json:"registration_endpoint,omitempty"`

	// JWKSURI is the URL of the server's JSON Web Key Set document
	JWKSURI string `json:"jwks_uri,omitempty"`

	// ScopesSupported lists the OAuth scopes supported
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// ResponseTypesSupported lists the OAuth response types supported
	ResponseTypesSupported []string `json:"response_types_supported"`

	// GrantTypesSupported lists the OAuth grant types supported
	GrantTypesSupported []string `json:"grant_types_supported,omitempty"`

	// TokenEndpointAuthMethodsSupported lists the client authentication methods supported at the token endpoint
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`

	// CodeChallengeMethodsSupported lists the PKCE code challenge methods supported
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// ProtectedResourceMetadata represents OAuth 2.0 Protected Resource Metadata (RFC 9728)
type ProtectedResourceMetadata struct {
	// Resource is the identifier for the protected resource
	Resource string `json:"resource"`

	// AuthorizationServers lists the authorization servers that can issue tokens for this resource
	AuthorizationServers []string `json:"authorization_servers"`

	// BearerMethodsSupported lists the ways Bearer tokens can be sent (RFC 6750)
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`

	// ScopesSupported lists the scopes understood by this resource
	ScopesSupported []string `json:"scopes_supported,omitempty"`
}

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

// TokenResponse represents a successful token endpoint response
type TokenResponse struct {
	// AccessToken is the minted access token
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the token lifetime in seconds
	ExpiresIn int64 `json:"expires_in"`

	// Resource echoes the RFC 8707 resource indicator the token is scoped to
	Resource string `json:"resource,omitempty"`

	// Scope is the space-delimited scope list granted to the token
	Scope string `json:"scope,omitempty"`
}

// ClientRegistrationRequest represents a dynamic client registration request (RFC 7591)
type ClientRegistrationRequest struct {
	// ClientName is a human-readable client name
	ClientName string `json:"client_name,omitempty"`

	// RedirectURIs is the array of redirection URIs for use in redirect-based flows
	RedirectURIs []string `json:"redirect_uris,omitempty"`

	// GrantTypes lists the grant types the client will use
	GrantTypes []string `json:"grant_types,omitempty"`

	// ResponseTypes lists the response types the client will use
	ResponseTypes []string `json:"response_types,omitempty"`

	// ClientURI is the URL of the client's home page
	ClientURI string `json:"client_uri,omitempty"`

	// TokenEndpointAuthMethod is the requested authentication method for the token endpoint
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method,omitempty"`
}

// ClientRegistrationResponse represents a dynamic client registration response (RFC 7591)
type ClientRegistrationResponse struct {
	// ClientID is the issued client identifier
	ClientID string `json:"client_id"`

	// ClientIDIssuedAt is the Unix time the client identifier was issued
	ClientIDIssuedAt int64 `json:"client_id_issued_at"`

	// ClientName echoes the registered client name
	ClientName string `json:"client_name,omitempty"`

	// RedirectURIs echoes the registered redirect URIs
	RedirectURIs []string `json:"redirect_uris"`

	// GrantTypes echoes the registered grant types
	GrantTypes []string `json:"grant_types,omitempty"`

	// ResponseTypes echoes the registered response types
	ResponseTypes []string `json:"response_types,omitempty"`

	// ClientURI echoes the registered client URI
	ClientURI string `json:"client_uri,omitempty"`

	// TokenEndpointAuthMethod is always "none": registered clients are public PKCE clients
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method"`
}
