package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, tokenEndpoint string) *Provider {
	t.Helper()
	provider, err := New(Config{
		ClientID:              "facade-app",
		ClientSecret:          "facade-secret",
		RedirectURL:           "https://facade.example.com/oauth/callback",
		AuthorizationEndpoint: "https://idp.example.com/authorize",
		TokenEndpoint:         tokenEndpoint,
		Scopes:                []string{"openid", "profile"},
	})
	require.NoError(t, err)
	return provider
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing client ID", Config{ClientSecret: "s", RedirectURL: "r", AuthorizationEndpoint: "a", TokenEndpoint: "t"}},
		{"missing client secret", Config{ClientID: "c", RedirectURL: "r", AuthorizationEndpoint: "a", TokenEndpoint: "t"}},
		{"missing redirect URL", Config{ClientID: "c", ClientSecret: "s", AuthorizationEndpoint: "a", TokenEndpoint: "t"}},
		{"missing endpoints", Config{ClientID: "c", ClientSecret: "s", RedirectURL: "r"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestAuthorizationURL(t *testing.T) {
	provider := newTestProvider(t, "https://idp.example.com/token")

	rawURL := provider.AuthorizationURL("state-123", "challenge-abc", "https://api.example.com/mcp", nil)

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", parsed.Host)
	assert.Equal(t, "/authorize", parsed.Path)

	query := parsed.Query()
	assert.Equal(t, "facade-app", query.Get("client_id"))
	assert.Equal(t, "https://facade.example.com/oauth/callback", query.Get("redirect_uri"))
	assert.Equal(t, "state-123", query.Get("state"))
	assert.Equal(t, "challenge-abc", query.Get("code_challenge"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
	assert.Equal(t, "https://api.example.com/mcp", query.Get("resource"))
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "openid profile", query.Get("scope"))
}

func TestAuthorizationURL_ScopeOverride(t *testing.T) {
	provider := newTestProvider(t, "https://idp.example.com/token")

	rawURL := provider.AuthorizationURL("s", "c", "", []string{"mcp.read"})

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	query := parsed.Query()
	assert.Equal(t, "mcp.read", query.Get("scope"))
	assert.NotContains(t, query, "resource")
}

func TestExchangeCode(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"upstream-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)

	tok, err := provider.ExchangeCode(context.Background(), "code-from-idp", "verifier-xyz")
	require.NoError(t, err)
	assert.Equal(t, "upstream-token", tok.AccessToken)

	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "code-from-idp", form.Get("code"))
	assert.Equal(t, "verifier-xyz", form.Get("code_verifier"))
	assert.Equal(t, "facade-app", form.Get("client_id"))
	assert.Equal(t, "facade-secret", form.Get("client_secret"))
	assert.Equal(t, "https://facade.example.com/oauth/callback", form.Get("redirect_uri"))
}

func TestExchangeCode_RelaysUpstreamError(t *testing.T) {
	const body = `{"error":"invalid_grant","error_description":"AADSTS70008: expired authorization code"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)

	_, err := provider.ExchangeCode(context.Background(), "bad-code", "verifier")
	require.Error(t, err)

	var tokenErr *TokenEndpointError
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, http.StatusBadRequest, tokenErr.Status)
	assert.Equal(t, body, string(tokenErr.Body))
}
