package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	facade "github.com/giantswarm/mcp-oauth-facade"
)

// fileConfig is the YAML configuration shape for the serve command.
type fileConfig struct {
	Issuer         string   `yaml:"issuer"`
	Resource       string   `yaml:"resource"`
	DefaultScopes  []string `yaml:"default_scopes"`
	AllowedIssuers []string `yaml:"allowed_issuers"`

	Upstream struct {
		ClientID              string `yaml:"client_id"`
		ClientSecret          string `yaml:"client_secret"`
		RedirectURL           string `yaml:"redirect_url"`
		AuthorizationEndpoint string `yaml:"authorization_endpoint"`
		TokenEndpoint         string `yaml:"token_endpoint"`
		JWKSEndpoint          string `yaml:"jwks_endpoint"`
		RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	} `yaml:"upstream"`

	Signing struct {
		KeyID          string `yaml:"key_id"`
		PrivateKeyFile string `yaml:"private_key_file"`
	} `yaml:"signing"`

	ConfidentialClients []facade.ConfidentialClient `yaml:"confidential_clients"`

	Storage struct {
		Backend string `yaml:"backend"` // "memory" (default) or "valkey"
		Valkey  struct {
			Address  string `yaml:"address"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"valkey"`
	} `yaml:"storage"`

	Server struct {
		Listen         string `yaml:"listen"`
		RateLimit      int    `yaml:"rate_limit"`
		RateLimitBurst int    `yaml:"rate_limit_burst"`
	} `yaml:"server"`

	TTL struct {
		PendingAuthorizationSeconds int64 `yaml:"pending_authorization_seconds"`
		IssuedCodeSeconds           int64 `yaml:"issued_code_seconds"`
		ClientCredentialsSeconds    int64 `yaml:"client_credentials_seconds"`
	} `yaml:"ttl"`

	Audit bool `yaml:"audit"`
}

// envOverride names the environment variable consulted when the upstream
// client secret is absent from the config file, so the secret can stay out
// of files entirely.
const envUpstreamClientSecret = "FACADE_UPSTREAM_CLIENT_SECRET"

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &fileConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Upstream.ClientSecret == "" {
		cfg.Upstream.ClientSecret = os.Getenv(envUpstreamClientSecret)
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Signing.KeyID == "" {
		cfg.Signing.KeyID = "facade-1"
	}
	return cfg, nil
}

func (c *fileConfig) serverConfig() *facade.ServerConfig {
	return &facade.ServerConfig{
		Issuer:                  c.Issuer,
		Resource:                c.Resource,
		DefaultScopes:           c.DefaultScopes,
		AllowedIssuers:          c.AllowedIssuers,
		ConfidentialClients:     c.ConfidentialClients,
		PendingAuthorizationTTL: c.TTL.PendingAuthorizationSeconds,
		IssuedCodeTTL:           c.TTL.IssuedCodeSeconds,
		ClientCredentialsTTL:    c.TTL.ClientCredentialsSeconds,
		AuditEnabled:            c.Audit,
	}
}

func (c *fileConfig) upstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.RequestTimeoutSeconds) * time.Second
}
