package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/giantswarm/mcp-oauth-facade/instrumentation"
)

const (
	// DefaultKeyTTL is how long a fetched key set is considered fresh
	DefaultKeyTTL = 15 * time.Minute

	// DefaultStaleGrace is how far past its TTL a key set may still be
	// served when a refresh attempt fails
	DefaultStaleGrace = 5 * time.Minute

	// maxJWKSResponseSize caps the JWKS response body (1 MB)
	maxJWKSResponseSize = 1 << 20
)

// KeyCacheConfig holds settings for the upstream signing-key cache.
type KeyCacheConfig struct {
	// JWKSEndpoint is the IdP's JWKS document URL (required)
	JWKSEndpoint string

	// TTL is the key set freshness window; DefaultKeyTTL if zero
	TTL time.Duration

	// StaleGrace is the window past TTL during which a stale key set may be
	// served if a refresh fails; DefaultStaleGrace if zero
	StaleGrace time.Duration

	// RequestTimeout bounds the JWKS fetch; DefaultRequestTimeout if zero
	RequestTimeout time.Duration

	// HTTPClient overrides the HTTP client for JWKS fetches (optional)
	HTTPClient *http.Client

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// KeyCache caches the IdP's signing keys fetched from its JWKS endpoint.
//
// Lookups past the TTL always attempt a refresh first. When the refresh
// fails, a key set still inside the stale-grace window is served instead of
// failing the caller; past that window the lookup fails. Keys are never
// fabricated from anything but a fetched document.
type KeyCache struct {
	jwksEndpoint   string
	ttl            time.Duration
	staleGrace     time.Duration
	requestTimeout time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
	metrics        *instrumentation.Metrics

	// mu is held across refreshes so concurrent misses coalesce into one fetch
	mu        sync.Mutex
	keys      jwk.Set
	fetchedAt time.Time
}

// NewKeyCache creates a KeyCache for the configured JWKS endpoint
func NewKeyCache(cfg KeyCacheConfig) (*KeyCache, error) {
	if cfg.JWKSEndpoint == "" {
		return nil, fmt.Errorf("JWKS endpoint is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}
	staleGrace := cfg.StaleGrace
	if staleGrace <= 0 {
		staleGrace = DefaultStaleGrace
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &KeyCache{
		jwksEndpoint:   cfg.JWKSEndpoint,
		ttl:            ttl,
		staleGrace:     staleGrace,
		requestTimeout: timeout,
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

// SetInstrumentation enables JWKS refresh metrics
func (c *KeyCache) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst != nil {
		c.metrics = inst.Metrics()
	}
}

func (c *KeyCache) recordRefresh(ctx context.Context, result string) {
	if c.metrics != nil {
		c.metrics.RecordJWKSRefresh(ctx, result)
	}
}

// Keys returns the IdP's current signing key set, refreshing it when the
// cached copy is past its TTL.
func (c *KeyCache) Keys(ctx context.Context) (jwk.Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.keys != nil && now.Sub(c.fetchedAt) < c.ttl {
		return c.keys, nil
	}

	set, err := c.fetch(ctx)
	if err != nil {
		if c.keys != nil && now.Sub(c.fetchedAt) < c.ttl+c.staleGrace {
			c.logger.Warn("JWKS refresh failed, serving stale key set",
				"endpoint", c.jwksEndpoint,
				"age", now.Sub(c.fetchedAt).String(),
				"error", err)
			c.recordRefresh(ctx, "stale")
			return c.keys, nil
		}
		c.recordRefresh(ctx, "error")
		return nil, fmt.Errorf("failed to refresh signing keys: %w", err)
	}

	c.keys = set
	c.fetchedAt = now
	c.recordRefresh(ctx, "success")
	return set, nil
}

// ResolveKey looks up the verification key with the given key ID and exports
// it as a crypto public key. Implements token.KeyResolver.
func (c *KeyCache) ResolveKey(ctx context.Context, kid string) (any, error) {
	set, err := c.Keys(ctx)
	if err != nil {
		return nil, err
	}

	key, found := set.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("no key with ID %q in upstream key set", kid)
	}

	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("failed to export key %q: %w", kid, err)
	}
	return raw, nil
}

func (c *KeyCache) fetch(ctx context.Context) (jwk.Set, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("JWKS fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS document: %w", err)
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("JWKS document contains no keys")
	}
	return set, nil
}
