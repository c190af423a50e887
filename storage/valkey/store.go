// Package valkey provides a Valkey-backed FlowStore for multi-replica
// deployments, where in-flight authorization flows must survive a request
// landing on a different replica than the one that started it.
package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/mcp-oauth-facade/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "facade:"

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "facade:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of storage.FlowStore.
// Consume operations use GETDEL, so exactly-once semantics hold across
// replicas without any coordination beyond the Valkey server itself.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

// Compile-time interface check
var _ storage.FlowStore = (*Store)(nil)

// New creates a new Valkey-backed flow store.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

func (s *Store) pendingKey(state string) string {
	return s.prefix + "pending:" + state
}

func (s *Store) codeKey(code string) string {
	return s.prefix + "code:" + code
}

// SavePendingAuthorization stores a pending authorization keyed by state
func (s *Store) SavePendingAuthorization(ctx context.Context, pending *storage.PendingAuthorization) error {
	ttl := time.Until(pending.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("pending authorization already expired")
	}

	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending authorization: %w", err)
	}

	err = s.client.Do(ctx,
		s.client.B().Set().Key(s.pendingKey(pending.State)).Value(string(data)).Ex(ttl).Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to save pending authorization: %w", err)
	}
	return nil
}

// ConsumePendingAuthorization retrieves and deletes the pending authorization
// for state via GETDEL
func (s *Store) ConsumePendingAuthorization(ctx context.Context, state string) (*storage.PendingAuthorization, error) {
	data, err := s.client.Do(ctx, s.client.B().Getdel().Key(s.pendingKey(state)).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume pending authorization: %w", err)
	}

	var pending storage.PendingAuthorization
	if err := json.Unmarshal([]byte(data), &pending); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending authorization: %w", err)
	}
	return &pending, nil
}

// SaveIssuedCode stores an upstream-issued code keyed by its value
func (s *Store) SaveIssuedCode(ctx context.Context, code *storage.IssuedCode) error {
	ttl := time.Until(code.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("issued code already expired")
	}

	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal issued code: %w", err)
	}

	err = s.client.Do(ctx,
		s.client.B().Set().Key(s.codeKey(code.Code)).Value(string(data)).Ex(ttl).Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to save issued code: %w", err)
	}
	return nil
}

// ConsumeIssuedCode retrieves and deletes the issued code via GETDEL, which
// is atomic server-side: concurrent redemptions of the same code yield
// exactly one success.
func (s *Store) ConsumeIssuedCode(ctx context.Context, code string) (*storage.IssuedCode, error) {
	data, err := s.client.Do(ctx, s.client.B().Getdel().Key(s.codeKey(code)).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume issued code: %w", err)
	}

	var issued storage.IssuedCode
	if err := json.Unmarshal([]byte(data), &issued); err != nil {
		return nil, fmt.Errorf("failed to unmarshal issued code: %w", err)
	}
	return &issued, nil
}

// Close closes the Valkey client connection
func (s *Store) Close() error {
	s.client.Close()
	return nil
}
