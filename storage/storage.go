// Package storage defines the transient flow-state interfaces for the
// authorization facade. Nothing here is durable: every entry is TTL-bounded
// and losing a store loses nothing but in-flight flows, which fail closed.
package storage

import (
	"context"
	"errors"
	"time"
)

// Common storage errors
var (
	// ErrNotFound is returned when an entry does not exist or has expired
	ErrNotFound = errors.New("not found")

	// ErrAlreadyConsumed is returned when a consume-once entry was already retrieved
	ErrAlreadyConsumed = errors.New("already consumed")
)

// PendingAuthorization maps an opaque state value to the redirect URI the
// downstream client originally asked for, plus the request parameters needed
// to reconstruct the flow at callback time.
type PendingAuthorization struct {
	// State is the opaque state value relayed to the upstream IdP
	State string

	// ClientID is the downstream client's identifier (informational)
	ClientID string

	// RedirectURI is the downstream client's original redirect URI
	RedirectURI string

	// Scope is the scope string requested by the downstream client
	Scope string

	// CodeChallenge is the downstream client's PKCE challenge, forwarded upstream unmodified
	CodeChallenge string

	// Resource is the RFC 8707 resource indicator, if the client supplied one
	Resource string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// IssuedCode maps an upstream-issued authorization code to the downstream
// redirect URI it was relayed to. The upstream code is used verbatim as the
// key; the facade mints no code of its own.
type IssuedCode struct {
	// Code is the authorization code exactly as issued by the upstream IdP
	Code string

	// RedirectURI is the downstream redirect URI the code was relayed to
	RedirectURI string

	// State is the state value the code was relayed with
	State string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// FlowStore persists in-flight authorization flow state.
//
// Both Consume operations are atomic: for a given key, concurrent calls must
// yield exactly one success and ErrNotFound (or ErrAlreadyConsumed) for the
// rest. Expired entries are treated as absent.
type FlowStore interface {
	// SavePendingAuthorization stores a pending authorization keyed by state
	SavePendingAuthorization(ctx context.Context, pending *PendingAuthorization) error

	// ConsumePendingAuthorization retrieves and deletes the pending
	// authorization for state, exactly once
	ConsumePendingAuthorization(ctx context.Context, state string) (*PendingAuthorization, error)

	// SaveIssuedCode stores an upstream-issued code keyed by its value
	SaveIssuedCode(ctx context.Context, code *IssuedCode) error

	// ConsumeIssuedCode retrieves and deletes the issued code, exactly once
	ConsumeIssuedCode(ctx context.Context, code string) (*IssuedCode, error)

	// Close releases store resources
	Close() error
}
