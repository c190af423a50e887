package token

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UpstreamClaims is the subset of upstream IdP token claims the facade acts
// on when re-minting.
type UpstreamClaims struct {
	Issuer    string
	Subject   string
	ObjectID  string
	Roles     []string
	Scopes    []string
	ExpiresAt time.Time
}

// KeyResolver resolves a verification key by key ID. Implemented by the
// upstream key cache.
type KeyResolver interface {
	ResolveKey(ctx context.Context, kid string) (any, error)
}

// DecodeUnverified parses a JWT without verifying its signature and extracts
// the claims the facade cares about.
//
// This is only safe for tokens received directly from the upstream IdP over
// the TLS channel of a code redemption, where transport trust stands in for
// signature verification. Externally-presented tokens go through a Validator
// instead.
func DecodeUnverified(raw string) (*UpstreamClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return claimsFromMap(claims)
}

// Validator verifies externally-presented subject tokens for the
// token-exchange grant: signature against the upstream key set, issuer
// against a fixed allow-list, and lifetime.
type Validator struct {
	keys           KeyResolver
	allowedIssuers []string
}

// NewValidator creates a Validator resolving keys via keys and accepting
// only the given issuers
func NewValidator(keys KeyResolver, allowedIssuers []string) (*Validator, error) {
	if keys == nil {
		return nil, fmt.Errorf("key resolver is required")
	}
	if len(allowedIssuers) == 0 {
		return nil, fmt.Errorf("at least one allowed issuer is required")
	}
	return &Validator{keys: keys, allowedIssuers: allowedIssuers}, nil
}

// Validate verifies raw and returns its claims. Any signature, issuer, or
// lifetime failure returns an error; no partial result is ever produced.
func (v *Validator) Validate(ctx context.Context, raw string) (*UpstreamClaims, error) {
	parsed, err := jwt.Parse(raw, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		kid, _ := tok.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		return v.keys.ResolveKey(ctx, kid)
	}, jwt.WithExpirationRequired(), jwt.WithValidMethods([]string{RS256}))
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}

	issuer, err := claims.GetIssuer()
	if err != nil || issuer == "" {
		return nil, fmt.Errorf("token has no issuer")
	}
	if !slices.Contains(v.allowedIssuers, issuer) {
		return nil, fmt.Errorf("issuer %q is not allowed", issuer)
	}

	out, err := claimsFromMap(claims)
	if err != nil {
		return nil, err
	}
	if out.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return out, nil
}

func claimsFromMap(claims jwt.MapClaims) (*UpstreamClaims, error) {
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("failed to read subject: %w", err)
	}

	out := &UpstreamClaims{Subject: sub}

	if iss, err := claims.GetIssuer(); err == nil {
		out.Issuer = iss
	}
	if oid, ok := claims["oid"].(string); ok {
		out.ObjectID = oid
	}
	if scp, ok := claims["scp"].(string); ok && scp != "" {
		out.Scopes = strings.Fields(scp)
	}
	if raw, ok := claims["roles"].([]any); ok {
		for _, r := range raw {
			if role, ok := r.(string); ok {
				out.Roles = append(out.Roles, role)
			}
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}

	return out, nil
}
