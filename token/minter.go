package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// NowFunc returns the current time. Overridable in tests.
var NowFunc = time.Now

// DefaultExpiry is the token lifetime applied when a mint request does not
// specify one.
const DefaultExpiry = time.Hour

// DelegationChain records how a minted token relates to the tokens it was
// derived from. Each hop of an on-behalf-of call chain stacks one more level:
// the subject token of hop N becomes the obo claim of hop N+1, with the
// acting service's own token carried in act.
type DelegationChain struct {
	// ActorToken is the raw token of the service acting on the user's behalf,
	// emitted as the act claim
	ActorToken string

	// SubjectToken is the raw validated inbound token this one was derived
	// from, emitted as the obo claim so further downstream hops stay possible
	SubjectToken string

	// ObjectID is the upstream directory object identifier of the original
	// user, emitted as the oid claim and copied through unchanged across hops
	ObjectID string
}

// empty reports whether the chain carries no claims at all.
func (d DelegationChain) empty() bool {
	return d.ActorToken == "" && d.SubjectToken == "" && d.ObjectID == ""
}

// MintRequest describes one token to mint.
type MintRequest struct {
	// Subject becomes the sub claim (required)
	Subject string

	// Audience becomes the aud claim, typically the RFC 8707 resource (optional)
	Audience string

	// Scopes become the scp claim, space-joined. An empty slice omits the
	// claim entirely rather than emitting an empty string.
	Scopes []string

	// Roles become the roles claim (optional)
	Roles []string

	// Delegation carries the actor-chain claims (optional)
	Delegation DelegationChain

	// AdditionalClaims are merged into the claim set last; they cannot be
	// used to override the registered claims set by the minter
	AdditionalClaims map[string]any

	// Expiry is the token lifetime; DefaultExpiry if zero
	Expiry time.Duration
}

// Minter builds signed delegation tokens. It performs no I/O and keeps no
// state beyond the issuer identity and the signer, so every grant handler can
// share one instance.
type Minter struct {
	issuer string
	signer Signer
}

// NewMinter creates a Minter issuing tokens under issuer, signed by signer
func NewMinter(issuer string, signer Signer) (*Minter, error) {
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	return &Minter{issuer: issuer, signer: signer}, nil
}

// Mint builds and signs a token for req. It returns the compact JWT and its
// expiry time. Any failure surfaces as an error; a partially-formed token is
// never returned.
func (m *Minter) Mint(req MintRequest) (string, time.Time, error) {
	if req.Subject == "" {
		return "", time.Time{}, fmt.Errorf("subject is required")
	}

	expiry := req.Expiry
	if expiry <= 0 {
		expiry = DefaultExpiry
	}

	now := NowFunc()
	expiresAt := now.Add(expiry)

	claims := jwt.MapClaims{
		"iss": m.issuer,
		"sub": req.Subject,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
		"jti": uuid.NewString(),
	}
	if req.Audience != "" {
		claims["aud"] = req.Audience
	}
	if len(req.Scopes) > 0 {
		claims["scp"] = strings.Join(req.Scopes, " ")
	}
	if len(req.Roles) > 0 {
		claims["roles"] = req.Roles
	}
	if !req.Delegation.empty() {
		if req.Delegation.ActorToken != "" {
			claims["act"] = req.Delegation.ActorToken
		}
		if req.Delegation.SubjectToken != "" {
			claims["obo"] = req.Delegation.SubjectToken
		}
		if req.Delegation.ObjectID != "" {
			claims["oid"] = req.Delegation.ObjectID
		}
	}
	for name, value := range req.AdditionalClaims {
		if _, reserved := claims[name]; reserved {
			continue
		}
		claims[name] = value
	}

	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to mint token: %w", err)
	}
	return signed, expiresAt, nil
}

// Issuer returns the issuer identity tokens are minted under
func (m *Minter) Issuer() string {
	return m.issuer
}
