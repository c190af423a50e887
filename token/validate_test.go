package token

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticResolver resolves a fixed kid to a fixed public key
type staticResolver struct {
	kid     string
	keyPair *KeyPair
}

func (r *staticResolver) ResolveKey(_ context.Context, kid string) (any, error) {
	if kid != r.kid {
		return nil, fmt.Errorf("no key with ID %q", kid)
	}
	return r.keyPair.PublicKey, nil
}

func signTestToken(t *testing.T, keyPair *KeyPair, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := NewKeyPairSigner(keyPair).Sign(claims)
	require.NoError(t, err)
	return raw
}

func subjectClaims(issuer string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   issuer,
		"sub":   "user-1",
		"oid":   "oid-1",
		"roles": []string{"Reader"},
		"scp":   "mcp.read mcp.write",
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func TestValidator_Validate(t *testing.T) {
	keyPair, err := GenerateKeyPair("up-1", 2048)
	require.NoError(t, err)

	validator, err := NewValidator(
		&staticResolver{kid: "up-1", keyPair: keyPair},
		[]string{"https://idp.example.com/tenant"},
	)
	require.NoError(t, err)

	raw := signTestToken(t, keyPair, subjectClaims("https://idp.example.com/tenant"))

	claims, err := validator.Validate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "oid-1", claims.ObjectID)
	assert.Equal(t, []string{"Reader"}, claims.Roles)
	assert.Equal(t, []string{"mcp.read", "mcp.write"}, claims.Scopes)
	assert.Equal(t, "https://idp.example.com/tenant", claims.Issuer)
	assert.False(t, claims.ExpiresAt.IsZero())
}

func TestValidator_Validate_RejectsUnknownKey(t *testing.T) {
	trusted, err := GenerateKeyPair("up-1", 2048)
	require.NoError(t, err)
	rogue, err := GenerateKeyPair("up-1", 2048)
	require.NoError(t, err)

	validator, err := NewValidator(
		&staticResolver{kid: "up-1", keyPair: trusted},
		[]string{"https://idp.example.com/tenant"},
	)
	require.NoError(t, err)

	// Well-formed, right kid, but signed with a key the cache does not hold
	raw := signTestToken(t, rogue, subjectClaims("https://idp.example.com/tenant"))

	_, err = validator.Validate(context.Background(), raw)
	assert.Error(t, err)
}

func TestValidator_Validate_RejectsDisallowedIssuer(t *testing.T) {
	keyPair, err := GenerateKeyPair("up-1", 2048)
	require.NoError(t, err)

	validator, err := NewValidator(
		&staticResolver{kid: "up-1", keyPair: keyPair},
		[]string{"https://idp.example.com/tenant"},
	)
	require.NoError(t, err)

	raw := signTestToken(t, keyPair, subjectClaims("https://evil.example.com"))

	_, err = validator.Validate(context.Background(), raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestValidator_Validate_RejectsExpired(t *testing.T) {
	keyPair, err := GenerateKeyPair("up-1", 2048)
	require.NoError(t, err)

	validator, err := NewValidator(
		&staticResolver{kid: "up-1", keyPair: keyPair},
		[]string{"https://idp.example.com/tenant"},
	)
	require.NoError(t, err)

	claims := subjectClaims("https://idp.example.com/tenant")
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	raw := signTestToken(t, keyPair, claims)

	_, err = validator.Validate(context.Background(), raw)
	assert.Error(t, err)
}

func TestValidator_Validate_RejectsMissingKid(t *testing.T) {
	keyPair, err := GenerateKeyPair("up-1", 2048)
	require.NoError(t, err)

	validator, err := NewValidator(
		&staticResolver{kid: "up-1", keyPair: keyPair},
		[]string{"https://idp.example.com/tenant"},
	)
	require.NoError(t, err)

	// Sign without a kid header
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, subjectClaims("https://idp.example.com/tenant"))
	raw, err := tok.SignedString(keyPair.PrivateKey)
	require.NoError(t, err)

	_, err = validator.Validate(context.Background(), raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kid")
}

func TestValidator_Validate_RejectsMissingSubject(t *testing.T) {
	keyPair, err := GenerateKeyPair("up-1", 2048)
	require.NoError(t, err)

	validator, err := NewValidator(
		&staticResolver{kid: "up-1", keyPair: keyPair},
		[]string{"https://idp.example.com/tenant"},
	)
	require.NoError(t, err)

	claims := subjectClaims("https://idp.example.com/tenant")
	delete(claims, "sub")
	raw := signTestToken(t, keyPair, claims)

	_, err = validator.Validate(context.Background(), raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject")
}

func TestDecodeUnverified(t *testing.T) {
	keyPair, err := GenerateKeyPair("up-1", 2048)
	require.NoError(t, err)

	raw := signTestToken(t, keyPair, subjectClaims("https://idp.example.com/tenant"))

	claims, err := DecodeUnverified(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "oid-1", claims.ObjectID)
}

func TestDecodeUnverified_RejectsNonJWT(t *testing.T) {
	_, err := DecodeUnverified("opaque-token")
	assert.Error(t, err)
}
