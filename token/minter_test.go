package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMinter(t *testing.T) (*Minter, *KeyPair) {
	t.Helper()
	keyPair, err := GenerateKeyPair("test-key", 2048)
	require.NoError(t, err)
	minter, err := NewMinter("https://facade.example.com", NewKeyPairSigner(keyPair))
	require.NoError(t, err)
	return minter, keyPair
}

func decodeClaims(t *testing.T, keyPair *KeyPair, raw string) jwt.MapClaims {
	t.Helper()
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return keyPair.PublicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return NowFunc() }))
	require.NoError(t, err)
	return claims
}

func TestMinter_Mint_RegisteredClaims(t *testing.T) {
	minter, keyPair := newTestMinter(t)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	NowFunc = func() time.Time { return fixed }
	defer func() { NowFunc = time.Now }()

	raw, expiresAt, err := minter.Mint(MintRequest{Subject: "user-1"})
	require.NoError(t, err)

	claims := decodeClaims(t, keyPair, raw)
	assert.Equal(t, "https://facade.example.com", claims["iss"])
	assert.Equal(t, "user-1", claims["sub"])
	assert.EqualValues(t, fixed.Unix(), claims["iat"])
	assert.EqualValues(t, fixed.Add(DefaultExpiry).Unix(), claims["exp"])
	assert.NotEmpty(t, claims["jti"])
	assert.Equal(t, fixed.Add(DefaultExpiry), expiresAt)
}

func TestMinter_Mint_ScopeClaim(t *testing.T) {
	minter, keyPair := newTestMinter(t)

	t.Run("empty scopes omit scp entirely", func(t *testing.T) {
		raw, _, err := minter.Mint(MintRequest{Subject: "u", Scopes: []string{}})
		require.NoError(t, err)
		claims := decodeClaims(t, keyPair, raw)
		_, present := claims["scp"]
		assert.False(t, present)
	})

	t.Run("scopes are space joined", func(t *testing.T) {
		raw, _, err := minter.Mint(MintRequest{Subject: "u", Scopes: []string{"a", "b"}})
		require.NoError(t, err)
		claims := decodeClaims(t, keyPair, raw)
		assert.Equal(t, "a b", claims["scp"])
	})
}

func TestMinter_Mint_RolesAndAudience(t *testing.T) {
	minter, keyPair := newTestMinter(t)

	raw, _, err := minter.Mint(MintRequest{
		Subject:  "u",
		Audience: "https://api.example.com",
		Roles:    []string{"Reader", "Writer"},
	})
	require.NoError(t, err)

	claims := decodeClaims(t, keyPair, raw)
	assert.Equal(t, "https://api.example.com", claims["aud"])
	assert.Equal(t, []any{"Reader", "Writer"}, claims["roles"])
}

func TestMinter_Mint_DelegationChain(t *testing.T) {
	minter, keyPair := newTestMinter(t)

	raw, _, err := minter.Mint(MintRequest{
		Subject: "u",
		Delegation: DelegationChain{
			ActorToken:   "actor-token",
			SubjectToken: "subject-token",
			ObjectID:     "oid-123",
		},
	})
	require.NoError(t, err)

	claims := decodeClaims(t, keyPair, raw)
	assert.Equal(t, "actor-token", claims["act"])
	assert.Equal(t, "subject-token", claims["obo"])
	assert.Equal(t, "oid-123", claims["oid"])
}

func TestMinter_Mint_NoDelegationOmitsClaims(t *testing.T) {
	minter, keyPair := newTestMinter(t)

	raw, _, err := minter.Mint(MintRequest{Subject: "u"})
	require.NoError(t, err)

	claims := decodeClaims(t, keyPair, raw)
	for _, name := range []string{"act", "obo", "oid"} {
		_, present := claims[name]
		assert.False(t, present, "claim %s should be absent", name)
	}
}

func TestMinter_Mint_AdditionalClaims(t *testing.T) {
	minter, keyPair := newTestMinter(t)

	raw, _, err := minter.Mint(MintRequest{
		Subject: "u",
		AdditionalClaims: map[string]any{
			"tenant": "acme",
			"sub":    "spoofed", // must not override the registered claim
		},
	})
	require.NoError(t, err)

	claims := decodeClaims(t, keyPair, raw)
	assert.Equal(t, "acme", claims["tenant"])
	assert.Equal(t, "u", claims["sub"])
}

func TestMinter_Mint_CustomExpiry(t *testing.T) {
	minter, keyPair := newTestMinter(t)

	raw, expiresAt, err := minter.Mint(MintRequest{Subject: "u", Expiry: 5 * time.Minute})
	require.NoError(t, err)

	claims := decodeClaims(t, keyPair, raw)
	assert.EqualValues(t, expiresAt.Unix(), claims["exp"])
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, 2*time.Second)
}

func TestMinter_Mint_RequiresSubject(t *testing.T) {
	minter, _ := newTestMinter(t)

	_, _, err := minter.Mint(MintRequest{})
	assert.Error(t, err)
}

func TestMinter_Mint_KidHeader(t *testing.T) {
	minter, _ := newTestMinter(t)

	raw, _, err := minter.Mint(MintRequest{Subject: "u"})
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, "test-key", parsed.Header["kid"])
	assert.Equal(t, RS256, parsed.Header["alg"])
}
