package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair_RaisesSmallBitSizes(t *testing.T) {
	keyPair, err := GenerateKeyPair("k", 1024)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, keyPair.PrivateKey.N.BitLen(), 2048)
}

func TestKeyPair_PEMRoundTrip(t *testing.T) {
	original, err := GenerateKeyPair("k1", 2048)
	require.NoError(t, err)

	loaded, err := LoadKeyPairFromPEM("k1", original.ExportPrivateKeyPEM())
	require.NoError(t, err)

	assert.Equal(t, original.PrivateKey.N, loaded.PrivateKey.N)
	assert.Equal(t, original.PublicKey.E, loaded.PublicKey.E)
}

func TestLoadKeyPairFromPEM_RejectsGarbage(t *testing.T) {
	_, err := LoadKeyPairFromPEM("k", []byte("not a pem block"))
	assert.Error(t, err)
}

func TestKeyPair_ToJWK(t *testing.T) {
	keyPair, err := GenerateKeyPair("sig-1", 2048)
	require.NoError(t, err)

	jwk := keyPair.ToJWK()
	assert.Equal(t, "RSA", jwk.Kty)
	assert.Equal(t, "sig", jwk.Use)
	assert.Equal(t, "sig-1", jwk.Kid)
	assert.Equal(t, RS256, jwk.Alg)
	assert.NotEmpty(t, jwk.N)
	assert.NotEmpty(t, jwk.E)
}

func TestKeyPairSigner_JWKS(t *testing.T) {
	keyPair, err := GenerateKeyPair("sig-1", 2048)
	require.NoError(t, err)

	jwks := NewKeyPairSigner(keyPair).JWKS()
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, "sig-1", jwks.Keys[0].Kid)
}
