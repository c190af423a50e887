package token

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer signs claim sets into compact JWTs and publishes the matching
// verification material.
type Signer interface {
	// Sign creates a signed JWT from claims
	Sign(claims jwt.MapClaims) (string, error)

	// VerificationKey returns the public key for verifying tokens this signer produced
	VerificationKey(token *jwt.Token) (any, error)

	// JWKS returns the public key set in JWKS format
	JWKS() *JWKS
}

// KeyPairSigner implements Signer using RSA with RS256
type KeyPairSigner struct {
	keyPair *KeyPair
}

// Compile-time interface check
var _ Signer = (*KeyPairSigner)(nil)

// NewKeyPairSigner creates a new signer backed by keyPair
func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{keyPair: keyPair}
}

// Sign creates a signed JWT from claims, setting the kid header so verifiers
// can select the right key from the published JWKS.
func (s *KeyPairSigner) Sign(claims jwt.MapClaims) (string, error) {
	tok := jwt.NewWithClaims(s.keyPair.SigningMethod(), claims)
	tok.Header["kid"] = s.keyPair.KeyID

	signed, err := tok.SignedString(s.keyPair.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerificationKey returns the public key after checking the token's signing method
func (s *KeyPairSigner) VerificationKey(tok *jwt.Token) (any, error) {
	if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
	}
	return s.keyPair.PublicKey, nil
}

// JWKS returns the public key set in JWKS format
func (s *KeyPairSigner) JWKS() *JWKS {
	return &JWKS{Keys: []JWK{s.keyPair.ToJWK()}}
}
