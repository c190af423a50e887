package facade

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// clientRegistry holds the static confidential-client registry for the
// client-credentials grant. Secrets are bcrypt-hashed at startup so the
// plaintext never lives past construction.
type clientRegistry struct {
	hashes map[string][]byte // client ID -> bcrypt hash of secret
}

func newClientRegistry(clients []ConfidentialClient) (*clientRegistry, error) {
	registry := &clientRegistry{hashes: make(map[string][]byte, len(clients))}
	for _, client := range clients {
		if _, exists := registry.hashes[client.ClientID]; exists {
			return nil, fmt.Errorf("duplicate confidential client %q", client.ClientID)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(client.ClientSecret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash secret for client %q: %w", client.ClientID, err)
		}
		registry.hashes[client.ClientID] = hash
	}
	return registry, nil
}

// validate reports whether the ID/secret pair matches a registered client.
// bcrypt comparison keeps the check constant-time per attempt.
func (r *clientRegistry) validate(clientID, clientSecret string) bool {
	hash, ok := r.hashes[clientID]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(clientSecret)) == nil
}
