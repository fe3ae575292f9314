package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidAPIKey = errors.New("invalid API key")

// APIKeyVerifier checks presented API keys against configured bcrypt
// hashes, one per client. Plaintext keys are never stored.
type APIKeyVerifier struct {
	hashes map[string]string // client_id -> bcrypt hash
}

func NewAPIKeyVerifier(hashes map[string]string) *APIKeyVerifier {
	return &APIKeyVerifier{hashes: hashes}
}

func (v *APIKeyVerifier) Verify(clientID, apiKey string) error {
	hash, ok := v.hashes[clientID]
	if !ok {
		// Burn a comparison anyway so unknown clients are not
		// distinguishable by timing.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(apiKey))
		return ErrInvalidAPIKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)); err != nil {
		return ErrInvalidAPIKey
	}
	return nil
}

// HashAPIKey produces a bcrypt hash for provisioning a new client key.
func HashAPIKey(apiKey string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
