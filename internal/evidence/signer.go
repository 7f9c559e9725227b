package evidence

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Signer signs predicate digests before submission.
type Signer interface {
	// Sign signs the sha256 digest of payload and returns the raw
	// signature bytes.
	Sign(payload []byte) ([]byte, error)

	// KeyID is the logical identifier of the signing key, recorded
	// alongside each piece of evidence.
	KeyID() string
}

// Ed25519Signer is an in-process signer keyed from configuration.
type Ed25519Signer struct {
	priv  ed25519.PrivateKey
	keyID string
}

// NewEd25519SignerFromB64 builds a signer from a base64-encoded
// Ed25519 private key.
func NewEd25519SignerFromB64(keyB64, keyID string) (*Ed25519Signer, error) {
	if keyB64 == "" {
		return nil, fmt.Errorf("signing key required")
	}
	raw, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("decode signing key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	if keyID == "" {
		keyID = "promotion-evidence"
	}
	return &Ed25519Signer{priv: ed25519.PrivateKey(raw), keyID: keyID}, nil
}

func (s *Ed25519Signer) Sign(payload []byte) ([]byte, error) {
	if s.priv == nil {
		return nil, fmt.Errorf("signer not initialized")
	}
	digest := sha256.Sum256(payload)
	return ed25519.Sign(s.priv, digest[:]), nil
}

func (s *Ed25519Signer) KeyID() string {
	return s.keyID
}
