// Package keygen produces API key secrets and their storable derivatives.
// The raw secret is never persisted; callers store the SHA-256 hash plus
// short display fragments and show the plaintext to the user exactly once.
package keygen

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SecretPrefix marks every Resumly API key so secrets are visually
// distinguishable from other tokens in logs and client configs.
const SecretPrefix = "mcp_"

// randomHexLen is the number of hex characters following the prefix.
// 32 hex chars encode 16 random bytes, i.e. 128 bits of entropy.
const randomHexLen = 32

// Material is the persisted form of a secret: a one-way hash for lookup
// and the first/last four characters for UI identification.
type Material struct {
	Hash   string
	Prefix string
	Suffix string
}

// Generate returns a new plaintext secret of the form "mcp_" followed by
// 32 hex characters. An unavailable randomness source is a fatal
// configuration problem; the error is returned so the caller can abort.
func Generate() (string, error) {
	raw := make([]byte, randomHexLen/2)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(raw), nil
}

// Derive computes the storable form of a secret. The hash is the SHA-256
// digest of the full plaintext, hex encoded. Prefix and suffix are the
// first and last four characters of the plaintext; they identify a key in
// the UI but are never sufficient to reconstruct it.
func Derive(secret string) Material {
	h := sha256.Sum256([]byte(secret))
	m := Material{Hash: hex.EncodeToString(h[:])}
	if len(secret) >= 4 {
		m.Prefix = secret[:4]
		m.Suffix = secret[len(secret)-4:]
	} else {
		m.Prefix = secret
		m.Suffix = secret
	}
	return m
}

// Hash returns the hex-encoded SHA-256 digest of a raw secret. It is the
// lookup key used by the store and the auth service.
func Hash(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}
