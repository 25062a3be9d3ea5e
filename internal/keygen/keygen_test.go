package keygen

import (
	"strings"
	"testing"
)

func TestGenerateFormat(t *testing.T) {
	secret, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(secret, SecretPrefix) {
		t.Errorf("secret %q missing prefix %q", secret, SecretPrefix)
	}
	if len(secret) != len(SecretPrefix)+randomHexLen {
		t.Errorf("secret length %d, want %d", len(secret), len(SecretPrefix)+randomHexLen)
	}
	for _, c := range secret[len(SecretPrefix):] {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("non-hex character %q in secret body", c)
		}
	}
}

func TestGenerateUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		secret, err := Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if seen[secret] {
			t.Fatalf("duplicate secret generated: %s", secret)
		}
		seen[secret] = true
	}
}

func TestDeriveDeterministic(t *testing.T) {
	secret := "mcp_0123456789abcdef0123456789abcdef"

	m1 := Derive(secret)
	m2 := Derive(secret)
	if m1.Hash != m2.Hash {
		t.Errorf("hash not deterministic: %q vs %q", m1.Hash, m2.Hash)
	}
	if m1.Hash == secret || strings.Contains(m1.Hash, secret) {
		t.Error("hash must not contain the plaintext")
	}
	if len(m1.Hash) != 64 {
		t.Errorf("hash length %d, want 64 hex chars", len(m1.Hash))
	}
}

func TestDeriveFragments(t *testing.T) {
	secret := "mcp_0123456789abcdef0123456789abcdef"
	m := Derive(secret)

	if m.Prefix != "mcp_" {
		t.Errorf("got prefix %q, want %q", m.Prefix, "mcp_")
	}
	if m.Suffix != "cdef" {
		t.Errorf("got suffix %q, want %q", m.Suffix, "cdef")
	}
}

func TestHashMatchesDerive(t *testing.T) {
	secret, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if Hash(secret) != Derive(secret).Hash {
		t.Error("Hash and Derive disagree for the same secret")
	}
}
