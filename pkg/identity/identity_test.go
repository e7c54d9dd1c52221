package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"linkmesh/pkg/config"
)

func TestGenerateWhenUnset(t *testing.T) {
	pk, id, err := LoadOrGenEd25519(config.IdentityConfig{Alg: "ed25519"})
	if err != nil {
		t.Fatalf("gen: %v", err)
	}
	if len(pk) != ed25519.PrivateKeySize || !strings.HasPrefix(id, "pk:ed25519:") {
		t.Fatalf("unexpected key/id: %d %s", len(pk), id)
	}
}

func TestLoadSeedFromConfigAndFile(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	enc := base64.RawURLEncoding.EncodeToString(seed)

	pk1, id1, err := LoadOrGenEd25519(config.IdentityConfig{PrivateKey: enc})
	if err != nil {
		t.Fatalf("inline: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte(enc+"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	pk2, id2, err := LoadOrGenEd25519(config.IdentityConfig{PrivateKeyFile: path})
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if !pk1.Equal(pk2) || id1 != id2 {
		t.Fatalf("inline and file keys differ")
	}
}

func TestRejectsBadInput(t *testing.T) {
	if _, _, err := LoadOrGenEd25519(config.IdentityConfig{Alg: "rsa"}); err == nil {
		t.Fatalf("expected alg error")
	}
	short := base64.RawURLEncoding.EncodeToString([]byte("short"))
	if _, _, err := LoadOrGenEd25519(config.IdentityConfig{PrivateKey: short}); err == nil {
		t.Fatalf("expected length error")
	}
}
