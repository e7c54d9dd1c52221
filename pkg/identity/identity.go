// Package identity loads the node's signing key.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"linkmesh/pkg/config"
	"linkmesh/pkg/crypto/sign"
)

// LoadOrGenEd25519 loads an ed25519 private key from config or generates a new one.
// Keys may be given as a full private key or as a 32-byte seed. Returns the
// private key and its key id (pk:ed25519:<b64(pub)>).
func LoadOrGenEd25519(c config.IdentityConfig) (ed25519.PrivateKey, string, error) {
	if alg := strings.ToLower(strings.TrimSpace(c.Alg)); alg != "" && alg != "ed25519" {
		return nil, "", fmt.Errorf("identity: unsupported alg %q", c.Alg)
	}

	var raw []byte
	switch {
	case strings.TrimSpace(c.PrivateKey) != "":
		b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(c.PrivateKey))
		if err != nil {
			return nil, "", fmt.Errorf("identity: decode private_key: %w", err)
		}
		raw = b
	case strings.TrimSpace(c.PrivateKeyFile) != "":
		b, err := os.ReadFile(c.PrivateKeyFile)
		if err != nil {
			return nil, "", fmt.Errorf("identity: read private_key_file: %w", err)
		}
		if db, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(string(b))); err == nil {
			raw = db
		} else {
			// not base64, assume raw bytes
			raw = b
		}
	}

	var pk ed25519.PrivateKey
	switch len(raw) {
	case 0:
		_, gen, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, "", err
		}
		pk = gen
		zap.L().Info("generated new ed25519 identity (persist to identity.private_key)",
			zap.String("seed_b64", base64.RawURLEncoding.EncodeToString(gen.Seed())))
	case ed25519.SeedSize:
		pk = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		pk = ed25519.PrivateKey(raw)
	default:
		return nil, "", fmt.Errorf("identity: bad key length %d", len(raw))
	}
	pub := pk.Public().(ed25519.PublicKey)
	return pk, sign.KeyID("ed25519", pub), nil
}
