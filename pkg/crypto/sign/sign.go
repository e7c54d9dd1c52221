// Package sign holds the ed25519 helpers used for identity hellos.
package sign

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"
)

// SignEd25519 signs data using ed25519.
func SignEd25519(priv ed25519.PrivateKey, data []byte) []byte {
	return ed25519.Sign(priv, data)
}

// VerifyEd25519 verifies an ed25519 signature. Malformed keys never verify.
func VerifyEd25519(pub ed25519.PublicKey, data, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}

// KeyID builds a stable id from public key bytes: pk:<alg>:<base64url-nopad(pub)>.
func KeyID(alg string, pub []byte) string {
	alg = strings.ToLower(strings.TrimSpace(alg))
	return "pk:" + alg + ":" + base64.RawURLEncoding.EncodeToString(pub)
}
