// Package handshake answers session initiation with a signed identity hello.
// Key agreement is out of scope; sessions get their keys elsewhere.
package handshake

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"linkmesh/pkg/crypto/sign"
	"linkmesh/pkg/protocol"
)

const (
	helloVersion   = 1
	defaultMaxSkew = 5 * time.Minute
)

// BuildHello constructs a SignedHello for identity and signs it with priv.
func BuildHello(id protocol.Identity, sessionID string, priv ed25519.PrivateKey, now time.Time) (protocol.SignedHello, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return protocol.SignedHello{}, errors.New("handshake: bad private key")
	}
	pub := priv.Public().(ed25519.PublicKey)
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return protocol.SignedHello{}, err
	}
	h := protocol.SignedHello{
		Version:   helloVersion,
		Name:      id.Name,
		Group:     id.Group,
		Alg:       "ed25519",
		PubKey:    append([]byte(nil), pub...),
		Nonce:     nonce,
		Timestamp: now.UnixMilli(),
	}
	h.Sig = sign.SignEd25519(priv, transcript(h, sessionID))
	return h, nil
}

// VerifyHello checks the signature and freshness of h for sessionID and
// returns the signer's key id.
func VerifyHello(h protocol.SignedHello, sessionID string, maxSkew time.Duration, now time.Time) (string, error) {
	if h.Alg != "ed25519" {
		return "", fmt.Errorf("handshake: unsupported alg %q", h.Alg)
	}
	if len(h.PubKey) != ed25519.PublicKeySize {
		return "", errors.New("handshake: bad pubkey length")
	}
	if len(h.Sig) != ed25519.SignatureSize {
		return "", errors.New("handshake: bad signature length")
	}
	if maxSkew <= 0 {
		maxSkew = defaultMaxSkew
	}
	if dt := now.UnixMilli() - h.Timestamp; dt > maxSkew.Milliseconds() || dt < -maxSkew.Milliseconds() {
		return "", errors.New("handshake: hello timestamp out of bounds")
	}
	if !sign.VerifyEd25519(ed25519.PublicKey(h.PubKey), transcript(h, sessionID), h.Sig) {
		return "", errors.New("handshake: hello signature invalid")
	}
	return sign.KeyID(h.Alg, h.PubKey), nil
}

func transcript(h protocol.SignedHello, sessionID string) []byte {
	return sign.HelloTranscript(h.Version, h.Alg, sessionID, h.PubKey, h.Nonce, h.Timestamp, h.Name, h.Group)
}
