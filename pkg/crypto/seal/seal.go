// Package seal implements the per-session cryptographic objects used to
// authenticate and encrypt session data messages.
//
// Both session kinds hold one key per direction. The initiator sends with the
// initiator-to-responder key and the responder with the other one, so a
// message sealed by one side only opens on the peer's session object.
package seal

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"linkmesh/pkg/protocol"
)

var (
	// ErrInvalidMAC is returned when a MAC does not verify.
	ErrInvalidMAC = errors.New("seal: invalid mac")
	// ErrDecrypt is returned when an AEAD payload does not open.
	ErrDecrypt = errors.New("seal: decryption failed")
)

// Role is the side a node played when the session was established.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleResponder {
		return "responder"
	}
	return "initiator"
}

const (
	keySize = 32
	ivSize  = 12

	labelI2R = "linkmesh|session|i2r"
	labelR2I = "linkmesh|session|r2i"
)

// Session is any cryptographic session object.
type Session interface {
	SessionID() string
}

// Authenticator creates and verifies MACs over a header and a cleartext payload.
type Authenticator interface {
	Session
	CreateMAC(h protocol.CommonHeader, payload []byte) []byte
	VerifyMAC(h protocol.CommonHeader, payload, tag []byte) error
}

// Encrypter seals and opens payloads bound to a header.
type Encrypter interface {
	Session
	Encrypt(h protocol.CommonHeader, plaintext []byte) (ciphertext, tag []byte, err error)
	Decrypt(h protocol.CommonHeader, ciphertext, tag []byte) ([]byte, error)
}

type directionKeys struct {
	key []byte
	iv  [ivSize]byte
}

// deriveKeys expands secret into send and receive material for role.
// The session id salts the derivation so one secret can back many sessions.
func deriveKeys(secret []byte, sessionID string, role Role) (send, recv directionKeys, err error) {
	if len(secret) == 0 {
		return send, recv, errors.New("seal: empty secret")
	}
	i2r, err := expand(secret, sessionID, labelI2R)
	if err != nil {
		return send, recv, err
	}
	r2i, err := expand(secret, sessionID, labelR2I)
	if err != nil {
		return send, recv, err
	}
	if role == RoleResponder {
		return r2i, i2r, nil
	}
	return i2r, r2i, nil
}

func expand(secret []byte, sessionID, label string) (directionKeys, error) {
	r := hkdf.New(sha256.New, secret, []byte(sessionID), []byte(label))
	dk := directionKeys{key: make([]byte, keySize)}
	if _, err := io.ReadFull(r, dk.key); err != nil {
		return directionKeys{}, fmt.Errorf("seal: hkdf key: %w", err)
	}
	if _, err := io.ReadFull(r, dk.iv[:]); err != nil {
		return directionKeys{}, fmt.Errorf("seal: hkdf iv: %w", err)
	}
	return dk, nil
}
