package seal

import (
	"crypto/hmac"
	"crypto/sha256"

	"linkmesh/pkg/protocol"
)

// MACSession authenticates cleartext payloads with HMAC-SHA256 over
// header.AAD() || payload.
type MACSession struct {
	id   string
	send []byte
	recv []byte
}

// NewMACSession derives a MAC session from a pre-shared secret.
func NewMACSession(sessionID string, secret []byte, role Role) (*MACSession, error) {
	send, recv, err := deriveKeys(secret, sessionID, role)
	if err != nil {
		return nil, err
	}
	return &MACSession{id: sessionID, send: send.key, recv: recv.key}, nil
}

func (s *MACSession) SessionID() string { return s.id }

// CreateMAC returns the tag for an outgoing payload.
func (s *MACSession) CreateMAC(h protocol.CommonHeader, payload []byte) []byte {
	return mac(s.send, h, payload)
}

// VerifyMAC checks the tag of an incoming payload.
func (s *MACSession) VerifyMAC(h protocol.CommonHeader, payload, tag []byte) error {
	if !hmac.Equal(mac(s.recv, h, payload), tag) {
		return ErrInvalidMAC
	}
	return nil
}

func mac(key []byte, h protocol.CommonHeader, payload []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(h.AAD())
	m.Write(payload)
	return m.Sum(nil)
}
