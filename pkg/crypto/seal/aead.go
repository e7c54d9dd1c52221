package seal

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"linkmesh/pkg/protocol"
)

// AEADSession seals payloads with ChaCha20-Poly1305. The nonce is the
// direction IV XOR the header sequence number and the AAD is header.AAD().
// Sequence numbers must not repeat within a direction.
type AEADSession struct {
	id     string
	send   cipher.AEAD
	recv   cipher.AEAD
	sendIV [ivSize]byte
	recvIV [ivSize]byte
}

// NewAEADSession derives an AEAD session from a pre-shared secret.
func NewAEADSession(sessionID string, secret []byte, role Role) (*AEADSession, error) {
	send, recv, err := deriveKeys(secret, sessionID, role)
	if err != nil {
		return nil, err
	}
	sa, err := chacha20poly1305.New(send.key)
	if err != nil {
		return nil, fmt.Errorf("seal: send aead: %w", err)
	}
	ra, err := chacha20poly1305.New(recv.key)
	if err != nil {
		return nil, fmt.Errorf("seal: recv aead: %w", err)
	}
	return &AEADSession{id: sessionID, send: sa, recv: ra, sendIV: send.iv, recvIV: recv.iv}, nil
}

func (s *AEADSession) SessionID() string { return s.id }

// Encrypt seals plaintext and returns ciphertext and tag separately.
func (s *AEADSession) Encrypt(h protocol.CommonHeader, plaintext []byte) ([]byte, []byte, error) {
	nonce := nonceFor(s.sendIV, h.SequenceNo)
	sealed := s.send.Seal(nil, nonce[:], plaintext, h.AAD())
	cut := len(sealed) - s.send.Overhead()
	return sealed[:cut], sealed[cut:], nil
}

// Decrypt opens ciphertext with its tag.
func (s *AEADSession) Decrypt(h protocol.CommonHeader, ciphertext, tag []byte) ([]byte, error) {
	if len(tag) != s.recv.Overhead() {
		return nil, fmt.Errorf("%w: tag length %d", ErrDecrypt, len(tag))
	}
	nonce := nonceFor(s.recvIV, h.SequenceNo)
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	pt, err := s.recv.Open(nil, nonce[:], sealed, h.AAD())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return pt, nil
}

func nonceFor(iv [ivSize]byte, seq uint64) [ivSize]byte {
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], seq)
	n := iv
	for i := 0; i < 8; i++ {
		n[ivSize-8+i] ^= ctr[i]
	}
	return n
}
