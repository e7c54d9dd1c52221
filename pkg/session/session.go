// Package session tracks cryptographic sessions with remote peers and exposes
// them to the inbound pipeline through the Manager interface.
package session

import (
	"context"

	"linkmesh/pkg/crypto/seal"
	"linkmesh/pkg/protocol"
)

// Counterparties is the ordered identity pair fixed when a session is
// established. Every later message on the session is checked against it.
type Counterparties struct {
	Source      protocol.Identity
	Destination protocol.Identity
}

// Direction is the result of a session lookup: Inbound, Outbound or NoSession.
type Direction interface {
	isDirection()
}

// Inbound is a session the peer initiated. The peer is Source and this node
// is Destination; the peer sends data and this node sends acks.
type Inbound struct {
	Counterparties Counterparties
	Session        seal.Session
}

// Outbound is a session this node initiated. This node is Source; the peer
// sends acks for the data this node sent.
type Outbound struct {
	Counterparties Counterparties
	Session        seal.Session
}

// NoSession is returned for unknown session ids.
type NoSession struct{}

func (Inbound) isDirection()   {}
func (Outbound) isDirection()  {}
func (NoSession) isDirection() {}

// Manager is the session collaborator consumed by the inbound processor.
// Implementations are externally synchronized.
type Manager interface {
	GetSessionByID(sessionID string) Direction
	// ProcessSessionMessage handles a handshake message and returns the reply
	// to send, or nil.
	ProcessSessionMessage(ctx context.Context, msg *protocol.LinkInMessage) *protocol.LinkOutMessage
	MessageAcknowledged(messageID string)
	InboundSessionEstablished(sessionID string, cp Counterparties)
}

// Handshaker runs the handshake steps on behalf of a Registry.
type Handshaker interface {
	ProcessSessionMessage(ctx context.Context, msg *protocol.LinkInMessage) *protocol.LinkOutMessage
}
