package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"linkmesh/pkg/config"
	"linkmesh/pkg/crypto/seal"
	"linkmesh/pkg/memkv"
	"linkmesh/pkg/protocol"
)

// ErrDuplicateSession is returned when a session id is already registered.
var ErrDuplicateSession = errors.New("session: duplicate session id")

const defaultPendingAckTTL = time.Minute

type pendingAck struct {
	SessionID string
	SentAt    time.Time
}

// Registry is an in-memory Manager backed by memkv stores.
type Registry struct {
	log        *zap.Logger
	now        func() time.Time
	ackTTL     time.Duration
	handshaker Handshaker

	sessions    *memkv.Store[Direction]
	pending     *memkv.Store[pendingAck]
	established *memkv.Store[Counterparties]
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(r *Registry) { r.log = l } }

// WithHandshaker sets the handshake delegate.
func WithHandshaker(h Handshaker) Option { return func(r *Registry) { r.handshaker = h } }

// WithPendingAckTTL sets how long an unacknowledged message id is tracked.
func WithPendingAckTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.ackTTL = d
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

// NewRegistry builds an empty registry. Call Close to release its stores.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		log:    zap.L().Named("session"),
		now:    time.Now,
		ackTTL: defaultPendingAckTTL,
	}
	for _, o := range opts {
		o(r)
	}
	r.sessions = memkv.New(memkv.Options[Direction]{Now: r.now})
	r.established = memkv.New(memkv.Options[Counterparties]{Now: r.now})
	r.pending = memkv.New(memkv.Options[pendingAck]{
		Now: r.now,
		OnExpire: func(messageID string, p pendingAck) {
			r.log.Warn("message not acknowledged in time",
				zap.String("message_id", messageID),
				zap.String("session_id", p.SessionID),
				zap.Duration("ttl", r.ackTTL))
		},
	})
	return r
}

// Close stops the background expirers.
func (r *Registry) Close() {
	r.sessions.Close()
	r.pending.Close()
	r.established.Close()
}

// AddInbound registers a session the peer initiated.
func (r *Registry) AddInbound(cp Counterparties, s seal.Session) error {
	return r.add(s.SessionID(), Inbound{Counterparties: cp, Session: s})
}

// AddOutbound registers a session this node initiated.
func (r *Registry) AddOutbound(cp Counterparties, s seal.Session) error {
	return r.add(s.SessionID(), Outbound{Counterparties: cp, Session: s})
}

func (r *Registry) add(id string, d Direction) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session: empty session id")
	}
	ok, err := r.sessions.SetIfAbsent(id, d, 0)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}
	r.log.Debug("session registered", zap.String("session_id", id), zap.String("direction", directionName(d)))
	return nil
}

// Remove forgets a session.
func (r *Registry) Remove(sessionID string) bool {
	r.established.Delete(sessionID)
	return r.sessions.Delete(sessionID)
}

// GetSessionByID implements Manager.
func (r *Registry) GetSessionByID(sessionID string) Direction {
	if d, ok := r.sessions.Get(sessionID); ok {
		return d
	}
	return NoSession{}
}

// ProcessSessionMessage implements Manager by delegating to the Handshaker.
func (r *Registry) ProcessSessionMessage(ctx context.Context, msg *protocol.LinkInMessage) *protocol.LinkOutMessage {
	if r.handshaker == nil {
		r.log.Debug("no handshaker configured, dropping session message")
		return nil
	}
	return r.handshaker.ProcessSessionMessage(ctx, msg)
}

// RecordSent tracks an outbound message until it is acknowledged or its TTL lapses.
func (r *Registry) RecordSent(sessionID, messageID string) error {
	return r.pending.Set(messageID, pendingAck{SessionID: sessionID, SentAt: r.now()}, r.ackTTL)
}

// Pending returns the session an outstanding message was sent on.
func (r *Registry) Pending(messageID string) (string, bool) {
	p, ok := r.pending.Get(messageID)
	return p.SessionID, ok
}

// MessageAcknowledged implements Manager.
func (r *Registry) MessageAcknowledged(messageID string) {
	p, ok := r.pending.GetDel(messageID)
	if !ok {
		r.log.Debug("ack for unknown message", zap.String("message_id", messageID))
		return
	}
	r.log.Debug("message acknowledged",
		zap.String("message_id", messageID),
		zap.String("session_id", p.SessionID),
		zap.Duration("rtt", r.now().Sub(p.SentAt)))
}

// InboundSessionEstablished implements Manager. Only the first call per
// session is recorded.
func (r *Registry) InboundSessionEstablished(sessionID string, cp Counterparties) {
	created, err := r.established.SetIfAbsent(sessionID, cp, 0)
	if err != nil {
		r.log.Error("cannot record established session", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if created {
		r.log.Info("inbound session established",
			zap.String("session_id", sessionID),
			zap.Stringer("source", cp.Source),
			zap.Stringer("destination", cp.Destination))
	}
}

// EstablishedInbound reports whether an inbound session has carried data.
func (r *Registry) EstablishedInbound(sessionID string) (Counterparties, bool) {
	return r.established.Get(sessionID)
}

// Stats is a snapshot of the registry's tables.
type Stats struct {
	Sessions    int
	Pending     int
	Established int
	// UnackedExpired counts outbound messages whose ack never arrived.
	UnackedExpired uint64
}

// Stats returns table sizes. Sizes may include entries expired but not yet swept.
func (r *Registry) Stats() Stats {
	return Stats{
		Sessions:       r.sessions.Len(),
		Pending:        r.pending.Len(),
		Established:    r.established.Len(),
		UnackedExpired: r.pending.Metrics().Expired,
	}
}

// LoadStatic registers pre-shared sessions from configuration and returns
// their ids in order. Sessions without an id get a random one.
func (r *Registry) LoadStatic(static []config.StaticSessionConfig) ([]string, error) {
	ids := make([]string, 0, len(static))
	for i, sc := range static {
		id := strings.TrimSpace(sc.ID)
		if id == "" {
			id = uuid.NewString()
		}
		secret, err := decodeSecret(sc.Secret)
		if err != nil {
			return ids, fmt.Errorf("sessions.static[%d]: %w", i, err)
		}
		role := seal.RoleInitiator
		if sc.Direction == "inbound" {
			role = seal.RoleResponder
		}
		var s seal.Session
		switch sc.Mode {
		case "aead":
			s, err = seal.NewAEADSession(id, secret, role)
		case "mac":
			s, err = seal.NewMACSession(id, secret, role)
		default:
			err = fmt.Errorf("unknown mode %q", sc.Mode)
		}
		if err != nil {
			return ids, fmt.Errorf("sessions.static[%d]: %w", i, err)
		}
		cp := Counterparties{
			Source:      protocol.Identity{Name: sc.SourceName, Group: sc.SourceGroup},
			Destination: protocol.Identity{Name: sc.DestinationName, Group: sc.DestinationGroup},
		}
		if role == seal.RoleResponder {
			err = r.AddInbound(cp, s)
		} else {
			err = r.AddOutbound(cp, s)
		}
		if err != nil {
			return ids, fmt.Errorf("sessions.static[%d]: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func decodeSecret(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("secret is not base64: %w", err)
	}
	return b, nil
}

func directionName(d Direction) string {
	switch d.(type) {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "none"
	}
}
