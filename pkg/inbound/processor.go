// Package inbound turns link.in messages into application deliveries,
// acknowledgements, delivery markers and handshake replies.
package inbound

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"linkmesh/pkg/crypto/seal"
	"linkmesh/pkg/protocol"
	"linkmesh/pkg/session"
)

// Response is the outcome of processing one link message: the records to
// publish and an optional direct reply. A discard has no records and no reply.
type Response struct {
	Message *protocol.LinkInMessage
	Records []Record
	Reply   *protocol.LinkManagerResponse
}

// Options tunes a Processor.
type Options struct {
	Topics Topics
	// ReplyInline returns handshake replies in Response.Reply instead of
	// publishing them on the link.out topic.
	ReplyInline   bool
	Logger        *zap.Logger
	MeterProvider metric.MeterProvider
}

// Processor is the per-message state machine. It holds no per-connection
// state; sessions live in the session.Manager.
type Processor struct {
	sessions    session.Manager
	partitions  PartitionAssignment
	clock       Clock
	wire        *protocol.Wire
	topics      Topics
	replyInline bool
	log         *zap.Logger
	metrics     *metrics
}

// NewProcessor wires a Processor to its collaborators.
func NewProcessor(sessions session.Manager, partitions PartitionAssignment, clock Clock, wire *protocol.Wire, opts Options) (*Processor, error) {
	if sessions == nil || partitions == nil || wire == nil {
		return nil, errors.New("inbound: sessions, partitions and wire are required")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if opts.Topics == (Topics{}) {
		opts.Topics = DefaultTopics()
	}
	if opts.Logger == nil {
		opts.Logger = zap.L().Named("inbound")
	}
	m, err := newMetrics(opts.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("inbound: metrics: %w", err)
	}
	return &Processor{
		sessions:    sessions,
		partitions:  partitions,
		clock:       clock,
		wire:        wire,
		topics:      opts.Topics,
		replyInline: opts.ReplyInline,
		log:         opts.Logger,
		metrics:     m,
	}, nil
}

// HandleRequests processes msgs in order and returns one Response per message.
func (p *Processor) HandleRequests(ctx context.Context, msgs []*protocol.LinkInMessage) []Response {
	out := make([]Response, len(msgs))
	for i, m := range msgs {
		out[i] = p.Handle(ctx, m)
	}
	return out
}

// Handle processes one link message.
func (p *Processor) Handle(ctx context.Context, msg *protocol.LinkInMessage) Response {
	resp := p.handle(ctx, msg)
	resp.Message = msg
	p.metrics.produced(ctx, resp.Records)
	return resp
}

func (p *Processor) handle(ctx context.Context, msg *protocol.LinkInMessage) Response {
	if msg == nil || msg.Payload == nil {
		return p.discard(ctx, reasonDecode, zap.ErrorLevel, "discarding link message with null payload")
	}
	switch m := msg.Payload.(type) {
	case *protocol.InitiatorHello:
		return p.initiatorHello(ctx, msg, m)
	case *protocol.ResponderHello, *protocol.InitiatorHandshake, *protocol.ResponderHandshake:
		return p.sessionMessage(ctx, msg, nil)
	case *protocol.AuthenticatedDataMessage:
		return p.dataMessage(ctx, m.Header, false, func(s seal.Session) ([]byte, error) {
			auth, ok := s.(seal.Authenticator)
			if !ok {
				return nil, errors.New("session cannot verify message authentication codes")
			}
			if err := auth.VerifyMAC(m.Header, m.Payload, m.AuthTag); err != nil {
				return nil, err
			}
			return m.Payload, nil
		})
	case *protocol.AuthenticatedEncryptedDataMessage:
		return p.dataMessage(ctx, m.Header, true, func(s seal.Session) ([]byte, error) {
			enc, ok := s.(seal.Encrypter)
			if !ok {
				return nil, errors.New("session cannot decrypt")
			}
			return enc.Decrypt(m.Header, m.EncryptedPayload, m.AuthTag)
		})
	case *protocol.UnauthenticatedMessage:
		return Response{Records: []Record{{
			Topic: p.topics.P2PIn,
			Key:   m.Header.MessageID,
			Value: &protocol.AppMessage{Unauthenticated: m},
		}}}
	default:
		return p.discard(ctx, reasonDecode, zap.ErrorLevel, "discarding link message with unknown payload type",
			zap.String("kind", string(msg.Payload.Kind())),
			zap.String("type", fmt.Sprintf("%T", msg.Payload)))
	}
}

func (p *Processor) initiatorHello(ctx context.Context, msg *protocol.LinkInMessage, m *protocol.InitiatorHello) Response {
	parts := p.partitions.CurrentlyAssignedPartitions()
	if len(parts) == 0 {
		return p.discard(ctx, reasonNoReply, zap.WarnLevel,
			"no partitions assigned, not replying to session initiation",
			zap.String("session_id", m.Header.SessionID),
			zap.String("topic", p.topics.LinkIn))
	}
	return p.sessionMessage(ctx, msg, &Record{
		Topic: p.topics.SessionPartitions,
		Key:   m.Header.SessionID,
		Value: &protocol.SessionPartitions{Partitions: parts},
	})
}

// sessionMessage hands a handshake message to the session manager. extra is
// published alongside the reply, never on its own.
func (p *Processor) sessionMessage(ctx context.Context, msg *protocol.LinkInMessage, extra *Record) Response {
	out := p.sessions.ProcessSessionMessage(ctx, msg)
	if out == nil || out.Payload == nil {
		return Response{}
	}
	var resp Response
	if p.replyInline {
		resp.Reply = &protocol.LinkManagerResponse{Payload: out.Payload}
	} else {
		resp.Records = append(resp.Records, Record{Topic: p.topics.LinkOut, Key: linkOutKey(out), Value: out})
	}
	if extra != nil {
		resp.Records = append(resp.Records, *extra)
	}
	return resp
}

type openFunc func(seal.Session) ([]byte, error)

func (p *Processor) dataMessage(ctx context.Context, h protocol.CommonHeader, encrypted bool, open openFunc) Response {
	sid := h.SessionID
	switch d := p.sessions.GetSessionByID(sid).(type) {
	case session.Inbound:
		return p.inboundData(ctx, h, d, encrypted, open)
	case session.Outbound:
		return p.outboundData(ctx, h, d, open)
	default:
		return p.discard(ctx, reasonNoSession, zap.WarnLevel, "received message for unknown session",
			zap.String("session_id", sid))
	}
}

func (p *Processor) inboundData(ctx context.Context, h protocol.CommonHeader, d session.Inbound, encrypted bool, open openFunc) Response {
	sid := h.SessionID
	plain, err := open(d.Session)
	if err != nil {
		return p.discard(ctx, reasonIntegrity, zap.WarnLevel, "message failed authentication",
			zap.String("session_id", sid), zap.Error(err))
	}
	inner, err := p.wire.DecodeDataPayload(plain)
	if err != nil {
		return p.discard(ctx, reasonDecode, zap.ErrorLevel, "could not decode data message payload",
			zap.String("session_id", sid), zap.Error(err))
	}

	var resp Response
	switch m := inner.(type) {
	case *protocol.HeartbeatMessage:
		ack, err := p.ackRecord(d, h, &protocol.HeartbeatMessageAck{MessageID: m.MessageID})
		if err != nil {
			return p.discard(ctx, reasonIntegrity, zap.ErrorLevel, "could not seal heartbeat ack",
				zap.String("session_id", sid), zap.String("message_id", m.MessageID), zap.Error(err))
		}
		resp.Records = []Record{ack}
	case *protocol.AuthenticatedMessageAndKey:
		am := m.Message
		hdr := am.Header
		if hdr.Source != d.Counterparties.Source {
			return p.discard(ctx, reasonIntegrity, zap.WarnLevel,
				"spoofing attempt: message source does not match session counterparty",
				zap.String("session_id", sid),
				zap.String("message_id", hdr.MessageID),
				zap.Stringer("claimed", hdr.Source),
				zap.Stringer("expected", d.Counterparties.Source))
		}
		if hdr.Destination != d.Counterparties.Destination {
			return p.discard(ctx, reasonIntegrity, zap.WarnLevel,
				"spoofing attempt: message destination does not match session counterparty",
				zap.String("session_id", sid),
				zap.String("message_id", hdr.MessageID),
				zap.Stringer("claimed", hdr.Destination),
				zap.Stringer("expected", d.Counterparties.Destination))
		}
		ack, err := p.ackRecord(d, h, &protocol.AuthenticatedMessageAck{MessageID: hdr.MessageID})
		if err != nil {
			return p.discard(ctx, reasonIntegrity, zap.ErrorLevel, "could not seal message ack",
				zap.String("session_id", sid), zap.String("message_id", hdr.MessageID), zap.Error(err))
		}
		key := m.Key
		if key == "" {
			key = am.Key()
		}
		resp.Records = []Record{
			{Topic: p.topics.P2PIn, Key: key, Value: &protocol.AppMessage{Authenticated: &am}},
			ack,
		}
	default:
		return p.discard(ctx, reasonDecode, zap.ErrorLevel, "unexpected data payload on inbound session",
			zap.String("session_id", sid), zap.String("kind", string(inner.Kind())))
	}

	if encrypted {
		p.sessions.InboundSessionEstablished(sid, d.Counterparties)
	}
	return resp
}

func (p *Processor) outboundData(ctx context.Context, h protocol.CommonHeader, d session.Outbound, open openFunc) Response {
	sid := h.SessionID
	plain, err := open(d.Session)
	if err != nil {
		return p.discard(ctx, reasonIntegrity, zap.WarnLevel, "ack failed authentication",
			zap.String("session_id", sid), zap.Error(err))
	}
	ack, err := p.wire.DecodeAck(plain)
	if err != nil {
		return p.discard(ctx, reasonDecode, zap.ErrorLevel, "unexpected payload on outbound session",
			zap.String("session_id", sid), zap.Error(err))
	}
	id := ack.AckedMessageID()
	p.sessions.MessageAcknowledged(id)
	if _, ok := ack.(*protocol.AuthenticatedMessageAck); !ok {
		return Response{}
	}
	return Response{Records: []Record{{
		Topic: p.topics.P2POutMarkers,
		Key:   id,
		Value: &protocol.AppMessageMarker{
			Marker:    protocol.LinkManagerReceivedMarker,
			MessageID: id,
			Timestamp: p.clock.Now().UnixMilli(),
		},
	}}}
}

// ackRecord seals ack with the inbound session under the header of the
// message being acknowledged and addresses it back to the peer.
func (p *Processor) ackRecord(d session.Inbound, h protocol.CommonHeader, ack protocol.MessageAck) (Record, error) {
	body, err := p.wire.EncodeAck(ack)
	if err != nil {
		return Record{}, err
	}
	var payload protocol.Payload
	switch s := d.Session.(type) {
	case seal.Encrypter:
		ct, tag, err := s.Encrypt(h, body)
		if err != nil {
			return Record{}, err
		}
		payload = &protocol.AuthenticatedEncryptedDataMessage{Header: h, EncryptedPayload: ct, AuthTag: tag}
	case seal.Authenticator:
		payload = &protocol.AuthenticatedDataMessage{Header: h, Payload: body, AuthTag: s.CreateMAC(h, body)}
	default:
		return Record{}, fmt.Errorf("session %s cannot seal acks", h.SessionID)
	}
	out := &protocol.LinkOutMessage{
		Header: protocol.LinkOutHeader{
			Source:      d.Counterparties.Destination,
			Destination: d.Counterparties.Source,
		},
		Payload: payload,
	}
	return Record{Topic: p.topics.LinkOut, Key: h.SessionID, Value: out}, nil
}

func (p *Processor) discard(ctx context.Context, reason string, lvl zapcore.Level, msg string, fields ...zap.Field) Response {
	p.metrics.discard(ctx, reason)
	if ce := p.log.Check(lvl, msg); ce != nil {
		ce.Write(append(fields, zap.String("reason", reason))...)
	}
	return Response{}
}

func linkOutKey(m *protocol.LinkOutMessage) string {
	if h, ok := protocol.SessionHeader(m.Payload); ok && h.SessionID != "" {
		return h.SessionID
	}
	return m.Header.Destination.String()
}
