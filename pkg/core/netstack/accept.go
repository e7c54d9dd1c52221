package netstack

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"linkmesh/pkg/protocol"
	"linkmesh/pkg/transport"
)

func (s *Server) acceptLoop(ctx context.Context, l transport.Listener) {
	for {
		c, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, transport.ErrClosed) {
				s.log.Warn("accept failed", zap.String("addr", l.Addr().String()), zap.Error(err))
			}
			return
		}
		if !s.conns.Add(c) {
			return
		}
		s.log.Debug("inbound connection", zap.String("kind", c.Kind().String()), zap.Stringer("raddr", c.RemoteAddr()))
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.conns.Remove(c)
			defer c.Close()
			s.serveConn(ctx, c)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, c transport.Conn) {
	for {
		st, err := c.AcceptStream(ctx)
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveStream(ctx, c, st)
		}()
	}
}

func (s *Server) serveStream(ctx context.Context, c transport.Conn, st transport.Stream) {
	log := s.log.With(zap.String("kind", c.Kind().String()), zap.Stringer("raddr", c.RemoteAddr()))
	for {
		frame, err := st.RecvBytes()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, transport.ErrClosed) && ctx.Err() == nil {
				log.Debug("stream ended", zap.Error(err))
			}
			_ = st.Close()
			return
		}
		out, err := s.wire.EncodeResponse(s.respond(ctx, log, frame))
		if err != nil {
			log.Error("encode response", zap.Error(err))
			_ = st.Close()
			return
		}
		if err := st.SendBytes(out); err != nil {
			log.Debug("send response", zap.Error(err))
			_ = st.Close()
			return
		}
	}
}

// respond never fails: undecodable frames and processing errors get the
// empty reply.
func (s *Server) respond(ctx context.Context, log *zap.Logger, frame []byte) *protocol.LinkManagerResponse {
	msg, err := s.wire.DecodeLinkIn(frame)
	if err != nil {
		log.Warn("undecodable link frame", zap.Int("bytes", len(frame)), zap.Error(err))
		return &protocol.LinkManagerResponse{}
	}
	reply, err := s.h.Process(ctx, msg)
	if err != nil {
		log.Warn("link message failed", zap.Error(err))
		return &protocol.LinkManagerResponse{}
	}
	return reply
}
