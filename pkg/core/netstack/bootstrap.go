// Package netstack binds transports to the inbound RPC processor: every frame
// received on a link stream is one LinkInMessage and gets one response frame.
package netstack

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"linkmesh/pkg/config"
	"linkmesh/pkg/protocol"
	"linkmesh/pkg/transport"
	"linkmesh/pkg/transport/mem"
	tquic "linkmesh/pkg/transport/quic"
	ttcp "linkmesh/pkg/transport/tcp"
)

// Handler answers link messages synchronously.
type Handler interface {
	Process(ctx context.Context, msg *protocol.LinkInMessage) (*protocol.LinkManagerResponse, error)
}

// Server accepts link connections and feeds their frames to a Handler.
type Server struct {
	wire  *protocol.Wire
	h     Handler
	log   *zap.Logger
	conns *transport.Conns

	mu        sync.Mutex
	listeners []transport.Listener
	wg        sync.WaitGroup
}

// NewServer returns a Server decoding frames with wire.
func NewServer(wire *protocol.Wire, h Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.L().Named("netstack")
	}
	return &Server{wire: wire, h: h, log: log, conns: transport.NewConns()}
}

// Listen starts accepting on address through tr until ctx is done or Close.
func (s *Server) Listen(ctx context.Context, tr transport.Transport, address string) (transport.Listener, error) {
	l, err := tr.Listen(ctx, address)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
	s.log.Info("listening", zap.String("kind", tr.Kind().String()), zap.String("addr", l.Addr().String()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx, l)
	}()
	return l, nil
}

// Conns returns the live connections.
func (s *Server) Conns() *transport.Conns { return s.conns }

// Close stops the listeners, closes every connection and waits for the
// connection goroutines to exit.
func (s *Server) Close() {
	s.mu.Lock()
	ls := s.listeners
	s.listeners = nil
	s.mu.Unlock()
	for i := len(ls) - 1; i >= 0; i-- {
		_ = ls[i].Close()
	}
	s.conns.CloseAll()
	s.wg.Wait()
}

// StartFromConfig builds the configured transports and listens on each
// endpoint. Endpoints that fail are logged; it errors only when endpoints
// were configured and none could be opened.
func StartFromConfig(ctx context.Context, cfg []config.TransportConfig, srv *Server) error {
	configured, started := 0, 0
	for _, tc := range cfg {
		tr, err := NewByKind(tc.Kind, transport.Options{MaxFrameBytes: tc.MaxFrameBytes})
		if err != nil {
			srv.log.Warn("transport kind not available", zap.String("kind", tc.Kind), zap.Error(err))
			configured += len(tc.Listen)
			continue
		}
		for _, addr := range tc.Listen {
			configured++
			if _, err := srv.Listen(ctx, tr, addr); err != nil {
				srv.log.Error("listen failed", zap.String("kind", tr.Kind().String()), zap.String("addr", addr), zap.Error(err))
				continue
			}
			started++
		}
	}
	if configured > 0 && started == 0 {
		return errors.New("netstack: no transport endpoint could be opened")
	}
	return nil
}

// NewByKind constructs a Transport by config name.
func NewByKind(kind string, opts transport.Options) (transport.Transport, error) {
	switch kind {
	case "tcp":
		return ttcp.New(opts), nil
	case "quic":
		tr, err := tquic.New(opts)
		if err != nil {
			return nil, fmt.Errorf("quic: %w", err)
		}
		return tr, nil
	case "mem", "inproc":
		return mem.New(opts), nil
	case "winpipe", "pipe":
		return newWinPipeTransport(opts)
	default:
		return nil, ErrUnknownKind(kind)
	}
}

// ErrUnknownKind reports an unsupported transport name.
type ErrUnknownKind string

func (e ErrUnknownKind) Error() string { return "unknown transport kind: " + string(e) }
