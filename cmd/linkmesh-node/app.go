package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"linkmesh/pkg/bus"
	"linkmesh/pkg/config"
	netstack "linkmesh/pkg/core/netstack"
	"linkmesh/pkg/handshake"
	"linkmesh/pkg/identity"
	"linkmesh/pkg/inbound"
	"linkmesh/pkg/observability"
	"linkmesh/pkg/protocol"
	"linkmesh/pkg/protocol/codec"
	"linkmesh/pkg/queue"
	"linkmesh/pkg/session"
)

func newCodecs() (*codec.Registry, error) { return codec.NewRegistry() }

// run wires the node and blocks until ctx is canceled.
func run(ctx context.Context, cfg *config.Config) error {
	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("linkmesh-node started", zap.String("app", cfg.AppName), zap.String("node_id", cfg.NodeID))
	logger.Debug("effective configuration", zap.Any("config", cfg))

	priv, keyID, err := identity.LoadOrGenEd25519(cfg.Identity)
	if err != nil {
		return fmt.Errorf("init identity: %w", err)
	}
	self := protocol.Identity{Name: cfg.Identity.Name, Group: cfg.Identity.Group}
	logger.Info("identity", zap.Stringer("identity", self), zap.String("key_id", keyID))

	reg, err := newCodecs()
	if err != nil {
		return err
	}
	format, err := protocol.ParseFormat(cfg.Inbound.WireFormat)
	if err != nil {
		return err
	}
	wire, err := protocol.NewWire(reg, format)
	if err != nil {
		return err
	}

	sessions := session.NewRegistry(
		session.WithLogger(logger.Named("session")),
		session.WithPendingAckTTL(time.Duration(cfg.Sessions.PendingAckTTLMS)*time.Millisecond),
		session.WithHandshaker(handshake.NewResponder(self, priv, handshake.WithLogger(logger.Named("handshake")))),
	)
	defer sessions.Close()
	ids, err := sessions.LoadStatic(cfg.Sessions.Static)
	if err != nil {
		return fmt.Errorf("static sessions: %w", err)
	}
	if len(ids) > 0 {
		logger.Info("static sessions loaded", zap.Strings("session_ids", ids), zap.Int("sessions", sessions.Stats().Sessions))
	}

	topics := inbound.TopicsFromConfig(cfg.Inbound.Topics)
	b := bus.New(bus.WithLogger(logger.Named("bus")))
	defer b.Close()

	proc, err := inbound.NewProcessor(sessions, inbound.NewStaticAssignment(cfg.Inbound.Partitions...), inbound.SystemClock{}, wire, inbound.Options{
		Topics:      topics,
		ReplyInline: cfg.Inbound.ReplyInline,
		Logger:      logger.Named("inbound"),
	})
	if err != nil {
		return err
	}
	rpc, err := inbound.NewRPCProcessor(proc, b, queue.GoExecutor{}, inbound.RPCOptions{
		PublishTimeout: time.Duration(cfg.Inbound.PublishTimeoutMS) * time.Millisecond,
		ProcessTimeout: time.Duration(cfg.Inbound.ProcessTimeoutMS) * time.Millisecond,
		Logger:         logger.Named("inbound.rpc"),
	})
	if err != nil {
		return err
	}
	if err := rpc.Start(); err != nil {
		return err
	}
	defer rpc.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	consume := func(topic string, handle func(bus.Message)) {
		sub := b.Subscribe(topic, 256)
		g.Go(func() error {
			defer sub.Close()
			for {
				select {
				case <-gctx.Done():
					return nil
				case m, ok := <-sub.C:
					if !ok {
						return nil
					}
					handle(m)
				}
			}
		})
	}
	consume(topics.LinkOut, func(m bus.Message) {
		out, ok := m.Value.(*protocol.LinkOutMessage)
		if !ok {
			return
		}
		frame, err := wire.EncodeLinkOut(out)
		if err != nil {
			logger.Error("encode link.out", zap.String("key", m.Key), zap.Error(err))
			return
		}
		logger.Debug("link.out", zap.String("key", m.Key), zap.Stringer("destination", out.Header.Destination),
			zap.String("kind", string(out.Payload.Kind())), zap.Int("bytes", len(frame)))
	})
	consume(topics.P2PIn, func(m bus.Message) {
		if app, ok := m.Value.(*protocol.AppMessage); ok {
			logger.Info("delivered", zap.String("message_id", app.MessageID()), zap.String("bus_id", m.ID))
		}
	})
	consume(topics.P2POutMarkers, func(m bus.Message) {
		if mk, ok := m.Value.(*protocol.AppMessageMarker); ok {
			logger.Info("marker", zap.String("marker", string(mk.Marker)), zap.String("message_id", mk.MessageID))
		}
	})
	consume(topics.SessionPartitions, func(m bus.Message) {
		if sp, ok := m.Value.(*protocol.SessionPartitions); ok {
			logger.Debug("session partitions", zap.String("session_id", m.Key), zap.Int32s("partitions", sp.Partitions))
		}
	})

	srv := netstack.NewServer(wire, rpc, logger.Named("netstack"))
	if err := netstack.StartFromConfig(gctx, cfg.Transports, srv); err != nil {
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		srv.Close()
		return nil
	})

	logger.Info("node is running; press Ctrl+C to exit")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	st := sessions.Stats()
	logger.Info("node stopped",
		zap.Int("sessions", st.Sessions),
		zap.Int("established", st.Established),
		zap.Int("pending_acks", st.Pending),
		zap.Uint64("unacked_expired", st.UnackedExpired))
	return nil
}
