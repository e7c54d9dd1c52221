package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"linkmesh/pkg/config"
	netstack "linkmesh/pkg/core/netstack"
	"linkmesh/pkg/handshake"
	"linkmesh/pkg/identity"
	"linkmesh/pkg/protocol"
	"linkmesh/pkg/transport"
)

var configPath string

// Execute runs the root command.
func Execute() error {
	root := &cobra.Command{
		Use:           "linkmesh-node",
		Short:         "Inbound link processing node",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          func(cmd *cobra.Command, _ []string) error { return runCmd().RunE(cmd, nil) },
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file (or LINKMESH_CONFIG)")
	root.AddCommand(runCmd(), identityCmd(), helloCmd())
	return root.Execute()
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the node until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

// identity prints the key id of the configured (or generated) signing key.
func identityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Print the node's signing key id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			_, keyID, err := identity.LoadOrGenEd25519(cfg.Identity)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s@%s %s\n", cfg.Identity.Name, cfg.Identity.Group, keyID)
			return nil
		},
	}
}

// hello dials a node and sends an InitiatorHello from an ephemeral identity.
func helloCmd() *cobra.Command {
	var (
		kind, addr, format string
		srcName, srcGroup  string
		dstName, dstGroup  string
		timeout            time.Duration
	)
	cmd := &cobra.Command{
		Use:   "hello",
		Short: "Send a session initiation hello to a node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			f, err := protocol.ParseFormat(format)
			if err != nil {
				return err
			}
			reg, err := newCodecs()
			if err != nil {
				return err
			}
			wire, err := protocol.NewWire(reg, f)
			if err != nil {
				return err
			}
			tr, err := netstack.NewByKind(kind, transport.Options{})
			if err != nil {
				return err
			}
			c, err := netstack.Dial(ctx, tr, addr, wire, netstack.DialOptions{Attempts: 3})
			if err != nil {
				return err
			}
			defer c.Close()

			_, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			src := protocol.Identity{Name: srcName, Group: srcGroup}
			sid := uuid.NewString()
			h, err := handshake.BuildHello(src, sid, priv, time.Now())
			if err != nil {
				return err
			}
			reply, err := c.Call(&protocol.LinkInMessage{Payload: &protocol.InitiatorHello{
				Header: protocol.CommonHeader{
					MessageType:     protocol.MessageTypeInitiatorHello,
					ProtocolVersion: 1,
					SessionID:       sid,
					Timestamp:       time.Now().UnixMilli(),
				},
				Source:      src,
				Destination: protocol.Identity{Name: dstName, Group: dstGroup},
				Hello:       h,
			}})
			if err != nil {
				return err
			}
			if reply.Empty() {
				fmt.Fprintf(cmd.OutOrStdout(), "session %s: accepted, reply published on link.out\n", sid)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s: inline reply %s\n", sid, reply.Payload.Kind())
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "tcp", "transport kind: tcp|quic|winpipe")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7777", "node address")
	cmd.Flags().StringVar(&format, "format", "cbor", "wire format: cbor|json")
	cmd.Flags().StringVar(&srcName, "source", "O=Client, L=Nowhere, C=XX", "initiator identity name")
	cmd.Flags().StringVar(&srcGroup, "source-group", "default", "initiator identity group")
	cmd.Flags().StringVar(&dstName, "dest", "O=Alice, L=London, C=GB", "responder identity name")
	cmd.Flags().StringVar(&dstGroup, "dest-group", "default", "responder identity group")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "overall timeout")
	return cmd
}
