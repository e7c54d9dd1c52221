// Package tcp carries length-prefixed frames over TCP.
package tcp

import (
	"context"
	"net"

	"linkmesh/pkg/transport"
)

// Transport dials and listens on TCP.
type Transport struct {
	opts transport.Options
}

// New returns a TCP transport.
func New(opts transport.Options) *Transport { return &Transport{opts: opts} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return transport.NewNetListener(ctx, transport.KindTCP, l, t.opts), nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return transport.NewStreamConn(transport.KindTCP, c, t.opts), nil
}
