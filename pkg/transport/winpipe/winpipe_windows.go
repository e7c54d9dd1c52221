//go:build windows

// Package winpipe carries length-prefixed frames over Windows named pipes.
package winpipe

import (
	"context"

	"github.com/Microsoft/go-winio"

	"linkmesh/pkg/transport"
)

// Transport dials and listens on named pipes.
type Transport struct {
	opts transport.Options
}

// New returns a named pipe transport.
func New(opts transport.Options) *Transport { return &Transport{opts: opts} }

func (t *Transport) Kind() transport.Kind { return transport.KindWinPipe }

func (t *Transport) Listen(ctx context.Context, pipeName string) (transport.Listener, error) {
	l, err := winio.ListenPipe(pipeName, nil)
	if err != nil {
		return nil, err
	}
	return transport.NewNetListener(ctx, transport.KindWinPipe, l, t.opts), nil
}

func (t *Transport) Dial(ctx context.Context, pipeName string) (transport.Conn, error) {
	c, err := winio.DialPipeContext(ctx, pipeName)
	if err != nil {
		return nil, err
	}
	return transport.NewStreamConn(transport.KindWinPipe, c, t.opts), nil
}
