//go:build windows

package netstack

import (
	"linkmesh/pkg/transport"
	"linkmesh/pkg/transport/winpipe"
)

func newWinPipeTransport(opts transport.Options) (transport.Transport, error) {
	return winpipe.New(opts), nil
}
