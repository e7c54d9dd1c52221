package transport

import (
	"context"
	"errors"
	"net"
)

// Kind identifies a transport.
type Kind int

const (
	KindUnknown Kind = iota
	KindQUIC
	KindTCP
	KindWinPipe
	KindMem
)

func (k Kind) String() string {
	switch k {
	case KindQUIC:
		return "quic"
	case KindTCP:
		return "tcp"
	case KindWinPipe:
		return "winpipe"
	case KindMem:
		return "mem"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by operations on a closed listener or connection.
var ErrClosed = errors.New("transport: closed")

// Stream carries frames. One reader and one writer goroutine are expected.
type Stream interface {
	// SendBytes sends one frame.
	SendBytes([]byte) error
	// RecvBytes receives the next frame.
	RecvBytes() ([]byte, error)
	Close() error
}

// Conn is a connection to a peer.
type Conn interface {
	Kind() Kind
	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// OpenStream opens a stream towards the peer. Transports without
	// multiplexing return their only stream.
	OpenStream(ctx context.Context) (Stream, error)

	// AcceptStream waits for the next stream opened by the peer. Transports
	// without multiplexing return their only stream once, then block until
	// the connection closes.
	AcceptStream(ctx context.Context) (Stream, error)

	Close() error
}

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks until a connection arrives, the listener closes or ctx is done.
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

// Transport dials and listens for one Kind.
type Transport interface {
	Kind() Kind
	Listen(ctx context.Context, address string) (Listener, error)
	Dial(ctx context.Context, address string) (Conn, error)
}

// Options tunes the stream based transports.
type Options struct {
	// MaxFrameBytes caps a received frame; 0 means DefaultMaxFrame.
	MaxFrameBytes int
}

func (o Options) maxFrame() int {
	if o.MaxFrameBytes <= 0 {
		return DefaultMaxFrame
	}
	return o.MaxFrameBytes
}
