package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
)

// streamConn adapts a net.Conn carrying a single frame stream to Conn.
type streamConn struct {
	kind   Kind
	c      net.Conn
	st     Stream
	taken  atomic.Bool
	done   chan struct{}
	closed sync.Once
}

// NewStreamConn wraps c for transports without multiplexing.
func NewStreamConn(kind Kind, c net.Conn, opts Options) Conn {
	sc := &streamConn{kind: kind, c: c, done: make(chan struct{})}
	sc.st = onlyStream{Stream: NewFrameStream(c, opts.maxFrame()), conn: sc}
	return sc
}

// onlyStream closes its connection along with itself.
type onlyStream struct {
	Stream
	conn *streamConn
}

func (s onlyStream) Close() error { return s.conn.Close() }

func (s *streamConn) Kind() Kind           { return s.kind }
func (s *streamConn) LocalAddr() net.Addr  { return s.c.LocalAddr() }
func (s *streamConn) RemoteAddr() net.Addr { return s.c.RemoteAddr() }

func (s *streamConn) OpenStream(context.Context) (Stream, error) {
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
		return s.st, nil
	}
}

func (s *streamConn) AcceptStream(ctx context.Context) (Stream, error) {
	if s.taken.CompareAndSwap(false, true) {
		return s.OpenStream(ctx)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	}
}

func (s *streamConn) Close() error {
	err := ErrClosed
	s.closed.Do(func() {
		close(s.done)
		err = s.c.Close()
	})
	return err
}

// netListener turns a net.Listener into a Listener of stream conns.
type netListener struct {
	l       net.Listener
	kind    Kind
	opts    Options
	newCh   chan Conn
	closeCh chan struct{}
	once    sync.Once
}

// NewNetListener starts accepting on l. Connections arriving while the
// backlog is full are closed.
func NewNetListener(ctx context.Context, kind Kind, l net.Listener, opts Options) Listener {
	nl := &netListener{l: l, kind: kind, opts: opts, newCh: make(chan Conn, 8), closeCh: make(chan struct{})}
	go nl.acceptLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = nl.Close()
		case <-nl.closeCh:
		}
	}()
	return nl
}

func (l *netListener) Addr() net.Addr { return l.l.Addr() }

func (l *netListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, ErrClosed
	case c := <-l.newCh:
		return c, nil
	}
}

func (l *netListener) Close() error {
	err := ErrClosed
	l.once.Do(func() {
		close(l.closeCh)
		err = l.l.Close()
	})
	return err
}

func (l *netListener) acceptLoop() {
	for {
		c, err := l.l.Accept()
		if err != nil {
			return
		}
		select {
		case l.newCh <- NewStreamConn(l.kind, c, l.opts):
		default:
			_ = c.Close()
		}
	}
}
