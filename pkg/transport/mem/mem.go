// Package mem is an in-process transport over net.Pipe, used by tests and
// by components living in the same process as the node.
package mem

import (
	"context"
	"errors"
	"net"
	"sync"

	"linkmesh/pkg/transport"
)

// Transport routes dials to listeners registered under a name.
type Transport struct {
	opts      transport.Options
	mu        sync.Mutex
	listeners map[string]*listener
}

// New returns a Transport with no listeners.
func New(opts transport.Options) *Transport {
	return &Transport{opts: opts, listeners: make(map[string]*listener)}
}

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

// Listen registers name until ctx is done or the listener is closed.
func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.listeners[name]; ok {
		return nil, errors.New("mem: listener already exists")
	}
	l := &listener{name: name, newCh: make(chan transport.Conn, 8), closeCh: make(chan struct{})}
	t.listeners[name] = l
	go func() {
		select {
		case <-ctx.Done():
		case <-l.closeCh:
		}
		_ = l.Close()
		t.mu.Lock()
		if t.listeners[name] == l {
			delete(t.listeners, name)
		}
		t.mu.Unlock()
	}()
	return l, nil
}

// Dial connects to the listener registered under name.
func (t *Transport) Dial(ctx context.Context, name string) (transport.Conn, error) {
	t.mu.Lock()
	l := t.listeners[name]
	t.mu.Unlock()
	if l == nil {
		return nil, errors.New("mem: no such listener")
	}
	c1, c2 := net.Pipe()
	srv := transport.NewStreamConn(transport.KindMem, pipeConn{c1, memAddr(name), memAddr("client")}, t.opts)
	cli := transport.NewStreamConn(transport.KindMem, pipeConn{c2, memAddr("client"), memAddr(name)}, t.opts)
	select {
	case l.newCh <- srv:
		return cli, nil
	case <-l.closeCh:
	case <-ctx.Done():
	}
	_ = srv.Close()
	_ = cli.Close()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, transport.ErrClosed
}

type listener struct {
	name    string
	newCh   chan transport.Conn
	closeCh chan struct{}
	once    sync.Once
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, transport.ErrClosed
	case c := <-l.newCh:
		return c, nil
	}
}

func (l *listener) Close() error {
	l.once.Do(func() { close(l.closeCh) })
	return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

// pipeConn gives net.Pipe ends meaningful addresses.
type pipeConn struct {
	net.Conn
	local, remote net.Addr
}

func (c pipeConn) LocalAddr() net.Addr  { return c.local }
func (c pipeConn) RemoteAddr() net.Addr { return c.remote }
