package mem

import (
	"context"
	"errors"
	"testing"
	"time"

	"linkmesh/pkg/transport"
)

func TestDialAcceptExchange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr := New(transport.Options{})
	l, err := tr.Listen(ctx, "gw")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if _, err := tr.Listen(ctx, "gw"); err == nil {
		t.Fatalf("duplicate listen should fail")
	}

	cli, err := tr.Dial(ctx, "gw")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	srv, err := l.Accept(ctx)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if srv.RemoteAddr().String() != "client" || cli.RemoteAddr().String() != "gw" {
		t.Fatalf("addrs: %s %s", srv.RemoteAddr(), cli.RemoteAddr())
	}

	cs, _ := cli.OpenStream(ctx)
	ss, err := srv.AcceptStream(ctx)
	if err != nil {
		t.Fatalf("accept stream: %v", err)
	}
	errc := make(chan error, 1)
	go func() { errc <- cs.SendBytes([]byte("ping")) }()
	got, err := ss.RecvBytes()
	if err != nil || string(got) != "ping" {
		t.Fatalf("recv: %q %v", got, err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("send: %v", err)
	}

	// the only stream is handed out once
	go func() { time.Sleep(20 * time.Millisecond); _ = srv.Close() }()
	if _, err := srv.AcceptStream(ctx); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("second accept: %v", err)
	}
}

func TestDialUnknownAndClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := New(transport.Options{})
	if _, err := tr.Dial(ctx, "nope"); err == nil {
		t.Fatalf("dial to unknown listener should fail")
	}
	l, _ := tr.Listen(ctx, "gw")
	cancel()
	if _, err := l.Accept(context.Background()); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("accept after cancel: %v", err)
	}
}
