// Package quic carries length-prefixed frames over QUIC streams. Peers are
// authenticated by the session handshake, so TLS uses an ephemeral
// self-signed certificate and clients skip verification.
package quic

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"linkmesh/pkg/transport"
)

// ALPN is the application protocol negotiated on every connection.
const ALPN = "linkmesh"

// Transport dials and listens on QUIC.
type Transport struct {
	opts     transport.Options
	tlsConf  *tls.Config
	quicConf *quicgo.Config
}

// New returns a QUIC transport with a fresh server certificate.
func New(opts transport.Options) (*Transport, error) {
	cert, err := selfSignedCert(time.Now())
	if err != nil {
		return nil, fmt.Errorf("quic: certificate: %w", err)
	}
	return &Transport{
		opts: opts,
		tlsConf: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{ALPN},
			MinVersion:   tls.VersionTLS13,
		},
		quicConf: &quicgo.Config{
			MaxIdleTimeout:  30 * time.Second,
			KeepAlivePeriod: 10 * time.Second,
		},
	}, nil
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	l, err := quicgo.ListenAddr(address, t.tlsConf, t.quicConf)
	if err != nil {
		return nil, err
	}
	ql := &listener{l: l, opts: t.opts, newCh: make(chan transport.Conn, 8), closeCh: make(chan struct{})}
	lctx, cancel := context.WithCancel(ctx)
	ql.cancel = cancel
	go ql.acceptLoop(lctx)
	go func() { <-lctx.Done(); _ = ql.Close() }()
	return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	tlsClient := &tls.Config{
		InsecureSkipVerify: true, // identity is checked by the session handshake
		NextProtos:         []string{ALPN},
		MinVersion:         tls.VersionTLS13,
	}
	c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
	if err != nil {
		return nil, err
	}
	return &conn{c: c, opts: t.opts}, nil
}

type listener struct {
	l       *quicgo.Listener
	opts    transport.Options
	newCh   chan transport.Conn
	closeCh chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

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
	err := transport.ErrClosed
	l.once.Do(func() {
		close(l.closeCh)
		l.cancel()
		err = l.l.Close()
	})
	return err
}

func (l *listener) acceptLoop(ctx context.Context) {
	for {
		c, err := l.l.Accept(ctx)
		if err != nil {
			return
		}
		select {
		case l.newCh <- &conn{c: c, opts: l.opts}:
		default:
			_ = c.CloseWithError(0, "backlog full")
		}
	}
}

type conn struct {
	c    *quicgo.Conn
	opts transport.Options
}

func (c *conn) Kind() transport.Kind { return transport.KindQUIC }
func (c *conn) LocalAddr() net.Addr  { return c.c.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr { return c.c.RemoteAddr() }

func (c *conn) OpenStream(ctx context.Context) (transport.Stream, error) {
	st, err := c.c.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return transport.NewFrameStream(st, c.opts.MaxFrameBytes), nil
}

func (c *conn) AcceptStream(ctx context.Context) (transport.Stream, error) {
	st, err := c.c.AcceptStream(ctx)
	if err != nil {
		var appErr *quicgo.ApplicationError
		if errors.As(err, &appErr) {
			return nil, transport.ErrClosed
		}
		return nil, err
	}
	return transport.NewFrameStream(st, c.opts.MaxFrameBytes), nil
}

func (c *conn) Close() error { return c.c.CloseWithError(0, "") }

// selfSignedCert generates a short-lived certificate for the listener.
func selfSignedCert(now time.Time) (tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: ALPN},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, pub, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
