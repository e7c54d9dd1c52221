package netstack

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"linkmesh/pkg/protocol"
	"linkmesh/pkg/transport"
)

// DialOptions controls connection retries.
type DialOptions struct {
	Attempts       int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffJitter  time.Duration
	Logger         *zap.Logger
}

// Client sends link messages over one stream and reads the responses.
type Client struct {
	conn transport.Conn
	st   transport.Stream
	wire *protocol.Wire
	mu   sync.Mutex
}

// Dial connects to address, retrying with exponential backoff.
func Dial(ctx context.Context, tr transport.Transport, address string, wire *protocol.Wire, opts DialOptions) (*Client, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.L().Named("netstack")
	}
	backoff := opts.BackoffInitial
	var lastErr error
	for i := 0; i < opts.Attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(withJitter(backoff, opts.BackoffJitter)):
			}
			backoff = min(backoff*2, opts.BackoffMax)
		}
		c, err := tr.Dial(ctx, address)
		if err != nil {
			lastErr = err
			opts.Logger.Warn("dial failed", zap.String("kind", tr.Kind().String()), zap.String("addr", address), zap.Int("attempt", i+1), zap.Error(err))
			continue
		}
		st, err := c.OpenStream(ctx)
		if err != nil {
			_ = c.Close()
			lastErr = err
			continue
		}
		return &Client{conn: c, st: st, wire: wire}, nil
	}
	return nil, fmt.Errorf("netstack: dial %s: %w", address, lastErr)
}

// Call sends msg and waits for its response.
func (c *Client) Call(msg *protocol.LinkInMessage) (*protocol.LinkManagerResponse, error) {
	b, err := c.wire.EncodeLinkIn(msg)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.st.SendBytes(b); err != nil {
		return nil, err
	}
	frame, err := c.st.RecvBytes()
	if err != nil {
		return nil, err
	}
	return c.wire.DecodeResponse(frame)
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

func withJitter(d, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return d
	}
	return d + rand.N(jitter)
}
