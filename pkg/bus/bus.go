// Package bus is an in-process topic bus. It carries the records produced by
// the inbound pipeline to local consumers such as the link writer and the
// application delivery loop.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"linkmesh/pkg/inbound"
	"linkmesh/pkg/queue"
)

var (
	// ErrClosed fails publishes after Close.
	ErrClosed = errors.New("bus: closed")
	// ErrBackpressure fails a record that a subscriber had no room for.
	ErrBackpressure = errors.New("bus: subscriber buffer full")
	// ErrRateLimited fails a record over its topic's rate.
	ErrRateLimited = errors.New("bus: topic rate exceeded")
)

// Message is a delivered record.
type Message struct {
	ID        string
	Topic     string
	Key       string
	Value     any
	Published time.Time
}

// Subscription receives the messages of one topic on C.
type Subscription struct {
	C     <-chan Message
	ch    chan Message
	topic string
	bus   *Bus

	closed bool // guarded by bus.mu
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(b *Bus) { b.log = l } }

// WithClock sets the time source for timestamps and rate limits.
func WithClock(now func() time.Time) Option { return func(b *Bus) { b.now = now } }

// WithTopicRate caps topic at ratePerSec records with the given burst.
func WithTopicRate(topic string, ratePerSec, burst int64) Option {
	return func(b *Bus) { b.rates[topic] = [2]int64{ratePerSec, burst} }
}

// Bus fans records out to subscribers. Delivery never blocks and is all or
// nothing per record: if any subscriber lacks buffer space, no subscriber
// receives the record and it fails with ErrBackpressure.
type Bus struct {
	log   *zap.Logger
	now   func() time.Time
	rates map[string][2]int64

	sendMu sync.Mutex // serializes capacity checks with sends

	mu     sync.RWMutex
	subs   map[string][]*Subscription
	limits map[string]*tokenBucket
	closed bool
}

// New returns an open bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		log:    zap.L().Named("bus"),
		now:    time.Now,
		rates:  make(map[string][2]int64),
		subs:   make(map[string][]*Subscription),
		limits: make(map[string]*tokenBucket),
	}
	for _, o := range opts {
		o(b)
	}
	for topic, r := range b.rates {
		b.limits[topic] = newTokenBucket(r[0], r[1], b.now)
	}
	return b
}

// Subscribe registers a subscriber for topic with the given buffer size,
// at least one. On a closed bus the returned subscription is already closed.
func (b *Bus) Subscribe(topic string, buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Message, buffer)
	s := &Subscription{C: ch, ch: ch, topic: topic, bus: b}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		s.closed = true
		return s
	}
	b.subs[topic] = append(b.subs[topic], s)
	return s
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	list := b.subs[s.topic]
	for i, x := range list {
		if x == s {
			b.subs[s.topic] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers records in order and returns one resolved future per
// record. Records for topics without subscribers succeed. A failed record
// reached no subscriber, so retrying it does not duplicate delivery.
func (b *Bus) Publish(ctx context.Context, records []inbound.Record) []*queue.Future[struct{}] {
	out := make([]*queue.Future[struct{}], len(records))
	fail := func(err error) []*queue.Future[struct{}] {
		for i := range out {
			out[i] = queue.Resolved(queue.Err[struct{}](err))
		}
		return out
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fail(ErrClosed)
	}
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	now := b.now()
	for i, r := range records {
		out[i] = queue.Resolved(b.deliver(r, now))
	}
	return out
}

func (b *Bus) deliver(r inbound.Record, now time.Time) queue.Result[struct{}] {
	if tb := b.limits[r.Topic]; tb != nil {
		if ok, wait := tb.allow(1); !ok {
			b.log.Warn("topic rate exceeded", zap.String("topic", r.Topic), zap.Duration("retry_after", wait))
			return queue.Err[struct{}](ErrRateLimited)
		}
	}
	subs := b.subs[r.Topic]
	if len(subs) == 0 {
		b.log.Debug("no subscribers", zap.String("topic", r.Topic), zap.String("key", r.Key))
		return queue.Ok(struct{}{})
	}
	full := 0
	for _, s := range subs {
		if len(s.ch) >= cap(s.ch) {
			full++
		}
	}
	if full > 0 {
		b.log.Warn("subscriber buffer full",
			zap.String("topic", r.Topic), zap.String("key", r.Key), zap.Int("subscribers", full))
		return queue.Err[struct{}](fmt.Errorf("%w: %d of %d subscribers on %s", ErrBackpressure, full, len(subs), r.Topic))
	}
	// Consumers only drain, so the space checked above is still there.
	msg := Message{ID: uuid.NewString(), Topic: r.Topic, Key: r.Key, Value: r.Value, Published: now}
	for _, s := range subs {
		s.ch <- msg
	}
	return queue.Ok(struct{}{})
}

// Close closes every subscription and fails later publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, list := range b.subs {
		for _, s := range list {
			s.closed = true
			close(s.ch)
		}
		delete(b.subs, topic)
	}
}

var _ inbound.Publisher = (*Bus)(nil)
