package bus

import (
	"sync"
	"time"
)

// tokenBucket limits the record rate of one topic.
type tokenBucket struct {
	mu       sync.Mutex
	capacity int64
	tokens   int64
	rate     int64 // tokens per second
	last     time.Time
	now      func() time.Time
}

func newTokenBucket(ratePerSec, capacity int64, now func() time.Time) *tokenBucket {
	if capacity <= 0 {
		capacity = ratePerSec
	}
	return &tokenBucket{capacity: capacity, tokens: capacity, rate: ratePerSec, last: now(), now: now}
}

// allow consumes n tokens if available. Otherwise it reports how long until
// enough have accumulated.
func (b *tokenBucket) allow(n int64) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if dt := now.Sub(b.last); dt > 0 {
		if add := b.rate * dt.Nanoseconds() / int64(time.Second); add > 0 {
			b.tokens = min(b.tokens+add, b.capacity)
			b.last = now
		}
	}
	if b.tokens >= n {
		b.tokens -= n
		return true, 0
	}
	if b.rate <= 0 {
		return false, time.Duration(1<<63 - 1)
	}
	return false, time.Duration((n - b.tokens) * int64(time.Second) / b.rate)
}
