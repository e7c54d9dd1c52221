package memkv

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrFull is returned when a new key would exceed Options.MaxKeys.
var ErrFull = errors.New("memkv: store full")

// Options configures a Store.
type Options[V any] struct {
	// Shards is the number of lock shards (default 64).
	Shards int
	// MaxKeys caps the number of live keys; 0 means unlimited.
	MaxKeys uint64
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
	// OnExpire is called for each key removed because its TTL elapsed.
	// It runs outside any store lock.
	OnExpire func(key string, val V)
}

func (o Options[V]) withDefaults() Options[V] {
	if o.Shards <= 0 {
		o.Shards = 64
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Store is a sharded TTL map. It is safe for concurrent use.
type Store[V any] struct {
	opts   Options[V]
	shards []shard[V]

	qmu  sync.Mutex
	q    expQueue
	wake chan struct{}

	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup

	mKeys     atomic.Uint64
	mSets     atomic.Uint64
	mGets     atomic.Uint64
	mHits     atomic.Uint64
	mMisses   atomic.Uint64
	mDels     atomic.Uint64
	mExpired  atomic.Uint64
	mRejected atomic.Uint64
}

type shard[V any] struct {
	mu sync.RWMutex
	m  map[string]*entry[V]
}

type entry[V any] struct {
	val      V
	expireAt int64 // unix nano; 0 = never
}

func (e *entry[V]) expired(now int64) bool { return e.expireAt != 0 && e.expireAt <= now }

// New creates a store and starts its expirer. Call Close to stop it.
func New[V any](opts Options[V]) *Store[V] {
	opts = opts.withDefaults()
	s := &Store[V]{
		opts:    opts,
		shards:  make([]shard[V], opts.Shards),
		wake:    make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i].m = make(map[string]*entry[V])
	}
	heap.Init(&s.q)
	s.wg.Add(1)
	go s.expirer()
	return s
}

// Close stops the expirer. The store stays readable.
func (s *Store[V]) Close() {
	s.closeOnce.Do(func() { close(s.closeCh) })
	s.wg.Wait()
}

func (s *Store[V]) shardFor(key string) *shard[V] {
	// FNV-1a 64
	var h uint64 = 1469598103934665603
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211
	}
	return &s.shards[int(h%uint64(len(s.shards)))]
}

func (s *Store[V]) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.opts.Now().Add(ttl).UnixNano()
}

func (s *Store[V]) reserveKey() bool {
	if s.opts.MaxKeys == 0 {
		s.mKeys.Add(1)
		return true
	}
	for {
		cur := s.mKeys.Load()
		if cur >= s.opts.MaxKeys {
			return false
		}
		if s.mKeys.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Set stores val under key. ttl <= 0 means no expiry.
func (s *Store[V]) Set(key string, val V, ttl time.Duration) error {
	_, err := s.set(key, val, ttl, true)
	return err
}

// SetIfAbsent stores val only if key is missing or expired and reports
// whether it did.
func (s *Store[V]) SetIfAbsent(key string, val V, ttl time.Duration) (bool, error) {
	return s.set(key, val, ttl, false)
}

func (s *Store[V]) set(key string, val V, ttl time.Duration, overwrite bool) (bool, error) {
	expAt := s.deadline(ttl)
	now := s.opts.Now().UnixNano()

	sh := s.shardFor(key)
	sh.mu.Lock()
	prev, existed := sh.m[key]
	if existed && prev.expired(now) {
		delete(sh.m, key)
		s.mExpired.Add(1)
		s.mKeys.Add(^uint64(0))
		existed = false
	}
	if existed && !overwrite {
		sh.mu.Unlock()
		return false, nil
	}
	if !existed && !s.reserveKey() {
		sh.mu.Unlock()
		s.mRejected.Add(1)
		return false, ErrFull
	}
	sh.m[key] = &entry[V]{val: val, expireAt: expAt}
	s.mSets.Add(1)
	sh.mu.Unlock()

	if expAt != 0 {
		s.enqueueExpire(key, expAt)
	}
	return true, nil
}

// Get returns the value and whether it is present and unexpired.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mGets.Add(1)
	sh := s.shardFor(key)
	var (
		val V
		exp int64
	)
	sh.mu.RLock()
	e, ok := sh.m[key]
	if ok {
		val, exp = e.val, e.expireAt
	}
	sh.mu.RUnlock()
	if ok && exp != 0 && exp <= s.opts.Now().UnixNano() {
		s.expireKey(key)
		ok = false
	}
	if !ok {
		s.mMisses.Add(1)
		var zero V
		return zero, false
	}
	s.mHits.Add(1)
	return val, true
}

// GetDel returns the value and removes the key atomically.
func (s *Store[V]) GetDel(key string) (V, bool) {
	var zero V
	s.mGets.Add(1)
	now := s.opts.Now().UnixNano()
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
		s.mKeys.Add(^uint64(0))
	}
	sh.mu.Unlock()
	if !ok {
		s.mMisses.Add(1)
		return zero, false
	}
	if e.expired(now) {
		s.mExpired.Add(1)
		s.mMisses.Add(1)
		s.notifyExpired(key, e.val)
		return zero, false
	}
	s.mDels.Add(1)
	s.mHits.Add(1)
	return e.val, true
}

// Delete removes key and reports whether it was present.
func (s *Store[V]) Delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	_, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
	}
	sh.mu.Unlock()
	if ok {
		s.mDels.Add(1)
		s.mKeys.Add(^uint64(0))
	}
	return ok
}

// Len returns the number of stored keys, including expired ones not yet swept.
func (s *Store[V]) Len() int { return int(s.mKeys.Load()) }

// expireKey removes key if it is still expired and fires OnExpire.
func (s *Store[V]) expireKey(key string) bool {
	now := s.opts.Now().UnixNano()
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.m[key]
	if !ok || !e.expired(now) {
		sh.mu.Unlock()
		return false
	}
	delete(sh.m, key)
	sh.mu.Unlock()
	s.mExpired.Add(1)
	s.mKeys.Add(^uint64(0))
	s.notifyExpired(key, e.val)
	return true
}

func (s *Store[V]) notifyExpired(key string, val V) {
	if s.opts.OnExpire != nil {
		s.opts.OnExpire(key, val)
	}
}

// Stats is a snapshot of store counters.
type Stats struct {
	Keys     uint64
	Sets     uint64
	Gets     uint64
	Hits     uint64
	Misses   uint64
	Dels     uint64
	Expired  uint64
	Rejected uint64
}

// Metrics returns the counters without blocking store operations.
func (s *Store[V]) Metrics() Stats {
	return Stats{
		Keys:     s.mKeys.Load(),
		Sets:     s.mSets.Load(),
		Gets:     s.mGets.Load(),
		Hits:     s.mHits.Load(),
		Misses:   s.mMisses.Load(),
		Dels:     s.mDels.Load(),
		Expired:  s.mExpired.Load(),
		Rejected: s.mRejected.Load(),
	}
}
