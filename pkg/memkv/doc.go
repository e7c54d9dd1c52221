// Package memkv is a sharded in-memory key/value store with per-key TTL.
//
// Values are generic. Reads never block on other shards, expired keys are
// removed lazily on access and eagerly by a background expirer driven by a
// min-heap of deadlines. Counters are kept in atomics and can be read with
// Metrics without taking any lock.
//
// Typical use:
//
//	s := memkv.New(memkv.Options[string]{})
//	defer s.Close()
//	_ = s.Set("k", "v", time.Minute)
//	v, ok := s.Get("k")
package memkv
