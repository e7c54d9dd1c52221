package memkv

import (
	"strconv"
	"testing"
	"time"
)

func BenchmarkSetGetParallel(b *testing.B) {
	s := New(Options[int]{})
	defer s.Close()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			k := strconv.Itoa(i & 4095)
			_ = s.Set(k, i, time.Minute)
			s.Get(k)
			i++
		}
	})
}
