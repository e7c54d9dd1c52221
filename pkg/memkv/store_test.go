package memkv

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSetGet(t *testing.T) {
	s := New(Options[string]{})
	defer s.Close()

	if err := s.Set("k1", "abc", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok := s.Get("k1")
	if !ok || v != "abc" {
		t.Fatalf("Get mismatch: ok=%v v=%q", ok, v)
	}
	if _, ok := s.Get("missing"); ok {
		t.Fatalf("unexpected hit")
	}
}

func TestSetIfAbsent(t *testing.T) {
	s := New(Options[int]{})
	defer s.Close()

	if ok, err := s.SetIfAbsent("a", 1, 0); !ok || err != nil {
		t.Fatalf("first SetIfAbsent: %v %v", ok, err)
	}
	if ok, _ := s.SetIfAbsent("a", 2, 0); ok {
		t.Fatalf("second SetIfAbsent must not overwrite")
	}
	if v, _ := s.Get("a"); v != 1 {
		t.Fatalf("value overwritten: %d", v)
	}
}

func TestGetDel(t *testing.T) {
	s := New(Options[string]{})
	defer s.Close()

	_ = s.Set("k2", "42", 0)
	v, ok := s.GetDel("k2")
	if !ok || v != "42" {
		t.Fatalf("GetDel mismatch: ok=%v v=%q", ok, v)
	}
	if _, ok := s.Get("k2"); ok {
		t.Fatalf("expected key to be deleted after GetDel")
	}
	if _, ok := s.GetDel("k2"); ok {
		t.Fatalf("second GetDel must miss")
	}
}

func TestLazyExpiryWithFakeClock(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	var expired []string
	var mu sync.Mutex
	s := New(Options[string]{Now: clk.Now, OnExpire: func(k, _ string) {
		mu.Lock()
		expired = append(expired, k)
		mu.Unlock()
	}})
	defer s.Close()

	_ = s.Set("k3", "v", time.Minute)
	clk.Advance(30 * time.Second)
	if _, ok := s.Get("k3"); !ok {
		t.Fatalf("expected key live before its deadline")
	}
	clk.Advance(2 * time.Minute)
	if _, ok := s.Get("k3"); ok {
		t.Fatalf("expected key expired")
	}
	if st := s.Metrics(); st.Expired != 1 || st.Keys != 0 {
		t.Fatalf("metrics after expiry: %+v", st)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(expired) != 1 || expired[0] != "k3" {
		t.Fatalf("OnExpire calls: %v", expired)
	}
}

func TestSweep(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	s := New(Options[int]{Now: clk.Now})
	defer s.Close()

	_ = s.Set("a", 1, time.Second)
	_ = s.Set("b", 2, time.Hour)
	_ = s.Set("c", 3, 0)
	clk.Advance(time.Minute)
	s.Sweep()
	if st := s.Metrics(); st.Expired != 1 {
		t.Fatalf("Expired = %d, want 1", st.Expired)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d", s.Len())
	}
}

func TestBackgroundExpirer(t *testing.T) {
	s := New(Options[string]{})
	defer s.Close()

	_ = s.Set("k", "v", 20*time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Metrics().Expired == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expirer did not remove key: %+v", s.Metrics())
}

func TestMaxKeys(t *testing.T) {
	s := New(Options[int]{MaxKeys: 2})
	defer s.Close()

	_ = s.Set("a", 1, 0)
	_ = s.Set("b", 2, 0)
	if err := s.Set("c", 3, 0); !errors.Is(err, ErrFull) {
		t.Fatalf("want ErrFull, got %v", err)
	}
	// replacing an existing key is allowed
	if err := s.Set("a", 10, 0); err != nil {
		t.Fatalf("replace: %v", err)
	}
	s.Delete("b")
	if err := s.Set("c", 3, 0); err != nil {
		t.Fatalf("set after delete: %v", err)
	}
	if st := s.Metrics(); st.Rejected != 1 || st.Keys != 2 {
		t.Fatalf("metrics: %+v", st)
	}
}

func TestMetrics(t *testing.T) {
	s := New(Options[string]{})
	defer s.Close()

	_ = s.Set("a", "123", 0)
	_ = s.Set("b", "5", 0)
	s.Get("a")
	s.Get("missing")
	s.GetDel("b")

	st := s.Metrics()
	if st.Keys != 1 {
		t.Fatalf("Keys=1 expected, got %d", st.Keys)
	}
	if st.Sets != 2 {
		t.Fatalf("Sets=2 expected, got %d", st.Sets)
	}
	if st.Gets != 3 || st.Hits != 2 || st.Misses != 1 {
		t.Fatalf("Gets/Hits/Misses mismatch: %d/%d/%d", st.Gets, st.Hits, st.Misses)
	}
	if st.Dels != 1 {
		t.Fatalf("Dels=1 expected, got %d", st.Dels)
	}
	if v, _ := s.Get("a"); v != "123" {
		t.Fatalf("value lost: %q", v)
	}
}
