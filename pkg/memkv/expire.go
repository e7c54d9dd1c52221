package memkv

import (
	"container/heap"
	"time"
)

type expItem struct {
	when int64
	key  string
}

// expQueue is a min-heap of deadlines. Entries may be stale after a key is
// re-set or deleted; the sweeper re-checks the live entry.
type expQueue []expItem

func (q expQueue) Len() int           { return len(q) }
func (q expQueue) Less(i, j int) bool { return q[i].when < q[j].when }
func (q expQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *expQueue) Push(x any)        { *q = append(*q, x.(expItem)) }
func (q *expQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

func (s *Store[V]) enqueueExpire(key string, when int64) {
	s.qmu.Lock()
	heap.Push(&s.q, expItem{when: when, key: key})
	s.qmu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Sweep removes every key whose deadline has passed and returns how many
// were removed. The expirer calls it; tests with a fake clock may too.
func (s *Store[V]) Sweep() int {
	n, _ := s.sweep()
	return n
}

// sweep pops due deadlines and reports the next pending one, if any.
func (s *Store[V]) sweep() (int, int64) {
	now := s.opts.Now().UnixNano()
	var due []string
	s.qmu.Lock()
	for s.q.Len() > 0 && s.q[0].when <= now {
		due = append(due, heap.Pop(&s.q).(expItem).key)
	}
	next := int64(0)
	if s.q.Len() > 0 {
		next = s.q[0].when
	}
	s.qmu.Unlock()

	removed := 0
	for _, k := range due {
		if s.expireKey(k) {
			removed++
		}
	}
	return removed, next
}

func (s *Store[V]) expirer() {
	defer s.wg.Done()
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	for {
		_, next := s.sweep()
		var fire <-chan time.Time
		if next != 0 {
			d := time.Duration(next - s.opts.Now().UnixNano())
			if d < time.Millisecond {
				d = time.Millisecond
			}
			timer.Reset(d)
			fire = timer.C
		}
		select {
		case <-s.closeCh:
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-fire:
		}
	}
}
