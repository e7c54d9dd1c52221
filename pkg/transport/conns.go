package transport

import (
	"sort"
	"sync"
)

// Conns is the set of live connections of a node.
type Conns struct {
	mu     sync.Mutex
	conns  map[Conn]struct{}
	closed bool
}

// NewConns returns an empty set.
func NewConns() *Conns { return &Conns{conns: make(map[Conn]struct{})} }

// Add registers c. After CloseAll, c is closed instead and Add returns false.
func (s *Conns) Add(c Conn) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = c.Close()
		return false
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	return true
}

// Remove forgets c without closing it.
func (s *Conns) Remove(c Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Len returns the number of live connections.
func (s *Conns) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// RemoteAddrs lists the remote addresses of live connections, sorted.
func (s *Conns) RemoteAddrs() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.conns))
	for c := range s.conns {
		if a := c.RemoteAddr(); a != nil {
			out = append(out, c.Kind().String()+"://"+a.String())
		}
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// CloseAll closes every connection and rejects later ones.
func (s *Conns) CloseAll() {
	s.mu.Lock()
	s.closed = true
	conns := s.conns
	s.conns = make(map[Conn]struct{})
	s.mu.Unlock()
	for c := range conns {
		_ = c.Close()
	}
}
