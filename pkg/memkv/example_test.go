package memkv_test

import (
	"fmt"
	"time"

	"linkmesh/pkg/memkv"
)

func Example_basic() {
	s := memkv.New(memkv.Options[string]{})
	defer s.Close()

	_ = s.Set("msg:1", "session-a", 500*time.Millisecond)

	v, _ := s.Get("msg:1")
	fmt.Println(v)

	// atomically read and drop
	v2, _ := s.GetDel("msg:1")
	fmt.Println(v2)

	st := s.Metrics()
	fmt.Println(st.Keys == 0 && st.Dels == 1)

	// Output:
	// session-a
	// session-a
	// true
}
