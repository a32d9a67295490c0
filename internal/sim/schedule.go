package sim

import "sync/atomic"

// Time is simulated time in abstract steps.
type Time int64

// sequence is a monotonic logical clock used to break ties between callbacks
// scheduled for the same simulated time. Earlier-scheduled callbacks run first.
type sequence struct {
	n atomic.Int64
}

// Next returns the next sequence number.
func (s *sequence) Next() int64 {
	return s.n.Add(1)
}

// Current returns the last issued sequence number.
func (s *sequence) Current() int64 {
	return s.n.Load()
}

// item is one scheduled kernel callback.
type item struct {
	at    Time
	seq   int64
	fn    func()
	start bool // process start, excluded from Pending

	dispatched bool
	revoked    bool // discarded when popped, time does not advance
}

// schedule is a min-heap of items ordered by (at, seq).
// It implements container/heap.Interface.
type schedule []*item

func (s schedule) Len() int { return len(s) }

func (s schedule) Less(i, j int) bool {
	if s[i].at != s[j].at {
		return s[i].at < s[j].at
	}
	return s[i].seq < s[j].seq
}

func (s schedule) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s *schedule) Push(x any) {
	*s = append(*s, x.(*item))
}

func (s *schedule) Pop() any {
	old := *s
	n := len(old)
	it := old[n-1]
	// Nil out the slot so the callback closure can be collected.
	old[n-1] = nil
	*s = old[:n-1]
	return it
}
