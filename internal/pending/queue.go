// Package pending provides work queues that keep a test alive while they hold
// items, and a driver built on them.
package pending

import (
	"errors"

	"github.com/roach88/settle/internal/component"
	"github.com/roach88/settle/internal/quiesce"
	"github.com/roach88/settle/internal/sim"
)

// ErrEmpty is returned when popping from an empty queue.
var ErrEmpty = errors.New("pending: queue is empty")

// Queue is a FIFO whose occupancy is mirrored by an objection: the queue holds
// an objection on its owner's run phase whenever it is non-empty (subject to
// the objector's drop delay). Every mutation re-evaluates the objector.
type Queue[T any] struct {
	entries []entry[T]
	next    uint64
	obj     *quiesce.Objector
	name    string
	arrival *sim.Event
}

// entry tags each item so the driver can tell whether the item it is driving
// is still queued.
type entry[T any] struct {
	seq  uint64
	item T
}

// NewQueue creates an empty queue owned by owner.
func NewQueue[T any](owner component.Component, name string, opts ...quiesce.Option) *Queue[T] {
	q := &Queue[T]{name: name, arrival: sim.NewEvent(name + ".arrival")}
	q.obj = quiesce.New(owner, name, func() bool { return len(q.entries) > 0 }, opts...)
	return q
}

// Objector returns the embedded objector.
func (q *Queue[T]) Objector() *quiesce.Objector {
	return q.obj
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.entries)
}

// Items returns a copy of the queued items, front first.
func (q *Queue[T]) Items() []T {
	out := make([]T, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.item
	}
	return out
}

// Peek returns the front item without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	e, ok := q.front()
	return e.item, ok
}

// Arrived returns the event fired by the next Push.
func (q *Queue[T]) Arrived() *sim.Event {
	return q.arrival
}

// Push appends item at the back. If the objection cannot be raised the item
// is not kept.
func (q *Queue[T]) Push(item T) error {
	q.next++
	q.entries = append(q.entries, entry[T]{seq: q.next, item: item})
	if err := q.obj.Consider(); err != nil {
		last := len(q.entries) - 1
		q.entries[last] = entry[T]{}
		q.entries = q.entries[:last]
		return err
	}
	arrival := q.arrival
	q.arrival = sim.NewEvent(q.name + ".arrival")
	arrival.Trigger()
	return nil
}

// PopFront removes and returns the front item.
func (q *Queue[T]) PopFront() (T, error) {
	var zero T
	if len(q.entries) == 0 {
		return zero, ErrEmpty
	}
	e := q.entries[0]
	q.entries[0] = entry[T]{}
	q.entries = q.entries[1:]
	return e.item, q.obj.Consider()
}

// PopBack removes and returns the back item.
func (q *Queue[T]) PopBack() (T, error) {
	var zero T
	if len(q.entries) == 0 {
		return zero, ErrEmpty
	}
	last := len(q.entries) - 1
	e := q.entries[last]
	q.entries[last] = entry[T]{}
	q.entries = q.entries[:last]
	return e.item, q.obj.Consider()
}

// RemoveMatching removes every item for which match returns true and reports
// how many were removed.
func (q *Queue[T]) RemoveMatching(match func(T) bool) (int, error) {
	return q.filter(func(item T) bool { return !match(item) })
}

// RetainMatching keeps only the items for which match returns true and reports
// how many were removed.
func (q *Queue[T]) RetainMatching(match func(T) bool) (int, error) {
	return q.filter(match)
}

// Clear removes every item and reports how many were removed.
func (q *Queue[T]) Clear() (int, error) {
	n := len(q.entries)
	clear(q.entries)
	q.entries = q.entries[:0]
	return n, q.obj.Consider()
}

func (q *Queue[T]) filter(keep func(T) bool) (int, error) {
	kept := q.entries[:0]
	for _, e := range q.entries {
		if keep(e.item) {
			kept = append(kept, e)
		}
	}
	removed := len(q.entries) - len(kept)
	clear(q.entries[len(kept):])
	q.entries = kept
	return removed, q.obj.Consider()
}

func (q *Queue[T]) front() (entry[T], bool) {
	if len(q.entries) == 0 {
		return entry[T]{}, false
	}
	return q.entries[0], true
}

// finish pops the front entry if it is still the one tagged seq. Items only
// ever join at the back, so an entry that is no longer at the front has been
// removed and there is nothing to do.
func (q *Queue[T]) finish(seq uint64) error {
	if e, ok := q.front(); !ok || e.seq != seq {
		return nil
	}
	_, err := q.PopFront()
	return err
}
