// Package phase implements the objection ledger that keeps a test phase open.
//
// A Phase holds the objections currently raised against it. The phase is
// complete once every objection has been dropped and no new one has been
// raised by the time the completion wait re-checks the ledger.
package phase

import (
	"github.com/roach88/settle/internal/protocol"
	"github.com/roach88/settle/internal/sim"
)

// Objection is a token that keeps a phase open until dropped.
// An objection moves from raised to dropped exactly once.
type Objection struct {
	label   string
	phase   *Phase
	dropped *sim.Event
}

// Label returns the free-form label given at raise time.
func (o *Objection) Label() string {
	return o.label
}

// Phase returns the ledger that issued the objection.
func (o *Objection) Phase() *Phase {
	return o.phase
}

// Dropped returns the event fired when the objection is dropped.
func (o *Objection) Dropped() *sim.Event {
	return o.dropped
}

// IsDropped reports whether the objection has been dropped.
func (o *Objection) IsDropped() bool {
	return o.dropped.Fired()
}

// Drop releases the objection. Dropping twice fails with ALREADY_DROPPED.
func (o *Objection) Drop() error {
	return o.phase.Drop(o)
}

// Phase is the objection ledger for one run of a test.
//
// Objections are kept in raise order. The order only affects how the
// completion wait walks the ledger, never whether it completes.
type Phase struct {
	name       string
	objections []*Objection
	raised     int
	dropped    int
}

// New creates an empty ledger.
func New(name string) *Phase {
	return &Phase{name: name}
}

// Name returns the phase name.
func (ph *Phase) Name() string {
	return ph.name
}

// Raise appends a new raised objection.
func (ph *Phase) Raise(label string) *Objection {
	o := &Objection{
		label:   label,
		phase:   ph,
		dropped: sim.NewEvent(label + ".dropped"),
	}
	ph.objections = append(ph.objections, o)
	ph.raised++
	return o
}

// Drop removes o from the ledger and fires its dropped event.
//
// Errors:
//   - WRONG_LEDGER if o was raised on a different phase
//   - ALREADY_DROPPED if o was dropped before
//   - NOT_RAISED if o is missing from the ledger
func (ph *Phase) Drop(o *Objection) error {
	if o.phase != ph {
		return protocol.New(protocol.ErrCodeWrongLedger, o.label,
			"objection dropped on phase "+ph.name+" but raised on "+o.phase.name)
	}
	if o.dropped.Fired() {
		return protocol.New(protocol.ErrCodeAlreadyDropped, o.label, "objection dropped twice")
	}

	idx := -1
	for i, cur := range ph.objections {
		if cur == o {
			idx = i
			break
		}
	}
	if idx < 0 {
		return protocol.New(protocol.ErrCodeNotRaised, o.label, "objection is not raised on phase "+ph.name)
	}

	copy(ph.objections[idx:], ph.objections[idx+1:])
	ph.objections[len(ph.objections)-1] = nil
	ph.objections = ph.objections[:len(ph.objections)-1]
	ph.dropped++

	o.dropped.Trigger()
	return nil
}

// Len returns the number of raised objections.
func (ph *Phase) Len() int {
	return len(ph.objections)
}

// Empty reports whether no objection is raised.
func (ph *Phase) Empty() bool {
	return len(ph.objections) == 0
}

// Outstanding returns the labels of raised objections in raise order.
func (ph *Phase) Outstanding() []string {
	labels := make([]string, len(ph.objections))
	for i, o := range ph.objections {
		labels[i] = o.label
	}
	return labels
}

// Raised returns how many objections were ever raised.
func (ph *Phase) Raised() int {
	return ph.raised
}

// DroppedCount returns how many objections were dropped.
func (ph *Phase) DroppedCount() int {
	return ph.dropped
}

// WaitAllDropped suspends p until the ledger is empty.
//
// The wait walks the ledger one objection at a time: it waits on the first
// raised objection, then re-checks. Objections that drop out of order are
// still accounted for, just observed when the walk reaches them. Because the
// re-check happens after the resume, an objection raised in the same step as
// the last drop keeps the phase open.
func (ph *Phase) WaitAllDropped(p *sim.Process) {
	for len(ph.objections) > 0 {
		p.Wait(ph.objections[0].dropped)
	}
}

// AllDropped spawns a waiter on k and returns the event fired once the ledger
// is empty.
func (ph *Phase) AllDropped(k *sim.Kernel) *sim.Event {
	waiter := k.Spawn(ph.name+".all-dropped", func(p *sim.Process) error {
		ph.WaitAllDropped(p)
		return nil
	})
	return waiter.Done()
}
