// Package quiesce turns an activity predicate into objection pressure.
//
// An Objector holds at most one objection on its owner's run phase. While the
// predicate reports activity the objection stays raised; when activity stops
// the objection is dropped, either at once or after a cancellable drop delay.
// An optional timeout reports a stall when activity does not recur in time.
package quiesce

import (
	"context"

	"github.com/roach88/settle/internal/component"
	"github.com/roach88/settle/internal/logging"
	"github.com/roach88/settle/internal/phase"
	"github.com/roach88/settle/internal/protocol"
)

// State is the objector's position in the quiesce state machine.
type State int

const (
	// Idle holds no objection.
	Idle State = iota
	// Active holds an objection with no drop scheduled.
	Active
	// PendingDrop holds an objection whose delayed drop is running.
	PendingDrop
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case PendingDrop:
		return "pending_drop"
	default:
		return "unknown"
	}
}

// Option configures an Objector.
type Option func(*Objector)

// WithTimeout reports an activity timeout when d elapses without a fresh
// active Consider.
func WithTimeout(d Delay) Option {
	return func(o *Objector) {
		o.timeout = d
	}
}

// WithDropDelay delays the drop by d after activity stops.
func WithDropDelay(d Delay) Option {
	return func(o *Objector) {
		o.dropDelay = d
	}
}

// Stats counts objector transitions over its lifetime.
type Stats struct {
	Raises   int
	Drops    int
	Timeouts int
	// Rescued counts scheduled drops cancelled because activity resumed.
	Rescued int
}

// Objector raises and drops objections on behalf of a component.
//
// Invariants:
//   - at most one objection is raised at a time
//   - at most one drop and one timeout are pending at a time
//   - a pending timeout implies a raised objection
//
// Consider never suspends. All methods must be called from kernel callbacks
// or process bodies of the owner's kernel.
type Objector struct {
	owner     component.Component
	name      string
	active    func() bool
	timeout   Delay
	dropDelay Delay

	objection *phase.Objection
	drop      *Action
	timer     *Action
	stats     Stats
}

// New creates an objector for owner. name distinguishes objectors on the same
// component and is appended to the owner's path to label objections.
func New(owner component.Component, name string, active func() bool, opts ...Option) *Objector {
	o := &Objector{owner: owner, name: name, active: active}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Label returns the label used for raised objections.
func (o *Objector) Label() string {
	return o.owner.Base().Path() + "." + o.name
}

// State returns the current state.
func (o *Objector) State() State {
	switch {
	case o.objection == nil:
		return Idle
	case o.drop != nil && o.drop.Pending():
		return PendingDrop
	default:
		return Active
	}
}

// Objection returns the raised objection, or nil when idle.
func (o *Objector) Objection() *phase.Objection {
	return o.objection
}

// TimeoutPending reports whether a timeout is armed.
func (o *Objector) TimeoutPending() bool {
	return o.timer != nil && o.timer.Pending()
}

// Stats returns the transition counters.
func (o *Objector) Stats() Stats {
	return o.stats
}

// Consider re-reads the activity predicate and moves the state machine.
//
// Errors:
//   - NOT_RUNNING if activity requires an objection before the owner entered
//     its run phase
func (o *Objector) Consider() error {
	if o.active() {
		return o.activate()
	}
	if o.objection == nil {
		return nil
	}
	if o.dropDelay == nil {
		return o.release()
	}
	o.cancelDrop()
	o.drop = StartAction(o.owner.Base().Kernel(), o.Label()+".drop", o.dropDelay, o.release)
	return nil
}

func (o *Objector) activate() error {
	node := o.owner.Base()
	if o.cancelDrop() {
		o.stats.Rescued++
	}
	if o.objection == nil {
		ph := node.Phase()
		if ph == nil {
			return protocol.New(protocol.ErrCodeNotRunning, o.Label(),
				"objection raised before "+node.Path()+" entered its run phase")
		}
		o.objection = ph.Raise(o.Label())
		o.stats.Raises++
	}
	if o.timeout != nil {
		o.cancelTimeout()
		o.timer = StartAction(node.Kernel(), o.Label()+".timeout", o.timeout, o.expire)
	}
	return nil
}

// release drops the objection and disarms the timeout.
func (o *Objector) release() error {
	o.cancelTimeout()
	obj := o.objection
	o.objection = nil
	o.drop = nil
	o.stats.Drops++
	return obj.Drop()
}

func (o *Objector) expire() error {
	o.timer = nil
	o.stats.Timeouts++
	o.owner.Base().Log().Log(context.Background(), logging.LevelCritical, "objection timed out",
		logging.KindKey, logging.KindActivityTimeout,
		"objection", o.Label())
	return nil
}

func (o *Objector) cancelDrop() bool {
	if o.drop == nil {
		return false
	}
	cancelled := o.drop.Cancel()
	o.drop = nil
	return cancelled
}

func (o *Objector) cancelTimeout() {
	if o.timer == nil {
		return
	}
	o.timer.Cancel()
	o.timer = nil
}
