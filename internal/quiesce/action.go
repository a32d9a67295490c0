package quiesce

import (
	"github.com/roach88/settle/internal/sim"
)

// Delay suspends p for some amount of simulated time.
type Delay func(p *sim.Process)

// After waits d time steps.
func After(d sim.Time) Delay {
	return func(p *sim.Process) {
		p.Sleep(d)
	}
}

// Edges waits for n rising edges of sig.
func Edges(sig *sim.Signal, n int) Delay {
	return func(p *sim.Process) {
		for i := 0; i < n; i++ {
			p.Wait(sig.Rising())
		}
	}
}

type actionState int

const (
	actionPending actionState = iota
	actionCompleted
	actionCancelled
)

// Action is a cancellable delayed callback. Exactly one of natural completion
// or cancellation takes effect: once Cancel returns, onDone never runs.
type Action struct {
	name  string
	state actionState
	proc  *sim.Process
}

// StartAction spawns a process on k that waits with delay and then calls
// onDone. An error from onDone faults the simulation.
func StartAction(k *sim.Kernel, name string, delay Delay, onDone func() error) *Action {
	a := &Action{name: name}
	a.proc = k.Spawn(name, func(p *sim.Process) error {
		delay(p)
		if a.state != actionPending {
			return nil
		}
		a.state = actionCompleted
		return onDone()
	})
	return a
}

// Name returns the action name.
func (a *Action) Name() string {
	return a.name
}

// Pending reports whether the action has neither completed nor been cancelled.
func (a *Action) Pending() bool {
	return a.state == actionPending
}

// Completed reports whether onDone ran.
func (a *Action) Completed() bool {
	return a.state == actionCompleted
}

// Cancel revokes the action. It returns false if the action already completed
// or was cancelled before; in both cases nothing changes.
func (a *Action) Cancel() bool {
	if a.state != actionPending {
		return false
	}
	a.state = actionCancelled
	a.proc.Kill()
	return true
}
