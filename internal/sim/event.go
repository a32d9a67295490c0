package sim

// Trigger is something a process can wait on.
type Trigger interface {
	// subscribe arranges for fn to be called once the trigger fires. The
	// returned revoke, if non-nil, withdraws the subscription.
	// The private method restricts implementations to this package.
	subscribe(k *Kernel, fn func()) (revoke func())
}

// Event is a one-shot trigger. Once fired it stays fired; waiting on a fired
// event resumes at the next delta step.
type Event struct {
	name    string
	fired   bool
	waiters []func()
}

// NewEvent creates an unfired event.
func NewEvent(name string) *Event {
	return &Event{name: name}
}

// Name returns the event's name.
func (e *Event) Name() string {
	return e.name
}

// Fired reports whether Trigger has been called.
func (e *Event) Fired() bool {
	return e.fired
}

// Trigger fires the event. Subsequent calls are no-ops.
func (e *Event) Trigger() {
	if e.fired {
		return
	}
	e.fired = true
	waiters := e.waiters
	e.waiters = nil
	for _, fn := range waiters {
		fn()
	}
}

// OnFire registers fn to run when the event fires, or runs it immediately if
// the event already fired. fn runs in the context of whoever calls Trigger.
func (e *Event) OnFire(fn func()) {
	if e.fired {
		fn()
		return
	}
	e.waiters = append(e.waiters, fn)
}

func (e *Event) subscribe(_ *Kernel, fn func()) func() {
	e.OnFire(fn)
	return nil
}

type delay Time

// Delay returns a trigger that fires d steps after a process starts waiting.
func Delay(d Time) Trigger {
	return delay(d)
}

func (d delay) subscribe(k *Kernel, fn func()) func() {
	it := k.schedule(Time(d), fn)
	return func() { k.revoke(it) }
}
