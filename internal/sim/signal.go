package sim

import "fmt"

// Signal is a single-bit value with edge events.
// Each edge event is one-shot and replaced as soon as it fires, so waiting on
// Rising() always means "the next rising edge".
type Signal struct {
	name    string
	value   bool
	rises   int64
	rising  *Event
	falling *Event
	changed *Event
}

// NewSignal creates a signal with the given initial level.
func NewSignal(name string, initial bool) *Signal {
	return &Signal{
		name:    name,
		value:   initial,
		rising:  NewEvent(name + ".rising"),
		falling: NewEvent(name + ".falling"),
		changed: NewEvent(name + ".changed"),
	}
}

// Name returns the signal name.
func (s *Signal) Name() string {
	return s.name
}

// Value returns the current level.
func (s *Signal) Value() bool {
	return s.value
}

// RisingEdges returns the number of rising edges seen so far.
func (s *Signal) RisingEdges() int64 {
	return s.rises
}

// Rising returns the event for the next rising edge.
func (s *Signal) Rising() *Event {
	return s.rising
}

// Falling returns the event for the next falling edge.
func (s *Signal) Falling() *Event {
	return s.falling
}

// Changed returns the event for the next change in either direction.
func (s *Signal) Changed() *Event {
	return s.changed
}

// Set drives the signal. Setting the current level is a no-op.
func (s *Signal) Set(v bool) {
	if v == s.value {
		return
	}
	s.value = v

	changed := s.changed
	s.changed = NewEvent(s.name + ".changed")

	var edge *Event
	if v {
		s.rises++
		edge = s.rising
		s.rising = NewEvent(s.name + ".rising")
	} else {
		edge = s.falling
		s.falling = NewEvent(s.name + ".falling")
	}
	edge.Trigger()
	changed.Trigger()
}

// Clock toggles a signal every half period. The signal starts low, so the
// first rising edge lands at period/2 after Start and every period after that.
type Clock struct {
	k       *Kernel
	sig     *Signal
	half    Time
	started bool
	stopped bool
}

// NewClock creates a clock generator for sig. period must be even and >= 2.
func NewClock(k *Kernel, sig *Signal, period Time) *Clock {
	if period < 2 || period%2 != 0 {
		panic(fmt.Sprintf("sim: clock period must be even and >= 2, got %d", period))
	}
	return &Clock{k: k, sig: sig, half: period / 2}
}

// Signal returns the driven signal.
func (c *Clock) Signal() *Signal {
	return c.sig
}

// Period returns the full clock period.
func (c *Clock) Period() Time {
	return 2 * c.half
}

// Start begins toggling. Calling Start twice is a no-op.
func (c *Clock) Start() {
	if c.started {
		return
	}
	c.started = true
	c.sig.Set(false)
	c.k.At(c.half, c.toggle)
}

// Stop halts the clock after the current half period.
func (c *Clock) Stop() {
	c.stopped = true
}

func (c *Clock) toggle() {
	if c.stopped {
		return
	}
	c.sig.Set(!c.sig.Value())
	c.k.At(c.half, c.toggle)
}
