package sim

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

type kernelState int

const (
	kernelIdle kernelState = iota
	kernelRunning
	kernelEnded
)

// Kernel is the discrete-event scheduler.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine.
//   - At(), Spawn(), Stop(): call from kernel callbacks or process bodies only.
//   - Claim(), Release(), Done(): safe from any goroutine.
type Kernel struct {
	now      Time
	seq      sequence
	sched    schedule
	starts   int // scheduled process starts still in sched
	revoked  int // revoked items still in sched
	yield    chan struct{}
	current  *Process
	live     map[uint64]*Process
	nextID   uint64
	state    kernelState
	stopping bool
	fault    error
	done     chan struct{}
	log      *slog.Logger

	mu    sync.Mutex
	owner any
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithLogger sets the logger used for kernel lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(k *Kernel) {
		if l != nil {
			k.log = l
		}
	}
}

// NewKernel creates an idle kernel at time 0.
func NewKernel(opts ...Option) *Kernel {
	k := &Kernel{
		yield: make(chan struct{}),
		live:  make(map[uint64]*Process),
		done:  make(chan struct{}),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Now returns the current simulated time.
func (k *Kernel) Now() Time {
	return k.now
}

// At schedules fn to run in kernel context after delay steps.
// Callbacks scheduled after the kernel has ended are discarded.
func (k *Kernel) At(delay Time, fn func()) {
	k.schedule(delay, fn)
}

func (k *Kernel) schedule(delay Time, fn func()) *item {
	if delay < 0 {
		panic(fmt.Sprintf("sim: negative delay %d", delay))
	}
	it := &item{at: k.now + delay, fn: fn}
	k.push(it)
	return it
}

// revoke withdraws a scheduled callback that has not been dispatched yet.
func (k *Kernel) revoke(it *item) {
	if it.dispatched || it.revoked || k.state == kernelEnded {
		return
	}
	it.revoked = true
	k.revoked++
}

func (k *Kernel) push(it *item) {
	if k.state == kernelEnded {
		return
	}
	it.seq = k.seq.Next()
	if it.start {
		k.starts++
	}
	heap.Push(&k.sched, it)
}

// Spawn creates a process running fn and schedules it to start at the current
// time, after already-scheduled work. The caller does not wait for it.
//
// A non-nil error returned by fn is a fault: the kernel records it and ends
// the simulation.
func (k *Kernel) Spawn(name string, fn func(p *Process) error) *Process {
	k.nextID++
	p := &Process{
		k:    k,
		id:   k.nextID,
		name: name,
		fn:   fn,
		wake: make(chan bool),
		done: NewEvent(name + ".done"),
	}
	if k.state == kernelEnded {
		p.killed = true
		p.state = procDone
		p.done.Trigger()
		return p
	}
	k.live[p.id] = p
	k.push(&item{at: k.now, fn: func() { k.start(p) }, start: true})
	return p
}

// Pending returns the number of scheduled callbacks, not counting process
// starts or revoked sleeps. Zero before Run means nothing will ever advance
// time.
func (k *Kernel) Pending() int {
	return len(k.sched) - k.starts - k.revoked
}

// Stop requests the end of the simulation. The callback or process that is
// currently executing finishes its step; nothing further is dispatched.
func (k *Kernel) Stop() {
	if !k.stopping {
		k.log.Debug("simulation stop requested", "time", k.now)
	}
	k.stopping = true
}

// Stopping reports whether the simulation has been asked to end or has ended.
func (k *Kernel) Stopping() bool {
	return k.stopping
}

// Ended reports whether Run has returned from its dispatch loop.
func (k *Kernel) Ended() bool {
	return k.state == kernelEnded
}

// Fault returns the first fault recorded during the run, if any.
func (k *Kernel) Fault() error {
	return k.fault
}

// Done is closed once the run has ended and every process has been unwound.
func (k *Kernel) Done() <-chan struct{} {
	return k.done
}

// Claim marks owner as the single user of this kernel.
// Claiming again with the same owner is a no-op.
func (k *Kernel) Claim(owner any) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.owner != nil && k.owner != owner {
		return ErrClaimed
	}
	k.owner = owner
	return nil
}

// Release gives up ownership if owner currently holds the kernel.
func (k *Kernel) Release(owner any) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.owner == owner {
		k.owner = nil
	}
}

// Run dispatches scheduled callbacks until the simulation ends, then unwinds
// every suspended process. It returns the first fault, if any.
//
// Run is not re-entrant and a kernel runs at most once.
func (k *Kernel) Run(ctx context.Context) error {
	if k.state != kernelIdle {
		return ErrKernelUsed
	}
	k.state = kernelRunning
	k.log.Debug("simulation starting", "scheduled", len(k.sched))

	for !k.stopping && len(k.sched) > 0 {
		if err := ctx.Err(); err != nil {
			k.fail(fmt.Errorf("simulation interrupted: %w", err))
			break
		}
		it := heap.Pop(&k.sched).(*item)
		it.dispatched = true
		if it.revoked {
			k.revoked--
			continue
		}
		if it.start {
			k.starts--
		}
		k.now = it.at
		it.fn()
	}

	k.stopping = true
	k.state = kernelEnded
	k.unwind()
	k.sched = nil
	k.starts = 0
	k.revoked = 0
	close(k.done)

	k.log.Debug("simulation ended", "time", k.now, "faulted", k.fault != nil)
	return k.fault
}

// unwind kills every live process in spawn order. Suspended processes are
// resumed so their goroutines can run deferred code and exit.
func (k *Kernel) unwind() {
	ids := make([]uint64, 0, len(k.live))
	for id := range k.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		p, ok := k.live[id]
		if !ok {
			continue
		}
		p.killed = true
		switch p.state {
		case procSuspended:
			k.resume(p)
		case procPending:
			p.finish(nil)
		}
	}
}

// fail records err as the run's fault (first one wins) and ends the run.
func (k *Kernel) fail(err error) {
	if k.fault == nil {
		k.fault = err
		k.log.Debug("simulation fault", "time", k.now, "error", err)
	}
	k.stopping = true
}

// start launches p's goroutine and waits for it to yield.
func (k *Kernel) start(p *Process) {
	if p.killed {
		p.finish(nil)
		return
	}
	p.state = procRunning
	k.current = p
	go p.main()
	<-k.yield
	k.current = nil
}

// resume hands control to a suspended process and waits for it to yield.
func (k *Kernel) resume(p *Process) {
	p.state = procRunning
	k.current = p
	p.wake <- p.killed
	<-k.yield
	k.current = nil
}

// resumer returns the callback a trigger invokes when it fires. The resume is
// scheduled as a delta step and ignored if p has moved on since suspending.
func (k *Kernel) resumer(p *Process, gen uint64) func() {
	return func() {
		k.At(0, func() {
			if p.state == procSuspended && p.gen == gen {
				k.resume(p)
			}
		})
	}
}
