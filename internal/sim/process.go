package sim

import "fmt"

type procState int

const (
	procPending procState = iota
	procRunning
	procSuspended
	procDone
)

// Process is a cooperative task scheduled by a Kernel.
//
// Process methods that suspend (Wait, Sleep) may only be called from the
// process's own body.
type Process struct {
	k      *Kernel
	id     uint64
	name   string
	fn     func(*Process) error
	wake   chan bool // true when resumed to be unwound
	gen    uint64    // bumped on every suspension
	revoke func()    // withdraws the current wait's subscription
	state  procState
	killed bool
	err    error
	done   *Event
}

// Name returns the name given at spawn time.
func (p *Process) Name() string {
	return p.name
}

// Kernel returns the kernel that owns p.
func (p *Process) Kernel() *Kernel {
	return p.k
}

// Now returns the current simulated time.
func (p *Process) Now() Time {
	return p.k.now
}

// Done returns an event fired when the process finishes, is killed, or faults.
func (p *Process) Done() *Event {
	return p.done
}

// Err returns the error the process finished with, if any.
func (p *Process) Err() error {
	return p.err
}

// Alive reports whether the process has not finished yet.
func (p *Process) Alive() bool {
	return p.state != procDone
}

// Wait suspends the process until t fires.
func (p *Process) Wait(t Trigger) {
	p.mustBeCurrent("Wait")
	if p.killed {
		panic(killSignal{})
	}
	p.gen++
	p.revoke = t.subscribe(p.k, p.k.resumer(p, p.gen))
	p.suspend()
}

// Sleep suspends the process for d steps.
func (p *Process) Sleep(d Time) {
	p.Wait(Delay(d))
}

// Kill stops the process. A suspended process is unwound at the current time
// without its trigger firing; a process that has not started never runs.
// Killing the running process takes effect at its next Wait.
// Killing a finished process is a no-op.
func (p *Process) Kill() {
	if p.state == procDone || p.killed {
		return
	}
	p.killed = true
	if p.state == procSuspended {
		if p.revoke != nil {
			p.revoke()
			p.revoke = nil
		}
		p.k.At(0, func() {
			if p.state == procSuspended {
				p.k.resume(p)
			}
		})
	}
}

func (p *Process) mustBeCurrent(op string) {
	if p.k.current != p {
		panic(fmt.Sprintf("sim: %s called outside process %q", op, p.name))
	}
}

func (p *Process) suspend() {
	p.state = procSuspended
	p.k.yield <- struct{}{}
	killed := <-p.wake
	p.revoke = nil
	if killed {
		panic(killSignal{})
	}
}

// main is the goroutine body. It always hands control back to the kernel,
// whether fn returns, panics, or is unwound.
func (p *Process) main() {
	defer func() { p.k.yield <- struct{}{} }()

	var err error
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(killSignal); !ok {
				err = fmt.Errorf("panic: %v", r)
			}
		}
		p.finish(err)
	}()

	err = p.fn(p)
}

func (p *Process) finish(err error) {
	p.state = procDone
	delete(p.k.live, p.id)
	if err != nil {
		p.err = err
		p.k.fail(fmt.Errorf("process %s: %w", p.name, err))
	}
	p.done.Trigger()
}
