// Package bench implements the test orchestrator.
//
// A Test is the root of a component tree and the single owner of a simulation
// kernel. Start builds the tree, opens a run phase, runs the simulation until
// either every objection is dropped or the kernel ends, checks every component,
// and reports failure if any record reached the fail level.
//
// Severity handling: every component logs through the Test's logger, whose
// handler is a logging.Monitor. Records at or above the kill level stop the
// kernel immediately; records at or above the fail level fail the test; the
// print level only decides what is echoed to Output.
package bench

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/roach88/settle/internal/component"
	"github.com/roach88/settle/internal/logging"
	"github.com/roach88/settle/internal/phase"
	"github.com/roach88/settle/internal/protocol"
	"github.com/roach88/settle/internal/sim"
)

// BodyObjection labels the objection held while the test body runs.
const BodyObjection = "test"

type testState int

const (
	stateReady testState = iota
	stateStarted
	stateDone
)

// Test orchestrates one run on one kernel.
//
// Thread-safety: Start must be called from one goroutine. Components run on
// the kernel and never concurrently with each other.
type Test struct {
	component.Node

	k       *sim.Kernel
	cfg     Config
	body    func(p *sim.Process) error
	monitor *logging.Monitor
	logger  *slog.Logger
	rng     *rand.Rand
	env     *component.Env

	state   testState
	ph      *phase.Phase
	settled bool
	endTime sim.Time
}

// New creates a Test named name on k.
//
// Errors:
//   - ALREADY_RUNNING if another Test holds k
//   - invalid configuration (fail level above kill level)
func New(k *sim.Kernel, name string, opts ...Option) (*Test, error) {
	s := settings{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid test config: %w", err)
	}

	t := &Test{k: k, cfg: s.cfg, body: s.body}
	if err := k.Claim(t); err != nil {
		return nil, protocol.New(protocol.ErrCodeAlreadyRunning, name, "another test is active on this simulator")
	}

	var sink slog.Handler
	if s.cfg.Output != nil {
		sink = logging.NewSink(s.cfg.Output)
	}
	t.monitor = logging.NewMonitor(logging.MonitorOptions{
		Kill:    s.cfg.KillLevel,
		Fail:    s.cfg.FailLevel,
		Print:   s.cfg.PrintLevel,
		Sink:    sink,
		Now:     func() int64 { return int64(k.Now()) },
		OnKill:  func(logging.Record) { k.Stop() },
		Observe: s.observe,
	})
	t.logger = slog.New(t.monitor)
	t.rng = rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed))
	t.env = &component.Env{Kernel: k, Logger: t.logger, Rand: t.rng}
	component.Root(name, t)
	return t, nil
}

// Start runs the test to completion. It returns a *FailedError if any record
// reached the fail level, a build error if the tree could not be built, or
// TERMINATED if the test already ran.
func (t *Test) Start(ctx context.Context) error {
	if t.state != stateReady {
		return protocol.New(protocol.ErrCodeTerminated, t.Name(), "test already ran; create a new one")
	}
	t.state = stateStarted
	defer t.Reset()

	if err := component.BuildTree(t, t.env); err != nil {
		return err
	}
	log := t.Log()
	log.Info("test starting",
		"seed", t.cfg.Seed,
		"kill_level", logging.LevelName(t.cfg.KillLevel),
		"fail_level", logging.LevelName(t.cfg.FailLevel))

	t.ph = phase.New(t.Name() + ".run")
	var bodyObj *phase.Objection
	if t.body != nil {
		bodyObj = t.ph.Raise(BodyObjection)
	}
	component.RunTree(t, t.ph)
	if t.body != nil {
		t.k.Spawn(t.Name()+".body", func(p *sim.Process) error {
			err := t.body(p)
			if derr := bodyObj.Drop(); derr != nil {
				return derr
			}
			return err
		})
	}

	if t.k.Pending() == 0 {
		log.Warn("no scheduled work before simulation start")
	}

	t.k.Spawn(t.Name()+".supervisor", func(p *sim.Process) error {
		t.ph.WaitAllDropped(p)
		t.settled = true
		if !t.k.Stopping() {
			t.k.Stop()
		}
		return nil
	})

	// Run returns once the kernel has ended and unwound every process, so
	// there is no separate end-of-run wait.
	fault := t.k.Run(ctx)
	t.endTime = t.k.Now()

	if !t.settled {
		log.Warn("simulation ended with objections outstanding",
			logging.KindKey, logging.KindObjectionsOutstanding,
			"outstanding", t.ph.Outstanding())
	}
	if fault != nil {
		log.Log(ctx, logging.LevelCritical, "simulator fault",
			logging.KindKey, logging.KindSimulatorFault,
			"error", fault)
	}

	checked := component.CheckTree(t)
	failures := t.monitor.Failures()
	log.Info("test finished",
		"passed", failures == 0,
		"checked", checked,
		"raised", t.ph.Raised(),
		"dropped", t.ph.DroppedCount())

	if failures > 0 {
		return &FailedError{Test: t.Name(), Failures: failures}
	}
	return nil
}

// Reset detaches the test from its kernel and stops watching records. A reset
// test cannot be started; the kernel can host a new one. Reset is idempotent.
func (t *Test) Reset() {
	t.state = stateDone
	t.monitor.Close()
	t.k.Release(t)
}

// KillLevel returns the kill threshold.
func (t *Test) KillLevel() slog.Level { return t.cfg.KillLevel }

// FailLevel returns the fail threshold.
func (t *Test) FailLevel() slog.Level { return t.cfg.FailLevel }

// PrintLevel returns the print threshold.
func (t *Test) PrintLevel() slog.Level { return t.cfg.PrintLevel }

// Seed returns the seed of the random source.
func (t *Test) Seed() uint64 { return t.cfg.Seed }

// Rand returns the test's seeded random source.
func (t *Test) Rand() *rand.Rand { return t.rng }

// Logger returns the monitored logger components inherit.
func (t *Test) Logger() *slog.Logger { return t.logger }

// Kernel returns the simulator.
func (t *Test) Kernel() *sim.Kernel { return t.k }

// RunPhase returns the run phase, or nil before Start.
func (t *Test) RunPhase() *phase.Phase { return t.ph }

// Settled reports whether every objection was dropped before the kernel ended.
func (t *Test) Settled() bool { return t.settled }

// EndTime returns the simulated time at which the kernel ended.
func (t *Test) EndTime() sim.Time { return t.endTime }

// Failures returns the number of failure-level records seen.
func (t *Test) Failures() int { return t.monitor.Failures() }
