package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/settle/internal/bench"
	"github.com/roach88/settle/internal/component"
	"github.com/roach88/settle/internal/logging"
	"github.com/roach88/settle/internal/sim"
)

// Option configures a scenario run.
type Option func(*runOptions)

type runOptions struct {
	output  io.Writer
	seed    *uint64
	levels  Levels
	observe func(logging.Record)
}

// WithOutput echoes printed records to w. By default nothing is printed.
func WithOutput(w io.Writer) Option {
	return func(o *runOptions) {
		o.output = w
	}
}

// WithSeed overrides the scenario seed.
func WithSeed(seed uint64) Option {
	return func(o *runOptions) {
		o.seed = &seed
	}
}

// WithLevels overrides the scenario's thresholds; empty fields are ignored.
func WithLevels(l Levels) Option {
	return func(o *runOptions) {
		o.levels = l
	}
}

// WithObserver reports every record the test's monitor handles, including
// those below warning that the trace leaves out.
func WithObserver(fn func(logging.Record)) Option {
	return func(o *runOptions) {
		o.observe = fn
	}
}

// resolveConfig layers the harness defaults, the scenario's levels and the
// run overrides. The harness prints at warning by default.
func resolveConfig(s *Scenario, o runOptions) (bench.Config, error) {
	cfg := bench.DefaultConfig()
	cfg.PrintLevel = logging.LevelWarning
	cfg.Output = o.output
	cfg.Seed = 1
	if s.Seed != 0 {
		cfg.Seed = s.Seed
	}
	if o.seed != nil {
		cfg.Seed = *o.seed
	}

	var levels Levels
	if s.Levels != nil {
		levels = *s.Levels
	}
	if o.levels.Kill != "" {
		levels.Kill = o.levels.Kill
	}
	if o.levels.Fail != "" {
		levels.Fail = o.levels.Fail
	}
	if o.levels.Print != "" {
		levels.Print = o.levels.Print
	}

	if levels.Kill != "" {
		kill, err := logging.ParseLevel(levels.Kill)
		if err != nil {
			return cfg, err
		}
		cfg.KillLevel = kill
		cfg.FailLevel = logging.StepBelow(kill)
	}
	if levels.Fail != "" {
		fail, err := logging.ParseLevel(levels.Fail)
		if err != nil {
			return cfg, err
		}
		cfg.FailLevel = fail
	}
	if levels.Print != "" {
		printLevel, err := logging.ParseLevel(levels.Print)
		if err != nil {
			return cfg, err
		}
		cfg.PrintLevel = printLevel
	}
	return cfg, cfg.Validate()
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh kernel, so scenarios may run in parallel.
//
// Execution flow:
//  1. Resolve thresholds and seed
//  2. Start the clock and build the stream testbench
//  3. Run the test to completion
//  4. Check the result against the scenario's expectations
//
// A failing test is not an error: it is reported in Result.TestPassed.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	cfg, err := resolveConfig(scenario, o)
	if err != nil {
		return nil, fmt.Errorf("resolve levels: %w", err)
	}

	k := sim.NewKernel(sim.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	clk := sim.NewClock(k, sim.NewSignal("clk", false), sim.Time(scenario.ClockPeriod))
	clk.Start()

	result := NewResult()
	observe := func(r logging.Record) {
		if o.observe != nil {
			o.observe(r)
		}
		if r.Level < logging.LevelWarning {
			return
		}
		result.Trace = append(result.Trace, TraceEvent{
			Time:    r.Time,
			Level:   logging.LevelName(r.Level),
			Source:  r.Source,
			Kind:    r.Kind,
			Message: r.Message,
		})
	}

	sb := newStreamBench(scenario.Stream, clk.Signal())
	tb, err := bench.New(k, "tb",
		bench.WithConfig(cfg),
		bench.WithBody(sb.produce),
		bench.WithObserver(observe))
	if err != nil {
		return nil, err
	}
	sb.rng = tb.Rand()
	component.Attach(tb, "drv", sb.driver)
	if len(scenario.Inject) > 0 {
		inj, err := newInjector(clk.Signal(), scenario.Inject)
		if err != nil {
			tb.Reset()
			return nil, err
		}
		component.Attach(tb, "inj", inj)
	}

	err = tb.Start(ctx)
	switch {
	case err == nil:
		result.TestPassed = true
	case bench.IsTestFailed(err):
	default:
		return nil, fmt.Errorf("run scenario %s: %w", scenario.Name, err)
	}

	result.Seed = cfg.Seed
	result.EndTime = int64(tb.EndTime())
	result.Settled = tb.Settled()
	result.Failures = tb.Failures()
	if q := sb.driver.Queue(); q != nil {
		result.Residual = q.Len()
	}

	for _, msg := range EvaluateExpect(result, scenario.Expect) {
		result.AddError(msg)
	}
	return result, nil
}
