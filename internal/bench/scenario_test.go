package bench_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/settle/internal/bench"
	"github.com/roach88/settle/internal/component"
	"github.com/roach88/settle/internal/logging"
	"github.com/roach88/settle/internal/pending"
	"github.com/roach88/settle/internal/phase"
	"github.com/roach88/settle/internal/sim"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// streamBench is a clocked producer/consumer testbench: the test body pushes
// one item per rising edge into a driver that takes driveEdges edges per item.
type streamBench struct {
	k       *sim.Kernel
	clk     *sim.Clock
	tb      *bench.Test
	drv     *pending.Driver[int]
	records []logging.Record
	out     bytes.Buffer
}

func newStreamBench(t *testing.T, items, driveEdges, dropEdges int, opts ...bench.Option) *streamBench {
	t.Helper()
	sb := &streamBench{k: sim.NewKernel()}
	sb.clk = sim.NewClock(sb.k, sim.NewSignal("clk", false), 10)
	sb.clk.Start()
	rising := sb.clk.Signal().Rising

	opts = append([]bench.Option{
		bench.WithOutput(&sb.out),
		bench.WithPrintLevel(logging.LevelWarning),
		bench.WithObserver(func(r logging.Record) { sb.records = append(sb.records, r) }),
		bench.WithBody(func(p *sim.Process) error {
			for i := 0; i < items; i++ {
				p.Wait(rising())
				if err := sb.drv.Enqueue(i); err != nil {
					return err
				}
			}
			return nil
		}),
	}, opts...)

	tb, err := bench.New(sb.k, "tb", opts...)
	require.NoError(t, err)
	sb.tb = tb

	sb.drv = component.Attach(tb, "drv", pending.NewDriver(func(p *sim.Process, _ int) error {
		for i := 0; i < driveEdges; i++ {
			p.Wait(rising())
		}
		return nil
	}, pending.Clocked(sb.clk.Signal(), 0, dropEdges)...))
	sb.drv.CheckEmpty = true
	return sb
}

func (sb *streamBench) kinds(kind string) []logging.Record {
	var out []logging.Record
	for _, r := range sb.records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func TestScenario_OneItemPerEdge(t *testing.T) {
	sb := newStreamBench(t, 100, 1, 0)

	require.NoError(t, sb.tb.Start(context.Background()))

	// 100 edges of arrivals plus one edge to drive the last item.
	assert.Equal(t, sim.Time(5+100*10), sb.tb.EndTime())
	assert.True(t, sb.tb.Settled())
	assert.Equal(t, int64(101), sb.clk.Signal().RisingEdges())
	assert.Empty(t, sb.kinds(logging.KindResidualWork))
	assert.Zero(t, sb.tb.Failures())
	assert.Equal(t, 0, sb.drv.Queue().Len())
}

func TestScenario_DropDelayExtendsRun(t *testing.T) {
	plain := newStreamBench(t, 10, 2, 0)
	require.NoError(t, plain.tb.Start(context.Background()))

	delayed := newStreamBench(t, 10, 2, 10)
	require.NoError(t, delayed.tb.Start(context.Background()))

	// Ten items at two edges each: the last dequeue lands on edge 21.
	assert.Equal(t, sim.Time(205), plain.tb.EndTime())
	assert.Equal(t, sim.Time(305), delayed.tb.EndTime())
	assert.Equal(t, sim.Time(10*10), delayed.tb.EndTime()-plain.tb.EndTime())
	assert.True(t, delayed.tb.Settled())
	assert.Equal(t, 1, delayed.drv.Queue().Objector().Stats().Raises)
}

// faultyChecker finishes its run normally and reports an error at check time.
type faultyChecker struct {
	component.Node
}

func (c *faultyChecker) Run(p *sim.Process, ph *phase.Phase) error {
	obj := ph.Raise(c.Path())
	p.Sleep(10)
	return obj.Drop()
}

func (c *faultyChecker) Check() {
	c.Log().Error("scoreboard mismatch", "expected", 3, "got", 2)
}

func TestScenario_CheckFailureFailsCompletedRun(t *testing.T) {
	var out bytes.Buffer
	k := sim.NewKernel()
	tb, err := bench.New(k, "tb", bench.WithOutput(&out))
	require.NoError(t, err)
	component.Attach(tb, "sb", &faultyChecker{})

	err = tb.Start(context.Background())

	require.Error(t, err)
	assert.True(t, bench.IsTestFailed(err))
	assert.EqualError(t, err, "test tb failed: 1 failure event(s)")
	assert.True(t, tb.Settled(), "the simulation itself completed normally")
	assert.Equal(t, sim.Time(10), tb.EndTime())

	text := out.String()
	assert.Contains(t, text, "no scheduled work before simulation start")
	assert.Contains(t, text, `level=ERROR msg="scoreboard mismatch" component=tb.sb expected=3 got=2 sim_time=10`)
}

// injector logs a record at level after waiting edges rising edges.
type injector struct {
	component.Node
	sig   *sim.Signal
	edges int
	level slog.Level
}

func (c *injector) Run(p *sim.Process, _ *phase.Phase) error {
	for i := 0; i < c.edges; i++ {
		p.Wait(c.sig.Rising())
	}
	c.Log().Log(context.Background(), c.level, "injected event", logging.KindKey, logging.KindInjected)
	return nil
}

func TestScenario_KillLevelEndsRunWithObjectionsOutstanding(t *testing.T) {
	sb := newStreamBench(t, 100, 1, 0)
	component.Attach(sb.tb, "inj", &injector{sig: sb.clk.Signal(), edges: 50, level: logging.LevelCritical})

	err := sb.tb.Start(context.Background())

	require.Error(t, err)
	var failed *bench.FailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 2, failed.Failures, "the kill event and one residual item")

	assert.Equal(t, sim.Time(495), sb.tb.EndTime())
	assert.False(t, sb.tb.Settled())

	outstanding := sb.kinds(logging.KindObjectionsOutstanding)
	require.Len(t, outstanding, 1)
	assert.Equal(t, logging.LevelWarning, outstanding[0].Level)
	assert.Equal(t, []string{bench.BodyObjection, "tb.drv.queue"}, sb.tb.RunPhase().Outstanding())

	residual := sb.kinds(logging.KindResidualWork)
	require.Len(t, residual, 1)
	assert.Equal(t, "tb.drv", residual[0].Source)
	assert.Equal(t, []int{48}, sb.drv.Queue().Items())

	injected := sb.kinds(logging.KindInjected)
	require.Len(t, injected, 1)
	assert.Equal(t, int64(495), injected[0].Time)
}

func TestScenario_FailLevelEventLetsRunFinish(t *testing.T) {
	sb := newStreamBench(t, 20, 1, 0)
	component.Attach(sb.tb, "inj", &injector{sig: sb.clk.Signal(), edges: 5, level: logging.LevelError})

	err := sb.tb.Start(context.Background())

	assert.True(t, bench.IsTestFailed(err))
	assert.True(t, sb.tb.Settled())
	assert.Equal(t, sim.Time(205), sb.tb.EndTime())
	assert.Empty(t, sb.kinds(logging.KindObjectionsOutstanding))
}

// counter counts its checks.
type counter struct {
	component.Node
	checks int
}

func (c *counter) Check() { c.checks++ }

func TestScenario_CheckRunsOncePerNode(t *testing.T) {
	k := sim.NewKernel()
	tb, err := bench.New(k, "tb", bench.WithOutput(nil))
	require.NoError(t, err)

	b := &counter{}
	nested := component.Attach(b, "nested", &counter{})
	a := component.Attach(tb, "a", &counter{})
	component.Attach(tb, "b", b)
	deeper := component.Attach(nested, "deeper", &counter{})

	require.NoError(t, tb.Start(context.Background()))

	for _, c := range []*counter{a, b, nested, deeper} {
		assert.Equal(t, 1, c.checks, c.Path())
	}
}

// crasher faults the simulation from its run hook.
type crasher struct {
	component.Node
	checked bool
}

func (c *crasher) Run(p *sim.Process, ph *phase.Phase) error {
	ph.Raise(c.Path())
	p.Sleep(7)
	return errors.New("bus error")
}

func (c *crasher) Check() { c.checked = true }

func TestScenario_SimulatorFaultReportedAfterSettle(t *testing.T) {
	var records []logging.Record
	k := sim.NewKernel()
	tb, err := bench.New(k, "tb",
		bench.WithOutput(nil),
		bench.WithObserver(func(r logging.Record) { records = append(records, r) }))
	require.NoError(t, err)
	c := component.Attach(tb, "dut", &crasher{})

	err = tb.Start(context.Background())

	assert.True(t, bench.IsTestFailed(err))
	assert.True(t, c.checked, "check pass still runs after a fault")
	assert.Equal(t, sim.Time(7), tb.EndTime())

	var kinds []string
	for _, r := range records {
		if r.Kind != "" {
			kinds = append(kinds, r.Kind)
		}
	}
	assert.Equal(t, []string{logging.KindObjectionsOutstanding, logging.KindSimulatorFault}, kinds)
}
