package harness

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"

	"github.com/roach88/settle/internal/component"
	"github.com/roach88/settle/internal/logging"
	"github.com/roach88/settle/internal/pending"
	"github.com/roach88/settle/internal/phase"
	"github.com/roach88/settle/internal/sim"
)

// streamBench is the producer/driver pair a scenario describes. The test body
// produces items; the driver consumes them one at a time.
type streamBench struct {
	stream Stream
	clk    *sim.Signal
	rng    *rand.Rand
	driver *pending.Driver[int]
	driven int
	stall  *sim.Event
}

func newStreamBench(s Stream, clk *sim.Signal) *streamBench {
	sb := &streamBench{stream: s, clk: clk, stall: sim.NewEvent("stall")}
	sb.driver = pending.NewDriver(sb.drive, pending.Clocked(clk, s.Timeout, s.DropDelay)...)
	sb.driver.CheckEmpty = s.CheckEmpty
	return sb
}

func (sb *streamBench) waitEdges(p *sim.Process, n int) {
	for i := 0; i < n; i++ {
		p.Wait(sb.clk.Rising())
	}
}

// produce is the test body: one item per arrival gap, plus jitter.
func (sb *streamBench) produce(p *sim.Process) error {
	gap := max(sb.stream.ArrivalGap, 1)
	for i := 0; i < sb.stream.Items; i++ {
		n := gap
		if sb.stream.Jitter > 0 {
			n += sb.rng.IntN(sb.stream.Jitter + 1)
		}
		sb.waitEdges(p, n)
		if err := sb.driver.Enqueue(i); err != nil {
			return err
		}
	}
	return nil
}

func (sb *streamBench) drive(p *sim.Process, _ int) error {
	if sb.stream.StallAfter > 0 && sb.driven >= sb.stream.StallAfter {
		p.Wait(sb.stall)
	}
	sb.waitEdges(p, sb.stream.DriveCycles)
	sb.driven++
	return nil
}

type plannedRecord struct {
	cycle   int
	level   slog.Level
	message string
}

// injector logs planned records on given rising edges.
type injector struct {
	component.Node
	clk  *sim.Signal
	plan []plannedRecord
}

func newInjector(clk *sim.Signal, injections []Injection) (*injector, error) {
	inj := &injector{clk: clk}
	for i, in := range injections {
		level, err := logging.ParseLevel(in.Level)
		if err != nil {
			return nil, fmt.Errorf("inject[%d]: %w", i, err)
		}
		inj.plan = append(inj.plan, plannedRecord{cycle: in.Cycle, level: level, message: in.Message})
	}
	sort.SliceStable(inj.plan, func(i, j int) bool { return inj.plan[i].cycle < inj.plan[j].cycle })
	return inj, nil
}

func (c *injector) Run(p *sim.Process, _ *phase.Phase) error {
	cycle := 0
	for _, rec := range c.plan {
		for cycle < rec.cycle {
			p.Wait(c.clk.Rising())
			cycle++
		}
		c.Log().Log(context.Background(), rec.level, rec.message, logging.KindKey, logging.KindInjected)
	}
	return nil
}
