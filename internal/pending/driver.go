package pending

import (
	"context"

	"github.com/roach88/settle/internal/component"
	"github.com/roach88/settle/internal/logging"
	"github.com/roach88/settle/internal/phase"
	"github.com/roach88/settle/internal/protocol"
	"github.com/roach88/settle/internal/quiesce"
	"github.com/roach88/settle/internal/sim"
)

// DriveFunc consumes one item. It may suspend p for as long as driving takes;
// the item stays queued, and so keeps its objection, until DriveFunc returns.
// An item removed from the queue mid-drive counts as done.
type DriveFunc[T any] func(p *sim.Process, item T) error

// Driver buffers upstream items in a Queue and drives them one at a time.
//
// The queue is created when the driver enters its run phase, so Enqueue
// fails with NOT_RUNNING before then.
type Driver[T any] struct {
	component.Node

	// CheckEmpty reports every item left in the queue at the end of the run
	// as an error-level residual_work event.
	CheckEmpty bool

	drive DriveFunc[T]
	opts  []quiesce.Option
	queue *Queue[T]
}

// NewDriver creates a driver. opts configure the queue's objector.
func NewDriver[T any](drive DriveFunc[T], opts ...quiesce.Option) *Driver[T] {
	return &Driver[T]{drive: drive, opts: opts}
}

// Clocked returns objector options whose timeout and drop delay count rising
// edges of clk. A zero count leaves that option unset.
func Clocked(clk *sim.Signal, timeoutEdges, dropEdges int) []quiesce.Option {
	var opts []quiesce.Option
	if timeoutEdges > 0 {
		opts = append(opts, quiesce.WithTimeout(quiesce.Edges(clk, timeoutEdges)))
	}
	if dropEdges > 0 {
		opts = append(opts, quiesce.WithDropDelay(quiesce.Edges(clk, dropEdges)))
	}
	return opts
}

// Queue returns the driver's queue, or nil before the run phase.
func (d *Driver[T]) Queue() *Queue[T] {
	return d.queue
}

// Enqueue accepts an item from upstream.
func (d *Driver[T]) Enqueue(item T) error {
	if d.queue == nil {
		return protocol.New(protocol.ErrCodeNotRunning, d.Path(), "enqueue before run phase")
	}
	d.Log().Log(context.Background(), logging.LevelTrace, "item arrived", "item", item, "depth", d.queue.Len()+1)
	return d.queue.Push(item)
}

// Run creates the queue and drives items until the simulation ends.
func (d *Driver[T]) Run(p *sim.Process, _ *phase.Phase) error {
	d.queue = NewQueue[T](d, "queue", d.opts...)
	for {
		for d.queue.Len() == 0 {
			p.Wait(d.queue.Arrived())
		}
		e, _ := d.queue.front()
		if err := d.drive(p, e.item); err != nil {
			return err
		}
		// The item may have been removed while it was being driven.
		if err := d.queue.finish(e.seq); err != nil {
			return err
		}
	}
}

// Check reports residual items when CheckEmpty is set.
func (d *Driver[T]) Check() {
	if !d.CheckEmpty || d.queue == nil {
		return
	}
	for i, item := range d.queue.Items() {
		d.Log().Error("residual item in queue",
			logging.KindKey, logging.KindResidualWork,
			"index", i,
			"item", item)
	}
}
