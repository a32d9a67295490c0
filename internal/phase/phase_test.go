package phase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/settle/internal/protocol"
	"github.com/roach88/settle/internal/sim"
)

func TestPhase_RaiseDrop(t *testing.T) {
	ph := New("run")

	a := ph.Raise("a")
	b := ph.Raise("b")
	assert.Equal(t, []string{"a", "b"}, ph.Outstanding())
	assert.Equal(t, 2, ph.Len())

	require.NoError(t, a.Drop())
	assert.True(t, a.IsDropped())
	assert.True(t, a.Dropped().Fired())
	assert.Equal(t, []string{"b"}, ph.Outstanding())

	require.NoError(t, b.Drop())
	assert.True(t, ph.Empty())
	assert.Equal(t, 2, ph.Raised())
	assert.Equal(t, 2, ph.DroppedCount())
}

func TestObjection_DropTwice(t *testing.T) {
	ph := New("run")
	o := ph.Raise("once")

	require.NoError(t, o.Drop())
	err := o.Drop()
	require.Error(t, err)
	assert.True(t, protocol.Is(err, protocol.ErrCodeAlreadyDropped))
	assert.Equal(t, 1, ph.DroppedCount())
}

func TestPhase_DropOnWrongLedger(t *testing.T) {
	run := New("run")
	other := New("other")
	o := run.Raise("x")

	err := other.Drop(o)
	assert.True(t, protocol.Is(err, protocol.ErrCodeWrongLedger))
	assert.False(t, o.IsDropped())
	assert.Equal(t, 1, run.Len())
}

func TestPhase_AllDroppedWhenEmpty(t *testing.T) {
	k := sim.NewKernel()
	ph := New("run")

	at := sim.Time(-1)
	ph.AllDropped(k).OnFire(func() { at = k.Now() })

	require.NoError(t, k.Run(context.Background()))
	assert.Equal(t, sim.Time(0), at)
}

func TestPhase_AllDroppedOutOfOrder(t *testing.T) {
	k := sim.NewKernel()
	ph := New("run")
	a := ph.Raise("a")
	b := ph.Raise("b")

	k.At(3, func() { require.NoError(t, b.Drop()) })
	k.At(7, func() { require.NoError(t, a.Drop()) })

	at := sim.Time(-1)
	ph.AllDropped(k).OnFire(func() { at = k.Now() })

	require.NoError(t, k.Run(context.Background()))
	assert.Equal(t, sim.Time(7), at)
}

func TestPhase_RaiseBeforeWaiterResumesIsObserved(t *testing.T) {
	k := sim.NewKernel()
	ph := New("run")
	a := ph.Raise("a")

	var b *Objection
	// Both callbacks run at t=5 before the waiter's resume, which is
	// scheduled by the drop itself.
	k.At(5, func() { require.NoError(t, a.Drop()) })
	k.At(5, func() { b = ph.Raise("b") })
	k.At(9, func() { require.NoError(t, b.Drop()) })

	at := sim.Time(-1)
	ph.AllDropped(k).OnFire(func() { at = k.Now() })

	require.NoError(t, k.Run(context.Background()))
	assert.Equal(t, sim.Time(9), at, "objection raised in the same step must keep the phase open")
}

func TestPhase_WaitAllDroppedFromProcess(t *testing.T) {
	k := sim.NewKernel()
	ph := New("run")
	o := ph.Raise("slow")

	k.Spawn("worker", func(p *sim.Process) error {
		p.Sleep(12)
		return o.Drop()
	})

	finished := sim.Time(-1)
	k.Spawn("watcher", func(p *sim.Process) error {
		ph.WaitAllDropped(p)
		finished = p.Now()
		return nil
	})

	require.NoError(t, k.Run(context.Background()))
	assert.Equal(t, sim.Time(12), finished)
}
