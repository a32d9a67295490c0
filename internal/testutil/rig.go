package testutil

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/settle/internal/component"
	"github.com/roach88/settle/internal/phase"
	"github.com/roach88/settle/internal/sim"
)

// RigRoot is the bare root component a Rig builds.
type RigRoot struct {
	component.Node
}

// Rig is a kernel plus a built component tree for exercising components
// without a full test orchestrator. Log output is captured.
type Rig struct {
	Kernel  *sim.Kernel
	Capture *Capture
	Env     *component.Env
	Root    *RigRoot
	Phase   *phase.Phase
}

// NewRig creates a rig with a root named "tb". Attach children to r.Root, then
// call Build and Enter before running the kernel.
func NewRig(t testing.TB) *Rig {
	t.Helper()
	capture := NewCapture()
	k := sim.NewKernel()
	return &Rig{
		Kernel:  k,
		Capture: capture,
		Env: &component.Env{
			Kernel: k,
			Logger: capture.Logger(),
			Rand:   rand.New(rand.NewPCG(1, 1)),
		},
		Root:  component.Root("tb", &RigRoot{}),
		Phase: phase.New("run"),
	}
}

// Build runs the build pass over the tree.
func (r *Rig) Build(t testing.TB) {
	t.Helper()
	require.NoError(t, component.BuildTree(r.Root, r.Env))
}

// Enter starts the run phase on every node.
func (r *Rig) Enter() {
	component.RunTree(r.Root, r.Phase)
}

// Run runs the kernel to completion and requires it not to fault.
func (r *Rig) Run(t testing.TB) {
	t.Helper()
	require.NoError(t, r.Kernel.Run(context.Background()))
}

// Start builds, enters, and runs in one call.
func (r *Rig) Start(t testing.TB) {
	t.Helper()
	r.Build(t)
	r.Enter()
	r.Run(t)
}
