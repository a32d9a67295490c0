// Package component implements the testbench hierarchy and its lifecycle.
//
// Every component embeds a Node. Nodes are linked into a tree with Attach and
// driven through three optional hooks: Build (synchronous, pre-order),
// Run (one process per node, spawned and never awaited) and Check
// (breadth-first over the children present at check time).
package component

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/roach88/settle/internal/logging"
	"github.com/roach88/settle/internal/phase"
	"github.com/roach88/settle/internal/sim"
)

// Component is anything that embeds a Node.
type Component interface {
	Base() *Node
}

// Builder is implemented by components that construct state before the run.
type Builder interface {
	Build() error
}

// Runner is implemented by components with run-phase behavior. Run executes in
// its own process; returning an error faults the simulation.
type Runner interface {
	Run(p *sim.Process, ph *phase.Phase) error
}

// Checker is implemented by components with end-of-run checks.
type Checker interface {
	Check()
}

// Env is the run context shared by every node in a tree.
type Env struct {
	Kernel *sim.Kernel
	Logger *slog.Logger
	Rand   *rand.Rand
}

// Node is the hierarchy bookkeeping embedded in every component.
type Node struct {
	name     string
	parent   *Node
	children []*Node
	owner    Component
	env      *Env
	phase    *phase.Phase
	log      *slog.Logger
}

// Base returns n itself, so that any struct embedding Node is a Component.
func (n *Node) Base() *Node {
	return n
}

// Name returns the node's local name.
func (n *Node) Name() string {
	return n.name
}

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the current children in attach order.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Owner returns the component that embeds n.
func (n *Node) Owner() Component {
	return n.owner
}

// Path returns the dot-separated hierarchical name, e.g. "tb.agent.driver".
func (n *Node) Path() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.parent {
		parts = append(parts, cur.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// Env returns the run context, or nil before the tree is built.
func (n *Node) Env() *Env {
	return n.env
}

// Kernel returns the simulator the tree runs on, or nil before build.
func (n *Node) Kernel() *sim.Kernel {
	if n.env == nil {
		return nil
	}
	return n.env.Kernel
}

// Phase returns the run phase the node has entered, or nil before the run.
func (n *Node) Phase() *phase.Phase {
	return n.phase
}

// Running reports whether the node has entered its run phase.
func (n *Node) Running() bool {
	return n.phase != nil
}

// Log returns a logger carrying the node's hierarchical path.
func (n *Node) Log() *slog.Logger {
	if n.log != nil {
		return n.log
	}
	base := slog.Default()
	if n.env != nil && n.env.Logger != nil {
		base = n.env.Logger
	}
	l := base.With(logging.ComponentKey, n.Path())
	if n.env != nil {
		n.log = l
	}
	return l
}

// Root makes c the top of a new tree named name.
func Root[C Component](name string, c C) C {
	n := c.Base()
	if n.parent != nil {
		panic(fmt.Sprintf("component: %s is already attached", n.Path()))
	}
	n.name = name
	n.owner = c
	return c
}

// Attach adds child under parent with the given name and returns child.
// A node can be attached once, and sibling names must be unique.
//
// A child attached after the tree was built inherits the run context; it is
// checked at the end of the run but its Run hook is not started.
func Attach[C Component](parent Component, name string, child C) C {
	p, n := parent.Base(), child.Base()
	if n.parent != nil || n.owner != nil {
		panic(fmt.Sprintf("component: %q is already attached as %s", name, n.Path()))
	}
	if name == "" || strings.Contains(name, ".") {
		panic(fmt.Sprintf("component: invalid name %q", name))
	}
	for _, sib := range p.children {
		if sib.name == name {
			panic(fmt.Sprintf("component: duplicate child %q under %s", name, p.Path()))
		}
	}
	n.name = name
	n.parent = p
	n.owner = child
	n.env = p.env
	p.children = append(p.children, n)
	return child
}

// Walk visits root and its descendants depth-first, parents before children.
// Returning false from fn skips the node's subtree.
func Walk(root Component, fn func(n *Node) bool) {
	var visit func(n *Node)
	visit = func(n *Node) {
		if !fn(n) {
			return
		}
		for _, c := range n.children {
			visit(c)
		}
	}
	visit(root.Base())
}
