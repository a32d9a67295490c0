package component

import (
	"fmt"

	"github.com/roach88/settle/internal/phase"
	"github.com/roach88/settle/internal/sim"
)

// BuildTree installs env on every node and calls Build in pre-order.
// Children attached by a Build hook are built right after their parent.
// The first Build error stops the walk.
func BuildTree(root Component, env *Env) error {
	var err error
	Walk(root, func(n *Node) bool {
		if err != nil {
			return false
		}
		n.env = env
		n.log = nil
		if b, ok := n.owner.(Builder); ok {
			if berr := b.Build(); berr != nil {
				err = fmt.Errorf("build %s: %w", n.Path(), berr)
				return false
			}
		}
		return true
	})
	return err
}

// RunTree enters the run phase on every node and spawns a process for each
// Run hook, in pre-order. It returns without waiting for any of them.
func RunTree(root Component, ph *phase.Phase) {
	Walk(root, func(n *Node) bool {
		n.phase = ph
		r, ok := n.owner.(Runner)
		if !ok {
			return true
		}
		k := n.Kernel()
		if k == nil {
			panic(fmt.Sprintf("component: %s run before build", n.Path()))
		}
		k.Spawn(n.Path()+".run", func(p *sim.Process) error {
			return r.Run(p, ph)
		})
		return true
	})
}

// CheckTree calls Check once per node, breadth-first. Each level's children
// are read when the level is reached, so nodes attached during the run are
// included.
func CheckTree(root Component) int {
	checked := 0
	queue := []*Node{root.Base()}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if c, ok := n.owner.(Checker); ok {
			c.Check()
		}
		checked++
		queue = append(queue, n.children...)
	}
	return checked
}
