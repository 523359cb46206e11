package story

import (
	"fmt"
	"iter"
)

// Variables is the narrative state a Walker writes into as it passes
// assignments and grants.
type Variables interface {
	SetVar(name string, value any) error
	AddItem(item string)
}

// Cursor is the serialisable position of a Walker.
type Cursor struct {
	Node NodeID `json:"node"`
	Step int    `json:"step"`
}

// Walker moves a cursor through a Graph. It does not resolve markers; it
// surfaces fragments and leaves resolution to the caller.
type Walker struct {
	graph *Graph
	vars  Variables
	node  *Node
	step  int
	err   error
}

// NewWalker returns a walker positioned at the start of the graph.
func NewWalker(g *Graph, vars Variables) *Walker {
	w := &Walker{graph: g, vars: vars}
	w.Reset()
	return w
}

// Reset moves the cursor back to the start node.
func (w *Walker) Reset() {
	w.node = w.graph.nodes[w.graph.Start]
	w.step = 0
	w.err = nil
}

// Graph returns the graph being walked.
func (w *Walker) Graph() *Graph {
	return w.graph
}

// Continue yields fragments until the cursor reaches a choice point or a
// terminal node. Assignments are applied in document order before the
// fragment that follows them is yielded. Stopping the iteration early leaves
// the cursor after the last yielded fragment.
func (w *Walker) Continue() iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		for {
			if w.step < len(w.node.Steps) {
				s := w.node.Steps[w.step]
				w.step++

				switch s := s.(type) {
				case Assignment:
					if err := w.vars.SetVar(s.Var, s.Value); err != nil {
						w.err = fmt.Errorf("node %q: %w", w.node.ID, err)
						return
					}
				case Grant:
					w.vars.AddItem(s.Item)
				case Fragment:
					if !yield(s) {
						return
					}
				}
				continue
			}

			if w.node.Next == "" {
				return
			}
			w.node = w.graph.nodes[w.node.Next]
			w.step = 0
		}
	}
}

// Err returns the error that stopped the last Continue, if any.
func (w *Walker) Err() error {
	return w.err
}

// CanContinue reports whether Continue would make progress.
func (w *Walker) CanContinue() bool {
	return w.step < len(w.node.Steps) || w.node.Next != ""
}

// CurrentChoices returns the choices at the cursor. It is empty until the
// node body has been fully consumed, and always empty at a terminal node.
// An empty result means the story has ended only once CanContinue is false.
func (w *Walker) CurrentChoices() []Choice {
	if w.CanContinue() || len(w.node.Choices) == 0 {
		return nil
	}
	out := make([]Choice, len(w.node.Choices))
	copy(out, w.node.Choices)
	return out
}

// Ended reports whether the cursor is at the end of a terminal node.
func (w *Walker) Ended() bool {
	return !w.CanContinue() && w.node.Terminal
}

// ChooseChoice follows the choice at index i. An out of range index returns
// ErrInvalidChoice and leaves the walker and its variables untouched.
func (w *Walker) ChooseChoice(i int) error {
	choices := w.CurrentChoices()
	if i < 0 || i >= len(choices) {
		return fmt.Errorf("%w: index %d, %d choices available", ErrInvalidChoice, i, len(choices))
	}

	c := choices[i]
	for _, a := range c.Set {
		if err := w.vars.SetVar(a.Var, a.Value); err != nil {
			return fmt.Errorf("choice %q: %w", c.Label, err)
		}
	}
	w.node = w.graph.nodes[c.Target]
	w.step = 0
	w.err = nil
	return nil
}

// Cursor returns the current position.
func (w *Walker) Cursor() Cursor {
	return Cursor{Node: w.node.ID, Step: w.step}
}

// Restore moves the walker to a previously saved position.
func (w *Walker) Restore(c Cursor) error {
	n, ok := w.graph.nodes[c.Node]
	if !ok {
		return fmt.Errorf("%w: unknown node %q", ErrInvalidCursor, c.Node)
	}
	if c.Step < 0 || c.Step > len(n.Steps) {
		return fmt.Errorf("%w: step %d out of range for node %q", ErrInvalidCursor, c.Step, c.Node)
	}
	w.node = n
	w.step = c.Step
	w.err = nil
	return nil
}
