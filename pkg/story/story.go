package story

import (
	"errors"
	"slices"
	"strings"
)

var (
	// ErrInvalidChoice is returned when a choice index is outside the
	// choices available at the cursor.
	ErrInvalidChoice = errors.New("invalid choice")

	// ErrInvalidStory is returned when a story document fails validation.
	ErrInvalidStory = errors.New("invalid story")

	// ErrInvalidCursor is returned when restoring a cursor that does not
	// point into the loaded graph.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// NodeID identifies a node in the story graph.
type NodeID string

// Well-known narrative variables written by the story and read by the session.
const (
	VarLocation        = "current_location"
	VarActivePersona   = "current_ai"
	VarLastPlayerInput = "last_player_input"
	VarSignalStrength  = "signal_strength"
)

// Step is one entry of a node body: a Fragment, an Assignment or a Grant.
type Step interface {
	step()
}

// Fragment is a unit of narration. Markers are already split out of the
// text by the loader.
type Fragment struct {
	Segments []Segment
}

func (Fragment) step() {}

// Plain returns the fragment text with markers removed.
func (f Fragment) Plain() string {
	var b strings.Builder
	for _, s := range f.Segments {
		if t, ok := s.(Text); ok {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}

// HasMarkers reports whether the fragment needs AI resolution.
func (f Fragment) HasMarkers() bool {
	for _, s := range f.Segments {
		if _, ok := s.(Text); !ok {
			return true
		}
	}
	return false
}

// Assignment sets a narrative variable to a scalar value.
type Assignment struct {
	Var   string
	Value any
}

func (Assignment) step() {}

// Grant adds an item to the player's inventory.
type Grant struct {
	Item string
}

func (Grant) step() {}

// Choice is a labeled edge out of a node. Index is the position among its
// siblings and is stable for input-by-number.
type Choice struct {
	Index  int
	Label  string
	Target NodeID
	Set    []Assignment
}

// Node is a unit of narrative content. Nodes are immutable once loaded.
type Node struct {
	ID       NodeID
	Steps    []Step
	Choices  []Choice
	Next     NodeID // divert taken when the body is exhausted and there are no choices
	Terminal bool
}

// Fragments returns the narration fragments of the node in document order.
func (n *Node) Fragments() []Fragment {
	var out []Fragment
	for _, s := range n.Steps {
		if f, ok := s.(Fragment); ok {
			out = append(out, f)
		}
	}
	return out
}

// Graph is an adjacency map of NodeID to Node with every edge resolved at
// load time.
type Graph struct {
	Title     string
	Author    string
	Start     NodeID
	Variables map[string]any

	nodes map[NodeID]*Node
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeIDs returns all node ids in sorted order.
func (g *Graph) NodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// InitialVariables returns a copy of the variable declarations.
func (g *Graph) InitialVariables() map[string]any {
	out := make(map[string]any, len(g.Variables))
	for k, v := range g.Variables {
		out[k] = v
	}
	return out
}

// Unreachable returns the ids of nodes that cannot be reached from Start.
func (g *Graph) Unreachable() []NodeID {
	seen := map[NodeID]bool{g.Start: true}
	queue := []NodeID{g.Start}
	for len(queue) > 0 {
		n := g.nodes[queue[0]]
		queue = queue[1:]
		next := make([]NodeID, 0, len(n.Choices)+1)
		for _, c := range n.Choices {
			next = append(next, c.Target)
		}
		if n.Next != "" {
			next = append(next, n.Next)
		}
		for _, id := range next {
			if !seen[id] {
				seen[id] = true
				queue = append(queue, id)
			}
		}
	}

	var out []NodeID
	for _, id := range g.NodeIDs() {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}
