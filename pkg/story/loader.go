package story

import (
	"embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed stories/*.yaml
var storyFS embed.FS

// DefaultStoryFile is the embedded story used when no file is configured.
const DefaultStoryFile = "stories/last_signal.yaml"

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

type storyDoc struct {
	Title     string         `yaml:"title"`
	Author    string         `yaml:"author"`
	Start     string         `yaml:"start"`
	Variables map[string]any `yaml:"variables"`
	Nodes     []nodeDoc      `yaml:"nodes"`
}

type nodeDoc struct {
	ID      string      `yaml:"id"`
	Body    []stepDoc   `yaml:"body"`
	Choices []choiceDoc `yaml:"choices"`
	Next    string      `yaml:"next"`
	End     bool        `yaml:"end"`
}

type stepDoc struct {
	Text *string   `yaml:"text"`
	Set  yaml.Node `yaml:"set"`
	Give string    `yaml:"give"`
}

type choiceDoc struct {
	Label  string    `yaml:"label"`
	Target string    `yaml:"target"`
	Set    yaml.Node `yaml:"set"`
}

// Default loads the embedded story.
func Default() (*Graph, error) {
	data, err := storyFS.ReadFile(DefaultStoryFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded story: %w", err)
	}
	return Load(data)
}

// LoadFile loads a story from disk.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read story file %s: %w", path, err)
	}
	return Load(data)
}

// Load parses and validates a YAML story document.
func Load(data []byte) (*Graph, error) {
	var doc storyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStory, err)
	}
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrInvalidStory)
	}

	g := &Graph{
		Title:     doc.Title,
		Author:    doc.Author,
		Start:     NodeID(doc.Start),
		Variables: make(map[string]any, len(doc.Variables)),
		nodes:     make(map[NodeID]*Node, len(doc.Nodes)),
	}
	if g.Start == "" {
		g.Start = "START"
	}

	for name, v := range doc.Variables {
		val, err := normalizeScalar(v)
		if err != nil {
			return nil, fmt.Errorf("%w: variable %q: %v", ErrInvalidStory, name, err)
		}
		g.Variables[name] = val
	}

	for _, nd := range doc.Nodes {
		n, err := buildNode(nd)
		if err != nil {
			return nil, fmt.Errorf("%w: node %q: %v", ErrInvalidStory, nd.ID, err)
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node %q", ErrInvalidStory, n.ID)
		}
		g.nodes[n.ID] = n
	}

	if err := g.resolve(); err != nil {
		return nil, err
	}
	return g, nil
}

func buildNode(nd nodeDoc) (*Node, error) {
	if strings.TrimSpace(nd.ID) == "" {
		return nil, fmt.Errorf("missing id")
	}
	n := &Node{ID: NodeID(nd.ID), Next: NodeID(nd.Next)}

	for i, sd := range nd.Body {
		steps, err := buildSteps(sd)
		if err != nil {
			return nil, fmt.Errorf("body[%d]: %w", i, err)
		}
		n.Steps = append(n.Steps, steps...)
	}

	for i, cd := range nd.Choices {
		if strings.TrimSpace(cd.Label) == "" {
			return nil, fmt.Errorf("choice %d: missing label", i)
		}
		if cd.Target == "" {
			return nil, fmt.Errorf("choice %d: missing target", i)
		}
		sets, err := decodeAssignments(&cd.Set)
		if err != nil {
			return nil, fmt.Errorf("choice %d: %w", i, err)
		}
		n.Choices = append(n.Choices, Choice{
			Index:  i,
			Label:  cd.Label,
			Target: NodeID(cd.Target),
			Set:    sets,
		})
	}

	switch {
	case nd.End && (len(n.Choices) > 0 || n.Next != ""):
		return nil, fmt.Errorf("end node cannot have choices or next")
	case len(n.Choices) > 0 && n.Next != "":
		return nil, fmt.Errorf("node cannot have both choices and next")
	}
	n.Terminal = len(n.Choices) == 0 && n.Next == ""
	return n, nil
}

func buildSteps(sd stepDoc) ([]Step, error) {
	var steps []Step
	kinds := 0

	if sd.Set.Kind != 0 {
		kinds++
		sets, err := decodeAssignments(&sd.Set)
		if err != nil {
			return nil, err
		}
		for _, a := range sets {
			steps = append(steps, a)
		}
	}
	if sd.Give != "" {
		kinds++
		steps = append(steps, Grant{Item: sd.Give})
	}
	if sd.Text != nil {
		kinds++
		for _, para := range paragraphBreak.Split(strings.TrimSpace(*sd.Text), -1) {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			segs, err := ParseSegments(para)
			if err != nil {
				return nil, err
			}
			steps = append(steps, Fragment{Segments: segs})
		}
	}

	if kinds != 1 {
		return nil, fmt.Errorf("step must have exactly one of text, set or give")
	}
	return steps, nil
}

// decodeAssignments reads a YAML mapping in document order.
func decodeAssignments(node *yaml.Node) ([]Assignment, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("set must be a mapping")
	}

	out := make([]Assignment, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var raw any
		if err := node.Content[i+1].Decode(&raw); err != nil {
			return nil, fmt.Errorf("set %q: %w", name, err)
		}
		val, err := normalizeScalar(raw)
		if err != nil {
			return nil, fmt.Errorf("set %q: %w", name, err)
		}
		out = append(out, Assignment{Var: name, Value: val})
	}
	return out, nil
}

func normalizeScalar(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string, bool, float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func (g *Graph) resolve() error {
	if _, ok := g.nodes[g.Start]; !ok {
		return fmt.Errorf("%w: start node %q not found", ErrInvalidStory, g.Start)
	}
	for _, n := range g.nodes {
		for _, c := range n.Choices {
			if _, ok := g.nodes[c.Target]; !ok {
				return fmt.Errorf("%w: node %q: choice %q targets unknown node %q", ErrInvalidStory, n.ID, c.Label, c.Target)
			}
		}
		if n.Next != "" {
			if _, ok := g.nodes[n.Next]; !ok {
				return fmt.Errorf("%w: node %q: next targets unknown node %q", ErrInvalidStory, n.ID, n.Next)
			}
		}
	}

	// A chain of diverts must reach a choice point or a terminal node,
	// otherwise Continue would never stop.
	for id := range g.nodes {
		seen := map[NodeID]bool{}
		for cur := g.nodes[id]; cur.Next != ""; cur = g.nodes[cur.Next] {
			if seen[cur.ID] {
				return fmt.Errorf("%w: divert cycle through node %q", ErrInvalidStory, cur.ID)
			}
			seen[cur.ID] = true
		}
	}
	return nil
}
