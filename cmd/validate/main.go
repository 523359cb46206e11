package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/jwebster45206/last-signal/pkg/persona"
	"github.com/jwebster45206/last-signal/pkg/story"
)

func main() {
	storyFile := flag.String("story", "", "story YAML file (defaults to the built-in story)")
	personaFile := flag.String("personas", "", "persona YAML file (defaults to the built-in personas)")
	flag.Parse()

	if err := run(os.Stdout, *storyFile, *personaFile); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer, storyFile, personaFile string) error {
	v := &StoryValidator{out: out}

	graph, err := v.loadStory(storyFile)
	if err != nil {
		return err
	}
	pool, err := v.loadPersonas(personaFile)
	if err != nil {
		return err
	}

	v.validate(graph, pool)
	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors:\n%s", strings.Join(v.errors, "\n"))
	}

	fmt.Fprintln(out, "Story is valid!")
	return nil
}

type StoryValidator struct {
	out    io.Writer
	errors []string
}

var nodeIDPattern = regexp.MustCompile(`^(START|[a-z][a-z0-9_]*)$`)

func (v *StoryValidator) loadStory(filename string) (*story.Graph, error) {
	if filename == "" {
		fmt.Fprintln(v.out, "Validating built-in story...")
		return story.Default()
	}
	fmt.Fprintf(v.out, "Validating %s...\n", filename)
	if ext := filepath.Ext(filename); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("story file must have .yaml extension: %s", filepath.Base(filename))
	}
	return story.LoadFile(filename)
}

func (v *StoryValidator) loadPersonas(filename string) (*persona.Pool, error) {
	if filename == "" {
		return persona.Default()
	}
	fmt.Fprintf(v.out, "Validating %s...\n", filename)
	return persona.LoadFile(filename)
}

func (v *StoryValidator) validate(g *story.Graph, pool *persona.Pool) {
	for _, id := range g.NodeIDs() {
		if !nodeIDPattern.MatchString(string(id)) {
			v.errors = append(v.errors, fmt.Sprintf("node ID '%s' must be lowercase snake_case", id))
		}
		node, _ := g.Node(id)
		v.validatePersonas(node, pool)
	}

	for _, id := range g.Unreachable() {
		v.errors = append(v.errors, fmt.Sprintf("node '%s' is unreachable from %s", id, g.Start))
	}

	placeholders := Placeholders(g)
	if len(placeholders) > 0 {
		fmt.Fprintf(v.out, "%d placeholder scenes (narrated entirely by AI):\n", len(placeholders))
		for _, id := range placeholders {
			fmt.Fprintf(v.out, "  - %s\n", id)
		}
	}
	fmt.Fprintf(v.out, "%d nodes, %d personas\n", g.Len(), len(pool.IDs()))
}

// validatePersonas checks that every persona a node activates exists.
func (v *StoryValidator) validatePersonas(node *story.Node, pool *persona.Pool) {
	assignments := []story.Assignment{}
	for _, s := range node.Steps {
		if a, ok := s.(story.Assignment); ok {
			assignments = append(assignments, a)
		}
	}
	for _, c := range node.Choices {
		assignments = append(assignments, c.Set...)
	}

	for _, a := range assignments {
		if a.Var != story.VarActivePersona {
			continue
		}
		id, _ := a.Value.(string)
		if id == "" {
			continue
		}
		if !slices.Contains(pool.IDs(), id) {
			v.errors = append(v.errors, fmt.Sprintf("node '%s' activates unknown persona '%s'", node.ID, id))
		}
	}
}

// Placeholders returns nodes whose narration is only AI_GENERATE markers.
func Placeholders(g *story.Graph) []story.NodeID {
	var out []story.NodeID
	for _, id := range g.NodeIDs() {
		node, _ := g.Node(id)
		fragments := node.Fragments()
		if len(fragments) == 0 {
			continue
		}
		placeholder := true
		for _, f := range fragments {
			if strings.TrimSpace(f.Plain()) != "" || !f.HasMarkers() {
				placeholder = false
				break
			}
		}
		if placeholder && len(node.Choices) == 0 {
			out = append(out, id)
		}
	}
	return out
}
