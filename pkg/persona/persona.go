// Package persona holds the station AIs the player can talk to.
package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var defaultPersonas []byte

var ErrUnknownPersona = errors.New("unknown persona")

// Persona is one AI character: its prompt, sampling temperature and the
// lines it falls back to without a model.
type Persona struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Title       string   `yaml:"title,omitempty"`
	Temperature float32  `yaml:"temperature"`
	Prompt      string   `yaml:"prompt"`
	Error       string   `yaml:"error"`
	Scripted    []string `yaml:"scripted"`
}

// SystemPrompt joins the shared directive and the persona's own prompt.
func (p *Persona) SystemPrompt(base string) string {
	return strings.TrimSpace(base) + "\n\n" + strings.TrimSpace(p.Prompt)
}

// Pool is the read-only set of personas loaded at startup.
type Pool struct {
	BasePrompt     string     `yaml:"base_prompt"`
	UnknownPersona string     `yaml:"unknown_persona"`
	Personas       []*Persona `yaml:"personas"`
}

// Default loads the embedded persona file.
func Default() (*Pool, error) {
	return Load(defaultPersonas)
}

// LoadFile loads personas from disk.
func LoadFile(path string) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file: %w", err)
	}
	return Load(data)
}

func Load(data []byte) (*Pool, error) {
	var p Pool
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal personas: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.UnknownPersona == "" {
		p.UnknownPersona = "I'm experiencing technical difficulties."
	}
	return &p, nil
}

// Validate checks ids are unique and every persona can answer offline.
func (p *Pool) Validate() error {
	if len(p.Personas) == 0 {
		return fmt.Errorf("no personas defined")
	}
	seen := make(map[string]bool, len(p.Personas))
	for i, pe := range p.Personas {
		if pe == nil || pe.ID == "" {
			return fmt.Errorf("persona %d: id is required", i)
		}
		if seen[pe.ID] {
			return fmt.Errorf("persona %s: duplicate id", pe.ID)
		}
		seen[pe.ID] = true
		if len(pe.Scripted) == 0 {
			return fmt.Errorf("persona %s: at least one scripted line is required", pe.ID)
		}
		if pe.Error == "" {
			return fmt.Errorf("persona %s: error line is required", pe.ID)
		}
		if pe.Temperature < 0 || pe.Temperature > 2 {
			return fmt.Errorf("persona %s: temperature %.2f out of range", pe.ID, pe.Temperature)
		}
	}
	return nil
}

// Get looks up a persona by id.
func (p *Pool) Get(id string) (*Persona, error) {
	for _, pe := range p.Personas {
		if pe.ID == id {
			return pe, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPersona, id)
}

func (p *Pool) IDs() []string {
	ids := make([]string, 0, len(p.Personas))
	for _, pe := range p.Personas {
		ids = append(ids, pe.ID)
	}
	return ids
}

// Scripted draws a canned line for the persona, uniformly at random.
// The result depends only on the persona id.
func (p *Pool) Scripted(id string) string {
	pe, err := p.Get(id)
	if err != nil {
		return p.UnknownPersona
	}
	return pe.Scripted[rand.IntN(len(pe.Scripted))]
}

// ErrorLine returns the in-character line used when a remote reply fails.
func (p *Pool) ErrorLine(id string) string {
	pe, err := p.Get(id)
	if err != nil {
		return p.UnknownPersona
	}
	return pe.Error
}
