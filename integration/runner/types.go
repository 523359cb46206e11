package runner

import (
	"time"

	"github.com/google/uuid"
)

// TestSuite is one scripted playthrough. A suite either has Steps or
// sequences other case files through Cases.
type TestSuite struct {
	Name     string     `yaml:"name"`
	PlayerID string     `yaml:"player_id,omitempty"`
	Async    bool       `yaml:"async,omitempty"` // queue turns for the worker
	Steps    []TestStep `yaml:"steps,omitempty"`
	Cases    []string   `yaml:"cases,omitempty"`
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep is one turn. Exactly one of Text, Choose or Command is set.
// Choose is zero-based, like the API's choose_index.
type TestStep struct {
	Name    string       `yaml:"name,omitempty"`
	Text    string       `yaml:"text,omitempty"`
	Choose  *int         `yaml:"choose,omitempty"`
	Command string       `yaml:"command,omitempty"`
	Expect  Expectations `yaml:"expect"`
}

// Expectations defines what to check after a step executes
type Expectations struct {
	// Status is the HTTP status of the turn; 200 when unset.
	Status    *int              `yaml:"status,omitempty"`
	Mode      *string           `yaml:"mode,omitempty"`
	Location  *string           `yaml:"location,omitempty"`
	Tension   *int              `yaml:"tension,omitempty"`
	Mood      *string           `yaml:"mood,omitempty"`
	Choices   *int              `yaml:"choices,omitempty"`
	Inventory []string          `yaml:"inventory,omitempty"` // order independent
	Vars      map[string]string `yaml:"vars,omitempty"`

	ResponseContains    []string `yaml:"response_contains,omitempty"`
	ResponseNotContains []string `yaml:"response_not_contains,omitempty"`
	ResponseRegex       string   `yaml:"response_regex,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	ResponseText string
	RequestID    string // set for queued turns
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job       TestJob
	Results   []TestResult
	Error     error
	Duration  time.Duration
	SessionID uuid.UUID
}
