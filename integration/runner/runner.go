// Package runner plays scripted cases against a running API.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/last-signal/internal/handlers"
	"github.com/jwebster45206/last-signal/internal/session"
	"github.com/jwebster45206/last-signal/pkg/chat"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...any)
	ErrorHandlingMode ErrorHandlingMode
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           30 * time.Second,
		Logger:            func(string, ...any) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a YAML file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse YAML in %s: %w", filename, err)
	}
	for i, step := range suite.Steps {
		turn := step.turn()
		if err := turn.Validate(); err != nil {
			return TestSuite{}, fmt.Errorf("%s: step %d (%s): %w", filename, i, step.Name, err)
		}
	}
	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}
		jobs = append(jobs, subJobs...)
	}
	return jobs, nil
}

func (s TestStep) turn() chat.TurnRequest {
	return chat.TurnRequest{ChooseIndex: s.Choose, Text: s.Text, Command: s.Command}
}

// RunSuite starts a fresh session, plays every step and ends the session.
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job:     TestJob{Name: suite.Name, Suite: suite},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	created, err := r.createSession(ctx, suite.PlayerID)
	if err != nil {
		result.Error = fmt.Errorf("failed to create session: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}
	result.SessionID = created.SessionID
	defer r.deleteSession(context.WithoutCancel(ctx), created.SessionID)

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult := r.runStep(ctx, created.SessionID, step, suite.Async)
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}
		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

func (r *Runner) runStep(ctx context.Context, sessionID uuid.UUID, step TestStep, async bool) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var (
		status int
		out    *session.Output
		err    error
	)
	if async {
		result.RequestID, status, out, err = PlayTurnAsync(ctx, r.Client, r.BaseURL, sessionID, step.turn())
	} else {
		status, out, err = r.playTurn(ctx, sessionID, step.turn())
	}
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	var text string
	if out != nil {
		text = strings.Join(out.Text, "\n")
	}
	result.ResponseText = text

	summary, err := r.getSession(ctx, sessionID)
	if err != nil {
		result.Error = fmt.Errorf("failed to read session after turn: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	if err := CheckExpectations(step.Expect, status, summary, text); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

func (r *Runner) createSession(ctx context.Context, playerID string) (*handlers.CreateSessionResponse, error) {
	var created handlers.CreateSessionResponse
	status, err := r.do(ctx, http.MethodPost, "/v1/sessions", handlers.CreateSessionRequest{PlayerID: playerID}, &created)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("create session returned %d", status)
	}
	return &created, nil
}

func (r *Runner) getSession(ctx context.Context, sessionID uuid.UUID) (*handlers.SessionSummary, error) {
	var summary handlers.SessionSummary
	status, err := r.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID.String(), nil, &summary)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get session returned %d", status)
	}
	return &summary, nil
}

func (r *Runner) deleteSession(ctx context.Context, sessionID uuid.UUID) {
	if _, err := r.do(ctx, http.MethodDelete, "/v1/sessions/"+sessionID.String(), nil, nil); err != nil {
		r.Logger("    Warning: failed to delete session %s: %v", sessionID, err)
	}
}

// playTurn posts a turn. Non-200 statuses are returned, not treated as
// errors, so cases can expect them.
func (r *Runner) playTurn(ctx context.Context, sessionID uuid.UUID, turn chat.TurnRequest) (int, *session.Output, error) {
	var out session.Output
	status, err := r.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID.String()+"/turn", turn, &out)
	if err != nil {
		return 0, nil, err
	}
	if status != http.StatusOK {
		return status, nil, nil
	}
	return status, &out, nil
}

// do sends a JSON request and decodes a 2xx body into out.
func (r *Runner) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// CheckExpectations validates one step's expectations against the turn
// status, the session afterwards and the narrated text.
func CheckExpectations(exp Expectations, status int, summary *handlers.SessionSummary, responseText string) error {
	wantStatus := http.StatusOK
	if exp.Status != nil {
		wantStatus = *exp.Status
	}
	if status != wantStatus {
		return fmt.Errorf("expected status %d, got %d", wantStatus, status)
	}

	if exp.Mode != nil && string(summary.Mode) != *exp.Mode {
		return fmt.Errorf("expected mode %s, got %s", *exp.Mode, summary.Mode)
	}
	if exp.Location != nil && summary.Location != *exp.Location {
		return fmt.Errorf("expected location %s, got %s", *exp.Location, summary.Location)
	}
	if exp.Tension != nil && summary.Tension != *exp.Tension {
		return fmt.Errorf("expected tension %d, got %d", *exp.Tension, summary.Tension)
	}
	if exp.Mood != nil && summary.Mood != *exp.Mood {
		return fmt.Errorf("expected mood %s, got %s", *exp.Mood, summary.Mood)
	}
	if exp.Choices != nil && len(summary.Choices) != *exp.Choices {
		return fmt.Errorf("expected %d choices, got %d", *exp.Choices, len(summary.Choices))
	}

	if len(exp.Inventory) > 0 {
		for _, item := range exp.Inventory {
			if !slices.Contains(summary.Inventory, item) {
				return fmt.Errorf("expected inventory to contain '%s', but it's missing. Actual inventory: %v", item, summary.Inventory)
			}
		}
		for _, item := range summary.Inventory {
			if !slices.Contains(exp.Inventory, item) {
				return fmt.Errorf("inventory contains unexpected item '%s'. Expected inventory: %v, Actual: %v", item, exp.Inventory, summary.Inventory)
			}
		}
	}

	for key, expectedValue := range exp.Vars {
		actualValue, exists := summary.Vars[key]
		if !exists {
			return fmt.Errorf("expected variable %s to be set, but it doesn't exist", key)
		}
		if fmt.Sprint(actualValue) != expectedValue {
			return fmt.Errorf("expected variable %s to be %s, got %v", key, expectedValue, actualValue)
		}
	}

	lowerResponse := strings.ToLower(responseText)
	for _, expectedText := range exp.ResponseContains {
		if !strings.Contains(lowerResponse, strings.ToLower(expectedText)) {
			return fmt.Errorf("expected response to contain '%s', but it didn't", expectedText)
		}
	}
	for _, unexpectedText := range exp.ResponseNotContains {
		if strings.Contains(lowerResponse, strings.ToLower(unexpectedText)) {
			return fmt.Errorf("expected response to NOT contain '%s', but it did", unexpectedText)
		}
	}

	if exp.ResponseRegex != "" {
		matched, err := regexp.MatchString(exp.ResponseRegex, responseText)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		if !matched {
			return fmt.Errorf("response didn't match regex pattern: %s", exp.ResponseRegex)
		}
	}
	return nil
}
