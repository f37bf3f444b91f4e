package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/folio/internal/model"
)

// Scenario defines a scripted sync scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed selects the backend's initial state: "default" (the default)
	// or "empty".
	Seed string `yaml:"seed,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scripted action.
type Step struct {
	// Do is the step kind.
	Do string `yaml:"do"`

	// Action is the form action path (submit).
	Action string `yaml:"action,omitempty"`

	// Page is the page the form was submitted from (submit).
	Page string `yaml:"page,omitempty"`

	// Fields are the submitted form values (submit). A list submits the
	// field once per element.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Status and Count configure fail_writes.
	Status int `yaml:"status,omitempty"`
	Count  int `yaml:"count,omitempty"`

	// Expect is the expected outcome. Empty skips the check.
	Expect string `yaml:"expect,omitempty"`
}

// Step kinds.
const (
	StepOnline     = "online"
	StepOffline    = "offline"
	StepSync       = "sync"
	StepReplay     = "replay"
	StepRefresh    = "refresh"
	StepSubmit     = "submit"
	StepFailWrites = "fail_writes"
)

// Seeds.
const (
	SeedDefault = "default"
	SeedEmpty   = "empty"
)

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type (see the package documentation).
	Type string `yaml:"type"`

	// Step, Action and Outcome select steps (trace_contains).
	Step    string `yaml:"step,omitempty"`
	Action  string `yaml:"action,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Label is a "step:outcome" label (trace_count).
	Label string `yaml:"label,omitempty"`

	// Labels is the expected label order (trace_order).
	Labels []string `yaml:"labels,omitempty"`

	// Table is mirror.<collection> or backend.<collection>, where
	// collection is profile, skills, projects, posts or socials
	// (final_state).
	Table string `yaml:"table,omitempty"`

	// Where selects exactly one record (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect holds expected values, subset match (final_state, status).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is an expected number (trace_count, outbox, backend_writes).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertStatus        = "status"
	AssertOutbox        = "outbox"
	AssertBackendWrites = "backend_writes"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch s.Seed {
	case "", SeedDefault, SeedEmpty:
	default:
		return fmt.Errorf("unknown seed %q", s.Seed)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, st Step) error {
	switch st.Do {
	case StepOnline, StepOffline, StepSync, StepReplay, StepRefresh:
	case StepSubmit:
		if st.Action == "" {
			return fmt.Errorf("steps[%d]: action is required for submit", index)
		}
	case StepFailWrites:
		if st.Status < 400 || st.Count <= 0 {
			return fmt.Errorf("steps[%d]: fail_writes needs an error status and a positive count", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: do is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown step %q", index, st.Do)
	}
	return nil
}

var collections = []string{"profile", "skills", "projects", "posts", "socials"}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Labels) == 0 {
			return fmt.Errorf("assertions[%d]: labels list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Label == "" {
			return fmt.Errorf("assertions[%d]: label is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		side, collection, ok := splitTable(a.Table)
		if !ok || (side != "mirror" && side != "backend") || !slices.Contains(collections, collection) {
			return fmt.Errorf("assertions[%d]: table must be mirror.<collection> or backend.<collection>, got %q", index, a.Table)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertStatus:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for status", index)
		}
	case AssertOutbox, AssertBackendWrites:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// formFields turns a step's fields into form fields sorted by name.
func (st Step) formFields() []model.Field {
	names := make([]string, 0, len(st.Fields))
	for name := range st.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var fields []model.Field
	for _, name := range names {
		switch v := st.Fields[name].(type) {
		case []any:
			for _, elem := range v {
				fields = append(fields, model.TextField(name, formValue(elem)))
			}
		default:
			fields = append(fields, model.TextField(name, formValue(v)))
		}
	}
	return fields
}

func formValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
