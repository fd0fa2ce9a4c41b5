package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario applies a CUE rule to a document, drives the root rule context
// through a list of steps and checks the recorded trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules is the CUE file or directory defining the rule. Relative paths
	// are resolved against the scenario file.
	Rules string `yaml:"rules"`

	// Document is the YAML or JSON text the rule is applied to.
	Document string `yaml:"document"`

	// Steps run after the root rule context has started.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the final trace and issues.
	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpSet     = "set"
	OpRemove  = "remove"
	OpStop    = "stop"
	OpStart   = "start"
	OpDispose = "dispose"
)

// Step is one operation on the running root rule context or its scope.
type Step struct {
	Op string `yaml:"op"`

	// Scope is the target scope id for set and remove. Empty means the
	// root scope.
	Scope string `yaml:"scope,omitempty"`

	// ID is the scope entry for set and remove.
	ID string `yaml:"id,omitempty"`

	// Value is registered by set.
	Value any `yaml:"value,omitempty"`

	// Ready marks the set registration ready. Defaults to true.
	Ready *bool `yaml:"ready,omitempty"`

	// Force makes the set registration replace other owners.
	Force bool `yaml:"force,omitempty"`
}

func (s Step) ready() bool {
	return s.Ready == nil || *s.Ready
}

// Assertion validates the trace or the final issues.
type Assertion struct {
	// Type specifies the assertion type:
	// - "issues": final issue messages equal Messages, in order
	// - "trace_contains": some Event has an issue with Message
	// - "trace_count": Event appears exactly Count times
	// - "trace_order": Events appear in order
	Type string `yaml:"type"`

	// Event is a trace event type (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Message is an issue message (trace_contains).
	Message string `yaml:"message,omitempty"`

	// Messages are the expected final issue messages (issues).
	Messages []string `yaml:"messages,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected event order (trace_order). A step event is
	// written "step:<op>".
	Events []string `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertIssues        = "issues"
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertTraceOrder    = "trace_order"
)

// LoadScenario reads and parses a scenario YAML file. The rules path is
// resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the rules path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if !filepath.IsAbs(scenario.Rules) && basePath != "" {
		scenario.Rules = filepath.Join(basePath, scenario.Rules)
	}
	if _, err := os.Stat(scenario.Rules); err != nil {
		return nil, fmt.Errorf("invalid scenario: rules not found: %s", scenario.Rules)
	}

	return scenario, nil
}

// ParseScenario decodes scenario YAML, rejecting unknown fields.
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Rules == "" {
		return fmt.Errorf("rules is required")
	}

	if s.Document == "" {
		return fmt.Errorf("document is required")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	disposed := false
	for i, step := range s.Steps {
		if disposed {
			return fmt.Errorf("steps[%d]: no step may follow dispose", i)
		}
		switch step.Op {
		case OpSet, OpRemove:
			if step.ID == "" {
				return fmt.Errorf("steps[%d]: id is required for %s", i, step.Op)
			}
		case OpStop, OpStart:
		case OpDispose:
			disposed = true
		case "":
			return fmt.Errorf("steps[%d]: op is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertIssues:
	case AssertTraceContains:
		if a.Event == "" || a.Message == "" {
			return fmt.Errorf("assertions[%d]: event and message are required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
