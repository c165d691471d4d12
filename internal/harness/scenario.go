package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vigil/internal/ir"
	"github.com/roach88/vigil/internal/model"
)

// Scenario defines one end-to-end run of the query stack.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is the fixed sweep run id. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// FindDelta turns on sweep delta reports. Defaults to true.
	FindDelta *bool `yaml:"find_delta,omitempty"`

	// Entities is the grounding table for names used in queries.
	Entities []ir.Entity `yaml:"entities"`

	// Models are published to the artifact store before the flow starts.
	Models []model.Handle `yaml:"models"`

	Flow []Step `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions"`
}

// Step is one flow step. Exactly one of Submit, Publish, Sweep or Report
// is set.
type Step struct {
	Submit  *SubmitStep   `yaml:"submit,omitempty"`
	Publish *model.Handle `yaml:"publish,omitempty"`
	Sweep   string        `yaml:"sweep,omitempty"`
	Report  *ReportStep   `yaml:"report,omitempty"`

	// Expect, if set, is checked against the step outcome.
	Expect *Expect `yaml:"expect,omitempty"`
}

// SubmitStep registers and answers a query.
type SubmitStep struct {
	// User is the submitting user; omitted means anonymous.
	User     UserRef      `yaml:"user,omitempty"`
	Query    ir.Selection `yaml:"query"`
	Models   []string     `yaml:"models"`
	Register bool         `yaml:"register"`
}

// UserRef identifies a user.
type UserRef struct {
	ID    int64  `yaml:"id"`
	Email string `yaml:"email"`
}

// ReportStep renders the delta report of one query.
type ReportStep struct {
	Model  string       `yaml:"model"`
	Query  ir.Selection `yaml:"query"`
	Format string       `yaml:"format,omitempty"`
}

// Expect describes the expected outcome of a step. Unset fields are not
// checked.
type Expect struct {
	// Error is the expected error class: invalid_input, model_unavailable
	// or error. Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Answers is the number of answers a submit returns.
	Answers *int `yaml:"answers,omitempty"`

	// Unavailable lists models a submit reports as unavailable.
	Unavailable []string `yaml:"unavailable,omitempty"`

	// Kinds maps checker type to delta kind: FIRST or SAVED for submit
	// answers, FIRST, CHANGED or UNCHANGED for sweep reports.
	Kinds map[string]string `yaml:"kinds,omitempty"`

	// Found is whether a report step finds a stored result.
	Found *bool `yaml:"found,omitempty"`

	// Contains is a substring the rendered report must contain.
	Contains string `yaml:"contains,omitempty"`
}

// Assertion validates state after the flow.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Model is the model id (all types except step_count).
	Model string `yaml:"model,omitempty"`

	// Query selects the query (result_rows, subscribers).
	Query *ir.Selection `yaml:"query,omitempty"`

	// Step is the step name (step_count).
	Step string `yaml:"step,omitempty"`

	// Count is the expected number (all types except subscribers).
	Count int `yaml:"count"`

	// Users are the expected subscriber emails, sorted (subscribers).
	Users []string `yaml:"users,omitempty"`
}

// Assertion types.
const (
	AssertEvaluations = "evaluations"
	AssertFetches     = "artifact_fetches"
	AssertResultRows  = "result_rows"
	AssertSubscribers = "subscribers"
	AssertStepCount   = "step_count"
)

// Error classes used in Expect.Error and the trace.
const (
	ErrorInvalidInput     = "invalid_input"
	ErrorModelUnavailable = "model_unavailable"
	ErrorOther            = "error"
)

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML. Unknown fields are rejected so typos
// surface as errors.
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

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow must have at least one step")
	}
	for i, m := range s.Models {
		if m.ModelID == "" {
			return fmt.Errorf("models[%d]: model_id is required", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step, i); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step, index int) error {
	set := 0
	if step.Submit != nil {
		set++
		if len(step.Submit.Models) == 0 && (step.Expect == nil || step.Expect.Error == "") {
			return fmt.Errorf("flow[%d]: submit needs models unless an error is expected", index)
		}
	}
	if step.Publish != nil {
		set++
		if step.Publish.ModelID == "" {
			return fmt.Errorf("flow[%d]: publish needs model_id", index)
		}
	}
	if step.Sweep != "" {
		set++
	}
	if step.Report != nil {
		set++
		if step.Report.Model == "" {
			return fmt.Errorf("flow[%d]: report needs model", index)
		}
	}
	if set != 1 {
		return fmt.Errorf("flow[%d]: exactly one of submit, publish, sweep or report is required", index)
	}
	if step.Expect != nil {
		switch step.Expect.Error {
		case "", ErrorInvalidInput, ErrorModelUnavailable, ErrorOther:
		default:
			return fmt.Errorf("flow[%d]: unknown expected error %q", index, step.Expect.Error)
		}
	}
	return nil
}

func validateAssertion(a Assertion, index int) error {
	switch a.Type {
	case AssertEvaluations, AssertFetches:
		if a.Model == "" {
			return fmt.Errorf("assertions[%d]: model is required for %s", index, a.Type)
		}
	case AssertResultRows, AssertSubscribers:
		if a.Model == "" || a.Query == nil {
			return fmt.Errorf("assertions[%d]: model and query are required for %s", index, a.Type)
		}
	case AssertStepCount:
		switch a.Step {
		case StepSubmit, StepPublish, StepSweep, StepReport:
		default:
			return fmt.Errorf("assertions[%d]: unknown step %q for step_count", index, a.Step)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
