package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/vigil/internal/ir"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string
	RunID        string
	Trace        []TraceEvent
}

func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	events := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":  ev.Seq,
			"step": ev.Step,
		}
		for k, v := range ev.Data {
			m[k] = v
		}
		events[i] = m
	}
	out := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         events,
	}
	if s.RunID != "" {
		out["run_id"] = s.RunID
	}
	return out
}

// MarshalTrace renders a run as canonical JSON: sorted keys, no whitespace.
func MarshalTrace(scenario *Scenario, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		RunID:        scenario.RunID,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden runs scenario and compares its trace against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	traceJSON, err := MarshalTrace(scenario, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)
	return result, nil
}
