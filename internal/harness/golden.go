package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot captures what a golden file pins for a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	EndTime      int64        `json:"end_time"`
	TestPassed   bool         `json:"test_passed"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a snapshot for MarshalCanonical.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"time":    ev.Time,
			"level":   ev.Level,
			"message": ev.Message,
		}
		if ev.Source != "" {
			m["source"] = ev.Source
		}
		if ev.Kind != "" {
			m["kind"] = ev.Kind
		}
		trace[i] = m
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"end_time":      s.EndTime,
		"test_passed":   s.TestPassed,
		"trace":         trace,
	}
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		EndTime:      result.EndTime,
		TestPassed:   result.TestPassed,
		Trace:        result.Trace,
	}
	traceJSON, err := MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
