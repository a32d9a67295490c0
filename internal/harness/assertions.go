package harness

import (
	"fmt"
	"sort"
	"strings"
)

// AssertionError is returned when an expectation fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string       // Expectation being checked
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Expectation failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] t=%d %s %s %q\n", i+1, ev.Time, ev.Level, ev.Source, ev.Message)
		}
	}
	return buf.String()
}

// EvaluateExpect checks a result against the expect clause and returns one
// message per mismatch.
func EvaluateExpect(result *Result, expect Expect) []string {
	var errs []string
	add := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	add(assertPass(result, expect.Pass))
	if expect.EndTime != nil {
		add(assertEndTime(result, *expect.EndTime))
	}
	if expect.Residual != nil {
		add(assertResidual(result, *expect.Residual))
	}

	// Kinds are checked in sorted order so messages are stable.
	kinds := make([]string, 0, len(expect.Events))
	for kind := range expect.Events {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		add(assertEventCount(result, kind, expect.Events[kind]))
	}
	return errs
}

func assertPass(result *Result, want bool) error {
	if result.TestPassed == want {
		return nil
	}
	return &AssertionError{
		Type:     "pass",
		Expected: verdict(want),
		Actual:   fmt.Sprintf("%s with %d failure event(s)", verdict(result.TestPassed), result.Failures),
		Trace:    result.Trace,
	}
}

func assertEndTime(result *Result, want int64) error {
	if result.EndTime == want {
		return nil
	}
	return &AssertionError{
		Type:     "end_time",
		Expected: fmt.Sprintf("simulation ends at %d", want),
		Actual:   fmt.Sprintf("simulation ended at %d", result.EndTime),
		Trace:    result.Trace,
	}
}

func assertResidual(result *Result, want int) error {
	if result.Residual == want {
		return nil
	}
	return &AssertionError{
		Type:     "residual",
		Expected: fmt.Sprintf("%d item(s) left queued", want),
		Actual:   fmt.Sprintf("%d item(s) left queued", result.Residual),
	}
}

func assertEventCount(result *Result, kind string, want int) error {
	got := result.CountKind(kind)
	if got == want {
		return nil
	}
	return &AssertionError{
		Type:     "events",
		Expected: fmt.Sprintf("%d %s event(s)", want, kind),
		Actual:   fmt.Sprintf("%d %s event(s)", got, kind),
		Trace:    result.Trace,
	}
}

func verdict(pass bool) string {
	if pass {
		return "test passes"
	}
	return "test fails"
}
