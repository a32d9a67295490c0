package harness

// TraceEvent is one severity record observed during a run.
type TraceEvent struct {
	Time    int64  `json:"time"`
	Level   string `json:"level"`
	Source  string `json:"source,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates that every expect clause matched.
	Pass bool `json:"pass"`

	// TestPassed is the orchestrator's own verdict.
	TestPassed bool `json:"test_passed"`

	// Seed is the seed the run used after overrides.
	Seed uint64 `json:"seed"`

	// EndTime is the simulated time at which the kernel ended.
	EndTime int64 `json:"end_time"`

	// Settled reports whether every objection dropped before the end.
	Settled bool `json:"settled"`

	// Failures counts records at or above the fail level.
	Failures int `json:"failures"`

	// Residual is the number of items left in the driver's queue.
	Residual int `json:"residual"`

	// Trace holds every record at warning level or above, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation mismatches. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds an expectation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// CountKind returns how many trace events carry kind.
func (r *Result) CountKind(kind string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
