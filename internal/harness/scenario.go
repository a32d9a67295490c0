package harness

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/settle/internal/logging"
)

//go:embed schema.cue
var schemaSource string

// Scenario defines a stream testbench run and its expected outcome.
// Field tags serve both the YAML decoder and the CUE encoder.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name" json:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Seed seeds the test's random source. Zero means 1.
	Seed uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`

	// ClockPeriod is the full clock period in time steps. Must be even.
	ClockPeriod int64 `yaml:"clock_period" json:"clock_period"`

	// Stream configures the producer and the driver.
	Stream Stream `yaml:"stream" json:"stream"`

	// Levels overrides the severity thresholds.
	Levels *Levels `yaml:"levels,omitempty" json:"levels,omitempty"`

	// Inject logs records at given clock cycles.
	Inject []Injection `yaml:"inject,omitempty" json:"inject,omitempty"`

	// Expect is checked against the run's result.
	Expect Expect `yaml:"expect" json:"expect"`
}

// Stream configures the clocked producer/driver pair.
type Stream struct {
	Items       int  `yaml:"items" json:"items"`
	ArrivalGap  int  `yaml:"arrival_gap,omitempty" json:"arrival_gap,omitempty"`
	Jitter      int  `yaml:"jitter,omitempty" json:"jitter,omitempty"`
	DriveCycles int  `yaml:"drive_cycles,omitempty" json:"drive_cycles,omitempty"`
	DropDelay   int  `yaml:"drop_delay,omitempty" json:"drop_delay,omitempty"`
	Timeout     int  `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	StallAfter  int  `yaml:"stall_after,omitempty" json:"stall_after,omitempty"`
	CheckEmpty  bool `yaml:"check_empty,omitempty" json:"check_empty,omitempty"`
}

// Levels holds severity threshold names. Empty fields keep the default.
type Levels struct {
	Kill  string `yaml:"kill,omitempty" json:"kill,omitempty"`
	Fail  string `yaml:"fail,omitempty" json:"fail,omitempty"`
	Print string `yaml:"print,omitempty" json:"print,omitempty"`
}

// Injection logs Message at Level on the given rising edge.
type Injection struct {
	Cycle   int    `yaml:"cycle" json:"cycle"`
	Level   string `yaml:"level" json:"level"`
	Message string `yaml:"message" json:"message"`
}

// Expect lists the checks applied to a Result.
type Expect struct {
	// Pass is the expected orchestrator verdict.
	Pass bool `yaml:"pass" json:"pass"`

	// EndTime is the expected simulated end time, if set.
	EndTime *int64 `yaml:"end_time,omitempty" json:"end_time,omitempty"`

	// Events maps event kinds to expected trace counts.
	Events map[string]int `yaml:"events,omitempty" json:"events,omitempty"`

	// Residual is the expected number of items left queued, if set.
	Residual *int `yaml:"residual,omitempty" json:"residual,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails schema validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "drop_dealy:".
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

// validateScenario checks s against the CUE schema, then applies the rules
// the schema cannot express.
func validateScenario(s *Scenario) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Scenario"))

	v := ctx.Encode(s)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return err
	}

	if s.ClockPeriod%2 != 0 {
		return fmt.Errorf("clock_period must be even, got %d", s.ClockPeriod)
	}
	if s.Levels != nil {
		if err := s.Levels.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Levels) validate() error {
	kill := logging.LevelCritical
	if l.Kill != "" {
		k, err := logging.ParseLevel(l.Kill)
		if err != nil {
			return fmt.Errorf("levels.kill: %w", err)
		}
		kill = k
	}
	if l.Fail == "" {
		return nil
	}
	fail, err := logging.ParseLevel(l.Fail)
	if err != nil {
		return fmt.Errorf("levels.fail: %w", err)
	}
	if fail > kill {
		return fmt.Errorf("levels.fail (%s) is above levels.kill (%s)",
			logging.LevelName(fail), logging.LevelName(kill))
	}
	return nil
}
