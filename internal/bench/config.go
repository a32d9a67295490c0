package bench

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/settle/internal/logging"
	"github.com/roach88/settle/internal/sim"
)

// Config holds the severity thresholds and the seed of a Test.
type Config struct {
	// KillLevel ends the simulation at once and fails the test.
	KillLevel slog.Level
	// FailLevel fails the test but lets the run continue.
	FailLevel slog.Level
	// PrintLevel controls what reaches Output. It never affects pass/fail.
	PrintLevel slog.Level
	// Seed seeds the test's random source.
	Seed uint64
	// Output receives printed records. Nil disables printing.
	Output io.Writer
}

// DefaultConfig returns kill=critical, fail=error, print=info, seed=1,
// printing to stderr.
func DefaultConfig() Config {
	return Config{
		KillLevel:  logging.LevelCritical,
		FailLevel:  logging.StepBelow(logging.LevelCritical),
		PrintLevel: logging.LevelInfo,
		Seed:       1,
		Output:     os.Stderr,
	}
}

// Validate checks that FailLevel does not exceed KillLevel.
func (c Config) Validate() error {
	if c.FailLevel > c.KillLevel {
		return fmt.Errorf("fail level %s is above kill level %s",
			logging.LevelName(c.FailLevel), logging.LevelName(c.KillLevel))
	}
	return nil
}

type settings struct {
	cfg     Config
	failSet bool
	body    func(p *sim.Process) error
	observe func(logging.Record)
}

// Option configures a Test.
type Option func(*settings)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(s *settings) {
		s.cfg = cfg
		s.failSet = true
	}
}

// WithKillLevel sets the kill threshold. Unless a fail level is also given,
// the fail threshold follows at one step below it.
func WithKillLevel(l slog.Level) Option {
	return func(s *settings) {
		s.cfg.KillLevel = l
		if !s.failSet {
			s.cfg.FailLevel = logging.StepBelow(l)
		}
	}
}

// WithFailLevel sets the fail threshold.
func WithFailLevel(l slog.Level) Option {
	return func(s *settings) {
		s.cfg.FailLevel = l
		s.failSet = true
	}
}

// WithPrintLevel sets the print threshold.
func WithPrintLevel(l slog.Level) Option {
	return func(s *settings) {
		s.cfg.PrintLevel = l
	}
}

// WithSeed seeds the random source.
func WithSeed(seed uint64) Option {
	return func(s *settings) {
		s.cfg.Seed = seed
	}
}

// WithOutput sets where printed records go. Nil disables printing.
func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		s.cfg.Output = w
	}
}

// WithBody runs fn as the test's stimulus. The body holds a "test" objection
// from before the simulation starts until fn returns.
func WithBody(fn func(p *sim.Process) error) Option {
	return func(s *settings) {
		s.body = fn
	}
}

// WithObserver reports every record the severity monitor handles.
func WithObserver(fn func(logging.Record)) Option {
	return func(s *settings) {
		s.observe = fn
	}
}
