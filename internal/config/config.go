// Package config loads settle.toml, the optional per-project defaults for
// scenario runs. Command-line flags override every value it sets.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/roach88/settle/internal/logging"
)

// DefaultPath is looked up in the working directory when no path is given.
const DefaultPath = "settle.toml"

// Config is the resolved run configuration.
type Config struct {
	// Severity thresholds by name; empty keeps the scenario's own setting.
	Kill  string
	Fail  string
	Print string

	// Seed overrides every scenario's seed when non-zero.
	Seed uint64

	// Parallel bounds how many scenarios run at once.
	Parallel int

	// Database is the run history path; empty disables history.
	Database string
}

type fileConfig struct {
	Levels struct {
		Kill  string `toml:"kill"`
		Fail  string `toml:"fail"`
		Print string `toml:"print"`
	} `toml:"levels"`
	Run struct {
		Seed     int64  `toml:"seed"`
		Parallel int    `toml:"parallel"`
		Database string `toml:"database"`
	} `toml:"run"`
}

// Default returns the configuration used without a file.
func Default() Config {
	return Config{Parallel: runtime.GOMAXPROCS(0)}
}

// Load reads a TOML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	if meta.IsDefined("levels", "kill") {
		cfg.Kill = strings.TrimSpace(raw.Levels.Kill)
	}
	if meta.IsDefined("levels", "fail") {
		cfg.Fail = strings.TrimSpace(raw.Levels.Fail)
	}
	if meta.IsDefined("levels", "print") {
		cfg.Print = strings.TrimSpace(raw.Levels.Print)
	}
	if meta.IsDefined("run", "seed") {
		if raw.Run.Seed < 0 {
			return Config{}, fmt.Errorf("load config %s: run.seed must not be negative", path)
		}
		cfg.Seed = uint64(raw.Run.Seed)
	}
	if meta.IsDefined("run", "parallel") {
		cfg.Parallel = raw.Run.Parallel
	}
	if meta.IsDefined("run", "database") {
		cfg.Database = strings.TrimSpace(raw.Run.Database)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve loads path, or DefaultPath if path is empty and that file exists,
// or returns Default.
func Resolve(path string) (Config, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultPath); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(DefaultPath)
}

// Validate checks level names and parallelism.
func (c Config) Validate() error {
	for _, lv := range []struct{ key, name string }{
		{"levels.kill", c.Kill},
		{"levels.fail", c.Fail},
		{"levels.print", c.Print},
	} {
		if lv.name == "" {
			continue
		}
		if _, err := logging.ParseLevel(lv.name); err != nil {
			return fmt.Errorf("%s: %w", lv.key, err)
		}
	}
	if c.Parallel < 1 {
		return fmt.Errorf("run.parallel must be at least 1, got %d", c.Parallel)
	}
	return nil
}
