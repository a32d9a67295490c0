// Package logging defines the severity scale used by testbench components and
// the slog handler that turns severities into pass/fail decisions.
package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

// Severity levels. The standard slog levels are extended with a trace level
// below debug and a critical level above error.
const (
	LevelTrace    = slog.Level(-8)
	LevelDebug    = slog.LevelDebug
	LevelInfo     = slog.LevelInfo
	LevelWarning  = slog.LevelWarn
	LevelError    = slog.LevelError
	LevelCritical = slog.Level(12)
)

// Event kinds attached to records with the KindKey attribute.
const (
	KindKey = "kind"

	KindActivityTimeout       = "activity_timeout"
	KindResidualWork          = "residual_work"
	KindSimulatorFault        = "simulator_fault"
	KindObjectionsOutstanding = "objections_outstanding"
	KindInjected              = "injected"
)

// ComponentKey is the attribute carrying a component's hierarchical path.
const ComponentKey = "component"

// SimTimeKey is the attribute carrying the simulated time of a printed record.
const SimTimeKey = "sim_time"

var levelNames = []struct {
	level slog.Level
	name  string
}{
	{LevelTrace, "trace"},
	{LevelDebug, "debug"},
	{LevelInfo, "info"},
	{LevelWarning, "warning"},
	{LevelError, "error"},
	{LevelCritical, "critical"},
}

// ParseLevel converts a level name to a slog level.
// Accepts trace, debug, info, warning (or warn), error, critical; case-insensitive.
func ParseLevel(s string) (slog.Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warn" {
		name = "warning"
	}
	for _, l := range levelNames {
		if l.name == name {
			return l.level, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

// LevelName returns the lowercase name for a level. Levels between the named
// ones are rendered relative to the nearest lower name, e.g. "error+2".
func LevelName(l slog.Level) string {
	best := levelNames[0]
	for _, cand := range levelNames {
		if cand.level <= l {
			best = cand
		}
	}
	if l < best.level {
		return fmt.Sprintf("%s%d", best.name, int(l-best.level))
	}
	if l == best.level {
		return best.name
	}
	return fmt.Sprintf("%s+%d", best.name, int(l-best.level))
}

// StepBelow returns the named level one step below l. It is used to derive
// the default fail threshold from the kill threshold.
func StepBelow(l slog.Level) slog.Level {
	prev := levelNames[0].level
	for _, cand := range levelNames {
		if cand.level >= l {
			return prev
		}
		prev = cand.level
	}
	return prev
}

// ReplaceLevel is a slog ReplaceAttr hook that prints the custom level names.
func ReplaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			return slog.String(slog.LevelKey, strings.ToUpper(LevelName(lvl)))
		}
	}
	return a
}
