package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/settle/internal/config"
	"github.com/roach88/settle/internal/harness"
	"github.com/roach88/settle/internal/store"
)

// watchDebounce batches the burst of events an editor save produces.
const watchDebounce = 100 * time.Millisecond

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database   string
	Parallel   int
	Watch      bool
	Seed       uint64
	KillLevel  string
	FailLevel  string
	PrintLevel string
	Filter     string
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	Pass       bool     `json:"pass"`
	TestPassed bool     `json:"test_passed"`
	EndTime    int64    `json:"end_time"`
	Seed       uint64   `json:"seed"`
	RunID      string   `json:"run_id,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// RunReport holds the outcome of a batch of scenarios.
type RunReport struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <paths...>",
		Short: "Run scenario files",
		Long: `Run scenario files and check each against its expectations.

Paths may be scenario files or directories, which are searched for
.yaml and .yml files. Each scenario runs on its own simulation kernel,
so up to --parallel scenarios run at once.

Flags override settle.toml, which overrides each scenario's own levels
and seed.

Exit codes:
  0 - All scenarios met their expectations
  1 - One or more scenarios did not
  2 - Command error (invalid paths, database errors, etc.)

Examples:
  settle run ./scenarios
  settle run ./scenarios --filter "kill_*" --kill-level error
  settle run ./scenarios --db runs.db --parallel 4
  settle run ./scenarios --watch`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record runs in this SQLite database")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 0, "maximum scenarios run at once (default GOMAXPROCS)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "re-run scenario files when they change")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "override every scenario's seed")
	cmd.Flags().StringVar(&opts.KillLevel, "kill-level", "", "severity that ends a run")
	cmd.Flags().StringVar(&opts.FailLevel, "fail-level", "", "severity that fails a run")
	cmd.Flags().StringVar(&opts.PrintLevel, "print-level", "", "severity printed with --verbose")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

// resolveRunConfig layers changed flags over settle.toml.
func resolveRunConfig(cmd *cobra.Command, opts *RunOptions) (config.Config, error) {
	cfg, err := config.Resolve(opts.Config)
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = opts.Database
	}
	if flags.Changed("parallel") {
		cfg.Parallel = opts.Parallel
	}
	if flags.Changed("seed") {
		cfg.Seed = opts.Seed
	}
	if flags.Changed("kill-level") {
		cfg.Kill = opts.KillLevel
	}
	if flags.Changed("fail-level") {
		cfg.Fail = opts.FailLevel
	}
	if flags.Changed("print-level") {
		cfg.Print = opts.PrintLevel
	}

	if err := cfg.Validate(); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid flags", err)
	}
	return cfg, nil
}

func harnessOptions(cfg config.Config) []harness.Option {
	var hopts []harness.Option
	if cfg.Seed != 0 {
		hopts = append(hopts, harness.WithSeed(cfg.Seed))
	}
	levels := harness.Levels{Kill: cfg.Kill, Fail: cfg.Fail, Print: cfg.Print}
	if levels != (harness.Levels{}) {
		hopts = append(hopts, harness.WithLevels(levels))
	}
	return hopts
}

func runScenarios(cmd *cobra.Command, opts *RunOptions, args []string) error {
	cfg, err := resolveRunConfig(cmd, opts)
	if err != nil {
		return err
	}
	f := opts.formatter(cmd)

	files, err := findScenarioFiles(args, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if len(files) == 0 {
		if f.IsJSON() {
			return f.JSON(true, RunReport{Scenarios: []ScenarioResult{}})
		}
		f.Printf("No scenarios found.\n")
		return nil
	}

	var st *store.Store
	if cfg.Database != "" {
		st, err = store.Open(cfg.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	batch := func(ctx context.Context, files []string) error {
		slog.Debug("running scenarios", "files", len(files), "parallel", cfg.Parallel)
		outcomes := runBatch(ctx, files, cfg, opts.Verbose)
		if err := recordRuns(ctx, st, outcomes); err != nil {
			return err
		}
		return report(f, outcomes)
	}

	if opts.Watch {
		return watchScenarios(ctx, f, files, batch)
	}
	return batch(ctx, files)
}

// outcome pairs a scenario summary with the full result, when it ran.
type outcome struct {
	summary ScenarioResult
	result  *harness.Result
	log     *bytes.Buffer
}

// runBatch runs files with at most cfg.Parallel in flight. Results keep the
// order of files.
func runBatch(ctx context.Context, files []string, cfg config.Config, verbose bool) []outcome {
	outcomes := make([]outcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallel)
	for i, path := range files {
		g.Go(func() error {
			outcomes[i] = runOne(gctx, path, cfg, verbose)
			return nil
		})
	}
	_ = g.Wait() // runOne reports failures in its outcome

	return outcomes
}

func runOne(ctx context.Context, path string, cfg config.Config, verbose bool) outcome {
	base := filepath.Base(path)
	out := outcome{summary: ScenarioResult{
		Name: strings.TrimSuffix(base, filepath.Ext(base)),
		Path: path,
	}}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		out.summary.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return out
	}
	out.summary.Name = scenario.Name

	hopts := harnessOptions(cfg)
	if verbose {
		out.log = &bytes.Buffer{}
		hopts = append(hopts, harness.WithOutput(out.log))
	}

	result, err := harness.Run(ctx, scenario, hopts...)
	if err != nil {
		out.summary.Errors = []string{fmt.Sprintf("failed to run scenario: %v", err)}
		return out
	}

	out.result = result
	out.summary.Pass = result.Pass
	out.summary.TestPassed = result.TestPassed
	out.summary.EndTime = result.EndTime
	out.summary.Seed = result.Seed
	out.summary.Errors = result.Errors
	return out
}

// recordRuns writes every scenario that ran to st, if set.
func recordRuns(ctx context.Context, st *store.Store, outcomes []outcome) error {
	if st == nil {
		return nil
	}
	for i := range outcomes {
		res := outcomes[i].result
		if res == nil {
			continue
		}
		events := make([]store.Event, len(res.Trace))
		for j, ev := range res.Trace {
			events[j] = store.Event{
				Time:    ev.Time,
				Level:   ev.Level,
				Source:  ev.Source,
				Kind:    ev.Kind,
				Message: ev.Message,
			}
		}
		run, err := st.WriteRun(ctx, store.Run{
			Scenario: outcomes[i].summary.Name,
			Seed:     res.Seed,
			Passed:   res.TestPassed,
			Settled:  res.Settled,
			EndTime:  res.EndTime,
			Failures: res.Failures,
			Residual: res.Residual,
		}, events)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		outcomes[i].summary.RunID = run.ID
		slog.Debug("recorded run", "scenario", run.Scenario, "run_id", run.ID)
	}
	return nil
}

// report prints a batch and returns an ExitFailure error if any scenario
// failed.
func report(f *OutputFormatter, outcomes []outcome) error {
	rep := RunReport{
		Scenarios: make([]ScenarioResult, 0, len(outcomes)),
		Total:     len(outcomes),
	}
	for _, o := range outcomes {
		rep.Scenarios = append(rep.Scenarios, o.summary)
		if o.summary.Pass {
			rep.Passed++
		} else {
			rep.Failed++
		}
		if o.log != nil && o.log.Len() > 0 {
			fmt.Fprintf(f.GetErrWriter(), "--- %s\n%s", o.summary.Name, o.log.String())
		}
	}

	if f.IsJSON() {
		if err := f.JSON(rep.Failed == 0, rep); err != nil {
			return err
		}
	} else {
		for _, s := range rep.Scenarios {
			if s.Pass {
				f.Printf("✓ %s  end=%d seed=%d\n", s.Name, s.EndTime, s.Seed)
				continue
			}
			f.Printf("✗ %s\n", s.Name)
			for _, e := range s.Errors {
				f.Printf("  %s\n", strings.TrimRight(e, "\n"))
			}
		}
		f.Printf("\n%d passed, %d failed, %d total\n", rep.Passed, rep.Failed, rep.Total)
	}

	if rep.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", rep.Failed, rep.Total))
	}
	return nil
}

// watchScenarios runs files once, then re-runs each file that changes until
// ctx is cancelled. Scenario failures do not stop the watch.
func watchScenarios(ctx context.Context, f *OutputFormatter, files []string, batch func(context.Context, []string) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start watcher", err)
	}
	defer watcher.Close()

	watched := make(map[string]struct{}, len(files))
	var dirs []string
	for _, path := range files {
		watched[filepath.Clean(path)] = struct{}{}
		dir := filepath.Dir(path)
		if !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	// Directories, not files: editors often save by renaming over the file.
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return WrapExitError(ExitCommandError, "failed to watch "+dir, err)
		}
	}

	rerun := func(files []string) error {
		err := batch(ctx, files)
		if GetExitCode(err) == ExitFailure {
			return nil
		}
		return err
	}

	if err := rerun(files); err != nil {
		return err
	}
	f.Printf("Watching %d scenario file(s). Press Ctrl-C to stop.\n", len(files))

	changed := make(map[string]struct{})
	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write | fsnotify.Create) {
				continue
			}
			name := filepath.Clean(ev.Name)
			if _, ok := watched[name]; !ok {
				continue
			}
			changed[name] = struct{}{}
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)

		case <-timer.C:
			paths := make([]string, 0, len(changed))
			for path := range changed {
				paths = append(paths, path)
			}
			slices.Sort(paths)
			clear(changed)

			f.Printf("\nChanged: %s\n", strings.Join(paths, ", "))
			if err := rerun(paths); err != nil {
				return err
			}
		}
	}
}

// findScenarioFiles expands paths into scenario files. Directories are
// searched recursively for .yaml and .yml files; files are taken as given.
func findScenarioFiles(paths []string, filter string) ([]string, error) {
	var files []string
	add := func(path string) error {
		if filter != "" {
			base := filepath.Base(path)
			matched, err := filepath.Match(filter, strings.TrimSuffix(base, filepath.Ext(base)))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		path = filepath.Clean(path)
		if !slices.Contains(files, path) {
			files = append(files, path)
		}
		return nil
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("scenario path not found: %s", root)
		}
		if !info.IsDir() {
			if err := add(root); err != nil {
				return nil, err
			}
			continue
		}

		err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			ext := filepath.Ext(path)
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}
			return add(path)
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
