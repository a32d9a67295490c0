package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/settle/internal/config"
	"github.com/roach88/settle/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Scenario string
	Limit    int
}

// RunView is the JSON form of a recorded run.
type RunView struct {
	ID        string `json:"id"`
	Scenario  string `json:"scenario"`
	Seed      uint64 `json:"seed"`
	Passed    bool   `json:"passed"`
	Settled   bool   `json:"settled"`
	EndTime   int64  `json:"end_time"`
	Failures  int    `json:"failures"`
	Residual  int    `json:"residual"`
	StartedAt string `json:"started_at"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs recorded by "settle run --db", newest first.

Examples:
  settle history --db runs.db
  settle history --db runs.db --scenario kill_mid_run --limit 5
  settle history --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default run.database from settle.toml)")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "only runs of this scenario")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs listed (0 for all)")

	return cmd
}

// openHistory opens an existing run database. dbFlag wins over the config.
func openHistory(rootOpts *RootOptions, dbFlag string) (*store.Store, error) {
	path := dbFlag
	if path == "" {
		cfg, err := config.Resolve(rootOpts.Config)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		path = cfg.Database
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no database: pass --db or set run.database in settle.toml")
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func showHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	st, err := openHistory(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	runs, err := st.ListRuns(ctx, opts.Scenario, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	f := opts.formatter(cmd)
	if f.IsJSON() {
		views := make([]RunView, len(runs))
		for i, r := range runs {
			views[i] = RunView{
				ID:        r.ID,
				Scenario:  r.Scenario,
				Seed:      r.Seed,
				Passed:    r.Passed,
				Settled:   r.Settled,
				EndTime:   r.EndTime,
				Failures:  r.Failures,
				Residual:  r.Residual,
				StartedAt: r.StartedAt.Format(time.RFC3339),
			}
		}
		return f.JSON(true, views)
	}

	if len(runs) == 0 {
		f.Printf("No runs recorded.\n")
		return nil
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSCENARIO\tRESULT\tEND\tFAILURES\tRESIDUAL\tSEED\tSTARTED")
	for _, r := range runs {
		result := "pass"
		if !r.Passed {
			result = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.Scenario, result, r.EndTime, r.Failures, r.Residual, r.Seed,
			r.StartedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
