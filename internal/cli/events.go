package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/settle/internal/store"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Database string
	Kind     string
}

// EventView is the JSON form of a recorded event.
type EventView struct {
	Seq     int    `json:"seq"`
	Time    int64  `json:"time"`
	Level   string `json:"level"`
	Source  string `json:"source,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events <run-id>",
		Short: "Show the events of a recorded run",
		Long: `Show the warning-and-above events a recorded run logged, in order.

Examples:
  settle events --db runs.db 0190a6f2-8c4e-7b1a-9f0e-2d3c4b5a6e7f
  settle events --db runs.db --kind residual_work <run-id>`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showEvents(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default run.database from settle.toml)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only events of this kind")

	return cmd
}

func showEvents(cmd *cobra.Command, opts *EventsOptions, runID string) error {
	st, err := openHistory(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	events, err := st.ReadEvents(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	views := make([]EventView, 0, len(events))
	for _, ev := range events {
		if opts.Kind != "" && ev.Kind != opts.Kind {
			continue
		}
		views = append(views, EventView(ev))
	}

	f := opts.formatter(cmd)
	if f.IsJSON() {
		return f.JSON(true, views)
	}
	if len(views) == 0 {
		f.Printf("No events.\n")
		return nil
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tLEVEL\tSOURCE\tKIND\tMESSAGE")
	for _, ev := range views {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", ev.Seq, ev.Time, ev.Level, ev.Source, ev.Kind, ev.Message)
	}
	return tw.Flush()
}
