// Package cli implements the taskcal command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tazhate/taskcal/config"
	"github.com/tazhate/taskcal/internal/app"
	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/logger"
)

var errNeedsREST = errors.New("this command needs the rest or legacy backend")

type options struct {
	configPath string
	jsonOut    bool

	// set by the root pre-run
	app *app.App
}

func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "taskcal",
		Short:        "Calendar and task cache for a CalDAV-backed agenda",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Sign in and list this week
  taskcal login --username marie
  taskcal events list

  # Create a weekly series in two calendars
  taskcal events create --title Yoga --start "2024-01-08 18:00" --repeat weekly --count 10 --calendars Perso,Famille

  # Serve /metrics and sync every 15 minutes
  taskcal serve
`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.open(cmdContext(cmd))
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.close(cmdContext(cmd))
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print JSON instead of tables")

	cmd.AddCommand(newLoginCmd(opts))
	cmd.AddCommand(newLogoutCmd(opts))
	cmd.AddCommand(newCalendarsCmd(opts))
	cmd.AddCommand(newEventsCmd(opts))
	cmd.AddCommand(newMonthCmd(opts))
	cmd.AddCommand(newSyncCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newCRMCmd(opts))

	return cmd
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (o *options) open(ctx context.Context) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// wall-clock values are entered and shown in the configured zone
	time.Local = cfg.Timezone

	a, err := app.New(cfg, logger.New(cfg.LogLevel, cfg.LogFormat))
	if err != nil {
		return err
	}
	if err := a.Restore(ctx); err != nil {
		a.Close()
		return err
	}
	o.app = a
	return nil
}

func (o *options) close(ctx context.Context) error {
	if o.app == nil {
		return nil
	}
	defer func() {
		o.app.Close()
		o.app = nil
	}()
	return o.app.Persist(ctx)
}

// print writes v as JSON with --json, otherwise calls table.
func (o *options) print(cmd *cobra.Command, v interface{}, table func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	if o.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

func printTasks(w io.Writer, tasks []domain.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	fmt.Fprintln(w, "ID\tDATE\tTIME\tTITLE\tCALENDAR")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.StartDate.Format("Mon 02 Jan"), t.FormatTime(), t.Title, t.CalendarSourceName)
	}
}

func parseWhen(s string) (time.Time, error) {
	lt, err := domain.ParseLocalTime(strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return lt.Time, nil
}
