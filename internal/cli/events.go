package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/service"
)

func newEventsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "events",
		Aliases: []string{"ev"},
		Short:   "List and change events",
	}

	cmd.AddCommand(newEventsListCmd(opts))
	cmd.AddCommand(newEventsCreateCmd(opts))
	cmd.AddCommand(newEventsMoveCmd(opts))
	cmd.AddCommand(newEventsEditCmd(opts))
	cmd.AddCommand(newEventsDeleteCmd(opts))
	return cmd
}

// cached returns a task of the session cache, with a hint when it was
// never listed.
func cached(opts *options, id string) (domain.Task, error) {
	t, ok := opts.app.Coordinator.Get(domain.TaskID(id))
	if !ok {
		return domain.Task{}, fmt.Errorf("event %s is not cached, list its dates first: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

func newEventsListCmd(opts *options) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events between two days (default: the next 7 days)",
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			end := start.AddDate(0, 0, 7)
			var err error
			if from != "" {
				if start, err = parseWhen(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				if to == "" {
					end = start.AddDate(0, 0, 7)
				}
			}
			if to != "" {
				if end, err = parseWhen(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}

			tasks := opts.app.Coordinator.Events(cmdContext(cmd), start, end)
			return opts.print(cmd, tasks, func(w io.Writer) { printTasks(w, tasks) })
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last day (YYYY-MM-DD)")
	return cmd
}

type createFlags struct {
	title, description, location string
	start, end                   string
	calendar                     string
	calendars                    []string
	repeat                       string
	count, interval              int
	until, unit                  string
	dates                        []string
	clientID, affairID           int64
}

func (f *createFlags) input(cmd *cobra.Command, opts *options) (service.BulkInput, error) {
	ctx := cmdContext(cmd)
	var in service.BulkInput

	start, err := parseWhen(f.start)
	if err != nil {
		return in, fmt.Errorf("--start: %w", err)
	}
	end := start.Add(time.Hour)
	if f.end != "" {
		if end, err = parseWhen(f.end); err != nil {
			return in, fmt.Errorf("--end: %w", err)
		}
	}

	in.TaskInput = domain.TaskInput{
		Title:       f.title,
		Description: f.description,
		Location:    f.location,
		Start:       start,
		End:         end,
		Recurrence: domain.Recurrence{
			Type:     domain.RecurrenceType(f.repeat),
			Count:    f.count,
			Interval: f.interval,
			Unit:     domain.Unit(f.unit),
		},
	}
	if f.clientID != 0 {
		in.ClientID = &f.clientID
	}
	if f.affairID != 0 {
		in.AffairID = &f.affairID
	}

	r := &in.Recurrence
	switch {
	case f.count > 0:
		r.EndType = domain.EndCount
	case f.until != "":
		r.EndType = domain.EndUntil
		if r.Until, err = parseWhen(f.until); err != nil {
			return in, fmt.Errorf("--until: %w", err)
		}
	case f.repeat != "":
		r.EndType = domain.EndNever
	}
	for _, d := range f.dates {
		day, err := parseWhen(d)
		if err != nil {
			return in, fmt.Errorf("--dates: %w", err)
		}
		r.Dates = append(r.Dates, day)
	}

	if f.calendar != "" {
		if in.Calendar, err = opts.app.Coordinator.Calendar(ctx, f.calendar); err != nil {
			return in, err
		}
	}
	for _, ref := range f.calendars {
		cal, err := opts.app.Coordinator.Calendar(ctx, ref)
		if err != nil {
			return in, err
		}
		in.Calendars = append(in.Calendars, cal)
	}
	return in, nil
}

func newEventsCreateCmd(opts *options) *cobra.Command {
	f := &createFlags{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event, or a series with --repeat or --dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := f.input(cmd, opts)
			if err != nil {
				return err
			}
			ctx := cmdContext(cmd)
			co := opts.app.Coordinator

			if in.Recurrence.IsSingle() && len(in.Calendars) <= 1 {
				if len(in.Calendars) == 1 {
					in.Calendar = in.Calendars[0]
				}
				out := co.Create(ctx, in.TaskInput)
				task, err := out.Result()
				if err != nil {
					return err
				}
				return opts.print(cmd, task, func(w io.Writer) { printTasks(w, []domain.Task{task}) })
			}

			created, err := co.BulkCreate(ctx, in)
			if len(created) == 0 && err != nil {
				return err
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "some calendars failed: %v\n", err)
			}
			return opts.print(cmd, created, func(w io.Writer) { printTasks(w, created) })
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.title, "title", "", "Title (blank gives a placeholder)")
	fl.StringVar(&f.description, "description", "", "Description (HTML)")
	fl.StringVar(&f.location, "location", "", "Location")
	fl.StringVar(&f.start, "start", "", "Start, YYYY-MM-DD HH:MM")
	fl.StringVar(&f.end, "end", "", "End (default: start + 1h)")
	fl.StringVar(&f.calendar, "calendar", "", "Target calendar id or name")
	fl.StringSliceVar(&f.calendars, "calendars", nil, "Several target calendars (comma separated)")
	fl.StringVar(&f.repeat, "repeat", "", "daily, weekly, biweekly, triweekly, monthly, yearly or custom")
	fl.IntVar(&f.count, "count", 0, "Number of occurrences")
	fl.StringVar(&f.until, "until", "", "Last day of the series")
	fl.IntVar(&f.interval, "interval", 0, "Interval for --repeat custom")
	fl.StringVar(&f.unit, "unit", "", "days, weeks, months or years for --repeat custom")
	fl.StringSliceVar(&f.dates, "dates", nil, "Picked days instead of a rule (comma separated)")
	fl.Int64Var(&f.clientID, "client", 0, "Linked CRM client id")
	fl.Int64Var(&f.affairID, "affair", 0, "Linked CRM affair id")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newEventsMoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <when>",
		Short: "Reschedule an event; a bare date keeps its time of day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := cached(opts, args[0]); err != nil {
				return err
			}
			drop, err := parseWhen(args[1])
			if err != nil {
				return err
			}

			out := opts.app.Coordinator.Move(cmdContext(cmd), domain.TaskID(args[0]), drop)
			task, err := out.Result()
			if err != nil {
				return err
			}
			return opts.print(cmd, task, func(w io.Writer) { printTasks(w, []domain.Task{task}) })
		},
	}
}

func newEventsEditCmd(opts *options) *cobra.Command {
	var title, description, location string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change an event's text fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := cached(opts, args[0]); err != nil {
				return err
			}

			var patch domain.TaskPatch
			fl := cmd.Flags()
			if fl.Changed("title") {
				patch.Title = &title
			}
			if fl.Changed("description") {
				patch.Description = &description
			}
			if fl.Changed("location") {
				patch.Location = &location
			}
			if patch == (domain.TaskPatch{}) {
				return errors.New("nothing to change")
			}

			task, err := opts.app.Coordinator.Edit(cmdContext(cmd), domain.TaskID(args[0]), patch)
			if err != nil {
				return err
			}
			return opts.print(cmd, task, func(w io.Writer) { printTasks(w, []domain.Task{task}) })
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description (HTML)")
	cmd.Flags().StringVar(&location, "location", "", "New location")
	return cmd
}

func newEventsDeleteCmd(opts *options) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an event, or one occurrence or all of a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := cached(opts, args[0]); err != nil {
				return err
			}
			s, ok := service.ParseScope(scope)
			if !ok {
				return fmt.Errorf("--scope must be occurrence or series")
			}

			err := opts.app.Coordinator.Delete(cmdContext(cmd), domain.TaskID(args[0]), s)
			if errors.Is(err, domain.ErrScopeRequired) {
				return fmt.Errorf("%w (use --scope occurrence|series)", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "occurrence or series, for recurring events")
	return cmd
}
