package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tazhate/taskcal/internal/clients/api"
	"github.com/tazhate/taskcal/internal/domain"
)

func newCalendarsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calendars",
		Aliases: []string{"cal"},
		Short:   "List and configure calendars",
	}

	cmd.AddCommand(newCalendarsListCmd(opts))
	cmd.AddCommand(newCalendarsResourcesCmd(opts))
	cmd.AddCommand(newCalendarsToggleCmd(opts))
	cmd.AddCommand(newCalendarsConfigCmd(opts))
	return cmd
}

func printCalendars(w io.Writer, cals []domain.CalendarSource) {
	if len(cals) == 0 {
		fmt.Fprintln(w, "No calendars.")
		return
	}
	fmt.Fprintln(w, "ID\tNAME\tCOLOR\tSHOWN\tSHARED")
	for _, c := range cals {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Color, yesNo(c.Display), yesNo(c.IsShared()))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func newCalendarsListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List calendars",
		RunE: func(cmd *cobra.Command, args []string) error {
			cals, err := opts.app.Coordinator.Calendars(cmdContext(cmd))
			if err != nil {
				return err
			}
			return opts.print(cmd, cals, func(w io.Writer) { printCalendars(w, cals) })
		},
	}
}

func newCalendarsResourcesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List calendars booking rooms or equipment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cals, err := opts.app.Coordinator.Resources(cmdContext(cmd))
			if err != nil {
				return err
			}
			return opts.print(cmd, cals, func(w io.Writer) { printCalendars(w, cals) })
		},
	}
}

func newCalendarsToggleCmd(opts *options) *cobra.Command {
	var display bool

	cmd := &cobra.Command{
		Use:   "toggle <id|name>",
		Short: "Show or hide a calendar's events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			co := opts.app.Coordinator

			cal, err := co.Calendar(ctx, args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("display") {
				display = !cal.Display
			}

			updated, err := co.ToggleCalendar(ctx, cal.ID, display)
			if err != nil {
				return err
			}
			return opts.print(cmd, updated, func(w io.Writer) {
				printCalendars(w, []domain.CalendarSource{updated})
			})
		},
	}

	cmd.Flags().BoolVar(&display, "display", true, "Show (true) or hide (false); flips the current value when omitted")
	return cmd
}

func newCalendarsConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the CalDAV account configured on the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.app.API == nil {
				return errNeedsREST
			}
			conf, err := opts.app.API.GetCalDAVConfig(cmdContext(cmd))
			if errors.Is(err, api.ErrNotConfigured) {
				fmt.Fprintln(cmd.OutOrStdout(), "No CalDAV account configured.")
				return nil
			}
			if err != nil {
				return err
			}
			return opts.print(cmd, conf, func(w io.Writer) {
				fmt.Fprintf(w, "Server\t%s\nUser\t%s\nEnabled\t%s\n", conf.ServerURL, conf.Username, yesNo(conf.Enabled))
			})
		},
	}
}
