package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tazhate/taskcal/internal/service"
)

func newMonthCmd(opts *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "month [YYYY-MM]",
		Short: "Show one month of tasks (default: the current month)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := service.MonthKey(time.Now())
			if len(args) == 1 {
				key = args[0]
				if _, _, err := service.MonthRange(key); err != nil {
					return fmt.Errorf("month must look like 2024-03: %w", err)
				}
			}

			tasks := opts.app.Months.GetOrFetch(cmdContext(cmd), key, force)
			return opts.print(cmd, tasks, func(w io.Writer) { printTasks(w, tasks) })
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Refetch even when cached")
	return cmd
}
