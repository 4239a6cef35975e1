package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newCRMCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crm",
		Short: "Clients and affairs events can be linked to",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clients",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.app.API == nil {
				return errNeedsREST
			}
			clients, err := opts.app.API.ListClients(cmdContext(cmd))
			if err != nil {
				return err
			}
			return opts.print(cmd, clients, func(w io.Writer) {
				fmt.Fprintln(w, "ID\tNAME")
				for _, c := range clients {
					fmt.Fprintf(w, "%d\t%s\n", c.ID, c.Name)
				}
			})
		},
	})

	var clientID int64
	affairs := &cobra.Command{
		Use:   "affairs",
		Short: "List affairs, optionally of one client",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.app.API == nil {
				return errNeedsREST
			}
			var filter *int64
			if cmd.Flags().Changed("client") {
				filter = &clientID
			}
			list, err := opts.app.API.ListAffairs(cmdContext(cmd), filter)
			if err != nil {
				return err
			}
			return opts.print(cmd, list, func(w io.Writer) {
				fmt.Fprintln(w, "ID\tTITLE")
				for _, a := range list {
					fmt.Fprintf(w, "%d\t%s\n", a.ID, a.Title)
				}
			})
		},
	}
	affairs.Flags().Int64Var(&clientID, "client", 0, "Client id")
	cmd.AddCommand(affairs)

	return cmd
}
