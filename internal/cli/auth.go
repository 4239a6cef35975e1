package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newLoginCmd(opts *options) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the REST backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.app
			if a.API == nil {
				return errNeedsREST
			}
			if password == "" {
				password = os.Getenv("TASKCAL_PASSWORD")
			}
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password (or TASKCAL_PASSWORD) are required")
			}

			ctx := cmdContext(cmd)
			if _, err := a.API.Login(ctx, username, password); err != nil {
				return fmt.Errorf("login: %w", err)
			}

			name := username
			if p, err := a.API.Profile(ctx); err == nil && p.FirstName != "" {
				name = p.FirstName
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Account user name")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	return cmd
}

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session and the cached events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.app.API == nil {
				return errNeedsREST
			}
			opts.app.API.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
