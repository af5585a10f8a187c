package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var (
		email    string
		password string
		register bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and print the session id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("TASKFLOW_PASSWORD")
			}
			return withApp(cmd.Context(), opts, false, func(a *app) error {
				open := a.sessions.Login
				if register {
					open = a.sessions.Register
				}
				s, err := open(cmd.Context(), email, password)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Signed in as %s (%s)\n", s.User.Email, s.User.Role)
				fmt.Fprintf(out, "export %s=%s\n", sessionEnv, s.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (defaults to $TASKFLOW_PASSWORD)")
	cmd.Flags().BoolVar(&register, "register", false, "Create the account first")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.sessionID == "" {
				return errors.New("no session to close")
			}
			return withApp(cmd.Context(), opts, false, func(a *app) error {
				if err := a.sessions.Logout(cmd.Context(), opts.sessionID); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return nil
			})
		},
	}
}
