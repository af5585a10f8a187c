// Package cli is the taskflow command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const sessionEnv = "TASKFLOW_SESSION"

type rootOptions struct {
	configPath string
	sessionID  string
	verbose    bool
}

func newRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "taskflow",
		Short: "Task board and audit log client",
		Long: `taskflow signs in to the tasks API, shows the board and the audit log,
and serves the same views over HTTP for the browser.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (environment is used when absent)")
	root.PersistentFlags().StringVar(&opts.sessionID, "session", os.Getenv(sessionEnv), "Session id (defaults to $"+sessionEnv+")")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newLoginCmd(opts))
	root.AddCommand(newLogoutCmd(opts))
	root.AddCommand(newBoardCmd(opts))
	root.AddCommand(newMoveCmd(opts))
	root.AddCommand(newAdvanceCmd(opts))
	root.AddCommand(newAuditCmd(opts))
	return root
}

// Execute runs the root command.
func Execute(version string) error {
	if err := newRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
