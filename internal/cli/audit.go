package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskflow/audit"
	"taskflow/domain"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var (
		search string
		action string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			action = strings.ToUpper(strings.TrimSpace(action))
			if action != "" && action != audit.ActionAll {
				if _, ok := domain.ParseAction(action); !ok {
					return fmt.Errorf("unknown action %q", action)
				}
			}
			return withApp(cmd.Context(), opts, false, func(a *app) error {
				ws, err := a.workspace(cmd.Context(), opts.sessionID)
				if err != nil {
					return err
				}
				if _, err := ws.Audit.Load(cmd.Context()); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if limit > 0 {
					fmt.Fprintln(out, renderRecent(ws.Audit.Recent(limit)))
					return nil
				}
				fmt.Fprintln(out, renderAudit(ws.Audit.SetFilter(audit.Filter{Action: action, Query: search})))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Match actor, entity, title or changed fields")
	cmd.Flags().StringVar(&action, "action", "", "Only show CREATE, UPDATE or DELETE entries")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the newest entries, ignoring filters")
	return cmd
}
