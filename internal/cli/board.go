package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskflow/board"
	"taskflow/domain"
)

func newBoardCmd(opts *rootOptions) *cobra.Command {
	var (
		search string
		status string
		mine   bool
	)
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the task board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := board.Filter{Query: search, MyTasksOnly: mine}
			if status != "" {
				s, ok := domain.ParseStatus(status)
				if !ok {
					return fmt.Errorf("unknown status %q", status)
				}
				f.Status = s
			}
			return withApp(cmd.Context(), opts, false, func(a *app) error {
				ws, err := a.workspace(cmd.Context(), opts.sessionID)
				if err != nil {
					return err
				}
				if _, err := ws.Board.Load(cmd.Context()); err != nil {
					return err
				}
				v := ws.Board.ApplyFilters(f)
				fmt.Fprintln(cmd.OutOrStdout(), renderBoard(v, ws.Board.Summary()))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Match title or description")
	cmd.Flags().StringVar(&status, "status", "", "Only show one column (TODO, DOING, DONE)")
	cmd.Flags().BoolVar(&mine, "mine", false, "Only show tasks assigned to me")
	return cmd
}

func newMoveCmd(opts *rootOptions) *cobra.Command {
	var (
		taskID int64
		target string
	)
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Drag a task to another column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			to, ok := domain.ParseStatus(target)
			if !ok {
				return fmt.Errorf("unknown status %q", target)
			}
			return withApp(cmd.Context(), opts, false, func(a *app) error {
				ws, err := a.workspace(cmd.Context(), opts.sessionID)
				if err != nil {
					return err
				}
				if _, err := ws.Board.Load(cmd.Context()); err != nil {
					return err
				}
				task, ok := ws.Board.Task(taskID)
				if !ok {
					return fmt.Errorf("task #%d is not on the board", taskID)
				}
				g, err := ws.Drag.Start(task)
				if err != nil {
					return fmt.Errorf("task #%d: %w", taskID, err)
				}
				outcome, err := g.Drop(cmd.Context(), to)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderOutcome(task, to, outcome))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&taskID, "task", 0, "Task id")
	cmd.Flags().StringVar(&target, "to", "", "Target column (TODO, DOING, DONE)")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newAdvanceCmd(opts *rootOptions) *cobra.Command {
	var taskID int64
	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Move a task to the next column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, false, func(a *app) error {
				ws, err := a.workspace(cmd.Context(), opts.sessionID)
				if err != nil {
					return err
				}
				if _, err := ws.Board.Load(cmd.Context()); err != nil {
					return err
				}
				next, err := ws.Board.Advance(cmd.Context(), taskID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task #%d is now %s.\n", taskID, next.Label())
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&taskID, "task", 0, "Task id")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}
