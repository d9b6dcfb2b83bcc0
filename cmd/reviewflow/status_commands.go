package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/reviewflow/internal/application"
	"github.com/JonMunkholm/reviewflow/internal/status"
)

func newTransitionCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "transition <submission-id> <status>",
		Short: "Move one submission to a new status",
		Long: "Moves a submission along the status table. --force is the administrative\n" +
			"override and accepts any known status.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := status.Parse(args[1])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(c context.Context, app *application.App) error {
				view, err := app.Service.Transition(c, args[0], target, force)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, view, func(w io.Writer) {
					fmt.Fprintln(w, statusLine(view))
				})
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Bypass the transition table")
	return cmd
}

func newTransitionManyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "transition-many <status> <submission-id>...",
		Short: "Move every eligible submission to a new status",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := status.Parse(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(c context.Context, app *application.App) error {
				res, err := app.Service.TransitionMany(c, args[1:], target)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, res, func(w io.Writer) {
					fmt.Fprintf(w, "%d updated, %d rejected\n", len(res.Updated), len(res.Rejected))
					fmt.Fprint(w, renderTable([]string{"Submission", "Result", "Reason"}, bulkRows(res), nil))
				})
			})
		},
	}
}
