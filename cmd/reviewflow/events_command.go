package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/reviewflow/internal/application"
	"github.com/JonMunkholm/reviewflow/internal/core"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var (
		submission string
		runID      string
		stageName  string
		kind       string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List pipeline failure events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := core.EventFilter{
				SubmissionID: submission,
				RunID:        runID,
				Kind:         core.Kind(kind),
				Limit:        limit,
			}
			if stageName != "" {
				stage, err := core.ParseStage(stageName)
				if err != nil {
					return err
				}
				filter.Stage = stage
			}

			return ctx.withApp(cmd, func(c context.Context, app *application.App) error {
				events, err := app.Service.ListEvents(c, filter)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, events, func(w io.Writer) {
					if len(events) == 0 {
						fmt.Fprintln(w, "No events")
						return
					}
					fmt.Fprint(w, renderTable(
						[]string{"Time", "Stage", "Submission", "Kind", "Code", "Field", "Message"},
						eventRows(events),
						nil,
					))
				})
			})
		},
	}

	cmd.Flags().StringVar(&submission, "submission", "", "Only events for this submission")
	cmd.Flags().StringVar(&runID, "run", "", "Only events from this run")
	cmd.Flags().StringVar(&stageName, "stage", "", "Only events from this stage")
	cmd.Flags().StringVar(&kind, "kind", "", "Only events of this failure kind")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events")
	return cmd
}
