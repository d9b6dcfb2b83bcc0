package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/reviewflow/internal/application"
	"github.com/JonMunkholm/reviewflow/internal/core"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, app *application.App) error {
				if err := app.Migrate(c); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Schema applied")
				return nil
			})
		},
	}
}

func newPipelineCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline",
		Short: "Run every stage in order",
		Long: "Runs ingest, title cleaning, product matching and specification generation.\n" +
			"Ingest is skipped when the forms API is not configured.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBatchLock(cmd, func(c context.Context, app *application.App) error {
				result, runErr := app.Service.RunPipeline(c)
				if result != nil {
					if err := ctx.emit(cmd, result, func(w io.Writer) {
						renderSummaries(w, result.RunID, result.Stages)
					}); err != nil {
						return err
					}
				}
				return runErr
			})
		},
	}
}

func newStageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stage <name>",
		Short: "Run one stage over every eligible submission",
		Long:  "Stages: ingest, clean_title (clean), match_product (match), generate_specification (generate).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := core.ParseStage(args[0])
			if err != nil {
				return err
			}
			return ctx.withBatchLock(cmd, func(c context.Context, app *application.App) error {
				summary, runErr := app.Service.RunStage(c, stage)
				if summary != nil {
					if err := ctx.emit(cmd, summary, func(w io.Writer) {
						renderSummaries(w, summary.RunID, []*core.Summary{summary})
					}); err != nil {
						return err
					}
				}
				return runErr
			})
		},
	}
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string

	cmd := &cobra.Command{
		Use:   "generate <submission-id>",
		Short: "Generate the specification for one submission",
		Long: "Generates (or refreshes) the specification of one submission.\n" +
			"With --stage, reruns that stage for the submission instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := core.ParseStage(stageFlag)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(c context.Context, app *application.App) error {
				res, err := app.Service.RerunStage(c, args[0], stage)
				if err != nil {
					return err
				}
				if err := ctx.emit(cmd, res, func(w io.Writer) { renderItemResult(w, res) }); err != nil {
					return err
				}
				if !res.OK {
					return fmt.Errorf("%s failed for %s", res.Stage, res.SubmissionID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&stageFlag, "stage", string(core.StageGenerateSpecification), "Stage to run for the submission")
	return cmd
}
