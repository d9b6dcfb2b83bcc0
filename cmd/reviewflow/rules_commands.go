package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/reviewflow/internal/application"
)

func newRulesCommand(ctx *commandContext) *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage title cleaning rules",
	}
	rulesCmd.AddCommand(newRulesImportCommand(ctx))
	return rulesCmd
}

func newRulesImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the title rules with a YAML or TOML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(args[0]) == "" {
				return errors.New("rules file path is required")
			}
			return ctx.withApp(cmd, func(c context.Context, app *application.App) error {
				res, err := app.ImportRulesFile(c, args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, res, func(w io.Writer) {
					fmt.Fprintf(w, "Imported %d rules, %d exceptions, %d alias tables from %s\n",
						res.Rules, res.Exceptions, res.Aliases, args[0])
				})
			})
		},
	}
}

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <title>",
		Short: "Show what the active title rules do to a title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args, " ")
			return ctx.withApp(cmd, func(c context.Context, app *application.App) error {
				trace, err := app.Service.PreviewTitle(c, title)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, trace, func(w io.Writer) { renderTrace(w, trace) })
			})
		},
	}
}
