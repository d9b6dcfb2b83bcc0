package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	outputAuto  = "auto"
	outputTable = "table"
	outputJSON  = "json"
)

func validateOutput(mode string) error {
	switch mode {
	case outputAuto, outputTable, outputJSON:
		return nil
	default:
		return fmt.Errorf("invalid --output %q (want auto, table or json)", mode)
	}
}

// wantJSON reports whether results go out as JSON. In auto mode a terminal
// gets tables and everything else (pipes, files, cron) gets JSON.
func wantJSON(mode string, w io.Writer) bool {
	switch mode {
	case outputJSON:
		return true
	case outputTable:
		return false
	default:
		return !isTerminal(w)
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// emit writes v as JSON or calls render for the table form.
func (c *commandContext) emit(cmd *cobra.Command, v any, render func(w io.Writer)) error {
	if wantJSON(c.output(), cmd.OutOrStdout()) {
		return writeJSON(cmd, v)
	}
	render(cmd.OutOrStdout())
	return nil
}
