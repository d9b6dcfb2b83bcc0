package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/reviewflow/internal/core"
	"github.com/JonMunkholm/reviewflow/internal/normalize"
)

func summaryRows(summaries []*core.Summary) [][]string {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			string(s.Stage),
			strconv.Itoa(s.Attempted),
			strconv.Itoa(s.Succeeded),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Skipped),
			time.Duration(s.Duration).Round(time.Millisecond).String(),
		})
	}
	return rows
}

func renderSummaries(w io.Writer, runID string, summaries []*core.Summary) {
	fmt.Fprintf(w, "Run %s\n", runID)
	fmt.Fprint(w, renderTable(
		[]string{"Stage", "Attempted", "Succeeded", "Failed", "Skipped", "Duration"},
		summaryRows(summaries),
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	))

	var failures []core.Failure
	for _, s := range summaries {
		failures = append(failures, s.Failures...)
	}
	if len(failures) > 0 {
		fmt.Fprint(w, renderTable(
			[]string{"Submission", "Kind", "Code", "Field", "Value", "Error"},
			failureRows(failures),
			nil,
		))
	}
}

func failureRows(failures []core.Failure) [][]string {
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		id := f.SubmissionID
		if id == "" {
			id = f.Label
		}
		rows = append(rows, []string{id, string(f.Kind), f.Code, f.Field, f.Value, withSuggestions(f.Error, f.Suggestions)})
	}
	return rows
}

func withSuggestions(msg string, suggestions []string) string {
	if len(suggestions) == 0 {
		return msg
	}
	return msg + " (did you mean: " + strings.Join(suggestions, ", ") + "?)"
}

func renderItemResult(w io.Writer, res *core.ItemResult) {
	if res.OK {
		line := fmt.Sprintf("%s: %s -> %s", res.SubmissionID, res.Stage, res.Status)
		if res.SpecificationID != 0 {
			line += fmt.Sprintf(" (specification %d)", res.SpecificationID)
		}
		fmt.Fprintln(w, line)
		return
	}
	fmt.Fprintf(w, "%s: %s failed, status %s\n", res.SubmissionID, res.Stage, res.Status)
	if res.Failure != nil {
		fmt.Fprint(w, renderTable(
			[]string{"Submission", "Kind", "Code", "Field", "Value", "Error"},
			failureRows([]core.Failure{*res.Failure}),
			nil,
		))
	}
}

func bulkRows(res *core.BulkTransitionResult) [][]string {
	rows := make([][]string, 0, len(res.Updated)+len(res.Rejected))
	for _, id := range res.Updated {
		rows = append(rows, []string{id, "updated", ""})
	}
	for _, r := range res.Rejected {
		rows = append(rows, []string{r.SubmissionID, "rejected", r.Reason})
	}
	return rows
}

func eventRows(events []core.Event) [][]string {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			string(e.Stage),
			e.SubmissionID,
			string(e.Kind),
			e.Code,
			e.Field,
			withSuggestions(e.Message, e.Suggestions),
		})
	}
	return rows
}

func traceRows(trace normalize.Trace) [][]string {
	rows := make([][]string, 0, len(trace.Steps))
	for _, s := range trace.Steps {
		rows = append(rows, []string{s.RuleID, string(s.Outcome), s.Before, s.After, s.SkippedBy})
	}
	return rows
}

func renderTrace(w io.Writer, trace normalize.Trace) {
	fmt.Fprint(w, renderTable(
		[]string{"Rule", "Outcome", "Before", "After", "Exception"},
		traceRows(trace),
		nil,
	))
	if trace.Null {
		fmt.Fprintf(w, "%q -> (empty)\n", trace.Input)
		return
	}
	fmt.Fprintf(w, "%q -> %q\n", trace.Input, trace.Output)
}

func statusLine(v *core.SubmissionView) string {
	line := fmt.Sprintf("%s: %s", v.ID, v.Status)
	if v.ErrorMessage != "" {
		line += " (" + v.ErrorMessage + ")"
	}
	return line
}
