package database

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// DefaultEventLimit caps ListEvents when no limit is given.
const DefaultEventLimit = 100

type InsertEventParams struct {
	RunID        uuid.UUID
	SubmissionID pgtype.Text
	Stage        string
	Kind         string
	Code         string
	Message      string
	Field        pgtype.Text
	Value        pgtype.Text
	Suggestions  []string
}

const eventColumns = `id, run_id, submission_id, stage, kind, code, message, field, value, suggestions, created_at`

func scanEvent(row pgx.Row) (PipelineEvent, error) {
	var e PipelineEvent
	err := row.Scan(
		&e.ID,
		&e.RunID,
		&e.SubmissionID,
		&e.Stage,
		&e.Kind,
		&e.Code,
		&e.Message,
		&e.Field,
		&e.Value,
		&e.Suggestions,
		&e.CreatedAt,
	)
	return e, err
}

const insertEvent = `
INSERT INTO pipeline_events (run_id, submission_id, stage, kind, code, message, field, value, suggestions)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + eventColumns

func (q *Queries) InsertEvent(ctx context.Context, arg InsertEventParams) (PipelineEvent, error) {
	suggestions := arg.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	return scanEvent(q.db.QueryRow(ctx, insertEvent,
		arg.RunID,
		arg.SubmissionID,
		arg.Stage,
		arg.Kind,
		arg.Code,
		arg.Message,
		arg.Field,
		arg.Value,
		suggestions,
	))
}

// ListEventsParams filters the event log. Zero values match everything.
type ListEventsParams struct {
	SubmissionID string
	RunID        uuid.UUID
	Stage        string
	Kind         string
	Limit        int
}

// ListEvents returns matching events, newest first.
func (q *Queries) ListEvents(ctx context.Context, arg ListEventsParams) ([]PipelineEvent, error) {
	b := psql.Select(eventColumns).From("pipeline_events").OrderBy("created_at DESC", "id DESC")
	if arg.SubmissionID != "" {
		b = b.Where(sq.Eq{"submission_id": arg.SubmissionID})
	}
	if arg.RunID != uuid.Nil {
		b = b.Where(sq.Eq{"run_id": arg.RunID})
	}
	if arg.Stage != "" {
		b = b.Where(sq.Eq{"stage": arg.Stage})
	}
	if arg.Kind != "" {
		b = b.Where(sq.Eq{"kind": arg.Kind})
	}
	limit := arg.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	b = b.Limit(uint64(limit))

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build event query: %w", err)
	}
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []PipelineEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

const listTitleRules = `
SELECT position, rule_id, pattern, is_regex, replacement FROM title_rules ORDER BY position`

func (q *Queries) ListTitleRules(ctx context.Context) ([]TitleRule, error) {
	rows, err := q.db.Query(ctx, listTitleRules)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []TitleRule
	for rows.Next() {
		var r TitleRule
		if err := rows.Scan(&r.Position, &r.RuleID, &r.Pattern, &r.IsRegex, &r.Replacement); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

const listTitleRuleExceptions = `SELECT id, title, skip_ids FROM title_rule_exceptions ORDER BY id`

func (q *Queries) ListTitleRuleExceptions(ctx context.Context) ([]TitleRuleException, error) {
	rows, err := q.db.Query(ctx, listTitleRuleExceptions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TitleRuleException
	for rows.Next() {
		var e TitleRuleException
		if err := rows.Scan(&e.ID, &e.Title, &e.SkipIDs); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// ReplaceTitleRules swaps the stored rule set. Run it inside InTx so the
// delete and inserts land together.
func (q *Queries) ReplaceTitleRules(ctx context.Context, rules []TitleRule, exceptions []TitleRuleException) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM title_rules`); err != nil {
		return fmt.Errorf("clear title rules: %w", err)
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM title_rule_exceptions`); err != nil {
		return fmt.Errorf("clear title rule exceptions: %w", err)
	}

	for _, r := range rules {
		_, err := q.db.Exec(ctx,
			`INSERT INTO title_rules (position, rule_id, pattern, is_regex, replacement) VALUES ($1, $2, $3, $4, $5)`,
			r.Position, r.RuleID, r.Pattern, r.IsRegex, r.Replacement,
		)
		if err != nil {
			return fmt.Errorf("insert title rule %s: %w", r.RuleID, err)
		}
	}
	for _, e := range exceptions {
		skip := e.SkipIDs
		if skip == nil {
			skip = []string{}
		}
		_, err := q.db.Exec(ctx,
			`INSERT INTO title_rule_exceptions (title, skip_ids) VALUES ($1, $2)`,
			e.Title, skip,
		)
		if err != nil {
			return fmt.Errorf("insert title rule exception %q: %w", e.Title, err)
		}
	}
	return nil
}
