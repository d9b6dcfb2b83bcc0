package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const submissionColumns = `id, submitted_at, reviewer_name, product_title, cleaned_title,
product_type, brand, moisture_level, grind, nicotine_level, experience_level,
tobacco_types, cures, tasting_notes, review, rating, status, status_updated_at,
error_message, created_at, updated_at`

func scanSubmission(row pgx.Row) (Submission, error) {
	var s Submission
	err := row.Scan(
		&s.ID,
		&s.SubmittedAt,
		&s.ReviewerName,
		&s.ProductTitle,
		&s.CleanedTitle,
		&s.ProductType,
		&s.Brand,
		&s.MoistureLevel,
		&s.Grind,
		&s.NicotineLevel,
		&s.ExperienceLevel,
		&s.TobaccoTypes,
		&s.Cures,
		&s.TastingNotes,
		&s.Review,
		&s.Rating,
		&s.Status,
		&s.StatusUpdatedAt,
		&s.ErrorMessage,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

func collectSubmissions(rows pgx.Rows) ([]Submission, error) {
	defer rows.Close()
	var items []Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

type InsertSubmissionParams struct {
	ID              string
	SubmittedAt     time.Time
	ReviewerName    string
	ProductTitle    pgtype.Text
	ProductType     pgtype.Text
	Brand           pgtype.Text
	MoistureLevel   pgtype.Text
	Grind           pgtype.Text
	NicotineLevel   pgtype.Text
	ExperienceLevel pgtype.Text
	TobaccoTypes    pgtype.Text
	Cures           pgtype.Text
	TastingNotes    pgtype.Text
	Review          pgtype.Text
	Rating          pgtype.Int4
	Status          string
}

const insertSubmission = `
INSERT INTO submissions (
    id, submitted_at, reviewer_name, product_title, product_type, brand,
    moisture_level, grind, nicotine_level, experience_level, tobacco_types,
    cures, tasting_notes, review, rating, status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (id) DO NOTHING`

// InsertSubmission stores a new submission. It reports false when the id
// already exists.
func (q *Queries) InsertSubmission(ctx context.Context, arg InsertSubmissionParams) (bool, error) {
	tag, err := q.db.Exec(ctx, insertSubmission,
		arg.ID,
		arg.SubmittedAt,
		arg.ReviewerName,
		arg.ProductTitle,
		arg.ProductType,
		arg.Brand,
		arg.MoistureLevel,
		arg.Grind,
		arg.NicotineLevel,
		arg.ExperienceLevel,
		arg.TobaccoTypes,
		arg.Cures,
		arg.TastingNotes,
		arg.Review,
		arg.Rating,
		arg.Status,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const latestSubmission = `SELECT ` + submissionColumns + `
FROM submissions ORDER BY submitted_at DESC, id DESC LIMIT 1`

func (q *Queries) LatestSubmission(ctx context.Context) (Submission, error) {
	return scanSubmission(q.db.QueryRow(ctx, latestSubmission))
}

const getSubmission = `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`

func (q *Queries) GetSubmission(ctx context.Context, id string) (Submission, error) {
	return scanSubmission(q.db.QueryRow(ctx, getSubmission, id))
}

// GetSubmissionForUpdate reads a submission and locks its row until the
// surrounding transaction ends.
func (q *Queries) GetSubmissionForUpdate(ctx context.Context, id string) (Submission, error) {
	return scanSubmission(q.db.QueryRow(ctx, getSubmission+` FOR UPDATE`, id))
}

// ListEligibleParams selects submissions ready for one stage.
type ListEligibleParams struct {
	Status              string
	RequireTitle        bool
	RequireCleanedTitle bool
	RequireCatalogMatch bool
	Limit               int
}

// ListEligible returns submissions in Status that meet the stage's data
// preconditions, oldest first.
func (q *Queries) ListEligible(ctx context.Context, arg ListEligibleParams) ([]Submission, error) {
	b := psql.Select(submissionColumns).
		From("submissions s").
		Where(sq.Eq{"s.status": arg.Status}).
		OrderBy("s.submitted_at", "s.id")

	if arg.RequireTitle {
		b = b.Where("btrim(coalesce(s.product_title, '')) <> ''")
	}
	if arg.RequireCleanedTitle {
		b = b.Where("btrim(coalesce(s.cleaned_title, '')) <> ''")
	}
	if arg.RequireCatalogMatch {
		b = b.Where("EXISTS (SELECT 1 FROM catalog_matches m WHERE m.submission_id = s.id)")
	}
	if arg.Limit > 0 {
		b = b.Limit(uint64(arg.Limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build eligibility query: %w", err)
	}
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectSubmissions(rows)
}

const updateCleanedTitle = `
UPDATE submissions SET cleaned_title = $2, updated_at = now() WHERE id = $1`

func (q *Queries) UpdateCleanedTitle(ctx context.Context, id string, title string) error {
	_, err := q.db.Exec(ctx, updateCleanedTitle, id, title)
	return err
}

const setStatus = `
UPDATE submissions
SET status = $2, status_updated_at = now(), updated_at = now()
WHERE id = $1`

func (q *Queries) SetStatus(ctx context.Context, id string, status string) error {
	tag, err := q.db.Exec(ctx, setStatus, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetStatuses moves every listed submission to status in one statement.
func (q *Queries) SetStatuses(ctx context.Context, ids []string, status string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := psql.Update("submissions").
		Set("status", status).
		Set("status_updated_at", sq.Expr("now()")).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build status update: %w", err)
	}
	tag, err := q.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// StatusesByID returns the current status of each existing id. Unknown ids
// are absent from the result.
func (q *Queries) StatusesByID(ctx context.Context, ids []string) ([]SubmissionStatus, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := psql.Select("id", "status").
		From("submissions").
		Where(sq.Eq{"id": ids}).
		OrderBy("id").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build status query: %w", err)
	}
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SubmissionStatus
	for rows.Next() {
		var s SubmissionStatus
		if err := rows.Scan(&s.ID, &s.Status); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const setErrorMessage = `
UPDATE submissions SET error_message = NULLIF($2, ''), updated_at = now() WHERE id = $1`

// SetErrorMessage records the last failure on a submission. An empty
// message clears it.
func (q *Queries) SetErrorMessage(ctx context.Context, id string, message string) error {
	_, err := q.db.Exec(ctx, setErrorMessage, id, message)
	return err
}

// LockSubmission takes a transaction-scoped advisory lock on id so that
// concurrent runs serialize on the same submission.
func (q *Queries) LockSubmission(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id)
	return err
}

type UpsertCatalogMatchParams struct {
	SubmissionID string
	ProductID    int64
	Handle       string
	Title        string
	ProductType  string
	Vendor       string
}

const upsertCatalogMatch = `
INSERT INTO catalog_matches (submission_id, product_id, handle, title, product_type, vendor)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (submission_id) DO UPDATE SET
    product_id   = EXCLUDED.product_id,
    handle       = EXCLUDED.handle,
    title        = EXCLUDED.title,
    product_type = EXCLUDED.product_type,
    vendor       = EXCLUDED.vendor,
    matched_at   = now()`

func (q *Queries) UpsertCatalogMatch(ctx context.Context, arg UpsertCatalogMatchParams) error {
	_, err := q.db.Exec(ctx, upsertCatalogMatch,
		arg.SubmissionID,
		arg.ProductID,
		arg.Handle,
		arg.Title,
		arg.ProductType,
		arg.Vendor,
	)
	return err
}

const getCatalogMatch = `
SELECT submission_id, product_id, handle, title, product_type, vendor, matched_at
FROM catalog_matches WHERE submission_id = $1`

func (q *Queries) GetCatalogMatch(ctx context.Context, submissionID string) (CatalogMatch, error) {
	var m CatalogMatch
	err := q.db.QueryRow(ctx, getCatalogMatch, submissionID).Scan(
		&m.SubmissionID,
		&m.ProductID,
		&m.Handle,
		&m.Title,
		&m.ProductType,
		&m.Vendor,
		&m.MatchedAt,
	)
	return m, err
}

const findUserIDByName = `SELECT id FROM users WHERE lower(name) = lower(btrim($1))`

func (q *Queries) FindUserIDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, findUserIDByName, name).Scan(&id)
	return id, err
}
