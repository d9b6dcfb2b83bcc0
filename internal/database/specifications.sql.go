package database

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/reviewflow/internal/enum"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// SpecificationParams carries every column the materializer writes.
type SpecificationParams struct {
	SubmissionID      string
	UserID            int64
	ProductHandle     string
	ProductTitle      string
	ProductTypeID     int64
	BrandID           pgtype.Int8
	MoistureLevelID   pgtype.Int8
	GrindID           pgtype.Int8
	NicotineLevelID   pgtype.Int8
	ExperienceLevelID pgtype.Int8
	Review            pgtype.Text
	Rating            pgtype.Int4
	BoostedRating     pgtype.Int4
}

const getSpecificationBySubmission = `
SELECT id, submission_id, user_id, product_handle, product_title, product_type_id,
       brand_id, moisture_level_id, grind_id, nicotine_level_id, experience_level_id,
       review, rating, boosted_rating, created_at, updated_at
FROM specifications WHERE submission_id = $1`

func (q *Queries) GetSpecificationBySubmission(ctx context.Context, submissionID string) (Specification, error) {
	var s Specification
	err := q.db.QueryRow(ctx, getSpecificationBySubmission, submissionID).Scan(
		&s.ID,
		&s.SubmissionID,
		&s.UserID,
		&s.ProductHandle,
		&s.ProductTitle,
		&s.ProductTypeID,
		&s.BrandID,
		&s.MoistureLevelID,
		&s.GrindID,
		&s.NicotineLevelID,
		&s.ExperienceLevelID,
		&s.Review,
		&s.Rating,
		&s.BoostedRating,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

const insertSpecification = `
INSERT INTO specifications (
    submission_id, user_id, product_handle, product_title, product_type_id, brand_id,
    moisture_level_id, grind_id, nicotine_level_id, experience_level_id,
    review, rating, boosted_rating
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id`

func (q *Queries) InsertSpecification(ctx context.Context, arg SpecificationParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertSpecification,
		arg.SubmissionID,
		arg.UserID,
		arg.ProductHandle,
		arg.ProductTitle,
		arg.ProductTypeID,
		arg.BrandID,
		arg.MoistureLevelID,
		arg.GrindID,
		arg.NicotineLevelID,
		arg.ExperienceLevelID,
		arg.Review,
		arg.Rating,
		arg.BoostedRating,
	).Scan(&id)
	return id, err
}

const updateSpecification = `
UPDATE specifications SET
    user_id             = $2,
    product_handle      = $3,
    product_title       = $4,
    product_type_id     = $5,
    brand_id            = $6,
    moisture_level_id   = $7,
    grind_id            = $8,
    nicotine_level_id   = $9,
    experience_level_id = $10,
    review              = $11,
    rating              = $12,
    boosted_rating      = $13,
    updated_at          = now()
WHERE id = $1`

func (q *Queries) UpdateSpecification(ctx context.Context, id int64, arg SpecificationParams) error {
	tag, err := q.db.Exec(ctx, updateSpecification,
		id,
		arg.UserID,
		arg.ProductHandle,
		arg.ProductTitle,
		arg.ProductTypeID,
		arg.BrandID,
		arg.MoistureLevelID,
		arg.GrindID,
		arg.NicotineLevelID,
		arg.ExperienceLevelID,
		arg.Review,
		arg.Rating,
		arg.BoostedRating,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (q *Queries) DeleteSpecificationLinks(ctx context.Context, j Junction, specID int64) (int64, error) {
	if !j.Valid() {
		return 0, fmt.Errorf("unknown junction %q", j)
	}
	tag, err := q.db.Exec(ctx, `DELETE FROM `+string(j)+` WHERE specification_id = $1`, specID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertSpecificationLink adds one junction row. Repeating a pair is a no-op.
func (q *Queries) InsertSpecificationLink(ctx context.Context, j Junction, specID, lookupID int64) error {
	if !j.Valid() {
		return fmt.Errorf("unknown junction %q", j)
	}
	query := `INSERT INTO ` + string(j) + ` (specification_id, ` + j.Column() + `)
VALUES ($1, $2) ON CONFLICT DO NOTHING`
	_, err := q.db.Exec(ctx, query, specID, lookupID)
	return err
}

func (q *Queries) ListSpecificationLinks(ctx context.Context, j Junction, specID int64) ([]int64, error) {
	if !j.Valid() {
		return nil, fmt.Errorf("unknown junction %q", j)
	}
	query := `SELECT ` + j.Column() + ` FROM ` + string(j) + `
WHERE specification_id = $1 ORDER BY 1`
	rows, err := q.db.Query(ctx, query, specID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// LookupID finds a lookup row by case-insensitive exact name.
func (q *Queries) LookupID(ctx context.Context, table enum.Table, name string) (int64, bool, error) {
	if !table.Valid() {
		return 0, false, fmt.Errorf("unknown lookup table %q", table)
	}
	var id int64
	err := q.db.QueryRow(ctx,
		`SELECT id FROM `+string(table)+` WHERE lower(name) = lower($1)`, name,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (q *Queries) ListNames(ctx context.Context, table enum.Table) ([]string, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("unknown lookup table %q", table)
	}
	rows, err := q.db.Query(ctx, `SELECT name FROM `+string(table)+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
