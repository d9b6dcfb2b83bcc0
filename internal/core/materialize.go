package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/reviewflow/internal/database"
	"github.com/JonMunkholm/reviewflow/internal/enum"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// optionalEnum is a categorical column that may be left blank.
type optionalEnum struct {
	field string
	table enum.Table
	value string
	dst   *pgtype.Int8
}

// multiValue is a newline-delimited field stored as junction rows.
type multiValue struct {
	field    string
	junction database.Junction
	raw      pgtype.Text
	ids      []int64
}

// materialize upserts the specification for sub and replaces the junction
// rows of every multi-value field present on it. Every lookup is resolved
// before the first write, so a failure leaves nothing behind even outside a
// transaction. Returns the specification id.
func materialize(ctx context.Context, q database.Store, res *enum.Resolver, sub database.Submission) (int64, error) {
	match, err := q.GetCatalogMatch(ctx, sub.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, notFoundError("catalog_match", sub.ID, errors.New("catalog match not found"))
	}
	if err != nil {
		return 0, infraError(fmt.Errorf("get catalog match: %w", err))
	}

	reviewer := strings.TrimSpace(sub.ReviewerName)
	if reviewer == "" {
		return 0, validationError("reviewer", "", errors.New("required field reviewer is empty"))
	}
	userID, err := q.FindUserIDByName(ctx, reviewer)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, notFoundError("reviewer", reviewer, fmt.Errorf("user not found: %q", reviewer))
	}
	if err != nil {
		return 0, infraError(fmt.Errorf("find user: %w", err))
	}

	params := database.SpecificationParams{
		SubmissionID:  sub.ID,
		UserID:        userID,
		ProductHandle: match.Handle,
		ProductTitle:  match.Title,
		Review:        trimmedText(sub.Review),
		Rating:        sub.Rating,
		BoostedRating: boostedRating(sub.Rating),
	}

	productType := firstNonBlank(match.ProductType, sub.ProductType.String)
	if productType == "" {
		return 0, validationError("product_type", "", errors.New("required field product_type is empty"))
	}
	if params.ProductTypeID, err = res.Resolve(ctx, enum.ProductTypes, productType); err != nil {
		return 0, lookupFailure(ctx, res, "product_type", enum.ProductTypes, productType, err)
	}

	optional := []optionalEnum{
		{"brand", enum.Brands, firstNonBlank(match.Vendor, sub.Brand.String), &params.BrandID},
		{"moisture_level", enum.MoistureLevels, sub.MoistureLevel.String, &params.MoistureLevelID},
		{"grind", enum.Grinds, sub.Grind.String, &params.GrindID},
		{"nicotine_level", enum.NicotineLevels, sub.NicotineLevel.String, &params.NicotineLevelID},
		{"experience_level", enum.ExperienceLevels, sub.ExperienceLevel.String, &params.ExperienceLevelID},
	}
	for _, o := range optional {
		value := strings.TrimSpace(o.value)
		if value == "" {
			continue
		}
		id, err := res.Resolve(ctx, o.table, value)
		if err != nil {
			return 0, lookupFailure(ctx, res, o.field, o.table, value, err)
		}
		*o.dst = pgtype.Int8{Int64: id, Valid: true}
	}

	multi := []*multiValue{
		{field: "tobacco_types", junction: database.SpecTobaccoTypes, raw: sub.TobaccoTypes},
		{field: "cures", junction: database.SpecCures, raw: sub.Cures},
		{field: "tasting_notes", junction: database.SpecTastingNotes, raw: sub.TastingNotes},
	}
	for _, m := range multi {
		if !m.raw.Valid {
			continue
		}
		for _, value := range splitLines(m.raw.String) {
			id, err := res.Resolve(ctx, m.junction.Lookup(), value)
			if err != nil {
				return 0, lookupFailure(ctx, res, m.field, m.junction.Lookup(), value, err)
			}
			m.ids = appendUnique(m.ids, id)
		}
	}

	specID, err := upsertSpecification(ctx, q, params, multi)
	if err != nil {
		return 0, err
	}

	for _, m := range multi {
		for _, id := range m.ids {
			if err := q.InsertSpecificationLink(ctx, m.junction, specID, id); err != nil {
				return 0, Classify(fmt.Errorf("link %s: %w", m.field, err))
			}
		}
	}
	return specID, nil
}

// upsertSpecification updates the existing row for the submission, clearing
// links of present multi-value fields, or inserts a new one.
func upsertSpecification(ctx context.Context, q database.Store, params database.SpecificationParams, multi []*multiValue) (int64, error) {
	existing, err := q.GetSpecificationBySubmission(ctx, params.SubmissionID)
	if errors.Is(err, pgx.ErrNoRows) {
		id, err := q.InsertSpecification(ctx, params)
		if err != nil {
			return 0, Classify(fmt.Errorf("insert specification: %w", err))
		}
		return id, nil
	}
	if err != nil {
		return 0, infraError(fmt.Errorf("get specification: %w", err))
	}

	if err := q.UpdateSpecification(ctx, existing.ID, params); err != nil {
		return 0, Classify(fmt.Errorf("update specification: %w", err))
	}
	for _, m := range multi {
		if !m.raw.Valid {
			continue
		}
		if _, err := q.DeleteSpecificationLinks(ctx, m.junction, existing.ID); err != nil {
			return 0, infraError(fmt.Errorf("clear %s: %w", m.field, err))
		}
	}
	return existing.ID, nil
}

// lookupFailure turns a resolver error into a field-level failure. Unknown
// values carry suggestions from the lookup table.
func lookupFailure(ctx context.Context, res *enum.Resolver, field string, table enum.Table, value string, err error) error {
	var nf *enum.NotFoundError
	if !errors.As(err, &nf) {
		return infraError(fmt.Errorf("%s: %w", field, err))
	}

	pe := validationError(field, nf.Value, err)
	// Suggestions are best effort; a failed listing still reports the miss.
	if suggestions, serr := res.Suggest(ctx, table, nf.Value, enum.MaxSuggestions); serr == nil {
		pe.Suggestions = suggestions
	}
	return pe
}

// splitLines splits a newline-delimited answer, trimming each entry and
// dropping blanks.
func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
