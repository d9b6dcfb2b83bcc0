package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/reviewflow/internal/database"
	"github.com/JonMunkholm/reviewflow/internal/services/forms"
	"github.com/JonMunkholm/reviewflow/internal/status"
	"github.com/jackc/pgx/v5"
)

// ingest fetches responses newer than the latest stored submission and
// inserts them as fetched. Every page is read before anything is written,
// so an upstream failure leaves the table untouched.
func (s *Service) ingest(ctx context.Context, r *run) (*Summary, error) {
	summary := newSummary(r, s.now())
	fail := func(err error) (*Summary, error) {
		pe := Classify(err)
		f := s.recordFailure(ctx, r, database.Submission{}, pe)
		f.Label = string(StageIngest)
		summary.addFailure(f)
		summary.Duration = Duration(s.now().Sub(summary.StartedAt))
		return summary, pe
	}

	if s.forms == nil {
		return fail(infraError(errors.New("forms client not configured")))
	}

	query := forms.Query{PageSize: s.pageSize}
	latest, err := s.db.LatestSubmission(ctx)
	switch {
	case err == nil:
		query.Since = latest.SubmittedAt
		query.ExcludeID = latest.ID
	case errors.Is(err, pgx.ErrNoRows):
		// Empty table: fetch everything.
	default:
		return fail(infraError(fmt.Errorf("latest submission: %w", err)))
	}

	responses, err := s.forms.FetchAll(ctx, query)
	if err != nil {
		return fail(upstreamError(err))
	}
	r.logger.Info("responses fetched", "count", len(responses), "since", query.Since, "exclude_id", query.ExcludeID)

	var inserted, existing int
	err = s.db.InTx(ctx, func(q database.Store) error {
		inserted, existing = 0, 0
		for _, resp := range responses {
			if strings.TrimSpace(resp.ID) == "" {
				continue
			}
			ok, err := q.InsertSubmission(ctx, submissionParams(resp))
			if err != nil {
				return infraError(fmt.Errorf("insert submission %s: %w", resp.ID, err))
			}
			if ok {
				inserted++
			} else {
				existing++
			}
		}
		return nil
	})
	if err != nil {
		return fail(err)
	}

	summary.Attempted = len(responses)
	summary.Succeeded = inserted
	summary.Skipped = len(responses) - inserted
	summary.Duration = Duration(s.now().Sub(summary.StartedAt))
	r.logger.Info("ingest completed", "inserted", inserted, "existing", existing)
	return summary, nil
}

func submissionParams(resp forms.Response) database.InsertSubmissionParams {
	p := database.InsertSubmissionParams{
		ID:              strings.TrimSpace(resp.ID),
		SubmittedAt:     resp.SubmittedAt,
		ReviewerName:    strings.TrimSpace(resp.Reviewer),
		ProductTitle:    ToPgText(resp.ProductTitle),
		ProductType:     ToPgText(resp.ProductType),
		Brand:           ToPgText(resp.Brand),
		MoistureLevel:   ToPgText(resp.MoistureLevel),
		Grind:           ToPgText(resp.Grind),
		NicotineLevel:   ToPgText(resp.NicotineLevel),
		ExperienceLevel: ToPgText(resp.ExperienceLevel),
		TobaccoTypes:    ToPgText(resp.TobaccoTypes),
		Cures:           ToPgText(resp.Cures),
		TastingNotes:    ToPgText(resp.TastingNotes),
		Review:          ToPgText(resp.Review),
		Rating:          ToPgInt4(resp.Rating),
		Status:          string(status.Fetched),
	}
	return p
}
