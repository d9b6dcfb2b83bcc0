package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/reviewflow/internal/database"
	"github.com/jackc/pgx/v5"
)

// SubmissionView is the display form of a submission row.
type SubmissionView struct {
	ID              string    `json:"id"`
	SubmittedAt     time.Time `json:"submittedAt"`
	Reviewer        string    `json:"reviewer"`
	ProductTitle    string    `json:"productTitle,omitempty"`
	CleanedTitle    string    `json:"cleanedTitle,omitempty"`
	ProductType     string    `json:"productType,omitempty"`
	Brand           string    `json:"brand,omitempty"`
	MoistureLevel   string    `json:"moistureLevel,omitempty"`
	Grind           string    `json:"grind,omitempty"`
	NicotineLevel   string    `json:"nicotineLevel,omitempty"`
	ExperienceLevel string    `json:"experienceLevel,omitempty"`
	TobaccoTypes    []string  `json:"tobaccoTypes,omitempty"`
	Cures           []string  `json:"cures,omitempty"`
	TastingNotes    []string  `json:"tastingNotes,omitempty"`
	Rating          *int32    `json:"rating,omitempty"`
	Status          string    `json:"status"`
	StatusUpdatedAt time.Time `json:"statusUpdatedAt"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
}

func newSubmissionView(s database.Submission) SubmissionView {
	v := SubmissionView{
		ID:              s.ID,
		SubmittedAt:     s.SubmittedAt,
		Reviewer:        s.ReviewerName,
		ProductTitle:    s.ProductTitle.String,
		CleanedTitle:    s.CleanedTitle.String,
		ProductType:     s.ProductType.String,
		Brand:           s.Brand.String,
		MoistureLevel:   s.MoistureLevel.String,
		Grind:           s.Grind.String,
		NicotineLevel:   s.NicotineLevel.String,
		ExperienceLevel: s.ExperienceLevel.String,
		TobaccoTypes:    splitLines(s.TobaccoTypes.String),
		Cures:           splitLines(s.Cures.String),
		TastingNotes:    splitLines(s.TastingNotes.String),
		Status:          s.Status,
		StatusUpdatedAt: s.StatusUpdatedAt,
		ErrorMessage:    s.ErrorMessage.String,
	}
	if s.Rating.Valid {
		r := s.Rating.Int32
		v.Rating = &r
	}
	return v
}

// CatalogMatchView is the product a submission was matched to.
type CatalogMatchView struct {
	ProductID   int64     `json:"productId"`
	Handle      string    `json:"handle"`
	Title       string    `json:"title"`
	ProductType string    `json:"productType,omitempty"`
	Vendor      string    `json:"vendor,omitempty"`
	MatchedAt   time.Time `json:"matchedAt"`
}

// SpecificationView is a materialized specification with its junction ids.
type SpecificationView struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"userId"`
	ProductHandle string    `json:"productHandle"`
	ProductTitle  string    `json:"productTitle"`
	ProductTypeID int64     `json:"productTypeId"`
	BrandID       *int64    `json:"brandId,omitempty"`
	Rating        *int32    `json:"rating,omitempty"`
	BoostedRating *int32    `json:"boostedRating,omitempty"`
	TobaccoTypes  []int64   `json:"tobaccoTypeIds"`
	Cures         []int64   `json:"cureIds"`
	TastingNotes  []int64   `json:"tastingNoteIds"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SubmissionDetail is everything known about one submission.
type SubmissionDetail struct {
	Submission    SubmissionView     `json:"submission"`
	CatalogMatch  *CatalogMatchView  `json:"catalogMatch,omitempty"`
	Specification *SpecificationView `json:"specification,omitempty"`
	Events        []Event            `json:"events"`
}

// GetSubmission returns a submission with its match, specification and
// most recent events.
func (s *Service) GetSubmission(ctx context.Context, id string) (*SubmissionDetail, error) {
	sub, err := s.db.GetSubmission(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, submissionNotFound(id)
	}
	if err != nil {
		return nil, infraError(fmt.Errorf("get submission: %w", err))
	}
	detail := &SubmissionDetail{Submission: newSubmissionView(sub)}

	match, err := s.db.GetCatalogMatch(ctx, id)
	switch {
	case err == nil:
		detail.CatalogMatch = &CatalogMatchView{
			ProductID:   match.ProductID,
			Handle:      match.Handle,
			Title:       match.Title,
			ProductType: match.ProductType,
			Vendor:      match.Vendor,
			MatchedAt:   match.MatchedAt,
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, infraError(fmt.Errorf("get catalog match: %w", err))
	}

	spec, err := s.db.GetSpecificationBySubmission(ctx, id)
	switch {
	case err == nil:
		if detail.Specification, err = s.specificationView(ctx, spec); err != nil {
			return nil, err
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, infraError(fmt.Errorf("get specification: %w", err))
	}

	if detail.Events, err = s.ListEvents(ctx, EventFilter{SubmissionID: id, Limit: 20}); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Service) specificationView(ctx context.Context, spec database.Specification) (*SpecificationView, error) {
	v := &SpecificationView{
		ID:            spec.ID,
		UserID:        spec.UserID,
		ProductHandle: spec.ProductHandle,
		ProductTitle:  spec.ProductTitle,
		ProductTypeID: spec.ProductTypeID,
		UpdatedAt:     spec.UpdatedAt,
	}
	if spec.BrandID.Valid {
		b := spec.BrandID.Int64
		v.BrandID = &b
	}
	if spec.Rating.Valid {
		r := spec.Rating.Int32
		v.Rating = &r
	}
	if spec.BoostedRating.Valid {
		b := spec.BoostedRating.Int32
		v.BoostedRating = &b
	}

	links := map[database.Junction]*[]int64{
		database.SpecTobaccoTypes: &v.TobaccoTypes,
		database.SpecCures:        &v.Cures,
		database.SpecTastingNotes: &v.TastingNotes,
	}
	for j, dst := range links {
		ids, err := s.db.ListSpecificationLinks(ctx, j, spec.ID)
		if err != nil {
			return nil, infraError(fmt.Errorf("list %s: %w", j, err))
		}
		if ids == nil {
			ids = []int64{}
		}
		*dst = ids
	}
	return v, nil
}
