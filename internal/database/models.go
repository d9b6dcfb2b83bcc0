package database

import (
	"time"

	"github.com/JonMunkholm/reviewflow/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID        int64
	Name      string
	Email     pgtype.Text
	CreatedAt time.Time
}

type Submission struct {
	ID              string
	SubmittedAt     time.Time
	ReviewerName    string
	ProductTitle    pgtype.Text
	CleanedTitle    pgtype.Text
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
	StatusUpdatedAt time.Time
	ErrorMessage    pgtype.Text
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CatalogMatch struct {
	SubmissionID string
	ProductID    int64
	Handle       string
	Title        string
	ProductType  string
	Vendor       string
	MatchedAt    time.Time
}

type Specification struct {
	ID                int64
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
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type TitleRule struct {
	Position    int32
	RuleID      string
	Pattern     string
	IsRegex     bool
	Replacement string
}

type TitleRuleException struct {
	ID      int64
	Title   string
	SkipIDs []string
}

type PipelineEvent struct {
	ID           int64
	RunID        uuid.UUID
	SubmissionID pgtype.Text
	Stage        string
	Kind         string
	Code         string
	Message      string
	Field        pgtype.Text
	Value        pgtype.Text
	Suggestions  []string
	CreatedAt    time.Time
}

// SubmissionStatus is an (id, status) pair for bulk transitions.
type SubmissionStatus struct {
	ID     string
	Status string
}

// Junction names a specification many-to-many table.
type Junction string

const (
	SpecTobaccoTypes Junction = "specification_tobacco_types"
	SpecCures        Junction = "specification_cures"
	SpecTastingNotes Junction = "specification_tasting_notes"
)

// Junctions lists every specification junction table.
func Junctions() []Junction {
	return []Junction{SpecTobaccoTypes, SpecCures, SpecTastingNotes}
}

// Column returns the lookup-id column of the junction.
func (j Junction) Column() string {
	switch j {
	case SpecTobaccoTypes:
		return "tobacco_type_id"
	case SpecCures:
		return "cure_id"
	case SpecTastingNotes:
		return "tasting_note_id"
	}
	return ""
}

// Lookup returns the table the junction points into.
func (j Junction) Lookup() enum.Table {
	switch j {
	case SpecTobaccoTypes:
		return enum.TobaccoTypes
	case SpecCures:
		return enum.Cures
	case SpecTastingNotes:
		return enum.TastingNotes
	}
	return ""
}

// Valid reports whether j is a known junction. Junction names are
// interpolated into SQL.
func (j Junction) Valid() bool {
	return j.Column() != ""
}
