package core

import (
	"context"
	"testing"

	"github.com/JonMunkholm/reviewflow/internal/database"
	"github.com/JonMunkholm/reviewflow/internal/status"
	"github.com/jackc/pgx/v5/pgtype"
)

// ============================================================================
// Upsert
// ============================================================================

func TestGenerateSpecification_CreatesSpecification(t *testing.T) {
	svc, m, ids := newTestService(t, Options{})
	seedReady(m, readySubmission("sub-1"))

	res, err := svc.GenerateSpecification(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GenerateSpecification() error = %v", err)
	}
	if !res.OK {
		t.Fatalf("GenerateSpecification() failure = %+v", res.Failure)
	}
	if res.Status != string(status.SpecificationGenerated) {
		t.Errorf("Status = %q, want %q", res.Status, status.SpecificationGenerated)
	}

	specs := m.Specifications()
	if len(specs) != 1 {
		t.Fatalf("specifications = %d, want 1", len(specs))
	}
	spec := specs[0]
	if spec.ID != res.SpecificationID {
		t.Errorf("SpecificationID = %d, want %d", res.SpecificationID, spec.ID)
	}
	if spec.ProductTypeID != ids["Pipe Tobacco"] {
		t.Errorf("ProductTypeID = %d, want %d", spec.ProductTypeID, ids["Pipe Tobacco"])
	}
	if !spec.BrandID.Valid || spec.BrandID.Int64 != ids["Samuel Gawith"] {
		t.Errorf("BrandID = %+v, want %d", spec.BrandID, ids["Samuel Gawith"])
	}
	if spec.NicotineLevelID.Valid {
		t.Errorf("NicotineLevelID = %+v, want absent for blank answer", spec.NicotineLevelID)
	}
	if spec.BoostedRating.Int32 != 80 {
		t.Errorf("BoostedRating = %d, want 80", spec.BoostedRating.Int32)
	}
	if spec.ProductHandle != "samuel-gawith-full-virginia-flake" {
		t.Errorf("ProductHandle = %q", spec.ProductHandle)
	}

	// "Dark Fruit" resolves through the alias to "Dark Fruits".
	notes := links(t, m, database.SpecTastingNotes, spec.ID)
	if !sameIDs(notes, []int64{ids["Dark Fruits"], ids["Citrus"]}) {
		t.Errorf("tasting note links = %v, want Dark Fruits and Citrus", notes)
	}
	types := links(t, m, database.SpecTobaccoTypes, spec.ID)
	if !sameIDs(types, []int64{ids["Virginia"], ids["Perique"]}) {
		t.Errorf("tobacco type links = %v, want Virginia and Perique", types)
	}
}

func TestGenerateSpecification_Idempotent(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	seedReady(m, readySubmission("sub-1"))
	ctx := context.Background()

	first, err := svc.GenerateSpecification(ctx, "sub-1")
	if err != nil || !first.OK {
		t.Fatalf("first run: err = %v, failure = %+v", err, first.Failure)
	}
	before := map[database.Junction][]int64{}
	for _, j := range database.Junctions() {
		before[j] = links(t, m, j, first.SpecificationID)
	}

	second, err := svc.GenerateSpecification(ctx, "sub-1")
	if err != nil || !second.OK {
		t.Fatalf("second run: err = %v, failure = %+v", err, second.Failure)
	}

	if got := len(m.Specifications()); got != 1 {
		t.Fatalf("specifications = %d, want 1", got)
	}
	if second.SpecificationID != first.SpecificationID {
		t.Errorf("SpecificationID = %d, want unchanged %d", second.SpecificationID, first.SpecificationID)
	}
	for _, j := range database.Junctions() {
		if after := links(t, m, j, second.SpecificationID); !sameIDs(after, before[j]) {
			t.Errorf("%s links = %v, want %v", j, after, before[j])
		}
	}
	if second.Status != string(status.SpecificationGenerated) {
		t.Errorf("Status = %q, want %q", second.Status, status.SpecificationGenerated)
	}
}

func TestGenerateSpecification_ReplacesJunctionRows(t *testing.T) {
	svc, m, ids := newTestService(t, Options{})
	sub := readySubmission("sub-1")
	seedReady(m, sub)
	ctx := context.Background()

	first, err := svc.GenerateSpecification(ctx, "sub-1")
	if err != nil || !first.OK {
		t.Fatalf("first run: err = %v, failure = %+v", err, first.Failure)
	}

	// Drop one tasting note and re-materialize from the terminal state.
	sub = mustGet(t, m, "sub-1")
	sub.TastingNotes = text("Citrus")
	m.PutSubmission(sub)

	second, err := svc.GenerateSpecification(ctx, "sub-1")
	if err != nil || !second.OK {
		t.Fatalf("second run: err = %v, failure = %+v", err, second.Failure)
	}

	notes := links(t, m, database.SpecTastingNotes, second.SpecificationID)
	if !sameIDs(notes, []int64{ids["Citrus"]}) {
		t.Errorf("tasting note links = %v, want only Citrus (%d)", notes, ids["Citrus"])
	}
	types := links(t, m, database.SpecTobaccoTypes, second.SpecificationID)
	if len(types) != 2 {
		t.Errorf("tobacco type links = %v, want 2 untouched", types)
	}
}

func TestMaterialize_NullMultiValueKeepsLinks(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	sub := readySubmission("sub-1")
	seedReady(m, sub)
	ctx := context.Background()
	r := &run{aliases: svc.Aliases()}

	specID, err := materialize(ctx, m, r.resolver(m), sub)
	if err != nil {
		t.Fatalf("materialize() error = %v", err)
	}

	sub.Cures = pgtype.Text{}
	if _, err := materialize(ctx, m, r.resolver(m), sub); err != nil {
		t.Fatalf("materialize() second error = %v", err)
	}
	if got := links(t, m, database.SpecCures, specID); len(got) != 1 {
		t.Errorf("cure links = %v, want existing link kept", got)
	}

	sub.Cures = text("")
	if _, err := materialize(ctx, m, r.resolver(m), sub); err != nil {
		t.Fatalf("materialize() third error = %v", err)
	}
	if got := links(t, m, database.SpecCures, specID); len(got) != 0 {
		t.Errorf("cure links = %v, want cleared by present empty field", got)
	}
}

// ============================================================================
// Failures
// ============================================================================

func TestGenerateSpecification_ReviewerNotFound(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	sub := readySubmission("sub-1")
	sub.ReviewerName = "Grace Hopper"
	seedReady(m, sub)

	res, err := svc.GenerateSpecification(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GenerateSpecification() error = %v", err)
	}
	if res.OK || res.Failure == nil {
		t.Fatal("GenerateSpecification() succeeded, want reviewer failure")
	}
	f := res.Failure
	if f.Kind != KindNotFound {
		t.Errorf("Kind = %q, want %q", f.Kind, KindNotFound)
	}
	if f.Field != "reviewer" || f.Value != "Grace Hopper" {
		t.Errorf("Field, Value = %q, %q, want reviewer, Grace Hopper", f.Field, f.Value)
	}
	if f.Code != "NF002" {
		t.Errorf("Code = %q, want NF002", f.Code)
	}
	if got := len(m.Specifications()); got != 0 {
		t.Errorf("specifications = %d, want 0", got)
	}
	if got := m.LinkCount(); got != 0 {
		t.Errorf("junction rows = %d, want 0", got)
	}
	if res.Status != string(status.ShopifyMapped) {
		t.Errorf("Status = %q, want unchanged %q", res.Status, status.ShopifyMapped)
	}
}

func TestGenerateSpecification_UnknownValueSuggests(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	sub := readySubmission("sub-1")
	sub.TastingNotes = text("Citrus\nSmokey")
	seedReady(m, sub)

	res, err := svc.GenerateSpecification(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GenerateSpecification() error = %v", err)
	}
	if res.OK {
		t.Fatal("GenerateSpecification() succeeded, want validation failure")
	}
	f := res.Failure
	if f.Kind != KindValidation || f.Field != "tasting_notes" || f.Value != "Smokey" {
		t.Errorf("Failure = %+v, want validation on tasting_notes Smokey", f)
	}
	if len(f.Suggestions) == 0 || f.Suggestions[0] != "Smoke" {
		t.Errorf("Suggestions = %v, want Smoke first", f.Suggestions)
	}
	if len(f.Suggestions) > 5 {
		t.Errorf("Suggestions = %d, want at most 5", len(f.Suggestions))
	}
	if f.Code != "VAL003" {
		t.Errorf("Code = %q, want VAL003", f.Code)
	}
	if got := m.LinkCount(); got != 0 {
		t.Errorf("junction rows = %d, want 0 after rollback", got)
	}
}

func TestMaterialize_RequiredAndOptionalEnums(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*database.Submission, *database.CatalogMatch)
		wantErr   bool
		wantField string
	}{
		{
			name: "blank optional is omitted",
			mutate: func(s *database.Submission, _ *database.CatalogMatch) {
				s.Grind = text("  ")
				s.MoistureLevel = pgtype.Text{}
			},
		},
		{
			name: "catalog product type wins over the answer",
			mutate: func(s *database.Submission, _ *database.CatalogMatch) {
				s.ProductType = text("Nonsense")
			},
		},
		{
			name: "missing product type aborts",
			mutate: func(s *database.Submission, c *database.CatalogMatch) {
				s.ProductType = pgtype.Text{}
				c.ProductType = ""
			},
			wantErr:   true,
			wantField: "product_type",
		},
		{
			name: "unknown product type aborts",
			mutate: func(_ *database.Submission, c *database.CatalogMatch) {
				c.ProductType = "Snuff"
			},
			wantErr:   true,
			wantField: "product_type",
		},
		{
			name: "unknown optional value aborts",
			mutate: func(s *database.Submission, _ *database.CatalogMatch) {
				s.Grind = text("Cube Cut")
			},
			wantErr:   true,
			wantField: "grind",
		},
		{
			name: "blank reviewer aborts",
			mutate: func(s *database.Submission, _ *database.CatalogMatch) {
				s.ReviewerName = " "
			},
			wantErr:   true,
			wantField: "reviewer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m, _ := newTestService(t, Options{})
			sub := readySubmission("sub-1")
			match := readyMatch("sub-1")
			tt.mutate(&sub, &match)
			m.PutSubmission(sub)
			m.PutCatalogMatch(match)

			r := &run{aliases: svc.Aliases()}
			_, err := materialize(context.Background(), m, r.resolver(m), sub)
			if (err != nil) != tt.wantErr {
				t.Fatalf("materialize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			pe := Classify(err)
			if pe.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", pe.Field, tt.wantField)
			}
			if got := len(m.Specifications()); got != 0 {
				t.Errorf("specifications = %d, want 0", got)
			}
		})
	}
}

func TestGenerateSpecification_MissingCatalogMatch(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	m.PutSubmission(readySubmission("sub-1"))

	res, err := svc.GenerateSpecification(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GenerateSpecification() error = %v", err)
	}
	if res.Failure == nil || res.Failure.Kind != KindNotFound || res.Failure.Code != "NF003" {
		t.Errorf("Failure = %+v, want NF003 not_found", res.Failure)
	}
}

func TestGenerateSpecification_WrongState(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	sub := readySubmission("sub-1")
	sub.Status = string(status.TitleCleaned)
	seedReady(m, sub)

	res, err := svc.GenerateSpecification(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GenerateSpecification() error = %v", err)
	}
	if res.Failure == nil || res.Failure.Kind != KindStateViolation {
		t.Fatalf("Failure = %+v, want state violation", res.Failure)
	}
	if got := len(m.Specifications()); got != 0 {
		t.Errorf("specifications = %d, want 0", got)
	}
}

func TestGenerateSpecification_UnknownSubmission(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	_, err := svc.GenerateSpecification(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("GenerateSpecification() error = %v, want not found", err)
	}
}

func TestGenerateSpecification_LinkFailureRollsBack(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	seedReady(m, readySubmission("sub-1"))
	m.FailNext("InsertSpecificationLink", errTest("connection reset by peer"))

	res, err := svc.GenerateSpecification(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GenerateSpecification() error = %v", err)
	}
	if res.OK {
		t.Fatal("GenerateSpecification() succeeded, want infra failure")
	}
	if res.Failure.Kind != KindInfra {
		t.Errorf("Kind = %q, want %q", res.Failure.Kind, KindInfra)
	}
	if got := len(m.Specifications()); got != 0 {
		t.Errorf("specifications = %d, want 0 after rollback", got)
	}
	if got := mustGet(t, m, "sub-1").ErrorMessage.String; got == "" {
		t.Error("ErrorMessage not recorded")
	}
}

// ============================================================================
// Helpers
// ============================================================================

func TestBoostedRating(t *testing.T) {
	tests := []struct {
		in   pgtype.Int4
		want pgtype.Int4
	}{
		{pgtype.Int4{}, pgtype.Int4{}},
		{pgtype.Int4{Int32: 1, Valid: true}, pgtype.Int4{Int32: 20, Valid: true}},
		{pgtype.Int4{Int32: 5, Valid: true}, pgtype.Int4{Int32: 100, Valid: true}},
		{pgtype.Int4{Int32: 9, Valid: true}, pgtype.Int4{Int32: 100, Valid: true}},
		{pgtype.Int4{Int32: -2, Valid: true}, pgtype.Int4{Int32: 0, Valid: true}},
	}
	for _, tt := range tests {
		if got := boostedRating(tt.in); got != tt.want {
			t.Errorf("boostedRating(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestSplitLines(t *testing.T) {
	got := splitLines(" Virginia \r\n\n Perique\n  \nBurley")
	want := []string{"Virginia", "Perique", "Burley"}
	if len(got) != len(want) {
		t.Fatalf("splitLines() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitLines()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
