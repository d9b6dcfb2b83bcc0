package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/JonMunkholm/reviewflow/internal/database"
	"github.com/JonMunkholm/reviewflow/internal/services/catalog"
	"github.com/JonMunkholm/reviewflow/internal/services/forms"
	"github.com/JonMunkholm/reviewflow/internal/status"
	"github.com/jackc/pgx/v5/pgtype"
)

// ============================================================================
// Stage parsing
// ============================================================================

func TestParseStage(t *testing.T) {
	tests := []struct {
		in      string
		want    Stage
		wantErr bool
	}{
		{"ingest", StageIngest, false},
		{"clean_title", StageCleanTitle, false},
		{" Match ", StageMatchProduct, false},
		{"generate", StageGenerateSpecification, false},
		{"generate_specification", StageGenerateSpecification, false},
		{"publish", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStage(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStage(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStageTargets(t *testing.T) {
	// Every stage after ingest enters the status whose predecessor is the
	// previous stage's target.
	stages := Stages()
	for i := 1; i < len(stages); i++ {
		prev, cur := stages[i-1].Target(), stages[i].Target()
		from, ok := status.RequiredPredecessor(cur)
		if !ok || from != prev {
			t.Errorf("%s: predecessor of %s = %q, want %q", stages[i], cur, from, prev)
		}
	}
}

// ============================================================================
// Batch runs
// ============================================================================

func TestRunStage_PartialFailures(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})

	const n, k = 6, 2
	for i := 0; i < n; i++ {
		sub := readySubmission(fmt.Sprintf("sub-%d", i))
		sub.SubmittedAt = baseTime.Add(time.Duration(i) * time.Minute)
		if i < k {
			sub.Grind = text("Cube Cut")
		}
		seedReady(m, sub)
	}

	summary, err := svc.RunStage(context.Background(), StageGenerateSpecification)
	if err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}

	if summary.Attempted != n {
		t.Errorf("Attempted = %d, want %d", summary.Attempted, n)
	}
	if summary.Succeeded != n-k {
		t.Errorf("Succeeded = %d, want %d", summary.Succeeded, n-k)
	}
	if summary.Failed != k || len(summary.Failures) != k {
		t.Errorf("Failed = %d (%d entries), want %d", summary.Failed, len(summary.Failures), k)
	}
	if summary.FailuresByReason[KindValidation] != k {
		t.Errorf("FailuresByReason = %v, want %d validation", summary.FailuresByReason, k)
	}

	advanced := 0
	for i := 0; i < n; i++ {
		sub := mustGet(t, m, fmt.Sprintf("sub-%d", i))
		if sub.Status == string(status.SpecificationGenerated) {
			advanced++
		}
		if i < k && sub.Status != string(status.ShopifyMapped) {
			t.Errorf("%s status = %q, want unchanged", sub.ID, sub.Status)
		}
	}
	if advanced != n-k {
		t.Errorf("advanced = %d, want %d", advanced, n-k)
	}
	if got := len(m.Specifications()); got != n-k {
		t.Errorf("specifications = %d, want %d", got, n-k)
	}

	events := m.Events()
	if len(events) != k {
		t.Fatalf("events = %d, want %d", len(events), k)
	}
	for _, e := range events {
		if e.RunID.String() != summary.RunID {
			t.Errorf("event run id = %s, want %s", e.RunID, summary.RunID)
		}
		if e.Field.String != "grind" || e.Code != "VAL003" {
			t.Errorf("event = %+v, want grind VAL003", e)
		}
	}
}

func TestRunStage_OnlyExactPredecessor(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})

	ready := readySubmission("ready")
	seedReady(m, ready)

	early := readySubmission("early")
	early.Status = string(status.TitleCleaned)
	seedReady(m, early)

	done := readySubmission("done")
	done.Status = string(status.SpecificationGenerated)
	seedReady(m, done)

	// Right status, but no catalog match.
	m.PutSubmission(readySubmission("unmatched"))

	summary, err := svc.RunStage(context.Background(), StageGenerateSpecification)
	if err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}
	if summary.Attempted != 1 || summary.Succeeded != 1 {
		t.Errorf("Attempted, Succeeded = %d, %d, want 1, 1", summary.Attempted, summary.Succeeded)
	}
	if got := mustGet(t, m, "early").Status; got != string(status.TitleCleaned) {
		t.Errorf("early status = %q, want untouched", got)
	}
}

func TestRunStage_InfraFailureIsolated(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	seedReady(m, readySubmission("a"))
	b := readySubmission("b")
	b.SubmittedAt = baseTime.Add(time.Minute)
	seedReady(m, b)

	m.FailNext("InsertSpecification", errTest("connection reset by peer"))

	summary, err := svc.RunStage(context.Background(), StageGenerateSpecification)
	if err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}
	if summary.Succeeded != 1 || summary.FailuresByReason[KindInfra] != 1 {
		t.Errorf("summary = %+v, want 1 success and 1 infra failure", summary)
	}
	if got := mustGet(t, m, "a").Status; got != string(status.ShopifyMapped) {
		t.Errorf("a status = %q, want rolled back", got)
	}
	if got := mustGet(t, m, "b").Status; got != string(status.SpecificationGenerated) {
		t.Errorf("b status = %q, want advanced", got)
	}
	if m.Rollbacks != 1 || m.Commits != 1 {
		t.Errorf("Commits, Rollbacks = %d, %d, want 1, 1", m.Commits, m.Rollbacks)
	}
}

func TestRunStage_ListFailureIsError(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	m.FailNext("ListEligible", errTest("connection refused"))

	_, err := svc.RunStage(context.Background(), StageCleanTitle)
	if KindOf(err) != KindInfra {
		t.Errorf("RunStage() error = %v, want infra", err)
	}
}

func TestRunStage_UnknownStage(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	if _, err := svc.RunStage(context.Background(), Stage("publish")); KindOf(err) != KindValidation {
		t.Errorf("RunStage() error = %v, want validation", err)
	}
}

func TestRunStage_SuccessClearsErrorMessage(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	sub := readySubmission("sub-1")
	sub.ErrorMessage = text("previous failure")
	seedReady(m, sub)

	if _, err := svc.RunStage(context.Background(), StageGenerateSpecification); err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}
	if got := mustGet(t, m, "sub-1").ErrorMessage; got.Valid {
		t.Errorf("ErrorMessage = %q, want cleared", got.String)
	}
}

// ============================================================================
// Title cleaning
// ============================================================================

func fetchedSubmission(id, title string) database.Submission {
	sub := readySubmission(id)
	sub.Status = string(status.Fetched)
	sub.CleanedTitle = pgtype.Text{}
	sub.ProductTitle = text(title)
	return sub
}

func TestRunStage_CleanTitle(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	m.PutSubmission(fetchedSubmission("ok", "Samuel Gawiths Kendal Brown"))
	m.PutSubmission(fetchedSubmission("pipes", "Dunhill || Nightcap"))
	m.PutSubmission(fetchedSubmission("blank", "   "))

	summary, err := svc.RunStage(context.Background(), StageCleanTitle)
	if err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}
	// Blank titles are not eligible.
	if summary.Attempted != 2 || summary.Succeeded != 1 {
		t.Errorf("Attempted, Succeeded = %d, %d, want 2, 1", summary.Attempted, summary.Succeeded)
	}

	ok := mustGet(t, m, "ok")
	if ok.CleanedTitle.String != "Samuel Gawith Kendal Brown" {
		t.Errorf("cleaned title = %q, want %q", ok.CleanedTitle.String, "Samuel Gawith Kendal Brown")
	}
	if ok.Status != string(status.TitleCleaned) {
		t.Errorf("status = %q, want %q", ok.Status, status.TitleCleaned)
	}

	if len(summary.Failures) != 1 {
		t.Fatalf("Failures = %+v, want 1", summary.Failures)
	}
	f := summary.Failures[0]
	if f.SubmissionID != "pipes" || f.Field != "product_title" || f.Code != "VAL002" {
		t.Errorf("Failure = %+v, want VAL002 on product_title of pipes", f)
	}
	if f.Label != "Dunhill || Nightcap" {
		t.Errorf("Label = %q, want product title", f.Label)
	}
}

func TestRerunStage_CleanUsesImportedRules(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	m.PutSubmission(fetchedSubmission("sub-1", "Old Gowrie (50g tin)"))

	err := m.ReplaceTitleRules(context.Background(), []database.TitleRule{
		{Position: 1, RuleID: "gowrie", Pattern: "Gowrie", Replacement: "Gowrie Flake"},
	}, nil)
	if err != nil {
		t.Fatalf("ReplaceTitleRules() error = %v", err)
	}

	res, err := svc.RerunStage(context.Background(), "sub-1", StageCleanTitle)
	if err != nil || !res.OK {
		t.Fatalf("RerunStage() err = %v, failure = %+v", err, res.Failure)
	}
	// The default tin-stripping rule is not part of the imported set.
	if got := mustGet(t, m, "sub-1").CleanedTitle.String; got != "Old Gowrie Flake (50g tin)" {
		t.Errorf("cleaned title = %q", got)
	}
}

// ============================================================================
// Catalog matching
// ============================================================================

func cleanedSubmission(id, title string) database.Submission {
	sub := readySubmission(id)
	sub.Status = string(status.TitleCleaned)
	sub.CleanedTitle = text(title)
	return sub
}

func TestRunStage_MatchProduct(t *testing.T) {
	cat := &fakeCatalog{products: []catalog.Product{
		{ID: 1, Handle: "full-virginia-flake", Title: "Samuel Gawith Full Virginia Flake", ProductType: "Pipe Tobacco", Vendor: "Samuel Gawith"},
		{ID: 2, Handle: "best-brown-flake", Title: "Samuel Gawith Best Brown Flake", ProductType: "Pipe Tobacco", Vendor: "Samuel Gawith"},
	}}
	svc, m, _ := newTestService(t, Options{Catalog: cat})
	m.PutSubmission(cleanedSubmission("hit", "samuel gawith full virginia flake"))
	miss := cleanedSubmission("miss", "Zzz Unknown Blend")
	miss.SubmittedAt = baseTime.Add(time.Minute)
	m.PutSubmission(miss)

	summary, err := svc.RunStage(context.Background(), StageMatchProduct)
	if err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("Succeeded, Failed = %d, %d, want 1, 1", summary.Succeeded, summary.Failed)
	}

	match, err := m.GetCatalogMatch(context.Background(), "hit")
	if err != nil {
		t.Fatalf("GetCatalogMatch() error = %v", err)
	}
	if match.Handle != "full-virginia-flake" {
		t.Errorf("Handle = %q, want full-virginia-flake", match.Handle)
	}
	if got := mustGet(t, m, "hit").Status; got != string(status.ShopifyMapped) {
		t.Errorf("status = %q, want %q", got, status.ShopifyMapped)
	}

	f := summary.Failures[0]
	if f.SubmissionID != "miss" || f.Code != "VAL005" || f.Field != "cleaned_title" {
		t.Errorf("Failure = %+v, want VAL005 on cleaned_title", f)
	}
}

func TestRunStage_MatchUpstreamFailure(t *testing.T) {
	cat := &fakeCatalog{err: errors.New("catalog search returned 502 (latency=1ms)")}
	svc, m, _ := newTestService(t, Options{Catalog: cat})
	m.PutSubmission(cleanedSubmission("sub-1", "Anything"))

	summary, err := svc.RunStage(context.Background(), StageMatchProduct)
	if err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}
	if summary.FailuresByReason[KindUpstream] != 1 {
		t.Errorf("FailuresByReason = %v, want 1 upstream", summary.FailuresByReason)
	}
	if summary.Failures[0].Code != "UPS002" {
		t.Errorf("Code = %q, want UPS002", summary.Failures[0].Code)
	}
}

func TestRunStage_MatchRetriesWithoutVendor(t *testing.T) {
	cat := &fakeCatalog{products: []catalog.Product{
		{ID: 7, Handle: "nightcap", Title: "Dunhill Nightcap", Vendor: "Peterson"},
	}}
	svc, m, _ := newTestService(t, Options{Catalog: cat})
	m.PutSubmission(cleanedSubmission("sub-1", "Dunhill Nightcap"))

	if _, err := svc.RunStage(context.Background(), StageMatchProduct); err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}
	if len(cat.calls) != 2 || cat.calls[1] != "Dunhill Nightcap|" {
		t.Errorf("catalog calls = %v, want vendor retry", cat.calls)
	}
	if got := mustGet(t, m, "sub-1").Status; got != string(status.ShopifyMapped) {
		t.Errorf("status = %q, want %q", got, status.ShopifyMapped)
	}
}

// cancellingCatalog cancels the caller's context on its first search.
type cancellingCatalog struct {
	fakeCatalog
	cancel context.CancelFunc
}

func (c *cancellingCatalog) SearchProducts(ctx context.Context, title, vendor string) ([]catalog.Product, error) {
	c.cancel()
	return c.fakeCatalog.SearchProducts(ctx, title, vendor)
}

func TestRunStage_CallerCancelDoesNotStopBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat := &cancellingCatalog{
		fakeCatalog: fakeCatalog{products: []catalog.Product{
			{ID: 1, Handle: "full-virginia-flake", Title: "Samuel Gawith Full Virginia Flake", Vendor: "Samuel Gawith"},
		}},
		cancel: cancel,
	}
	svc, m, _ := newTestService(t, Options{Catalog: cat})
	for i, id := range []string{"sub-1", "sub-2", "sub-3"} {
		sub := cleanedSubmission(id, "Samuel Gawith Full Virginia Flake")
		sub.SubmittedAt = baseTime.Add(time.Duration(i) * time.Minute)
		m.PutSubmission(sub)
	}

	summary, err := svc.RunStage(ctx, StageMatchProduct)
	if err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}
	if summary.Attempted != 3 || summary.Succeeded != 3 || summary.Skipped != 0 {
		t.Errorf("Attempted, Succeeded, Skipped = %d, %d, %d, want 3, 3, 0",
			summary.Attempted, summary.Succeeded, summary.Skipped)
	}
	for _, id := range []string{"sub-1", "sub-2", "sub-3"} {
		if got := mustGet(t, m, id).Status; got != string(status.ShopifyMapped) {
			t.Errorf("%s status = %q, want %q", id, got, status.ShopifyMapped)
		}
	}
}

func TestPickProduct(t *testing.T) {
	products := []catalog.Product{
		{ID: 1, Title: "Orlik Golden Sliced"},
		{ID: 2, Title: "Orlik Dark Strong Kentucky"},
		{ID: 3, Title: "Peterson University Flake"},
	}
	tests := []struct {
		name       string
		title      string
		candidates []catalog.Product
		wantID     int64
		wantOK     bool
	}{
		{"exact ignoring case", "orlik golden sliced", products, 1, true},
		{"single candidate", "anything at all", products[2:], 3, true},
		{"closest above threshold", "Orlik Golden Slice", products, 1, true},
		{"nothing close", "Capstan Blue", products, 0, false},
		{"no candidates", "Capstan Blue", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickProduct(tt.title, tt.candidates)
			if ok != tt.wantOK || got.ID != tt.wantID {
				t.Errorf("pickProduct() = %d, %v, want %d, %v", got.ID, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

// ============================================================================
// Single submissions
// ============================================================================

func TestRerunStage_StateViolation(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	m.PutSubmission(fetchedSubmission("sub-1", "Dunhill Nightcap"))

	res, err := svc.RerunStage(context.Background(), "sub-1", StageMatchProduct)
	if err != nil {
		t.Fatalf("RerunStage() error = %v", err)
	}
	if res.OK || res.Failure.Kind != KindStateViolation || res.Failure.Code != "ST001" {
		t.Errorf("result = %+v, want ST001 state violation", res.Failure)
	}
	if res.Status != string(status.Fetched) {
		t.Errorf("Status = %q, want %q", res.Status, status.Fetched)
	}
}

func TestRerunStage_StateViolationKeepsErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		previous pgtype.Text
	}{
		{"no previous message", pgtype.Text{}},
		{"previous message kept", text("earlier upstream failure")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m, _ := newTestService(t, Options{})
			sub := readySubmission("sub-1")
			sub.Status = string(status.SpecificationGenerated)
			sub.ErrorMessage = tt.previous
			m.PutSubmission(sub)

			res, err := svc.RerunStage(context.Background(), "sub-1", StageCleanTitle)
			if err != nil {
				t.Fatalf("RerunStage() error = %v", err)
			}
			if res.OK || res.Failure.Kind != KindStateViolation {
				t.Fatalf("result = %+v, want state violation", res.Failure)
			}
			if got := mustGet(t, m, "sub-1").ErrorMessage; got != tt.previous {
				t.Errorf("ErrorMessage = %+v, want %+v", got, tt.previous)
			}
		})
	}
}

func TestRerunStage_IngestRejected(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	_, err := svc.RerunStage(context.Background(), "sub-1", StageIngest)
	if KindOf(err) != KindStateViolation {
		t.Errorf("RerunStage(ingest) error = %v, want state violation", err)
	}
}

func TestRerunStage_CleanTwiceRejected(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	m.PutSubmission(fetchedSubmission("sub-1", "Dunhill Nightcap"))
	ctx := context.Background()

	if res, err := svc.RerunStage(ctx, "sub-1", StageCleanTitle); err != nil || !res.OK {
		t.Fatalf("first RerunStage() err = %v, failure = %+v", err, res.Failure)
	}
	res, err := svc.RerunStage(ctx, "sub-1", StageCleanTitle)
	if err != nil {
		t.Fatalf("second RerunStage() error = %v", err)
	}
	if res.OK {
		t.Error("second clean succeeded, want state violation")
	}
}

// ============================================================================
// Pipeline and progress
// ============================================================================

func TestRunPipeline_AllStages(t *testing.T) {
	cat := &fakeCatalog{products: []catalog.Product{
		{ID: 1, Handle: "kendal-brown", Title: "Samuel Gawith Kendal Brown", ProductType: "Pipe Tobacco", Vendor: "Samuel Gawith"},
	}}
	lister := &fakeLister{responses: []forms.Response{{
		ID:           "resp-1",
		SubmittedAt:  baseTime,
		Reviewer:     "ada lovelace",
		ProductTitle: "Samuel Gawiths Kendal Brown",
		ProductType:  "Pipe Tobacco",
		Brand:        "Samuel Gawith",
		TobaccoTypes: "Virginia",
		TastingNotes: "Dark Fruit",
		Rating:       5,
	}}}
	svc, m, _ := newTestService(t, Options{Catalog: cat, Forms: lister})

	result, err := svc.RunPipeline(context.Background())
	if err != nil {
		t.Fatalf("RunPipeline() error = %v", err)
	}
	if len(result.Stages) != len(Stages()) {
		t.Fatalf("stages = %d, want %d", len(result.Stages), len(Stages()))
	}
	for _, st := range result.Stages {
		if st.Succeeded != 1 || st.Failed != 0 {
			t.Errorf("%s: Succeeded, Failed = %d, %d, want 1, 0 (%+v)", st.Stage, st.Succeeded, st.Failed, st.Failures)
		}
		if st.RunID != result.RunID {
			t.Errorf("%s run id = %s, want %s", st.Stage, st.RunID, result.RunID)
		}
	}
	if got := mustGet(t, m, "resp-1").Status; got != string(status.SpecificationGenerated) {
		t.Errorf("status = %q, want %q", got, status.SpecificationGenerated)
	}
	specs := m.Specifications()
	if len(specs) != 1 || specs[0].BoostedRating.Int32 != 100 {
		t.Errorf("specifications = %+v, want one with boosted rating 100", specs)
	}
}

func TestRunPipeline_IngestFailureStops(t *testing.T) {
	lister := &fakeLister{err: errors.New("forms responses returned 500 (latency=3ms)")}
	svc, m, _ := newTestService(t, Options{Forms: lister})
	seedReady(m, readySubmission("sub-1"))

	result, err := svc.RunPipeline(context.Background())
	if KindOf(err) != KindUpstream {
		t.Fatalf("RunPipeline() error = %v, want upstream", err)
	}
	if len(result.Stages) != 1 {
		t.Errorf("stages = %d, want only ingest", len(result.Stages))
	}
	if got := mustGet(t, m, "sub-1").Status; got != string(status.ShopifyMapped) {
		t.Errorf("status = %q, want untouched", got)
	}
}

func TestRunStage_ProgressThrottled(t *testing.T) {
	clock := &stepClock{t: baseTime, step: 300 * time.Millisecond}
	svc, m, _ := newTestService(t, Options{Now: clock.now, ProgressInterval: time.Second})

	const n = 10
	for i := 0; i < n; i++ {
		sub := readySubmission(fmt.Sprintf("sub-%02d", i))
		sub.SubmittedAt = baseTime.Add(time.Duration(i) * time.Minute)
		seedReady(m, sub)
	}

	events, unsubscribe := svc.Progress().Subscribe()
	defer unsubscribe()

	if _, err := svc.RunStage(context.Background(), StageGenerateSpecification); err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}

	var got []Progress
	for len(events) > 0 {
		got = append(got, <-events)
	}
	if len(got) == 0 || len(got) >= n {
		t.Fatalf("progress events = %d, want between 1 and %d", len(got), n-1)
	}
	last := got[len(got)-1]
	if !last.Done || last.Processed != n || last.Percent != 100 || last.ETASeconds != 0 {
		t.Errorf("last event = %+v, want done at 100%%", last)
	}
	first := got[0]
	if first.Done || first.ETASeconds <= 0 {
		t.Errorf("first event = %+v, want in-flight with an ETA", first)
	}
}

func TestRunStage_LimiterRejectsConcurrentRun(t *testing.T) {
	svc, _, _ := newTestService(t, Options{MaxConcurrentRuns: 1, RunWaitTime: 10 * time.Millisecond})

	if err := svc.Limiter().Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer svc.Limiter().Release()

	if _, err := svc.RunStage(context.Background(), StageCleanTitle); !errors.Is(err, ErrTooManyRuns) {
		t.Errorf("RunStage() error = %v, want ErrTooManyRuns", err)
	}
}
