package core

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/reviewflow/internal/database"
	"github.com/JonMunkholm/reviewflow/internal/enum"
	"github.com/JonMunkholm/reviewflow/internal/normalize"
	"github.com/JonMunkholm/reviewflow/internal/services/catalog"
	"github.com/JonMunkholm/reviewflow/internal/services/forms"
	"github.com/JonMunkholm/reviewflow/internal/status"
	"github.com/JonMunkholm/reviewflow/internal/testsupport"
	"github.com/jackc/pgx/v5/pgtype"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeCatalog struct {
	mu       sync.Mutex
	products []catalog.Product
	err      error
	calls    []string
}

func (f *fakeCatalog) SearchProducts(_ context.Context, title, vendor string) ([]catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, title+"|"+vendor)
	if f.err != nil {
		return nil, f.err
	}
	var out []catalog.Product
	for _, p := range f.products {
		if vendor != "" && !strings.EqualFold(p.Vendor, vendor) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

type fakeLister struct {
	responses []forms.Response
	err       error
	queries   []forms.Query
}

func (f *fakeLister) FetchAll(_ context.Context, q forms.Query) ([]forms.Response, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.responses, nil
}

// stepClock advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

// ============================================================================
// Seeding
// ============================================================================

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type lookupIDs map[string]int64

// seedLookups fills every lookup table and returns name -> id.
func seedLookups(m *testsupport.MemStore) lookupIDs {
	ids := lookupIDs{}
	add := func(table enum.Table, names ...string) {
		for i, id := range m.AddLookup(table, names...) {
			ids[names[i]] = id
		}
	}
	add(enum.ProductTypes, "Pipe Tobacco", "Cigar")
	add(enum.Brands, "Samuel Gawith", "Poschl", "Dunhill")
	add(enum.MoistureLevels, "Dry", "Medium", "Moist")
	add(enum.Grinds, "Flake", "Ribbon", "Plug")
	add(enum.NicotineLevels, "Mild", "Strong")
	add(enum.ExperienceLevels, "Beginner", "Expert")
	add(enum.TobaccoTypes, "Virginia", "Perique", "Burley", "Latakia")
	add(enum.Cures, "Flue", "Air", "Fire")
	add(enum.TastingNotes, "Dark Fruits", "Citrus", "Hay", "Smoke")
	return ids
}

func text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: true}
}

// readySubmission is a fully populated submission awaiting generation.
func readySubmission(id string) database.Submission {
	return database.Submission{
		ID:              id,
		SubmittedAt:     baseTime,
		ReviewerName:    "Ada Lovelace",
		ProductTitle:    text("Samuel Gawiths Full Virginia Flake"),
		CleanedTitle:    text("Samuel Gawith Full Virginia Flake"),
		ProductType:     text("Pipe Tobacco"),
		Brand:           text("Samuel Gawith"),
		MoistureLevel:   text("Medium"),
		Grind:           text("Flake"),
		TobaccoTypes:    text("Virginia\nPerique"),
		Cures:           text("Flue"),
		TastingNotes:    text("Dark Fruit\nCitrus"),
		Review:          text("Bright and grassy."),
		Rating:          pgtype.Int4{Int32: 4, Valid: true},
		Status:          string(status.ShopifyMapped),
		StatusUpdatedAt: baseTime,
	}
}

func readyMatch(id string) database.CatalogMatch {
	return database.CatalogMatch{
		SubmissionID: id,
		ProductID:    101,
		Handle:       "samuel-gawith-full-virginia-flake",
		Title:        "Samuel Gawith Full Virginia Flake",
		ProductType:  "Pipe Tobacco",
		Vendor:       "Samuel Gawith",
		MatchedAt:    baseTime,
	}
}

// seedReady stores a submission and match ready for generation.
func seedReady(m *testsupport.MemStore, sub database.Submission) {
	m.PutSubmission(sub)
	m.PutCatalogMatch(readyMatch(sub.ID))
}

// newTestService returns a Service over a MemStore seeded with one user and
// every lookup table.
func newTestService(t testing.TB, opts Options) (*Service, *testsupport.MemStore, lookupIDs) {
	t.Helper()
	m := testsupport.NewMemStore()
	m.AddUser("Ada Lovelace")
	ids := seedLookups(m)

	aliases, err := enum.NewAliases(normalize.DefaultAliases())
	if err != nil {
		t.Fatalf("NewAliases() error = %v", err)
	}
	opts.Aliases = aliases
	return NewService(m, opts), m, ids
}

func mustGet(t *testing.T, m *testsupport.MemStore, id string) database.Submission {
	t.Helper()
	sub, err := m.GetSubmission(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSubmission(%s) error = %v", id, err)
	}
	return sub
}

func links(t *testing.T, m *testsupport.MemStore, j database.Junction, specID int64) []int64 {
	t.Helper()
	ids, err := m.ListSpecificationLinks(context.Background(), j, specID)
	if err != nil {
		t.Fatalf("ListSpecificationLinks() error = %v", err)
	}
	return ids
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[int64]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

type errTest string

func (e errTest) Error() string { return string(e) }
