package enum

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeSource struct {
	rows    map[Table][]string
	lookups int
	err     error
}

func (f *fakeSource) LookupID(_ context.Context, table Table, name string) (int64, bool, error) {
	f.lookups++
	if f.err != nil {
		return 0, false, f.err
	}
	for i, n := range f.rows[table] {
		if strings.EqualFold(n, name) {
			return int64(i + 1), true, nil
		}
	}
	return 0, false, nil
}

func (f *fakeSource) ListNames(_ context.Context, table Table) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[table], nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{rows: map[Table][]string{
		TastingNotes: {"Dark Fruits", "Citrus", "Vanilla", "Dark Chocolate"},
		Brands:       {"Samuel Gawith", "Poschl", "Gawith Hoggarth"},
		Grinds:       {"Fine", "Coarse"},
	}}
}

// ============================================================================
// Resolve Tests
// ============================================================================

func TestResolve_CaseInsensitive(t *testing.T) {
	src := newFakeSource()
	r := NewResolver(src, nil, Aliases{})

	for _, in := range []string{"Citrus", "citrus", "CITRUS", "  Citrus  "} {
		id, err := r.Resolve(context.Background(), TastingNotes, in)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", in, err)
		}
		if id != 2 {
			t.Errorf("Resolve(%q) = %d, want 2", in, id)
		}
	}
}

func TestResolve_NoFuzzyMatch(t *testing.T) {
	r := NewResolver(newFakeSource(), nil, Aliases{})

	_, err := r.Resolve(context.Background(), TastingNotes, "Citru")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Resolve() error = %v, want *NotFoundError", err)
	}
	if nf.Table != TastingNotes || nf.Value != "Citru" {
		t.Errorf("NotFoundError = %+v", nf)
	}
}

func TestResolve_AliasApplied(t *testing.T) {
	aliases, err := NewAliases(map[string]map[string]string{
		"tasting_notes": {"Dark Fruit": "Dark Fruits"},
	})
	if err != nil {
		t.Fatalf("NewAliases() error = %v", err)
	}
	r := NewResolver(newFakeSource(), nil, aliases)

	id, err := r.Resolve(context.Background(), TastingNotes, "dark fruit")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id != 1 {
		t.Errorf("Resolve() = %d, want 1", id)
	}

	// Aliases are scoped to their table.
	if _, err := r.Resolve(context.Background(), Brands, "Dark Fruit"); err == nil {
		t.Error("Resolve() in other table expected error")
	}
}

func TestResolve_NotFoundCarriesPostAliasValue(t *testing.T) {
	aliases, _ := NewAliases(map[string]map[string]string{
		"tasting_notes": {"Stone Fruit": "Stone Fruits"},
	})
	r := NewResolver(newFakeSource(), nil, aliases)

	_, err := r.Resolve(context.Background(), TastingNotes, "Stone Fruit")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want *NotFoundError", err)
	}
	if nf.Value != "Stone Fruits" {
		t.Errorf("Value = %q, want %q", nf.Value, "Stone Fruits")
	}
	if !strings.Contains(nf.Error(), "tasting_notes") {
		t.Errorf("Error() = %q, want table name", nf.Error())
	}
}

func TestResolve_Blank(t *testing.T) {
	src := newFakeSource()
	r := NewResolver(src, nil, Aliases{})

	var nf *NotFoundError
	if _, err := r.Resolve(context.Background(), Grinds, "  "); !errors.As(err, &nf) {
		t.Errorf("Resolve(blank) error = %v, want *NotFoundError", err)
	}
	if src.lookups != 0 {
		t.Errorf("lookups = %d, want 0", src.lookups)
	}
}

func TestResolve_SourceError(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("connection reset")
	r := NewResolver(src, nil, Aliases{})

	_, err := r.Resolve(context.Background(), Grinds, "Fine")
	if err == nil || !errors.Is(err, src.err) {
		t.Errorf("Resolve() error = %v, want wrapped source error", err)
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		t.Error("source failure must not be reported as not found")
	}
}

func TestResolveMany(t *testing.T) {
	r := NewResolver(newFakeSource(), nil, Aliases{})

	ids, err := r.ResolveMany(context.Background(), TastingNotes, []string{"Citrus", "", "vanilla", "CITRUS"})
	if err != nil {
		t.Fatalf("ResolveMany() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 3 {
		t.Errorf("ResolveMany() = %v, want [2 3]", ids)
	}

	if _, err := r.ResolveMany(context.Background(), TastingNotes, []string{"Citrus", "Smoke"}); err == nil {
		t.Error("ResolveMany() expected error for unknown label")
	}
}

// ============================================================================
// Cache Tests
// ============================================================================

func TestResolve_UsesCache(t *testing.T) {
	src := newFakeSource()
	cache := NewCache(time.Minute)
	r := NewResolver(src, cache, Aliases{})

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(context.Background(), Grinds, "fine"); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
	}
	if src.lookups != 1 {
		t.Errorf("lookups = %d, want 1", src.lookups)
	}

	// Case variants share a key.
	if _, err := r.Resolve(context.Background(), Grinds, "FINE"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if src.lookups != 1 {
		t.Errorf("lookups after case variant = %d, want 1", src.lookups)
	}
}

func TestResolve_MissesAreNotCached(t *testing.T) {
	src := newFakeSource()
	r := NewResolver(src, NewCache(time.Minute), Aliases{})

	r.Resolve(context.Background(), Grinds, "Medium")
	src.rows[Grinds] = append(src.rows[Grinds], "Medium")

	if _, err := r.Resolve(context.Background(), Grinds, "Medium"); err != nil {
		t.Errorf("Resolve() after insert error = %v", err)
	}
}

func TestCache_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute)
	c.now = func() time.Time { return now }

	c.Put(Brands, "Poschl", 7)
	if id, ok := c.Get(Brands, "poschl"); !ok || id != 7 {
		t.Fatalf("Get() = %d, %v, want 7, true", id, ok)
	}

	now = now.Add(time.Minute)
	if _, ok := c.Get(Brands, "Poschl"); ok {
		t.Error("Get() after TTL returned hit")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after eviction", c.Len())
	}
}

func TestCache_KeyedByTable(t *testing.T) {
	c := NewCache(time.Minute)
	c.Put(Brands, "Fine", 1)
	if _, ok := c.Get(Grinds, "Fine"); ok {
		t.Error("Get() crossed tables")
	}
}

func TestResolve_CacheMatchesStoreCaseRules(t *testing.T) {
	// The store compares with lower(), which keeps "Straße" and "Strasse"
	// apart. A cached hit for one must not answer for the other.
	src := &fakeSource{rows: map[Table][]string{
		Brands: {"Straße", "Strasse"},
	}}
	r := NewResolver(src, NewCache(time.Minute), Aliases{})

	tests := []struct {
		name string
		want int64
	}{
		{"Straße", 1},
		{"Strasse", 2},
		{"STRASSE", 2},
		{"straße", 1},
	}
	for _, tt := range tests {
		got, err := r.Resolve(context.Background(), Brands, tt.name)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
	if src.lookups != 2 {
		t.Errorf("lookups = %d, want 2", src.lookups)
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache(time.Minute)
	c.Put(Brands, "a", 1)
	c.Put(Brands, "b", 2)
	c.Get(Brands, "a")

	c.Invalidate()
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
	if hits, misses := c.Stats(); hits != 0 || misses != 0 {
		t.Errorf("Stats() = %d, %d, want 0, 0", hits, misses)
	}
}

func TestCache_NilIsDisabled(t *testing.T) {
	var c *Cache
	c.Put(Brands, "a", 1)
	if _, ok := c.Get(Brands, "a"); ok {
		t.Error("nil cache returned hit")
	}
	c.Invalidate()
}

// ============================================================================
// Alias and Suggestion Tests
// ============================================================================

func TestNewAliases_Validation(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]map[string]string
	}{
		{"unknown table", map[string]map[string]string{"flavours": {"a": "b"}}},
		{"blank surface", map[string]map[string]string{"cures": {" ": "b"}}},
		{"blank canonical", map[string]map[string]string{"cures": {"a": ""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAliases(tt.raw); err == nil {
				t.Error("NewAliases() expected error")
			}
		})
	}
}

func TestRank(t *testing.T) {
	names := []string{"Dark Fruits", "Citrus", "Vanilla", "Dark Chocolate", "Floral", "Earthy", "Dried Fruit"}

	got := Rank("Dark Fruit", names, 10)
	if len(got) == 0 || got[0] != "Dark Fruits" {
		t.Fatalf("Rank() = %v, want Dark Fruits first", got)
	}
	if len(got) > MaxSuggestions {
		t.Errorf("Rank() returned %d, cap is %d", len(got), MaxSuggestions)
	}
}

func TestRank_BlankValue(t *testing.T) {
	got := Rank("", []string{"c", "a", "b"}, 2)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Rank(blank) = %v, want [a b]", got)
	}
}

func TestSuggest(t *testing.T) {
	r := NewResolver(newFakeSource(), nil, Aliases{})

	got, err := r.Suggest(context.Background(), Brands, "Samuel Gawiths", MaxSuggestions)
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if len(got) == 0 || got[0] != "Samuel Gawith" {
		t.Errorf("Suggest() = %v, want Samuel Gawith first", got)
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical ignoring case", "Dark Fruits", "dark fruits ", 1, 1},
		{"close", "Navy Flake", "Navy Flakes", 0.5, 1},
		{"unrelated", "Navy Flake", "Cherry Cavendish", 0, 0.5},
		{"blank", "", "Navy Flake", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("Score(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}
