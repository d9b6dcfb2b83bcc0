// Package enum resolves free-text labels to lookup-table identifiers.
//
// Matching is exact after Unicode case folding. A per-table alias map may
// substitute a surface value with its canonical label before the lookup;
// there is no fuzzy matching. Resolved ids are kept in a Cache whose owner
// decides its lifetime (one cache per pipeline run).
package enum

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Table names a lookup table.
type Table string

const (
	ProductTypes     Table = "product_types"
	Brands           Table = "brands"
	MoistureLevels   Table = "moisture_levels"
	Grinds           Table = "grinds"
	NicotineLevels   Table = "nicotine_levels"
	ExperienceLevels Table = "experience_levels"
	TobaccoTypes     Table = "tobacco_types"
	Cures            Table = "cures"
	TastingNotes     Table = "tasting_notes"
)

var allTables = []Table{
	ProductTypes,
	Brands,
	MoistureLevels,
	Grinds,
	NicotineLevels,
	ExperienceLevels,
	TobaccoTypes,
	Cures,
	TastingNotes,
}

// Tables returns every lookup table.
func Tables() []Table {
	out := make([]Table, len(allTables))
	copy(out, allTables)
	return out
}

// Valid reports whether t is a known lookup table. Table names are
// interpolated into SQL, so callers must check this first.
func (t Table) Valid() bool {
	for _, known := range allTables {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTable converts a table name into a Table.
func ParseTable(name string) (Table, error) {
	t := Table(strings.TrimSpace(name))
	if !t.Valid() {
		return "", fmt.Errorf("unknown lookup table %q", name)
	}
	return t, nil
}

// Fold returns the case-insensitive comparison key for a label.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Source reads lookup tables. LookupID matches name case-insensitively.
type Source interface {
	LookupID(ctx context.Context, table Table, name string) (id int64, found bool, err error)
	ListNames(ctx context.Context, table Table) ([]string, error)
}

// NotFoundError reports a label absent from its lookup table. Value is the
// label after alias substitution.
type NotFoundError struct {
	Table Table
	Value string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("value not found in %s: %q", e.Table, e.Value)
}

// ErrorKind classifies the failure for error reporting.
func (e *NotFoundError) ErrorKind() string { return "not_found" }
