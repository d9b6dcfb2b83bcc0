package enum

import (
	"context"
	"fmt"
	"strings"
)

// Aliases substitutes surface labels with canonical ones, per table.
// Keys are folded, so "dark fruit" and "Dark Fruit" share one entry.
type Aliases struct {
	byTable map[Table]map[string]string
}

// NewAliases builds an alias set from a table -> (surface -> canonical) map,
// the shape used by the rules file.
func NewAliases(raw map[string]map[string]string) (Aliases, error) {
	a := Aliases{byTable: make(map[Table]map[string]string, len(raw))}
	for name, subs := range raw {
		table, err := ParseTable(name)
		if err != nil {
			return Aliases{}, fmt.Errorf("aliases: %w", err)
		}
		m := make(map[string]string, len(subs))
		for from, to := range subs {
			key := Fold(from)
			if key == "" || strings.TrimSpace(to) == "" {
				return Aliases{}, fmt.Errorf("aliases: %s: empty alias %q -> %q", table, from, to)
			}
			m[key] = strings.TrimSpace(to)
		}
		a.byTable[table] = m
	}
	return a, nil
}

// Apply returns the canonical label for value, or value itself when no
// alias exists. Aliases are not chained.
func (a Aliases) Apply(table Table, value string) string {
	value = strings.TrimSpace(value)
	if to, ok := a.byTable[table][Fold(value)]; ok {
		return to
	}
	return value
}

// Len returns the number of alias entries across all tables.
func (a Aliases) Len() int {
	n := 0
	for _, m := range a.byTable {
		n += len(m)
	}
	return n
}

// Resolver maps labels to lookup ids through a Cache.
type Resolver struct {
	source  Source
	cache   *Cache
	aliases Aliases
}

// NewResolver binds a resolver to a source. A nil cache disables caching.
func NewResolver(source Source, cache *Cache, aliases Aliases) *Resolver {
	return &Resolver{source: source, cache: cache, aliases: aliases}
}

// Resolve returns the id of name in table. An unknown label yields a
// *NotFoundError carrying the post-alias value. Only hits are cached.
func (r *Resolver) Resolve(ctx context.Context, table Table, name string) (int64, error) {
	value := r.aliases.Apply(table, name)
	if value == "" {
		return 0, &NotFoundError{Table: table, Value: value}
	}

	if id, ok := r.cache.Get(table, value); ok {
		return id, nil
	}

	id, found, err := r.source.LookupID(ctx, table, value)
	if err != nil {
		return 0, fmt.Errorf("lookup %s %q: %w", table, value, err)
	}
	if !found {
		return 0, &NotFoundError{Table: table, Value: value}
	}

	r.cache.Put(table, value, id)
	return id, nil
}

// ResolveMany resolves each label in order, skipping blanks and duplicate
// ids. The first failure stops resolution.
func (r *Resolver) ResolveMany(ctx context.Context, table Table, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	seen := make(map[int64]bool, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		id, err := r.Resolve(ctx, table, name)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// Suggest returns up to limit labels from table that most resemble value.
func (r *Resolver) Suggest(ctx context.Context, table Table, value string, limit int) ([]string, error) {
	names, err := r.source.ListNames(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return Rank(value, names, limit), nil
}
