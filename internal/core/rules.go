package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/reviewflow/internal/database"
	"github.com/JonMunkholm/reviewflow/internal/enum"
	"github.com/JonMunkholm/reviewflow/internal/logging"
	"github.com/JonMunkholm/reviewflow/internal/normalize"
)

// ActiveRuleSet returns the stored title rules, or the built-in set when
// none have been imported.
func (s *Service) ActiveRuleSet(ctx context.Context) (normalize.RuleSet, error) {
	rules, err := s.db.ListTitleRules(ctx)
	if err != nil {
		return normalize.RuleSet{}, infraError(fmt.Errorf("list title rules: %w", err))
	}
	if len(rules) == 0 {
		return normalize.DefaultRuleSet(), nil
	}
	exceptions, err := s.db.ListTitleRuleExceptions(ctx)
	if err != nil {
		return normalize.RuleSet{}, infraError(fmt.Errorf("list title rule exceptions: %w", err))
	}

	set := normalize.RuleSet{
		Rules:      make([]normalize.Rule, 0, len(rules)),
		Exceptions: make([]normalize.Exception, 0, len(exceptions)),
	}
	for _, r := range rules {
		set.Rules = append(set.Rules, normalize.Rule{
			ID:          r.RuleID,
			Pattern:     r.Pattern,
			Regex:       r.IsRegex,
			Replacement: r.Replacement,
		})
	}
	for _, e := range exceptions {
		set.Exceptions = append(set.Exceptions, normalize.Exception{Title: e.Title, Skip: e.SkipIDs})
	}
	return set, nil
}

// ImportResult reports what ImportRules stored.
type ImportResult struct {
	Rules      int `json:"rules"`
	Exceptions int `json:"exceptions"`
	Aliases    int `json:"aliases"`
}

// ImportRules replaces the stored title rules and exceptions with f in one
// transaction. Aliases in f, when present, replace the active aliases.
func (s *Service) ImportRules(ctx context.Context, f normalize.File) (*ImportResult, error) {
	if _, err := normalize.New(f.RuleSet); err != nil {
		return nil, validationError("rules", "", fmt.Errorf("invalid rules: %w", err))
	}

	var aliases enum.Aliases
	if f.Aliases != nil {
		var err error
		if aliases, err = enum.NewAliases(f.Aliases); err != nil {
			return nil, validationError("aliases", "", fmt.Errorf("invalid rules: %w", err))
		}
	}

	rules := make([]database.TitleRule, len(f.Rules))
	for i, r := range f.Rules {
		rules[i] = database.TitleRule{
			Position:    int32(i + 1),
			RuleID:      r.ID,
			Pattern:     r.Pattern,
			IsRegex:     r.Regex,
			Replacement: r.Replacement,
		}
	}
	exceptions := make([]database.TitleRuleException, len(f.Exceptions))
	for i, e := range f.Exceptions {
		exceptions[i] = database.TitleRuleException{Title: e.Title, SkipIDs: e.Skip}
	}

	err := s.db.InTx(ctx, func(q database.Store) error {
		return q.ReplaceTitleRules(ctx, rules, exceptions)
	})
	if err != nil {
		return nil, infraError(fmt.Errorf("replace title rules: %w", err))
	}

	result := &ImportResult{Rules: len(rules), Exceptions: len(exceptions)}
	if f.Aliases != nil {
		s.SetAliases(aliases)
		result.Aliases = aliases.Len()
	}

	logging.FromContext(ctx).Info("title rules imported",
		"rules", result.Rules,
		"exceptions", result.Exceptions,
		"aliases", result.Aliases,
	)
	return result, nil
}

// PreviewTitle cleans title with the active rules and reports what every
// rule did.
func (s *Service) PreviewTitle(ctx context.Context, title string) (normalize.Trace, error) {
	set, err := s.ActiveRuleSet(ctx)
	if err != nil {
		return normalize.Trace{}, err
	}
	c, err := normalize.New(set)
	if err != nil {
		return normalize.Trace{}, validationError("rules", "", fmt.Errorf("invalid rules: %w", err))
	}
	return c.Trace(title), nil
}
