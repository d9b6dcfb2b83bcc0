// Package normalize rewrites free-text product titles into the canonical form
// used for catalog matching.
//
// A Cleaner applies an ordered list of rules. Each rule replaces every
// occurrence of a literal substring or regular expression. Rules are not
// checked for idempotence, so their order is significant and preserved
// exactly as configured. Exceptions keyed by an exact (trimmed, pre-rule)
// title switch individual rules off for that title only.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule is one rewrite step.
type Rule struct {
	ID          string `json:"id" yaml:"id" toml:"id"`
	Pattern     string `json:"pattern" yaml:"pattern" toml:"pattern"`
	Regex       bool   `json:"regex,omitempty" yaml:"regex,omitempty" toml:"regex,omitempty"`
	Replacement string `json:"replacement" yaml:"replacement" toml:"replacement"`
}

// Exception disables rules for one exact title.
type Exception struct {
	Title string   `json:"title" yaml:"title" toml:"title"`
	Skip  []string `json:"skip" yaml:"skip" toml:"skip"`
}

// RuleSet is the mutable configuration a Cleaner is built from.
type RuleSet struct {
	Rules      []Rule      `json:"rules" yaml:"rules" toml:"rules"`
	Exceptions []Exception `json:"exceptions" yaml:"exceptions" toml:"exceptions"`
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

func (r compiledRule) apply(s string) string {
	if r.re != nil {
		return r.re.ReplaceAllString(s, r.Replacement)
	}
	return strings.ReplaceAll(s, r.Pattern, r.Replacement)
}

// Cleaner is an immutable, compiled RuleSet. It is safe for concurrent use.
type Cleaner struct {
	rules      []compiledRule
	exceptions []Exception
}

// New compiles set. Rule ids must be unique and patterns non-empty.
func New(set RuleSet) (*Cleaner, error) {
	c := &Cleaner{
		rules:      make([]compiledRule, 0, len(set.Rules)),
		exceptions: make([]Exception, 0, len(set.Exceptions)),
	}

	ids := make(map[string]struct{}, len(set.Rules))
	for i, rule := range set.Rules {
		rule.ID = strings.TrimSpace(rule.ID)
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		if _, dup := ids[rule.ID]; dup {
			return nil, fmt.Errorf("rule %q: duplicate id", rule.ID)
		}
		ids[rule.ID] = struct{}{}

		if rule.Pattern == "" {
			return nil, fmt.Errorf("rule %q: pattern is required", rule.ID)
		}

		cr := compiledRule{Rule: rule}
		if rule.Regex {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %q: compile pattern: %w", rule.ID, err)
			}
			cr.re = re
		}
		c.rules = append(c.rules, cr)
	}

	for _, ex := range set.Exceptions {
		title := strings.TrimSpace(ex.Title)
		if title == "" {
			return nil, fmt.Errorf("exception with empty title")
		}
		skip := make([]string, len(ex.Skip))
		copy(skip, ex.Skip)
		c.exceptions = append(c.exceptions, Exception{Title: title, Skip: skip})
	}

	return c, nil
}

// MustNew is New for static rule sets; it panics on error.
func MustNew(set RuleSet) *Cleaner {
	c, err := New(set)
	if err != nil {
		panic(err)
	}
	return c
}

// Clean returns the canonical form of raw. ok is false when raw is blank,
// which callers must treat as "nothing to clean" rather than an empty result.
func (c *Cleaner) Clean(raw string) (cleaned string, ok bool) {
	return c.run(raw, nil)
}

// Outcome of one rule during a traced run.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
)

// Step records what one rule did.
type Step struct {
	RuleID    string  `json:"ruleId"`
	Outcome   Outcome `json:"outcome"`
	Before    string  `json:"before"`
	After     string  `json:"after"`
	SkippedBy string  `json:"skippedBy,omitempty"` // exception title
}

// Trace is the debug view of one cleaning run.
type Trace struct {
	Input      string   `json:"input"`
	Output     string   `json:"output"`
	Null       bool     `json:"null"`
	Exceptions []string `json:"exceptions,omitempty"`
	Steps      []Step   `json:"steps"`
}

// Trace runs the same evaluation as Clean while recording every rule.
func (c *Cleaner) Trace(raw string) Trace {
	tr := Trace{Input: raw}
	out, ok := c.run(raw, func(s Step) {
		tr.Steps = append(tr.Steps, s)
	})
	tr.Output = out
	tr.Null = !ok
	if ok {
		tr.Exceptions = c.matchingExceptions(strings.TrimSpace(raw))
	}
	return tr
}

// run is the single evaluation routine shared by Clean and Trace.
func (c *Cleaner) run(raw string, observe func(Step)) (string, bool) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", false
	}

	omit := c.omitted(title)

	current := title
	for _, rule := range c.rules {
		if by, skip := omit[rule.ID]; skip {
			if observe != nil {
				observe(Step{RuleID: rule.ID, Outcome: OutcomeSkipped, Before: current, After: current, SkippedBy: by})
			}
			continue
		}
		next := rule.apply(current)
		if observe != nil {
			outcome := OutcomeUnchanged
			if next != current {
				outcome = OutcomeApplied
			}
			observe(Step{RuleID: rule.ID, Outcome: outcome, Before: current, After: next})
		}
		current = next
	}

	return strings.Join(strings.Fields(current), " "), true
}

// omitted unions the skip lists of every exception matching title. The value
// is the first exception title that disabled the rule.
func (c *Cleaner) omitted(title string) map[string]string {
	var omit map[string]string
	for _, ex := range c.exceptions {
		if ex.Title != title {
			continue
		}
		if omit == nil {
			omit = make(map[string]string)
		}
		for _, id := range ex.Skip {
			if _, seen := omit[id]; !seen {
				omit[id] = ex.Title
			}
		}
	}
	return omit
}

func (c *Cleaner) matchingExceptions(title string) []string {
	var out []string
	for _, ex := range c.exceptions {
		if ex.Title == title {
			out = append(out, ex.Title)
		}
	}
	return out
}

// Rules returns a copy of the configured rules in evaluation order.
func (c *Cleaner) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.Rule
	}
	return out
}
