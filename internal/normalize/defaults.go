package normalize

// Rule ids referenced by the default exceptions.
const (
	RuleBrandPrefixPoschl = "brand-prefix-poschl"
	RulePossessiveS       = "possessive-s"
)

// DefaultRuleSet is used when no rules have been stored yet.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Rules: []Rule{
			{ID: "html-ampersand", Pattern: "&amp;", Replacement: "&"},
			{ID: "poschl-umlaut", Pattern: "Pöschl", Replacement: "Poschl"},
			{ID: RuleBrandPrefixPoschl, Pattern: "Ozona", Replacement: "Poschl | Ozona"},
			{ID: RulePossessiveS, Pattern: `\b(Gawith|Hoggarth|Dunhill)s\b`, Regex: true, Replacement: "${1}"},
			{ID: "pipe-spacing", Pattern: `\s*\|\s*`, Regex: true, Replacement: " | "},
			{ID: "strip-trailing-tin", Pattern: `(?i)\s*\(\s*\d+\s*g\s*tin\s*\)$`, Regex: true, Replacement: ""},
		},
		Exceptions: []Exception{
			{Title: "Poschl | Ozona President", Skip: []string{RuleBrandPrefixPoschl}},
			{Title: "Poschl | Ozona Orange Flavour", Skip: []string{RuleBrandPrefixPoschl}},
		},
	}
}

// DefaultAliases holds the built-in surface -> canonical substitutions, keyed
// by lookup table name.
func DefaultAliases() map[string]map[string]string {
	return map[string]map[string]string{
		"tasting_notes": {
			"Dark Fruit": "Dark Fruits",
		},
	}
}
