package geo

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shortkit/redirector/internal/domain"
)

// RuleTable holds per-short-code country overrides. It is loaded at startup
// and read-only at request time.
type RuleTable struct {
	rules map[string]domain.GeoRule
}

// NewRuleTable creates a table from an in-memory rule set
func NewRuleTable(rules map[string]domain.GeoRule) *RuleTable {
	if rules == nil {
		rules = make(map[string]domain.GeoRule)
	}
	return &RuleTable{rules: rules}
}

// LoadRules reads a rule table from a JSON file of the form
//
//	{"abc123": {"default": "https://example.com", "destinations": {"US": "https://us.example.com"}}}
func LoadRules(path string) (*RuleTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geo rules: %w", err)
	}

	var rules map[string]domain.GeoRule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse geo rules: %w", err)
	}

	return NewRuleTable(rules), nil
}

// Resolve returns the destination for the short code and country: the
// country-specific entry if one exists, else the rule default, else the
// fallback unchanged. Pure lookup, no I/O.
func (t *RuleTable) Resolve(shortCode, countryCode, fallbackURL string) string {
	rule, exists := t.rules[shortCode]
	if !exists {
		return fallbackURL
	}

	if countryCode != "" {
		if destination, ok := rule.Destinations[strings.ToUpper(countryCode)]; ok {
			return destination
		}
	}

	if rule.Default != "" {
		return rule.Default
	}

	return fallbackURL
}

// Len returns the number of loaded rules
func (t *RuleTable) Len() int {
	return len(t.rules)
}
