package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortkit/redirector/internal/domain"
)

func TestRuleTable_Resolve(t *testing.T) {
	table := NewRuleTable(map[string]domain.GeoRule{
		"abc123": {
			Default: "https://example.com",
			Destinations: map[string]string{
				"US": "https://us.example.com",
				"DE": "https://de.example.com",
			},
		},
		"nodefault": {
			Destinations: map[string]string{
				"FR": "https://fr.example.com",
			},
		},
	})

	tests := []struct {
		name        string
		shortCode   string
		countryCode string
		fallbackURL string
		want        string
	}{
		{
			name:        "country match",
			shortCode:   "abc123",
			countryCode: "US",
			fallbackURL: "https://fallback.example.com",
			want:        "https://us.example.com",
		},
		{
			name:        "country match is case insensitive",
			shortCode:   "abc123",
			countryCode: "de",
			fallbackURL: "https://fallback.example.com",
			want:        "https://de.example.com",
		},
		{
			name:        "unmatched country falls back to rule default",
			shortCode:   "abc123",
			countryCode: "JP",
			fallbackURL: "https://fallback.example.com",
			want:        "https://example.com",
		},
		{
			name:        "empty country falls back to rule default",
			shortCode:   "abc123",
			countryCode: "",
			fallbackURL: "https://fallback.example.com",
			want:        "https://example.com",
		},
		{
			name:        "no rule leaves fallback unchanged",
			shortCode:   "unknown",
			countryCode: "US",
			fallbackURL: "https://fallback.example.com",
			want:        "https://fallback.example.com",
		},
		{
			name:        "rule without default falls back to caller URL",
			shortCode:   "nodefault",
			countryCode: "JP",
			fallbackURL: "https://fallback.example.com",
			want:        "https://fallback.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Resolve(tt.shortCode, tt.countryCode, tt.fallbackURL)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	content := `{
		"abc123": {
			"default": "https://example.com",
			"destinations": {"US": "https://us.example.com"}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, "https://us.example.com", table.Resolve("abc123", "US", "https://fallback.example.com"))
}

func TestLoadRules_MissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadRules_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := LoadRules(path)
	assert.Error(t, err)
}
