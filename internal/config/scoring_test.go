package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultScoringConfig(t *testing.T) {
	cfg := DefaultScoringConfig()

	assert.Equal(t, []string{"feature", "maintenance", "operational", "quality"}, cfg.Categories)
	assert.Equal(t, map[string]float64{"quality": 1.0}, cfg.Structural.WorkItemTypeWeights["bug"])
	assert.Equal(t, 0.15, cfg.Textual.MaxModifier)
	assert.Equal(t, 0.4, cfg.Confidence.Weights["provenance"])
	assert.Equal(t, 30.0, cfg.Confidence.TemporalWindowDays)

	unknown := cfg.TypeWeights("unknown")
	for _, cat := range cfg.Categories {
		assert.InDelta(t, 0.25, unknown[cat], 1e-9)
	}
}

func TestTypeWeights_FallsBackToUnknown(t *testing.T) {
	cfg := DefaultScoringConfig()
	assert.Equal(t, cfg.Structural.WorkItemTypeWeights["unknown"], cfg.TypeWeights("spike"))
}

func TestKeywordEntry_StringForm(t *testing.T) {
	var entries []KeywordEntry
	require.NoError(t, yaml.Unmarshal([]byte("[refactor, {keyword: outage, weight: 0.05}]"), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, KeywordEntry{Keyword: "refactor", Weight: 0.02}, entries[0])
	assert.Equal(t, KeywordEntry{Keyword: "outage", Weight: 0.05}, entries[1])
}

func TestLoadScoringConfig_MissingFileUsesDefaults(t *testing.T) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	cfg, err := LoadScoringConfig(filepath.Join(t.TempDir(), "absent.yaml"), log)
	require.NoError(t, err)
	assert.Equal(t, DefaultScoringConfig().Categories, cfg.Categories)
}

func TestLoadScoringConfig_PartialFileFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scoring.yaml")
	payload := `
categories: [feature, quality]
textual:
  keywords:
    quality: [hotfix]
    nonsense: [junk]
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	cfg, err := LoadScoringConfig(path, logrus.New())
	require.NoError(t, err)

	assert.Equal(t, []string{"feature", "quality"}, cfg.Categories)
	// Unknown category dropped, not fatal
	assert.NotContains(t, cfg.Textual.Keywords, "nonsense")
	require.Len(t, cfg.Textual.Keywords["quality"], 1)
	assert.Equal(t, "hotfix", cfg.Textual.Keywords["quality"][0].Keyword)
	// Omitted sections fall back
	assert.Equal(t, 0.15, cfg.Textual.MaxModifier)
	assert.Equal(t, 30.0, cfg.Confidence.TemporalWindowDays)
	assert.NotEmpty(t, cfg.Structural.WorkItemTypeWeights)
}

func TestLoadScoringConfig_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories: [unterminated"), 0o644))

	_, err := LoadScoringConfig(path, logrus.New())
	assert.Error(t, err)
}
