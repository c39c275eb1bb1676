package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// KeywordEntry is one keyword rule for a category. In YAML it may be written
// as a bare string (weight defaults to 0.02) or as a {keyword, weight} map.
type KeywordEntry struct {
	Keyword string  `yaml:"keyword"`
	Weight  float64 `yaml:"weight"`
}

const defaultKeywordWeight = 0.02

// UnmarshalYAML accepts both the string and the map form.
func (k *KeywordEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		k.Keyword = node.Value
		k.Weight = defaultKeywordWeight
		return nil
	}
	type rawEntry struct {
		Keyword string  `yaml:"keyword"`
		Weight  float64 `yaml:"weight"`
	}
	var raw rawEntry
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("keyword entry must be a string or a keyword/weight map: %w", err)
	}
	k.Keyword = raw.Keyword
	k.Weight = raw.Weight
	return nil
}

// StructuralConfig maps work item types to per-category weight vectors.
type StructuralConfig struct {
	WorkItemTypeWeights map[string]map[string]float64 `yaml:"work_item_type_weights"`
}

// TextualConfig controls the keyword modifier layer.
type TextualConfig struct {
	MaxModifier   float64                   `yaml:"max_modifier"`
	SourceWeights map[string]float64        `yaml:"source_weights"`
	Keywords      map[string][]KeywordEntry `yaml:"keywords"`
}

// ConfidenceConfig controls how the four confidence signals combine.
type ConfidenceConfig struct {
	Weights               map[string]float64 `yaml:"weights"`
	TemporalWindowDays    float64            `yaml:"temporal_window_days"`
	TemporalFallback      float64            `yaml:"temporal_fallback"`
	TextAgreementFallback float64            `yaml:"text_agreement_fallback"`
}

// ScoringConfig holds the full work unit scoring configuration.
type ScoringConfig struct {
	Categories []string         `yaml:"categories"`
	Structural StructuralConfig `yaml:"structural"`
	Textual    TextualConfig    `yaml:"textual"`
	Confidence ConfidenceConfig `yaml:"confidence"`
}

// DefaultScoringConfig returns the built-in scoring configuration.
func DefaultScoringConfig() *ScoringConfig {
	categories := []string{"feature", "maintenance", "operational", "quality"}
	uniform := make(map[string]float64, len(categories))
	for _, cat := range categories {
		uniform[cat] = 1.0 / float64(len(categories))
	}
	return &ScoringConfig{
		Categories: categories,
		Structural: StructuralConfig{
			WorkItemTypeWeights: map[string]map[string]float64{
				"story":    {"feature": 1.0},
				"epic":     {"feature": 1.0},
				"task":     {"feature": 0.7, "maintenance": 0.3},
				"issue":    {"feature": 0.5, "maintenance": 0.5},
				"chore":    {"maintenance": 1.0},
				"bug":      {"quality": 1.0},
				"incident": {"operational": 1.0},
				"unknown":  uniform,
			},
		},
		Textual: TextualConfig{
			MaxModifier:   0.15,
			SourceWeights: map[string]float64{},
			Keywords:      map[string][]KeywordEntry{},
		},
		Confidence: ConfidenceConfig{
			Weights: map[string]float64{
				"provenance":     0.4,
				"temporal":       0.2,
				"density":        0.2,
				"text_agreement": 0.2,
			},
			TemporalWindowDays:    30.0,
			TemporalFallback:      0.5,
			TextAgreementFallback: 0.5,
		},
	}
}

// LoadScoringConfig reads a scoring config YAML from path, filling anything
// missing from the defaults. A missing file is not an error: the defaults
// apply and a warning is logged.
func LoadScoringConfig(path string, log *logrus.Logger) (*ScoringConfig, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	defaults := DefaultScoringConfig()
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("path", path).Warn("Scoring config not found, using defaults")
			return defaults, nil
		}
		return nil, fmt.Errorf("failed to read scoring config %s: %w", path, err)
	}

	cfg := &ScoringConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse scoring config %s: %w", path, err)
	}

	cfg.fillDefaults(defaults)
	cfg.prune(log)
	return cfg, nil
}

// fillDefaults substitutes defaults for sections the file left out.
func (c *ScoringConfig) fillDefaults(defaults *ScoringConfig) {
	if len(c.Categories) == 0 {
		c.Categories = defaults.Categories
	}
	if len(c.Structural.WorkItemTypeWeights) == 0 {
		c.Structural.WorkItemTypeWeights = defaults.Structural.WorkItemTypeWeights
	}
	if c.Textual.MaxModifier <= 0 {
		c.Textual.MaxModifier = defaults.Textual.MaxModifier
	}
	if c.Textual.SourceWeights == nil {
		c.Textual.SourceWeights = map[string]float64{}
	}
	if c.Textual.Keywords == nil {
		c.Textual.Keywords = map[string][]KeywordEntry{}
	}
	if len(c.Confidence.Weights) == 0 {
		c.Confidence.Weights = defaults.Confidence.Weights
	}
	if c.Confidence.TemporalWindowDays <= 0 {
		c.Confidence.TemporalWindowDays = defaults.Confidence.TemporalWindowDays
	}
	if c.Confidence.TemporalFallback <= 0 {
		c.Confidence.TemporalFallback = defaults.Confidence.TemporalFallback
	}
	if c.Confidence.TextAgreementFallback <= 0 {
		c.Confidence.TextAgreementFallback = defaults.Confidence.TextAgreementFallback
	}
}

// prune drops keyword rules and type weights that name categories outside
// the configured category list. Unknown categories are logged, not fatal.
func (c *ScoringConfig) prune(log *logrus.Logger) {
	known := make(map[string]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		known[cat] = struct{}{}
	}

	for cat := range c.Textual.Keywords {
		if _, ok := known[cat]; !ok {
			log.WithField("category", cat).Warn("Ignoring keywords for unknown category")
			delete(c.Textual.Keywords, cat)
		}
	}

	for category, entries := range c.Textual.Keywords {
		cleaned := entries[:0]
		for _, entry := range entries {
			if entry.Keyword == "" {
				continue
			}
			cleaned = append(cleaned, entry)
		}
		c.Textual.Keywords[category] = cleaned
	}
}

// TypeWeights returns the weight vector for a work item type, falling back
// to the "unknown" vector when the type has no entry of its own.
func (c *ScoringConfig) TypeWeights(workItemType string) map[string]float64 {
	if weights, ok := c.Structural.WorkItemTypeWeights[workItemType]; ok {
		return weights
	}
	return c.Structural.WorkItemTypeWeights["unknown"]
}
