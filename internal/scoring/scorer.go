// Package scoring turns connected components of the work graph into scored
// work units: a normalized category distribution, a confidence value with a
// discrete band, an effort estimate, and the evidence behind all of them.
package scoring

import (
	"math"
	"strings"

	"github.com/devhealthops/workgraph/internal/config"
	"github.com/devhealthops/workgraph/internal/models"
)

// Clamp bounds value to [low, high].
func Clamp(value, low, high float64) float64 {
	return math.Max(low, math.Min(high, value))
}

// NormalizeScores divides each category's score by the total over the
// configured categories. A non-positive total yields the exact uniform
// distribution rather than a renormalized one.
func NormalizeScores(scores map[string]float64, categories []string) map[string]float64 {
	total := 0.0
	for _, cat := range categories {
		total += scores[cat]
	}
	out := make(map[string]float64, len(categories))
	if total <= 0 {
		uniform := 0.0
		if len(categories) > 0 {
			uniform = 1.0 / float64(len(categories))
		}
		for _, cat := range categories {
			out[cat] = uniform
		}
		return out
	}
	for _, cat := range categories {
		out[cat] = scores[cat] / total
	}
	return out
}

// StructuralScores computes the normalized category distribution from the
// work item type counts of a unit. Each type contributes weight*count per
// category; types without a configured vector use the "unknown" vector.
func StructuralScores(typeCounts map[string]int, cfg *config.ScoringConfig) (map[string]float64, []models.Evidence) {
	scores := make(map[string]float64, len(cfg.Categories))
	known := make(map[string]struct{}, len(cfg.Categories))
	for _, cat := range cfg.Categories {
		scores[cat] = 0.0
		known[cat] = struct{}{}
	}

	var evidence []models.Evidence
	for workType, count := range typeCounts {
		if count <= 0 {
			continue
		}
		weights := cfg.TypeWeights(workType)
		contribution := make(map[string]float64, len(weights))
		for category, weight := range weights {
			if _, ok := known[category]; !ok {
				continue
			}
			weighted := weight * float64(count)
			scores[category] += weighted
			contribution[category] = weighted
		}
		evidence = append(evidence, models.StructuralEvidence{
			WorkItemType: workType,
			Count:        count,
			Weights:      weights,
			Contribution: contribution,
		})
	}

	return NormalizeScores(scores, cfg.Categories), evidence
}

// TextualModifiers scans the unit's texts for configured keywords and
// accumulates signed per-category modifiers, each hit scaled by its source
// weight. Modifiers are clamped to +/- MaxModifier; a clamp is recorded as
// evidence.
func TextualModifiers(textsBySource map[string][]string, cfg *config.ScoringConfig) (map[string]float64, []models.Evidence) {
	modifiers := make(map[string]float64, len(cfg.Categories))
	for _, cat := range cfg.Categories {
		modifiers[cat] = 0.0
	}

	var evidence []models.Evidence
	for source, texts := range textsBySource {
		sourceWeight, ok := cfg.Textual.SourceWeights[source]
		if !ok {
			sourceWeight = 1.0
		}
		for _, text := range texts {
			haystack := strings.ToLower(text)
			if haystack == "" {
				continue
			}
			for category, entries := range cfg.Textual.Keywords {
				if _, ok := modifiers[category]; !ok {
					continue
				}
				for _, entry := range entries {
					if entry.Keyword == "" {
						continue
					}
					if !strings.Contains(haystack, strings.ToLower(entry.Keyword)) {
						continue
					}
					magnitude := entry.Weight * sourceWeight
					modifiers[category] += magnitude
					evidence = append(evidence, models.TextualEvidence{
						Category:  category,
						Keyword:   entry.Keyword,
						Source:    source,
						Weight:    entry.Weight,
						Magnitude: magnitude,
					})
				}
			}
		}
	}

	for _, category := range cfg.Categories {
		raw := modifiers[category]
		clamped := Clamp(raw, -cfg.Textual.MaxModifier, cfg.Textual.MaxModifier)
		if clamped != raw {
			evidence = append(evidence, models.ClampEvidence{
				Category: category,
				Raw:      raw,
				Clamped:  clamped,
			})
			modifiers[category] = clamped
		}
	}

	return modifiers, evidence
}

// ApplyTextualModifiers adds the modifiers to the structural scores,
// clamps each sum to [0, 1], and renormalizes.
func ApplyTextualModifiers(structural, modifiers map[string]float64, categories []string) map[string]float64 {
	combined := make(map[string]float64, len(categories))
	for _, category := range categories {
		combined[category] = Clamp(structural[category]+modifiers[category], 0.0, 1.0)
	}
	return NormalizeScores(combined, categories)
}

// TextAgreement measures how well the textual modifiers align with the
// structural distribution. Positive modifiers on high-scoring categories and
// negative modifiers on low-scoring ones both count as agreement. With no
// textual signal at all the configured fallback applies.
func TextAgreement(structural, modifiers map[string]float64, cfg *config.ScoringConfig) float64 {
	totalAbs := 0.0
	for _, cat := range cfg.Categories {
		totalAbs += math.Abs(modifiers[cat])
	}
	if totalAbs <= 0 {
		return cfg.Confidence.TextAgreementFallback
	}
	alignment := 0.0
	for _, cat := range cfg.Categories {
		score := structural[cat]
		mod := modifiers[cat]
		if mod >= 0 {
			alignment += mod * score
		} else {
			alignment += (-mod) * (1.0 - score)
		}
	}
	return Clamp(alignment/totalAbs, 0.0, 1.0)
}

// Confidence combines the four signal scores with the configured weights.
// A non-positive total weight is treated as 1.0 so the result stays defined.
func Confidence(provenance, temporal, density, textAgreement float64, cfg *config.ScoringConfig) float64 {
	weights := cfg.Confidence.Weights
	totalWeight := 0.0
	for _, w := range weights {
		totalWeight += w
	}
	if totalWeight <= 0 {
		totalWeight = 1.0
	}
	value := weights["provenance"]*provenance +
		weights["temporal"]*temporal +
		weights["density"]*density +
		weights["text_agreement"]*textAgreement
	return Clamp(value/totalWeight, 0.0, 1.0)
}

// Band discretizes a confidence value.
func Band(value float64) models.ConfidenceBand {
	switch {
	case value >= 0.8:
		return models.BandHigh
	case value >= 0.6:
		return models.BandModerate
	case value >= 0.4:
		return models.BandLow
	default:
		return models.BandVeryLow
	}
}

// TemporalScore decays linearly with the unit's activity span: a span of
// zero scores 1.0, a span at or beyond the window scores 0.0.
func TemporalScore(spanDays float64, cfg *config.ScoringConfig) float64 {
	windowDays := math.Max(1.0, cfg.Confidence.TemporalWindowDays)
	return math.Max(0.0, 1.0-(spanDays/windowDays))
}

// GraphDensity is the ratio of actual to possible undirected edges over
// the unit's nodes, capped at 1.0. Single-node units are trivially dense.
func GraphDensity(nodeCount, edgeCount int) float64 {
	if nodeCount <= 1 {
		return 1.0
	}
	possible := float64(nodeCount) * float64(nodeCount-1) / 2.0
	if possible <= 0 {
		return 0.0
	}
	return math.Min(1.0, float64(edgeCount)/possible)
}

// EdgeConfidence is the mean confidence over the unit's edges, 0.0 for an
// edgeless unit.
func EdgeConfidence(edges []models.WorkGraphEdge) float64 {
	if len(edges) == 0 {
		return 0.0
	}
	total := 0.0
	for _, edge := range edges {
		total += edge.Confidence
	}
	return total / float64(len(edges))
}
