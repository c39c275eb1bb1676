package scoring

import (
	"time"

	"github.com/devhealthops/workgraph/internal/config"
	"github.com/devhealthops/workgraph/internal/identity"
	"github.com/devhealthops/workgraph/internal/models"
)

// UnitInputs carries the row lookups a unit score draws on. Keys are node
// IDs: work_item_id for issues, "repo#prN" for PRs, "repo@hash" for commits.
// Nodes with no backing row still count toward density; they just contribute
// no type, text, or time signal.
type UnitInputs struct {
	WorkItems map[string]models.WorkItemRow
	PRs       map[string]models.PullRequestRow
	Commits   map[string]models.CommitRow

	// Analysis window, used as the time range fallback when no node has
	// usable timestamps.
	WindowStart time.Time
	WindowEnd   time.Time
}

// Scorer scores connected components against one scoring configuration.
type Scorer struct {
	cfg *config.ScoringConfig
	now func() time.Time
}

// NewScorer builds a Scorer. A nil now defaults to time.Now.
func NewScorer(cfg *config.ScoringConfig, now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	return &Scorer{cfg: cfg, now: now}
}

// ScoreUnit scores one connected component.
func (s *Scorer) ScoreUnit(nodes []models.NodeKey, edges []models.WorkGraphEdge, inputs UnitInputs) models.WorkUnitScore {
	unitNodes := dedupeNodes(nodes)

	var issueIDs, prIDs, commitIDs []string
	for _, node := range unitNodes {
		switch node.Type {
		case models.NodeIssue:
			issueIDs = append(issueIDs, node.ID)
		case models.NodePR:
			prIDs = append(prIDs, node.ID)
		case models.NodeCommit:
			commitIDs = append(commitIDs, node.ID)
		}
	}

	structural, structuralEvidence := StructuralScores(countWorkItemTypes(issueIDs, inputs.WorkItems), s.cfg)
	textsBySource := collectTexts(issueIDs, prIDs, commitIDs, inputs)
	modifiers, textualEvidence := TextualModifiers(textsBySource, s.cfg)
	categories := ApplyTextualModifiers(structural, modifiers, s.cfg.Categories)

	textAgreement := TextAgreement(structural, modifiers, s.cfg)
	density := GraphDensity(len(unitNodes), len(edges))
	provenance := EdgeConfidence(edges)

	start, end, usedFallback := s.timeBounds(unitNodes, inputs)
	spanDays := 0.0
	temporal := s.cfg.Confidence.TemporalFallback
	if !usedFallback {
		spanDays = end.Sub(start).Hours() / 24.0
		if spanDays < 0 {
			spanDays = 0
		}
		temporal = TemporalScore(spanDays, s.cfg)
	}

	confidence := Confidence(provenance, temporal, density, textAgreement, s.cfg)

	evidence := models.EvidenceBundle{
		Structural: append(structuralEvidence,
			models.DensityEvidence{Nodes: len(unitNodes), Edges: len(edges), Value: density},
			models.ProvenanceEvidence{Edges: len(edges), Value: provenance},
		),
		Temporal: []models.Evidence{
			models.TemporalEvidence{
				Start:      start.UTC().Format(time.RFC3339),
				End:        end.UTC().Format(time.RFC3339),
				SpanDays:   spanDays,
				WindowDays: s.cfg.Confidence.TemporalWindowDays,
				Score:      temporal,
				Fallback:   usedFallback,
			},
		},
		Textual: textualEvidence,
	}

	return models.WorkUnitScore{
		WorkUnitID: identity.WorkUnitID(unitNodes),
		Nodes:      unitNodes,
		TimeStart:  start,
		TimeEnd:    end,
		Categories: categories,
		Confidence: confidence,
		Band:       Band(confidence),
		Effort:     computeEffort(issueIDs, prIDs, commitIDs, inputs),
		Evidence:   evidence,
		ComputedAt: s.now().UTC(),
	}
}

// timeBounds aggregates per-node time bounds into the unit's activity range.
// When no node yields any timestamp, the analysis window is returned and
// usedFallback is true.
func (s *Scorer) timeBounds(nodes []models.NodeKey, inputs UnitInputs) (start, end time.Time, usedFallback bool) {
	var starts, ends []time.Time
	for _, node := range nodes {
		nodeStart, nodeEnd, ok := nodeTimeBounds(node, inputs)
		if !ok {
			continue
		}
		starts = append(starts, nodeStart)
		ends = append(ends, nodeEnd)
	}
	if len(starts) == 0 || len(ends) == 0 {
		return inputs.WindowStart, inputs.WindowEnd, true
	}
	start, end = starts[0], ends[0]
	for _, t := range starts[1:] {
		if t.Before(start) {
			start = t
		}
	}
	for _, t := range ends[1:] {
		if t.After(end) {
			end = t
		}
	}
	return start, end, false
}

// nodeTimeBounds returns the activity window of one node. Issues span
// creation to completion (falling back to last update), PRs span creation
// to merge (falling back to close), commits are a point in time.
func nodeTimeBounds(node models.NodeKey, inputs UnitInputs) (start, end time.Time, ok bool) {
	switch node.Type {
	case models.NodeIssue:
		item, found := inputs.WorkItems[node.ID]
		if !found || item.CreatedAt.IsZero() {
			return start, end, false
		}
		start = item.CreatedAt.UTC()
		switch {
		case item.CompletedAt != nil:
			end = item.CompletedAt.UTC()
		case !item.UpdatedAt.IsZero():
			end = item.UpdatedAt.UTC()
		default:
			end = start
		}
		return start, end, true
	case models.NodePR:
		pr, found := inputs.PRs[node.ID]
		if !found || pr.CreatedAt.IsZero() {
			return start, end, false
		}
		start = pr.CreatedAt.UTC()
		switch {
		case pr.MergedAt != nil:
			end = pr.MergedAt.UTC()
		case pr.ClosedAt != nil:
			end = pr.ClosedAt.UTC()
		default:
			end = start
		}
		return start, end, true
	case models.NodeCommit:
		commit, found := inputs.Commits[node.ID]
		if !found {
			return start, end, false
		}
		when := commit.AuthorWhen
		if when.IsZero() && commit.CommitterWhen != nil {
			when = *commit.CommitterWhen
		}
		if when.IsZero() {
			return start, end, false
		}
		when = when.UTC()
		return when, when, true
	}
	return start, end, false
}

// computeEffort walks the effort fallback chain: commit churn, then PR
// churn, then work item active hours, then zero churn.
func computeEffort(issueIDs, prIDs, commitIDs []string, inputs UnitInputs) models.WorkUnitEffort {
	commitTotal := 0.0
	for _, id := range commitIDs {
		if commit, ok := inputs.Commits[id]; ok {
			commitTotal += float64(commit.Additions + commit.Deletions)
		}
	}
	if commitTotal > 0 {
		return models.WorkUnitEffort{Metric: models.EffortChurnLOC, Value: commitTotal}
	}

	prTotal := 0.0
	for _, id := range prIDs {
		if pr, ok := inputs.PRs[id]; ok {
			prTotal += float64(pr.Additions + pr.Deletions)
		}
	}
	if prTotal > 0 {
		return models.WorkUnitEffort{Metric: models.EffortChurnLOC, Value: prTotal}
	}

	hoursTotal := 0.0
	for _, id := range issueIDs {
		if item, ok := inputs.WorkItems[id]; ok {
			hoursTotal += item.ActiveHours
		}
	}
	if hoursTotal > 0 {
		return models.WorkUnitEffort{Metric: models.EffortActiveHours, Value: hoursTotal}
	}

	return models.WorkUnitEffort{Metric: models.EffortChurnLOC, Value: 0.0}
}

func countWorkItemTypes(issueIDs []string, workItems map[string]models.WorkItemRow) map[string]int {
	counts := make(map[string]int)
	for _, id := range issueIDs {
		item, ok := workItems[id]
		if !ok {
			continue
		}
		workType := item.Type
		if workType == "" {
			workType = "unknown"
		}
		counts[workType]++
	}
	return counts
}

func collectTexts(issueIDs, prIDs, commitIDs []string, inputs UnitInputs) map[string][]string {
	texts := make(map[string][]string)
	for _, id := range issueIDs {
		item, ok := inputs.WorkItems[id]
		if !ok {
			continue
		}
		if item.Title != "" {
			texts["issue_title"] = append(texts["issue_title"], item.Title)
		}
		if item.Description != "" {
			texts["issue_description"] = append(texts["issue_description"], item.Description)
		}
	}
	for _, id := range prIDs {
		pr, ok := inputs.PRs[id]
		if !ok {
			continue
		}
		if pr.Title != "" {
			texts["pr_title"] = append(texts["pr_title"], pr.Title)
		}
		if pr.Body != "" {
			texts["pr_description"] = append(texts["pr_description"], pr.Body)
		}
	}
	for _, id := range commitIDs {
		commit, ok := inputs.Commits[id]
		if !ok {
			continue
		}
		if commit.Message != "" {
			texts["commit_message"] = append(texts["commit_message"], commit.Message)
		}
	}
	return texts
}

func dedupeNodes(nodes []models.NodeKey) []models.NodeKey {
	seen := make(map[models.NodeKey]struct{}, len(nodes))
	out := make([]models.NodeKey, 0, len(nodes))
	for _, node := range nodes {
		if _, ok := seen[node]; ok {
			continue
		}
		seen[node] = struct{}{}
		out = append(out, node)
	}
	return out
}
