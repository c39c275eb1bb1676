package scoring

import (
	"testing"
	"time"

	"github.com/devhealthops/workgraph/internal/config"
	"github.com/devhealthops/workgraph/internal/identity"
	"github.com/devhealthops/workgraph/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scoreTestRepo = uuid.MustParse("4b53e1ad-6c5e-4b0e-8f27-9a3d1be2b01c")

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func testInputs() UnitInputs {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	completed := time.Date(2024, 5, 10, 17, 0, 0, 0, time.UTC)
	merged := time.Date(2024, 5, 8, 11, 0, 0, 0, time.UTC)
	prID := identity.PRID(scoreTestRepo, 7)
	commitID := identity.CommitID(scoreTestRepo, "abc123")

	return UnitInputs{
		WorkItems: map[string]models.WorkItemRow{
			"jira:ABC-1": {
				RepoID:      scoreTestRepo,
				WorkItemID:  "jira:ABC-1",
				Type:        "bug",
				Title:       "Checkout crashes on empty cart",
				CreatedAt:   created,
				UpdatedAt:   created.Add(24 * time.Hour),
				CompletedAt: &completed,
				ActiveHours: 6.5,
			},
		},
		PRs: map[string]models.PullRequestRow{
			prID: {
				RepoID:    scoreTestRepo,
				Number:    7,
				Title:     "Fix empty cart crash",
				CreatedAt: created.Add(48 * time.Hour),
				MergedAt:  &merged,
				Additions: 40,
				Deletions: 10,
			},
		},
		Commits: map[string]models.CommitRow{
			commitID: {
				RepoID:     scoreTestRepo,
				Hash:       "abc123",
				Message:    "fix nil deref in cart total",
				AuthorWhen: created.Add(72 * time.Hour),
				Additions:  30,
				Deletions:  5,
			},
		},
		WindowStart: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testNodes() []models.NodeKey {
	return []models.NodeKey{
		{Type: models.NodeIssue, ID: "jira:ABC-1"},
		{Type: models.NodePR, ID: identity.PRID(scoreTestRepo, 7)},
		{Type: models.NodeCommit, ID: identity.CommitID(scoreTestRepo, "abc123")},
	}
}

func testEdges(nodes []models.NodeKey) []models.WorkGraphEdge {
	return []models.WorkGraphEdge{
		{
			EdgeID:     "e1",
			SourceType: nodes[1].Type, SourceID: nodes[1].ID,
			TargetType: nodes[0].Type, TargetID: nodes[0].ID,
			EdgeType:   models.EdgeImplements,
			Confidence: 0.9,
		},
		{
			EdgeID:     "e2",
			SourceType: nodes[1].Type, SourceID: nodes[1].ID,
			TargetType: nodes[2].Type, TargetID: nodes[2].ID,
			EdgeType:   models.EdgeReferences,
			Confidence: 1.0,
		},
	}
}

func TestScoreUnit_FullComponent(t *testing.T) {
	scorer := NewScorer(config.DefaultScoringConfig(), fixedNow)
	inputs := testInputs()
	nodes := testNodes()
	edges := testEdges(nodes)

	score := scorer.ScoreUnit(nodes, edges, inputs)

	assert.Equal(t, identity.WorkUnitID(nodes), score.WorkUnitID)
	assert.Len(t, score.Nodes, 3)

	// The only typed issue is a bug, so quality dominates
	assert.InDelta(t, 1.0, score.Categories["quality"], 1e-9)
	assert.InDelta(t, 0.0, score.Categories["feature"], 1e-9)

	// Category distribution always sums to 1
	total := 0.0
	for _, v := range score.Categories {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	// Time range spans issue creation to issue completion
	assert.Equal(t, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), score.TimeStart)
	assert.Equal(t, time.Date(2024, 5, 10, 17, 0, 0, 0, time.UTC), score.TimeEnd)

	// Effort prefers commit churn
	assert.Equal(t, models.EffortChurnLOC, score.Effort.Metric)
	assert.Equal(t, 35.0, score.Effort.Value)

	assert.Equal(t, fixedNow(), score.ComputedAt)
	assert.NotEmpty(t, score.Evidence.Structural)
	require.Len(t, score.Evidence.Temporal, 1)
}

func TestScoreUnit_ConfidenceInputs(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	scorer := NewScorer(cfg, fixedNow)
	inputs := testInputs()
	nodes := testNodes()
	edges := testEdges(nodes)

	score := scorer.ScoreUnit(nodes, edges, inputs)

	// provenance = (0.9+1.0)/2, density = 2/3, temporal from 9.33-day span,
	// text agreement = fallback 0.5 (no keywords configured)
	provenance := 0.95
	density := 2.0 / 3.0
	spanDays := score.TimeEnd.Sub(score.TimeStart).Hours() / 24.0
	temporal := 1.0 - spanDays/30.0
	want := 0.4*provenance + 0.2*temporal + 0.2*density + 0.2*0.5

	assert.InDelta(t, want, score.Confidence, 1e-9)
	assert.Equal(t, Band(want), score.Band)
}

func TestScoreUnit_EffortFallsBackToPRChurn(t *testing.T) {
	scorer := NewScorer(config.DefaultScoringConfig(), fixedNow)
	inputs := testInputs()
	commitID := identity.CommitID(scoreTestRepo, "abc123")
	commit := inputs.Commits[commitID]
	commit.Additions, commit.Deletions = 0, 0
	inputs.Commits[commitID] = commit

	score := scorer.ScoreUnit(testNodes(), nil, inputs)

	assert.Equal(t, models.EffortChurnLOC, score.Effort.Metric)
	assert.Equal(t, 50.0, score.Effort.Value)
}

func TestScoreUnit_EffortFallsBackToActiveHours(t *testing.T) {
	scorer := NewScorer(config.DefaultScoringConfig(), fixedNow)
	inputs := testInputs()
	nodes := []models.NodeKey{{Type: models.NodeIssue, ID: "jira:ABC-1"}}

	score := scorer.ScoreUnit(nodes, nil, inputs)

	assert.Equal(t, models.EffortActiveHours, score.Effort.Metric)
	assert.Equal(t, 6.5, score.Effort.Value)
}

func TestScoreUnit_NoTimestampsUsesWindowFallback(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	scorer := NewScorer(cfg, fixedNow)
	inputs := testInputs()
	nodes := []models.NodeKey{{Type: models.NodeIssue, ID: "jira:UNKNOWN-1"}}

	score := scorer.ScoreUnit(nodes, nil, inputs)

	assert.Equal(t, inputs.WindowStart, score.TimeStart)
	assert.Equal(t, inputs.WindowEnd, score.TimeEnd)

	require.Len(t, score.Evidence.Temporal, 1)
	temporal, ok := score.Evidence.Temporal[0].(models.TemporalEvidence)
	require.True(t, ok)
	assert.True(t, temporal.Fallback)
	assert.Equal(t, cfg.Confidence.TemporalFallback, temporal.Score)
}

func TestScoreUnit_SingleNodeIsTriviallyDense(t *testing.T) {
	scorer := NewScorer(config.DefaultScoringConfig(), fixedNow)
	inputs := testInputs()
	nodes := []models.NodeKey{{Type: models.NodeIssue, ID: "jira:ABC-1"}}

	score := scorer.ScoreUnit(nodes, nil, inputs)

	var density models.DensityEvidence
	found := false
	for _, item := range score.Evidence.Structural {
		if d, ok := item.(models.DensityEvidence); ok {
			density = d
			found = true
		}
	}
	require.True(t, found)
	assert.Equal(t, 1.0, density.Value)
}

func TestScoreUnit_DuplicateNodesCollapse(t *testing.T) {
	scorer := NewScorer(config.DefaultScoringConfig(), fixedNow)
	inputs := testInputs()
	nodes := testNodes()
	withDupes := append([]models.NodeKey{nodes[0]}, nodes...)

	a := scorer.ScoreUnit(nodes, nil, inputs)
	b := scorer.ScoreUnit(withDupes, nil, inputs)

	assert.Equal(t, a.WorkUnitID, b.WorkUnitID)
	assert.Len(t, b.Nodes, 3)
}

func TestScoreUnit_KeywordShiftsCategories(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	cfg.Textual.Keywords = map[string][]config.KeywordEntry{
		"operational": {{Keyword: "outage", Weight: 0.10}},
	}
	scorer := NewScorer(cfg, fixedNow)

	inputs := testInputs()
	item := inputs.WorkItems["jira:ABC-1"]
	item.Title = "Payment outage follow-up"
	inputs.WorkItems["jira:ABC-1"] = item

	nodes := []models.NodeKey{{Type: models.NodeIssue, ID: "jira:ABC-1"}}
	score := scorer.ScoreUnit(nodes, nil, inputs)

	assert.Greater(t, score.Categories["operational"], 0.0)
	assert.Greater(t, score.Categories["quality"], score.Categories["operational"])
	assert.NotEmpty(t, score.Evidence.Textual)
}
