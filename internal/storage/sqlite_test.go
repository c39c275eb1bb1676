package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devhealthops/workgraph/internal/identity"
	"github.com/devhealthops/workgraph/internal/models"
)

var sinkTestRepo = uuid.MustParse("4b53e1ad-6c5e-4b0e-8f27-9a3d1be2b01c")

func openTestSink(t *testing.T) *SQLiteSink {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "workgraph.db"), log)
	require.NoError(t, err)
	require.NoError(t, sink.EnsureSchema(context.Background()))
	t.Cleanup(func() { sink.Close() })
	return sink
}

func testEdge(sourceID, targetID string) models.WorkGraphEdge {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	repoID := sinkTestRepo
	return models.WorkGraphEdge{
		EdgeID:       identity.EdgeID(models.NodePR, sourceID, models.EdgeImplements, models.NodeIssue, targetID),
		SourceType:   models.NodePR,
		SourceID:     sourceID,
		TargetType:   models.NodeIssue,
		TargetID:     targetID,
		EdgeType:     models.EdgeImplements,
		RepoID:       &repoID,
		Provider:     "jira",
		Provenance:   models.ProvenanceExplicitText,
		Confidence:   0.9,
		Evidence:     "ABC-123",
		DiscoveredAt: now,
		LastSynced:   now,
	}
}

func TestSQLiteSink_EdgeRoundTrip(t *testing.T) {
	sink := openTestSink(t)
	ctx := context.Background()

	edge := testEdge("r#pr1", "jira:ABC-123")
	require.NoError(t, sink.WriteEdges(ctx, []models.WorkGraphEdge{edge}))

	edges, err := sink.ReadEdges(ctx, EdgeFilter{})
	require.NoError(t, err)
	require.Len(t, edges, 1)

	got := edges[0]
	assert.Equal(t, edge.EdgeID, got.EdgeID)
	assert.Equal(t, edge.SourceID, got.SourceID)
	assert.Equal(t, edge.TargetID, got.TargetID)
	assert.Equal(t, edge.EdgeType, got.EdgeType)
	assert.Equal(t, edge.Provenance, got.Provenance)
	assert.Equal(t, edge.Confidence, got.Confidence)
	assert.Equal(t, edge.Evidence, got.Evidence)
	require.NotNil(t, got.RepoID)
	assert.Equal(t, sinkTestRepo, *got.RepoID)
	assert.WithinDuration(t, edge.LastSynced, got.LastSynced, time.Second)
}

func TestSQLiteSink_DuplicateEdgeWriteIsUpsert(t *testing.T) {
	sink := openTestSink(t)
	ctx := context.Background()

	edge := testEdge("r#pr1", "jira:ABC-123")
	require.NoError(t, sink.WriteEdges(ctx, []models.WorkGraphEdge{edge}))

	edge.LastSynced = edge.LastSynced.Add(time.Hour)
	require.NoError(t, sink.WriteEdges(ctx, []models.WorkGraphEdge{edge}))

	edges, err := sink.ReadEdges(ctx, EdgeFilter{})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.WithinDuration(t, edge.LastSynced, edges[0].LastSynced, time.Second)
}

func TestSQLiteSink_ReadEdgesFiltersByRepo(t *testing.T) {
	sink := openTestSink(t)
	ctx := context.Background()

	require.NoError(t, sink.WriteEdges(ctx, []models.WorkGraphEdge{
		testEdge("r#pr1", "jira:ABC-1"),
		testEdge("r#pr2", "jira:ABC-2"),
	}))

	edges, err := sink.ReadEdges(ctx, EdgeFilter{RepoID: sinkTestRepo.String()})
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	edges, err = sink.ReadEdges(ctx, EdgeFilter{RepoID: uuid.NewString()})
	require.NoError(t, err)
	assert.Empty(t, edges)

	edges, err = sink.ReadEdges(ctx, EdgeFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestSQLiteSink_LinksAndScores(t *testing.T) {
	sink := openTestSink(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	links := []models.WorkGraphIssuePR{{
		RepoID:     sinkTestRepo,
		WorkItemID: "jira:ABC-123",
		PRNumber:   42,
		Confidence: 0.9,
		Provenance: models.ProvenanceExplicitText,
		Evidence:   "ABC-123",
		LastSynced: now,
	}}
	require.NoError(t, sink.WriteIssuePRLinks(ctx, links))
	// Duplicate write replaces, never errors
	require.NoError(t, sink.WriteIssuePRLinks(ctx, links))

	prLinks := []models.WorkGraphPRCommit{{
		RepoID:     sinkTestRepo,
		PRNumber:   42,
		CommitHash: "deadbeef",
		Confidence: 1.0,
		Provenance: models.ProvenanceNative,
		Evidence:   "merge_commit",
		LastSynced: now,
	}}
	require.NoError(t, sink.WritePRCommitLinks(ctx, prLinks))

	scores := []models.WorkUnitScore{{
		WorkUnitID: "unit-1",
		Nodes:      []models.NodeKey{{Type: models.NodeIssue, ID: "jira:ABC-123"}},
		TimeStart:  now.Add(-24 * time.Hour),
		TimeEnd:    now,
		Categories: map[string]float64{"quality": 1.0},
		Confidence: 0.7,
		Band:       models.BandModerate,
		Effort:     models.WorkUnitEffort{Metric: models.EffortChurnLOC, Value: 12},
		ComputedAt: now,
	}}
	require.NoError(t, sink.WriteWorkUnitScores(ctx, scores))
	require.NoError(t, sink.WriteWorkUnitScores(ctx, scores))

	var count int
	require.NoError(t, sink.db.Get(&count, `SELECT COUNT(*) FROM work_unit_scores`))
	assert.Equal(t, 1, count)
}
