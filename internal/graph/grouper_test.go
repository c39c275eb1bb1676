package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devhealthops/workgraph/internal/identity"
	"github.com/devhealthops/workgraph/internal/models"
)

func edgeBetween(sourceType models.NodeType, sourceID string, targetType models.NodeType, targetID string) models.WorkGraphEdge {
	return models.WorkGraphEdge{
		EdgeID:     identity.EdgeID(sourceType, sourceID, models.EdgeRelates, targetType, targetID),
		SourceType: sourceType,
		SourceID:   sourceID,
		TargetType: targetType,
		TargetID:   targetID,
		EdgeType:   models.EdgeRelates,
		Confidence: 0.3,
	}
}

func TestComponents_EmptyEdgeSet(t *testing.T) {
	assert.Empty(t, Components(nil))
}

func TestComponents_SingleEdge(t *testing.T) {
	edges := []models.WorkGraphEdge{
		edgeBetween(models.NodePR, "r#pr1", models.NodeIssue, "jira:A-1"),
	}

	components := Components(edges)
	require.Len(t, components, 1)
	assert.Len(t, components[0].Nodes, 2)
	assert.Len(t, components[0].Edges, 1)
}

func TestComponents_TransitiveChainIsOneComponent(t *testing.T) {
	edges := []models.WorkGraphEdge{
		edgeBetween(models.NodeIssue, "jira:A-1", models.NodeIssue, "jira:A-2"),
		edgeBetween(models.NodePR, "r#pr1", models.NodeIssue, "jira:A-2"),
		edgeBetween(models.NodePR, "r#pr1", models.NodeCommit, "r@abc"),
	}

	components := Components(edges)
	require.Len(t, components, 1)
	assert.Len(t, components[0].Nodes, 4)
	assert.Len(t, components[0].Edges, 3)
}

func TestComponents_DisjointSubgraphsSplit(t *testing.T) {
	edges := []models.WorkGraphEdge{
		edgeBetween(models.NodeIssue, "jira:A-1", models.NodeIssue, "jira:A-2"),
		edgeBetween(models.NodeIssue, "jira:B-1", models.NodeIssue, "jira:B-2"),
	}

	components := Components(edges)
	require.Len(t, components, 2)
	for _, component := range components {
		assert.Len(t, component.Nodes, 2)
		assert.Len(t, component.Edges, 1)
	}
}

func TestComponents_DirectionIgnored(t *testing.T) {
	// A->B and C->B connect all three regardless of edge direction
	edges := []models.WorkGraphEdge{
		edgeBetween(models.NodeIssue, "jira:A-1", models.NodeIssue, "jira:A-2"),
		edgeBetween(models.NodeIssue, "jira:A-3", models.NodeIssue, "jira:A-2"),
	}

	components := Components(edges)
	require.Len(t, components, 1)
	assert.Len(t, components[0].Nodes, 3)
}

func TestComponents_ParallelEdgesCountedOnce(t *testing.T) {
	forward := edgeBetween(models.NodeIssue, "jira:A-1", models.NodeIssue, "jira:A-2")
	reverse := edgeBetween(models.NodeIssue, "jira:A-2", models.NodeIssue, "jira:A-1")

	components := Components([]models.WorkGraphEdge{forward, reverse, forward})
	require.Len(t, components, 1)
	// The duplicated forward edge collapses; the reverse edge has its own ID
	assert.Len(t, components[0].Edges, 2)
	assert.Len(t, components[0].Nodes, 2)
}

func TestComponents_DeterministicAcrossInputOrder(t *testing.T) {
	edges := []models.WorkGraphEdge{
		edgeBetween(models.NodeIssue, "jira:A-1", models.NodeIssue, "jira:A-2"),
		edgeBetween(models.NodePR, "r#pr1", models.NodeIssue, "jira:A-2"),
		edgeBetween(models.NodeIssue, "jira:B-1", models.NodeIssue, "jira:B-2"),
	}
	reversed := []models.WorkGraphEdge{edges[2], edges[1], edges[0]}

	a := Components(edges)
	b := Components(reversed)
	require.Equal(t, a, b)

	// Work unit IDs are stable too
	for i := range a {
		assert.Equal(t, identity.WorkUnitID(a[i].Nodes), identity.WorkUnitID(b[i].Nodes))
	}
}
