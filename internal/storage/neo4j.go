package storage

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/devhealthops/workgraph/internal/errors"
	"github.com/devhealthops/workgraph/internal/models"
)

// Neo4jMirror mirrors the edge set into Neo4j for deployments that want
// graph-native queries over the work graph. It is an optional add-on, not a
// full Sink: the relational sink remains the source of truth.
type Neo4jMirror struct {
	driver neo4j.DriverWithContext
	logger *logrus.Logger
}

// NewNeo4jMirror connects to Neo4j and verifies connectivity up front.
func NewNeo4jMirror(ctx context.Context, uri, user, password string, logger *logrus.Logger) (*Neo4jMirror, error) {
	if uri == "" {
		return nil, errors.ConfigErrorf("neo4j uri is empty")
	}

	driver, err := neo4j.NewDriverWithContext(uri,
		neo4j.BasicAuth(user, password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = 25
			config.SocketConnectTimeout = 5 * time.Second
		})
	if err != nil {
		return nil, errors.BackendError(err, "create neo4j driver")
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, errors.BackendErrorf(err, "connect to neo4j at %s", uri)
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithField("uri", uri).Info("Connected to Neo4j mirror")
	return &Neo4jMirror{driver: driver, logger: logger}, nil
}

// Close closes the driver.
func (m *Neo4jMirror) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}

// MirrorEdges merges the edges into the graph. Nodes are merged by
// (node_type, node_id) and relationships by edge_id, so re-mirroring the
// same edge set is a no-op.
func (m *Neo4jMirror) MirrorEdges(ctx context.Context, edges []models.WorkGraphEdge) error {
	if len(edges) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(edges))
	for _, edge := range edges {
		row := map[string]any{
			"edge_id":     edge.EdgeID,
			"source_type": string(edge.SourceType),
			"source_id":   edge.SourceID,
			"target_type": string(edge.TargetType),
			"target_id":   edge.TargetID,
			"edge_type":   string(edge.EdgeType),
			"provenance":  string(edge.Provenance),
			"confidence":  edge.Confidence,
			"evidence":    edge.Evidence,
			"last_synced": edge.LastSynced.UTC().Format(time.RFC3339),
		}
		if edge.RepoID != nil {
			row["repo_id"] = edge.RepoID.String()
		}
		rows = append(rows, row)
	}

	query := `
		UNWIND $edges AS edge
		MERGE (source:WorkNode {node_type: edge.source_type, node_id: edge.source_id})
		MERGE (target:WorkNode {node_type: edge.target_type, node_id: edge.target_id})
		MERGE (source)-[rel:LINKS {edge_id: edge.edge_id}]->(target)
		SET rel.edge_type = edge.edge_type,
			rel.provenance = edge.provenance,
			rel.confidence = edge.confidence,
			rel.evidence = edge.evidence,
			rel.repo_id = edge.repo_id,
			rel.last_synced = edge.last_synced
	`

	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{"edges": rows})
	})
	if err != nil {
		return errors.BackendError(err, "mirror edges to neo4j")
	}

	m.logger.WithField("edges", len(edges)).Debug("Mirrored edges to Neo4j")
	return nil
}
