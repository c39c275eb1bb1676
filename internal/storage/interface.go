// Package storage holds the write side of the build's data boundary: sinks
// that persist edges, fast-path links, and work unit scores. The read side
// lives in internal/database.
package storage

import (
	"context"
	"errors"

	"github.com/devhealthops/workgraph/internal/models"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
)

// Sink persists the outputs of one build run. A duplicate edge_id write is
// an upsert, never an error: builds over unchanged inputs are idempotent.
type Sink interface {
	// EnsureSchema creates the sink's tables when missing.
	EnsureSchema(ctx context.Context) error

	// WriteEdges upserts a batch of work graph edges keyed by edge_id.
	WriteEdges(ctx context.Context, edges []models.WorkGraphEdge) error

	// WriteIssuePRLinks upserts the denormalized issue<->PR links.
	WriteIssuePRLinks(ctx context.Context, links []models.WorkGraphIssuePR) error

	// WritePRCommitLinks upserts the denormalized PR<->commit links.
	WritePRCommitLinks(ctx context.Context, links []models.WorkGraphPRCommit) error

	// WriteWorkUnitScores replaces the scores for the given work units.
	WriteWorkUnitScores(ctx context.Context, scores []models.WorkUnitScore) error

	// ReadEdges returns the persisted edge set, optionally filtered by repo.
	ReadEdges(ctx context.Context, filter EdgeFilter) ([]models.WorkGraphEdge, error)

	// Close releases the sink's resources.
	Close() error
}

// EdgeFilter narrows a ReadEdges call.
type EdgeFilter struct {
	// RepoID filters to a single repository when non-empty.
	RepoID string
	// Limit caps the number of edges returned; zero means no cap.
	Limit int
}
