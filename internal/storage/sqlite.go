package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/devhealthops/workgraph/internal/errors"
	"github.com/devhealthops/workgraph/internal/models"
)

// SQLiteSink is the local, zero-infrastructure sink. It holds the same
// tables as the Postgres sink with SQLite's upsert dialect.
type SQLiteSink struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteSink opens (creating if needed) a SQLite database at path.
func NewSQLiteSink(path string, logger *logrus.Logger) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.BackendError(err, "create sqlite directory")
	}

	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.BackendError(err, "open sqlite database")
	}
	// SQLite serializes writers; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SQLiteSink{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the work graph tables when missing.
func (s *SQLiteSink) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS work_graph_edges (
			edge_id TEXT PRIMARY KEY,
			source_type TEXT NOT NULL,
			source_id TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT NOT NULL,
			edge_type TEXT NOT NULL,
			repo_id TEXT,
			provider TEXT NOT NULL DEFAULT '',
			provenance TEXT NOT NULL,
			confidence REAL NOT NULL,
			evidence TEXT NOT NULL DEFAULT '',
			discovered_at TIMESTAMP NOT NULL,
			last_synced TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_work_graph_edges_repo ON work_graph_edges(repo_id)`,
		`CREATE TABLE IF NOT EXISTS work_graph_issue_pr (
			repo_id TEXT NOT NULL,
			work_item_id TEXT NOT NULL,
			pr_number INTEGER NOT NULL,
			confidence REAL NOT NULL,
			provenance TEXT NOT NULL,
			evidence TEXT NOT NULL DEFAULT '',
			last_synced TIMESTAMP NOT NULL,
			PRIMARY KEY (repo_id, work_item_id, pr_number)
		)`,
		`CREATE TABLE IF NOT EXISTS work_graph_pr_commit (
			repo_id TEXT NOT NULL,
			pr_number INTEGER NOT NULL,
			commit_hash TEXT NOT NULL,
			confidence REAL NOT NULL,
			provenance TEXT NOT NULL,
			evidence TEXT NOT NULL DEFAULT '',
			last_synced TIMESTAMP NOT NULL,
			PRIMARY KEY (repo_id, pr_number, commit_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS work_unit_scores (
			work_unit_id TEXT PRIMARY KEY,
			nodes TEXT NOT NULL,
			time_start TIMESTAMP NOT NULL,
			time_end TIMESTAMP NOT NULL,
			categories TEXT NOT NULL,
			confidence REAL NOT NULL,
			band TEXT NOT NULL,
			effort_metric TEXT NOT NULL,
			effort_value REAL NOT NULL,
			evidence TEXT NOT NULL,
			computed_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.BackendError(err, "ensure sqlite schema")
		}
	}
	return nil
}

// WriteEdges writes edges with last-write-wins semantics.
func (s *SQLiteSink) WriteEdges(ctx context.Context, edges []models.WorkGraphEdge) error {
	if len(edges) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.BackendError(err, "begin edge transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO work_graph_edges (edge_id, source_type, source_id, target_type, target_id,
			edge_type, repo_id, provider, provenance, confidence, evidence, discovered_at, last_synced)
		VALUES (:edge_id, :source_type, :source_id, :target_type, :target_id,
			:edge_type, :repo_id, :provider, :provenance, :confidence, :evidence, :discovered_at, :last_synced)
	`
	for _, edge := range edges {
		if _, err := tx.NamedExecContext(ctx, query, edge); err != nil {
			return errors.BackendErrorf(err, "write edge %s", edge.EdgeID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.BackendError(err, "commit edge batch")
	}
	return nil
}

// WriteIssuePRLinks writes issue<->PR fast-path links.
func (s *SQLiteSink) WriteIssuePRLinks(ctx context.Context, links []models.WorkGraphIssuePR) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.BackendError(err, "begin link transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO work_graph_issue_pr (repo_id, work_item_id, pr_number, confidence, provenance, evidence, last_synced)
		VALUES (:repo_id, :work_item_id, :pr_number, :confidence, :provenance, :evidence, :last_synced)
	`
	for _, link := range links {
		if _, err := tx.NamedExecContext(ctx, query, link); err != nil {
			return errors.BackendErrorf(err, "write issue-pr link %s#%d", link.WorkItemID, link.PRNumber)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.BackendError(err, "commit link batch")
	}
	return nil
}

// WritePRCommitLinks writes PR<->commit fast-path links.
func (s *SQLiteSink) WritePRCommitLinks(ctx context.Context, links []models.WorkGraphPRCommit) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.BackendError(err, "begin pr-commit transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO work_graph_pr_commit (repo_id, pr_number, commit_hash, confidence, provenance, evidence, last_synced)
		VALUES (:repo_id, :pr_number, :commit_hash, :confidence, :provenance, :evidence, :last_synced)
	`
	for _, link := range links {
		if _, err := tx.NamedExecContext(ctx, query, link); err != nil {
			return errors.BackendErrorf(err, "write pr-commit link #%d@%s", link.PRNumber, link.CommitHash)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.BackendError(err, "commit pr-commit batch")
	}
	return nil
}

// WriteWorkUnitScores replaces scores wholesale.
func (s *SQLiteSink) WriteWorkUnitScores(ctx context.Context, scores []models.WorkUnitScore) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.BackendError(err, "begin score transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO work_unit_scores (work_unit_id, nodes, time_start, time_end, categories,
			confidence, band, effort_metric, effort_value, evidence, computed_at)
		VALUES (:work_unit_id, :nodes, :time_start, :time_end, :categories,
			:confidence, :band, :effort_metric, :effort_value, :evidence, :computed_at)
	`
	for _, score := range scores {
		record, err := flattenScore(score)
		if err != nil {
			return errors.BackendErrorf(err, "flatten score %s", score.WorkUnitID)
		}
		if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
			return errors.BackendErrorf(err, "write score %s", score.WorkUnitID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.BackendError(err, "commit score batch")
	}
	return nil
}

// ReadEdges returns persisted edges, optionally filtered by repo.
func (s *SQLiteSink) ReadEdges(ctx context.Context, filter EdgeFilter) ([]models.WorkGraphEdge, error) {
	query := `SELECT edge_id, source_type, source_id, target_type, target_id, edge_type,
		repo_id, provider, provenance, confidence, evidence, discovered_at, last_synced
		FROM work_graph_edges`
	args := []interface{}{}
	if filter.RepoID != "" {
		query += ` WHERE repo_id = ?`
		args = append(args, filter.RepoID)
	}
	query += ` ORDER BY edge_id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	var edges []models.WorkGraphEdge
	if err := s.db.SelectContext(ctx, &edges, query, args...); err != nil {
		return nil, errors.BackendError(err, "read edges")
	}
	return edges, nil
}
