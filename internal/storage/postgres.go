package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/devhealthops/workgraph/internal/errors"
	"github.com/devhealthops/workgraph/internal/models"
)

// PostgresSink persists build output to PostgreSQL.
type PostgresSink struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPostgresSink connects to PostgreSQL via the pgx stdlib driver.
func NewPostgresSink(dsn string, logger *logrus.Logger) (*PostgresSink, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, errors.BackendError(err, "connect to postgres")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PostgresSink{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the work graph tables when missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS work_graph_edges (
			edge_id TEXT PRIMARY KEY,
			source_type TEXT NOT NULL,
			source_id TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT NOT NULL,
			edge_type TEXT NOT NULL,
			repo_id UUID,
			provider TEXT NOT NULL DEFAULT '',
			provenance TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			evidence TEXT NOT NULL DEFAULT '',
			discovered_at TIMESTAMPTZ NOT NULL,
			last_synced TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_work_graph_edges_repo ON work_graph_edges(repo_id)`,
		`CREATE INDEX IF NOT EXISTS idx_work_graph_edges_source ON work_graph_edges(source_type, source_id)`,
		`CREATE TABLE IF NOT EXISTS work_graph_issue_pr (
			repo_id UUID NOT NULL,
			work_item_id TEXT NOT NULL,
			pr_number INTEGER NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			provenance TEXT NOT NULL,
			evidence TEXT NOT NULL DEFAULT '',
			last_synced TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (repo_id, work_item_id, pr_number)
		)`,
		`CREATE TABLE IF NOT EXISTS work_graph_pr_commit (
			repo_id UUID NOT NULL,
			pr_number INTEGER NOT NULL,
			commit_hash TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			provenance TEXT NOT NULL,
			evidence TEXT NOT NULL DEFAULT '',
			last_synced TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (repo_id, pr_number, commit_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS work_unit_scores (
			work_unit_id TEXT PRIMARY KEY,
			nodes JSONB NOT NULL,
			time_start TIMESTAMPTZ NOT NULL,
			time_end TIMESTAMPTZ NOT NULL,
			categories JSONB NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			band TEXT NOT NULL,
			effort_metric TEXT NOT NULL,
			effort_value DOUBLE PRECISION NOT NULL,
			evidence JSONB NOT NULL,
			computed_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.BackendError(err, "ensure postgres schema")
		}
	}
	return nil
}

// WriteEdges upserts edges keyed by edge_id. Re-discovering an edge only
// refreshes last_synced; discovered_at keeps its original value.
func (s *PostgresSink) WriteEdges(ctx context.Context, edges []models.WorkGraphEdge) error {
	if len(edges) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.BackendError(err, "begin edge transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO work_graph_edges (edge_id, source_type, source_id, target_type, target_id,
			edge_type, repo_id, provider, provenance, confidence, evidence, discovered_at, last_synced)
		VALUES (:edge_id, :source_type, :source_id, :target_type, :target_id,
			:edge_type, :repo_id, :provider, :provenance, :confidence, :evidence, :discovered_at, :last_synced)
		ON CONFLICT (edge_id) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			evidence = EXCLUDED.evidence,
			last_synced = EXCLUDED.last_synced
	`
	for _, edge := range edges {
		if _, err := tx.NamedExecContext(ctx, query, edge); err != nil {
			return errors.BackendErrorf(err, "write edge %s", edge.EdgeID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.BackendError(err, "commit edge batch")
	}
	s.logger.WithField("edges", len(edges)).Debug("Wrote edge batch")
	return nil
}

// WriteIssuePRLinks upserts issue<->PR fast-path links.
func (s *PostgresSink) WriteIssuePRLinks(ctx context.Context, links []models.WorkGraphIssuePR) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.BackendError(err, "begin link transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO work_graph_issue_pr (repo_id, work_item_id, pr_number, confidence, provenance, evidence, last_synced)
		VALUES (:repo_id, :work_item_id, :pr_number, :confidence, :provenance, :evidence, :last_synced)
		ON CONFLICT (repo_id, work_item_id, pr_number) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			provenance = EXCLUDED.provenance,
			evidence = EXCLUDED.evidence,
			last_synced = EXCLUDED.last_synced
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

// WritePRCommitLinks upserts PR<->commit fast-path links.
func (s *PostgresSink) WritePRCommitLinks(ctx context.Context, links []models.WorkGraphPRCommit) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.BackendError(err, "begin pr-commit transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO work_graph_pr_commit (repo_id, pr_number, commit_hash, confidence, provenance, evidence, last_synced)
		VALUES (:repo_id, :pr_number, :commit_hash, :confidence, :provenance, :evidence, :last_synced)
		ON CONFLICT (repo_id, pr_number, commit_hash) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			provenance = EXCLUDED.provenance,
			evidence = EXCLUDED.evidence,
			last_synced = EXCLUDED.last_synced
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

// scoreRecord is the flattened row shape for work_unit_scores.
type scoreRecord struct {
	WorkUnitID   string    `db:"work_unit_id"`
	Nodes        []byte    `db:"nodes"`
	TimeStart    time.Time `db:"time_start"`
	TimeEnd      time.Time `db:"time_end"`
	Categories   []byte    `db:"categories"`
	Confidence   float64   `db:"confidence"`
	Band         string    `db:"band"`
	EffortMetric string    `db:"effort_metric"`
	EffortValue  float64   `db:"effort_value"`
	Evidence     []byte    `db:"evidence"`
	ComputedAt   time.Time `db:"computed_at"`
}

func flattenScore(score models.WorkUnitScore) (scoreRecord, error) {
	nodes, err := json.Marshal(score.Nodes)
	if err != nil {
		return scoreRecord{}, fmt.Errorf("marshal nodes: %w", err)
	}
	categories, err := json.Marshal(score.Categories)
	if err != nil {
		return scoreRecord{}, fmt.Errorf("marshal categories: %w", err)
	}
	evidence, err := json.Marshal(score.Evidence)
	if err != nil {
		return scoreRecord{}, fmt.Errorf("marshal evidence: %w", err)
	}
	return scoreRecord{
		WorkUnitID:   score.WorkUnitID,
		Nodes:        nodes,
		TimeStart:    score.TimeStart,
		TimeEnd:      score.TimeEnd,
		Categories:   categories,
		Confidence:   score.Confidence,
		Band:         string(score.Band),
		EffortMetric: string(score.Effort.Metric),
		EffortValue:  score.Effort.Value,
		Evidence:     evidence,
		ComputedAt:   score.ComputedAt,
	}, nil
}

// WriteWorkUnitScores replaces the scores for the given work units. Scores
// are derived data: the latest computation wins wholesale.
func (s *PostgresSink) WriteWorkUnitScores(ctx context.Context, scores []models.WorkUnitScore) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.BackendError(err, "begin score transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO work_unit_scores (work_unit_id, nodes, time_start, time_end, categories,
			confidence, band, effort_metric, effort_value, evidence, computed_at)
		VALUES (:work_unit_id, :nodes, :time_start, :time_end, :categories,
			:confidence, :band, :effort_metric, :effort_value, :evidence, :computed_at)
		ON CONFLICT (work_unit_id) DO UPDATE SET
			nodes = EXCLUDED.nodes,
			time_start = EXCLUDED.time_start,
			time_end = EXCLUDED.time_end,
			categories = EXCLUDED.categories,
			confidence = EXCLUDED.confidence,
			band = EXCLUDED.band,
			effort_metric = EXCLUDED.effort_metric,
			effort_value = EXCLUDED.effort_value,
			evidence = EXCLUDED.evidence,
			computed_at = EXCLUDED.computed_at
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
	s.logger.WithField("scores", len(scores)).Debug("Wrote work unit scores")
	return nil
}

// ReadEdges returns persisted edges, optionally filtered by repo.
func (s *PostgresSink) ReadEdges(ctx context.Context, filter EdgeFilter) ([]models.WorkGraphEdge, error) {
	query := `SELECT edge_id, source_type, source_id, target_type, target_id, edge_type,
		repo_id, provider, provenance, confidence, evidence, discovered_at, last_synced
		FROM work_graph_edges`
	args := []interface{}{}
	if filter.RepoID != "" {
		query += ` WHERE repo_id = $1`
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
