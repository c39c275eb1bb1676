// Package database holds the read side of the build's data boundary: a
// PostgreSQL client over the tables the provider sync layer maintains.
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/devhealthops/workgraph/internal/errors"
	"github.com/devhealthops/workgraph/internal/models"
)

// Loader reads the normalized source rows one build run consumes.
type Loader interface {
	LoadWorkItems(ctx context.Context, filter LoadFilter) ([]models.WorkItemRow, error)
	LoadPullRequests(ctx context.Context, filter LoadFilter) ([]models.PullRequestRow, error)
	LoadDependencies(ctx context.Context) ([]models.DependencyRow, error)
	LoadCommits(ctx context.Context, filter LoadFilter) ([]models.CommitRow, error)
	Close() error
}

// LoadFilter narrows a load to one repository and/or a creation time range.
type LoadFilter struct {
	RepoID *uuid.UUID
	From   *time.Time
	To     *time.Time
}

// Client implements Loader against the sync layer's PostgreSQL tables.
type Client struct {
	db *sql.DB
}

// NewClient opens a connection and verifies it.
func NewClient(ctx context.Context, dsn string) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.BackendError(err, "open loader connection")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.BackendError(err, "ping loader database")
	}
	return &Client{db: db}, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

// LoadWorkItems reads work items. The time filter applies to updated_at,
// matching what the heuristic pass compares against.
func (c *Client) LoadWorkItems(ctx context.Context, filter LoadFilter) ([]models.WorkItemRow, error) {
	query := `
		SELECT repo_id, work_item_id, provider, project_key, project_id, type,
			COALESCE(title, ''), COALESCE(description, ''),
			created_at, updated_at, completed_at, COALESCE(active_hours, 0)
		FROM work_items
		WHERE ($1::uuid IS NULL OR repo_id = $1)
			AND ($2::timestamptz IS NULL OR updated_at >= $2)
			AND ($3::timestamptz IS NULL OR updated_at <= $3)
	`
	rows, err := c.db.QueryContext(ctx, query, filter.RepoID, filter.From, filter.To)
	if err != nil {
		return nil, errors.BackendError(err, "load work items")
	}
	defer rows.Close()

	var items []models.WorkItemRow
	for rows.Next() {
		var item models.WorkItemRow
		if err := rows.Scan(
			&item.RepoID, &item.WorkItemID, &item.Provider, &item.ProjectKey,
			&item.ProjectID, &item.Type, &item.Title, &item.Description,
			&item.CreatedAt, &item.UpdatedAt, &item.CompletedAt, &item.ActiveHours,
		); err != nil {
			return nil, errors.BackendError(err, "scan work item row")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.BackendError(err, "iterate work items")
	}
	return items, nil
}

// LoadPullRequests reads pull requests, filtered on created_at.
func (c *Client) LoadPullRequests(ctx context.Context, filter LoadFilter) ([]models.PullRequestRow, error) {
	query := `
		SELECT repo_id, number, COALESCE(title, ''), COALESCE(body, ''),
			created_at, merged_at, closed_at,
			COALESCE(additions, 0), COALESCE(deletions, 0)
		FROM git_pull_requests
		WHERE ($1::uuid IS NULL OR repo_id = $1)
			AND ($2::timestamptz IS NULL OR created_at >= $2)
			AND ($3::timestamptz IS NULL OR created_at <= $3)
	`
	rows, err := c.db.QueryContext(ctx, query, filter.RepoID, filter.From, filter.To)
	if err != nil {
		return nil, errors.BackendError(err, "load pull requests")
	}
	defer rows.Close()

	var prs []models.PullRequestRow
	for rows.Next() {
		var pr models.PullRequestRow
		if err := rows.Scan(
			&pr.RepoID, &pr.Number, &pr.Title, &pr.Body,
			&pr.CreatedAt, &pr.MergedAt, &pr.ClosedAt,
			&pr.Additions, &pr.Deletions,
		); err != nil {
			return nil, errors.BackendError(err, "scan pull request row")
		}
		prs = append(prs, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.BackendError(err, "iterate pull requests")
	}
	return prs, nil
}

// LoadDependencies reads structured work item dependencies.
func (c *Client) LoadDependencies(ctx context.Context) ([]models.DependencyRow, error) {
	query := `
		SELECT source_work_item_id, target_work_item_id,
			COALESCE(relationship_type, ''), COALESCE(relationship_type_raw, '')
		FROM work_item_dependencies
	`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.BackendError(err, "load dependencies")
	}
	defer rows.Close()

	var deps []models.DependencyRow
	for rows.Next() {
		var dep models.DependencyRow
		if err := rows.Scan(
			&dep.SourceWorkItemID, &dep.TargetWorkItemID,
			&dep.RelationshipType, &dep.RelationshipTypeRaw,
		); err != nil {
			return nil, errors.BackendError(err, "scan dependency row")
		}
		deps = append(deps, dep)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.BackendError(err, "iterate dependencies")
	}
	return deps, nil
}

// LoadCommits reads commits, filtered on author_when.
func (c *Client) LoadCommits(ctx context.Context, filter LoadFilter) ([]models.CommitRow, error) {
	query := `
		SELECT repo_id, hash, COALESCE(message, ''), author_when, committer_when,
			merge_pr_number, COALESCE(additions, 0), COALESCE(deletions, 0)
		FROM git_commits
		WHERE ($1::uuid IS NULL OR repo_id = $1)
			AND ($2::timestamptz IS NULL OR author_when >= $2)
			AND ($3::timestamptz IS NULL OR author_when <= $3)
	`
	rows, err := c.db.QueryContext(ctx, query, filter.RepoID, filter.From, filter.To)
	if err != nil {
		return nil, errors.BackendError(err, "load commits")
	}
	defer rows.Close()

	var commits []models.CommitRow
	for rows.Next() {
		var commit models.CommitRow
		if err := rows.Scan(
			&commit.RepoID, &commit.Hash, &commit.Message,
			&commit.AuthorWhen, &commit.CommitterWhen, &commit.MergePRNumber,
			&commit.Additions, &commit.Deletions,
		); err != nil {
			return nil, errors.BackendError(err, "scan commit row")
		}
		commits = append(commits, commit)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.BackendError(err, "iterate commits")
	}
	return commits, nil
}
