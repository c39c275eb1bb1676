package models

import (
	"time"

	"github.com/google/uuid"
)

// NodeType identifies the kind of entity behind a graph node.
type NodeType string

const (
	NodeIssue  NodeType = "issue"
	NodePR     NodeType = "pr"
	NodeCommit NodeType = "commit"
)

// NodeKey is the unit of graph identity: (node_type, node_id).
// Nodes are never materialized as their own records.
type NodeKey struct {
	Type NodeType
	ID   string
}

// EdgeType is the canonical relationship carried by a work graph edge.
type EdgeType string

const (
	EdgeBlocks        EdgeType = "blocks"
	EdgeIsBlockedBy   EdgeType = "is_blocked_by"
	EdgeRelates       EdgeType = "relates"
	EdgeIsRelatedTo   EdgeType = "is_related_to"
	EdgeDuplicates    EdgeType = "duplicates"
	EdgeIsDuplicateOf EdgeType = "is_duplicate_of"
	EdgeParentOf      EdgeType = "parent_of"
	EdgeChildOf       EdgeType = "child_of"
	EdgeImplements    EdgeType = "implements"
	EdgeReferences    EdgeType = "references"
)

// Provenance is the reliability tier of an edge, ordered by decreasing
// trust: native > explicit_text > heuristic.
type Provenance string

const (
	ProvenanceNative       Provenance = "native"
	ProvenanceExplicitText Provenance = "explicit_text"
	ProvenanceHeuristic    Provenance = "heuristic"
)

// Fixed confidences for the non-configurable provenance tiers.
const (
	NativeConfidence       = 1.0
	ExplicitTextConfidence = 0.9
)

// WorkGraphEdge is a typed, directed edge between two graph nodes.
// EdgeID is a deterministic hash of (source_type, source_id, edge_type,
// target_type, target_id), so rebuilding over the same source data yields
// byte-identical edges.
type WorkGraphEdge struct {
	EdgeID       string     `json:"edge_id" db:"edge_id"`
	SourceType   NodeType   `json:"source_type" db:"source_type"`
	SourceID     string     `json:"source_id" db:"source_id"`
	TargetType   NodeType   `json:"target_type" db:"target_type"`
	TargetID     string     `json:"target_id" db:"target_id"`
	EdgeType     EdgeType   `json:"edge_type" db:"edge_type"`
	RepoID       *uuid.UUID `json:"repo_id,omitempty" db:"repo_id"`
	Provider     string     `json:"provider,omitempty" db:"provider"`
	Provenance   Provenance `json:"provenance" db:"provenance"`
	Confidence   float64    `json:"confidence" db:"confidence"`
	Evidence     string     `json:"evidence" db:"evidence"`
	DiscoveredAt time.Time  `json:"discovered_at" db:"discovered_at"`
	LastSynced   time.Time  `json:"last_synced" db:"last_synced"`
}

// Source returns the edge's source node key.
func (e WorkGraphEdge) Source() NodeKey { return NodeKey{Type: e.SourceType, ID: e.SourceID} }

// Target returns the edge's target node key.
func (e WorkGraphEdge) Target() NodeKey { return NodeKey{Type: e.TargetType, ID: e.TargetID} }

// WorkGraphIssuePR is the denormalized issue<->PR fast-path link, a
// projection of edges between issue and PR nodes. It exists so the common
// "which PRs touch this issue" query avoids graph traversal.
type WorkGraphIssuePR struct {
	RepoID     uuid.UUID  `json:"repo_id" db:"repo_id"`
	WorkItemID string     `json:"work_item_id" db:"work_item_id"`
	PRNumber   int        `json:"pr_number" db:"pr_number"`
	Confidence float64    `json:"confidence" db:"confidence"`
	Provenance Provenance `json:"provenance" db:"provenance"`
	Evidence   string     `json:"evidence" db:"evidence"`
	LastSynced time.Time  `json:"last_synced" db:"last_synced"`
}

// WorkGraphPRCommit is the denormalized PR<->commit fast-path link.
type WorkGraphPRCommit struct {
	RepoID     uuid.UUID  `json:"repo_id" db:"repo_id"`
	PRNumber   int        `json:"pr_number" db:"pr_number"`
	CommitHash string     `json:"commit_hash" db:"commit_hash"`
	Confidence float64    `json:"confidence" db:"confidence"`
	Provenance Provenance `json:"provenance" db:"provenance"`
	Evidence   string     `json:"evidence" db:"evidence"`
	LastSynced time.Time  `json:"last_synced" db:"last_synced"`
}

// WorkItemRow is the normalized work item (issue) row handed to the core
// by the loader boundary. Loaders are responsible for flattening whatever
// the provider sync wrote into this shape.
type WorkItemRow struct {
	RepoID      uuid.UUID  `db:"repo_id"`
	WorkItemID  string     `db:"work_item_id"`
	Provider    string     `db:"provider"`
	ProjectKey  string     `db:"project_key"`
	ProjectID   string     `db:"project_id"`
	Type        string     `db:"type"`
	Title       string     `db:"title"`
	Description string     `db:"description"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	CompletedAt *time.Time `db:"completed_at"`
	ActiveHours float64    `db:"active_hours"`
}

// PullRequestRow is the normalized pull request row.
type PullRequestRow struct {
	RepoID    uuid.UUID  `db:"repo_id"`
	Number    int        `db:"number"`
	Title     string     `db:"title"`
	Body      string     `db:"body"`
	CreatedAt time.Time  `db:"created_at"`
	MergedAt  *time.Time `db:"merged_at"`
	ClosedAt  *time.Time `db:"closed_at"`
	Additions int        `db:"additions"`
	Deletions int        `db:"deletions"`
}

// DependencyRow is one structured work-item dependency from the tracker.
type DependencyRow struct {
	SourceWorkItemID    string `db:"source_work_item_id"`
	TargetWorkItemID    string `db:"target_work_item_id"`
	RelationshipType    string `db:"relationship_type"`
	RelationshipTypeRaw string `db:"relationship_type_raw"`
}

// CommitRow is the normalized commit row. MergePRNumber is set when the
// sync layer resolved the commit to the PR that merged it.
type CommitRow struct {
	RepoID        uuid.UUID  `db:"repo_id"`
	Hash          string     `db:"hash"`
	Message       string     `db:"message"`
	AuthorWhen    time.Time  `db:"author_when"`
	CommitterWhen *time.Time `db:"committer_when"`
	MergePRNumber *int       `db:"merge_pr_number"`
	Additions     int        `db:"additions"`
	Deletions     int        `db:"deletions"`
}

// ConfidenceBand discretizes a continuous confidence value.
type ConfidenceBand string

const (
	BandHigh     ConfidenceBand = "high"
	BandModerate ConfidenceBand = "moderate"
	BandLow      ConfidenceBand = "low"
	BandVeryLow  ConfidenceBand = "very_low"
)

// EffortMetric names the unit of a work unit's effort estimate.
type EffortMetric string

const (
	EffortChurnLOC    EffortMetric = "churn_loc"
	EffortActiveHours EffortMetric = "active_hours"
)

// WorkUnitEffort is the effort estimate for one work unit.
type WorkUnitEffort struct {
	Metric EffortMetric `json:"metric"`
	Value  float64      `json:"value"`
}

// WorkUnitScore is the scoring output for one connected component:
// a normalized category distribution plus the overall confidence and the
// evidence that produced both. Work units are derived, never mutated; this
// record is recomputed wholesale on every run.
type WorkUnitScore struct {
	WorkUnitID string             `json:"work_unit_id" db:"work_unit_id"`
	Nodes      []NodeKey          `json:"nodes"`
	TimeStart  time.Time          `json:"time_start" db:"time_start"`
	TimeEnd    time.Time          `json:"time_end" db:"time_end"`
	Categories map[string]float64 `json:"categories"`
	Confidence float64            `json:"confidence" db:"confidence"`
	Band       ConfidenceBand     `json:"band" db:"band"`
	Effort     WorkUnitEffort     `json:"effort"`
	Evidence   EvidenceBundle     `json:"evidence"`
	ComputedAt time.Time          `json:"computed_at" db:"computed_at"`
}

// BuildStats summarizes one builder run. Skipped counts surface rows that
// were dropped by the per-row failure policy; they never abort the build.
type BuildStats struct {
	NativeEdges      int `json:"native_edges"`
	ExplicitEdges    int `json:"explicit_edges"`
	HeuristicEdges   int `json:"heuristic_edges"`
	PRCommitEdges    int `json:"pr_commit_edges"`
	IssuePRLinks     int `json:"issue_pr_links"`
	PRCommitLinks    int `json:"pr_commit_links"`
	SkippedWorkItems int `json:"skipped_work_items"`
	SkippedPRs       int `json:"skipped_prs"`
	SkippedDeps      int `json:"skipped_dependencies"`
	SkippedCommits   int `json:"skipped_commits"`
	NewEdges         int `json:"new_edges"`
	SeenEdges        int `json:"seen_edges"`
}

// TotalEdges returns the number of distinct edges produced by the run.
func (s BuildStats) TotalEdges() int {
	return s.NativeEdges + s.ExplicitEdges + s.HeuristicEdges + s.PRCommitEdges
}

// TotalSkipped returns the number of rows dropped by the skip policy.
func (s BuildStats) TotalSkipped() int {
	return s.SkippedWorkItems + s.SkippedPRs + s.SkippedDeps + s.SkippedCommits
}
