// Package graph builds the work graph: typed edges between issues, PRs, and
// commits, plus the denormalized fast-path links, and groups the resulting
// edge set into connected components.
package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/devhealthops/workgraph/internal/extract"
	"github.com/devhealthops/workgraph/internal/identity"
	"github.com/devhealthops/workgraph/internal/models"
)

// dependencyTypeMap maps raw tracker relationship strings to canonical edge
// types. Unknown or empty strings default to relates.
var dependencyTypeMap = map[string]models.EdgeType{
	"blocks":          models.EdgeBlocks,
	"is_blocked_by":   models.EdgeIsBlockedBy,
	"relates":         models.EdgeRelates,
	"is_related_to":   models.EdgeIsRelatedTo,
	"duplicates":      models.EdgeDuplicates,
	"is_duplicate_of": models.EdgeIsDuplicateOf,
	"parent":          models.EdgeParentOf,
	"child":           models.EdgeChildOf,
	"is_parent_of":    models.EdgeParentOf,
	"is_child_of":     models.EdgeChildOf,
}

// BuildConfig holds the builder's tunables.
type BuildConfig struct {
	// HeuristicDaysWindow is the +/- day window for the time-window pass.
	// Zero disables the pass.
	HeuristicDaysWindow int
	// HeuristicConfidence is the confidence assigned to heuristic edges.
	HeuristicConfidence float64
	// Workers bounds the per-repo fan-out of the heuristic pass.
	Workers int
}

// Inputs are the raw rows one build run consumes. The loader boundary is
// responsible for normalizing source data into these shapes.
type Inputs struct {
	WorkItems    []models.WorkItemRow
	PullRequests []models.PullRequestRow
	Dependencies []models.DependencyRow
	Commits      []models.CommitRow
}

// Result is the output of one build run. Edges are de-duplicated by edge_id
// and sorted, so two runs over the same inputs produce identical output.
type Result struct {
	Edges         []models.WorkGraphEdge
	IssuePRLinks  []models.WorkGraphIssuePR
	PRCommitLinks []models.WorkGraphPRCommit
	Stats         models.BuildStats
}

// Builder derives work graph edges from raw rows. The timestamp applied to
// every edge is injected at construction so rebuilds are reproducible in
// tests.
type Builder struct {
	cfg BuildConfig
	log *logrus.Logger
	now func() time.Time
}

// NewBuilder creates a Builder. A nil log gets the standard logger, a nil
// now gets time.Now.
func NewBuilder(cfg BuildConfig, log *logrus.Logger, now func() time.Time) *Builder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if now == nil {
		now = time.Now
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Builder{cfg: cfg, log: log, now: now}
}

type linkKey struct {
	workItemID string
	prNumber   int
}

// Build runs all edge passes over the inputs.
func (b *Builder) Build(ctx context.Context, in Inputs) (*Result, error) {
	now := b.now().UTC()
	result := &Result{}

	b.log.WithFields(logrus.Fields{
		"work_items":    len(in.WorkItems),
		"pull_requests": len(in.PullRequests),
		"dependencies":  len(in.Dependencies),
		"commits":       len(in.Commits),
	}).Info("Starting work graph build")

	nativeEdges := b.buildDependencyEdges(in.Dependencies, now, &result.Stats)
	result.Stats.NativeEdges = len(nativeEdges)

	explicitEdges, explicitLinks, explicitSet := b.buildExplicitEdges(in, now, &result.Stats)
	result.Stats.ExplicitEdges = len(explicitEdges)

	heuristicEdges, heuristicLinks, err := b.buildHeuristicEdges(ctx, in, explicitSet, now, &result.Stats)
	if err != nil {
		return nil, err
	}
	result.Stats.HeuristicEdges = len(heuristicEdges)

	prCommitEdges, prCommitLinks := b.buildPRCommitEdges(in.Commits, now, &result.Stats)
	result.Stats.PRCommitEdges = len(prCommitEdges)

	all := make([]models.WorkGraphEdge, 0, len(nativeEdges)+len(explicitEdges)+len(heuristicEdges)+len(prCommitEdges))
	all = append(all, nativeEdges...)
	all = append(all, explicitEdges...)
	all = append(all, heuristicEdges...)
	all = append(all, prCommitEdges...)
	result.Edges = dedupeEdges(all)

	result.IssuePRLinks = append(explicitLinks, heuristicLinks...)
	result.PRCommitLinks = prCommitLinks
	result.Stats.IssuePRLinks = len(result.IssuePRLinks)
	result.Stats.PRCommitLinks = len(result.PRCommitLinks)

	b.log.WithFields(logrus.Fields{
		"native":    result.Stats.NativeEdges,
		"explicit":  result.Stats.ExplicitEdges,
		"heuristic": result.Stats.HeuristicEdges,
		"pr_commit": result.Stats.PRCommitEdges,
		"skipped":   result.Stats.TotalSkipped(),
	}).Info("Work graph build complete")

	return result, nil
}

// buildDependencyEdges maps structured tracker dependencies to native
// issue->issue edges.
func (b *Builder) buildDependencyEdges(deps []models.DependencyRow, now time.Time, stats *models.BuildStats) []models.WorkGraphEdge {
	edges := make([]models.WorkGraphEdge, 0, len(deps))
	for _, dep := range deps {
		if dep.SourceWorkItemID == "" || dep.TargetWorkItemID == "" {
			stats.SkippedDeps++
			continue
		}
		edgeType, ok := dependencyTypeMap[strings.ToLower(dep.RelationshipType)]
		if !ok {
			edgeType = models.EdgeRelates
		}
		evidence := dep.RelationshipTypeRaw
		if evidence == "" {
			evidence = dep.RelationshipType
		}
		if evidence == "" {
			evidence = "dependency"
		}
		edges = append(edges, models.WorkGraphEdge{
			EdgeID:       identity.EdgeID(models.NodeIssue, dep.SourceWorkItemID, edgeType, models.NodeIssue, dep.TargetWorkItemID),
			SourceType:   models.NodeIssue,
			SourceID:     dep.SourceWorkItemID,
			TargetType:   models.NodeIssue,
			TargetID:     dep.TargetWorkItemID,
			EdgeType:     edgeType,
			Provenance:   models.ProvenanceNative,
			Confidence:   models.NativeConfidence,
			Evidence:     evidence,
			DiscoveredAt: now,
			LastSynced:   now,
		})
	}
	return edges
}

// workItemLookups resolves extracted references to work item IDs: Jira keys
// globally, issue numbers per repo for GitHub and GitLab.
type workItemLookups struct {
	jira   map[string]string
	github map[repoIssueKey]string
	gitlab map[repoIssueKey]string
}

type repoIssueKey struct {
	repoID   uuid.UUID
	issueNum string
}

func buildWorkItemLookups(items []models.WorkItemRow, stats *models.BuildStats) workItemLookups {
	lookups := workItemLookups{
		jira:   make(map[string]string),
		github: make(map[repoIssueKey]string),
		gitlab: make(map[repoIssueKey]string),
	}
	for _, item := range items {
		if item.WorkItemID == "" {
			stats.SkippedWorkItems++
			continue
		}
		switch item.Provider {
		case "jira":
			if key, ok := strings.CutPrefix(item.WorkItemID, "jira:"); ok {
				lookups.jira[strings.ToUpper(key)] = item.WorkItemID
			}
		case "github", "gitlab":
			if item.RepoID == uuid.Nil {
				stats.SkippedWorkItems++
				continue
			}
			idx := strings.LastIndex(item.WorkItemID, "#")
			if idx < 0 {
				continue
			}
			key := repoIssueKey{repoID: item.RepoID, issueNum: item.WorkItemID[idx+1:]}
			if item.Provider == "github" {
				lookups.github[key] = item.WorkItemID
			} else {
				lookups.gitlab[key] = item.WorkItemID
			}
		}
	}
	return lookups
}

// buildExplicitEdges parses each PR's title and body for issue references
// and emits PR->issue edges plus fast-path links. The returned set of
// resolved (work_item_id, pr_number) pairs feeds the heuristic pass.
func (b *Builder) buildExplicitEdges(in Inputs, now time.Time, stats *models.BuildStats) ([]models.WorkGraphEdge, []models.WorkGraphIssuePR, map[linkKey]struct{}) {
	lookups := buildWorkItemLookups(in.WorkItems, stats)

	var edges []models.WorkGraphEdge
	var links []models.WorkGraphIssuePR
	explicit := make(map[linkKey]struct{})

	emit := func(pr models.PullRequestRow, workItemID, provider string, ref extract.Reference) {
		edgeType := models.EdgeReferences
		if ref.RefType == extract.RefCloses {
			edgeType = models.EdgeImplements
		}
		prID := identity.PRID(pr.RepoID, pr.Number)
		repoID := pr.RepoID
		edges = append(edges, models.WorkGraphEdge{
			EdgeID:       identity.EdgeID(models.NodePR, prID, edgeType, models.NodeIssue, workItemID),
			SourceType:   models.NodePR,
			SourceID:     prID,
			TargetType:   models.NodeIssue,
			TargetID:     workItemID,
			EdgeType:     edgeType,
			RepoID:       &repoID,
			Provider:     provider,
			Provenance:   models.ProvenanceExplicitText,
			Confidence:   models.ExplicitTextConfidence,
			Evidence:     ref.RawMatch,
			DiscoveredAt: now,
			LastSynced:   now,
		})
		links = append(links, models.WorkGraphIssuePR{
			RepoID:     pr.RepoID,
			WorkItemID: workItemID,
			PRNumber:   pr.Number,
			Confidence: models.ExplicitTextConfidence,
			Provenance: models.ProvenanceExplicitText,
			Evidence:   ref.RawMatch,
			LastSynced: now,
		})
		explicit[linkKey{workItemID: workItemID, prNumber: pr.Number}] = struct{}{}
	}

	for _, pr := range in.PullRequests {
		if pr.RepoID == uuid.Nil {
			stats.SkippedPRs++
			continue
		}
		text := pr.Title
		if pr.Body != "" {
			text = text + "\n" + pr.Body
		}
		if strings.TrimSpace(text) == "" {
			stats.SkippedPRs++
			continue
		}

		for _, ref := range extract.JiraKeys(text) {
			if workItemID, ok := lookups.jira[ref.IssueKey]; ok {
				emit(pr, workItemID, "jira", ref)
			}
		}
		for _, ref := range extract.GitHubIssueRefs(text) {
			key := repoIssueKey{repoID: pr.RepoID, issueNum: ref.IssueKey}
			if workItemID, ok := lookups.github[key]; ok {
				emit(pr, workItemID, "github", ref)
			}
		}
		for _, ref := range extract.GitLabIssueRefs(text) {
			key := repoIssueKey{repoID: pr.RepoID, issueNum: ref.IssueKey}
			if workItemID, ok := lookups.gitlab[key]; ok {
				emit(pr, workItemID, "gitlab", ref)
			}
		}
	}

	return edges, links, explicit
}

// buildHeuristicEdges links work items and PRs in the same repository when
// the PR was opened within the day window around the item's last update and
// no explicit link exists. Repos are independent, so the pass fans out per
// repo under a bounded worker pool.
func (b *Builder) buildHeuristicEdges(ctx context.Context, in Inputs, explicit map[linkKey]struct{}, now time.Time, stats *models.BuildStats) ([]models.WorkGraphEdge, []models.WorkGraphIssuePR, error) {
	if b.cfg.HeuristicDaysWindow <= 0 {
		return nil, nil, nil
	}

	itemsByRepo := make(map[uuid.UUID][]models.WorkItemRow)
	var skippedItems int
	for _, item := range in.WorkItems {
		if item.RepoID == uuid.Nil || item.UpdatedAt.IsZero() {
			skippedItems++
			continue
		}
		itemsByRepo[item.RepoID] = append(itemsByRepo[item.RepoID], item)
	}
	stats.SkippedWorkItems += skippedItems

	prsByRepo := make(map[uuid.UUID][]models.PullRequestRow)
	for _, pr := range in.PullRequests {
		if pr.RepoID == uuid.Nil || pr.CreatedAt.IsZero() {
			continue
		}
		prsByRepo[pr.RepoID] = append(prsByRepo[pr.RepoID], pr)
	}

	window := time.Duration(b.cfg.HeuristicDaysWindow) * 24 * time.Hour
	evidence := fmt.Sprintf("time_window_%dd", b.cfg.HeuristicDaysWindow)

	var mu sync.Mutex
	var edges []models.WorkGraphEdge
	var links []models.WorkGraphIssuePR

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)

	for repoID, items := range itemsByRepo {
		prs, ok := prsByRepo[repoID]
		if !ok {
			continue
		}
		repoID, items := repoID, items
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			sorted := make([]models.PullRequestRow, len(prs))
			copy(sorted, prs)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
			})

			var repoEdges []models.WorkGraphEdge
			var repoLinks []models.WorkGraphIssuePR
			for _, item := range items {
				lo := item.UpdatedAt.Add(-window)
				hi := item.UpdatedAt.Add(window)
				// Window scan over the sorted PRs bounds the pairwise check.
				start := sort.Search(len(sorted), func(i int) bool {
					return !sorted[i].CreatedAt.Before(lo)
				})
				for i := start; i < len(sorted) && !sorted[i].CreatedAt.After(hi); i++ {
					pr := sorted[i]
					if _, linked := explicit[linkKey{workItemID: item.WorkItemID, prNumber: pr.Number}]; linked {
						continue
					}
					prID := identity.PRID(repoID, pr.Number)
					edgeRepoID := repoID
					repoEdges = append(repoEdges, models.WorkGraphEdge{
						EdgeID:       identity.EdgeID(models.NodePR, prID, models.EdgeRelates, models.NodeIssue, item.WorkItemID),
						SourceType:   models.NodePR,
						SourceID:     prID,
						TargetType:   models.NodeIssue,
						TargetID:     item.WorkItemID,
						EdgeType:     models.EdgeRelates,
						RepoID:       &edgeRepoID,
						Provenance:   models.ProvenanceHeuristic,
						Confidence:   b.cfg.HeuristicConfidence,
						Evidence:     evidence,
						DiscoveredAt: now,
						LastSynced:   now,
					})
					repoLinks = append(repoLinks, models.WorkGraphIssuePR{
						RepoID:     repoID,
						WorkItemID: item.WorkItemID,
						PRNumber:   pr.Number,
						Confidence: b.cfg.HeuristicConfidence,
						Provenance: models.ProvenanceHeuristic,
						Evidence:   evidence,
						LastSynced: now,
					})
				}
			}

			mu.Lock()
			edges = append(edges, repoEdges...)
			links = append(links, repoLinks...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sortLinks(links)
	return edges, links, nil
}

// buildPRCommitEdges projects merge-resolved commits into native PR->commit
// edges and fast-path links.
func (b *Builder) buildPRCommitEdges(commits []models.CommitRow, now time.Time, stats *models.BuildStats) ([]models.WorkGraphEdge, []models.WorkGraphPRCommit) {
	var edges []models.WorkGraphEdge
	var links []models.WorkGraphPRCommit
	for _, commit := range commits {
		if commit.MergePRNumber == nil {
			continue
		}
		if commit.RepoID == uuid.Nil || commit.Hash == "" {
			stats.SkippedCommits++
			continue
		}
		prID := identity.PRID(commit.RepoID, *commit.MergePRNumber)
		commitID := identity.CommitID(commit.RepoID, commit.Hash)
		repoID := commit.RepoID
		edges = append(edges, models.WorkGraphEdge{
			EdgeID:       identity.EdgeID(models.NodePR, prID, models.EdgeReferences, models.NodeCommit, commitID),
			SourceType:   models.NodePR,
			SourceID:     prID,
			TargetType:   models.NodeCommit,
			TargetID:     commitID,
			EdgeType:     models.EdgeReferences,
			RepoID:       &repoID,
			Provenance:   models.ProvenanceNative,
			Confidence:   models.NativeConfidence,
			Evidence:     "merge_commit",
			DiscoveredAt: now,
			LastSynced:   now,
		})
		links = append(links, models.WorkGraphPRCommit{
			RepoID:     commit.RepoID,
			PRNumber:   *commit.MergePRNumber,
			CommitHash: commit.Hash,
			Confidence: models.NativeConfidence,
			Provenance: models.ProvenanceNative,
			Evidence:   "merge_commit",
			LastSynced: now,
		})
	}
	return edges, links
}

// dedupeEdges drops duplicate edge IDs (first write wins) and sorts by
// edge_id so output ordering is stable across runs.
func dedupeEdges(edges []models.WorkGraphEdge) []models.WorkGraphEdge {
	seen := make(map[string]struct{}, len(edges))
	out := make([]models.WorkGraphEdge, 0, len(edges))
	for _, edge := range edges {
		if _, ok := seen[edge.EdgeID]; ok {
			continue
		}
		seen[edge.EdgeID] = struct{}{}
		out = append(out, edge)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EdgeID < out[j].EdgeID })
	return out
}

func sortLinks(links []models.WorkGraphIssuePR) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].WorkItemID != links[j].WorkItemID {
			return links[i].WorkItemID < links[j].WorkItemID
		}
		return links[i].PRNumber < links[j].PRNumber
	})
}
