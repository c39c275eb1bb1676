// Package pipeline wires the build end to end: load rows, derive edges,
// persist, group into work units, score, persist scores.
package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devhealthops/workgraph/internal/database"
	"github.com/devhealthops/workgraph/internal/graph"
	"github.com/devhealthops/workgraph/internal/identity"
	"github.com/devhealthops/workgraph/internal/ledger"
	"github.com/devhealthops/workgraph/internal/models"
	"github.com/devhealthops/workgraph/internal/scoring"
	"github.com/devhealthops/workgraph/internal/storage"
)

// EdgeMirror is the optional graph-database mirror of the edge set.
type EdgeMirror interface {
	MirrorEdges(ctx context.Context, edges []models.WorkGraphEdge) error
}

// Pipeline holds the collaborators of one build or score run.
type Pipeline struct {
	loader  database.Loader
	sink    storage.Sink
	builder *graph.Builder
	scorer  *scoring.Scorer
	mirror  EdgeMirror     // optional
	ledger  *ledger.Ledger // optional
	log     *logrus.Logger
	now     func() time.Time
}

// Options configures a Pipeline. Loader, Sink, Builder, and Scorer are
// required; Mirror and Ledger are optional.
type Options struct {
	Loader  database.Loader
	Sink    storage.Sink
	Builder *graph.Builder
	Scorer  *scoring.Scorer
	Mirror  EdgeMirror
	Ledger  *ledger.Ledger
	Log     *logrus.Logger
	Now     func() time.Time
}

// New assembles a Pipeline.
func New(opts Options) *Pipeline {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		loader:  opts.Loader,
		sink:    opts.Sink,
		builder: opts.Builder,
		scorer:  opts.Scorer,
		mirror:  opts.Mirror,
		ledger:  opts.Ledger,
		log:     log,
		now:     now,
	}
}

// BuildSummary reports the outcome of one build run.
type BuildSummary struct {
	Stats     models.BuildStats
	WorkUnits int
	Duration  time.Duration
}

// RunBuild executes the full build: load, derive edges, persist, group,
// score, persist scores. Backend errors are fatal and returned as-is;
// per-row problems only surface as skip counts in the summary.
func (p *Pipeline) RunBuild(ctx context.Context, filter database.LoadFilter) (*BuildSummary, error) {
	started := p.now()

	if err := p.sink.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	inputs, err := p.loadInputs(ctx, filter)
	if err != nil {
		return nil, err
	}

	result, err := p.builder.Build(ctx, inputs)
	if err != nil {
		return nil, err
	}

	if p.ledger != nil {
		edgeIDs := make([]string, len(result.Edges))
		for i, edge := range result.Edges {
			edgeIDs[i] = edge.EdgeID
		}
		newCount, seenCount, err := p.ledger.MarkEdges(edgeIDs)
		if err != nil {
			return nil, err
		}
		result.Stats.NewEdges = newCount
		result.Stats.SeenEdges = seenCount
	}

	if err := p.sink.WriteEdges(ctx, result.Edges); err != nil {
		return nil, err
	}
	if err := p.sink.WriteIssuePRLinks(ctx, result.IssuePRLinks); err != nil {
		return nil, err
	}
	if err := p.sink.WritePRCommitLinks(ctx, result.PRCommitLinks); err != nil {
		return nil, err
	}
	if p.mirror != nil {
		if err := p.mirror.MirrorEdges(ctx, result.Edges); err != nil {
			return nil, err
		}
	}

	scores := p.scoreComponents(result.Edges, inputs, filter)
	if err := p.sink.WriteWorkUnitScores(ctx, scores); err != nil {
		return nil, err
	}

	summary := &BuildSummary{
		Stats:     result.Stats,
		WorkUnits: len(scores),
		Duration:  p.now().Sub(started),
	}
	p.log.WithFields(logrus.Fields{
		"edges":      result.Stats.TotalEdges(),
		"work_units": summary.WorkUnits,
		"skipped":    result.Stats.TotalSkipped(),
		"duration":   summary.Duration.String(),
	}).Info("Build pipeline complete")
	return summary, nil
}

// RunScore regroups and rescores the persisted edge set without rebuilding
// it. Scores are derived data, so this is always safe to re-run.
func (p *Pipeline) RunScore(ctx context.Context, filter database.LoadFilter) (int, error) {
	edgeFilter := storage.EdgeFilter{}
	if filter.RepoID != nil {
		edgeFilter.RepoID = filter.RepoID.String()
	}
	edges, err := p.sink.ReadEdges(ctx, edgeFilter)
	if err != nil {
		return 0, err
	}
	if len(edges) == 0 {
		p.log.Info("No edges to score")
		return 0, nil
	}

	inputs, err := p.loadInputs(ctx, filter)
	if err != nil {
		return 0, err
	}

	scores := p.scoreComponents(edges, inputs, filter)
	if err := p.sink.WriteWorkUnitScores(ctx, scores); err != nil {
		return 0, err
	}

	p.log.WithField("work_units", len(scores)).Info("Score pipeline complete")
	return len(scores), nil
}

func (p *Pipeline) loadInputs(ctx context.Context, filter database.LoadFilter) (graph.Inputs, error) {
	workItems, err := p.loader.LoadWorkItems(ctx, filter)
	if err != nil {
		return graph.Inputs{}, err
	}
	prs, err := p.loader.LoadPullRequests(ctx, filter)
	if err != nil {
		return graph.Inputs{}, err
	}
	deps, err := p.loader.LoadDependencies(ctx)
	if err != nil {
		return graph.Inputs{}, err
	}
	commits, err := p.loader.LoadCommits(ctx, filter)
	if err != nil {
		return graph.Inputs{}, err
	}
	return graph.Inputs{
		WorkItems:    workItems,
		PullRequests: prs,
		Dependencies: deps,
		Commits:      commits,
	}, nil
}

// scoreComponents groups the edge set into connected components and scores
// each one against the loaded rows.
func (p *Pipeline) scoreComponents(edges []models.WorkGraphEdge, inputs graph.Inputs, filter database.LoadFilter) []models.WorkUnitScore {
	components := graph.Components(edges)
	if len(components) == 0 {
		return nil
	}

	unitInputs := scoring.UnitInputs{
		WorkItems: make(map[string]models.WorkItemRow, len(inputs.WorkItems)),
		PRs:       make(map[string]models.PullRequestRow, len(inputs.PullRequests)),
		Commits:   make(map[string]models.CommitRow, len(inputs.Commits)),
	}
	for _, item := range inputs.WorkItems {
		unitInputs.WorkItems[item.WorkItemID] = item
	}
	for _, pr := range inputs.PullRequests {
		unitInputs.PRs[identity.PRID(pr.RepoID, pr.Number)] = pr
	}
	for _, commit := range inputs.Commits {
		unitInputs.Commits[identity.CommitID(commit.RepoID, commit.Hash)] = commit
	}

	unitInputs.WindowStart, unitInputs.WindowEnd = p.analysisWindow(filter)

	scores := make([]models.WorkUnitScore, 0, len(components))
	for _, component := range components {
		scores = append(scores, p.scorer.ScoreUnit(component.Nodes, component.Edges, unitInputs))
	}
	return scores
}

// analysisWindow derives the fallback time range for units without usable
// timestamps: the load filter's range when set, else the trailing 30 days.
func (p *Pipeline) analysisWindow(filter database.LoadFilter) (time.Time, time.Time) {
	end := p.now().UTC()
	if filter.To != nil {
		end = filter.To.UTC()
	}
	start := end.AddDate(0, 0, -30)
	if filter.From != nil {
		start = filter.From.UTC()
	}
	return start, end
}
