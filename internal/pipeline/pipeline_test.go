package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devhealthops/workgraph/internal/config"
	"github.com/devhealthops/workgraph/internal/database"
	"github.com/devhealthops/workgraph/internal/errors"
	"github.com/devhealthops/workgraph/internal/graph"
	"github.com/devhealthops/workgraph/internal/ledger"
	"github.com/devhealthops/workgraph/internal/models"
	"github.com/devhealthops/workgraph/internal/scoring"
	"github.com/devhealthops/workgraph/internal/storage"
)

var pipelineRepo = uuid.MustParse("4b53e1ad-6c5e-4b0e-8f27-9a3d1be2b01c")

type fakeLoader struct {
	workItems []models.WorkItemRow
	prs       []models.PullRequestRow
	deps      []models.DependencyRow
	commits   []models.CommitRow
	err       error
}

func (f *fakeLoader) LoadWorkItems(ctx context.Context, filter database.LoadFilter) ([]models.WorkItemRow, error) {
	return f.workItems, f.err
}

func (f *fakeLoader) LoadPullRequests(ctx context.Context, filter database.LoadFilter) ([]models.PullRequestRow, error) {
	return f.prs, f.err
}

func (f *fakeLoader) LoadDependencies(ctx context.Context) ([]models.DependencyRow, error) {
	return f.deps, f.err
}

func (f *fakeLoader) LoadCommits(ctx context.Context, filter database.LoadFilter) ([]models.CommitRow, error) {
	return f.commits, f.err
}

func (f *fakeLoader) Close() error { return nil }

type fakeSink struct {
	edges         []models.WorkGraphEdge
	issuePRLinks  []models.WorkGraphIssuePR
	prCommitLinks []models.WorkGraphPRCommit
	scores        []models.WorkUnitScore
	writeErr      error
}

func (f *fakeSink) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeSink) WriteEdges(ctx context.Context, edges []models.WorkGraphEdge) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.edges = append(f.edges, edges...)
	return nil
}

func (f *fakeSink) WriteIssuePRLinks(ctx context.Context, links []models.WorkGraphIssuePR) error {
	f.issuePRLinks = append(f.issuePRLinks, links...)
	return nil
}

func (f *fakeSink) WritePRCommitLinks(ctx context.Context, links []models.WorkGraphPRCommit) error {
	f.prCommitLinks = append(f.prCommitLinks, links...)
	return nil
}

func (f *fakeSink) WriteWorkUnitScores(ctx context.Context, scores []models.WorkUnitScore) error {
	f.scores = append(f.scores, scores...)
	return nil
}

func (f *fakeSink) ReadEdges(ctx context.Context, filter storage.EdgeFilter) ([]models.WorkGraphEdge, error) {
	return f.edges, nil
}

func (f *fakeSink) Close() error { return nil }

type fakeMirror struct {
	mirrored int
}

func (f *fakeMirror) MirrorEdges(ctx context.Context, edges []models.WorkGraphEdge) error {
	f.mirrored += len(edges)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
}

func testLoader() *fakeLoader {
	updated := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	completed := updated.Add(24 * time.Hour)
	return &fakeLoader{
		workItems: []models.WorkItemRow{
			{
				RepoID: pipelineRepo, WorkItemID: "jira:ABC-1", Provider: "jira",
				Type: "bug", Title: "Login broken",
				CreatedAt: updated.Add(-72 * time.Hour), UpdatedAt: updated, CompletedAt: &completed,
			},
		},
		prs: []models.PullRequestRow{
			{
				RepoID: pipelineRepo, Number: 42, Title: "Fixes ABC-1",
				CreatedAt: updated.Add(-24 * time.Hour), Additions: 10, Deletions: 2,
			},
		},
		deps: []models.DependencyRow{},
	}
}

func testPipeline(t *testing.T, loader *fakeLoader, sink storage.Sink, mirror EdgeMirror, led *ledger.Ledger) *Pipeline {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return New(Options{
		Loader:  loader,
		Sink:    sink,
		Builder: graph.NewBuilder(graph.BuildConfig{HeuristicDaysWindow: 7, HeuristicConfidence: 0.3, Workers: 2}, log, fixedNow),
		Scorer:  scoring.NewScorer(config.DefaultScoringConfig(), fixedNow),
		Mirror:  mirror,
		Ledger:  led,
		Log:     log,
		Now:     fixedNow,
	})
}

func TestRunBuild_EndToEnd(t *testing.T) {
	loader := testLoader()
	sink := &fakeSink{}
	mirror := &fakeMirror{}

	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer led.Close()

	p := testPipeline(t, loader, sink, mirror, led)
	summary, err := p.RunBuild(context.Background(), database.LoadFilter{})
	require.NoError(t, err)

	// One explicit edge from "Fixes ABC-1"; the pair is excluded from the
	// heuristic pass even though it is inside the window
	assert.Equal(t, 1, summary.Stats.ExplicitEdges)
	assert.Equal(t, 0, summary.Stats.HeuristicEdges)
	assert.Len(t, sink.edges, 1)
	assert.Len(t, sink.issuePRLinks, 1)
	assert.Equal(t, 1, mirror.mirrored)

	// First run: every edge is new to the ledger
	assert.Equal(t, 1, summary.Stats.NewEdges)
	assert.Equal(t, 0, summary.Stats.SeenEdges)

	// One component (PR + issue), scored and persisted
	assert.Equal(t, 1, summary.WorkUnits)
	require.Len(t, sink.scores, 1)
	score := sink.scores[0]
	assert.Len(t, score.Nodes, 2)
	assert.InDelta(t, 1.0, score.Categories["quality"], 1e-9)
	assert.Equal(t, models.EffortChurnLOC, score.Effort.Metric)
	assert.Equal(t, 12.0, score.Effort.Value)
}

func TestRunBuild_SecondRunReportsSeenEdges(t *testing.T) {
	loader := testLoader()
	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer led.Close()

	p := testPipeline(t, loader, &fakeSink{}, nil, led)
	first, err := p.RunBuild(context.Background(), database.LoadFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Stats.NewEdges)

	second, err := p.RunBuild(context.Background(), database.LoadFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stats.NewEdges)
	assert.Equal(t, 1, second.Stats.SeenEdges)
}

func TestRunBuild_BackendErrorIsFatal(t *testing.T) {
	loader := testLoader()
	sink := &fakeSink{writeErr: errors.BackendErrorf(assert.AnError, "disk full")}

	p := testPipeline(t, loader, sink, nil, nil)
	_, err := p.RunBuild(context.Background(), database.LoadFilter{})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Empty(t, sink.scores)
}

func TestRunBuild_LoaderErrorPropagates(t *testing.T) {
	loader := &fakeLoader{err: errors.BackendErrorf(assert.AnError, "connection refused")}

	p := testPipeline(t, loader, &fakeSink{}, nil, nil)
	_, err := p.RunBuild(context.Background(), database.LoadFilter{})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestRunScore_RescoresPersistedEdges(t *testing.T) {
	loader := testLoader()
	sink := &fakeSink{}

	p := testPipeline(t, loader, sink, nil, nil)
	_, err := p.RunBuild(context.Background(), database.LoadFilter{})
	require.NoError(t, err)
	require.Len(t, sink.scores, 1)
	firstID := sink.scores[0].WorkUnitID

	units, err := p.RunScore(context.Background(), database.LoadFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, units)
	require.Len(t, sink.scores, 2)
	assert.Equal(t, firstID, sink.scores[1].WorkUnitID)
}

func TestRunScore_NoEdgesIsNoop(t *testing.T) {
	p := testPipeline(t, &fakeLoader{}, &fakeSink{}, nil, nil)
	units, err := p.RunScore(context.Background(), database.LoadFilter{})
	require.NoError(t, err)
	assert.Zero(t, units)
}
