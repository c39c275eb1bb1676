package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/devhealthops/workgraph/internal/config"
	"github.com/devhealthops/workgraph/internal/database"
	"github.com/devhealthops/workgraph/internal/errors"
	"github.com/devhealthops/workgraph/internal/graph"
	"github.com/devhealthops/workgraph/internal/ledger"
	"github.com/devhealthops/workgraph/internal/pipeline"
	"github.com/devhealthops/workgraph/internal/scoring"
	"github.com/devhealthops/workgraph/internal/storage"
)

var (
	buildRepoID string
	buildFrom   string
	buildTo     string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the work graph from synced source data",
	Long: `Build loads work items, pull requests, dependencies, and commits from
the sync database, derives typed graph edges (native, explicit-text, and
heuristic), groups connected nodes into work units, scores each unit, and
persists everything to the configured sink.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildRepoID, "repo", "", "repository UUID to filter by")
	buildCmd.Flags().StringVar(&buildFrom, "from", "", "start date (YYYY-MM-DD)")
	buildCmd.Flags().StringVar(&buildTo, "to", "", "end date (YYYY-MM-DD)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Build.Timeout)
	defer cancel()

	filter, err := parseLoadFilter(buildRepoID, buildFrom, buildTo)
	if err != nil {
		return err
	}

	loader, err := database.NewClient(ctx, cfg.Loader.DSN)
	if err != nil {
		return err
	}
	defer loader.Close()

	sink, err := openSink(cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	var mirror pipeline.EdgeMirror
	if cfg.Neo4j.URI != "" {
		neoMirror, err := storage.NewNeo4jMirror(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, logger)
		if err != nil {
			return err
		}
		defer neoMirror.Close(ctx)
		mirror = neoMirror
	}

	var led *ledger.Ledger
	if cfg.Ledger.Path != "" {
		led, err = ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer led.Close()
	}

	scoringCfg, err := config.LoadScoringConfig(cfg.ScoringPath, logger)
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Options{
		Loader: loader,
		Sink:   sink,
		Builder: graph.NewBuilder(graph.BuildConfig{
			HeuristicDaysWindow: cfg.Build.HeuristicDaysWindow,
			HeuristicConfidence: cfg.Build.HeuristicConfidence,
			Workers:             cfg.Build.Workers,
		}, logger, nil),
		Scorer: scoring.NewScorer(scoringCfg, nil),
		Mirror: mirror,
		Ledger: led,
		Log:    logger,
	})

	summary, err := p.RunBuild(ctx, filter)
	if err != nil {
		if errors.IsFatal(err) {
			logger.WithError(err).Error("Build failed")
		}
		return err
	}

	fmt.Printf("Work graph build complete in %s\n", summary.Duration.Round(time.Millisecond))
	fmt.Printf("  native edges:     %d\n", summary.Stats.NativeEdges)
	fmt.Printf("  explicit edges:   %d\n", summary.Stats.ExplicitEdges)
	fmt.Printf("  heuristic edges:  %d\n", summary.Stats.HeuristicEdges)
	fmt.Printf("  pr-commit edges:  %d\n", summary.Stats.PRCommitEdges)
	fmt.Printf("  issue-pr links:   %d\n", summary.Stats.IssuePRLinks)
	fmt.Printf("  work units:       %d\n", summary.WorkUnits)
	if led != nil {
		fmt.Printf("  new edges:        %d\n", summary.Stats.NewEdges)
		fmt.Printf("  seen edges:       %d\n", summary.Stats.SeenEdges)
	}
	if skipped := summary.Stats.TotalSkipped(); skipped > 0 {
		fmt.Printf("  skipped rows:     %d\n", skipped)
	}
	return nil
}

// openSink builds the configured sink.
func openSink(cfg *config.Config) (storage.Sink, error) {
	switch cfg.Sink.Type {
	case "postgres":
		return storage.NewPostgresSink(cfg.Sink.DSN, logger)
	case "sqlite", "":
		return storage.NewSQLiteSink(cfg.Sink.LocalPath, logger)
	default:
		return nil, errors.ConfigErrorf("unknown sink type %q", cfg.Sink.Type)
	}
}

// parseLoadFilter converts CLI flags to a load filter.
func parseLoadFilter(repoID, from, to string) (database.LoadFilter, error) {
	var filter database.LoadFilter
	if repoID != "" {
		id, err := uuid.Parse(repoID)
		if err != nil {
			return filter, fmt.Errorf("invalid repo id %q: %w", repoID, err)
		}
		filter.RepoID = &id
	}
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return filter, fmt.Errorf("invalid from date %q: %w", from, err)
		}
		filter.From = &t
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return filter, fmt.Errorf("invalid to date %q: %w", to, err)
		}
		filter.To = &t
	}
	return filter, nil
}
