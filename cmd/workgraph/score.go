package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devhealthops/workgraph/internal/config"
	"github.com/devhealthops/workgraph/internal/database"
	"github.com/devhealthops/workgraph/internal/pipeline"
	"github.com/devhealthops/workgraph/internal/scoring"
)

var (
	scoreRepoID string
	scoreFrom   string
	scoreTo     string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Regroup and rescore the persisted edge set",
	Long: `Score reads the edge set already persisted by a previous build, groups
it into work units, and recomputes each unit's category confidence vector.
Scores are derived data, so this is always safe to re-run.`,
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().StringVar(&scoreRepoID, "repo", "", "repository UUID to filter by")
	scoreCmd.Flags().StringVar(&scoreFrom, "from", "", "start date (YYYY-MM-DD)")
	scoreCmd.Flags().StringVar(&scoreTo, "to", "", "end date (YYYY-MM-DD)")
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Build.Timeout)
	defer cancel()

	filter, err := parseLoadFilter(scoreRepoID, scoreFrom, scoreTo)
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

	scoringCfg, err := config.LoadScoringConfig(cfg.ScoringPath, logger)
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Options{
		Loader: loader,
		Sink:   sink,
		Scorer: scoring.NewScorer(scoringCfg, nil),
		Log:    logger,
	})

	units, err := p.RunScore(ctx, filter)
	if err != nil {
		logger.WithError(err).Error("Scoring failed")
		return err
	}

	fmt.Printf("Scored %d work units\n", units)
	return nil
}
