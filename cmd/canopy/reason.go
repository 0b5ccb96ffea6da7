package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/skalene/canopy/internal/config"
	"github.com/skalene/canopy/internal/engine"
	"github.com/skalene/canopy/internal/inference"
	"github.com/skalene/canopy/internal/reason"
	"github.com/skalene/canopy/internal/sink"
	"github.com/skalene/canopy/internal/tree"
)

var (
	reasonHypotheses int
	reasonNoStore    bool
	reasonBedrock    bool
)

var reasonCmd = &cobra.Command{
	Use:   "reason <objective>",
	Short: "Explore an objective over a decision tree",
	Long: `Explore an objective by generating competing hypotheses, evaluating
each in parallel, pruning weak branches, and reporting the
best-supported decision.

The finished tree is persisted to the project mission store so it can
be inspected later.`,
	Args: cobra.ExactArgs(1),
	RunE: runReason,
}

func init() {
	reasonCmd.Flags().IntVar(&reasonHypotheses, "hypotheses", 0, "Maximum hypotheses to generate (default: tree breadth limit)")
	reasonCmd.Flags().BoolVar(&reasonNoStore, "no-store", false, "Skip tree persistence")
	reasonCmd.Flags().BoolVar(&reasonBedrock, "bedrock", false, "Route inference through AWS Bedrock")
}

func runReason(cmd *cobra.Command, args []string) error {
	objective := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if reasonBedrock {
		cfg.Anthropic.UseBedrock = true
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	client, err := inference.NewClient(inference.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return err
	}

	logger := engine.NewDebugLoggerForDir(cwd)
	defer logger.Close()

	var snapshotSink reason.SnapshotSink
	if !reasonNoStore {
		s, err := sink.Open(sink.ProjectPath(cwd))
		if err != nil {
			return fmt.Errorf("open mission store: %w", err)
		}
		defer s.Close()
		snapshotSink = s
	}

	session := reason.New(client, snapshotSink, reason.Config{
		Tree: tree.Config{
			MaxDepth:         cfg.Tree.MaxDepth,
			MaxBreadth:       cfg.Tree.MaxBreadth,
			PruningThreshold: cfg.Tree.PruningThreshold,
		},
		MaxHypotheses: reasonHypotheses,
		Temperature:   cfg.Anthropic.Temperature,
		Logf:          logger.Log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	rec, err := session.Run(ctx, objective)
	if err != nil {
		return err
	}

	printRecommendation(rec, time.Since(start), client)
	return nil
}

func printRecommendation(rec *reason.Recommendation, elapsed time.Duration, client *inference.Client) {
	color.Cyan("session %s: score %.3f, %d branches pruned, %s",
		rec.SessionID, rec.Score, rec.Pruned, elapsed.Round(time.Millisecond))

	fmt.Println()
	for i, node := range rec.Path {
		if node.Kind == tree.KindRoot {
			continue
		}
		indent := strings.Repeat("  ", i-1)
		fmt.Printf("%s%s (%.2f) %s\n", indent, node.Kind, node.Confidence, node.Content)
	}

	if rec.Decision != "" {
		fmt.Println()
		color.Green("%s", rec.Decision)
	}

	in, out := client.Tracker().Total()
	if calls := client.Tracker().Calls(); calls > 0 {
		fmt.Printf("\ninference: %d calls, %d in / %d out tokens\n", calls, in, out)
	}
}
