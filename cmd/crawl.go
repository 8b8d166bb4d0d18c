package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civicgraph/harvester/internal/crawler"
)

// newCrawlCmd creates the 'crawl' subcommand: a one-shot run of a configured
// topic that prints the final report to stdout.
func newCrawlCmd() *cobra.Command {
	var (
		topicID    string
		seeds      []string
		maxActions int
		maxDepth   int
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one bounded crawl for a topic and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawlCommand(cmd, topicID, seeds, maxActions, maxDepth)
		},
	}

	cmd.Flags().StringVar(&topicID, "topic", "", "topic ID from the topics config section")
	cmd.Flags().StringSliceVar(&seeds, "seed", nil, "seed URL (repeatable; defaults to the topic's seeds)")
	cmd.Flags().IntVar(&maxActions, "max-actions", 0, "override the action budget")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "override the depth cap (0 = unlimited)")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

func runCrawlCommand(cmd *cobra.Command, topicID string, seeds []string, maxActions, maxDepth int) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()

	topic, ok := cfg.Topics[topicID]
	if !ok {
		return fmt.Errorf("topic %q is not configured", topicID)
	}
	if len(seeds) == 0 {
		seeds = topic.Seeds
	}

	runID, err := appInstance.IDGen().NewID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}

	budget := crawler.StopBudget{
		MaxActions:       cfg.Budget.MaxActions,
		MaxWallClock:     cfg.MaxWallClock(),
		PlateauWindow:    cfg.Budget.PlateauWindow,
		PlateauThreshold: cfg.Budget.PlateauThreshold,
	}
	if maxActions > 0 {
		budget.MaxActions = maxActions
	}
	depth := cfg.Crawler.MaxDepth
	if maxDepth > 0 {
		depth = maxDepth
	}

	runCfg := crawler.RunConfig{
		RunID: runID,
		Seeds: seeds,
		Topic: crawler.TopicContext{
			ID:          topicID,
			Name:        topic.Name,
			Description: topic.Description,
			Terms:       topic.Terms,
		},
		Budget:         budget,
		FetchTimeout:   cfg.FetchTimeout(),
		ReflectTimeout: cfg.ReflectTimeout(),
		MaxDepth:       depth,
		AllowDomains:   cfg.Crawler.AllowDomains,
		DenyDomains:    cfg.Crawler.DenyDomains,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	report, err := appInstance.Crawl(ctx, runCfg)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawl: %w", err)
	}

	appInstance.Logger().Info("crawl finished",
		zap.String("run_id", report.RunID),
		zap.String("stop_reason", string(report.StopReason)),
		zap.Int("pages_visited", report.PagesVisited),
		zap.Duration("elapsed", time.Since(start)),
	)

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
