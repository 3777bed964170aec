package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/crawl"
	idgen "github.com/agriveille/prefecture-crawler/internal/id/uuid"
)

// newSweepCmd creates the 'sweep' subcommand, which deletes every persisted
// document matching the negative-keyword list.
func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deletes archived documents matching negative keywords",
		Long: `Streams the whole document archive and deletes every entry whose title or
description contains a configured negative keyword. The crawl applies the
same exclusion per candidate; the sweep cleans up documents persisted
before a keyword was added.`,
		RunE: runSweepCommand,
	}
}

func runSweepCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config
	logger := appInstance.Logger

	syncer := crawl.NewSyncer(appInstance.Docs, appInstance.Notifier, cfg.Notify.Topic, idgen.New(), logger)
	keywords := crawl.NewNegativeKeywords(appInstance.Docs, cfg.Pipeline.NegativeKeywordTTL)
	sweeper := crawl.NewSweeper(appInstance.Docs, keywords, syncer, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	logger.Info("sweep finished",
		zap.Int64("scanned", stats.Scanned),
		zap.Int64("deleted", stats.Deleted),
		zap.Int64("failed", stats.Failed),
	)
	cmd.Printf("sweep finished: %d deleted of %d scanned (%d failed)\n",
		stats.Deleted, stats.Scanned, stats.Failed)
	return nil
}
