// Package cmd defines and implements the CLI commands for the prefcrawler
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/app"
	"github.com/agriveille/prefecture-crawler/internal/logging"
	"github.com/agriveille/prefecture-crawler/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can replace it
// with a mock factory.
var newApp = func(ctx context.Context) (*app.App, error) {
	return app.New(ctx)
}

// newRootCmd creates and configures the root command. The application
// container is built in PersistentPreRunE, after Viper has resolved the
// configuration, and injected into the command context; PersistentPostRun
// tears it down.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefcrawler",
		Short: "Crawls prefecture portals for livestock-farming notices.",
		Long: `prefcrawler maintains a deduplicated, classified archive of administrative
notices relevant to livestock farming. It crawls the keyword search of each
configured prefecture portal, expands index pages into their real documents,
classifies candidates through the configured oracle, and synchronizes the
results into the document store.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok {
				appInstance.Close()
			}
		},
	}

	cobra.OnInitialize(config.InitConfig)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/prefcrawler, $HOME/.prefcrawler)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newKeywordsCmd())

	return cmd
}

// resolveApp pulls the application container the root command injected.
func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}
