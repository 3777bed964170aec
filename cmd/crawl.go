package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/app"
	"github.com/agriveille/prefecture-crawler/internal/cache"
	"github.com/agriveille/prefecture-crawler/internal/catalog"
	"github.com/agriveille/prefecture-crawler/internal/clock/system"
	"github.com/agriveille/prefecture-crawler/internal/config"
	"github.com/agriveille/prefecture-crawler/internal/crawl"
	"github.com/agriveille/prefecture-crawler/internal/fetch"
	idgen "github.com/agriveille/prefecture-crawler/internal/id/uuid"
	"github.com/agriveille/prefecture-crawler/internal/oracle"
	"github.com/agriveille/prefecture-crawler/internal/progress"
	"github.com/agriveille/prefecture-crawler/internal/progress/sinks"
)

// newCrawlCmd creates and configures the 'crawl' subcommand. It crawls the
// selected prefecture portals for the selected keywords and synchronizes the
// classified results into the document store.
func newCrawlCmd() *cobra.Command {
	var (
		keywords     []string
		regions      []string
		prefs        []string
		lookbackDays int
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the configured prefecture portals once",
		Long: `Runs one crawl over the sources-by-keywords grid: pagination, card
extraction, index-page expansion, classification, and store synchronization.
Flags narrow the configured working set; an empty selection is a
configuration error and aborts before any fetch.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawlCommand(cmd, keywords, regions, prefs, lookbackDays)
		},
	}

	cmd.Flags().StringSliceVar(&keywords, "keywords", nil, "keywords to search (default from config)")
	cmd.Flags().StringSliceVar(&regions, "region", nil, "restrict to prefectures of these regions")
	cmd.Flags().StringSliceVar(&prefs, "prefecture", nil, "restrict to these prefectures (INSEE code or domain)")
	cmd.Flags().IntVar(&lookbackDays, "lookback-days", 0, "freshness window override in days (default from config)")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, keywords, regions, prefs []string, lookbackDays int) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config
	logger := appInstance.Logger

	if len(keywords) == 0 {
		keywords = cfg.Crawl.Keywords
	}
	if len(regions) == 0 {
		regions = cfg.Crawl.Regions
	}
	if len(prefs) == 0 {
		prefs = cfg.Crawl.Prefectures
	}
	sources, err := resolveSources(regions, prefs)
	if err != nil {
		return err
	}
	if len(sources) == 0 || len(keywords) == 0 {
		return crawl.ErrEmptyWorkingSet
	}

	engine, err := buildCrawlEngine(appInstance)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := engine.orchestrator.Crawl(ctx, sources, keywords, lookbackDays)
	if err != nil {
		return fmt.Errorf("crawl run: %w", err)
	}

	logger.Info("crawl finished",
		zap.Int64("pages", stats.Pages),
		zap.Int64("candidates", stats.Candidates),
		zap.Int64("created", stats.Created),
		zap.Int64("updated", stats.Updated),
		zap.Int64("deleted", stats.Deleted),
		zap.Int64("unchanged", stats.Unchanged),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("failed", stats.Failed),
	)
	cacheStats := engine.texts.Snapshot()
	logger.Info("text cache usage",
		zap.Uint64("hits", cacheStats.Hits),
		zap.Uint64("misses", cacheStats.Misses),
		zap.Int("entries", cacheStats.Entries),
		zap.Int64("bytes", cacheStats.Bytes),
	)
	cmd.Printf("crawl finished: %d changes over %d candidates (%d failed)\n",
		stats.Changes(), stats.Candidates, stats.Failed)
	return nil
}

// resolveSources narrows the catalog by region and prefecture selectors.
// Unknown names are configuration errors, reported before any fetch.
func resolveSources(regions, prefs []string) ([]catalog.Prefecture, error) {
	if len(regions) == 0 && len(prefs) == 0 {
		return catalog.All(), nil
	}

	byDomain := make(map[string]catalog.Prefecture)
	for _, region := range regions {
		matched := catalog.ByRegion(region)
		if len(matched) == 0 {
			return nil, fmt.Errorf("unknown region %q", region)
		}
		for _, p := range matched {
			byDomain[p.Domain] = p
		}
	}
	for _, sel := range prefs {
		p, ok := catalog.ByCode(sel)
		if !ok {
			p, ok = catalog.ByDomain(sel)
		}
		if !ok {
			return nil, fmt.Errorf("unknown prefecture %q", sel)
		}
		byDomain[p.Domain] = p
	}

	sources := make([]catalog.Prefecture, 0, len(byDomain))
	for _, p := range byDomain {
		sources = append(sources, p)
	}
	return sources, nil
}

// crawlEngine bundles the per-run machinery assembled on top of the
// long-lived App services.
type crawlEngine struct {
	orchestrator *crawl.Orchestrator
	hub          *progress.Hub
	renderer     fetch.Renderer
	texts        *cache.Cache[string]
}

func (e *crawlEngine) Close() {
	// Drain pending progress events before tearing down the renderer.
	_ = e.hub.Close(context.Background())
	if e.renderer != nil {
		e.renderer.Close()
	}
}

func buildCrawlEngine(appInstance *app.App) (*crawlEngine, error) {
	cfg := appInstance.Config
	logger := appInstance.Logger

	fetcher, renderer, err := buildFetchClient(cfg.Fetch, logger)
	if err != nil {
		return nil, err
	}

	texts, err := cache.New(cache.Options[string]{
		TTL:           cfg.Cache.TTL,
		MaxEntries:    cfg.Cache.MaxEntries,
		MaxBytes:      int64(cfg.Cache.MaxMemoryMB) << 20,
		SweepFraction: cfg.Cache.SweepFraction,
		SizeOf:        func(key string, value string) int { return len(key) + len(value) },
		Clock:         system.New(),
	})
	if err != nil {
		return nil, fmt.Errorf("init text cache: %w", err)
	}

	oracleClient, err := oracle.NewClient(oracle.Config{
		APIKey:        cfg.Oracle.APIKey,
		BaseURL:       cfg.Oracle.BaseURL,
		Model:         cfg.Oracle.Model,
		Timeout:       cfg.Oracle.Timeout,
		MaxConcurrent: cfg.Oracle.MaxConcurrent,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init oracle: %w", err)
	}

	ids := idgen.New()
	keywordsCache := crawl.NewNegativeKeywords(appInstance.Docs, cfg.Pipeline.NegativeKeywordTTL)
	syncer := crawl.NewSyncer(appInstance.Docs, appInstance.Notifier, cfg.Notify.Topic, ids, logger)

	pipeline := crawl.NewPipeline(crawl.PipelineConfig{
		LookbackDays:         cfg.Pipeline.LookbackDays,
		MaxEnrichPDFs:        cfg.Pipeline.MaxEnrichPDFs,
		PerPDFCharLimit:      cfg.Pipeline.PerPDFCharLimit,
		TotalEnrichCharLimit: cfg.Pipeline.TotalPDFCharBudget,
		MaxOracleChars:       cfg.Pipeline.MaxOracleChars,
		ClearCacheEvery:      cfg.Pipeline.ClearCacheEvery,
	}, crawl.PipelineDeps{
		Fetcher:  fetcher,
		Texts:    texts,
		Oracle:   oracleClient,
		Docs:     appInstance.Docs,
		Keywords: keywordsCache,
		Syncer:   syncer,
		Blobs:    appInstance.Blobs,
		Logger:   logger,
	})

	rules := crawl.IndexRules{
		Labels:   cfg.Resolver.IndexTitles,
		Contains: cfg.Resolver.IndexContains,
	}
	if len(rules.Labels) == 0 && len(rules.Contains) == 0 {
		rules = crawl.DefaultIndexRules()
	}
	resolver := crawl.NewResolver(fetcher, oracleClient, rules, logger)

	runner := crawl.NewRunner(fetcher, pipeline, resolver, crawl.PagerConfig{
		Step:       cfg.Pager.OffsetStep,
		MaxOffset:  cfg.Pager.MaxOffset,
		ResetEvery: cfg.Pager.ResetEveryPages,
	}, logger)

	hub, err := buildProgressHub(appInstance)
	if err != nil {
		if renderer != nil {
			renderer.Close()
		}
		return nil, err
	}

	return &crawlEngine{
		orchestrator: crawl.NewOrchestrator(runner, hub, ids, cfg.Crawl.Concurrency, logger),
		hub:          hub,
		renderer:     renderer,
		texts:        texts,
	}, nil
}

// Render-detection defaults for the prefecture portals: their search pages
// always render the fr-card list server-side, so a body without it (or one
// carrying a JS wall) goes to the headless path.
var (
	detectorSelectors = []string{".fr-card"}
	detectorMarkers   = []string{"javascript est désactivé", "enable javascript"}
)

const detectorMinHTMLBytes = 2048

func buildFetchClient(cfg config.FetchConfig, logger *zap.Logger) (*fetch.Client, fetch.Renderer, error) {
	var (
		detector *fetch.RenderDetector
		renderer fetch.Renderer
	)
	if cfg.HeadlessEnabled {
		chrome, err := fetch.NewChromeRenderer(fetch.HeadlessConfig{
			MaxParallel:       cfg.HeadlessMaxParallel,
			NavigationTimeout: cfg.HeadlessTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init headless renderer: %w", err)
		}
		renderer = chrome
		detector = fetch.NewRenderDetector(detectorMinHTMLBytes, detectorSelectors, detectorMarkers)
	}

	client := fetch.NewClient(fetch.Config{
		Timeout:           cfg.Timeout,
		MaxRetries:        cfg.MaxRetries,
		ThrottleMin:       cfg.ThrottleMin,
		ThrottleMax:       cfg.ThrottleMax,
		SessionResetEvery: cfg.SessionResetEvery,
		DomainRPS:         cfg.DomainRPS,
		DomainBurst:       cfg.DomainBurst,
	}, detector, renderer, logger)
	return client, renderer, nil
}

func buildProgressHub(appInstance *app.App) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	return progress.NewHub(progress.Config{Logger: appInstance.Logger},
		sinks.NewLogSink(appInstance.Logger),
		promSink,
		sinks.NewStoreSink(appInstance.Runs, appInstance.Logger),
	), nil
}
