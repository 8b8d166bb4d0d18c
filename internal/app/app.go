// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/civicgraph/harvester/internal/clock/system"
	"github.com/civicgraph/harvester/internal/config"
	"github.com/civicgraph/harvester/internal/crawler"
	"github.com/civicgraph/harvester/internal/fetcher"
	collyfetcher "github.com/civicgraph/harvester/internal/fetcher/colly"
	"github.com/civicgraph/harvester/internal/fetcher/detector"
	"github.com/civicgraph/harvester/internal/fetcher/headless"
	sha256hash "github.com/civicgraph/harvester/internal/hash/sha256"
	uuidgen "github.com/civicgraph/harvester/internal/id/uuid"
	"github.com/civicgraph/harvester/internal/logging"
	"github.com/civicgraph/harvester/internal/metrics"
	"github.com/civicgraph/harvester/internal/policy/ratelimit"
	openaireflector "github.com/civicgraph/harvester/internal/reflector/openai"
	"github.com/civicgraph/harvester/internal/runner"
	"github.com/civicgraph/harvester/internal/store"
)

// App holds the shared, long-lived services for the harvester: the logger,
// the dataset store, the run registry and queue, and the crawl collaborators
// every run shares.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	dataset  *store.DatasetStore
	registry *runner.Registry
	queue    *runner.Queue
	pool     *runner.Pool
	fetch    crawler.Fetcher
	reflect  crawler.Reflector
	limiter  *ratelimit.Limiter
	hasher   crawler.Hasher
	clock    crawler.Clock
	idGen    crawler.IDGenerator
	headless *headless.Fetcher
}

// New creates and initializes an App from the configuration at cfgPath. It
// fails fast if any service cannot be built.
func New(_ context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics.Init()

	clk := system.New()
	hasher := sha256hash.New()
	idGen := uuidgen.NewUUIDGenerator()

	dataset, err := store.New(store.Config{Dir: cfg.Dataset.Dir}, hasher, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("init dataset store: %w", err)
	}

	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	}, clk)

	// With headless disabled the noop fetcher takes its slot, so a page that
	// needed rendering shows up in the logs as a failed promotion instead of
	// passing silently.
	det := detector.NewHeuristic(cfg.Headless.PromotionThresh)
	var (
		headlessFetcher *headless.Fetcher
		render          crawler.Fetcher = headless.NewNoop()
	)
	if cfg.Headless.Enabled {
		headlessFetcher, err = headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		}, clk)
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		render = headlessFetcher
	}
	fetch := fetcher.NewPromoting(probe, render, det, logger)

	reflect, err := openaireflector.New(openaireflector.Config{
		BaseURL:             cfg.Reflector.BaseURL,
		Model:               cfg.Reflector.Model,
		APIKey:              cfg.Reflector.APIKey,
		Locale:              cfg.Reflector.Locale,
		MinDescriptionChars: cfg.Reflector.MinDescriptionChars,
		MaxTextChars:        cfg.Reflector.MaxTextChars,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init reflector: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.RatePerDomain,
		DefaultBurst: cfg.Crawler.RateBurst,
	})

	a := &App{
		cfg:      cfg,
		logger:   logger,
		dataset:  dataset,
		registry: runner.NewRegistry(clk),
		queue:    runner.NewQueue(cfg.Crawler.QueueDepth),
		fetch:    fetch,
		reflect:  reflect,
		limiter:  limiter,
		hasher:   hasher,
		clock:    clk,
		idGen:    idGen,
		headless: headlessFetcher,
	}
	a.pool = runner.NewPool(a.queue, a.registry, cfg.Crawler.Workers, a.Crawl, logger)
	return a, nil
}

// Crawl executes one run to completion with the shared collaborators.
func (a *App) Crawl(ctx context.Context, runCfg crawler.RunConfig) (crawler.RunReport, error) {
	ctrl, err := crawler.NewController(
		a.fetch,
		a.reflect,
		a.dataset,
		a.limiter,
		a.hasher,
		a.clock,
		runCfg,
		a.logger,
	)
	if err != nil {
		return crawler.RunReport{StopReason: crawler.ReasonFatalPrecondition}, err
	}
	return ctrl.Run(ctx)
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Dataset returns the record store.
func (a *App) Dataset() *store.DatasetStore { return a.dataset }

// Registry returns the run registry.
func (a *App) Registry() *runner.Registry { return a.registry }

// Pool returns the worker pool draining the run queue.
func (a *App) Pool() *runner.Pool { return a.pool }

// IDGen returns the run ID generator.
func (a *App) IDGen() crawler.IDGenerator { return a.idGen }

// Clock returns the shared clock.
func (a *App) Clock() crawler.Clock { return a.clock }

// Close gracefully shuts down services.
func (a *App) Close() {
	a.queue.Close()
	if a.headless != nil {
		a.headless.Close()
	}
	if err := a.logger.Sync(); err != nil {
		// Best effort; stderr sync fails on some platforms.
		_ = err
	}
}
