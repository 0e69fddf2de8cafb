// Package app initializes and holds long-lived application services, acting
// as the dependency container for the CLI commands.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-rank-crawler/internal/analytics"
	"github.com/JakeFAU/creator-rank-crawler/internal/api"
	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
	"github.com/JakeFAU/creator-rank-crawler/internal/clock/system"
	"github.com/JakeFAU/creator-rank-crawler/internal/config"
	"github.com/JakeFAU/creator-rank-crawler/internal/enrich"
	"github.com/JakeFAU/creator-rank-crawler/internal/extract"
	"github.com/JakeFAU/creator-rank-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/creator-rank-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/creator-rank-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/creator-rank-crawler/internal/id/uuid"
	"github.com/JakeFAU/creator-rank-crawler/internal/logging"
	"github.com/JakeFAU/creator-rank-crawler/internal/pipeline"
	pubmemory "github.com/JakeFAU/creator-rank-crawler/internal/publisher/memory"
	"github.com/JakeFAU/creator-rank-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/creator-rank-crawler/internal/storage"
	"github.com/JakeFAU/creator-rank-crawler/internal/storage/gcs"
	"github.com/JakeFAU/creator-rank-crawler/internal/storage/local"
	"github.com/JakeFAU/creator-rank-crawler/internal/storage/memory"
	"github.com/JakeFAU/creator-rank-crawler/internal/storage/postgres"
)

// App holds the shared services built from one Config. The browser session
// is started on first use so commands that never scrape never launch Chrome.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     channel.SnapshotStore
	mirror    channel.BlobStore
	publisher channel.Publisher
	clock     *system.Clock
	pauser    *system.Pauser

	closers []func() error

	browserOnce sync.Once
	browser     *headless.Session
	browserErr  error
	// newBrowser is swapped in tests.
	newBrowser func(headless.Config) (*headless.Session, error)
}

// NewApp creates the store, checkpoint mirror, and notification publisher
// named by cfg. It fails fast if any of them cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		cfg:        cfg,
		logger:     logging.OrNop(logger),
		clock:      system.New(),
		pauser:     system.NewPauser(),
		newBrowser: headless.NewSession,
	}
	a.logger.Info("initializing application services",
		zap.String("store", cfg.Store.Provider),
		zap.String("mirror", cfg.Checkpoint.Mirror),
		zap.String("source_mode", cfg.Source.Mode),
	)

	if err := a.initStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initMirror(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.cfg.Store.Provider {
	case "memory":
		a.logger.Warn("using in-memory store; records do not survive the process")
		a.store = memory.NewStore()
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{DSN: a.cfg.Store.DSN, MaxConns: a.cfg.Store.MaxConns})
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		a.store = store
	default:
		return fmt.Errorf("unknown store provider %q", a.cfg.Store.Provider)
	}
	a.closers = append(a.closers, func() error { a.store.Close(); return nil })
	return nil
}

func (a *App) initMirror(ctx context.Context) error {
	switch a.cfg.Checkpoint.Mirror {
	case "", "none":
		return nil
	case "local":
		bs, err := local.New(local.Config{BaseDir: a.cfg.Checkpoint.BaseDir})
		if err != nil {
			return fmt.Errorf("init local mirror: %w", err)
		}
		a.mirror = bs
	case "gcs":
		bs, err := gcs.Dial(ctx, gcs.Config{Bucket: a.cfg.Checkpoint.Bucket})
		if err != nil {
			return fmt.Errorf("init gcs mirror: %w", err)
		}
		a.mirror = bs
		a.closers = append(a.closers, bs.Close)
	default:
		return fmt.Errorf("unknown checkpoint mirror %q", a.cfg.Checkpoint.Mirror)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" {
		a.publisher = pubmemory.New()
		return nil
	}
	pub, err := pubsub.Dial(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	a.publisher = pub
	a.closers = append(a.closers, pub.Close)
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the snapshot store.
func (a *App) Store() channel.SnapshotStore { return a.store }

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// EnsureSchema creates store tables when the backend needs them.
func (a *App) EnsureSchema(ctx context.Context) error {
	if s, ok := a.store.(interface{ EnsureSchema(context.Context) error }); ok {
		return s.EnsureSchema(ctx)
	}
	return nil
}

// PrepareStore waits for the store within the configured readiness budget,
// then creates tables when the backend needs them.
func (a *App) PrepareStore(ctx context.Context) error {
	if err := storage.WaitReady(ctx, a.store, a.cfg.Store.ReadyAttempts, a.cfg.Store.ReadyDelay, a.logger); err != nil {
		return err
	}
	return a.EnsureSchema(ctx)
}

// AnalyticsOptions maps analytics config onto engine options.
func (a *App) AnalyticsOptions() analytics.Options {
	return analytics.Options{RPM: a.cfg.Analytics.RPM, Epsilon: a.cfg.Analytics.Epsilon}
}

// Server builds the read-only HTTP server.
func (a *App) Server() *api.Server {
	return api.NewServer(a.store, a.AnalyticsOptions(), a.logger)
}

// Pipeline wires the extractor and enricher for the configured source mode.
func (a *App) Pipeline() (*pipeline.Pipeline, error) {
	var extractor pipeline.Extractor
	switch a.cfg.Source.Mode {
	case config.ModeStatic:
		static, err := extract.NewStatic(a.extractConfig(), a.staticFetcher(), a.clock, a.logger.Named("extract"))
		if err != nil {
			return nil, err
		}
		extractor = static
	default:
		extractor = &browserExtractor{app: a}
	}
	return pipeline.New(
		pipeline.Config{
			CheckpointPath: a.cfg.Checkpoint.RawPath,
			EnrichedPath:   a.cfg.Checkpoint.EnrichedPath,
			MirrorPrefix:   a.cfg.Checkpoint.Prefix,
			ReadyAttempts:  a.cfg.Store.ReadyAttempts,
			ReadyDelay:     a.cfg.Store.ReadyDelay,
			Topic:          a.cfg.PubSub.TopicName,
		},
		a.store,
		extractor,
		&browserEnricher{app: a},
		a.mirror,
		a.publisher,
		uuid.New(),
		a.clock,
		a.logger.Named("pipeline"),
	), nil
}

func (a *App) retrier() *fetcher.Retrier {
	return fetcher.NewRetrier(a.cfg.Fetch.Attempts, a.cfg.Fetch.RetryDelay, a.pauser, a.logger.Named("fetch"))
}

func (a *App) staticFetcher() *fetcher.Fetcher {
	r := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Fetch.UserAgent,
		RespectRobots: a.cfg.Fetch.RespectRobots,
		Timeout:       a.cfg.Fetch.NavigationTimeout,
	})
	return fetcher.New(r, a.retrier())
}

func (a *App) extractConfig() extract.Config {
	return extract.Config{
		ListingURL:        a.cfg.Source.ListingURL,
		RowSelector:       a.cfg.Source.RowSelector,
		CellSelector:      a.cfg.Source.CellSelector,
		LinkSelector:      a.cfg.Source.LinkSelector,
		ScrollAttempts:    a.cfg.Extract.ScrollAttempts,
		ScrollSettle:      a.cfg.Extract.ScrollSettle,
		InitialSettle:     a.cfg.Extract.InitialSettle,
		StaleHarvestLimit: a.cfg.Extract.StaleHarvestLimit,
		MaxFallbacks:      a.cfg.Extract.MaxFallbacks,
		BackSettle:        a.cfg.Extract.BackSettle,
	}
}

func (a *App) enrichConfig() enrich.Config {
	return enrich.Config{
		NavigationTimeout: a.cfg.Enrich.NavigationTimeout,
		ExtractTimeout:    a.cfg.Enrich.ExtractTimeout,
		Settle:            a.cfg.Enrich.Settle,
		PolitenessMin:     a.cfg.Enrich.PolitenessMin,
		PolitenessMax:     a.cfg.Enrich.PolitenessMax,
		Lookahead:         a.cfg.Enrich.Lookahead,
		EarningsLabels:    a.cfg.Enrich.EarningsLabels,
		DurationLabels:    a.cfg.Enrich.DurationLabels,
	}
}

// Browser returns the shared browser session, starting it on first call.
func (a *App) Browser() (channel.Browser, error) {
	a.browserOnce.Do(func() {
		a.logger.Info("starting browser session", zap.Bool("headless", a.cfg.Fetch.Headless))
		a.browser, a.browserErr = a.newBrowser(headless.Config{
			UserAgent:         a.cfg.Fetch.UserAgent,
			Headless:          a.cfg.Fetch.Headless,
			NavigationTimeout: a.cfg.Fetch.NavigationTimeout,
			WaitTimeout:       a.cfg.Fetch.WaitTimeout,
		})
		if a.browserErr != nil {
			a.browserErr = fmt.Errorf("start browser: %w", a.browserErr)
			return
		}
		a.closers = append(a.closers, func() error { a.browser.Close(); return nil })
	})
	if a.browserErr != nil {
		return nil, a.browserErr
	}
	return a.browser, nil
}

// browserExtractor defers session start until extraction runs.
type browserExtractor struct{ app *App }

func (e *browserExtractor) Extract(ctx context.Context) ([]channel.Snapshot, error) {
	b, err := e.app.Browser()
	if err != nil {
		return nil, err
	}
	x, err := extract.New(e.app.extractConfig(), b, e.app.retrier(), e.app.pauser, e.app.clock, e.app.logger.Named("extract"))
	if err != nil {
		return nil, err
	}
	return x.Extract(ctx)
}

// browserEnricher defers session start until enrichment runs.
type browserEnricher struct{ app *App }

func (e *browserEnricher) Enrich(ctx context.Context, records []channel.Snapshot) (enrich.Result, error) {
	b, err := e.app.Browser()
	if err != nil {
		return enrich.Result{}, err
	}
	c := enrich.New(e.app.enrichConfig(), b, e.app.store, e.app.pauser, e.app.clock, e.app.logger.Named("enrich"))
	return c.Enrich(ctx, records)
}

// Close releases services in reverse order of creation and flushes the
// logger.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
