// Package extract turns the ranked listing into channel snapshots.
//
// The browser path loads a JavaScript-rendered, scroll-paginated table whose
// rows carry no detail links. Detail URLs are harvested from peripheral link
// elements whose text reads "#<rank><channel name>" and must agree with the
// row parsed for that rank; ranks still missing after scrolling are resolved
// by clicking the row and observing navigation.
package extract

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
	"github.com/JakeFAU/creator-rank-crawler/internal/fetcher"
	"github.com/JakeFAU/creator-rank-crawler/internal/logging"
	"github.com/JakeFAU/creator-rank-crawler/internal/metrics"
)

// Config locates the listing and bounds the harvest.
type Config struct {
	ListingURL   string
	RowSelector  string
	CellSelector string
	LinkSelector string

	ScrollAttempts    int
	ScrollSettle      time.Duration
	InitialSettle     time.Duration
	StaleHarvestLimit int
	MaxFallbacks      int
	BackSettle        time.Duration
}

// Extractor drives a browser session over the listing.
type Extractor struct {
	cfg     Config
	base    *url.URL
	browser channel.Browser
	retrier *fetcher.Retrier
	pauser  channel.Pauser
	clock   channel.Clock
	logger  *zap.Logger
}

// New constructs an Extractor.
func New(
	cfg Config,
	browser channel.Browser,
	retrier *fetcher.Retrier,
	pauser channel.Pauser,
	clock channel.Clock,
	logger *zap.Logger,
) (*Extractor, error) {
	base, err := url.Parse(cfg.ListingURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	if cfg.StaleHarvestLimit <= 0 {
		cfg.StaleHarvestLimit = 2
	}
	return &Extractor{
		cfg:     cfg,
		base:    base,
		browser: browser,
		retrier: retrier,
		pauser:  pauser,
		clock:   clock,
		logger:  logging.OrNop(logger),
	}, nil
}

// Extract produces one snapshot per parseable listing row, in row order.
// Only the initial load and the table read are fatal; everything scoped to a
// single row is logged and absorbed.
func (e *Extractor) Extract(ctx context.Context) ([]channel.Snapshot, error) {
	if err := fetcher.LoadListing(ctx, e.browser, e.retrier, e.cfg.ListingURL, e.cfg.RowSelector); err != nil {
		return nil, err
	}
	e.pauser.Pause(ctx, e.cfg.InitialSettle)

	target, err := e.browser.Count(ctx, e.cfg.RowSelector)
	if err != nil {
		return nil, fmt.Errorf("count listing rows: %w", err)
	}
	e.logger.Info("listing loaded", zap.String("url", e.cfg.ListingURL), zap.Int("rows", target))

	table, err := e.browser.CellTexts(ctx, e.cfg.RowSelector, e.cfg.CellSelector)
	if err != nil {
		return nil, fmt.Errorf("read listing cells: %w", err)
	}
	rows := parseRows(table, e.logger)

	urls := e.harvest(ctx, target, rowNames(rows))

	if err := e.resolve(ctx, rows, urls); err != nil {
		return nil, err
	}

	scrapedAt := e.clock.Now()
	out := make([]channel.Snapshot, 0, len(rows))
	for _, r := range rows {
		r.snapshot.ScrapedAt = scrapedAt
		out = append(out, r.snapshot)
	}
	e.logger.Info("listing extracted",
		zap.Int("target", target),
		zap.Int("rows", len(out)),
		zap.Int("harvested", len(urls)),
	)
	return out, nil
}

// harvest collects rank to URL pairs, scrolling the link container until the
// target is reached, the scroll budget is spent, or StaleHarvestLimit
// consecutive harvests add nothing.
func (e *Extractor) harvest(ctx context.Context, target int, names map[int]string) map[int]string {
	urls := make(map[int]string, target)
	if e.cfg.LinkSelector == "" {
		return urls
	}
	e.collect(ctx, urls, names)

	stale := 0
	for attempt := 1; len(urls) < target && attempt <= e.cfg.ScrollAttempts && stale < e.cfg.StaleHarvestLimit; attempt++ {
		if ctx.Err() != nil {
			break
		}
		if err := e.browser.ScrollToBottom(ctx, e.cfg.LinkSelector); err != nil {
			e.logger.Warn("scroll failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		e.pauser.Pause(ctx, e.cfg.ScrollSettle)
		if e.collect(ctx, urls, names) == 0 {
			stale++
		} else {
			stale = 0
		}
		e.logger.Debug("harvest progress",
			zap.Int("attempt", attempt),
			zap.Int("harvested", len(urls)),
			zap.Int("target", target),
		)
	}
	return urls
}

func (e *Extractor) collect(ctx context.Context, urls map[int]string, names map[int]string) int {
	links, err := e.browser.Links(ctx, e.cfg.LinkSelector)
	if err != nil {
		e.logger.Warn("link harvest failed", zap.Error(err))
		return 0
	}
	return collectLinks(urls, e.base, links, names)
}

// resolve assigns harvested URLs and falls back to click resolution for the
// rest, up to MaxFallbacks per batch.
func (e *Extractor) resolve(ctx context.Context, rows []row, urls map[int]string) error {
	used := 0
	listingLost := false
	for i := range rows {
		r := &rows[i]
		if u, ok := urls[r.snapshot.Rank]; ok {
			r.snapshot.URL = u
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("resolve urls: %w", err)
		}
		if listingLost {
			metrics.ObserveFallback("skipped")
			continue
		}
		if used >= e.cfg.MaxFallbacks {
			metrics.ObserveFallback("budget_exhausted")
			e.logger.Warn("fallback budget exhausted, url left null",
				zap.Int("rank", r.snapshot.Rank),
				zap.Int("budget", e.cfg.MaxFallbacks),
			)
			continue
		}
		used++
		u, err := e.resolveByClick(ctx, r)
		if err != nil {
			e.logger.Error("listing could not be restored, remaining fallbacks skipped", zap.Error(err))
			listingLost = true
			continue
		}
		r.snapshot.URL = u
	}
	return nil
}

// resolveByClick returns the detail URL for r, or "" when navigation failed.
// The returned error means the tab could not be brought back to the listing.
func (e *Extractor) resolveByClick(ctx context.Context, r *row) (string, error) {
	u, clickErr := e.browser.ClickAndCapture(ctx, e.cfg.RowSelector, r.index)
	if clickErr != nil {
		metrics.ObserveFallback("failed")
		e.logger.Warn("fallback navigation failed, url left null",
			zap.Int("rank", r.snapshot.Rank),
			zap.Error(fmt.Errorf("%w: %w", channel.ErrNavigationFailure, clickErr)),
		)
		return "", e.returnToListing(ctx, false)
	}
	metrics.ObserveFallback("resolved")
	e.logger.Info("url resolved by navigation", zap.Int("rank", r.snapshot.Rank), zap.String("url", u))
	return u, e.returnToListing(ctx, true)
}

// returnToListing brings the tab back to a ready listing: history back when
// the click navigated away, otherwise a readiness check, and a full reload if
// either fails.
func (e *Extractor) returnToListing(ctx context.Context, navigated bool) error {
	if e.backToListing(ctx, navigated) {
		e.pauser.Pause(ctx, e.cfg.BackSettle)
		return nil
	}
	if err := fetcher.LoadListing(ctx, e.browser, e.retrier, e.cfg.ListingURL, e.cfg.RowSelector); err != nil {
		return err
	}
	e.pauser.Pause(ctx, e.cfg.BackSettle)
	return nil
}

func (e *Extractor) backToListing(ctx context.Context, navigated bool) bool {
	if navigated {
		if err := e.browser.Back(ctx); err != nil {
			e.logger.Warn("history back failed, reloading listing", zap.Error(err))
			return false
		}
	}
	if err := e.browser.WaitFor(ctx, e.cfg.RowSelector); err != nil {
		e.logger.Warn("listing not ready, reloading", zap.Error(err))
		return false
	}
	return true
}
