// Package enrich visits each checkpointed channel's detail page and scans its
// text for secondary metrics.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
	"github.com/JakeFAU/creator-rank-crawler/internal/logging"
	"github.com/JakeFAU/creator-rank-crawler/internal/metrics"
)

// Config tunes detail page visits.
type Config struct {
	NavigationTimeout time.Duration
	ExtractTimeout    time.Duration
	Settle            time.Duration
	PolitenessMin     time.Duration
	PolitenessMax     time.Duration
	Lookahead         int
	EarningsLabels    []string
	DurationLabels    []string
	// BodySelector is the element whose text is scanned. Defaults to "body".
	BodySelector string
}

// Crawler enriches records one at a time over a single browser tab.
type Crawler struct {
	cfg     Config
	browser channel.Browser
	store   channel.SnapshotStore
	pauser  channel.Pauser
	clock   channel.Clock
	jitter  func(lo, hi time.Duration) time.Duration
	logger  *zap.Logger
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithJitter replaces the politeness delay source.
func WithJitter(fn func(lo, hi time.Duration) time.Duration) Option {
	return func(c *Crawler) { c.jitter = fn }
}

// New constructs a Crawler.
func New(
	cfg Config,
	browser channel.Browser,
	store channel.SnapshotStore,
	pauser channel.Pauser,
	clock channel.Clock,
	logger *zap.Logger,
	opts ...Option,
) *Crawler {
	if cfg.BodySelector == "" {
		cfg.BodySelector = "body"
	}
	c := &Crawler{
		cfg:     cfg,
		browser: browser,
		store:   store,
		pauser:  pauser,
		clock:   clock,
		jitter:  uniform,
		logger:  logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

// Result summarizes an enrichment pass.
type Result struct {
	Records []channel.Snapshot
	Skipped int
	Failed  int
}

// Enrich processes records in order. Records without a URL are skipped;
// per-record failures are annotated and still emitted and persisted. Only a
// store failure or cancellation stops the pass, and records persisted
// before that remain.
func (c *Crawler) Enrich(ctx context.Context, records []channel.Snapshot) (Result, error) {
	var res Result
	visited := false
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("enrichment interrupted: %w", err)
		}
		if !rec.HasURL() {
			res.Skipped++
			metrics.ObserveEnrichment("skipped")
			c.logger.Warn("no channel url, skipping", zap.Int("rank", rec.Rank), zap.String("channel", rec.Name))
			continue
		}
		if visited {
			c.pauser.Pause(ctx, c.jitter(c.cfg.PolitenessMin, c.cfg.PolitenessMax))
		}
		visited = true

		c.logger.Info("enriching",
			zap.Int("item", i+1),
			zap.Int("total", len(records)),
			zap.Int("rank", rec.Rank),
			zap.String("url", rec.URL),
		)
		enriched, err := c.enrichOne(ctx, rec)
		if err != nil {
			if ctx.Err() != nil {
				return res, fmt.Errorf("enrichment interrupted: %w", ctx.Err())
			}
			res.Failed++
			metrics.ObserveEnrichment("error")
			enriched.Error = err.Error()
			c.logger.Warn("enrichment failed, emitting nulls",
				zap.Int("rank", rec.Rank),
				zap.String("url", rec.URL),
				zap.Error(err),
			)
		} else {
			metrics.ObserveEnrichment("ok")
		}

		if err := c.store.UpsertByURL(ctx, enriched.URL, enriched); err != nil {
			return res, err
		}
		res.Records = append(res.Records, enriched)
	}
	return res, nil
}

// enrichOne always returns the record stamped with enriched_at; secondary
// fields are set only on success.
func (c *Crawler) enrichOne(ctx context.Context, rec channel.Snapshot) (channel.Snapshot, error) {
	out := rec.Core()
	stamp := func() channel.Snapshot {
		now := c.clock.Now()
		out.EnrichedAt = &now
		return out
	}

	if err := c.navigate(ctx, rec.URL); err != nil {
		return stamp(), err
	}
	c.pauser.Pause(ctx, c.cfg.Settle)

	body, err := c.bodyText(ctx)
	if err != nil {
		return stamp(), err
	}
	lines := Lines(body)
	if v, ok := ScanLabeled(lines, c.cfg.EarningsLabels, c.cfg.Lookahead); ok {
		out.EstimatedMonthlyEarnings = &v
	}
	if v, ok := ScanLabeled(lines, c.cfg.DurationLabels, c.cfg.Lookahead); ok {
		out.AvgVideoDuration = &v
	}
	return stamp(), nil
}

func (c *Crawler) navigate(ctx context.Context, url string) error {
	navCtx := ctx
	if c.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, c.cfg.NavigationTimeout)
		defer cancel()
	}
	if err := c.browser.Navigate(navCtx, url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

func (c *Crawler) bodyText(ctx context.Context) (string, error) {
	extractCtx := ctx
	if c.cfg.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, c.cfg.ExtractTimeout)
		defer cancel()
	}
	body, err := c.browser.Text(extractCtx, c.cfg.BodySelector)
	if err == nil {
		return body, nil
	}
	if ctx.Err() == nil && !errors.Is(err, channel.ErrExtractionTimeout) &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(extractCtx.Err(), context.DeadlineExceeded)) {
		return "", fmt.Errorf("%w after %s", channel.ErrExtractionTimeout, c.cfg.ExtractTimeout)
	}
	return "", fmt.Errorf("extract text: %w", err)
}
