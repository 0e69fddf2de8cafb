// Package pipeline sequences the acquisition phase (extract, persist,
// checkpoint) and the enrichment phase (read checkpoint, enrich, persist,
// export) on a single worker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
	"github.com/JakeFAU/creator-rank-crawler/internal/checkpoint"
	"github.com/JakeFAU/creator-rank-crawler/internal/enrich"
	"github.com/JakeFAU/creator-rank-crawler/internal/hash/sha256"
	"github.com/JakeFAU/creator-rank-crawler/internal/logging"
	"github.com/JakeFAU/creator-rank-crawler/internal/metrics"
	"github.com/JakeFAU/creator-rank-crawler/internal/storage"
)

// Phase names used in logs, metrics, and notifications.
const (
	PhaseAcquire = "acquire"
	PhaseEnrich  = "enrich"
)

// ErrNoRows is returned when extraction yields an empty batch.
var ErrNoRows = errors.New("no channel rows extracted")

// Extractor produces the phase-1 batch.
type Extractor interface {
	Extract(ctx context.Context) ([]channel.Snapshot, error)
}

// Enricher visits detail pages for checkpointed records.
type Enricher interface {
	Enrich(ctx context.Context, records []channel.Snapshot) (enrich.Result, error)
}

// Config controls Pipeline behavior.
type Config struct {
	CheckpointPath string
	EnrichedPath   string
	// MirrorPrefix is prepended to mirrored object paths.
	MirrorPrefix  string
	ReadyAttempts int
	ReadyDelay    time.Duration
	// Topic receives a notification per finished phase when a publisher is set.
	Topic string
	// TopN channels are logged after acquisition.
	TopN int
}

// Summary describes one invocation.
type Summary struct {
	RunID      string `json:"run_id"`
	Acquired   int    `json:"acquired"`
	Unresolved int    `json:"unresolved"`
	Enriched   int    `json:"enriched"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Checkpoint string `json:"checkpoint,omitempty"`
	Export     string `json:"export,omitempty"`
	// Digests are hex SHA-256 sums of the local artifacts.
	CheckpointDigest string    `json:"checkpoint_sha256,omitempty"`
	ExportDigest     string    `json:"export_sha256,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Pipeline runs the phases against one store.
type Pipeline struct {
	cfg       Config
	store     channel.SnapshotStore
	extractor Extractor
	enricher  Enricher
	mirror    channel.BlobStore
	publisher channel.Publisher
	ids       channel.IDGenerator
	clock     channel.Clock
	logger    *zap.Logger
}

// New constructs a Pipeline. mirror and publisher may be nil.
func New(
	cfg Config,
	store channel.SnapshotStore,
	extractor Extractor,
	enricher Enricher,
	mirror channel.BlobStore,
	publisher channel.Publisher,
	ids channel.IDGenerator,
	clock channel.Clock,
	logger *zap.Logger,
) *Pipeline {
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	return &Pipeline{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		enricher:  enricher,
		mirror:    mirror,
		publisher: publisher,
		ids:       ids,
		clock:     clock,
		logger:    logging.OrNop(logger),
	}
}

// Run waits for the store, then runs acquisition followed by enrichment of
// the first limit checkpointed records (all when limit <= 0). Any fatal
// error stops the run; records already upserted stay.
func (p *Pipeline) Run(ctx context.Context, limit int) (Summary, error) {
	sum, err := p.start(ctx)
	if err != nil {
		return sum, err
	}
	if err := p.acquire(ctx, &sum); err != nil {
		return p.finish(sum), err
	}
	err = p.enrich(ctx, limit, &sum)
	return p.finish(sum), err
}

// Acquire runs phase 1 alone.
func (p *Pipeline) Acquire(ctx context.Context) (Summary, error) {
	sum, err := p.start(ctx)
	if err != nil {
		return sum, err
	}
	err = p.acquire(ctx, &sum)
	return p.finish(sum), err
}

// Enrich runs phase 2 alone from the existing checkpoint.
func (p *Pipeline) Enrich(ctx context.Context, limit int) (Summary, error) {
	sum, err := p.start(ctx)
	if err != nil {
		return sum, err
	}
	err = p.enrich(ctx, limit, &sum)
	return p.finish(sum), err
}

func (p *Pipeline) start(ctx context.Context) (Summary, error) {
	runID, err := p.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	sum := Summary{RunID: runID, StartedAt: p.clock.Now()}
	logger := p.logger.With(zap.String("run_id", runID))
	logger.Info("waiting for store", zap.Int("attempts", p.cfg.ReadyAttempts))
	if err := storage.WaitReady(ctx, p.store, p.cfg.ReadyAttempts, p.cfg.ReadyDelay, logger); err != nil {
		logger.Error("store unavailable", zap.Error(err))
		return p.finish(sum), err
	}
	return sum, nil
}

func (p *Pipeline) finish(sum Summary) Summary {
	sum.FinishedAt = p.clock.Now()
	return sum
}

func (p *Pipeline) acquire(ctx context.Context, sum *Summary) (err error) {
	logger := p.logger.With(zap.String("run_id", sum.RunID), zap.String("phase", PhaseAcquire))
	began := time.Now()
	defer func() {
		metrics.ObservePhase(PhaseAcquire, err, time.Since(began))
		p.notify(ctx, PhaseAcquire, *sum, err, logger)
	}()
	logger.Info("phase started")

	snaps, err := p.extractor.Extract(ctx)
	if err != nil {
		logger.Error("extraction failed", zap.Error(err))
		return fmt.Errorf("extract: %w", err)
	}
	if len(snaps) == 0 {
		logger.Error("extraction returned no rows")
		return ErrNoRows
	}

	for _, s := range snaps {
		if err := p.store.UpsertByRank(ctx, s.Rank, s); err != nil {
			logger.Error("persist failed", zap.Int("rank", s.Rank), zap.Error(err))
			return err
		}
		sum.Acquired++
		if !s.HasURL() {
			sum.Unresolved++
		}
	}

	if err := checkpoint.Write(p.cfg.CheckpointPath, snaps); err != nil {
		logger.Error("checkpoint write failed", zap.String("path", p.cfg.CheckpointPath), zap.Error(err))
		return fmt.Errorf("write checkpoint: %w", err)
	}
	sum.CheckpointDigest = p.digest(p.cfg.CheckpointPath, logger)
	sum.Checkpoint = p.mirrorFile(ctx, sum.RunID, p.cfg.CheckpointPath, logger)

	logger.Info("phase finished",
		zap.Int("records", sum.Acquired),
		zap.Int("unresolved_urls", sum.Unresolved),
		zap.String("checkpoint", sum.Checkpoint),
	)
	p.logTop(snaps, logger)
	return nil
}

func (p *Pipeline) enrich(ctx context.Context, limit int, sum *Summary) (err error) {
	logger := p.logger.With(zap.String("run_id", sum.RunID), zap.String("phase", PhaseEnrich))
	began := time.Now()
	defer func() {
		metrics.ObservePhase(PhaseEnrich, err, time.Since(began))
		p.notify(ctx, PhaseEnrich, *sum, err, logger)
	}()

	records, err := checkpoint.Read(p.cfg.CheckpointPath, limit)
	if err != nil {
		logger.Error("checkpoint read failed", zap.String("path", p.cfg.CheckpointPath), zap.Error(err))
		return fmt.Errorf("read checkpoint: %w", err)
	}
	logger.Info("phase started", zap.Int("records", len(records)), zap.Int("limit", limit))

	res, err := p.enricher.Enrich(ctx, records)
	sum.Enriched = len(res.Records)
	sum.Skipped = res.Skipped
	sum.Failed = res.Failed
	if err != nil {
		logger.Error("enrichment aborted", zap.Int("persisted", sum.Enriched), zap.Error(err))
		return err
	}

	if err := checkpoint.WriteEnriched(p.cfg.EnrichedPath, res.Records); err != nil {
		logger.Error("export write failed", zap.String("path", p.cfg.EnrichedPath), zap.Error(err))
		return fmt.Errorf("write enriched export: %w", err)
	}
	sum.ExportDigest = p.digest(p.cfg.EnrichedPath, logger)
	sum.Export = p.mirrorFile(ctx, sum.RunID, p.cfg.EnrichedPath, logger)

	logger.Info("phase finished",
		zap.Int("enriched", sum.Enriched),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.String("export", sum.Export),
	)
	return nil
}

// mirrorFile copies a local artifact to the configured blob store and returns
// the URI to report. The local file stays authoritative, so a failed copy is
// logged and the local path is reported instead.
func (p *Pipeline) mirrorFile(ctx context.Context, runID, localPath string, logger *zap.Logger) string {
	if p.mirror == nil {
		return localPath
	}
	object := p.objectPath(runID, filepath.Base(localPath))
	uri, err := checkpoint.Mirror(ctx, p.mirror, localPath, object)
	if err != nil {
		logger.Warn("mirror failed", zap.String("path", localPath), zap.String("object", object), zap.Error(err))
		return localPath
	}
	return uri
}

func (p *Pipeline) digest(localPath string, logger *zap.Logger) string {
	sum, err := sha256.File(localPath)
	if err != nil {
		logger.Warn("artifact digest failed", zap.String("path", localPath), zap.Error(err))
		return ""
	}
	return sum
}

func (p *Pipeline) objectPath(runID, name string) string {
	prefix := strings.Trim(p.cfg.MirrorPrefix, "/")
	if prefix == "" {
		return path.Join(runID, name)
	}
	return path.Join(prefix, runID, name)
}

func (p *Pipeline) notify(ctx context.Context, phase string, sum Summary, phaseErr error, logger *zap.Logger) {
	if p.cfg.Topic == "" || p.publisher == nil {
		return
	}
	status := "succeeded"
	errText := ""
	if phaseErr != nil {
		status = "failed"
		errText = phaseErr.Error()
	}
	payload := map[string]any{
		"run_id":     sum.RunID,
		"phase":      phase,
		"status":     status,
		"error":      errText,
		"acquired":   sum.Acquired,
		"unresolved": sum.Unresolved,
		"enriched":   sum.Enriched,
		"skipped":    sum.Skipped,
		"failed":     sum.Failed,
		"checkpoint": sum.Checkpoint,
		"export":     sum.Export,
		"timestamp":  p.clock.Now().Format(time.RFC3339),

		"checkpoint_sha256": sum.CheckpointDigest,
		"export_sha256":     sum.ExportDigest,
	}
	id, err := p.publisher.Publish(context.WithoutCancel(ctx), p.cfg.Topic, payload)
	if err != nil {
		logger.Warn("notification publish failed", zap.String("topic", p.cfg.Topic), zap.Error(err))
		return
	}
	logger.Info("notification published", zap.String("topic", p.cfg.Topic), zap.String("message_id", id))
}

func (p *Pipeline) logTop(snaps []channel.Snapshot, logger *zap.Logger) {
	for _, s := range snaps[:min(p.cfg.TopN, len(snaps))] {
		logger.Info("top channel",
			zap.Int("rank", s.Rank),
			zap.String("channel", s.Name),
			zap.Int64p("subscribers", s.Subscribers),
			zap.Int64p("total_views", s.TotalViews),
			zap.String("url", s.URL),
		)
	}
}
