package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
	"github.com/JakeFAU/creator-rank-crawler/internal/checkpoint"
	"github.com/JakeFAU/creator-rank-crawler/internal/enrich"
	"github.com/JakeFAU/creator-rank-crawler/internal/hash/sha256"
	pubmemory "github.com/JakeFAU/creator-rank-crawler/internal/publisher/memory"
	"github.com/JakeFAU/creator-rank-crawler/internal/storage/memory"
)

var scrapedAt = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return scrapedAt }

type fixedIDs struct{ err error }

func (f fixedIDs) NewID() (string, error) { return "run-1", f.err }

type fakeExtractor struct {
	snaps []channel.Snapshot
	err   error
	calls int
}

func (f *fakeExtractor) Extract(context.Context) ([]channel.Snapshot, error) {
	f.calls++
	return f.snaps, f.err
}

// fakeEnricher persists each record the way the crawler does and records
// what it was handed.
type fakeEnricher struct {
	store    channel.SnapshotStore
	received []channel.Snapshot
	failAt   int
}

func (f *fakeEnricher) Enrich(ctx context.Context, records []channel.Snapshot) (enrich.Result, error) {
	f.received = records
	var res enrich.Result
	for i, r := range records {
		if f.failAt > 0 && i+1 == f.failAt {
			return res, &channel.PersistenceError{Op: "upsert", Collection: channel.CollectionEnriched, Key: r.URL, Err: errors.New("boom")}
		}
		if !r.HasURL() {
			res.Skipped++
			continue
		}
		at := scrapedAt.Add(time.Hour)
		r.EnrichedAt = &at
		r.EstimatedMonthlyEarnings = channel.String("$1K")
		if err := f.store.UpsertByURL(ctx, r.URL, r); err != nil {
			return res, err
		}
		res.Records = append(res.Records, r)
	}
	return res, nil
}

type flakyStore struct {
	*memory.Store
	failRank int
}

func (s flakyStore) UpsertByRank(ctx context.Context, rank int, fields channel.Snapshot) error {
	if rank == s.failRank {
		return &channel.PersistenceError{Op: "upsert", Collection: channel.CollectionTop, Key: "2", Err: errors.New("conn reset")}
	}
	return s.Store.UpsertByRank(ctx, rank, fields)
}

type failingMirror struct{}

func (failingMirror) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket missing")
}

func batch() []channel.Snapshot {
	return []channel.Snapshot{
		{Rank: 1, Name: "MrBeast", URL: "https://vidiq.com/youtube-stats/channel/UC1/", Videos: channel.Int64(900), Subscribers: channel.Int64(466_000_000), TotalViews: channel.Int64(110_070_000_000), ScrapedAt: scrapedAt},
		{Rank: 2, Name: "T-Series", URL: "https://vidiq.com/youtube-stats/channel/UC2/", Videos: channel.Int64(24_000), Subscribers: channel.Int64(300_000_000), TotalViews: nil, ScrapedAt: scrapedAt},
		{Rank: 3, Name: "Cocomelon", Videos: channel.Int64(1_400), Subscribers: channel.Int64(190_000_000), TotalViews: channel.Int64(200_000_000_000), ScrapedAt: scrapedAt},
	}
}

type harness struct {
	store     *memory.Store
	extractor *fakeExtractor
	enricher  *fakeEnricher
	blobs     *memory.BlobStore
	publisher *pubmemory.Publisher
	cfg       Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	store := memory.NewStore()
	return &harness{
		store:     store,
		extractor: &fakeExtractor{snaps: batch()},
		enricher:  &fakeEnricher{store: store},
		blobs:     memory.NewBlobStore(),
		publisher: pubmemory.New(),
		cfg: Config{
			CheckpointPath: filepath.Join(dir, "raw", "channels_top100.csv"),
			EnrichedPath:   filepath.Join(dir, "enriched", "channels_enriched.csv"),
			MirrorPrefix:   "checkpoints",
			ReadyAttempts:  2,
			Topic:          "channel-runs",
		},
	}
}

func (h *harness) pipeline(store channel.SnapshotStore, mirror channel.BlobStore) *Pipeline {
	return New(h.cfg, store, h.extractor, h.enricher, mirror, h.publisher, fixedIDs{}, fixedClock{}, zap.NewNop())
}

func TestRunPersistsCheckpointsAndEnriches(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	sum, err := h.pipeline(h.store, h.blobs).Run(context.Background(), 0)
	require.NoError(t, err)

	require.Equal(t, "run-1", sum.RunID)
	require.Equal(t, 3, sum.Acquired)
	require.Equal(t, 1, sum.Unresolved)
	require.Equal(t, 2, sum.Enriched)
	require.Equal(t, 1, sum.Skipped)
	require.Equal(t, "memory://checkpoints/run-1/channels_top100.csv", sum.Checkpoint)
	require.Equal(t, "memory://checkpoints/run-1/channels_enriched.csv", sum.Export)

	n, err := h.store.CountAll(context.Background(), channel.CollectionTop)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	n, err = h.store.CountAll(context.Background(), channel.CollectionEnriched)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	records, err := checkpoint.Read(h.cfg.CheckpointPath, 0)
	require.NoError(t, err)
	require.Equal(t, batch(), records)
	require.Equal(t, records, h.enricher.received)

	obj, ok := h.blobs.Object("checkpoints/run-1/channels_top100.csv")
	require.True(t, ok)
	require.Equal(t, checkpoint.ContentType, obj.ContentType)
	require.True(t, strings.HasPrefix(string(obj.Data), "rank,channel_name,channel_url"))
	require.Equal(t, sha256.Sum(obj.Data), sum.CheckpointDigest)

	export, err := os.ReadFile(h.cfg.EnrichedPath)
	require.NoError(t, err)
	require.Contains(t, string(export), "$1K")
	require.Equal(t, sha256.Sum(export), sum.ExportDigest)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 2)
	first := msgs[0].Payload.(map[string]any)
	require.Equal(t, PhaseAcquire, first["phase"])
	require.Equal(t, "succeeded", first["status"])
	require.Equal(t, sum.CheckpointDigest, first["checkpoint_sha256"])
	require.Equal(t, "channel-runs", msgs[1].Topic)
}

func TestRunPassesLimitToEnrichment(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.pipeline(h.store, nil).Run(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, h.enricher.received, 2)
	require.Equal(t, 2, h.enricher.received[1].Rank)
}

func TestRunFailsWhenStoreNeverReady(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.store.SetPingError(errors.New("connection refused"))
	_, err := h.pipeline(h.store, nil).Run(context.Background(), 0)
	require.ErrorIs(t, err, channel.ErrStoreUnavailable)
	require.Zero(t, h.extractor.calls)
	require.Nil(t, h.enricher.received)
	require.Empty(t, h.publisher.Messages())
}

func TestRunStopsOnExtractionFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.extractor.err = &channel.FetchError{URL: "https://vidiq.com", Attempts: 3, Err: errors.New("timeout")}
	_, err := h.pipeline(h.store, nil).Run(context.Background(), 0)

	var fetchErr *channel.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Nil(t, h.enricher.received)
	_, statErr := os.Stat(h.cfg.CheckpointPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "failed", msgs[0].Payload.(map[string]any)["status"])
}

func TestAcquireRejectsEmptyBatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.extractor.snaps = nil
	_, err := h.pipeline(h.store, nil).Acquire(context.Background())
	require.ErrorIs(t, err, ErrNoRows)
}

func TestAcquireKeepsEarlierUpsertsOnPersistenceError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	store := flakyStore{Store: h.store, failRank: 2}
	sum, err := h.pipeline(store, nil).Acquire(context.Background())

	var perr *channel.PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 1, sum.Acquired)

	got, err := h.store.Get(context.Background(), channel.CollectionTop, "1")
	require.NoError(t, err)
	require.Equal(t, "MrBeast", got.Name)
	_, statErr := os.Stat(h.cfg.CheckpointPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestAcquireFailsWhenCheckpointCannotBeWritten(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	h.cfg.CheckpointPath = filepath.Join(blocker, "channels_top100.csv")

	_, err := h.pipeline(h.store, nil).Acquire(context.Background())
	require.ErrorContains(t, err, "write checkpoint")

	n, err := h.store.CountAll(context.Background(), channel.CollectionTop)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestMirrorFailureFallsBackToLocalPath(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	sum, err := h.pipeline(h.store, failingMirror{}).Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, h.cfg.CheckpointPath, sum.Checkpoint)
}

func TestEnrichRequiresCheckpoint(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.pipeline(h.store, nil).Enrich(context.Background(), 0)
	require.ErrorContains(t, err, "read checkpoint")
	require.Nil(t, h.enricher.received)
}

func TestEnrichAbortLeavesNoExport(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, checkpoint.Write(h.cfg.CheckpointPath, batch()))
	h.enricher.failAt = 2

	sum, err := h.pipeline(h.store, nil).Enrich(context.Background(), 0)
	var perr *channel.PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 1, sum.Enriched)
	_, statErr := os.Stat(h.cfg.EnrichedPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunIDFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	p := New(h.cfg, h.store, h.extractor, h.enricher, nil, nil, fixedIDs{err: errors.New("entropy")}, fixedClock{}, nil)
	_, err := p.Run(context.Background(), 0)
	require.ErrorContains(t, err, "run id")
	require.Zero(t, h.extractor.calls)
}
