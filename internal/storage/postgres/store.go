// Package postgres implements the snapshot store on Postgres. Each logical
// collection is a table: channels_top100 keyed by rank and channels_enriched
// keyed by channel_url. Upserts are single INSERT .. ON CONFLICT statements,
// so each one is atomic without read-then-write.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
	"github.com/JakeFAU/creator-rank-crawler/internal/metrics"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements channel.SnapshotStore.
type Store struct {
	pool pool
}

var _ channel.SnapshotStore = (*Store)(nil)

// New connects a pool. The connection is lazy; use Ping or
// storage.WaitReady to confirm the server is reachable.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS channels_top100 (
	rank         INTEGER PRIMARY KEY,
	channel_name TEXT NOT NULL,
	channel_url  TEXT,
	videos       BIGINT,
	subscribers  BIGINT,
	total_views  BIGINT,
	scraped_at   TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS channels_enriched (
	channel_url                TEXT PRIMARY KEY,
	rank                       INTEGER NOT NULL,
	channel_name               TEXT NOT NULL,
	videos                     BIGINT,
	subscribers                BIGINT,
	total_views                BIGINT,
	scraped_at                 TIMESTAMPTZ NOT NULL,
	estimated_monthly_earnings TEXT,
	avg_video_duration         TEXT,
	enriched_at                TIMESTAMPTZ,
	error                      TEXT
);
CREATE INDEX IF NOT EXISTS channels_enriched_rank_idx ON channels_enriched (rank);
`

// EnsureSchema creates both collections if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const upsertTopSQL = `
INSERT INTO channels_top100 (rank, channel_name, channel_url, videos, subscribers, total_views, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (rank) DO UPDATE SET
	channel_name = EXCLUDED.channel_name,
	channel_url  = EXCLUDED.channel_url,
	videos       = EXCLUDED.videos,
	subscribers  = EXCLUDED.subscribers,
	total_views  = EXCLUDED.total_views,
	scraped_at   = EXCLUDED.scraped_at`

// UpsertByRank writes the phase-1 fields of a snapshot to channels_top100.
func (s *Store) UpsertByRank(ctx context.Context, rank int, fields channel.Snapshot) error {
	_, err := s.pool.Exec(ctx, upsertTopSQL,
		rank,
		fields.Name,
		nullString(fields.URL),
		fields.Videos,
		fields.Subscribers,
		fields.TotalViews,
		fields.ScrapedAt,
	)
	metrics.ObserveUpsert(string(channel.CollectionTop), err)
	if err != nil {
		return &channel.PersistenceError{Op: "upsert", Collection: channel.CollectionTop, Key: strconv.Itoa(rank), Err: err}
	}
	return nil
}

const upsertEnrichedSQL = `
INSERT INTO channels_enriched (
	channel_url, rank, channel_name, videos, subscribers, total_views, scraped_at,
	estimated_monthly_earnings, avg_video_duration, enriched_at, error
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (channel_url) DO UPDATE SET
	rank                       = EXCLUDED.rank,
	channel_name               = EXCLUDED.channel_name,
	videos                     = EXCLUDED.videos,
	subscribers                = EXCLUDED.subscribers,
	total_views                = EXCLUDED.total_views,
	scraped_at                 = EXCLUDED.scraped_at,
	estimated_monthly_earnings = EXCLUDED.estimated_monthly_earnings,
	avg_video_duration         = EXCLUDED.avg_video_duration,
	enriched_at                = EXCLUDED.enriched_at,
	error                      = EXCLUDED.error`

// UpsertByURL writes a full snapshot to channels_enriched.
func (s *Store) UpsertByURL(ctx context.Context, url string, fields channel.Snapshot) error {
	if strings.TrimSpace(url) == "" {
		return &channel.PersistenceError{Op: "upsert", Collection: channel.CollectionEnriched, Err: errors.New("channel url is required")}
	}
	_, err := s.pool.Exec(ctx, upsertEnrichedSQL,
		url,
		fields.Rank,
		fields.Name,
		fields.Videos,
		fields.Subscribers,
		fields.TotalViews,
		fields.ScrapedAt,
		fields.EstimatedMonthlyEarnings,
		fields.AvgVideoDuration,
		fields.EnrichedAt,
		nullString(fields.Error),
	)
	metrics.ObserveUpsert(string(channel.CollectionEnriched), err)
	if err != nil {
		return &channel.PersistenceError{Op: "upsert", Collection: channel.CollectionEnriched, Key: url, Err: err}
	}
	return nil
}

const (
	topColumns      = "rank, channel_name, channel_url, videos, subscribers, total_views, scraped_at"
	enrichedColumns = "rank, channel_name, channel_url, videos, subscribers, total_views, scraped_at, " +
		"estimated_monthly_earnings, avg_video_duration, enriched_at, error"
)

// Get returns one record: by rank in channels_top100, by URL in
// channels_enriched. Missing records yield channel.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection channel.Collection, key string) (channel.Snapshot, error) {
	var (
		query string
		arg   any
	)
	switch collection {
	case channel.CollectionTop:
		rank, err := strconv.Atoi(key)
		if err != nil {
			return channel.Snapshot{}, fmt.Errorf("rank key %q: %w", key, err)
		}
		query = "SELECT " + topColumns + " FROM channels_top100 WHERE rank = $1"
		arg = rank
	case channel.CollectionEnriched:
		query = "SELECT " + enrichedColumns + " FROM channels_enriched WHERE channel_url = $1"
		arg = key
	default:
		return channel.Snapshot{}, fmt.Errorf("unknown collection %q", collection)
	}

	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query, arg), collection)
	if errors.Is(err, pgx.ErrNoRows) {
		return channel.Snapshot{}, fmt.Errorf("%s[%s]: %w", collection, key, channel.ErrNotFound)
	}
	if err != nil {
		return channel.Snapshot{}, fmt.Errorf("get %s[%s]: %w", collection, key, err)
	}
	return snap, nil
}

// FindSorted returns a page of records ordered by q.Field. Nulls sort last
// in both directions and ties fall back to rank.
func (s *Store) FindSorted(ctx context.Context, collection channel.Collection, q channel.Query) ([]channel.Snapshot, error) {
	query, args, err := buildFindSorted(collection, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer rows.Close()

	var out []channel.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows, collection)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, nil
}

func buildFindSorted(collection channel.Collection, q channel.Query) (string, []any, error) {
	if !collection.Valid() {
		return "", nil, fmt.Errorf("unknown collection %q", collection)
	}
	field := q.Field
	if field == "" {
		field = channel.SortByRank
	}
	if !field.Valid() {
		return "", nil, fmt.Errorf("unsupported sort field %q", field)
	}
	columns := topColumns
	if collection == channel.CollectionEnriched {
		columns = enrichedColumns
	}
	dir := "ASC"
	if q.Direction == channel.Descending {
		dir = "DESC"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s ORDER BY %s %s NULLS LAST", columns, collection, field, dir)
	if field != channel.SortByRank {
		sb.WriteString(", rank ASC")
	}
	var args []any
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if q.Skip > 0 {
		args = append(args, q.Skip)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	return sb.String(), args, nil
}

// CountAll returns the number of records in collection.
func (s *Store) CountAll(ctx context.Context, collection channel.Collection) (int64, error) {
	if !collection.Valid() {
		return 0, fmt.Errorf("unknown collection %q", collection)
	}
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+string(collection)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func scanSnapshot(row pgx.Row, collection channel.Collection) (channel.Snapshot, error) {
	var (
		snap  channel.Snapshot
		url   *string
		errAn *string
	)
	dest := []any{
		&snap.Rank,
		&snap.Name,
		&url,
		&snap.Videos,
		&snap.Subscribers,
		&snap.TotalViews,
		&snap.ScrapedAt,
	}
	if collection == channel.CollectionEnriched {
		dest = append(dest,
			&snap.EstimatedMonthlyEarnings,
			&snap.AvgVideoDuration,
			&snap.EnrichedAt,
			&errAn,
		)
	}
	if err := row.Scan(dest...); err != nil {
		return channel.Snapshot{}, err
	}
	if url != nil {
		snap.URL = *url
	}
	if errAn != nil {
		snap.Error = *errAn
	}
	return snap, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
