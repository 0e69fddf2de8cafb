package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
)

var scrapedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func topSnapshot() channel.Snapshot {
	return channel.Snapshot{
		Rank:        5,
		Name:        "Cocomelon",
		URL:         "https://stats.example.com/youtube-stats/channel/UC5/",
		Videos:      channel.Int64(1200),
		Subscribers: channel.Int64(190_000_000),
		TotalViews:  nil,
		ScrapedAt:   scrapedAt,
	}
}

func TestUpsertByRankIsSingleStatement(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	snap := topSnapshot()
	for range 2 {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO channels_top100")+".*"+regexp.QuoteMeta("ON CONFLICT (rank) DO UPDATE")).
			WithArgs(5, "Cocomelon", channel.String(snap.URL), snap.Videos, snap.Subscribers, (*int64)(nil), scrapedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, store.UpsertByRank(context.Background(), 5, snap))
	require.NoError(t, store.UpsertByRank(context.Background(), 5, snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertByRankStoresEmptyURLAsNull(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	snap := topSnapshot()
	snap.URL = ""
	mock.ExpectExec("INSERT INTO channels_top100").
		WithArgs(5, "Cocomelon", (*string)(nil), snap.Videos, snap.Subscribers, (*int64)(nil), scrapedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertByRank(context.Background(), 5, snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertByRankWrapsPersistenceError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO channels_top100").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(boom)

	err := store.UpsertByRank(context.Background(), 5, topSnapshot())
	var perr *channel.PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, channel.CollectionTop, perr.Collection)
	require.Equal(t, "5", perr.Key)
	require.ErrorIs(t, err, boom)
}

func TestUpsertByURL(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	snap := topSnapshot()
	enrichedAt := scrapedAt.Add(time.Hour)
	snap.EstimatedMonthlyEarnings = channel.String("$1.2M - $3.4M")
	snap.EnrichedAt = &enrichedAt

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO channels_enriched")+".*"+regexp.QuoteMeta("ON CONFLICT (channel_url) DO UPDATE")).
		WithArgs(snap.URL, 5, "Cocomelon", snap.Videos, snap.Subscribers, (*int64)(nil), scrapedAt,
			snap.EstimatedMonthlyEarnings, (*string)(nil), &enrichedAt, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertByURL(context.Background(), snap.URL, snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertByURLRequiresURL(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	var perr *channel.PersistenceError
	require.ErrorAs(t, store.UpsertByURL(context.Background(), " ", topSnapshot()), &perr)
}

func TestGetTopByRank(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	snap := topSnapshot()
	rows := pgxmock.NewRows([]string{"rank", "channel_name", "channel_url", "videos", "subscribers", "total_views", "scraped_at"}).
		AddRow(5, "Cocomelon", channel.String(snap.URL), snap.Videos, snap.Subscribers, (*int64)(nil), scrapedAt)
	mock.ExpectQuery(regexp.QuoteMeta("FROM channels_top100 WHERE rank = $1")).WithArgs(5).WillReturnRows(rows)

	got, err := store.Get(context.Background(), channel.CollectionTop, "5")
	require.NoError(t, err)
	require.Equal(t, snap, got)
}

func TestGetEnrichedNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM channels_enriched WHERE channel_url = $1")).
		WithArgs("https://nowhere.example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), channel.CollectionEnriched, "https://nowhere.example.com")
	require.ErrorIs(t, err, channel.ErrNotFound)
}

func TestGetRejectsBadKeys(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	_, err := store.Get(context.Background(), channel.CollectionTop, "five")
	require.Error(t, err)
	_, err = store.Get(context.Background(), channel.Collection("videos"), "1")
	require.Error(t, err)
}

func TestFindSortedEnriched(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	enrichedAt := scrapedAt.Add(time.Hour)
	cols := []string{
		"rank", "channel_name", "channel_url", "videos", "subscribers", "total_views", "scraped_at",
		"estimated_monthly_earnings", "avg_video_duration", "enriched_at", "error",
	}
	rows := pgxmock.NewRows(cols).
		AddRow(1, "MrBeast", channel.String("https://a.example.com"), channel.Int64(942), channel.Int64(466_000_000), channel.Int64(110_070_000_000), scrapedAt,
			channel.String("$2M"), channel.String("15:02"), &enrichedAt, (*string)(nil)).
		AddRow(2, "T-Series", channel.String("https://b.example.com"), channel.Int64(23_145), (*int64)(nil), channel.Int64(320_000_000_000), scrapedAt,
			(*string)(nil), (*string)(nil), &enrichedAt, channel.String("extraction timeout"))

	pattern := regexp.QuoteMeta("FROM channels_enriched ORDER BY subscribers DESC NULLS LAST, rank ASC LIMIT $1 OFFSET $2")
	mock.ExpectQuery(pattern).WithArgs(10, 20).WillReturnRows(rows)

	got, err := store.FindSorted(context.Background(), channel.CollectionEnriched, channel.Query{
		Field:     channel.SortBySubscribers,
		Direction: channel.Descending,
		Limit:     10,
		Skip:      20,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "$2M", *got[0].EstimatedMonthlyEarnings)
	require.Nil(t, got[1].Subscribers)
	require.Equal(t, "extraction timeout", got[1].Error)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildFindSorted(t *testing.T) {
	t.Parallel()

	query, args, err := buildFindSorted(channel.CollectionTop, channel.Query{})
	require.NoError(t, err)
	require.Equal(t, "SELECT "+topColumns+" FROM channels_top100 ORDER BY rank ASC NULLS LAST", query)
	require.Empty(t, args)

	query, args, err = buildFindSorted(channel.CollectionTop, channel.Query{Field: channel.SortByName, Skip: 3})
	require.NoError(t, err)
	require.Contains(t, query, "ORDER BY channel_name ASC NULLS LAST, rank ASC OFFSET $1")
	require.Equal(t, []any{3}, args)

	_, _, err = buildFindSorted(channel.CollectionTop, channel.Query{Field: "rank; DROP TABLE channels_top100"})
	require.Error(t, err)
}

func TestCountAll(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM channels_top100")).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(100)))

	n, err := store.CountAll(context.Background(), channel.CollectionTop)
	require.NoError(t, err)
	require.Equal(t, int64(100), n)
}

func TestEnsureSchemaAndPing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS channels_top100").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectPing()

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	_, err = NewWithPool(nil)
	require.Error(t, err)
}
