package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
)

type flakyStore struct {
	failures int
	pings    int
	count    int64
	countErr error
}

func (s *flakyStore) Ping(context.Context) error {
	s.pings++
	if s.pings <= s.failures {
		return errors.New("connection refused")
	}
	return nil
}

func (s *flakyStore) CountAll(context.Context, channel.Collection) (int64, error) {
	return s.count, s.countErr
}

func TestWaitReadySucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	s := &flakyStore{failures: 2}
	require.NoError(t, WaitReady(context.Background(), s, 10, time.Millisecond, nil))
	require.Equal(t, 3, s.pings)
}

func TestWaitReadyExhaustsBudget(t *testing.T) {
	t.Parallel()

	s := &flakyStore{failures: 100}
	err := WaitReady(context.Background(), s, 4, time.Millisecond, nil)
	require.ErrorIs(t, err, channel.ErrStoreUnavailable)
	require.ErrorContains(t, err, "connection refused")
	require.Equal(t, 4, s.pings)
}

func TestWaitReadyStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &flakyStore{failures: 100}
	err := WaitReady(ctx, s, 10, time.Hour, nil)
	require.ErrorIs(t, err, channel.ErrStoreUnavailable)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, s.pings)
}

func TestCheckHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		store *flakyStore
		want  channel.Health
	}{
		{
			name:  "connected",
			store: &flakyStore{count: 100},
			want:  channel.Health{Status: "ok", DB: "connected", Records: 100},
		},
		{
			name:  "ping fails",
			store: &flakyStore{failures: 1},
			want:  channel.Health{Status: "degraded", DB: "disconnected"},
		},
		{
			name:  "count fails",
			store: &flakyStore{countErr: errors.New("relation does not exist")},
			want:  channel.Health{Status: "degraded", DB: "connected"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, CheckHealth(context.Background(), tt.store, channel.CollectionTop))
		})
	}
}
