// Package memory provides in-process stores for development and tests.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
	"github.com/JakeFAU/creator-rank-crawler/internal/metrics"
)

// Store implements channel.SnapshotStore over two maps guarded by one lock.
type Store struct {
	mu      sync.RWMutex
	byRank  map[int]channel.Snapshot
	byURL   map[string]channel.Snapshot
	pingErr error
	closed  bool
}

var _ channel.SnapshotStore = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		byRank: make(map[int]channel.Snapshot),
		byURL:  make(map[string]channel.Snapshot),
	}
}

// SetPingError makes Ping fail with err until cleared with nil.
func (s *Store) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// UpsertByRank stores the phase-1 fields of fields under rank.
func (s *Store) UpsertByRank(_ context.Context, rank int, fields channel.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		err := errors.New("store closed")
		metrics.ObserveUpsert(string(channel.CollectionTop), err)
		return &channel.PersistenceError{Op: "upsert", Collection: channel.CollectionTop, Key: strconv.Itoa(rank), Err: err}
	}
	snap := clone(fields.Core())
	snap.Rank = rank
	s.byRank[rank] = snap
	metrics.ObserveUpsert(string(channel.CollectionTop), nil)
	return nil
}

// UpsertByURL stores fields under url.
func (s *Store) UpsertByURL(_ context.Context, url string, fields channel.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	switch {
	case strings.TrimSpace(url) == "":
		err = errors.New("channel url is required")
	case s.closed:
		err = errors.New("store closed")
	}
	if err != nil {
		metrics.ObserveUpsert(string(channel.CollectionEnriched), err)
		return &channel.PersistenceError{Op: "upsert", Collection: channel.CollectionEnriched, Key: url, Err: err}
	}
	snap := clone(fields)
	snap.URL = url
	s.byURL[url] = snap
	metrics.ObserveUpsert(string(channel.CollectionEnriched), nil)
	return nil
}

// Get returns one record by rank or URL depending on collection.
func (s *Store) Get(_ context.Context, collection channel.Collection, key string) (channel.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		snap channel.Snapshot
		ok   bool
	)
	switch collection {
	case channel.CollectionTop:
		rank, err := strconv.Atoi(key)
		if err != nil {
			return channel.Snapshot{}, fmt.Errorf("rank key %q: %w", key, err)
		}
		snap, ok = s.byRank[rank]
	case channel.CollectionEnriched:
		snap, ok = s.byURL[key]
	default:
		return channel.Snapshot{}, fmt.Errorf("unknown collection %q", collection)
	}
	if !ok {
		return channel.Snapshot{}, fmt.Errorf("%s[%s]: %w", collection, key, channel.ErrNotFound)
	}
	return clone(snap), nil
}

// FindSorted mirrors the Postgres ordering: nulls last, ties by rank.
func (s *Store) FindSorted(_ context.Context, collection channel.Collection, q channel.Query) ([]channel.Snapshot, error) {
	field := q.Field
	if field == "" {
		field = channel.SortByRank
	}
	if !field.Valid() {
		return nil, fmt.Errorf("unsupported sort field %q", field)
	}
	all, err := s.snapshot(collection)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(all, func(a, b channel.Snapshot) int {
		if c := compareField(a, b, field, q.Direction); c != 0 {
			return c
		}
		return cmp.Compare(a.Rank, b.Rank)
	})

	start := min(max(q.Skip, 0), len(all))
	all = all[start:]
	if q.Limit > 0 && q.Limit < len(all) {
		all = all[:q.Limit]
	}
	return all, nil
}

// CountAll returns the number of records in collection.
func (s *Store) CountAll(_ context.Context, collection channel.Collection) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch collection {
	case channel.CollectionTop:
		return int64(len(s.byRank)), nil
	case channel.CollectionEnriched:
		return int64(len(s.byURL)), nil
	}
	return 0, fmt.Errorf("unknown collection %q", collection)
}

// Ping reports the configured ping error, if any.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("store closed")
	}
	return s.pingErr
}

// Close marks the store closed; later writes fail.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Store) snapshot(collection channel.Collection) ([]channel.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []channel.Snapshot
	switch collection {
	case channel.CollectionTop:
		out = make([]channel.Snapshot, 0, len(s.byRank))
		for _, snap := range s.byRank {
			out = append(out, clone(snap))
		}
	case channel.CollectionEnriched:
		out = make([]channel.Snapshot, 0, len(s.byURL))
		for _, snap := range s.byURL {
			out = append(out, clone(snap))
		}
	default:
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	return out, nil
}

func compareField(a, b channel.Snapshot, field channel.SortField, dir channel.Direction) int {
	sign := 1
	if dir == channel.Descending {
		sign = -1
	}
	switch field {
	case channel.SortByName:
		return sign * cmp.Compare(a.Name, b.Name)
	case channel.SortByVideos:
		return compareNullable(a.Videos, b.Videos, sign)
	case channel.SortBySubscribers:
		return compareNullable(a.Subscribers, b.Subscribers, sign)
	case channel.SortByTotalViews:
		return compareNullable(a.TotalViews, b.TotalViews, sign)
	default:
		return sign * cmp.Compare(a.Rank, b.Rank)
	}
}

// compareNullable orders nil after every value regardless of direction.
func compareNullable(a, b *int64, sign int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return sign * cmp.Compare(*a, *b)
}

func clone(s channel.Snapshot) channel.Snapshot {
	s.Videos = clonePtr(s.Videos)
	s.Subscribers = clonePtr(s.Subscribers)
	s.TotalViews = clonePtr(s.TotalViews)
	s.EstimatedMonthlyEarnings = clonePtr(s.EstimatedMonthlyEarnings)
	s.AvgVideoDuration = clonePtr(s.AvgVideoDuration)
	s.EnrichedAt = clonePtr(s.EnrichedAt)
	return s
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
