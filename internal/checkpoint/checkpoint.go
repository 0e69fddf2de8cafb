// Package checkpoint writes and reads the flat CSV files that separate the
// acquisition phase from the enrichment phase.
package checkpoint

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
)

// Columns is the fixed column order of the phase-1 checkpoint.
var Columns = []string{"rank", "channel_name", "channel_url", "videos", "subscribers", "total_views", "scraped_at"}

// EnrichedColumns extends Columns with the phase-2 fields.
var EnrichedColumns = append(append([]string(nil), Columns...),
	"estimated_monthly_earnings", "avg_video_duration", "enriched_at", "error")

// ContentType is used when mirroring files to a blob store.
const ContentType = "text/csv; charset=utf-8"

// Write exports snaps to path, replacing any previous file atomically.
func Write(path string, snaps []channel.Snapshot) error {
	return writeFile(path, Columns, snaps, coreRecord)
}

// WriteEnriched exports snaps with their phase-2 fields.
func WriteEnriched(path string, snaps []channel.Snapshot) error {
	return writeFile(path, EnrichedColumns, snaps, enrichedRecord)
}

func writeFile(path string, header []string, snaps []channel.Snapshot, record func(channel.Snapshot) []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, s := range snaps {
		if err := w.Write(record(s)); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("write rank %d: %w", s.Rank, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

func coreRecord(s channel.Snapshot) []string {
	return []string{
		strconv.Itoa(s.Rank),
		s.Name,
		s.URL,
		formatCount(s.Videos),
		formatCount(s.Subscribers),
		formatCount(s.TotalViews),
		formatTime(s.ScrapedAt),
	}
}

func enrichedRecord(s channel.Snapshot) []string {
	return append(coreRecord(s),
		formatText(s.EstimatedMonthlyEarnings),
		formatText(s.AvgVideoDuration),
		formatOptionalTime(s.EnrichedAt),
		s.Error,
	)
}

func formatCount(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func formatText(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// Read loads phase-1 records from path in file order. A positive limit keeps
// only the first limit records.
func Read(path string, limit int) ([]channel.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("checkpoint %s is empty", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}
	r.FieldsPerRecord = len(header)

	var out []channel.Snapshot
	for line := 2; limit <= 0 || len(out) < limit; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		snap, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

func checkHeader(header []string) error {
	if len(header) < len(Columns) {
		return fmt.Errorf("checkpoint header has %d columns, want %d", len(header), len(Columns))
	}
	for i, col := range Columns {
		if strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")) != col {
			return fmt.Errorf("checkpoint column %d is %q, want %q", i+1, header[i], col)
		}
	}
	return nil
}

func parseRecord(rec []string) (channel.Snapshot, error) {
	rank, err := strconv.Atoi(rec[0])
	if err != nil {
		return channel.Snapshot{}, fmt.Errorf("rank %q: %w", rec[0], err)
	}
	snap := channel.Snapshot{Rank: rank, Name: rec[1], URL: rec[2]}
	for i, dst := range []**int64{&snap.Videos, &snap.Subscribers, &snap.TotalViews} {
		v, err := parseCount(rec[3+i])
		if err != nil {
			return channel.Snapshot{}, fmt.Errorf("%s %q: %w", Columns[3+i], rec[3+i], err)
		}
		*dst = v
	}
	if rec[6] != "" {
		if snap.ScrapedAt, err = time.Parse(time.RFC3339, rec[6]); err != nil {
			return channel.Snapshot{}, fmt.Errorf("scraped_at %q: %w", rec[6], err)
		}
	}
	return snap, nil
}

func parseCount(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Mirror copies the file at path to store under objectPath and returns its URI.
func Mirror(ctx context.Context, store channel.BlobStore, path, objectPath string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	uri, err := store.PutObject(ctx, objectPath, ContentType, f)
	if err != nil {
		return "", fmt.Errorf("mirror %s: %w", path, err)
	}
	return uri, nil
}
