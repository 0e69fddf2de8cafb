package extract

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
	"github.com/JakeFAU/creator-rank-crawler/internal/metrics"
	"github.com/JakeFAU/creator-rank-crawler/internal/normalize"
)

// minCells is rank, name, videos, subscribers, total views.
const minCells = 5

// row is one parsed listing row before URL resolution.
type row struct {
	index    int
	snapshot channel.Snapshot
}

// parseRow converts the cell texts of the row at index. Unparsable numeric
// cells become nil fields; a missing or invalid rank rejects the row.
func parseRow(index int, cells []string, logger *zap.Logger) (row, error) {
	if len(cells) < minCells {
		return row{}, &channel.ParseError{Row: index, Reason: fmt.Sprintf("expected %d cells, found %d", minCells, len(cells))}
	}
	rankText := strings.TrimPrefix(strings.TrimSpace(cells[0]), "#")
	rank, err := strconv.Atoi(strings.TrimSpace(rankText))
	if err != nil {
		return row{}, &channel.ParseError{Row: index, Reason: fmt.Sprintf("invalid rank %q", cells[0]), Err: err}
	}
	if rank <= 0 {
		return row{}, &channel.ParseError{Row: index, Reason: fmt.Sprintf("non-positive rank %d", rank)}
	}
	snap := channel.Snapshot{
		Rank: rank,
		Name: strings.TrimSpace(cells[1]),
	}
	snap.Videos = count(rank, "videos", cells[2], logger)
	snap.Subscribers = count(rank, "subscribers", cells[3], logger)
	snap.TotalViews = count(rank, "total_views", cells[4], logger)
	return row{index: index, snapshot: snap}, nil
}

func count(rank int, field, text string, logger *zap.Logger) *int64 {
	n, err := normalize.Count(text)
	if err != nil {
		metrics.ObserveUnparsable(field)
		logger.Warn("numeric cell left null",
			zap.Int("rank", rank),
			zap.String("field", field),
			zap.String("text", text),
			zap.Error(err),
		)
		return nil
	}
	return &n
}

// parseRows parses every row, skipping and logging rows that fail. Ranks are
// unique within a batch; later duplicates are rejected.
func parseRows(table [][]string, logger *zap.Logger) []row {
	rows := make([]row, 0, len(table))
	seen := make(map[int]struct{}, len(table))
	for idx, cells := range table {
		r, err := parseRow(idx, cells, logger)
		if err == nil {
			if _, dup := seen[r.snapshot.Rank]; dup {
				err = &channel.ParseError{Row: idx, Reason: fmt.Sprintf("duplicate rank %d", r.snapshot.Rank)}
			}
		}
		if err != nil {
			metrics.ObserveRow("skipped")
			var perr *channel.ParseError
			if errors.As(err, &perr) {
				logger.Warn("row skipped", zap.Int("row", perr.Row), zap.Error(err))
			}
			continue
		}
		seen[r.snapshot.Rank] = struct{}{}
		metrics.ObserveRow("parsed")
		rows = append(rows, r)
	}
	return rows
}

// cellRank reads a rank cell such as "#12" or "12".
func cellRank(text string) (int, bool) {
	rank, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "#")))
	if err != nil || rank <= 0 {
		return 0, false
	}
	return rank, true
}

// rowNames maps each parsed rank to its whitespace-collapsed channel name.
func rowNames(rows []row) map[int]string {
	names := make(map[int]string, len(rows))
	for _, r := range rows {
		names[r.snapshot.Rank] = collapseSpace(r.snapshot.Name)
	}
	return names
}

// matchLinkRank keys a link by the "#<rank><name>" prefix of its visible
// text. The text has no separator between rank and name, so every split of
// the leading digits is tried, longest rank first, and a split only counts
// when the remainder starts with that rank's channel name.
func matchLinkRank(text string, names map[int]string) (int, bool) {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "#") {
		return 0, false
	}
	s = strings.TrimLeft(s[1:], " \t\r\n")
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	for k := digits; k > 0; k-- {
		rank, err := strconv.Atoi(s[:k])
		if err != nil || rank <= 0 {
			continue
		}
		name := names[rank]
		if name != "" && strings.HasPrefix(collapseSpace(s[k:]), name) {
			return rank, true
		}
	}
	return 0, false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveHref makes href absolute against base.
func resolveHref(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base == nil {
		if !ref.IsAbs() {
			return "", false
		}
		return ref.String(), true
	}
	return base.ResolveReference(ref).String(), true
}

// collectLinks adds links whose text matches a known row to urls and returns
// how many ranks were new. A rank keeps the first URL it was given.
func collectLinks(urls map[int]string, base *url.URL, links []channel.Link, names map[int]string) int {
	added := 0
	for _, link := range links {
		rank, ok := matchLinkRank(link.Text, names)
		if !ok {
			continue
		}
		if _, exists := urls[rank]; exists {
			continue
		}
		abs, ok := resolveHref(base, link.Href)
		if !ok {
			continue
		}
		urls[rank] = abs
		added++
	}
	return added
}
