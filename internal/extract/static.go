package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
	"github.com/JakeFAU/creator-rank-crawler/internal/fetcher"
	"github.com/JakeFAU/creator-rank-crawler/internal/fetcher/detector"
	"github.com/JakeFAU/creator-rank-crawler/internal/logging"
)

// Listing is the result of parsing server-rendered listing HTML.
type Listing struct {
	Cells [][]string
	// URLs maps rank to detail URL, from rank-keyed links anywhere on the page
	// and from anchors inside each row.
	URLs map[int]string
}

// ParseStaticListing reads rows and detail links from rendered HTML.
func ParseStaticListing(r io.Reader, base *url.URL, cfg Config) (Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Listing{}, fmt.Errorf("parse listing html: %w", err)
	}
	listing := Listing{URLs: make(map[int]string)}

	inRow := make(map[int]string)
	names := make(map[int]string)
	doc.Find(cfg.RowSelector).Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find(cfg.CellSelector).Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(td.Text()))
		})
		listing.Cells = append(listing.Cells, cells)

		if len(cells) < 2 {
			return
		}
		rank, ok := cellRank(cells[0])
		if !ok {
			return
		}
		if _, seen := names[rank]; !seen {
			names[rank] = collapseSpace(cells[1])
		}
		if href, exists := tr.Find("a[href]").First().Attr("href"); exists {
			if abs, ok := resolveHref(base, href); ok {
				if _, seen := inRow[rank]; !seen {
					inRow[rank] = abs
				}
			}
		}
	})

	if cfg.LinkSelector != "" {
		var links []channel.Link
		doc.Find(cfg.LinkSelector).Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			links = append(links, channel.Link{Text: strings.TrimSpace(a.Text()), Href: href})
		})
		collectLinks(listing.URLs, base, links, names)
	}
	for rank, u := range inRow {
		if _, ok := listing.URLs[rank]; !ok {
			listing.URLs[rank] = u
		}
	}
	return listing, nil
}

// ErrClientRendered means the listing carried no rows and looks like a
// script-rendered shell; browser mode is required.
var ErrClientRendered = errors.New("listing is rendered client-side; use browser mode")

// StaticExtractor fetches the listing over plain HTTP. There is no browser,
// so ranks without a link keep a null URL.
type StaticExtractor struct {
	cfg      Config
	base     *url.URL
	fetcher  *fetcher.Fetcher
	detector *detector.Heuristic
	clock    channel.Clock
	logger   *zap.Logger
}

// NewStatic constructs a StaticExtractor.
func NewStatic(cfg Config, f *fetcher.Fetcher, clock channel.Clock, logger *zap.Logger) (*StaticExtractor, error) {
	base, err := url.Parse(cfg.ListingURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	return &StaticExtractor{
		cfg:      cfg,
		base:     base,
		fetcher:  f,
		detector: detector.NewHeuristic(0),
		clock:    clock,
		logger:   logging.OrNop(logger),
	}, nil
}

// Extract fetches and parses the listing.
func (s *StaticExtractor) Extract(ctx context.Context) ([]channel.Snapshot, error) {
	page, err := s.fetcher.Fetch(ctx, s.cfg.ListingURL)
	if err != nil {
		return nil, err
	}
	base := s.base
	if final, err := url.Parse(page.URL); err == nil && final.IsAbs() {
		base = final
	}
	listing, err := ParseStaticListing(bytes.NewReader(page.Body), base, s.cfg)
	if err != nil {
		return nil, err
	}

	rows := parseRows(listing.Cells, s.logger)
	if len(rows) == 0 && s.detector.ClientRendered(page) {
		return nil, fmt.Errorf("%w: %s", ErrClientRendered, s.cfg.ListingURL)
	}
	scrapedAt := s.clock.Now()
	out := make([]channel.Snapshot, 0, len(rows))
	missing := 0
	for _, r := range rows {
		r.snapshot.URL = listing.URLs[r.snapshot.Rank]
		if r.snapshot.URL == "" {
			missing++
			s.logger.Warn("no detail link for rank", zap.Int("rank", r.snapshot.Rank))
		}
		r.snapshot.ScrapedAt = scrapedAt
		out = append(out, r.snapshot)
	}
	s.logger.Info("static listing extracted",
		zap.Int("rows", len(out)),
		zap.Int("missing_urls", missing),
	)
	return out, nil
}
