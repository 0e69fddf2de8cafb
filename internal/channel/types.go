package channel

import (
	"time"
)

// Collection names a logical collection in the document store.
type Collection string

// Logical collections persisted by the pipeline.
const (
	// CollectionTop holds phase-1 records keyed by rank.
	CollectionTop Collection = "channels_top100"
	// CollectionEnriched holds phase-2 records keyed by channel URL.
	CollectionEnriched Collection = "channels_enriched"
)

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	return c == CollectionTop || c == CollectionEnriched
}

// Snapshot is one ranked channel as captured by a scrape batch.
//
// Count fields are pointers: nil means the source value could not be parsed,
// which is distinct from a parsed zero.
type Snapshot struct {
	Rank        int       `json:"rank"`
	Name        string    `json:"channel_name"`
	URL         string    `json:"channel_url,omitempty"`
	Videos      *int64    `json:"videos"`
	Subscribers *int64    `json:"subscribers"`
	TotalViews  *int64    `json:"total_views"`
	ScrapedAt   time.Time `json:"scraped_at"`

	EstimatedMonthlyEarnings *string    `json:"estimated_monthly_earnings,omitempty"`
	AvgVideoDuration         *string    `json:"avg_video_duration,omitempty"`
	EnrichedAt               *time.Time `json:"enriched_at,omitempty"`
	Error                    string     `json:"error,omitempty"`
}

// HasURL reports whether the detail URL has been resolved.
func (s Snapshot) HasURL() bool {
	return s.URL != ""
}

// Core returns a copy of s carrying only phase-1 fields.
func (s Snapshot) Core() Snapshot {
	return Snapshot{
		Rank:        s.Rank,
		Name:        s.Name,
		URL:         s.URL,
		Videos:      s.Videos,
		Subscribers: s.Subscribers,
		TotalViews:  s.TotalViews,
		ScrapedAt:   s.ScrapedAt,
	}
}

// SortField is a column the store can order by.
type SortField string

// Sortable fields.
const (
	SortByRank        SortField = "rank"
	SortByName        SortField = "channel_name"
	SortByVideos      SortField = "videos"
	SortBySubscribers SortField = "subscribers"
	SortByTotalViews  SortField = "total_views"
)

// Valid reports whether f is a known sort field.
func (f SortField) Valid() bool {
	switch f {
	case SortByRank, SortByName, SortByVideos, SortBySubscribers, SortByTotalViews:
		return true
	}
	return false
}

// Direction is a sort order.
type Direction int

// Sort directions.
const (
	Ascending Direction = iota
	Descending
)

// Query describes a sorted, paginated read.
type Query struct {
	Field     SortField
	Direction Direction
	Limit     int
	Skip      int
}

// Health is the operational status reported to the presentation layer.
type Health struct {
	Status  string `json:"status"`
	DB      string `json:"db"`
	Records int64  `json:"records"`
}

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	DBConnected    = "connected"
	DBDisconnected = "disconnected"
)

// Link is an anchor harvested from a rendered page.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// String returns a pointer to v.
func String(v string) *string {
	return &v
}
