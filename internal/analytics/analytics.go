// Package analytics derives per-channel ratios and a market-structure report
// from the canonical dataset. Everything here is a pure function of its input.
package analytics

import (
	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
)

// Segment is a subscriber-size bucket bounded by quartiles.
type Segment string

// Segment labels. SegmentNone is used when quartiles are unavailable or the
// subscriber count is unknown.
const (
	SegmentNone  Segment = ""
	SegmentMicro Segment = "Micro"
	SegmentMid   Segment = "Mid"
	SegmentLarge Segment = "Large"
	SegmentMega  Segment = "Mega"
)

// Quadrant classifies productivity (videos) against performance (views per
// video) relative to the dataset medians.
type Quadrant string

// Quadrant labels.
const (
	QuadrantTopPerformer  Quadrant = "Top Performer"
	QuadrantSniper        Quadrant = "Sniper"
	QuadrantMassPublisher Quadrant = "Mass Publisher"
	QuadrantLowPerformer  Quadrant = "Low Performer"
)

// Options parameterizes derived values.
type Options struct {
	// RPM is revenue per thousand views used for the revenue estimate.
	RPM float64
	// Epsilon is added before log10 so zero counts stay finite.
	Epsilon float64
}

// DefaultOptions returns the stock RPM and epsilon.
func DefaultOptions() Options {
	return Options{RPM: 3.0, Epsilon: 1e-6}
}

// DerivedMetrics are recomputed from a snapshot on every pass and never stored.
//
// The three ratios are 0 when their denominator is zero or unknown. The
// pointer fields are nil when undefined for the same reason.
type DerivedMetrics struct {
	ViewsPerSubscriber float64  `json:"views_per_subscriber"`
	ViewsPerVideo      float64  `json:"views_per_video"`
	SubsPerVideo       float64  `json:"subs_per_video"`
	Segment            Segment  `json:"segment"`
	Quadrant           Quadrant `json:"quadrant"`
	EfficiencyScore    *float64 `json:"efficiency_score"`
	EstimatedRevenue   *float64 `json:"estimated_revenue"`
	RevenuePerVideo    *float64 `json:"revenue_per_video"`
}

// Entity pairs a snapshot with its derived metrics.
type Entity struct {
	channel.Snapshot
	DerivedMetrics
}

// Distribution is the central tendency of one field over known values.
type Distribution struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// Stats groups the per-field distributions.
type Stats struct {
	Subscribers Distribution `json:"subscribers"`
	Views       Distribution `json:"views"`
	Videos      Distribution `json:"videos"`
}

// Quartiles are the subscriber boundaries used for segmentation.
type Quartiles struct {
	Q1 float64 `json:"q1"`
	Q2 float64 `json:"q2"`
	Q3 float64 `json:"q3"`
}

// Report is the aggregate result of one analytics pass. Compute always fills
// every field.
type Report struct {
	Count          int              `json:"count"`
	Stats          Stats            `json:"stats"`
	Gini           float64          `json:"gini"`
	Lorenz         Lorenz           `json:"lorenz"`
	Concentration  Concentration    `json:"concentration"`
	Quartiles      *Quartiles       `json:"quartiles"`
	Regression     Regression       `json:"regression"`
	SegmentCounts  map[Segment]int  `json:"segment_counts"`
	QuadrantCounts map[Quadrant]int `json:"quadrant_counts"`
	Entities       []Entity         `json:"entities"`
}

// Compute derives the per-entity metrics and the aggregate report. Inequality
// and concentration are measured over total views.
func Compute(snapshots []channel.Snapshot, opts Options) Report {
	if opts.Epsilon <= 0 {
		opts.Epsilon = DefaultOptions().Epsilon
	}

	entities := make([]Entity, len(snapshots))
	for i, s := range snapshots {
		entities[i] = Entity{Snapshot: s, DerivedMetrics: derive(s, opts)}
	}

	subs := known(snapshots, func(s channel.Snapshot) *int64 { return s.Subscribers })
	views := known(snapshots, func(s channel.Snapshot) *int64 { return s.TotalViews })
	videos := known(snapshots, func(s channel.Snapshot) *int64 { return s.Videos })

	q, ok := segmentQuartiles(subs)
	var quartiles *Quartiles
	if ok {
		quartiles = &q
	}
	classify(entities, quartiles)

	return Report{
		Count: len(snapshots),
		Stats: Stats{
			Subscribers: distribution(subs),
			Views:       distribution(views),
			Videos:      distribution(videos),
		},
		Gini:           Gini(views),
		Lorenz:         LorenzCurve(views),
		Concentration:  Concentrate(views),
		Quartiles:      quartiles,
		Regression:     regress(snapshots, opts.Epsilon),
		SegmentCounts:  countSegments(entities),
		QuadrantCounts: countQuadrants(entities),
		Entities:       entities,
	}
}

func derive(s channel.Snapshot, opts Options) DerivedMetrics {
	d := DerivedMetrics{
		ViewsPerSubscriber: ratio(s.TotalViews, s.Subscribers),
		ViewsPerVideo:      ratio(s.TotalViews, s.Videos),
		SubsPerVideo:       ratio(s.Subscribers, s.Videos),
	}
	if positive(s.Videos) && positive(s.Subscribers) {
		eff := d.ViewsPerVideo / float64(*s.Subscribers) * 100
		d.EfficiencyScore = &eff
	}
	if s.TotalViews != nil {
		rev := float64(*s.TotalViews) / 1000 * opts.RPM
		d.EstimatedRevenue = &rev
		if positive(s.Videos) {
			perVideo := rev / float64(*s.Videos)
			d.RevenuePerVideo = &perVideo
		}
	}
	return d
}

// classify assigns segments and quadrants. Quadrant medians cover every
// entity, with unknown video counts taken as zero productivity.
func classify(entities []Entity, q *Quartiles) {
	prod := make([]float64, len(entities))
	perf := make([]float64, len(entities))
	for i, e := range entities {
		prod[i] = float64(valueOr(e.Videos, 0))
		perf[i] = e.ViewsPerVideo
	}
	prodMedian, perfMedian := median(prod), median(perf)

	for i := range entities {
		e := &entities[i]
		e.Segment = segmentOf(e.Subscribers, q)
		switch {
		case prod[i] >= prodMedian && perf[i] >= perfMedian:
			e.Quadrant = QuadrantTopPerformer
		case perf[i] >= perfMedian:
			e.Quadrant = QuadrantSniper
		case prod[i] >= prodMedian:
			e.Quadrant = QuadrantMassPublisher
		default:
			e.Quadrant = QuadrantLowPerformer
		}
	}
}

func segmentOf(subs *int64, q *Quartiles) Segment {
	if q == nil || subs == nil {
		return SegmentNone
	}
	v := float64(*subs)
	switch {
	case v <= q.Q1:
		return SegmentMicro
	case v <= q.Q2:
		return SegmentMid
	case v <= q.Q3:
		return SegmentLarge
	default:
		return SegmentMega
	}
}

func countSegments(entities []Entity) map[Segment]int {
	counts := make(map[Segment]int)
	for _, e := range entities {
		if e.Segment != SegmentNone {
			counts[e.Segment]++
		}
	}
	return counts
}

func countQuadrants(entities []Entity) map[Quadrant]int {
	counts := make(map[Quadrant]int)
	for _, e := range entities {
		counts[e.Quadrant]++
	}
	return counts
}

func ratio(num, den *int64) float64 {
	if num == nil || !positive(den) {
		return 0
	}
	return float64(*num) / float64(*den)
}

func positive(p *int64) bool {
	return p != nil && *p > 0
}

func valueOr(p *int64, fallback int64) int64 {
	if p == nil {
		return fallback
	}
	return *p
}

// known returns the non-null values of one field.
func known(snapshots []channel.Snapshot, field func(channel.Snapshot) *int64) []float64 {
	out := make([]float64, 0, len(snapshots))
	for _, s := range snapshots {
		if v := field(s); v != nil {
			out = append(out, float64(*v))
		}
	}
	return out
}
