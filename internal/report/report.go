// Package report renders an analytics report as terminal tables.
package report

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JakeFAU/creator-rank-crawler/internal/analytics"
)

// NewTable returns a rounded-style table writing to w.
func NewTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.SetTitle(title)
	return t
}

// Render writes the market summary, distributions, regression, segment and
// quadrant counts, and the first top entities of r to w.
func Render(w io.Writer, r analytics.Report, top int) {
	renderSummary(w, r)
	renderDistribution(w, r.Stats)
	renderRegression(w, r.Regression)
	renderCounts(w, r)
	if top > 0 && len(r.Entities) > 0 {
		renderEntities(w, r.Entities[:min(top, len(r.Entities))])
	}
}

func renderSummary(w io.Writer, r analytics.Report) {
	t := NewTable(w, "Market structure")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Channels", r.Count},
		{"Gini (views)", fmt.Sprintf("%.3f", r.Gini)},
		{"Top 10 view share", percent(r.Concentration.Top10Share)},
		{"Top 20 view share", percent(r.Concentration.Top20Share)},
		{"Bottom 50 view share", percent(r.Concentration.Bottom50Share)},
	})
	if q := r.Quartiles; q != nil {
		t.AppendRow(table.Row{"Subscriber quartiles", fmt.Sprintf("%s / %s / %s", Count(q.Q1), Count(q.Q2), Count(q.Q3))})
	} else {
		t.AppendRow(table.Row{"Subscriber quartiles", "n/a"})
	}
	t.Render()
}

func renderDistribution(w io.Writer, s analytics.Stats) {
	t := NewTable(w, "Distribution")
	t.AppendHeader(table.Row{"Field", "Mean", "Median"})
	t.AppendRows([]table.Row{
		{"Subscribers", Count(s.Subscribers.Mean), Count(s.Subscribers.Median)},
		{"Total views", Count(s.Views.Mean), Count(s.Views.Median)},
		{"Videos", Count(s.Videos.Mean), Count(s.Videos.Median)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	t.Render()
}

func renderRegression(w io.Writer, reg analytics.Regression) {
	t := NewTable(w, "log10(views per video) ~ log10(videos)")
	t.AppendHeader(table.Row{"Statistic", "Value"})
	if !reg.Available {
		t.AppendRow(table.Row{"Pairs", reg.N})
		t.AppendRow(table.Row{"Fit", "n/a (fewer than 2 pairs)"})
		t.Render()
		return
	}
	t.AppendRows([]table.Row{
		{"Pairs", reg.N},
		{"Slope", fmt.Sprintf("%.4f", reg.Slope)},
		{"Intercept", fmt.Sprintf("%.4f", reg.Intercept)},
		{"Correlation", fmt.Sprintf("%.4f", reg.Correlation)},
		{"R²", fmt.Sprintf("%.4f", reg.RSquared)},
		{"MAE (log)", fmt.Sprintf("%.4f", reg.MAE)},
		{"p-value", fmt.Sprintf("%.4g", reg.PValue)},
	})
	t.Render()
}

func renderCounts(w io.Writer, r analytics.Report) {
	t := NewTable(w, "Segments and quadrants")
	t.AppendHeader(table.Row{"Group", "Label", "Channels"})
	for _, s := range []analytics.Segment{analytics.SegmentMicro, analytics.SegmentMid, analytics.SegmentLarge, analytics.SegmentMega} {
		t.AppendRow(table.Row{"Segment", string(s), r.SegmentCounts[s]})
	}
	t.AppendSeparator()
	for _, q := range []analytics.Quadrant{
		analytics.QuadrantTopPerformer,
		analytics.QuadrantSniper,
		analytics.QuadrantMassPublisher,
		analytics.QuadrantLowPerformer,
	} {
		t.AppendRow(table.Row{"Quadrant", string(q), r.QuadrantCounts[q]})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})
	t.Render()
}

func renderEntities(w io.Writer, entities []analytics.Entity) {
	entities = slices.Clone(entities)
	slices.SortStableFunc(entities, func(a, b analytics.Entity) int { return a.Rank - b.Rank })

	t := NewTable(w, "Top channels")
	t.AppendHeader(table.Row{"#", "Channel", "Subscribers", "Views", "Videos", "Views/video", "Segment", "Quadrant", "Est. revenue"})
	for _, e := range entities {
		t.AppendRow(table.Row{
			e.Rank,
			e.Name,
			CountPtr(e.Subscribers),
			CountPtr(e.TotalViews),
			CountPtr(e.Videos),
			Count(e.ViewsPerVideo),
			dash(string(e.Segment)),
			string(e.Quadrant),
			money(e.EstimatedRevenue),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})
	t.Render()
}

// Count abbreviates v with a K/M/B suffix, the inverse of the listing format.
func Count(v float64) string {
	abs := v
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e9:
		return strconv.FormatFloat(v/1e9, 'f', 2, 64) + "B"
	case abs >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', 2, 64) + "M"
	case abs >= 1e3:
		return strconv.FormatFloat(v/1e3, 'f', 2, 64) + "K"
	default:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}

// CountPtr is Count for nullable counts; nil renders as a dash.
func CountPtr(v *int64) string {
	if v == nil {
		return "-"
	}
	return Count(float64(*v))
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}

func money(v *float64) string {
	if v == nil {
		return "-"
	}
	return "$" + Count(*v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
