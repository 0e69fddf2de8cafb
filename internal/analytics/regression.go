package analytics

import (
	"math"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
)

// Regression is a least-squares fit of log10(views per video) on
// log10(videos). With fewer than two pairs Available is false and every
// statistic is zero.
type Regression struct {
	Available   bool    `json:"available"`
	N           int     `json:"n"`
	Slope       float64 `json:"slope"`
	Intercept   float64 `json:"intercept"`
	Correlation float64 `json:"correlation"`
	RSquared    float64 `json:"r_squared"`
	MAE         float64 `json:"mae"`
	// PValue is a two-sided normal approximation of the t statistic.
	PValue float64 `json:"p_value"`
}

func regress(snapshots []channel.Snapshot, eps float64) Regression {
	var xs, ys []float64
	for _, s := range snapshots {
		if s.Videos == nil || s.TotalViews == nil {
			continue
		}
		xs = append(xs, math.Log10(float64(*s.Videos)+eps))
		ys = append(ys, math.Log10(ratio(s.TotalViews, s.Videos)+eps))
	}
	return Fit(xs, ys)
}

// Fit regresses ys on xs. Slices must be the same length.
func Fit(xs, ys []float64) Regression {
	n := len(xs)
	if n < 2 || len(ys) != n {
		return Regression{N: n}
	}
	mx, my := mean(xs), mean(ys)
	var sxx, syy, sxy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}

	r := Regression{Available: true, N: n, Intercept: my}
	if sxx > 0 {
		r.Slope = sxy / sxx
		r.Intercept = my - r.Slope*mx
	}
	if sxx > 0 && syy > 0 {
		r.Correlation = sxy / math.Sqrt(sxx*syy)
	}

	var ssRes, absErr float64
	for i := range xs {
		resid := ys[i] - (r.Intercept + r.Slope*xs[i])
		ssRes += resid * resid
		absErr += math.Abs(resid)
	}
	if syy > 0 {
		r.RSquared = 1 - ssRes/syy
	}
	r.MAE = absErr / float64(n)
	r.PValue = pValue(r.Correlation, n)
	return r
}

func pValue(corr float64, n int) float64 {
	if n <= 2 {
		return 1
	}
	if math.Abs(corr) >= 1 {
		return 0
	}
	t := corr * math.Sqrt(float64(n-2)/(1-corr*corr))
	return math.Erfc(math.Abs(t) / math.Sqrt2)
}
