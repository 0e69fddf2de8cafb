package analytics

import (
	"slices"
)

// Lorenz holds cumulative population share (X) against cumulative value
// share (Y). Both start at 0 and end at 1 when any positive value exists.
type Lorenz struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// Concentration is the percentage of total views held by the largest and
// smallest channels.
type Concentration struct {
	Top10Share    float64 `json:"top10_share"`
	Top20Share    float64 `json:"top20_share"`
	Bottom50Share float64 `json:"bottom50_share"`
}

// cumulativeShares filters values to positives, sorts ascending, and returns
// C_i/total for each prefix.
func cumulativeShares(values []float64) []float64 {
	pos := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			pos = append(pos, v)
		}
	}
	slices.Sort(pos)

	shares := make([]float64, len(pos))
	var running float64
	for i, v := range pos {
		running += v
		shares[i] = running
	}
	for i := range shares {
		shares[i] /= running
	}
	return shares
}

// Gini measures inequality of values on [0,1) with the trapezoid rule over
// the Lorenz curve, rounded to three decimals. Empty or non-positive input
// yields 0.
func Gini(values []float64) float64 {
	shares := cumulativeShares(values)
	n := float64(len(shares))
	if n == 0 {
		return 0
	}
	var sum float64
	for _, s := range shares {
		sum += s
	}
	g := (n + 1 - 2*sum) / n
	if g < 0 {
		g = 0
	}
	return round(g, 3)
}

// LorenzCurve samples the curve at every population step i/n.
func LorenzCurve(values []float64) Lorenz {
	shares := cumulativeShares(values)
	n := len(shares)
	curve := Lorenz{X: make([]float64, n+1), Y: make([]float64, n+1)}
	for i := 1; i <= n; i++ {
		curve.X[i] = float64(i) / float64(n)
		curve.Y[i] = shares[i-1]
	}
	if n > 0 {
		curve.X[n], curve.Y[n] = 1, 1
	}
	return curve
}

// Concentrate computes top-10, top-20, and bottom-50 view shares as
// percentages rounded to two decimals.
func Concentrate(values []float64) Concentration {
	desc := sorted(values)
	slices.Reverse(desc)

	var total float64
	for _, v := range desc {
		total += v
	}
	if total <= 0 {
		return Concentration{}
	}
	share := func(vs []float64) float64 {
		var sum float64
		for _, v := range vs {
			sum += v
		}
		return round(sum/total*100, 2)
	}
	return Concentration{
		Top10Share:    share(desc[:min(10, len(desc))]),
		Top20Share:    share(desc[:min(20, len(desc))]),
		Bottom50Share: share(desc[len(desc)-min(50, len(desc)):]),
	}
}
