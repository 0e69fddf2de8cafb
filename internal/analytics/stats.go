package analytics

import (
	"math"
	"slices"
)

func distribution(values []float64) Distribution {
	return Distribution{Mean: mean(values), Median: median(values)}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	return quantile(sorted(values), 0.5)
}

// quantile interpolates linearly between the closest ranks of an ascending
// slice, the same definition spreadsheets and numpy use by default.
func quantile(asc []float64, p float64) float64 {
	switch len(asc) {
	case 0:
		return 0
	case 1:
		return asc[0]
	}
	h := float64(len(asc)-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(asc) {
		return asc[len(asc)-1]
	}
	return asc[i] + (h-lo)*(asc[i+1]-asc[i])
}

// segmentQuartiles returns Q1..Q3 when at least four distinct values exist.
func segmentQuartiles(values []float64) (Quartiles, bool) {
	asc := sorted(values)
	if len(slices.Compact(slices.Clone(asc))) < 4 {
		return Quartiles{}, false
	}
	return Quartiles{
		Q1: quantile(asc, 0.25),
		Q2: quantile(asc, 0.5),
		Q3: quantile(asc, 0.75),
	}, true
}

func sorted(values []float64) []float64 {
	out := slices.Clone(values)
	slices.Sort(out)
	return out
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
