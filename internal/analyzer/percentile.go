package analyzer

import "sort"

// NearestRankPercentile computes the p-th percentile (0 < p <= 100) of
// values using the nearest-rank method: sort ascending, then take the
// value at rank ceil(p/100 * n), 1-indexed.
func NearestRankPercentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := int(ceilDiv(p*float64(len(sorted)), 100))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func ceilDiv(numerator, denominator float64) float64 {
	v := numerator / denominator
	if v == float64(int64(v)) {
		return v
	}
	return float64(int64(v)) + 1
}
