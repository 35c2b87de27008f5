// Package stats computes the daily aggregate of a run.
package stats

import "sort"

// Deciles is the number of intervals used for the day's quantiles.
const Deciles = 10

// Quantiles returns the n-1 cut points dividing data into n intervals using
// the exclusive method: positions are taken on (len+1) and values outside
// the sample range are extrapolated linearly from the two nearest points.
// Fewer than two data points, or n < 2, yield an empty (non-nil) slice.
// data is not modified.
func Quantiles(data []float64, n int) []float64 {
	ld := len(data)
	if ld < 2 || n < 2 {
		return []float64{}
	}

	sorted := make([]float64, ld)
	copy(sorted, data)
	sort.Float64s(sorted)

	m := ld + 1
	result := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		j := i * m / n
		if j < 1 {
			j = 1
		} else if j > ld-1 {
			j = ld - 1
		}
		delta := i*m - j*n
		result = append(result, (sorted[j-1]*float64(n-delta)+sorted[j]*float64(delta))/float64(n))
	}
	return result
}
