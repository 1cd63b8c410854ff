package adaptive

import (
	"math"
	"sort"
)

const DefaultSmoothingSamples = 10

// SmoothWindow reduces recent window-distance samples (most recent first) to one value.
// Three or more samples give a trimmed mean (single min and max dropped), one or two give
// a plain mean, and none falls back to the current reading. An absent current reading
// stays absent.
func SmoothWindow(samples []float64, current *float64) *float64 {
	if current == nil {
		return nil
	}

	valid := make([]float64, 0, len(samples))
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		valid = append(valid, s)
	}

	switch {
	case len(valid) == 0:
		v := *current
		return &v
	case len(valid) < 3:
		v := mean(valid)
		return &v
	}

	sort.Float64s(valid)
	v := mean(valid[1 : len(valid)-1])
	return &v
}
