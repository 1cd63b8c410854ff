// Package adaptive derives decision thresholds and a stable window value from recent history.
package adaptive

import (
	"math"
	"sort"

	"github.com/thatsimonsguy/heater-controller/internal/model"
)

// Defaults are the fallback thresholds used until enough history exists.
type Defaults struct {
	ColdTemp           float64
	DryHumidity        float64
	OpenWindowDistance float64
	MinRows            int
}

const (
	DefaultMinRows            = 20
	DefaultColdTemp           = 18.0
	DefaultDryHumidity        = 30.0
	DefaultOpenWindowDistance = 20.0

	coldTempOffset  = 1.0
	dryHumidityRank = 20.0
)

func (d Defaults) Thresholds() model.Thresholds {
	return model.Thresholds{
		ColdTemp:           d.ColdTemp,
		DryHumidity:        d.DryHumidity,
		OpenWindowDistance: d.OpenWindowDistance,
	}
}

// EstimateThresholds returns the defaults when fewer than MinRows rows are available,
// otherwise the mean temperature minus one degree and the 20th humidity percentile.
// The open-window distance always comes from the defaults.
func EstimateThresholds(rows []model.HistoryRow, d Defaults) model.Thresholds {
	minRows := d.MinRows
	if minRows <= 0 {
		minRows = DefaultMinRows
	}
	if len(rows) < minRows {
		return d.Thresholds()
	}

	temps := make([]float64, 0, len(rows))
	hums := make([]float64, 0, len(rows))
	for _, r := range rows {
		temps = append(temps, r.Temperature)
		hums = append(hums, r.Humidity)
	}

	return model.Thresholds{
		ColdTemp:           round2(mean(temps) - coldTempOffset),
		DryHumidity:        round2(percentile(hums, dryHumidityRank)),
		OpenWindowDistance: d.OpenWindowDistance,
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile uses linear interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
