package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/heater-controller/internal/model"
	"github.com/thatsimonsguy/heater-controller/internal/state"
)

type recorder struct {
	titles   []string
	messages []string
}

func (r *recorder) Send(title, message string) error {
	r.titles = append(r.titles, title)
	r.messages = append(r.messages, message)
	return nil
}

func newMonitor() (*Monitor, *recorder) {
	rec := &recorder{}
	return &Monitor{
		Limits:   DefaultLimits(),
		State:    state.New(model.DefaultSettings()),
		Notifier: rec,
	}, rec
}

func TestCooldown(t *testing.T) {
	m, rec := newMonitor()
	t0 := time.Unix(1_700_000_000, 0)
	hot := model.Float(30)
	ok := model.Float(45)

	assert.True(t, m.Check(true, hot, ok, false, t0))
	for _, s := range []int{1, 60, 450, 899, 900} {
		assert.False(t, m.Check(true, hot, ok, false, t0.Add(time.Duration(s)*time.Second)), "t=%ds", s)
	}
	assert.True(t, m.Check(true, hot, ok, false, t0.Add(901*time.Second)))
	assert.Len(t, rec.messages, 2)
}

func TestCheckConditions(t *testing.T) {
	tests := []struct {
		name       string
		enabled    bool
		temp, hum  *float64
		windowOpen bool
		fires      bool
		contains   []string
		excludes   []string
	}{
		{name: "disabled", enabled: false, temp: model.Float(30), hum: model.Float(50)},
		{name: "window open", enabled: true, temp: model.Float(30), hum: model.Float(50), windowOpen: true},
		{name: "comfortable", enabled: true, temp: model.Float(21), hum: model.Float(45)},
		{name: "boundaries are comfortable", enabled: true, temp: model.Float(16), hum: model.Float(70)},
		{name: "missing data", enabled: true},
		{
			name: "too cold", enabled: true, temp: model.Float(14.3), hum: model.Float(45), fires: true,
			contains: []string{"Temp=14.3°C below 16.0°C"}, excludes: []string{"Humidity"},
		},
		{
			name: "too humid only humidity known", enabled: true, hum: model.Float(80), fires: true,
			contains: []string{"Humidity=80.0% above 70.0%"}, excludes: []string{"Temp"},
		},
		{
			name: "both out of range", enabled: true, temp: model.Float(29), hum: model.Float(20), fires: true,
			contains: []string{"Temp=29.0°C above 28.0°C", "Humidity=20.0% below 30.0%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec := newMonitor()
			fired := m.Check(tt.enabled, tt.temp, tt.hum, tt.windowOpen, time.Unix(1000, 0))
			assert.Equal(t, tt.fires, fired)
			if !tt.fires {
				assert.Empty(t, rec.messages)
				assert.True(t, m.State.Snapshot().LastAlertAt.IsZero())
				return
			}
			require.Len(t, rec.messages, 1)
			assert.Equal(t, AlertTitle, rec.titles[0])
			for _, s := range tt.contains {
				assert.Contains(t, rec.messages[0], s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, rec.messages[0], s)
			}
		})
	}
}
