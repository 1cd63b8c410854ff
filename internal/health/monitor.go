package health

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/heater-controller/internal/notifications"
	"github.com/thatsimonsguy/heater-controller/internal/state"
)

const AlertTitle = "Health alert: open window"

type Limits struct {
	TempLow  float64
	TempHigh float64
	HumLow   float64
	HumHigh  float64
	Cooldown time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		TempLow:  16.0,
		TempHigh: 28.0,
		HumLow:   30.0,
		HumHigh:  70.0,
		Cooldown: 15 * time.Minute,
	}
}

// Monitor suggests opening a window when the closed room is too hot, too cold,
// too dry or too humid.
type Monitor struct {
	Limits   Limits
	State    *state.State
	Notifier notifications.Notifier
}

// Check fires the alert if it is enabled, the window is closed, a metric is out of
// range and the cooldown has elapsed. It reports whether an alert was sent.
func (m *Monitor) Check(enabled bool, temp, hum *float64, windowOpen bool, now time.Time) bool {
	if !enabled || windowOpen {
		return false
	}

	problems := m.violations(temp, hum)
	if len(problems) == 0 {
		return false
	}

	if !m.State.TryFireAlert(now, m.Limits.Cooldown) {
		log.Debug().Strs("problems", problems).Msg("Health alert suppressed by cooldown")
		return false
	}

	msg := strings.Join(problems, " / ") + ". Consider opening a window to improve comfort/air."
	if err := m.Notifier.Send(AlertTitle, msg); err != nil {
		log.Error().Err(err).Msg("Failed to send health alert")
	}
	log.Info().Strs("problems", problems).Msg("Health alert fired")
	return true
}

func (m *Monitor) violations(temp, hum *float64) []string {
	var out []string
	l := m.Limits
	if temp != nil {
		switch {
		case *temp < l.TempLow:
			out = append(out, fmt.Sprintf("Temp=%.1f°C below %.1f°C", *temp, l.TempLow))
		case *temp > l.TempHigh:
			out = append(out, fmt.Sprintf("Temp=%.1f°C above %.1f°C", *temp, l.TempHigh))
		}
	}
	if hum != nil {
		switch {
		case *hum < l.HumLow:
			out = append(out, fmt.Sprintf("Humidity=%.1f%% below %.1f%%", *hum, l.HumLow))
		case *hum > l.HumHigh:
			out = append(out, fmt.Sprintf("Humidity=%.1f%% above %.1f%%", *hum, l.HumHigh))
		}
	}
	return out
}
