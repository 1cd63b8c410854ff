// Package failsafe turns the heater off when the sensor box goes quiet.
package failsafe

import (
	"time"

	"github.com/thatsimonsguy/heater-controller/internal/model"
)

const (
	ReasonStale = "sensor data stale"
	NoticeTitle = "Sensor offline"
)

type Action struct {
	TurnOff bool
	Notify  bool
	Stale   bool
}

// Evaluate decides what to do given the time of the last processed reading. A heater
// that is not known to be OFF is switched off once readings are older than staleAfter.
// notified reports whether the current stale episode was already announced.
func Evaluate(lastReading, startedAt, now time.Time, staleAfter time.Duration, heater model.HeaterState, notified bool) Action {
	if staleAfter <= 0 {
		return Action{}
	}
	since := lastReading
	if since.IsZero() {
		since = startedAt
	}
	if now.Sub(since) < staleAfter {
		return Action{}
	}
	return Action{
		Stale:   true,
		TurnOff: heater != model.HeaterOff,
		Notify:  !notified,
	}
}
