package decision

import "github.com/thatsimonsguy/heater-controller/internal/model"

const DefaultHysteresisOffset = 3.0

const (
	ReasonNoWindowData   = "no window data"
	ReasonWindowOpen     = "window open"
	ReasonMissingData    = "missing temperature/humidity data"
	ReasonBelowCold      = "below adaptive cold threshold"
	ReasonTooDry         = "air too dry to recommend heating"
	ReasonHysteresis     = "within hysteresis band"
	ReasonComfortable    = "temperature comfortable"
	ReasonAutomaticOff   = "window open, automatic OFF"
	ReasonAutomaticOn    = "window closed, automatic ON"
	ReasonManualOverride = "manual override"
)

type Result struct {
	Command model.Command `json:"command"`
	Reason  string        `json:"reason"`
}

// Engine maps sensor values to a heater command. It holds no state of its own;
// the previous heater state is passed in explicitly.
type Engine struct {
	HysteresisOffset float64
}

func (e Engine) Decide(temp, hum, window *float64, th model.Thresholds, last model.HeaterState) Result {
	if window == nil {
		return Result{model.CommandOff, ReasonNoWindowData}
	}
	if *window >= th.OpenWindowDistance {
		return Result{model.CommandOff, ReasonWindowOpen}
	}
	if temp == nil || hum == nil {
		return Result{model.CommandOff, ReasonMissingData}
	}

	t, h := *temp, *hum
	cold := t < th.ColdTemp
	humid := h >= th.DryHumidity

	switch {
	case cold && humid:
		return Result{model.CommandOn, ReasonBelowCold}
	case cold:
		return Result{model.CommandOff, ReasonTooDry}
	case last == model.HeaterOn && humid && t < th.ColdTemp+e.HysteresisOffset:
		return Result{model.CommandOn, ReasonHysteresis}
	}
	return Result{model.CommandOff, ReasonComfortable}
}
