package decision

import (
	"fmt"

	"github.com/thatsimonsguy/heater-controller/internal/model"
)

type Input struct {
	Temperature    *float64
	Humidity       *float64
	SmoothedWindow *float64
	Thresholds     model.Thresholds
	Last           model.HeaterState
}

// WindowOpen treats an unknown window as open so that no heating is commanded on it.
func (in Input) WindowOpen() bool {
	return in.SmoothedWindow == nil || *in.SmoothedWindow >= in.Thresholds.OpenWindowDistance
}

// Notice is an operator notification raised by an Alert-mode direction.
type Notice struct {
	WindowOpen bool
	Title      string
	Message    string
}

type Outcome struct {
	WindowOpen bool
	Decision   *Result
	Candidates []Result
	Notices    []Notice
}

type Coordinator struct {
	Engine Engine
}

// Coordinate evaluates the direction selected by the window state. Automatic and Alert
// act only in that direction. Smart runs the engine once: an ON is eligible only while
// the window is closed under autoOnMode=Smart, an OFF is eligible whenever
// autoOffMode=Smart. Competing candidates resolve to OFF.
func (c Coordinator) Coordinate(in Input, s model.Settings) Outcome {
	out := Outcome{WindowOpen: in.WindowOpen()}

	direction, mode := model.CommandOn, s.AutoOnMode
	if out.WindowOpen {
		direction, mode = model.CommandOff, s.AutoOffMode
	}

	switch mode {
	case model.ModeAutomatic:
		reason := ReasonAutomaticOn
		if direction == model.CommandOff {
			reason = ReasonAutomaticOff
		}
		out.Candidates = append(out.Candidates, Result{direction, reason})
	case model.ModeAlert:
		out.Notices = append(out.Notices, windowNotice(in))
	}

	if s.AutoOffMode == model.ModeSmart || s.AutoOnMode == model.ModeSmart {
		r := c.Engine.Decide(in.Temperature, in.Humidity, in.SmoothedWindow, in.Thresholds, in.Last)
		switch {
		case r.Command == model.CommandOff && s.AutoOffMode == model.ModeSmart:
			out.Candidates = append(out.Candidates, r)
		case r.Command == model.CommandOn && s.AutoOnMode == model.ModeSmart && !out.WindowOpen:
			out.Candidates = append(out.Candidates, r)
		}
	}

	out.Decision = resolve(out.Candidates)
	return out
}

func resolve(candidates []Result) *Result {
	var on *Result
	for i := range candidates {
		if candidates[i].Command == model.CommandOff {
			r := candidates[i]
			return &r
		}
		if on == nil {
			on = &candidates[i]
		}
	}
	if on == nil {
		return nil
	}
	r := *on
	return &r
}

func windowNotice(in Input) Notice {
	switch {
	case in.SmoothedWindow == nil:
		return Notice{
			WindowOpen: true,
			Title:      "Window state unknown",
			Message:    "No window reading available. Heater NOT auto-turned off (Alert mode).",
		}
	case *in.SmoothedWindow >= in.Thresholds.OpenWindowDistance:
		return Notice{
			WindowOpen: true,
			Title:      "Window open",
			Message: fmt.Sprintf("Window appears open (%.1f >= %.1f). Heater NOT auto-turned off (Alert mode).",
				*in.SmoothedWindow, in.Thresholds.OpenWindowDistance),
		}
	default:
		return Notice{
			WindowOpen: false,
			Title:      "Window shut",
			Message: fmt.Sprintf("Window appears shut (%.1f < %.1f). Heater NOT auto-turned on (Alert mode).",
				*in.SmoothedWindow, in.Thresholds.OpenWindowDistance),
		}
	}
}
