package state

import (
	"sync"
	"time"

	"github.com/thatsimonsguy/heater-controller/internal/model"
)

// State owns the settings, the last published heater command and the alert timers.
// Every accessor takes the one mutex and releases it before returning.
type State struct {
	mu sync.Mutex

	settings      model.Settings
	heater        model.HeaterState
	heaterSource  string
	heaterChanged time.Time

	lastAlertAt time.Time

	lastNoticeAt   time.Time
	lastNoticeOpen bool
}

type Snapshot struct {
	Settings      model.Settings    `json:"settings"`
	Heater        model.HeaterState `json:"heater"`
	HeaterSource  string            `json:"heater_source,omitempty"`
	HeaterChanged time.Time         `json:"heater_changed,omitempty"`
	LastAlertAt   time.Time         `json:"last_alert_at,omitempty"`
}

func New(initial model.Settings) *State {
	return &State{
		settings: initial,
		heater:   model.HeaterUnknown,
	}
}

func (s *State) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// ApplyPatch validates the whole patch first; on error the settings are unchanged.
func (s *State) ApplyPatch(p model.SettingsPatch) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := p.Apply(s.settings)
	if err != nil {
		return s.settings, err
	}
	s.settings = updated
	return updated, nil
}

func (s *State) Heater() model.HeaterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heater
}

// SwapHeater records cmd as published unless it already is. It returns the previous
// state and whether a change happened; the caller must emit only when changed.
func (s *State) SwapHeater(cmd model.Command, source string, now time.Time) (model.HeaterState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.heater
	if prev == cmd.State() {
		return prev, false
	}
	s.heater = cmd.State()
	s.heaterSource = source
	s.heaterChanged = now
	return prev, true
}

// RevertHeater undoes a SwapHeater whose emission failed, unless another writer has
// changed the state in between.
func (s *State) RevertHeater(cmd model.Command, prev model.HeaterState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.heater != cmd.State() {
		return false
	}
	s.heater = prev
	return true
}

// ObserveHeater records an externally reported heater state without publishing.
func (s *State) ObserveHeater(cmd model.Command, source string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.heater != cmd.State() {
		s.heaterChanged = now
	}
	s.heater = cmd.State()
	s.heaterSource = source
}

// TryFireAlert reports whether the health alert may fire at now and, if so, marks it fired.
// The alert stays suppressed until strictly more than cooldown has passed.
func (s *State) TryFireAlert(now time.Time, cooldown time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastAlertAt.IsZero() && now.Sub(s.lastAlertAt) <= cooldown {
		return false
	}
	s.lastAlertAt = now
	return true
}

// TryWindowNotice rate-limits Alert-mode window notices: a change of reported window
// state always passes, a repeat passes once the cooldown has elapsed.
func (s *State) TryWindowNotice(open bool, now time.Time, cooldown time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastNoticeAt.IsZero() && s.lastNoticeOpen == open && now.Sub(s.lastNoticeAt) < cooldown {
		return false
	}
	s.lastNoticeAt = now
	s.lastNoticeOpen = open
	return true
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Settings:      s.settings,
		Heater:        s.heater,
		HeaterSource:  s.heaterSource,
		HeaterChanged: s.heaterChanged,
		LastAlertAt:   s.lastAlertAt,
	}
}
