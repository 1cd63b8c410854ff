package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidMode    = errors.New("invalid mode")
	ErrInvalidCommand = errors.New("invalid command")
	ErrInvalidToggle  = errors.New("invalid toggle")
)

type Mode string

const (
	ModeAutomatic Mode = "Automatic"
	ModeSmart     Mode = "Smart"
	ModeAlert     Mode = "Alert"
	ModeOff       Mode = "Off"
)

// ParseMode accepts the exact mode names only.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAutomatic, ModeSmart, ModeAlert, ModeOff:
		return m, nil
	default:
		return "", fmt.Errorf("%w %q: must be Automatic, Smart, Alert, or Off", ErrInvalidMode, s)
	}
}

type Command string

const (
	CommandOn  Command = "ON"
	CommandOff Command = "OFF"
)

// ParseCommand trims and upper-cases s before matching ON/OFF.
func ParseCommand(s string) (Command, error) {
	switch c := Command(strings.ToUpper(strings.TrimSpace(s))); c {
	case CommandOn, CommandOff:
		return c, nil
	default:
		return "", fmt.Errorf("%w %q: must be ON or OFF", ErrInvalidCommand, s)
	}
}

type HeaterState string

const (
	HeaterOn      HeaterState = "ON"
	HeaterOff     HeaterState = "OFF"
	HeaterUnknown HeaterState = "unknown"
)

func (c Command) State() HeaterState {
	return HeaterState(c)
}

type SensorReading struct {
	Timestamp   time.Time
	Temperature *float64
	Humidity    *float64
	Window      *float64
	CO2         *float64
	TVOC        *float64
}

type Thresholds struct {
	ColdTemp           float64 `json:"cold_temp"`
	DryHumidity        float64 `json:"dry_humidity"`
	OpenWindowDistance float64 `json:"open_window_distance"`
}

type HistoryRow struct {
	Temperature float64
	Humidity    float64
	Window      float64
}

type Settings struct {
	AutoOffMode        Mode `json:"autoOffMode"`
	AutoOnMode         Mode `json:"autoOnMode"`
	HealthAlertEnabled bool `json:"healthAlertEnabled"`
}

func DefaultSettings() Settings {
	return Settings{
		AutoOffMode:        ModeAutomatic,
		AutoOnMode:         ModeAutomatic,
		HealthAlertEnabled: false,
	}
}

// SettingsPatch is the wire form of a partial settings update.
type SettingsPatch struct {
	AutoOffMode        *string `json:"autoOffMode,omitempty"`
	AutoOnMode         *string `json:"autoOnMode,omitempty"`
	HealthAlertEnabled *string `json:"healthAlertEnabled,omitempty"`
}

// Apply validates every field of p before touching s, so a rejected patch leaves s unchanged.
func (p SettingsPatch) Apply(s Settings) (Settings, error) {
	out := s
	if p.AutoOffMode != nil {
		m, err := ParseMode(*p.AutoOffMode)
		if err != nil {
			return s, fmt.Errorf("autoOffMode: %w", err)
		}
		out.AutoOffMode = m
	}
	if p.AutoOnMode != nil {
		m, err := ParseMode(*p.AutoOnMode)
		if err != nil {
			return s, fmt.Errorf("autoOnMode: %w", err)
		}
		out.AutoOnMode = m
	}
	if p.HealthAlertEnabled != nil {
		on, err := ParseToggle(*p.HealthAlertEnabled)
		if err != nil {
			return s, fmt.Errorf("healthAlertEnabled: %w", err)
		}
		out.HealthAlertEnabled = on
	}
	return out, nil
}

func ParseToggle(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	default:
		return false, fmt.Errorf("%w %q: must be ON or OFF", ErrInvalidToggle, s)
	}
}

// NumericValue coerces JSON numbers, numeric strings and sqlite column values to a
// finite float64. Anything else reports false.
func NumericValue(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case interface{ Float64() (float64, error) }:
		var err error
		if f, err = x.Float64(); err != nil {
			return 0, false
		}
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(x), 64); err != nil {
			return 0, false
		}
	case []byte:
		return NumericValue(string(x))
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func Float(f float64) *float64 {
	return &f
}
