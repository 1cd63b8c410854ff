package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/heater-controller/internal/adaptive"
	"github.com/thatsimonsguy/heater-controller/internal/decision"
	"github.com/thatsimonsguy/heater-controller/internal/model"
	"github.com/thatsimonsguy/heater-controller/internal/mqtt"
	"github.com/thatsimonsguy/heater-controller/internal/notifications"
)

type Thresholds struct {
	DefaultColdTemp    float64 `json:"default_cold_temp"`
	DefaultDryHumidity float64 `json:"default_dry_humidity"`
	OpenWindowDistance float64 `json:"open_window_distance"`
	HysteresisOffset   float64 `json:"hysteresis_offset"`
	MinHistoryRows     int     `json:"min_history_rows"`
	HistoryMinutes     int     `json:"history_minutes"`
	WindowSamples      int     `json:"window_samples"`
}

type Health struct {
	TempLow         float64 `json:"temp_low"`
	TempHigh        float64 `json:"temp_high"`
	HumidityLow     float64 `json:"humidity_low"`
	HumidityHigh    float64 `json:"humidity_high"`
	CooldownMinutes int     `json:"cooldown_minutes"`
}

type Notifications struct {
	NtfyURL   string                      `json:"ntfy_url"`
	NtfyTopic string                      `json:"ntfy_topic"`
	Mailgun   notifications.MailgunConfig `json:"mailgun"`
	QueueSize int                         `json:"queue_size"`
}

type Datadog struct {
	Enabled   bool     `json:"enabled"`
	AgentAddr string   `json:"agent_addr"`
	Namespace string   `json:"namespace"`
	Tags      []string `json:"tags"`
}

type Settings struct {
	AutoOffMode        string `json:"auto_off_mode"`
	AutoOnMode         string `json:"auto_on_mode"`
	HealthAlertEnabled bool   `json:"health_alert_enabled"`
}

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level
	LogFile    string

	MQTT         mqtt.Config `json:"mqtt"`
	APIPort      int         `json:"api_port"`
	DBPath       string      `json:"db_path"`
	SettingsFile string      `json:"settings_file"`

	Thresholds    Thresholds    `json:"thresholds"`
	Health        Health        `json:"health"`
	Notifications Notifications `json:"notifications"`
	Datadog       Datadog       `json:"datadog"`
	Settings      Settings      `json:"settings"`

	ReadingQueueSize      int  `json:"reading_queue_size"`
	HistoryQueryTimeoutMs int  `json:"history_query_timeout_ms"`
	RetentionDays         int  `json:"retention_days"`
	HeaterOffOnShutdown   bool `json:"heater_off_on_shutdown"`
	StaleAfterMinutes     int  `json:"stale_after_minutes"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFile, "log-file", "", "Also write logs to this file")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) applyDefaults() {
	setString(&cfg.MQTT.Broker, "tcp://localhost:1883")
	setString(&cfg.MQTT.ClientID, "heater-controller")
	setString(&cfg.MQTT.SensorTopic, mqtt.DefaultSensorTopic)
	setString(&cfg.MQTT.HeaterTopic, mqtt.DefaultHeaterTopic)
	setString(&cfg.MQTT.AlertTopic, mqtt.DefaultAlertTopic)
	setString(&cfg.DBPath, "data/sensor.db")
	setString(&cfg.SettingsFile, "data/settings.json")
	setInt(&cfg.APIPort, 5000)

	t := &cfg.Thresholds
	setFloat(&t.DefaultColdTemp, adaptive.DefaultColdTemp)
	setFloat(&t.DefaultDryHumidity, adaptive.DefaultDryHumidity)
	setFloat(&t.OpenWindowDistance, adaptive.DefaultOpenWindowDistance)
	setFloat(&t.HysteresisOffset, decision.DefaultHysteresisOffset)
	setInt(&t.MinHistoryRows, adaptive.DefaultMinRows)
	setInt(&t.HistoryMinutes, 30)
	setInt(&t.WindowSamples, adaptive.DefaultSmoothingSamples)

	h := &cfg.Health
	setFloat(&h.TempLow, 16.0)
	setFloat(&h.TempHigh, 28.0)
	setFloat(&h.HumidityLow, 30.0)
	setFloat(&h.HumidityHigh, 70.0)
	setInt(&h.CooldownMinutes, 15)

	setString(&cfg.Notifications.NtfyURL, notifications.DefaultNtfyURL)
	setInt(&cfg.Notifications.QueueSize, 16)

	setString(&cfg.Datadog.AgentAddr, "127.0.0.1:8125")
	setString(&cfg.Datadog.Namespace, "heater.")

	setString(&cfg.Settings.AutoOffMode, string(model.ModeAutomatic))
	setString(&cfg.Settings.AutoOnMode, string(model.ModeAutomatic))

	setInt(&cfg.ReadingQueueSize, 32)
	setInt(&cfg.HistoryQueryTimeoutMs, 2000)
	setInt(&cfg.RetentionDays, 7)
	setInt(&cfg.StaleAfterMinutes, 10)
}

func (cfg *Config) validate() {
	var problems []string

	if _, err := model.ParseMode(cfg.Settings.AutoOffMode); err != nil {
		problems = append(problems, "settings.auto_off_mode: "+err.Error())
	}
	if _, err := model.ParseMode(cfg.Settings.AutoOnMode); err != nil {
		problems = append(problems, "settings.auto_on_mode: "+err.Error())
	}
	if cfg.Health.TempLow >= cfg.Health.TempHigh {
		problems = append(problems, fmt.Sprintf("health.temp_low %.1f must be below health.temp_high %.1f", cfg.Health.TempLow, cfg.Health.TempHigh))
	}
	if cfg.Health.HumidityLow >= cfg.Health.HumidityHigh {
		problems = append(problems, fmt.Sprintf("health.humidity_low %.1f must be below health.humidity_high %.1f", cfg.Health.HumidityLow, cfg.Health.HumidityHigh))
	}

	positive := map[string]int{
		"api_port":                    cfg.APIPort,
		"reading_queue_size":          cfg.ReadingQueueSize,
		"history_query_timeout_ms":    cfg.HistoryQueryTimeoutMs,
		"retention_days":              cfg.RetentionDays,
		"thresholds.min_history_rows": cfg.Thresholds.MinHistoryRows,
		"thresholds.history_minutes":  cfg.Thresholds.HistoryMinutes,
		"thresholds.window_samples":   cfg.Thresholds.WindowSamples,
		"health.cooldown_minutes":     cfg.Health.CooldownMinutes,
		"notifications.queue_size":    cfg.Notifications.QueueSize,
	}
	for name, v := range positive {
		if v <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got %d", name, v))
		}
	}
	if cfg.Thresholds.OpenWindowDistance <= 0 {
		problems = append(problems, "thresholds.open_window_distance must be positive")
	}
	if cfg.Thresholds.HysteresisOffset < 0 {
		problems = append(problems, "thresholds.hysteresis_offset must not be negative")
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}

// InitialSettings are the settings the controller starts with.
func (cfg Config) InitialSettings() model.Settings {
	return model.Settings{
		AutoOffMode:        model.Mode(cfg.Settings.AutoOffMode),
		AutoOnMode:         model.Mode(cfg.Settings.AutoOnMode),
		HealthAlertEnabled: cfg.Settings.HealthAlertEnabled,
	}
}

func (cfg Config) ThresholdDefaults() adaptive.Defaults {
	return adaptive.Defaults{
		ColdTemp:           cfg.Thresholds.DefaultColdTemp,
		DryHumidity:        cfg.Thresholds.DefaultDryHumidity,
		OpenWindowDistance: cfg.Thresholds.OpenWindowDistance,
		MinRows:            cfg.Thresholds.MinHistoryRows,
	}
}

func (cfg Config) HistoryWindow() time.Duration {
	return time.Duration(cfg.Thresholds.HistoryMinutes) * time.Minute
}

func (cfg Config) HistoryQueryTimeout() time.Duration {
	return time.Duration(cfg.HistoryQueryTimeoutMs) * time.Millisecond
}

func (cfg Config) AlertCooldown() time.Duration {
	return time.Duration(cfg.Health.CooldownMinutes) * time.Minute
}

// StaleAfter is zero, disabling the watchdog, when stale_after_minutes is negative.
func (cfg Config) StaleAfter() time.Duration {
	if cfg.StaleAfterMinutes < 0 {
		return 0
	}
	return time.Duration(cfg.StaleAfterMinutes) * time.Minute
}

func (cfg Config) Retention() time.Duration {
	return time.Duration(cfg.RetentionDays) * 24 * time.Hour
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}
