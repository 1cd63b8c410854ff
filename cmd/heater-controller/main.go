package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/heater-controller/db"
	"github.com/thatsimonsguy/heater-controller/internal/api"
	"github.com/thatsimonsguy/heater-controller/internal/config"
	"github.com/thatsimonsguy/heater-controller/internal/controller"
	"github.com/thatsimonsguy/heater-controller/internal/datadog"
	"github.com/thatsimonsguy/heater-controller/internal/decision"
	"github.com/thatsimonsguy/heater-controller/internal/health"
	"github.com/thatsimonsguy/heater-controller/internal/heater"
	"github.com/thatsimonsguy/heater-controller/internal/logging"
	"github.com/thatsimonsguy/heater-controller/internal/model"
	"github.com/thatsimonsguy/heater-controller/internal/mqtt"
	"github.com/thatsimonsguy/heater-controller/internal/notifications"
	"github.com/thatsimonsguy/heater-controller/internal/state"
	"github.com/thatsimonsguy/heater-controller/internal/store"
	"github.com/thatsimonsguy/heater-controller/system/shutdown"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("db_path", cfg.DBPath).
		Msg("Starting heater controller")

	if cfg.Datadog.Enabled {
		datadog.InitMetrics(cfg.Datadog.AgentAddr, cfg.Datadog.Namespace, cfg.Datadog.Tags)
		shutdown.Register("datadog", func(context.Context) error {
			datadog.Close()
			return nil
		})
	}

	dbConn, err := db.Open(cfg.DBPath)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to open history database")
		return
	}
	shutdown.Register("db", func(context.Context) error { return dbConn.Close() })
	history := db.NewHistory(dbConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settingsStore := store.New(cfg.SettingsFile)
	st := state.New(loadSettings(cfg, settingsStore))

	client := mqtt.NewClient(cfg.MQTT)
	notifier := buildNotifier(cfg, client)
	async := notifications.NewAsync(notifier, cfg.Notifications.QueueSize)
	notifyCtx, stopNotify := context.WithCancel(context.Background())
	notifyDone := make(chan struct{})
	go func() {
		async.Run(notifyCtx)
		close(notifyDone)
	}()

	gate := heater.NewGate(st, client)
	opts := controller.Options{
		Defaults:           cfg.ThresholdDefaults(),
		HistoryWindow:      cfg.HistoryWindow(),
		WindowSamples:      cfg.Thresholds.WindowSamples,
		QueryTimeout:       cfg.HistoryQueryTimeout(),
		QueueSize:          cfg.ReadingQueueSize,
		NoticeCooldown:     cfg.AlertCooldown(),
		StaleAfter:         cfg.StaleAfter(),
		StaleCheckInterval: time.Minute,
	}
	deps := controller.Deps{
		State:       st,
		History:     history,
		Gate:        gate,
		Coordinator: decision.Coordinator{Engine: decision.Engine{HysteresisOffset: cfg.Thresholds.HysteresisOffset}},
		Monitor: &health.Monitor{
			Limits: health.Limits{
				TempLow:  cfg.Health.TempLow,
				TempHigh: cfg.Health.TempHigh,
				HumLow:   cfg.Health.HumidityLow,
				HumHigh:  cfg.Health.HumidityHigh,
				Cooldown: cfg.AlertCooldown(),
			},
			State:    st,
			Notifier: async,
		},
		Notifier: async,
		Settings: settingsStore,
	}
	if cfg.MQTT.RecommendationTopic != "" {
		deps.Recommender = client
	}
	ctrl := controller.New(opts, deps)

	err = client.Connect(mqtt.Handlers{
		OnReading:    ctrl.Enqueue,
		OnHeaterEcho: ctrl.ObserveHeater,
	})
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to connect to MQTT broker")
		return
	}
	shutdown.Register("mqtt", func(context.Context) error { return client.Close() })
	shutdown.Register("notifications", func(ctx context.Context) error {
		stopNotify()
		select {
		case <-notifyDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	loopDone := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(loopDone)
	}()
	go history.RunPruner(ctx, cfg.Retention(), time.Hour)

	if cfg.HeaterOffOnShutdown {
		shutdown.Register("heater-off", func(context.Context) error {
			_, err := gate.Publish(model.CommandOff, "controller shutdown")
			return err
		})
	}

	server := api.NewServer(ctrl)
	go func() {
		if err := server.Start(cfg.APIPort); err != nil {
			shutdown.ShutdownWithError(err, "API server failed")
		}
	}()
	shutdown.Register("api", server.Shutdown)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	cancel()
	<-loopDone
	shutdown.Shutdown()
}

// loadSettings prefers settings saved by a previous run over the config file.
func loadSettings(cfg config.Config, s *store.Store) model.Settings {
	saved, ok, err := s.Load()
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.SettingsFile).Msg("Ignoring unreadable saved settings")
		return cfg.InitialSettings()
	}
	if !ok {
		return cfg.InitialSettings()
	}
	log.Info().
		Str("auto_off_mode", string(saved.AutoOffMode)).
		Str("auto_on_mode", string(saved.AutoOnMode)).
		Bool("health_alert", saved.HealthAlertEnabled).
		Msg("Restored saved settings")
	return saved
}

func buildNotifier(cfg config.Config, client *mqtt.Client) notifications.Notifier {
	multi := notifications.Multi{client}
	if cfg.Notifications.NtfyTopic != "" {
		multi = append(multi, notifications.NewNtfy(cfg.Notifications.NtfyURL, cfg.Notifications.NtfyTopic))
	} else {
		log.Warn().Msg("Ntfy topic not configured - push notifications disabled")
	}
	if cfg.Notifications.Mailgun.Enabled() {
		multi = append(multi, notifications.NewMailgun(cfg.Notifications.Mailgun))
	}
	if len(multi) == 1 && cfg.MQTT.AlertTopic == "" {
		return notifications.Log{}
	}
	return multi
}
