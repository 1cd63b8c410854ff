package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/heater-controller/internal/adaptive"
	"github.com/thatsimonsguy/heater-controller/internal/datadog"
	"github.com/thatsimonsguy/heater-controller/internal/decision"
	"github.com/thatsimonsguy/heater-controller/internal/failsafe"
	"github.com/thatsimonsguy/heater-controller/internal/health"
	"github.com/thatsimonsguy/heater-controller/internal/heater"
	"github.com/thatsimonsguy/heater-controller/internal/model"
	"github.com/thatsimonsguy/heater-controller/internal/mqtt"
	"github.com/thatsimonsguy/heater-controller/internal/notifications"
	"github.com/thatsimonsguy/heater-controller/internal/state"
)

var ErrStopped = errors.New("controller stopped")

// HistoryStore is the reading log thresholds and window smoothing are computed from.
type HistoryStore interface {
	Record(ctx context.Context, r model.SensorReading) error
	RecentReadings(ctx context.Context, since time.Time) ([]model.HistoryRow, error)
	RecentWindowValues(ctx context.Context, limit int) ([]float64, error)
}

type Recommender interface {
	PublishRecommendation(r mqtt.Recommendation) error
}

type SettingsStore interface {
	Save(s model.Settings) error
}

// Options tune the decision loop. A zero StaleAfter disables the sensor watchdog.
type Options struct {
	Defaults           adaptive.Defaults
	HistoryWindow      time.Duration
	WindowSamples      int
	QueryTimeout       time.Duration
	QueueSize          int
	NoticeCooldown     time.Duration
	StaleAfter         time.Duration
	StaleCheckInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		Defaults: adaptive.Defaults{
			ColdTemp:           adaptive.DefaultColdTemp,
			DryHumidity:        adaptive.DefaultDryHumidity,
			OpenWindowDistance: adaptive.DefaultOpenWindowDistance,
			MinRows:            adaptive.DefaultMinRows,
		},
		HistoryWindow:      30 * time.Minute,
		WindowSamples:      adaptive.DefaultSmoothingSamples,
		QueryTimeout:       2 * time.Second,
		QueueSize:          32,
		NoticeCooldown:     15 * time.Minute,
		StaleAfter:         10 * time.Minute,
		StaleCheckInterval: time.Minute,
	}
}

type Deps struct {
	State       *state.State
	History     HistoryStore
	Gate        *heater.Gate
	Coordinator decision.Coordinator
	Monitor     *health.Monitor
	Notifier    notifications.Notifier
	// Recommender and Settings are optional.
	Recommender Recommender
	Settings    SettingsStore
}

// Controller runs one decision cycle per sensor reading on a single goroutine.
// Settings changes and manual overrides are queued to the same goroutine so they
// never interleave with a cycle in flight.
type Controller struct {
	opts Options
	deps Deps

	readings chan model.SensorReading
	admin    chan adminRequest
	done     chan struct{}
	now      func() time.Time

	mu        sync.Mutex
	lastCycle *CycleReport
	dropped   uint64

	// owned by the Run goroutine
	startedAt     time.Time
	lastReadingAt time.Time
	staleNotified bool
}

type adminRequest struct {
	run   func() (any, error)
	reply chan adminReply
}

type adminReply struct {
	value any
	err   error
}

// CycleReport summarises the most recent decision cycle.
type CycleReport struct {
	ID             string            `json:"id"`
	At             time.Time         `json:"at"`
	Temperature    *float64          `json:"temperature"`
	Humidity       *float64          `json:"humidity"`
	Window         *float64          `json:"window"`
	SmoothedWindow *float64          `json:"smoothed_window"`
	Thresholds     model.Thresholds  `json:"thresholds"`
	WindowOpen     bool              `json:"window_open"`
	Recommendation decision.Result   `json:"recommendation"`
	Decision       *decision.Result  `json:"decision"`
	Published      bool              `json:"published"`
	HealthAlert    bool              `json:"health_alert"`
	Notices        []string          `json:"notices,omitempty"`
	Errors         []string          `json:"errors,omitempty"`
	Heater         model.HeaterState `json:"heater"`
}

type Status struct {
	state.Snapshot
	LastCycle       *CycleReport `json:"last_cycle"`
	DroppedReadings uint64       `json:"dropped_readings"`
}

func New(opts Options, deps Deps) *Controller {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	if opts.WindowSamples <= 0 {
		opts.WindowSamples = adaptive.DefaultSmoothingSamples
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.Log{}
	}
	return &Controller{
		opts:     opts,
		deps:     deps,
		readings: make(chan model.SensorReading, opts.QueueSize),
		admin:    make(chan adminRequest),
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// Enqueue hands a reading to the decision loop without blocking. When the queue is
// full the oldest queued reading is discarded.
func (c *Controller) Enqueue(r model.SensorReading) {
	for {
		select {
		case c.readings <- r:
			return
		default:
		}
		select {
		case old := <-c.readings:
			c.mu.Lock()
			c.dropped++
			c.mu.Unlock()
			datadog.Incr("reading.dropped")
			log.Warn().Time("reading_time", old.Timestamp).Msg("Reading queue full, dropped oldest reading")
		default:
		}
	}
}

// ObserveHeater records a heater state reported on the command topic.
func (c *Controller) ObserveHeater(cmd model.Command, source string) {
	c.deps.Gate.Observe(cmd, source)
}

func (c *Controller) Settings() model.Settings {
	return c.deps.State.Settings()
}

// UpdateSettings validates and applies a partial settings change. It takes effect
// from the next processed reading.
func (c *Controller) UpdateSettings(ctx context.Context, p model.SettingsPatch) (model.Settings, error) {
	v, err := c.submit(ctx, func() (any, error) {
		s, err := c.deps.State.ApplyPatch(p)
		if err != nil {
			return s, err
		}
		log.Info().
			Str("auto_off_mode", string(s.AutoOffMode)).
			Str("auto_on_mode", string(s.AutoOnMode)).
			Bool("health_alert", s.HealthAlertEnabled).
			Msg("Settings updated")
		if c.deps.Settings != nil {
			if err := c.deps.Settings.Save(s); err != nil {
				log.Error().Err(err).Msg("Failed to persist settings")
			}
		}
		return s, nil
	})
	if err != nil {
		return c.deps.State.Settings(), err
	}
	return v.(model.Settings), nil
}

// ManualOverride publishes cmd directly, bypassing the decision engine. It reports
// whether a message was sent; a command matching the current state is not resent.
func (c *Controller) ManualOverride(ctx context.Context, cmd model.Command) (bool, error) {
	v, err := c.submit(ctx, func() (any, error) {
		return c.deps.Gate.Publish(cmd, decision.ReasonManualOverride)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Snapshot:        c.deps.State.Snapshot(),
		LastCycle:       c.lastCycle,
		DroppedReadings: c.dropped,
	}
}

func (c *Controller) submit(ctx context.Context, fn func() (any, error)) (any, error) {
	req := adminRequest{run: fn, reply: make(chan adminReply, 1)}
	select {
	case c.admin <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrStopped
	}
	select {
	case r := <-req.reply:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run processes readings and administrative requests until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)
	log.Info().
		Int("queue_size", c.opts.QueueSize).
		Dur("history_window", c.opts.HistoryWindow).
		Dur("stale_after", c.opts.StaleAfter).
		Msg("Starting heater controller")

	c.startedAt = c.now()
	var watchdog <-chan time.Time
	if c.opts.StaleAfter > 0 {
		interval := c.opts.StaleCheckInterval
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		watchdog = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Heater controller stopped")
			return
		case req := <-c.admin:
			v, err := req.run()
			req.reply <- adminReply{v, err}
		case r := <-c.readings:
			c.lastReadingAt = c.now()
			c.staleNotified = false
			c.processReading(ctx, r)
		case <-watchdog:
			c.checkStale()
		}
	}
}

// checkStale switches the heater off when no reading has arrived for StaleAfter.
func (c *Controller) checkStale() {
	now := c.now()
	action := failsafe.Evaluate(c.lastReadingAt, c.startedAt, now, c.opts.StaleAfter, c.deps.State.Heater(), c.staleNotified)
	if !action.Stale {
		return
	}
	datadog.Incr("sensor.stale")

	if action.TurnOff {
		published, err := c.deps.Gate.Publish(model.CommandOff, failsafe.ReasonStale)
		if err != nil {
			log.Error().Err(err).Msg("Failed to switch heater off for stale sensor data")
		} else if published {
			log.Warn().Time("last_reading", c.lastReadingAt).Msg("Sensor data stale, heater switched off")
		}
	}
	if action.Notify {
		c.staleNotified = true
		msg := "No sensor readings received for " + c.opts.StaleAfter.String() + ". Heater held OFF until readings resume."
		if err := c.deps.Notifier.Send(failsafe.NoticeTitle, msg); err != nil {
			log.Error().Err(err).Msg("Failed to send stale sensor notice")
		}
	}
}

func (c *Controller) processReading(ctx context.Context, r model.SensorReading) {
	now := c.now()
	report := &CycleReport{
		ID:          uuid.NewString(),
		At:          now,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Window:      r.Window,
	}
	logger := log.With().Str("cycle", report.ID).Logger()

	datadog.GaugePtr("sensor.temperature", r.Temperature)
	datadog.GaugePtr("sensor.humidity", r.Humidity)

	if r.Window != nil {
		if err := c.withTimeout(ctx, func(qctx context.Context) error {
			return c.deps.History.Record(qctx, r)
		}); err != nil {
			c.historyFailed(&logger, report, "record reading", err)
		}
	}

	var samples []float64
	if err := c.withTimeout(ctx, func(qctx context.Context) error {
		var err error
		samples, err = c.deps.History.RecentWindowValues(qctx, c.opts.WindowSamples)
		return err
	}); err != nil {
		samples = nil
		c.historyFailed(&logger, report, "load window values", err)
	}
	report.SmoothedWindow = adaptive.SmoothWindow(samples, r.Window)

	var rows []model.HistoryRow
	if err := c.withTimeout(ctx, func(qctx context.Context) error {
		var err error
		rows, err = c.deps.History.RecentReadings(qctx, now.Add(-c.opts.HistoryWindow))
		return err
	}); err != nil {
		rows = nil
		c.historyFailed(&logger, report, "load recent readings", err)
	}
	report.Thresholds = adaptive.EstimateThresholds(rows, c.opts.Defaults)

	datadog.GaugePtr("window.smoothed", report.SmoothedWindow)
	datadog.Gauge("thresholds.cold_temp", report.Thresholds.ColdTemp)
	datadog.Gauge("thresholds.dry_humidity", report.Thresholds.DryHumidity)

	settings := c.deps.State.Settings()
	in := decision.Input{
		Temperature:    r.Temperature,
		Humidity:       r.Humidity,
		SmoothedWindow: report.SmoothedWindow,
		Thresholds:     report.Thresholds,
		Last:           c.deps.State.Heater(),
	}
	report.WindowOpen = in.WindowOpen()

	if c.deps.Monitor != nil {
		report.HealthAlert = c.deps.Monitor.Check(settings.HealthAlertEnabled, r.Temperature, r.Humidity, report.WindowOpen, now)
		if report.HealthAlert {
			datadog.Incr("alert.health")
		}
	}

	outcome := c.deps.Coordinator.Coordinate(in, settings)
	for _, n := range outcome.Notices {
		if !c.deps.State.TryWindowNotice(n.WindowOpen, now, c.opts.NoticeCooldown) {
			continue
		}
		report.Notices = append(report.Notices, n.Title)
		if err := c.deps.Notifier.Send(n.Title, n.Message); err != nil {
			logger.Error().Err(err).Str("title", n.Title).Msg("Failed to send window notice")
		}
	}

	if outcome.Decision != nil {
		report.Decision = outcome.Decision
		published, err := c.deps.Gate.Publish(outcome.Decision.Command, outcome.Decision.Reason)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to publish heater command")
			report.Errors = append(report.Errors, err.Error())
		}
		report.Published = published
		if published {
			datadog.Incr("heater.command", "command:"+string(outcome.Decision.Command))
		}
	}

	report.Recommendation = c.deps.Coordinator.Engine.Decide(in.Temperature, in.Humidity, in.SmoothedWindow, in.Thresholds, in.Last)
	if c.deps.Recommender != nil {
		rec := mqtt.RecommendationFrom(now, report.Recommendation, report.Thresholds)
		if err := c.deps.Recommender.PublishRecommendation(rec); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish recommendation")
		}
	}

	report.Heater = c.deps.State.Heater()
	logCycle(&logger, report, settings)

	c.mu.Lock()
	c.lastCycle = report
	c.mu.Unlock()
}

func (c *Controller) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	qctx := ctx
	if c.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, c.opts.QueryTimeout)
		defer cancel()
	}
	return fn(qctx)
}

func (c *Controller) historyFailed(logger *zerolog.Logger, report *CycleReport, op string, err error) {
	logger.Warn().Err(err).Str("op", op).Msg("History unavailable, using defaults")
	report.Errors = append(report.Errors, op+": "+err.Error())
	datadog.Incr("history.fallback", "op:"+op)
}

func logCycle(logger *zerolog.Logger, r *CycleReport, s model.Settings) {
	ev := logger.Debug().
		Str("auto_off_mode", string(s.AutoOffMode)).
		Str("auto_on_mode", string(s.AutoOnMode)).
		Bool("window_open", r.WindowOpen).
		Float64("cold_temp", r.Thresholds.ColdTemp).
		Float64("dry_humidity", r.Thresholds.DryHumidity).
		Str("recommendation", string(r.Recommendation.Command)).
		Str("heater", string(r.Heater))
	if r.SmoothedWindow != nil {
		ev = ev.Float64("smoothed_window", *r.SmoothedWindow)
	}
	if r.Decision != nil {
		ev = ev.Str("decision", string(r.Decision.Command)).Str("reason", r.Decision.Reason)
	}
	ev.Msg("Decision cycle complete")
}
