package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/heater-controller/internal/decision"
	"github.com/thatsimonsguy/heater-controller/internal/failsafe"
	"github.com/thatsimonsguy/heater-controller/internal/health"
	"github.com/thatsimonsguy/heater-controller/internal/heater"
	"github.com/thatsimonsguy/heater-controller/internal/model"
	"github.com/thatsimonsguy/heater-controller/internal/mqtt"
	"github.com/thatsimonsguy/heater-controller/internal/state"
)

type memHistory struct {
	mu       sync.Mutex
	readings []model.SensorReading
	err      error
	block    bool
}

func (m *memHistory) Record(ctx context.Context, r model.SensorReading) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, r)
	return nil
}

func (m *memHistory) RecentReadings(ctx context.Context, since time.Time) ([]model.HistoryRow, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.HistoryRow
	for _, r := range m.readings {
		if r.Timestamp.Before(since) || r.Temperature == nil || r.Humidity == nil {
			continue
		}
		row := model.HistoryRow{Temperature: *r.Temperature, Humidity: *r.Humidity}
		if r.Window != nil {
			row.Window = *r.Window
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *memHistory) RecentWindowValues(ctx context.Context, limit int) ([]float64, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []float64
	for i := len(m.readings) - 1; i >= 0 && len(out) < limit; i-- {
		if w := m.readings[i].Window; w != nil {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *memHistory) fail(ctx context.Context) error {
	m.mu.Lock()
	block, err := m.block, m.err
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (m *memHistory) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.readings)
}

type fixture struct {
	ctrl    *Controller
	st      *state.State
	history *memHistory
	client  *mqtt.FakeClient
	now     time.Time
}

func newFixture(t *testing.T, settings model.Settings) *fixture {
	t.Helper()
	f := &fixture{
		st:      state.New(settings),
		history: &memHistory{},
		client:  mqtt.NewFakeClient(),
		now:     time.Unix(1_700_000_000, 0),
	}
	opts := DefaultOptions()
	opts.QueryTimeout = 50 * time.Millisecond
	f.ctrl = New(opts, Deps{
		State:       f.st,
		History:     f.history,
		Gate:        heater.NewGate(f.st, f.client),
		Coordinator: decision.Coordinator{Engine: decision.Engine{HysteresisOffset: decision.DefaultHysteresisOffset}},
		Monitor:     &health.Monitor{Limits: health.DefaultLimits(), State: f.st, Notifier: f.client},
		Notifier:    f.client,
		Recommender: f.client,
	})
	f.ctrl.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) process(temp, hum, window *float64) *CycleReport {
	f.ctrl.processReading(context.Background(), model.SensorReading{
		Timestamp:   f.now,
		Temperature: temp,
		Humidity:    hum,
		Window:      window,
	})
	f.now = f.now.Add(10 * time.Second)
	return f.ctrl.Status().LastCycle
}

func settings(off, on model.Mode, healthAlert bool) model.Settings {
	return model.Settings{AutoOffMode: off, AutoOnMode: on, HealthAlertEnabled: healthAlert}
}

func TestColdStartAutomatic(t *testing.T) {
	f := newFixture(t, model.DefaultSettings())

	report := f.process(model.Float(15), model.Float(40), model.Float(5))

	require.NotNil(t, report.Decision)
	assert.Equal(t, decision.Result{Command: model.CommandOn, Reason: decision.ReasonAutomaticOn}, *report.Decision)
	assert.True(t, report.Published)
	assert.Equal(t, model.Thresholds{ColdTemp: 18, DryHumidity: 30, OpenWindowDistance: 20}, report.Thresholds)
	assert.Equal(t, []mqtt.Command{{Command: model.CommandOn, Reason: decision.ReasonAutomaticOn}}, f.client.SentCommands())
	assert.Equal(t, 1, f.history.count())
	assert.NotEmpty(t, report.ID)

	f.process(model.Float(15), model.Float(40), model.Float(5))
	assert.Len(t, f.client.SentCommands(), 1, "unchanged command is not republished")
}

func TestSmartDecisions(t *testing.T) {
	f := newFixture(t, settings(model.ModeSmart, model.ModeSmart, false))

	report := f.process(model.Float(15), model.Float(35), model.Float(5))
	require.NotNil(t, report.Decision)
	assert.Equal(t, decision.ReasonBelowCold, report.Decision.Reason)

	report = f.process(model.Float(19), model.Float(35), model.Float(5))
	require.NotNil(t, report.Decision)
	assert.Equal(t, decision.Result{Command: model.CommandOn, Reason: decision.ReasonHysteresis}, *report.Decision)
	assert.False(t, report.Published, "hysteresis keeps the heater on without republishing")

	// One open sample is smoothed away; the second tips the trimmed mean over the threshold.
	report = f.process(model.Float(19), model.Float(35), model.Float(60))
	assert.False(t, report.WindowOpen)
	report = f.process(model.Float(19), model.Float(35), model.Float(60))
	assert.True(t, report.WindowOpen)
	assert.Equal(t, decision.Result{Command: model.CommandOff, Reason: decision.ReasonWindowOpen}, *report.Decision)

	assert.Equal(t, []mqtt.Command{
		{Command: model.CommandOn, Reason: decision.ReasonBelowCold},
		{Command: model.CommandOff, Reason: decision.ReasonWindowOpen},
	}, f.client.SentCommands())
}

func TestSmoothingIgnoresSingleGlitch(t *testing.T) {
	f := newFixture(t, model.DefaultSettings())

	for i := 0; i < 4; i++ {
		f.process(model.Float(15), model.Float(40), model.Float(5))
	}
	report := f.process(model.Float(15), model.Float(40), model.Float(100))

	require.NotNil(t, report.SmoothedWindow)
	assert.Equal(t, 5.0, *report.SmoothedWindow)
	assert.False(t, report.WindowOpen)
	assert.Equal(t, []mqtt.Command{{Command: model.CommandOn, Reason: decision.ReasonAutomaticOn}}, f.client.SentCommands())
}

func TestMissingWindowIsTreatedAsOpen(t *testing.T) {
	f := newFixture(t, settings(model.ModeSmart, model.ModeAutomatic, false))

	report := f.process(model.Float(15), model.Float(40), nil)

	assert.Nil(t, report.SmoothedWindow)
	assert.True(t, report.WindowOpen)
	assert.Equal(t, decision.Result{Command: model.CommandOff, Reason: decision.ReasonNoWindowData}, *report.Decision)
	assert.Equal(t, 0, f.history.count(), "readings without a window value are not logged")
}

func TestHistoryFailureFallsBackToDefaults(t *testing.T) {
	f := newFixture(t, settings(model.ModeSmart, model.ModeSmart, false))
	f.history.err = errors.New("database is locked")

	report := f.process(model.Float(15), model.Float(40), model.Float(5))

	assert.Equal(t, model.Thresholds{ColdTemp: 18, DryHumidity: 30, OpenWindowDistance: 20}, report.Thresholds)
	require.NotNil(t, report.SmoothedWindow)
	assert.Equal(t, 5.0, *report.SmoothedWindow)
	require.NotNil(t, report.Decision)
	assert.Equal(t, model.CommandOn, report.Decision.Command)
	assert.True(t, report.Published)
	assert.Len(t, report.Errors, 3)
}

func TestSlowHistoryIsBounded(t *testing.T) {
	f := newFixture(t, model.DefaultSettings())
	f.history.block = true

	start := time.Now()
	report := f.process(model.Float(15), model.Float(40), model.Float(5))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, report.Published)
	assert.Len(t, report.Errors, 3)
}

func TestAlertModeNotices(t *testing.T) {
	f := newFixture(t, settings(model.ModeAlert, model.ModeAlert, false))

	report := f.process(model.Float(15), model.Float(40), model.Float(50))
	assert.Nil(t, report.Decision)
	assert.Equal(t, []string{"Window open"}, report.Notices)

	report = f.process(model.Float(15), model.Float(40), model.Float(50))
	assert.Empty(t, report.Notices, "repeat notice is rate limited")

	f.history.readings = nil
	report = f.process(model.Float(15), model.Float(40), model.Float(5))
	assert.Equal(t, []string{"Window shut"}, report.Notices)

	assert.Empty(t, f.client.SentCommands())
	alerts := f.client.SentAlerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, "Window open", alerts[0].Title)
	assert.Equal(t, "Window shut", alerts[1].Title)
}

func TestHealthAlert(t *testing.T) {
	f := newFixture(t, settings(model.ModeOff, model.ModeOff, true))

	report := f.process(model.Float(30), model.Float(50), model.Float(5))
	assert.True(t, report.HealthAlert)

	report = f.process(model.Float(30), model.Float(50), model.Float(5))
	assert.False(t, report.HealthAlert)

	alerts := f.client.SentAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, health.AlertTitle, alerts[0].Title)
	assert.Empty(t, f.client.SentCommands())
}

func TestPublishFailureRetriesNextCycle(t *testing.T) {
	f := newFixture(t, model.DefaultSettings())
	f.client.SetPublishError(errors.New("not connected"))

	report := f.process(model.Float(15), model.Float(40), model.Float(5))
	assert.False(t, report.Published)
	assert.NotEmpty(t, report.Errors)
	assert.Equal(t, model.HeaterUnknown, f.st.Heater())

	f.client.SetPublishError(nil)
	report = f.process(model.Float(15), model.Float(40), model.Float(5))
	assert.True(t, report.Published)
	assert.Equal(t, model.HeaterOn, f.st.Heater())
}

func TestRecommendationPublished(t *testing.T) {
	f := newFixture(t, settings(model.ModeOff, model.ModeOff, false))

	f.process(model.Float(15), model.Float(40), model.Float(5))

	recs := f.client.SentRecommendations()
	require.Len(t, recs, 1)
	assert.Equal(t, model.CommandOn, recs[0].Heater)
	assert.Equal(t, decision.ReasonBelowCold, recs[0].Reason)
	assert.Empty(t, f.client.SentCommands(), "recommendations never drive the heater")
}

func TestEnqueueDropsOldest(t *testing.T) {
	st := state.New(model.DefaultSettings())
	opts := DefaultOptions()
	opts.QueueSize = 2
	c := New(opts, Deps{State: st, History: &memHistory{}, Gate: heater.NewGate(st, mqtt.NewFakeClient())})

	for i := int64(1); i <= 3; i++ {
		c.Enqueue(model.SensorReading{Timestamp: time.Unix(i, 0)})
	}

	assert.Equal(t, uint64(1), c.Status().DroppedReadings)
	assert.Equal(t, time.Unix(2, 0), (<-c.readings).Timestamp)
	assert.Equal(t, time.Unix(3, 0), (<-c.readings).Timestamp)
}

func TestRunHandlesReadingsAndAdmin(t *testing.T) {
	f := newFixture(t, model.DefaultSettings())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.ctrl.Run(ctx)

	bad := "sometimes"
	_, err := f.ctrl.UpdateSettings(ctx, model.SettingsPatch{AutoOnMode: &bad})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidMode)
	assert.Equal(t, model.DefaultSettings(), f.ctrl.Settings())

	off := "Off"
	s, err := f.ctrl.UpdateSettings(ctx, model.SettingsPatch{AutoOnMode: &off})
	require.NoError(t, err)
	assert.Equal(t, model.ModeOff, s.AutoOnMode)

	published, err := f.ctrl.ManualOverride(ctx, model.CommandOn)
	require.NoError(t, err)
	assert.True(t, published)
	published, err = f.ctrl.ManualOverride(ctx, model.CommandOn)
	require.NoError(t, err)
	assert.False(t, published)

	f.ctrl.Enqueue(model.SensorReading{Timestamp: f.now, Temperature: model.Float(21), Humidity: model.Float(40), Window: model.Float(60)})
	assert.Eventually(t, func() bool { return f.ctrl.Status().LastCycle != nil }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []mqtt.Command{
		{Command: model.CommandOn, Reason: decision.ReasonManualOverride},
		{Command: model.CommandOff, Reason: decision.ReasonAutomaticOff},
	}, f.client.SentCommands())

	f.ctrl.ObserveHeater(model.CommandOn, "wall-switch")
	assert.Equal(t, model.HeaterOn, f.ctrl.Status().Heater)

	cancel()
	<-f.ctrl.done
	_, err = f.ctrl.ManualOverride(context.Background(), model.CommandOff)
	assert.ErrorIs(t, err, ErrStopped)
}

type savedSettings struct {
	mu    sync.Mutex
	saved []model.Settings
}

func (s *savedSettings) Save(settings model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, settings)
	return nil
}

func TestUpdateSettingsPersists(t *testing.T) {
	f := newFixture(t, model.DefaultSettings())
	store := &savedSettings{}
	f.ctrl.deps.Settings = store
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.ctrl.Run(ctx)

	bad := "Turbo"
	_, err := f.ctrl.UpdateSettings(ctx, model.SettingsPatch{AutoOffMode: &bad})
	require.Error(t, err)

	smart := "Smart"
	_, err = f.ctrl.UpdateSettings(ctx, model.SettingsPatch{AutoOffMode: &smart})
	require.NoError(t, err)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []model.Settings{settings(model.ModeSmart, model.ModeAutomatic, false)}, store.saved)
}

func TestStaleSensorTurnsHeaterOff(t *testing.T) {
	f := newFixture(t, model.DefaultSettings())
	f.ctrl.startedAt = f.now
	f.process(model.Float(15), model.Float(40), model.Float(5))
	f.ctrl.lastReadingAt = f.now
	require.Equal(t, model.HeaterOn, f.st.Heater())

	f.now = f.now.Add(5 * time.Minute)
	f.ctrl.checkStale()
	assert.Equal(t, model.HeaterOn, f.st.Heater(), "not stale yet")

	f.now = f.now.Add(6 * time.Minute)
	f.ctrl.checkStale()
	f.ctrl.checkStale()

	assert.Equal(t, model.HeaterOff, f.st.Heater())
	assert.Equal(t, []mqtt.Command{
		{Command: model.CommandOn, Reason: decision.ReasonAutomaticOn},
		{Command: model.CommandOff, Reason: failsafe.ReasonStale},
	}, f.client.SentCommands())

	alerts := f.client.SentAlerts()
	require.Len(t, alerts, 1, "one notice per stale episode")
	assert.Equal(t, failsafe.NoticeTitle, alerts[0].Title)
}
