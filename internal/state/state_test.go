package state

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/heater-controller/internal/model"
)

func str(s string) *string { return &s }

func TestApplyPatch(t *testing.T) {
	tests := []struct {
		name    string
		patch   model.SettingsPatch
		want    model.Settings
		wantErr error
	}{
		{
			name:  "empty patch is a no-op",
			patch: model.SettingsPatch{},
			want:  model.DefaultSettings(),
		},
		{
			name:  "partial patch",
			patch: model.SettingsPatch{AutoOnMode: str("Smart")},
			want:  model.Settings{AutoOffMode: model.ModeAutomatic, AutoOnMode: model.ModeSmart},
		},
		{
			name:  "full patch with lowercase toggle",
			patch: model.SettingsPatch{AutoOffMode: str("Alert"), AutoOnMode: str("Off"), HealthAlertEnabled: str("on")},
			want:  model.Settings{AutoOffMode: model.ModeAlert, AutoOnMode: model.ModeOff, HealthAlertEnabled: true},
		},
		{
			name:    "bad mode rejects whole patch",
			patch:   model.SettingsPatch{AutoOnMode: str("Smart"), AutoOffMode: str("automatic")},
			want:    model.DefaultSettings(),
			wantErr: model.ErrInvalidMode,
		},
		{
			name:    "bad toggle",
			patch:   model.SettingsPatch{HealthAlertEnabled: str("yes")},
			want:    model.DefaultSettings(),
			wantErr: model.ErrInvalidToggle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(model.DefaultSettings())
			got, err := s.ApplyPatch(tt.patch)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, s.Settings())
		})
	}
}

func TestSwapHeater(t *testing.T) {
	s := New(model.DefaultSettings())
	now := time.Unix(1000, 0)

	assert.Equal(t, model.HeaterUnknown, s.Heater())

	prev, changed := s.SwapHeater(model.CommandOn, "server", now)
	assert.True(t, changed)
	assert.Equal(t, model.HeaterUnknown, prev)

	_, changed = s.SwapHeater(model.CommandOn, "server", now)
	assert.False(t, changed)

	prev, changed = s.SwapHeater(model.CommandOff, "server", now)
	assert.True(t, changed)
	assert.Equal(t, model.HeaterOn, prev)
	assert.Equal(t, model.HeaterOff, s.Heater())
}

func TestRevertHeater(t *testing.T) {
	s := New(model.DefaultSettings())
	now := time.Unix(1000, 0)

	prev, _ := s.SwapHeater(model.CommandOn, "server", now)
	assert.True(t, s.RevertHeater(model.CommandOn, prev))
	assert.Equal(t, model.HeaterUnknown, s.Heater())

	prev, _ = s.SwapHeater(model.CommandOn, "server", now)
	s.ObserveHeater(model.CommandOff, "wall-switch", now)
	assert.False(t, s.RevertHeater(model.CommandOn, prev), "a newer observation must not be undone")
	assert.Equal(t, model.HeaterOff, s.Heater())
}

func TestObserveHeater(t *testing.T) {
	s := New(model.DefaultSettings())
	now := time.Unix(2000, 0)

	s.ObserveHeater(model.CommandOn, "esp32", now)

	snap := s.Snapshot()
	assert.Equal(t, model.HeaterOn, snap.Heater)
	assert.Equal(t, "esp32", snap.HeaterSource)
	assert.Equal(t, now, snap.HeaterChanged)

	_, changed := s.SwapHeater(model.CommandOn, "server", now)
	assert.False(t, changed, "dedup tracks the observed state")
}

func TestTryFireAlert(t *testing.T) {
	s := New(model.DefaultSettings())
	t0 := time.Unix(0, 0).Add(24 * time.Hour)
	cooldown := 15 * time.Minute

	assert.True(t, s.TryFireAlert(t0, cooldown))
	assert.False(t, s.TryFireAlert(t0.Add(time.Second), cooldown))
	assert.False(t, s.TryFireAlert(t0.Add(899*time.Second), cooldown))
	assert.False(t, s.TryFireAlert(t0.Add(900*time.Second), cooldown), "cooldown boundary is still suppressed")
	assert.True(t, s.TryFireAlert(t0.Add(901*time.Second), cooldown))
	assert.Equal(t, t0.Add(901*time.Second), s.Snapshot().LastAlertAt)
}

func TestTryWindowNotice(t *testing.T) {
	s := New(model.DefaultSettings())
	t0 := time.Unix(5000, 0)
	cooldown := 15 * time.Minute

	assert.True(t, s.TryWindowNotice(true, t0, cooldown))
	assert.False(t, s.TryWindowNotice(true, t0.Add(time.Minute), cooldown))
	assert.True(t, s.TryWindowNotice(false, t0.Add(2*time.Minute), cooldown), "state change passes")
	assert.False(t, s.TryWindowNotice(false, t0.Add(3*time.Minute), cooldown))
	assert.True(t, s.TryWindowNotice(false, t0.Add(20*time.Minute), cooldown))
}

func TestConcurrentSwapEmitsOnce(t *testing.T) {
	s := New(model.DefaultSettings())
	now := time.Unix(1, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	changes := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, changed := s.SwapHeater(model.CommandOn, "server", now); changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, changes)
}
