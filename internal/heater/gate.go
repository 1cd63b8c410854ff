package heater

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/heater-controller/internal/model"
	"github.com/thatsimonsguy/heater-controller/internal/state"
)

// SourceServer marks commands this process published.
const SourceServer = "server"

// Publisher sends a heater command to the device.
type Publisher interface {
	PublishCommand(cmd model.Command, reason string) error
}

// Gate is the only path that emits heater commands. A command equal to the last
// published one is suppressed.
type Gate struct {
	state *state.State
	pub   Publisher
	now   func() time.Time
}

func NewGate(st *state.State, pub Publisher) *Gate {
	return &Gate{state: st, pub: pub, now: time.Now}
}

// Publish emits cmd if it differs from the last published state. It reports whether a
// message was sent. On a publish error the previous state is restored so the next
// cycle tries again.
func (g *Gate) Publish(cmd model.Command, reason string) (bool, error) {
	prev, changed := g.state.SwapHeater(cmd, SourceServer, g.now())
	if !changed {
		log.Debug().
			Str("command", string(cmd)).
			Str("reason", reason).
			Msg("Heater already in requested state, not publishing")
		return false, nil
	}

	if err := g.pub.PublishCommand(cmd, reason); err != nil {
		g.state.RevertHeater(cmd, prev)
		return false, fmt.Errorf("publish heater %s: %w", cmd, err)
	}

	log.Info().
		Str("command", string(cmd)).
		Str("previous", string(prev)).
		Str("reason", reason).
		Msg("Heater command published")
	return true, nil
}

// Observe records a state reported by the heater or another client.
func (g *Gate) Observe(cmd model.Command, source string) {
	g.state.ObserveHeater(cmd, source, g.now())
	log.Debug().
		Str("command", string(cmd)).
		Str("source", source).
		Msg("Heater state observed")
}
