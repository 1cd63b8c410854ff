package shutdown

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ExitFunc is overridden in tests.
var ExitFunc = os.Exit

// HookTimeout bounds the time all hooks together may take.
var HookTimeout = 10 * time.Second

type hook struct {
	name string
	fn   func(context.Context) error
}

var (
	mu    sync.Mutex
	hooks []hook
)

// Register adds a hook to run on shutdown. Hooks run in reverse registration order.
func Register(name string, fn func(context.Context) error) {
	mu.Lock()
	defer mu.Unlock()
	hooks = append(hooks, hook{name, fn})
}

// RunHooks runs and clears the registered hooks. Errors are logged, not returned,
// so one failing hook does not stop the rest.
func RunHooks(ctx context.Context) {
	mu.Lock()
	pending := hooks
	hooks = nil
	mu.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		h := pending[i]
		if err := h.fn(ctx); err != nil {
			log.Error().Err(err).Str("hook", h.name).Msg("Shutdown hook failed")
			continue
		}
		log.Debug().Str("hook", h.name).Msg("Shutdown hook complete")
	}
}

func Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), HookTimeout)
	defer cancel()
	RunHooks(ctx)
	log.Info().Msg("Heater controller shut down")
	ExitFunc(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	ctx, cancel := context.WithTimeout(context.Background(), HookTimeout)
	defer cancel()
	RunHooks(ctx)
	ExitFunc(1)
}
