package registry

import (
	"time"

	"github.com/Iron-Ham/planningpoker/internal/event"
	"github.com/Iron-Ham/planningpoker/internal/logging"
	"github.com/Iron-Ham/planningpoker/internal/poker"
	"github.com/Iron-Ham/planningpoker/internal/storage"
)

// Defaults applied when an option is not given.
const (
	DefaultLockTimeout       = 10 * time.Second
	DefaultWaitTimeout       = 60 * time.Second
	DefaultInactivityTimeout = 15 * time.Minute
	DefaultSweepWorkers      = 4
)

// Option configures a Registry.
type Option func(*Registry)

// WithStorage sets the backing store. Without it teams live only in memory.
func WithStorage(s storage.Storage) Option {
	return func(r *Registry) {
		if s != nil {
			r.storage = s
		}
	}
}

// WithBus sets the bus the registry publishes team events on.
func WithBus(b *event.Bus) Option {
	return func(r *Registry) {
		if b != nil {
			r.bus = b
		}
	}
}

// WithClock sets the clock given to created teams.
func WithClock(c poker.Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithLockTimeout bounds how long a caller waits for a team lock.
func WithLockTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.lockTimeout = d
		}
	}
}

// WithWaitTimeout sets the default long-poll wait of WaitForMessage.
func WithWaitTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.waitTimeout = d
		}
	}
}

// WithInactivityTimeout sets how long a participant may stay silent before
// being disconnected.
func WithInactivityTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.inactivity.Store(int64(d))
		}
	}
}

// WithSweepWorkers limits how many teams the inactivity sweep processes
// concurrently.
func WithSweepWorkers(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.sweepWorkers = n
		}
	}
}
