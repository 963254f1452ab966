package storage

import (
	"context"

	"github.com/Iron-Ham/planningpoker/internal/poker"
)

// Storage persists team snapshots.
type Storage interface {
	// LoadTeam returns the stored team, or nil when no team has that name.
	LoadTeam(ctx context.Context, name string) (*poker.Team, error)
	// SaveTeam writes the current state of team, replacing any previous copy.
	SaveTeam(ctx context.Context, team *poker.Team) error
	// DeleteTeam removes the named team. Removing an unknown name is not an error.
	DeleteTeam(ctx context.Context, name string) error
	// DeleteAll removes every stored team.
	DeleteAll(ctx context.Context) error
	// TeamNames lists the names of all stored teams.
	TeamNames(ctx context.Context) ([]string, error)
}

// Option configures a storage backend.
type Option func(*options)

type options struct {
	clock poker.Clock
}

// WithClock sets the clock given to loaded teams.
func WithClock(c poker.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// ApplyOptions resolves opts. Backends outside this package use it to share
// option handling.
func ApplyOptions(opts ...Option) poker.Clock {
	o := options{clock: poker.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o.clock
}
