package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/planningpoker/internal/errors"
	"github.com/Iron-Ham/planningpoker/internal/poker"
)

// TeamLock guards one team. Acquisition waits at most the registry's lock
// timeout. A TeamLock is not reentrant.
type TeamLock struct {
	team    *poker.Team
	sem     chan struct{}
	timeout time.Duration
}

func newTeamLock(team *poker.Team, timeout time.Duration) *TeamLock {
	return &TeamLock{
		team:    team,
		sem:     make(chan struct{}, 1),
		timeout: timeout,
	}
}

// Team returns the guarded team. Only touch it while holding the lock.
func (l *TeamLock) Team() *poker.Team { return l.team }

// Name returns the team name.
func (l *TeamLock) Name() string { return l.team.Name() }

// Lock acquires the lock. It fails with a timeout error when the lock is
// not free within the lock timeout, or with ctx's error when ctx ends first.
func (l *TeamLock) Lock(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return errors.NewTimeoutError(fmt.Sprintf("acquire lock of team %s", l.team.Name()), l.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the lock.
func (l *TeamLock) Unlock() {
	select {
	case <-l.sem:
	default:
		panic("registry: unlock of unlocked team lock")
	}
}

// Do runs fn while holding the lock and releases it on every exit path,
// including a panic in fn.
func (l *TeamLock) Do(ctx context.Context, fn func(team *poker.Team) error) error {
	if err := l.Lock(ctx); err != nil {
		return err
	}
	defer l.Unlock()
	return fn(l.team)
}

// keyedMutex serializes work per key without a global lock held across it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock locks key and returns the matching unlock function.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
