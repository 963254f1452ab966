package registry

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/planningpoker/internal/errors"
	"github.com/Iron-Ham/planningpoker/internal/event"
	"github.com/Iron-Ham/planningpoker/internal/logging"
	"github.com/Iron-Ham/planningpoker/internal/poker"
	"github.com/Iron-Ham/planningpoker/internal/storage"
)

// Gate can hold back or reject Create and Get before the registry resolves
// a name. The cluster synchronizer uses it during startup hand-off.
type Gate interface {
	BeforeCreate(ctx context.Context, teamName string) error
	BeforeGet(ctx context.Context, teamName string) error
}

// Registry owns every active team of this process.
type Registry struct {
	storage      storage.Storage
	bus          *event.Bus
	clock        poker.Clock
	logger       *logging.Logger
	lockTimeout  time.Duration
	waitTimeout  time.Duration
	inactivity   atomic.Int64
	sweepWorkers int

	mu    sync.RWMutex
	teams map[string]*entry

	resolving *keyedMutex

	gateMu sync.RWMutex
	gate   Gate
}

type entry struct {
	lock    *TeamLock
	removed bool // guarded by lock
}

// New creates a Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		bus:          event.NewBus(),
		clock:        poker.SystemClock{},
		logger:       logging.NopLogger(),
		lockTimeout:  DefaultLockTimeout,
		waitTimeout:  DefaultWaitTimeout,
		sweepWorkers: DefaultSweepWorkers,
		teams:        make(map[string]*entry),
		resolving:    newKeyedMutex(),
	}
	r.inactivity.Store(int64(DefaultInactivityTimeout))
	for _, opt := range opts {
		opt(r)
	}
	if r.storage == nil {
		r.storage = storage.NewMemory(storage.WithClock(r.clock))
	}
	r.logger = r.logger.WithComponent("registry")
	return r
}

// Bus returns the bus team events are published on.
func (r *Registry) Bus() *event.Bus { return r.bus }

// Clock returns the clock given to created teams.
func (r *Registry) Clock() poker.Clock { return r.clock }

// WaitTimeout returns the default long-poll wait.
func (r *Registry) WaitTimeout() time.Duration { return r.waitTimeout }

// InactivityTimeout returns the current inactivity threshold.
func (r *Registry) InactivityTimeout() time.Duration {
	return time.Duration(r.inactivity.Load())
}

// SetInactivityTimeout changes the inactivity threshold at runtime.
func (r *Registry) SetInactivityTimeout(d time.Duration) {
	if d > 0 {
		r.inactivity.Store(int64(d))
	}
}

// SetGate installs g. A nil gate lets every call through.
func (r *Registry) SetGate(g Gate) {
	r.gateMu.Lock()
	defer r.gateMu.Unlock()
	r.gate = g
}

func (r *Registry) currentGate() Gate {
	r.gateMu.RLock()
	defer r.gateMu.RUnlock()
	return r.gate
}

// Create builds a new team led by leaderName and publishes it. It fails
// with an already-exists error when an active team of that name is in
// memory or in storage.
func (r *Registry) Create(ctx context.Context, teamName, leaderName string) (*TeamLock, error) {
	if teamName == "" {
		return nil, errors.NewInvalidStateError("team name is required").
			WithField("teamName").
			WithCause(errors.ErrInvalidInput)
	}
	if g := r.currentGate(); g != nil {
		if err := g.BeforeCreate(ctx, teamName); err != nil {
			return nil, err
		}
	}

	team := poker.NewTeam(teamName, poker.WithClock(r.clock))
	if _, err := team.SetLeader(leaderName); err != nil {
		return nil, err
	}

	key := poker.NameKey(teamName)
	unlock := r.resolving.Lock(key)
	defer unlock()

	if err := r.ensureAbsent(ctx, teamName); err != nil {
		return nil, err
	}
	lock, err := r.publish(ctx, team, event.OriginCreated)
	if err != nil {
		return nil, err
	}
	r.logger.WithTeam(teamName).Info("team created", "leader", leaderName)
	return lock, nil
}

// Attach publishes a team built elsewhere, such as one received from a
// peer node. It fails like Create when the name is already taken.
func (r *Registry) Attach(ctx context.Context, team *poker.Team) (*TeamLock, error) {
	key := poker.NameKey(team.Name())
	unlock := r.resolving.Lock(key)
	defer unlock()

	if err := r.ensureAbsent(ctx, team.Name()); err != nil {
		return nil, err
	}
	lock, err := r.publish(ctx, team, event.OriginAttached)
	if err != nil {
		return nil, err
	}
	r.logger.WithTeam(team.Name()).Info("team attached", "participants", len(team.Participants()))
	return lock, nil
}

// ensureAbsent fails when teamName is active in memory or in storage. A
// live stored team is published as a side effect. Callers hold the
// resolving lock for the name.
func (r *Registry) ensureAbsent(ctx context.Context, teamName string) error {
	if _, ok := r.Lookup(teamName); ok {
		return errors.NewAlreadyExistsError("team", teamName).WithCause(errors.ErrTeamExists)
	}

	stored, err := r.loadActive(ctx, teamName)
	if err != nil && !errors.Is(err, errors.ErrTeamExpired) {
		return err
	}
	if stored != nil {
		if _, err := r.publish(ctx, stored, event.OriginLoaded); err != nil {
			return err
		}
		return errors.NewAlreadyExistsError("team", teamName).WithCause(errors.ErrTeamExists)
	}
	return nil
}

// Get resolves a team from memory, or from storage when it is not loaded.
// A stored team whose participants all went inactive is deleted and
// reported as not found.
func (r *Registry) Get(ctx context.Context, teamName string) (*TeamLock, error) {
	if g := r.currentGate(); g != nil {
		if err := g.BeforeGet(ctx, teamName); err != nil {
			return nil, err
		}
	}
	if lock, ok := r.Lookup(teamName); ok {
		return lock, nil
	}

	unlock := r.resolving.Lock(poker.NameKey(teamName))
	defer unlock()

	if lock, ok := r.Lookup(teamName); ok {
		return lock, nil
	}
	stored, err := r.loadActive(ctx, teamName)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, errors.NewNotFoundError("team", teamName).WithCause(errors.ErrTeamNotFound)
	}
	return r.publish(ctx, stored, event.OriginLoaded)
}

// Lookup returns the lock of a team already in memory.
func (r *Registry) Lookup(teamName string) (*TeamLock, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.teams[poker.NameKey(teamName)]
	if !ok {
		return nil, false
	}
	return e.lock, true
}

// TeamNames returns the names of the teams in memory, sorted.
func (r *Registry) TeamNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.teams))
	for _, e := range r.teams {
		names = append(names, e.lock.Name())
	}
	sort.Strings(names)
	return names
}

// loadActive reads a team from storage and disconnects its inactive
// participants. A team left empty is deleted and reported as not found
// with ErrTeamExpired. A team missing from storage yields nil and no error.
func (r *Registry) loadActive(ctx context.Context, teamName string) (*poker.Team, error) {
	team, err := r.storage.LoadTeam(ctx, teamName)
	if err != nil {
		return nil, errors.NewTeamError("load", err).WithTeam(teamName)
	}
	if team == nil {
		return nil, nil
	}
	team.SetClock(r.clock)

	removed := team.DisconnectInactive(r.InactivityTimeout())
	if team.IsEmpty() {
		r.logger.WithTeam(teamName).Info("deleting expired team")
		if err := r.storage.DeleteTeam(ctx, teamName); err != nil {
			return nil, errors.NewTeamError("delete", err).WithTeam(teamName)
		}
		return nil, errors.NewNotFoundError("team", teamName).WithCause(errors.ErrTeamExpired)
	}
	if len(removed) > 0 {
		r.saveTeam(ctx, team)
	}
	return team, nil
}

// publish inserts team into the map if its name is free, hooks the
// registry into the team's messages and announces it. The fresh lock is
// held from insertion until the announcement, so nobody mutates the team
// before peers and storage have seen it.
func (r *Registry) publish(ctx context.Context, team *poker.Team, origin event.TeamOrigin) (*TeamLock, error) {
	e := &entry{lock: newTeamLock(team, r.lockTimeout)}
	key := poker.NameKey(team.Name())
	if err := e.lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer e.lock.Unlock()

	removeListener := team.AddListener(func(t *poker.Team, msg poker.Message) {
		r.onTeamMessage(e, t, msg)
	})

	r.mu.Lock()
	if _, ok := r.teams[key]; ok {
		r.mu.Unlock()
		removeListener()
		return nil, errors.NewAlreadyExistsError("team", team.Name()).WithCause(errors.ErrTeamExists)
	}
	r.teams[key] = e
	r.mu.Unlock()

	if origin != event.OriginLoaded {
		r.saveTeam(ctx, team)
	}
	r.bus.Publish(event.NewTeamAddedEvent(team, origin))
	return e.lock, nil
}

// onTeamMessage runs under the team lock for every message a registered
// team emits.
func (r *Registry) onTeamMessage(e *entry, team *poker.Team, msg poker.Message) {
	if msg.Type == poker.MessageEmpty {
		return
	}
	r.bus.Publish(event.NewTeamMessageEvent(team, msg))
	if e.removed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.lockTimeout)
	defer cancel()

	if msg.Type == poker.MessageMemberDisconnected && team.IsEmpty() {
		e.removed = true
		r.remove(ctx, e)
		return
	}
	r.saveTeam(ctx, team)
}

// remove deletes the team from storage, then from the map. It holds the
// name's resolving lock throughout, so a concurrent Create or Get cannot
// reload the last stored snapshot in between.
func (r *Registry) remove(ctx context.Context, e *entry) {
	name := e.lock.Name()
	key := poker.NameKey(name)
	unlock := r.resolving.Lock(key)
	defer unlock()

	if err := r.storage.DeleteTeam(ctx, name); err != nil {
		r.logger.WithTeam(name).Warn("failed to delete team from storage", "error", err)
	}

	r.mu.Lock()
	if cur, ok := r.teams[key]; ok && cur == e {
		delete(r.teams, key)
	}
	r.mu.Unlock()

	r.bus.Publish(event.NewTeamRemovedEvent(name))
}

// saveTeam writes team through to storage. Failures are logged; the
// in-memory team stays authoritative.
func (r *Registry) saveTeam(ctx context.Context, team *poker.Team) {
	if err := r.storage.SaveTeam(ctx, team); err != nil {
		r.logger.WithTeam(team.Name()).Warn("failed to save team", "error", err)
	}
}

// WaitForMessage blocks until participant has a queued message, timeout
// elapses or ctx ends. A non-positive timeout means the registry default.
// It reports whether a message is queued when it returns. The caller must
// not hold the team lock.
func (r *Registry) WaitForMessage(ctx context.Context, lock *TeamLock, participant *poker.Participant, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = r.waitTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		var has bool
		var changed <-chan struct{}
		err := lock.Do(ctx, func(*poker.Team) error {
			has = participant.HasMessage()
			if !has {
				changed = participant.Changed()
			}
			return nil
		})
		if err != nil || has {
			return has, err
		}

		select {
		case <-changed:
		case <-timer.C:
			err := lock.Do(ctx, func(*poker.Team) error {
				has = participant.HasMessage()
				return nil
			})
			return has, err
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}
