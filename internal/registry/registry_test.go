package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/planningpoker/internal/errors"
	"github.com/Iron-Ham/planningpoker/internal/event"
	"github.com/Iron-Ham/planningpoker/internal/poker"
	"github.com/Iron-Ham/planningpoker/internal/storage"
)

// countingStorage records how often each operation reached the store.
type countingStorage struct {
	*storage.Memory
	saves   atomic.Int32
	deletes atomic.Int32
}

func (s *countingStorage) SaveTeam(ctx context.Context, team *poker.Team) error {
	s.saves.Add(1)
	return s.Memory.SaveTeam(ctx, team)
}

func (s *countingStorage) DeleteTeam(ctx context.Context, name string) error {
	s.deletes.Add(1)
	return s.Memory.DeleteTeam(ctx, name)
}

type fixture struct {
	reg   *Registry
	store *countingStorage
	clock *poker.ManualClock
	bus   *event.Bus
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	clock := poker.NewManualClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	store := &countingStorage{Memory: storage.NewMemory(storage.WithClock(clock))}
	bus := event.NewBus()
	base := []Option{
		WithStorage(store),
		WithBus(bus),
		WithClock(clock),
		WithLockTimeout(200 * time.Millisecond),
		WithInactivityTimeout(5 * time.Minute),
	}
	return &fixture{
		reg:   New(append(base, opts...)...),
		store: store,
		clock: clock,
		bus:   bus,
	}
}

func TestRegistry_CreateThenGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.reg.Create(ctx, "Alpha", "Lead"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	lock, err := f.reg.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	err = lock.Do(ctx, func(team *poker.Team) error {
		ps := team.Participants()
		if len(ps) != 1 || ps[0].Name() != "Lead" || !ps[0].IsLeader() {
			t.Errorf("participants = %v, want sole leader Lead", ps)
		}
		if team.State() != poker.StateInitial {
			t.Errorf("State() = %v, want %v", team.State(), poker.StateInitial)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if f.store.saves.Load() != 1 {
		t.Errorf("saves = %d, want 1", f.store.saves.Load())
	}
}

func TestRegistry_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.reg.Create(ctx, "", "Lead"); errors.KindOf(err) != errors.KindInvalidState {
		t.Errorf("Create(empty team) error = %v, want invalid state", err)
	}
	if _, err := f.reg.Create(ctx, "Alpha", ""); errors.KindOf(err) != errors.KindInvalidState {
		t.Errorf("Create(empty leader) error = %v, want invalid state", err)
	}
	if len(f.reg.TeamNames()) != 0 {
		t.Errorf("TeamNames() = %v, want none", f.reg.TeamNames())
	}
}

func TestRegistry_CreateExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _ := f.reg.Create(ctx, "Alpha", "Lead")
	_, err := f.reg.Create(ctx, "ALPHA", "Other")
	if !errors.Is(err, errors.ErrTeamExists) {
		t.Fatalf("Create() error = %v, want ErrTeamExists", err)
	}

	lock, err := f.reg.Get(ctx, "Alpha")
	if err != nil || lock != first {
		t.Fatalf("Get() = %p, %v, want the original team", lock, err)
	}
	if f.store.deletes.Load() != 0 {
		t.Errorf("deletes = %d, want 0", f.store.deletes.Load())
	}
}

func TestRegistry_CreateExistingInStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stored := poker.NewTeam("Alpha", poker.WithClock(f.clock))
	_, _ = stored.SetLeader("Lead")
	_ = f.store.Memory.SaveTeam(ctx, stored)

	_, err := f.reg.Create(ctx, "Alpha", "Other")
	if errors.KindOf(err) != errors.KindAlreadyExists {
		t.Fatalf("Create() error = %v, want already exists", err)
	}
	if _, ok := f.reg.Lookup("Alpha"); !ok {
		t.Error("live stored team was not loaded into memory")
	}
	if f.store.deletes.Load() != 0 {
		t.Errorf("deletes = %d, want 0", f.store.deletes.Load())
	}
}

func TestRegistry_CreateOverExpiredStoredTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stored := poker.NewTeam("Alpha", poker.WithClock(f.clock))
	_, _ = stored.SetLeader("Lead")
	_ = f.store.Memory.SaveTeam(ctx, stored)
	f.clock.Advance(time.Hour)

	lock, err := f.reg.Create(ctx, "Alpha", "NewLead")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if f.store.deletes.Load() != 1 {
		t.Errorf("deletes = %d, want 1", f.store.deletes.Load())
	}
	_ = lock.Do(ctx, func(team *poker.Team) error {
		if team.Leader().Name() != "NewLead" {
			t.Errorf("leader = %s, want NewLead", team.Leader().Name())
		}
		return nil
	})
}

func TestRegistry_GetLoadsFromStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stored := poker.NewTeam("Alpha", poker.WithClock(f.clock))
	_, _ = stored.SetLeader("Lead")
	f.clock.Advance(10 * time.Minute)
	_, _ = stored.Join("Fresh", false)
	_ = f.store.Memory.SaveTeam(ctx, stored)

	var added []event.TeamOrigin
	f.bus.Subscribe(event.TypeTeamAdded, func(e event.Event) {
		added = append(added, e.(event.TeamAddedEvent).Origin)
	})

	lock, err := f.reg.Get(ctx, "Alpha")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = lock.Do(ctx, func(team *poker.Team) error {
		if team.FindParticipant("Lead") != nil {
			t.Error("inactive leader survived loading")
		}
		if team.FindParticipant("Fresh") == nil {
			t.Error("active member lost while loading")
		}
		return nil
	})
	if len(added) != 1 || added[0] != event.OriginLoaded {
		t.Errorf("team.added origins = %v, want [loaded]", added)
	}
}

func TestRegistry_GetExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stored := poker.NewTeam("Alpha", poker.WithClock(f.clock))
	_, _ = stored.SetLeader("Lead")
	_ = f.store.Memory.SaveTeam(ctx, stored)
	f.clock.Advance(time.Hour)

	_, err := f.reg.Get(ctx, "Alpha")
	if !errors.Is(err, errors.ErrTeamExpired) {
		t.Fatalf("Get() error = %v, want ErrTeamExpired", err)
	}
	if !errors.Is(err, errors.ErrTeamNotFound) || errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("Get() error = %v, want a not found error", err)
	}
	if f.store.deletes.Load() != 1 {
		t.Errorf("deletes = %d, want 1", f.store.deletes.Load())
	}
	if team, _ := f.store.LoadTeam(ctx, "Alpha"); team != nil {
		t.Error("expired team still stored")
	}
}

func TestRegistry_CreateOverExpiredTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stored := poker.NewTeam("Alpha", poker.WithClock(f.clock))
	_, _ = stored.SetLeader("Lead")
	_ = f.store.Memory.SaveTeam(ctx, stored)
	f.clock.Advance(time.Hour)

	lock, err := f.reg.Create(ctx, "Alpha", "NewLead")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_ = lock.Do(ctx, func(team *poker.Team) error {
		if team.FindParticipant("Lead") != nil {
			t.Error("expired leader carried into the new team")
		}
		return nil
	})
}

func TestRegistry_GetUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Get(context.Background(), "nobody")
	if errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("Get() error = %v, want not found", err)
	}
	if errors.Is(err, errors.ErrTeamExpired) {
		t.Errorf("Get() error = %v, unknown team reported as expired", err)
	}
}

func TestRegistry_WriteThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lock, _ := f.reg.Create(ctx, "Alpha", "Lead")

	_ = lock.Do(ctx, func(team *poker.Team) error {
		_, err := team.Join("Bob", false)
		return err
	})

	stored, _ := f.store.LoadTeam(ctx, "Alpha")
	if stored == nil || stored.FindParticipant("Bob") == nil {
		t.Error("join was not written through to storage")
	}
}

func TestRegistry_LastDisconnectRemovesTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lock, _ := f.reg.Create(ctx, "Alpha", "Lead")

	var removed []string
	f.bus.Subscribe(event.TypeTeamRemoved, func(e event.Event) {
		removed = append(removed, e.(event.TeamRemovedEvent).TeamName)
	})

	err := lock.Do(ctx, func(team *poker.Team) error {
		if _, err := team.Join("Bob", true); err != nil {
			return err
		}
		if err := team.Disconnect("Lead"); err != nil {
			return err
		}
		return team.Disconnect("Bob")
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if _, err := f.reg.Get(ctx, "Alpha"); errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("Get() error = %v, want not found", err)
	}
	if f.store.deletes.Load() != 1 {
		t.Errorf("deletes = %d, want 1", f.store.deletes.Load())
	}
	if len(removed) != 1 || removed[0] != "Alpha" {
		t.Errorf("team.removed = %v, want [Alpha]", removed)
	}

	if _, err := f.reg.Create(ctx, "Alpha", "Again"); err != nil {
		t.Errorf("Create() after removal error = %v", err)
	}
}

func TestRegistry_ConcurrentCreate(t *testing.T) {
	f := newFixture(t, WithLockTimeout(5*time.Second))
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.reg.Create(ctx, "Alpha", "Lead")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.KindOf(err) == errors.KindAlreadyExists:
				conflicts.Add(1)
			default:
				t.Errorf("Create() #%d unexpected error = %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 || conflicts.Load() != n-1 {
		t.Errorf("wins = %d, conflicts = %d, want 1 and %d", wins.Load(), conflicts.Load(), n-1)
	}
}

func TestRegistry_Attach(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	team := poker.NewTeam("Remote", poker.WithClock(f.clock))
	_, _ = team.SetLeader("Lead")

	lock, err := f.reg.Attach(ctx, team)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if lock.Team() != team {
		t.Error("Attach() did not adopt the given team")
	}
	if _, err := f.reg.Attach(ctx, poker.NewTeam("remote")); errors.KindOf(err) != errors.KindAlreadyExists {
		t.Errorf("second Attach() error = %v, want already exists", err)
	}
	if names := f.reg.TeamNames(); len(names) != 1 || names[0] != "Remote" {
		t.Errorf("TeamNames() = %v", names)
	}
}

type recordingGate struct {
	creates, gets []string
	err           error
}

func (g *recordingGate) BeforeCreate(_ context.Context, name string) error {
	g.creates = append(g.creates, name)
	return g.err
}

func (g *recordingGate) BeforeGet(_ context.Context, name string) error {
	g.gets = append(g.gets, name)
	return g.err
}

func TestRegistry_Gate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := &recordingGate{}
	f.reg.SetGate(gate)

	_, _ = f.reg.Create(ctx, "Alpha", "Lead")
	_, _ = f.reg.Get(ctx, "Alpha")
	if len(gate.creates) != 1 || len(gate.gets) != 1 {
		t.Errorf("gate calls = %v / %v", gate.creates, gate.gets)
	}

	gate.err = errors.NewTimeoutError("wait for initialization", time.Second)
	if _, err := f.reg.Get(ctx, "Alpha"); errors.KindOf(err) != errors.KindTimeout {
		t.Errorf("Get() error = %v, want timeout from gate", err)
	}
	if _, err := f.reg.Create(ctx, "Beta", "Lead"); errors.KindOf(err) != errors.KindTimeout {
		t.Errorf("Create() error = %v, want timeout from gate", err)
	}
}

func TestRegistry_SweepInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alpha, _ := f.reg.Create(ctx, "Alpha", "Lead")
	beta, _ := f.reg.Create(ctx, "Beta", "Lead")
	_ = alpha.Do(ctx, func(team *poker.Team) error {
		_, err := team.Join("Idle", false)
		return err
	})

	f.clock.Advance(10 * time.Minute)
	_ = alpha.Do(ctx, func(team *poker.Team) error {
		team.Leader().UpdateActivity()
		return nil
	})

	var mu sync.Mutex
	var swept []string
	f.bus.Subscribe(event.TypeTeamSwept, func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		swept = append(swept, e.(event.TeamSweptEvent).TeamName)
	})

	if got := f.reg.SweepInactive(ctx, f.reg.InactivityTimeout()); got != 2 {
		t.Errorf("SweepInactive() = %d, want 2", got)
	}
	_ = alpha.Do(ctx, func(team *poker.Team) error {
		if len(team.Participants()) != 1 {
			t.Errorf("Alpha participants = %d, want 1", len(team.Participants()))
		}
		return nil
	})
	if _, ok := f.reg.Lookup("Beta"); ok {
		t.Error("Beta lost every participant but is still registered")
	}
	_ = beta
	if len(swept) != 2 {
		t.Errorf("team.swept events = %v, want 2", swept)
	}
}

func TestRegistry_SetInactivityTimeout(t *testing.T) {
	f := newFixture(t)
	f.reg.SetInactivityTimeout(time.Minute)
	f.reg.SetInactivityTimeout(0)
	if got := f.reg.InactivityTimeout(); got != time.Minute {
		t.Errorf("InactivityTimeout() = %v, want 1m", got)
	}
}

// parkedDeleteStorage holds DeleteTeam until release is closed.
type parkedDeleteStorage struct {
	*storage.Memory
	deleting chan struct{}
	release  chan struct{}
}

func (s *parkedDeleteStorage) DeleteTeam(ctx context.Context, name string) error {
	s.deleting <- struct{}{}
	<-s.release
	return s.Memory.DeleteTeam(ctx, name)
}

func TestRegistry_CreateWaitsForRemoval(t *testing.T) {
	clock := poker.NewManualClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	store := &parkedDeleteStorage{
		Memory:   storage.NewMemory(storage.WithClock(clock)),
		deleting: make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	reg := New(WithStorage(store), WithClock(clock), WithLockTimeout(2*time.Second))
	ctx := context.Background()

	lock, err := reg.Create(ctx, "Alpha", "Lead")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	disconnected := make(chan error, 1)
	go func() {
		disconnected <- lock.Do(ctx, func(team *poker.Team) error {
			return team.Disconnect("Lead")
		})
	}()
	select {
	case <-store.deleting:
	case <-time.After(time.Second):
		t.Fatal("removal never reached storage")
	}

	created := make(chan error, 1)
	go func() {
		_, err := reg.Create(ctx, "Alpha", "NewLead")
		created <- err
	}()
	select {
	case err := <-created:
		t.Fatalf("Create() = %v while the previous team was still being removed", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	if err := <-disconnected; err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if err := <-created; err != nil {
		t.Fatalf("Create() after removal error = %v", err)
	}

	got, err := reg.Get(ctx, "Alpha")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = got.Do(ctx, func(team *poker.Team) error {
		if team.FindParticipant("Lead") != nil {
			t.Error("removed team came back with its old leader")
		}
		if l := team.Leader(); l == nil || l.Name() != "NewLead" {
			t.Errorf("leader = %v, want NewLead", l)
		}
		return nil
	})
	stored, err := store.LoadTeam(ctx, "Alpha")
	if err != nil || stored == nil {
		t.Fatalf("LoadTeam() = %v, %v, want the new team", stored, err)
	}
	if stored.FindParticipant("NewLead") == nil {
		t.Error("stored snapshot is not the new team")
	}
}

func TestRegistry_DefaultStorageUsesRegistryClock(t *testing.T) {
	clock := poker.NewManualClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	reg := New(WithClock(clock))
	ctx := context.Background()

	if _, err := reg.Create(ctx, "Alpha", "Lead"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	stored, err := reg.storage.LoadTeam(ctx, "Alpha")
	if err != nil || stored == nil {
		t.Fatalf("LoadTeam() = %v, %v", stored, err)
	}
	if stored.Clock() != poker.Clock(clock) {
		t.Errorf("stored team clock = %T, want the registry clock", stored.Clock())
	}
}

func TestRegistry_LoadedTeamUsesRegistryClock(t *testing.T) {
	clock := poker.NewManualClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	// The store rebuilds teams on the wall clock, years after the saved activity.
	store := storage.NewMemory()
	reg := New(WithStorage(store), WithClock(clock), WithInactivityTimeout(5*time.Minute))
	ctx := context.Background()

	saved := poker.NewTeam("Alpha", poker.WithClock(clock))
	_, _ = saved.SetLeader("Lead")
	if err := store.SaveTeam(ctx, saved); err != nil {
		t.Fatalf("SaveTeam() error = %v", err)
	}

	lock, err := reg.Get(ctx, "Alpha")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = lock.Do(ctx, func(team *poker.Team) error {
		if team.Clock() != poker.Clock(clock) {
			t.Errorf("loaded team clock = %T, want the registry clock", team.Clock())
		}
		if team.FindParticipant("Lead") == nil {
			t.Error("leader judged inactive against the wrong clock")
		}
		return nil
	})
}
