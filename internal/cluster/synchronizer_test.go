package cluster

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/planningpoker/internal/bus"
	"github.com/Iron-Ham/planningpoker/internal/errors"
	"github.com/Iron-Ham/planningpoker/internal/event"
	"github.com/Iron-Ham/planningpoker/internal/poker"
	"github.com/Iron-Ham/planningpoker/internal/registry"
	"github.com/Iron-Ham/planningpoker/internal/storage"
	"github.com/Iron-Ham/planningpoker/internal/testutil"
)

type node struct {
	reg  *registry.Registry
	sync *Synchronizer
}

func startNode(t *testing.T, hub *bus.MemoryHub, id string, opts ...Option) *node {
	t.Helper()

	logger, _ := testutil.NewLogger(t)
	reg := registry.New(
		registry.WithStorage(storage.NewMemory()),
		registry.WithLockTimeout(time.Second),
		registry.WithLogger(logger),
	)
	base := []Option{
		WithNodeID(id),
		WithLogger(logger),
		WithInitializationTimeout(100 * time.Millisecond),
		WithInitializationMessageTimeout(300 * time.Millisecond),
	}
	s := New(reg, hub.Connect(), append(base, opts...)...)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Stop(); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})
	return &node{reg: reg, sync: s}
}

func waitInitialized(t *testing.T, n *node) {
	t.Helper()
	testutil.Eventually(t, n.sync.NodeID()+" to initialize", n.sync.Initialized)
}

// participantNames reads the participants of a team held by n.
func participantNames(t *testing.T, n *node, teamName string) []string {
	t.Helper()
	lock, ok := n.reg.Lookup(teamName)
	if !ok {
		return nil
	}
	var names []string
	err := lock.Do(context.Background(), func(team *poker.Team) error {
		for _, p := range team.Participants() {
			names = append(names, p.Name())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	return names
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSynchronizer_LoneNodeInitializes(t *testing.T) {
	hub := bus.NewMemoryHub()
	a := startNode(t, hub, "a")

	var initialized atomic.Int32
	a.reg.Bus().Subscribe(event.TypeNodeInitialized, func(event.Event) { initialized.Add(1) })

	waitInitialized(t, a)
	testutil.Eventually(t, "node.initialized event", func() bool { return initialized.Load() == 1 })
	if len(a.sync.PendingTeams()) != 0 {
		t.Errorf("PendingTeams() = %v, want none", a.sync.PendingTeams())
	}
	if _, err := a.reg.Create(context.Background(), "Alpha", "Ann"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

func TestSynchronizer_HandsOffExistingTeams(t *testing.T) {
	hub := bus.NewMemoryHub()
	a := startNode(t, hub, "a")
	waitInitialized(t, a)

	lock, err := a.reg.Create(context.Background(), "Alpha", "Ann")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err = lock.Do(context.Background(), func(team *poker.Team) error {
		if _, err := team.Join("Bob", false); err != nil {
			return err
		}
		_, err := team.Join("Olga", true)
		return err
	})
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	b := startNode(t, hub, "b", WithInitializationTimeout(2*time.Second))
	waitInitialized(t, b)

	want := participantNames(t, a, "Alpha")
	got := participantNames(t, b, "alpha")
	if !equalNames(got, want) {
		t.Errorf("participants on b = %v, want %v", got, want)
	}
	if _, err := b.reg.Get(context.Background(), "Alpha"); err != nil {
		t.Errorf("Get() on b error = %v", err)
	}
}

func TestSynchronizer_ReplaysWithoutBounce(t *testing.T) {
	hub := bus.NewMemoryHub()
	a := startNode(t, hub, "a")
	waitInitialized(t, a)
	b := startNode(t, hub, "b", WithInitializationTimeout(2*time.Second))
	waitInitialized(t, b)

	spy := hub.Connect()
	if err := spy.Register(context.Background(), "spy"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	t.Cleanup(func() { _ = spy.Unregister() })

	var (
		mu      sync.Mutex
		senders = map[string][]bus.MessageType{}
	)
	spyDone := make(chan struct{})
	go func() {
		defer close(spyDone)
		for msg := range spy.Messages() {
			mu.Lock()
			senders[msg.SenderNodeID] = append(senders[msg.SenderNodeID], msg.Type)
			mu.Unlock()
		}
	}()

	ctx := context.Background()
	lock, err := a.reg.Create(ctx, "Alpha", "Ann")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	testutil.Eventually(t, "team on b", func() bool {
		_, ok := b.reg.Lookup("Alpha")
		return ok
	})

	err = lock.Do(ctx, func(team *poker.Team) error {
		_, err := team.Join("Bob", false)
		return err
	})
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	testutil.Eventually(t, "Bob on b", func() bool {
		return equalNames(participantNames(t, b, "Alpha"), []string{"Ann", "Bob"})
	})

	err = lock.Do(ctx, func(team *poker.Team) error {
		if err := team.Leader().StartEstimate(); err != nil {
			return err
		}
		five := poker.NewEstimate(5)
		if err := team.Leader().SetEstimate(&five); err != nil {
			return err
		}
		eight := poker.NewEstimate(8)
		return team.FindParticipant("Bob").SetEstimate(&eight)
	})
	if err != nil {
		t.Fatalf("round on a error = %v", err)
	}

	bLock, _ := b.reg.Lookup("Alpha")
	testutil.Eventually(t, "round to finish on b", func() bool {
		finished := false
		_ = bLock.Do(ctx, func(team *poker.Team) error {
			finished = team.State() == poker.StateEstimateFinished
			return nil
		})
		return finished
	})
	err = bLock.Do(ctx, func(team *poker.Team) error {
		bob, ok := team.EstimateResult().Lookup("Bob")
		if !ok || bob == nil || !bob.Equal(poker.NewEstimate(8)) {
			t.Errorf("Bob's estimate on b = %v, want 8", bob)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	// Give any bounced message time to arrive.
	time.Sleep(100 * time.Millisecond)
	if err := spy.Unregister(); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	<-spyDone

	mu.Lock()
	defer mu.Unlock()
	if len(senders["b"]) != 0 {
		t.Errorf("b sent %v, want nothing", senders["b"])
	}
	var teamMessages int
	for _, typ := range senders["a"] {
		if typ == bus.TypeTeamMessage {
			teamMessages++
		}
	}
	// MemberJoined, EstimateStarted and two MemberEstimated.
	if teamMessages != 4 {
		t.Errorf("a sent %d team messages, want 4 (%v)", teamMessages, senders["a"])
	}
}

// fakePeer answers the hand-off requests of a node under test.
type fakePeer struct {
	bus          *bus.MemoryBus
	listRequests atomic.Int32
	teamRequests atomic.Int32
	onTeams      func(p *fakePeer, msg bus.NodeMessage, n int32)
	teams        []string
}

func startFakePeer(t *testing.T, hub *bus.MemoryHub, teams []string, onTeams func(p *fakePeer, msg bus.NodeMessage, n int32)) *fakePeer {
	t.Helper()
	p := &fakePeer{bus: hub.Connect(), teams: teams, onTeams: onTeams}
	if err := p.bus.Register(context.Background(), "peer"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range p.bus.Messages() {
			switch msg.Type {
			case bus.TypeRequestTeamList:
				p.listRequests.Add(1)
				p.reply(msg.SenderNodeID, bus.TypeTeamList, teamListPayload{TeamNames: p.teams})
			case bus.TypeRequestTeams:
				n := p.teamRequests.Add(1)
				if p.onTeams != nil {
					p.onTeams(p, msg, n)
				}
			}
		}
	}()
	t.Cleanup(func() {
		_ = p.bus.Unregister()
		<-done
	})
	return p
}

func (p *fakePeer) reply(to string, typ bus.MessageType, data any) {
	msg, err := bus.NewNodeMessage(typ, data)
	if err != nil {
		panic(err)
	}
	msg.RecipientNodeID = to
	_ = p.bus.Send(context.Background(), msg)
}

func TestSynchronizer_RestartsStalledHandOff(t *testing.T) {
	hub := bus.NewMemoryHub()
	peer := startFakePeer(t, hub, []string{"Ghost"}, func(p *fakePeer, msg bus.NodeMessage, n int32) {
		if n < 2 {
			return
		}
		p.reply(msg.SenderNodeID, bus.TypeInitializeTeam, initializeTeamPayload{TeamName: "Ghost", Deleted: true})
	})

	a := startNode(t, hub, "a", WithInitializationTimeout(2*time.Second))
	testutil.Eventually(t, "pending team", func() bool { return len(a.sync.PendingTeams()) == 1 })

	_, err := a.reg.Create(context.Background(), "ghost", "Ann")
	if errors.KindOf(err) != errors.KindAlreadyExists {
		t.Errorf("Create() of pending team error = %v, want already exists", err)
	}

	waitInitialized(t, a)
	if got := peer.listRequests.Load(); got < 2 {
		t.Errorf("team list requests = %d, want at least 2", got)
	}
	if _, err := a.reg.Create(context.Background(), "Ghost", "Ann"); err != nil {
		t.Errorf("Create() after deleted hand-off error = %v", err)
	}
}

func TestSynchronizer_GetWaitsForPendingTeam(t *testing.T) {
	hub := bus.NewMemoryHub()
	release := make(chan string)
	startFakePeer(t, hub, []string{"Alpha"}, func(p *fakePeer, msg bus.NodeMessage, _ int32) {
		go func() {
			to := <-release
			team := poker.NewTeam("Alpha")
			if _, err := team.SetLeader("Ann"); err != nil {
				panic(err)
			}
			snapshot, err := json.Marshal(team)
			if err != nil {
				panic(err)
			}
			p.reply(to, bus.TypeInitializeTeam, initializeTeamPayload{TeamName: "Alpha", Team: snapshot})
		}()
	})

	a := startNode(t, hub, "a",
		WithInitializationTimeout(2*time.Second),
		WithInitializationMessageTimeout(2*time.Second),
	)
	testutil.Eventually(t, "pending team", func() bool { return len(a.sync.PendingTeams()) == 1 })

	type result struct {
		lock *registry.TeamLock
		err  error
	}
	got := make(chan result, 1)
	go func() {
		lock, err := a.reg.Get(context.Background(), "alpha")
		got <- result{lock, err}
	}()

	select {
	case r := <-got:
		t.Fatalf("Get() returned early: %v", r.err)
	case <-time.After(50 * time.Millisecond):
	}

	release <- "a"
	select {
	case r := <-got:
		if r.err != nil {
			t.Fatalf("Get() error = %v", r.err)
		}
		if r.lock.Name() != "Alpha" {
			t.Errorf("Get() name = %q, want Alpha", r.lock.Name())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Get() did not return after hand-off")
	}
	waitInitialized(t, a)
}

func TestSynchronizer_GateTimesOut(t *testing.T) {
	s := New(registry.New(), bus.NewMemoryHub().Connect(),
		WithInitializationTimeout(10*time.Millisecond),
		WithInitializationMessageTimeout(10*time.Millisecond),
	)

	err := s.BeforeGet(context.Background(), "Alpha")
	if errors.KindOf(err) != errors.KindTimeout {
		t.Errorf("BeforeGet() error = %v, want timeout", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.BeforeCreate(ctx, "Alpha")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("BeforeCreate() error = %v, want context.Canceled", err)
	}
}

func TestReplay(t *testing.T) {
	newTeam := func(t *testing.T) *poker.Team {
		t.Helper()
		team := poker.NewTeam("Alpha")
		if _, err := team.SetLeader("Ann"); err != nil {
			t.Fatal(err)
		}
		if _, err := team.Join("Bob", false); err != nil {
			t.Fatal(err)
		}
		return team
	}
	member := func(name string, typ poker.ParticipantType) *poker.MemberInfo {
		return &poker.MemberInfo{Name: name, Type: typ}
	}

	tests := []struct {
		name     string
		msg      poker.Message
		wantKind errors.Kind
		wantErr  bool
	}{
		{"join observer", poker.Message{Type: poker.MessageMemberJoined, Member: member("Olga", poker.ParticipantObserver)}, errors.KindUnknown, false},
		{"join twice", poker.Message{Type: poker.MessageMemberJoined, Member: member("bob", poker.ParticipantMember)}, errors.KindAlreadyExists, true},
		{"disconnect", poker.Message{Type: poker.MessageMemberDisconnected, Member: member("Bob", poker.ParticipantMember)}, errors.KindUnknown, false},
		{"disconnect unknown", poker.Message{Type: poker.MessageMemberDisconnected, Member: member("Zed", poker.ParticipantMember)}, errors.KindNotFound, true},
		{"cancel without round", poker.Message{Type: poker.MessageEstimateCanceled}, errors.KindUnknown, false},
		{"activity of unknown", poker.Message{Type: poker.MessageMemberActivity, Member: member("Zed", poker.ParticipantMember)}, errors.KindNotFound, true},
		{"member message without member", poker.Message{Type: poker.MessageMemberEstimated}, errors.KindUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := replay(newTeam(t), tt.msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("replay() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := errors.KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf() = %v, want %v", got, tt.wantKind)
			}
		})
	}
}

func TestReplay_StartTwiceIsInvalidState(t *testing.T) {
	team := poker.NewTeam("Alpha")
	if _, err := team.SetLeader("Ann"); err != nil {
		t.Fatal(err)
	}
	start := poker.Message{Type: poker.MessageEstimateStarted}
	if err := replay(team, start); err != nil {
		t.Fatalf("first replay() error = %v", err)
	}
	if err := replay(team, start); errors.KindOf(err) != errors.KindInvalidState {
		t.Errorf("second replay() error = %v, want invalid state", err)
	}
}

func TestSynchronizer_ReplayLogLevelFollowsSeverity(t *testing.T) {
	logger, logs := testutil.NewLogger(t)
	reg := registry.New(registry.WithLogger(logger))
	if _, err := reg.Create(context.Background(), "Alpha", "Ann"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	s := New(reg, bus.NewMemoryHub().Connect(), WithNodeID("a"), WithLogger(logger))

	deliver := func(msg poker.Message) {
		t.Helper()
		nm, err := bus.NewNodeMessage(bus.TypeTeamMessage, teamMessagePayload{TeamName: "Alpha", Message: msg})
		if err != nil {
			t.Fatalf("NewNodeMessage() error = %v", err)
		}
		nm.SenderNodeID = "b"
		s.onRemoteTeamMessage(context.Background(), nm)
	}

	deliver(poker.Message{Type: poker.MessageMemberJoined, Member: &poker.MemberInfo{Name: "ann", Type: poker.ParticipantMember}})
	if !strings.Contains(logs.String(), `"level":"DEBUG","msg":"skipped duplicate team message"`) {
		t.Errorf("duplicate join not logged at debug:\n%s", logs.String())
	}

	deliver(poker.Message{Type: poker.MessageMemberEstimated})
	if !strings.Contains(logs.String(), `"level":"ERROR","msg":"failed to replay team message"`) {
		t.Errorf("malformed message not logged at error:\n%s", logs.String())
	}
	if !strings.Contains(logs.String(), `"severity":"error"`) {
		t.Errorf("severity attribute missing:\n%s", logs.String())
	}
}
