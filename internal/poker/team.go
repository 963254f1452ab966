package poker

import (
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/planningpoker/internal/errors"
)

// TeamState is the state of a team's estimation round.
type TeamState string

// Round states. The string values are part of the snapshot format.
const (
	StateInitial            TeamState = "Initial"
	StateEstimateInProgress TeamState = "EstimateInProgress"
	StateEstimateFinished   TeamState = "EstimateFinished"
	StateEstimateCanceled   TeamState = "EstimateCanceled"
)

// Valid reports whether s is one of the known states.
func (s TeamState) Valid() bool {
	switch s {
	case StateInitial, StateEstimateInProgress, StateEstimateFinished, StateEstimateCanceled:
		return true
	}
	return false
}

// Listener receives every message a team emits, untagged, in emission order.
// Listeners run synchronously while the caller holds the team.
type Listener func(team *Team, msg Message)

// EstimateParticipantStatus tells whether a member in the current round has
// put a card on the table, without revealing the card.
type EstimateParticipantStatus struct {
	MemberName string `json:"memberName"`
	Estimated  bool   `json:"estimated"`
}

// Option configures a Team.
type Option func(*Team)

// WithClock sets the time source used for activity tracking.
func WithClock(c Clock) Option {
	return func(t *Team) {
		if c != nil {
			t.clock = c
		}
	}
}

// Team is a named estimation session.
type Team struct {
	name      string
	clock     Clock
	members   []*Participant
	observers []*Participant
	state     TeamState
	result    *EstimateResult

	listenerMu     sync.Mutex
	listeners      []listenerEntry
	nextListenerID int
}

type listenerEntry struct {
	id int
	fn Listener
}

// NewTeam creates an empty team in the Initial state.
func NewTeam(name string, opts ...Option) *Team {
	t := &Team{
		name:  name,
		clock: SystemClock{},
		state: StateInitial,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NameKey folds a team or participant name for case-insensitive lookup.
func NameKey(name string) string {
	return strings.ToLower(name)
}

func sameName(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Name returns the team name.
func (t *Team) Name() string { return t.name }

// State returns the state of the current round.
func (t *Team) State() TeamState { return t.state }

// Clock returns the team's time source.
func (t *Team) Clock() Clock { return t.clock }

// SetClock replaces the team's time source. A nil clock is ignored.
// Teams rebuilt from storage use it to adopt the owning registry's clock.
func (t *Team) SetClock(c Clock) {
	if c != nil {
		t.clock = c
	}
}

func (t *Team) now() time.Time { return t.clock.Now() }

// AvailableEstimates returns the deck members can choose from.
func (t *Team) AvailableEstimates() []Estimate { return Catalog() }

// Leader returns the team leader, or nil if the leader has left.
func (t *Team) Leader() *Participant {
	for _, m := range t.members {
		if m.IsLeader() {
			return m
		}
	}
	return nil
}

// Members returns the estimating participants, leader included, in join order.
func (t *Team) Members() []*Participant {
	return append([]*Participant(nil), t.members...)
}

// Observers returns the watching participants in join order.
func (t *Team) Observers() []*Participant {
	return append([]*Participant(nil), t.observers...)
}

// Participants returns members followed by observers.
func (t *Team) Participants() []*Participant {
	out := make([]*Participant, 0, len(t.members)+len(t.observers))
	out = append(out, t.members...)
	return append(out, t.observers...)
}

// IsEmpty reports whether nobody is connected to the team.
func (t *Team) IsEmpty() bool {
	return len(t.members) == 0 && len(t.observers) == 0
}

// FindParticipant looks up a member or observer by name, ignoring case.
func (t *Team) FindParticipant(name string) *Participant {
	for _, p := range t.members {
		if sameName(p.name, name) {
			return p
		}
	}
	for _, p := range t.observers {
		if sameName(p.name, name) {
			return p
		}
	}
	return nil
}

// EstimateResult returns the result of the last round. It is nil unless
// the round has finished.
func (t *Team) EstimateResult() *EstimateResult {
	if t.state != StateEstimateFinished {
		return nil
	}
	return t.result
}

// EstimateParticipants reports which members of the current or last round
// have estimated. It is nil when no round has run or the round was canceled.
func (t *Team) EstimateParticipants() []EstimateParticipantStatus {
	if t.result == nil || (t.state != StateEstimateInProgress && t.state != StateEstimateFinished) {
		return nil
	}
	out := make([]EstimateParticipantStatus, 0, t.result.Len())
	for _, e := range t.result.entries {
		out = append(out, EstimateParticipantStatus{MemberName: e.member.name, Estimated: e.estimate != nil})
	}
	return out
}

// AddListener registers fn for every message the team emits and returns a
// function that removes it.
func (t *Team) AddListener(fn Listener) (remove func()) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()

	t.nextListenerID++
	id := t.nextListenerID
	t.listeners = append(t.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		t.listenerMu.Lock()
		defer t.listenerMu.Unlock()
		for i, l := range t.listeners {
			if l.id == id {
				t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
				return
			}
		}
	}
}

// SetLeader creates the team's leader. It is used once, when the team is
// created.
func (t *Team) SetLeader(name string) (*Participant, error) {
	if err := validateParticipantName(name); err != nil {
		return nil, err
	}
	if t.Leader() != nil {
		return nil, errors.NewInvalidStateError("team already has a leader").
			WithField("leader").
			WithValue(name).
			WithCause(errors.ErrLeaderExists)
	}
	if t.FindParticipant(name) != nil {
		return nil, errors.NewAlreadyExistsError("participant", name).WithCause(errors.ErrNameConflict)
	}

	leader := newParticipant(t, name, ParticipantLeader)
	t.members = append(t.members, leader)
	t.send(t.allExcept(leader), Message{Type: MessageMemberJoined, Member: ptr(leader.Info())})
	return leader, nil
}

// Join adds a member, or an observer when asObserver is set. Everybody
// else is told about the newcomer.
func (t *Team) Join(name string, asObserver bool) (*Participant, error) {
	if err := validateParticipantName(name); err != nil {
		return nil, err
	}
	if t.FindParticipant(name) != nil {
		return nil, errors.NewAlreadyExistsError("participant", name).WithCause(errors.ErrNameConflict)
	}

	var p *Participant
	if asObserver {
		p = newParticipant(t, name, ParticipantObserver)
		t.observers = append(t.observers, p)
	} else {
		p = newParticipant(t, name, ParticipantMember)
		t.members = append(t.members, p)
	}
	t.send(t.allExcept(p), Message{Type: MessageMemberJoined, Member: ptr(p.Info())})
	return p, nil
}

// Disconnect removes the named participant. A round waiting only on that
// member finishes. The remaining participants are told, and the leaver
// gets an Empty message so anything waiting on its queue wakes up.
func (t *Team) Disconnect(name string) error {
	p := t.FindParticipant(name)
	if p == nil {
		return errors.NewNotFoundError("participant", name).WithCause(errors.ErrParticipantNotFound)
	}
	t.remove(p)
	if p.IsMember() {
		t.updateEstimateResult(nil)
	}
	t.send(t.Participants(), Message{Type: MessageMemberDisconnected, Member: ptr(p.Info())})
	p.enqueue(Message{Type: MessageEmpty})
	return nil
}

// DisconnectInactive removes every participant not seen within threshold
// and returns their names.
func (t *Team) DisconnectInactive(threshold time.Duration) []string {
	cutoff := t.now().Add(-threshold)

	var inactive []*Participant
	for _, p := range t.Participants() {
		if p.lastActivity.Before(cutoff) {
			inactive = append(inactive, p)
		}
	}
	if len(inactive) == 0 {
		return nil
	}

	memberRemoved := false
	for _, p := range inactive {
		t.remove(p)
		memberRemoved = memberRemoved || p.IsMember()
	}
	if memberRemoved {
		t.updateEstimateResult(nil)
	}

	names := make([]string, 0, len(inactive))
	for _, p := range inactive {
		t.send(t.Participants(), Message{Type: MessageMemberDisconnected, Member: ptr(p.Info())})
		p.enqueue(Message{Type: MessageEmpty})
		names = append(names, p.name)
	}
	return names
}

// StartEstimate starts a new round with the current members. It fails
// while a round is already in progress.
func (t *Team) StartEstimate() error {
	if t.state == StateEstimateInProgress {
		return errors.NewInvalidStateError("estimate is already in progress").
			WithField("state").
			WithValue(string(t.state)).
			WithCause(errors.ErrEstimateInProgress)
	}

	for _, m := range t.members {
		m.estimate = nil
	}
	t.result = newEstimateResult(t.members)
	t.state = StateEstimateInProgress
	t.send(t.Participants(), Message{Type: MessageEstimateStarted})
	return nil
}

// CancelEstimate cancels the round in progress. Without one it does nothing.
func (t *Team) CancelEstimate() {
	if t.state != StateEstimateInProgress {
		return
	}
	t.state = StateEstimateCanceled
	t.result = nil
	t.send(t.Participants(), Message{Type: MessageEstimateCanceled})
}

func (t *Team) memberEstimated(member *Participant) {
	recipients := t.allExcept(member)
	msg := Message{
		Type:     MessageMemberEstimated,
		Member:   ptr(member.Info()),
		Estimate: cloneEstimate(member.estimate),
	}
	t.send(recipients, msg)
	t.updateEstimateResult(member)
}

// updateEstimateResult records member's card, when given, and finishes the
// round once nobody still present is outstanding.
func (t *Team) updateEstimateResult(member *Participant) {
	if t.state != StateEstimateInProgress || t.result == nil {
		return
	}
	if member != nil {
		t.result.set(member, member.estimate)
	}
	if !t.result.complete(t) {
		return
	}

	t.result.readOnly = true
	t.state = StateEstimateFinished
	t.send(t.Participants(), Message{Type: MessageEstimateEnded, EstimateResult: t.result.Items()})
}

func (t *Team) containsMember(p *Participant) bool {
	for _, m := range t.members {
		if m == p {
			return true
		}
	}
	return false
}

func (t *Team) remove(p *Participant) {
	t.members = removeParticipant(t.members, p)
	t.observers = removeParticipant(t.observers, p)
}

func removeParticipant(list []*Participant, p *Participant) []*Participant {
	for i, x := range list {
		if x == p {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (t *Team) allExcept(p *Participant) []*Participant {
	all := t.Participants()
	return removeParticipant(all, p)
}

// send queues a tagged copy of msg to each recipient, then raises the
// untagged msg to listeners.
func (t *Team) send(recipients []*Participant, msg Message) {
	for _, r := range recipients {
		r.enqueue(msg.forRecipient())
	}
	t.raise(msg)
}

func (t *Team) raise(msg Message) {
	t.listenerMu.Lock()
	listeners := make([]listenerEntry, len(t.listeners))
	copy(listeners, t.listeners)
	t.listenerMu.Unlock()

	for _, l := range listeners {
		l.fn(t, msg)
	}
}

func validateParticipantName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewInvalidStateError("participant name is required").
			WithField("name").
			WithCause(errors.ErrInvalidInput)
	}
	return nil
}
