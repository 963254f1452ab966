package poker

import (
	"time"

	"github.com/Iron-Ham/planningpoker/internal/errors"
)

// ParticipantType is the closed set of roles a participant can hold.
type ParticipantType string

// Participant roles. The string values are part of the wire format.
const (
	ParticipantObserver ParticipantType = "Observer"
	ParticipantMember   ParticipantType = "Member"
	ParticipantLeader   ParticipantType = "Leader"
)

// Valid reports whether t is one of the known roles.
func (t ParticipantType) Valid() bool {
	switch t {
	case ParticipantObserver, ParticipantMember, ParticipantLeader:
		return true
	}
	return false
}

// CanEstimate reports whether participants of this role put cards on the table.
func (t ParticipantType) CanEstimate() bool {
	return t == ParticipantMember || t == ParticipantLeader
}

// Participant is anyone connected to a Team. Observers only watch, members
// estimate, and the leader is a member that also runs the rounds.
type Participant struct {
	team         *Team
	name         string
	typ          ParticipantType
	estimate     *Estimate
	lastActivity time.Time

	messages      []Message
	lastMessageID int64
	changed       chan struct{}
}

func newParticipant(team *Team, name string, typ ParticipantType) *Participant {
	return &Participant{
		team:         team,
		name:         name,
		typ:          typ,
		lastActivity: team.now(),
	}
}

// Name returns the participant's display name.
func (p *Participant) Name() string { return p.name }

// Type returns the participant's role.
func (p *Participant) Type() ParticipantType { return p.typ }

// Team returns the team the participant belongs or belonged to.
func (p *Participant) Team() *Team { return p.team }

// IsMember reports whether the participant estimates. The leader is a member.
func (p *Participant) IsMember() bool { return p.typ.CanEstimate() }

// IsLeader reports whether the participant runs the rounds.
func (p *Participant) IsLeader() bool { return p.typ == ParticipantLeader }

// Info returns the identity carried in messages about this participant.
func (p *Participant) Info() MemberInfo {
	return MemberInfo{Name: p.name, Type: p.typ}
}

// LastActivity returns when the participant was last seen.
func (p *Participant) LastActivity() time.Time { return p.lastActivity }

// Estimate returns the card the member holds in the current round, or nil.
func (p *Participant) Estimate() *Estimate { return cloneEstimate(p.estimate) }

// SetEstimate records the member's card. A nil estimate clears the slot.
// Setting the card already held is a no-op. While a round is in progress
// the other participants are told the member estimated, and the round
// finishes once every member has a card.
func (p *Participant) SetEstimate(e *Estimate) error {
	if !p.IsMember() {
		return errors.NewInvalidStateError("observers cannot estimate").
			WithField("participant").
			WithValue(p.name)
	}
	if sameEstimate(p.estimate, e) {
		return nil
	}
	if e != nil && !InCatalog(*e) {
		return errors.NewInvalidStateError("estimate is not available in team").
			WithField("estimate").
			WithValue(e.String()).
			WithCause(errors.ErrInvalidEstimate)
	}

	p.estimate = cloneEstimate(e)
	if p.team.state == StateEstimateInProgress {
		p.team.memberEstimated(p)
	}
	return nil
}

// StartEstimate starts a new round. Only the leader may do this.
func (p *Participant) StartEstimate() error {
	if err := p.requireLeader("start estimate"); err != nil {
		return err
	}
	return p.team.StartEstimate()
}

// CancelEstimate cancels the round in progress. Only the leader may do
// this; without a round in progress it does nothing.
func (p *Participant) CancelEstimate() error {
	if err := p.requireLeader("cancel estimate"); err != nil {
		return err
	}
	p.team.CancelEstimate()
	return nil
}

func (p *Participant) requireLeader(action string) error {
	if p.IsLeader() {
		return nil
	}
	return errors.NewInvalidStateError("only the leader can " + action).
		WithField("participant").
		WithValue(p.name)
}

// UpdateActivity marks the participant as seen now and tells the team's
// listeners about it. Nothing is queued to participants.
func (p *Participant) UpdateActivity() {
	p.lastActivity = p.team.now()
	p.team.raise(Message{Type: MessageMemberActivity, Member: ptr(p.Info())})
}

// HasMessage reports whether a message is waiting in the queue.
func (p *Participant) HasMessage() bool {
	return len(p.messages) > 0
}

// PopMessage removes and returns the oldest queued message.
func (p *Participant) PopMessage() (Message, bool) {
	if len(p.messages) == 0 {
		return Message{}, false
	}
	msg := p.messages[0]
	p.messages[0] = Message{}
	p.messages = p.messages[1:]
	return msg, true
}

// Messages returns a copy of the queued messages, oldest first, without
// removing them.
func (p *Participant) Messages() []Message {
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// AcknowledgeMessages drops every queued message with an id up to and
// including lastID.
func (p *Participant) AcknowledgeMessages(lastID int64) {
	n := 0
	for n < len(p.messages) && p.messages[n].ID <= lastID {
		n++
	}
	if n == 0 {
		return
	}
	clear(p.messages[:n])
	p.messages = p.messages[n:]
}

// ClearMessages empties the queue and returns the id of the last message
// ever assigned to this participant.
func (p *Participant) ClearMessages() int64 {
	clear(p.messages)
	p.messages = nil
	return p.lastMessageID
}

// LastMessageID returns the id of the last message assigned to this participant.
func (p *Participant) LastMessageID() int64 { return p.lastMessageID }

// Changed returns a channel that is closed the next time a message is
// queued. Callers read it under the team lock, then wait without the lock.
func (p *Participant) Changed() <-chan struct{} {
	if p.changed == nil {
		p.changed = make(chan struct{})
	}
	return p.changed
}

func (p *Participant) enqueue(msg Message) {
	p.lastMessageID++
	msg.ID = p.lastMessageID
	p.messages = append(p.messages, msg)
	if p.changed != nil {
		close(p.changed)
		p.changed = nil
	}
}

func ptr[T any](v T) *T { return &v }
