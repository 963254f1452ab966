package poker

import (
	"encoding/json"
	"fmt"
	"time"
)

type teamSnapshot struct {
	Name           string                `json:"name"`
	State          TeamState             `json:"state"`
	Members        []participantSnapshot `json:"members"`
	Observers      []participantSnapshot `json:"observers,omitempty"`
	EstimateResult []resultSnapshot      `json:"estimateResult,omitempty"`
}

type participantSnapshot struct {
	Name          string          `json:"name"`
	Type          ParticipantType `json:"type"`
	LastActivity  time.Time       `json:"lastActivity"`
	LastMessageID int64           `json:"lastMessageId"`
	Estimate      *Estimate       `json:"estimate,omitempty"`
	Messages      []Message       `json:"messages,omitempty"`
}

type resultSnapshot struct {
	Member   MemberInfo `json:"member"`
	Estimate *Estimate  `json:"estimate,omitempty"`
}

// MarshalJSON encodes the full team state, including each participant's
// pending messages, so a team can be persisted or handed to another node.
// Listeners are not part of the snapshot.
func (t *Team) MarshalJSON() ([]byte, error) {
	snap := teamSnapshot{
		Name:    t.name,
		State:   t.state,
		Members: make([]participantSnapshot, 0, len(t.members)),
	}
	for _, m := range t.members {
		snap.Members = append(snap.Members, snapshotParticipant(m))
	}
	for _, o := range t.observers {
		snap.Observers = append(snap.Observers, snapshotParticipant(o))
	}
	if t.result != nil {
		for _, e := range t.result.entries {
			snap.EstimateResult = append(snap.EstimateResult, resultSnapshot{
				Member:   e.member.Info(),
				Estimate: cloneEstimate(e.estimate),
			})
		}
	}
	return json.Marshal(snap)
}

func snapshotParticipant(p *Participant) participantSnapshot {
	return participantSnapshot{
		Name:          p.name,
		Type:          p.typ,
		LastActivity:  p.lastActivity,
		LastMessageID: p.lastMessageID,
		Estimate:      cloneEstimate(p.estimate),
		Messages:      p.Messages(),
	}
}

// UnmarshalTeam rebuilds a team from the output of MarshalJSON.
func UnmarshalTeam(data []byte, opts ...Option) (*Team, error) {
	var snap teamSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode team snapshot: %w", err)
	}
	if snap.Name == "" {
		return nil, fmt.Errorf("decode team snapshot: missing team name")
	}
	if !snap.State.Valid() {
		return nil, fmt.Errorf("decode team snapshot %s: unknown state %q", snap.Name, snap.State)
	}

	t := NewTeam(snap.Name, opts...)
	t.state = snap.State

	leaders := 0
	for _, ps := range snap.Members {
		if !ps.Type.CanEstimate() {
			return nil, fmt.Errorf("decode team snapshot %s: member %s has type %q", snap.Name, ps.Name, ps.Type)
		}
		if ps.Type == ParticipantLeader {
			leaders++
		}
		t.members = append(t.members, restoreParticipant(t, ps))
	}
	if leaders > 1 {
		return nil, fmt.Errorf("decode team snapshot %s: %d leaders", snap.Name, leaders)
	}
	for _, ps := range snap.Observers {
		if ps.Type != ParticipantObserver {
			return nil, fmt.Errorf("decode team snapshot %s: observer %s has type %q", snap.Name, ps.Name, ps.Type)
		}
		t.observers = append(t.observers, restoreParticipant(t, ps))
	}

	if snap.EstimateResult != nil && (t.state == StateEstimateInProgress || t.state == StateEstimateFinished) {
		r := &EstimateResult{readOnly: t.state == StateEstimateFinished}
		for _, rs := range snap.EstimateResult {
			member := t.FindParticipant(rs.Member.Name)
			if member == nil || !member.IsMember() {
				// The member left during the round; keep its row keyed to a
				// detached participant so completion ignores it.
				member = &Participant{team: t, name: rs.Member.Name, typ: rs.Member.Type}
			}
			r.entries = append(r.entries, resultEntry{member: member, estimate: cloneEstimate(rs.Estimate)})
		}
		t.result = r
	}
	return t, nil
}

func restoreParticipant(t *Team, ps participantSnapshot) *Participant {
	p := &Participant{
		team:          t,
		name:          ps.Name,
		typ:           ps.Type,
		lastActivity:  ps.LastActivity,
		lastMessageID: ps.LastMessageID,
		estimate:      cloneEstimate(ps.Estimate),
		messages:      ps.Messages,
	}
	return p
}
