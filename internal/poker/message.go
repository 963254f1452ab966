package poker

// MessageType identifies the kind of a Message.
type MessageType string

// Message kinds. The string values are part of the wire format.
const (
	MessageEmpty              MessageType = "Empty"
	MessageMemberJoined       MessageType = "MemberJoined"
	MessageMemberDisconnected MessageType = "MemberDisconnected"
	MessageEstimateStarted    MessageType = "EstimateStarted"
	MessageEstimateEnded      MessageType = "EstimateEnded"
	MessageEstimateCanceled   MessageType = "EstimateCanceled"
	MessageMemberEstimated    MessageType = "MemberEstimated"
	MessageMemberActivity     MessageType = "MemberActivity"
	MessageTeamCreated        MessageType = "TeamCreated"
)

// MemberInfo identifies the participant a message is about.
type MemberInfo struct {
	Name string          `json:"name"`
	Type ParticipantType `json:"type"`
}

// EstimateResultItem is one row of a finished round.
type EstimateResultItem struct {
	Member   MemberInfo `json:"member"`
	Estimate *Estimate  `json:"estimate,omitempty"`
}

// Message is a domain event queued to participants and raised to team
// listeners. Which payload fields are set depends on Type:
//
//   - Member for MemberJoined, MemberDisconnected, MemberEstimated and
//     MemberActivity
//   - EstimateResult for EstimateEnded
//   - Estimate for MemberEstimated, only on the copy raised to listeners
//
// ID is zero on the listener copy and is assigned per recipient when the
// message is queued.
type Message struct {
	ID             int64                `json:"id"`
	Type           MessageType          `json:"type"`
	Member         *MemberInfo          `json:"member,omitempty"`
	Estimate       *Estimate            `json:"estimate,omitempty"`
	EstimateResult []EstimateResultItem `json:"estimateResult,omitempty"`
}

// forRecipient returns the copy queued to a participant. The estimate a
// member chose stays hidden until the round ends.
func (m Message) forRecipient() Message {
	c := m
	c.ID = 0
	c.Estimate = nil
	if m.Member != nil {
		info := *m.Member
		c.Member = &info
	}
	if m.EstimateResult != nil {
		c.EstimateResult = make([]EstimateResultItem, len(m.EstimateResult))
		copy(c.EstimateResult, m.EstimateResult)
	}
	return c
}
