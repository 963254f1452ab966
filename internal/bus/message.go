package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

// MessageType identifies the kind of a NodeMessage.
type MessageType string

// Node message kinds.
const (
	// TypeTeamMessage replays one team mutation on the receiver.
	TypeTeamMessage MessageType = "ScrumTeamMessage"
	// TypeTeamCreated ships the full snapshot of a newly created team.
	TypeTeamCreated MessageType = "TeamCreated"
	// TypeRequestTeamList asks peers which teams they hold.
	TypeRequestTeamList MessageType = "RequestTeamList"
	// TypeTeamList answers TypeRequestTeamList.
	TypeTeamList MessageType = "TeamList"
	// TypeRequestTeams asks one peer for the snapshots of named teams.
	TypeRequestTeams MessageType = "RequestTeams"
	// TypeInitializeTeam answers TypeRequestTeams, one message per team.
	TypeInitializeTeam MessageType = "InitializeTeam"
)

// NodeMessage is the envelope exchanged between nodes.
type NodeMessage struct {
	SenderNodeID    string          `json:"senderNodeId"`
	RecipientNodeID string          `json:"recipientNodeId,omitempty"`
	Type            MessageType     `json:"type"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// NewNodeMessage encodes data into a message of type typ.
func NewNodeMessage(typ MessageType, data any) (NodeMessage, error) {
	msg := NodeMessage{Type: typ}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return NodeMessage{}, fmt.Errorf("bus: encode %s: %w", typ, err)
	}
	msg.Data = raw
	return msg, nil
}

// Decode unmarshals the message payload into v.
func (m NodeMessage) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("bus: %s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("bus: decode %s: %w", m.Type, err)
	}
	return nil
}

// deliverable reports whether nodeID should receive m.
func (m NodeMessage) deliverable(nodeID string) bool {
	if m.SenderNodeID == nodeID {
		return false
	}
	return m.RecipientNodeID == "" || m.RecipientNodeID == nodeID
}

// Bus connects one node to its peers.
type Bus interface {
	// Register starts receiving messages for nodeID.
	Register(ctx context.Context, nodeID string) error
	// Unregister stops receiving and closes the Messages channel.
	Unregister() error
	// Send stamps msg with the registered node id and delivers it to peers.
	Send(ctx context.Context, msg NodeMessage) error
	// Messages returns the channel of messages addressed to this node.
	Messages() <-chan NodeMessage
}
