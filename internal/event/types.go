package event

import (
	"time"

	"github.com/Iron-Ham/planningpoker/internal/poker"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "team.added", "node.initialized")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeTeamAdded       = "team.added"
	TypeTeamRemoved     = "team.removed"
	TypeTeamMessage     = "team.message"
	TypeTeamSwept       = "team.swept"
	TypeNodeInitialized = "node.initialized"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Team Lifecycle Events
// -----------------------------------------------------------------------------

// TeamOrigin tells how a team entered the registry.
type TeamOrigin string

const (
	// OriginCreated is a brand new team created on this node.
	OriginCreated TeamOrigin = "created"
	// OriginAttached is a team adopted from a caller, usually another node.
	OriginAttached TeamOrigin = "attached"
	// OriginLoaded is a team read back from storage.
	OriginLoaded TeamOrigin = "loaded"
)

// TeamAddedEvent is emitted when a team is published into the registry.
// Handlers run while the team lock is held, so Team may be read directly.
type TeamAddedEvent struct {
	baseEvent
	TeamName string
	Origin   TeamOrigin
	Team     *poker.Team
}

// NewTeamAddedEvent creates a TeamAddedEvent.
func NewTeamAddedEvent(team *poker.Team, origin TeamOrigin) TeamAddedEvent {
	return TeamAddedEvent{
		baseEvent: newBaseEvent(TypeTeamAdded),
		TeamName:  team.Name(),
		Origin:    origin,
		Team:      team,
	}
}

// TeamRemovedEvent is emitted when the last participant left a team and it
// was dropped from the registry.
type TeamRemovedEvent struct {
	baseEvent
	TeamName string
}

// NewTeamRemovedEvent creates a TeamRemovedEvent.
func NewTeamRemovedEvent(teamName string) TeamRemovedEvent {
	return TeamRemovedEvent{
		baseEvent: newBaseEvent(TypeTeamRemoved),
		TeamName:  teamName,
	}
}

// TeamMessageEvent carries a message emitted by a registered team.
// Handlers run while the team lock is held.
type TeamMessageEvent struct {
	baseEvent
	TeamName string
	Team     *poker.Team
	Message  poker.Message
}

// NewTeamMessageEvent creates a TeamMessageEvent.
func NewTeamMessageEvent(team *poker.Team, msg poker.Message) TeamMessageEvent {
	return TeamMessageEvent{
		baseEvent: newBaseEvent(TypeTeamMessage),
		TeamName:  team.Name(),
		Team:      team,
		Message:   msg,
	}
}

// TeamSweptEvent is emitted when the inactivity sweep disconnected
// participants from a team.
type TeamSweptEvent struct {
	baseEvent
	TeamName     string
	Disconnected []string
}

// NewTeamSweptEvent creates a TeamSweptEvent.
func NewTeamSweptEvent(teamName string, disconnected []string) TeamSweptEvent {
	return TeamSweptEvent{
		baseEvent:    newBaseEvent(TypeTeamSwept),
		TeamName:     teamName,
		Disconnected: disconnected,
	}
}

// -----------------------------------------------------------------------------
// Cluster Events
// -----------------------------------------------------------------------------

// NodeInitializedEvent is emitted once a node finished the startup
// hand-off with its peers.
type NodeInitializedEvent struct {
	baseEvent
	NodeID      string
	PeerNodeID  string // empty when no peer answered
	TeamsLoaded int
}

// NewNodeInitializedEvent creates a NodeInitializedEvent.
func NewNodeInitializedEvent(nodeID, peerNodeID string, teamsLoaded int) NodeInitializedEvent {
	return NodeInitializedEvent{
		baseEvent:   newBaseEvent(TypeNodeInitialized),
		NodeID:      nodeID,
		PeerNodeID:  peerNodeID,
		TeamsLoaded: teamsLoaded,
	}
}
