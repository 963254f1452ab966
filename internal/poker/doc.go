// Package poker implements the planning poker team state machine.
//
// A [Team] is a named estimation session. It owns a collection of
// [Participant] values of three closed roles (Observer, Member and Leader),
// the state of the current estimation round and a fixed catalog of
// selectable [Estimate] values.
//
// # Round Protocol
//
//	Initial ──start──▶ EstimateInProgress ──all estimated──▶ EstimateFinished
//	                        │                                      │
//	                        └──cancel──▶ EstimateCanceled ◀────────┘ (start again)
//
// The round finishes automatically once every member that was present when
// the round started, and is still in the team, has recorded an estimate.
// A member leaving mid-round re-evaluates completion.
//
// # Messages
//
// Every state-changing operation pushes an id-tagged copy of a [Message] into
// the queue of each recipient participant and raises the untagged message to
// the listeners registered with [Team.AddListener]. Listeners are how the
// registry persists teams and how the cluster synchronizer propagates
// mutations to other nodes.
//
// # Thread Safety
//
// A Team and its participants are not safe for concurrent use. The registry
// serializes all access to a team behind that team's lock.
package poker
