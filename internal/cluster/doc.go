// Package cluster makes the team registries of several nodes behave as one.
//
// A [Synchronizer] joins a node to the cluster through a bus.Bus. It
// forwards every team mutation raised by the local registry to the peers,
// replays the mutations it receives from peers against the local teams, and
// on startup fetches the teams other nodes already hold.
//
// # Startup Hand-off
//
//  1. Broadcast RequestTeamList.
//  2. Take the first TeamList reply. Without a reply within the
//     initialization timeout the node is alone and initialization ends.
//  3. Mark every listed team not held locally as pending. Create and Get
//     of a pending name wait (or fail) until the team arrives.
//  4. Ask the responding peer for the pending teams with RequestTeams and
//     attach each InitializeTeam reply. If replies stop for longer than the
//     message timeout, start again at step 1.
//  5. Mark the node initialized and start answering peers' requests.
//
// Waiting uses a channel that is closed on every state change, so blocked
// callers wake exactly when the pending set changes.
//
// # Replay
//
// Incoming team messages are applied by calling the matching team
// operation under the team lock. While a team is being replayed its
// outgoing messages are suppressed, so a mutation never bounces back.
package cluster
