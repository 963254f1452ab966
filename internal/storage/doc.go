// Package storage defines where teams live between process restarts.
//
// The registry writes every team mutation through to a [Storage] and reads
// teams back lazily when a name is not in memory. Three backends exist:
//
//   - [Memory]: snapshots kept in process, for tests and single-node runs
//     that do not need durability
//   - [FileStore]: one JSON snapshot per team in a directory
//   - postgres.Store: a teams table in PostgreSQL, shared by every node
//
// Every backend stores the team's JSON snapshot (see poker.Team.MarshalJSON),
// so a loaded team is always a fresh copy and never aliases the one held by
// the registry. LoadTeam returns (nil, nil) for an unknown name. Concurrent
// saves of the same team are last-write-wins.
package storage
