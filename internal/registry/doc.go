// Package registry is the in-process home of all active planning poker
// teams.
//
// A [Registry] maps case-folded team names to the team and its [TeamLock].
// Teams not in memory are loaded lazily from a storage.Storage, and every
// mutation a team emits is written back to storage. When the last
// participant of a team disconnects, the team is dropped from memory and
// deleted from storage.
//
// # Locking
//
// All access to a team goes through its TeamLock. Acquisition is bounded by
// the configured lock timeout and fails with a timeout error rather than
// blocking forever:
//
//	lock, err := reg.Get(ctx, "Alpha")
//	if err != nil {
//	    return err
//	}
//	err = lock.Do(ctx, func(team *poker.Team) error {
//	    _, err := team.Join("Bob", false)
//	    return err
//	})
//
// Different teams never contend with each other. Resolving a name that is
// not in memory ("load from storage, then publish") is serialized per name
// so concurrent creators of the same team see exactly one winner.
//
// # Events
//
// The registry publishes team.added, team.message, team.removed and
// team.swept events on its event.Bus. Team events are published while the
// team lock is held.
//
// # Gate
//
// A [Gate] lets the cluster synchronizer hold back Create and Get calls
// while the node is still receiving teams from its peers.
package registry
