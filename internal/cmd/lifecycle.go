package cmd

import (
	"github.com/Iron-Ham/planningpoker/internal/event"
	"github.com/Iron-Ham/planningpoker/internal/logging"
)

// logLifecycle reports team and node lifecycle events published on events.
// The returned function removes the subscriptions.
func logLifecycle(events *event.Bus, logger *logging.Logger) func() {
	ids := []string{
		events.Subscribe(event.TypeTeamRemoved, func(e event.Event) {
			ev := e.(event.TeamRemovedEvent)
			logger.WithTeam(ev.TeamName).Info("team removed")
		}),
		events.Subscribe(event.TypeTeamSwept, func(e event.Event) {
			ev := e.(event.TeamSweptEvent)
			logger.WithTeam(ev.TeamName).Info("inactive participants disconnected", "participants", ev.Disconnected)
		}),
		events.Subscribe(event.TypeNodeInitialized, func(e event.Event) {
			ev := e.(event.NodeInitializedEvent)
			logger.WithNode(ev.NodeID).Info("node initialized", "peer", ev.PeerNodeID, "teams", ev.TeamsLoaded)
		}),
	}
	return func() {
		for _, id := range ids {
			events.Unsubscribe(id)
		}
	}
}
