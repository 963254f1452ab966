// Package event provides a pub-sub event bus that decouples the team
// registry from the components reacting to it.
//
// The registry publishes team lifecycle and message events; the cluster
// synchronizer subscribes to propagate them to other nodes, and the server
// subscribes for logging. Publishers do not know who is listening.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Team Lifecycle:
//   - [TeamAddedEvent]: a team was created, attached or loaded
//   - [TeamRemovedEvent]: a team lost its last participant
//   - [TeamMessageEvent]: a team emitted a message
//   - [TeamSweptEvent]: inactive participants were disconnected
//
// Cluster:
//   - [NodeInitializedEvent]: the startup hand-off finished
//
// # Thread Safety
//
// The [Bus] is safe for concurrent use. Handlers are called synchronously
// and protected against panics. Team events are published while the team
// lock is held; handlers must not try to take that lock again.
//
// # Basic Usage
//
//	bus := event.NewBus(event.WithLogger(logger))
//
//	bus.Subscribe(event.TypeTeamMessage, func(e event.Event) {
//	    msg := e.(event.TeamMessageEvent)
//	    log.Printf("%s: %s", msg.TeamName, msg.Message.Type)
//	})
//
//	id := bus.SubscribeAll(handler)
//	bus.Unsubscribe(id)
package event
