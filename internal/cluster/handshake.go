package cluster

import (
	"context"
	"time"

	"github.com/Iron-Ham/planningpoker/internal/bus"
	"github.com/Iron-Ham/planningpoker/internal/errors"
	"github.com/Iron-Ham/planningpoker/internal/event"
	"github.com/Iron-Ham/planningpoker/internal/poker"
)

// Initialized reports whether the startup hand-off has finished.
func (s *Synchronizer) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// PendingTeams returns the names still awaited from a peer.
func (s *Synchronizer) PendingTeams() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.pending))
	for _, name := range s.pending {
		names = append(names, name)
	}
	return names
}

// initialize repeats the hand-off until it completes or ctx ends.
func (s *Synchronizer) initialize(ctx context.Context) {
	for ctx.Err() == nil {
		if s.handOff(ctx) {
			return
		}
		s.logger.Warn("team hand-off stalled, restarting")
	}
}

// handOff runs one attempt of the startup hand-off. It returns false when
// the peer stopped answering and the attempt must be repeated.
func (s *Synchronizer) handOff(ctx context.Context) bool {
drain:
	for {
		select {
		case <-s.teamLists:
		default:
			break drain
		}
	}

	s.send(ctx, bus.TypeRequestTeamList, "", nil)

	var reply bus.NodeMessage
	timer := time.NewTimer(s.initTimeout)
	select {
	case reply = <-s.teamLists:
		timer.Stop()
	case <-timer.C:
		s.logger.Info("no peer answered the team list request")
		s.finish("", 0)
		return true
	case <-ctx.Done():
		timer.Stop()
		return true
	}

	var list teamListPayload
	if err := reply.Decode(&list); err != nil {
		s.logger.Warn("ignoring malformed team list", "sender", reply.SenderNodeID, "error", err)
		return false
	}

	missing := make([]string, 0, len(list.TeamNames))
	s.mu.Lock()
	clear(s.pending)
	for _, name := range list.TeamNames {
		if _, ok := s.registry.Lookup(name); ok {
			continue
		}
		key := poker.NameKey(name)
		if _, dup := s.pending[key]; dup {
			continue
		}
		s.pending[key] = name
		missing = append(missing, name)
	}
	s.listReceived = true
	s.notifyLocked()
	s.mu.Unlock()

	s.logger.Info("received team list", "peer", reply.SenderNodeID, "teams", len(list.TeamNames), "missing", len(missing))
	if len(missing) == 0 {
		s.finish(reply.SenderNodeID, 0)
		return true
	}

	s.send(ctx, bus.TypeRequestTeams, reply.SenderNodeID, requestTeamsPayload{TeamNames: missing})

	timer = time.NewTimer(s.messageTimeout)
	defer timer.Stop()
	for {
		if len(s.PendingTeams()) == 0 {
			s.finish(reply.SenderNodeID, len(missing))
			return true
		}
		select {
		case <-s.initProgress:
			timer.Reset(s.messageTimeout)
		case <-timer.C:
			return false
		case <-ctx.Done():
			return true
		}
	}
}

func (s *Synchronizer) finish(peer string, teams int) {
	s.mu.Lock()
	s.initialized = true
	clear(s.pending)
	s.notifyLocked()
	s.mu.Unlock()

	s.registry.Bus().Publish(event.NewNodeInitializedEvent(s.nodeID, peer, teams))
}

// resolvePending drops teamName from the pending set.
func (s *Synchronizer) resolvePending(teamName string) {
	s.mu.Lock()
	delete(s.pending, poker.NameKey(teamName))
	s.notifyLocked()
	s.mu.Unlock()

	select {
	case s.initProgress <- struct{}{}:
	default:
	}
}

func (s *Synchronizer) isPending(teamName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[poker.NameKey(teamName)]
	return ok
}

// notifyLocked wakes every waiter. Callers hold s.mu.
func (s *Synchronizer) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// BeforeCreate holds a create until the peer's team list is known and
// rejects names that are still being handed over.
func (s *Synchronizer) BeforeCreate(ctx context.Context, teamName string) error {
	err := s.waitFor(ctx, "create team "+teamName, func() bool {
		return s.initialized || s.listReceived
	})
	if err != nil {
		return err
	}
	if s.isPending(teamName) {
		return errors.NewAlreadyExistsError("team", teamName).WithCause(errors.ErrTeamExists)
	}
	return nil
}

// BeforeGet holds a lookup until teamName is no longer pending.
func (s *Synchronizer) BeforeGet(ctx context.Context, teamName string) error {
	key := poker.NameKey(teamName)
	return s.waitFor(ctx, "get team "+teamName, func() bool {
		if s.initialized {
			return true
		}
		_, pending := s.pending[key]
		return s.listReceived && !pending
	})
}

// waitFor blocks until ready holds. ready runs with s.mu held.
func (s *Synchronizer) waitFor(ctx context.Context, op string, ready func() bool) error {
	limit := s.initTimeout + s.messageTimeout
	timer := time.NewTimer(limit)
	defer timer.Stop()

	for {
		s.mu.Lock()
		ok := ready()
		changed := s.changed
		s.mu.Unlock()
		if ok {
			return nil
		}

		select {
		case <-changed:
		case <-timer.C:
			return errors.NewTimeoutError(op+" during node initialization", limit)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
