package cluster

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Iron-Ham/planningpoker/internal/bus"
	"github.com/Iron-Ham/planningpoker/internal/errors"
	"github.com/Iron-Ham/planningpoker/internal/poker"
)

func (s *Synchronizer) receive(ctx context.Context, messages <-chan bus.NodeMessage) {
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			s.dispatch(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Synchronizer) dispatch(ctx context.Context, msg bus.NodeMessage) {
	switch msg.Type {
	case bus.TypeTeamList:
		select {
		case s.teamLists <- msg:
		default:
			s.logger.Debug("dropping surplus team list", "sender", msg.SenderNodeID)
		}
	case bus.TypeRequestTeamList:
		s.serveTeamList(ctx, msg)
	case bus.TypeRequestTeams:
		s.serveTeams(ctx, msg)
	case bus.TypeInitializeTeam:
		s.onInitializeTeam(ctx, msg)
	case bus.TypeTeamCreated:
		s.onTeamCreated(ctx, msg)
	case bus.TypeTeamMessage:
		s.onRemoteTeamMessage(ctx, msg)
	default:
		s.logger.Warn("unknown node message", "type", msg.Type, "sender", msg.SenderNodeID)
	}
}

func (s *Synchronizer) serveTeamList(ctx context.Context, msg bus.NodeMessage) {
	if !s.Initialized() {
		return
	}
	s.send(ctx, bus.TypeTeamList, msg.SenderNodeID, teamListPayload{TeamNames: s.registry.TeamNames()})
}

func (s *Synchronizer) serveTeams(ctx context.Context, msg bus.NodeMessage) {
	if !s.Initialized() {
		return
	}
	var req requestTeamsPayload
	if err := msg.Decode(&req); err != nil {
		s.logger.Warn("ignoring malformed team request", "sender", msg.SenderNodeID, "error", err)
		return
	}

	for _, name := range req.TeamNames {
		reply := initializeTeamPayload{TeamName: name, Deleted: true}
		if lock, ok := s.registry.Lookup(name); ok {
			err := lock.Do(ctx, func(team *poker.Team) error {
				snapshot, err := json.Marshal(team)
				if err != nil {
					return err
				}
				reply.Deleted = false
				reply.Team = snapshot
				return nil
			})
			if err != nil {
				s.logger.WithTeam(name).Warn("serving team as deleted", "error", err)
			}
		}
		s.send(ctx, bus.TypeInitializeTeam, msg.SenderNodeID, reply)
	}
}

func (s *Synchronizer) onInitializeTeam(ctx context.Context, msg bus.NodeMessage) {
	var payload initializeTeamPayload
	if err := msg.Decode(&payload); err != nil {
		s.logger.Warn("ignoring malformed team hand-off", "sender", msg.SenderNodeID, "error", err)
		return
	}
	if !s.isPending(payload.TeamName) {
		return
	}
	defer s.resolvePending(payload.TeamName)

	if payload.Deleted {
		s.logger.WithTeam(payload.TeamName).Debug("peer no longer holds team")
		return
	}
	s.adopt(ctx, payload.TeamName, payload.Team)
}

func (s *Synchronizer) onTeamCreated(ctx context.Context, msg bus.NodeMessage) {
	var head struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(msg.Data, &head); err != nil || head.Name == "" {
		s.logger.Warn("ignoring malformed team snapshot", "sender", msg.SenderNodeID, "error", err)
		return
	}
	if s.isPending(head.Name) {
		return
	}
	s.adopt(ctx, head.Name, msg.Data)
}

// adopt attaches a peer's team snapshot to the local registry.
func (s *Synchronizer) adopt(ctx context.Context, teamName string, snapshot []byte) {
	logger := s.logger.WithTeam(teamName)
	team, err := poker.UnmarshalTeam(snapshot, poker.WithClock(s.registry.Clock()))
	if err != nil {
		logger.Warn("ignoring invalid team snapshot", "error", err)
		return
	}

	err = s.whileProcessing(teamName, func() error {
		_, err := s.registry.Attach(ctx, team)
		return err
	})
	switch {
	case err == nil:
		logger.Debug("adopted team from peer")
	case errors.KindOf(err) == errors.KindAlreadyExists:
		logger.Debug("team already present", "error", err)
	default:
		logger.Warn("failed to adopt team", "error", err)
	}
}

func (s *Synchronizer) onRemoteTeamMessage(ctx context.Context, msg bus.NodeMessage) {
	var payload teamMessagePayload
	if err := msg.Decode(&payload); err != nil {
		s.logger.Warn("ignoring malformed team message", "sender", msg.SenderNodeID, "error", err)
		return
	}
	if s.isPending(payload.TeamName) {
		return
	}
	lock, ok := s.registry.Lookup(payload.TeamName)
	if !ok {
		return
	}

	logger := s.logger.WithTeam(payload.TeamName)
	err := lock.Do(ctx, func(team *poker.Team) error {
		return s.whileProcessing(payload.TeamName, func() error {
			return replay(team, payload.Message)
		})
	})
	if err == nil {
		return
	}
	if errors.IsSemanticError(err) && !errors.IsRetryable(err) {
		logger.Debug("skipped duplicate team message", "type", payload.Message.Type, "error", err)
		return
	}
	logger.LogError("failed to replay team message", err, "type", payload.Message.Type)
}

// replay applies a peer's team message to the local copy of the team.
func replay(team *poker.Team, msg poker.Message) error {
	switch msg.Type {
	case poker.MessageEstimateStarted:
		return team.StartEstimate()
	case poker.MessageEstimateCanceled:
		team.CancelEstimate()
		return nil
	case poker.MessageEstimateEnded, poker.MessageEmpty:
		return nil
	}

	if msg.Member == nil {
		return fmt.Errorf("%s message without member", msg.Type)
	}
	name := msg.Member.Name

	switch msg.Type {
	case poker.MessageMemberJoined:
		if team.FindParticipant(name) != nil {
			return errors.NewAlreadyExistsError("participant", name).WithCause(errors.ErrNameConflict)
		}
		var err error
		switch {
		case msg.Member.Type == poker.ParticipantLeader && team.Leader() == nil:
			_, err = team.SetLeader(name)
		default:
			_, err = team.Join(name, msg.Member.Type == poker.ParticipantObserver)
		}
		return err
	case poker.MessageMemberDisconnected:
		return team.Disconnect(name)
	}

	p := team.FindParticipant(name)
	if p == nil {
		return errors.NewNotFoundError("participant", name).WithCause(errors.ErrParticipantNotFound)
	}
	switch msg.Type {
	case poker.MessageMemberEstimated:
		return p.SetEstimate(msg.Estimate)
	case poker.MessageMemberActivity:
		p.UpdateActivity()
		return nil
	default:
		return fmt.Errorf("cannot replay %s message", msg.Type)
	}
}
