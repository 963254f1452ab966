package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Iron-Ham/planningpoker/internal/errors"
	"github.com/Iron-Ham/planningpoker/internal/poker"
	"github.com/Iron-Ham/planningpoker/internal/registry"
)

// validateName enforces the boundary rules for team and participant names
// and returns the name with surrounding whitespace removed.
func validateName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%s is required", field)
	}
	if len([]rune(name)) > MaxNameLength {
		return "", fmt.Errorf("%s must be at most %d characters", field, MaxNameLength)
	}
	return name, nil
}

// withTeam resolves the team of the request and runs fn under its lock.
func (s *Server) withTeam(ctx context.Context, teamName string, fn func(*poker.Team) error) (*registry.TeamLock, error) {
	lock, err := s.registry.Get(ctx, teamName)
	if err != nil {
		return nil, err
	}
	return lock, lock.Do(ctx, fn)
}

// withMember resolves the team and the named participant and runs fn under
// the team lock.
func (s *Server) withMember(r *http.Request, fn func(*poker.Team, *poker.Participant) error) (*registry.TeamLock, *poker.Participant, error) {
	memberName := chi.URLParam(r, "member")
	var member *poker.Participant
	lock, err := s.withTeam(r.Context(), chi.URLParam(r, "team"), func(team *poker.Team) error {
		member = team.FindParticipant(memberName)
		if member == nil {
			return errors.NewNotFoundError("participant", memberName).WithCause(errors.ErrParticipantNotFound)
		}
		return fn(team, member)
	})
	return lock, member, err
}

func (s *Server) listTeams(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, TeamListResponse{Teams: s.registry.TeamNames()})
}

// createTeam handles POST /api/teams.
func (s *Server) createTeam(w http.ResponseWriter, r *http.Request) {
	var req CreateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "invalid request body")
		return
	}
	teamName, err := validateName("teamName", req.TeamName)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, err.Error())
		return
	}
	leaderName, err := validateName("leaderName", req.LeaderName)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, err.Error())
		return
	}

	lock, err := s.registry.Create(r.Context(), teamName, leaderName)
	if err != nil {
		handleError(w, s.logger, err)
		return
	}
	var view TeamView
	err = lock.Do(r.Context(), func(team *poker.Team) error {
		view = newTeamView(team)
		return nil
	})
	if err != nil {
		handleError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, TeamResponse{Team: view})
}

// getTeam handles GET /api/teams/{team}.
func (s *Server) getTeam(w http.ResponseWriter, r *http.Request) {
	var view TeamView
	_, err := s.withTeam(r.Context(), chi.URLParam(r, "team"), func(team *poker.Team) error {
		view = newTeamView(team)
		return nil
	})
	if err != nil {
		handleError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// joinTeam handles POST /api/teams/{team}/members.
func (s *Server) joinTeam(w http.ResponseWriter, r *http.Request) {
	var req JoinTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "invalid request body")
		return
	}
	memberName, err := validateName("memberName", req.MemberName)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, err.Error())
		return
	}

	var view TeamView
	_, err = s.withTeam(r.Context(), chi.URLParam(r, "team"), func(team *poker.Team) error {
		if _, err := team.Join(memberName, req.AsObserver); err != nil {
			return err
		}
		view = newTeamView(team)
		return nil
	})
	if err != nil {
		handleError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, TeamResponse{Team: view})
}

// reconnect handles POST .../members/{member}/reconnect. The queue is
// dropped and polling resumes after the last assigned message id.
func (s *Server) reconnect(w http.ResponseWriter, r *http.Request) {
	var resp ReconnectResponse
	_, _, err := s.withMember(r, func(team *poker.Team, member *poker.Participant) error {
		resp.LastMessageID = member.ClearMessages()
		if team.State() == poker.StateEstimateInProgress {
			resp.SelectedEstimate = member.Estimate()
		}
		resp.Team = newTeamView(team)
		member.UpdateActivity()
		return nil
	})
	if err != nil {
		handleError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// disconnect handles DELETE .../members/{member}.
func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	memberName := chi.URLParam(r, "member")
	_, err := s.withTeam(r.Context(), chi.URLParam(r, "team"), func(team *poker.Team) error {
		return team.Disconnect(memberName)
	})
	if err != nil {
		handleError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startEstimate(w http.ResponseWriter, r *http.Request) {
	_, _, err := s.withMember(r, func(_ *poker.Team, member *poker.Participant) error {
		return member.StartEstimate()
	})
	if err != nil {
		handleError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cancelEstimate(w http.ResponseWriter, r *http.Request) {
	_, _, err := s.withMember(r, func(_ *poker.Team, member *poker.Participant) error {
		return member.CancelEstimate()
	})
	if err != nil {
		handleError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// submitEstimate handles PUT .../members/{member}/estimate.
func (s *Server) submitEstimate(w http.ResponseWriter, r *http.Request) {
	var req SubmitEstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "invalid request body")
		return
	}
	var estimate *poker.Estimate
	if req.Estimate != nil {
		e := poker.EstimateFromWire(*req.Estimate)
		estimate = &e
	}

	_, _, err := s.withMember(r, func(_ *poker.Team, member *poker.Participant) error {
		return member.SetEstimate(estimate)
	})
	if err != nil {
		handleError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// messages handles GET .../members/{member}/messages?lastMessageId=N. It
// acknowledges messages up to N, waits for the next one and returns the
// whole queue. The queue is only trimmed by the next acknowledgement.
func (s *Server) messages(w http.ResponseWriter, r *http.Request) {
	var lastID int64
	if v := r.URL.Query().Get("lastMessageId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 0 {
			respondError(w, http.StatusBadRequest, CodeInvalidInput, "lastMessageId must be a non-negative integer")
			return
		}
		lastID = id
	}

	lock, member, err := s.withMember(r, func(_ *poker.Team, member *poker.Participant) error {
		member.AcknowledgeMessages(lastID)
		member.UpdateActivity()
		return nil
	})
	if err != nil {
		handleError(w, s.logger, err)
		return
	}

	if _, err := s.registry.WaitForMessage(r.Context(), lock, member, s.waitTimeout); err != nil {
		if r.Context().Err() != nil {
			return
		}
		handleError(w, s.logger, err)
		return
	}

	var msgs []poker.Message
	err = lock.Do(r.Context(), func(*poker.Team) error {
		msgs = member.Messages()
		return nil
	})
	if err != nil {
		handleError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, MessagesResponse{Messages: msgs})
}
