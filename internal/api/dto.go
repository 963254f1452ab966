package api

import (
	"github.com/Iron-Ham/planningpoker/internal/poker"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failure.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateTeamRequest is the body of POST /api/teams.
type CreateTeamRequest struct {
	TeamName   string `json:"teamName"`
	LeaderName string `json:"leaderName"`
}

// JoinTeamRequest is the body of POST /api/teams/{team}/members.
type JoinTeamRequest struct {
	MemberName string `json:"memberName"`
	AsObserver bool   `json:"asObserver"`
}

// SubmitEstimateRequest is the body of PUT .../estimate. Estimate uses the
// wire encoding of poker.Estimate; null withdraws the card.
type SubmitEstimateRequest struct {
	Estimate *float64 `json:"estimate"`
}

// MemberView is a participant as seen by other participants.
type MemberView struct {
	Name string                `json:"name"`
	Type poker.ParticipantType `json:"type"`
}

// TeamView is the public state of a team.
type TeamView struct {
	Name                 string                            `json:"name"`
	State                poker.TeamState                   `json:"state"`
	Members              []MemberView                      `json:"members"`
	Observers            []MemberView                      `json:"observers"`
	AvailableEstimates   []poker.Estimate                  `json:"availableEstimates"`
	EstimateResult       []poker.EstimateResultItem        `json:"estimateResult,omitempty"`
	EstimateParticipants []poker.EstimateParticipantStatus `json:"estimateParticipants,omitempty"`
}

// TeamResponse answers create and join.
type TeamResponse struct {
	Team TeamView `json:"team"`
}

// ReconnectResponse answers a reconnect. LastMessageID is where the caller
// resumes polling; SelectedEstimate is the caller's card in the open round.
type ReconnectResponse struct {
	Team             TeamView        `json:"team"`
	LastMessageID    int64           `json:"lastMessageId"`
	SelectedEstimate *poker.Estimate `json:"selectedEstimate,omitempty"`
}

// TeamListResponse answers GET /api/teams.
type TeamListResponse struct {
	Teams []string `json:"teams"`
}

// MessagesResponse answers a message poll.
type MessagesResponse struct {
	Messages []poker.Message `json:"messages"`
}

func newTeamView(team *poker.Team) TeamView {
	view := TeamView{
		Name:               team.Name(),
		State:              team.State(),
		Members:            memberViews(team.Members()),
		Observers:          memberViews(team.Observers()),
		AvailableEstimates: team.AvailableEstimates(),
	}
	if result := team.EstimateResult(); result != nil {
		view.EstimateResult = result.Items()
	}
	if team.State() == poker.StateEstimateInProgress {
		view.EstimateParticipants = team.EstimateParticipants()
	}
	return view
}

func memberViews(participants []*poker.Participant) []MemberView {
	views := make([]MemberView, 0, len(participants))
	for _, p := range participants {
		views = append(views, MemberView{Name: p.Name(), Type: p.Type()})
	}
	return views
}
