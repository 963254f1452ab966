package cluster

import (
	"encoding/json"

	"github.com/Iron-Ham/planningpoker/internal/poker"
)

// teamMessagePayload is the body of a bus.TypeTeamMessage.
type teamMessagePayload struct {
	TeamName string        `json:"teamName"`
	Message  poker.Message `json:"message"`
}

// teamListPayload is the body of a bus.TypeTeamList.
type teamListPayload struct {
	TeamNames []string `json:"teamNames"`
}

// requestTeamsPayload is the body of a bus.TypeRequestTeams.
type requestTeamsPayload struct {
	TeamNames []string `json:"teamNames"`
}

// initializeTeamPayload is the body of a bus.TypeInitializeTeam. Deleted
// is set when the team vanished before it could be served.
type initializeTeamPayload struct {
	TeamName string          `json:"teamName"`
	Deleted  bool            `json:"deleted,omitempty"`
	Team     json.RawMessage `json:"team,omitempty"`
}
