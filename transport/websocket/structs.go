package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/bingo-backend/internal/entity"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Participant identifies the acting participant in a request payload.
type Participant struct {
	ID    string `json:"id"`
	Role  string `json:"role,omitempty"`
	Color string `json:"color,omitempty"`
	Team  string `json:"team,omitempty"`
}

// Payload is the request/response body shared by all actions; only the
// fields relevant to a given action are set.
type Payload struct {
	Participant *Participant     `json:"participant,omitempty"`
	SessionID   string           `json:"session_id,omitempty"`
	BoardRef    string           `json:"board_ref,omitempty"`
	Settings    *entity.Settings `json:"settings,omitempty"`
	Password    string           `json:"password,omitempty"`
	TargetID    string           `json:"target_id,omitempty"`

	Cell            *int  `json:"cell,omitempty"`
	ObservedVersion int64 `json:"observed_version,omitempty"`
	SinceVersion    int64 `json:"since_version,omitempty"`

	Session *entity.Session        `json:"session,omitempty"`
	Result  *entity.MutationResult `json:"result,omitempty"`
	Delta   *entity.SessionDelta   `json:"delta,omitempty"`

	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}
