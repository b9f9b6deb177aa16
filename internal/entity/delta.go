package entity

import "time"

// Delta types broadcast to session subscribers.
const (
	DeltaCellChanged       = "cell_changed"
	DeltaParticipantJoined = "participant_joined"
	DeltaParticipantLeft   = "participant_left"
	DeltaStatusChanged     = "status_changed"
	DeltaSessionWon        = "session_won"
)

// Mutation actions.
const (
	ActionMark   = "mark"
	ActionUnmark = "unmark"
)

// MutationRequest is one attempt to mark or unmark a cell.
// ClientObservedVersion is the session version the client last saw; it is
// recorded for diagnostics only and never used to reject the request;
// server acceptance order is the sole source of truth.
type MutationRequest struct {
	SessionID             string `json:"session_id"`
	ParticipantID         string `json:"participant_id"`
	CellPosition          int    `json:"cell_position"`
	Action                string `json:"action"`
	ClientObservedVersion int64  `json:"client_observed_version,omitempty"`
}

// WinOutcome reports a completed win: the lexicographically-first satisfied
// pattern is the display pattern, with every satisfied pattern listed for
// downstream consumers.
type WinOutcome struct {
	WinnerID    string   `json:"winner_id"`
	Pattern     string   `json:"pattern"`
	Cells       []int    `json:"cells"`
	AllPatterns []string `json:"all_patterns"`
}

// MutationResult is the synchronous answer to a MutationRequest. A rejected
// mutation carries a reason; an accepted no-op (board already in the desired
// state) is accepted with NoOp=true so clients can tell the two apart.
type MutationResult struct {
	Accepted       bool        `json:"accepted"`
	Reason         string      `json:"reason,omitempty"`
	NoOp           bool        `json:"no_op,omitempty"`
	SessionVersion int64       `json:"session_version"`
	CellVersion    int64       `json:"cell_version,omitempty"`
	Win            *WinOutcome `json:"win,omitempty"`
}

// SessionDelta is the minimal description of one accepted state change,
// fanned out to all subscribers in serialization order. Subscribers apply
// deltas idempotently by SessionVersion.
type SessionDelta struct {
	Type           string       `json:"type"`
	SessionID      string       `json:"session_id"`
	SessionVersion int64        `json:"session_version"`
	Cell           *CellDelta   `json:"cell,omitempty"`
	Participant    *Participant `json:"participant,omitempty"`
	Status         string       `json:"status,omitempty"`
	Win            *WinOutcome  `json:"win,omitempty"`
	OccurredAt     time.Time    `json:"occurred_at"`
}
