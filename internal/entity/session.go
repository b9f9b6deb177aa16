package entity

import (
	"fmt"
	"time"

	"github.com/rocketscienceinc/bingo-backend/internal/apperror"
)

const (
	StatusWaiting   = "waiting"
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"

	RoleHost      = "host"
	RolePlayer    = "player"
	RoleSpectator = "spectator"
)

const defaultMaxParticipants = 8

// Participant is one member of a session roster. Departed participants are
// kept with Left=true so their timestamps survive and rejoins are possible.
type Participant struct {
	ID       string    `json:"id"`
	Role     string    `json:"role"`
	Color    string    `json:"color,omitempty"`
	Team     string    `json:"team,omitempty"`
	Ready    bool      `json:"ready,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
	LeftAt   time.Time `json:"left_at,omitempty"`
	Left     bool      `json:"left,omitempty"`
}

type Settings struct {
	MaxParticipants  int    `json:"max_participants"`
	AllowSpectators  bool   `json:"allow_spectators"`
	AutoStart        bool   `json:"auto_start"`
	TimeLimitSeconds *int   `json:"time_limit_seconds,omitempty"`
	RequireApproval  bool   `json:"require_approval"`
	Password         string `json:"password,omitempty"`
	MarkMode         string `json:"mark_mode"`
}

// Normalize - fills in defaults for zero-valued settings.
func (that *Settings) Normalize() {
	if that.MaxParticipants <= 0 {
		that.MaxParticipants = defaultMaxParticipants
	}
	if that.MarkMode != MarkModeShared {
		that.MarkMode = MarkModeExclusive
	}
}

// Session is one hosted game: a roster, lifecycle status and a live board
// copy. Version is the session-wide optimistic-concurrency token, bumped by
// every accepted mutation of any kind.
type Session struct {
	ID       string `json:"id"`
	BoardRef string `json:"board_ref"`
	Board    *Board `json:"board"`

	Status       string                  `json:"status"`
	Participants map[string]*Participant `json:"participants"`
	Approved     map[string]bool         `json:"approved,omitempty"`
	Settings     Settings                `json:"settings"`

	Version int64 `json:"version"`

	Winner         string   `json:"winner,omitempty"`
	WinningPattern string   `json:"winning_pattern,omitempty"`
	WinningCells   []int    `json:"winning_cells,omitempty"`
	WonPatterns    []string `json:"won_patterns,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// NewSession - creates a waiting session around a fresh board copy.
func NewSession(id, boardRef string, board *Board, settings Settings, now time.Time) *Session {
	settings.Normalize()

	return &Session{
		ID:           id,
		BoardRef:     boardRef,
		Board:        board,
		Status:       StatusWaiting,
		Participants: make(map[string]*Participant),
		Approved:     make(map[string]bool),
		Settings:     settings,
		CreatedAt:    now,
	}
}

func (that *Session) IsWaiting() bool   { return that.Status == StatusWaiting }
func (that *Session) IsActive() bool    { return that.Status == StatusActive }
func (that *Session) IsPaused() bool    { return that.Status == StatusPaused }
func (that *Session) IsCompleted() bool { return that.Status == StatusCompleted }

// ActiveParticipant - returns the participant if they are present and have
// not departed.
func (that *Session) ActiveParticipant(participantID string) (*Participant, bool) {
	participant, ok := that.Participants[participantID]
	if !ok || participant.Left {
		return nil, false
	}
	return participant, true
}

// CanMark - reports whether the participant may mutate the board.
// Spectators watch, they do not mark.
func (that *Session) CanMark(participantID string) bool {
	participant, ok := that.ActiveParticipant(participantID)
	return ok && participant.Role != RoleSpectator
}

// Join - adds a participant to the roster. A departed participant may rejoin
// under their previous identity.
func (that *Session) Join(participantID, role, color, team, password string, now time.Time) (*Participant, error) {
	if that.IsCompleted() {
		return nil, apperror.ErrSessionNotActive
	}

	if existing, ok := that.Participants[participantID]; ok && !existing.Left {
		return nil, fmt.Errorf("%w: %s", apperror.ErrDuplicateParticipant, participantID)
	}

	if that.Settings.Password != "" && password != that.Settings.Password {
		return nil, fmt.Errorf("%w: wrong password", apperror.ErrPermissionDenied)
	}

	if role == RoleSpectator && !that.Settings.AllowSpectators {
		return nil, fmt.Errorf("%w: spectators are not allowed", apperror.ErrPermissionDenied)
	}

	if that.Settings.RequireApproval && role != RoleHost && !that.Approved[participantID] {
		return nil, fmt.Errorf("%w: approval required", apperror.ErrPermissionDenied)
	}

	if role != RoleSpectator && that.countSeated() >= that.Settings.MaxParticipants {
		return nil, fmt.Errorf("%w: limit %d", apperror.ErrSessionFull, that.Settings.MaxParticipants)
	}

	participant := &Participant{
		ID:       participantID,
		Role:     role,
		Color:    color,
		Team:     team,
		JoinedAt: now,
	}

	if existing, ok := that.Participants[participantID]; ok {
		participant.JoinedAt = existing.JoinedAt
	}

	that.Participants[participantID] = participant
	that.bump()

	return participant, nil
}

// Leave - marks the participant departed. If the sole host leaves, the
// earliest-joined remaining player is promoted so the session always has a
// host without any external input.
func (that *Session) Leave(participantID string, now time.Time) (*Participant, error) {
	participant, ok := that.ActiveParticipant(participantID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrUnknownParticipant, participantID)
	}

	participant.Left = true
	participant.LeftAt = now

	if participant.Role == RoleHost {
		that.promoteHost()
	}

	that.bump()

	return participant, nil
}

// Approve - whitelists a participant for joining a require-approval session.
// Only the host may approve. Approvals are not broadcast, so they leave the
// version untouched; the stream stays gap-free for version-tracking
// subscribers.
func (that *Session) Approve(approverID, participantID string) error {
	approver, ok := that.ActiveParticipant(approverID)
	if !ok || approver.Role != RoleHost {
		return fmt.Errorf("%w: only the host can approve", apperror.ErrPermissionDenied)
	}

	that.Approved[participantID] = true

	return nil
}

// Start - moves the session from waiting to active. Requires at least one
// seated non-spectator.
func (that *Session) Start(now time.Time) error {
	if !that.IsWaiting() {
		return fmt.Errorf("%w: cannot start from %q", apperror.ErrInvalidTransition, that.Status)
	}

	if that.countSeated() == 0 {
		return fmt.Errorf("%w: no players", apperror.ErrInvalidTransition)
	}

	that.Status = StatusActive
	that.StartedAt = now
	that.bump()

	return nil
}

// ShouldAutoStart - reports whether a waiting auto-start session has reached
// its participant threshold.
func (that *Session) ShouldAutoStart() bool {
	return that.Settings.AutoStart && that.IsWaiting() && that.countSeated() >= that.Settings.MaxParticipants
}

func (that *Session) Pause() error {
	if !that.IsActive() {
		return fmt.Errorf("%w: cannot pause from %q", apperror.ErrInvalidTransition, that.Status)
	}

	that.Status = StatusPaused
	that.bump()

	return nil
}

func (that *Session) Resume() error {
	if !that.IsPaused() {
		return fmt.Errorf("%w: cannot resume from %q", apperror.ErrInvalidTransition, that.Status)
	}

	that.Status = StatusActive
	that.bump()

	return nil
}

// Complete - records the winner and ends the session. The first completion
// wins; any later attempt is rejected so a racing second pattern can never
// overwrite the recorded outcome.
func (that *Session) Complete(winnerID, winningPattern string, winningCells []int, wonPatterns []string, now time.Time) error {
	if that.IsCompleted() {
		return fmt.Errorf("%w: winner is %q", apperror.ErrAlreadyCompleted, that.Winner)
	}

	if !that.IsActive() {
		return fmt.Errorf("%w: cannot complete from %q", apperror.ErrInvalidTransition, that.Status)
	}

	that.Status = StatusCompleted
	that.Winner = winnerID
	that.WinningPattern = winningPattern
	that.WinningCells = winningCells
	that.WonPatterns = wonPatterns
	that.CompletedAt = now
	that.bump()

	return nil
}

// Cancel - terminates the session without a winner. Valid from any
// non-completed status; this is the only path from waiting to completed.
func (that *Session) Cancel(actorID string, now time.Time) error {
	actor, ok := that.ActiveParticipant(actorID)
	if !ok || actor.Role != RoleHost {
		return fmt.Errorf("%w: only the host can cancel", apperror.ErrPermissionDenied)
	}

	if that.IsCompleted() {
		return apperror.ErrAlreadyCompleted
	}

	that.Status = StatusCompleted
	that.CompletedAt = now
	that.bump()

	return nil
}

// ExpireTimeLimit - forces an active session to complete with no winner when
// its time limit runs out.
func (that *Session) ExpireTimeLimit(now time.Time) error {
	if !that.IsActive() {
		return fmt.Errorf("%w: cannot expire from %q", apperror.ErrInvalidTransition, that.Status)
	}

	that.Status = StatusCompleted
	that.CompletedAt = now
	that.bump()

	return nil
}

// Snapshot - returns a deep copy of the session for readers outside the
// serialization point.
func (that *Session) Snapshot() *Session {
	clone := *that
	clone.Board = that.Board.Snapshot()

	clone.Participants = make(map[string]*Participant, len(that.Participants))
	for id, participant := range that.Participants {
		copied := *participant
		clone.Participants[id] = &copied
	}

	clone.Approved = make(map[string]bool, len(that.Approved))
	for id, ok := range that.Approved {
		clone.Approved[id] = ok
	}

	if that.WinningCells != nil {
		clone.WinningCells = append([]int(nil), that.WinningCells...)
	}
	if that.WonPatterns != nil {
		clone.WonPatterns = append([]string(nil), that.WonPatterns...)
	}

	return &clone
}

func (that *Session) bump() int64 {
	that.Version++
	return that.Version
}

// Bump - increments the session version outside the state-machine methods;
// the concurrency controller uses it for accepted board mutations.
func (that *Session) Bump() int64 {
	return that.bump()
}

func (that *Session) countSeated() int {
	count := 0
	for _, participant := range that.Participants {
		if !participant.Left && participant.Role != RoleSpectator {
			count++
		}
	}
	return count
}

// promoteHost - deterministic host succession: earliest JoinedAt wins, ties
// broken by participant ID.
func (that *Session) promoteHost() {
	var successor *Participant
	for _, participant := range that.Participants {
		if participant.Left || participant.Role != RolePlayer {
			continue
		}
		if successor == nil ||
			participant.JoinedAt.Before(successor.JoinedAt) ||
			(participant.JoinedAt.Equal(successor.JoinedAt) && participant.ID < successor.ID) {
			successor = participant
		}
	}

	if successor != nil {
		successor.Role = RoleHost
	}
}
