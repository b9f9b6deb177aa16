package apperror

import "errors"

var (
	ErrInvalidPosition      = errors.New("cell position is out of range")
	ErrInvalidAction        = errors.New("unknown mutation action")
	ErrUnknownParticipant   = errors.New("participant is not part of the session")
	ErrSessionNotActive     = errors.New("session is not active")
	ErrInvalidTransition    = errors.New("invalid session status transition")
	ErrSessionFull          = errors.New("session is full")
	ErrDuplicateParticipant = errors.New("participant already joined")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrAlreadyCompleted     = errors.New("session is already completed")
	ErrResyncRequired       = errors.New("resync required")

	ErrSessionNotFound  = errors.New("session not found")
	ErrTemplateNotFound = errors.New("board template not found")
)

// Reason - maps a rejection error to the reason code sent over the wire.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPosition):
		return "invalid_position"
	case errors.Is(err, ErrInvalidAction):
		return "invalid_action"
	case errors.Is(err, ErrUnknownParticipant):
		return "unknown_participant"
	case errors.Is(err, ErrSessionNotActive):
		return "session_not_active"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrSessionFull):
		return "session_full"
	case errors.Is(err, ErrDuplicateParticipant):
		return "duplicate_participant"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, ErrResyncRequired):
		return "resync_required"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrTemplateNotFound):
		return "template_not_found"
	default:
		return "internal_error"
	}
}
