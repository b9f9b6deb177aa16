package pkg

import "github.com/google/uuid"

// GenerateSessionID - generates a unique identifier for a session.
func GenerateSessionID() string {
	return uuid.NewString()
}

// GenerateParticipantID - generates a unique identifier for a participant.
func GenerateParticipantID() string {
	return uuid.NewString()
}
