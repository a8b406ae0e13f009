package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ParticipationStatus is the state of a user's membership in a party.
type ParticipationStatus string

const (
	ParticipationPending  ParticipationStatus = "PENDING"
	ParticipationAccepted ParticipationStatus = "ACCEPTED"
	ParticipationRejected ParticipationStatus = "REJECTED"
	ParticipationAttended ParticipationStatus = "ATTENDED"
)

// ParseParticipationStatus converts a stored or requested string into a ParticipationStatus.
func ParseParticipationStatus(s string) (ParticipationStatus, error) {
	switch st := ParticipationStatus(s); st {
	case ParticipationPending, ParticipationAccepted, ParticipationRejected, ParticipationAttended:
		return st, nil
	}
	return "", fmt.Errorf("unknown participation status %q", s)
}

// Participation links a user to a party. At most one row exists per (party, user).
type Participation struct {
	PartyID   uuid.UUID           `json:"party_id"`
	UserID    uuid.UUID           `json:"user_id"`
	Nickname  string              `json:"nickname"`
	Status    ParticipationStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
}
