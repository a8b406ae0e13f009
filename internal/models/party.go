package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PartyStatus is the lifecycle state of a party.
type PartyStatus string

const (
	PartyStatusPendingApproval PartyStatus = "PENDING_APPROVAL"
	PartyStatusUpcoming        PartyStatus = "UPCOMING"
	PartyStatusCompleted       PartyStatus = "COMPLETED"
	PartyStatusRejected        PartyStatus = "REJECTED"
)

// ParsePartyStatus converts a stored or requested string into a PartyStatus.
// Unknown values are rejected.
func ParsePartyStatus(s string) (PartyStatus, error) {
	switch st := PartyStatus(s); st {
	case PartyStatusPendingApproval, PartyStatusUpcoming, PartyStatusCompleted, PartyStatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown party status %q", s)
}

// Terminal reports whether no further transition is defined out of the status.
func (s PartyStatus) Terminal() bool {
	return s == PartyStatusCompleted || s == PartyStatusRejected
}

// ImpactStats summarises what a finished party saved. All three fields are set together.
type ImpactStats struct {
	ItemsExchanged int `json:"items_exchanged"`
	WaterSaved     int `json:"water_saved"`
	CO2Reduced     int `json:"co2_reduced"`
}

// KitDetails describes the party kit a host ordered.
type KitDetails struct {
	Participants   int `json:"participants"`
	ItemsPerPerson int `json:"items_per_person"`
	Cost           int `json:"cost"`
}

// Party is a scheduled clothing-exchange event.
type Party struct {
	ID             uuid.UUID       `json:"id"`
	HostID         uuid.UUID       `json:"host_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Date           time.Time       `json:"date"`
	Location       string          `json:"location"`
	ImageURL       string          `json:"image_url"`
	Details        []string        `json:"details"`
	Status         PartyStatus     `json:"status"`
	InvitationCode string          `json:"invitation_code,omitempty"`
	Impact         *ImpactStats    `json:"impact,omitempty"`
	KitDetails     *KitDetails     `json:"kit_details,omitempty"`
	Participants   []Participation `json:"participants,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Public returns the projection shown to callers who neither host the party nor
// administer the platform. It carries no invitation code and no participants.
func (p Party) Public() Party {
	p.InvitationCode = ""
	p.Participants = nil
	return p
}
