package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreditType classifies a ledger entry.
type CreditType string

const (
	CreditEarnedClothing CreditType = "EARNED_CLOTHING"
	CreditEarnedEvent    CreditType = "EARNED_EVENT"
	CreditSpentReward    CreditType = "SPENT_REWARD"
)

// ParseCreditType converts a stored string into a CreditType. Unknown values are rejected.
func ParseCreditType(s string) (CreditType, error) {
	switch t := CreditType(s); t {
	case CreditEarnedClothing, CreditEarnedEvent, CreditSpentReward:
		return t, nil
	}
	return "", fmt.Errorf("unknown credit type %q", s)
}

// Credit is one entry in a user's credit ledger. Spending entries carry negative amounts.
type Credit struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	PartyID      *uuid.UUID `json:"party_id,omitempty"`
	ActivityName string     `json:"activity_name"`
	Type         CreditType `json:"type"`
	Amount       int        `json:"amount"`
	CreatedAt    time.Time  `json:"created_at"`
}
