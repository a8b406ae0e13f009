package parties

import (
	"context"

	"github.com/google/uuid"

	"github.com/otgil/rethread/internal/auth"
	"github.com/otgil/rethread/internal/models"
)

// hostedParty loads a party and checks that caller hosts it. Nothing is
// mutated before this check passes.
func hostedParty(ctx context.Context, s Store, partyID uuid.UUID, caller auth.Identity) (*models.Party, error) {
	p, err := s.GetParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if p.HostID != caller.UserID {
		return nil, ErrForbidden
	}
	return p, nil
}

func requireAdmin(caller auth.Identity) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
