package parties

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otgil/rethread/internal/auth"
	"github.com/otgil/rethread/internal/invitecode"
	"github.com/otgil/rethread/internal/models"
)

// ParticipationManager enforces who may join, leave or be removed from a party.
type ParticipationManager struct {
	store   Store
	limiter JoinLimiter
	logger  *zap.Logger
}

// NewParticipationManager creates a participation manager. limiter may be nil.
func NewParticipationManager(store Store, limiter JoinLimiter, logger *zap.Logger) *ParticipationManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParticipationManager{store: store, limiter: limiter, logger: logger}
}

// Join adds the caller to a party as PENDING. The code must belong to partyID;
// an unknown party and a wrong code fail identically. Joining again returns the
// existing row unchanged.
func (m *ParticipationManager) Join(ctx context.Context, partyID uuid.UUID, code string, caller auth.Identity) (*models.Participation, error) {
	if m.limiter != nil {
		blocked, err := m.limiter.Blocked(ctx, caller.UserID)
		if err != nil {
			m.logger.Warn("join limiter unavailable", zap.Error(err))
		} else if blocked {
			return nil, ErrTooManyAttempts
		}
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if !invitecode.Valid(code) {
		m.recordFailure(ctx, caller.UserID)
		return nil, ErrInvalidInvitation
	}
	p, err := m.store.GetPartyByCode(ctx, code)
	if errors.Is(err, ErrNotFound) || (err == nil && p.ID != partyID) {
		m.recordFailure(ctx, caller.UserID)
		return nil, ErrInvalidInvitation
	}
	if err != nil {
		return nil, err
	}

	row := &models.Participation{
		PartyID:  p.ID,
		UserID:   caller.UserID,
		Nickname: caller.Nickname,
		Status:   models.ParticipationPending,
	}
	if p.Status.Terminal() {
		existing, err := m.store.GetParticipation(ctx, p.ID, caller.UserID)
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTerminalState
		}
		return existing, err
	}
	created, err := m.store.AddParticipation(ctx, row)
	if err != nil {
		return nil, err
	}
	if created {
		m.logger.Info("participant joined", zap.String("party_id", p.ID.String()), zap.String("user_id", caller.UserID.String()))
	}
	return row, nil
}

func (m *ParticipationManager) recordFailure(ctx context.Context, userID uuid.UUID) {
	if m.limiter == nil {
		return
	}
	if err := m.limiter.RecordFailure(ctx, userID); err != nil {
		m.logger.Warn("record join failure", zap.Error(err))
	}
}

// ListParticipants returns every participation row of a party. Host only.
func (m *ParticipationManager) ListParticipants(ctx context.Context, partyID uuid.UUID, caller auth.Identity) ([]models.Participation, error) {
	if _, err := hostedParty(ctx, m.store, partyID, caller); err != nil {
		return nil, err
	}
	return m.store.ListParticipations(ctx, partyID)
}

// Remove deletes another user's participation. Host only; the host's own row cannot be removed.
func (m *ParticipationManager) Remove(ctx context.Context, partyID uuid.UUID, caller auth.Identity, target uuid.UUID) (*models.Participation, error) {
	var removed *models.Participation
	err := m.store.WithTx(ctx, func(tx Store) error {
		p, err := hostedParty(ctx, tx, partyID, caller)
		if err != nil {
			return err
		}
		if target == p.HostID {
			return ErrHostRemoval
		}
		removed, err = tx.DeleteParticipation(ctx, partyID, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("participant removed", zap.String("party_id", partyID.String()), zap.String("user_id", target.String()))
	return removed, nil
}

// Leave deletes the caller's own participation. The host cannot leave.
func (m *ParticipationManager) Leave(ctx context.Context, partyID uuid.UUID, caller auth.Identity) (*models.Participation, error) {
	var removed *models.Participation
	err := m.store.WithTx(ctx, func(tx Store) error {
		p, err := tx.GetParty(ctx, partyID)
		if err != nil {
			return err
		}
		if p.HostID == caller.UserID {
			return ErrHostLeave
		}
		removed, err = tx.DeleteParticipation(ctx, partyID, caller.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// SetStatus lets the host accept, reject or mark attendance for a participant.
func (m *ParticipationManager) SetStatus(ctx context.Context, partyID uuid.UUID, caller auth.Identity, target uuid.UUID, status models.ParticipationStatus) (*models.Participation, error) {
	if status == models.ParticipationPending {
		return nil, ErrInvalidOperation
	}
	var updated *models.Participation
	err := m.store.WithTx(ctx, func(tx Store) error {
		p, err := hostedParty(ctx, tx, partyID, caller)
		if err != nil {
			return err
		}
		if p.Status == models.PartyStatusRejected {
			return ErrTerminalState
		}
		if target == p.HostID {
			return ErrHostRemoval
		}
		updated, err = tx.UpdateParticipationStatus(ctx, partyID, target, status)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
