package parties

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otgil/rethread/internal/auth"
	"github.com/otgil/rethread/internal/invitecode"
	"github.com/otgil/rethread/internal/models"
	"github.com/otgil/rethread/pkg/queue"
)

// DefaultCodeAttempts bounds invitation code regeneration on collision.
const DefaultCodeAttempts = 5

// EventPublisher receives committed party transitions.
type EventPublisher interface {
	EnqueuePartyEvent(ctx context.Context, payload queue.PartyEventPayload) error
}

// CreateInput holds the host-supplied fields of a new party.
type CreateInput struct {
	Title       string
	Description string
	Date        time.Time
	Location    string
	ImageURL    string
	Details     []string
	Impact      *models.ImpactStats
	KitDetails  *models.KitDetails
}

// Patch is a partial host update. Nil fields are left untouched.
type Patch struct {
	Title       *string
	Description *string
	Date        *time.Time
	Location    *string
	ImageURL    *string
	Details     *[]string
	Status      *models.PartyStatus
	Impact      *models.ImpactStats
	KitDetails  *models.KitDetails
}

// Controller drives the party state machine.
type Controller struct {
	store        Store
	events       EventPublisher
	logger       *zap.Logger
	codeAttempts int
	newCode      func() (string, error)
	now          func() time.Time
}

// NewController creates a lifecycle controller. events may be nil.
func NewController(store Store, events EventPublisher, codeAttempts int, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if codeAttempts <= 0 {
		codeAttempts = DefaultCodeAttempts
	}
	return &Controller{
		store:        store,
		events:       events,
		logger:       logger,
		codeAttempts: codeAttempts,
		newCode:      invitecode.Generate,
		now:          time.Now,
	}
}

// Create persists a PENDING_APPROVAL party with the host as its ACCEPTED first
// participant. Both rows commit together or not at all.
func (c *Controller) Create(ctx context.Context, in CreateInput, host auth.Identity) (*models.Party, error) {
	for attempt := 1; attempt <= c.codeAttempts; attempt++ {
		code, err := c.newCode()
		if err != nil {
			return nil, err
		}
		p := &models.Party{
			HostID:         host.UserID,
			Title:          in.Title,
			Description:    in.Description,
			Date:           in.Date,
			Location:       in.Location,
			ImageURL:       in.ImageURL,
			Details:        in.Details,
			Status:         models.PartyStatusPendingApproval,
			InvitationCode: code,
			Impact:         in.Impact,
			KitDetails:     in.KitDetails,
		}
		err = c.store.WithTx(ctx, func(tx Store) error {
			if err := tx.CreateParty(ctx, p); err != nil {
				return err
			}
			hostRow := &models.Participation{
				PartyID:  p.ID,
				UserID:   host.UserID,
				Nickname: host.Nickname,
				Status:   models.ParticipationAccepted,
			}
			if _, err := tx.AddParticipation(ctx, hostRow); err != nil {
				return err
			}
			p.Participants = []models.Participation{*hostRow}
			return nil
		})
		if errors.Is(err, ErrCodeCollision) {
			c.logger.Warn("invitation code collision", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}
		c.logger.Info("party created", zap.String("party_id", p.ID.String()), zap.String("host_id", host.UserID.String()))
		return p, nil
	}
	return nil, ErrCodeCollision
}

// Get returns a party with its participants.
func (c *Controller) Get(ctx context.Context, id uuid.UUID) (*models.Party, error) {
	p, err := c.store.GetParty(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.withParticipants(ctx, p)
}

// List returns parties in a status, optionally filtered by search text.
func (c *Controller) List(ctx context.Context, status models.PartyStatus, search string) ([]models.Party, error) {
	return c.store.ListParties(ctx, status, search)
}

// ListForUser returns the parties a user hosts or participates in.
func (c *Controller) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Party, error) {
	return c.store.ListPartiesForUser(ctx, userID)
}

// Approve moves a PENDING_APPROVAL party to UPCOMING. Admin only.
func (c *Controller) Approve(ctx context.Context, id uuid.UUID, caller auth.Identity) (*models.Party, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return c.transition(ctx, id, func(p *models.Party) error {
		if p.Status != models.PartyStatusPendingApproval {
			return ErrInvalidState
		}
		p.Status = models.PartyStatusUpcoming
		return nil
	})
}

// Reject closes a PENDING_APPROVAL or UPCOMING party. Admin only.
func (c *Controller) Reject(ctx context.Context, id uuid.UUID, caller auth.Identity) (*models.Party, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return c.transition(ctx, id, func(p *models.Party) error {
		if p.Status != models.PartyStatusPendingApproval && p.Status != models.PartyStatusUpcoming {
			return ErrInvalidState
		}
		p.Status = models.PartyStatusRejected
		return nil
	})
}

// ForceStatus overwrites the status with no source-state check. Admin only.
func (c *Controller) ForceStatus(ctx context.Context, id uuid.UUID, caller auth.Identity, status models.PartyStatus) (*models.Party, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return c.transition(ctx, id, func(p *models.Party) error {
		p.Status = status
		return nil
	})
}

// HostUpdate applies a partial update requested by the host. Closed parties
// cannot be edited, and the only status a host may set is COMPLETED from UPCOMING.
// The row stays locked from read to write so concurrent patches do not drop fields.
func (c *Controller) HostUpdate(ctx context.Context, id uuid.UUID, caller auth.Identity, patch Patch) (*models.Party, error) {
	var (
		p    *models.Party
		from models.PartyStatus
	)
	err := c.store.WithTx(ctx, func(tx Store) error {
		var err error
		if p, err = tx.LockParty(ctx, id); err != nil {
			return err
		}
		if err := checkEditable(p, caller); err != nil {
			return err
		}
		from = p.Status
		if patch.Status != nil && *patch.Status != p.Status {
			if *patch.Status != models.PartyStatusCompleted {
				return ErrStatusReserved
			}
			if p.Status != models.PartyStatusUpcoming {
				return ErrInvalidState
			}
			p.Status = models.PartyStatusCompleted
		}
		patch.apply(p)
		return tx.UpdateParty(ctx, p, from)
	})
	if err != nil {
		return nil, err
	}
	c.announce(ctx, p, from)
	return c.withParticipants(ctx, p)
}

func (pt Patch) apply(p *models.Party) {
	if pt.Title != nil {
		p.Title = *pt.Title
	}
	if pt.Description != nil {
		p.Description = *pt.Description
	}
	if pt.Date != nil {
		p.Date = *pt.Date
	}
	if pt.Location != nil {
		p.Location = *pt.Location
	}
	if pt.ImageURL != nil {
		p.ImageURL = *pt.ImageURL
	}
	if pt.Details != nil {
		p.Details = append([]string{}, (*pt.Details)...)
	}
	if pt.Impact != nil {
		impact := *pt.Impact
		p.Impact = &impact
	}
	if pt.KitDetails != nil {
		kit := *pt.KitDetails
		p.KitDetails = &kit
	}
}

// transition locks a party, lets mutate change its status and writes it back
// in the same transaction.
func (c *Controller) transition(ctx context.Context, id uuid.UUID, mutate func(*models.Party) error) (*models.Party, error) {
	var (
		p    *models.Party
		from models.PartyStatus
	)
	err := c.store.WithTx(ctx, func(tx Store) error {
		var err error
		if p, err = tx.LockParty(ctx, id); err != nil {
			return err
		}
		from = p.Status
		if err := mutate(p); err != nil {
			return err
		}
		return tx.UpdateParty(ctx, p, from)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("party status changed",
		zap.String("party_id", p.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(p.Status)),
	)
	c.announce(ctx, p, from)
	return c.withParticipants(ctx, p)
}

// announce enqueues an event for a committed move into UPCOMING or COMPLETED.
// A failed enqueue is logged; the transition already stands.
func (c *Controller) announce(ctx context.Context, p *models.Party, from models.PartyStatus) {
	if c.events == nil || p.Status == from {
		return
	}
	var event queue.PartyEvent
	switch p.Status {
	case models.PartyStatusUpcoming:
		event = queue.EventPartyApproved
	case models.PartyStatusCompleted:
		event = queue.EventPartyCompleted
	default:
		return
	}
	payload := queue.PartyEventPayload{PartyID: p.ID, Event: event, OccurredAt: c.now().UTC()}
	if err := c.events.EnqueuePartyEvent(ctx, payload); err != nil {
		c.logger.Error("enqueue party event",
			zap.String("party_id", p.ID.String()),
			zap.String("event", string(event)),
			zap.Error(err),
		)
	}
}

func (c *Controller) withParticipants(ctx context.Context, p *models.Party) (*models.Party, error) {
	list, err := c.store.ListParticipations(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Participants = list
	return p, nil
}

// EditableParty returns the party if caller hosts it and it is still open for edits.
func (c *Controller) EditableParty(ctx context.Context, id uuid.UUID, caller auth.Identity) (*models.Party, error) {
	p, err := c.store.GetParty(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkEditable(p, caller); err != nil {
		return nil, err
	}
	return p, nil
}

func checkEditable(p *models.Party, caller auth.Identity) error {
	if p.HostID != caller.UserID {
		return ErrForbidden
	}
	if p.Status.Terminal() {
		return ErrTerminalState
	}
	return nil
}
