package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otgil/rethread/internal/models"
	"github.com/otgil/rethread/pkg/queue"
)

// Payout is the credit amounts granted when a party completes.
type Payout struct {
	PerAttendance int
	HostBonus     int
}

// PartySource loads parties and their participants.
type PartySource interface {
	GetParty(ctx context.Context, id uuid.UUID) (*models.Party, error)
	ListParticipations(ctx context.Context, partyID uuid.UUID) ([]models.Participation, error)
}

// CreditAwarder writes ledger entries. Award is idempotent per (user, party, type).
type CreditAwarder interface {
	Award(ctx context.Context, c *models.Credit) (bool, error)
}

// JobSource is the queue the processor drains.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// PartyEventProcessor handles committed party transitions.
type PartyEventProcessor struct {
	parties PartySource
	credits CreditAwarder
	jobs    JobSource
	payout  Payout
	backoff time.Duration
	logger  *zap.Logger
}

// NewPartyEventProcessor creates a party event processor.
func NewPartyEventProcessor(parties PartySource, credits CreditAwarder, jobs JobSource, payout Payout, logger *zap.Logger) *PartyEventProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PartyEventProcessor{
		parties: parties,
		credits: credits,
		jobs:    jobs,
		payout:  payout,
		backoff: queue.RetryBackoff,
		logger:  logger,
	}
}

// Process executes one party event job.
func (p *PartyEventProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypePartyEvent {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.PartyEventPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	switch payload.Event {
	case queue.EventPartyApproved:
		p.logger.Info("party approved", zap.String("party_id", payload.PartyID.String()))
		return nil
	case queue.EventPartyCompleted:
		return p.payCompletion(ctx, payload.PartyID)
	default:
		return fmt.Errorf("unknown party event: %s", payload.Event)
	}
}

// payCompletion credits every accepted or attending participant, plus a bonus
// for the host. Re-running it awards nothing new.
func (p *PartyEventProcessor) payCompletion(ctx context.Context, partyID uuid.UUID) error {
	party, err := p.parties.GetParty(ctx, partyID)
	if err != nil {
		return fmt.Errorf("load party %s: %w", partyID, err)
	}
	if party.Status != models.PartyStatusCompleted {
		p.logger.Warn("skipping payout for party that is no longer completed",
			zap.String("party_id", partyID.String()), zap.String("status", string(party.Status)))
		return nil
	}
	rows, err := p.parties.ListParticipations(ctx, partyID)
	if err != nil {
		return fmt.Errorf("load participants %s: %w", partyID, err)
	}

	awarded := 0
	for _, row := range rows {
		if row.Status != models.ParticipationAccepted && row.Status != models.ParticipationAttended {
			continue
		}
		amount := p.payout.PerAttendance
		if row.UserID == party.HostID {
			amount += p.payout.HostBonus
		}
		if amount <= 0 {
			continue
		}
		created, err := p.credits.Award(ctx, &models.Credit{
			UserID:       row.UserID,
			PartyID:      &party.ID,
			ActivityName: party.Title,
			Type:         models.CreditEarnedEvent,
			Amount:       amount,
		})
		if err != nil {
			return fmt.Errorf("award %s: %w", row.UserID, err)
		}
		if created {
			awarded++
		}
	}
	p.logger.Info("party payout completed", zap.String("party_id", partyID.String()), zap.Int("awarded", awarded))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *PartyEventProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("party event worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *PartyEventProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
