package parties

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/otgil/rethread/internal/models"
	"github.com/otgil/rethread/pkg/queue"
)

// memStore is an in-memory Store. WithTx snapshots state and restores it when fn fails.
type memStore struct {
	parties map[uuid.UUID]models.Party
	rows    map[uuid.UUID][]models.Participation
	clock   time.Time

	failAddParticipation error
	updates              int
	locks                int
	inTx                 bool
}

func newMemStore() *memStore {
	return &memStore{
		parties: map[uuid.UUID]models.Party{},
		rows:    map[uuid.UUID][]models.Participation{},
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func cloneParty(p models.Party) models.Party {
	p.Details = append([]string{}, p.Details...)
	if p.Impact != nil {
		v := *p.Impact
		p.Impact = &v
	}
	if p.KitDetails != nil {
		v := *p.KitDetails
		p.KitDetails = &v
	}
	p.Participants = nil
	return p
}

func (m *memStore) GetParty(_ context.Context, id uuid.UUID) (*models.Party, error) {
	p, ok := m.parties[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneParty(p)
	return &out, nil
}

func (m *memStore) LockParty(ctx context.Context, id uuid.UUID) (*models.Party, error) {
	if !m.inTx {
		return nil, errLockOutsideTx
	}
	m.locks++
	return m.GetParty(ctx, id)
}

func (m *memStore) GetPartyByCode(_ context.Context, code string) (*models.Party, error) {
	for _, p := range m.parties {
		if p.InvitationCode == code {
			out := cloneParty(p)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func sortByDate(list []models.Party) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Date.Equal(list[j].Date) {
			return list[i].Date.After(list[j].Date)
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func (m *memStore) ListParties(_ context.Context, status models.PartyStatus, search string) ([]models.Party, error) {
	search = strings.ToLower(strings.TrimSpace(search))
	list := []models.Party{}
	for _, p := range m.parties {
		if p.Status != status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Title), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		list = append(list, cloneParty(p))
	}
	sortByDate(list)
	return list, nil
}

func (m *memStore) ListPartiesForUser(_ context.Context, userID uuid.UUID) ([]models.Party, error) {
	list := []models.Party{}
	for id, p := range m.parties {
		member := p.HostID == userID
		for _, r := range m.rows[id] {
			member = member || r.UserID == userID
		}
		if member {
			list = append(list, cloneParty(p))
		}
	}
	sortByDate(list)
	return list, nil
}

func (m *memStore) CreateParty(_ context.Context, p *models.Party) error {
	for _, existing := range m.parties {
		if existing.InvitationCode == p.InvitationCode {
			return ErrCodeCollision
		}
	}
	if p.Details == nil {
		p.Details = []string{}
	}
	p.ID = uuid.New()
	p.CreatedAt = m.tick()
	p.UpdatedAt = p.CreatedAt
	m.parties[p.ID] = cloneParty(*p)
	return nil
}

func (m *memStore) UpdateParty(_ context.Context, p *models.Party, from models.PartyStatus) error {
	stored, ok := m.parties[p.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != from {
		return ErrConflict
	}
	p.UpdatedAt = m.tick()
	m.parties[p.ID] = cloneParty(*p)
	m.updates++
	return nil
}

func (m *memStore) GetParticipation(_ context.Context, partyID, userID uuid.UUID) (*models.Participation, error) {
	for _, r := range m.rows[partyID] {
		if r.UserID == userID {
			out := r
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ListParticipations(_ context.Context, partyID uuid.UUID) ([]models.Participation, error) {
	return append([]models.Participation{}, m.rows[partyID]...), nil
}

func (m *memStore) AddParticipation(ctx context.Context, p *models.Participation) (bool, error) {
	if m.failAddParticipation != nil {
		return false, m.failAddParticipation
	}
	if existing, err := m.GetParticipation(ctx, p.PartyID, p.UserID); err == nil {
		*p = *existing
		return false, nil
	}
	p.CreatedAt = m.tick()
	m.rows[p.PartyID] = append(m.rows[p.PartyID], *p)
	return true, nil
}

func (m *memStore) UpdateParticipationStatus(_ context.Context, partyID, userID uuid.UUID, status models.ParticipationStatus) (*models.Participation, error) {
	for i, r := range m.rows[partyID] {
		if r.UserID == userID {
			m.rows[partyID][i].Status = status
			out := m.rows[partyID][i]
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) DeleteParticipation(_ context.Context, partyID, userID uuid.UUID) (*models.Participation, error) {
	rows := m.rows[partyID]
	for i, r := range rows {
		if r.UserID == userID {
			m.rows[partyID] = append(append([]models.Participation{}, rows[:i]...), rows[i+1:]...)
			out := r
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) WithTx(_ context.Context, fn func(Store) error) error {
	parties := make(map[uuid.UUID]models.Party, len(m.parties))
	for k, v := range m.parties {
		parties[k] = cloneParty(v)
	}
	rows := make(map[uuid.UUID][]models.Participation, len(m.rows))
	for k, v := range m.rows {
		rows[k] = append([]models.Participation{}, v...)
	}
	m.inTx = true
	defer func() { m.inTx = false }()
	if err := fn(m); err != nil {
		m.parties, m.rows = parties, rows
		return err
	}
	return nil
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	events []queue.PartyEventPayload
	err    error
}

func (r *recordingPublisher) EnqueuePartyEvent(_ context.Context, payload queue.PartyEventPayload) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, payload)
	return nil
}

// memLimiter counts failures per user in memory.
type memLimiter struct {
	limit    int
	failures map[uuid.UUID]int
	err      error
}

func newMemLimiter(limit int) *memLimiter {
	return &memLimiter{limit: limit, failures: map[uuid.UUID]int{}}
}

func (l *memLimiter) Blocked(_ context.Context, userID uuid.UUID) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	return l.failures[userID] >= l.limit, nil
}

func (l *memLimiter) RecordFailure(_ context.Context, userID uuid.UUID) error {
	if l.err != nil {
		return l.err
	}
	l.failures[userID]++
	return nil
}

var (
	errBoom          = errors.New("boom")
	errLockOutsideTx = errors.New("row lock taken outside a transaction")
)
