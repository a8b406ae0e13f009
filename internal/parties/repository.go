package parties

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/otgil/rethread/internal/models"
)

const (
	partyColumns = `id, host_id, title, description, date, location, image_url, details, status, invitation_code,
		impact_items_exchanged, impact_water_saved, impact_co2_reduced,
		kit_participants, kit_items_per_person, kit_cost, created_at, updated_at`
	participationColumns = `party_id, user_id, nickname, status, created_at`

	uniqueViolation          = "23505"
	invitationCodeConstraint = "parties_invitation_code_key"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Repository handles party and participation persistence.
type Repository struct {
	db DB
}

// NewRepository creates a party repository. db is usually a *pgxpool.Pool.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// WithTx implements Store.
func (r *Repository) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Repository{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanParty(row scanner) (*models.Party, error) {
	var (
		p                                models.Party
		status                           string
		itemsExchanged, water, co2       *int
		kitPeople, kitPerPerson, kitCost *int
	)
	err := row.Scan(&p.ID, &p.HostID, &p.Title, &p.Description, &p.Date, &p.Location, &p.ImageURL, &p.Details,
		&status, &p.InvitationCode, &itemsExchanged, &water, &co2, &kitPeople, &kitPerPerson, &kitCost,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.Status, err = models.ParsePartyStatus(status); err != nil {
		return nil, fmt.Errorf("party %s: %w", p.ID, err)
	}
	if p.Details == nil {
		p.Details = []string{}
	}
	if itemsExchanged != nil && water != nil && co2 != nil {
		p.Impact = &models.ImpactStats{ItemsExchanged: *itemsExchanged, WaterSaved: *water, CO2Reduced: *co2}
	}
	if kitPeople != nil && kitPerPerson != nil && kitCost != nil {
		p.KitDetails = &models.KitDetails{Participants: *kitPeople, ItemsPerPerson: *kitPerPerson, Cost: *kitCost}
	}
	return &p, nil
}

func scanParticipation(row scanner) (*models.Participation, error) {
	var (
		pp     models.Participation
		status string
	)
	if err := row.Scan(&pp.PartyID, &pp.UserID, &pp.Nickname, &status, &pp.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	st, err := models.ParseParticipationStatus(status)
	if err != nil {
		return nil, fmt.Errorf("participation %s/%s: %w", pp.PartyID, pp.UserID, err)
	}
	pp.Status = st
	return &pp, nil
}

func (r *Repository) queryParties(ctx context.Context, q string, args ...any) ([]models.Party, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Party{}
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// GetParty returns a party by ID.
func (r *Repository) GetParty(ctx context.Context, id uuid.UUID) (*models.Party, error) {
	return scanParty(r.db.QueryRow(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = $1`, id))
}

// LockParty returns a party by ID with its row locked FOR UPDATE.
func (r *Repository) LockParty(ctx context.Context, id uuid.UUID) (*models.Party, error) {
	return scanParty(r.db.QueryRow(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = $1 FOR UPDATE`, id))
}

// GetPartyByCode returns the party holding an invitation code.
func (r *Repository) GetPartyByCode(ctx context.Context, code string) (*models.Party, error) {
	return scanParty(r.db.QueryRow(ctx, `SELECT `+partyColumns+` FROM parties WHERE invitation_code = $1`, code))
}

// ListParties returns parties in a status, optionally narrowed by a title/description search.
func (r *Repository) ListParties(ctx context.Context, status models.PartyStatus, search string) ([]models.Party, error) {
	q := `SELECT ` + partyColumns + ` FROM parties WHERE status = $1`
	args := []any{string(status)}
	if search = strings.TrimSpace(search); search != "" {
		q += ` AND (title ILIKE $2 OR description ILIKE $2)`
		args = append(args, "%"+likeEscaper.Replace(search)+"%")
	}
	return r.queryParties(ctx, q+` ORDER BY date DESC, created_at DESC`, args...)
}

// ListPartiesForUser returns every party the user hosts or participates in, once each.
func (r *Repository) ListPartiesForUser(ctx context.Context, userID uuid.UUID) ([]models.Party, error) {
	const q = `SELECT ` + partyColumns + ` FROM parties
		WHERE host_id = $1 OR id IN (SELECT party_id FROM party_participations WHERE user_id = $1)
		ORDER BY date DESC, created_at DESC`
	return r.queryParties(ctx, q, userID)
}

func impactArgs(i *models.ImpactStats) (a, b, c *int) {
	if i == nil {
		return nil, nil, nil
	}
	return &i.ItemsExchanged, &i.WaterSaved, &i.CO2Reduced
}

func kitArgs(k *models.KitDetails) (a, b, c *int) {
	if k == nil {
		return nil, nil, nil
	}
	return &k.Participants, &k.ItemsPerPerson, &k.Cost
}

// CreateParty inserts a new party.
func (r *Repository) CreateParty(ctx context.Context, p *models.Party) error {
	const q = `INSERT INTO parties (id, host_id, title, description, date, location, image_url, details, status, invitation_code,
		impact_items_exchanged, impact_water_saved, impact_co2_reduced, kit_participants, kit_items_per_person, kit_cost)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`
	if p.Details == nil {
		p.Details = []string{}
	}
	items, water, co2 := impactArgs(p.Impact)
	people, perPerson, cost := kitArgs(p.KitDetails)
	err := r.db.QueryRow(ctx, q, p.HostID, p.Title, p.Description, p.Date, p.Location, p.ImageURL, p.Details,
		string(p.Status), p.InvitationCode, items, water, co2, people, perPerson, cost).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == invitationCodeConstraint {
			return ErrCodeCollision
		}
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// UpdateParty writes the mutable fields of p if the stored status is still from.
func (r *Repository) UpdateParty(ctx context.Context, p *models.Party, from models.PartyStatus) error {
	const q = `UPDATE parties SET title = $1, description = $2, date = $3, location = $4, image_url = $5, details = $6,
		status = $7, impact_items_exchanged = $8, impact_water_saved = $9, impact_co2_reduced = $10,
		kit_participants = $11, kit_items_per_person = $12, kit_cost = $13, updated_at = NOW()
		WHERE id = $14 AND status = $15
		RETURNING updated_at`
	if p.Details == nil {
		p.Details = []string{}
	}
	items, water, co2 := impactArgs(p.Impact)
	people, perPerson, cost := kitArgs(p.KitDetails)
	var updatedAt time.Time
	err := r.db.QueryRow(ctx, q, p.Title, p.Description, p.Date, p.Location, p.ImageURL, p.Details,
		string(p.Status), items, water, co2, people, perPerson, cost, p.ID, string(from)).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetParty(ctx, p.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: party status changed concurrently", ErrConflict)
	}
	if err != nil {
		return err
	}
	p.UpdatedAt = updatedAt
	return nil
}

// GetParticipation returns the participation row for a (party, user) pair.
func (r *Repository) GetParticipation(ctx context.Context, partyID, userID uuid.UUID) (*models.Participation, error) {
	const q = `SELECT ` + participationColumns + ` FROM party_participations WHERE party_id = $1 AND user_id = $2`
	return scanParticipation(r.db.QueryRow(ctx, q, partyID, userID))
}

// ListParticipations returns every participation row of a party in insertion order.
func (r *Repository) ListParticipations(ctx context.Context, partyID uuid.UUID) ([]models.Participation, error) {
	const q = `SELECT ` + participationColumns + ` FROM party_participations WHERE party_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, q, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Participation{}
	for rows.Next() {
		pp, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *pp)
	}
	return list, rows.Err()
}

// AddParticipation inserts a participation row, or loads the existing one for the pair.
func (r *Repository) AddParticipation(ctx context.Context, p *models.Participation) (bool, error) {
	const q = `INSERT INTO party_participations (party_id, user_id, nickname, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (party_id, user_id) DO NOTHING
		RETURNING created_at`
	err := r.db.QueryRow(ctx, q, p.PartyID, p.UserID, p.Nickname, string(p.Status)).Scan(&p.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	existing, err := r.GetParticipation(ctx, p.PartyID, p.UserID)
	if err != nil {
		return false, err
	}
	*p = *existing
	return false, nil
}

// UpdateParticipationStatus sets the status of one participation row.
func (r *Repository) UpdateParticipationStatus(ctx context.Context, partyID, userID uuid.UUID, status models.ParticipationStatus) (*models.Participation, error) {
	const q = `UPDATE party_participations SET status = $3 WHERE party_id = $1 AND user_id = $2
		RETURNING ` + participationColumns
	return scanParticipation(r.db.QueryRow(ctx, q, partyID, userID, string(status)))
}

// DeleteParticipation removes one participation row and returns it.
func (r *Repository) DeleteParticipation(ctx context.Context, partyID, userID uuid.UUID) (*models.Participation, error) {
	const q = `DELETE FROM party_participations WHERE party_id = $1 AND user_id = $2
		RETURNING ` + participationColumns
	return scanParticipation(r.db.QueryRow(ctx, q, partyID, userID))
}
