package parties

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/otgil/rethread/internal/models"
)

// Store is the persistence contract for parties and participations.
// Lookups return ErrNotFound when the row is absent.
type Store interface {
	GetParty(ctx context.Context, id uuid.UUID) (*models.Party, error)
	GetPartyByCode(ctx context.Context, code string) (*models.Party, error)
	// LockParty reads a party and holds its row until the surrounding
	// transaction ends. Only meaningful inside WithTx.
	LockParty(ctx context.Context, id uuid.UUID) (*models.Party, error)
	// ListParties returns parties in the given status, most recent date first.
	// A non-empty search narrows to case-insensitive title or description matches.
	ListParties(ctx context.Context, status models.PartyStatus, search string) ([]models.Party, error)
	// ListPartiesForUser returns parties the user hosts or has a participation row in.
	ListPartiesForUser(ctx context.Context, userID uuid.UUID) ([]models.Party, error)
	// CreateParty assigns ID and timestamps. A taken invitation code yields ErrCodeCollision.
	CreateParty(ctx context.Context, p *models.Party) error
	// UpdateParty writes every mutable field of p, provided the stored status still
	// equals from. A concurrent status change yields ErrConflict.
	UpdateParty(ctx context.Context, p *models.Party, from models.PartyStatus) error

	GetParticipation(ctx context.Context, partyID, userID uuid.UUID) (*models.Participation, error)
	ListParticipations(ctx context.Context, partyID uuid.UUID) ([]models.Participation, error)
	// AddParticipation inserts p unless a row for the pair already exists, in which
	// case p is overwritten with the stored row and created is false.
	AddParticipation(ctx context.Context, p *models.Participation) (created bool, err error)
	UpdateParticipationStatus(ctx context.Context, partyID, userID uuid.UUID, status models.ParticipationStatus) (*models.Participation, error)
	DeleteParticipation(ctx context.Context, partyID, userID uuid.UUID) (*models.Participation, error)

	// WithTx runs fn against a Store bound to one transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// DB is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
