package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/otgil/rethread/internal/models"
)

// DB is the subset of pgx the repository uses. *pgxpool.Pool implements it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository handles credits persistence.
type Repository struct {
	db DB
}

// NewRepository creates a credits repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// Award inserts a ledger entry unless the user already holds one of the same type
// for the same party. It reports whether a row was written.
func (r *Repository) Award(ctx context.Context, c *models.Credit) (bool, error) {
	const q = `INSERT INTO credits (id, user_id, party_id, activity_name, type, amount)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		ON CONFLICT (user_id, party_id, type) DO NOTHING
		RETURNING id, created_at`
	err := r.db.QueryRow(ctx, q, c.UserID, c.PartyID, c.ActivityName, string(c.Type), c.Amount).Scan(&c.ID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("award credit: %w", err)
	}
	return true, nil
}

// Balance returns the sum of a user's ledger.
func (r *Repository) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	var total int
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::int FROM credits WHERE user_id = $1`, userID).Scan(&total)
	return total, err
}

// History returns a user's ledger, newest first.
func (r *Repository) History(ctx context.Context, userID uuid.UUID) ([]models.Credit, error) {
	const q = `SELECT id, user_id, party_id, activity_name, type, amount, created_at
		FROM credits
		WHERE user_id = $1
		ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Credit{}
	for rows.Next() {
		var (
			c   models.Credit
			typ string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.PartyID, &c.ActivityName, &typ, &c.Amount, &c.CreatedAt); err != nil {
			return nil, err
		}
		if c.Type, err = models.ParseCreditType(typ); err != nil {
			return nil, fmt.Errorf("credit %s: %w", c.ID, err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
