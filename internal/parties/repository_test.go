package parties

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otgil/rethread/internal/models"
)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func TestRepository_CreateParty(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO parties")).
		WithArgs(pgxmock.AnyArg(), "Swap", "", pgxmock.AnyArg(), "Hall", "", []string{}, "PENDING_APPROVAL", "ABC123",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id, now, now))

	p := &models.Party{HostID: uuid.New(), Title: "Swap", Location: "Hall", Status: models.PartyStatusPendingApproval, InvitationCode: "ABC123"}
	require.NoError(t, repo.CreateParty(context.Background(), p))
	assert.Equal(t, id, p.ID)
	assert.Equal(t, now, p.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreatePartyCodeCollision(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO parties")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "parties_invitation_code_key"})

	err := repo.CreateParty(context.Background(), &models.Party{InvitationCode: "ABC123"})
	assert.ErrorIs(t, err, ErrCodeCollision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdatePartyMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE parties SET")).WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM parties WHERE id = $1")).WithArgs(id).WillReturnError(pgx.ErrNoRows)

	err := repo.UpdateParty(context.Background(), &models.Party{ID: id, Status: models.PartyStatusUpcoming}, models.PartyStatusPendingApproval)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdatePartyGuardsStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	updated := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $14 AND status = $15")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"UPCOMING", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			id, "PENDING_APPROVAL").
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(updated))

	p := &models.Party{ID: id, Status: models.PartyStatusUpcoming}
	require.NoError(t, repo.UpdateParty(context.Background(), p, models.PartyStatusPendingApproval))
	assert.Equal(t, updated, p.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_AddParticipationExisting(t *testing.T) {
	repo, mock := newMockRepo(t)
	partyID, userID := uuid.New(), uuid.New()
	joined := time.Now().UTC().Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (party_id, user_id) DO NOTHING")).
		WithArgs(partyID, userID, "guest", "PENDING").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM party_participations WHERE party_id = $1 AND user_id = $2")).
		WithArgs(partyID, userID).
		WillReturnRows(pgxmock.NewRows([]string{"party_id", "user_id", "nickname", "status", "created_at"}).
			AddRow(partyID, userID, "guest", "ACCEPTED", joined))

	p := &models.Participation{PartyID: partyID, UserID: userID, Nickname: "guest", Status: models.ParticipationPending}
	created, err := repo.AddParticipation(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.ParticipationAccepted, p.Status)
	assert.Equal(t, joined, p.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_DeleteParticipationMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM party_participations")).WillReturnError(pgx.ErrNoRows)

	_, err := repo.DeleteParticipation(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_WithTx(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectCommit()
		require.NoError(t, repo.WithTx(context.Background(), func(Store) error { return nil }))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectRollback()
		err := repo.WithTx(context.Background(), func(Store) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_LockPartyInTx(t *testing.T) {
	repo, mock := newMockRepo(t)
	id, hostID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	cols := []string{"id", "host_id", "title", "description", "date", "location", "image_url", "details", "status",
		"invitation_code", "impact_items_exchanged", "impact_water_saved", "impact_co2_reduced",
		"kit_participants", "kit_items_per_person", "kit_cost", "created_at", "updated_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM parties WHERE id = $1 FOR UPDATE")).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(id, hostID, "Swap", "", now, "Hall", "", []string{}, "UPCOMING",
			"ABC123", nil, nil, nil, nil, nil, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $14 AND status = $15")).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	err := repo.WithTx(context.Background(), func(tx Store) error {
		p, err := tx.LockParty(context.Background(), id)
		if err != nil {
			return err
		}
		p.Title = "Renamed"
		return tx.UpdateParty(context.Background(), p, p.Status)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
