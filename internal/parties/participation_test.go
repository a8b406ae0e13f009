package parties

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otgil/rethread/internal/models"
)

func newTestManagers(t *testing.T) (*Controller, *ParticipationManager, *memStore, *memLimiter) {
	t.Helper()
	store := newMemStore()
	limiter := newMemLimiter(3)
	return NewController(store, nil, 0, nil), NewParticipationManager(store, limiter, nil), store, limiter
}

func TestJoin_Idempotent(t *testing.T) {
	ctx := context.Background()
	c, pm, store, _ := newTestManagers(t)
	p := createParty(t, c, member("host"))
	u := member("guest")

	first, err := pm.Join(ctx, p.ID, p.InvitationCode, u)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipationPending, first.Status)
	assert.Equal(t, "guest", first.Nickname)

	second, err := pm.Join(ctx, p.ID, strings.ToLower(p.InvitationCode), u)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	rows, _ := store.ListParticipations(ctx, p.ID)
	assert.Len(t, rows, 2)
}

func TestJoin_ReturnsExistingRowUnchanged(t *testing.T) {
	ctx := context.Background()
	c, pm, _, _ := newTestManagers(t)
	host := member("host")
	p := createParty(t, c, host)
	u := member("guest")

	_, err := pm.Join(ctx, p.ID, p.InvitationCode, u)
	require.NoError(t, err)
	_, err = pm.SetStatus(ctx, p.ID, host, u.UserID, models.ParticipationAccepted)
	require.NoError(t, err)

	again, err := pm.Join(ctx, p.ID, p.InvitationCode, u)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipationAccepted, again.Status)

	hostRow, err := pm.Join(ctx, p.ID, p.InvitationCode, host)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipationAccepted, hostRow.Status)
}

func TestJoin_WrongCodeAndWrongPartyFailAlike(t *testing.T) {
	ctx := context.Background()
	c, pm, _, _ := newTestManagers(t)
	p := createParty(t, c, member("host"))
	other := createParty(t, c, member("host2"))
	u := member("guest")

	_, errCode := pm.Join(ctx, p.ID, other.InvitationCode, u)
	_, errID := pm.Join(ctx, uuid.New(), p.InvitationCode, u)
	_, errMalformed := pm.Join(ctx, p.ID, "??", u)

	for _, err := range []error{errCode, errID, errMalformed} {
		assert.ErrorIs(t, err, ErrInvalidInvitation)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, errCode.Error(), err.Error())
	}
}

func TestJoin_Limiter(t *testing.T) {
	ctx := context.Background()
	c, pm, _, limiter := newTestManagers(t)
	p := createParty(t, c, member("host"))
	u := member("guesser")

	for i := 0; i < 3; i++ {
		_, err := pm.Join(ctx, p.ID, "AAAAAA", u)
		assert.ErrorIs(t, err, ErrInvalidInvitation)
	}
	assert.Equal(t, 3, limiter.failures[u.UserID])

	_, err := pm.Join(ctx, p.ID, p.InvitationCode, u)
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	other := member("other")
	_, err = pm.Join(ctx, p.ID, p.InvitationCode, other)
	require.NoError(t, err)
	assert.Zero(t, limiter.failures[other.UserID])
}

func TestJoin_LimiterFailsOpen(t *testing.T) {
	ctx := context.Background()
	c, pm, _, limiter := newTestManagers(t)
	p := createParty(t, c, member("host"))
	limiter.err = errBoom

	_, err := pm.Join(ctx, p.ID, p.InvitationCode, member("guest"))
	assert.NoError(t, err)
	_, err = pm.Join(ctx, p.ID, "AAAAAA", member("guest"))
	assert.ErrorIs(t, err, ErrInvalidInvitation)
}

func TestJoin_ClosedParty(t *testing.T) {
	ctx := context.Background()
	c, pm, _, _ := newTestManagers(t)
	p := createParty(t, c, member("host"))
	early := member("early")
	_, err := pm.Join(ctx, p.ID, p.InvitationCode, early)
	require.NoError(t, err)

	_, err = c.Reject(ctx, p.ID, admin())
	require.NoError(t, err)

	_, err = pm.Join(ctx, p.ID, p.InvitationCode, member("late"))
	assert.ErrorIs(t, err, ErrTerminalState)

	row, err := pm.Join(ctx, p.ID, p.InvitationCode, early)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipationPending, row.Status)
}

func TestParticipationScenario(t *testing.T) {
	ctx := context.Background()
	c, pm, _, _ := newTestManagers(t)
	host := member("H")
	u := member("U")

	p := createParty(t, c, host)
	row, err := pm.Join(ctx, p.ID, p.InvitationCode, u)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipationPending, row.Status)

	list, err := pm.ListParticipants(ctx, p.ID, host)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, host.UserID, list[0].UserID)
	assert.Equal(t, models.ParticipationAccepted, list[0].Status)
	assert.Equal(t, u.UserID, list[1].UserID)
	assert.Equal(t, models.ParticipationPending, list[1].Status)

	removed, err := pm.Remove(ctx, p.ID, host, u.UserID)
	require.NoError(t, err)
	assert.Equal(t, u.UserID, removed.UserID)

	list, err = pm.ListParticipants(ctx, p.ID, host)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, host.UserID, list[0].UserID)

	rejoined, err := pm.Join(ctx, p.ID, p.InvitationCode, u)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipationPending, rejoined.Status)
	assert.True(t, rejoined.CreatedAt.After(row.CreatedAt))
}

func TestListParticipants_HostOnly(t *testing.T) {
	ctx := context.Background()
	c, pm, _, _ := newTestManagers(t)
	p := createParty(t, c, member("host"))

	_, err := pm.ListParticipants(ctx, p.ID, member("nosy"))
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = pm.ListParticipants(ctx, uuid.New(), member("nosy"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	c, pm, store, _ := newTestManagers(t)
	host := member("host")
	p := createParty(t, c, host)
	u := member("guest")
	_, err := pm.Join(ctx, p.ID, p.InvitationCode, u)
	require.NoError(t, err)

	_, err = pm.Remove(ctx, p.ID, host, host.UserID)
	assert.ErrorIs(t, err, ErrHostRemoval)

	_, err = pm.Remove(ctx, p.ID, u, host.UserID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = pm.Remove(ctx, p.ID, u, u.UserID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = pm.Remove(ctx, p.ID, host, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	rows, _ := store.ListParticipations(ctx, p.ID)
	assert.Len(t, rows, 2)
}

func TestLeave(t *testing.T) {
	ctx := context.Background()
	c, pm, store, _ := newTestManagers(t)
	host := member("host")
	p := createParty(t, c, host)
	u := member("guest")
	_, err := pm.Join(ctx, p.ID, p.InvitationCode, u)
	require.NoError(t, err)

	_, err = pm.Leave(ctx, p.ID, host)
	assert.ErrorIs(t, err, ErrHostLeave)

	_, err = pm.Leave(ctx, p.ID, member("stranger"))
	assert.ErrorIs(t, err, ErrNotFound)

	left, err := pm.Leave(ctx, p.ID, u)
	require.NoError(t, err)
	assert.Equal(t, u.UserID, left.UserID)

	_, err = pm.Leave(ctx, p.ID, u)
	assert.ErrorIs(t, err, ErrNotFound)

	rows, _ := store.ListParticipations(ctx, p.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, host.UserID, rows[0].UserID)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	c, pm, _, _ := newTestManagers(t)
	host := member("host")
	p := createParty(t, c, host)
	u := member("guest")
	_, err := pm.Join(ctx, p.ID, p.InvitationCode, u)
	require.NoError(t, err)

	row, err := pm.SetStatus(ctx, p.ID, host, u.UserID, models.ParticipationAttended)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipationAttended, row.Status)

	_, err = pm.SetStatus(ctx, p.ID, host, u.UserID, models.ParticipationPending)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	_, err = pm.SetStatus(ctx, p.ID, host, host.UserID, models.ParticipationRejected)
	assert.ErrorIs(t, err, ErrHostRemoval)

	_, err = pm.SetStatus(ctx, p.ID, u, u.UserID, models.ParticipationAccepted)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = pm.SetStatus(ctx, p.ID, host, uuid.New(), models.ParticipationAccepted)
	assert.ErrorIs(t, err, ErrNotFound)
}
