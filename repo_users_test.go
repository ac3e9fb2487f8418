package kyc_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-kyc"
)

func TestUsersCreateDefaultsToUnverified(t *testing.T) {
	repo, _ := newTestRepo(t)

	user, err := repo.Users().Create(context.Background(), &kyc.User{Email: "new@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)

	stored := reloadUser(t, repo, user.ID)
	assert.Equal(t, kyc.StatusUnverified, stored.KYCStatus)
	assert.Empty(t, stored.SessionID())
}

func TestUsersFindBySessionID(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	user := seedUser(t, repo, kyc.StatusPending, "vs_find")

	found, err := repo.Users().FindBySessionID(ctx, "vs_find")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = repo.Users().FindBySessionID(ctx, "vs_missing")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))

	_, err = repo.Users().FindBySessionID(ctx, "")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestUsersFindBySessionIDSkipsDeletedUsers(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	user := seedUser(t, repo, kyc.StatusPending, "vs_deleted")
	_, err := db.NewDelete().Model((*kyc.User)(nil)).Where("id = ?", user.ID).Exec(ctx)
	require.NoError(t, err)

	_, err = repo.Users().FindBySessionID(ctx, "vs_deleted")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestUpdateKYCIsConditional(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, kyc.StatusPending, "vs_cas")
	later := testNow.Add(time.Minute)

	applied, err := repo.Users().UpdateKYC(ctx, user.ID, kyc.KYCUpdate{
		Status:          kyc.StatusFailed,
		ExpectSessionID: "vs_other",
		From:            []kyc.KYCStatus{kyc.StatusPending},
		UpdatedAt:       later,
	})
	require.NoError(t, err)
	assert.False(t, applied, "session mismatch must not write")

	applied, err = repo.Users().UpdateKYC(ctx, user.ID, kyc.KYCUpdate{
		Status: kyc.StatusFailed,
		From:   []kyc.KYCStatus{kyc.StatusUnverified},
	})
	require.NoError(t, err)
	assert.False(t, applied, "status precondition must hold")
	assert.Equal(t, kyc.StatusPending, reloadUser(t, repo, user.ID).KYCStatus)

	applied, err = repo.Users().UpdateKYC(ctx, user.ID, kyc.KYCUpdate{
		Status:          kyc.StatusVerified,
		ExpectSessionID: "vs_cas",
		From:            []kyc.KYCStatus{kyc.StatusPending},
		UpdatedAt:       later,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	stored := reloadUser(t, repo, user.ID)
	assert.Equal(t, kyc.StatusVerified, stored.KYCStatus)
	assert.Equal(t, "vs_cas", stored.SessionID())
	require.NotNil(t, stored.UpdatedAt)
	assert.True(t, later.Equal(stored.UpdatedAt.UTC()))
}

func TestUpdateKYCReplacesSession(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, kyc.StatusFailed, "vs_old")

	next := "vs_new"
	applied, err := repo.Users().UpdateKYC(ctx, user.ID, kyc.KYCUpdate{
		Status:    kyc.StatusPending,
		SessionID: &next,
		From:      []kyc.KYCStatus{kyc.StatusFailed},
	})
	require.NoError(t, err)
	require.True(t, applied)

	_, err = repo.Users().FindBySessionID(ctx, "vs_old")
	assert.True(t, repository.IsRecordNotFound(err), "old session no longer resolves")

	found, err := repo.Users().FindBySessionID(ctx, "vs_new")
	require.NoError(t, err)
	assert.Equal(t, kyc.StatusPending, found.KYCStatus)
}

func TestSchemaRejectsActiveStatusWithoutSession(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Users().Create(context.Background(), &kyc.User{
		Email:     "nosession@example.com",
		KYCStatus: kyc.StatusPending,
	})
	require.Error(t, err)
}

func TestRepositoryManagerRunInTxRollsBack(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, kyc.StatusPending, "vs_tx")

	boom := assert.AnError
	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		applied, err := repo.Users().UpdateKYCTx(ctx, tx, user.ID, kyc.KYCUpdate{Status: kyc.StatusVerified})
		require.NoError(t, err)
		require.True(t, applied)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, kyc.StatusPending, reloadUser(t, repo, user.ID).KYCStatus)
}
