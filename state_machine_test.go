package kyc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-kyc"
)

func TestNextStatusTable(t *testing.T) {
	kinds := []kyc.EventKind{
		kyc.EventKindSessionVerified,
		kyc.EventKindSessionRequiresInput,
		kyc.EventKindSessionCanceled,
		kyc.EventKindUnrecognized,
	}

	expected := map[kyc.KYCStatus]map[kyc.EventKind]kyc.KYCStatus{
		kyc.StatusUnverified: {
			kyc.EventKindSessionVerified: kyc.StatusVerified,
		},
		kyc.StatusPending: {
			kyc.EventKindSessionVerified:      kyc.StatusVerified,
			kyc.EventKindSessionRequiresInput: kyc.StatusFailed,
			kyc.EventKindSessionCanceled:      kyc.StatusCanceled,
		},
		kyc.StatusVerified: {},
		kyc.StatusFailed: {
			kyc.EventKindSessionVerified: kyc.StatusVerified,
		},
		kyc.StatusCanceled: {
			kyc.EventKindSessionVerified: kyc.StatusVerified,
		},
	}

	for _, from := range kyc.AllStatuses {
		for _, kind := range kinds {
			next, ok := kyc.NextStatus(from, kind)
			want, applies := expected[from][kind]
			assert.Equal(t, applies, ok, "%s + %s", from, kind)
			if applies {
				assert.Equal(t, want, next, "%s + %s", from, kind)
			} else {
				assert.Equal(t, from, next, "%s + %s leaves status unchanged", from, kind)
			}
		}
	}
}

func TestVerifiedIsAbsorbing(t *testing.T) {
	for _, kind := range []kyc.EventKind{
		kyc.EventKindSessionVerified,
		kyc.EventKindSessionRequiresInput,
		kyc.EventKindSessionCanceled,
		kyc.EventKindUnrecognized,
	} {
		next, ok := kyc.NextStatus(kyc.StatusVerified, kind)
		assert.False(t, ok)
		assert.Equal(t, kyc.StatusVerified, next)
	}
}

func applyInTx(t *testing.T, repo kyc.RepositoryManager, engine *kyc.TransitionEngine, event *kyc.VerificationEvent) *kyc.TransitionResult {
	t.Helper()

	var result *kyc.TransitionResult
	err := repo.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		result, err = engine.ApplyTx(ctx, tx, event)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func TestTransitionEngineAppliesEvent(t *testing.T) {
	repo, _ := newTestRepo(t)
	user := seedUser(t, repo, kyc.StatusPending, "vs_apply")
	later := testNow.Add(time.Hour)

	engine := kyc.NewTransitionEngine(repo.Users(), kyc.WithTransitionClock(func() time.Time { return later }))

	result := applyInTx(t, repo, engine, &kyc.VerificationEvent{
		EventID:   "evt_1",
		Kind:      kyc.EventKindSessionRequiresInput,
		SessionID: "vs_apply",
	})

	assert.True(t, result.Changed())
	assert.Equal(t, kyc.OutcomeTransitioned, result.Outcome)
	assert.Equal(t, user.ID, result.UserID)
	assert.Equal(t, kyc.StatusPending, result.From)
	assert.Equal(t, kyc.StatusFailed, result.To)
	assert.NoError(t, result.Err)

	stored := reloadUser(t, repo, user.ID)
	assert.Equal(t, kyc.StatusFailed, stored.KYCStatus)
	require.NotNil(t, stored.UpdatedAt)
	assert.True(t, later.Equal(stored.UpdatedAt.UTC()))
}

func TestTransitionEngineRejectsViolatedPrecondition(t *testing.T) {
	repo, _ := newTestRepo(t)
	user := seedUser(t, repo, kyc.StatusVerified, "vs_done")
	logger := &captureLogger{}

	engine := kyc.NewTransitionEngine(repo.Users(), kyc.WithTransitionLogger(logger))

	result := applyInTx(t, repo, engine, &kyc.VerificationEvent{
		EventID:   "evt_late",
		Kind:      kyc.EventKindSessionCanceled,
		SessionID: "vs_done",
	})

	assert.Equal(t, kyc.OutcomeNoop, result.Outcome)
	assert.False(t, result.Changed())
	assert.True(t, kyc.HasTextCode(result.Err, kyc.TextCodeInvalidTransition))
	assert.Equal(t, kyc.StatusVerified, reloadUser(t, repo, user.ID).KYCStatus)
	assert.True(t, logger.contains("info", "evt_late"))
}

func TestTransitionEngineUnknownSession(t *testing.T) {
	repo, _ := newTestRepo(t)
	logger := &captureLogger{}
	engine := kyc.NewTransitionEngine(repo.Users(), kyc.WithTransitionLogger(logger))

	result := applyInTx(t, repo, engine, &kyc.VerificationEvent{
		EventID:   "evt_orphan",
		Type:      "identity.verification_session.verified",
		Kind:      kyc.EventKindSessionVerified,
		SessionID: "vs_nobody",
	})

	assert.Equal(t, kyc.OutcomeUnknownSession, result.Outcome)
	assert.True(t, kyc.HasTextCode(result.Err, kyc.TextCodeUnknownSession))
	assert.True(t, logger.contains("warn", "vs_nobody"))
}

func TestTransitionEngineIgnoresUnrecognizedKinds(t *testing.T) {
	repo, _ := newTestRepo(t)
	user := seedUser(t, repo, kyc.StatusPending, "vs_ignore")
	engine := kyc.NewTransitionEngine(repo.Users(), kyc.WithTransitionLogger(&captureLogger{}))

	result := applyInTx(t, repo, engine, &kyc.VerificationEvent{
		EventID:   "evt_processing",
		Type:      "identity.verification_session.processing",
		Kind:      kyc.EventKindUnrecognized,
		SessionID: "vs_ignore",
	})

	assert.Equal(t, kyc.OutcomeIgnored, result.Outcome)
	assert.Equal(t, kyc.StatusPending, reloadUser(t, repo, user.ID).KYCStatus)
}

func TestTransitionEngineVerifiedWinsAfterFailure(t *testing.T) {
	repo, _ := newTestRepo(t)
	user := seedUser(t, repo, kyc.StatusPending, "vs_retry")
	engine := kyc.NewTransitionEngine(repo.Users(), kyc.WithTransitionLogger(&captureLogger{}))

	applyInTx(t, repo, engine, &kyc.VerificationEvent{EventID: "evt_a", Kind: kyc.EventKindSessionRequiresInput, SessionID: "vs_retry"})
	result := applyInTx(t, repo, engine, &kyc.VerificationEvent{EventID: "evt_b", Kind: kyc.EventKindSessionVerified, SessionID: "vs_retry"})

	assert.Equal(t, kyc.OutcomeTransitioned, result.Outcome)
	assert.Equal(t, kyc.StatusFailed, result.From)
	assert.Equal(t, kyc.StatusVerified, reloadUser(t, repo, user.ID).KYCStatus)
}

func TestTransitionEngineRejectsNilEvent(t *testing.T) {
	repo, db := newTestRepo(t)
	engine := kyc.NewTransitionEngine(repo.Users())

	_, err := engine.ApplyTx(context.Background(), db, nil)
	require.Error(t, err)
	assert.True(t, kyc.HasTextCode(err, kyc.TextCodeMalformedPayload))
}
