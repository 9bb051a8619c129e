package reputation

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"pairlive/backend/internal/analysis"
	"pairlive/backend/internal/apperr"
	"pairlive/backend/internal/models"
	"pairlive/backend/internal/storage"
	"pairlive/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*Service, *storage.Service) {
	t.Helper()
	store := storagetest.NewDB(t)
	s := storage.NewStorageService(store, nil)
	return NewService(s, zap.NewNop()), s
}

func createUser(t *testing.T, st *storage.Service, id string, score float64) {
	t.Helper()
	require.NoError(t, st.DB.Create(&models.User{
		ID:            id,
		TrustScore:    score,
		TrustCategory: analysis.Category(score),
	}).Error)
}

func TestAdjustScore_ClampsAndRecategorizes(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	createUser(t, st, "u1", 95)

	user, err := svc.AdjustScore(ctx, "u1", 20)
	require.NoError(t, err)
	assert.Equal(t, 100.0, user.TrustScore)
	assert.Equal(t, models.TrustPremium, user.TrustCategory)

	user, err = svc.AdjustScore(ctx, "u1", -150)
	require.NoError(t, err)
	assert.Equal(t, 0.0, user.TrustScore)
	assert.Equal(t, models.TrustSuspended, user.TrustCategory)

	stored, err := st.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, stored.TrustScore)
	assert.Equal(t, models.TrustSuspended, stored.TrustCategory)
}

func TestAdjustScore_MissingUserIsNoop(t *testing.T) {
	svc, _ := setup(t)

	user, err := svc.AdjustScore(context.Background(), "ghost", -10)
	assert.NoError(t, err)
	assert.Nil(t, user)
}

func TestAdjustScore_TrustClockMovesOnlyOnChange(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	createUser(t, st, "u1", 100)
	fixed := time.Now().Add(48 * time.Hour)
	svc.now = func() time.Time { return fixed }

	before, _ := st.GetUserByID(ctx, "u1")
	_, err := svc.AdjustScore(ctx, "u1", 1) // already at the ceiling
	require.NoError(t, err)
	after, _ := st.GetUserByID(ctx, "u1")
	assert.True(t, before.TrustUpdatedAt.Equal(after.TrustUpdatedAt))

	_, err = svc.AdjustScore(ctx, "u1", -1)
	require.NoError(t, err)
	after, _ = st.GetUserByID(ctx, "u1")
	assert.Equal(t, fixed.Unix(), after.TrustUpdatedAt.Unix())
}

func TestApplyBehavior_ReportValidScenario(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	createUser(t, st, "u1", 82)

	u, _ := st.GetUserByID(ctx, "u1")
	assert.Equal(t, models.TrustPremium, u.TrustCategory)

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.ApplyBehavior(ctx, "u1", models.BehaviorReportValid))
	}

	u, _ = st.GetUserByID(ctx, "u1")
	assert.Equal(t, 32.0, u.TrustScore)
	assert.Equal(t, models.TrustWarning, u.TrustCategory)
}

func TestApplyFeedback(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	createUser(t, st, "u1", 60)

	tests := []struct {
		rating int
		want   float64
	}{
		{5, 62},
		{4, 63},
		{3, 63},
		{2, 61},
		{1, 57},
	}
	for _, tt := range tests {
		require.NoError(t, svc.ApplyFeedback(ctx, "u1", tt.rating))
		u, _ := st.GetUserByID(ctx, "u1")
		assert.Equal(t, tt.want, u.TrustScore, "after %d stars", tt.rating)
	}

	assert.ErrorIs(t, svc.ApplyFeedback(ctx, "u1", 6), apperr.ErrInvalidRating)
}

func TestRecord_SkipPenaltyAfterDailyAllowance(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	createUser(t, st, "u1", 60)

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(ctx, models.BehaviorEvent{UserID: "u1", Kind: models.BehaviorSkip}))
	}
	u, _ := st.GetUserByID(ctx, "u1")
	assert.Equal(t, 60.0, u.TrustScore, "first five skips are free")

	require.NoError(t, svc.Record(ctx, models.BehaviorEvent{UserID: "u1", Kind: models.BehaviorSkip}))
	u, _ = st.GetUserByID(ctx, "u1")
	assert.Equal(t, 59.0, u.TrustScore)

	n, err := st.CountBehaviorEvents(ctx, "u1", models.BehaviorSkip, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestRecord_GiftHalfPointsAccumulate(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	createUser(t, st, "u1", 79)

	require.NoError(t, svc.Record(ctx, models.BehaviorEvent{UserID: "u1", Kind: models.BehaviorGiftSent}))
	u, _ := st.GetUserByID(ctx, "u1")
	assert.Equal(t, models.TrustGood, u.TrustCategory)

	require.NoError(t, svc.Record(ctx, models.BehaviorEvent{UserID: "u1", Kind: models.BehaviorGiftReceived}))
	u, _ = st.GetUserByID(ctx, "u1")
	assert.Equal(t, 80.0, u.TrustScore)
	assert.Equal(t, models.TrustPremium, u.TrustCategory)
}

func TestScoreStaysBoundedUnderRandomEvents(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	createUser(t, st, "u1", 50)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		if rng.Intn(2) == 0 {
			require.NoError(t, svc.ApplyFeedback(ctx, "u1", 1+rng.Intn(5)))
		} else {
			kind := models.BehaviorKinds[rng.Intn(len(models.BehaviorKinds))]
			require.NoError(t, svc.ApplyBehavior(ctx, "u1", kind))
		}
		u, err := st.GetUserByID(ctx, "u1")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, u.TrustScore, 0.0)
		assert.LessOrEqual(t, u.TrustScore, 100.0)
		assert.Equal(t, analysis.Category(u.TrustScore), u.TrustCategory)
	}
}

func TestProcessRecovery(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	old := time.Now().Add(-8 * 24 * time.Hour)

	require.NoError(t, st.DB.Create(&models.User{ID: "warn", TrustScore: 40, TrustCategory: models.TrustWarning, TrustUpdatedAt: old}).Error)
	require.NoError(t, st.DB.Create(&models.User{ID: "restricted", TrustScore: 29.5, TrustCategory: models.TrustRestricted, TrustUpdatedAt: old}).Error)
	require.NoError(t, st.DB.Create(&models.User{ID: "good", TrustScore: 60, TrustCategory: models.TrustGood, TrustUpdatedAt: old}).Error)
	require.NoError(t, st.DB.Create(&models.User{ID: "fresh", TrustScore: 40, TrustCategory: models.TrustWarning}).Error)

	n, err := svc.ProcessRecovery(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	u, _ := st.GetUserByID(ctx, "warn")
	assert.Equal(t, 41.0, u.TrustScore)
	u, _ = st.GetUserByID(ctx, "restricted")
	assert.Equal(t, 30.5, u.TrustScore)
	assert.Equal(t, models.TrustWarning, u.TrustCategory)
	u, _ = st.GetUserByID(ctx, "good")
	assert.Equal(t, 60.0, u.TrustScore)

	// Adjusted users reset their trust clock, so a second sweep is a no-op.
	n, err = svc.ProcessRecovery(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
