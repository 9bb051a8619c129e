package storage_test

import (
	"context"
	"testing"
	"time"

	"pairlive/backend/internal/apperr"
	"pairlive/backend/internal/models"
	"pairlive/backend/internal/storage"
	"pairlive/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, s *storage.Service, id string, score float64, coins int64) *models.User {
	t.Helper()
	u := &models.User{ID: id, TrustScore: score, TrustCategory: models.TrustGood, CoinBalance: coins}
	require.NoError(t, s.DB.Create(u).Error)
	return u
}

func TestUpdateUserTrust(t *testing.T) {
	s, _ := storagetest.New(t)
	ctx := context.Background()
	seedUser(t, s, "u1", 60, 0)

	updated, err := s.UpdateUserTrust(ctx, "u1", func(u *models.User) {
		u.TrustScore = 0
		u.TrustCategory = models.TrustSuspended
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, updated.TrustScore)

	stored, err := s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, stored.TrustScore, "zero score must be persisted")
	assert.Equal(t, models.TrustSuspended, stored.TrustCategory)

	_, err = s.UpdateUserTrust(ctx, "ghost", func(*models.User) {})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCloseSession_OnlyOnce(t *testing.T) {
	s, _ := storagetest.New(t)
	ctx := context.Background()
	seedUser(t, s, "a", 60, 0)
	seedUser(t, s, "b", 60, 0)

	start := time.Now().Add(-125 * time.Second)
	require.NoError(t, s.CreateSession(ctx, &models.Session{
		ID: "s1", ParticipantA: "a", ParticipantB: "b", ChannelRef: "session_s1",
		Status: models.SessionActive, StartedAt: start,
	}))

	end := start.Add(125 * time.Second)
	session, closed, err := s.CloseSession(ctx, "s1", models.SessionCompleted, "a", end)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, models.SessionCompleted, session.Status)
	assert.Equal(t, int64(125), session.DurationSeconds)

	session, closed, err = s.CloseSession(ctx, "s1", models.SessionDisconnected, "b", end.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, closed, "second close is a no-op")
	assert.Equal(t, models.SessionCompleted, session.Status)
	assert.Equal(t, "a", session.EndedBy)

	for _, id := range []string{"a", "b"} {
		u, err := s.GetUserByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), u.TotalSessions)
		assert.Equal(t, int64(2), u.TotalMinutes)
	}

	_, _, err = s.CloseSession(ctx, "missing", models.SessionCompleted, "a", end)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTransferGift(t *testing.T) {
	s, _ := storagetest.New(t)
	ctx := context.Background()
	seedUser(t, s, "sender", 60, 100)
	seedUser(t, s, "receiver", 60, 0)

	balance, err := s.TransferGift(ctx, &models.Gift{
		SessionID: "s1", SenderID: "sender", ReceiverID: "receiver",
		GiftType: "rose", CoinAmount: 10, ReceiverAmount: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(90), balance)

	receiver, _ := s.GetUserByID(ctx, "receiver")
	assert.Equal(t, int64(7), receiver.CoinBalance)
	assert.Equal(t, int64(7), receiver.TotalCoinsEarned)

	var gifts, ledger int64
	s.DB.Model(&models.Gift{}).Count(&gifts)
	s.DB.Model(&models.CoinTransaction{}).Count(&ledger)
	assert.Equal(t, int64(1), gifts)
	assert.Equal(t, int64(1), ledger)
}

func TestTransferGift_InsufficientCoins(t *testing.T) {
	s, _ := storagetest.New(t)
	ctx := context.Background()
	seedUser(t, s, "sender", 60, 5)
	seedUser(t, s, "receiver", 60, 0)

	_, err := s.TransferGift(ctx, &models.Gift{
		SessionID: "s1", SenderID: "sender", ReceiverID: "receiver", CoinAmount: 10, ReceiverAmount: 7,
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientCoins)

	sender, _ := s.GetUserByID(ctx, "sender")
	assert.Equal(t, int64(5), sender.CoinBalance)
}

func TestTransferGift_MissingReceiverRollsBack(t *testing.T) {
	s, _ := storagetest.New(t)
	ctx := context.Background()
	seedUser(t, s, "sender", 60, 50)

	_, err := s.TransferGift(ctx, &models.Gift{
		SessionID: "s1", SenderID: "sender", ReceiverID: "nobody", CoinAmount: 10, ReceiverAmount: 7,
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidReceiver)

	sender, _ := s.GetUserByID(ctx, "sender")
	assert.Equal(t, int64(50), sender.CoinBalance, "debit must be rolled back")
	assert.Equal(t, int64(0), sender.TotalCoinsSpent)
}

func TestCountBehaviorEvents(t *testing.T) {
	s, _ := storagetest.New(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.SaveBehaviorEvent(ctx, &models.BehaviorEvent{UserID: "u1", Kind: models.BehaviorSkip, CreatedAt: now.Add(-25 * time.Hour)}))
	require.NoError(t, s.SaveBehaviorEvent(ctx, &models.BehaviorEvent{UserID: "u1", Kind: models.BehaviorSkip, CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.SaveBehaviorEvent(ctx, &models.BehaviorEvent{UserID: "u1", Kind: models.BehaviorSkip, CreatedAt: now}))
	require.NoError(t, s.SaveBehaviorEvent(ctx, &models.BehaviorEvent{UserID: "u1", Kind: models.BehaviorAFK, CreatedAt: now}))
	require.NoError(t, s.SaveBehaviorEvent(ctx, &models.BehaviorEvent{UserID: "u2", Kind: models.BehaviorSkip, CreatedAt: now}))

	n, err := s.CountBehaviorEvents(ctx, "u1", models.BehaviorSkip, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestListRecoveryCandidates(t *testing.T) {
	s, _ := storagetest.New(t)
	ctx := context.Background()
	old := time.Now().Add(-8 * 24 * time.Hour)

	require.NoError(t, s.DB.Create(&models.User{ID: "idle", TrustScore: 40, TrustCategory: models.TrustWarning, TrustUpdatedAt: old}).Error)
	require.NoError(t, s.DB.Create(&models.User{ID: "recent", TrustScore: 40, TrustCategory: models.TrustWarning}).Error)
	require.NoError(t, s.DB.Create(&models.User{ID: "suspended", TrustScore: 5, TrustCategory: models.TrustSuspended, TrustUpdatedAt: old}).Error)
	require.NoError(t, s.DB.Create(&models.User{ID: "premium", TrustScore: 90, TrustCategory: models.TrustPremium, TrustUpdatedAt: old}).Error)

	users, err := s.ListRecoveryCandidates(ctx, 80,
		[]models.TrustCategory{models.TrustGood, models.TrustWarning, models.TrustRestricted},
		time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "idle", users[0].ID)
}

func TestSaveFeedback_OncePerSession(t *testing.T) {
	s, _ := storagetest.New(t)
	ctx := context.Background()
	seedUser(t, s, "target", 60, 0)

	require.NoError(t, s.SaveFeedback(ctx, &models.Feedback{SessionID: "s1", ReviewerID: "r", TargetUserID: "target", Rating: 5}))
	require.NoError(t, s.SaveFeedback(ctx, &models.Feedback{SessionID: "s2", ReviewerID: "r", TargetUserID: "target", Rating: 2}))

	err := s.SaveFeedback(ctx, &models.Feedback{SessionID: "s1", ReviewerID: "r", TargetUserID: "target", Rating: 1})
	assert.ErrorIs(t, err, apperr.ErrAlreadySubmitted)

	target, _ := s.GetUserByID(ctx, "target")
	assert.InDelta(t, 3.5, target.AverageRating, 0.001)
}

func TestComplaintLifecycle(t *testing.T) {
	s, _ := storagetest.New(t)
	ctx := context.Background()

	c := &models.Complaint{SessionID: "s1", ReporterID: "a", ReportedUserID: "b", Reason: "SPAM"}
	require.NoError(t, s.SaveComplaint(ctx, c))
	assert.NotEmpty(t, c.ComplaintID)
	assert.Equal(t, models.ComplaintPending, c.Status)

	err := s.SaveComplaint(ctx, &models.Complaint{SessionID: "s1", ReporterID: "a", ReportedUserID: "b", Reason: "SPAM"})
	assert.ErrorIs(t, err, apperr.ErrAlreadyReported)

	reviewed, err := s.ReviewComplaint(ctx, c.ComplaintID, models.ComplaintResolved, "mod", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.ComplaintResolved, reviewed.Status)
	assert.Equal(t, "mod", reviewed.ReviewedBy)

	_, err = s.ReviewComplaint(ctx, c.ComplaintID, models.ComplaintDismissed, "mod", time.Now())
	assert.ErrorIs(t, err, apperr.ErrAlreadyReviewed)

	_, err = s.ReviewComplaint(ctx, "nope", models.ComplaintDismissed, "mod", time.Now())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListStaleSessions(t *testing.T) {
	s, _ := storagetest.New(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateSession(ctx, &models.Session{ID: "old", ParticipantA: "a", ParticipantB: "b", ChannelRef: "x", Status: models.SessionActive, StartedAt: now.Add(-5 * time.Hour)}))
	require.NoError(t, s.CreateSession(ctx, &models.Session{ID: "fresh", ParticipantA: "c", ParticipantB: "d", ChannelRef: "y", Status: models.SessionActive, StartedAt: now}))

	stale, err := s.ListStaleSessions(ctx, now.Add(-4*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].ID)
}

func TestHasBehaviorEvent(t *testing.T) {
	s, _ := storagetest.New(t)
	ctx := context.Background()

	ev := models.BehaviorEvent{UserID: "u1", SessionID: "s1", Kind: models.BehaviorReportValid, Metadata: `{"complaint_id":"c1"}`}
	found, err := s.HasBehaviorEvent(ctx, ev)
	require.NoError(t, err)
	assert.False(t, found)

	stored := ev
	require.NoError(t, s.SaveBehaviorEvent(ctx, &stored))

	found, err = s.HasBehaviorEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, found)

	other := ev
	other.Metadata = `{"complaint_id":"c2"}`
	found, err = s.HasBehaviorEvent(ctx, other)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCountComplaintsAgainst(t *testing.T) {
	s, _ := storagetest.New(t)
	ctx := context.Background()
	now := time.Now()

	for i, reporter := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveComplaint(ctx, &models.Complaint{
			SessionID: "s" + reporter, ReporterID: reporter, ReportedUserID: "bad",
			Reason: "SPAM", CreatedAt: now.Add(-time.Duration(i*4*24) * time.Hour),
		}))
	}

	n, err := s.CountComplaintsAgainst(ctx, "bad", now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.CountComplaintsAgainst(ctx, "a", now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
