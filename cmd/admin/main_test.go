package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"pairlive/backend/internal/api/handler"
	"pairlive/backend/internal/complaint"
	"pairlive/backend/internal/media"
	"pairlive/backend/internal/models"
	"pairlive/backend/internal/reputation"
	"pairlive/backend/internal/session"
	"pairlive/backend/internal/storage"
	"pairlive/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (services, *storage.Service) {
	t.Helper()
	st, _ := storagetest.New(t)
	logger := zap.NewNop()
	rep := reputation.NewService(st, logger)
	return services{
		reputation: rep,
		complaints: complaint.NewService(st, rep, logger),
		sessions:   session.NewService(st, rep, media.NewJWTIssuer("m", time.Hour), logger, time.Hour, time.Second),
		auth:       handler.NewAuthenticator("secret"),
	}, st
}

func TestRun_AdjustScore(t *testing.T) {
	svc, st := setup(t)
	require.NoError(t, st.DB.Create(&models.User{ID: "u", TrustScore: 70, TrustCategory: models.TrustGood}).Error)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), svc, []string{"adjust-score", "u", "-25"}, &out))
	assert.Equal(t, "User u: score 45.0, category WARNING\n", out.String())

	err := run(context.Background(), svc, []string{"adjust-score", "nobody", "1"}, &out)
	assert.ErrorContains(t, err, "not found")
}

func TestRun_Behavior(t *testing.T) {
	svc, st := setup(t)
	require.NoError(t, st.DB.Create(&models.User{ID: "u", TrustScore: 70, TrustCategory: models.TrustGood}).Error)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), svc, []string{"behavior", "u", "AFK"}, &out))

	u, err := st.GetUserByID(context.Background(), "u")
	require.NoError(t, err)
	assert.Less(t, u.TrustScore, 70.0)

	err = run(context.Background(), svc, []string{"behavior", "u", "DANCING"}, &out)
	assert.ErrorContains(t, err, "unknown behavior kind")
}

func TestRun_ReviewComplaint(t *testing.T) {
	svc, st := setup(t)
	for _, id := range []string{"a", "b"} {
		require.NoError(t, st.DB.Create(&models.User{ID: id, TrustScore: 70, TrustCategory: models.TrustGood}).Error)
	}
	ctx := context.Background()
	s, err := svc.sessions.Create(ctx, "a", "b")
	require.NoError(t, err)
	c, err := svc.complaints.Submit(ctx, s.ID, "a", "b", "SPAM", "")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(ctx, svc, []string{"review-complaint", c.ComplaintID, "VALID"}, &out))
	assert.Contains(t, out.String(), "RESOLVED")

	assert.Error(t, run(ctx, svc, []string{"review-complaint", c.ComplaintID, "VALID"}, &out))
}

func TestRun_Token(t *testing.T) {
	svc, _ := setup(t)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), svc, []string{"token", "u", "1h"}, &out))

	userID, err := svc.auth.UserID(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "u", userID)
}

func TestRun_Usage(t *testing.T) {
	svc, _ := setup(t)
	var out bytes.Buffer

	assert.ErrorIs(t, run(context.Background(), svc, nil, &out), errUsage)
	assert.ErrorIs(t, run(context.Background(), svc, []string{"ban", "u"}, &out), errUsage)
	assert.ErrorIs(t, run(context.Background(), svc, []string{"adjust-score", "u"}, &out), errUsage)
}
