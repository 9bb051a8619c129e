package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pairlive/backend/internal/chathub"
	"pairlive/backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, e *env, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	token, err := e.auth.Issue(userID, time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one of eventType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var ev models.Event
		require.NoError(t, conn.ReadJSON(&ev), "waiting for %s", eventType)
		if ev.Type == eventType {
			return ev
		}
	}
}

func TestServeWebSocket_RejectsWithoutToken(t *testing.T) {
	e := setup(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWebSocket_MatchRelayAndDisconnect(t *testing.T) {
	e := setup(t)
	e.user(t, "a", models.TrustGood, 0)
	e.user(t, "b", models.TrustGood, 0)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ca := dial(t, e, srv, "a")
	cb := dial(t, e, srv, "b")

	require.NoError(t, ca.WriteJSON(models.Event{Type: models.EventMatchingJoin}))
	readUntil(t, ca, models.EventMatchingJoined)
	require.NoError(t, cb.WriteJSON(models.Event{Type: models.EventMatchingJoin}))

	foundA := readUntil(t, ca, models.EventMatchingFound)
	foundB := readUntil(t, cb, models.EventMatchingFound)

	var pa, pb chathub.MatchFoundPayload
	require.NoError(t, json.Unmarshal(foundA.Data, &pa))
	require.NoError(t, json.Unmarshal(foundB.Data, &pb))
	assert.Equal(t, "b", pa.PartnerID)
	assert.Equal(t, "a", pb.PartnerID)
	assert.Equal(t, pa.SessionID, pb.SessionID)
	require.NotNil(t, pa.Media)

	require.NoError(t, ca.WriteJSON(models.Event{
		Type: models.EventSessionMessage, SessionID: pa.SessionID, Data: json.RawMessage(`{"text":"hello"}`),
	}))
	msg := readUntil(t, cb, models.EventSessionMessage)
	assert.Equal(t, "a", msg.From)
	assert.JSONEq(t, `{"text":"hello"}`, string(msg.Data))

	require.NoError(t, ca.Close())
	note := readUntil(t, cb, models.EventSessionPartnerDisconnected)
	assert.Equal(t, pa.SessionID, note.SessionID)
}
