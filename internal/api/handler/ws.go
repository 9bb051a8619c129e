package handler

import (
	"context"
	"net/http"

	"pairlive/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are left to the fronting proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connHandler forgets its coordinator when the connection goes away.
type connHandler struct {
	*chathub.Coordinator
	h *Handler
}

func (ch connHandler) HandleDisconnect(ctx context.Context) {
	ch.h.detach(ch.Coordinator)
	ch.Coordinator.HandleDisconnect(ctx)
}

// ServeWebSocket authenticates the caller and upgrades the connection. A
// second connection for the same user replaces the first without ending
// its session.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID, err := h.Auth.UserID(bearerToken(c))
	if err != nil {
		abortUnauthorized(c)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Logger.Info("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	coord := chathub.NewCoordinator(userID, h.Matcher, h.Sessions, h.Hub, h.Logger, h.PollInterval, h.StoreTimeout)
	if prev := h.attach(coord); prev != nil {
		prev.Stop()
	}

	client := chathub.NewWebSocketClient(userID, conn, h.Hub, connHandler{Coordinator: coord, h: h}, h.Logger)
	h.Hub.RegisterCh <- client
	client.Run()

	coord.Resume(context.Background())
}
