package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"pairlive/backend/internal/chathub"
	"pairlive/backend/internal/metrics"
	"pairlive/backend/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionService is what the REST and WebSocket surfaces need from sessions.
type SessionService interface {
	chathub.Sessions
	SubmitFeedback(ctx context.Context, sessionID, reviewerID, targetID string, rating int, comment string) error
}

// ComplaintService files reports against a session partner.
type ComplaintService interface {
	Submit(ctx context.Context, sessionID, reporterID, reportedUserID, reason, description string) (*models.Complaint, error)
}

// Handler holds the hub and the services behind the HTTP routes.
type Handler struct {
	Hub        *chathub.ManagerService
	Matcher    chathub.Matcher
	Sessions   SessionService
	Complaints ComplaintService
	Auth       *Authenticator
	Logger     *zap.Logger

	PollInterval time.Duration
	StoreTimeout time.Duration

	mu           sync.Mutex
	coordinators map[string]*chathub.Coordinator
}

func NewHandler(hub *chathub.ManagerService, matcher chathub.Matcher, sessions SessionService, complaints ComplaintService, auth *Authenticator, logger *zap.Logger, pollInterval, storeTimeout time.Duration) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Hub:          hub,
		Matcher:      matcher,
		Sessions:     sessions,
		Complaints:   complaints,
		Auth:         auth,
		Logger:       logger,
		PollInterval: pollInterval,
		StoreTimeout: storeTimeout,
		coordinators: make(map[string]*chathub.Coordinator),
	}
}

// Router builds the gin engine with every route mounted.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/api/v1", h.Auth.Middleware())
	{
		api.POST("/matching/join", h.JoinQueue)
		api.POST("/matching/leave", h.LeaveQueue)
		api.GET("/matching/status", h.QueueStatus)

		api.GET("/sessions/active", h.ActiveSession)
		api.POST("/sessions/:id/skip", h.SkipSession)
		api.POST("/sessions/:id/end", h.EndSession)
		api.GET("/sessions/:id/token", h.MediaToken)
		api.POST("/sessions/:id/gifts", h.SendGift)
		api.POST("/sessions/:id/feedback", h.SubmitFeedback)
		api.POST("/sessions/:id/complaints", h.SubmitComplaint)
	}
	return r
}

// Healthz reports liveness and the number of local realtime connections.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": h.Hub.ClientCount()})
}

// requestContext bounds a store call made on behalf of c.
func (h *Handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.StoreTimeout)
}

// coordinator returns the local connection's coordinator for userID, if any.
func (h *Handler) coordinator(userID string) *chathub.Coordinator {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.coordinators[userID]
}

// attach installs coord for its user and returns the one it replaced.
func (h *Handler) attach(coord *chathub.Coordinator) *chathub.Coordinator {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.coordinators[coord.UserID]
	h.coordinators[coord.UserID] = coord
	return prev
}

// detach removes coord unless a newer connection already replaced it.
func (h *Handler) detach(coord *chathub.Coordinator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.coordinators[coord.UserID] == coord {
		delete(h.coordinators, coord.UserID)
	}
}
