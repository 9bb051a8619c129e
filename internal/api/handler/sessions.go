package handler

import (
	"context"
	"net/http"

	"pairlive/backend/internal/chathub"
	"pairlive/backend/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type feedbackRequest struct {
	TargetID string `json:"target_id" binding:"required"`
	Rating   int    `json:"rating" binding:"required"`
	Comment  string `json:"comment"`
}

type complaintRequest struct {
	ReportedUserID string `json:"reported_user_id" binding:"required"`
	Reason         string `json:"reason" binding:"required"`
	Description    string `json:"description"`
}

func (h *Handler) ActiveSession(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	active, err := h.Sessions.ActiveSession(ctx, currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if active == nil {
		c.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}
	c.JSON(http.StatusOK, active)
}

func (h *Handler) SkipSession(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	s, err := h.Sessions.Skip(ctx, c.Param("id"), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.announceEnd(ctx, models.EventSessionSkipped, s)
	c.JSON(http.StatusOK, s)
}

func (h *Handler) EndSession(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	s, err := h.Sessions.End(ctx, c.Param("id"), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.announceEnd(ctx, models.EventSessionEnded, s)
	c.JSON(http.StatusOK, s)
}

func (h *Handler) MediaToken(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	cred, err := h.Sessions.MediaToken(ctx, c.Param("id"), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cred)
}

func (h *Handler) SendGift(c *gin.Context) {
	var req chathub.GiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid gift request")
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	sessionID, userID := c.Param("id"), currentUser(c)
	receiver := req.ReceiverID
	if receiver == "" {
		active, err := h.Sessions.ActiveSession(ctx, userID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		if active != nil && active.Session.ID == sessionID {
			receiver = active.PartnerID
		}
	}

	res, err := h.Sessions.SendGift(ctx, sessionID, userID, receiver, req.GiftType, req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	sent := models.NewEvent(models.EventSessionGiftSent, sessionID, res.Gift)
	sent.From = userID
	h.emit(ctx, models.Envelope{Room: models.SessionRoom(sessionID), Event: sent})
	c.JSON(http.StatusCreated, gin.H{"gift": res.Gift, "balance": res.SenderBalance})
}

func (h *Handler) SubmitFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "target_id and rating are required")
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.Sessions.SubmitFeedback(ctx, c.Param("id"), currentUser(c), req.TargetID, req.Rating, req.Comment); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (h *Handler) SubmitComplaint(c *gin.Context) {
	var req complaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "reported_user_id and reason are required")
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	complaint, err := h.Complaints.Submit(ctx, c.Param("id"), currentUser(c), req.ReportedUserID, req.Reason, req.Description)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, complaint)
}

// announceEnd tells both participants the session is over and dissolves its room.
func (h *Handler) announceEnd(ctx context.Context, eventType string, s *models.Session) {
	payload := chathub.SessionEndedPayload{EndedBy: s.EndedBy, DurationSeconds: s.DurationSeconds}
	h.emit(ctx, models.Envelope{
		Room:      models.SessionRoom(s.ID),
		CloseRoom: true,
		Event:     models.NewEvent(eventType, s.ID, payload),
	})
}

func (h *Handler) emit(ctx context.Context, env models.Envelope) {
	if err := h.Hub.Emit(ctx, env); err != nil {
		h.Logger.Warn("emit failed", zap.String("event", env.Event.Type), zap.Error(err))
	}
}
