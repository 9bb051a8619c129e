package handler

import (
	"context"
	"net/http"

	"pairlive/backend/internal/analysis"

	"github.com/gin-gonic/gin"
)

// JoinQueue enqueues the caller. A local realtime connection starts
// polling for a partner right away.
func (h *Handler) JoinQueue(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := currentUser(c)
	pos, err := h.Matcher.Join(ctx, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if coord := h.coordinator(userID); coord != nil {
		coord.Resume(context.WithoutCancel(ctx))
	}
	c.JSON(http.StatusOK, gin.H{
		"in_queue":               true,
		"position":               pos,
		"estimated_wait_seconds": analysis.EstimatedWait(pos),
	})
}

// LeaveQueue removes the caller from the queue. Leaving when not queued is
// not an error.
func (h *Handler) LeaveQueue(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := currentUser(c)
	if coord := h.coordinator(userID); coord != nil {
		coord.Stop()
	}
	if err := h.Matcher.Leave(ctx, userID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) QueueStatus(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	status, err := h.Matcher.Status(ctx, currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
