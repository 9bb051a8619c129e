package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"pairlive/backend/internal/analysis"
	"pairlive/backend/internal/apperr"
	"pairlive/backend/internal/media"
	"pairlive/backend/internal/models"
	"pairlive/backend/internal/session"

	"go.uber.org/zap"
)

// Matcher is the queue side of the coordinator.
type Matcher interface {
	Join(ctx context.Context, userID string) (int64, error)
	Leave(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (models.QueueStatus, error)
	IsQueued(ctx context.Context, userID string) (bool, error)
	FindMatch(ctx context.Context, userID string) (*models.QueueEntry, error)
	Claim(ctx context.Context, userID, partnerID string) ([]models.QueueEntry, error)
	Restore(ctx context.Context, entries []models.QueueEntry) error
}

// Sessions is the session side of the coordinator.
type Sessions interface {
	Create(ctx context.Context, userA, userB string) (*models.Session, error)
	Skip(ctx context.Context, sessionID, userID string) (*models.Session, error)
	End(ctx context.Context, sessionID, userID string) (*models.Session, error)
	Disconnect(ctx context.Context, sessionID, userID string) (*models.Session, bool, error)
	SendGift(ctx context.Context, sessionID, senderID, receiverID, giftType string, amount int64) (*session.GiftResult, error)
	ActiveSession(ctx context.Context, userID string) (*session.Active, error)
	MediaToken(ctx context.Context, sessionID, userID string) (media.Credential, error)
}

// Emitter routes envelopes to connections.
type Emitter interface {
	Emit(ctx context.Context, env models.Envelope) error
}

// Outbound payloads.
type (
	ErrorPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}

	QueuePayload struct {
		Position             int64 `json:"position"`
		EstimatedWaitSeconds int64 `json:"estimated_wait_seconds"`
	}

	MatchFoundPayload struct {
		SessionID  string            `json:"session_id"`
		PartnerID  string            `json:"partner_id"`
		ChannelRef string            `json:"channel_ref"`
		Media      *media.Credential `json:"media,omitempty"`
	}

	SessionEndedPayload struct {
		EndedBy         string `json:"ended_by"`
		DurationSeconds int64  `json:"duration_seconds"`
	}

	GiftRequest struct {
		ReceiverID string `json:"receiver_id,omitempty"`
		GiftType   string `json:"gift_type"`
		Amount     int64  `json:"amount"`
	}

	BalancePayload struct {
		Balance int64 `json:"balance"`
	}
)

// ErrorPayloadFor renders err for a client. Infrastructure failures are not
// described beyond their class.
func ErrorPayloadFor(err error) ErrorPayload {
	if e, ok := apperr.As(err); ok {
		return ErrorPayload{Code: e.Code, Message: e.Message}
	}
	if apperr.IsTransient(err) {
		return ErrorPayload{Code: "UNAVAILABLE", Message: "temporarily unavailable, try again"}
	}
	return ErrorPayload{Code: "INTERNAL", Message: "internal error"}
}

// Coordinator drives one connected user: it polls for a partner while the
// user is queued and relays session events while they are in a session.
type Coordinator struct {
	UserID   string
	Matcher  Matcher
	Sessions Sessions
	Hub      Emitter
	Logger   *zap.Logger

	PollInterval time.Duration
	StoreTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCoordinator creates a coordinator for userID.
func NewCoordinator(userID string, matcher Matcher, sessions Sessions, hub Emitter, logger *zap.Logger, pollInterval, storeTimeout time.Duration) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		UserID:       userID,
		Matcher:      matcher,
		Sessions:     sessions,
		Hub:          hub,
		Logger:       logger.With(zap.String("user_id", userID)),
		PollInterval: pollInterval,
		StoreTimeout: storeTimeout,
	}
}

// Resume restores per-connection state after a (re)connect: it rejoins the
// room of an active session and resumes polling if the user is still queued.
func (c *Coordinator) Resume(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.StoreTimeout)
	defer cancel()

	active, err := c.Sessions.ActiveSession(ctx, c.UserID)
	if err != nil {
		c.Logger.Warn("resume: active session lookup failed", zap.Error(err))
	}
	if active != nil {
		c.emit(ctx, models.Envelope{Room: models.SessionRoom(active.Session.ID), Join: []string{c.UserID}})
		return
	}
	if queued, err := c.Matcher.IsQueued(ctx, c.UserID); err == nil && queued {
		c.startPolling()
	}
}

// HandleEvent dispatches one inbound frame.
func (c *Coordinator) HandleEvent(ctx context.Context, ev models.Event) {
	ctx, cancel := context.WithTimeout(ctx, c.StoreTimeout)
	defer cancel()

	switch ev.Type {
	case models.EventMatchingJoin:
		c.handleJoin(ctx)
	case models.EventMatchingLeave:
		c.handleLeave(ctx)
	case models.EventSessionReady, models.EventSessionMessage, models.EventSessionTyping:
		c.relay(ctx, ev)
	case models.EventSessionGift:
		c.handleGift(ctx, ev)
	case models.EventSessionSkip:
		c.handleSkip(ctx, ev)
	case models.EventSessionEnd:
		c.handleEnd(ctx, ev)
	default:
		c.sendError(ctx, models.EventSessionError, ev.SessionID, apperr.ErrInvalidAction)
	}
}

// HandleDisconnect stops polling, leaves the queue and tears down an active
// session, notifying the partner. Failures are logged and swallowed.
func (c *Coordinator) HandleDisconnect(ctx context.Context) {
	c.stopPolling()

	ctx, cancel := context.WithTimeout(ctx, c.StoreTimeout)
	defer cancel()

	if err := c.Matcher.Leave(ctx, c.UserID); err != nil {
		c.Logger.Warn("disconnect: queue cleanup failed", zap.Error(err))
	}

	active, err := c.Sessions.ActiveSession(ctx, c.UserID)
	if err != nil {
		c.Logger.Warn("disconnect: active session lookup failed", zap.Error(err))
		return
	}
	if active == nil {
		return
	}
	s, closed, err := c.Sessions.Disconnect(ctx, active.Session.ID, c.UserID)
	if err != nil {
		c.Logger.Warn("disconnect: session teardown failed", zap.String("session_id", active.Session.ID), zap.Error(err))
		return
	}
	if !closed {
		return
	}
	c.emit(ctx, models.Envelope{
		UserID: active.PartnerID,
		Event: models.NewEvent(models.EventSessionPartnerDisconnected, s.ID, SessionEndedPayload{
			EndedBy:         c.UserID,
			DurationSeconds: s.DurationSeconds,
		}),
	})
	c.emit(ctx, models.Envelope{Room: models.SessionRoom(s.ID), CloseRoom: true})
}

func (c *Coordinator) handleJoin(ctx context.Context) {
	pos, err := c.Matcher.Join(ctx, c.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyInQueue) {
			// Already waiting; make sure this connection is watching.
			c.startPolling()
		}
		c.sendError(ctx, models.EventMatchingError, "", err)
		return
	}
	c.send(ctx, models.NewEvent(models.EventMatchingJoined, "", QueuePayload{
		Position:             pos,
		EstimatedWaitSeconds: analysis.EstimatedWait(pos),
	}))
	c.startPolling()
}

func (c *Coordinator) handleLeave(ctx context.Context) {
	c.stopPolling()
	if err := c.Matcher.Leave(ctx, c.UserID); err != nil {
		c.sendError(ctx, models.EventMatchingError, "", err)
		return
	}
	c.send(ctx, models.NewEvent(models.EventMatchingLeft, "", nil))
}

// activeFor returns the caller's active session if it is sessionID.
func (c *Coordinator) activeFor(ctx context.Context, sessionID string) (*session.Active, error) {
	active, err := c.Sessions.ActiveSession(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	if active == nil || (sessionID != "" && active.Session.ID != sessionID) {
		return nil, apperr.ErrNotFound
	}
	return active, nil
}

func (c *Coordinator) relay(ctx context.Context, ev models.Event) {
	active, err := c.activeFor(ctx, ev.SessionID)
	if err != nil {
		c.sendError(ctx, models.EventSessionError, ev.SessionID, err)
		return
	}
	out := models.Event{Type: ev.Type, SessionID: active.Session.ID, From: c.UserID, Data: ev.Data}
	c.emit(ctx, models.Envelope{Room: models.SessionRoom(active.Session.ID), Except: c.UserID, Event: out})
}

func (c *Coordinator) handleGift(ctx context.Context, ev models.Event) {
	var req GiftRequest
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			c.sendError(ctx, models.EventSessionGiftError, ev.SessionID, apperr.ErrInvalidAmount)
			return
		}
	}
	active, err := c.activeFor(ctx, ev.SessionID)
	if err != nil {
		c.sendError(ctx, models.EventSessionGiftError, ev.SessionID, err)
		return
	}
	receiver := req.ReceiverID
	if receiver == "" {
		receiver = active.PartnerID
	}

	res, err := c.Sessions.SendGift(ctx, active.Session.ID, c.UserID, receiver, req.GiftType, req.Amount)
	if err != nil {
		c.sendError(ctx, models.EventSessionGiftError, active.Session.ID, err)
		return
	}
	room := models.SessionRoom(active.Session.ID)
	sent := models.NewEvent(models.EventSessionGiftSent, active.Session.ID, res.Gift)
	sent.From = c.UserID
	c.emit(ctx, models.Envelope{Room: room, Event: sent})
	c.send(ctx, models.NewEvent(models.EventSessionBalanceUpdated, active.Session.ID, BalancePayload{Balance: res.SenderBalance}))
}

func (c *Coordinator) handleSkip(ctx context.Context, ev models.Event) {
	s, err := c.Sessions.Skip(ctx, ev.SessionID, c.UserID)
	if err != nil {
		c.sendError(ctx, models.EventSessionError, ev.SessionID, err)
		return
	}
	c.announceEnd(ctx, models.EventSessionSkipped, s)
}

func (c *Coordinator) handleEnd(ctx context.Context, ev models.Event) {
	s, err := c.Sessions.End(ctx, ev.SessionID, c.UserID)
	if err != nil {
		c.sendError(ctx, models.EventSessionError, ev.SessionID, err)
		return
	}
	c.announceEnd(ctx, models.EventSessionEnded, s)
}

func (c *Coordinator) announceEnd(ctx context.Context, eventType string, s *models.Session) {
	room := models.SessionRoom(s.ID)
	payload := SessionEndedPayload{EndedBy: s.EndedBy, DurationSeconds: s.DurationSeconds}
	c.emit(ctx, models.Envelope{Room: room, CloseRoom: true, Event: models.NewEvent(eventType, s.ID, payload)})
}

// startPolling launches the match loop unless it is already running.
func (c *Coordinator) startPolling() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	go c.pollLoop(ctx, done)
}

// stopPolling cancels the match loop and waits for it to exit.
func (c *Coordinator) stopPolling() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Stop ends polling without touching queue or session state. It is used
// when a newer connection for the same user takes over.
func (c *Coordinator) Stop() {
	c.stopPolling()
}

// Polling reports whether the match loop is running.
func (c *Coordinator) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *Coordinator) pollLoop(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.done == done {
			c.cancel()
			c.cancel, c.done = nil, nil
		}
		c.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.checkForMatch(ctx) {
				return
			}
		}
	}
}

// checkForMatch runs one polling step and reports whether polling should stop.
func (c *Coordinator) checkForMatch(ctx context.Context) bool {
	tctx, cancel := context.WithTimeout(ctx, c.StoreTimeout)
	defer cancel()

	queued, err := c.Matcher.IsQueued(tctx, c.UserID)
	if err != nil {
		c.Logger.Warn("match poll: queue lookup failed", zap.Error(err))
		return false
	}
	if !queued {
		// Left, expired, or claimed by a partner's coordinator.
		return true
	}

	partner, err := c.Matcher.FindMatch(tctx, c.UserID)
	if err != nil {
		c.Logger.Warn("match poll: search failed", zap.Error(err))
		return false
	}
	if partner == nil {
		status, err := c.Matcher.Status(tctx, c.UserID)
		if err == nil && status.InQueue {
			c.send(tctx, models.NewEvent(models.EventMatchingUpdate, "", QueuePayload{
				Position:             status.Position,
				EstimatedWaitSeconds: status.EstimatedWaitSeconds,
			}))
		}
		return false
	}

	// From the claim on, a leave must not strand the claimed entries.
	cctx, ccancel := context.WithTimeout(context.WithoutCancel(ctx), c.StoreTimeout)
	defer ccancel()

	entries, err := c.Matcher.Claim(cctx, c.UserID, partner.UserID)
	if err != nil {
		c.Logger.Warn("match poll: claim failed", zap.Error(err))
		return false
	}
	if entries == nil {
		still, err := c.Matcher.IsQueued(cctx, c.UserID)
		return err == nil && !still
	}

	s, err := c.Sessions.Create(cctx, c.UserID, partner.UserID)
	if err != nil {
		c.Logger.Error("match poll: session create failed, restoring entries",
			zap.String("partner_id", partner.UserID), zap.Error(err))
		if rerr := c.Matcher.Restore(cctx, entries); rerr != nil {
			c.Logger.Error("match poll: restore failed", zap.Error(rerr))
		}
		c.sendError(cctx, models.EventMatchingError, "", err)
		// The partner's loop stopped once its entry was claimed; a rejoin
		// from its client restarts polling.
		c.emit(cctx, models.Envelope{UserID: partner.UserID, Event: models.NewEvent(models.EventMatchingError, "", ErrorPayloadFor(err))})
		return false
	}

	c.announceMatch(cctx, s)
	return true
}

func (c *Coordinator) announceMatch(ctx context.Context, s *models.Session) {
	c.emit(ctx, models.Envelope{
		Room: models.SessionRoom(s.ID),
		Join: []string{s.ParticipantA, s.ParticipantB},
	})
	for _, uid := range []string{s.ParticipantA, s.ParticipantB} {
		payload := MatchFoundPayload{
			SessionID:  s.ID,
			PartnerID:  s.PartnerOf(uid),
			ChannelRef: s.ChannelRef,
		}
		if cred, err := c.Sessions.MediaToken(ctx, s.ID, uid); err != nil {
			c.Logger.Warn("media credential unavailable", zap.String("session_id", s.ID), zap.Error(err))
		} else {
			payload.Media = &cred
		}
		c.emit(ctx, models.Envelope{
			UserID: uid,
			Event:  models.NewEvent(models.EventMatchingFound, s.ID, payload),
		})
	}
}

func (c *Coordinator) send(ctx context.Context, ev models.Event) {
	c.emit(ctx, models.Envelope{UserID: c.UserID, Event: ev})
}

func (c *Coordinator) sendError(ctx context.Context, eventType, sessionID string, err error) {
	c.send(ctx, models.NewEvent(eventType, sessionID, ErrorPayloadFor(err)))
}

func (c *Coordinator) emit(ctx context.Context, env models.Envelope) {
	if err := c.Hub.Emit(ctx, env); err != nil {
		c.Logger.Warn("emit failed", zap.String("event", env.Event.Type), zap.Error(err))
	}
}
