// Package session owns the live session state machine:
//
//	ACTIVE -> SKIPPED | COMPLETED | DISCONNECTED
//
// Every terminal transition goes through the same teardown: the row is
// closed once, both participants' counters move, and both in-session
// markers are released. Repeating a teardown is harmless.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pairlive/backend/internal/analysis"
	"pairlive/backend/internal/apperr"
	"pairlive/backend/internal/config"
	"pairlive/backend/internal/media"
	"pairlive/backend/internal/metrics"
	"pairlive/backend/internal/models"
	"pairlive/backend/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SystemActor is recorded as EndedBy for sessions closed by the reaper.
const SystemActor = "system"

// Reputation receives the behavior signals produced by sessions.
type Reputation interface {
	Record(ctx context.Context, ev models.BehaviorEvent) error
	ApplyFeedback(ctx context.Context, userID string, rating int) error
}

// TokenIssuer provisions media-transport credentials.
type TokenIssuer interface {
	Issue(channelRef string, uid int, userID string) (media.Credential, error)
}

// Service is the session manager.
type Service struct {
	Storage    storage.Storage
	Reputation Reputation
	Media      TokenIssuer
	Logger     *zap.Logger

	MarkerTTL    time.Duration
	SkipCooldown time.Duration

	now func() time.Time
}

// NewService creates a session manager. markerTTL bounds the in-session
// markers; skipCooldown is the per-user re-skip window.
func NewService(s storage.Storage, rep Reputation, issuer TokenIssuer, logger *zap.Logger, markerTTL, skipCooldown time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Storage:      s,
		Reputation:   rep,
		Media:        issuer,
		Logger:       logger,
		MarkerTTL:    markerTTL,
		SkipCooldown: skipCooldown,
		now:          time.Now,
	}
}

// Active describes the caller's current session.
type Active struct {
	Session          *models.Session `json:"session"`
	PartnerID        string          `json:"partner_id"`
	CanSkip          bool            `json:"can_skip"`
	SkipCooldownEnds *time.Time      `json:"skip_cooldown_ends,omitempty"`
}

// GiftResult is returned by a successful SendGift.
type GiftResult struct {
	Gift          *models.Gift `json:"gift"`
	SenderBalance int64        `json:"sender_balance"`
}

// Create opens an ACTIVE session between two users. The in-session markers
// are written first and fail the call if either user already holds one.
func (s *Service) Create(ctx context.Context, userA, userB string) (*models.Session, error) {
	if userA == "" || userA == userB {
		return nil, apperr.ErrInvalidTarget
	}

	id := uuid.New().String()
	ok, err := s.Storage.SetSessionMarkers(ctx, id, userA, userB, s.MarkerTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrInSession
	}

	session := &models.Session{
		ID:           id,
		ParticipantA: userA,
		ParticipantB: userB,
		ChannelRef:   "session_" + id,
		Status:       models.SessionActive,
		StartedAt:    s.now(),
	}
	if err := s.Storage.CreateSession(ctx, session); err != nil {
		if clearErr := s.Storage.ClearSessionMarkers(ctx, id, userA, userB); clearErr != nil {
			s.Logger.Error("failed to release markers after create failure",
				zap.String("session_id", id), zap.Error(clearErr))
		}
		return nil, err
	}

	s.Logger.Info("session created",
		zap.String("session_id", id),
		zap.String("participant_a", userA),
		zap.String("participant_b", userB),
	)
	return session, nil
}

// participantSession loads a session and checks userID takes part in it.
func (s *Service) participantSession(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	session, err := s.Storage.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasParticipant(userID) {
		return nil, apperr.ErrNotAuthorized
	}
	return session, nil
}

// Skip ends the session as SKIPPED and starts the caller's skip cooldown.
// Skipping a session that has already ended succeeds without changing it.
func (s *Service) Skip(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	session, err := s.participantSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	// Claiming the cooldown first keeps two concurrent skips from both passing.
	ok, err := s.Storage.SetSkipCooldown(ctx, sessionID, userID, s.now(), s.SkipCooldown)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrSkipCooldown
	}
	if session.Status.Terminal() {
		return session, nil
	}

	session, closed, err := s.terminate(ctx, session, models.SessionSkipped, userID)
	if err != nil {
		// The skip did not happen, so a retry must not hit the cooldown.
		if cerr := s.Storage.ClearSkipCooldown(context.WithoutCancel(ctx), sessionID, userID); cerr != nil {
			s.Logger.Warn("failed to release skip cooldown",
				zap.String("session_id", sessionID), zap.String("user_id", userID), zap.Error(cerr))
		}
		return nil, err
	}
	if closed {
		s.record(ctx, userID, sessionID, models.BehaviorSkip, nil)
	}
	return session, nil
}

// End completes the session. The returned session carries DurationSeconds.
func (s *Service) End(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	session, err := s.participantSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	session, _, err = s.terminate(ctx, session, models.SessionCompleted, userID)
	return session, err
}

// Disconnect closes the session as DISCONNECTED after userID dropped off.
// closed is false when the session had already ended.
func (s *Service) Disconnect(ctx context.Context, sessionID, userID string) (session *models.Session, closed bool, err error) {
	session, err = s.participantSession(ctx, sessionID, userID)
	if err != nil {
		return nil, false, err
	}
	return s.terminate(ctx, session, models.SessionDisconnected, userID)
}

// terminate runs the shared teardown. Marker release and behavior signals
// are best effort once the row is closed.
func (s *Service) terminate(ctx context.Context, session *models.Session, status models.SessionStatus, endedBy string) (*models.Session, bool, error) {
	closedSession, closed, err := s.Storage.CloseSession(ctx, session.ID, status, endedBy, s.now())
	if err != nil {
		return nil, false, err
	}

	if err := s.Storage.ClearSessionMarkers(ctx, session.ID, session.ParticipantA, session.ParticipantB); err != nil {
		s.Logger.Warn("failed to release session markers",
			zap.String("session_id", session.ID), zap.Error(err))
	}
	if !closed {
		return closedSession, false, nil
	}

	metrics.SessionsEnded.WithLabelValues(string(status)).Inc()
	s.Logger.Info("session ended",
		zap.String("session_id", session.ID),
		zap.String("status", string(status)),
		zap.String("ended_by", endedBy),
		zap.Int64("duration_seconds", closedSession.DurationSeconds),
	)

	if status == models.SessionCompleted &&
		time.Duration(closedSession.DurationSeconds)*time.Second >= config.LongSessionDuration {
		meta := map[string]int64{"duration_seconds": closedSession.DurationSeconds}
		s.record(ctx, closedSession.ParticipantA, session.ID, models.BehaviorLongSession, meta)
		s.record(ctx, closedSession.ParticipantB, session.ID, models.BehaviorLongSession, meta)
	}
	return closedSession, true, nil
}

func (s *Service) record(ctx context.Context, userID, sessionID string, kind models.BehaviorKind, meta any) {
	if s.Reputation == nil {
		return
	}
	ev := models.BehaviorEvent{UserID: userID, SessionID: sessionID, Kind: kind}
	if meta != nil {
		if raw, err := json.Marshal(meta); err == nil {
			ev.Metadata = string(raw)
		}
	}
	if err := s.Reputation.Record(ctx, ev); err != nil {
		s.Logger.Error("failed to record behavior",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

// SendGift moves amount coins from sender to the session partner, who
// receives the ReceiverSharePercent share. Nothing moves on failure.
func (s *Service) SendGift(ctx context.Context, sessionID, senderID, receiverID, giftType string, amount int64) (*GiftResult, error) {
	res, err := s.sendGift(ctx, sessionID, senderID, receiverID, giftType, amount)
	metrics.Gifts.WithLabelValues(metrics.Outcome(apperr.Code(err))).Inc()
	return res, err
}

func (s *Service) sendGift(ctx context.Context, sessionID, senderID, receiverID, giftType string, amount int64) (*GiftResult, error) {
	if amount <= 0 || amount > config.MaxGiftAmount {
		return nil, apperr.ErrInvalidAmount
	}
	session, err := s.participantSession(ctx, sessionID, senderID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, apperr.ErrNotFound
	}
	if receiverID == senderID || session.PartnerOf(senderID) != receiverID {
		return nil, apperr.ErrInvalidReceiver
	}

	gift := &models.Gift{
		ID:             uuid.New().String(),
		SessionID:      sessionID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		GiftType:       giftType,
		CoinAmount:     amount,
		ReceiverAmount: analysis.ReceiverAmount(amount),
	}
	balance, err := s.Storage.TransferGift(ctx, gift)
	if err != nil {
		return nil, err
	}

	meta := map[string]any{"gift_id": gift.ID, "amount": amount}
	s.record(ctx, senderID, sessionID, models.BehaviorGiftSent, meta)
	s.record(ctx, receiverID, sessionID, models.BehaviorGiftReceived, meta)

	return &GiftResult{Gift: gift, SenderBalance: balance}, nil
}

// ActiveSession returns the caller's ACTIVE session, or nil.
func (s *Service) ActiveSession(ctx context.Context, userID string) (*Active, error) {
	sessionID, err := s.Storage.GetSessionMarker(ctx, userID)
	if err != nil || sessionID == "" {
		return nil, err
	}
	session, err := s.Storage.GetSessionByID(ctx, sessionID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive || !session.HasParticipant(userID) {
		return nil, nil
	}

	active := &Active{Session: session, PartnerID: session.PartnerOf(userID), CanSkip: true}
	until, onCooldown, err := s.Storage.GetSkipCooldown(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if onCooldown {
		active.CanSkip = false
		active.SkipCooldownEnds = &until
	}
	return active, nil
}

// MediaToken issues the caller's credential for an ACTIVE session's channel.
// Participant A is uid 1 and participant B is uid 2.
func (s *Service) MediaToken(ctx context.Context, sessionID, userID string) (media.Credential, error) {
	session, err := s.participantSession(ctx, sessionID, userID)
	if err != nil {
		return media.Credential{}, err
	}
	if session.Status != models.SessionActive {
		return media.Credential{}, apperr.ErrNotFound
	}
	uid := 1
	if userID == session.ParticipantB {
		uid = 2
	}
	return s.Media.Issue(session.ChannelRef, uid, userID)
}

// SubmitFeedback stores the reviewer's rating of their partner and applies
// it to the partner's trust score.
func (s *Service) SubmitFeedback(ctx context.Context, sessionID, reviewerID, targetID string, rating int, comment string) error {
	if _, ok := analysis.FeedbackDelta(rating); !ok {
		return apperr.ErrInvalidRating
	}
	session, err := s.participantSession(ctx, sessionID, reviewerID)
	if err != nil {
		return err
	}
	if targetID == reviewerID || session.PartnerOf(reviewerID) != targetID {
		return apperr.ErrInvalidTarget
	}

	fb := &models.Feedback{
		SessionID:    sessionID,
		ReviewerID:   reviewerID,
		TargetUserID: targetID,
		Rating:       rating,
		Comment:      comment,
	}
	if err := s.Storage.SaveFeedback(ctx, fb); err != nil {
		return err
	}
	if s.Reputation == nil {
		return nil
	}
	return s.Reputation.ApplyFeedback(ctx, targetID, rating)
}

// ReapStale closes ACTIVE sessions older than the marker TTL as
// DISCONNECTED. It returns how many sessions were closed.
func (s *Service) ReapStale(ctx context.Context) (int, error) {
	stale, err := s.Storage.ListStaleSessions(ctx, s.now().Add(-s.MarkerTTL))
	if err != nil {
		return 0, err
	}

	reaped := 0
	for i := range stale {
		if ctx.Err() != nil {
			return reaped, ctx.Err()
		}
		_, closed, err := s.terminate(ctx, &stale[i], models.SessionDisconnected, SystemActor)
		if err != nil {
			s.Logger.Error("failed to reap session", zap.String("session_id", stale[i].ID), zap.Error(err))
			continue
		}
		if closed {
			reaped++
		}
	}
	if reaped > 0 {
		s.Logger.Info("stale sessions reaped", zap.Int("count", reaped))
	}
	return reaped, nil
}
