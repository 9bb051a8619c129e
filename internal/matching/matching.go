// Package matching is the queue manager: it admits users into the waiting
// pool, reports their position and pairs compatible users.
//
// Pairing is two-phase. FindMatch is advisory; the caller must win Claim,
// which removes both entries atomically, before creating a session, and must
// Restore the claimed entries if session creation fails.
package matching

import (
	"context"
	"time"

	"pairlive/backend/internal/analysis"
	"pairlive/backend/internal/apperr"
	"pairlive/backend/internal/metrics"
	"pairlive/backend/internal/models"
	"pairlive/backend/internal/storage"

	"go.uber.org/zap"
)

// Service is the queue manager.
type Service struct {
	Storage  storage.Storage
	Logger   *zap.Logger
	EntryTTL time.Duration

	now func() time.Time
}

// NewService creates a queue manager whose entries expire after entryTTL.
func NewService(s storage.Storage, logger *zap.Logger, entryTTL time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Storage: s, Logger: logger, EntryTTL: entryTTL, now: time.Now}
}

// Join puts userID in the waiting pool and returns the 1-based position.
func (s *Service) Join(ctx context.Context, userID string) (int64, error) {
	pos, err := s.join(ctx, userID)
	metrics.QueueJoins.WithLabelValues(metrics.Outcome(apperr.Code(err))).Inc()
	return pos, err
}

func (s *Service) join(ctx context.Context, userID string) (int64, error) {
	existing, err := s.Storage.GetQueueEntry(ctx, userID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, apperr.ErrAlreadyInQueue
	}

	sessionID, err := s.Storage.GetSessionMarker(ctx, userID)
	if err != nil {
		return 0, err
	}
	if sessionID != "" {
		return 0, apperr.ErrInSession
	}

	user, err := s.Storage.GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !user.TrustCategory.CanQueue() {
		return 0, apperr.ErrRestricted
	}

	now := s.now()
	bonus := analysis.PriorityBonus(user.IsPremium)
	entry := models.QueueEntry{
		UserID:        userID,
		JoinedAt:      now.UnixMilli(),
		TrustScore:    user.TrustScore,
		TrustCategory: user.TrustCategory,
		PriorityBonus: bonus,
		RankScore:     analysis.RankScore(now, bonus),
	}
	inserted, err := s.Storage.EnqueueEntry(ctx, entry, s.EntryTTL)
	if err != nil {
		return 0, err
	}
	if !inserted {
		// Lost a race with a concurrent join for the same user.
		return 0, apperr.ErrAlreadyInQueue
	}

	s.Logger.Info("user joined queue",
		zap.String("user_id", userID),
		zap.String("category", string(user.TrustCategory)),
		zap.Int("priority_bonus", bonus),
	)
	return s.Storage.QueuePosition(ctx, userID)
}

// Leave removes userID from the pool. Leaving when not queued is not an error.
func (s *Service) Leave(ctx context.Context, userID string) error {
	return s.Storage.RemoveQueueEntry(ctx, userID)
}

// IsQueued reports whether userID still has a live entry.
func (s *Service) IsQueued(ctx context.Context, userID string) (bool, error) {
	entry, err := s.Storage.GetQueueEntry(ctx, userID)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// Status reports the user's position and a coarse wait estimate.
func (s *Service) Status(ctx context.Context, userID string) (models.QueueStatus, error) {
	queued, err := s.IsQueued(ctx, userID)
	if err != nil || !queued {
		return models.QueueStatus{}, err
	}
	pos, err := s.Storage.QueuePosition(ctx, userID)
	if err != nil {
		return models.QueueStatus{}, err
	}
	if pos == 0 {
		return models.QueueStatus{}, nil
	}
	return models.QueueStatus{
		InQueue:              true,
		Position:             pos,
		EstimatedWaitSeconds: analysis.EstimatedWait(pos),
	}, nil
}

// FindMatch returns the first compatible entry in rank order, or nil.
// It returns nil when userID is no longer queued.
func (s *Service) FindMatch(ctx context.Context, userID string) (*models.QueueEntry, error) {
	self, err := s.Storage.GetQueueEntry(ctx, userID)
	if err != nil || self == nil {
		return nil, err
	}

	entries, err := s.Storage.ListQueueEntries(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		candidate := entries[i]
		if candidate.UserID == userID {
			continue
		}
		if analysis.IsCompatible(*self, candidate) {
			return &candidate, nil
		}
	}
	return nil, nil
}

// Claim removes both users from the pool if both are still waiting. It
// returns nil, nil when another coordinator got there first.
func (s *Service) Claim(ctx context.Context, userID, partnerID string) ([]models.QueueEntry, error) {
	entries, err := s.Storage.ClaimQueueEntries(ctx, userID, partnerID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		metrics.ClaimConflicts.Inc()
		s.Logger.Debug("match claim lost",
			zap.String("user_id", userID),
			zap.String("partner_id", partnerID),
		)
		return nil, nil
	}
	metrics.Matches.Inc()
	return entries, nil
}

// Restore puts claimed entries back with their original rank. An entry is
// skipped if the user has re-joined in the meantime.
func (s *Service) Restore(ctx context.Context, entries []models.QueueEntry) error {
	for _, e := range entries {
		inserted, err := s.Storage.EnqueueEntry(ctx, e, s.EntryTTL)
		if err != nil {
			return err
		}
		if !inserted {
			s.Logger.Info("restore skipped, user already queued", zap.String("user_id", e.UserID))
		}
	}
	return nil
}
