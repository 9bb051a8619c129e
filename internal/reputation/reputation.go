// Package reputation maintains each user's trust score and category.
//
// Scores move only through AdjustScore, which clamps to [0, 100] and derives
// the category from the new score in the same transaction. Feedback and
// behavior signals are translated to deltas by the analysis package.
package reputation

import (
	"context"
	"errors"
	"time"

	"pairlive/backend/internal/analysis"
	"pairlive/backend/internal/apperr"
	"pairlive/backend/internal/config"
	"pairlive/backend/internal/metrics"
	"pairlive/backend/internal/models"
	"pairlive/backend/internal/storage"

	"go.uber.org/zap"
)

// Service is the reputation store.
type Service struct {
	Storage storage.Accounts
	Logger  *zap.Logger

	now func() time.Time
}

// NewService creates a new reputation service.
func NewService(s storage.Accounts, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Storage: s, Logger: logger, now: time.Now}
}

// AdjustScore adds delta to the user's score, clamps it and recomputes the
// category. It returns nil, nil when the user does not exist.
func (s *Service) AdjustScore(ctx context.Context, userID string, delta float64) (*models.User, error) {
	if delta == 0 {
		user, err := s.Storage.GetUserByID(ctx, userID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return user, err
	}

	var before models.TrustCategory
	var beforeScore float64
	now := s.now()
	user, err := s.Storage.UpdateUserTrust(ctx, userID, func(u *models.User) {
		before, beforeScore = u.TrustCategory, u.TrustScore
		score := analysis.Clamp(u.TrustScore + delta)
		if score != u.TrustScore {
			u.TrustScore = score
			u.TrustUpdatedAt = now
		}
		u.TrustCategory = analysis.Category(u.TrustScore)
	})
	if errors.Is(err, apperr.ErrNotFound) {
		s.Logger.Debug("trust adjustment for unknown user ignored", zap.String("user_id", userID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	switch {
	case user.TrustScore > beforeScore:
		metrics.TrustAdjustments.WithLabelValues("up").Inc()
	case user.TrustScore < beforeScore:
		metrics.TrustAdjustments.WithLabelValues("down").Inc()
	}

	if user.TrustCategory != before {
		s.Logger.Info("trust category changed",
			zap.String("user_id", userID),
			zap.String("from", string(before)),
			zap.String("to", string(user.TrustCategory)),
			zap.Float64("score", user.TrustScore),
		)
	}
	if user.TrustCategory == models.TrustSuspended && before != models.TrustSuspended {
		metrics.Suspensions.Inc()
		s.Logger.Warn("user suspended",
			zap.String("user_id", userID),
			zap.Float64("score", user.TrustScore),
		)
	}
	return user, nil
}

// ApplyFeedback turns a 1-5 star rating into a score change.
func (s *Service) ApplyFeedback(ctx context.Context, userID string, rating int) error {
	delta, ok := analysis.FeedbackDelta(rating)
	if !ok {
		return apperr.ErrInvalidRating
	}
	_, err := s.AdjustScore(ctx, userID, delta)
	return err
}

// ApplyBehavior turns a behavior signal into a score change. SKIP only
// costs trust once the user is past the daily allowance; the count read from
// the behavior log includes the skip being scored.
func (s *Service) ApplyBehavior(ctx context.Context, userID string, kind models.BehaviorKind) error {
	var recentSkips int64
	if kind == models.BehaviorSkip {
		n, err := s.Storage.CountBehaviorEvents(ctx, userID, kind, s.now().Add(-config.SkipWindow))
		if err != nil {
			return err
		}
		recentSkips = n
	}
	_, err := s.AdjustScore(ctx, userID, analysis.BehaviorDelta(kind, recentSkips))
	return err
}

// Record appends ev to the behavior log and applies its score change.
func (s *Service) Record(ctx context.Context, ev models.BehaviorEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	if err := s.Storage.SaveBehaviorEvent(ctx, &ev); err != nil {
		return err
	}
	return s.ApplyBehavior(ctx, ev.UserID, ev.Kind)
}

// ProcessRecovery nudges idle WARNING and RESTRICTED users up by
// RecoveryAmount. A user is idle when the score has not moved for
// RecoveryIdleAge. Failures for one user do not stop the sweep.
// It returns how many users were adjusted.
func (s *Service) ProcessRecovery(ctx context.Context) (int, error) {
	candidates, err := s.Storage.ListRecoveryCandidates(ctx,
		config.RecoveryScoreBelow,
		[]models.TrustCategory{models.TrustWarning, models.TrustRestricted},
		s.now().Add(-config.RecoveryIdleAge),
	)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, u := range candidates {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		if _, err := s.AdjustScore(ctx, u.ID, config.RecoveryAmount); err != nil {
			s.Logger.Error("trust recovery failed", zap.String("user_id", u.ID), zap.Error(err))
			continue
		}
		recovered++
	}

	s.Logger.Info("trust recovery sweep finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("recovered", recovered),
	)
	return recovered, nil
}
