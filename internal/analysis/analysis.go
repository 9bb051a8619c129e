// Package analysis holds the pure scoring rules of the reputation loop:
// score deltas, category thresholds and the pairing compatibility predicate.
// Nothing here touches storage.
package analysis

import (
	"math"
	"time"

	"pairlive/backend/internal/config"
	"pairlive/backend/internal/models"
)

// Clamp bounds a trust score to [MinTrustScore, MaxTrustScore].
func Clamp(score float64) float64 {
	return math.Max(config.MinTrustScore, math.Min(config.MaxTrustScore, score))
}

// Category returns the trust category for a score.
func Category(score float64) models.TrustCategory {
	switch {
	case score >= config.PremiumThreshold:
		return models.TrustPremium
	case score >= config.GoodThreshold:
		return models.TrustGood
	case score >= config.WarningThreshold:
		return models.TrustWarning
	case score >= config.RestrictedThreshold:
		return models.TrustRestricted
	default:
		return models.TrustSuspended
	}
}

// FeedbackDelta returns the score change for a star rating.
// ok is false for ratings outside 1-5.
func FeedbackDelta(rating int) (delta float64, ok bool) {
	delta, ok = config.FeedbackDeltas[rating]
	return
}

// BehaviorDelta returns the score change for a behavior signal.
// recentSkips is the number of skips in the trailing window, including the
// one being scored; it is ignored for every other kind.
// It returns 0 if the behavior kind is not recognized.
func BehaviorDelta(kind models.BehaviorKind, recentSkips int64) float64 {
	if kind == models.BehaviorSkip && recentSkips <= config.SkipPenaltyAfter {
		return 0
	}
	return config.BehaviorWeights[kind]
}

// PriorityBonus returns the queue priority for a subscription tier.
func PriorityBonus(isPremium bool) int {
	if isPremium {
		return config.PremiumPriorityBonus
	}
	return 0
}

// RankScore orders the waiting pool: earlier joins and higher bonuses rank first.
func RankScore(joinedAt time.Time, priorityBonus int) int64 {
	return joinedAt.UnixMilli() - int64(priorityBonus)*config.PriorityUnit.Milliseconds()
}

// EstimatedWait is a coarse wait estimate in seconds for a 1-based position.
func EstimatedWait(position int64) int64 {
	wait := position * config.WaitPerPosition
	if wait < config.MinEstimatedWait {
		return config.MinEstimatedWait
	}
	return wait
}

func isGood(c models.TrustCategory) bool {
	return c == models.TrustPremium || c == models.TrustGood
}

// IsCompatible decides whether two queued users may be paired.
// Scores must be within MaxScoreDistance, and either both users are in good
// standing (PREMIUM/GOOD) or both are exactly WARNING. The predicate is symmetric.
func IsCompatible(a, b models.QueueEntry) bool {
	if math.Abs(a.TrustScore-b.TrustScore) > config.MaxScoreDistance {
		return false
	}
	if isGood(a.TrustCategory) && isGood(b.TrustCategory) {
		return true
	}
	return a.TrustCategory == models.TrustWarning && b.TrustCategory == models.TrustWarning
}

// ReceiverAmount is the receiver's share of a gift, rounded down.
func ReceiverAmount(amount int64) int64 {
	// Split so the multiplication cannot overflow for large amounts.
	return amount/100*config.ReceiverSharePercent + amount%100*config.ReceiverSharePercent/100
}
