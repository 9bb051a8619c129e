package config

import (
	"time"

	"pairlive/backend/internal/models"
)

const (
	// Reputation
	MinTrustScore       = 0
	MaxTrustScore       = 100
	PremiumThreshold    = 80
	GoodThreshold       = 50
	WarningThreshold    = 30
	RestrictedThreshold = 10

	// Skips only cost trust once a user exceeds this many in SkipWindow.
	SkipPenaltyAfter = 5
	SkipWindow       = 24 * time.Hour

	// Recovery
	RecoveryAmount     = 1
	RecoveryIdleAge    = 7 * 24 * time.Hour
	RecoveryScoreBelow = PremiumThreshold

	// Queue
	PremiumPriorityBonus = 10
	PriorityUnit         = 60 * time.Second // one bonus point moves a user ahead by this much
	MaxScoreDistance     = 30
	MinEstimatedWait     = 10 // seconds
	WaitPerPosition      = 15 // seconds

	// Session
	LongSessionDuration = 10 * time.Minute

	// Coins
	ReceiverSharePercent = 70
	// MaxGiftAmount keeps the receiver share computation within int64.
	MaxGiftAmount = 1_000_000

	// Complaints
	MultipleReportsThreshold = 5
	MultipleReportsWindow    = 7 * 24 * time.Hour
)

// FeedbackDeltas maps a 1-5 star rating to a trust score change.
var FeedbackDeltas = map[int]float64{
	5: 2,
	4: 1,
	3: 0,
	2: -2,
	1: -4,
}

// BehaviorWeights maps a behavior signal to its trust score change.
// SKIP is conditional on SkipPenaltyAfter and handled separately.
var BehaviorWeights = map[models.BehaviorKind]float64{
	models.BehaviorSkip:          -1,
	models.BehaviorReportValid:   -10,
	models.BehaviorFalseReport:   -5,
	models.BehaviorAFK:           -2,
	models.BehaviorGiftSent:      0.5,
	models.BehaviorGiftReceived:  0.5,
	models.BehaviorLongSession:   1,
	models.BehaviorReportInvalid: 1,
}

// ComplaintReasons lists the accepted complaint reasons.
var ComplaintReasons = []string{
	"INAPPROPRIATE_CONTENT",
	"HARASSMENT",
	"SPAM",
	"IMPERSONATION",
	"UNDERAGE",
	"SCAM",
	"OTHER",
}
