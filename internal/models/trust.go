package models

// TrustCategory is the reputation tier derived from a trust score.
type TrustCategory string

const (
	TrustPremium    TrustCategory = "PREMIUM"
	TrustGood       TrustCategory = "GOOD"
	TrustWarning    TrustCategory = "WARNING"
	TrustRestricted TrustCategory = "RESTRICTED"
	TrustSuspended  TrustCategory = "SUSPENDED"
)

// CanQueue reports whether users of this category may enter the waiting pool.
func (c TrustCategory) CanQueue() bool {
	return c != TrustRestricted && c != TrustSuspended
}

// BehaviorKind identifies a behavior signal consumed by the reputation service.
type BehaviorKind string

const (
	BehaviorSkip          BehaviorKind = "SKIP"
	BehaviorReportValid   BehaviorKind = "REPORT_VALID"
	BehaviorReportInvalid BehaviorKind = "REPORT_INVALID"
	BehaviorLongSession   BehaviorKind = "LONG_SESSION"
	BehaviorGiftSent      BehaviorKind = "GIFT_SENT"
	BehaviorGiftReceived  BehaviorKind = "GIFT_RECEIVED"
	BehaviorAFK           BehaviorKind = "AFK"
	BehaviorFalseReport   BehaviorKind = "FALSE_REPORT"
)

// BehaviorKinds lists every known behavior kind.
var BehaviorKinds = []BehaviorKind{
	BehaviorSkip,
	BehaviorReportValid,
	BehaviorReportInvalid,
	BehaviorLongSession,
	BehaviorGiftSent,
	BehaviorGiftReceived,
	BehaviorAFK,
	BehaviorFalseReport,
}

// ParseBehaviorKind returns the kind named by s and whether it is known.
func ParseBehaviorKind(s string) (BehaviorKind, bool) {
	for _, k := range BehaviorKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}
