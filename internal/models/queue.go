package models

import "time"

// QueueEntry is a user's membership in the waiting pool.
// It lives in Redis only; RankScore orders the pool (lower is served sooner).
type QueueEntry struct {
	UserID        string        `json:"user_id"`
	JoinedAt      int64         `json:"joined_at"` // unix millis
	TrustScore    float64       `json:"trust_score"`
	TrustCategory TrustCategory `json:"trust_category"`
	PriorityBonus int           `json:"priority_bonus"`
	RankScore     int64         `json:"rank_score"`
}

// JoinedTime returns JoinedAt as a time.Time.
func (e QueueEntry) JoinedTime() time.Time {
	return time.UnixMilli(e.JoinedAt)
}

// QueueStatus is the answer to "where am I in the queue".
type QueueStatus struct {
	InQueue              bool  `json:"in_queue"`
	Position             int64 `json:"position,omitempty"`
	EstimatedWaitSeconds int64 `json:"estimated_wait_seconds,omitempty"`
}
