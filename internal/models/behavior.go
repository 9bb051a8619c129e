package models

import "time"

// BehaviorEvent is an append-only record of a behavior signal.
// Rows are never updated; the 24h skip counter reads them back.
type BehaviorEvent struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	UserID    string       `gorm:"type:text;not null;index:idx_behavior_user_kind" json:"user_id"`
	SessionID string       `gorm:"type:text;index" json:"session_id,omitempty"`
	Kind      BehaviorKind `gorm:"type:varchar(32);not null;index:idx_behavior_user_kind" json:"kind"`
	// Metadata is free-form JSON, e.g. {"duration_seconds": 42}.
	Metadata  string    `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
