package models

import "time"

// Feedback is a post-session star rating left by one participant for the other.
type Feedback struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SessionID    string    `gorm:"type:text;not null;uniqueIndex:idx_feedback_session_reviewer" json:"session_id"`
	ReviewerID   string    `gorm:"type:text;not null;uniqueIndex:idx_feedback_session_reviewer" json:"reviewer_id"`
	TargetUserID string    `gorm:"type:text;not null;index" json:"target_user_id"`
	Rating       int       `gorm:"not null" json:"rating"`
	Comment      string    `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
