package models

import "time"

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	SessionActive       SessionStatus = "ACTIVE"
	SessionCompleted    SessionStatus = "COMPLETED"
	SessionSkipped      SessionStatus = "SKIPPED"
	SessionDisconnected SessionStatus = "DISCONNECTED"
)

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionSkipped || s == SessionDisconnected
}

// Session is a one-on-one live video session between two users.
type Session struct {
	// ID is the unique identifier for the session (UUID).
	ID string `gorm:"primaryKey" json:"id"`
	// ParticipantA is the user whose coordinator created the match.
	ParticipantA string `gorm:"type:text;not null;index" json:"participant_a"`
	// ParticipantB is the matched partner.
	ParticipantB string `gorm:"type:text;not null;index" json:"participant_b"`
	// ChannelRef is the opaque media-transport channel name.
	ChannelRef string        `gorm:"type:text;not null" json:"channel_ref"`
	Status     SessionStatus `gorm:"type:varchar(16);not null;index" json:"status"`

	StartedAt       time.Time  `gorm:"not null" json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	EndedBy         string     `gorm:"type:text" json:"ended_by,omitempty"`
}

// HasParticipant reports whether userID is one of the two participants.
func (s *Session) HasParticipant(userID string) bool {
	return userID != "" && (s.ParticipantA == userID || s.ParticipantB == userID)
}

// PartnerOf returns the other participant, or "" if userID is not in the session.
func (s *Session) PartnerOf(userID string) string {
	switch userID {
	case s.ParticipantA:
		return s.ParticipantB
	case s.ParticipantB:
		return s.ParticipantA
	}
	return ""
}
