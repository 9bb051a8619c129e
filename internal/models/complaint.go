package models

import "time"

// Complaint statuses.
const (
	ComplaintPending   = "PENDING"
	ComplaintResolved  = "RESOLVED"
	ComplaintDismissed = "DISMISSED"
)

// Complaint is a report filed by one participant against the other.
type Complaint struct {
	ComplaintID    string     `gorm:"primaryKey" json:"complaint_id"`
	SessionID      string     `gorm:"type:text;not null;index" json:"session_id"`
	ReporterID     string     `gorm:"type:text;not null;index" json:"reporter_id"`
	ReportedUserID string     `gorm:"type:text;not null;index" json:"reported_user_id"`
	Reason         string     `gorm:"type:varchar(32);not null" json:"reason"`
	Description    string     `gorm:"type:text" json:"description,omitempty"`
	Status         string     `gorm:"type:varchar(16);not null" json:"status"`
	ReviewedBy     string     `gorm:"type:text" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
