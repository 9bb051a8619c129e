package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the reputation and wallet projection of an account.
// Profile data lives with the account system; this service only moves
// trust score, trust category, coin balance and the cumulative counters.
type User struct {
	ID string `gorm:"primaryKey" json:"id"` // Anonymous UUID

	TrustScore     float64       `gorm:"not null" json:"trust_score"`
	TrustCategory  TrustCategory `gorm:"type:varchar(16);not null;index" json:"trust_category"`
	TrustUpdatedAt time.Time     `gorm:"index" json:"trust_updated_at"`
	IsPremium      bool          `gorm:"not null;default:false" json:"is_premium"`

	CoinBalance      int64 `gorm:"not null;default:0" json:"coin_balance"`
	TotalCoinsEarned int64 `gorm:"not null;default:0" json:"total_coins_earned"`
	TotalCoinsSpent  int64 `gorm:"not null;default:0" json:"total_coins_spent"`

	TotalSessions int64   `gorm:"not null;default:0" json:"total_sessions"`
	TotalMinutes  int64   `gorm:"not null;default:0" json:"total_minutes"`
	AverageRating float64 `json:"average_rating"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID for the user when the ID is not set and
// stamps the trust clock so the recovery sweep measures from creation.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.TrustUpdatedAt.IsZero() {
		u.TrustUpdatedAt = time.Now()
	}
	return
}
