package models

import "time"

// Gift is a coin gift sent between session participants.
type Gift struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	SessionID      string    `gorm:"type:text;not null;index" json:"session_id"`
	SenderID       string    `gorm:"type:text;not null;index" json:"sender_id"`
	ReceiverID     string    `gorm:"type:text;not null;index" json:"receiver_id"`
	GiftType       string    `gorm:"type:text" json:"gift_type"`
	CoinAmount     int64     `gorm:"not null" json:"coin_amount"`
	ReceiverAmount int64     `gorm:"not null" json:"receiver_amount"`
	CreatedAt      time.Time `json:"created_at"`
}

// CoinTransaction is a ledger line for any coin movement.
type CoinTransaction struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	SenderID    string    `gorm:"type:text;index" json:"sender_id,omitempty"`
	ReceiverID  string    `gorm:"type:text;index" json:"receiver_id,omitempty"`
	Type        string    `gorm:"type:varchar(16);not null" json:"type"` // "GIFT"
	Amount      int64     `gorm:"not null" json:"amount"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
