// Package storage implements the account store (PostgreSQL via gorm) and the
// ephemeral keyed store (Redis) used by the matching and session services.
package storage

import (
	"pairlive/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Storage is everything the service needs from its backing stores.
type Storage interface {
	Accounts
	Ephemeral
}

// Service implements Storage on top of PostgreSQL and Redis.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// Migrate creates or updates the tables owned by this service.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.BehaviorEvent{},
		&models.Gift{},
		&models.CoinTransaction{},
		&models.Feedback{},
		&models.Complaint{},
	)
}
