package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pairlive/backend/internal/apperr"
	"pairlive/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Accounts is the durable store for users, sessions and their side records.
type Accounts interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	UpdateUserTrust(ctx context.Context, userID string, apply func(u *models.User)) (*models.User, error)
	ListRecoveryCandidates(ctx context.Context, scoreBelow float64, categories []models.TrustCategory, idleSince time.Time) ([]models.User, error)

	SaveBehaviorEvent(ctx context.Context, ev *models.BehaviorEvent) error
	CountBehaviorEvents(ctx context.Context, userID string, kind models.BehaviorKind, since time.Time) (int64, error)
	HasBehaviorEvent(ctx context.Context, ev models.BehaviorEvent) (bool, error)

	CreateSession(ctx context.Context, s *models.Session) error
	GetSessionByID(ctx context.Context, sessionID string) (*models.Session, error)
	CloseSession(ctx context.Context, sessionID string, status models.SessionStatus, endedBy string, endedAt time.Time) (*models.Session, bool, error)
	ListStaleSessions(ctx context.Context, startedBefore time.Time) ([]models.Session, error)

	TransferGift(ctx context.Context, gift *models.Gift) (int64, error)

	SaveFeedback(ctx context.Context, fb *models.Feedback) error
	SaveComplaint(ctx context.Context, c *models.Complaint) error
	GetComplaintByID(ctx context.Context, complaintID string) (*models.Complaint, error)
	CountComplaintsAgainst(ctx context.Context, userID string, since time.Time) (int64, error)
	ReviewComplaint(ctx context.Context, complaintID, status, reviewerID string, at time.Time) (*models.Complaint, error)
}

var forUpdate = clause.Locking{Strength: "UPDATE"}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrNotFound
	}
	return apperr.Transient(err)
}

// GetUserByID returns apperr.ErrNotFound when the user does not exist.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UpdateUserTrust locks the user row, lets apply mutate the trust fields and
// persists trust_score, trust_category and trust_updated_at in one transaction.
func (s *Service) UpdateUserTrust(ctx context.Context, userID string, apply func(u *models.User)) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate).Where("id = ?", userID).First(&user).Error; err != nil {
			return err
		}
		apply(&user)
		return tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"trust_score":      user.TrustScore,
			"trust_category":   user.TrustCategory,
			"trust_updated_at": user.TrustUpdatedAt,
		}).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ListRecoveryCandidates returns users below scoreBelow, in one of categories,
// whose trust score has not moved since idleSince.
func (s *Service) ListRecoveryCandidates(ctx context.Context, scoreBelow float64, categories []models.TrustCategory, idleSince time.Time) ([]models.User, error) {
	var users []models.User
	err := s.DB.WithContext(ctx).
		Where("trust_score < ?", scoreBelow).
		Where("trust_category IN ?", categories).
		Where("trust_updated_at < ?", idleSince).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, apperr.Transient(err)
	}
	return users, nil
}

// SaveBehaviorEvent appends a behavior event.
func (s *Service) SaveBehaviorEvent(ctx context.Context, ev *models.BehaviorEvent) error {
	if err := s.DB.WithContext(ctx).Create(ev).Error; err != nil {
		return apperr.Transient(fmt.Errorf("save behavior event: %w", err))
	}
	return nil
}

// CountBehaviorEvents counts events of kind for userID created at or after since.
func (s *Service) CountBehaviorEvents(ctx context.Context, userID string, kind models.BehaviorKind, since time.Time) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.BehaviorEvent{}).
		Where("user_id = ? AND kind = ? AND created_at >= ?", userID, kind, since).
		Count(&n).Error
	if err != nil {
		return 0, apperr.Transient(err)
	}
	return n, nil
}

// HasBehaviorEvent reports whether an event with the same user, kind,
// session and metadata has already been logged.
func (s *Service) HasBehaviorEvent(ctx context.Context, ev models.BehaviorEvent) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.BehaviorEvent{}).
		Where("user_id = ? AND kind = ? AND session_id = ? AND metadata = ?", ev.UserID, ev.Kind, ev.SessionID, ev.Metadata).
		Count(&n).Error
	if err != nil {
		return false, apperr.Transient(err)
	}
	return n > 0, nil
}

// CreateSession persists a new session row.
func (s *Service) CreateSession(ctx context.Context, session *models.Session) error {
	if err := s.DB.WithContext(ctx).Create(session).Error; err != nil {
		return apperr.Transient(fmt.Errorf("create session: %w", err))
	}
	return nil
}

// GetSessionByID returns apperr.ErrNotFound when the session does not exist.
func (s *Service) GetSessionByID(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	if err := s.DB.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error; err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

// CloseSession moves an ACTIVE session to a terminal status and bumps both
// participants' session and minute counters in the same transaction.
// The bool result is false when the session was already terminal; in that
// case nothing is written and the stored session is returned unchanged.
func (s *Service) CloseSession(ctx context.Context, sessionID string, status models.SessionStatus, endedBy string, endedAt time.Time) (*models.Session, bool, error) {
	var session models.Session
	closed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate).Where("id = ?", sessionID).First(&session).Error; err != nil {
			return err
		}
		if session.Status != models.SessionActive {
			return nil
		}

		duration := int64(endedAt.Sub(session.StartedAt) / time.Second)
		if duration < 0 {
			duration = 0
		}
		res := tx.Model(&models.Session{}).
			Where("id = ? AND status = ?", sessionID, models.SessionActive).
			Updates(map[string]interface{}{
				"status":           status,
				"ended_at":         endedAt,
				"duration_seconds": duration,
				"ended_by":         endedBy,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost to a concurrent close.
			return tx.Where("id = ?", sessionID).First(&session).Error
		}

		err := tx.Model(&models.User{}).
			Where("id IN ?", []string{session.ParticipantA, session.ParticipantB}).
			Updates(map[string]interface{}{
				"total_sessions": gorm.Expr("total_sessions + ?", 1),
				"total_minutes":  gorm.Expr("total_minutes + ?", duration/60),
			}).Error
		if err != nil {
			return err
		}

		session.Status = status
		session.EndedAt = &endedAt
		session.DurationSeconds = duration
		session.EndedBy = endedBy
		closed = true
		return nil
	})
	if err != nil {
		return nil, false, notFound(err)
	}
	return &session, closed, nil
}

// ListStaleSessions returns ACTIVE sessions started before startedBefore.
func (s *Service) ListStaleSessions(ctx context.Context, startedBefore time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := s.DB.WithContext(ctx).
		Where("status = ? AND started_at < ?", models.SessionActive, startedBefore).
		Find(&sessions).Error
	if err != nil {
		return nil, apperr.Transient(err)
	}
	return sessions, nil
}

// TransferGift debits the sender gift.CoinAmount, credits the receiver
// gift.ReceiverAmount and writes the gift and ledger rows, all or nothing.
// It returns the sender's balance after the debit.
func (s *Service) TransferGift(ctx context.Context, gift *models.Gift) (int64, error) {
	if gift.ID == "" {
		gift.ID = uuid.New().String()
	}
	var balance int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND coin_balance >= ?", gift.SenderID, gift.CoinAmount).
			Updates(map[string]interface{}{
				"coin_balance":      gorm.Expr("coin_balance - ?", gift.CoinAmount),
				"total_coins_spent": gorm.Expr("total_coins_spent + ?", gift.CoinAmount),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrInsufficientCoins
		}

		res = tx.Model(&models.User{}).
			Where("id = ?", gift.ReceiverID).
			Updates(map[string]interface{}{
				"coin_balance":       gorm.Expr("coin_balance + ?", gift.ReceiverAmount),
				"total_coins_earned": gorm.Expr("total_coins_earned + ?", gift.ReceiverAmount),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrInvalidReceiver
		}

		if err := tx.Create(gift).Error; err != nil {
			return err
		}
		ledger := &models.CoinTransaction{
			ID:          uuid.New().String(),
			SenderID:    gift.SenderID,
			ReceiverID:  gift.ReceiverID,
			Type:        "GIFT",
			Amount:      gift.CoinAmount,
			Description: fmt.Sprintf("Sent %s gift", gift.GiftType),
		}
		if err := tx.Create(ledger).Error; err != nil {
			return err
		}

		return tx.Model(&models.User{}).Where("id = ?", gift.SenderID).
			Select("coin_balance").Scan(&balance).Error
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return 0, err
		}
		return 0, apperr.Transient(fmt.Errorf("transfer gift: %w", err))
	}
	return balance, nil
}

// SaveFeedback stores a rating and refreshes the target's average rating.
// A second rating by the same reviewer for the same session is rejected.
func (s *Service) SaveFeedback(ctx context.Context, fb *models.Feedback) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Feedback{}).
			Where("session_id = ? AND reviewer_id = ?", fb.SessionID, fb.ReviewerID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return apperr.ErrAlreadySubmitted
		}
		if err := tx.Create(fb).Error; err != nil {
			return err
		}

		var avg float64
		if err := tx.Model(&models.Feedback{}).
			Where("target_user_id = ?", fb.TargetUserID).
			Select("COALESCE(AVG(rating), 0)").Scan(&avg).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", fb.TargetUserID).
			Update("average_rating", avg).Error
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return err
		}
		return apperr.Transient(fmt.Errorf("save feedback: %w", err))
	}
	return nil
}

// SaveComplaint stores a new complaint; one per reporter per session.
func (s *Service) SaveComplaint(ctx context.Context, c *models.Complaint) error {
	if c.ComplaintID == "" {
		c.ComplaintID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = models.ComplaintPending
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Complaint{}).
			Where("session_id = ? AND reporter_id = ?", c.SessionID, c.ReporterID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return apperr.ErrAlreadyReported
		}
		return tx.Create(c).Error
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return err
		}
		return apperr.Transient(fmt.Errorf("save complaint for session %s: %w", c.SessionID, err))
	}
	return nil
}

// GetComplaintByID returns apperr.ErrNotFound when the complaint does not exist.
func (s *Service) GetComplaintByID(ctx context.Context, complaintID string) (*models.Complaint, error) {
	var c models.Complaint
	if err := s.DB.WithContext(ctx).Where("complaint_id = ?", complaintID).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// CountComplaintsAgainst counts complaints filed against userID at or after since.
func (s *Service) CountComplaintsAgainst(ctx context.Context, userID string, since time.Time) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Complaint{}).
		Where("reported_user_id = ? AND created_at >= ?", userID, since).
		Count(&n).Error
	if err != nil {
		return 0, apperr.Transient(err)
	}
	return n, nil
}

// ReviewComplaint moves a PENDING complaint to status. Reviewing twice fails
// with apperr.ErrAlreadyReviewed.
func (s *Service) ReviewComplaint(ctx context.Context, complaintID, status, reviewerID string, at time.Time) (*models.Complaint, error) {
	var c models.Complaint
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate).Where("complaint_id = ?", complaintID).First(&c).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Complaint{}).
			Where("complaint_id = ? AND status = ?", complaintID, models.ComplaintPending).
			Updates(map[string]interface{}{
				"status":      status,
				"reviewed_by": reviewerID,
				"reviewed_at": at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrAlreadyReviewed
		}
		c.Status = status
		c.ReviewedBy = reviewerID
		c.ReviewedAt = &at
		return nil
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, notFound(err)
	}
	return &c, nil
}
