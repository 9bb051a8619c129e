// Package complaint handles reports filed by one session participant against
// the other and the moderator review that turns them into trust signals.
package complaint

import (
	"context"
	"encoding/json"
	"time"

	"pairlive/backend/internal/apperr"
	"pairlive/backend/internal/config"
	"pairlive/backend/internal/models"
	"pairlive/backend/internal/storage"

	"go.uber.org/zap"
)

// Review actions.
const (
	ActionValid     = "VALID"
	ActionInvalid   = "INVALID"
	ActionDismissed = "DISMISSED"
)

// Recorder receives the behavior signals produced by a review.
type Recorder interface {
	Record(ctx context.Context, ev models.BehaviorEvent) error
}

// Service handles the business logic for complaints.
type Service struct {
	Storage    storage.Accounts
	Reputation Recorder
	Logger     *zap.Logger

	now func() time.Time
}

// NewService creates a new complaint service.
func NewService(s storage.Accounts, rep Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Storage: s, Reputation: rep, Logger: logger, now: time.Now}
}

func validReason(reason string) bool {
	for _, r := range config.ComplaintReasons {
		if r == reason {
			return true
		}
	}
	return false
}

// Submit files a PENDING complaint by reporterID against their partner in
// sessionID. Each reporter may file once per session.
func (s *Service) Submit(ctx context.Context, sessionID, reporterID, reportedUserID, reason, description string) (*models.Complaint, error) {
	if !validReason(reason) {
		return nil, apperr.ErrInvalidReason
	}
	session, err := s.Storage.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasParticipant(reporterID) {
		return nil, apperr.ErrNotAuthorized
	}
	if reportedUserID == reporterID || session.PartnerOf(reporterID) != reportedUserID {
		return nil, apperr.ErrInvalidTarget
	}

	c := &models.Complaint{
		SessionID:      sessionID,
		ReporterID:     reporterID,
		ReportedUserID: reportedUserID,
		Reason:         reason,
		Description:    description,
		Status:         models.ComplaintPending,
	}
	c.CreatedAt = s.now()
	if err := s.Storage.SaveComplaint(ctx, c); err != nil {
		return nil, err
	}
	s.Logger.Info("complaint filed",
		zap.String("complaint_id", c.ComplaintID),
		zap.String("session_id", sessionID),
		zap.String("reason", reason),
	)
	s.checkRepeatOffender(ctx, c)
	return c, nil
}

// checkRepeatOffender penalizes a user reported MultipleReportsThreshold or
// more times within MultipleReportsWindow, without waiting for review.
// The complaint is already filed, so failures are only logged.
func (s *Service) checkRepeatOffender(ctx context.Context, c *models.Complaint) {
	n, err := s.Storage.CountComplaintsAgainst(ctx, c.ReportedUserID, s.now().Add(-config.MultipleReportsWindow))
	if err != nil {
		s.Logger.Warn("failed to count recent complaints", zap.String("user_id", c.ReportedUserID), zap.Error(err))
		return
	}
	if n < config.MultipleReportsThreshold {
		return
	}
	s.Logger.Warn("user has multiple recent complaints",
		zap.String("user_id", c.ReportedUserID), zap.Int64("complaints", n))

	ev := models.BehaviorEvent{
		UserID:   c.ReportedUserID,
		Kind:     models.BehaviorReportValid,
		Metadata: metadata(map[string]string{"trigger": "multiple_reports", "complaint_id": c.ComplaintID}),
	}
	if err := s.Reputation.Record(ctx, ev); err != nil {
		s.Logger.Error("failed to apply multiple-report penalty", zap.String("user_id", c.ReportedUserID), zap.Error(err))
	}
}

func metadata(v map[string]string) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

// Review closes a PENDING complaint.
//
//	VALID     reported user gets REPORT_VALID
//	INVALID   reporter gets FALSE_REPORT, reported user gets REPORT_INVALID
//	DISMISSED no score change
func (s *Service) Review(ctx context.Context, complaintID, reviewerID, action string) (*models.Complaint, error) {
	var status string
	switch action {
	case ActionValid:
		status = models.ComplaintResolved
	case ActionInvalid, ActionDismissed:
		status = models.ComplaintDismissed
	default:
		return nil, apperr.ErrInvalidAction
	}

	c, err := s.Storage.GetComplaintByID(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.ComplaintPending {
		return nil, apperr.ErrAlreadyReviewed
	}

	// Signals go first so a failed review can be retried. Each one is tagged
	// with the complaint and skipped if a previous attempt logged it.
	meta := metadata(map[string]string{"complaint_id": c.ComplaintID})
	var events []models.BehaviorEvent
	switch action {
	case ActionValid:
		events = append(events, models.BehaviorEvent{UserID: c.ReportedUserID, SessionID: c.SessionID, Kind: models.BehaviorReportValid, Metadata: meta})
	case ActionInvalid:
		events = append(events,
			models.BehaviorEvent{UserID: c.ReporterID, SessionID: c.SessionID, Kind: models.BehaviorFalseReport, Metadata: meta},
			models.BehaviorEvent{UserID: c.ReportedUserID, SessionID: c.SessionID, Kind: models.BehaviorReportInvalid, Metadata: meta},
		)
	}
	for _, ev := range events {
		done, err := s.Storage.HasBehaviorEvent(ctx, ev)
		if err != nil {
			return nil, err
		}
		if done {
			continue
		}
		if err := s.Reputation.Record(ctx, ev); err != nil {
			return nil, err
		}
	}

	c, err = s.Storage.ReviewComplaint(ctx, complaintID, status, reviewerID, s.now())
	if err != nil {
		return nil, err
	}

	s.Logger.Info("complaint reviewed",
		zap.String("complaint_id", complaintID),
		zap.String("action", action),
		zap.String("reviewer", reviewerID),
	)
	return c, nil
}
