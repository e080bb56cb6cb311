package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/akmatori/incidentwatch/internal/database"
)

var (
	// ErrIncidentNotFound is returned when no incident matches the lookup.
	ErrIncidentNotFound = errors.New("incident not found")
	// ErrInvalidUpdate is returned for out-of-range field updates.
	ErrInvalidUpdate = errors.New("invalid incident update")

	errThreadTaken = errors.New("thread already has an incident")
)

// IncidentService owns every read and write against the incident tables.
// Uniqueness of (channel_id, thread_ts) and of incident_messages.source_ts is
// enforced by the store; checks made here before writing are advisory.
type IncidentService struct {
	db      *gorm.DB
	retrier *database.Retrier
}

// NewIncidentService creates a new incident service. retrier may be nil.
func NewIncidentService(db *gorm.DB, retrier *database.Retrier) *IncidentService {
	return &IncidentService{db: db, retrier: retrier}
}

// FindIncidentByThread returns the incident for a thread, or nil if none exists.
func (s *IncidentService) FindIncidentByThread(ctx context.Context, channelID, threadTS string) (*database.Incident, error) {
	var incident database.Incident
	err := s.retrier.Do(ctx, "find incident by thread", func(ctx context.Context) error {
		return s.db.WithContext(ctx).
			Where("channel_id = ? AND thread_ts = ?", channelID, threadTS).
			Take(&incident).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up incident for thread %s/%s: %w", channelID, threadTS, err)
	}
	return &incident, nil
}

// HasMessage reports whether a message with the given source timestamp is recorded.
func (s *IncidentService) HasMessage(ctx context.Context, sourceTS string) (bool, error) {
	var count int64
	err := s.retrier.Do(ctx, "has message", func(ctx context.Context) error {
		return s.db.WithContext(ctx).
			Model(&database.IncidentMessage{}).
			Where("source_ts = ?", sourceTS).
			Count(&count).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to check message %s: %w", sourceTS, err)
	}
	return count > 0, nil
}

// CreateIncidentWithMessages inserts incident and its messages in one transaction.
// If another writer already created an incident for the same thread, the
// transaction is rolled back and created is false with a nil error.
func (s *IncidentService) CreateIncidentWithMessages(ctx context.Context, incident *database.Incident, messages []database.IncidentMessage) (bool, error) {
	err := s.retrier.Do(ctx, "create incident", func(ctx context.Context) error {
		incident.ID = 0
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit(clause.Associations).Create(incident).Error; err != nil {
				if database.IsUniqueViolation(err) {
					return errThreadTaken
				}
				return fmt.Errorf("failed to insert incident: %w", err)
			}

			if len(messages) == 0 {
				return nil
			}
			for i := range messages {
				messages[i].ID = 0
				messages[i].IncidentID = incident.ID
			}
			if err := tx.Create(&messages).Error; err != nil {
				return fmt.Errorf("failed to insert %d incident messages: %w", len(messages), err)
			}
			return nil
		})
	})
	if errors.Is(err, errThreadTaken) {
		incident.ID = 0
		return false, nil
	}
	if err != nil {
		return false, err
	}

	incident.Messages = messages
	return true, nil
}

// AppendMessage records one more message on an existing incident. It returns
// false without error when the message was already recorded.
func (s *IncidentService) AppendMessage(ctx context.Context, incidentID uint, msg *database.IncidentMessage) (bool, error) {
	msg.IncidentID = incidentID
	err := s.retrier.Do(ctx, "append message", func(ctx context.Context) error {
		msg.ID = 0
		return s.db.WithContext(ctx).Create(msg).Error
	})
	if database.IsUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to append message %s to incident %d: %w", msg.SourceTS, incidentID, err)
	}
	return true, nil
}

// ListIncidents returns a page of incidents, newest first, optionally filtered by status.
func (s *IncidentService) ListIncidents(ctx context.Context, status database.IncidentStatus, offset, limit int) ([]database.Incident, int64, error) {
	byStatus := func(db *gorm.DB) *gorm.DB {
		if status != "" {
			return db.Where("status = ?", status)
		}
		return db
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&database.Incident{}).Scopes(byStatus).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	var incidents []database.Incident
	err := s.db.WithContext(ctx).Scopes(byStatus).
		Order("detected_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&incidents).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	return incidents, total, nil
}

// GetIncident returns an incident with its messages (oldest first) and reviews.
func (s *IncidentService) GetIncident(ctx context.Context, uuid string) (*database.Incident, error) {
	var incident database.Incident
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("source_ts ASC") }).
		Preload("Reviews", func(db *gorm.DB) *gorm.DB { return db.Order("reviewed_at DESC") }).
		Where("uuid = ?", uuid).
		Take(&incident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident %s: %w", uuid, err)
	}
	return &incident, nil
}

// IncidentUpdate holds the optional fields of a manual incident edit.
type IncidentUpdate struct {
	Status        *database.IncidentStatus
	Title         *string
	Description   *string
	SeverityLevel *int
	ImpactUsers   *int
	ResolvedAt    *time.Time
}

// UpdateIncident applies a manual edit. Resolving without an explicit
// resolution time stamps the current time, and the duration is recomputed
// whenever the incident ends up resolved.
func (s *IncidentService) UpdateIncident(ctx context.Context, uuid string, upd IncidentUpdate) (*database.Incident, error) {
	if err := upd.validate(); err != nil {
		return nil, err
	}

	var incident database.Incident
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("uuid = ?", uuid).Take(&incident).Error; err != nil {
			return err
		}

		if upd.Title != nil {
			incident.Title = *upd.Title
		}
		if upd.Description != nil {
			incident.Description = *upd.Description
		}
		if upd.SeverityLevel != nil {
			incident.SeverityLevel = *upd.SeverityLevel
		}
		if upd.ImpactUsers != nil {
			incident.ImpactUsers = upd.ImpactUsers
		}
		if upd.ResolvedAt != nil {
			incident.ResolvedAt = upd.ResolvedAt
		}
		if upd.Status != nil {
			applyStatus(&incident, *upd.Status, time.Now())
		} else if incident.Status == database.IncidentStatusResolved {
			incident.ComputeDuration()
		}

		return tx.Omit(clause.Associations).Save(&incident).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update incident %s: %w", uuid, err)
	}
	return &incident, nil
}

func (u IncidentUpdate) validate() error {
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidUpdate, *u.Status)
	}
	if u.SeverityLevel != nil && (*u.SeverityLevel < 1 || *u.SeverityLevel > 4) {
		return fmt.Errorf("%w: severity_level must be between 1 and 4", ErrInvalidUpdate)
	}
	if u.ImpactUsers != nil && *u.ImpactUsers < 0 {
		return fmt.Errorf("%w: impact_users must not be negative", ErrInvalidUpdate)
	}
	if u.Title != nil && *u.Title == "" {
		return fmt.Errorf("%w: title must not be empty", ErrInvalidUpdate)
	}
	return nil
}

// applyStatus moves incident to status. Leaving the resolved state clears the
// resolution time and duration.
func applyStatus(incident *database.Incident, status database.IncidentStatus, now time.Time) {
	incident.Status = status
	if status != database.IncidentStatusResolved {
		incident.ResolvedAt = nil
		incident.DurationMinutes = nil
		return
	}
	if incident.ResolvedAt == nil {
		incident.ResolvedAt = &now
	}
	incident.ComputeDuration()
}

// ReviewInput is a reviewer's verdict on an incident.
type ReviewInput struct {
	ReviewedBy string
	Status     database.ReviewStatus
	Notes      string
}

// AddReview records a review and applies its status transition:
// false_positive resolves the incident, needs_investigation moves it to
// under_review, confirmed leaves the status unchanged.
func (s *IncidentService) AddReview(ctx context.Context, uuid string, in ReviewInput) (*database.IncidentReview, *database.Incident, error) {
	switch in.Status {
	case database.ReviewStatusConfirmed, database.ReviewStatusFalsePositive, database.ReviewStatusNeedsInvestigation:
	default:
		return nil, nil, fmt.Errorf("%w: unknown review status %q", ErrInvalidUpdate, in.Status)
	}
	if in.ReviewedBy == "" {
		return nil, nil, fmt.Errorf("%w: reviewed_by is required", ErrInvalidUpdate)
	}

	var (
		incident database.Incident
		review   database.IncidentReview
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("uuid = ?", uuid).Take(&incident).Error; err != nil {
			return err
		}

		review = database.IncidentReview{
			IncidentID:   incident.ID,
			ReviewedBy:   in.ReviewedBy,
			ReviewStatus: in.Status,
			ReviewNotes:  in.Notes,
		}
		if err := tx.Create(&review).Error; err != nil {
			return err
		}

		switch in.Status {
		case database.ReviewStatusFalsePositive:
			applyStatus(&incident, database.IncidentStatusResolved, review.ReviewedAt)
		case database.ReviewStatusNeedsInvestigation:
			applyStatus(&incident, database.IncidentStatusUnderReview, review.ReviewedAt)
		default:
			return nil
		}
		return tx.Omit(clause.Associations).Save(&incident).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to review incident %s: %w", uuid, err)
	}
	return &review, &incident, nil
}
