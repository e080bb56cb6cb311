package api

import (
	"time"

	"github.com/akmatori/incidentwatch/internal/database"
)

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries a signed bearer token.
type LoginResponse struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

// UpdateIncidentRequest is the request body for PATCH /api/incidents/{uuid}.
// Absent fields are left unchanged.
type UpdateIncidentRequest struct {
	Status        *string    `json:"status" validate:"omitempty,oneof=open under_review resolved"`
	Title         *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Description   *string    `json:"description"`
	SeverityLevel *int       `json:"severity_level" validate:"omitempty,gte=1,lte=4"`
	ImpactUsers   *int       `json:"impact_users" validate:"omitempty,gte=0"`
	ResolvedAt    *time.Time `json:"resolved_at"`
}

// CreateReviewRequest is the request body for POST /api/incidents/{uuid}/reviews.
type CreateReviewRequest struct {
	ReviewStatus string `json:"review_status" validate:"required,oneof=confirmed false_positive needs_investigation"`
	ReviewNotes  string `json:"review_notes" validate:"max=4000"`
	// ReviewedBy defaults to the authenticated user.
	ReviewedBy string `json:"reviewed_by" validate:"omitempty,max=255"`
}

// IncidentListItem is the compact list representation of an incident.
type IncidentListItem struct {
	UUID            string                  `json:"uuid"`
	ChannelID       string                  `json:"channel_id"`
	ThreadTS        string                  `json:"thread_ts"`
	Title           string                  `json:"title"`
	SeverityLevel   int                     `json:"severity_level"`
	Status          database.IncidentStatus `json:"status"`
	ConfidenceScore float64                 `json:"confidence_score"`
	DetectedAt      time.Time               `json:"detected_at"`
	ResolvedAt      *time.Time              `json:"resolved_at,omitempty"`
	DurationMinutes *int                    `json:"duration_minutes,omitempty"`
}

// ReviewResponse is returned after a review is recorded.
type ReviewResponse struct {
	Review   *database.IncidentReview `json:"review"`
	Incident *database.Incident       `json:"incident"`
}

// IncidentToListItem drops messages, reviews and the raw verdict.
func IncidentToListItem(i database.Incident) IncidentListItem {
	return IncidentListItem{
		UUID:            i.UUID,
		ChannelID:       i.ChannelID,
		ThreadTS:        i.ThreadTS,
		Title:           i.Title,
		SeverityLevel:   i.SeverityLevel,
		Status:          i.Status,
		ConfidenceScore: i.ConfidenceScore,
		DetectedAt:      i.DetectedAt,
		ResolvedAt:      i.ResolvedAt,
		DurationMinutes: i.DurationMinutes,
	}
}

// IncidentsToListItems maps a page of incidents, never returning nil.
func IncidentsToListItems(incidents []database.Incident) []IncidentListItem {
	items := make([]IncidentListItem, 0, len(incidents))
	for _, i := range incidents {
		items = append(items, IncidentToListItem(i))
	}
	return items
}

// MonitoredChannel is a channel the pipeline listens to. Active is false
// when the channel could not be looked up.
type MonitoredChannel struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// MonitoringResponse describes what the pipeline watches and when it alerts.
type MonitoringResponse struct {
	// Limited is false when every channel the bot is in is monitored.
	Limited  bool               `json:"limited"`
	Channels []MonitoredChannel `json:"channels"`

	NotificationEnabled bool   `json:"notification_enabled"`
	NotificationChannel string `json:"notification_channel,omitempty"`

	MinConfidence         float64 `json:"min_confidence"`
	HighSeverityThreshold int     `json:"high_severity_threshold"`
	AnalysisDebounce      string  `json:"analysis_debounce"`
}
