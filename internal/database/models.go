package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// IncidentStatus represents the lifecycle state of a detected incident
type IncidentStatus string

const (
	IncidentStatusOpen        IncidentStatus = "open"
	IncidentStatusUnderReview IncidentStatus = "under_review"
	IncidentStatusResolved    IncidentStatus = "resolved"
)

// Valid reports whether s is a known status.
func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentStatusOpen, IncidentStatusUnderReview, IncidentStatusResolved:
		return true
	}
	return false
}

// Incident is a thread classified as an operational incident.
// (ChannelID, ThreadTS) is the thread identity; at most one row may exist per identity.
type Incident struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	UUID            string            `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	ChannelID       string            `gorm:"uniqueIndex:idx_incidents_thread;size:64;not null" json:"channel_id"`
	ThreadTS        string            `gorm:"column:thread_ts;uniqueIndex:idx_incidents_thread;size:32;not null" json:"thread_ts"`
	Title           string            `gorm:"size:255;not null" json:"title"`
	Description     string            `gorm:"type:text" json:"description"`
	SeverityLevel   int               `gorm:"not null" json:"severity_level"`
	Status          IncidentStatus    `gorm:"size:32;not null;default:open;index" json:"status"`
	ConfidenceScore float64           `gorm:"not null" json:"confidence_score"`
	DetectedAt      time.Time         `gorm:"not null;index" json:"detected_at"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"`
	ImpactUsers     *int              `json:"impact_users,omitempty"`
	DurationMinutes *int              `json:"duration_minutes,omitempty"`
	RawVerdict      JSONB             `gorm:"type:jsonb" json:"raw_verdict,omitempty"`
	Messages        []IncidentMessage `gorm:"constraint:OnDelete:CASCADE" json:"messages,omitempty"`
	Reviews         []IncidentReview  `gorm:"constraint:OnDelete:CASCADE" json:"reviews,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// BeforeCreate assigns the public identifier and detection time.
func (i *Incident) BeforeCreate(tx *gorm.DB) error {
	if i.UUID == "" {
		i.UUID = uuid.New().String()
	}
	if i.DetectedAt.IsZero() {
		i.DetectedAt = time.Now()
	}
	if i.Status == "" {
		i.Status = IncidentStatusOpen
	}
	return nil
}

// ComputeDuration sets DurationMinutes from DetectedAt and ResolvedAt,
// truncated to whole minutes. It is a no-op while the incident is unresolved.
func (i *Incident) ComputeDuration() {
	if i.ResolvedAt == nil {
		return
	}
	minutes := int(i.ResolvedAt.Sub(i.DetectedAt) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	i.DurationMinutes = &minutes
}

func (Incident) TableName() string {
	return "incidents"
}

// IncidentMessage is a single chat message attached to an incident.
// SourceTS is the platform event timestamp and is unique across all rows.
type IncidentMessage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	IncidentID uint      `gorm:"not null;index" json:"incident_id"`
	SourceTS   string    `gorm:"column:source_ts;uniqueIndex;size:32;not null" json:"source_ts"`
	AuthorID   string    `gorm:"size:64" json:"author_id"`
	Author     string    `gorm:"size:255" json:"author"`
	Text       string    `gorm:"type:text" json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

func (IncidentMessage) TableName() string {
	return "incident_messages"
}

// ReviewStatus is the outcome a reviewer records against an incident
type ReviewStatus string

const (
	ReviewStatusConfirmed          ReviewStatus = "confirmed"
	ReviewStatusFalsePositive      ReviewStatus = "false_positive"
	ReviewStatusNeedsInvestigation ReviewStatus = "needs_investigation"
)

// IncidentReview records a human review of an automatically created incident
type IncidentReview struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	UUID         string       `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	IncidentID   uint         `gorm:"not null;index" json:"incident_id"`
	ReviewedBy   string       `gorm:"size:255;not null" json:"reviewed_by"`
	ReviewStatus ReviewStatus `gorm:"size:32;not null" json:"review_status"`
	ReviewNotes  string       `gorm:"type:text" json:"review_notes,omitempty"`
	ReviewedAt   time.Time    `gorm:"not null" json:"reviewed_at"`
}

func (r *IncidentReview) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == "" {
		r.UUID = uuid.New().String()
	}
	if r.ReviewedAt.IsZero() {
		r.ReviewedAt = time.Now()
	}
	return nil
}

func (IncidentReview) TableName() string {
	return "incident_reviews"
}
