package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SessionStatusInProgress = "in_progress"
	SessionStatusCompleted  = "completed"
	SessionStatusArchived   = "archived"
)

// Session is one user's pass through the questionnaire.
type Session struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Description     string         `gorm:"column:description;not null" json:"description"`
	Name            string         `gorm:"column:name" json:"name,omitempty"`
	Audience        string         `gorm:"column:audience" json:"audience,omitempty"`
	CurrentPhase    int            `gorm:"column:current_phase;not null;default:1" json:"current_phase"`
	CompletedPhases int            `gorm:"column:completed_phases;not null;default:0" json:"completed_phases"`
	Status          string         `gorm:"column:status;not null;index" json:"status"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Session) TableName() string { return "planning_session" }

// DisplayName is the project name, falling back to the description.
func (s *Session) DisplayName() string {
	if s == nil {
		return ""
	}
	if s.Name != "" {
		return s.Name
	}
	return s.Description
}

func (s *Session) IsArchived() bool {
	return s != nil && s.Status == SessionStatusArchived
}
