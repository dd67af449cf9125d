package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	PlanStatusGenerated = "generated"
	PlanStatusApproved  = "approved"
)

// Plan is the generated markdown plan for a session. EditedContent, when set,
// supersedes Content for every downstream reader.
type Plan struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"session_id"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Content       string     `gorm:"column:content;not null" json:"content"`
	EditedContent *string    `gorm:"column:edited_content" json:"edited_content,omitempty"`
	Status        string     `gorm:"column:status;not null;index" json:"status"`
	Model         string     `gorm:"column:model" json:"model,omitempty"`
	Version       int        `gorm:"column:version;not null;default:1" json:"version"`
	GeneratedAt   time.Time  `gorm:"column:generated_at;not null" json:"generated_at"`
	ApprovedAt    *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null" json:"updated_at"`
}

func (Plan) TableName() string { return "plan" }

func (p *Plan) EffectiveContent() string {
	if p == nil {
		return ""
	}
	if p.EditedContent != nil && *p.EditedContent != "" {
		return *p.EditedContent
	}
	return p.Content
}
