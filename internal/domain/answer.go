package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	AnswerKindShortText   = "short_text"
	AnswerKindLongText    = "long_text"
	AnswerKindChoice      = "choice"
	AnswerKindMultiChoice = "multi_choice"
	AnswerKindBoolean     = "boolean"
)

// Answer is unique per (session, phase, question); saving again overwrites.
// Position keeps the order answers were submitted within their phase.
type Answer struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_answer_session_phase_question,priority:1" json:"session_id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	PhaseNumber  int       `gorm:"column:phase_number;not null;uniqueIndex:idx_answer_session_phase_question,priority:2" json:"phase_number"`
	QuestionID   string    `gorm:"column:question_id;not null;uniqueIndex:idx_answer_session_phase_question,priority:3" json:"question_id"`
	QuestionText string    `gorm:"column:question_text;not null" json:"question_text"`
	AnswerText   string    `gorm:"column:answer_text;not null" json:"answer_text"`
	AnswerKind   string    `gorm:"column:answer_kind;not null" json:"answer_kind"`
	Position     int       `gorm:"column:position;not null;default:0" json:"position"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (Answer) TableName() string { return "planning_answer" }
