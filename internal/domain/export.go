package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ExportStatusPending    = "pending"
	ExportStatusProcessing = "processing"
	ExportStatusCompleted  = "completed"
	ExportStatusFailed     = "failed"
)

const (
	ExportVariantSimple     = "simple"
	ExportVariantStructured = "structured"
)

// Export tracks one asynchronous packaging run. Status only moves forward:
// pending -> processing -> completed|failed (pending may also fail directly).
type Export struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"session_id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	JobID           *uuid.UUID     `gorm:"type:uuid;index" json:"job_id,omitempty"`
	Variant         string         `gorm:"column:variant;not null" json:"variant"`
	Options         datatypes.JSON `gorm:"column:options;type:jsonb" json:"options"`
	Status          string         `gorm:"column:status;not null;index" json:"status"`
	Progress        int            `gorm:"column:progress;not null;default:0" json:"progress"`
	ProgressMessage string         `gorm:"column:progress_message" json:"progress_message,omitempty"`
	ErrorMessage    string         `gorm:"column:error_message" json:"error_message,omitempty"`
	Files           datatypes.JSON `gorm:"column:files;type:jsonb" json:"files,omitempty"`
	ArchiveKey      string         `gorm:"column:archive_key" json:"archive_key,omitempty"`
	CompletedAt     *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (Export) TableName() string { return "plan_export" }

func (e *Export) IsTerminal() bool {
	return e != nil && (e.Status == ExportStatusCompleted || e.Status == ExportStatusFailed)
}

var exportPredecessors = map[string][]string{
	ExportStatusProcessing: {ExportStatusPending},
	ExportStatusCompleted:  {ExportStatusProcessing},
	ExportStatusFailed:     {ExportStatusPending, ExportStatusProcessing},
}

// ExportPredecessors lists the statuses an export may move to `to` from.
func ExportPredecessors(to string) []string {
	return exportPredecessors[to]
}

func CanTransitionExport(from, to string) bool {
	for _, s := range exportPredecessors[to] {
		if s == from {
			return true
		}
	}
	return false
}

// ExportOptions are chosen by the caller when an export is started.
type ExportOptions struct {
	Variant                 string `json:"variant"`
	IncludeUserInstructions bool   `json:"include_user_instructions"`
	IncludeQuickStart       bool   `json:"include_quick_start"`
	DetailedModules         bool   `json:"detailed_modules"`
}

// PhaseFile is one per-phase markdown document of a simple export.
type PhaseFile struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ExportFiles is the persisted payload a completed export is zipped from.
// Agent is the agent-instructions document, written as CLAUDE.md by default.
type ExportFiles struct {
	UserInstructions string            `json:"userInstructions,omitempty"`
	Readme           string            `json:"readme,omitempty"`
	Agent            string            `json:"claude,omitempty"`
	QuickStart       string            `json:"quickStart,omitempty"`
	CompletePlan     string            `json:"completePlan,omitempty"`
	Modules          map[string]string `json:"modules,omitempty"`
	Prompts          map[string]string `json:"prompts,omitempty"`
	Phases           []PhaseFile       `json:"phases,omitempty"`
}

func (f *ExportFiles) IsEmpty() bool {
	if f == nil {
		return true
	}
	return f.UserInstructions == "" && f.Readme == "" && f.Agent == "" && f.QuickStart == "" &&
		f.CompletePlan == "" && len(f.Modules) == 0 && len(f.Prompts) == 0 && len(f.Phases) == 0
}
