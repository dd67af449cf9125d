// Package bus fans job and export progress events out to other processes.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventJobProgress    = "job_progress"
	EventJobDone        = "job_done"
	EventJobFailed      = "job_failed"
	EventExportProgress = "export_progress"
)

type Event struct {
	Type     string     `json:"type"`
	UserID   uuid.UUID  `json:"user_id"`
	JobID    uuid.UUID  `json:"job_id,omitempty"`
	JobType  string     `json:"job_type,omitempty"`
	ExportID *uuid.UUID `json:"export_id,omitempty"`
	Status   string     `json:"status,omitempty"`
	Stage    string     `json:"stage,omitempty"`
	Progress int        `json:"progress"`
	Message  string     `json:"message,omitempty"`
	At       time.Time  `json:"at"`
}

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}
