package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
	"github.com/yungbote/planforge-backend/internal/realtime/bus"
)

// JobNotifier reports job and export lifecycle events. Publishing is
// best-effort; a failed publish never fails the job.
type JobNotifier interface {
	JobCreated(userID uuid.UUID, job *domain.Job)
	JobProgress(userID uuid.UUID, job *domain.Job, stage string, progress int, message string)
	JobFailed(userID uuid.UUID, job *domain.Job, stage string, errorMessage string)
	JobDone(userID uuid.UUID, job *domain.Job)
	ExportProgress(userID uuid.UUID, export *domain.Export)
}

type jobNotifier struct {
	log *logger.Logger
	bus bus.Bus
}

// NewJobNotifier publishes to b when it is non-nil and only logs otherwise.
func NewJobNotifier(log *logger.Logger, b bus.Bus) JobNotifier {
	return &jobNotifier{log: log.With("service", "JobNotifier"), bus: b}
}

func (n *jobNotifier) publish(ev bus.Event) {
	ev.At = time.Now().UTC()
	n.log.Debug("job event", "type", ev.Type, "job_id", ev.JobID, "stage", ev.Stage, "progress", ev.Progress)
	if n.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.bus.Publish(ctx, ev); err != nil {
		n.log.Warn("publish job event failed", "type", ev.Type, "job_id", ev.JobID, "error", err)
	}
}

func jobEvent(typ string, userID uuid.UUID, job *domain.Job) bus.Event {
	ev := bus.Event{Type: typ, UserID: userID}
	if job != nil {
		ev.JobID = job.ID
		ev.JobType = job.JobType
		ev.Status = job.Status
		ev.Stage = job.Stage
		ev.Progress = job.Progress
		ev.Message = job.Message
	}
	return ev
}

func (n *jobNotifier) JobCreated(userID uuid.UUID, job *domain.Job) {
	n.publish(jobEvent(bus.EventJobProgress, userID, job))
}

func (n *jobNotifier) JobProgress(userID uuid.UUID, job *domain.Job, stage string, progress int, message string) {
	ev := jobEvent(bus.EventJobProgress, userID, job)
	ev.Stage = stage
	ev.Progress = progress
	ev.Message = message
	n.publish(ev)
}

func (n *jobNotifier) JobFailed(userID uuid.UUID, job *domain.Job, stage string, errorMessage string) {
	ev := jobEvent(bus.EventJobFailed, userID, job)
	ev.Status = domain.JobStatusFailed
	ev.Stage = stage
	ev.Message = errorMessage
	n.publish(ev)
}

func (n *jobNotifier) JobDone(userID uuid.UUID, job *domain.Job) {
	ev := jobEvent(bus.EventJobDone, userID, job)
	ev.Status = domain.JobStatusSucceeded
	ev.Progress = 100
	n.publish(ev)
}

func (n *jobNotifier) ExportProgress(userID uuid.UUID, export *domain.Export) {
	if export == nil {
		return
	}
	id := export.ID
	ev := bus.Event{
		Type:     bus.EventExportProgress,
		UserID:   userID,
		ExportID: &id,
		Status:   export.Status,
		Progress: export.Progress,
		Message:  export.ProgressMessage,
	}
	if export.JobID != nil {
		ev.JobID = *export.JobID
	}
	if export.Status == domain.ExportStatusFailed {
		ev.Message = export.ErrorMessage
	}
	n.publish(ev)
}
