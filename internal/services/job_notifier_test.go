package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
	"github.com/yungbote/planforge-backend/internal/realtime/bus"
)

type recordingBus struct {
	mu     sync.Mutex
	events []bus.Event
	err    error
}

func (b *recordingBus) Publish(ctx context.Context, ev bus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return b.err
}

func (b *recordingBus) Close() error { return nil }

func TestJobNotifierPublishesJobEvents(t *testing.T) {
	b := &recordingBus{}
	n := NewJobNotifier(logger.Nop(), b)
	user := uuid.New()
	job := &domain.Job{ID: uuid.New(), JobType: domain.JobTypePlanGeneration, Status: domain.JobStatusRunning}

	n.JobProgress(user, job, "call_model", 60, "Calling model")
	n.JobDone(user, job)

	if len(b.events) != 2 {
		t.Fatalf("events: want=2 got=%d", len(b.events))
	}
	progress, done := b.events[0], b.events[1]
	if progress.Type != bus.EventJobProgress || progress.Stage != "call_model" || progress.Progress != 60 {
		t.Fatalf("progress event: got=%+v", progress)
	}
	if progress.UserID != user || progress.JobID != job.ID {
		t.Fatalf("progress ids: got user=%s job=%s", progress.UserID, progress.JobID)
	}
	if done.Type != bus.EventJobDone || done.Status != domain.JobStatusSucceeded || done.Progress != 100 {
		t.Fatalf("done event: got=%+v", done)
	}
	if done.At.IsZero() {
		t.Fatalf("done event: timestamp not set")
	}
}

func TestJobNotifierFailedExportCarriesError(t *testing.T) {
	b := &recordingBus{}
	n := NewJobNotifier(logger.Nop(), b)
	jobID := uuid.New()
	exp := &domain.Export{ID: uuid.New(), JobID: &jobID, Status: domain.ExportStatusFailed, ProgressMessage: "Building files", ErrorMessage: "no plan"}

	n.ExportProgress(uuid.New(), exp)
	n.ExportProgress(uuid.New(), nil)

	if len(b.events) != 1 {
		t.Fatalf("events: want=1 got=%d", len(b.events))
	}
	ev := b.events[0]
	if ev.ExportID == nil || *ev.ExportID != exp.ID || ev.JobID != jobID {
		t.Fatalf("export ids: got=%+v", ev)
	}
	if ev.Message != "no plan" {
		t.Fatalf("message: want=%q got=%q", "no plan", ev.Message)
	}
}

func TestJobNotifierToleratesBusErrorsAndNilBus(t *testing.T) {
	b := &recordingBus{err: errors.New("redis down")}
	NewJobNotifier(logger.Nop(), b).JobFailed(uuid.New(), &domain.Job{ID: uuid.New()}, "dispatch", "boom")
	if len(b.events) != 1 || b.events[0].Type != bus.EventJobFailed {
		t.Fatalf("failed event: got=%+v", b.events)
	}

	NewJobNotifier(logger.Nop(), nil).JobCreated(uuid.New(), &domain.Job{ID: uuid.New()})
}
