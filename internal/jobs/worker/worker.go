package worker

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/planforge-backend/internal/data/repos"
	"github.com/yungbote/planforge-backend/internal/jobs/runtime"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
	"github.com/yungbote/planforge-backend/internal/platform/envutil"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

// Worker polls job_run for runnable jobs and executes them in process. It is
// only started when no Temporal client is configured.
type Worker struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRepo
	runner *runtime.Runner

	pollEvery    time.Duration
	maxAttempts  int
	staleRunning time.Duration
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRepo, runner *runtime.Runner) *Worker {
	return &Worker{
		db:           db,
		log:          baseLog.With("component", "JobWorker"),
		repo:         repo,
		runner:       runner,
		pollEvery:    time.Second,
		maxAttempts:  envutil.Int("WORKER_MAX_ATTEMPTS", 3),
		staleRunning: envutil.Seconds("WORKER_STALE_RUNNING_SECONDS", 10*time.Minute),
	}
}

func (w *Worker) Start(ctx context.Context) {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("Starting job worker pool", "concurrency", concurrency)

	for i := 0; i < concurrency; i++ {
		workerID := i + 1
		go w.runLoop(ctx, workerID)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			for w.RunOnce(ctx, workerID) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// RunOnce claims and runs at most one job. It reports whether a job was
// claimed so callers can drain the queue without waiting for the next tick.
func (w *Worker) RunOnce(ctx context.Context, workerID int) bool {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx, Tx: w.db}, w.staleRunning)
	if err != nil {
		w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}
	if job.Attempts > w.maxAttempts {
		// Its worker died on the last allowed attempt.
		w.log.Warn("Job attempts exhausted", "worker_id", workerID, "job_id", job.ID, "job_type", job.JobType, "attempts", job.Attempts-1)
		msg := fmt.Sprintf("worker lost after %d attempts", job.Attempts-1)
		if err := w.runner.Fail(ctx, job.ID, "attempts_exhausted", msg); err != nil {
			w.log.Error("Failing exhausted job failed", "job_id", job.ID, "error", err)
		}
		return true
	}

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job runner panic",
				"worker_id", workerID,
				"job_id", job.ID,
				"job_type", job.JobType,
				"panic", r,
			)
			_ = w.runner.Fail(ctx, job.ID, "panic", "panic: unexpected error")
		}
	}()

	if err := w.runner.Run(ctx, job); err != nil {
		w.log.Warn("Job failed",
			"worker_id", workerID,
			"job_id", job.ID,
			"job_type", job.JobType,
			"error", err,
		)
	}
	return true
}
