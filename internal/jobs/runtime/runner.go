package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/planforge-backend/internal/data/repos"
	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/observability"
	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
	"github.com/yungbote/planforge-backend/internal/services"
)

// Runner executes registered step pipelines against job rows. The local
// worker calls Run for a claimed job; the Temporal activities call Start,
// Step, Finish and Fail one at a time.
type Runner struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRepo
	registry *Registry
	notify   services.JobNotifier

	heartbeatEvery time.Duration
}

func NewRunner(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRepo, registry *Registry, notify services.JobNotifier) *Runner {
	return &Runner{
		db:             db,
		log:            baseLog.With("component", "JobRunner"),
		repo:           repo,
		registry:       registry,
		notify:         notify,
		heartbeatEvery: 15 * time.Second,
	}
}

func isTerminal(status string) bool {
	return status == domain.JobStatusSucceeded || status == domain.JobStatusFailed
}

func (r *Runner) load(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	rows, err := r.repo.GetByIDs(dbctx.Context{Ctx: ctx, Tx: r.db}, []uuid.UUID{jobID})
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if len(rows) == 0 || rows[0] == nil {
		return nil, errs.NotFound("job")
	}
	return rows[0], nil
}

func (r *Runner) pipelineFor(jc *Context) (StepPipeline, error) {
	p, ok := r.registry.Get(jc.Job.JobType)
	if !ok {
		err := errs.InvalidArgument("no pipeline registered for job_type=" + jc.Job.JobType)
		jc.Fail("dispatch", err)
		return nil, err
	}
	return p, nil
}

// Start marks the job running and returns the steps still to do. done is true
// when the job is already terminal.
func (r *Runner) Start(ctx context.Context, jobID uuid.UUID) (steps []string, done bool, err error) {
	job, err := r.load(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	if isTerminal(job.Status) {
		return nil, true, nil
	}
	jc := NewContext(ctx, r.db, job, r.repo, r.notify)
	p, err := r.pipelineFor(jc)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	if _, err := r.repo.UpdateFieldsUnlessStatus(jc.dbc(), job.ID, terminalStatuses, map[string]interface{}{
		"status":       domain.JobStatusRunning,
		"attempts":     gorm.Expr("attempts + 1"),
		"locked_at":    now,
		"heartbeat_at": now,
		"updated_at":   now,
	}); err != nil {
		return nil, false, fmt.Errorf("mark job running: %w", err)
	}

	cp := DecodeCheckpoint(job.Checkpoint)
	for _, name := range p.Steps() {
		if !cp.Done(name) {
			steps = append(steps, name)
		}
	}
	return steps, false, nil
}

// Step runs one named step unless the checkpoint says it already completed.
func (r *Runner) Step(ctx context.Context, jobID uuid.UUID, name string) error {
	job, err := r.load(ctx, jobID)
	if err != nil {
		return err
	}
	if isTerminal(job.Status) {
		return nil
	}
	jc := NewContext(ctx, r.db, job, r.repo, r.notify)
	p, err := r.pipelineFor(jc)
	if err != nil {
		return err
	}
	cp := DecodeCheckpoint(job.Checkpoint)
	return r.runStep(jc, p, &cp, name)
}

func (r *Runner) runStep(jc *Context, p StepPipeline, cp *Checkpoint, name string) (err error) {
	if cp.Done(name) {
		return nil
	}
	steps := p.Steps()
	idx := -1
	for i, s := range steps {
		if s == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errs.InvalidArgument(fmt.Sprintf("%s has no step %q", p.Type(), name))
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Job step panic", "job_id", jc.Job.ID, "job_type", p.Type(), "step", name, "panic", rec)
			err = &panicError{Val: rec}
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		observability.Current().ObserveStep(p.Type(), name, status, time.Since(start))
	}()

	out, err := p.RunStep(jc.Ctx, jc, name, cp.State)
	if err != nil {
		return err
	}
	cp.Completed = append(cp.Completed, name)
	cp.State = out

	pct := (idx + 1) * 100 / (len(steps) + 1)
	raw := cp.Encode()
	ok, err := r.repo.SaveCheckpoint(jc.dbc(), jc.Job.ID, raw, name, pct)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	jc.Job.Checkpoint = raw
	if ok {
		jc.Job.Stage = name
		jc.Job.Progress = pct
		if r.notify != nil {
			r.notify.JobProgress(jc.Job.OwnerUserID, jc.Job, name, pct, "")
		}
	}
	r.log.Debug("Job step completed", "job_id", jc.Job.ID, "job_type", p.Type(), "step", name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Finish marks the job succeeded with the pipeline's result, if any.
func (r *Runner) Finish(ctx context.Context, jobID uuid.UUID) error {
	job, err := r.load(ctx, jobID)
	if err != nil {
		return err
	}
	if isTerminal(job.Status) {
		return nil
	}
	jc := NewContext(ctx, r.db, job, r.repo, r.notify)
	p, err := r.pipelineFor(jc)
	if err != nil {
		return err
	}
	return r.succeed(jc, p, DecodeCheckpoint(job.Checkpoint))
}

func (r *Runner) succeed(jc *Context, p StepPipeline, cp Checkpoint) error {
	for _, name := range p.Steps() {
		if !cp.Done(name) {
			return fmt.Errorf("%s: step %q has not completed", p.Type(), name)
		}
	}
	var result any
	if rp, ok := p.(ResultPipeline); ok {
		res, err := rp.Result(cp.State)
		if err != nil {
			return err
		}
		result = res
	}
	jc.Succeed("done", result)
	return nil
}

// Fail runs the pipeline's failure hook and marks the job failed at stage.
func (r *Runner) Fail(ctx context.Context, jobID uuid.UUID, stage string, message string) error {
	job, err := r.load(ctx, jobID)
	if err != nil {
		return err
	}
	if isTerminal(job.Status) {
		return nil
	}
	jc := NewContext(ctx, r.db, job, r.repo, r.notify)
	r.fail(jc, stage, errors.New(message))
	return nil
}

func (r *Runner) fail(jc *Context, stage string, cause error) {
	if p, ok := r.registry.Get(jc.Job.JobType); ok {
		p.OnFailure(jc.Ctx, jc, cause)
	}
	jc.Fail(stage, cause)
}

// Run executes a claimed job to completion in process, resuming after the
// last checkpointed step.
func (r *Runner) Run(ctx context.Context, job *domain.Job) error {
	jc := NewContext(ctx, r.db, job, r.repo, r.notify)
	p, err := r.pipelineFor(jc)
	if err != nil {
		return err
	}

	stop := r.startHeartbeat(jc.Ctx, job.ID)
	defer stop()

	cp := DecodeCheckpoint(job.Checkpoint)
	for _, name := range p.Steps() {
		if err := r.runStep(jc, p, &cp, name); err != nil {
			r.log.Warn("Job step failed", "job_id", job.ID, "job_type", job.JobType, "step", name, "error", err)
			r.fail(jc, name, err)
			return err
		}
	}
	return r.succeed(jc, p, cp)
}

func (r *Runner) startHeartbeat(ctx context.Context, jobID uuid.UUID) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(r.heartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := r.repo.Heartbeat(dbctx.Context{Ctx: ctx, Tx: r.db}, jobID); err != nil {
					r.log.Warn("Job heartbeat failed", "job_id", jobID, "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return "panic: unexpected error" }
