package steprun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

// Runner is the slice of the job runner the activities drive.
type Runner interface {
	Start(ctx context.Context, jobID uuid.UUID) ([]string, bool, error)
	Step(ctx context.Context, jobID uuid.UUID, name string) error
	Finish(ctx context.Context, jobID uuid.UUID) error
	Fail(ctx context.Context, jobID uuid.UUID, stage string, message string) error
}

type Activities struct {
	Log    *logger.Logger
	Runner Runner
}

func parseJobID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, temporal.NewNonRetryableApplicationError("steprun: invalid job_id "+raw, string(errs.KindInvalidArgument), nil)
	}
	return id, nil
}

// classify turns pipeline errors into non-retryable application errors.
// Anything else is treated as transient and retried by the activity policy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if kind := errs.KindOf(err); kind != "" {
		return temporal.NewNonRetryableApplicationError(err.Error(), string(kind), nil)
	}
	return err
}

func (a *Activities) Init(ctx context.Context, jobID string) (InitResult, error) {
	id, err := parseJobID(jobID)
	if err != nil {
		return InitResult{}, err
	}
	steps, done, err := a.Runner.Start(ctx, id)
	if err != nil {
		return InitResult{}, classify(err)
	}
	return InitResult{Steps: steps, Done: done}, nil
}

func (a *Activities) Step(ctx context.Context, in StepInput) error {
	id, err := parseJobID(in.JobID)
	if err != nil {
		return err
	}
	stop := startHeartbeat(ctx, in.Step)
	defer stop()

	if err := a.Runner.Step(ctx, id, in.Step); err != nil {
		if a.Log != nil {
			a.Log.Warn("Job step failed", "job_id", id, "step", in.Step, "attempt", activity.GetInfo(ctx).Attempt, "error", err)
		}
		return classify(err)
	}
	return nil
}

func (a *Activities) Finish(ctx context.Context, jobID string) error {
	id, err := parseJobID(jobID)
	if err != nil {
		return err
	}
	return classify(a.Runner.Finish(ctx, id))
}

func (a *Activities) Fail(ctx context.Context, in FailInput) error {
	id, err := parseJobID(in.JobID)
	if err != nil {
		return err
	}
	if err := a.Runner.Fail(ctx, id, in.Stage, in.Message); err != nil {
		return fmt.Errorf("steprun: fail job: %w", err)
	}
	return nil
}

func startHeartbeat(ctx context.Context, step string) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx, step)
			}
		}
	}()
	return func() { close(done) }
}
