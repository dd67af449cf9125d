package steprun

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow drives one job: every pipeline step is its own activity so a
// worker crash resumes at the failed step instead of the start. The workflow
// id is the job id.
func Workflow(ctx workflow.Context) error {
	jobID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if jobID == "" {
		return fmt.Errorf("steprun: missing job_id")
	}

	actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var init InitResult
	if err := workflow.ExecuteActivity(actx, ActivityInit, jobID).Get(ctx, &init); err != nil {
		return fail(ctx, jobID, "dispatch", err)
	}
	if init.Done {
		return nil
	}

	for _, step := range init.Steps {
		if err := workflow.ExecuteActivity(actx, ActivityStep, StepInput{JobID: jobID, Step: step}).Get(ctx, nil); err != nil {
			return fail(ctx, jobID, step, err)
		}
	}
	if err := workflow.ExecuteActivity(actx, ActivityFinish, jobID).Get(ctx, nil); err != nil {
		return fail(ctx, jobID, "finish", err)
	}
	return nil
}

func fail(ctx workflow.Context, jobID, stage string, cause error) error {
	fctx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 5,
		},
	})
	in := FailInput{JobID: jobID, Stage: stage, Message: failureMessage(cause)}
	if err := workflow.ExecuteActivity(fctx, ActivityFail, in).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("Marking job failed", "job_id", jobID, "stage", stage, "error", err)
	}
	return cause
}

// failureMessage strips the activity envelope so the job row carries the
// step's own error text.
func failureMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		msg := appErr.Error()
		if i := strings.Index(msg, " (type: "); i > 0 {
			msg = msg[:i]
		}
		return msg
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return "step timed out"
	}
	return err.Error()
}
