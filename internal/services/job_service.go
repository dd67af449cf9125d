package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/planforge-backend/internal/data/repos"
	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
	"github.com/yungbote/planforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

// Workflow type registered by the Temporal worker. Kept literal here so
// services does not import the workflow package.
const stepRunWorkflow = "step_run"

type EnqueueRequest struct {
	OwnerUserID    uuid.UUID
	JobType        string
	EntityType     string
	EntityID       *uuid.UUID
	IdempotencyKey string
	Payload        map[string]any
}

type JobService interface {
	// Enqueue creates a queued job and dispatches it. A repeated idempotency
	// key returns the existing job with created=false.
	Enqueue(dbc dbctx.Context, req EnqueueRequest) (job *domain.Job, created bool, err error)
	Dispatch(dbc dbctx.Context, jobID uuid.UUID) error
	GetForOwner(ctx context.Context, ownerUserID, jobID uuid.UUID) (*domain.Job, error)
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRepo
	notify JobNotifier

	temporal          temporalsdkclient.Client
	temporalTaskQueue string
}

// NewJobService dispatches to Temporal when tc is non-nil. Without it jobs
// stay queued for the local worker to claim.
func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.JobRepo,
	notify JobNotifier,
	tc temporalsdkclient.Client,
	taskQueue string,
) JobService {
	return &jobService{
		db:                db,
		log:               baseLog.With("service", "JobService"),
		repo:              repo,
		notify:            notify,
		temporal:          tc,
		temporalTaskQueue: strings.TrimSpace(taskQueue),
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, req EnqueueRequest) (*domain.Job, bool, error) {
	if req.OwnerUserID == uuid.Nil {
		return nil, false, fmt.Errorf("missing owner_user_id")
	}
	if req.JobType == "" {
		return nil, false, fmt.Errorf("missing job_type")
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.repo.GetByIdempotencyKey(dbc, req.OwnerUserID, key)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	ctxutil.GetTraceData(ctxutil.Default(dbc.Ctx)).StampPayload(payload)
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("encode payload: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:          uuid.New(),
		OwnerUserID: req.OwnerUserID,
		JobType:     req.JobType,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		Status:      domain.JobStatusQueued,
		Stage:       "queued",
		Message:     "Queued",
		Payload:     datatypes.JSON(b),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if key != "" {
		job.IdempotencyKey = &key
	}
	if _, err := s.repo.Create(dbc, []*domain.Job{job}); err != nil {
		if key != "" && repos.IsDuplicateKey(err) {
			existing, gerr := s.repo.GetByIdempotencyKey(dbctx.New(dbc.Ctx), req.OwnerUserID, key)
			if gerr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	s.notify.JobCreated(req.OwnerUserID, job)

	// Inside a caller's transaction the row is not visible to workers yet;
	// the caller dispatches after commit.
	if isDBTransaction(dbc.Tx) {
		s.log.Debug("Job enqueued inside transaction; awaiting dispatch after commit", "job_id", job.ID, "job_type", job.JobType)
		return job, true, nil
	}
	if err := s.Dispatch(dbctx.New(dbc.Ctx), job.ID); err != nil {
		return job, true, err
	}
	return job, true, nil
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}

func (s *jobService) Dispatch(dbc dbctx.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return fmt.Errorf("missing job id")
	}
	if s.temporal == nil {
		// The local worker polls for queued jobs.
		return nil
	}
	ctx := ctxutil.Default(dbc.Ctx)

	_, err := s.temporal.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                    jobID.String(),
		TaskQueue:             s.temporalTaskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, stepRunWorkflow)
	if err == nil {
		return nil
	}
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		return nil
	}

	now := time.Now().UTC()
	_ = s.repo.UpdateFields(dbctx.Context{Ctx: ctx, Tx: s.db}, jobID, map[string]interface{}{
		"status":        domain.JobStatusFailed,
		"stage":         "dispatch",
		"message":       "",
		"error":         err.Error(),
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	})
	if rows, rerr := s.repo.GetByIDs(dbctx.Context{Ctx: ctx, Tx: s.db}, []uuid.UUID{jobID}); rerr == nil && len(rows) > 0 && rows[0] != nil {
		j := rows[0]
		s.notify.JobFailed(j.OwnerUserID, j, "dispatch", err.Error())
	}
	return fmt.Errorf("start temporal workflow: %w", err)
}

func (s *jobService) GetForOwner(ctx context.Context, ownerUserID, jobID uuid.UUID) (*domain.Job, error) {
	job, err := s.repo.GetForOwner(dbctx.New(ctx), ownerUserID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, errs.NotFound("job")
	}
	return job, nil
}
