package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/planforge-backend/internal/data/repos"
	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/observability"
	"github.com/yungbote/planforge-backend/internal/pipeline/aggregate"
	"github.com/yungbote/planforge-backend/internal/pipeline/compose"
	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
	"github.com/yungbote/planforge-backend/internal/pipeline/generate"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
	"github.com/yungbote/planforge-backend/internal/platform/lock"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

type PlanResult struct {
	PlanID   uuid.UUID `json:"plan_id"`
	PlanText string    `json:"plan_text"`
	Status   string    `json:"status"`
}

// GenerationState is carried between plan generation steps. Every field a
// step fills is checked on entry so a re-run step is a no-op.
type GenerationState struct {
	SessionID   uuid.UUID       `json:"session_id"`
	OwnerUserID uuid.UUID       `json:"user_id"`
	Input       *compose.Input  `json:"input,omitempty"`
	Prompt      *compose.Prompt `json:"prompt,omitempty"`
	Text        string          `json:"text,omitempty"`
	Model       string          `json:"model,omitempty"`
	PlanID      uuid.UUID       `json:"plan_id,omitempty"`
}

type PlanServiceConfig struct {
	SyncTimeout time.Duration
	LockTTL     time.Duration
}

type PlanService interface {
	// GeneratePlan runs the whole chain inline, bounded by the sync timeout.
	GeneratePlan(ctx context.Context, ownerUserID, sessionID uuid.UUID) (*PlanResult, error)
	// EnqueueGeneration starts the durable plan_generation job.
	EnqueueGeneration(ctx context.Context, ownerUserID, sessionID uuid.UUID, idempotencyKey string) (*domain.Job, error)
	GetPlan(ctx context.Context, ownerUserID, sessionID uuid.UUID) (*domain.Plan, error)
	SaveEdit(ctx context.Context, ownerUserID, sessionID uuid.UUID, content string) (*domain.Plan, error)
	Approve(ctx context.Context, ownerUserID, sessionID uuid.UUID) (*domain.Plan, error)

	LoadAnswers(ctx context.Context, st *GenerationState) error
	Compose(ctx context.Context, st *GenerationState) error
	CallModel(ctx context.Context, st *GenerationState) error
	PersistPlan(ctx context.Context, st *GenerationState) error
}

type planService struct {
	db         *gorm.DB
	log        *logger.Logger
	sessions   repos.SessionRepo
	plans      repos.PlanRepo
	jobRepo    repos.JobRepo
	jobs       JobService
	aggregator *aggregate.Aggregator
	composer   *compose.Composer
	generator  *generate.Generator
	locker     lock.Locker
	cfg        PlanServiceConfig
}

func NewPlanService(
	db *gorm.DB,
	baseLog *logger.Logger,
	sessions repos.SessionRepo,
	plans repos.PlanRepo,
	jobRepo repos.JobRepo,
	jobs JobService,
	aggregator *aggregate.Aggregator,
	composer *compose.Composer,
	generator *generate.Generator,
	locker lock.Locker,
	cfg PlanServiceConfig,
) PlanService {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 60 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &planService{
		db:         db,
		log:        baseLog.With("service", "PlanService"),
		sessions:   sessions,
		plans:      plans,
		jobRepo:    jobRepo,
		jobs:       jobs,
		aggregator: aggregator,
		composer:   composer,
		generator:  generator,
		locker:     locker,
		cfg:        cfg,
	}
}

func generationLockKey(sessionID uuid.UUID) string {
	return "plangen:" + sessionID.String()
}

func (s *planService) GeneratePlan(ctx context.Context, ownerUserID, sessionID uuid.UUID) (res *PlanResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SyncTimeout)
	defer cancel()
	defer func() {
		observability.Current().IncPlanGeneration("sync", outcomeOf(err))
	}()

	if _, err := ownedSession(dbctx.New(ctx), s.sessions, ownerUserID, sessionID); err != nil {
		return nil, err
	}
	if err := s.rejectApproved(ctx, ownerUserID, sessionID); err != nil {
		return nil, err
	}

	lease, err := s.locker.TryAcquire(ctx, generationLockKey(sessionID), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			observability.Current().IncLockContention("plan_generation")
			return nil, errs.AlreadyInProgress("plan generation")
		}
		return nil, fmt.Errorf("acquire generation lock: %w", err)
	}
	defer s.release(lease)

	sid := sessionID
	running, err := s.jobRepo.ExistsRunnable(dbctx.New(ctx), ownerUserID, domain.JobTypePlanGeneration, "session", &sid)
	if err != nil {
		return nil, fmt.Errorf("check running jobs: %w", err)
	}
	if running {
		return nil, errs.AlreadyInProgress("plan generation")
	}

	st := &GenerationState{SessionID: sessionID, OwnerUserID: ownerUserID}
	for _, step := range []func(context.Context, *GenerationState) error{
		s.LoadAnswers, s.Compose, s.CallModel, s.PersistPlan,
	} {
		if err := step(ctx, st); err != nil {
			return nil, err
		}
	}

	plan, err := s.plans.GetBySession(dbctx.New(ctx), ownerUserID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reload plan: %w", err)
	}
	if plan == nil {
		return nil, errs.NotFound("plan")
	}
	s.log.Info("plan generated", "session_id", sessionID, "plan_id", plan.ID, "model", st.Model)
	return &PlanResult{PlanID: plan.ID, PlanText: plan.EffectiveContent(), Status: plan.Status}, nil
}

func (s *planService) release(lease lock.Lease) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		s.log.Warn("release generation lock failed", "key", lease.Key(), "error", err)
	}
}

func (s *planService) rejectApproved(ctx context.Context, ownerUserID, sessionID uuid.UUID) error {
	existing, err := s.plans.GetBySession(dbctx.New(ctx), ownerUserID, sessionID)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	if existing != nil && existing.Status == domain.PlanStatusApproved {
		return errs.PlanApproved()
	}
	return nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if k := errs.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

func (s *planService) EnqueueGeneration(ctx context.Context, ownerUserID, sessionID uuid.UUID, idempotencyKey string) (*domain.Job, error) {
	if _, err := ownedSession(dbctx.New(ctx), s.sessions, ownerUserID, sessionID); err != nil {
		return nil, err
	}
	key := strings.TrimSpace(idempotencyKey)
	if key != "" {
		existing, err := s.jobRepo.GetByIdempotencyKey(dbctx.New(ctx), ownerUserID, key)
		if err != nil {
			return nil, fmt.Errorf("load job by idempotency key: %w", err)
		}
		if existing != nil {
			if existing.JobType != domain.JobTypePlanGeneration || existing.EntityID == nil || *existing.EntityID != sessionID {
				return nil, errs.InvalidArgument("idempotency key already used for another request")
			}
			return existing, nil
		}
	}
	if err := s.rejectApproved(ctx, ownerUserID, sessionID); err != nil {
		return nil, err
	}

	// Hold the lock while checking and enqueueing so a concurrent sync run or
	// second enqueue cannot slip in between.
	lease, err := s.locker.TryAcquire(ctx, generationLockKey(sessionID), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			observability.Current().IncLockContention("plan_generation")
			return nil, errs.AlreadyInProgress("plan generation")
		}
		return nil, fmt.Errorf("acquire generation lock: %w", err)
	}
	defer s.release(lease)

	sid := sessionID
	running, err := s.jobRepo.ExistsRunnable(dbctx.New(ctx), ownerUserID, domain.JobTypePlanGeneration, "session", &sid)
	if err != nil {
		return nil, fmt.Errorf("check running jobs: %w", err)
	}
	if running {
		return nil, errs.AlreadyInProgress("plan generation")
	}

	job, created, err := s.jobs.Enqueue(dbctx.New(ctx), EnqueueRequest{
		OwnerUserID:    ownerUserID,
		JobType:        domain.JobTypePlanGeneration,
		EntityType:     "session",
		EntityID:       &sid,
		IdempotencyKey: key,
		Payload: map[string]any{
			"session_id": sessionID.String(),
			"user_id":    ownerUserID.String(),
		},
	})
	if err != nil {
		return job, err
	}
	if created {
		observability.Current().IncPlanGeneration("async", "queued")
	}
	return job, nil
}

func (s *planService) GetPlan(ctx context.Context, ownerUserID, sessionID uuid.UUID) (*domain.Plan, error) {
	if _, err := ownedSession(dbctx.New(ctx), s.sessions, ownerUserID, sessionID); err != nil {
		return nil, err
	}
	p, err := s.plans.GetBySession(dbctx.New(ctx), ownerUserID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if p == nil {
		return nil, errs.NotFound("plan")
	}
	return p, nil
}

func (s *planService) SaveEdit(ctx context.Context, ownerUserID, sessionID uuid.UUID, content string) (*domain.Plan, error) {
	p, err := s.GetPlan(ctx, ownerUserID, sessionID)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.PlanStatusApproved {
		return nil, errs.PlanApproved()
	}
	if strings.TrimSpace(content) == "" {
		return nil, errs.InvalidArgument("plan content is required")
	}
	ok, err := s.plans.SaveEdit(dbctx.New(ctx), ownerUserID, sessionID, content)
	if err != nil {
		return nil, fmt.Errorf("save plan edit: %w", err)
	}
	if !ok {
		return nil, errs.PlanApproved()
	}
	return s.GetPlan(ctx, ownerUserID, sessionID)
}

func (s *planService) Approve(ctx context.Context, ownerUserID, sessionID uuid.UUID) (*domain.Plan, error) {
	p, err := s.GetPlan(ctx, ownerUserID, sessionID)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.PlanStatusApproved {
		return p, nil
	}
	if _, err := s.plans.Approve(dbctx.New(ctx), ownerUserID, sessionID); err != nil {
		return nil, fmt.Errorf("approve plan: %w", err)
	}
	s.log.Info("plan approved", "session_id", sessionID, "plan_id", p.ID)
	return s.GetPlan(ctx, ownerUserID, sessionID)
}

// LoadAnswers fails with IncompletePhases before any model call when fewer
// than twelve phases are answered.
func (s *planService) LoadAnswers(ctx context.Context, st *GenerationState) error {
	if st.Input != nil {
		return nil
	}
	session, err := ownedSession(dbctx.New(ctx), s.sessions, st.OwnerUserID, st.SessionID)
	if err != nil {
		return err
	}
	phases, err := s.aggregator.ForSession(ctx, st.OwnerUserID, st.SessionID)
	if err != nil {
		return err
	}
	st.Input = &compose.Input{
		Description: session.Description,
		Name:        session.Name,
		Audience:    session.Audience,
		Phases:      phases,
	}
	return nil
}

func (s *planService) Compose(ctx context.Context, st *GenerationState) error {
	if st.Prompt != nil {
		return nil
	}
	if st.Input == nil {
		return fmt.Errorf("compose: answers not loaded")
	}
	p := s.composer.PlanPrompt(*st.Input)
	st.Prompt = &p
	return nil
}

// CallModel is skipped once text is checkpointed so a resumed job never pays
// for the same completion twice.
func (s *planService) CallModel(ctx context.Context, st *GenerationState) error {
	if st.Text != "" {
		return nil
	}
	if st.Prompt == nil {
		return fmt.Errorf("call model: prompt not composed")
	}
	out, err := s.generator.GeneratePlanText(ctx, *st.Prompt)
	if err != nil {
		return err
	}
	st.Text = out.Text
	st.Model = out.Model
	return nil
}

func (s *planService) PersistPlan(ctx context.Context, st *GenerationState) error {
	if st.Text == "" {
		return fmt.Errorf("persist plan: no plan text")
	}
	p, err := s.plans.UpsertGenerated(dbctx.New(ctx), &domain.Plan{
		SessionID: st.SessionID,
		UserID:    st.OwnerUserID,
		Content:   st.Text,
		Model:     st.Model,
	})
	if err != nil {
		if errors.Is(err, repos.ErrPlanApproved) {
			return errs.PlanApproved()
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.Unauthorized("session")
		}
		return fmt.Errorf("persist plan: %w", err)
	}
	st.PlanID = p.ID
	return nil
}
