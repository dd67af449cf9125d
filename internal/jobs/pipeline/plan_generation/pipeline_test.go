package plan_generation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/planforge-backend/internal/data/repos"
	"github.com/yungbote/planforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/planforge-backend/internal/domain"
	jobrt "github.com/yungbote/planforge-backend/internal/jobs/runtime"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
	"github.com/yungbote/planforge-backend/internal/services"
)

type fakePlans struct {
	services.PlanService
	calls []string
	owner uuid.UUID
}

func (f *fakePlans) LoadAnswers(ctx context.Context, st *services.GenerationState) error {
	f.calls = append(f.calls, StepLoadAnswers)
	f.owner = st.OwnerUserID
	return nil
}

func (f *fakePlans) Compose(ctx context.Context, st *services.GenerationState) error {
	f.calls = append(f.calls, StepComposePrompt)
	return nil
}

func (f *fakePlans) CallModel(ctx context.Context, st *services.GenerationState) error {
	f.calls = append(f.calls, StepCallModel)
	st.Text = "Phase 1: plan"
	st.Model = "test-model"
	return nil
}

func (f *fakePlans) PersistPlan(ctx context.Context, st *services.GenerationState) error {
	f.calls = append(f.calls, StepPersistPlan)
	if st.Text == "" {
		return context.Canceled
	}
	st.PlanID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	return nil
}

func TestPlanGenerationRunsStepsInOrder(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	repo := repos.NewJobRepo(db, log)

	plans := &fakePlans{}
	reg := jobrt.NewRegistry()
	if err := reg.Register(New(log, plans).Definition()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	runner := jobrt.NewRunner(db, log, repo, reg, nil)

	owner := uuid.New()
	sessionID := uuid.New()
	payload, _ := json.Marshal(map[string]any{"session_id": sessionID.String(), "user_id": owner.String()})
	job := &domain.Job{
		ID:          uuid.New(),
		OwnerUserID: owner,
		JobType:     domain.JobTypePlanGeneration,
		Status:      domain.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON(payload),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if _, err := repo.Create(dbctx.Context{Ctx: ctx, Tx: db}, []*domain.Job{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := runner.Run(ctx, job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{StepLoadAnswers, StepComposePrompt, StepCallModel, StepPersistPlan}
	if len(plans.calls) != len(want) {
		t.Fatalf("calls: want=%v got=%v", want, plans.calls)
	}
	for i := range want {
		if plans.calls[i] != want[i] {
			t.Fatalf("calls: want=%v got=%v", want, plans.calls)
		}
	}
	if plans.owner != owner {
		t.Fatalf("owner: want=%s got=%s", owner, plans.owner)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("status: want=succeeded got=%s", job.Status)
	}
	var res map[string]any
	if err := json.Unmarshal(job.Result, &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if res["plan_id"] != "11111111-1111-1111-1111-111111111111" || res["model"] != "test-model" {
		t.Fatalf("result: got=%v", res)
	}
}

func TestPlanGenerationRejectsMissingSession(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	repo := repos.NewJobRepo(db, log)

	plans := &fakePlans{}
	reg := jobrt.NewRegistry()
	if err := reg.Register(New(log, plans).Definition()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	runner := jobrt.NewRunner(db, log, repo, reg, nil)

	job := &domain.Job{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		JobType:     domain.JobTypePlanGeneration,
		Status:      domain.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON([]byte(`{}`)),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if _, err := repo.Create(dbctx.Context{Ctx: ctx, Tx: db}, []*domain.Job{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := runner.Run(ctx, job); err == nil {
		t.Fatalf("Run: want error")
	}
	if len(plans.calls) != 0 {
		t.Fatalf("calls: want none got=%v", plans.calls)
	}
	if job.Status != domain.JobStatusFailed || job.Stage != StepLoadAnswers {
		t.Fatalf("job: want failed/%s got=%s/%s", StepLoadAnswers, job.Status, job.Stage)
	}
}
