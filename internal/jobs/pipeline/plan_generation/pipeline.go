package plan_generation

import (
	"context"

	"github.com/yungbote/planforge-backend/internal/domain"
	jobrt "github.com/yungbote/planforge-backend/internal/jobs/runtime"
	"github.com/yungbote/planforge-backend/internal/observability"
	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
	"github.com/yungbote/planforge-backend/internal/services"
)

// Definition wires the plan generation steps into a checkpointed pipeline.
// The service methods skip work whose output is already in the state, so a
// step replayed after a crash costs nothing.
func (p *Pipeline) Definition() *jobrt.Pipeline[services.GenerationState] {
	return &jobrt.Pipeline[services.GenerationState]{
		JobType: domain.JobTypePlanGeneration,
		Init:    p.init,
		StepList: []jobrt.NamedStep[services.GenerationState]{
			{Name: StepLoadAnswers, Run: p.step("Collecting answers", p.plans.LoadAnswers)},
			{Name: StepComposePrompt, Run: p.step("Composing prompt", p.plans.Compose)},
			{Name: StepCallModel, Run: p.step("Generating plan", p.plans.CallModel)},
			{Name: StepPersistPlan, Run: p.persist},
		},
		Failed:   p.failed,
		ResultOf: result,
	}
}

func (p *Pipeline) init(jc *jobrt.Context) (*services.GenerationState, error) {
	sessionID, ok := jc.PayloadUUID("session_id")
	if !ok {
		return nil, errs.InvalidArgument("plan_generation payload is missing session_id")
	}
	return &services.GenerationState{
		SessionID:   sessionID,
		OwnerUserID: jc.Job.OwnerUserID,
	}, nil
}

func (p *Pipeline) step(msg string, fn func(context.Context, *services.GenerationState) error) func(context.Context, *jobrt.Context, *services.GenerationState) error {
	return func(ctx context.Context, jc *jobrt.Context, st *services.GenerationState) error {
		jc.Progress(jc.Job.Stage, jc.Job.Progress, msg)
		return fn(jc.Ctx, st)
	}
}

func (p *Pipeline) persist(ctx context.Context, jc *jobrt.Context, st *services.GenerationState) error {
	jc.Progress(jc.Job.Stage, jc.Job.Progress, "Saving plan")
	if err := p.plans.PersistPlan(jc.Ctx, st); err != nil {
		return err
	}
	observability.Current().IncPlanGeneration("async", "ok")
	p.log.Info("Plan generated", "job_id", jc.Job.ID, "session_id", st.SessionID, "plan_id", st.PlanID, "model", st.Model)
	return nil
}

func (p *Pipeline) failed(ctx context.Context, jc *jobrt.Context, err error) {
	outcome := "error"
	if k := errs.KindOf(err); k != "" {
		outcome = string(k)
	}
	observability.Current().IncPlanGeneration("async", outcome)
	p.log.Warn("Plan generation failed", "job_id", jc.Job.ID, "error", err)
}

func result(st *services.GenerationState) any {
	return map[string]any{
		"session_id": st.SessionID,
		"plan_id":    st.PlanID,
		"model":      st.Model,
		"chars":      len(st.Text),
	}
}
