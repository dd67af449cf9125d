package plan_generation

import (
	"github.com/yungbote/planforge-backend/internal/platform/logger"
	"github.com/yungbote/planforge-backend/internal/services"
)

const (
	StepLoadAnswers   = "load_answers"
	StepComposePrompt = "compose_prompt"
	StepCallModel     = "call_model"
	StepPersistPlan   = "persist_plan"
)

type Pipeline struct {
	log   *logger.Logger
	plans services.PlanService
}

func New(baseLog *logger.Logger, plans services.PlanService) *Pipeline {
	return &Pipeline{
		log:   baseLog.With("job", "plan_generation"),
		plans: plans,
	}
}
