package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/planforge-backend/internal/jobs/pipeline/export_build"
	"github.com/yungbote/planforge-backend/internal/jobs/pipeline/plan_generation"
	jobrt "github.com/yungbote/planforge-backend/internal/jobs/runtime"
	"github.com/yungbote/planforge-backend/internal/jobs/worker"
	"github.com/yungbote/planforge-backend/internal/knowledge"
	"github.com/yungbote/planforge-backend/internal/pipeline/aggregate"
	"github.com/yungbote/planforge-backend/internal/pipeline/compose"
	"github.com/yungbote/planforge-backend/internal/pipeline/generate"
	"github.com/yungbote/planforge-backend/internal/platform/lock"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
	"github.com/yungbote/planforge-backend/internal/questionnaire"
	"github.com/yungbote/planforge-backend/internal/realtime/bus"
	"github.com/yungbote/planforge-backend/internal/services"
	"github.com/yungbote/planforge-backend/internal/temporalx"
	"github.com/yungbote/planforge-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Session services.SessionService
	Plan    services.PlanService
	Export  services.ExportService
	Jobs    services.JobService
	Notify  services.JobNotifier

	Runner *jobrt.Runner
	// Exactly one of these is set.
	JobWorker      *worker.Worker
	TemporalWorker *temporalworker.Runner

	bus bus.Bus
}

func wireServices(ctx context.Context, db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients *Clients) (Services, error) {
	log.Info("Wiring services...")

	var kb knowledge.Base
	var err error
	if clients.KnowledgeBucket != nil {
		kb, err = knowledge.Load(ctx, clients.KnowledgeBucket, cfg.KnowledgePrefix)
	} else {
		kb, err = knowledge.Embedded()
	}
	if err != nil {
		return Services{}, fmt.Errorf("load knowledge base: %w", err)
	}

	catalog, err := questionnaire.Default()
	if err != nil {
		return Services{}, fmt.Errorf("load questionnaire: %w", err)
	}

	var locker lock.Locker = lock.NewMemory()
	var eventBus bus.Bus
	if clients.Redis != nil {
		rl, err := lock.NewRedis(clients.Redis, log)
		if err != nil {
			return Services{}, fmt.Errorf("init redis locker: %w", err)
		}
		locker = rl
		if eventBus, err = bus.NewRedisBus(clients.Redis, log); err != nil {
			return Services{}, fmt.Errorf("init redis bus: %w", err)
		}
	}

	aggregator := aggregate.NewAggregator(log, reposet.Answer, catalog)
	composer := compose.NewComposer(kb, cfg.KnowledgeCharBudget, cfg.AgentFile)
	generator := generate.NewGenerator(log, clients.OpenAI, generate.ConfigFromEnv(clients.OpenAI.DefaultModel()))

	notify := services.NewJobNotifier(log, eventBus)
	taskQueue := ""
	if clients.Temporal != nil {
		taskQueue = temporalx.LoadConfig().TaskQueue
	}
	jobs := services.NewJobService(db, log, reposet.Job, notify, clients.Temporal, taskQueue)

	sessionSvc := services.NewSessionService(db, log, reposet.Session, reposet.Answer, catalog)
	planSvc := services.NewPlanService(db, log, reposet.Session, reposet.Plan, reposet.Job, jobs, aggregator, composer, generator, locker, cfg.Plan)
	exportSvc := services.NewExportService(log, reposet.Session, reposet.Plan, reposet.Export, jobs, notify, aggregator, catalog, composer, generator, clients.ExportBucket)

	registry := jobrt.NewRegistry()
	if err := registry.Register(plan_generation.New(log, planSvc).Definition()); err != nil {
		return Services{}, err
	}
	if err := registry.Register(export_build.New(log, exportSvc).Definition()); err != nil {
		return Services{}, err
	}
	runner := jobrt.NewRunner(db, log, reposet.Job, registry, notify)

	out := Services{
		Session: sessionSvc,
		Plan:    planSvc,
		Export:  exportSvc,
		Jobs:    jobs,
		Notify:  notify,
		Runner:  runner,
		bus:     eventBus,
	}
	if clients.Temporal != nil {
		tw, err := temporalworker.NewRunner(log, clients.Temporal, runner)
		if err != nil {
			return Services{}, err
		}
		out.TemporalWorker = tw
	} else {
		out.JobWorker = worker.NewWorker(db, log, reposet.Job, runner)
	}
	return out, nil
}
