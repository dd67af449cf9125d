package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/planforge-backend/internal/data/repos"
	"github.com/yungbote/planforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/jobs/runtime"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
)

type echoState struct {
	Echo string `json:"echo"`
}

func TestRunOnceDrainsQueue(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	repo := repos.NewJobRepo(db, log)

	runs := 0
	reg := runtime.NewRegistry()
	err := reg.Register(&runtime.Pipeline[echoState]{
		JobType: "echo",
		Init: func(jc *runtime.Context) (*echoState, error) {
			v, _ := jc.Payload()["echo"].(string)
			return &echoState{Echo: v}, nil
		},
		StepList: []runtime.NamedStep[echoState]{{
			Name: "echo",
			Run: func(ctx context.Context, jc *runtime.Context, st *echoState) error {
				runs++
				return nil
			},
		}},
		ResultOf: func(st *echoState) any { return st },
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	w := NewWorker(db, log, repo, runtime.NewRunner(db, log, repo, reg, nil))

	job := &domain.Job{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		JobType:     "echo",
		Status:      domain.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON([]byte(`{"echo":"hi"}`)),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if _, err := repo.Create(dbctx.Context{Ctx: ctx, Tx: db}, []*domain.Job{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !w.RunOnce(ctx, 1) {
		t.Fatalf("RunOnce: want claimed job")
	}
	if w.RunOnce(ctx, 1) {
		t.Fatalf("RunOnce on empty queue: want false")
	}
	if runs != 1 {
		t.Fatalf("runs: want=1 got=%d", runs)
	}
	rows, err := repo.GetByIDs(dbctx.Context{Ctx: ctx, Tx: db}, []uuid.UUID{job.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetByIDs: rows=%d err=%v", len(rows), err)
	}
	if rows[0].Status != domain.JobStatusSucceeded || string(rows[0].Result) != `{"echo":"hi"}` {
		t.Fatalf("job: got status=%s result=%s", rows[0].Status, rows[0].Result)
	}
}

func TestRunOnceFailsStaleJobPastAttemptBudget(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: db}
	repo := repos.NewJobRepo(db, log)

	runs, failures := 0, 0
	reg := runtime.NewRegistry()
	err := reg.Register(&runtime.Pipeline[echoState]{
		JobType: "echo",
		Init:    func(jc *runtime.Context) (*echoState, error) { return &echoState{}, nil },
		StepList: []runtime.NamedStep[echoState]{{
			Name: "echo",
			Run: func(ctx context.Context, jc *runtime.Context, st *echoState) error {
				runs++
				return nil
			},
		}},
		Failed: func(ctx context.Context, jc *runtime.Context, err error) { failures++ },
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	w := NewWorker(db, log, repo, runtime.NewRunner(db, log, repo, reg, nil))
	w.maxAttempts = 3

	owner, sessionID := uuid.New(), uuid.New()
	lastBeat := time.Now().UTC().Add(-24 * time.Hour)
	job := &domain.Job{
		ID:          uuid.New(),
		OwnerUserID: owner,
		JobType:     "echo",
		EntityType:  "session",
		EntityID:    &sessionID,
		Status:      domain.JobStatusRunning,
		Stage:       "echo",
		Attempts:    3,
		HeartbeatAt: &lastBeat,
		Payload:     datatypes.JSON([]byte(`{}`)),
		CreatedAt:   lastBeat,
		UpdatedAt:   lastBeat,
	}
	if _, err := repo.Create(dbc, []*domain.Job{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !w.RunOnce(ctx, 1) {
		t.Fatalf("RunOnce: want stale job claimed")
	}
	if runs != 0 {
		t.Fatalf("steps run: want=0 got=%d", runs)
	}
	if failures != 1 {
		t.Fatalf("failure hook calls: want=1 got=%d", failures)
	}
	rows, err := repo.GetByIDs(dbc, []uuid.UUID{job.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetByIDs: rows=%d err=%v", len(rows), err)
	}
	if rows[0].Status != domain.JobStatusFailed || rows[0].Stage != "attempts_exhausted" {
		t.Fatalf("job: want failed/attempts_exhausted got=%s/%s", rows[0].Status, rows[0].Stage)
	}
	exists, err := repo.ExistsRunnable(dbc, owner, "echo", "session", &sessionID)
	if err != nil || exists {
		t.Fatalf("ExistsRunnable: want=false got=%v err=%v", exists, err)
	}
	if w.RunOnce(ctx, 1) {
		t.Fatalf("RunOnce after failing: want empty queue")
	}
}
