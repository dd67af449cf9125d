package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/planforge-backend/internal/data/repos"
	"github.com/yungbote/planforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
)

type countState struct {
	Seed  string   `json:"seed"`
	Trail []string `json:"trail"`
}

type countingPipeline struct {
	runs     map[string]int
	failOnce map[string]bool
	failures []string
}

func newCountingPipeline() *countingPipeline {
	return &countingPipeline{runs: map[string]int{}, failOnce: map[string]bool{}}
}

func (c *countingPipeline) step(name string) NamedStep[countState] {
	return NamedStep[countState]{
		Name: name,
		Run: func(ctx context.Context, jc *Context, st *countState) error {
			c.runs[name]++
			if c.failOnce[name] {
				c.failOnce[name] = false
				return errors.New(name + " exploded")
			}
			st.Trail = append(st.Trail, name)
			return nil
		},
	}
}

func (c *countingPipeline) build() *Pipeline[countState] {
	return &Pipeline[countState]{
		JobType: "counting",
		Init: func(jc *Context) (*countState, error) {
			seed, _ := jc.Payload()["seed"].(string)
			return &countState{Seed: seed}, nil
		},
		StepList: []NamedStep[countState]{c.step("a"), c.step("b"), c.step("c")},
		Failed: func(ctx context.Context, jc *Context, err error) {
			c.failures = append(c.failures, err.Error())
		},
		ResultOf: func(st *countState) any {
			return map[string]any{"seed": st.Seed, "trail": st.Trail}
		},
	}
}

func newJob(t *testing.T, db *gorm.DB, repo repos.JobRepo, jobType string) *domain.Job {
	t.Helper()
	job := &domain.Job{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		JobType:     jobType,
		Status:      domain.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON([]byte(`{"seed":"s1","trace_id":"tr-1"}`)),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if _, err := repo.Create(dbctx.Context{Ctx: context.Background(), Tx: db}, []*domain.Job{job}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func reload(t *testing.T, r *Runner, id uuid.UUID) *domain.Job {
	t.Helper()
	job, err := r.load(context.Background(), id)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	return job
}

func setup(t *testing.T) (*gorm.DB, repos.JobRepo, *countingPipeline, *Runner) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := repos.NewJobRepo(db, log)
	cp := newCountingPipeline()
	reg := NewRegistry()
	if err := reg.Register(cp.build()); err != nil {
		t.Fatalf("register: %v", err)
	}
	return db, repo, cp, NewRunner(db, log, repo, reg, nil)
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	db, repo, cp, r := setup(t)
	ctx := context.Background()
	job := newJob(t, db, repo, "counting")
	cp.failOnce["b"] = true

	steps, done, err := r.Start(ctx, job.ID)
	if err != nil || done {
		t.Fatalf("Start: want steps got done=%v err=%v", done, err)
	}
	if len(steps) != 3 {
		t.Fatalf("steps: want=3 got=%v", steps)
	}
	if err := r.Step(ctx, job.ID, "a"); err != nil {
		t.Fatalf("Step a: %v", err)
	}
	if err := r.Step(ctx, job.ID, "b"); err == nil {
		t.Fatalf("Step b: want error")
	}

	// A restarted executor sees only the unfinished steps and skips a.
	steps, _, err = r.Start(ctx, job.ID)
	if err != nil {
		t.Fatalf("Start again: %v", err)
	}
	if len(steps) != 2 || steps[0] != "b" {
		t.Fatalf("remaining steps: want=[b c] got=%v", steps)
	}
	for _, name := range []string{"a", "b", "c"} {
		if err := r.Step(ctx, job.ID, name); err != nil {
			t.Fatalf("Step %s: %v", name, err)
		}
	}
	if cp.runs["a"] != 1 || cp.runs["b"] != 2 || cp.runs["c"] != 1 {
		t.Fatalf("runs: want a=1 b=2 c=1 got=%v", cp.runs)
	}
	if err := r.Finish(ctx, job.ID); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got := reload(t, r, job.ID)
	if got.Status != domain.JobStatusSucceeded || got.Progress != 100 {
		t.Fatalf("job: want succeeded/100 got=%s/%d", got.Status, got.Progress)
	}
	var res struct {
		Seed  string   `json:"seed"`
		Trail []string `json:"trail"`
	}
	if err := json.Unmarshal(got.Result, &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.Seed != "s1" || len(res.Trail) != 3 {
		t.Fatalf("result: got=%+v", res)
	}

	// Everything after a terminal status is a no-op.
	if err := r.Step(ctx, job.ID, "a"); err != nil || cp.runs["a"] != 1 {
		t.Fatalf("Step after success: err=%v runs=%d", err, cp.runs["a"])
	}
	if _, done, _ := r.Start(ctx, job.ID); !done {
		t.Fatalf("Start after success: want done")
	}
}

func TestRunnerRunSkipsCheckpointedSteps(t *testing.T) {
	db, repo, cp, r := setup(t)
	ctx := context.Background()
	job := newJob(t, db, repo, "counting")

	state, _ := json.Marshal(countState{Seed: "s1", Trail: []string{"a"}})
	checkpoint := Checkpoint{Completed: []string{"a"}, State: state}.Encode()
	if ok, err := repo.SaveCheckpoint(dbctx.Context{Ctx: ctx, Tx: db}, job.ID, checkpoint, "a", 25); err != nil || !ok {
		t.Fatalf("SaveCheckpoint: ok=%v err=%v", ok, err)
	}
	job = reload(t, r, job.ID)

	if err := r.Run(ctx, job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cp.runs["a"] != 0 || cp.runs["b"] != 1 || cp.runs["c"] != 1 {
		t.Fatalf("runs: want a=0 b=1 c=1 got=%v", cp.runs)
	}
	if got := reload(t, r, job.ID); got.Status != domain.JobStatusSucceeded {
		t.Fatalf("status: want=succeeded got=%s", got.Status)
	}
}

func TestRunnerRunFailsJobOnce(t *testing.T) {
	db, repo, cp, r := setup(t)
	ctx := context.Background()
	job := newJob(t, db, repo, "counting")
	cp.failOnce["c"] = true

	if err := r.Run(ctx, job); err == nil {
		t.Fatalf("Run: want error")
	}
	got := reload(t, r, job.ID)
	if got.Status != domain.JobStatusFailed || got.Stage != "c" || got.Error != "c exploded" {
		t.Fatalf("job: got status=%s stage=%s error=%q", got.Status, got.Stage, got.Error)
	}
	if len(cp.failures) != 1 {
		t.Fatalf("OnFailure calls: want=1 got=%d", len(cp.failures))
	}
	// A late Fail from another executor changes nothing.
	if err := r.Fail(ctx, job.ID, "late", "late"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if len(cp.failures) != 1 {
		t.Fatalf("OnFailure calls after late Fail: want=1 got=%d", len(cp.failures))
	}
}

func TestRunnerWithoutPipelineFailsJob(t *testing.T) {
	db, repo, _, r := setup(t)
	job := newJob(t, db, repo, "unknown")

	if _, _, err := r.Start(context.Background(), job.ID); err == nil {
		t.Fatalf("Start: want error")
	}
	got := reload(t, r, job.ID)
	if got.Status != domain.JobStatusFailed || got.Stage != "dispatch" {
		t.Fatalf("job: want failed/dispatch got=%s/%s", got.Status, got.Stage)
	}
}

func TestContextPayloadAndTrace(t *testing.T) {
	job := &domain.Job{Payload: datatypes.JSON([]byte(`{"export_id":"` + uuid.Nil.String() + `","session_id":"6f1c5e5e-8f1d-4a40-9a51-3c1f5a1f0b11","trace_id":"tr-9"}`))}
	jc := NewContext(context.Background(), nil, job, nil, nil)
	if _, ok := jc.PayloadUUID("export_id"); ok {
		t.Fatalf("PayloadUUID(nil uuid): want ok=false")
	}
	if id, ok := jc.PayloadUUID("session_id"); !ok || id.String() != "6f1c5e5e-8f1d-4a40-9a51-3c1f5a1f0b11" {
		t.Fatalf("PayloadUUID: got=%s ok=%v", id, ok)
	}
	if _, ok := jc.PayloadUUID("missing"); ok {
		t.Fatalf("PayloadUUID(missing): want ok=false")
	}
	jc.Progress("x", 10, "msg")
	if job.Stage != "x" || job.Progress != 10 {
		t.Fatalf("Progress without repo: got stage=%s progress=%d", job.Stage, job.Progress)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	p := newCountingPipeline().build()
	if err := reg.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(p); err == nil {
		t.Fatalf("Register duplicate: want error")
	}
	if err := reg.Register(&Pipeline[countState]{JobType: "empty"}); err == nil {
		t.Fatalf("Register without steps: want error")
	}
}
