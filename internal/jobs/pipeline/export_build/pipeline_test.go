package export_build

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
	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
	"github.com/yungbote/planforge-backend/internal/services"
)

type fakeExports struct {
	services.ExportService
	buildErr error
	calls    []string
	failedID uuid.UUID
	failMsg  string
}

func (f *fakeExports) Begin(ctx context.Context, st *services.ExportState) error {
	f.calls = append(f.calls, StepBegin)
	return nil
}

func (f *fakeExports) BuildFiles(ctx context.Context, st *services.ExportState) error {
	f.calls = append(f.calls, StepBuildFiles)
	if f.buildErr != nil {
		return f.buildErr
	}
	st.Files = &domain.ExportFiles{Readme: "# r", Agent: "# a", Modules: map[string]string{"Auth": "x"}}
	return nil
}

func (f *fakeExports) Complete(ctx context.Context, st *services.ExportState) error {
	f.calls = append(f.calls, StepComplete)
	return nil
}

func (f *fakeExports) Fail(ctx context.Context, exportID uuid.UUID, cause error) error {
	f.failedID = exportID
	f.failMsg = cause.Error()
	return nil
}

func runExportJob(t *testing.T, exports *fakeExports) (*domain.Job, uuid.UUID, error) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	repo := repos.NewJobRepo(db, log)

	reg := jobrt.NewRegistry()
	if err := reg.Register(New(log, exports).Definition()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	runner := jobrt.NewRunner(db, log, repo, reg, nil)

	exportID := uuid.New()
	payload, _ := json.Marshal(map[string]any{"export_id": exportID.String(), "session_id": uuid.NewString()})
	job := &domain.Job{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		JobType:     domain.JobTypeExportBuild,
		Status:      domain.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON(payload),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if _, err := repo.Create(dbctx.Context{Ctx: ctx, Tx: db}, []*domain.Job{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job, exportID, runner.Run(ctx, job)
}

func TestExportBuildCompletes(t *testing.T) {
	exports := &fakeExports{}
	job, _, err := runExportJob(t, exports)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(exports.calls) != 3 || exports.calls[2] != StepComplete {
		t.Fatalf("calls: got=%v", exports.calls)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("status: want=succeeded got=%s", job.Status)
	}
	var res map[string]any
	if err := json.Unmarshal(job.Result, &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if res["modules"] != float64(1) {
		t.Fatalf("result modules: want=1 got=%v", res["modules"])
	}
}

func TestExportBuildFailureMarksExportFailed(t *testing.T) {
	exports := &fakeExports{buildErr: errs.AssemblyFailure("no plan")}
	job, exportID, err := runExportJob(t, exports)
	if err == nil {
		t.Fatalf("Run: want error")
	}
	if exports.failedID != exportID {
		t.Fatalf("failed export: want=%s got=%s", exportID, exports.failedID)
	}
	if exports.failMsg != err.Error() {
		t.Fatalf("fail message: want=%q got=%q", err.Error(), exports.failMsg)
	}
	if job.Status != domain.JobStatusFailed || job.Stage != StepBuildFiles {
		t.Fatalf("job: want failed/%s got=%s/%s", StepBuildFiles, job.Status, job.Stage)
	}
	for _, c := range exports.calls {
		if c == StepComplete {
			t.Fatalf("complete ran after failed build")
		}
	}
}
