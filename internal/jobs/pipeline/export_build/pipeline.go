package export_build

import (
	"context"

	"github.com/yungbote/planforge-backend/internal/domain"
	jobrt "github.com/yungbote/planforge-backend/internal/jobs/runtime"
	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
	"github.com/yungbote/planforge-backend/internal/services"
)

func (p *Pipeline) Definition() *jobrt.Pipeline[services.ExportState] {
	return &jobrt.Pipeline[services.ExportState]{
		JobType: domain.JobTypeExportBuild,
		Init:    p.init,
		StepList: []jobrt.NamedStep[services.ExportState]{
			{Name: StepBegin, Run: p.begin},
			{Name: StepBuildFiles, Run: p.buildFiles},
			{Name: StepComplete, Run: p.complete},
		},
		Failed:   p.failed,
		ResultOf: result,
	}
}

func (p *Pipeline) init(jc *jobrt.Context) (*services.ExportState, error) {
	exportID, ok := jc.PayloadUUID("export_id")
	if !ok {
		return nil, errs.InvalidArgument("export_build payload is missing export_id")
	}
	sessionID, _ := jc.PayloadUUID("session_id")
	return &services.ExportState{
		ExportID:    exportID,
		SessionID:   sessionID,
		OwnerUserID: jc.Job.OwnerUserID,
	}, nil
}

func (p *Pipeline) begin(ctx context.Context, jc *jobrt.Context, st *services.ExportState) error {
	jc.Progress(jc.Job.Stage, jc.Job.Progress, "Starting export")
	return p.exports.Begin(jc.Ctx, st)
}

// buildFiles is the only step that calls the model. Its output lands in the
// checkpoint, so a crash during complete does not regenerate documents.
func (p *Pipeline) buildFiles(ctx context.Context, jc *jobrt.Context, st *services.ExportState) error {
	jc.Progress(jc.Job.Stage, jc.Job.Progress, "Assembling files")
	return p.exports.BuildFiles(jc.Ctx, st)
}

func (p *Pipeline) complete(ctx context.Context, jc *jobrt.Context, st *services.ExportState) error {
	if err := p.exports.Complete(jc.Ctx, st); err != nil {
		return err
	}
	p.log.Info("Export completed", "job_id", jc.Job.ID, "export_id", st.ExportID)
	return nil
}

// failed moves the export to failed with the step error so status polling
// sees the same message as the job.
func (p *Pipeline) failed(ctx context.Context, jc *jobrt.Context, err error) {
	exportID, ok := jc.PayloadUUID("export_id")
	if !ok {
		return
	}
	if ferr := p.exports.Fail(jc.Ctx, exportID, err); ferr != nil {
		p.log.Warn("Marking export failed", "job_id", jc.Job.ID, "export_id", exportID, "error", ferr)
	}
}

func result(st *services.ExportState) any {
	out := map[string]any{"export_id": st.ExportID}
	if st.Files != nil {
		out["modules"] = len(st.Files.Modules)
		out["prompts"] = len(st.Files.Prompts)
	}
	return out
}
