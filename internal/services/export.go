package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"github.com/yungbote/planforge-backend/internal/data/repos"
	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/observability"
	"github.com/yungbote/planforge-backend/internal/pipeline/aggregate"
	"github.com/yungbote/planforge-backend/internal/pipeline/bundle"
	"github.com/yungbote/planforge-backend/internal/pipeline/compose"
	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
	"github.com/yungbote/planforge-backend/internal/pipeline/generate"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
	"github.com/yungbote/planforge-backend/internal/platform/gcp"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
	"github.com/yungbote/planforge-backend/internal/questionnaire"
)

type Archive struct {
	Name  string
	Bytes []byte
}

// ExportState is carried between export_build steps.
type ExportState struct {
	ExportID    uuid.UUID           `json:"export_id"`
	SessionID   uuid.UUID           `json:"session_id"`
	OwnerUserID uuid.UUID           `json:"user_id"`
	Files       *domain.ExportFiles `json:"files,omitempty"`
}

type ExportService interface {
	StartExport(ctx context.Context, ownerUserID, sessionID uuid.UUID, opts domain.ExportOptions) (*domain.Export, error)
	// GetExportStatus never mutates the export.
	GetExportStatus(ctx context.Context, ownerUserID, exportID uuid.UUID) (*domain.Export, error)
	DownloadExport(ctx context.Context, ownerUserID, exportID uuid.UUID) (*Archive, error)

	Begin(ctx context.Context, st *ExportState) error
	BuildFiles(ctx context.Context, st *ExportState) error
	Complete(ctx context.Context, st *ExportState) error
	Fail(ctx context.Context, exportID uuid.UUID, cause error) error
}

type exportService struct {
	log        *logger.Logger
	sessions   repos.SessionRepo
	plans      repos.PlanRepo
	exports    repos.ExportRepo
	jobs       JobService
	notify     JobNotifier
	aggregator *aggregate.Aggregator
	catalog    *questionnaire.Catalog
	composer   *compose.Composer
	generator  *generate.Generator
	// archives is optional; completed archives are also uploaded there.
	archives gcp.Bucket

	downloads singleflight.Group
	now       func() time.Time
}

func NewExportService(
	baseLog *logger.Logger,
	sessions repos.SessionRepo,
	plans repos.PlanRepo,
	exports repos.ExportRepo,
	jobs JobService,
	notify JobNotifier,
	aggregator *aggregate.Aggregator,
	catalog *questionnaire.Catalog,
	composer *compose.Composer,
	generator *generate.Generator,
	archives gcp.Bucket,
) ExportService {
	return &exportService{
		log:        baseLog.With("service", "ExportService"),
		sessions:   sessions,
		plans:      plans,
		exports:    exports,
		jobs:       jobs,
		notify:     notify,
		aggregator: aggregator,
		catalog:    catalog,
		composer:   composer,
		generator:  generator,
		archives:   archives,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *exportService) StartExport(ctx context.Context, ownerUserID, sessionID uuid.UUID, opts domain.ExportOptions) (*domain.Export, error) {
	opts.Variant = strings.ToLower(strings.TrimSpace(opts.Variant))
	if opts.Variant == "" {
		opts.Variant = domain.ExportVariantSimple
	}
	if opts.Variant != domain.ExportVariantSimple && opts.Variant != domain.ExportVariantStructured {
		return nil, errs.InvalidArgument(fmt.Sprintf("unknown export variant %q", opts.Variant))
	}
	if _, err := ownedSession(dbctx.New(ctx), s.sessions, ownerUserID, sessionID); err != nil {
		return nil, err
	}

	rawOpts, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("encode export options: %w", err)
	}
	export, err := s.exports.Create(dbctx.New(ctx), &domain.Export{
		SessionID: sessionID,
		UserID:    ownerUserID,
		Variant:   opts.Variant,
		Options:   datatypes.JSON(rawOpts),
		Status:    domain.ExportStatusPending,
		Files:     datatypes.JSON([]byte(`{}`)),
	})
	if err != nil {
		return nil, fmt.Errorf("create export: %w", err)
	}

	eid := export.ID
	job, _, err := s.jobs.Enqueue(dbctx.New(ctx), EnqueueRequest{
		OwnerUserID: ownerUserID,
		JobType:     domain.JobTypeExportBuild,
		EntityType:  "export",
		EntityID:    &eid,
		Payload: map[string]any{
			"export_id":  export.ID.String(),
			"session_id": sessionID.String(),
			"user_id":    ownerUserID.String(),
		},
	})
	if job != nil {
		if serr := s.exports.SetJobID(dbctx.New(ctx), export.ID, job.ID); serr != nil {
			s.log.Warn("set export job id failed", "export_id", export.ID, "job_id", job.ID, "error", serr)
		} else {
			export.JobID = &job.ID
		}
	}
	if err != nil {
		if ferr := s.Fail(ctx, export.ID, err); ferr != nil {
			s.log.Warn("mark export failed", "export_id", export.ID, "error", ferr)
		}
		return nil, fmt.Errorf("enqueue export: %w", err)
	}
	s.log.Info("export started", "export_id", export.ID, "session_id", sessionID, "variant", opts.Variant)
	return export, nil
}

func (s *exportService) ownedExport(ctx context.Context, ownerUserID, exportID uuid.UUID) (*domain.Export, error) {
	e, err := s.exports.GetByID(dbctx.New(ctx), exportID)
	if err != nil {
		return nil, fmt.Errorf("load export: %w", err)
	}
	if e == nil {
		return nil, errs.NotFound("export")
	}
	if e.UserID != ownerUserID {
		return nil, errs.Unauthorized("export")
	}
	return e, nil
}

func (s *exportService) GetExportStatus(ctx context.Context, ownerUserID, exportID uuid.UUID) (*domain.Export, error) {
	return s.ownedExport(ctx, ownerUserID, exportID)
}

func (s *exportService) DownloadExport(ctx context.Context, ownerUserID, exportID uuid.UUID) (*Archive, error) {
	e, err := s.ownedExport(ctx, ownerUserID, exportID)
	if err != nil {
		return nil, err
	}
	if e.Status != domain.ExportStatusCompleted {
		return nil, errs.NotReady(e.Status)
	}
	files, err := decodeFiles(e.Files)
	if err != nil {
		return nil, errs.Wrap(errs.KindAssemblyFailure, "decode export files", err)
	}
	if files.IsEmpty() {
		return nil, errs.NoFiles()
	}

	v, err, _ := s.downloads.Do(e.ID.String(), func() (any, error) {
		entries, err := bundle.Layout(files, s.composer.AgentFile())
		if err != nil {
			return nil, err
		}
		return bundle.Zip(entries)
	})
	if err != nil {
		return nil, err
	}

	description := ""
	if session, serr := s.sessions.GetByID(dbctx.New(ctx), e.SessionID); serr == nil && session != nil {
		description = session.Description
	}
	date := s.now()
	if e.CompletedAt != nil {
		date = *e.CompletedAt
	}
	return &Archive{Name: bundle.ArchiveName(description, date), Bytes: v.([]byte)}, nil
}

func decodeFiles(raw datatypes.JSON) (domain.ExportFiles, error) {
	var files domain.ExportFiles
	if len(raw) == 0 || string(raw) == "null" {
		return files, nil
	}
	if err := json.Unmarshal(raw, &files); err != nil {
		return files, err
	}
	return files, nil
}

func decodeOptions(raw datatypes.JSON, variant string) domain.ExportOptions {
	opts := domain.ExportOptions{Variant: variant}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &opts)
	}
	if opts.Variant == "" {
		opts.Variant = variant
	}
	return opts
}

func (s *exportService) load(ctx context.Context, st *ExportState) (*domain.Export, error) {
	e, err := s.exports.GetByID(dbctx.New(ctx), st.ExportID)
	if err != nil {
		return nil, fmt.Errorf("load export: %w", err)
	}
	if e == nil {
		return nil, errs.NotFound("export")
	}
	if e.UserID != st.OwnerUserID {
		return nil, errs.Unauthorized("export")
	}
	return e, nil
}

// Begin moves pending to processing. Re-running it on a processing or
// completed export is a no-op.
func (s *exportService) Begin(ctx context.Context, st *ExportState) error {
	e, err := s.load(ctx, st)
	if err != nil {
		return err
	}
	switch e.Status {
	case domain.ExportStatusProcessing, domain.ExportStatusCompleted:
		return nil
	case domain.ExportStatusFailed:
		return errs.New(errs.KindAssemblyFailure, "export already failed: "+e.ErrorMessage)
	}
	ok, err := s.exports.Transition(dbctx.New(ctx), e.ID, domain.ExportStatusProcessing, map[string]interface{}{
		"progress":         5,
		"progress_message": "Starting export",
	})
	if err != nil {
		return fmt.Errorf("begin export: %w", err)
	}
	if !ok {
		// Lost a race with another runner; accept whatever state it left.
		cur, err := s.load(ctx, st)
		if err != nil {
			return err
		}
		if cur.Status == domain.ExportStatusFailed {
			return errs.New(errs.KindAssemblyFailure, "export already failed: "+cur.ErrorMessage)
		}
		return nil
	}
	e.Status = domain.ExportStatusProcessing
	e.Progress = 5
	e.ProgressMessage = "Starting export"
	s.notify.ExportProgress(st.OwnerUserID, e)
	return nil
}

func (s *exportService) progress(ctx context.Context, st *ExportState, pct int, msg string) {
	ok, err := s.exports.UpdateProgress(dbctx.New(ctx), st.ExportID, pct, msg)
	if err != nil {
		s.log.Warn("export progress update failed", "export_id", st.ExportID, "error", err)
		return
	}
	if ok {
		s.notify.ExportProgress(st.OwnerUserID, &domain.Export{
			ID:              st.ExportID,
			Status:          domain.ExportStatusProcessing,
			Progress:        pct,
			ProgressMessage: msg,
		})
	}
}

// BuildFiles produces the file payload into st.Files. A checkpointed payload
// is kept as is.
func (s *exportService) BuildFiles(ctx context.Context, st *ExportState) error {
	if st.Files != nil {
		return nil
	}
	e, err := s.load(ctx, st)
	if err != nil {
		return err
	}
	if e.Status == domain.ExportStatusCompleted {
		files, err := decodeFiles(e.Files)
		if err != nil {
			return errs.Wrap(errs.KindAssemblyFailure, "decode export files", err)
		}
		st.Files = &files
		return nil
	}
	session, err := ownedSession(dbctx.New(ctx), s.sessions, st.OwnerUserID, e.SessionID)
	if err != nil {
		return err
	}
	opts := decodeOptions(e.Options, e.Variant)

	s.progress(ctx, st, 10, "Collecting answers")
	phases, err := s.aggregator.PartialForSession(ctx, st.OwnerUserID, session.ID)
	if err != nil {
		return err
	}
	plan, err := s.plans.GetBySession(dbctx.New(ctx), st.OwnerUserID, session.ID)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}

	var files domain.ExportFiles
	firstPrompt := ""
	switch opts.Variant {
	case domain.ExportVariantStructured:
		files, firstPrompt, err = s.structuredFiles(ctx, st, session, phases, plan, opts)
	default:
		files, err = bundle.SimpleFiles(bundle.SimpleInput{
			Description: session.Description,
			Name:        session.Name,
			Audience:    session.Audience,
			Phases:      s.catalog.Phases(),
			Answers:     phases,
			Plan:        plan.EffectiveContent(),
			AgentFile:   s.composer.AgentFile(),
			Date:        s.now(),
		})
	}
	if err != nil {
		return err
	}

	title := session.DisplayName()
	if opts.IncludeUserInstructions {
		files.UserInstructions = bundle.UserInstructions(title, s.composer.AgentFile())
	}
	if opts.IncludeQuickStart {
		files.QuickStart = bundle.QuickStart(title, s.composer.AgentFile(), firstPrompt)
	}
	if _, err := bundle.Layout(files, s.composer.AgentFile()); err != nil {
		return err
	}
	s.progress(ctx, st, 90, "Packaging files")
	st.Files = &files
	return nil
}

func (s *exportService) structuredFiles(
	ctx context.Context,
	st *ExportState,
	session *domain.Session,
	phases []aggregate.PhaseAnswers,
	plan *domain.Plan,
	opts domain.ExportOptions,
) (domain.ExportFiles, string, error) {
	planText := plan.EffectiveContent()
	if strings.TrimSpace(planText) == "" {
		return domain.ExportFiles{}, "", errs.AssemblyFailure("session has no plan")
	}
	in := compose.Input{
		Description: session.Description,
		Name:        session.Name,
		Audience:    session.Audience,
		Phases:      phases,
	}

	s.progress(ctx, st, 20, "Designing module structure")
	res, err := s.generator.GenerateBreakdown(ctx, s.composer.StructurePrompt(in, planText))
	if err != nil {
		return domain.ExportFiles{}, "", err
	}
	if fb, ok := res.(generate.Fallback); ok {
		s.log.Warn("structured export using default breakdown", "export_id", st.ExportID, "reason", fb.Reason)
	}
	bd := res.Value()
	outline := bd.Outline()

	files := domain.ExportFiles{
		Modules: map[string]string{},
		Prompts: map[string]string{},
	}
	s.progress(ctx, st, 35, "Writing README")
	if files.Readme, err = s.generator.GenerateDocument(ctx, s.composer.ReadmePrompt(in, outline)); err != nil {
		return domain.ExportFiles{}, "", err
	}
	s.progress(ctx, st, 50, "Writing agent instructions")
	if files.Agent, err = s.generator.GenerateDocument(ctx, s.composer.AgentInstructionsPrompt(in, outline)); err != nil {
		return domain.ExportFiles{}, "", err
	}

	s.progress(ctx, st, 65, "Writing module documents")
	for _, m := range bd.Modules {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		content := m.Content
		if opts.DetailedModules {
			content, err = s.generator.GenerateDocument(ctx, s.composer.ModulePrompt(in, compose.ModuleSpec{
				Name:         name,
				Purpose:      m.Content,
				Dependencies: generate.Strings(m.Dependencies),
				Constraints:  generate.Strings(m.Constraints),
			}))
			if err != nil {
				return domain.ExportFiles{}, "", err
			}
		} else {
			content = moduleDoc(m)
		}
		files.Modules[name] = content
	}

	s.progress(ctx, st, 80, "Writing task prompts")
	names := make([]string, 0, len(bd.Prompts))
	bodies := map[string]string{}
	for _, p := range bd.Prompts {
		name := bundle.PromptName(string(p.ID), p.Title)
		if name == "" {
			continue
		}
		files.Prompts[name] = promptDoc(p)
		bodies[name] = p.Prompt
		names = append(names, name)
	}
	firstPrompt := ""
	if len(names) > 0 {
		bundle.SortPromptNames(names)
		firstPrompt = bodies[names[0]]
	}
	return files, firstPrompt, nil
}

func moduleDoc(m generate.Module) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", m.Name)
	if c := strings.TrimSpace(m.Content); c != "" {
		b.WriteString(c)
		b.WriteString("\n")
	}
	if deps := generate.Strings(m.Dependencies); len(deps) > 0 {
		fmt.Fprintf(&b, "\n## Dependencies\n\n- %s\n", strings.Join(deps, "\n- "))
	}
	if mcp := generate.Strings(m.MCPServers); len(mcp) > 0 {
		fmt.Fprintf(&b, "\n## MCP servers\n\n- %s\n", strings.Join(mcp, "\n- "))
	}
	if cs := generate.Strings(m.Constraints); len(cs) > 0 {
		fmt.Fprintf(&b, "\n## Constraints\n\n- %s\n", strings.Join(cs, "\n- "))
	}
	return b.String()
}

func promptDoc(p generate.TaskPrompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", strings.TrimSpace(p.Title))
	if d := strings.TrimSpace(p.Description); d != "" {
		b.WriteString(d)
		b.WriteString("\n\n")
	}
	if deps := generate.Strings(p.Dependencies); len(deps) > 0 {
		fmt.Fprintf(&b, "**Depends on:** %s\n\n", strings.Join(deps, ", "))
	}
	b.WriteString("## Prompt\n\n```\n")
	b.WriteString(strings.TrimSpace(p.Prompt))
	b.WriteString("\n```\n")
	if out := strings.TrimSpace(p.ExpectedOutput); out != "" {
		fmt.Fprintf(&b, "\n## Expected output\n\n%s\n", out)
	}
	return b.String()
}

// Complete stores the payload and moves processing to completed. An already
// completed export is left untouched.
func (s *exportService) Complete(ctx context.Context, st *ExportState) error {
	if st.Files == nil || st.Files.IsEmpty() {
		return errs.NoFiles()
	}
	e, err := s.load(ctx, st)
	if err != nil {
		return err
	}
	if e.Status == domain.ExportStatusCompleted {
		return nil
	}
	raw, err := json.Marshal(st.Files)
	if err != nil {
		return fmt.Errorf("encode export files: %w", err)
	}
	now := s.now()
	ok, err := s.exports.Transition(dbctx.New(ctx), e.ID, domain.ExportStatusCompleted, map[string]interface{}{
		"files":            datatypes.JSON(raw),
		"progress":         100,
		"progress_message": "Export ready",
		"completed_at":     now,
	})
	if err != nil {
		return fmt.Errorf("complete export: %w", err)
	}
	if !ok {
		cur, err := s.load(ctx, st)
		if err != nil {
			return err
		}
		if cur.Status == domain.ExportStatusCompleted {
			return nil
		}
		return errs.New(errs.KindAssemblyFailure, "export cannot complete from status "+cur.Status)
	}
	observability.Current().IncExportOutcome(e.Variant, domain.ExportStatusCompleted)

	e.Status = domain.ExportStatusCompleted
	e.Progress = 100
	e.ProgressMessage = "Export ready"
	e.CompletedAt = &now
	s.notify.ExportProgress(st.OwnerUserID, e)
	s.uploadArchive(ctx, e, *st.Files)
	return nil
}

// uploadArchive copies the zip to object storage. Downloads are served from
// the stored payload, so a failed upload is only logged.
func (s *exportService) uploadArchive(ctx context.Context, e *domain.Export, files domain.ExportFiles) {
	if s.archives == nil {
		return
	}
	entries, err := bundle.Layout(files, s.composer.AgentFile())
	if err != nil {
		s.log.Warn("archive layout failed", "export_id", e.ID, "error", err)
		return
	}
	data, err := bundle.Zip(entries)
	if err != nil {
		s.log.Warn("archive zip failed", "export_id", e.ID, "error", err)
		return
	}
	key := fmt.Sprintf("exports/%s/%s.zip", e.UserID, e.ID)
	if err := s.archives.Upload(ctx, key, data, "application/zip"); err != nil {
		s.log.Warn("archive upload failed", "export_id", e.ID, "key", key, "error", err)
		return
	}
	if err := s.exports.SetArchiveKey(dbctx.New(ctx), e.ID, key); err != nil {
		s.log.Warn("set archive key failed", "export_id", e.ID, "error", err)
	}
}

func (s *exportService) Fail(ctx context.Context, exportID uuid.UUID, cause error) error {
	msg := "export failed"
	if cause != nil {
		msg = cause.Error()
	}
	ok, err := s.exports.Transition(dbctx.New(ctx), exportID, domain.ExportStatusFailed, map[string]interface{}{
		"error_message":    msg,
		"progress_message": "Export failed",
	})
	if err != nil {
		return fmt.Errorf("fail export: %w", err)
	}
	if !ok {
		return nil
	}
	e, err := s.exports.GetByID(dbctx.New(ctx), exportID)
	if err != nil || e == nil {
		return err
	}
	observability.Current().IncExportOutcome(e.Variant, domain.ExportStatusFailed)
	s.notify.ExportProgress(e.UserID, e)
	s.log.Warn("export failed", "export_id", exportID, "error", msg)
	return nil
}
