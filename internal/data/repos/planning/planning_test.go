package planning

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/planforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
)

func TestAnswerUpsertIsLastWriteWins(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewAnswerRepo(db, testutil.Logger(t))

	s := testutil.SeedSession(t, ctx, tx, uuid.New(), "a todo app")
	mk := func(phase int, qid, text string, pos int) *domain.Answer {
		return &domain.Answer{
			SessionID:    s.ID,
			UserID:       s.UserID,
			PhaseNumber:  phase,
			QuestionID:   qid,
			QuestionText: "question " + qid,
			AnswerText:   text,
			AnswerKind:   domain.AnswerKindShortText,
			Position:     pos,
		}
	}

	if err := repo.Upsert(dbc, []*domain.Answer{mk(2, "b", "first", 0), mk(1, "z", "z1", 0), mk(1, "a", "a1", 1)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(dbc, []*domain.Answer{mk(2, "b", "second", 0)}); err != nil {
		t.Fatalf("Upsert overwrite: %v", err)
	}

	rows, err := repo.ListBySession(dbc, s.UserID, s.ID)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("ListBySession: want=3 got=%d", len(rows))
	}
	gotOrder := []string{rows[0].QuestionID, rows[1].QuestionID, rows[2].QuestionID}
	if gotOrder[0] != "z" || gotOrder[1] != "a" || gotOrder[2] != "b" {
		t.Fatalf("order: want=[z a b] got=%v", gotOrder)
	}
	if rows[2].AnswerText != "second" {
		t.Fatalf("overwrite: want=second got=%s", rows[2].AnswerText)
	}

	n, err := repo.CountPhases(dbc, s.UserID, s.ID)
	if err != nil || n != 2 {
		t.Fatalf("CountPhases: want=2 got=%d err=%v", n, err)
	}

	other, err := repo.ListBySession(dbc, uuid.New(), s.ID)
	if err != nil || len(other) != 0 {
		t.Fatalf("foreign owner: want=0 rows got=%d err=%v", len(other), err)
	}
}

func TestPlanUpsertRespectsApproval(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewPlanRepo(db, testutil.Logger(t))

	s := testutil.SeedSession(t, ctx, tx, uuid.New(), "a todo app")

	p1, err := repo.UpsertGenerated(dbc, &domain.Plan{SessionID: s.ID, UserID: s.UserID, Content: "v1", Model: "m"})
	if err != nil {
		t.Fatalf("UpsertGenerated insert: %v", err)
	}
	if p1.Version != 1 || p1.Status != domain.PlanStatusGenerated {
		t.Fatalf("insert: want=v1/generated got=%d/%s", p1.Version, p1.Status)
	}

	if ok, err := repo.SaveEdit(dbc, s.UserID, s.ID, "hand edited"); err != nil || !ok {
		t.Fatalf("SaveEdit: ok=%v err=%v", ok, err)
	}

	p2, err := repo.UpsertGenerated(dbc, &domain.Plan{SessionID: s.ID, UserID: s.UserID, Content: "v2", Model: "m"})
	if err != nil {
		t.Fatalf("UpsertGenerated overwrite: %v", err)
	}
	if p2.ID != p1.ID || p2.Content != "v2" || p2.Version != 2 || p2.EditedContent != nil {
		t.Fatalf("overwrite: got id=%s content=%s version=%d edited=%v", p2.ID, p2.Content, p2.Version, p2.EditedContent)
	}

	if ok, err := repo.Approve(dbc, s.UserID, s.ID); err != nil || !ok {
		t.Fatalf("Approve: ok=%v err=%v", ok, err)
	}
	_, err = repo.UpsertGenerated(dbc, &domain.Plan{SessionID: s.ID, UserID: s.UserID, Content: "v3"})
	if !errors.Is(err, ErrPlanApproved) {
		t.Fatalf("UpsertGenerated after approve: want=ErrPlanApproved got=%v", err)
	}
	if ok, _ := repo.SaveEdit(dbc, s.UserID, s.ID, "late"); ok {
		t.Fatalf("SaveEdit after approve should not apply")
	}
	got, err := repo.GetBySession(dbc, s.UserID, s.ID)
	if err != nil || got == nil || got.EffectiveContent() != "v2" {
		t.Fatalf("GetBySession: want content v2 got=%+v err=%v", got, err)
	}
}

func TestExportTransitionsOnlyMoveForward(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewExportRepo(db, testutil.Logger(t))

	s := testutil.SeedSession(t, ctx, tx, uuid.New(), "a todo app")
	e := testutil.SeedExport(t, ctx, tx, s, domain.ExportStatusPending)

	if ok, _ := repo.UpdateProgress(dbc, e.ID, 10, "early"); ok {
		t.Fatalf("UpdateProgress while pending should not apply")
	}
	if ok, _ := repo.Transition(dbc, e.ID, domain.ExportStatusCompleted, nil); ok {
		t.Fatalf("pending->completed should be rejected")
	}
	if ok, err := repo.Transition(dbc, e.ID, domain.ExportStatusProcessing, nil); err != nil || !ok {
		t.Fatalf("pending->processing: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.UpdateProgress(dbc, e.ID, 150, "building"); err != nil || !ok {
		t.Fatalf("UpdateProgress: ok=%v err=%v", ok, err)
	}
	files := datatypes.JSON([]byte(`{"readme":"R"}`))
	if ok, err := repo.Transition(dbc, e.ID, domain.ExportStatusCompleted, map[string]interface{}{"files": files, "progress": 100}); err != nil || !ok {
		t.Fatalf("processing->completed: ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.Transition(dbc, e.ID, domain.ExportStatusFailed, map[string]interface{}{"error_message": "late"}); ok {
		t.Fatalf("completed->failed should be rejected")
	}
	if ok, _ := repo.Transition(dbc, e.ID, domain.ExportStatusProcessing, nil); ok {
		t.Fatalf("completed->processing should be rejected")
	}

	got, err := repo.GetForOwner(dbc, s.UserID, e.ID)
	if err != nil || got == nil {
		t.Fatalf("GetForOwner: %v", err)
	}
	if got.Status != domain.ExportStatusCompleted || got.Progress != 100 || got.ErrorMessage != "" {
		t.Fatalf("final: got status=%s progress=%d err=%q", got.Status, got.Progress, got.ErrorMessage)
	}
	if foreign, _ := repo.GetForOwner(dbc, uuid.New(), e.ID); foreign != nil {
		t.Fatalf("GetForOwner with foreign owner should return nil")
	}
}

func TestArchivedSessionIsImmutable(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewSessionRepo(db, testutil.Logger(t))

	s := testutil.SeedSession(t, ctx, tx, uuid.New(), "a todo app")
	if ok, err := repo.UpdateProgress(dbc, s.UserID, s.ID, 3, 2, ""); err != nil || !ok {
		t.Fatalf("UpdateProgress: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.SetStatus(dbc, s.UserID, s.ID, domain.SessionStatusArchived); err != nil || !ok {
		t.Fatalf("archive: ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.UpdateProgress(dbc, s.UserID, s.ID, 4, 3, ""); ok {
		t.Fatalf("UpdateProgress on archived session should not apply")
	}
	if ok, _ := repo.SetStatus(dbc, s.UserID, s.ID, domain.SessionStatusInProgress); ok {
		t.Fatalf("un-archive should not apply")
	}
	got, _ := repo.GetForOwner(dbc, s.UserID, s.ID)
	if got == nil || got.CurrentPhase != 3 || !got.IsArchived() {
		t.Fatalf("final: got=%+v", got)
	}
}
