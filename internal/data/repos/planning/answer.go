package planning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

type AnswerRepo interface {
	// Upsert writes answers keyed on (session_id, phase_number, question_id);
	// a repeated key overwrites the stored answer.
	Upsert(dbc dbctx.Context, answers []*domain.Answer) error
	ListBySession(dbc dbctx.Context, ownerUserID, sessionID uuid.UUID) ([]*domain.Answer, error)
	CountPhases(dbc dbctx.Context, ownerUserID, sessionID uuid.UUID) (int, error)
}

type answerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnswerRepo(db *gorm.DB, baseLog *logger.Logger) AnswerRepo {
	return &answerRepo{db: db, log: baseLog.With("repo", "AnswerRepo")}
}

func (r *answerRepo) Upsert(dbc dbctx.Context, answers []*domain.Answer) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(answers) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, a := range answers {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		a.UpdatedAt = now
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}, {Name: "phase_number"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"question_text", "answer_text", "answer_kind", "position", "updated_at",
			}),
		}).
		Create(&answers).Error
}

// ListBySession orders by phase, then the order answers were saved in.
func (r *answerRepo) ListBySession(dbc dbctx.Context, ownerUserID, sessionID uuid.UUID) ([]*domain.Answer, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Answer
	if ownerUserID == uuid.Nil || sessionID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("session_id = ? AND user_id = ?", sessionID, ownerUserID).
		Order("phase_number ASC").
		Order("position ASC").
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *answerRepo) CountPhases(dbc dbctx.Context, ownerUserID, sessionID uuid.UUID) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&domain.Answer{}).
		Where("session_id = ? AND user_id = ?", sessionID, ownerUserID).
		Distinct("phase_number").
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
