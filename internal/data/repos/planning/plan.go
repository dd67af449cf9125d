package planning

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

// ErrPlanApproved is returned when a write would overwrite an approved plan.
var ErrPlanApproved = errors.New("plan is approved")

type PlanRepo interface {
	GetBySession(dbc dbctx.Context, ownerUserID, sessionID uuid.UUID) (*domain.Plan, error)
	// UpsertGenerated inserts the session's plan or overwrites it in place,
	// clearing any hand edits. Safe to re-run with the same content.
	UpsertGenerated(dbc dbctx.Context, p *domain.Plan) (*domain.Plan, error)
	SaveEdit(dbc dbctx.Context, ownerUserID, sessionID uuid.UUID, content string) (bool, error)
	Approve(dbc dbctx.Context, ownerUserID, sessionID uuid.UUID) (bool, error)
}

type planRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlanRepo(db *gorm.DB, baseLog *logger.Logger) PlanRepo {
	return &planRepo{db: db, log: baseLog.With("repo", "PlanRepo")}
}

func (r *planRepo) GetBySession(dbc dbctx.Context, ownerUserID, sessionID uuid.UUID) (*domain.Plan, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if ownerUserID == uuid.Nil || sessionID == uuid.Nil {
		return nil, nil
	}
	var p domain.Plan
	if err := transaction.WithContext(dbc.Ctx).
		Where("session_id = ? AND user_id = ?", sessionID, ownerUserID).
		Limit(1).
		Find(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}

func (r *planRepo) UpsertGenerated(dbc dbctx.Context, p *domain.Plan) (*domain.Plan, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	var out *domain.Plan
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var existing domain.Plan
		if err := txx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", p.SessionID).
			Limit(1).
			Find(&existing).Error; err != nil {
			return err
		}
		if existing.ID == uuid.Nil {
			p.Status = domain.PlanStatusGenerated
			p.Version = 1
			p.GeneratedAt = now
			p.EditedContent = nil
			if err := txx.Create(p).Error; err != nil {
				return err
			}
			out = p
			return nil
		}
		if existing.UserID != p.UserID {
			return gorm.ErrRecordNotFound
		}
		if existing.Status == domain.PlanStatusApproved {
			return ErrPlanApproved
		}
		if existing.Content == p.Content && existing.EditedContent == nil {
			out = &existing
			return nil
		}
		res := txx.Model(&domain.Plan{}).
			Where("id = ? AND status <> ?", existing.ID, domain.PlanStatusApproved).
			Updates(map[string]interface{}{
				"content":        p.Content,
				"edited_content": nil,
				"status":         domain.PlanStatusGenerated,
				"model":          p.Model,
				"version":        gorm.Expr("version + 1"),
				"generated_at":   now,
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPlanApproved
		}
		var reloaded domain.Plan
		if err := txx.Where("id = ?", existing.ID).First(&reloaded).Error; err != nil {
			return err
		}
		out = &reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *planRepo) SaveEdit(dbc dbctx.Context, ownerUserID, sessionID uuid.UUID, content string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.Plan{}).
		Where("session_id = ? AND user_id = ? AND status <> ?", sessionID, ownerUserID, domain.PlanStatusApproved).
		Updates(map[string]interface{}{"edited_content": content, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *planRepo) Approve(dbc dbctx.Context, ownerUserID, sessionID uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.Plan{}).
		Where("session_id = ? AND user_id = ? AND status = ?", sessionID, ownerUserID, domain.PlanStatusGenerated).
		Updates(map[string]interface{}{"status": domain.PlanStatusApproved, "approved_at": now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
