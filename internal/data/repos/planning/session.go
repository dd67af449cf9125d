package planning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

type SessionRepo interface {
	Create(dbc dbctx.Context, s *domain.Session) (*domain.Session, error)
	// GetByID ignores ownership; callers use it to tell NotFound from Unauthorized.
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Session, error)
	GetForOwner(dbc dbctx.Context, ownerUserID, id uuid.UUID) (*domain.Session, error)
	UpdateProgress(dbc dbctx.Context, ownerUserID, id uuid.UUID, currentPhase, completedPhases int, status string) (bool, error)
	SetStatus(dbc dbctx.Context, ownerUserID, id uuid.UUID, status string) (bool, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(dbc dbctx.Context, s *domain.Session) (*domain.Session, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if s.Status == "" {
		s.Status = domain.SessionStatusInProgress
	}
	if s.CurrentPhase == 0 {
		s.CurrentPhase = 1
	}
	if err := transaction.WithContext(dbc.Ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Session, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var s domain.Session
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

func (r *sessionRepo) GetForOwner(dbc dbctx.Context, ownerUserID, id uuid.UUID) (*domain.Session, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if ownerUserID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var s domain.Session
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ? AND user_id = ?", id, ownerUserID).
		Limit(1).
		Find(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

// UpdateProgress never touches an archived session.
func (r *sessionRepo) UpdateProgress(dbc dbctx.Context, ownerUserID, id uuid.UUID, currentPhase, completedPhases int, status string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]interface{}{
		"current_phase":    currentPhase,
		"completed_phases": completedPhases,
		"updated_at":       time.Now().UTC(),
	}
	if status != "" {
		updates["status"] = status
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.Session{}).
		Where("id = ? AND user_id = ? AND status <> ?", id, ownerUserID, domain.SessionStatusArchived).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *sessionRepo) SetStatus(dbc dbctx.Context, ownerUserID, id uuid.UUID, status string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.Session{}).
		Where("id = ? AND user_id = ? AND status <> ?", id, ownerUserID, domain.SessionStatusArchived).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
