package planning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

type ExportRepo interface {
	Create(dbc dbctx.Context, e *domain.Export) (*domain.Export, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Export, error)
	GetForOwner(dbc dbctx.Context, ownerUserID, id uuid.UUID) (*domain.Export, error)
	// Transition moves the export to `to` only from one of its allowed
	// predecessors. It reports false when the row was not in such a state.
	Transition(dbc dbctx.Context, id uuid.UUID, to string, fields map[string]interface{}) (bool, error)
	// UpdateProgress only applies while the export is processing.
	UpdateProgress(dbc dbctx.Context, id uuid.UUID, progress int, message string) (bool, error)
	SetJobID(dbc dbctx.Context, id, jobID uuid.UUID) error
	SetArchiveKey(dbc dbctx.Context, id uuid.UUID, key string) error
}

type exportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExportRepo(db *gorm.DB, baseLog *logger.Logger) ExportRepo {
	return &exportRepo{db: db, log: baseLog.With("repo", "ExportRepo")}
}

func (r *exportRepo) Create(dbc dbctx.Context, e *domain.Export) (*domain.Export, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if e.Status == "" {
		e.Status = domain.ExportStatusPending
	}
	if err := transaction.WithContext(dbc.Ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

func (r *exportRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Export, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var e domain.Export
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&e).Error; err != nil {
		return nil, err
	}
	if e.ID == uuid.Nil {
		return nil, nil
	}
	return &e, nil
}

func (r *exportRepo) GetForOwner(dbc dbctx.Context, ownerUserID, id uuid.UUID) (*domain.Export, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if ownerUserID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var e domain.Export
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ? AND user_id = ?", id, ownerUserID).
		Limit(1).
		Find(&e).Error; err != nil {
		return nil, err
	}
	if e.ID == uuid.Nil {
		return nil, nil
	}
	return &e, nil
}

func (r *exportRepo) Transition(dbc dbctx.Context, id uuid.UUID, to string, fields map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	from := domain.ExportPredecessors(to)
	if id == uuid.Nil || len(from) == 0 {
		return false, nil
	}
	updates := map[string]interface{}{}
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.Export{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *exportRepo) UpdateProgress(dbc dbctx.Context, id uuid.UUID, progress int, message string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.Export{}).
		Where("id = ? AND status = ?", id, domain.ExportStatusProcessing).
		Updates(map[string]interface{}{
			"progress":         progress,
			"progress_message": message,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *exportRepo) SetJobID(dbc dbctx.Context, id, jobID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.Export{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"job_id": jobID, "updated_at": time.Now().UTC()}).Error
}

func (r *exportRepo) SetArchiveKey(dbc dbctx.Context, id uuid.UUID, key string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.Export{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"archive_key": key, "updated_at": time.Now().UTC()}).Error
}
