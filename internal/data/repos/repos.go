package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/planforge-backend/internal/data/repos/jobs"
	"github.com/yungbote/planforge-backend/internal/data/repos/planning"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

type SessionRepo = planning.SessionRepo
type AnswerRepo = planning.AnswerRepo
type PlanRepo = planning.PlanRepo
type ExportRepo = planning.ExportRepo

type JobRepo = jobs.JobRepo

var ErrPlanApproved = planning.ErrPlanApproved

func NewSessionRepo(db *gorm.DB, log *logger.Logger) SessionRepo {
	return planning.NewSessionRepo(db, log)
}

func NewAnswerRepo(db *gorm.DB, log *logger.Logger) AnswerRepo {
	return planning.NewAnswerRepo(db, log)
}

func NewPlanRepo(db *gorm.DB, log *logger.Logger) PlanRepo {
	return planning.NewPlanRepo(db, log)
}

func NewExportRepo(db *gorm.DB, log *logger.Logger) ExportRepo {
	return planning.NewExportRepo(db, log)
}

func NewJobRepo(db *gorm.DB, log *logger.Logger) JobRepo {
	return jobs.NewJobRepo(db, log)
}

func IsDuplicateKey(err error) bool { return jobs.IsDuplicateKey(err) }
