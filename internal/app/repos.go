package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/planforge-backend/internal/data/repos"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

type Repos struct {
	Session repos.SessionRepo
	Answer  repos.AnswerRepo
	Plan    repos.PlanRepo
	Export  repos.ExportRepo
	Job     repos.JobRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Session: repos.NewSessionRepo(db, log),
		Answer:  repos.NewAnswerRepo(db, log),
		Plan:    repos.NewPlanRepo(db, log),
		Export:  repos.NewExportRepo(db, log),
		Job:     repos.NewJobRepo(db, log),
	}
}
