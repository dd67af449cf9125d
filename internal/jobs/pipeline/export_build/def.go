package export_build

import (
	"github.com/yungbote/planforge-backend/internal/platform/logger"
	"github.com/yungbote/planforge-backend/internal/services"
)

const (
	StepBegin      = "begin"
	StepBuildFiles = "build_files"
	StepComplete   = "complete"
)

type Pipeline struct {
	log     *logger.Logger
	exports services.ExportService
}

func New(baseLog *logger.Logger, exports services.ExportService) *Pipeline {
	return &Pipeline{
		log:     baseLog.With("job", "export_build"),
		exports: exports,
	}
}
