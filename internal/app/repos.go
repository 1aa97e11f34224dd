package app

import (
	"gorm.io/gorm"

	repos "github.com/yungbote/wellchat-backend/internal/data/repos/assessment"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

type Repos struct {
	Records    repos.RecordRepo
	Answers    repos.AnswerRepo
	Summaries  repos.SummaryRepo
	Detections repos.DetectionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Records:    repos.NewRecordRepo(db, log),
		Answers:    repos.NewAnswerRepo(db, log),
		Summaries:  repos.NewSummaryRepo(db, log),
		Detections: repos.NewDetectionRepo(db, log),
	}
}
