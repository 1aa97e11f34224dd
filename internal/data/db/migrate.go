package db

import (
	"gorm.io/gorm"

	types "github.com/yungbote/wellchat-backend/internal/domain/assessment"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Record{},
		&types.Answer{},
		&types.MentalHealthSummary{},
		&types.DepressionDetection{},
	)
}
