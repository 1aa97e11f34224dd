package assessment

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/wellchat-backend/internal/domain/assessment"
	"github.com/yungbote/wellchat-backend/internal/platform/dbctx"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

type SummaryRepo interface {
	GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.MentalHealthSummary, error)
	Upsert(dbc dbctx.Context, row *types.MentalHealthSummary) error
}

type summaryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSummaryRepo(db *gorm.DB, baseLog *logger.Logger) SummaryRepo {
	return &summaryRepo{db: db, log: baseLog.With("repo", "MentalHealthSummaryRepo")}
}

func (r *summaryRepo) GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.MentalHealthSummary, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	var row types.MentalHealthSummary
	if err := dbc.DB(r.db).Where("user_id = ?", userID).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.UserID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *summaryRepo) Upsert(dbc dbctx.Context, row *types.MentalHealthSummary) error {
	if row == nil || row.UserID == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"latest_score", "latest_severity", "assessed_at",
				"total_assessments", "detection_count", "last_detection_at",
				"high_risk_detections", "overall_risk_level", "requires_attention",
				"updated_at",
			}),
		}).
		Create(row).Error
}
