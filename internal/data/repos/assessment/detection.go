package assessment

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/wellchat-backend/internal/domain/assessment"
	"github.com/yungbote/wellchat-backend/internal/platform/dbctx"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

type DetectionRepo interface {
	Create(dbc dbctx.Context, row *types.DepressionDetection) error
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int, onlyPositive bool) ([]*types.DepressionDetection, error)
}

type detectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDetectionRepo(db *gorm.DB, baseLog *logger.Logger) DetectionRepo {
	return &detectionRepo{db: db, log: baseLog.With("repo", "DepressionDetectionRepo")}
}

func (r *detectionRepo) Create(dbc dbctx.Context, row *types.DepressionDetection) error {
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return dbc.DB(r.db).Create(row).Error
}

func (r *detectionRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int, onlyPositive bool) ([]*types.DepressionDetection, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	q := dbc.DB(r.db).Where("user_id = ?", userID)
	if onlyPositive {
		q = q.Where("is_depressive = ?", true)
	}
	var out []*types.DepressionDetection
	if err := q.Order("detected_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
