package assessment

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/wellchat-backend/internal/domain/assessment"
	"github.com/yungbote/wellchat-backend/internal/platform/dbctx"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

type RecordRepo interface {
	Create(dbc dbctx.Context, row *types.Record) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Record, error)
	GetActiveByUser(dbc dbctx.Context, userID uuid.UUID) (*types.Record, error)
	ListTerminalByUser(dbc dbctx.Context, userID uuid.UUID, states []types.State, limit int) ([]*types.Record, error)
}

type recordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecordRepo(db *gorm.DB, baseLog *logger.Logger) RecordRepo {
	return &recordRepo{db: db, log: baseLog.With("repo", "AssessmentRecordRepo")}
}

func (r *recordRepo) Create(dbc dbctx.Context, row *types.Record) error {
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return dbc.DB(r.db).Create(row).Error
}

func (r *recordRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Record, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Record
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// GetActiveByUser returns the user's active record, or nil when none exists.
func (r *recordRepo) GetActiveByUser(dbc dbctx.Context, userID uuid.UUID) (*types.Record, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	var row types.Record
	err := dbc.DB(r.db).
		Where("user_id = ? AND state = ?", userID, types.StateActive).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// ListTerminalByUser returns terminal records in the given states, most recently ended first,
// with answers preloaded in question order.
func (r *recordRepo) ListTerminalByUser(dbc dbctx.Context, userID uuid.UUID, states []types.State, limit int) ([]*types.Record, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if len(states) == 0 {
		states = []types.State{types.StateCompleted}
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var out []*types.Record
	err := dbc.DB(r.db).
		Preload("Answers", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("question_index ASC")
		}).
		Where("user_id = ? AND state IN ?", userID, states).
		Order("ended_at DESC").
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
