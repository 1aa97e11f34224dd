package assessment

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/wellchat-backend/internal/domain/assessment"
	"github.com/yungbote/wellchat-backend/internal/platform/dbctx"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

type AnswerRepo interface {
	// Insert stores the answer unless one already exists for the same question.
	// It reports whether a row was written.
	Insert(dbc dbctx.Context, row *types.Answer) (bool, error)
	ListByAssessment(dbc dbctx.Context, assessmentID uuid.UUID) ([]*types.Answer, error)
}

type answerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnswerRepo(db *gorm.DB, baseLog *logger.Logger) AnswerRepo {
	return &answerRepo{db: db, log: baseLog.With("repo", "AssessmentAnswerRepo")}
}

func (r *answerRepo) Insert(dbc dbctx.Context, row *types.Answer) (bool, error) {
	if row == nil {
		return false, nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "assessment_id"}, {Name: "question_index"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *answerRepo) ListByAssessment(dbc dbctx.Context, assessmentID uuid.UUID) ([]*types.Answer, error) {
	if assessmentID == uuid.Nil {
		return []*types.Answer{}, nil
	}
	var out []*types.Answer
	err := dbc.DB(r.db).
		Where("assessment_id = ?", assessmentID).
		Order("question_index ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
