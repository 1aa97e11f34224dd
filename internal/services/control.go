package services

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	repos "github.com/yungbote/wellchat-backend/internal/data/repos/assessment"
	domainagg "github.com/yungbote/wellchat-backend/internal/domain/aggregates"
	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
	"github.com/yungbote/wellchat-backend/internal/observability"
	"github.com/yungbote/wellchat-backend/internal/platform/dbctx"
	"github.com/yungbote/wellchat-backend/internal/platform/keylock"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

type AssessmentStatus struct {
	HasActive                 bool       `json:"has_active"`
	AssessmentID              *uuid.UUID `json:"assessment_id,omitempty"`
	CurrentQuestionIndex      int        `json:"current_question_index"`
	CompletedCount            int        `json:"completed_count"`
	Total                     int        `json:"total"`
	ProgressPct               float64    `json:"progress_pct"`
	MessagesSinceLastQuestion int        `json:"messages_since_last_question"`
	StartedAt                 *time.Time `json:"started_at,omitempty"`
	Pending                   bool       `json:"pending"`
}

type RiskAlert struct {
	RequiresAttention  bool                 `json:"requires_attention"`
	RiskLevel          assessment.RiskLevel `json:"risk_level"`
	LatestScore        *int                 `json:"phq9_score,omitempty"`
	HighRiskDetections int                  `json:"high_risk_detections"`
	Message            string               `json:"message"`
}

type HistoryQuery struct {
	Limit            int
	IncludeCancelled bool
}

// StagedDiscarder drops answers still waiting to become durable for a record.
type StagedDiscarder interface {
	DiscardStaged(recordID uuid.UUID)
}

// ControlService is the read/cancel surface over a user's assessments.
type ControlService interface {
	GetStatus(ctx context.Context, userID uuid.UUID) (AssessmentStatus, error)
	GetHistory(ctx context.Context, userID uuid.UUID, q HistoryQuery) ([]*assessment.Record, error)
	// Cancel returns assessment.ErrNoActiveAssessment when nothing is running.
	Cancel(ctx context.Context, userID uuid.UUID) (*assessment.Record, error)
	GetSummary(ctx context.Context, userID uuid.UUID) (*assessment.MentalHealthSummary, error)
	GetRiskAlert(ctx context.Context, userID uuid.UUID) (RiskAlert, error)
	ListDetections(ctx context.Context, userID uuid.UUID, limit int, onlyPositive bool) ([]*assessment.DepressionDetection, error)
}

type controlService struct {
	log        *logger.Logger
	agg        domainagg.AssessmentAggregate
	records    repos.RecordRepo
	summaries  repos.SummaryRepo
	detections repos.DetectionRepo
	locks      *keylock.Locker
	staged     StagedDiscarder
	events     EventPublisher
	metrics    *observability.Metrics
}

func NewControlService(
	baseLog *logger.Logger,
	agg domainagg.AssessmentAggregate,
	records repos.RecordRepo,
	summaries repos.SummaryRepo,
	detections repos.DetectionRepo,
	locks *keylock.Locker,
	staged StagedDiscarder,
	events EventPublisher,
	metrics *observability.Metrics,
) ControlService {
	if locks == nil {
		locks = keylock.New()
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &controlService{
		log:        baseLog.With("service", "ControlService"),
		agg:        agg,
		records:    records,
		summaries:  summaries,
		detections: detections,
		locks:      locks,
		staged:     staged,
		events:     events,
		metrics:    metrics,
	}
}

func (s *controlService) GetStatus(ctx context.Context, userID uuid.UUID) (AssessmentStatus, error) {
	const op = "PHQ9.Control.GetStatus"
	out := AssessmentStatus{Total: assessment.QuestionCount}
	if userID == uuid.Nil {
		return out, assessment.NewError(assessment.CodeValidation, op, "missing user_id", nil)
	}
	rec, err := s.records.GetActiveByUser(dbctx.Background(ctx), userID)
	if err != nil {
		return out, assessment.Wrap(assessment.CodePersistenceFailure, op, err)
	}
	if rec == nil {
		return out, nil
	}
	started := rec.StartedAt
	completed := rec.CompletedCount()
	out.HasActive = true
	out.AssessmentID = &rec.ID
	out.CurrentQuestionIndex = rec.CurrentQuestionIndex
	out.CompletedCount = completed
	out.ProgressPct = ProgressPct(completed)
	out.MessagesSinceLastQuestion = rec.MessagesSinceLastQuestion
	out.StartedAt = &started
	out.Pending = rec.Pending
	return out, nil
}

// ProgressPct is the share of answered questions, rounded to one decimal.
func ProgressPct(completed int) float64 {
	if completed <= 0 {
		return 0
	}
	if completed > assessment.QuestionCount {
		completed = assessment.QuestionCount
	}
	return math.Round(float64(completed)*1000/float64(assessment.QuestionCount)) / 10
}

func (s *controlService) GetHistory(ctx context.Context, userID uuid.UUID, q HistoryQuery) ([]*assessment.Record, error) {
	const op = "PHQ9.Control.GetHistory"
	if userID == uuid.Nil {
		return nil, assessment.NewError(assessment.CodeValidation, op, "missing user_id", nil)
	}
	states := []assessment.State{assessment.StateCompleted}
	if q.IncludeCancelled {
		states = append(states, assessment.StateCancelled)
	}
	out, err := s.records.ListTerminalByUser(dbctx.Background(ctx), userID, states, q.Limit)
	if err != nil {
		return nil, assessment.Wrap(assessment.CodePersistenceFailure, op, err)
	}
	if out == nil {
		out = []*assessment.Record{}
	}
	return out, nil
}

func (s *controlService) Cancel(ctx context.Context, userID uuid.UUID) (*assessment.Record, error) {
	const op = "PHQ9.Control.Cancel"
	if userID == uuid.Nil {
		return nil, assessment.NewError(assessment.CodeValidation, op, "missing user_id", nil)
	}
	release, err := s.locks.Acquire(ctx, UserLockKey(userID))
	if err != nil {
		return nil, assessment.Wrap(assessment.CodeConcurrentModification, op, err)
	}
	defer release()

	rec, err := s.agg.Cancel(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.staged != nil {
		s.staged.DiscardStaged(rec.ID)
	}
	s.metrics.IncCancellation()
	s.log.Info("assessment cancelled", "user_id", userID, "assessment_id", rec.ID, "answered", rec.CompletedCount())
	publish(ctx, s.log, s.events, rec, assessment.EventCancelled, nil)
	return rec, nil
}

func (s *controlService) GetSummary(ctx context.Context, userID uuid.UUID) (*assessment.MentalHealthSummary, error) {
	const op = "PHQ9.Control.GetSummary"
	if userID == uuid.Nil {
		return nil, assessment.NewError(assessment.CodeValidation, op, "missing user_id", nil)
	}
	sum, err := s.summaries.GetByUserID(dbctx.Background(ctx), userID)
	if err != nil {
		return nil, assessment.Wrap(assessment.CodePersistenceFailure, op, err)
	}
	if sum == nil {
		sum = &assessment.MentalHealthSummary{UserID: userID, OverallRiskLevel: assessment.RiskUnknown}
	}
	return sum, nil
}

func (s *controlService) GetRiskAlert(ctx context.Context, userID uuid.UUID) (RiskAlert, error) {
	const op = "PHQ9.Control.GetRiskAlert"
	if userID == uuid.Nil {
		return RiskAlert{}, assessment.NewError(assessment.CodeValidation, op, "missing user_id", nil)
	}
	sum, err := s.summaries.GetByUserID(dbctx.Background(ctx), userID)
	if err != nil {
		return RiskAlert{}, assessment.Wrap(assessment.CodePersistenceFailure, op, err)
	}
	if sum == nil {
		return RiskAlert{
			RiskLevel: assessment.RiskUnknown,
			Message:   "No hay datos suficientes",
		}, nil
	}
	return RiskAlert{
		RequiresAttention:  sum.RequiresAttention,
		RiskLevel:          sum.OverallRiskLevel,
		LatestScore:        sum.LatestScore,
		HighRiskDetections: sum.HighRiskDetections,
		Message:            riskMessage(sum.OverallRiskLevel),
	}, nil
}

func riskMessage(level assessment.RiskLevel) string {
	switch level {
	case assessment.RiskCritical:
		return "Se han detectado múltiples señales de riesgo alto. Se recomienda buscar ayuda profesional inmediatamente."
	case assessment.RiskSevere:
		return "Se han detectado síntomas severos. Es importante hablar con un profesional de salud mental."
	case assessment.RiskModerate:
		return "Se han detectado síntomas moderados. Considera buscar apoyo profesional."
	default:
		return "No se han detectado señales de riesgo significativas."
	}
}

func (s *controlService) ListDetections(ctx context.Context, userID uuid.UUID, limit int, onlyPositive bool) ([]*assessment.DepressionDetection, error) {
	const op = "PHQ9.Control.ListDetections"
	if userID == uuid.Nil {
		return nil, assessment.NewError(assessment.CodeValidation, op, "missing user_id", nil)
	}
	out, err := s.detections.ListByUser(dbctx.Background(ctx), userID, limit, onlyPositive)
	if err != nil {
		return nil, assessment.Wrap(assessment.CodePersistenceFailure, op, err)
	}
	if out == nil {
		out = []*assessment.DepressionDetection{}
	}
	return out, nil
}
