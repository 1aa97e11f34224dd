package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/wellchat-backend/internal/assessment/catalog"
	"github.com/yungbote/wellchat-backend/internal/assessment/machine"
	"github.com/yungbote/wellchat-backend/internal/assessment/severity"
	repos "github.com/yungbote/wellchat-backend/internal/data/repos/assessment"
	domainagg "github.com/yungbote/wellchat-backend/internal/domain/aggregates"
	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
	"github.com/yungbote/wellchat-backend/internal/platform/dbctx"
)

const recordTable = "phq9_assessment"

type AssessmentAggregateDeps struct {
	Base BaseDeps

	Records    repos.RecordRepo
	Answers    repos.AnswerRepo
	Summaries  repos.SummaryRepo
	Detections repos.DetectionRepo

	Catalog *catalog.Catalog
	Now     func() time.Time
}

type assessmentAggregate struct {
	deps AssessmentAggregateDeps
}

func NewAssessmentAggregate(deps AssessmentAggregateDeps) domainagg.AssessmentAggregate {
	deps.Base = deps.Base.withDefaults()
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &assessmentAggregate{deps: deps}
}

func (a *assessmentAggregate) Contract() domainagg.Contract {
	return domainagg.AssessmentAggregateContract
}

func (a *assessmentAggregate) ready(op string) error {
	if a.deps.Records == nil || a.deps.Answers == nil || a.deps.Summaries == nil || a.deps.Detections == nil {
		return assessment.NewError(assessment.CodeInternal, op, "assessment aggregate repos not configured", nil)
	}
	return nil
}

func (a *assessmentAggregate) machineFor(rec *assessment.Record) *machine.Machine {
	return machine.New(rec, a.deps.Catalog, machine.WithClock(a.deps.Now))
}

func (a *assessmentAggregate) Start(ctx context.Context, userID uuid.UUID) (domainagg.StartResult, error) {
	const op = "PHQ9.Assessment.Start"
	var out domainagg.StartResult
	if userID == uuid.Nil {
		return out, assessment.NewError(assessment.CodeValidation, op, "missing user_id", nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		existing, err := a.deps.Records.GetActiveByUser(dbc, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			out = domainagg.StartResult{Record: existing}
			return nil
		}
		now := a.deps.Now()
		rec := &assessment.Record{
			ID:        uuid.New(),
			UserID:    userID,
			State:     assessment.StateActive,
			StartedAt: now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := a.deps.Records.Create(dbc, rec); err != nil {
			return err
		}
		out = domainagg.StartResult{Record: rec, Created: true}
		return nil
	})
	if assessment.IsCode(err, assessment.CodeConcurrentModification) {
		// Another writer won the partial unique index; hand back its record.
		existing, getErr := a.deps.Records.GetActiveByUser(dbctx.Background(ctx), userID)
		if getErr == nil && existing != nil {
			return domainagg.StartResult{Record: existing}, nil
		}
	}
	return out, err
}

func (a *assessmentAggregate) Ask(ctx context.Context, recordID uuid.UUID, index int) (domainagg.AskResult, error) {
	const op = "PHQ9.Assessment.Ask"
	var out domainagg.AskResult
	if err := a.ready(op); err != nil {
		return out, err
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		rec, err := a.loadActive(dbc, op, recordID)
		if err != nil {
			return err
		}
		expected := rec.Version
		q, err := a.machineFor(rec).Ask(dbc.Ctx, index)
		if err != nil {
			return err
		}
		if err := a.persist(dbc, rec, expected); err != nil {
			return err
		}
		out = domainagg.AskResult{Record: rec, Question: q}
		return nil
	})
	return out, err
}

func (a *assessmentAggregate) TurnElapsed(ctx context.Context, recordID uuid.UUID) (*assessment.Record, error) {
	const op = "PHQ9.Assessment.TurnElapsed"
	if err := a.ready(op); err != nil {
		return nil, err
	}
	var out *assessment.Record
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		rec, err := a.loadActive(dbc, op, recordID)
		if err != nil {
			return err
		}
		expected := rec.Version
		if err := a.machineFor(rec).TurnElapsed(); err != nil {
			return err
		}
		if err := a.persist(dbc, rec, expected); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func (a *assessmentAggregate) CommitAnswer(ctx context.Context, in domainagg.CommitAnswerInput) (domainagg.CommitAnswerResult, error) {
	const op = "PHQ9.Assessment.CommitAnswer"
	var out domainagg.CommitAnswerResult
	if in.Answer.QuestionIndex < 0 || in.Answer.QuestionIndex >= assessment.QuestionCount {
		return out, assessment.NewError(assessment.CodeValidation, op, fmt.Sprintf("question index %d out of range", in.Answer.QuestionIndex), nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		rec, err := a.load(dbc, op, in.RecordID)
		if err != nil {
			return err
		}

		if in.Answer.QuestionIndex < rec.CurrentQuestionIndex {
			existing, err := a.findAnswer(dbc, rec.ID, in.Answer.QuestionIndex)
			if err != nil {
				return err
			}
			if existing == nil {
				return InvariantError(fmt.Sprintf("question %d passed without a stored answer", in.Answer.QuestionIndex))
			}
			out = domainagg.CommitAnswerResult{Record: rec, Answer: existing, AlreadyRecorded: true}
			return nil
		}

		expected := rec.Version
		m := a.machineFor(rec)
		ans, done, err := m.Answer(dbc.Ctx, in.Answer)
		if err != nil {
			return err
		}
		ans.ID = uuid.New()
		inserted, err := a.deps.Answers.Insert(dbc, &ans)
		if err != nil {
			return err
		}
		if !inserted {
			return ConflictError(fmt.Sprintf("answer for question %d already stored", ans.QuestionIndex))
		}
		if done {
			if err := a.finalize(dbc, m); err != nil {
				return err
			}
		}
		if err := a.persist(dbc, rec, expected); err != nil {
			return err
		}
		if done {
			if err := a.rollupCompletion(dbc, rec); err != nil {
				return err
			}
		}
		out = domainagg.CommitAnswerResult{Record: rec, Answer: &ans, Completed: done}
		return nil
	})
	return out, err
}

func (a *assessmentAggregate) FinalizeIfComplete(ctx context.Context, recordID uuid.UUID) (domainagg.CommitAnswerResult, error) {
	const op = "PHQ9.Assessment.FinalizeIfComplete"
	var out domainagg.CommitAnswerResult
	if err := a.ready(op); err != nil {
		return out, err
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		rec, err := a.load(dbc, op, recordID)
		if err != nil {
			return err
		}
		out.Record = rec
		if !rec.IsActive() {
			return nil
		}
		answers, err := a.deps.Answers.ListByAssessment(dbc, rec.ID)
		if err != nil {
			return err
		}
		if len(answers) < assessment.QuestionCount {
			return nil
		}
		scores, err := scoresInOrder(answers)
		if err != nil {
			return err
		}
		expected := rec.Version
		if err := a.machineFor(rec).Reconcile(scores); err != nil {
			return err
		}
		if err := a.persist(dbc, rec, expected); err != nil {
			return err
		}
		if err := a.rollupCompletion(dbc, rec); err != nil {
			return err
		}
		out.Completed = true
		return nil
	})
	return out, err
}

func (a *assessmentAggregate) Cancel(ctx context.Context, userID uuid.UUID) (*assessment.Record, error) {
	const op = "PHQ9.Assessment.Cancel"
	if userID == uuid.Nil {
		return nil, assessment.NewError(assessment.CodeValidation, op, "missing user_id", nil)
	}
	if err := a.ready(op); err != nil {
		return nil, err
	}
	var out *assessment.Record
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		rec, err := a.deps.Records.GetActiveByUser(dbc, userID)
		if err != nil {
			return err
		}
		if rec == nil {
			return assessment.ErrNoActiveAssessment
		}
		if err := requireActive(rec); err != nil {
			return err
		}
		if err := a.machineFor(rec).Cancel(dbc.Ctx); err != nil {
			return err
		}
		ok, err := a.deps.Base.CASGuard.UpdateByState(dbc, recordTable, rec.ID, []string{string(assessment.StateActive)}, recordUpdates(rec))
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "assessment ended while cancelling"); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func (a *assessmentAggregate) RecordDetection(ctx context.Context, in domainagg.RecordDetectionInput) (*assessment.DepressionDetection, error) {
	const op = "PHQ9.Assessment.RecordDetection"
	if in.UserID == uuid.Nil {
		return nil, assessment.NewError(assessment.CodeValidation, op, "missing user_id", nil)
	}
	if err := a.ready(op); err != nil {
		return nil, err
	}
	detectedAt := in.DetectedAt.UTC()
	if in.DetectedAt.IsZero() {
		detectedAt = a.deps.Now()
	}
	keywords := in.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	kwJSON, err := json.Marshal(keywords)
	if err != nil {
		return nil, assessment.Wrap(assessment.CodeValidation, op, err)
	}
	row := &assessment.DepressionDetection{
		ID:           uuid.New(),
		UserID:       in.UserID,
		IsDepressive: in.IsDepressive,
		Confidence:   in.Confidence,
		RiskLevel:    in.Risk,
		Keywords:     datatypes.JSON(kwJSON),
		DetectedAt:   detectedAt,
	}
	if msgID := strings.TrimSpace(in.MessageID); msgID != "" {
		row.MessageID = &msgID
	}
	if row.RiskLevel == "" {
		row.RiskLevel = assessment.DetectionRiskLow
	}

	err = executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		if err := a.deps.Detections.Create(dbc, row); err != nil {
			return err
		}
		if !in.IsDepressive {
			return nil
		}
		sum, err := a.summaryFor(dbc, in.UserID)
		if err != nil {
			return err
		}
		if !severity.ApplyDetection(sum, in.IsDepressive, row.RiskLevel, detectedAt) {
			return nil
		}
		return a.deps.Summaries.Upsert(dbc, sum)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (a *assessmentAggregate) load(dbc dbctx.Context, op string, id uuid.UUID) (*assessment.Record, error) {
	if id == uuid.Nil {
		return nil, assessment.NewError(assessment.CodeValidation, op, "missing record id", nil)
	}
	rec, err := a.deps.Records.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, assessment.NewError(assessment.CodeNotFound, op, fmt.Sprintf("assessment not found: %s", id), nil)
	}
	return rec, nil
}

// loadActive is load for transitions that only an active record accepts.
func (a *assessmentAggregate) loadActive(dbc dbctx.Context, op string, id uuid.UUID) (*assessment.Record, error) {
	rec, err := a.load(dbc, op, id)
	if err != nil {
		return nil, err
	}
	if err := requireActive(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func requireActive(rec *assessment.Record) error {
	return RequireStateAllowed(string(rec.State), string(assessment.StateActive))
}

func (a *assessmentAggregate) persist(dbc dbctx.Context, rec *assessment.Record, expectedVersion int) error {
	ok, err := a.deps.Base.CASGuard.UpdateByVersion(dbc, recordTable, rec.ID, expectedVersion, recordUpdates(rec))
	if err != nil {
		return err
	}
	return RequireCASSuccess(ok, "assessment changed concurrently")
}

func (a *assessmentAggregate) findAnswer(dbc dbctx.Context, recordID uuid.UUID, index int) (*assessment.Answer, error) {
	answers, err := a.deps.Answers.ListByAssessment(dbc, recordID)
	if err != nil {
		return nil, err
	}
	for _, ans := range answers {
		if ans != nil && ans.QuestionIndex == index {
			return ans, nil
		}
	}
	return nil, nil
}

func (a *assessmentAggregate) finalize(dbc dbctx.Context, m *machine.Machine) error {
	answers, err := a.deps.Answers.ListByAssessment(dbc, m.Record().ID)
	if err != nil {
		return err
	}
	scores, err := scoresInOrder(answers)
	if err != nil {
		return err
	}
	return m.Finalize(scores)
}

func (a *assessmentAggregate) rollupCompletion(dbc dbctx.Context, rec *assessment.Record) error {
	if rec.TotalScore == nil || rec.Severity == nil {
		return InvariantError("completed assessment is missing its total")
	}
	sum, err := a.summaryFor(dbc, rec.UserID)
	if err != nil {
		return err
	}
	at := rec.UpdatedAt
	if rec.CompletedAt != nil {
		at = *rec.CompletedAt
	}
	severity.ApplyCompletion(sum, *rec.TotalScore, *rec.Severity, at)
	return a.deps.Summaries.Upsert(dbc, sum)
}

func (a *assessmentAggregate) summaryFor(dbc dbctx.Context, userID uuid.UUID) (*assessment.MentalHealthSummary, error) {
	sum, err := a.deps.Summaries.GetByUserID(dbc, userID)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		sum = severity.NewSummary(userID)
	}
	return sum, nil
}

// scoresInOrder requires exactly one answer per question.
func scoresInOrder(answers []*assessment.Answer) ([]int, error) {
	scores := make([]int, assessment.QuestionCount)
	seen := make([]bool, assessment.QuestionCount)
	for _, ans := range answers {
		if ans == nil {
			continue
		}
		if ans.QuestionIndex < 0 || ans.QuestionIndex >= assessment.QuestionCount || seen[ans.QuestionIndex] {
			return nil, InvariantError(fmt.Sprintf("unexpected answer at question %d", ans.QuestionIndex))
		}
		seen[ans.QuestionIndex] = true
		scores[ans.QuestionIndex] = ans.Score
	}
	for i, ok := range seen {
		if !ok {
			return nil, InvariantError(fmt.Sprintf("missing answer for question %d", i))
		}
	}
	return scores, nil
}

func recordUpdates(rec *assessment.Record) map[string]any {
	return map[string]any{
		"state":                        string(rec.State),
		"pending":                      rec.Pending,
		"current_question_index":       rec.CurrentQuestionIndex,
		"messages_since_last_question": rec.MessagesSinceLastQuestion,
		"version":                      rec.Version,
		"last_asked_at":                rec.LastAskedAt,
		"completed_at":                 rec.CompletedAt,
		"cancelled_at":                 rec.CancelledAt,
		"ended_at":                     rec.EndedAt,
		"total_score":                  rec.TotalScore,
		"severity":                     rec.Severity,
		"updated_at":                   rec.UpdatedAt,
	}
}
