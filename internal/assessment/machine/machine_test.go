package machine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/wellchat-backend/internal/assessment/catalog"
	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
)

func newRecord() *assessment.Record {
	return &assessment.Record{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		State:     assessment.StateActive,
		StartedAt: time.Now().UTC(),
	}
}

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestAskAnswerCycle(t *testing.T) {
	ctx := context.Background()
	rec := newRecord()
	rec.MessagesSinceLastQuestion = 3
	m := New(rec, catalog.Default(), WithClock(fixedClock()))

	q, err := m.Ask(ctx, 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if q.Number != 1 {
		t.Fatalf("asked question number: want 1 got %d", q.Number)
	}
	if !rec.Pending || rec.MessagesSinceLastQuestion != 0 || rec.LastAskedAt == nil {
		t.Fatalf("record after ask: %+v", rec)
	}
	if m.Phase() != PhaseAwaitingAnswer {
		t.Fatalf("phase: %s", m.Phase())
	}

	ans, done, err := m.Answer(ctx, assessment.ScoredAnswer{QuestionIndex: 0, RawText: "casi todos los días", Score: 3})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if done {
		t.Fatalf("first answer must not complete the record")
	}
	if ans.QuestionIndex != 0 || ans.Score != 3 || ans.AssessmentID != rec.ID {
		t.Fatalf("answer: %+v", ans)
	}
	if rec.Pending || rec.CurrentQuestionIndex != 1 || rec.MessagesSinceLastQuestion != 0 {
		t.Fatalf("record after answer: %+v", rec)
	}
	if rec.Version != 2 {
		t.Fatalf("version: want 2 got %d", rec.Version)
	}
}

func TestIllegalTransitionsDoNotMutate(t *testing.T) {
	ctx := context.Background()

	t.Run("answer without pending", func(t *testing.T) {
		rec := newRecord()
		m := New(rec, nil)
		_, _, err := m.Answer(ctx, assessment.ScoredAnswer{RawText: "x", Score: 1})
		if !assessment.IsCode(err, assessment.CodeInvalidTransition) {
			t.Fatalf("expected invalid_transition, got %v", err)
		}
		if rec.Version != 0 || rec.CurrentQuestionIndex != 0 {
			t.Fatalf("record mutated: %+v", rec)
		}
	})

	t.Run("ask while pending", func(t *testing.T) {
		rec := newRecord()
		rec.Pending = true
		m := New(rec, nil)
		if _, err := m.Ask(ctx, 0); !assessment.IsCode(err, assessment.CodeInvalidTransition) {
			t.Fatalf("expected invalid_transition, got %v", err)
		}
		if rec.Version != 0 {
			t.Fatalf("record mutated: %+v", rec)
		}
	})

	t.Run("ask wrong index", func(t *testing.T) {
		rec := newRecord()
		rec.CurrentQuestionIndex = 2
		m := New(rec, nil)
		if _, err := m.Ask(ctx, 3); !assessment.IsCode(err, assessment.CodeInvalidTransition) {
			t.Fatalf("expected invalid_transition, got %v", err)
		}
	})

	t.Run("turn elapsed while pending", func(t *testing.T) {
		rec := newRecord()
		rec.Pending = true
		m := New(rec, nil)
		if err := m.TurnElapsed(); !assessment.IsCode(err, assessment.CodeInvalidTransition) {
			t.Fatalf("expected invalid_transition, got %v", err)
		}
		if rec.MessagesSinceLastQuestion != 0 {
			t.Fatalf("counter mutated")
		}
	})

	t.Run("cancel terminal", func(t *testing.T) {
		rec := newRecord()
		rec.State = assessment.StateCompleted
		m := New(rec, nil)
		if err := m.Cancel(ctx); !assessment.IsCode(err, assessment.CodeInvalidTransition) {
			t.Fatalf("expected invalid_transition, got %v", err)
		}
		if rec.State != assessment.StateCompleted || rec.CancelledAt != nil {
			t.Fatalf("record mutated: %+v", rec)
		}
	})
}

func TestFullRunCompletesAndFinalizes(t *testing.T) {
	ctx := context.Background()
	rec := newRecord()
	m := New(rec, nil, WithClock(fixedClock()))
	scores := []int{2, 3, 1, 2, 1, 2, 1, 1, 0}

	for i, s := range scores {
		if _, err := m.Ask(ctx, i); err != nil {
			t.Fatalf("Ask(%d): %v", i, err)
		}
		_, done, err := m.Answer(ctx, assessment.ScoredAnswer{QuestionIndex: i, RawText: "respuesta", Score: s})
		if err != nil {
			t.Fatalf("Answer(%d): %v", i, err)
		}
		if done != (i == len(scores)-1) {
			t.Fatalf("done at %d: %v", i, done)
		}
	}
	if rec.State != assessment.StateCompleted || rec.CompletedAt == nil || rec.EndedAt == nil {
		t.Fatalf("record not completed: %+v", rec)
	}
	if err := m.Finalize(scores); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if rec.TotalScore == nil || *rec.TotalScore != 13 {
		t.Fatalf("total: %v", rec.TotalScore)
	}
	if rec.Severity == nil || *rec.Severity != assessment.SeverityModerate {
		t.Fatalf("severity: %v", rec.Severity)
	}
	if _, err := m.Ask(ctx, 9); err == nil {
		t.Fatalf("ask after completion must fail")
	}
}

func TestCancelKeepsProgress(t *testing.T) {
	ctx := context.Background()
	rec := newRecord()
	m := New(rec, nil)
	if _, err := m.Ask(ctx, 0); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if _, _, err := m.Answer(ctx, assessment.ScoredAnswer{QuestionIndex: 0, RawText: "a veces", Score: 1}); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if _, err := m.Ask(ctx, 1); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if err := m.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if rec.State != assessment.StateCancelled || rec.Pending {
		t.Fatalf("record after cancel: %+v", rec)
	}
	if rec.CurrentQuestionIndex != 1 {
		t.Fatalf("progress lost: %d", rec.CurrentQuestionIndex)
	}
	if rec.CancelledAt == nil || rec.EndedAt == nil {
		t.Fatalf("cancel timestamps missing")
	}
}

func TestReconcileCompletesStrandedRecord(t *testing.T) {
	rec := newRecord()
	rec.CurrentQuestionIndex = 8
	rec.Pending = true
	m := New(rec, nil, WithClock(fixedClock()))

	if err := m.Reconcile([]int{1, 1, 1}); !assessment.IsCode(err, assessment.CodeValidation) {
		t.Fatalf("short scores: expected validation, got %v", err)
	}
	if rec.State != assessment.StateActive {
		t.Fatalf("record mutated on validation failure: %+v", rec)
	}

	if err := m.Reconcile([]int{3, 3, 3, 3, 3, 3, 2, 0, 0}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rec.State != assessment.StateCompleted || rec.Pending || rec.CurrentQuestionIndex != 9 {
		t.Fatalf("record after reconcile: %+v", rec)
	}
	if rec.TotalScore == nil || *rec.TotalScore != 20 || *rec.Severity != assessment.SeveritySevere {
		t.Fatalf("finalized values: total=%v severity=%v", rec.TotalScore, rec.Severity)
	}
	if m.Phase() != PhaseCompleted {
		t.Fatalf("phase: %s", m.Phase())
	}
	if err := m.Reconcile([]int{0, 0, 0, 0, 0, 0, 0, 0, 0}); !assessment.IsCode(err, assessment.CodeInvalidTransition) {
		t.Fatalf("second reconcile: expected invalid_transition, got %v", err)
	}
}
