// Package machine drives the lifecycle transitions of a single assessment record.
// It mutates the record in memory only; persistence is the caller's job.
package machine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/looplab/fsm"

	"github.com/yungbote/wellchat-backend/internal/assessment/catalog"
	"github.com/yungbote/wellchat-backend/internal/assessment/severity"
	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
)

const (
	PhaseIdle           = "idle"
	PhaseAwaitingAnswer = "awaiting_answer"
	PhaseCompleted      = "completed"
	PhaseCancelled      = "cancelled"

	EventAsk    = "ask"
	EventAnswer = "answer"
	EventFinish = "finish"
	EventCancel = "cancel"
)

var events = fsm.Events{
	{Name: EventAsk, Src: []string{PhaseIdle}, Dst: PhaseAwaitingAnswer},
	{Name: EventAnswer, Src: []string{PhaseAwaitingAnswer}, Dst: PhaseIdle},
	{Name: EventFinish, Src: []string{PhaseAwaitingAnswer}, Dst: PhaseCompleted},
	{Name: EventCancel, Src: []string{PhaseIdle, PhaseAwaitingAnswer}, Dst: PhaseCancelled},
}

// PhaseOf maps a persisted record onto its machine phase.
func PhaseOf(rec *assessment.Record) string {
	switch {
	case rec == nil:
		return ""
	case rec.State == assessment.StateCompleted:
		return PhaseCompleted
	case rec.State == assessment.StateCancelled:
		return PhaseCancelled
	case rec.Pending:
		return PhaseAwaitingAnswer
	default:
		return PhaseIdle
	}
}

type Machine struct {
	rec *assessment.Record
	cat *catalog.Catalog
	fsm *fsm.FSM
	now func() time.Time
}

type Option func(*Machine)

// WithClock overrides the time source used for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

func New(rec *assessment.Record, cat *catalog.Catalog, opts ...Option) *Machine {
	if cat == nil {
		cat = catalog.Default()
	}
	m := &Machine{
		rec: rec,
		cat: cat,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	m.fsm = fsm.NewFSM(PhaseOf(rec), events, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) { m.syncState(e.Dst) },
	})
	return m
}

func (m *Machine) Record() *assessment.Record { return m.rec }

func (m *Machine) Phase() string { return m.fsm.Current() }

func (m *Machine) syncState(phase string) {
	switch phase {
	case PhaseIdle:
		m.rec.State = assessment.StateActive
		m.rec.Pending = false
	case PhaseAwaitingAnswer:
		m.rec.State = assessment.StateActive
		m.rec.Pending = true
	case PhaseCompleted:
		m.rec.State = assessment.StateCompleted
		m.rec.Pending = false
	case PhaseCancelled:
		m.rec.State = assessment.StateCancelled
		m.rec.Pending = false
	}
}

func (m *Machine) fire(ctx context.Context, op, event string) error {
	if m.rec == nil {
		return assessment.InvalidTransition(op, "no record")
	}
	if !m.fsm.Can(event) {
		return assessment.InvalidTransition(op, fmt.Sprintf("%s not allowed from %s", event, m.fsm.Current()))
	}
	if err := m.fsm.Event(ctx, event); err != nil {
		return assessment.Wrap(assessment.CodeInvalidTransition, op, err)
	}
	return nil
}

// Ask marks question index as asked. index must equal the record's current question.
func (m *Machine) Ask(ctx context.Context, index int) (catalog.Question, error) {
	const op = "Assessment.Ask"
	if m.rec == nil {
		return catalog.Question{}, assessment.InvalidTransition(op, "no record")
	}
	if index != m.rec.CurrentQuestionIndex {
		return catalog.Question{}, assessment.InvalidTransition(op, fmt.Sprintf("index %d does not match current question %d", index, m.rec.CurrentQuestionIndex))
	}
	if index >= assessment.QuestionCount {
		return catalog.Question{}, assessment.InvalidTransition(op, "all questions answered")
	}
	q, err := m.cat.Question(index)
	if err != nil {
		return catalog.Question{}, assessment.Wrap(assessment.CodeValidation, op, err)
	}
	if err := m.fire(ctx, op, EventAsk); err != nil {
		return catalog.Question{}, err
	}
	at := m.now()
	m.rec.MessagesSinceLastQuestion = 0
	m.rec.LastAskedAt = &at
	m.touch(at)
	return q, nil
}

// TurnElapsed counts one ordinary chat turn while no question is pending.
func (m *Machine) TurnElapsed() error {
	const op = "Assessment.TurnElapsed"
	if m.rec == nil {
		return assessment.InvalidTransition(op, "no record")
	}
	if m.fsm.Current() != PhaseIdle {
		return assessment.InvalidTransition(op, fmt.Sprintf("turn_elapsed not allowed from %s", m.fsm.Current()))
	}
	m.rec.MessagesSinceLastQuestion++
	m.touch(m.now())
	return nil
}

// Answer records the reply to the pending question. in.QuestionIndex must be the
// pending question. The returned bool is true when this was the last question
// and the record is now completed.
func (m *Machine) Answer(ctx context.Context, in assessment.ScoredAnswer) (assessment.Answer, bool, error) {
	const op = "Assessment.Answer"
	if m.rec == nil {
		return assessment.Answer{}, false, assessment.InvalidTransition(op, "no record")
	}
	if in.Score < 0 || in.Score > 3 {
		return assessment.Answer{}, false, assessment.NewError(assessment.CodeValidation, op, fmt.Sprintf("score %d out of range", in.Score), nil)
	}
	index := m.rec.CurrentQuestionIndex
	if in.QuestionIndex != index {
		return assessment.Answer{}, false, assessment.InvalidTransition(op, fmt.Sprintf("answer for question %d but current question is %d", in.QuestionIndex, index))
	}
	event := EventAnswer
	if index+1 >= assessment.QuestionCount {
		event = EventFinish
	}
	if err := m.fire(ctx, op, event); err != nil {
		return assessment.Answer{}, false, err
	}
	at := m.now()
	ans := assessment.Answer{
		AssessmentID:  m.rec.ID,
		QuestionIndex: index,
		RawText:       in.RawText,
		Score:         in.Score,
		LowConfidence: in.LowConfidence,
		Rationale:     strings.TrimSpace(in.Rationale),
		AnsweredAt:    at,
	}
	m.rec.CurrentQuestionIndex = index + 1
	m.rec.MessagesSinceLastQuestion = 0
	done := event == EventFinish
	if done {
		m.rec.CompletedAt = &at
		m.rec.EndedAt = &at
	}
	m.touch(at)
	return ans, done, nil
}

// Finalize freezes the total and severity on a completed record.
// scores must hold all nine item scores in question order.
func (m *Machine) Finalize(scores []int) error {
	const op = "Assessment.Finalize"
	if m.rec == nil || m.rec.State != assessment.StateCompleted {
		return assessment.InvalidTransition(op, "record is not completed")
	}
	if len(scores) != assessment.QuestionCount {
		return assessment.NewError(assessment.CodeValidation, op, fmt.Sprintf("expected %d scores, got %d", assessment.QuestionCount, len(scores)), nil)
	}
	total, err := severity.Total(scores)
	if err != nil {
		return assessment.Wrap(assessment.CodeValidation, op, err)
	}
	sev, err := severity.Classify(total)
	if err != nil {
		return assessment.Wrap(assessment.CodeValidation, op, err)
	}
	m.rec.TotalScore = &total
	m.rec.Severity = &sev
	return nil
}

// Reconcile completes an active record whose answers are all durable but whose
// lifecycle columns were never advanced. scores must be in question order.
func (m *Machine) Reconcile(scores []int) error {
	const op = "Assessment.Reconcile"
	if m.rec == nil || m.rec.State != assessment.StateActive {
		return assessment.InvalidTransition(op, "record is not active")
	}
	if len(scores) != assessment.QuestionCount {
		return assessment.NewError(assessment.CodeValidation, op, fmt.Sprintf("expected %d scores, got %d", assessment.QuestionCount, len(scores)), nil)
	}
	if _, err := severity.Total(scores); err != nil {
		return assessment.Wrap(assessment.CodeValidation, op, err)
	}
	at := m.now()
	m.fsm.SetState(PhaseCompleted)
	m.syncState(PhaseCompleted)
	m.rec.CurrentQuestionIndex = assessment.QuestionCount
	m.rec.MessagesSinceLastQuestion = 0
	m.rec.CompletedAt = &at
	m.rec.EndedAt = &at
	m.touch(at)
	return m.Finalize(scores)
}

// Cancel ends a non-terminal record. Recorded answers are kept.
func (m *Machine) Cancel(ctx context.Context) error {
	const op = "Assessment.Cancel"
	if err := m.fire(ctx, op, EventCancel); err != nil {
		return err
	}
	at := m.now()
	m.rec.CancelledAt = &at
	m.rec.EndedAt = &at
	m.touch(at)
	return nil
}

func (m *Machine) touch(at time.Time) {
	m.rec.Version++
	m.rec.UpdatedAt = at
}
