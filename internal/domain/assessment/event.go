package assessment

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventStarted       EventType = "phq9.started"
	EventQuestionAsked EventType = "phq9.question_asked"
	EventAnswered      EventType = "phq9.answered"
	EventCompleted     EventType = "phq9.completed"
	EventCancelled     EventType = "phq9.cancelled"
)

// Event is broadcast after an assessment mutation has been committed.
type Event struct {
	Type          EventType `json:"type"`
	UserID        uuid.UUID `json:"user_id"`
	AssessmentID  uuid.UUID `json:"assessment_id"`
	QuestionIndex *int      `json:"question_index,omitempty"`
	TotalScore    *int      `json:"total_score,omitempty"`
	Severity      *Severity `json:"severity,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
