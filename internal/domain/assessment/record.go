package assessment

import (
	"time"

	"github.com/google/uuid"
)

// QuestionCount is the number of PHQ-9 items; an assessment completes after this many answers.
const QuestionCount = 9

type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Record is one conversational PHQ-9 run for a user.
// At most one row per user may be active; the partial unique index enforces it.
type Record struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_phq9_assessment_active_user,where:state = 'active'" json:"user_id"`

	State State `gorm:"column:state;not null;default:active;index" json:"state"`
	// Pending is set while a question has been asked and its answer is outstanding.
	Pending                   bool `gorm:"column:pending;not null;default:false" json:"pending"`
	CurrentQuestionIndex      int  `gorm:"column:current_question_index;not null;default:0" json:"current_question_index"`
	MessagesSinceLastQuestion int  `gorm:"column:messages_since_last_question;not null;default:0" json:"messages_since_last_question"`
	Version                   int  `gorm:"column:version;not null;default:0" json:"version"`

	StartedAt   time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	LastAskedAt *time.Time `gorm:"column:last_asked_at" json:"last_asked_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CancelledAt *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	EndedAt     *time.Time `gorm:"column:ended_at;index" json:"ended_at,omitempty"`

	TotalScore *int      `gorm:"column:total_score" json:"total_score,omitempty"`
	Severity   *Severity `gorm:"column:severity" json:"severity,omitempty"`

	Answers []Answer `gorm:"foreignKey:AssessmentID;references:ID" json:"answers,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Record) TableName() string { return "phq9_assessment" }

func (r *Record) IsActive() bool {
	return r != nil && r.State == StateActive
}

// CompletedCount is the number of questions answered so far.
func (r *Record) CompletedCount() int {
	if r == nil {
		return 0
	}
	return r.CurrentQuestionIndex
}

// Answer is the immutable scored reply to one question of a Record.
type Answer struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AssessmentID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_phq9_answer_question,priority:1" json:"assessment_id"`
	QuestionIndex int       `gorm:"column:question_index;not null;uniqueIndex:ux_phq9_answer_question,priority:2" json:"question_index"`
	RawText       string    `gorm:"column:raw_text;type:text;not null" json:"raw_text"`
	Score         int       `gorm:"column:score;not null" json:"score"`
	LowConfidence bool      `gorm:"column:low_confidence;not null;default:false" json:"low_confidence"`
	Rationale     string    `gorm:"column:rationale;type:text" json:"rationale,omitempty"`
	AnsweredAt    time.Time `gorm:"column:answered_at;not null" json:"answered_at"`
}

func (Answer) TableName() string { return "phq9_assessment_answer" }

// ScoredAnswer is an answer that has been scored but not necessarily persisted.
type ScoredAnswer struct {
	QuestionIndex int    `json:"question_index"`
	RawText       string `json:"raw_text"`
	Score         int    `json:"score"`
	LowConfidence bool   `json:"low_confidence"`
	Rationale     string `json:"rationale,omitempty"`
}
