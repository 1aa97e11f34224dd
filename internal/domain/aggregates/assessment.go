package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/wellchat-backend/internal/assessment/catalog"
	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
)

var AssessmentAggregateContract = Contract{
	Name:             "PHQ9.AssessmentAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Owns record lifecycle, answer capture, finalization and summary rollup writes.",
}

// AssessmentAggregate owns the per-user PHQ-9 record invariants.
//
// Write method failures return *assessment.Error with codes:
// validation, not_found, invalid_transition, concurrent_modification, persistence_failure, internal.
type AssessmentAggregate interface {
	Aggregate

	// Start creates the user's active record, or returns the one already active.
	Start(ctx context.Context, userID uuid.UUID) (StartResult, error)

	// Ask marks question index as pending on the record.
	Ask(ctx context.Context, recordID uuid.UUID, index int) (AskResult, error)

	// TurnElapsed counts one ordinary chat turn on a record with no pending question.
	TurnElapsed(ctx context.Context, recordID uuid.UUID) (*assessment.Record, error)

	// CommitAnswer stores a scored answer and, on the last question, finalizes the
	// record and updates the summary in the same transaction. Replays are no-ops.
	CommitAnswer(ctx context.Context, in CommitAnswerInput) (CommitAnswerResult, error)

	// FinalizeIfComplete completes an active record that already holds every answer.
	FinalizeIfComplete(ctx context.Context, recordID uuid.UUID) (CommitAnswerResult, error)

	// Cancel ends the user's active record, keeping its answers.
	Cancel(ctx context.Context, userID uuid.UUID) (*assessment.Record, error)

	// RecordDetection stores a classifier verdict and folds positives into the summary.
	RecordDetection(ctx context.Context, in RecordDetectionInput) (*assessment.DepressionDetection, error)
}

type StartResult struct {
	Record  *assessment.Record
	Created bool
}

type AskResult struct {
	Record   *assessment.Record
	Question catalog.Question
}

type CommitAnswerInput struct {
	RecordID uuid.UUID
	Answer   assessment.ScoredAnswer
}

type CommitAnswerResult struct {
	Record *assessment.Record
	Answer *assessment.Answer
	// Completed is true when this commit finalized the record.
	Completed bool
	// AlreadyRecorded is true when the answer was durable before this call.
	AlreadyRecorded bool
}

type RecordDetectionInput struct {
	UserID       uuid.UUID
	MessageID    string
	IsDepressive bool
	Confidence   float64
	Risk         assessment.DetectionRisk
	Keywords     []string
	DetectedAt   time.Time
}
