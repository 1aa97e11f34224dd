package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
	"github.com/yungbote/wellchat-backend/internal/observability"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

// EventPublisher broadcasts committed assessment lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, ev assessment.Event) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, assessment.Event) error { return nil }

func publish(ctx context.Context, log *logger.Logger, pub EventPublisher, rec *assessment.Record, typ assessment.EventType, questionIndex *int) {
	if pub == nil || rec == nil {
		return
	}
	ev := assessment.Event{
		Type:          typ,
		UserID:        rec.UserID,
		AssessmentID:  rec.ID,
		QuestionIndex: questionIndex,
		TotalScore:    rec.TotalScore,
		Severity:      rec.Severity,
		OccurredAt:    time.Now().UTC(),
	}
	if err := pub.Publish(ctx, ev); err != nil {
		log.Warn("failed to publish assessment event", "type", typ, "assessment_id", rec.ID, "error", err)
	}
}

func intPtr(v int) *int { return &v }

// ReplicaEventHandler consumes events forwarded from every replica. Staged
// answers live in one process only, so when a record ends anywhere the answer
// staged for it here is dropped instead of blocking that user's next turn.
func ReplicaEventHandler(log *logger.Logger, staged StagedDiscarder, metrics *observability.Metrics) func(assessment.Event) {
	log = log.With("component", "ReplicaEventHandler")
	return func(ev assessment.Event) {
		metrics.IncEventReceived(string(ev.Type))
		switch ev.Type {
		case assessment.EventCancelled, assessment.EventCompleted:
			if staged != nil && ev.AssessmentID != uuid.Nil {
				staged.DiscardStaged(ev.AssessmentID)
			}
		}
		log.Debug("assessment event", "type", ev.Type, "assessment_id", ev.AssessmentID, "user_id", ev.UserID)
	}
}
