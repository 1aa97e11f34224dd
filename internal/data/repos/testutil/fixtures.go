package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/wellchat-backend/internal/domain/assessment"
)

// SeedRecord inserts a record for userID in the given state with index answers already recorded.
func SeedRecord(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, state types.State, answered int) *types.Record {
	tb.Helper()
	now := time.Now().UTC()
	rec := &types.Record{
		ID:                   uuid.New(),
		UserID:               userID,
		State:                state,
		CurrentQuestionIndex: answered,
		StartedAt:            now.Add(-time.Hour),
	}
	if state.Terminal() {
		ended := now
		rec.EndedAt = &ended
		if state == types.StateCompleted {
			rec.CompletedAt = &ended
		} else {
			rec.CancelledAt = &ended
		}
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		tb.Fatalf("seed record: %v", err)
	}
	for i := 0; i < answered; i++ {
		SeedAnswer(tb, ctx, tx, rec.ID, i, 1)
	}
	return rec
}

func SeedAnswer(tb testing.TB, ctx context.Context, tx *gorm.DB, assessmentID uuid.UUID, index, score int) *types.Answer {
	tb.Helper()
	a := &types.Answer{
		ID:            uuid.New(),
		AssessmentID:  assessmentID,
		QuestionIndex: index,
		RawText:       "respuesta",
		Score:         score,
		AnsweredAt:    time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed answer: %v", err)
	}
	return a
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
