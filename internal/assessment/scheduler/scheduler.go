// Package scheduler decides when the next PHQ-9 question may be asked.
package scheduler

import (
	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
)

const DefaultSpacingThreshold = 3

// NormalizeThreshold raises values below 1 to 1.
func NormalizeThreshold(threshold int) int {
	if threshold < 1 {
		return 1
	}
	return threshold
}

// ShouldAskNext reports whether enough ordinary turns have elapsed since the
// previous question for the next one to be injected. It has no side effects.
func ShouldAskNext(rec *assessment.Record, spacingThreshold int) bool {
	if rec == nil || rec.State != assessment.StateActive || rec.Pending {
		return false
	}
	if rec.CurrentQuestionIndex >= assessment.QuestionCount {
		return false
	}
	return rec.MessagesSinceLastQuestion >= NormalizeThreshold(spacingThreshold)
}
