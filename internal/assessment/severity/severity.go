// Package severity maps PHQ-9 totals to clinical bands.
package severity

import (
	"fmt"

	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
)

const MaxTotal = 27

// band lower bounds are inclusive.
var bands = []struct {
	min      int
	severity assessment.Severity
}{
	{20, assessment.SeveritySevere},
	{15, assessment.SeverityModeratelySevere},
	{10, assessment.SeverityModerate},
	{5, assessment.SeverityMild},
	{0, assessment.SeverityMinimal},
}

// Classify returns the severity band for a total in [0,27].
func Classify(total int) (assessment.Severity, error) {
	if total < 0 || total > MaxTotal {
		return "", fmt.Errorf("phq9 total %d out of range [0,%d]", total, MaxTotal)
	}
	for _, b := range bands {
		if total >= b.min {
			return b.severity, nil
		}
	}
	return assessment.SeverityMinimal, nil
}

// Total sums item scores. Each score must be in [0,3].
func Total(scores []int) (int, error) {
	sum := 0
	for i, s := range scores {
		if s < 0 || s > 3 {
			return 0, fmt.Errorf("score at index %d out of range: %d", i, s)
		}
		sum += s
	}
	return sum, nil
}

// SummaryRisk maps a completed assessment's severity to the summary risk level.
// ok is false when the band leaves the summary risk level unchanged.
func SummaryRisk(s assessment.Severity) (level assessment.RiskLevel, requiresAttention bool, ok bool) {
	switch s {
	case assessment.SeveritySevere, assessment.SeverityModeratelySevere:
		return assessment.RiskSevere, true, true
	case assessment.SeverityModerate:
		return assessment.RiskModerate, false, true
	default:
		return "", false, false
	}
}
