package severity

import (
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
)

// CriticalDetectionCount is the number of high-risk detections that escalates a user to critical.
const CriticalDetectionCount = 3

// NewSummary returns the zero-valued rollup for a user with no history.
func NewSummary(userID uuid.UUID) *assessment.MentalHealthSummary {
	return &assessment.MentalHealthSummary{
		UserID:           userID,
		OverallRiskLevel: assessment.RiskUnknown,
	}
}

// ApplyCompletion folds a finalized assessment into the rollup.
func ApplyCompletion(sum *assessment.MentalHealthSummary, total int, sev assessment.Severity, at time.Time) {
	if sum == nil {
		return
	}
	score := total
	band := sev
	assessed := at
	sum.LatestScore = &score
	sum.LatestSeverity = &band
	sum.AssessedAt = &assessed
	sum.TotalAssessments++
	if level, attention, ok := SummaryRisk(sev); ok {
		sum.OverallRiskLevel = level
		if attention {
			sum.RequiresAttention = true
		}
	}
	sum.UpdatedAt = at
}

// ApplyDetection folds a positive classifier detection into the rollup.
// Negative detections leave the rollup untouched and return false.
func ApplyDetection(sum *assessment.MentalHealthSummary, depressive bool, risk assessment.DetectionRisk, at time.Time) bool {
	if sum == nil || !depressive {
		return false
	}
	detected := at
	sum.DetectionCount++
	sum.LastDetectionAt = &detected
	if risk.IsHigh() {
		sum.HighRiskDetections++
		sum.RequiresAttention = true
	}
	switch {
	case sum.HighRiskDetections >= CriticalDetectionCount:
		sum.OverallRiskLevel = assessment.RiskCritical
	case risk == assessment.DetectionRiskSevere:
		sum.OverallRiskLevel = assessment.RiskSevere
	case risk == assessment.DetectionRiskHigh:
		sum.OverallRiskLevel = assessment.RiskModerate
	}
	sum.UpdatedAt = at
	return true
}
