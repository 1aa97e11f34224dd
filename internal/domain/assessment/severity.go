package assessment

type Severity string

const (
	SeverityMinimal          Severity = "minimal"
	SeverityMild             Severity = "mild"
	SeverityModerate         Severity = "moderate"
	SeverityModeratelySevere Severity = "moderately_severe"
	SeveritySevere           Severity = "severe"
)

// RiskLevel is the longitudinal risk tag kept on a MentalHealthSummary.
type RiskLevel string

const (
	RiskUnknown  RiskLevel = "unknown"
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskSevere   RiskLevel = "severe"
	RiskCritical RiskLevel = "critical"
)

// DetectionRisk is the risk label the trigger classifier attaches to a message.
type DetectionRisk string

const (
	DetectionRiskLow    DetectionRisk = "low"
	DetectionRiskMedium DetectionRisk = "medium"
	DetectionRiskHigh   DetectionRisk = "high"
	DetectionRiskSevere DetectionRisk = "severe"
)

func (r DetectionRisk) IsHigh() bool {
	return r == DetectionRiskHigh || r == DetectionRiskSevere
}
