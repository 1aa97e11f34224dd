package assessment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MentalHealthSummary is the per-user rollup updated by completions and positive detections.
type MentalHealthSummary struct {
	UserID uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`

	LatestScore    *int       `gorm:"column:latest_score" json:"latest_score,omitempty"`
	LatestSeverity *Severity  `gorm:"column:latest_severity" json:"latest_severity,omitempty"`
	AssessedAt     *time.Time `gorm:"column:assessed_at" json:"assessed_at,omitempty"`

	TotalAssessments   int        `gorm:"column:total_assessments;not null;default:0" json:"total_assessments"`
	DetectionCount     int        `gorm:"column:detection_count;not null;default:0" json:"detection_count"`
	LastDetectionAt    *time.Time `gorm:"column:last_detection_at" json:"last_detection_at,omitempty"`
	HighRiskDetections int        `gorm:"column:high_risk_detections;not null;default:0" json:"high_risk_detections"`
	OverallRiskLevel   RiskLevel  `gorm:"column:overall_risk_level;not null;default:unknown" json:"overall_risk_level"`
	RequiresAttention  bool       `gorm:"column:requires_attention;not null;default:false" json:"requires_attention"`

	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (MentalHealthSummary) TableName() string { return "mental_health_summary" }

// DepressionDetection is the audit row written for every classified chat message.
type DepressionDetection struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_depression_detection_user_time,priority:1" json:"user_id"`
	MessageID    *string        `gorm:"column:message_id" json:"message_id,omitempty"`
	IsDepressive bool           `gorm:"column:is_depressive;not null" json:"is_depressive"`
	Confidence   float64        `gorm:"column:confidence;not null;default:0" json:"confidence"`
	RiskLevel    DetectionRisk  `gorm:"column:risk_level;not null;default:low" json:"risk_level"`
	Keywords     datatypes.JSON `gorm:"column:keywords;type:jsonb" json:"keywords"`
	DetectedAt   time.Time      `gorm:"column:detected_at;not null;index:idx_depression_detection_user_time,priority:2" json:"detected_at"`
}

func (DepressionDetection) TableName() string { return "depression_detection" }
