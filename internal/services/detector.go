package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	domainagg "github.com/yungbote/wellchat-backend/internal/domain/aggregates"
	"github.com/yungbote/wellchat-backend/internal/observability"
	"github.com/yungbote/wellchat-backend/internal/platform/llm"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

const DefaultDetectorTimeout = 30 * time.Second

// DetectorService decides whether a chat message should open an assessment.
// It fails closed: any classifier failure reads as "no trigger".
type DetectorService interface {
	Detect(ctx context.Context, userID uuid.UUID, messageID, text string) bool
}

type detectorService struct {
	log        *logger.Logger
	classifier llm.Classifier
	agg        domainagg.AssessmentAggregate
	timeout    time.Duration
	metrics    *observability.Metrics
}

func NewDetectorService(
	baseLog *logger.Logger,
	classifier llm.Classifier,
	agg domainagg.AssessmentAggregate,
	timeout time.Duration,
	metrics *observability.Metrics,
) DetectorService {
	if timeout <= 0 {
		timeout = DefaultDetectorTimeout
	}
	return &detectorService{
		log:        baseLog.With("service", "DetectorService"),
		classifier: classifier,
		agg:        agg,
		timeout:    timeout,
		metrics:    metrics,
	}
}

func (s *detectorService) Detect(ctx context.Context, userID uuid.UUID, messageID, text string) bool {
	if s == nil || s.classifier == nil || strings.TrimSpace(text) == "" {
		return false
	}
	ctx, span := observability.StartSpan(ctx, "phq9.detect")
	defer span.End()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	res, err := s.classifier.Classify(cctx, text)
	cancel()
	if err != nil {
		kind := collaboratorFailureKind(err)
		span.SetAttributes(attribute.String("failure", kind))
		s.log.Warn("trigger detector failed; treating as no trigger", "user_id", userID, "kind", kind, "error", err)
		s.metrics.IncCollaboratorFailure("detector", kind)
		s.metrics.IncTrigger(false)
		return false
	}
	span.SetAttributes(
		attribute.Bool("depressive", res.IsDepressive),
		attribute.String("risk", string(res.Risk)),
	)
	s.metrics.IncTrigger(res.IsDepressive)

	if s.agg != nil {
		_, err := s.agg.RecordDetection(ctx, domainagg.RecordDetectionInput{
			UserID:       userID,
			MessageID:    messageID,
			IsDepressive: res.IsDepressive,
			Confidence:   res.Confidence,
			Risk:         res.Risk,
			Keywords:     res.Keywords,
		})
		if err != nil {
			s.log.Warn("failed to record detection", "user_id", userID, "error", err)
		}
	}
	return res.IsDepressive
}

func collaboratorFailureKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return "error"
}
