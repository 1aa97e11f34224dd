package services

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/wellchat-backend/internal/assessment/catalog"
	"github.com/yungbote/wellchat-backend/internal/observability"
	"github.com/yungbote/wellchat-backend/internal/platform/llm"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

const (
	DefaultScorerTimeout = 20 * time.Second
	DefaultFallbackScore = 1
)

type ScorerConfig struct {
	Timeout       time.Duration
	MaxAttempts   int
	FallbackScore int
}

// ScorerService turns a free-text answer into an item score. It never fails:
// when the scorer cannot answer in time the fallback score is returned with LowConfidence set.
type ScorerService interface {
	Score(ctx context.Context, q catalog.Question, answer string) llm.ScoreResult
}

type scorerService struct {
	log     *logger.Logger
	scorer  llm.Scorer
	catalog *catalog.Catalog
	cfg     ScorerConfig
	metrics *observability.Metrics
}

func NewScorerService(baseLog *logger.Logger, scorer llm.Scorer, cat *catalog.Catalog, cfg ScorerConfig, metrics *observability.Metrics) ScorerService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultScorerTimeout
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.FallbackScore < 0 || cfg.FallbackScore > 3 {
		cfg.FallbackScore = DefaultFallbackScore
	}
	if cat == nil {
		cat = catalog.Default()
	}
	return &scorerService{
		log:     baseLog.With("service", "ScorerService"),
		scorer:  scorer,
		catalog: cat,
		cfg:     cfg,
		metrics: metrics,
	}
}

func (s *scorerService) Score(ctx context.Context, q catalog.Question, answer string) llm.ScoreResult {
	ctx, span := observability.StartSpan(ctx, "phq9.score", attribute.Int("question", q.Number))
	defer span.End()

	if s.scorer == nil {
		return s.fallback("unconfigured")
	}
	req := llm.ScoreRequest{
		Symptom:  q.Symptom,
		Question: q.Prompt,
		Rubric:   s.catalog.RubricText(),
		Answer:   answer,
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	eb.MaxInterval = 2 * time.Second
	attempts := 0
	res, err := backoff.Retry(cctx, func() (llm.ScoreResult, error) {
		attempts++
		r, err := s.scorer.Score(cctx, req)
		if err != nil && cctx.Err() != nil {
			return llm.ScoreResult{}, backoff.Permanent(err)
		}
		return r, err
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(uint(s.cfg.MaxAttempts)))
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		if cctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(err, cctx.Err())
		}
		kind := collaboratorFailureKind(err)
		span.SetAttributes(attribute.String("failure", kind))
		s.log.Warn("scorer failed; using fallback score", "question", q.Number, "attempts", attempts, "kind", kind, "error", err)
		return s.fallback(kind)
	}
	if clamped, adjusted := llm.ClampScore(res.Score); adjusted {
		s.log.Warn("scorer returned out-of-range score; clamped", "question", q.Number, "raw_score", res.Score, "score", clamped)
		res.Score = clamped
		res.LowConfidence = true
	}
	return res
}

func (s *scorerService) fallback(kind string) llm.ScoreResult {
	s.metrics.IncCollaboratorFailure("scorer", kind)
	return llm.ScoreResult{
		Score:         s.cfg.FallbackScore,
		LowConfidence: true,
		Rationale:     "scorer unavailable (" + kind + "); fallback score applied",
	}
}
