package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/wellchat-backend/internal/assessment/catalog"
	"github.com/yungbote/wellchat-backend/internal/config"
	"github.com/yungbote/wellchat-backend/internal/data/aggregates"
	domainagg "github.com/yungbote/wellchat-backend/internal/domain/aggregates"
	"github.com/yungbote/wellchat-backend/internal/observability"
	"github.com/yungbote/wellchat-backend/internal/platform/keylock"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
	"github.com/yungbote/wellchat-backend/internal/services"
)

type Services struct {
	Aggregate domainagg.AssessmentAggregate
	Locks     *keylock.Locker

	Detector services.DetectorService
	Scorer   services.ScorerService
	Engine   services.EngineService
	Control  services.ControlService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg *config.Config, reposet Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")
	cat := catalog.Default()

	agg := aggregates.NewAssessmentAggregate(aggregates.AssessmentAggregateDeps{
		Base: aggregates.BaseDeps{
			DB:       db,
			Log:      log,
			Runner:   aggregates.NewGormTxRunner(db, aggregates.WithLockTimeout(cfg.Database.LockTimeout)),
			Hooks:    aggregates.NewMetricsHooks(metrics),
			CASGuard: aggregates.NewCASGuard(db),
		},
		Records:    reposet.Records,
		Answers:    reposet.Answers,
		Summaries:  reposet.Summaries,
		Detections: reposet.Detections,
		Catalog:    cat,
	})
	if err := agg.Contract().Validate(); err != nil {
		return Services{}, fmt.Errorf("wire assessment aggregate: %w", err)
	}

	var events services.EventPublisher
	if clients.EventBus != nil {
		events = clients.EventBus
	}

	locks := keylock.New()
	detector := services.NewDetectorService(log, clients.Classifier, agg, cfg.PHQ9.DetectorTimeout, metrics)
	scorer := services.NewScorerService(log, clients.Scorer, cat, services.ScorerConfig{
		Timeout:       cfg.PHQ9.ScorerTimeout,
		MaxAttempts:   cfg.PHQ9.ScorerMaxAttempts,
		FallbackScore: cfg.PHQ9.FallbackScore,
	}, metrics)
	engine := services.NewEngineService(log, agg, reposet.Records, detector, scorer, cat, locks, clients.Idempotency, events, metrics, services.EngineConfig{
		SpacingThreshold: cfg.PHQ9.SpacingThreshold,
		LockWarnAfter:    cfg.PHQ9.LockWarnAfter,
		IdempotencyTTL:   cfg.PHQ9.IdempotencyTTL,
	})
	control := services.NewControlService(log, agg, reposet.Records, reposet.Summaries, reposet.Detections, locks, engine, events, metrics)

	return Services{
		Aggregate: agg,
		Locks:     locks,
		Detector:  detector,
		Scorer:    scorer,
		Engine:    engine,
		Control:   control,
	}, nil
}
