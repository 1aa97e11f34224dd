package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/wellchat-backend/internal/assessment/catalog"
	"github.com/yungbote/wellchat-backend/internal/data/aggregates"
	aggtest "github.com/yungbote/wellchat-backend/internal/data/aggregates/testutil"
	repos "github.com/yungbote/wellchat-backend/internal/data/repos/assessment"
	repotest "github.com/yungbote/wellchat-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/wellchat-backend/internal/domain/aggregates"
	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
	"github.com/yungbote/wellchat-backend/internal/observability"
	"github.com/yungbote/wellchat-backend/internal/platform/dbctx"
	"github.com/yungbote/wellchat-backend/internal/platform/idempotency"
	"github.com/yungbote/wellchat-backend/internal/platform/keylock"
	"github.com/yungbote/wellchat-backend/internal/platform/llm"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

type fakeClassifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (llm.Classification, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return llm.Classification{}, err
	}
	if strings.Contains(strings.ToLower(text), "ganas de nada") {
		return llm.Classification{IsDepressive: true, Confidence: 0.9, Risk: assessment.DetectionRiskHigh, Keywords: []string{"ganas de nada"}}, nil
	}
	return llm.Classification{Risk: assessment.DetectionRiskLow}, nil
}

func (f *fakeClassifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeScorer returns scores by question number. Questions listed in hang
// block until the caller's deadline.
type fakeScorer struct {
	mu     sync.Mutex
	scores map[int]int
	hang   map[int]bool
	fails  int
	calls  int
	// afterScore runs once the score is ready, before it is returned.
	afterScore func()
}

func (f *fakeScorer) Score(ctx context.Context, req llm.ScoreRequest) (llm.ScoreResult, error) {
	f.mu.Lock()
	f.calls++
	number := 0
	for _, q := range catalog.Default().Questions {
		if q.Prompt == req.Question {
			number = q.Number
		}
	}
	hang := f.hang[number]
	failNow := f.fails > 0
	if failNow {
		f.fails--
	}
	score := f.scores[number]
	after := f.afterScore
	f.mu.Unlock()
	if after != nil {
		defer after()
	}

	if hang {
		<-ctx.Done()
		return llm.ScoreResult{}, ctx.Err()
	}
	if failNow {
		return llm.ScoreResult{}, errors.New("scorer output missing score")
	}
	return llm.ScoreResult{Score: score, Rationale: "scripted"}, nil
}

func (f *fakeScorer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []assessment.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev assessment.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Types() []assessment.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]assessment.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type engineHarness struct {
	db         *gorm.DB
	log        *logger.Logger
	runner     *aggtest.InjectedTxRunner
	agg        domainagg.AssessmentAggregate
	records    repos.RecordRepo
	answers    repos.AnswerRepo
	summaries  repos.SummaryRepo
	detections repos.DetectionRepo
	classifier *fakeClassifier
	scorer     *fakeScorer
	events     *recordingPublisher
	metrics    *observability.Metrics
	locks      *keylock.Locker
	engine     EngineService
	control    ControlService
}

type harnessOption func(*ScorerConfig, *EngineConfig)

func withScorerTimeout(d time.Duration) harnessOption {
	return func(sc *ScorerConfig, _ *EngineConfig) { sc.Timeout = d }
}

func withScorerAttempts(n int) harnessOption {
	return func(sc *ScorerConfig, _ *EngineConfig) { sc.MaxAttempts = n }
}

func newEngineHarness(t *testing.T, scores []int, opts ...harnessOption) *engineHarness {
	t.Helper()
	db := repotest.DB(t)
	log := repotest.Logger(t)
	h := &engineHarness{
		db:         db,
		log:        log,
		runner:     &aggtest.InjectedTxRunner{Delegate: aggregates.NewGormTxRunner(db)},
		records:    repos.NewRecordRepo(db, log),
		answers:    repos.NewAnswerRepo(db, log),
		summaries:  repos.NewSummaryRepo(db, log),
		detections: repos.NewDetectionRepo(db, log),
		classifier: &fakeClassifier{},
		scorer:     &fakeScorer{scores: map[int]int{}, hang: map[int]bool{}},
		events:     &recordingPublisher{},
		metrics:    observability.NewMetrics(),
		locks:      keylock.New(),
	}
	for i, s := range scores {
		h.scorer.scores[i+1] = s
	}
	h.agg = aggregates.NewAssessmentAggregate(aggregates.AssessmentAggregateDeps{
		Base: aggregates.BaseDeps{
			DB:       db,
			Log:      log,
			Runner:   h.runner,
			Hooks:    aggregates.NewMetricsHooks(h.metrics),
			CASGuard: aggregates.NewCASGuard(db),
		},
		Records:    h.records,
		Answers:    h.answers,
		Summaries:  h.summaries,
		Detections: h.detections,
	})

	scfg := ScorerConfig{Timeout: time.Second, MaxAttempts: 1, FallbackScore: 1}
	ecfg := EngineConfig{SpacingThreshold: 3, LockWarnAfter: time.Second, CommitMaxAttempts: 2}
	for _, opt := range opts {
		opt(&scfg, &ecfg)
	}
	detector := NewDetectorService(log, h.classifier, h.agg, time.Second, h.metrics)
	scorer := NewScorerService(log, h.scorer, catalog.Default(), scfg, h.metrics)
	h.engine = NewEngineService(log, h.agg, h.records, detector, scorer, catalog.Default(), h.locks, idempotency.NewMemoryStore(), h.events, h.metrics, ecfg)
	h.control = NewControlService(log, h.agg, h.records, h.summaries, h.detections, h.locks, h.engine, h.events, h.metrics)
	return h
}

func (h *engineHarness) turn(t *testing.T, userID uuid.UUID, text string) TurnOutcome {
	t.Helper()
	return h.engine.ProcessTurn(context.Background(), TurnInput{UserID: userID, MessageID: uuid.NewString(), Text: text})
}

func (h *engineHarness) active(t *testing.T, userID uuid.UUID) *assessment.Record {
	t.Helper()
	rec, err := h.records.GetActiveByUser(dbctx.Background(context.Background()), userID)
	if err != nil {
		t.Fatalf("GetActiveByUser: %v", err)
	}
	return rec
}
