package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/wellchat-backend/internal/assessment/catalog"
	"github.com/yungbote/wellchat-backend/internal/assessment/scheduler"
	"github.com/yungbote/wellchat-backend/internal/data/aggregates"
	repos "github.com/yungbote/wellchat-backend/internal/data/repos/assessment"
	domainagg "github.com/yungbote/wellchat-backend/internal/domain/aggregates"
	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
	"github.com/yungbote/wellchat-backend/internal/observability"
	"github.com/yungbote/wellchat-backend/internal/platform/dbctx"
	"github.com/yungbote/wellchat-backend/internal/platform/idempotency"
	"github.com/yungbote/wellchat-backend/internal/platform/keylock"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

const (
	TurnActionNone      = "none"
	TurnActionStarted   = "started"
	TurnActionCounted   = "counted"
	TurnActionAsked     = "asked"
	TurnActionAnswered  = "answered"
	TurnActionCompleted = "completed"
	TurnActionStaged    = "staged"
	TurnActionAbandoned = "abandoned"

	turnScope = "phq9:turn"

	// MaxTurnTextRunes bounds the text kept from one turn; longer turns are truncated, never rejected.
	MaxTurnTextRunes = 8000

	commitTimeout = 5 * time.Second
)

type TurnInput struct {
	UserID    uuid.UUID
	MessageID string
	Text      string
}

// TurnOutcome is the side-channel annotation handed back to the chat pipeline.
// QuestionToInject is nil unless a question should be woven into the reply.
type TurnOutcome struct {
	QuestionToInject *string              `json:"question_to_inject"`
	QuestionNumber   int                  `json:"question_number,omitempty"`
	AssessmentID     *uuid.UUID           `json:"assessment_id,omitempty"`
	Action           string               `json:"action"`
	Triggered        bool                 `json:"triggered"`
	Completed        bool                 `json:"completed"`
	TotalScore       *int                 `json:"total_score,omitempty"`
	Severity         *assessment.Severity `json:"severity,omitempty"`
	Duplicate        bool                 `json:"duplicate,omitempty"`
}

type EngineConfig struct {
	SpacingThreshold int
	LockWarnAfter    time.Duration
	IdempotencyTTL   time.Duration
	// CommitMaxAttempts bounds in-turn retries of a retryable answer commit.
	CommitMaxAttempts int
}

// EngineService interleaves the PHQ-9 into a user's chat stream, one turn at a time.
type EngineService interface {
	// ProcessTurn never fails the chat turn. Engine errors are logged and
	// surface as an outcome with no question to inject.
	ProcessTurn(ctx context.Context, in TurnInput) TurnOutcome

	// DiscardStaged forgets an answer still waiting to become durable.
	DiscardStaged(recordID uuid.UUID)
}

type engineService struct {
	log      *logger.Logger
	agg      domainagg.AssessmentAggregate
	records  repos.RecordRepo
	detector DetectorService
	scorer   ScorerService
	catalog  *catalog.Catalog
	locks    *keylock.Locker
	seen     idempotency.Store
	events   EventPublisher
	metrics  *observability.Metrics
	cfg      EngineConfig

	mu     sync.Mutex
	staged map[uuid.UUID]assessment.ScoredAnswer
}

func NewEngineService(
	baseLog *logger.Logger,
	agg domainagg.AssessmentAggregate,
	records repos.RecordRepo,
	detector DetectorService,
	scorer ScorerService,
	cat *catalog.Catalog,
	locks *keylock.Locker,
	seen idempotency.Store,
	events EventPublisher,
	metrics *observability.Metrics,
	cfg EngineConfig,
) EngineService {
	cfg.SpacingThreshold = scheduler.NormalizeThreshold(cfg.SpacingThreshold)
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = idempotency.DefaultTTL
	}
	if cfg.CommitMaxAttempts < 1 {
		cfg.CommitMaxAttempts = 3
	}
	if cat == nil {
		cat = catalog.Default()
	}
	if locks == nil {
		locks = keylock.New()
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &engineService{
		log:      baseLog.With("service", "EngineService"),
		agg:      agg,
		records:  records,
		detector: detector,
		scorer:   scorer,
		catalog:  cat,
		locks:    locks,
		seen:     seen,
		events:   events,
		metrics:  metrics,
		cfg:      cfg,
		staged:   map[uuid.UUID]assessment.ScoredAnswer{},
	}
}

// UserLockKey is the keylock key that serializes all assessment work for one user.
func UserLockKey(userID uuid.UUID) string {
	return "phq9:user:" + userID.String()
}

func (s *engineService) ProcessTurn(ctx context.Context, in TurnInput) TurnOutcome {
	none := TurnOutcome{Action: TurnActionNone}
	if in.UserID == uuid.Nil {
		s.log.Warn("turn without user_id ignored")
		return none
	}
	ctx, span := observability.StartSpan(ctx, "phq9.process_turn",
		attribute.Bool("has_message_id", strings.TrimSpace(in.MessageID) != ""),
	)
	defer span.End()
	in.Text = truncateRunes(in.Text, MaxTurnTextRunes)

	key := ""
	if msgID := strings.TrimSpace(in.MessageID); msgID != "" && s.seen != nil {
		key = idempotency.Key(turnScope, in.UserID.String(), msgID)
		if prior, ok := s.lookupOutcome(ctx, key); ok {
			return prior
		}
	}

	release, waited, err := s.locks.AcquireWithWarn(ctx, UserLockKey(in.UserID), s.cfg.LockWarnAfter, func(_ string, waited time.Duration) {
		s.log.Warn("turn queued behind another writer for this user", "user_id", in.UserID, "waited", waited)
		s.metrics.IncConcurrentModification()
	})
	s.metrics.ObserveLockWait(waited)
	if err != nil {
		s.log.Warn("turn abandoned while waiting for user lock", "user_id", in.UserID, "error", err)
		s.metrics.IncTurn(TurnActionAbandoned)
		return none
	}
	defer release()

	// A duplicate may have finished while this turn was queued.
	if key != "" {
		if prior, ok := s.lookupOutcome(ctx, key); ok {
			return prior
		}
	}

	out := s.processLocked(ctx, in)
	span.SetAttributes(attribute.String("action", out.Action))
	s.metrics.IncTurn(out.Action)
	if key != "" {
		s.storeOutcome(ctx, key, out)
	}
	return out
}

func (s *engineService) processLocked(ctx context.Context, in TurnInput) TurnOutcome {
	out := TurnOutcome{Action: TurnActionNone}
	rec, err := s.records.GetActiveByUser(dbctx.Background(ctx), in.UserID)
	if err != nil {
		s.log.Error("failed to load active assessment", "user_id", in.UserID, "error", aggregates.MapError("PHQ9.Engine.Load", err))
		return out
	}

	if rec != nil {
		var blocked bool
		rec, blocked = s.reconcile(ctx, rec)
		if blocked {
			out.AssessmentID = &rec.ID
			out.Action = TurnActionStaged
			return out
		}
	}

	switch {
	case rec == nil || !rec.IsActive():
		return s.triggerTurn(ctx, in)
	case rec.Pending:
		return s.answerTurn(ctx, in, rec)
	default:
		return s.ordinaryTurn(ctx, rec)
	}
}

// reconcile retries a staged answer and repairs a fully answered record.
// blocked is true when a staged answer is still not durable.
func (s *engineService) reconcile(ctx context.Context, rec *assessment.Record) (*assessment.Record, bool) {
	if staged, ok := s.takeStaged(rec.ID); ok {
		res, err := s.commit(ctx, rec.ID, staged)
		switch {
		case err == nil:
			s.metrics.IncStagedCommit("recovered")
			s.log.Info("staged answer committed", "assessment_id", rec.ID, "question_index", staged.QuestionIndex)
			s.afterCommit(ctx, res, staged)
			rec = res.Record
		case stageable(err):
			s.stage(rec.ID, staged)
			s.metrics.IncStagedCommit("failed")
			s.log.Warn("staged answer still not durable", "assessment_id", rec.ID, "error", err)
			return rec, true
		default:
			s.metrics.IncStagedCommit("dropped")
			s.log.Warn("dropping staged answer", "assessment_id", rec.ID, "error", err)
		}
	}

	if rec.IsActive() && rec.CurrentQuestionIndex >= assessment.QuestionCount-1 {
		res, err := s.agg.FinalizeIfComplete(ctx, rec.ID)
		if err != nil {
			s.log.Warn("finalize on access failed", "assessment_id", rec.ID, "error", err)
			return rec, false
		}
		if res.Completed {
			s.log.Info("finalized fully answered assessment on access", "assessment_id", rec.ID)
			s.onCompleted(ctx, res.Record)
		}
		if res.Record != nil {
			rec = res.Record
		}
	}
	return rec, false
}

func (s *engineService) triggerTurn(ctx context.Context, in TurnInput) TurnOutcome {
	out := TurnOutcome{Action: TurnActionNone}
	if s.detector == nil || !s.detector.Detect(ctx, in.UserID, in.MessageID, in.Text) {
		return out
	}
	out.Triggered = true
	started, err := s.agg.Start(ctx, in.UserID)
	if err != nil {
		s.log.Error("failed to start assessment", "user_id", in.UserID, "error", err)
		return out
	}
	out.AssessmentID = &started.Record.ID
	if started.Created {
		out.Action = TurnActionStarted
		s.log.Info("assessment started", "user_id", in.UserID, "assessment_id", started.Record.ID)
		publish(ctx, s.log, s.events, started.Record, assessment.EventStarted, nil)
	}
	return out
}

func (s *engineService) ordinaryTurn(ctx context.Context, rec *assessment.Record) TurnOutcome {
	out := TurnOutcome{Action: TurnActionNone, AssessmentID: &rec.ID}
	updated, err := s.agg.TurnElapsed(ctx, rec.ID)
	if err != nil {
		s.log.Warn("turn_elapsed rejected; treating as ordinary chat", "assessment_id", rec.ID, "error", err)
		return out
	}
	out.Action = TurnActionCounted
	if !scheduler.ShouldAskNext(updated, s.cfg.SpacingThreshold) {
		return out
	}

	index := updated.CurrentQuestionIndex
	asked, err := s.agg.Ask(ctx, rec.ID, index)
	if err != nil {
		s.log.Warn("ask rejected; no question this turn", "assessment_id", rec.ID, "question_index", index, "error", err)
		return out
	}
	prompt := asked.Question.Prompt
	out.Action = TurnActionAsked
	out.QuestionToInject = &prompt
	out.QuestionNumber = asked.Question.Number
	s.metrics.IncQuestionAsked(asked.Question.Number)
	publish(ctx, s.log, s.events, asked.Record, assessment.EventQuestionAsked, intPtr(index))
	return out
}

func (s *engineService) answerTurn(ctx context.Context, in TurnInput, rec *assessment.Record) TurnOutcome {
	out := TurnOutcome{Action: TurnActionNone, AssessmentID: &rec.ID}
	index := rec.CurrentQuestionIndex
	q, err := s.catalog.Question(index)
	if err != nil {
		s.log.Error("pending assessment points past the catalog", "assessment_id", rec.ID, "question_index", index, "error", err)
		return out
	}

	scored := s.scorer.Score(ctx, q, in.Text)
	answer := assessment.ScoredAnswer{
		QuestionIndex: index,
		RawText:       in.Text,
		Score:         scored.Score,
		LowConfidence: scored.LowConfidence,
		Rationale:     scored.Rationale,
	}

	res, err := s.commit(ctx, rec.ID, answer)
	if err != nil {
		if stageable(err) {
			s.stage(rec.ID, answer)
			s.metrics.IncStagedCommit("staged")
			s.log.Warn("answer commit failed; staged for retry", "assessment_id", rec.ID, "question_index", index, "error", err)
			out.Action = TurnActionStaged
			return out
		}
		s.log.Warn("answer rejected; treating as ordinary chat", "assessment_id", rec.ID, "question_index", index, "error", err)
		return out
	}

	s.afterCommit(ctx, res, answer)
	out.Action = TurnActionAnswered
	if res.Completed {
		out.Action = TurnActionCompleted
		out.Completed = true
		out.TotalScore = res.Record.TotalScore
		out.Severity = res.Record.Severity
	}
	return out
}

// commit outlives the caller's context: once an answer is scored, a client
// disconnect must not drop it.
func (s *engineService) commit(ctx context.Context, recordID uuid.UUID, answer assessment.ScoredAnswer) (domainagg.CommitAnswerResult, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = 500 * time.Millisecond
	return backoff.Retry(ctx, func() (domainagg.CommitAnswerResult, error) {
		res, err := s.agg.CommitAnswer(ctx, domainagg.CommitAnswerInput{RecordID: recordID, Answer: answer})
		if err != nil && !aggregates.IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(uint(s.cfg.CommitMaxAttempts)), backoff.WithMaxElapsedTime(2*time.Second))
}

// stageable reports whether a failed commit should be held and replayed rather than dropped.
func stageable(err error) bool {
	return aggregates.IsRetryable(err) ||
		assessment.IsCode(err, assessment.CodePersistenceFailure) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (s *engineService) afterCommit(ctx context.Context, res domainagg.CommitAnswerResult, answer assessment.ScoredAnswer) {
	if res.AlreadyRecorded {
		return
	}
	s.metrics.IncAnswer(answer.LowConfidence)
	publish(ctx, s.log, s.events, res.Record, assessment.EventAnswered, intPtr(answer.QuestionIndex))
	if res.Completed {
		s.onCompleted(ctx, res.Record)
	}
}

func (s *engineService) onCompleted(ctx context.Context, rec *assessment.Record) {
	if rec == nil {
		return
	}
	sev := ""
	if rec.Severity != nil {
		sev = string(*rec.Severity)
	}
	s.metrics.IncCompletion(sev)
	s.log.Info("assessment completed", "user_id", rec.UserID, "assessment_id", rec.ID, "severity", sev)
	publish(ctx, s.log, s.events, rec, assessment.EventCompleted, nil)
}

func (s *engineService) stage(recordID uuid.UUID, answer assessment.ScoredAnswer) {
	s.mu.Lock()
	s.staged[recordID] = answer
	s.mu.Unlock()
}

func (s *engineService) DiscardStaged(recordID uuid.UUID) {
	s.mu.Lock()
	delete(s.staged, recordID)
	s.mu.Unlock()
}

func (s *engineService) takeStaged(recordID uuid.UUID) (assessment.ScoredAnswer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	answer, ok := s.staged[recordID]
	if ok {
		delete(s.staged, recordID)
	}
	return answer, ok
}

func (s *engineService) lookupOutcome(ctx context.Context, key string) (TurnOutcome, bool) {
	payload, ok, err := s.seen.Get(ctx, key)
	if err != nil {
		s.log.Warn("idempotency lookup failed; processing turn", "error", err)
		return TurnOutcome{}, false
	}
	if !ok {
		return TurnOutcome{}, false
	}
	var out TurnOutcome
	if err := json.Unmarshal(payload, &out); err != nil {
		s.log.Warn("discarding unreadable idempotency entry", "error", err)
		return TurnOutcome{}, false
	}
	out.Duplicate = true
	s.metrics.IncDuplicateTurn()
	return out, true
}

func (s *engineService) storeOutcome(ctx context.Context, key string, out TurnOutcome) {
	payload, err := json.Marshal(out)
	if err != nil {
		return
	}
	if _, err := s.seen.Put(ctx, key, payload, s.cfg.IdempotencyTTL); err != nil {
		s.log.Warn("failed to record turn outcome", "error", err)
	}
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
