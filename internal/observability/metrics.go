package observability

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wellchat"

// Metrics is the process-wide Prometheus instrumentation set.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec

	turns                  *prometheus.CounterVec
	triggers               *prometheus.CounterVec
	questionsAsked         *prometheus.CounterVec
	answers                *prometheus.CounterVec
	completions            *prometheus.CounterVec
	cancellations          prometheus.Counter
	collaboratorFailures   *prometheus.CounterVec
	concurrentModification prometheus.Counter
	lockWait               prometheus.Histogram
	duplicateTurns         prometheus.Counter
	stagedCommits          *prometheus.CounterVec
	eventsReceived         *prometheus.CounterVec

	aggregateOps       *prometheus.CounterVec
	aggregateLatency   *prometheus.HistogramVec
	aggregateConflicts *prometheus.CounterVec
	aggregateRetries   *prometheus.CounterVec

	sloCompliance *prometheus.GaugeVec
	sloBudget     *prometheus.GaugeVec
	sloBurn       *prometheus.GaugeVec

	// Raw totals read by the SLO evaluator.
	sli sliCounters
}

type sliCounters struct {
	apiTotal         atomic.Uint64
	apiErrors        atomic.Uint64
	detectorCalls    atomic.Uint64
	detectorFailures atomic.Uint64
	scorerCalls      atomic.Uint64
	scorerFailures   atomic.Uint64
	commitsStaged    atomic.Uint64
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Current returns the metrics set installed by Init, or nil.
func Current() *Metrics {
	return instance
}

// Init builds the metrics set once and installs it as Current.
func Init() *Metrics {
	initOnce.Do(func() {
		instance = NewMetrics()
	})
	return instance
}

// NewMetrics builds an isolated metrics set on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := factory{reg: reg}

	m := &Metrics{
		registry: reg,

		apiRequests: f.counterVec("api_requests_total", "HTTP requests by method, route and status.", "method", "route", "status"),
		apiLatency:  f.histogramVec("api_request_duration_seconds", "HTTP request latency.", prometheus.DefBuckets, "method", "route"),
		apiInflight: f.gauge("api_inflight_requests", "HTTP requests currently being served."),

		llmRequests: f.counterVec("llm_requests_total", "LLM calls by role, model and status.", "role", "model", "status"),
		llmLatency:  f.histogramVec("llm_request_duration_seconds", "LLM call latency.", []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60}, "role", "model"),

		turns:                  f.counterVec("phq9_turns_total", "Chat turns processed by outcome.", "outcome"),
		triggers:               f.counterVec("phq9_triggers_total", "Trigger detector results.", "result"),
		questionsAsked:         f.counterVec("phq9_questions_asked_total", "Questions injected into chat by item number.", "question"),
		answers:                f.counterVec("phq9_answers_total", "Answers recorded by confidence.", "low_confidence"),
		completions:            f.counterVec("phq9_completions_total", "Completed assessments by severity.", "severity"),
		cancellations:          f.counter("phq9_cancellations_total", "Assessments cancelled."),
		collaboratorFailures:   f.counterVec("phq9_collaborator_failures_total", "Detector or scorer failures by kind.", "collaborator", "kind"),
		concurrentModification: f.counter("phq9_concurrent_modifications_total", "Turns that waited past the lock warning threshold or lost a CAS race."),
		lockWait:               f.histogram("phq9_user_lock_wait_seconds", "Time spent waiting for the per-user lock.", []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10}),
		duplicateTurns:         f.counter("phq9_duplicate_turns_total", "Turns answered from the idempotency store."),
		stagedCommits:          f.counterVec("phq9_staged_commits_total", "Answer commits staged after persistence failure, by result.", "result"),
		eventsReceived:         f.counterVec("phq9_events_received_total", "Assessment events received from the event bus, by type.", "type"),

		aggregateOps:       f.counterVec("aggregate_operations_total", "Aggregate writes by operation and status.", "operation", "status"),
		aggregateLatency:   f.histogramVec("aggregate_operation_duration_seconds", "Aggregate write latency.", prometheus.DefBuckets, "operation"),
		aggregateConflicts: f.counterVec("aggregate_conflicts_total", "Aggregate CAS or uniqueness conflicts.", "operation"),
		aggregateRetries:   f.counterVec("aggregate_retries_total", "Aggregate writes that failed retryably.", "operation"),

		sloCompliance: f.gaugeVec("slo_compliance_ratio", "Rolling SLI value per objective.", "slo", "window"),
		sloBudget:     f.gaugeVec("slo_error_budget_remaining_ratio", "Remaining error budget per objective.", "slo", "window"),
		sloBurn:       f.gaugeVec("slo_burn_rate", "Error budget burn rate per objective.", "slo", "window"),
	}
	return m
}

type factory struct {
	reg *prometheus.Registry
}

func (f factory) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	f.reg.MustRegister(c)
	return c
}

func (f factory) counter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	f.reg.MustRegister(c)
	return c
}

func (f factory) gauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	f.reg.MustRegister(g)
	return g
}

func (f factory) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	f.reg.MustRegister(g)
	return g
}

func (f factory) histogram(name, help string, buckets []float64) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets})
	f.reg.MustRegister(h)
	return h
}

func (f factory) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets}, labels)
	f.reg.MustRegister(h)
	return h
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	route = strings.TrimSpace(route)
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.sli.apiTotal.Add(1)
	if strings.HasPrefix(status, "5") {
		m.sli.apiErrors.Add(1)
	}
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(role, model, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(role, model, status).Inc()
	m.llmLatency.WithLabelValues(role, model).Observe(dur.Seconds())
}

func (m *Metrics) IncTurn(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncTrigger(detected bool) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(strconv.FormatBool(detected)).Inc()
	m.sli.detectorCalls.Add(1)
}

func (m *Metrics) IncQuestionAsked(number int) {
	if m == nil {
		return
	}
	m.questionsAsked.WithLabelValues(strconv.Itoa(number)).Inc()
}

func (m *Metrics) IncAnswer(lowConfidence bool) {
	if m == nil {
		return
	}
	m.answers.WithLabelValues(strconv.FormatBool(lowConfidence)).Inc()
	m.sli.scorerCalls.Add(1)
}

func (m *Metrics) IncCompletion(severity string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(severity).Inc()
}

func (m *Metrics) IncCancellation() {
	if m == nil {
		return
	}
	m.cancellations.Inc()
}

func (m *Metrics) IncCollaboratorFailure(collaborator, kind string) {
	if m == nil {
		return
	}
	m.collaboratorFailures.WithLabelValues(collaborator, kind).Inc()
	switch collaborator {
	case "scorer":
		m.sli.scorerFailures.Add(1)
	case "detector":
		m.sli.detectorFailures.Add(1)
	}
}

func (m *Metrics) IncConcurrentModification() {
	if m == nil {
		return
	}
	m.concurrentModification.Inc()
}

func (m *Metrics) ObserveLockWait(dur time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(dur.Seconds())
}

func (m *Metrics) IncDuplicateTurn() {
	if m == nil {
		return
	}
	m.duplicateTurns.Inc()
}

func (m *Metrics) IncStagedCommit(result string) {
	if m == nil {
		return
	}
	m.stagedCommits.WithLabelValues(result).Inc()
	if result == "staged" {
		m.sli.commitsStaged.Add(1)
	}
}

func (m *Metrics) IncEventReceived(eventType string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ObserveAggregateOperation(name, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.WithLabelValues(name, status).Inc()
	m.aggregateLatency.WithLabelValues(name).Observe(dur.Seconds())
}

func (m *Metrics) IncAggregateConflict(name string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.WithLabelValues(name).Inc()
}

func (m *Metrics) IncAggregateRetry(name string) {
	if m == nil {
		return
	}
	m.aggregateRetries.WithLabelValues(name).Inc()
}
