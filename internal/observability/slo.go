package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

type SLOConfig struct {
	Enabled  bool
	Interval time.Duration
	Window   time.Duration

	APIAvailabilityTarget  float64
	DetectorSuccessTarget  float64
	ScorerSuccessTarget    float64
	AnswerDurabilityTarget float64

	AlertWebhookURL  string
	AlertOwner       string
	AlertMinInterval time.Duration
	AlertBurnWarn    float64
	AlertBurnCrit    float64
}

func (c SLOConfig) withDefaults() SLOConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Window < c.Interval {
		c.Window = 24 * time.Hour
	}
	if c.APIAvailabilityTarget <= 0 {
		c.APIAvailabilityTarget = 0.995
	}
	if c.DetectorSuccessTarget <= 0 {
		c.DetectorSuccessTarget = 0.98
	}
	if c.ScorerSuccessTarget <= 0 {
		c.ScorerSuccessTarget = 0.95
	}
	if c.AnswerDurabilityTarget <= 0 {
		c.AnswerDurabilityTarget = 0.999
	}
	if c.AlertMinInterval <= 0 {
		c.AlertMinInterval = 15 * time.Minute
	}
	if c.AlertBurnWarn <= 0 {
		c.AlertBurnWarn = 2
	}
	if c.AlertBurnCrit <= 0 {
		c.AlertBurnCrit = 10
	}
	return c
}

type rollingSum struct {
	values []float64
	idx    int
	total  float64
}

func newRollingSum(size int) *rollingSum {
	if size < 1 {
		size = 1
	}
	return &rollingSum{values: make([]float64, size)}
}

func (r *rollingSum) add(v float64) {
	r.total += v - r.values[r.idx]
	r.values[r.idx] = v
	r.idx++
	if r.idx >= len(r.values) {
		r.idx = 0
	}
}

// sliSeries tracks one good/bad pair over the rolling window.
type sliSeries struct {
	name   string
	target float64
	total  *rollingSum
	bad    *rollingSum

	prevTotal uint64
	prevBad   uint64
}

// SLOEvaluator samples the raw SLI totals on an interval and publishes
// compliance, remaining budget and burn rate per objective.
type SLOEvaluator struct {
	metrics     *Metrics
	log         *logger.Logger
	cfg         SLOConfig
	windowLabel string
	client      *http.Client

	series []*sliSeries

	alertMu    sync.Mutex
	lastAlerts map[string]time.Time
}

func (m *Metrics) StartSLOEvaluator(ctx context.Context, log *logger.Logger, cfg SLOConfig) *SLOEvaluator {
	if m == nil || !cfg.Enabled {
		return nil
	}
	eval := NewSLOEvaluator(m, log, cfg)
	go eval.run(ctx)
	if log != nil {
		log.Info("SLO evaluator started", "window", eval.windowLabel, "interval", eval.cfg.Interval.String())
	}
	return eval
}

func NewSLOEvaluator(m *Metrics, log *logger.Logger, cfg SLOConfig) *SLOEvaluator {
	cfg = cfg.withDefaults()
	size := int(cfg.Window / cfg.Interval)
	mk := func(name string, target float64) *sliSeries {
		return &sliSeries{name: name, target: clamp01(target), total: newRollingSum(size), bad: newRollingSum(size)}
	}
	return &SLOEvaluator{
		metrics:     m,
		log:         log,
		cfg:         cfg,
		windowLabel: formatWindowLabel(cfg.Window),
		client:      &http.Client{Timeout: 5 * time.Second},
		series: []*sliSeries{
			mk("api_availability", cfg.APIAvailabilityTarget),
			mk("detector_success", cfg.DetectorSuccessTarget),
			mk("scorer_success", cfg.ScorerSuccessTarget),
			mk("answer_durability", cfg.AnswerDurabilityTarget),
		},
		lastAlerts: map[string]time.Time{},
	}
}

func (e *SLOEvaluator) run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Evaluate(ctx)
		}
	}
}

// Evaluate takes one sample. run calls it on every tick.
func (e *SLOEvaluator) Evaluate(ctx context.Context) {
	if e == nil || e.metrics == nil {
		return
	}
	c := &e.metrics.sli
	answers := c.scorerCalls.Load()
	staged := c.commitsStaged.Load()
	samples := [][2]uint64{
		{c.apiTotal.Load(), c.apiErrors.Load()},
		{c.detectorCalls.Load(), c.detectorFailures.Load()},
		{answers, c.scorerFailures.Load()},
		{answers + staged, staged},
	}
	for i, s := range e.series {
		total, bad := samples[i][0], samples[i][1]
		s.total.add(delta(total, s.prevTotal))
		s.bad.add(delta(bad, s.prevBad))
		s.prevTotal, s.prevBad = total, bad
		e.evalSLO(ctx, s)
	}
}

func (e *SLOEvaluator) evalSLO(ctx context.Context, s *sliSeries) {
	if s.total.total <= 0 {
		e.metrics.sloCompliance.WithLabelValues(s.name, e.windowLabel).Set(1)
		e.metrics.sloBudget.WithLabelValues(s.name, e.windowLabel).Set(1)
		e.metrics.sloBurn.WithLabelValues(s.name, e.windowLabel).Set(0)
		return
	}
	sli := clamp01(1 - s.bad.total/s.total.total)
	burn := 0.0
	if s.target < 1 {
		burn = (1 - sli) / (1 - s.target)
	}
	budget := clamp01(1 - burn)
	e.metrics.sloCompliance.WithLabelValues(s.name, e.windowLabel).Set(sli)
	e.metrics.sloBudget.WithLabelValues(s.name, e.windowLabel).Set(budget)
	e.metrics.sloBurn.WithLabelValues(s.name, e.windowLabel).Set(burn)

	if e.cfg.AlertWebhookURL == "" {
		return
	}
	severity := ""
	if burn >= e.cfg.AlertBurnCrit {
		severity = "critical"
	} else if burn >= e.cfg.AlertBurnWarn {
		severity = "warning"
	}
	if severity == "" {
		return
	}
	key := s.name + ":" + severity
	e.alertMu.Lock()
	last := e.lastAlerts[key]
	if !last.IsZero() && time.Since(last) < e.cfg.AlertMinInterval {
		e.alertMu.Unlock()
		return
	}
	e.lastAlerts[key] = time.Now()
	e.alertMu.Unlock()
	e.sendAlert(ctx, s, severity, sli, burn, budget)
}

func (e *SLOEvaluator) sendAlert(ctx context.Context, s *sliSeries, severity string, sli, burn, budget float64) {
	payload := map[string]any{
		"title":                  "SLO burn rate alert",
		"severity":               severity,
		"owner":                  e.cfg.AlertOwner,
		"slo":                    s.name,
		"window":                 e.windowLabel,
		"sli":                    sli,
		"target":                 s.target,
		"burn_rate":              burn,
		"error_budget_remaining": budget,
		"timestamp":              time.Now().UTC().Format(time.RFC3339),
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.AlertWebhookURL, bytes.NewReader(body))
	if err != nil {
		if e.log != nil {
			e.log.Warn("slo alert request build failed", "error", err, "slo", s.name)
		}
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		if e.log != nil {
			e.log.Warn("slo alert post failed", "error", err, "slo", s.name)
		}
		return
	}
	_ = resp.Body.Close()
	if e.log != nil {
		e.log.Info("slo alert sent", "slo", s.name, "severity", severity, "status", resp.StatusCode)
	}
}

func delta(current, prev uint64) float64 {
	if current < prev {
		return float64(current)
	}
	return float64(current - prev)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func formatWindowLabel(window time.Duration) string {
	hours := window.Hours()
	if hours >= 24 && int(hours)%24 == 0 && hours == float64(int(hours)) {
		return strconv.Itoa(int(hours/24)) + "d"
	}
	if hours >= 1 {
		return strconv.Itoa(int(hours)) + "h"
	}
	return strconv.Itoa(int(window.Minutes())) + "m"
}
