package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountersAndExposition(t *testing.T) {
	m := NewMetrics()
	m.IncTrigger(true)
	m.IncTrigger(false)
	m.IncTrigger(true)
	m.IncAnswer(true)
	m.IncCompletion("moderate")
	m.ObserveAggregateOperation("Assessment.CommitAnswer", "success", 5*time.Millisecond)

	if got := testutil.ToFloat64(m.triggers.WithLabelValues("true")); got != 2 {
		t.Fatalf("triggers{true}: want 2 got %v", got)
	}
	if got := testutil.ToFloat64(m.completions.WithLabelValues("moderate")); got != 1 {
		t.Fatalf("completions{moderate}: want 1 got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"wellchat_phq9_triggers_total",
		"wellchat_phq9_answers_total",
		"wellchat_aggregate_operations_total",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %s", want)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncTurn("noop")
	m.IncConcurrentModification()
	m.ObserveLockWait(time.Second)
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
}
