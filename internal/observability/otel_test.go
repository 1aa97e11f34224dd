package observability

import "testing"

func TestOtelHeaders(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-api-key=abc, bad ,tenant=wellchat,empty=")
	h := otelHeaders()
	if len(h) != 2 || h["x-api-key"] != "abc" || h["tenant"] != "wellchat" {
		t.Fatalf("unexpected headers: %#v", h)
	}
}

func TestOtelSampleRatioClamp(t *testing.T) {
	cases := map[string]float64{"": 0.1, "2": 1, "-1": 0, "0.5": 0.5, "junk": 0.1}
	for raw, want := range cases {
		t.Setenv("OTEL_SAMPLER_RATIO", raw)
		if got := otelSampleRatio(); got != want {
			t.Fatalf("ratio(%q)=%v want %v", raw, got, want)
		}
	}
}
