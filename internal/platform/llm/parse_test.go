package llm

import (
	"testing"

	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
)

func TestParseScore(t *testing.T) {
	cases := []struct {
		name    string
		content string
		score   int
		low     bool
		wantErr bool
	}{
		{name: "clean", content: `{"score": 2, "rationale": "más de la mitad de los días"}`, score: 2},
		{name: "spanish keys", content: `{"score": 1, "razonamiento": "algunos días"}`, score: 1},
		{name: "numeric string", content: `{"score": "3"}`, score: 3, low: true},
		{name: "fraction rounds", content: `{"score": 1.6}`, score: 2, low: true},
		{name: "above range clamps", content: `{"score": 7}`, score: 3, low: true},
		{name: "below range clamps", content: `{"score": -2}`, score: 0, low: true},
		{name: "fenced", content: "```json\n{\"score\": 0}\n```", score: 0},
		{name: "missing score", content: `{"rationale": "?"}`, wantErr: true},
		{name: "not json", content: `tres`, wantErr: true},
		{name: "word score", content: `{"score": "tres"}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseScore(tc.content)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseScore: %v", err)
			}
			if got.Score != tc.score || got.LowConfidence != tc.low {
				t.Fatalf("got score=%d low=%v want score=%d low=%v", got.Score, got.LowConfidence, tc.score, tc.low)
			}
		})
	}
}

func TestParseClassification(t *testing.T) {
	got, err := ParseClassification(`{"es_depresivo": true, "confianza": 85, "riesgo": "alto", "palabras_clave": ["vacío","cansado"]}`)
	if err != nil {
		t.Fatalf("ParseClassification: %v", err)
	}
	if !got.IsDepressive || got.Risk != assessment.DetectionRiskHigh {
		t.Fatalf("unexpected classification: %+v", got)
	}
	if got.Confidence != 0.85 {
		t.Fatalf("confidence: want 0.85 got %v", got.Confidence)
	}
	if len(got.Keywords) != 2 {
		t.Fatalf("keywords: %v", got.Keywords)
	}

	got, err = ParseClassification(`{"is_depressive": false, "confidence": 0.3, "risk_level": "whatever"}`)
	if err != nil {
		t.Fatalf("ParseClassification: %v", err)
	}
	if got.IsDepressive || got.Risk != assessment.DetectionRiskLow || got.Confidence != 0.3 {
		t.Fatalf("unexpected classification: %+v", got)
	}

	if _, err := ParseClassification(`{"confidence": 90}`); err == nil {
		t.Fatalf("expected error when flag missing")
	}
}

func TestNormalizeRisk(t *testing.T) {
	cases := map[string]assessment.DetectionRisk{
		"severo": assessment.DetectionRiskSevere,
		"HIGH":   assessment.DetectionRiskHigh,
		"medio":  assessment.DetectionRiskMedium,
		"bajo":   assessment.DetectionRiskLow,
		"":       assessment.DetectionRiskLow,
	}
	for raw, want := range cases {
		if got := NormalizeRisk(raw); got != want {
			t.Fatalf("NormalizeRisk(%q)=%s want %s", raw, got, want)
		}
	}
}

func TestClampScore(t *testing.T) {
	cases := []struct {
		in      int
		want    int
		changed bool
	}{
		{in: 0, want: 0},
		{in: 3, want: 3},
		{in: 4, want: 3, changed: true},
		{in: -1, want: 0, changed: true},
	}
	for _, tc := range cases {
		got, changed := ClampScore(tc.in)
		if got != tc.want || changed != tc.changed {
			t.Fatalf("ClampScore(%d)=(%d,%v) want (%d,%v)", tc.in, got, changed, tc.want, tc.changed)
		}
	}
}
