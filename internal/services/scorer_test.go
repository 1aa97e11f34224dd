package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/wellchat-backend/internal/assessment/catalog"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

func TestScorerServiceRetriesParseFailures(t *testing.T) {
	fake := &fakeScorer{scores: map[int]int{1: 3}, hang: map[int]bool{}, fails: 1}
	svc := NewScorerService(logger.Nop(), fake, catalog.Default(), ScorerConfig{Timeout: 5 * time.Second, MaxAttempts: 2}, nil)

	q, _ := catalog.Default().Question(0)
	res := svc.Score(context.Background(), q, "casi todos los días")
	if res.Score != 3 || res.LowConfidence {
		t.Fatalf("expected retried score 3, got %+v", res)
	}
	if fake.Calls() != 2 {
		t.Fatalf("expected 2 scorer calls, got %d", fake.Calls())
	}
}

func TestScorerServiceFallsBack(t *testing.T) {
	q, _ := catalog.Default().Question(2)
	cases := []struct {
		name     string
		scorer   *fakeScorer
		cfg      ScorerConfig
		wantKind string
	}{
		{
			name:     "timeout",
			scorer:   &fakeScorer{scores: map[int]int{}, hang: map[int]bool{3: true}},
			cfg:      ScorerConfig{Timeout: 30 * time.Millisecond, MaxAttempts: 3, FallbackScore: 1},
			wantKind: "timeout",
		},
		{
			name:     "persistent parse failure",
			scorer:   &fakeScorer{scores: map[int]int{}, hang: map[int]bool{}, fails: 5},
			cfg:      ScorerConfig{Timeout: 5 * time.Second, MaxAttempts: 1, FallbackScore: 2},
			wantKind: "error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewScorerService(logger.Nop(), tc.scorer, nil, tc.cfg, nil)
			res := svc.Score(context.Background(), q, "no sé")
			if !res.LowConfidence {
				t.Fatalf("expected low confidence fallback, got %+v", res)
			}
			if res.Score != tc.cfg.FallbackScore {
				t.Fatalf("fallback score=%d want %d", res.Score, tc.cfg.FallbackScore)
			}
			if !strings.Contains(res.Rationale, tc.wantKind) {
				t.Fatalf("rationale %q missing %q", res.Rationale, tc.wantKind)
			}
		})
	}
}

func TestScorerServiceWithoutScorer(t *testing.T) {
	svc := NewScorerService(logger.Nop(), nil, nil, ScorerConfig{FallbackScore: -1}, nil)
	q, _ := catalog.Default().Question(0)
	res := svc.Score(context.Background(), q, "bien")
	if !res.LowConfidence || res.Score != DefaultFallbackScore {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestScorerServiceClampsOutOfRangeScore(t *testing.T) {
	q, _ := catalog.Default().Question(0)
	for _, raw := range []int{4, -2} {
		fake := &fakeScorer{scores: map[int]int{1: raw}, hang: map[int]bool{}}
		svc := NewScorerService(logger.Nop(), fake, catalog.Default(), ScorerConfig{Timeout: 5 * time.Second, MaxAttempts: 1}, nil)
		res := svc.Score(context.Background(), q, "todos los días")
		if res.Score < 0 || res.Score > 3 {
			t.Fatalf("raw %d: score %d outside 0..3", raw, res.Score)
		}
		if !res.LowConfidence {
			t.Fatalf("raw %d: clamped score should be low confidence, got %+v", raw, res)
		}
		if fake.Calls() != 1 {
			t.Fatalf("raw %d: expected 1 scorer call, got %d", raw, fake.Calls())
		}
	}
}
