package llm

import (
	"context"
	"fmt"
	"strings"
)

type ScoreRequest struct {
	// Symptom is the clinical description of the item being answered.
	Symptom string
	// Question is the conversational wording the user saw.
	Question string
	Rubric   string
	Answer   string
}

type ScoreResult struct {
	Score         int
	LowConfidence bool
	Rationale     string
}

// Scorer infers a 0..3 PHQ-9 item score from a free-text answer.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (ScoreResult, error)
}

type scorer struct {
	client Client
}

func NewScorer(c Client) Scorer {
	return &scorer{client: c}
}

const scorerSystemPrompt = `Eres un experto en evaluación PHQ-9. Analiza la respuesta del usuario a una pregunta del cuestionario y asigna un score de 0 a 3 según la escala indicada.
Responde SOLO con un objeto JSON con esta forma:
{"score": 0, "rationale": "breve explicación"}`

func (s *scorer) Score(ctx context.Context, req ScoreRequest) (ScoreResult, error) {
	user := fmt.Sprintf(
		"Síntoma evaluado: %s\nPregunta realizada: %s\nRespuesta del usuario: %q\n\nEscala:\n%s",
		strings.TrimSpace(req.Symptom),
		strings.TrimSpace(req.Question),
		req.Answer,
		strings.TrimSpace(req.Rubric),
	)
	content, err := s.client.CompleteJSON(ctx, "scorer", scorerSystemPrompt, user)
	if err != nil {
		return ScoreResult{}, err
	}
	return ParseScore(content)
}

// ParseScore decodes scorer output. Numeric strings and out-of-range or
// fractional values are accepted but flagged low confidence.
func ParseScore(content string) (ScoreResult, error) {
	obj, err := decodeObject(content)
	if err != nil {
		return ScoreResult{}, err
	}
	raw, ok := firstKey(obj, "score", "puntuacion", "puntaje")
	if !ok {
		return ScoreResult{}, fmt.Errorf("scorer output missing score")
	}
	n, coerced, err := asNumber(raw)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("scorer score: %w", err)
	}
	score, low := coerceScore(n)
	rationale := ""
	if v, ok := firstKey(obj, "rationale", "razonamiento", "reasoning"); ok {
		rationale = asString(v)
	}
	return ScoreResult{
		Score:         score,
		LowConfidence: low || coerced,
		Rationale:     rationale,
	}, nil
}
