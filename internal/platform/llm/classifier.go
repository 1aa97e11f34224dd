package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
)

type Classification struct {
	IsDepressive bool
	// Confidence is normalized to 0..1.
	Confidence float64
	Risk       assessment.DetectionRisk
	Keywords   []string
}

// Classifier flags depressive language in a chat message.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

type classifier struct {
	client Client
}

func NewClassifier(c Client) Classifier {
	return &classifier{client: c}
}

const classifierSystemPrompt = `Eres un experto en salud mental. Analiza el mensaje del usuario y determina si contiene lenguaje depresivo.
Indica si tiene lenguaje depresivo, el nivel de confianza (0-100), el nivel de riesgo (low, medium, high, severe) y hasta 5 palabras clave detectadas.
Responde SOLO con un objeto JSON con esta forma:
{"is_depressive": true, "confidence": 85, "risk_level": "high", "keywords": ["palabra1", "palabra2"]}`

func (c *classifier) Classify(ctx context.Context, text string) (Classification, error) {
	content, err := c.client.CompleteJSON(ctx, "classifier", classifierSystemPrompt, fmt.Sprintf("Mensaje: %q", text))
	if err != nil {
		return Classification{}, err
	}
	return ParseClassification(content)
}

// ParseClassification decodes classifier output. Both English and Spanish keys are accepted.
func ParseClassification(content string) (Classification, error) {
	obj, err := decodeObject(content)
	if err != nil {
		return Classification{}, err
	}
	rawFlag, ok := firstKey(obj, "is_depressive", "es_depresivo")
	if !ok {
		return Classification{}, fmt.Errorf("classifier output missing is_depressive")
	}
	flag, err := asBool(rawFlag)
	if err != nil {
		return Classification{}, fmt.Errorf("classifier is_depressive: %w", err)
	}
	out := Classification{IsDepressive: flag, Risk: assessment.DetectionRiskLow}
	if v, ok := firstKey(obj, "confidence", "confianza"); ok {
		if n, _, err := asNumber(v); err == nil {
			out.Confidence = normalizeConfidence(n)
		}
	}
	if v, ok := firstKey(obj, "risk_level", "riesgo", "risk"); ok {
		out.Risk = NormalizeRisk(asString(v))
	}
	if v, ok := firstKey(obj, "keywords", "palabras_clave"); ok {
		out.Keywords = asStrings(v)
		if len(out.Keywords) > 5 {
			out.Keywords = out.Keywords[:5]
		}
	}
	return out, nil
}

// normalizeConfidence accepts 0..1 or 0..100 scales.
func normalizeConfidence(n float64) float64 {
	if n > 1 {
		n = n / 100
	}
	switch {
	case n < 0:
		return 0
	case n > 1:
		return 1
	default:
		return n
	}
}

// NormalizeRisk maps English or Spanish risk labels onto DetectionRisk. Unknown labels read as low.
func NormalizeRisk(raw string) assessment.DetectionRisk {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "severe", "severo", "severa":
		return assessment.DetectionRiskSevere
	case "high", "alto", "alta":
		return assessment.DetectionRiskHigh
	case "medium", "medio", "media", "moderate", "moderado":
		return assessment.DetectionRiskMedium
	default:
		return assessment.DetectionRiskLow
	}
}
