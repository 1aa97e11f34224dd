// Package catalog holds the fixed, ordered PHQ-9 question list.
package catalog

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed phq9.yaml
var catalogFS embed.FS

type Question struct {
	// Number is the 1-based item number.
	Number    int    `yaml:"number" json:"number"`
	Symptom   string `yaml:"symptom" json:"symptom"`
	SymptomES string `yaml:"symptom_es" json:"symptom_es"`
	// Prompt is the conversational wording injected into chat.
	Prompt string `yaml:"prompt" json:"prompt"`
}

// Index is the 0-based position of the question.
func (q Question) Index() int { return q.Number - 1 }

type RubricLevel struct {
	Score       int    `yaml:"score"`
	Label       string `yaml:"label"`
	Description string `yaml:"description"`
}

type Catalog struct {
	Instrument string        `yaml:"instrument"`
	Language   string        `yaml:"language"`
	Rubric     []RubricLevel `yaml:"rubric"`
	Questions  []Question    `yaml:"questions"`
}

const expectedQuestions = 9

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the embedded PHQ-9 catalog. It is parsed once and never mutated.
func Default() *Catalog {
	defaultOnce.Do(func() {
		data, err := catalogFS.ReadFile("phq9.yaml")
		if err != nil {
			defaultErr = err
			return
		}
		defaultCat, defaultErr = Parse(data)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("catalog: embedded phq9.yaml invalid: %v", defaultErr))
	}
	return defaultCat
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Questions) != expectedQuestions {
		return fmt.Errorf("catalog must have %d questions, got %d", expectedQuestions, len(c.Questions))
	}
	for i, q := range c.Questions {
		if q.Number != i+1 {
			return fmt.Errorf("question at position %d has number %d", i, q.Number)
		}
		if strings.TrimSpace(q.Prompt) == "" || strings.TrimSpace(q.Symptom) == "" {
			return fmt.Errorf("question %d missing prompt or symptom", q.Number)
		}
	}
	if len(c.Rubric) != 4 {
		return fmt.Errorf("rubric must have 4 levels, got %d", len(c.Rubric))
	}
	for i, lvl := range c.Rubric {
		if lvl.Score != i {
			return fmt.Errorf("rubric level %d has score %d", i, lvl.Score)
		}
	}
	return nil
}

func (c *Catalog) Len() int { return len(c.Questions) }

// Question returns the item at 0-based index.
func (c *Catalog) Question(index int) (Question, error) {
	if index < 0 || index >= len(c.Questions) {
		return Question{}, fmt.Errorf("question index %d out of range [0,%d)", index, len(c.Questions))
	}
	return c.Questions[index], nil
}

// RubricText renders the scoring rubric as prompt lines, one per level.
func (c *Catalog) RubricText() string {
	var b strings.Builder
	for _, lvl := range c.Rubric {
		fmt.Fprintf(&b, "- %d = %s (%s)\n", lvl.Score, lvl.Description, lvl.Label)
	}
	return strings.TrimRight(b.String(), "\n")
}
