// Package llm talks to an OpenAI-compatible chat completions endpoint
// (OpenAI itself or a local Ollama /v1) for classification and scoring.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/yungbote/wellchat-backend/internal/observability"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

const (
	DefaultBaseURL = "http://localhost:11434/v1"
	DefaultModel   = "llama3.1:8b"
)

// ErrEmptyCompletion is returned when the endpoint answers without any choice content.
var ErrEmptyCompletion = errors.New("llm: empty completion")

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client issues JSON-mode chat completions.
type Client interface {
	CompleteJSON(ctx context.Context, role, system, user string) (string, error)
}

type client struct {
	api   *openai.Client
	model string
	log   *logger.Logger
}

func NewClient(cfg Config, baseLog *logger.Logger) Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		// Ollama ignores the key but go-openai always sends the header.
		apiKey = "ollama"
	}
	oc := openai.DefaultConfig(apiKey)
	oc.BaseURL = strings.TrimRight(baseURL, "/")
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &client{
		api:   openai.NewClientWithConfig(oc),
		model: model,
		log:   baseLog.With("client", "LLM", "model", model),
	}
}

// CompleteJSON sends one system+user exchange with JSON output enforced and
// returns the raw content of the first choice. role labels metrics only.
func (c *client) CompleteJSON(ctx context.Context, role, system, user string) (string, error) {
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	status := "ok"
	defer func() {
		observability.Current().ObserveLLMRequest(role, c.model, status, time.Since(start))
	}()
	if err != nil {
		status = errorStatus(ctx, err)
		return "", fmt.Errorf("llm %s completion: %w", role, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		status = "empty"
		return "", ErrEmptyCompletion
	}
	c.log.Debug("llm completion", "role", role, "latency_ms", time.Since(start).Milliseconds())
	return resp.Choices[0].Message.Content, nil
}

func errorStatus(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timeout"
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("http_%d", apiErr.HTTPStatusCode)
	}
	return "error"
}
