// Package llm is a semantic-analysis backend that asks an OpenAI-compatible
// chat model to score open answers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/autograder/internal/analysis"
	"github.com/pavelanni/autograder/internal/llm/prompts"
)

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping checks that the API is reachable by listing models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Analyze implements analysis.Service.
func (c *Client) Analyze(ctx context.Context, req analysis.ServiceRequest) (analysis.Report, error) {
	systemPrompt, err := prompts.BuildAnalysisPrompt(prompts.AnalysisData{
		PromptContext:   req.PromptContext,
		ReferenceAnswer: req.ReferenceAnswer,
		Rubric:          req.Rubric,
		Answer:          req.Text,
	})
	if err != nil {
		return analysis.Report{}, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return analysis.Report{}, fmt.Errorf("LLM API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return analysis.Report{}, errors.New("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)

	return parseReport(raw)
}

// parseReport decodes the model's JSON, tolerating a surrounding code fence.
func parseReport(raw string) (analysis.Report, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}

	rep, err := analysis.DecodeReport([]byte(s))
	if err != nil {
		return analysis.Report{}, fmt.Errorf("%w (raw: %s)", err, raw)
	}
	return rep, nil
}
