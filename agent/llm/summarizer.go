package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
	openrouterx "github.com/leadloop-ai/leadloop/pkg/openrouter"
)

// Summarizer turns capped query results into a natural-language answer.
type Summarizer struct {
	client      *openaisdk.Client
	model       string
	temperature float32
	maxTokens   int
	system      string
}

var _ contractx.Summarizer = (*Summarizer)(nil)

func NewSummarizer(client *openaisdk.Client, cfg openrouterx.Config, systemPrompt string) *Summarizer {
	return &Summarizer{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxCompletionToken,
		system:      systemPrompt,
	}
}

func (s *Summarizer) Summarize(ctx context.Context, req contractx.SummarizeRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", contractx.ErrModelInvoke, err)
	}

	resp, err := s.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(s.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(s.system),
			openaisdk.UserMessage(string(payload)),
		},
		Temperature: openaisdk.Float(float64(s.temperature)),
		MaxTokens:   openaisdk.Int(int64(s.maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", contractx.ErrSchemaViolation)
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary", contractx.ErrSchemaViolation)
	}
	return summary, nil
}
