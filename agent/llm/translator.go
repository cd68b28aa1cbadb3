// Package llm implements the reasoning capabilities of the query agent on
// top of the OpenRouter-backed openai-go client. Responses are plain chat
// completions; the translator additionally forces JSON object output.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
	openrouterx "github.com/leadloop-ai/leadloop/pkg/openrouter"
)

// Translator proposes the next agent action for a question.
type Translator struct {
	client      *openaisdk.Client
	model       string
	temperature float32
	maxTokens   int
	system      string
}

var _ contractx.Translator = (*Translator)(nil)

// NewTranslator builds the translator role. systemPrompt may contain the
// {{SCHEMA}} placeholder; it is substituted per request.
func NewTranslator(client *openaisdk.Client, cfg openrouterx.Config, systemPrompt string) *Translator {
	return &Translator{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxCompletionToken,
		system:      systemPrompt,
	}
}

type translatePayload struct {
	Question string                `json:"question"`
	Steps    []contractx.TraceStep `json:"steps,omitempty"`
}

func (t *Translator) Propose(ctx context.Context, req contractx.TranslateRequest) (contractx.Action, error) {
	payload, err := json.Marshal(translatePayload{Question: req.Question, Steps: req.Steps})
	if err != nil {
		return contractx.Action{}, fmt.Errorf("%w: encode request: %v", contractx.ErrModelInvoke, err)
	}

	system := strings.ReplaceAll(t.system, "{{SCHEMA}}", req.Schema)
	resp, err := t.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(t.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(system),
			openaisdk.UserMessage(string(payload)),
		},
		Temperature: openaisdk.Float(float64(t.temperature)),
		MaxTokens:   openaisdk.Int(int64(t.maxTokens)),
		ResponseFormat: openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return contractx.Action{}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return contractx.Action{}, fmt.Errorf("%w: no choices returned", contractx.ErrSchemaViolation)
	}

	return parseAction(resp.Choices[0].Message.Content)
}

// parseAction decodes and validates a model response. Models occasionally
// wrap JSON in a code fence even when told not to, so fences are stripped
// before decoding.
func parseAction(content string) (contractx.Action, error) {
	content = stripFence(content)
	if content == "" {
		return contractx.Action{}, fmt.Errorf("%w: empty response", contractx.ErrSchemaViolation)
	}

	var action contractx.Action
	if err := json.Unmarshal([]byte(content), &action); err != nil {
		return contractx.Action{}, fmt.Errorf("%w: %v", contractx.ErrSchemaViolation, err)
	}

	switch action.Kind {
	case contractx.ActionSQL:
		if strings.TrimSpace(action.SQL) == "" {
			return contractx.Action{}, fmt.Errorf("%w: sql action without statement", contractx.ErrSchemaViolation)
		}
	case contractx.ActionFinal, contractx.ActionClarify:
		if strings.TrimSpace(action.Text) == "" {
			return contractx.Action{}, fmt.Errorf("%w: %s action without text", contractx.ErrSchemaViolation, action.Kind)
		}
	default:
		return contractx.Action{}, fmt.Errorf("%w: unknown action kind %q", contractx.ErrSchemaViolation, action.Kind)
	}
	return action, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
