package explain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mr1hm/go-flood-risk/internal/models"
)

type completer interface {
	CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error)
}

// LLMCapability asks a chat model for a structured explanation.
type LLMCapability struct {
	client      completer
	model       string
	temperature float32
}

func NewLLMCapability(client completer, model string, temperature float32) *LLMCapability {
	return &LLMCapability{client: client, model: model, temperature: temperature}
}

func (l *LLMCapability) Available() bool {
	return l != nil && l.client != nil
}

func (l *LLMCapability) Explain(ctx context.Context, req Request) (models.ContextualExplanation, error) {
	resp, err := l.client.CreateChatCompletion(ctx, ChatCompletionRequest{
		Model:       l.model,
		Temperature: l.temperature,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(req)},
		},
	})
	if err != nil {
		return models.ContextualExplanation{}, err
	}
	if len(resp.Choices) == 0 {
		return models.ContextualExplanation{}, errors.New("chat completion returned no choices")
	}
	return parseExplanation(resp.Choices[0].Message.Content)
}

const systemPrompt = "You are a flood-risk analyst for Mexico City's civil protection office. " +
	"Respond ONLY with valid minified JSON using this shape: " +
	`{"risk_factors":string[],"summary":string,"recommendations":string[]}. ` +
	"risk_factors are short snake_case labels, summary is one sentence, recommendations are short actionable strings. " +
	"Never return plain text or other fields."

func buildPrompt(req Request) string {
	payload, err := json.Marshal(req)
	if err != nil {
		payload = []byte("{}")
	}
	return fmt.Sprintf("Explain the flood risk for %s over the coming hours based ONLY on this hazard and rainfall data: %s",
		strings.TrimSpace(req.Locality), payload)
}
