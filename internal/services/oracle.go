package services

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Oracle is a text-completion model. Output is not deterministic and may be
// malformed; callers validate everything it returns.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type OracleFunc func(ctx context.Context, prompt string) (string, error)

func (f OracleFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type GeminiOracle struct {
	client *genai.Client
	model  string
}

func NewGeminiOracle(ctx context.Context, apiKey, model string) (*GeminiOracle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiOracle{
		client: client,
		model:  model,
	}, nil
}

func (o *GeminiOracle) Model() string {
	return o.model
}

func (o *GeminiOracle) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.Models.GenerateContent(ctx, o.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("model %s returned no text", o.model)
	}
	return text, nil
}
